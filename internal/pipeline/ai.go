package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/lqiu/newsbridge/internal/llm"
	"github.com/lqiu/newsbridge/internal/model"
	"github.com/lqiu/newsbridge/internal/worker"
)

// aiSleepFunc is the sleep function used between retries (injectable for tests)
var aiSleepFunc = time.Sleep

// aiClient wraps the LLM provider with the shared rate limiter and the
// bounded retry policy for transient service failures. Every stage in
// the pipeline goes through the same client, so the global request rate
// holds regardless of worker count.
type aiClient struct {
	provider   llm.Provider
	limiter    *worker.AILimiter
	maxRetries int
}

func newAIClient(provider llm.Provider, limiter *worker.AILimiter, maxRetries int) *aiClient {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &aiClient{provider: provider, limiter: limiter, maxRetries: maxRetries}
}

// complete performs one chat completion, waiting on the shared limiter
// before each attempt and retrying service failures with exponential
// backoff. An empty model response is a schema failure, not a service
// failure, so the caller's stricter-retry policy handles it.
func (c *aiClient) complete(ctx context.Context, stage string, req llm.Request) (string, error) {
	var lastErr error
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1<<uint(attempt-1)) * time.Second
			aiSleepFunc(backoff)
		}
		if err := c.limiter.Wait(ctx); err != nil {
			return "", model.NewStageError(stage, model.ErrService, err)
		}

		resp, err := c.provider.Complete(ctx, req)
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				return "", model.NewStageError(stage, model.ErrService, ctx.Err())
			}
			continue
		}

		text := strings.TrimSpace(resp.Text)
		if text == "" {
			return "", model.NewStageError(stage, model.ErrSchema, fmt.Errorf("empty model response"))
		}
		return text, nil
	}
	return "", model.NewStageError(stage, model.ErrService,
		fmt.Errorf("after %d attempts: %w", c.maxRetries, lastErr))
}
