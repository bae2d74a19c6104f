// Package pipeline advances discovered candidates through extraction,
// verification, summarization and localization on a bounded worker
// pool. Failures are handled per item; a bad article never aborts the
// batch.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/lqiu/newsbridge/internal/config"
	"github.com/lqiu/newsbridge/internal/llm"
	"github.com/lqiu/newsbridge/internal/model"
	"github.com/lqiu/newsbridge/internal/source"
	"github.com/lqiu/newsbridge/internal/worker"
)

// pipelineNow is the clock used for stage timestamps (injectable for tests).
var pipelineNow = time.Now

// Runner executes one institution's full pipeline pass: discovery, then
// per-item stage processing on the worker pool. One Runner serves the
// whole job; the AI limiter inside it is shared across institutions.
type Runner struct {
	cfg        *config.Config
	window     config.Window
	discoverer source.Source
	extractor  *Extractor
	verifier   *Verifier
	summarizer *Summarizer
	localizer  *Localizer
	log        *slog.Logger

	// OnTransition, when set before the first Run call, receives every
	// stage-change event. Calls are serialized; handlers must not block
	// for long or the workers stall.
	OnTransition func(model.Transition)
	emitMu       sync.Mutex
}

// NewRunner wires the stages for one job.
func NewRunner(log *slog.Logger, cfg *config.Config, provider llm.Provider) *Runner {
	window := cfg.RecencyWindow(pipelineNow())
	fetchLimiter := worker.NewFetchLimiter(cfg.Concurrency.FetchPerHost, cfg.Concurrency.FetchBurst)
	aiLimiter := worker.NewAILimiter(cfg.Concurrency.AIRequestsSec, cfg.Concurrency.AIBurst)
	ai := newAIClient(provider, aiLimiter, cfg.LLM.MaxRetries)

	return &Runner{
		cfg:    cfg,
		window: window,
		discoverer: source.NewMerged(log, cfg.Discovery.MaxCandidates,
			source.NewFeedSource(log, cfg.HTTP, cfg.Discovery, fetchLimiter),
			source.NewCategoryScanner(log, cfg.HTTP, cfg.Discovery, fetchLimiter),
		),
		extractor:  NewExtractor(log, cfg.HTTP, fetchLimiter),
		verifier:   NewVerifier(log, ai, cfg.LLM, window),
		summarizer: NewSummarizer(log, ai, cfg.LLM, cfg.Summary),
		localizer:  NewLocalizer(log, ai, cfg.LLM, cfg.WellKnownNames),
		log:        log,
	}
}

// Window returns the resolved recency window the job runs against.
func (r *Runner) Window() config.Window {
	return r.window
}

// RunOutcome is the result of one institution's pass.
type RunOutcome struct {
	Records  []*model.NewsItemRecord
	Counters model.Counters
}

// Run discovers and processes all candidates for one institution.
// Cancelling ctx stops intake of new items; items already picked up by
// a worker run to completion under the same ctx, so their in-flight
// network calls still honor the deadline.
func (r *Runner) Run(ctx context.Context, inst config.InstitutionProfile) (*RunOutcome, error) {
	candidates, err := r.discoverer.Discover(ctx, inst, r.window)
	if err != nil {
		return nil, fmt.Errorf("discover %s: %w", inst.ID, err)
	}
	r.log.Info("discovery complete", "institution", inst.ID, "candidates", len(candidates), "window", r.window.String())

	pool := worker.NewPool(r.cfg.Concurrency.ItemWorkers)
	pool.Start(ctx)

	submitted := 0
	for _, candidate := range candidates {
		if !pool.Submit(ctx, &itemJob{runner: r, inst: inst, candidate: candidate}) {
			r.log.Warn("intake stopped", "institution", inst.ID, "submitted", submitted, "total", len(candidates))
			break
		}
		submitted++
	}

	outcome := &RunOutcome{
		Counters: model.Counters{Discovered: len(candidates)},
	}
	for _, result := range pool.Wait() {
		record := result.(*itemResult).record
		outcome.Records = append(outcome.Records, record)
		if record.Content != nil {
			outcome.Counters.Processed++
		}
		switch record.State {
		case model.StateRejected:
			outcome.Counters.Rejected++
		case model.StateFailed:
			outcome.Counters.Failed++
		}
	}

	r.log.Info("institution pass complete",
		"institution", inst.ID,
		"discovered", outcome.Counters.Discovered,
		"processed", outcome.Counters.Processed,
		"rejected", outcome.Counters.Rejected,
		"failed", outcome.Counters.Failed)
	return outcome, nil
}

// itemJob processes one candidate on the pool.
type itemJob struct {
	runner    *Runner
	inst      config.InstitutionProfile
	candidate model.CandidateLink
}

type itemResult struct {
	record *model.NewsItemRecord
}

func (res *itemResult) GetError() error {
	if res.record.State == model.StateFailed {
		return fmt.Errorf("%s: %s", res.record.Candidate.URL, res.record.FailureReason)
	}
	return nil
}

func (j *itemJob) Execute(ctx context.Context) worker.Result {
	return &itemResult{record: j.runner.processItem(ctx, j.inst, j.candidate)}
}

// processItem walks one record through the stages. Every exit path
// leaves the record in a coherent state with its reason recorded.
func (r *Runner) processItem(ctx context.Context, inst config.InstitutionProfile, candidate model.CandidateLink) *model.NewsItemRecord {
	record := model.NewRecord(candidate)

	content, err := r.extractor.Extract(ctx, candidate)
	if err != nil {
		r.fail(inst, record, err)
		return record
	}
	record.Content = content
	r.advance(inst, record, model.StateFetched, "")

	verification, err := r.verifier.Verify(ctx, inst, candidate, content)
	if err != nil {
		r.fail(inst, record, err)
		return record
	}
	record.Verification = verification

	if ok, reasons := Acceptance(inst, verification); !ok {
		r.reject(inst, record, strings.Join(reasons, "; "))
		return record
	}
	r.advance(inst, record, model.StateVerified, "")

	summary, err := r.summarizer.Summarize(ctx, inst, content)
	if err != nil {
		r.fail(inst, record, err)
		return record
	}
	record.Summary = summary
	r.advance(inst, record, model.StateSummarized, "")

	report, err := r.localizer.Localize(ctx, inst, record)
	if err != nil {
		r.fail(inst, record, err)
		return record
	}
	record.Report = report
	r.advance(inst, record, model.StateTranslated, "")
	r.advance(inst, record, model.StateRefined, "")

	record.ProcessedAt = pipelineNow()
	return record
}

func (r *Runner) advance(inst config.InstitutionProfile, record *model.NewsItemRecord, next model.State, reason string) {
	from := record.State
	if err := record.Advance(next); err != nil {
		r.log.Error("state machine violation", "error", err)
		return
	}
	r.emit(inst, record, from, next, reason)
}

func (r *Runner) reject(inst config.InstitutionProfile, record *model.NewsItemRecord, reason string) {
	from := record.State
	if err := record.Reject(reason); err != nil {
		r.log.Error("state machine violation", "error", err)
		return
	}
	r.log.Info("candidate rejected", "institution", inst.ID, "url", record.Candidate.URL, "reason", reason)
	r.emit(inst, record, from, model.StateRejected, reason)
}

func (r *Runner) fail(inst config.InstitutionProfile, record *model.NewsItemRecord, cause error) {
	from := record.State
	if err := record.Fail(cause); err != nil {
		r.log.Error("state machine violation", "error", err)
		return
	}
	r.log.Warn("candidate failed", "institution", inst.ID, "url", record.Candidate.URL, "stage", from, "error", cause)
	r.emit(inst, record, from, model.StateFailed, record.FailureReason)
}

func (r *Runner) emit(inst config.InstitutionProfile, record *model.NewsItemRecord, from, to model.State, reason string) {
	if r.OnTransition == nil {
		return
	}
	r.emitMu.Lock()
	defer r.emitMu.Unlock()
	r.OnTransition(model.Transition{
		InstitutionID: inst.ID,
		URL:           record.Candidate.URL,
		From:          from,
		To:            to,
		Reason:        reason,
		At:            pipelineNow(),
	})
}
