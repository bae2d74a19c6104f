package worker

import (
	"context"
	"testing"
	"time"
)

func TestAILimiter_SharedBucket(t *testing.T) {
	limiter := NewAILimiter(1, 1)

	if !limiter.Allow() {
		t.Fatal("first request should pass the burst")
	}
	// Burst of one: the immediate second request must be throttled
	if limiter.Allow() {
		t.Error("second immediate request should be throttled")
	}
}

func TestAILimiter_WaitHonorsContext(t *testing.T) {
	limiter := NewAILimiter(0.001, 1)
	limiter.Allow() // drain the burst

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if err := limiter.Wait(ctx); err == nil {
		t.Error("expected context error while throttled")
	}
}

func TestFetchLimiter_PerDomainBuckets(t *testing.T) {
	limiter := NewFetchLimiter(1000, 1)

	if err := limiter.Wait(context.Background(), "https://a.example.edu/page"); err != nil {
		t.Fatal(err)
	}
	// A different domain has its own untouched bucket
	done := make(chan error, 1)
	go func() {
		done <- limiter.Wait(context.Background(), "https://b.example.edu/page")
	}()
	select {
	case err := <-done:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(time.Second):
		t.Fatal("second domain blocked on first domain's bucket")
	}
}

func TestFetchLimiter_InvalidURL(t *testing.T) {
	limiter := NewFetchLimiter(1000, 1)
	if err := limiter.Wait(context.Background(), "://not-a-url"); err == nil {
		t.Error("expected error for unparseable URL")
	}
}
