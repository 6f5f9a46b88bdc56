package loadtest

import (
	"context"
	"testing"

	"github.com/arclane/ratelimitd"
)

func TestRunAggregatesAllowedAndDenied(t *testing.T) {
	limiter, err := ratelimitd.NewTokenBucket(5, 1000)
	if err != nil {
		t.Fatalf("NewTokenBucket: %v", err)
	}

	res := Run(context.Background(), limiter, Config{
		ConcurrentThreads: 1,
		RequestsPerThread: 10,
		KeyFunc:           func(thread, request int) string { return "k" },
	})

	if res.TotalRequests != 10 {
		t.Fatalf("expected 10 total requests, got %d", res.TotalRequests)
	}
	if res.Allowed != 5 || res.Denied != 5 {
		t.Fatalf("expected 5 allowed and 5 denied against a 5-token bucket, got allowed=%d denied=%d", res.Allowed, res.Denied)
	}
}

func TestRunRespectsContextCancellation(t *testing.T) {
	limiter, err := ratelimitd.NewTokenBucket(1000, 1000)
	if err != nil {
		t.Fatalf("NewTokenBucket: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := Run(ctx, limiter, Config{
		ConcurrentThreads: 2,
		RequestsPerThread: 100,
	})
	if res.TotalRequests > 0 {
		t.Fatalf("expected no requests to complete after cancellation, got %d", res.TotalRequests)
	}
}
