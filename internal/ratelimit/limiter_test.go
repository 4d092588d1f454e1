package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestAllowBurstThenThrottles(t *testing.T) {
	l := NewLimiter(1, 2) // 1/sec steady, burst of 2

	if !l.Allow().Allowed {
		t.Error("expected first request to be allowed")
	}
	if !l.Allow().Allowed {
		t.Error("expected second request to be allowed")
	}
	result := l.Allow()
	if result.Allowed {
		t.Error("expected third request to be throttled")
	}
	if result.RetryAfter <= 0 {
		t.Error("expected a positive RetryAfter when throttled")
	}
}

func TestDisabledLimiterAlwaysAllows(t *testing.T) {
	l := NewLimiter(0, 0)
	if l.IsEnabled() {
		t.Fatal("expected limiter constructed with zero rate to be disabled")
	}
	for i := 0; i < 50; i++ {
		if !l.Allow().Allowed {
			t.Fatalf("request %d: expected disabled limiter to always allow", i)
		}
	}
}

func TestSetEnabledOverridesThrottling(t *testing.T) {
	l := NewLimiter(1, 1)
	l.Allow() // exhaust the single token

	if l.Allow().Allowed {
		t.Fatal("expected request to be throttled before disabling")
	}

	l.SetEnabled(false)
	if !l.Allow().Allowed {
		t.Fatal("expected request to be allowed once disabled")
	}
}

func TestWaitBlocksUntilTokenAvailable(t *testing.T) {
	l := NewLimiter(20, 1) // one burst token, fast refill

	l.Allow() // consume the only token

	start := time.Now()
	if err := l.Wait(context.Background()); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if time.Since(start) > 500*time.Millisecond {
		t.Fatal("Wait took far longer than the refill rate implies")
	}
}

func TestWaitRespectsContextCancellation(t *testing.T) {
	l := NewLimiter(0.001, 1) // effectively never refills within the test
	l.Allow()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if err := l.Wait(ctx); err == nil {
		t.Fatal("expected Wait to return an error once the context is done")
	}
}

func TestResetRefillsBucket(t *testing.T) {
	l := NewLimiter(1, 1)
	l.Allow()

	l.Reset()
	if !l.Allow().Allowed {
		t.Fatal("expected request to be allowed after Reset")
	}
}

func TestMetricsTrackAllowedAndRejected(t *testing.T) {
	l := NewLimiter(1, 1)
	l.Allow()
	l.Allow()

	m := l.Metrics()
	if m.TotalAllowed() != 1 {
		t.Fatalf("TotalAllowed = %d, want 1", m.TotalAllowed())
	}
	if m.TotalRejected() != 1 {
		t.Fatalf("TotalRejected = %d, want 1", m.TotalRejected())
	}
	if rate := m.RejectionRate(); rate != 0.5 {
		t.Fatalf("RejectionRate = %f, want 0.5", rate)
	}
}
