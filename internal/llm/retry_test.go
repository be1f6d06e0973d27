package llm

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRetry_SucceedsFirstAttempt(t *testing.T) {
	calls := 0
	err := retryWith(context.Background(), noSleep(t, nil), func() error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestRetry_ExhaustsAttempts(t *testing.T) {
	calls := 0
	failure := &Error{Kind: KindUnavailable, Op: "generate", Err: errors.New("boom")}
	err := retryWith(context.Background(), noSleep(t, nil), func() error {
		calls++
		return failure
	})
	if !errors.Is(err, failure) {
		t.Fatalf("expected the last failure back, got %v", err)
	}
	if calls != MaxAttempts {
		t.Errorf("expected %d calls, got %d", MaxAttempts, calls)
	}
}

func TestRetry_RateLimitBackoffIsLinear(t *testing.T) {
	var slept []time.Duration
	record := func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}

	failure := &Error{Kind: KindRateLimited, Op: "generate", Err: errors.New("429")}
	_ = retryWith(context.Background(), record, func() error { return failure })

	want := []time.Duration{2 * time.Second, 4 * time.Second}
	if len(slept) != len(want) {
		t.Fatalf("expected %d sleeps, got %v", len(want), slept)
	}
	for i := range want {
		if slept[i] != want[i] {
			t.Errorf("sleep %d: expected %v, got %v", i, want[i], slept[i])
		}
	}
}

func TestRetry_GenericFailureRetriesImmediately(t *testing.T) {
	failure := &Error{Kind: KindUnavailable, Op: "generate", Err: errors.New("timeout")}
	err := retryWith(context.Background(), noSleep(t, errors.New("must not sleep")), func() error {
		return failure
	})
	if err == nil {
		t.Fatal("expected failure after exhausted retries")
	}
}

func TestRetry_RecoversMidway(t *testing.T) {
	calls := 0
	err := retryWith(context.Background(), noSleep(t, nil), func() error {
		calls++
		if calls < 3 {
			return &Error{Kind: KindUnavailable, Op: "generate", Err: errors.New("flaky")}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected recovery, got %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestKindOf_TextSniffing(t *testing.T) {
	cases := []struct {
		err  error
		want Kind
	}{
		{errors.New("HTTP 429 Too Many Requests"), KindRateLimited},
		{errors.New("quota exceeded for model"), KindRateLimited},
		{errors.New("connection refused"), KindUnavailable},
		{&Error{Kind: KindSchemaInvalid, Op: "x", Err: errors.New("bad json")}, KindSchemaInvalid},
	}
	for _, tc := range cases {
		if got := KindOf(tc.err); got != tc.want {
			t.Errorf("KindOf(%v) = %v, want %v", tc.err, got, tc.want)
		}
	}
}

// noSleep fails the test (via failErr) if a sleep would occur when none is
// expected; pass nil failErr to allow silent instant sleeps.
func noSleep(t *testing.T, failErr error) func(context.Context, time.Duration) error {
	t.Helper()
	return func(_ context.Context, d time.Duration) error {
		if failErr != nil {
			t.Fatalf("unexpected sleep of %v: %v", d, failErr)
		}
		return nil
	}
}
