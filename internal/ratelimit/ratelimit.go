// Package ratelimit bounds outbound model calls to a fixed number per
// rolling time window. Every stage that talks to a generation backend
// shares one Limiter instance so that concurrent workflow runs cannot
// exceed the provider quota between them.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// DefaultWindow is the rolling window over which calls are counted.
const DefaultWindow = 60 * time.Second

// Limiter admits at most maxCalls call timestamps inside a rolling window.
// The check-and-record step runs under a mutex so two goroutines cannot
// both believe the last slot is free.
type Limiter struct {
	mu       sync.Mutex
	maxCalls int
	window   time.Duration
	calls    []time.Time

	// now and sleep are swappable for tests.
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a Limiter admitting maxCalls per DefaultWindow.
// maxCalls <= 0 disables limiting.
func New(maxCalls int) *Limiter {
	return NewWindow(maxCalls, DefaultWindow)
}

// NewWindow creates a Limiter with an explicit window size.
func NewWindow(maxCalls int, window time.Duration) *Limiter {
	return &Limiter{
		maxCalls: maxCalls,
		window:   window,
		now:      time.Now,
		sleep:    sleepCtx,
	}
}

// Wait blocks until a call slot is available inside the rolling window,
// then records the call. It returns early with the context error if ctx
// is cancelled while waiting. The wait is bounded by the window size.
func (l *Limiter) Wait(ctx context.Context) error {
	if l == nil || l.maxCalls <= 0 {
		return nil
	}

	for {
		l.mu.Lock()
		now := l.now()
		l.evict(now)

		if len(l.calls) < l.maxCalls {
			l.calls = append(l.calls, now)
			l.mu.Unlock()
			return nil
		}

		// Oldest recorded call determines when a slot frees up.
		wait := l.calls[0].Add(l.window).Sub(now)
		l.mu.Unlock()

		if wait <= 0 {
			continue
		}
		if err := l.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// Pending reports how many calls are currently recorded in the window.
func (l *Limiter) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.evict(l.now())
	return len(l.calls)
}

// evict drops timestamps older than the window. Caller holds l.mu.
func (l *Limiter) evict(now time.Time) {
	cutoff := now.Add(-l.window)
	i := 0
	for i < len(l.calls) && !l.calls[i].After(cutoff) {
		i++
	}
	if i > 0 {
		l.calls = append(l.calls[:0], l.calls[i:]...)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
