package llm

import (
	"context"
	"time"
)

// MaxAttempts bounds generation retries. The cap is part of the workflow's
// termination guarantee, so it is a constant rather than a config knob.
const MaxAttempts = 3

// rateLimitStep is the linear backoff unit for rate-limited attempts:
// attempt 1 waits 2s, attempt 2 waits 4s, attempt 3 waits 6s.
const rateLimitStep = 2 * time.Second

// Retry runs fn up to MaxAttempts times. Rate-limited failures wait
// rateLimitStep×attempt before the next try; other failures retry
// immediately. The last error is returned when all attempts fail.
func Retry(ctx context.Context, fn func() error) error {
	return retryWith(ctx, sleepFor, fn)
}

func retryWith(ctx context.Context, sleep func(context.Context, time.Duration) error, fn func() error) error {
	var lastErr error
	for attempt := 1; attempt <= MaxAttempts; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if attempt == MaxAttempts {
			break
		}
		if KindOf(lastErr) == KindRateLimited {
			if err := sleep(ctx, time.Duration(attempt)*rateLimitStep); err != nil {
				return err
			}
		}
	}
	return lastErr
}

// GenerateWithRetry is the common stage call: free-text generation under the
// retry policy.
func GenerateWithRetry(ctx context.Context, g Generator, prompt string) (string, error) {
	var text string
	err := Retry(ctx, func() error {
		var genErr error
		text, genErr = g.Generate(ctx, prompt)
		return genErr
	})
	return text, err
}

// GenerateSchemaWithRetry is the structured-output analogue of
// GenerateWithRetry.
func GenerateSchemaWithRetry(ctx context.Context, g Generator, prompt string, out any) error {
	return Retry(ctx, func() error {
		return g.GenerateSchema(ctx, prompt, out)
	})
}

func sleepFor(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
