package executor

import (
	"context"
	"math/rand/v2"
	"time"
)

// RetryConfig controls exponential backoff for failed capability
// calls. Budget is the number of retries after the first attempt, so
// a budget of 2 yields at most 3 attempts.
type RetryConfig struct {
	Budget    int
	BaseDelay time.Duration
	MaxDelay  time.Duration
}

// DefaultRetryConfig returns sensible defaults.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		Budget:    2,
		BaseDelay: time.Second,
		MaxDelay:  30 * time.Second,
	}
}

// executeWithRetry runs fn, retrying on error with exponential
// backoff and jitter. onAttempt fires after every failed attempt so
// each failure stays observable in the event log.
func executeWithRetry(ctx context.Context, cfg RetryConfig, onAttempt func(attempt int, err error), fn func() (string, error)) (result string, attempts int, err error) {
	for attempt := 0; attempt <= cfg.Budget; attempt++ {
		result, err = fn()
		if err == nil {
			return result, attempt + 1, nil
		}
		if onAttempt != nil {
			onAttempt(attempt+1, err)
		}
		if attempt < cfg.Budget {
			select {
			case <-time.After(backoffWithJitter(cfg.BaseDelay, cfg.MaxDelay, attempt)):
			case <-ctx.Done():
				return "", attempt + 1, ctx.Err()
			}
		}
	}
	return "", cfg.Budget + 1, err
}

// backoffWithJitter computes delay = min(base * 2^attempt, max) + jitter(±25%).
func backoffWithJitter(base, max time.Duration, attempt int) time.Duration {
	if base <= 0 {
		return 0
	}
	delay := base << uint(attempt)
	if delay > max {
		delay = max
	}
	quarter := delay / 4
	if quarter > 0 {
		jitter := time.Duration(rand.Int64N(int64(quarter*2))) - quarter
		delay += jitter
	}
	return delay
}

// maxPayloadBytes is the truncation limit for capability output kept
// in Blocks and events.
const maxPayloadBytes = 16 * 1024

// TruncatePayload truncates output to maxPayloadBytes.
func TruncatePayload(s string) string {
	if len(s) <= maxPayloadBytes {
		return s
	}
	return s[:maxPayloadBytes] + "...[truncated]"
}
