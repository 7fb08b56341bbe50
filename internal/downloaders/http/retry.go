package surgehttp

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tanq16/surge/internal/utils"
)

const (
	defaultRetryBackoff    = 500 * time.Millisecond
	defaultRetryMaxBackoff = 10 * time.Second
)

// withRetry runs fn up to cfg.Attempts+1 times. Only retryable transport
// errors are retried; anything else, including cancellation, returns at once.
func withRetry(ctx context.Context, cfg utils.RetryConfig, op string, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt <= max(cfg.Attempts, 0); attempt++ {
		if attempt > 0 {
			if err := backoff(ctx, cfg, attempt); err != nil {
				return lastErr
			}
			log.Warn().Str("op", op).Err(lastErr).Msgf("Retrying (attempt %d/%d)", attempt+1, cfg.Attempts+1)
		}
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return err
		}
		var te *utils.TransportError
		if !errors.As(err, &te) || !te.Retryable() {
			return err
		}
	}
	return lastErr
}

// backoff waits for an exponentially increasing duration with jitter.
func backoff(ctx context.Context, cfg utils.RetryConfig, attempt int) error {
	base := cfg.Backoff
	if base <= 0 {
		base = defaultRetryBackoff
	}
	limit := cfg.MaxBackoff
	if limit <= 0 {
		limit = defaultRetryMaxBackoff
	}
	wait := base * time.Duration(1<<uint(min(attempt-1, 16)))
	if wait > limit {
		wait = limit
	}
	// 0.5 to 1.5 of the computed wait
	wait = time.Duration(float64(wait) * (0.5 + rand.Float64()))

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
