package sync

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/tdworks/basistracker/internal/domain"
)

// RetryConfig bounds how hard the engine tries before surfacing a
// failure. Retries apply only to transient errors; anything else is
// returned immediately.
type RetryConfig struct {
	Attempts  int           // total attempts, including the first
	BaseDelay time.Duration // doubled after each failed attempt
}

// DefaultRetry is the retry policy used when none is configured.
var DefaultRetry = RetryConfig{
	Attempts:  4,
	BaseDelay: 500 * time.Millisecond,
}

// withRetry runs fn, retrying transient failures with exponential backoff
// until the attempt budget is spent or the context is cancelled.
func withRetry(ctx context.Context, log zerolog.Logger, op string, cfg RetryConfig, fn func() error) error {
	if cfg.Attempts < 1 {
		cfg = DefaultRetry
	}

	delay := cfg.BaseDelay
	var err error
	for attempt := 1; ; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}
		if !domain.Retryable(err) || attempt >= cfg.Attempts {
			return err
		}

		log.Warn().
			Err(err).
			Str("op", op).
			Int("attempt", attempt).
			Dur("backoff", delay).
			Msg("Transient failure, backing off")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
}
