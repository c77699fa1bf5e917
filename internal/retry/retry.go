// Package retry runs an operation under a bounded attempt count with a
// fixed delay schedule between attempts.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/pbaille/notes/internal/logger"
)

const (
	logRetryAttempt     = "retry attempt failed"
	logRetrySuccess     = "retry succeeded"
	logRetryMaxAttempts = "retry max attempts reached"
)

// ErrCanceled is returned when the context ends while waiting between attempts.
var ErrCanceled = errors.New("context was canceled during retry")

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Policy describes how an operation is retried.
type Policy struct {
	// MaxAttempts includes the first attempt.
	MaxAttempts int
	// Delays[i] is the wait after the (i+1)-th failed attempt. When there are
	// fewer delays than gaps, the last delay is reused.
	Delays []time.Duration
	// Retryable decides whether an error is worth another attempt. Nil retries everything.
	Retryable func(error) bool
	// Sleep defaults to a context-aware timer.
	Sleep Sleeper
}

// DefaultPolicy is three attempts with 1s, 2s and 4s between them.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		Delays:      []time.Duration{time.Second, 2 * time.Second, 4 * time.Second},
	}
}

// Delay returns the wait after the given 1-based failed attempt.
func (p Policy) Delay(attempt int) time.Duration {
	if len(p.Delays) == 0 || attempt < 1 {
		return 0
	}
	if attempt > len(p.Delays) {
		return p.Delays[len(p.Delays)-1]
	}
	return p.Delays[attempt-1]
}

// Do runs op until it succeeds, returns a non-retryable error, or the
// attempts are exhausted. The last error is returned unchanged.
func (p Policy) Do(ctx context.Context, name string, op func(ctx context.Context) error) error {
	log := logger.Log(ctx).With(zap.String("retry", name))

	sleep := p.Sleep
	if sleep == nil {
		sleep = timerSleep
	}
	attempts := max(p.MaxAttempts, 1)

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = op(ctx)
		if err == nil {
			if attempt > 1 {
				log.Info(ctx, logRetrySuccess, zap.Int("attempts", attempt))
			}
			return nil
		}
		if p.Retryable != nil && !p.Retryable(err) {
			return err
		}
		if attempt == attempts {
			break
		}

		delay := p.Delay(attempt)
		log.Warn(ctx, logRetryAttempt,
			zap.Int("attempt", attempt),
			zap.Duration("backoff", delay),
			zap.Error(err))

		if serr := sleep(ctx, delay); serr != nil {
			return fmt.Errorf("%w: %w", ErrCanceled, serr)
		}
	}

	log.Warn(ctx, logRetryMaxAttempts, zap.Int("attempts", attempts), zap.Error(err))
	return err
}

func timerSleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
