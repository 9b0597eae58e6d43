package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// CallPolicy bounds every external inference call: a per-attempt timeout and a fixed number of attempts.
type CallPolicy struct {
	Timeout     time.Duration
	MaxAttempts int
	Backoff     time.Duration
}

// DefaultCallPolicy is one retry after a short pause, 45s per attempt.
func DefaultCallPolicy() CallPolicy {
	return CallPolicy{Timeout: 45 * time.Second, MaxAttempts: 2, Backoff: 500 * time.Millisecond}
}

// Do runs fn under the policy. The parent context is never retried past cancellation.
func (p CallPolicy) Do(ctx context.Context, logger *zap.Logger, op string, fn func(ctx context.Context) error) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = p.attempt(ctx, fn)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !retryable(err) || attempt == attempts {
			break
		}
		logger.Warn("llm.call.retry",
			zap.String("op", op),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		if p.Backoff > 0 {
			t := time.NewTimer(p.Backoff)
			select {
			case <-ctx.Done():
				t.Stop()
				return ctx.Err()
			case <-t.C:
			}
		}
	}
	return err
}

func (p CallPolicy) attempt(ctx context.Context, fn func(ctx context.Context) error) error {
	if p.Timeout <= 0 {
		return fn(ctx)
	}
	actx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()
	err := fn(actx)
	if err != nil && errors.Is(actx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("call exceeded %s: %w", p.Timeout, err)
	}
	return err
}

// retryable excludes client errors that a second identical request cannot fix.
func retryable(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		switch {
		case se.Status == http.StatusTooManyRequests, se.Status == http.StatusRequestTimeout:
			return true
		case se.Status >= 400 && se.Status < 500:
			return false
		}
	}
	return true
}
