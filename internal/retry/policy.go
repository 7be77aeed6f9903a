package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

const (
	DefaultMaxAttempts  = 3
	DefaultInitialDelay = time.Second
	DefaultMultiplier   = 2.0
	DefaultMaxDelay     = 10 * time.Second
)

// Config bounds a retry execution.
type Config struct {
	MaxAttempts  int
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
}

func DefaultConfig() Config {
	return Config{
		MaxAttempts:  DefaultMaxAttempts,
		InitialDelay: DefaultInitialDelay,
		Multiplier:   DefaultMultiplier,
		MaxDelay:     DefaultMaxDelay,
	}
}

// Policy is a bounded exponential-backoff controller. It has no knowledge of what the
// wrapped operation does.
type Policy struct {
	cfg   Config
	sleep func(ctx context.Context, d time.Duration) error
}

type Option func(*Policy)

// WithSleep replaces the backoff sleep, mostly for tests.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(p *Policy) {
		if sleep != nil {
			p.sleep = sleep
		}
	}
}

func New(cfg Config, opts ...Option) (*Policy, error) {
	if cfg.MaxAttempts <= 0 {
		return nil, fmt.Errorf("max attempts must be positive, got %d", cfg.MaxAttempts)
	}
	if cfg.InitialDelay < 0 || cfg.MaxDelay < 0 {
		return nil, fmt.Errorf("retry delays must not be negative")
	}
	if cfg.Multiplier < 1 {
		cfg.Multiplier = 1
	}
	if cfg.MaxDelay == 0 || cfg.MaxDelay < cfg.InitialDelay {
		cfg.MaxDelay = cfg.InitialDelay
	}

	p := &Policy{cfg: cfg, sleep: sleepWithContext}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

func (p *Policy) MaxAttempts() int { return p.cfg.MaxAttempts }

// Delay returns the wait before the given attempt number. The first attempt never waits;
// attempt n waits InitialDelay*Multiplier^(n-2), capped at MaxDelay.
func (p *Policy) Delay(attempt int) time.Duration {
	if attempt <= 1 {
		return 0
	}

	delay := float64(p.cfg.InitialDelay)
	for i := 2; i < attempt; i++ {
		delay *= p.cfg.Multiplier
		if delay >= float64(p.cfg.MaxDelay) {
			return p.cfg.MaxDelay
		}
	}

	if d := time.Duration(delay); d < p.cfg.MaxDelay {
		return d
	}
	return p.cfg.MaxDelay
}

// BeforeRetry runs after the backoff wait and before every attempt numbered 2 or higher.
type BeforeRetry func(ctx context.Context, attempt int)

// Execute runs op until it succeeds, returns a Permanent error, or MaxAttempts is reached.
// A Permanent error is returned unwrapped and stops the loop. Exhaustion, and a context
// cancelled during backoff, return *ExhaustedError.
func Execute[T any](
	ctx context.Context,
	p *Policy,
	op func(ctx context.Context, attempt int) (T, error),
	beforeRetry BeforeRetry,
) (T, error) {
	var zero T
	if p == nil {
		return zero, fmt.Errorf("retry policy is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var lastErr error
	for attempt := 1; attempt <= p.cfg.MaxAttempts; attempt++ {
		if attempt > 1 {
			if err := p.sleep(ctx, p.Delay(attempt)); err != nil {
				return zero, &ExhaustedError{
					Attempts:    attempt - 1,
					MaxAttempts: p.cfg.MaxAttempts,
					Err:         errors.Join(err, lastErr),
				}
			}
			if beforeRetry != nil {
				beforeRetry(ctx, attempt)
			}
		}

		result, err := op(ctx, attempt)
		if err == nil {
			return result, nil
		}

		var permanent *permanentError
		if errors.As(err, &permanent) {
			return zero, permanent.err
		}
		lastErr = err
	}

	return zero, &ExhaustedError{
		Attempts:    p.cfg.MaxAttempts,
		MaxAttempts: p.cfg.MaxAttempts,
		Err:         lastErr,
	}
}

// ExhaustedError is returned when no attempt succeeded.
type ExhaustedError struct {
	Attempts    int
	MaxAttempts int
	Err         error
}

func (e *ExhaustedError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("retry exhausted after %d/%d attempts", e.Attempts, e.MaxAttempts)
	}
	return fmt.Sprintf("retry exhausted after %d/%d attempts: %v", e.Attempts, e.MaxAttempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error { return e.Err }

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }

func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
