package retry

import (
	"errors"
	"fmt"
	"log/slog"
	"time"
)

const (
	// DefaultMaxAttempts bounds consecutive transient failures before a
	// guarded operation is abandoned.
	DefaultMaxAttempts = 20
	// DefaultBaseDelay is multiplied by the failure count before each retry.
	DefaultBaseDelay = 20 * time.Second
)

// TransientError marks an upstream failure as retryable (server busy,
// timeout, 5xx). Any other error propagates through a Guard untouched.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient server error: %v", e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// Transient wraps err so a Guard will retry it.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

// Transientf is a shorthand for Transient(fmt.Errorf(...)).
func Transientf(format string, args ...interface{}) error {
	return Transient(fmt.Errorf(format, args...))
}

// IsTransient reports whether err is retryable.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// MaxAttemptsError is returned when an operation failed transiently more
// times than the guard's bound allows.
type MaxAttemptsError struct {
	Op       string
	Attempts int
}

func (e *MaxAttemptsError) Error() string {
	return fmt.Sprintf("operation %s failed %d consecutive times", e.Op, e.Attempts)
}

// Guard retries an operation on transient errors with a linear backoff
// (failure count times BaseDelay) up to MaxAttempts.
type Guard struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Logger      *slog.Logger

	sleep func(time.Duration)
}

func NewGuard(logger *slog.Logger) *Guard {
	return &Guard{
		MaxAttempts: DefaultMaxAttempts,
		BaseDelay:   DefaultBaseDelay,
		Logger:      logger,
		sleep:       time.Sleep,
	}
}

func (g *Guard) logger() *slog.Logger {
	if g.Logger != nil {
		return g.Logger
	}
	return slog.Default()
}

// Do runs fn, retrying while it returns a transient error. Non-transient
// errors propagate immediately. After MaxAttempts consecutive transient
// failures it returns a MaxAttemptsError naming the operation.
func (g *Guard) Do(op string, fn func() error) error {
	sleep := g.sleep
	if sleep == nil {
		sleep = time.Sleep
	}
	failures := 0
	for {
		err := fn()
		if err == nil {
			return nil
		}
		if !IsTransient(err) {
			return err
		}
		failures++
		if failures > g.MaxAttempts {
			return &MaxAttemptsError{Op: op, Attempts: failures}
		}
		g.logger().Warn("transient server error, retrying",
			slog.String("op", op),
			slog.Int("attempt", failures),
			slog.String("error", err.Error()),
		)
		sleep(time.Duration(failures) * g.BaseDelay)
	}
}

// DoValue is Do for operations that produce a value.
func DoValue[T any](g *Guard, op string, fn func() (T, error)) (T, error) {
	var out T
	err := g.Do(op, func() error {
		v, err := fn()
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}
