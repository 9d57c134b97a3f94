// Package retry runs sink writes with exponential backoff behind a circuit
// breaker.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Config holds the backoff settings.
type Config struct {
	Name        string
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Multiplier  float64
	Jitter      float64 // share of the delay, 0..1
}

// DefaultConfig returns the backoff used for recorder sinks.
func DefaultConfig(name string) Config {
	return Config{
		Name:        name,
		MaxAttempts: 3,
		BaseDelay:   2 * time.Second,
		MaxDelay:    30 * time.Second,
		Multiplier:  2,
		Jitter:      0.1,
	}
}

type permanentError struct{ err error }

func (p permanentError) Error() string { return p.err.Error() }
func (p permanentError) Unwrap() error { return p.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err: err}
}

// Retryer retries a function with exponential backoff and jitter.
type Retryer struct {
	cfg    Config
	logger *logrus.Logger

	mu  sync.Mutex
	rng *rand.Rand
}

func NewRetryer(cfg Config, logger *logrus.Logger) *Retryer {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = time.Second
	}
	if cfg.MaxDelay < cfg.BaseDelay {
		cfg.MaxDelay = 30 * cfg.BaseDelay
	}
	if cfg.Multiplier <= 1 {
		cfg.Multiplier = 2
	}
	if cfg.Jitter < 0 || cfg.Jitter > 1 {
		cfg.Jitter = 0.1
	}
	if cfg.Name == "" {
		cfg.Name = "retry"
	}
	return &Retryer{
		cfg:    cfg,
		logger: logger,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Do calls fn until it succeeds, returns a Permanent error, the attempts
// run out or ctx is done.
func (r *Retryer) Do(ctx context.Context, fn func(context.Context) error) error {
	log := r.logger.WithField("op", r.cfg.Name)

	var lastErr error
	for attempt := 1; attempt <= r.cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := fn(ctx)
		if err == nil {
			if attempt > 1 {
				log.WithField("attempt", attempt).Info("Succeeded after retry")
			}
			return nil
		}
		lastErr = err

		var perm permanentError
		if errors.As(err, &perm) {
			return perm.err
		}
		if attempt == r.cfg.MaxAttempts {
			break
		}

		delay := r.Delay(attempt)
		log.WithError(err).WithFields(logrus.Fields{
			"attempt": attempt,
			"backoff": delay,
		}).Warn("Attempt failed, retrying")

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	log.WithError(lastErr).WithField("attempts", r.cfg.MaxAttempts).Error("All attempts failed")
	return fmt.Errorf("%s: %d attempts: %w", r.cfg.Name, r.cfg.MaxAttempts, lastErr)
}

// Delay is the wait after the given failed attempt: BaseDelay grown by
// Multiplier per attempt, capped at MaxDelay, with jitter, never below
// BaseDelay.
func (r *Retryer) Delay(attempt int) time.Duration {
	d := float64(r.cfg.BaseDelay) * math.Pow(r.cfg.Multiplier, float64(attempt-1))
	d = math.Min(d, float64(r.cfg.MaxDelay))

	if r.cfg.Jitter > 0 {
		r.mu.Lock()
		j := (r.rng.Float64()*2 - 1) * r.cfg.Jitter * d
		r.mu.Unlock()
		d += j
	}
	return time.Duration(math.Max(d, float64(r.cfg.BaseDelay)))
}

// DoWithBreaker is Do where every attempt goes through cb. An open breaker
// stops the retries.
func (r *Retryer) DoWithBreaker(ctx context.Context, cb *Breaker, fn func(context.Context) error) error {
	return r.Do(ctx, func(ctx context.Context) error {
		err := cb.Execute(ctx, fn)
		if errors.Is(err, ErrBreakerOpen) {
			return Permanent(err)
		}
		return err
	})
}
