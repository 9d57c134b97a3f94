package retry

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errFlaky = errors.New("flaky")

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func fastRetryer(attempts int) *Retryer {
	return NewRetryer(Config{
		Name:        "test",
		MaxAttempts: attempts,
		BaseDelay:   time.Millisecond,
		MaxDelay:    2 * time.Millisecond,
	}, quietLogger())
}

func TestRetryerDo(t *testing.T) {
	tests := []struct {
		name      string
		failFirst int
		permanent bool
		wantCalls int
		wantErr   bool
	}{
		{name: "first try", failFirst: 0, wantCalls: 1},
		{name: "recovers", failFirst: 2, wantCalls: 3},
		{name: "exhausted", failFirst: 10, wantCalls: 3, wantErr: true},
		{name: "permanent", failFirst: 10, permanent: true, wantCalls: 1, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			err := fastRetryer(3).Do(context.Background(), func(context.Context) error {
				calls++
				if calls <= tt.failFirst {
					if tt.permanent {
						return Permanent(errFlaky)
					}
					return errFlaky
				}
				return nil
			})

			assert.Equal(t, tt.wantCalls, calls)
			if tt.wantErr {
				assert.ErrorIs(t, err, errFlaky)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestRetryerStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	r := NewRetryer(Config{MaxAttempts: 5, BaseDelay: time.Hour}, quietLogger())

	done := make(chan error, 1)
	go func() {
		done <- r.Do(ctx, func(context.Context) error { return errFlaky })
	}()
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Do did not return after cancel")
	}
}

func TestRetryerDelay(t *testing.T) {
	r := NewRetryer(Config{BaseDelay: 100 * time.Millisecond, MaxDelay: time.Second, Multiplier: 2, Jitter: 0.1}, quietLogger())
	for attempt := 1; attempt <= 6; attempt++ {
		d := r.Delay(attempt)
		assert.GreaterOrEqual(t, d, 100*time.Millisecond)
		assert.LessOrEqual(t, d, 1100*time.Millisecond)
	}
	assert.GreaterOrEqual(t, r.Delay(3), 360*time.Millisecond)
}

func TestBreaker(t *testing.T) {
	now := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	b := NewBreaker(BreakerConfig{Name: "sink", MaxFailures: 2, OpenTimeout: time.Minute}, quietLogger())
	b.now = func() time.Time { return now }

	fail := func(context.Context) error { return errFlaky }
	ok := func(context.Context) error { return nil }
	ctx := context.Background()

	assert.ErrorIs(t, b.Execute(ctx, fail), errFlaky)
	assert.Equal(t, StateClosed, b.State())
	assert.ErrorIs(t, b.Execute(ctx, fail), errFlaky)
	assert.Equal(t, StateOpen, b.State())

	called := false
	err := b.Execute(ctx, func(context.Context) error { called = true; return nil })
	assert.ErrorIs(t, err, ErrBreakerOpen)
	assert.False(t, called)

	now = now.Add(time.Minute)
	assert.ErrorIs(t, b.Execute(ctx, fail), errFlaky)
	assert.Equal(t, StateOpen, b.State(), "a failed trial reopens")

	now = now.Add(time.Minute)
	require.NoError(t, b.Execute(ctx, ok))
	assert.Equal(t, StateClosed, b.State())
}

func TestDoWithBreakerStopsWhenOpen(t *testing.T) {
	b := NewBreaker(BreakerConfig{MaxFailures: 1, OpenTimeout: time.Hour}, quietLogger())
	calls := 0
	err := fastRetryer(5).DoWithBreaker(context.Background(), b, func(context.Context) error {
		calls++
		return errFlaky
	})
	assert.ErrorIs(t, err, ErrBreakerOpen)
	assert.Equal(t, 1, calls)
}
