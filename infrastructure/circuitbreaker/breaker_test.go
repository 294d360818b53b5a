package circuitbreaker_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/scrape-analyzer/infrastructure/circuitbreaker"
)

var (
	errUpstream = errors.New("upstream 502")
	errCaller   = errors.New("task not found")
)

type clock struct{ now time.Time }

func (c *clock) Now() time.Time { return c.now }

func newBreaker(c *clock) *circuitbreaker.Breaker {
	return circuitbreaker.New(circuitbreaker.Config{
		FailureThreshold: 2,
		SuccessThreshold: 1,
		Timeout:          time.Minute,
		IsFailure:        func(err error) bool { return !errors.Is(err, errCaller) },
		Now:              c.Now,
	})
}

func TestBreaker_OpensAfterThresholdAndRecovers(t *testing.T) {
	t.Parallel()

	c := &clock{now: time.Unix(0, 0)}
	b := newBreaker(c)
	ctx := context.Background()
	fail := func() error { return errUpstream }

	require.ErrorIs(t, b.Execute(ctx, fail), errUpstream)
	require.ErrorIs(t, b.Execute(ctx, fail), errUpstream)
	assert.Equal(t, circuitbreaker.StateOpen, b.State())

	called := false
	err := b.Execute(ctx, func() error { called = true; return nil })
	require.ErrorIs(t, err, circuitbreaker.ErrCircuitOpen)
	assert.False(t, called)

	c.now = c.now.Add(time.Minute)
	require.NoError(t, b.Execute(ctx, func() error { return nil }))
	assert.Equal(t, circuitbreaker.StateClosed, b.State())
}

func TestBreaker_CallerErrorsDoNotTrip(t *testing.T) {
	t.Parallel()

	b := newBreaker(&clock{now: time.Unix(0, 0)})
	for range 5 {
		require.ErrorIs(t, b.Execute(context.Background(), func() error { return errCaller }), errCaller)
	}
	assert.Equal(t, circuitbreaker.StateClosed, b.State())
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	t.Parallel()

	c := &clock{now: time.Unix(0, 0)}
	b := newBreaker(c)
	ctx := context.Background()
	fail := func() error { return errUpstream }

	_ = b.Execute(ctx, fail)
	_ = b.Execute(ctx, fail)
	c.now = c.now.Add(2 * time.Minute)

	require.ErrorIs(t, b.Execute(ctx, fail), errUpstream)
	assert.Equal(t, circuitbreaker.StateOpen, b.State())

	b.Reset()
	assert.Equal(t, circuitbreaker.StateClosed, b.State())
}
