package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCircuitBreakerOpensAfterFailures(t *testing.T) {
	cb := NewCircuitBreakerWithConfig(CircuitBreakerConfig{Name: "test", MaxFailures: 2, Timeout: time.Hour})
	ctx := context.Background()
	boom := errors.New("boom")

	for i := 0; i < 2; i++ {
		_, err := Call(ctx, cb, func() (string, error) { return "", boom })
		assert.ErrorIs(t, err, boom)
	}
	assert.Equal(t, "open", cb.State())

	called := false
	_, err := Call(ctx, cb, func() (string, error) { called = true; return "ok", nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)

	m := cb.Metrics()
	assert.Equal(t, uint64(3), m.TotalRequests)
	assert.Equal(t, uint64(3), m.TotalFailures)
}

func TestCircuitBreakerHalfOpenRecovers(t *testing.T) {
	cb := NewCircuitBreakerWithConfig(CircuitBreakerConfig{MaxFailures: 1, Timeout: 20 * time.Millisecond, HalfOpenMaxSuccesses: 1})
	ctx := context.Background()

	_, _ = Call(ctx, cb, func() (int, error) { return 0, errors.New("boom") })
	require.Equal(t, "open", cb.State())

	time.Sleep(40 * time.Millisecond)
	v, err := Call(ctx, cb, func() (int, error) { return 7, nil })
	require.NoError(t, err)
	assert.Equal(t, 7, v)
	assert.Equal(t, "closed", cb.State())
}

func TestCircuitBreakerCancelledContext(t *testing.T) {
	cb := NewCircuitBreaker("test")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := cb.Execute(ctx, func() (interface{}, error) { return nil, nil })
	assert.ErrorIs(t, err, context.Canceled)
}
