package infra

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

func failing() error { return errBoom }
func ok() error      { return nil }

func TestBreakerOpensAfterFailureLimit(t *testing.T) {
	b := NewBreaker(3, 2, time.Minute)

	for i := 0; i < 3; i++ {
		assert.ErrorIs(t, b.Execute(failing), errBoom)
	}
	assert.Equal(t, BreakerOpen, b.State())

	// While open, fn is never invoked.
	called := false
	err := b.Execute(func() error { called = true; return nil })
	assert.ErrorIs(t, err, ErrBackendUnavailable)
	assert.False(t, called)
}

func TestBreakerSuccessResetsFailureCount(t *testing.T) {
	b := NewBreaker(3, 2, time.Minute)

	require.Error(t, b.Execute(failing))
	require.Error(t, b.Execute(failing))
	require.NoError(t, b.Execute(ok))
	require.Error(t, b.Execute(failing))
	require.Error(t, b.Execute(failing))

	// Failures are consecutive — the success in between kept it closed.
	assert.Equal(t, BreakerClosed, b.State())
}

func TestBreakerHalfOpenRecovery(t *testing.T) {
	b := NewBreaker(1, 2, 10*time.Millisecond)

	require.Error(t, b.Execute(failing))
	require.Equal(t, BreakerOpen, b.State())

	time.Sleep(15 * time.Millisecond)
	assert.Equal(t, BreakerHalfOpen, b.State())

	// Two consecutive probe successes close it again.
	require.NoError(t, b.Execute(ok))
	assert.Equal(t, BreakerHalfOpen, b.State())
	require.NoError(t, b.Execute(ok))
	assert.Equal(t, BreakerClosed, b.State())
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	b := NewBreaker(1, 2, 10*time.Millisecond)

	require.Error(t, b.Execute(failing))
	time.Sleep(15 * time.Millisecond)
	require.Equal(t, BreakerHalfOpen, b.State())

	require.Error(t, b.Execute(failing))
	assert.Equal(t, BreakerOpen, b.State())
}
