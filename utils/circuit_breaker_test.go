package utils

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSettings() CircuitBreakerSettings {
	return CircuitBreakerSettings{
		MaxRequests:  2,
		Interval:     time.Minute,
		Timeout:      50 * time.Millisecond,
		FailureRatio: 0.5,
		MinRequests:  4,
	}
}

func TestCircuitBreaker_StaysClosedOnSuccess(t *testing.T) {
	cb := NewCircuitBreaker("test", testSettings())

	for i := 0; i < 10; i++ {
		_, err := cb.Execute(context.Background(), func() (any, error) {
			return "ok", nil
		})
		require.NoError(t, err)
	}

	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_TripsAfterFailureRatio(t *testing.T) {
	cb := NewCircuitBreaker("test", testSettings())
	boom := errors.New("connection refused")

	for i := 0; i < 4; i++ {
		_, err := cb.Execute(context.Background(), func() (any, error) {
			return nil, boom
		})
		assert.Error(t, err)
	}

	assert.Equal(t, StateOpen, cb.State())

	// While open, requests are rejected without invoking the callback.
	called := false
	_, err := cb.Execute(context.Background(), func() (any, error) {
		called = true
		return nil, nil
	})
	assert.ErrorIs(t, err, ErrBreakerOpen)
	assert.False(t, called)
}

func TestCircuitBreaker_DoesNotTripBelowMinRequests(t *testing.T) {
	cb := NewCircuitBreaker("test", testSettings())

	for i := 0; i < 3; i++ {
		cb.Execute(context.Background(), func() (any, error) {
			return nil, errors.New("fail")
		})
	}

	// Three failures, MinRequests is four: not enough evidence to trip.
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_HalfOpenRecovers(t *testing.T) {
	cb := NewCircuitBreaker("test", testSettings())

	for i := 0; i < 4; i++ {
		cb.Execute(context.Background(), func() (any, error) {
			return nil, errors.New("fail")
		})
	}
	require.Equal(t, StateOpen, cb.State())

	time.Sleep(60 * time.Millisecond)
	require.Equal(t, StateHalfOpen, cb.State())

	_, err := cb.Execute(context.Background(), func() (any, error) {
		return "ok", nil
	})
	require.NoError(t, err)

	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	cb := NewCircuitBreaker("test", testSettings())

	for i := 0; i < 4; i++ {
		cb.Execute(context.Background(), func() (any, error) {
			return nil, errors.New("fail")
		})
	}
	require.Equal(t, StateOpen, cb.State())

	time.Sleep(60 * time.Millisecond)

	_, err := cb.Execute(context.Background(), func() (any, error) {
		return nil, errors.New("still down")
	})
	assert.Error(t, err)
	assert.Equal(t, StateOpen, cb.State())
}
