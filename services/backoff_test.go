package services

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNextRetryAt_GrowsWithAttempts(t *testing.T) {
	cfg := BackoffConfig{Base: 1 * time.Second, Cap: 60 * time.Second}
	rng := rand.New(rand.NewSource(42))
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	// Jitter is drawn from [delay/2, delay], so the earliest possible retry
	// for attempt n+1 is never before the latest possible one for attempt n
	// while below the cap.
	prevDelay := time.Duration(0)
	for attempt := 1; attempt <= 6; attempt++ {
		delay := cfg.Base << (attempt - 1)
		min := now.Add(delay / 2)
		max := now.Add(delay)

		for i := 0; i < 50; i++ {
			at := NextRetryAt(now, attempt, cfg, rng)
			assert.False(t, at.Before(min), "attempt %d: %s before %s", attempt, at, min)
			assert.False(t, at.After(max), "attempt %d: %s after %s", attempt, at, max)
		}

		assert.GreaterOrEqual(t, int64(delay/2), int64(prevDelay))
		prevDelay = delay
	}
}

func TestNextRetryAt_RespectsCap(t *testing.T) {
	cfg := BackoffConfig{Base: 1 * time.Second, Cap: 10 * time.Second}
	rng := rand.New(rand.NewSource(1))
	now := time.Now().UTC()

	for i := 0; i < 100; i++ {
		at := NextRetryAt(now, 20, cfg, rng)
		assert.False(t, at.After(now.Add(cfg.Cap)))
		assert.False(t, at.Before(now.Add(cfg.Cap/2)))
	}
}

func TestNextRetryAt_DefaultsOnBadInput(t *testing.T) {
	now := time.Now().UTC()

	at := NextRetryAt(now, 0, BackoffConfig{}, nil)
	assert.True(t, at.After(now))
	assert.False(t, at.After(now.Add(1*time.Second)))
}
