package services

import (
	"math/rand"
	"time"
)

type BackoffConfig struct {
	Base time.Duration
	Cap  time.Duration
}

func DefaultBackoff() BackoffConfig {
	return BackoffConfig{
		Base: 1 * time.Second,
		Cap:  60 * time.Second,
	}
}

// NextRetryAt computes when a failed pending item becomes eligible again:
// exponential backoff with full jitter. attempt is 1-based (1 => Base).
func NextRetryAt(now time.Time, attempt int, cfg BackoffConfig, rng *rand.Rand) time.Time {
	if attempt < 1 {
		attempt = 1
	}
	if cfg.Base <= 0 {
		cfg.Base = 1 * time.Second
	}
	if cfg.Cap <= 0 {
		cfg.Cap = 60 * time.Second
	}

	// base * 2^(attempt-1), capped. Shift saturates long before overflow
	// because attempts are capped at single digits by the retry ceiling.
	delay := cfg.Base
	for i := 1; i < attempt && delay < cfg.Cap; i++ {
		delay *= 2
	}
	if delay > cfg.Cap {
		delay = cfg.Cap
	}

	// full jitter: random in [delay/2, delay] keeps retries spread out while
	// preserving monotone growth of the upper bound
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	jitter := delay/2 + time.Duration(rng.Int63n(int64(delay/2)+1))

	return now.Add(jitter).UTC()
}
