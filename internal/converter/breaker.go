package converter

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// breaker stops calling the automation host after repeated failures. Once
// threshold consecutive conversions fail it opens for a cooldown that doubles
// with every further failure up to max. The first call after the cooldown is
// let through as a trial.
type breaker struct {
	mu        sync.Mutex
	threshold int
	base      time.Duration
	max       time.Duration
	failures  int
	retryAt   time.Time
	now       func() time.Time
}

func newBreaker(threshold int, base, max time.Duration) *breaker {
	if threshold <= 0 {
		threshold = 3
	}
	if base <= 0 {
		base = 30 * time.Second
	}
	if max < base {
		max = 5 * time.Minute
	}
	return &breaker{threshold: threshold, base: base, max: max, now: time.Now}
}

// allow reports whether a conversion may run, and if not, how long the
// cooldown still lasts.
func (b *breaker) allow() (time.Duration, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.retryAt.IsZero() {
		return 0, true
	}
	if wait := b.retryAt.Sub(b.now()); wait > 0 {
		return wait, false
	}
	return 0, true
}

func (b *breaker) failure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures++
	if b.failures < b.threshold {
		return
	}
	// 30s, 60s, 120s, 240s, max 5m
	backoff := b.base
	for i := b.threshold; i < b.failures; i++ {
		backoff *= 2
		if backoff > b.max {
			backoff = b.max
			break
		}
	}
	b.retryAt = b.now().Add(backoff)
	log.Warn().Int("failures", b.failures).Dur("cooldown", backoff).Time("retry_at", b.retryAt).Msg("automation host breaker opened")
}

func (b *breaker) success() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failures >= b.threshold {
		log.Info().Msg("automation host breaker closed")
	}
	b.failures = 0
	b.retryAt = time.Time{}
}
