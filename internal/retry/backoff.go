package retry

import (
	"math/rand/v2"
	"time"
)

// Policy is the backoff curve and retry budget applied to failed events.
type Policy struct {
	MaxAttempts int
	Base        time.Duration
	Cap         time.Duration
	// Jitter spreads each delay by up to ±20%.
	Jitter bool
}

func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 5,
		Base:        30 * time.Second,
		Cap:         time.Hour,
	}
}

// Delay returns min(base * 2^attempts, cap), optionally jittered.
func (p Policy) Delay(attempts int) time.Duration {
	if attempts < 0 {
		attempts = 0
	}

	limit := p.Cap
	if limit <= 0 {
		limit = DefaultPolicy().Cap
	}

	wait := p.Base
	for i := 0; i < attempts && wait < limit; i++ {
		wait *= 2
	}
	wait = min(wait, limit)

	if p.Jitter {
		factor := rand.Float64()*0.4 - 0.2
		wait += time.Duration(factor * float64(wait))
		wait = min(max(wait, p.Base), limit)
	}
	return wait
}
