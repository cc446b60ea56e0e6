package retry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPolicy_Delay(t *testing.T) {
	p := Policy{MaxAttempts: 5, Base: 30 * time.Second, Cap: time.Hour}

	tests := []struct {
		attempts int
		want     time.Duration
	}{
		{0, 30 * time.Second},
		{1, time.Minute},
		{2, 2 * time.Minute},
		{4, 8 * time.Minute},
		{7, time.Hour},
		{40, time.Hour},
		{-1, 30 * time.Second},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, p.Delay(tt.attempts), "attempts=%d", tt.attempts)
	}
}

func TestPolicy_DelayWithJitterStaysInBounds(t *testing.T) {
	p := Policy{MaxAttempts: 5, Base: 10 * time.Second, Cap: time.Minute, Jitter: true}

	for i := 0; i < 200; i++ {
		d := p.Delay(1)
		assert.GreaterOrEqual(t, d, 16*time.Second)
		assert.LessOrEqual(t, d, 24*time.Second)

		capped := p.Delay(10)
		assert.LessOrEqual(t, capped, time.Minute)
		assert.GreaterOrEqual(t, capped, 48*time.Second)
	}
}
