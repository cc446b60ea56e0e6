package breaker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	s := NewMemoryStore().WithClock(func() time.Time { return now })

	t.Run("incr applies ttl on create only", func(t *testing.T) {
		n, err := s.Incr(ctx, "k", time.Minute)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		now = now.Add(30 * time.Second)
		n, err = s.Incr(ctx, "k", time.Minute)
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)

		now = now.Add(31 * time.Second)
		_, ok, err := s.Get(ctx, "k")
		require.NoError(t, err)
		assert.False(t, ok, "window measured from first increment")
	})

	t.Run("compare and swap", func(t *testing.T) {
		ok, err := s.CompareAndSwap(ctx, "state", "", "open")
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = s.CompareAndSwap(ctx, "state", "closed", "half_open")
		require.NoError(t, err)
		assert.False(t, ok)

		ok, err = s.CompareAndSwap(ctx, "state", "open", "half_open")
		require.NoError(t, err)
		assert.True(t, ok)

		v, _, _ := s.Get(ctx, "state")
		assert.Equal(t, "half_open", v)
	})

	t.Run("apply sets and deletes", func(t *testing.T) {
		_, _ = s.Incr(ctx, "failures", 0)
		require.NoError(t, s.Apply(ctx, map[string]string{"a": "1"}, []string{"failures"}))

		_, ok, _ := s.Get(ctx, "failures")
		assert.False(t, ok)
		v, ok, _ := s.Get(ctx, "a")
		assert.True(t, ok)
		assert.Equal(t, "1", v)
	})
}
