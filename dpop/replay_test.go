package dpop

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryReplayCache_Record(t *testing.T) {
	c := NewMemoryReplayCache(0)
	ctx := context.Background()

	replay, err := c.Record(ctx, "jti-1", time.Minute)
	require.NoError(t, err)
	assert.False(t, replay)

	replay, err = c.Record(ctx, "jti-1", time.Minute)
	require.NoError(t, err)
	assert.True(t, replay)
}

func TestMemoryReplayCache_ExpiredEntryReusable(t *testing.T) {
	c := NewMemoryReplayCache(0)
	base := time.Now()
	c.now = func() time.Time { return base }

	replay, err := c.Record(context.Background(), "jti-1", time.Minute)
	require.NoError(t, err)
	require.False(t, replay)

	c.now = func() time.Time { return base.Add(2 * time.Minute) }
	replay, err = c.Record(context.Background(), "jti-1", time.Minute)
	require.NoError(t, err)
	assert.False(t, replay, "expired marker must not count as replay")
}

// Exactly one of N concurrent recorders of the same fresh jti wins.
func TestMemoryReplayCache_ConcurrentOneWinner(t *testing.T) {
	c := NewMemoryReplayCache(0)

	const n = 64
	var wg sync.WaitGroup
	fresh := make(chan bool, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			replay, err := c.Record(context.Background(), "contested", time.Minute)
			require.NoError(t, err)
			fresh <- !replay
		}()
	}
	wg.Wait()
	close(fresh)

	wins := 0
	for ok := range fresh {
		if ok {
			wins++
		}
	}
	assert.Equal(t, 1, wins)
}

func TestMemoryReplayCache_Bounded(t *testing.T) {
	c := NewMemoryReplayCache(2)
	ctx := context.Background()

	_, err := c.Record(ctx, "a", time.Minute)
	require.NoError(t, err)
	_, err = c.Record(ctx, "b", time.Minute)
	require.NoError(t, err)
	_, err = c.Record(ctx, "c", time.Minute)
	assert.ErrorIs(t, err, ErrReplayCacheFull)
}

func TestMemoryReplayCache_Sweep(t *testing.T) {
	c := NewMemoryReplayCache(0)
	base := time.Now()
	c.now = func() time.Time { return base }

	_, err := c.Record(context.Background(), "short", time.Second)
	require.NoError(t, err)
	_, err = c.Record(context.Background(), "long", time.Hour)
	require.NoError(t, err)
	require.Equal(t, 2, c.Len())

	removed := c.Sweep(base.Add(time.Minute))
	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, c.Len())
}
