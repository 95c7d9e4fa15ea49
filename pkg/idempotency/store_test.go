package idempotency

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_SeenAfterMark(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	s := NewStore(rdb, time.Minute)
	ctx := context.Background()

	seen, err := s.Seen(ctx, "order:o-1:SHIPPING")
	require.NoError(t, err)
	assert.False(t, seen)

	require.NoError(t, s.Mark(ctx, "order:o-1:SHIPPING"))

	seen, err = s.Seen(ctx, "order:o-1:SHIPPING")
	require.NoError(t, err)
	assert.True(t, seen)
	assert.True(t, mr.Exists("idem:order:o-1:SHIPPING"))

	mr.FastForward(2 * time.Minute)
	seen, err = s.Seen(ctx, "order:o-1:SHIPPING")
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestStore_RedisDown(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = rdb.Close() })
	mr.Close()

	_, err := NewStore(rdb, time.Minute).Seen(context.Background(), "k")
	assert.Error(t, err)
}

func TestMemoryStore_Expiry(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s := NewMemoryStore(time.Minute)
	s.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, s.Mark(ctx, "k"))
	seen, _ := s.Seen(ctx, "k")
	assert.True(t, seen)

	now = now.Add(2 * time.Minute)
	seen, _ = s.Seen(ctx, "k")
	assert.False(t, seen)
}

func TestMemoryStore_MarkEvictsExpiredKeys(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s := NewMemoryStore(time.Minute)
	s.now = func() time.Time { return now }
	ctx := context.Background()

	for _, k := range []string{"order:o-1:CREATED", "order:o-1:PROCESSING", "order:o-2:CREATED"} {
		require.NoError(t, s.Mark(ctx, k))
	}
	assert.Equal(t, 3, s.Len())

	now = now.Add(30 * time.Second)
	require.NoError(t, s.Mark(ctx, "order:o-2:PROCESSING"))
	assert.Equal(t, 4, s.Len(), "nothing has expired yet")

	now = now.Add(45 * time.Second)
	require.NoError(t, s.Mark(ctx, "order:o-3:CREATED"))
	assert.Equal(t, 2, s.Len(), "keys marked at the start are gone")

	seen, _ := s.Seen(ctx, "order:o-2:PROCESSING")
	assert.True(t, seen)
}
