package stream

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newReplayCache(t *testing.T) (*ReplayCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewReplayCache(client), mr
}

func TestReplayCacheRemembersOnlyWhenTold(t *testing.T) {
	cache, mr := newReplayCache(t)
	ctx := context.Background()

	seen, err := cache.Seen(ctx, "abc")
	require.NoError(t, err)
	require.False(t, seen)

	seen, err = cache.Seen(ctx, "abc")
	require.NoError(t, err)
	require.False(t, seen)

	require.NoError(t, cache.Remember(ctx, "abc"))
	seen, err = cache.Seen(ctx, "abc")
	require.NoError(t, err)
	require.True(t, seen)

	seen, err = cache.Seen(ctx, "def")
	require.NoError(t, err)
	require.False(t, seen)

	mr.FastForward(2*SignatureTolerance + time.Second)
	seen, err = cache.Seen(ctx, "abc")
	require.NoError(t, err)
	require.False(t, seen)
}

func TestReplayCacheReportsRedisErrors(t *testing.T) {
	cache, mr := newReplayCache(t)
	mr.Close()

	_, err := cache.Seen(context.Background(), "abc")
	require.Error(t, err)
	require.Error(t, cache.Remember(context.Background(), "abc"))
}

func TestNilReplayCacheIsDisabled(t *testing.T) {
	var cache *ReplayCache
	require.Nil(t, NewReplayCache(nil))

	seen, err := cache.Seen(context.Background(), "abc")
	require.NoError(t, err)
	require.False(t, seen)
	require.NoError(t, cache.Remember(context.Background(), "abc"))
}
