package rediscache

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
)

func TestRedisCache_GetSetDelete(t *testing.T) {
	mr := miniredis.RunT(t)
	c := New(Options{Addr: mr.Addr()}, "fd:")
	defer c.Close()

	ctx := context.Background()
	require.NoError(t, c.Ping(ctx))

	_, ok, err := c.Get(ctx, "geo:postal:10001")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, c.Set(ctx, "geo:postal:10001", []byte(`{"lat":1,"lng":2}`), 0))
	require.True(t, mr.Exists("fd:geo:postal:10001"))
	require.Zero(t, mr.TTL("fd:geo:postal:10001"))

	b, ok, err := c.Get(ctx, "geo:postal:10001")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte(`{"lat":1,"lng":2}`), b)

	require.NoError(t, c.Set(ctx, "order:1:current", []byte("x"), time.Minute))
	require.Equal(t, time.Minute, mr.TTL("fd:order:1:current"))

	require.NoError(t, c.Delete(ctx, "order:1:current"))
	_, ok, err = c.Get(ctx, "order:1:current")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestRedisCache_ErrorWhenDown(t *testing.T) {
	mr := miniredis.RunT(t)
	c := New(Options{Addr: mr.Addr()}, "")
	mr.Close()

	_, _, err := c.Get(context.Background(), "k")
	require.Error(t, err)
}

func TestRateLimiter_Allow(t *testing.T) {
	mr := miniredis.RunT(t)
	rl := NewRateLimiter(Options{Addr: mr.Addr()})
	defer rl.Close()

	ctx := context.Background()
	ok, n, err := rl.Allow(ctx, "rl:maps", 2, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(1), n)

	ok, n, _ = rl.Allow(ctx, "rl:maps", 2, time.Minute)
	require.True(t, ok)
	require.Equal(t, int64(2), n)

	ok, n, _ = rl.Allow(ctx, "rl:maps", 2, time.Minute)
	require.False(t, ok)
	require.Equal(t, int64(3), n)

	// new window
	mr.FastForward(time.Minute + time.Second)
	ok, n, _ = rl.Allow(ctx, "rl:maps", 2, time.Minute)
	require.True(t, ok)
	require.Equal(t, int64(1), n)
}
