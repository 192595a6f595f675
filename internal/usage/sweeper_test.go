package usage

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSweeper(t *testing.T) (*Sweeper, *redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewSweeper(client, time.Second, nil), client, mr
}

func TestSweeper_DeletesExpiredUsageKeysOnly(t *testing.T) {
	s, client, _ := newTestSweeper(t)
	ctx := context.Background()

	past := strconv.FormatInt(time.Now().Add(-time.Hour).Unix(), 10)
	future := strconv.FormatInt(time.Now().Add(time.Hour).Unix(), 10)

	require.NoError(t, client.HSet(ctx, "usage:1:api_calls", "count", 3, "reset_at", past).Err())
	require.NoError(t, client.HSet(ctx, "usage:2:api_calls", "count", 1, "reset_at", future).Err())

	deleted := s.Tick(ctx)
	assert.Equal(t, 1, deleted)

	exists, err := client.Exists(ctx, "usage:1:api_calls").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(0), exists)

	exists, err = client.Exists(ctx, "usage:2:api_calls").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), exists)
}

func TestSweeper_LeavesNonUsageKeysUntouched(t *testing.T) {
	s, client, _ := newTestSweeper(t)
	ctx := context.Background()

	past := strconv.FormatInt(time.Now().Add(-time.Hour).Unix(), 10)
	require.NoError(t, client.HSet(ctx, "usage:1:api_calls", "count", 3, "reset_at", past).Err())
	require.NoError(t, client.LPush(ctx, "q:sub:payment_initiation", "not-a-usage-key").Err())

	deleted := s.Tick(ctx)
	assert.Equal(t, 1, deleted)

	n, err := client.LLen(ctx, "q:sub:payment_initiation").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), n, "the sweep must never touch queue keys, only usage:*")
}
