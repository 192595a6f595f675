package joblog

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kevin07696/billing-pipeline/internal/domain"
	"github.com/kevin07696/billing-pipeline/internal/queue"
)

type fakeJobLogRepo struct {
	mu      sync.Mutex
	entries []*domain.JobLogEntry
}

func (f *fakeJobLogRepo) Record(ctx context.Context, entry *domain.JobLogEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, entry)
	return nil
}

func TestLogger_Record_PersistsRowAndPushesTail(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	repo := &fakeJobLogRepo{}
	l := NewLogger("payment", repo, client, nil)

	env := queue.NewEnvelope("msg-1", "charge", time.Now(), map[string]interface{}{}).WithCorrelationID("corr-1")
	err := l.Record(context.Background(), queue.QueuePaySubscriptionUpdate, env, queue.JobStatusSuccess, nil)
	require.NoError(t, err)

	require.Len(t, repo.entries, 1)
	assert.Equal(t, "payment", repo.entries[0].Service)
	assert.Equal(t, "msg-1", repo.entries[0].MessageID)
	assert.Equal(t, "corr-1", repo.entries[0].CorrelationID)
	assert.Equal(t, string(queue.JobStatusSuccess), repo.entries[0].Status)

	n, err := client.LLen(context.Background(), tailKey).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestLogger_Record_IncludesLastErrorMessage(t *testing.T) {
	repo := &fakeJobLogRepo{}
	l := NewLogger("subscription", repo, nil, nil)

	env := queue.NewEnvelope("msg-2", "retry_me", time.Now(), map[string]interface{}{})
	err := l.Record(context.Background(), queue.QueueSubPaymentInitiation, env, queue.JobStatusRetry, errors.New("gateway timeout"))
	require.NoError(t, err)

	require.Len(t, repo.entries, 1)
	assert.Equal(t, "gateway timeout", repo.entries[0].LastError)
}

func TestLogger_Record_NilStoreAndRedisDoesNotPanic(t *testing.T) {
	l := NewLogger("payment", nil, nil, nil)
	env := queue.NewEnvelope("msg-3", "noop", time.Now(), map[string]interface{}{})
	err := l.Record(context.Background(), queue.QueuePaySubscriptionUpdate, env, queue.JobStatusSuccess, nil)
	require.NoError(t, err)
}
