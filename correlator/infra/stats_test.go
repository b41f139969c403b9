package infra

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"click-reply-correlator/correlator/domain"
)

func TestMemoryStatsStore_Counts(t *testing.T) {
	s := NewMemoryStatsStore()
	ctx := context.Background()

	require.NoError(t, s.Record(ctx, domain.StatsEvent{Kind: "webhook", Outcome: domain.OutcomeSent}))
	require.NoError(t, s.Record(ctx, domain.StatsEvent{Kind: "webhook", Outcome: domain.OutcomeDeferred}))
	require.NoError(t, s.Record(ctx, domain.StatsEvent{Kind: "click", Outcome: domain.OutcomeRecorded}))
	require.NoError(t, s.Record(ctx, domain.StatsEvent{Kind: "webhook", Outcome: domain.OutcomeSent}))

	assert.Equal(t, int64(4), s.Total())
	assert.Equal(t, int64(2), s.Count(domain.OutcomeSent))
	assert.Equal(t, int64(2), s.ByKind()["webhook:sent"])
	assert.Equal(t, int64(1), s.ByOutcome()[domain.OutcomeRecorded])
}

func TestRedisStatsStore_NilIsNoop(t *testing.T) {
	var s *RedisStatsStore
	assert.NoError(t, s.Record(context.Background(), domain.StatsEvent{Outcome: domain.OutcomeSent}))
}

// Roda só com um Redis real: STATS_REDIS_ADDR=localhost:6379 go test ./...
func TestRedisStatsStore_Record(t *testing.T) {
	addr := os.Getenv("STATS_REDIS_ADDR")
	if addr == "" {
		t.Skip("STATS_REDIS_ADDR not set")
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	defer rdb.Close()

	ctx := context.Background()
	prefix := "correlator:test:" + time.Now().Format("150405.000000")
	s := NewRedisStatsStore(rdb, WithStatsPrefix(prefix), WithStatsTTL(time.Minute))
	t.Cleanup(func() {
		keys, _ := rdb.Keys(ctx, prefix+":*").Result()
		if len(keys) > 0 {
			rdb.Del(ctx, keys...)
		}
	})

	require.NoError(t, s.Record(ctx, domain.StatsEvent{Kind: "webhook", Outcome: domain.OutcomeSent}))
	require.NoError(t, s.Record(ctx, domain.StatsEvent{Kind: "webhook", Outcome: domain.OutcomeSent}))

	totals, err := s.Totals(ctx)
	require.NoError(t, err)
	assert.Equal(t, "2", totals["sent"])

	kinds, err := rdb.HGetAll(ctx, prefix+":kind").Result()
	require.NoError(t, err)
	assert.Equal(t, "2", kinds["webhook:sent"])
}
