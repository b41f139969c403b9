package infra

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"click-reply-correlator/correlator/domain"
)

// RedisStatsStore grava contadores de decisões no Redis.
//
// Layout (prefixo padrão "correlator:stats"):
//
//	<prefix>:total            hash outcome -> n (não expira)
//	<prefix>:minute:YYYYMMDDhhmm  hash outcome -> n (expira em ttl)
//	<prefix>:kind             hash "kind:outcome" -> n
type RedisStatsStore struct {
	rdb *redis.Client

	prefix string
	// ttl vale só para as chaves de série temporal.
	ttl time.Duration
}

type RedisStatsOption func(*RedisStatsStore)

func WithStatsPrefix(prefix string) RedisStatsOption {
	return func(s *RedisStatsStore) {
		if p := strings.Trim(prefix, ":"); p != "" {
			s.prefix = p
		}
	}
}

func WithStatsTTL(d time.Duration) RedisStatsOption {
	return func(s *RedisStatsStore) { s.ttl = d }
}

func NewRedisStatsStore(rdb *redis.Client, opts ...RedisStatsOption) *RedisStatsStore {
	s := &RedisStatsStore{
		rdb:    rdb,
		prefix: "correlator:stats",
		ttl:    24 * time.Hour,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStatsStore) Record(ctx context.Context, ev domain.StatsEvent) error {
	if s == nil || s.rdb == nil {
		return nil
	}

	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}
	field := string(ev.Outcome)
	if field == "" {
		field = "unknown"
	}

	pipe := s.rdb.Pipeline()
	pipe.HIncrBy(ctx, s.prefix+":total", field, 1)

	bucketKey := fmt.Sprintf("%s:minute:%s", s.prefix, at.UTC().Format("200601021504"))
	pipe.HIncrBy(ctx, bucketKey, field, 1)
	if s.ttl > 0 {
		pipe.Expire(ctx, bucketKey, s.ttl)
	}

	if kind := strings.TrimSpace(ev.Kind); kind != "" {
		pipe.HIncrBy(ctx, s.prefix+":kind", kind+":"+field, 1)
	}

	_, err := pipe.Exec(ctx)
	return err
}

// Totals lê o hash cumulativo.
func (s *RedisStatsStore) Totals(ctx context.Context) (map[string]string, error) {
	return s.rdb.HGetAll(ctx, s.prefix+":total").Result()
}
