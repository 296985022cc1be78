package infra

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"jobboard-gateway/middleware/ratelimit/domain"
)

type RedisStatsStore struct {
	rdb *redis.Client

	prefix string
	// ttl aplica apenas em chaves de série temporal / por identificador.
	// total e por endpoint são cumulativos e não expiram.
	ttl time.Duration

	bucket string // "minute" (padrão) ou "none"

	trackIdentifiers bool
}

type RedisStatsOption func(*RedisStatsStore)

func WithStatsPrefix(prefix string) RedisStatsOption {
	return func(s *RedisStatsStore) {
		s.prefix = strings.Trim(prefix, ":")
	}
}

func WithStatsTTL(d time.Duration) RedisStatsOption {
	return func(s *RedisStatsStore) { s.ttl = d }
}

func WithStatsBucket(bucket string) RedisStatsOption {
	return func(s *RedisStatsStore) { s.bucket = strings.ToLower(strings.TrimSpace(bucket)) }
}

func WithStatsTrackIdentifiers(track bool) RedisStatsOption {
	return func(s *RedisStatsStore) { s.trackIdentifiers = track }
}

func NewRedisStatsStore(rdb *redis.Client, opts ...RedisStatsOption) *RedisStatsStore {
	s := &RedisStatsStore{
		rdb:    rdb,
		prefix: "ratelimit:stats",
		ttl:    24 * time.Hour,
		bucket: "minute",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func statsField(allowed bool) string {
	if allowed {
		return "allowed"
	}
	return "denied"
}

func (s *RedisStatsStore) Record(ctx context.Context, ev domain.StatsEvent) error {
	if s == nil || s.rdb == nil {
		return nil
	}

	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}
	field := statsField(ev.Allowed)

	pipe := s.rdb.Pipeline()
	pipe.HIncrBy(ctx, s.prefix+":total", field, 1)

	if s.bucket == "minute" {
		bucketKey := fmt.Sprintf("%s:minute:%s", s.prefix, at.UTC().Format("200601021504"))
		pipe.HIncrBy(ctx, bucketKey, field, 1)
		if s.ttl > 0 {
			pipe.Expire(ctx, bucketKey, s.ttl)
		}
	}

	if ep := strings.TrimSpace(ev.Endpoint); ep != "" {
		pipe.HIncrBy(ctx, s.prefix+":endpoint", ep+":"+field, 1)
	}

	if s.trackIdentifiers {
		if id := strings.TrimSpace(ev.Identifier); id != "" {
			idKey := s.prefix + ":identifier:" + id
			pipe.HIncrBy(ctx, idKey, field, 1)
			if s.ttl > 0 {
				pipe.Expire(ctx, idKey, s.ttl)
			}
		}
	}

	_, err := pipe.Exec(ctx)
	return err
}

// Snapshot implementa domain.StatsReader com total e contadores por endpoint.
// Contadores por identificador ficam de fora (cardinalidade).
func (s *RedisStatsStore) Snapshot(ctx context.Context) (domain.StatsSnapshot, error) {
	pipe := s.rdb.Pipeline()
	totalCmd := pipe.HGetAll(ctx, s.prefix+":total")
	endpointCmd := pipe.HGetAll(ctx, s.prefix+":endpoint")
	if _, err := pipe.Exec(ctx); err != nil {
		return domain.StatsSnapshot{}, fmt.Errorf("read stats: %w", err)
	}

	snap := domain.StatsSnapshot{ByEndpoint: make(map[string]domain.Counters)}
	total := totalCmd.Val()
	snap.Total.Allowed, _ = strconv.ParseInt(total["allowed"], 10, 64)
	snap.Total.Denied, _ = strconv.ParseInt(total["denied"], 10, 64)

	for f, v := range endpointCmd.Val() {
		i := strings.LastIndexByte(f, ':')
		if i <= 0 {
			continue
		}
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			continue
		}
		ep, kind := f[:i], f[i+1:]
		c := snap.ByEndpoint[ep]
		if kind == "allowed" {
			c.Allowed = n
		} else {
			c.Denied = n
		}
		snap.ByEndpoint[ep] = c
	}
	return snap, nil
}
