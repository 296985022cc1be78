package infra

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobboard-gateway/middleware/ratelimit/domain"
)

const t0 int64 = 1_700_000_000_000

func newTestRedis(t *testing.T, opts ...RedisRepositoryOption) (*RedisRepository, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	opts = append([]RedisRepositoryOption{WithRedisSweepRate(0)}, opts...)
	return NewRedisRepository(rdb, opts...), mr
}

func TestRedisRepository_HitMatchesEvaluate(t *testing.T) {
	repo, _ := newTestRedis(t)
	ctx := context.Background()
	q := domain.Quota{MaxRequests: 3, Window: time.Minute}
	key := domain.Key{Identifier: "user:42", Endpoint: domain.EndpointCreateJob}

	var rec *domain.Record
	steps := []int64{t0, t0 + 1000, t0 + 2000, t0 + 3000, t0 + 60_000, t0 + 60_001}
	for i, now := range steps {
		next, want, write := domain.Evaluate(rec, key, q, now)
		if write != domain.WriteNone {
			rec = &next
		}

		got, err := repo.Hit(ctx, key, q, now)
		require.NoError(t, err, "step %d", i)
		assert.Equal(t, want, got, "step %d", i)
	}
}

func TestRedisRepository_HitDeniesWithoutWriting(t *testing.T) {
	repo, _ := newTestRedis(t)
	ctx := context.Background()
	q := domain.Quota{MaxRequests: 1, Window: time.Minute}
	key := domain.Key{Identifier: "ip:1.2.3.4", Endpoint: domain.EndpointAddSponsoredCompany}

	_, err := repo.Hit(ctx, key, q, t0)
	require.NoError(t, err)

	dec, err := repo.Hit(ctx, key, q, t0+5000)
	require.NoError(t, err)
	assert.False(t, dec.Allowed)
	assert.Equal(t, 0, dec.Remaining)
	assert.Equal(t, t0+60_000, dec.ResetTime)

	rec, err := repo.Find(ctx, key)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, 1, rec.RequestCount)
	assert.Equal(t, t0, rec.LastRequest)
}

func TestRedisRepository_ConcurrentHitsNeverOvershoot(t *testing.T) {
	repo, _ := newTestRedis(t)
	ctx := context.Background()
	q := domain.Quota{MaxRequests: 20, Window: time.Minute}
	key := domain.Key{Identifier: "user:1", Endpoint: domain.EndpointCreateJob}

	var allowed atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			dec, err := repo.Hit(ctx, key, q, t0)
			if err != nil {
				t.Errorf("hit: %v", err)
				return
			}
			if dec.Allowed {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(20), allowed.Load())
}

func TestRedisRepository_InsertFindUpdate(t *testing.T) {
	repo, mr := newTestRedis(t, WithRedisPrefix("rl:"))
	ctx := context.Background()
	rec := domain.Record{Identifier: "user:7", Endpoint: domain.EndpointCreateApplication, RequestCount: 1, WindowStart: t0, LastRequest: t0}

	got, err := repo.Find(ctx, rec.Key())
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, repo.Insert(ctx, rec))
	assert.ErrorIs(t, repo.Insert(ctx, rec), domain.ErrRecordExists)
	assert.True(t, mr.Exists("rl:rec:17:createApplication:user:7"))

	rec.RequestCount = 2
	rec.LastRequest = t0 + 10
	require.NoError(t, repo.Update(ctx, rec))

	got, err = repo.Find(ctx, rec.Key())
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, rec, *got)
}

func TestRedisRepository_ListByIdentifier(t *testing.T) {
	repo, _ := newTestRedis(t)
	ctx := context.Background()

	for _, ep := range []string{domain.EndpointGeneralQuery, domain.EndpointCreateJob} {
		require.NoError(t, repo.Insert(ctx, domain.Record{Identifier: "user:9", Endpoint: ep, RequestCount: 1, WindowStart: t0, LastRequest: t0}))
	}
	require.NoError(t, repo.Insert(ctx, domain.Record{Identifier: "user:10", Endpoint: domain.EndpointCreateJob, RequestCount: 1, WindowStart: t0, LastRequest: t0}))

	list, err := repo.ListByIdentifier(ctx, "user:9")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, domain.EndpointCreateJob, list[0].Endpoint)
	assert.Equal(t, domain.EndpointGeneralQuery, list[1].Endpoint)

	empty, err := repo.ListByIdentifier(ctx, "user:nobody")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestRedisRepository_DeleteStale(t *testing.T) {
	repo, mr := newTestRedis(t, WithRedisScanCount(1))
	ctx := context.Background()
	now := t0 + 48*time.Hour.Milliseconds()

	old := domain.Record{Identifier: "user:a", Endpoint: domain.EndpointCreateJob, RequestCount: 3, WindowStart: now - 25*time.Hour.Milliseconds(), LastRequest: now - 25*time.Hour.Milliseconds()}
	recent := domain.Record{Identifier: "user:b", Endpoint: domain.EndpointCreateJob, RequestCount: 1, WindowStart: now - time.Hour.Milliseconds(), LastRequest: now - time.Hour.Milliseconds()}
	require.NoError(t, repo.Insert(ctx, old))
	require.NoError(t, repo.Insert(ctx, recent))

	cutoff := now - 24*time.Hour.Milliseconds()
	n, err := repo.DeleteStale(ctx, cutoff)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := repo.Find(ctx, old.Key())
	require.NoError(t, err)
	assert.Nil(t, got)
	list, err := repo.ListByIdentifier(ctx, "user:a")
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.False(t, mr.Exists("ratelimit:idx:user:a"), "index entry should go with the record")

	got, err = repo.Find(ctx, recent.Key())
	require.NoError(t, err)
	assert.NotNil(t, got)

	n, err = repo.DeleteStale(ctx, cutoff)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestRedisRepository_RecordTTL(t *testing.T) {
	repo, mr := newTestRedis(t, WithRedisRecordTTL(time.Hour))
	ctx := context.Background()
	key := domain.Key{Identifier: "user:ttl", Endpoint: domain.EndpointGeneralQuery}

	_, err := repo.Hit(ctx, key, domain.Quota{MaxRequests: 5, Window: time.Minute}, t0)
	require.NoError(t, err)
	assert.Equal(t, time.Hour, mr.TTL("ratelimit:rec:12:generalQuery:user:ttl"))

	mr.FastForward(2 * time.Hour)
	got, err := repo.Find(ctx, key)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRedisRepository_KeysWithColonsDoNotCollide(t *testing.T) {
	repo, _ := newTestRedis(t)
	ctx := context.Background()
	q := domain.Quota{MaxRequests: 2, Window: time.Minute}
	a := domain.Key{Identifier: "x", Endpoint: "jobs:user"}
	b := domain.Key{Identifier: "user:x", Endpoint: "jobs"}

	for i := 0; i < 2; i++ {
		dec, err := repo.Hit(ctx, a, q, t0+int64(i))
		require.NoError(t, err)
		require.True(t, dec.Allowed)
	}

	dec, err := repo.Hit(ctx, b, q, t0+10)
	require.NoError(t, err)
	assert.True(t, dec.Allowed, "first request on a different key must not see the other key's count")
	assert.Equal(t, 1, dec.Remaining)

	got, err := repo.Find(ctx, a)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 2, got.RequestCount)
	assert.Equal(t, "jobs:user", got.Endpoint)
}

func TestRedisRepository_ParseRecordKey(t *testing.T) {
	repo, _ := newTestRedis(t, WithRedisPrefix("rl"))

	for _, k := range []domain.Key{
		{Identifier: "user:x", Endpoint: "jobs"},
		{Identifier: "x", Endpoint: "jobs:user"},
		{Identifier: "client:a:b", Endpoint: ""},
	} {
		got, ok := repo.parseRecordKey(repo.recordKey(k))
		require.True(t, ok, "%+v", k)
		assert.Equal(t, k, got)
	}

	for _, key := range []string{"rl:rec:jobs:user:x", "rl:rec:9:jobs:x", "other:rec:4:jobs:x", "rl:rec:-1:x"} {
		_, ok := repo.parseRecordKey(key)
		assert.False(t, ok, key)
	}
}

func TestRedisRepository_DeleteStaleWithColonsInKey(t *testing.T) {
	repo, mr := newTestRedis(t)
	ctx := context.Background()

	stale := domain.Record{Identifier: "client:partner:7", Endpoint: "jobs:export", RequestCount: 1, WindowStart: t0, LastRequest: t0}
	require.NoError(t, repo.Insert(ctx, stale))
	// chave estranha sob o mesmo prefixo fica de fora
	mr.HSet("ratelimit:rec:legacy", "lastRequest", "1")

	n, err := repo.DeleteStale(ctx, t0+1)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.False(t, mr.Exists(repo.recordKey(stale.Key())))
	assert.False(t, mr.Exists("ratelimit:idx:client:partner:7"))
	assert.True(t, mr.Exists("ratelimit:rec:legacy"))
}
