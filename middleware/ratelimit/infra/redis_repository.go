package infra

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"jobboard-gateway/middleware/ratelimit/domain"
)

// hitScript executa domain.Evaluate dentro do Redis, sem janela entre a leitura
// e a escrita. Timestamps entram como string (ARGV) para não passarem por
// conversão de número do Lua.
var hitScript = redis.NewScript(`
local key = KEYS[1]
local idx = KEYS[2]
local now = tonumber(ARGV[3])
local max = tonumber(ARGV[4])
local window = tonumber(ARGV[5])
local ttl = tonumber(ARGV[6])

local state = redis.call('HMGET', key, 'requestCount', 'windowStart')
local count = tonumber(state[1])
local start = tonumber(state[2])

if count == nil or start == nil or start < now - window then
  redis.call('HSET', key, 'identifier', ARGV[1], 'endpoint', ARGV[2], 'requestCount', '1', 'windowStart', ARGV[3], 'lastRequest', ARGV[3])
  redis.call('SADD', idx, ARGV[2])
  if ttl > 0 then
    redis.call('PEXPIRE', key, ARGV[6])
    redis.call('PEXPIRE', idx, ARGV[6])
  end
  return {1, max - 1, now + window}
end

if count >= max then
  return {0, 0, start + window}
end

redis.call('HSET', key, 'requestCount', tostring(count + 1), 'lastRequest', ARGV[3])
if ttl > 0 then
  redis.call('PEXPIRE', key, ARGV[6])
  redis.call('PEXPIRE', idx, ARGV[6])
end
return {1, max - count - 1, start + window}
`)

var insertScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
  return 0
end
redis.call('HSET', KEYS[1], 'identifier', ARGV[1], 'endpoint', ARGV[2], 'requestCount', ARGV[3], 'windowStart', ARGV[4], 'lastRequest', ARGV[5])
redis.call('SADD', KEYS[2], ARGV[2])
if tonumber(ARGV[6]) > 0 then
  redis.call('PEXPIRE', KEYS[1], ARGV[6])
  redis.call('PEXPIRE', KEYS[2], ARGV[6])
end
return 1
`)

// sweepScript recebe KEYS em pares (registro, índice do identificador) e, em
// ARGV, o cutoff seguido do endpoint de cada par. Apaga os registros com
// lastRequest < cutoff. A checagem acontece junto com o DEL, então um registro
// atualizado depois do SCAN não é apagado.
var sweepScript = redis.NewScript(`
local cutoff = tonumber(ARGV[1])
local deleted = 0
local n = 1
for i = 1, #KEYS, 2 do
  n = n + 1
  local last = tonumber(redis.call('HGET', KEYS[i], 'lastRequest'))
  if last == nil or last < cutoff then
    if redis.call('DEL', KEYS[i]) == 1 then
      deleted = deleted + 1
    end
    redis.call('SREM', KEYS[i + 1], ARGV[n])
  end
end
return deleted
`)

type redisRecord struct {
	Identifier   string `redis:"identifier"`
	Endpoint     string `redis:"endpoint"`
	RequestCount int    `redis:"requestCount"`
	WindowStart  int64  `redis:"windowStart"`
	LastRequest  int64  `redis:"lastRequest"`
}

func (r redisRecord) toDomain() domain.Record {
	return domain.Record{
		Identifier:   r.Identifier,
		Endpoint:     r.Endpoint,
		RequestCount: r.RequestCount,
		WindowStart:  r.WindowStart,
		LastRequest:  r.LastRequest,
	}
}

// RedisRepository guarda cada registro em um hash e, por identificador, um set
// com os endpoints que ele tem. Implementa domain.AtomicHitter.
//
// Os scripts tocam o hash do registro e o set do índice na mesma chamada, e o
// sweep passa um lote inteiro do SCAN de uma vez. Nenhuma chave usa hash tag,
// então o repositório espera um Redis sem cluster.
type RedisRepository struct {
	rdb *redis.Client

	prefix string
	// recordTTL é aplicado com PEXPIRE a cada escrita; o Redis descarta sozinho
	// registros parados há mais que isso. 0 desliga.
	recordTTL time.Duration

	scanCount int64
	sweepRate *rate.Limiter
}

type RedisRepositoryOption func(*RedisRepository)

func WithRedisPrefix(prefix string) RedisRepositoryOption {
	return func(r *RedisRepository) { r.prefix = strings.Trim(prefix, ":") }
}

func WithRedisRecordTTL(d time.Duration) RedisRepositoryOption {
	return func(r *RedisRepository) { r.recordTTL = d }
}

func WithRedisScanCount(n int64) RedisRepositoryOption {
	return func(r *RedisRepository) {
		if n > 0 {
			r.scanCount = n
		}
	}
}

// WithRedisSweepRate limita quantos lotes do SCAN por segundo a varredura processa.
func WithRedisSweepRate(batchesPerSecond float64) RedisRepositoryOption {
	return func(r *RedisRepository) {
		if batchesPerSecond > 0 {
			r.sweepRate = rate.NewLimiter(rate.Limit(batchesPerSecond), 1)
		} else {
			r.sweepRate = rate.NewLimiter(rate.Inf, 1)
		}
	}
}

func NewRedisRepository(rdb *redis.Client, opts ...RedisRepositoryOption) *RedisRepository {
	r := &RedisRepository{
		rdb:       rdb,
		prefix:    "ratelimit",
		recordTTL: 24 * time.Hour,
		scanCount: 500,
		sweepRate: rate.NewLimiter(rate.Limit(50), 1),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// recordKey monta prefix:rec:<len(endpoint)>:<endpoint>:<identifier>. O
// tamanho do endpoint na frente mantém a chave única mesmo quando endpoint ou
// identificador contêm ':'.
func (r *RedisRepository) recordKey(k domain.Key) string {
	return r.recordPrefix() + strconv.Itoa(len(k.Endpoint)) + ":" + k.Endpoint + ":" + k.Identifier
}

func (r *RedisRepository) recordPrefix() string { return r.prefix + ":rec:" }

// parseRecordKey desfaz recordKey; ok é false para chaves fora do formato.
func (r *RedisRepository) parseRecordKey(key string) (domain.Key, bool) {
	rest, found := strings.CutPrefix(key, r.recordPrefix())
	if !found {
		return domain.Key{}, false
	}
	size, rest, found := strings.Cut(rest, ":")
	if !found {
		return domain.Key{}, false
	}
	n, err := strconv.Atoi(size)
	if err != nil || n < 0 || len(rest) < n+1 || rest[n] != ':' {
		return domain.Key{}, false
	}
	return domain.Key{Endpoint: rest[:n], Identifier: rest[n+1:]}, true
}

func (r *RedisRepository) indexPrefix() string { return r.prefix + ":idx:" }

func (r *RedisRepository) indexKey(identifier string) string { return r.indexPrefix() + identifier }

func (r *RedisRepository) ttlArg() string {
	return strconv.FormatInt(r.recordTTL.Milliseconds(), 10)
}

// Hit implementa domain.AtomicHitter.
func (r *RedisRepository) Hit(ctx context.Context, key domain.Key, q domain.Quota, now int64) (domain.Decision, error) {
	vals, err := hitScript.Run(ctx, r.rdb,
		[]string{r.recordKey(key), r.indexKey(key.Identifier)},
		key.Identifier,
		key.Endpoint,
		strconv.FormatInt(now, 10),
		strconv.Itoa(q.MaxRequests),
		strconv.FormatInt(q.WindowMs(), 10),
		r.ttlArg(),
	).Int64Slice()
	if err != nil {
		return domain.Decision{}, fmt.Errorf("redis hit %s: %w", key, err)
	}
	if len(vals) != 3 {
		return domain.Decision{}, fmt.Errorf("redis hit %s: unexpected reply %v", key, vals)
	}
	return domain.Decision{
		Allowed:   vals[0] == 1,
		Limit:     q.MaxRequests,
		Remaining: int(vals[1]),
		ResetTime: vals[2],
	}, nil
}

func (r *RedisRepository) Find(ctx context.Context, key domain.Key) (*domain.Record, error) {
	cmd := r.rdb.HGetAll(ctx, r.recordKey(key))
	fields, err := cmd.Result()
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, nil
	}

	var row redisRecord
	if err := cmd.Scan(&row); err != nil {
		return nil, fmt.Errorf("decode %s: %w", key, err)
	}
	rec := row.toDomain()
	return &rec, nil
}

func (r *RedisRepository) Insert(ctx context.Context, rec domain.Record) error {
	ok, err := insertScript.Run(ctx, r.rdb,
		[]string{r.recordKey(rec.Key()), r.indexKey(rec.Identifier)},
		rec.Identifier,
		rec.Endpoint,
		strconv.Itoa(rec.RequestCount),
		strconv.FormatInt(rec.WindowStart, 10),
		strconv.FormatInt(rec.LastRequest, 10),
		r.ttlArg(),
	).Int()
	if err != nil {
		return err
	}
	if ok == 0 {
		return domain.ErrRecordExists
	}
	return nil
}

func (r *RedisRepository) Update(ctx context.Context, rec domain.Record) error {
	key := r.recordKey(rec.Key())
	idx := r.indexKey(rec.Identifier)

	_, err := r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key,
			"identifier", rec.Identifier,
			"endpoint", rec.Endpoint,
			"requestCount", rec.RequestCount,
			"windowStart", rec.WindowStart,
			"lastRequest", rec.LastRequest,
		)
		pipe.SAdd(ctx, idx, rec.Endpoint)
		if r.recordTTL > 0 {
			pipe.PExpire(ctx, key, r.recordTTL)
			pipe.PExpire(ctx, idx, r.recordTTL)
		}
		return nil
	})
	return err
}

func (r *RedisRepository) ListByIdentifier(ctx context.Context, identifier string) ([]domain.Record, error) {
	endpoints, err := r.rdb.SMembers(ctx, r.indexKey(identifier)).Result()
	if err != nil {
		return nil, err
	}
	if len(endpoints) == 0 {
		return []domain.Record{}, nil
	}

	pipe := r.rdb.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(endpoints))
	for i, ep := range endpoints {
		cmds[i] = pipe.HGetAll(ctx, r.recordKey(domain.Key{Identifier: identifier, Endpoint: ep}))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, err
	}

	out := make([]domain.Record, 0, len(cmds))
	for _, cmd := range cmds {
		if len(cmd.Val()) == 0 {
			// expirou pelo TTL; o membro do set some junto com o próximo sweep
			continue
		}
		var row redisRecord
		if err := cmd.Scan(&row); err != nil {
			return nil, fmt.Errorf("decode record of %s: %w", identifier, err)
		}
		out = append(out, row.toDomain())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Endpoint < out[j].Endpoint })
	return out, nil
}

// DeleteStale percorre as chaves de registro com SCAN, em lotes limitados por
// sweepRate, e apaga as inativas desde antes de cutoff.
func (r *RedisRepository) DeleteStale(ctx context.Context, cutoff int64) (int, error) {
	match := r.recordPrefix() + "*"
	cutoffArg := strconv.FormatInt(cutoff, 10)

	deleted := 0
	var cursor uint64
	for {
		if err := r.sweepRate.Wait(ctx); err != nil {
			return deleted, err
		}

		keys, next, err := r.rdb.Scan(ctx, cursor, match, r.scanCount).Result()
		if err != nil {
			return deleted, fmt.Errorf("scan %s: %w", match, err)
		}
		if pairs, args := r.sweepBatch(keys, cutoffArg); len(pairs) > 0 {
			n, err := sweepScript.Run(ctx, r.rdb, pairs, args...).Int()
			if err != nil {
				return deleted, fmt.Errorf("sweep batch: %w", err)
			}
			deleted += n
		}

		cursor = next
		if cursor == 0 {
			return deleted, nil
		}
	}
}

// sweepBatch monta KEYS e ARGV do sweepScript para um lote do SCAN.
func (r *RedisRepository) sweepBatch(keys []string, cutoffArg string) ([]string, []any) {
	pairs := make([]string, 0, 2*len(keys))
	args := make([]any, 1, len(keys)+1)
	args[0] = cutoffArg
	for _, key := range keys {
		k, ok := r.parseRecordKey(key)
		if !ok {
			continue
		}
		pairs = append(pairs, key, r.indexKey(k.Identifier))
		args = append(args, k.Endpoint)
	}
	return pairs, args
}
