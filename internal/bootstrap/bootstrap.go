// Package bootstrap monta store, stats e Service a partir da configuração.
// É compartilhado por cmd/gateway, cmd/example-server e cmd/ratelimit-sweep.
package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"jobboard-gateway/internal/config"
	"jobboard-gateway/middleware/ratelimit"
	"jobboard-gateway/middleware/ratelimit/application"
	"jobboard-gateway/middleware/ratelimit/domain"
	"jobboard-gateway/middleware/ratelimit/infra"
)

type Components struct {
	Service application.Service
	Repo    domain.RecordRepository
	// Stats é nil quando stats.enabled=false.
	Stats domain.StatsReader
	// Routes é a tabela usada pelo gateway para achar o endpoint lógico.
	Routes ratelimit.RouteTable

	closers []func()
}

// Close libera conexões na ordem inversa de criação.
func (c *Components) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
}

// Build cria os componentes. Em erro, o que já foi aberto é fechado.
func Build(ctx context.Context, cfg *config.Config, logger *zap.Logger) (_ *Components, err error) {
	c := &Components{}
	defer func() {
		if err != nil {
			c.Close()
		}
	}()

	quotas, err := infra.LoadQuotaFile(cfg.RateLimit.QuotasFile)
	if err != nil {
		return nil, err
	}
	routes, err := buildRoutes(cfg.RateLimit.Routes)
	if err != nil {
		return nil, err
	}
	c.Routes = routes

	var rdb *redis.Client
	if cfg.Store.Backend == "redis" || (cfg.Stats.Enabled && cfg.Stats.Backend == "redis") {
		rdb, err = openRedis(ctx, cfg.Redis)
		if err != nil {
			return nil, err
		}
		c.closers = append(c.closers, func() { _ = rdb.Close() })
	}

	var locker domain.KeyLocker
	switch cfg.Store.Backend {
	case "redis":
		c.Repo = infra.NewRedisRepository(rdb,
			infra.WithRedisPrefix(cfg.Redis.Prefix),
			infra.WithRedisRecordTTL(cfg.RateLimit.Retention),
			infra.WithRedisScanCount(cfg.Redis.ScanCount),
			infra.WithRedisSweepRate(cfg.Redis.SweepRate),
		)
	case "postgres":
		pool, err := openPostgres(ctx, cfg.Postgres)
		if err != nil {
			return nil, err
		}
		c.closers = append(c.closers, pool.Close)
		repo := infra.NewPostgresRepository(pool)
		if cfg.Postgres.AutoMigrate {
			if err := repo.Migrate(ctx); err != nil {
				return nil, fmt.Errorf("migrate: %w", err)
			}
		}
		c.Repo = repo
	default:
		c.Repo = infra.NewMemoryRepository()
		locker = infra.NewStripedLocker(cfg.RateLimit.LockStripes)
	}

	var stats domain.StatsStore
	if cfg.Stats.Enabled {
		switch cfg.Stats.Backend {
		case "redis":
			s := infra.NewRedisStatsStore(rdb,
				infra.WithStatsPrefix(cfg.Stats.Prefix),
				infra.WithStatsTTL(cfg.Stats.TTL),
				infra.WithStatsBucket(cfg.Stats.Bucket),
				infra.WithStatsTrackIdentifiers(cfg.Stats.TrackIdentifiers),
			)
			stats, c.Stats = s, s
		default:
			s := infra.NewMemoryStatsStore(infra.WithTrackIdentifiers(cfg.Stats.TrackIdentifiers))
			stats, c.Stats = s, s
		}
	}

	c.Service = application.Service{
		Repo:          c.Repo,
		Quotas:        quotas,
		Locker:        locker,
		Stats:         stats,
		FailurePolicy: cfg.RateLimit.Policy(),
		Retention:     cfg.RateLimit.Retention,
		Logger:        logger.Named("ratelimit"),
	}

	logger.Info("rate limit components ready",
		zap.String("store", cfg.Store.Backend),
		zap.Stringer("failure_policy", c.Service.FailurePolicy),
		zap.Duration("retention", cfg.RateLimit.Retention),
		zap.Int("quotas", len(quotas)),
		zap.Int("routes", len(routes)),
		zap.Bool("stats", cfg.Stats.Enabled),
	)
	return c, nil
}

func buildRoutes(entries []config.RouteConfig) (ratelimit.RouteTable, error) {
	if len(entries) == 0 {
		return ratelimit.DefaultRoutes(), nil
	}
	m := make(map[string]string, len(entries))
	for _, rt := range entries {
		m[rt.Method+" "+rt.Pattern] = rt.Endpoint
	}
	table, err := ratelimit.ParseRoutes(m)
	if err != nil {
		return nil, fmt.Errorf("ratelimit.routes: %w", err)
	}
	return table, nil
}

func openRedis(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Addr, err)
	}
	return rdb, nil
}

func openPostgres(ctx context.Context, cfg config.PostgresConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	return pool, nil
}
