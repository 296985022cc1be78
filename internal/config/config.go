// Package config carrega a configuração dos binários do gateway.
//
// Fontes, em ordem de precedência:
//  1. variáveis de ambiente (server.listen_addr → SERVER_LISTEN_ADDR)
//  2. config.yaml (opcional: ., ./config, /etc/jobboard-gateway)
//  3. valores padrão
//
// Um .env no diretório atual é carregado antes (godotenv) sem sobrescrever o
// ambiente já definido.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"jobboard-gateway/middleware/ratelimit/domain"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`
	Store     StoreConfig     `mapstructure:"store"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Postgres  PostgresConfig  `mapstructure:"postgres"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Stats     StatsConfig     `mapstructure:"stats"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Admin     AdminConfig     `mapstructure:"admin"`
	CORS      CORSConfig      `mapstructure:"cors"`
}

type ServerConfig struct {
	ListenAddr string `mapstructure:"listen_addr"`
	// ExampleListenAddr é onde cmd/example-server escuta.
	ExampleListenAddr string        `mapstructure:"example_listen_addr"`
	UpstreamURL       string        `mapstructure:"upstream_url"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json ou console
}

// StoreConfig escolhe onde ficam os contadores: memory, redis ou postgres.
type StoreConfig struct {
	Backend string `mapstructure:"backend"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
	// SweepRate em lotes de SCAN por segundo durante a varredura (0 = sem limite).
	SweepRate float64 `mapstructure:"sweep_rate"`
	ScanCount int64   `mapstructure:"scan_count"`
}

type PostgresConfig struct {
	DSN         string `mapstructure:"dsn"`
	MaxConns    int32  `mapstructure:"max_conns"`
	AutoMigrate bool   `mapstructure:"auto_migrate"`
}

type RouteConfig struct {
	Method   string `mapstructure:"method"`
	Pattern  string `mapstructure:"pattern"`
	Endpoint string `mapstructure:"endpoint"`
}

type RateLimitConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	FailurePolicy  string        `mapstructure:"failure_policy"` // fail-open ou fail-closed
	Retention      time.Duration `mapstructure:"retention"`
	SweepEvery     time.Duration `mapstructure:"sweep_every"`
	TrustProxy     bool          `mapstructure:"trust_proxy"`
	OverrideHeader string        `mapstructure:"override_header"`
	AddHeaders     bool          `mapstructure:"add_headers"`
	QuotasFile     string        `mapstructure:"quotas_file"`
	LockStripes    int           `mapstructure:"lock_stripes"`
	// Routes substitui a tabela padrão de rotas do gateway quando não vazio.
	Routes []RouteConfig `mapstructure:"routes"`
}

// Policy devolve a FailurePolicy já validada por Validate.
func (c RateLimitConfig) Policy() domain.FailurePolicy {
	p, _ := domain.ParseFailurePolicy(c.FailurePolicy)
	return p
}

type StatsConfig struct {
	Enabled          bool          `mapstructure:"enabled"`
	Backend          string        `mapstructure:"backend"` // memory ou redis
	Prefix           string        `mapstructure:"prefix"`
	TTL              time.Duration `mapstructure:"ttl"`
	Bucket           string        `mapstructure:"bucket"`
	TrackIdentifiers bool          `mapstructure:"track_identifiers"`
}

type AuthConfig struct {
	// JWTSigningKey habilita a identificação "user:<sub>" por Bearer HS256.
	JWTSigningKey string `mapstructure:"jwt_signing_key"`
}

// AdminConfig controla as rotas administrativas. Elas ficam sob PathPrefix no
// mesmo listener do proxy, então o prefixo não pode colidir com rotas do
// upstream e o token é obrigatório.
type AdminConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	Token      string `mapstructure:"token"`
	PathPrefix string `mapstructure:"path_prefix"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// Load lê .env, config.yaml e o ambiente.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/jobboard-gateway")

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// nome curto herdado do gateway antigo
	_ = v.BindEnv("server.upstream_url", "SERVER_UPSTREAM_URL", "UPSTREAM_URL")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &cfg, nil
}

// Validate checa combinações inválidas antes de montar os componentes.
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case "memory":
	case "redis":
		if strings.TrimSpace(c.Redis.Addr) == "" {
			return errors.New("redis.addr is required when store.backend=redis")
		}
	case "postgres":
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			return errors.New("postgres.dsn is required when store.backend=postgres")
		}
	default:
		return fmt.Errorf("store.backend must be memory, redis or postgres, got %q", c.Store.Backend)
	}

	if _, ok := domain.ParseFailurePolicy(c.RateLimit.FailurePolicy); !ok {
		return fmt.Errorf("ratelimit.failure_policy must be fail-open or fail-closed, got %q", c.RateLimit.FailurePolicy)
	}
	if c.RateLimit.Retention <= 0 {
		return errors.New("ratelimit.retention must be > 0")
	}
	if c.RateLimit.SweepEvery < 0 {
		return errors.New("ratelimit.sweep_every must be >= 0")
	}
	for i, rt := range c.RateLimit.Routes {
		if rt.Method == "" || rt.Pattern == "" || rt.Endpoint == "" {
			return fmt.Errorf("ratelimit.routes[%d]: method, pattern and endpoint are required", i)
		}
	}

	if c.Admin.Enabled {
		if strings.TrimSpace(c.Admin.Token) == "" {
			return errors.New("admin.token is required when admin.enabled=true")
		}
		if !strings.HasPrefix(c.Admin.PathPrefix, "/") || strings.TrimRight(c.Admin.PathPrefix, "/") == "" {
			return fmt.Errorf("admin.path_prefix must be an absolute path other than /, got %q", c.Admin.PathPrefix)
		}
	}

	if c.Stats.Enabled {
		switch c.Stats.Backend {
		case "memory":
		case "redis":
			if strings.TrimSpace(c.Redis.Addr) == "" {
				return errors.New("redis.addr is required when stats.backend=redis")
			}
		default:
			return fmt.Errorf("stats.backend must be memory or redis, got %q", c.Stats.Backend)
		}
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	// Server
	v.SetDefault("server.listen_addr", ":8080")
	v.SetDefault("server.example_listen_addr", ":8081")
	v.SetDefault("server.upstream_url", "")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "10s")

	// Log
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Store
	v.SetDefault("store.backend", "memory")

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.prefix", "ratelimit")
	v.SetDefault("redis.sweep_rate", 50)
	v.SetDefault("redis.scan_count", 500)

	v.SetDefault("postgres.dsn", "")
	v.SetDefault("postgres.max_conns", 10)
	v.SetDefault("postgres.auto_migrate", true)

	// Rate limit
	v.SetDefault("ratelimit.enabled", true)
	v.SetDefault("ratelimit.failure_policy", "fail-open")
	v.SetDefault("ratelimit.retention", "24h")
	v.SetDefault("ratelimit.sweep_every", "1h")
	v.SetDefault("ratelimit.trust_proxy", false)
	v.SetDefault("ratelimit.override_header", "")
	v.SetDefault("ratelimit.add_headers", true)
	v.SetDefault("ratelimit.quotas_file", "")
	v.SetDefault("ratelimit.lock_stripes", 256)

	// Stats
	v.SetDefault("stats.enabled", false)
	v.SetDefault("stats.backend", "memory")
	v.SetDefault("stats.prefix", "ratelimit:stats")
	v.SetDefault("stats.ttl", "24h")
	v.SetDefault("stats.bucket", "minute")
	v.SetDefault("stats.track_identifiers", false)

	v.SetDefault("auth.jwt_signing_key", "")

	v.SetDefault("admin.enabled", false)
	v.SetDefault("admin.token", "")
	v.SetDefault("admin.path_prefix", "/_gateway/admin")

	v.SetDefault("cors.allowed_origins", []string{})
}
