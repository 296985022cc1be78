package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobboard-gateway/middleware/ratelimit/domain"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.ListenAddr)
	assert.Equal(t, "memory", cfg.Store.Backend)
	assert.Equal(t, 24*time.Hour, cfg.RateLimit.Retention)
	assert.Equal(t, time.Hour, cfg.RateLimit.SweepEvery)
	assert.Equal(t, domain.FailOpen, cfg.RateLimit.Policy())
	assert.Equal(t, 256, cfg.RateLimit.LockStripes)
	assert.True(t, cfg.RateLimit.Enabled)
	assert.Equal(t, ":8081", cfg.Server.ExampleListenAddr)
	assert.False(t, cfg.Admin.Enabled)
	assert.Equal(t, "/_gateway/admin", cfg.Admin.PathPrefix)
}

func TestLoad_AdminRequiresToken(t *testing.T) {
	t.Setenv("ADMIN_ENABLED", "true")
	_, err := Load()
	assert.ErrorContains(t, err, "admin.token")

	t.Setenv("ADMIN_TOKEN", "s3cret")
	t.Setenv("SERVER_EXAMPLE_LISTEN_ADDR", ":9191")
	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.Admin.Enabled)
	assert.Equal(t, ":9191", cfg.Server.ExampleListenAddr)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("STORE_BACKEND", "redis")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("RATELIMIT_FAILURE_POLICY", "fail-closed")
	t.Setenv("RATELIMIT_RETENTION", "48h")
	t.Setenv("UPSTREAM_URL", "http://app:3000")
	t.Setenv("CORS_ALLOWED_ORIGINS", "chrome-extension://abc,https://jobs.example")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "redis", cfg.Store.Backend)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, domain.FailClosed, cfg.RateLimit.Policy())
	assert.Equal(t, 48*time.Hour, cfg.RateLimit.Retention)
	assert.Equal(t, "http://app:3000", cfg.Server.UpstreamURL)
	assert.Equal(t, []string{"chrome-extension://abc", "https://jobs.example"}, cfg.CORS.AllowedOrigins)
}

func TestLoad_RejectsInvalid(t *testing.T) {
	t.Setenv("STORE_BACKEND", "postgres")
	_, err := Load()
	assert.ErrorContains(t, err, "postgres.dsn")
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			Store:     StoreConfig{Backend: "memory"},
			RateLimit: RateLimitConfig{FailurePolicy: "fail-open", Retention: time.Hour},
		}
	}

	cfg := valid()
	require.NoError(t, cfg.Validate())

	cases := map[string]func(*Config){
		"unknown backend":     func(c *Config) { c.Store.Backend = "mongo" },
		"redis without addr":  func(c *Config) { c.Store.Backend = "redis" },
		"bad failure policy":  func(c *Config) { c.RateLimit.FailurePolicy = "maybe" },
		"zero retention":      func(c *Config) { c.RateLimit.Retention = 0 },
		"negative sweep":      func(c *Config) { c.RateLimit.SweepEvery = -time.Second },
		"incomplete route":    func(c *Config) { c.RateLimit.Routes = []RouteConfig{{Method: "POST"}} },
		"redis stats no addr": func(c *Config) { c.Stats = StatsConfig{Enabled: true, Backend: "redis"} },
		"unknown stats store": func(c *Config) { c.Stats = StatsConfig{Enabled: true, Backend: "kafka"} },
		"admin without token": func(c *Config) { c.Admin = AdminConfig{Enabled: true, PathPrefix: "/_gateway/admin"} },
		"admin at root":       func(c *Config) { c.Admin = AdminConfig{Enabled: true, Token: "t", PathPrefix: "/"} },
		"relative admin path": func(c *Config) { c.Admin = AdminConfig{Enabled: true, Token: "t", PathPrefix: "admin"} },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := valid()
			mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
