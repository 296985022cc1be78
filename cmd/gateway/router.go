package main

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"jobboard-gateway/internal/bootstrap"
	"jobboard-gateway/internal/config"
	"jobboard-gateway/middleware/ratelimit"
	"jobboard-gateway/middleware/requestid"
)

// newRouter monta o handler do gateway. As rotas administrativas ficam sob
// cfg.Admin.PathPrefix; todo o resto vai para upstream, passando pelo rate limit.
func newRouter(cfg *config.Config, comps *bootstrap.Components, upstream, logLevel http.Handler, log *zap.Logger) http.Handler {
	var subject ratelimit.SubjectFunc = ratelimit.ContextSubject
	if cfg.Auth.JWTSigningKey != "" {
		subject = ratelimit.FirstSubject(ratelimit.ContextSubject, ratelimit.BearerSubject([]byte(cfg.Auth.JWTSigningKey)))
	}

	r := chi.NewRouter()
	r.Use(requestid.Middleware)
	if len(cfg.CORS.AllowedOrigins) > 0 {
		allowedHeaders := []string{"Accept", "Authorization", "Content-Type", requestid.Header}
		if cfg.RateLimit.OverrideHeader != "" {
			allowedHeaders = append(allowedHeaders, cfg.RateLimit.OverrideHeader)
		}
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: cfg.CORS.AllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
			AllowedHeaders: allowedHeaders,
			ExposedHeaders: []string{"Retry-After", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", requestid.Header},
			MaxAge:         300,
		}))
	}

	// Validate garante token e prefixo quando habilitado
	if cfg.Admin.Enabled && cfg.Admin.Token != "" {
		r.Mount(strings.TrimRight(cfg.Admin.PathPrefix, "/"), ratelimit.AdminRoutes(comps.Service, ratelimit.AdminOptions{
			Token:    cfg.Admin.Token,
			Stats:    comps.Stats,
			LogLevel: logLevel,
			Logger:   log,
		}))
	}

	if cfg.RateLimit.Enabled {
		upstream = ratelimit.Middleware(ratelimit.Options{
			Service:             comps.Service,
			EndpointFn:          comps.Routes.Endpoint,
			OverrideHeader:      cfg.RateLimit.OverrideHeader,
			TrustProxy:          cfg.RateLimit.TrustProxy,
			Subject:             subject,
			AddRateLimitHeaders: cfg.RateLimit.AddHeaders,
			Logger:              log,
		})(upstream)
	}
	r.Handle("/*", upstream)
	return r
}
