package ratelimit

import (
	"crypto/subtle"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"jobboard-gateway/middleware/ratelimit/application"
	"jobboard-gateway/middleware/ratelimit/domain"
	"jobboard-gateway/middleware/requestid"
)

type AdminOptions struct {
	// Token estático exigido como "Authorization: Bearer <token>". Vazio desliga.
	Token string
	// Stats expõe GET /rate-limits/stats quando não nil.
	Stats domain.StatsReader
	// LogLevel (ex: zap.AtomicLevel) atende GET/PUT /log/level quando não nil.
	LogLevel http.Handler
	Logger   *zap.Logger
}

type statusResponse struct {
	Identifier string         `json:"identifier"`
	Usage      []domain.Usage `json:"usage"`
}

type cleanupResponse struct {
	DeletedRecords int `json:"deletedRecords"`
}

// AdminRoutes monta as rotas administrativas (introspecção e varredura) para
// serem montadas em um prefixo, ex: r.Mount("/_gateway/admin", AdminRoutes(...)).
func AdminRoutes(svc application.Service, opts AdminOptions) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r := chi.NewRouter()
	if opts.Token != "" {
		r.Use(requireToken(opts.Token))
	}

	r.Get("/rate-limits/stats", func(w http.ResponseWriter, req *http.Request) {
		if opts.Stats == nil {
			writeError(w, http.StatusNotFound, "STATS_DISABLED", "rate limit stats are not enabled")
			return
		}
		snap, err := opts.Stats.Snapshot(req.Context())
		if err != nil {
			logger.Error("read rate limit stats", zap.String("request_id", requestid.FromContext(req.Context())), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to read stats")
			return
		}
		writeJSON(w, http.StatusOK, snap)
	})

	r.Post("/rate-limits/cleanup", func(w http.ResponseWriter, req *http.Request) {
		deleted, err := svc.Cleanup(req.Context())
		if err != nil {
			logger.Error("rate limit cleanup failed", zap.String("request_id", requestid.FromContext(req.Context())), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "cleanup failed")
			return
		}
		writeJSON(w, http.StatusOK, cleanupResponse{DeletedRecords: deleted})
	})

	r.Get("/rate-limits/{identifier}", func(w http.ResponseWriter, req *http.Request) {
		// chi casa contra o RawPath quando existe; "user%3A1" chega codificado
		identifier, err := url.PathUnescape(chi.URLParam(req, "identifier"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_IDENTIFIER", "identifier is not a valid path segment")
			return
		}
		if identifier == "" {
			writeError(w, http.StatusBadRequest, "INVALID_IDENTIFIER", "identifier is required")
			return
		}
		usage, err := svc.Status(req.Context(), identifier, req.URL.Query().Get("endpoint"))
		if err != nil {
			logger.Error("rate limit status failed", zap.String("request_id", requestid.FromContext(req.Context())), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to read status")
			return
		}
		if usage == nil {
			usage = []domain.Usage{}
		}
		writeJSON(w, http.StatusOK, statusResponse{Identifier: identifier, Usage: usage})
	})

	if opts.LogLevel != nil {
		r.Method(http.MethodGet, "/log/level", opts.LogLevel)
		r.Method(http.MethodPut, "/log/level", opts.LogLevel)
	}
	return r
}

func requireToken(token string) func(http.Handler) http.Handler {
	want := []byte(token)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			scheme, got, ok := strings.Cut(r.Header.Get("Authorization"), " ")
			if !ok || !strings.EqualFold(scheme, "Bearer") || subtle.ConstantTimeCompare([]byte(strings.TrimSpace(got)), want) != 1 {
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid admin token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
