package ratelimit

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"jobboard-gateway/middleware/ratelimit/application"
	"jobboard-gateway/middleware/ratelimit/domain"
	"jobboard-gateway/middleware/requestid"
)

// EndpointFunc resolve o nome lógico do endpoint (chave da tabela de quotas).
type EndpointFunc func(r *http.Request) string

const CodeRateLimitUnavailable = "RATE_LIMIT_UNAVAILABLE"

type Options struct {
	Service application.Service

	// Endpoint fixo; se vazio usa EndpointFn; se ambos vazios, generalQuery.
	Endpoint   string
	EndpointFn EndpointFunc

	// IdentityFn tem precedência; sem ele usa DefaultIdentity(OverrideHeader, TrustProxy, Subject).
	IdentityFn     IdentityFunc
	OverrideHeader string
	TrustProxy     bool
	Subject        SubjectFunc

	AddRateLimitHeaders bool
	Logger              *zap.Logger
}

// rateLimitBody é o corpo do 429.
type rateLimitBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	*domain.RateLimitError
}

// WriteRateLimited responde 429 com Retry-After e o corpo
// {code, message, endpoint, remaining, resetTime, retryAfterSeconds}.
// Handlers que chamam Service.Enforce diretamente usam o mesmo formato.
func WriteRateLimited(w http.ResponseWriter, rl *domain.RateLimitError) {
	w.Header().Set("Retry-After", formatInt64(rl.RetryAfterSeconds))
	writeJSON(w, rl.HTTPStatus(), rateLimitBody{
		Code:           rl.Code(),
		Message:        rl.Error(),
		RateLimitError: rl,
	})
}

func Middleware(opts Options) func(next http.Handler) http.Handler {
	if opts.IdentityFn == nil {
		opts.IdentityFn = DefaultIdentity(opts.OverrideHeader, opts.TrustProxy, opts.Subject)
	}
	endpointOf := func(r *http.Request) string {
		if opts.Endpoint != "" {
			return opts.Endpoint
		}
		if opts.EndpointFn != nil {
			if ep := opts.EndpointFn(r); ep != "" {
				return ep
			}
		}
		return domain.EndpointGeneralQuery
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identifier := opts.IdentityFn(r)
			endpoint := endpointOf(r)

			dec, err := opts.Service.Enforce(r.Context(), endpoint, identifier)

			if opts.AddRateLimitHeaders && dec.Limit > 0 {
				w.Header().Set("X-RateLimit-Limit", formatInt(dec.Limit))
				w.Header().Set("X-RateLimit-Remaining", formatInt(max(dec.Remaining, 0)))
				// epoch em segundos
				w.Header().Set("X-RateLimit-Reset", formatInt64((dec.ResetTime+999)/1000))
			}

			if rl, ok := domain.AsRateLimitError(err); ok {
				WriteRateLimited(w, rl)
				return
			}
			if err != nil {
				logger.Error("rate limit check failed",
					zap.String("request_id", requestid.FromContext(r.Context())),
					zap.String("endpoint", endpoint),
					zap.String("identifier", identifier),
					zap.Error(err),
				)
				if errors.Is(err, domain.ErrStoreUnavailable) {
					writeError(w, http.StatusServiceUnavailable, CodeRateLimitUnavailable, "rate limit store unavailable")
					return
				}
				// ctx cancelado: o cliente já foi embora
				writeError(w, http.StatusServiceUnavailable, CodeRateLimitUnavailable, http.StatusText(http.StatusServiceUnavailable))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
