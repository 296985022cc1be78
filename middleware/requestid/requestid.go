// Package requestid propaga um id por requisição (header X-Request-ID) para
// logs do gateway e do upstream.
package requestid

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

// Header é o header HTTP usado para rastrear a requisição.
const Header = "X-Request-ID"

type ctxKey string

const ctxKeyRequestID ctxKey = "request_id"

// Middleware reaproveita o X-Request-ID recebido ou gera um UUIDv7, grava no
// contexto, no header da resposta e no header da requisição (para o upstream).
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rid := strings.TrimSpace(r.Header.Get(Header))
		if rid == "" {
			id, err := uuid.NewV7()
			if err != nil {
				id = uuid.New()
			}
			rid = id.String()
		}
		r.Header.Set(Header, rid)
		w.Header().Set(Header, rid)
		next.ServeHTTP(w, r.WithContext(WithID(r.Context(), rid)))
	})
}

func WithID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKeyRequestID, id)
}

// FromContext devolve o id da requisição ou "".
func FromContext(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKeyRequestID).(string); ok {
		return v
	}
	return ""
}
