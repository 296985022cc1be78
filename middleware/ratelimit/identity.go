package ratelimit

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"jobboard-gateway/middleware/ratelimit/domain"
)

// IdentityFunc devolve o identificador de rate limit da requisição.
type IdentityFunc func(r *http.Request) string

// SubjectFunc devolve o id do usuário autenticado, ou "" se anônimo.
type SubjectFunc func(r *http.Request) string

// OverridePrefix é aplicado ao valor do header de override (ex: id da instância
// da extensão), para não colidir com "user:" e "ip:".
const OverridePrefix = "client:"

type ctxKey string

const ctxKeySubject ctxKey = "ratelimit_subject"

// WithSubject grava o usuário autenticado no contexto (para middlewares de auth
// que rodam antes do rate limit).
func WithSubject(ctx context.Context, subject string) context.Context {
	return context.WithValue(ctx, ctxKeySubject, subject)
}

func SubjectFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKeySubject).(string); ok {
		return v
	}
	return ""
}

// ContextSubject lê o subject gravado por WithSubject.
func ContextSubject(r *http.Request) string { return SubjectFromContext(r.Context()) }

// BearerSubject extrai o claim "sub" de um JWT HS256 no header Authorization.
// Token ausente ou inválido vira "" (a requisição cai na identificação por IP);
// autenticar não é papel do rate limit.
func BearerSubject(signingKey []byte) SubjectFunc {
	return func(r *http.Request) string {
		authHeader := r.Header.Get("Authorization")
		scheme, tokenString, ok := strings.Cut(authHeader, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") {
			return ""
		}

		token, err := jwt.ParseWithClaims(strings.TrimSpace(tokenString), &jwt.RegisteredClaims{}, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return signingKey, nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		if err != nil || !token.Valid {
			return ""
		}
		sub, err := token.Claims.GetSubject()
		if err != nil {
			return ""
		}
		return sub
	}
}

// FirstSubject devolve o primeiro subject não vazio entre fns.
func FirstSubject(fns ...SubjectFunc) SubjectFunc {
	return func(r *http.Request) string {
		for _, fn := range fns {
			if fn == nil {
				continue
			}
			if sub := fn(r); sub != "" {
				return sub
			}
		}
		return ""
	}
}

// DefaultIdentity monta o identificador na ordem:
//
//  1. header de override (overrideHeader), como "client:<valor>"
//  2. usuário autenticado (subject), como "user:<id>"
//  3. X-Forwarded-For / X-Real-IP, só com trustProxy
//  4. endereço da conexão (RemoteAddr), sem trustProxy
//  5. "ip:unknown"
func DefaultIdentity(overrideHeader string, trustProxy bool, subject SubjectFunc) IdentityFunc {
	return func(r *http.Request) string {
		var override string
		if overrideHeader != "" {
			if v := strings.TrimSpace(r.Header.Get(overrideHeader)); v != "" {
				override = OverridePrefix + v
			}
		}

		id := domain.RequestIdentity{}
		if subject != nil {
			id.AuthenticatedSubjectID = subject(r)
		}
		if trustProxy {
			id.ForwardedFor = r.Header.Get("X-Forwarded-For")
			id.RealIP = r.Header.Get("X-Real-IP")
		} else {
			id.RealIP = remoteHost(r.RemoteAddr)
		}
		return domain.ResolveIdentifier(override, id)
	}
}

func remoteHost(addr string) string {
	addr = strings.TrimSpace(addr)
	host, _, err := net.SplitHostPort(addr)
	if err == nil {
		return host
	}
	return addr
}
