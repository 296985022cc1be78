package domain

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrRateLimited casa (errors.Is) com qualquer *RateLimitError.
	ErrRateLimited = errors.New("rate limit exceeded")
	// ErrStoreUnavailable embrulha falhas do store quando a política é FailClosed.
	ErrStoreUnavailable = errors.New("rate limit store unavailable")
	ErrRecordExists     = errors.New("rate limit record already exists")
	ErrInvalidQuota     = errors.New("invalid quota")
)

const CodeRateLimitExceeded = "RATE_LIMIT_EXCEEDED"

// RateLimitError é a falha tipada entregue ao chamador quando a quota estoura.
// Carrega a informação de retry em formato legível por máquina.
type RateLimitError struct {
	Endpoint  string `json:"endpoint"`
	Remaining int    `json:"remaining"`
	ResetTime int64  `json:"resetTime"`
	// RetryAfterSeconds = ceil((ResetTime - now) / 1000), calculado na criação.
	RetryAfterSeconds int64 `json:"retryAfterSeconds"`
}

// NewRateLimitError monta o erro a partir de uma decisão negada em now (epoch ms).
func NewRateLimitError(endpoint string, d Decision, now int64) *RateLimitError {
	return &RateLimitError{
		Endpoint:          endpoint,
		Remaining:         0,
		ResetTime:         d.ResetTime,
		RetryAfterSeconds: ceilSeconds(d.ResetTime - now),
	}
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("Rate limit exceeded for %s. Try again in %d seconds.", e.Endpoint, e.RetryAfterSeconds)
}

func (e *RateLimitError) Is(target error) bool { return target == ErrRateLimited }

func (e *RateLimitError) Code() string { return CodeRateLimitExceeded }

func (e *RateLimitError) HTTPStatus() int { return http.StatusTooManyRequests }

// AsRateLimitError extrai o *RateLimitError de uma cadeia de erros.
func AsRateLimitError(err error) (*RateLimitError, bool) {
	var rl *RateLimitError
	if errors.As(err, &rl) {
		return rl, true
	}
	return nil, false
}

func ceilSeconds(ms int64) int64 {
	if ms <= 0 {
		return 0
	}
	return (ms + 999) / 1000
}
