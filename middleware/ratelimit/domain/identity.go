package domain

import "strings"

const UnknownIdentifier = "ip:unknown"

// RequestIdentity é o que o contexto da requisição expõe para identificar o cliente.
// Campos vazios significam "ausente".
type RequestIdentity struct {
	AuthenticatedSubjectID string
	ForwardedFor           string
	RealIP                 string
}

// DeriveIdentifier: "user:<id>" se autenticado, senão "ip:<addr>" a partir dos
// headers do proxy (primeiro IP do X-Forwarded-For, depois X-Real-IP), senão
// "ip:unknown". Nunca falha.
func DeriveIdentifier(id RequestIdentity) string {
	if sub := strings.TrimSpace(id.AuthenticatedSubjectID); sub != "" {
		return "user:" + sub
	}
	if ip := firstForwarded(id.ForwardedFor); ip != "" {
		return "ip:" + ip
	}
	if ip := strings.TrimSpace(id.RealIP); ip != "" {
		return "ip:" + ip
	}
	return UnknownIdentifier
}

// ResolveIdentifier dá precedência a um identificador explícito do chamador
// (ex: id da instância da extensão) sobre a derivação.
func ResolveIdentifier(override string, id RequestIdentity) string {
	if v := strings.TrimSpace(override); v != "" {
		return v
	}
	return DeriveIdentifier(id)
}

func firstForwarded(xff string) string {
	if xff == "" {
		return ""
	}
	first, _, _ := strings.Cut(xff, ",")
	return strings.TrimSpace(first)
}
