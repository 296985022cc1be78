package domain

// Write diz ao chamador qual escrita Evaluate exige no store.
type Write int

const (
	WriteNone Write = iota
	WriteInsert
	WriteUpdate
)

// Evaluate aplica o contador de janela fixa com reset na expiração.
//
// rec == nil significa que a chave nunca foi vista. A janela expira quando
// rec.WindowStart < now - windowMs; nesse caso o mesmo registro é sobrescrito
// (count=1, windowStart=now). Negação não altera o registro.
//
// No caminho de incremento o Remaining é calculado a partir do contador
// anterior ao incremento: maxRequests - count - 1.
func Evaluate(rec *Record, key Key, q Quota, now int64) (Record, Decision, Write) {
	windowMs := q.WindowMs()
	cutoff := now - windowMs

	fresh := Record{
		Identifier:   key.Identifier,
		Endpoint:     key.Endpoint,
		RequestCount: 1,
		WindowStart:  now,
		LastRequest:  now,
	}
	freshDecision := Decision{
		Allowed:   true,
		Limit:     q.MaxRequests,
		Remaining: q.MaxRequests - 1,
		ResetTime: now + windowMs,
	}

	if rec == nil {
		return fresh, freshDecision, WriteInsert
	}
	if rec.WindowStart < cutoff {
		return fresh, freshDecision, WriteUpdate
	}

	resetTime := rec.WindowStart + windowMs
	if rec.RequestCount >= q.MaxRequests {
		return *rec, Decision{Allowed: false, Limit: q.MaxRequests, Remaining: 0, ResetTime: resetTime}, WriteNone
	}

	next := *rec
	next.RequestCount = rec.RequestCount + 1
	next.LastRequest = now
	return next, Decision{
		Allowed:   true,
		Limit:     q.MaxRequests,
		Remaining: q.MaxRequests - rec.RequestCount - 1,
		ResetTime: resetTime,
	}, WriteUpdate
}

// Usage é a projeção somente-leitura de um registro (introspecção de status).
type Usage struct {
	Identifier   string `json:"identifier"`
	Endpoint     string `json:"endpoint"`
	Description  string `json:"description,omitempty"`
	MaxRequests  int    `json:"maxRequests"`
	WindowMs     int64  `json:"windowMs"`
	RequestCount int    `json:"requestCount"`
	Remaining    int    `json:"remaining"`
	ResetTime    int64  `json:"resetTime"`
	Expired      bool   `json:"expired"`
}

// Project calcula o consumo atual sem executar reset nem incremento.
// Janela expirada é reportada como se o registro não existisse.
func Project(rec Record, q Quota, now int64) Usage {
	windowMs := q.WindowMs()
	u := Usage{
		Identifier:  rec.Identifier,
		Endpoint:    rec.Endpoint,
		Description: q.Description,
		MaxRequests: q.MaxRequests,
		WindowMs:    windowMs,
	}
	if rec.WindowStart < now-windowMs {
		u.Expired = true
		u.RequestCount = 0
		u.Remaining = q.MaxRequests
		u.ResetTime = now + windowMs
		return u
	}
	u.RequestCount = rec.RequestCount
	u.Remaining = q.MaxRequests - rec.RequestCount
	if u.Remaining < 0 {
		u.Remaining = 0
	}
	u.ResetTime = rec.WindowStart + windowMs
	return u
}
