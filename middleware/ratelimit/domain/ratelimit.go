package domain

// Camada de domínio do rate limit.
//
// Regras e contratos (interfaces/tipos) sem dependência de net/http.

import (
	"context"
	"time"
)

// Key identifica de forma única um contador: um cliente em um endpoint lógico.
type Key struct {
	Identifier string
	Endpoint   string
}

func (k Key) String() string { return k.Endpoint + ":" + k.Identifier }

// Record é a única entidade persistida. Existe no máximo um por Key.
// Timestamps em milissegundos desde epoch.
type Record struct {
	Identifier   string
	Endpoint     string
	RequestCount int
	WindowStart  int64
	LastRequest  int64
}

func (r Record) Key() Key { return Key{Identifier: r.Identifier, Endpoint: r.Endpoint} }

type Decision struct {
	Allowed bool
	// Limit é o maxRequests da quota aplicada.
	Limit     int
	Remaining int
	// ResetTime em epoch ms: quando o cliente pode tentar de novo com janela limpa.
	ResetTime int64
}

func (d Decision) ResetAt() time.Time { return time.UnixMilli(d.ResetTime) }

// RecordRepository é a estratégia de persistência dos contadores.
//
// Find retorna (nil, nil) quando não existe registro para a chave.
// Insert retorna ErrRecordExists se a chave já existir.
type RecordRepository interface {
	Find(ctx context.Context, key Key) (*Record, error)
	Insert(ctx context.Context, rec Record) error
	Update(ctx context.Context, rec Record) error
	ListByIdentifier(ctx context.Context, identifier string) ([]Record, error)
	// DeleteStale remove registros com LastRequest < cutoff (epoch ms).
	DeleteStale(ctx context.Context, cutoff int64) (int, error)
}

// AtomicHitter é implementado por stores capazes de executar Evaluate de forma
// atômica (script no Redis, lock de linha no Postgres).
type AtomicHitter interface {
	Hit(ctx context.Context, key Key, q Quota, now int64) (Decision, error)
}

// KeyLocker serializa o ciclo ler-decidir-escrever de uma mesma chave.
//
// Acquire bloqueia até conseguir o lock ou até o ctx encerrar.
// Ao adquirir, retorna uma função de release que deve ser chamada exatamente uma vez.
type KeyLocker interface {
	Acquire(ctx context.Context, key string) (release func(), ok bool)
}

// FailurePolicy define o que fazer quando o store falha.
type FailurePolicy int

const (
	// FailOpen permite a requisição e registra o erro.
	FailOpen FailurePolicy = iota
	// FailClosed propaga o erro (ErrStoreUnavailable) para o chamador.
	FailClosed
)

func (p FailurePolicy) String() string {
	if p == FailClosed {
		return "fail-closed"
	}
	return "fail-open"
}

// ParseFailurePolicy aceita "open"/"fail-open" e "closed"/"fail-closed".
func ParseFailurePolicy(s string) (FailurePolicy, bool) {
	switch s {
	case "", "open", "fail-open":
		return FailOpen, true
	case "closed", "fail-closed":
		return FailClosed, true
	}
	return FailOpen, false
}
