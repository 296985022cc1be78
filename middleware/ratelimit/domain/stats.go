package domain

import (
	"context"
	"time"
)

// StatsEvent representa uma decisão do rate limit.
//
// Observação: cuidado com cardinalidade (ex.: salvar Identifier sem controle pode
// explodir o número de chaves em uma base como Redis).
type StatsEvent struct {
	Identifier string
	Endpoint   string
	Allowed    bool

	At time.Time
}

// StatsStore é a estratégia de persistência para estatísticas do rate limit.
//
// Implementações podem armazenar em Redis, memória, etc.
// Quem chama deve tratar erro como best-effort (não derrubar a requisição).
type StatsStore interface {
	Record(ctx context.Context, ev StatsEvent) error
}

type Counters struct {
	Allowed int64 `json:"allowed"`
	Denied  int64 `json:"denied"`
}

// StatsSnapshot é o retrato exposto pelo endpoint administrativo.
type StatsSnapshot struct {
	Total        Counters            `json:"total"`
	ByEndpoint   map[string]Counters `json:"byEndpoint"`
	ByIdentifier map[string]Counters `json:"byIdentifier,omitempty"`
}

// StatsReader é implementado por stores que conseguem devolver um snapshot.
type StatsReader interface {
	Snapshot(ctx context.Context) (StatsSnapshot, error)
}
