package infra

import (
	"context"
	"sync"

	"jobboard-gateway/middleware/ratelimit/domain"
)

// MemoryStatsStore é uma implementação simples em memória.
// Útil para testes e desenvolvimento.
//
// Não faz expiração e não é indicada para produção.
type MemoryStatsStore struct {
	mu           sync.Mutex
	total        domain.Counters
	byEndpoint   map[string]domain.Counters
	byIdentifier map[string]domain.Counters

	trackIdentifiers bool
}

type MemoryStatsOption func(*MemoryStatsStore)

func WithTrackIdentifiers(track bool) MemoryStatsOption {
	return func(s *MemoryStatsStore) { s.trackIdentifiers = track }
}

func NewMemoryStatsStore(opts ...MemoryStatsOption) *MemoryStatsStore {
	s := &MemoryStatsStore{
		byEndpoint:   make(map[string]domain.Counters),
		byIdentifier: make(map[string]domain.Counters),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func bump(c domain.Counters, allowed bool) domain.Counters {
	if allowed {
		c.Allowed++
	} else {
		c.Denied++
	}
	return c
}

func (s *MemoryStatsStore) Record(_ context.Context, ev domain.StatsEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.total = bump(s.total, ev.Allowed)
	s.byEndpoint[ev.Endpoint] = bump(s.byEndpoint[ev.Endpoint], ev.Allowed)
	if s.trackIdentifiers {
		s.byIdentifier[ev.Identifier] = bump(s.byIdentifier[ev.Identifier], ev.Allowed)
	}
	return nil
}

func (s *MemoryStatsStore) Total() domain.Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total
}

// Snapshot implementa domain.StatsReader.
func (s *MemoryStatsStore) Snapshot(_ context.Context) (domain.StatsSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := domain.StatsSnapshot{
		Total:      s.total,
		ByEndpoint: make(map[string]domain.Counters, len(s.byEndpoint)),
	}
	for k, v := range s.byEndpoint {
		snap.ByEndpoint[k] = v
	}
	if s.trackIdentifiers {
		snap.ByIdentifier = make(map[string]domain.Counters, len(s.byIdentifier))
		for k, v := range s.byIdentifier {
			snap.ByIdentifier[k] = v
		}
	}
	return snap, nil
}
