package infra

import (
	"context"
	"sort"
	"sync"

	"jobboard-gateway/middleware/ratelimit/domain"
)

// MemoryRepository guarda os registros em um map protegido por mutex.
// Útil para testes e deploys de processo único; não compartilha estado entre réplicas.
type MemoryRepository struct {
	mu      sync.Mutex
	records map[domain.Key]domain.Record
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{records: make(map[domain.Key]domain.Record)}
}

func (m *MemoryRepository) Find(_ context.Context, key domain.Key) (*domain.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[key]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (m *MemoryRepository) Insert(_ context.Context, rec domain.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.records[rec.Key()]; ok {
		return domain.ErrRecordExists
	}
	m.records[rec.Key()] = rec
	return nil
}

func (m *MemoryRepository) Update(_ context.Context, rec domain.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.records[rec.Key()] = rec
	return nil
}

func (m *MemoryRepository) ListByIdentifier(_ context.Context, identifier string) ([]domain.Record, error) {
	m.mu.Lock()
	out := make([]domain.Record, 0)
	for k, rec := range m.records {
		if k.Identifier == identifier {
			out = append(out, rec)
		}
	}
	m.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Endpoint < out[j].Endpoint })
	return out, nil
}

func (m *MemoryRepository) DeleteStale(_ context.Context, cutoff int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	deleted := 0
	for k, rec := range m.records {
		if rec.LastRequest < cutoff {
			delete(m.records, k)
			deleted++
		}
	}
	return deleted, nil
}

func (m *MemoryRepository) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}
