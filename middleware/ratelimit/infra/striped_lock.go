package infra

import (
	"context"

	"github.com/spaolacci/murmur3"
)

const defaultStripes = 256

// StripedLocker distribui as chaves em N semáforos (channels de capacidade 1)
// via murmur3. Chaves diferentes podem cair no mesmo stripe; a mesma chave
// sempre cai no mesmo.
type StripedLocker struct {
	stripes []chan struct{}
}

// NewStripedLocker cria o locker com n stripes (n <= 0 usa 256).
func NewStripedLocker(n int) *StripedLocker {
	if n <= 0 {
		n = defaultStripes
	}
	l := &StripedLocker{stripes: make([]chan struct{}, n)}
	for i := range l.stripes {
		l.stripes[i] = make(chan struct{}, 1)
	}
	return l
}

func (l *StripedLocker) Stripes() int { return len(l.stripes) }

func (l *StripedLocker) stripe(key string) chan struct{} {
	return l.stripes[murmur3.Sum64([]byte(key))%uint64(len(l.stripes))]
}

// Acquire implementa domain.KeyLocker.
func (l *StripedLocker) Acquire(ctx context.Context, key string) (func(), bool) {
	sem := l.stripe(key)
	select {
	case sem <- struct{}{}:
		return func() { <-sem }, true
	case <-ctx.Done():
		return nil, false
	}
}
