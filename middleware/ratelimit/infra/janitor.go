package infra

import (
	"context"
	"errors"
	"time"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"
)

// SweepFunc executa uma varredura e devolve quantos registros apagou.
type SweepFunc func(ctx context.Context) (int, error)

// Janitor roda a varredura de retenção periodicamente.
//
// As execuções passam por um pool ants de tamanho 1 e não bloqueante: se a
// varredura anterior ainda estiver rodando quando o ticker disparar, o tick é
// descartado em vez de empilhar.
type Janitor struct {
	sweep  SweepFunc
	every  time.Duration
	pool   *ants.Pool
	logger *zap.Logger
}

type JanitorOption func(*Janitor)

func WithJanitorLogger(l *zap.Logger) JanitorOption {
	return func(j *Janitor) { j.logger = l }
}

func NewJanitor(sweep SweepFunc, every time.Duration, opts ...JanitorOption) (*Janitor, error) {
	j := &Janitor{
		sweep:  sweep,
		every:  every,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(j)
	}

	pool, err := ants.NewPool(1,
		ants.WithNonblocking(true),
		ants.WithPanicHandler(func(p interface{}) {
			j.logger.Error("rate limit sweep panic recovered", zap.Any("panic", p), zap.Stack("stack"))
		}),
	)
	if err != nil {
		return nil, err
	}
	j.pool = pool
	return j, nil
}

// Trigger agenda uma varredura agora. Retorna false se já houver uma em andamento.
func (j *Janitor) Trigger(ctx context.Context) bool {
	err := j.pool.Submit(func() {
		deleted, err := j.sweep(ctx)
		if err != nil {
			j.logger.Error("rate limit sweep failed", zap.Error(err))
			return
		}
		j.logger.Debug("rate limit sweep finished", zap.Int("deleted_records", deleted))
	})
	if errors.Is(err, ants.ErrPoolOverload) {
		j.logger.Warn("rate limit sweep still running, skipping tick")
		return false
	}
	if err != nil {
		j.logger.Error("rate limit sweep submit failed", zap.Error(err))
		return false
	}
	return true
}

// Run dispara a varredura a cada intervalo até o ctx encerrar.
// Bloqueia; use em uma goroutine (ou errgroup).
func (j *Janitor) Run(ctx context.Context) error {
	if j.every <= 0 {
		<-ctx.Done()
		return nil
	}

	t := time.NewTicker(j.every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			j.Trigger(ctx)
		}
	}
}

// Close espera a varredura em andamento terminar (até timeout).
func (j *Janitor) Close(timeout time.Duration) error {
	return j.pool.ReleaseTimeout(timeout)
}
