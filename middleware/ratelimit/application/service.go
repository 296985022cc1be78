package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"jobboard-gateway/middleware/ratelimit/domain"
)

// DefaultRetention é o horizonte da varredura: registros sem requisição há mais
// de 24h são apagados.
const DefaultRetention = 24 * time.Hour

// Service concentra a regra de aplicação do rate limit.
//
// Ele não sabe nada sobre HTTP (headers/status), apenas retorna uma decisão.
type Service struct {
	Repo   domain.RecordRepository
	Quotas domain.QuotaTable
	// Locker serializa ler-decidir-escrever por chave quando o Repo não é
	// AtomicHitter. Nil reproduz a corrida de read-modify-write.
	Locker        domain.KeyLocker
	Stats         domain.StatsStore
	FailurePolicy domain.FailurePolicy
	Retention     time.Duration
	Now           func() time.Time
	Logger        *zap.Logger
}

func (s Service) now() int64 {
	if s.Now == nil {
		return time.Now().UnixMilli()
	}
	return s.Now().UnixMilli()
}

func (s Service) log() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}

func (s Service) quotas() domain.QuotaTable {
	if s.Quotas == nil {
		return domain.DefaultQuotas()
	}
	return s.Quotas
}

// Check decide se a requisição de identifier em endpoint pode seguir.
// Não retorna erro por negação; só por falha de store (com FailClosed) ou ctx.
func (s Service) Check(ctx context.Context, endpoint, identifier string) (domain.Decision, error) {
	q := s.quotas().Resolve(endpoint)
	now := s.now()
	key := domain.Key{Identifier: identifier, Endpoint: endpoint}

	if s.Repo == nil {
		return domain.Decision{Allowed: true, Limit: q.MaxRequests, Remaining: q.MaxRequests, ResetTime: now + q.WindowMs()}, nil
	}

	var (
		dec domain.Decision
		err error
	)
	if hitter, ok := s.Repo.(domain.AtomicHitter); ok {
		dec, err = hitter.Hit(ctx, key, q, now)
	} else {
		dec, err = s.readModifyWrite(ctx, key, q, now)
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return domain.Decision{}, ctxErr
		}
		return s.storeFailure(key, q, now, err)
	}

	s.record(ctx, key, dec.Allowed)
	if !dec.Allowed {
		s.log().Warn("rate limit exceeded",
			zap.String("endpoint", endpoint),
			zap.String("identifier", identifier),
			zap.Int64("reset_time", dec.ResetTime),
		)
	} else {
		s.log().Debug("rate limit check",
			zap.String("endpoint", endpoint),
			zap.String("identifier", identifier),
			zap.Int("remaining", dec.Remaining),
		)
	}
	return dec, nil
}

func (s Service) readModifyWrite(ctx context.Context, key domain.Key, q domain.Quota, now int64) (domain.Decision, error) {
	if s.Locker != nil {
		release, ok := s.Locker.Acquire(ctx, key.String())
		if !ok {
			return domain.Decision{}, fmt.Errorf("acquire lock for %s: %w", key, context.Cause(ctx))
		}
		defer release()
	}

	// Uma segunda passada cobre o caso de duas primeiras requisições
	// disputando o Insert da mesma chave.
	for attempt := 0; ; attempt++ {
		rec, err := s.Repo.Find(ctx, key)
		if err != nil {
			return domain.Decision{}, fmt.Errorf("find %s: %w", key, err)
		}

		next, dec, write := domain.Evaluate(rec, key, q, now)
		switch write {
		case domain.WriteInsert:
			err = s.Repo.Insert(ctx, next)
			if errors.Is(err, domain.ErrRecordExists) && attempt == 0 {
				continue
			}
			if err != nil {
				return domain.Decision{}, fmt.Errorf("insert %s: %w", key, err)
			}
		case domain.WriteUpdate:
			if err := s.Repo.Update(ctx, next); err != nil {
				return domain.Decision{}, fmt.Errorf("update %s: %w", key, err)
			}
		}
		return dec, nil
	}
}

func (s Service) storeFailure(key domain.Key, q domain.Quota, now int64, err error) (domain.Decision, error) {
	s.log().Error("rate limit store failure",
		zap.String("endpoint", key.Endpoint),
		zap.String("identifier", key.Identifier),
		zap.Stringer("policy", s.FailurePolicy),
		zap.Error(err),
	)
	if s.FailurePolicy == domain.FailClosed {
		return domain.Decision{}, fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, err)
	}
	return domain.Decision{Allowed: true, Limit: q.MaxRequests, Remaining: q.MaxRequests - 1, ResetTime: now + q.WindowMs()}, nil
}

func (s Service) record(ctx context.Context, key domain.Key, allowed bool) {
	if s.Stats == nil {
		return
	}
	ev := domain.StatsEvent{
		Identifier: key.Identifier,
		Endpoint:   key.Endpoint,
		Allowed:    allowed,
		At:         time.UnixMilli(s.now()),
	}
	if err := s.Stats.Record(ctx, ev); err != nil {
		s.log().Debug("rate limit stats record failed", zap.Error(err))
	}
}

// Enforce roda Check e converte a negação em *domain.RateLimitError.
// Handlers devem chamá-lo antes de qualquer efeito colateral.
func (s Service) Enforce(ctx context.Context, endpoint, identifier string) (domain.Decision, error) {
	dec, err := s.Check(ctx, endpoint, identifier)
	if err != nil {
		return dec, err
	}
	if !dec.Allowed {
		return dec, domain.NewRateLimitError(endpoint, dec, s.now())
	}
	return dec, nil
}

// Status projeta o consumo atual de identifier sem alterar nada no store.
// endpoint vazio lista todos os endpoints com registro.
func (s Service) Status(ctx context.Context, identifier, endpoint string) ([]domain.Usage, error) {
	if s.Repo == nil {
		return nil, nil
	}

	var records []domain.Record
	if endpoint != "" {
		rec, err := s.Repo.Find(ctx, domain.Key{Identifier: identifier, Endpoint: endpoint})
		if err != nil {
			return nil, fmt.Errorf("find status for %s: %w", identifier, err)
		}
		if rec != nil {
			records = append(records, *rec)
		}
	} else {
		all, err := s.Repo.ListByIdentifier(ctx, identifier)
		if err != nil {
			return nil, fmt.Errorf("list status for %s: %w", identifier, err)
		}
		records = all
	}

	now := s.now()
	table := s.quotas()
	out := make([]domain.Usage, 0, len(records))
	for _, rec := range records {
		out = append(out, domain.Project(rec, table.Resolve(rec.Endpoint), now))
	}
	return out, nil
}

// Cleanup apaga registros cujo LastRequest é mais antigo que now - Retention.
// É idempotente e pode rodar junto com Check.
func (s Service) Cleanup(ctx context.Context) (int, error) {
	if s.Repo == nil {
		return 0, nil
	}
	retention := s.Retention
	if retention <= 0 {
		retention = DefaultRetention
	}

	now := s.now()
	cutoff := now - retention.Milliseconds()
	deleted, err := s.Repo.DeleteStale(ctx, cutoff)
	if err != nil {
		return deleted, fmt.Errorf("delete records idle since %s: %w", time.UnixMilli(cutoff).UTC().Format(time.RFC3339), err)
	}

	s.log().Info("rate limit cleanup completed",
		zap.Int("deleted_records", deleted),
		zap.String("cutoff", time.UnixMilli(cutoff).UTC().Format(time.RFC3339)),
		zap.Duration("retention", retention),
	)
	return deleted, nil
}
