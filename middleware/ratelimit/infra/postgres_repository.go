package infra

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"jobboard-gateway/middleware/ratelimit/domain"
)

// PgxConn é o subconjunto de *pgxpool.Pool (e de pgx.Tx) usado pelo repositório.
type PgxConn interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

const (
	pgCreateTable = `
CREATE TABLE IF NOT EXISTS rate_limit_records (
	identifier    TEXT    NOT NULL,
	endpoint      TEXT    NOT NULL,
	request_count INTEGER NOT NULL CHECK (request_count >= 0),
	window_start  BIGINT  NOT NULL,
	last_request  BIGINT  NOT NULL,
	PRIMARY KEY (identifier, endpoint)
)`
	pgCreateIndex = `CREATE INDEX IF NOT EXISTS rate_limit_records_last_request_idx ON rate_limit_records (last_request)`

	pgSelectOne = `
SELECT identifier, endpoint, request_count, window_start, last_request
FROM rate_limit_records
WHERE identifier = $1 AND endpoint = $2`
	pgSelectForUpdate    = pgSelectOne + ` FOR UPDATE`
	pgSelectByIdentifier = `
SELECT identifier, endpoint, request_count, window_start, last_request
FROM rate_limit_records
WHERE identifier = $1
ORDER BY endpoint`
	pgInsert = `
INSERT INTO rate_limit_records (identifier, endpoint, request_count, window_start, last_request)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (identifier, endpoint) DO NOTHING`
	pgUpdate = `
UPDATE rate_limit_records
SET request_count = $3, window_start = $4, last_request = $5
WHERE identifier = $1 AND endpoint = $2`
	pgDeleteStale = `DELETE FROM rate_limit_records WHERE last_request < $1`
)

// PostgresRepository usa a chave primária (identifier, endpoint) como garantia
// de no máximo um registro por par. Implementa domain.AtomicHitter.
type PostgresRepository struct {
	db PgxConn
}

func NewPostgresRepository(db PgxConn) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Migrate cria tabela e índice se ainda não existirem.
func (p *PostgresRepository) Migrate(ctx context.Context) error {
	if _, err := p.db.Exec(ctx, pgCreateTable); err != nil {
		return fmt.Errorf("create rate_limit_records: %w", err)
	}
	if _, err := p.db.Exec(ctx, pgCreateIndex); err != nil {
		return fmt.Errorf("create rate_limit_records index: %w", err)
	}
	return nil
}

func scanRecord(row pgx.Row) (domain.Record, error) {
	var rec domain.Record
	err := row.Scan(&rec.Identifier, &rec.Endpoint, &rec.RequestCount, &rec.WindowStart, &rec.LastRequest)
	return rec, err
}

func (p *PostgresRepository) Find(ctx context.Context, key domain.Key) (*domain.Record, error) {
	rec, err := scanRecord(p.db.QueryRow(ctx, pgSelectOne, key.Identifier, key.Endpoint))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (p *PostgresRepository) Insert(ctx context.Context, rec domain.Record) error {
	tag, err := p.db.Exec(ctx, pgInsert, rec.Identifier, rec.Endpoint, rec.RequestCount, rec.WindowStart, rec.LastRequest)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrRecordExists
	}
	return nil
}

func (p *PostgresRepository) Update(ctx context.Context, rec domain.Record) error {
	_, err := p.db.Exec(ctx, pgUpdate, rec.Identifier, rec.Endpoint, rec.RequestCount, rec.WindowStart, rec.LastRequest)
	return err
}

func (p *PostgresRepository) ListByIdentifier(ctx context.Context, identifier string) ([]domain.Record, error) {
	rows, err := p.db.Query(ctx, pgSelectByIdentifier, identifier)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Record, error) {
		return scanRecord(row)
	})
}

func (p *PostgresRepository) DeleteStale(ctx context.Context, cutoff int64) (int, error) {
	tag, err := p.db.Exec(ctx, pgDeleteStale, cutoff)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

// Hit implementa domain.AtomicHitter: primeiro tenta o INSERT (chave nova);
// se a chave já existe, trava a linha com SELECT .. FOR UPDATE, aplica
// domain.Evaluate e grava, tudo na mesma transação.
func (p *PostgresRepository) Hit(ctx context.Context, key domain.Key, q domain.Quota, now int64) (domain.Decision, error) {
	var dec domain.Decision
	err := pgx.BeginFunc(ctx, p.db, func(tx pgx.Tx) error {
		fresh, freshDec, _ := domain.Evaluate(nil, key, q, now)
		tag, err := tx.Exec(ctx, pgInsert, fresh.Identifier, fresh.Endpoint, fresh.RequestCount, fresh.WindowStart, fresh.LastRequest)
		if err != nil {
			return fmt.Errorf("insert: %w", err)
		}
		if tag.RowsAffected() == 1 {
			dec = freshDec
			return nil
		}

		rec, err := scanRecord(tx.QueryRow(ctx, pgSelectForUpdate, key.Identifier, key.Endpoint))
		if err != nil {
			return fmt.Errorf("select for update: %w", err)
		}
		next, d, write := domain.Evaluate(&rec, key, q, now)
		if write == domain.WriteUpdate {
			if _, err := tx.Exec(ctx, pgUpdate, next.Identifier, next.Endpoint, next.RequestCount, next.WindowStart, next.LastRequest); err != nil {
				return fmt.Errorf("update: %w", err)
			}
		}
		dec = d
		return nil
	})
	if err != nil {
		return domain.Decision{}, fmt.Errorf("postgres hit %s: %w", key, err)
	}
	return dec, nil
}
