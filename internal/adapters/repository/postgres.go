package repository

import (
	"context"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Querier is the subset of *pgxpool.Pool the PostgreSQL store uses.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// PostgresStore keeps checkpoints in a PostgreSQL table.
type PostgresStore struct {
	q    Querier
	sb   sq.StatementBuilderType
	opts options
}

// NewPostgresStore connects with dsn, pings the server and creates the
// checkpoint table when missing.
func NewPostgresStore(ctx context.Context, dsn string, opts ...Option) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := NewPostgresStoreWithQuerier(pool, opts...)
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// NewPostgresStoreWithQuerier wraps an existing pool.
func NewPostgresStoreWithQuerier(q Querier, opts ...Option) *PostgresStore {
	return &PostgresStore{
		q:    q,
		sb:   sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
		opts: newOptions(opts),
	}
}

// Migrate creates the checkpoint table if it does not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		k          TEXT PRIMARY KEY,
		v          BYTEA NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`, s.opts.table)
	if _, err := s.q.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("create %s table: %w", s.opts.table, err)
	}
	return nil
}

// Load implements Store.
func (s *PostgresStore) Load(ctx context.Context, key string) ([]byte, error) {
	query, args, err := s.sb.Select("v").From(s.opts.table).Where(sq.Eq{"k": key}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("%w: build query: %w", ErrLoad, err)
	}
	var v []byte
	if err := s.q.QueryRow(ctx, query, args...).Scan(&v); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %s: %w", ErrLoad, key, err)
	}
	return v, nil
}

// Save implements Store.
func (s *PostgresStore) Save(ctx context.Context, key string, blob []byte) error {
	query, args, err := s.sb.Insert(s.opts.table).
		Columns("k", "v", "updated_at").
		Values(key, blob, s.opts.now().UTC()).
		Suffix("ON CONFLICT (k) DO UPDATE SET v = EXCLUDED.v, updated_at = EXCLUDED.updated_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("%w: build query: %w", ErrSave, err)
	}
	if _, err := s.q.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrSave, key, err)
	}
	return nil
}

// Close implements Store.
func (s *PostgresStore) Close() error {
	s.q.Close()
	return nil
}
