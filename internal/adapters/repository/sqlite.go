package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3" // registers the sqlite3 driver
)

// SQLiteStore keeps checkpoints in a single SQLite table.
type SQLiteStore struct {
	db   *sqlx.DB
	sb   sq.StatementBuilderType
	opts options
}

// NewSQLiteStore opens (creating if needed) the database at path and
// ensures the checkpoint table exists.
func NewSQLiteStore(ctx context.Context, path string, opts ...Option) (*SQLiteStore, error) {
	db, err := sqlx.ConnectContext(ctx, "sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("connect sqlite %s: %w", path, err)
	}
	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &SQLiteStore{
		db:   db,
		sb:   sq.StatementBuilder.PlaceholderFormat(sq.Question),
		opts: newOptions(opts),
	}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate(ctx context.Context) error {
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		k          TEXT PRIMARY KEY,
		v          BLOB NOT NULL,
		updated_at INTEGER NOT NULL
	)`, s.opts.table)
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create %s table: %w", s.opts.table, err)
	}
	return nil
}

// Load implements Store.
func (s *SQLiteStore) Load(ctx context.Context, key string) ([]byte, error) {
	query, args, err := s.sb.Select("v").From(s.opts.table).Where(sq.Eq{"k": key}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("%w: build query: %w", ErrLoad, err)
	}
	var v []byte
	if err := s.db.GetContext(ctx, &v, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %s: %w", ErrLoad, key, err)
	}
	return v, nil
}

// Save implements Store.
func (s *SQLiteStore) Save(ctx context.Context, key string, blob []byte) error {
	query, args, err := s.sb.Insert(s.opts.table).
		Columns("k", "v", "updated_at").
		Values(key, blob, s.opts.now().UnixMilli()).
		Suffix("ON CONFLICT(k) DO UPDATE SET v = excluded.v, updated_at = excluded.updated_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("%w: build query: %w", ErrSave, err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrSave, key, err)
	}
	return nil
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
