package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

type Store struct {
	db   *sqlx.DB
	q    sqlx.ExtContext
	inTx bool
}

// NewStore creates a new database store
func NewStore(databaseURL string) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return NewStoreFromDB(db), nil
}

// NewStoreFromDB wraps an existing connection pool
func NewStoreFromDB(db *sqlx.DB) *Store {
	return &Store{db: db, q: db}
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// GetDB returns the underlying database connection
func (s *Store) GetDB() *sqlx.DB {
	return s.db
}

// Ping checks database connectivity
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// WithTx runs fn inside a transaction. The transaction is committed when fn
// returns nil and rolled back otherwise. Nested calls reuse the outer transaction.
func (s *Store) WithTx(ctx context.Context, fn func(Repository) error) error {
	if s.inTx {
		return fn(s)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&Store{db: s.db, q: tx, inTx: true}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (s *Store) get(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	return sqlx.GetContext(ctx, s.q, dest, query, args...)
}

func (s *Store) selectAll(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	return sqlx.SelectContext(ctx, s.q, dest, query, args...)
}

func (s *Store) exec(ctx context.Context, query string, args ...interface{}) error {
	_, err := s.q.ExecContext(ctx, query, args...)
	return err
}

// findOne runs a single-row query and reports false instead of an error when
// no row matches.
func (s *Store) findOne(ctx context.Context, dest interface{}, query string, args ...interface{}) (bool, error) {
	err := s.get(ctx, dest, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
