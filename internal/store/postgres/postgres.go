// Package postgres implements the record store on a PostgreSQL table.
//
// The profiles table mirrors a sheet column pair: row_num is the row number,
// identifier the input cell and last_seen the output cell.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jonathan/lastseen/internal/store"
)

const storeName = "postgres"

// schema creates the profiles table if it does not exist.
const schema = `
CREATE TABLE IF NOT EXISTS profiles (
	row_num    INTEGER PRIMARY KEY,
	identifier TEXT NOT NULL DEFAULT '',
	last_seen  TEXT
)`

// Store wraps a PostgreSQL connection pool
type Store struct {
	pool     *pgxpool.Pool
	startRow int
}

// Connect establishes a connection pool and ensures the schema exists.
// Rejected credentials are returned as *store.AuthError.
func Connect(ctx context.Context, databaseURL string, startRow int) (*Store, error) {
	if startRow < 1 {
		return nil, fmt.Errorf("postgres: start row must be at least 1, got %d", startRow)
	}

	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Verify connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", classify(err))
	}

	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &Store{pool: pool, startRow: startRow}, nil
}

// Close closes the connection pool
func (s *Store) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

// ReadIdentifiers returns identifiers from startRow on, one per row number.
func (s *Store) ReadIdentifiers(ctx context.Context) ([]string, error) {
	rows, err := s.readColumn(ctx, "identifier")
	if err != nil {
		return nil, fmt.Errorf("failed to read identifiers: %w", err)
	}
	return rows, nil
}

// ReadResults returns the stored result strings aligned like ReadIdentifiers.
func (s *Store) ReadResults(ctx context.Context) ([]string, error) {
	rows, err := s.readColumn(ctx, "COALESCE(last_seen, '')")
	if err != nil {
		return nil, fmt.Errorf("failed to read results: %w", err)
	}
	return rows, nil
}

func (s *Store) readColumn(ctx context.Context, column string) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT row_num, `+column+` FROM profiles WHERE row_num >= $1 ORDER BY row_num`,
		s.startRow,
	)
	if err != nil {
		return nil, classify(err)
	}
	collected, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (store.Row, error) {
		var r store.Row
		err := row.Scan(&r.Num, &r.Value)
		return r, err
	})
	if err != nil {
		return nil, classify(err)
	}
	return store.Align(collected, s.startRow)
}

// WriteResults upserts results into last_seen by row in one transaction,
// sent as a single batch.
func (s *Store) WriteResults(ctx context.Context, results []string) error {
	if len(results) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", classify(err))
	}
	defer func() { _ = tx.Rollback(ctx) }()

	batch := &pgx.Batch{}
	for i, r := range results {
		batch.Queue(
			`INSERT INTO profiles (row_num, last_seen) VALUES ($1, $2)
			 ON CONFLICT (row_num) DO UPDATE SET last_seen = EXCLUDED.last_seen`,
			s.startRow+i, r,
		)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to write results: %w", classify(err))
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit results: %w", classify(err))
	}
	return nil
}

// SeedIdentifiers replaces the identifier column, starting at startRow.
// Used to load a roster into an empty database.
func (s *Store) SeedIdentifiers(ctx context.Context, ids []string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", classify(err))
	}
	defer func() { _ = tx.Rollback(ctx) }()

	batch := &pgx.Batch{}
	for i, id := range ids {
		batch.Queue(
			`INSERT INTO profiles (row_num, identifier) VALUES ($1, $2)
			 ON CONFLICT (row_num) DO UPDATE SET identifier = EXCLUDED.identifier`,
			s.startRow+i, id,
		)
	}
	batch.Queue(`DELETE FROM profiles WHERE row_num >= $1`, s.startRow+len(ids))
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to seed identifiers: %w", err)
	}
	return tx.Commit(ctx)
}

// classify marks authentication failures as *store.AuthError.
// 28000 is invalid_authorization_specification, 28P01 invalid_password.
func classify(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && (pgErr.Code == "28000" || pgErr.Code == "28P01") {
		return &store.AuthError{Store: storeName, Cause: err}
	}
	return err
}
