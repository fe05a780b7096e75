// Package sqlite implements the record store on a local SQLite database,
// for running without a spreadsheet.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/jonathan/lastseen/internal/store"
)

// Store implements store.RecordStore for SQLite.
type Store struct {
	db       *sql.DB
	path     string
	startRow int
}

// New opens the database file and runs migrations.
func New(ctx context.Context, dataSourceName string, startRow int) (*Store, error) {
	if startRow < 1 {
		return nil, fmt.Errorf("sqlite: start row must be at least 1, got %d", startRow)
	}

	db, err := sql.Open("sqlite", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("unable to open sqlite database: %w", err)
	}
	// A single connection keeps :memory: databases shared and writes serialized.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}
	s := &Store{db: db, path: dataSourceName, startRow: startRow}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return s, nil
}

// Path returns the data source the store was opened with.
func (s *Store) Path() string { return s.path }

// Close closes the database connection.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS profiles (
	row_num    INTEGER PRIMARY KEY,
	identifier TEXT NOT NULL DEFAULT '',
	last_seen  TEXT
)`)
	return err
}

// ReadIdentifiers returns identifiers from startRow on, one per row number.
func (s *Store) ReadIdentifiers(ctx context.Context) ([]string, error) {
	ids, err := s.readColumn(ctx, "identifier")
	if err != nil {
		return nil, fmt.Errorf("failed to read identifiers: %w", err)
	}
	return ids, nil
}

// ReadResults returns the stored result strings aligned like ReadIdentifiers.
func (s *Store) ReadResults(ctx context.Context) ([]string, error) {
	results, err := s.readColumn(ctx, "COALESCE(last_seen, '')")
	if err != nil {
		return nil, fmt.Errorf("failed to read results: %w", err)
	}
	return results, nil
}

func (s *Store) readColumn(ctx context.Context, column string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT row_num, `+column+` FROM profiles WHERE row_num >= ? ORDER BY row_num`,
		s.startRow,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var collected []store.Row
	for rows.Next() {
		var r store.Row
		if err := rows.Scan(&r.Num, &r.Value); err != nil {
			return nil, err
		}
		collected = append(collected, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return store.Align(collected, s.startRow)
}

// WriteResults upserts results into last_seen by row in one transaction.
func (s *Store) WriteResults(ctx context.Context, results []string) error {
	if len(results) == 0 {
		return nil
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO profiles (row_num, last_seen) VALUES (?, ?)
			 ON CONFLICT (row_num) DO UPDATE SET last_seen = excluded.last_seen`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for i, r := range results {
			if _, err := stmt.ExecContext(ctx, s.startRow+i, r); err != nil {
				return fmt.Errorf("failed to write row %d: %w", s.startRow+i, err)
			}
		}
		return nil
	})
}

// SeedIdentifiers replaces the identifier column, starting at startRow.
func (s *Store) SeedIdentifiers(ctx context.Context, ids []string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO profiles (row_num, identifier) VALUES (?, ?)
			 ON CONFLICT (row_num) DO UPDATE SET identifier = excluded.identifier`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for i, id := range ids {
			if _, err := stmt.ExecContext(ctx, s.startRow+i, id); err != nil {
				return fmt.Errorf("failed to seed row %d: %w", s.startRow+i, err)
			}
		}
		_, err = tx.ExecContext(ctx, `DELETE FROM profiles WHERE row_num >= ?`, s.startRow+len(ids))
		return err
	})
}

func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}
