package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/lattica-im/lattica/wire"
)

// SQLite persists identity mappings in a local sqlite database so
// learned pairings survive restarts.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens (or creates) the mapping database at path. Use
// ":memory:" for an ephemeral store.
func NewSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open mapping database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma %q: %w", pragma, err)
		}
	}

	schema := `
	CREATE TABLE IF NOT EXISTS identity_mappings (
		lid        TEXT PRIMARY KEY,
		phone      TEXT NOT NULL UNIQUE,
		created_at INTEGER NOT NULL DEFAULT (unixepoch())
	);
	CREATE INDEX IF NOT EXISTS idx_mappings_phone ON identity_mappings(phone);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize mapping schema: %w", err)
	}

	return &SQLite{db: db}, nil
}

// Close closes the underlying database.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// LIDForPhone returns the pseudonymous identity mapped to phone, or
// the zero address when unknown.
func (s *SQLite) LIDForPhone(ctx context.Context, phone wire.Address) (wire.Address, error) {
	return s.lookup(ctx, "SELECT lid FROM identity_mappings WHERE phone = ?", phone.Bare().String())
}

// PhoneForLID returns the phone-number identity mapped to lid, or the
// zero address when unknown.
func (s *SQLite) PhoneForLID(ctx context.Context, lid wire.Address) (wire.Address, error) {
	return s.lookup(ctx, "SELECT phone FROM identity_mappings WHERE lid = ?", lid.Bare().String())
}

func (s *SQLite) lookup(ctx context.Context, query, key string) (wire.Address, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, query, key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return wire.Address{}, nil
	}
	if err != nil {
		return wire.Address{}, fmt.Errorf("mapping lookup failed: %w", err)
	}
	addr, err := wire.ParseAddress(raw)
	if err != nil {
		return wire.Address{}, fmt.Errorf("corrupt mapping row %q: %w", raw, err)
	}
	return addr, nil
}

// StorePair records a verified pairing, replacing any previous mapping
// for either side.
func (s *SQLite) StorePair(ctx context.Context, lid, phone wire.Address) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to store identity mapping: %w", err)
	}
	defer tx.Rollback()

	// Drop any row claiming either side so a remap never leaves a
	// stale reverse entry behind (or trips the UNIQUE constraint).
	l, p := lid.Bare().String(), phone.Bare().String()
	if _, err := tx.ExecContext(ctx,
		"DELETE FROM identity_mappings WHERE lid = ? OR phone = ?", l, p); err != nil {
		return fmt.Errorf("failed to store identity mapping: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO identity_mappings (lid, phone) VALUES (?, ?)", l, p); err != nil {
		return fmt.Errorf("failed to store identity mapping: %w", err)
	}
	return tx.Commit()
}
