// Package sessions implements the cryptographic session repository the
// resolver decrypts against: pairwise sessions established by pre-key
// messages and per-group sender keys, persisted in sqlite.
package sessions

import (
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/crypto/curve25519"
	_ "modernc.org/sqlite"

	"github.com/lattica-im/lattica/wire"
)

// Missing-state errors. Their texts are matched by the resolver's
// no-session detection, so callers can decide to rebuild state and
// re-request the message.
var (
	ErrNoSession   = errors.New("no session record")
	ErrNoSenderKey = errors.New("no sender key")
)

// Store holds the local account's identity key, its pairwise sessions
// and the sender keys it has learned. Safe for concurrent use.
type Store struct {
	db   *sql.DB
	self wire.Address

	identityPriv []byte
	identityPub  []byte

	mu sync.Mutex
}

// New opens (or creates) the session database at path for the local
// account self. A fresh database generates and persists a new identity
// keypair. Use ":memory:" for an ephemeral store.
func New(path string, self wire.Address) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open session database: %w", err)
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
	CREATE TABLE IF NOT EXISTS identity (
		id          INTEGER PRIMARY KEY CHECK (id = 1),
		private_key BLOB NOT NULL,
		public_key  BLOB NOT NULL
	);

	CREATE TABLE IF NOT EXISTS pairwise_sessions (
		peer       TEXT PRIMARY KEY,
		chain_key  BLOB NOT NULL,
		counter    INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL DEFAULT (unixepoch())
	);

	CREATE TABLE IF NOT EXISTS sender_keys (
		group_addr  TEXT NOT NULL,
		author      TEXT NOT NULL,
		key_id      INTEGER NOT NULL,
		chain_key   BLOB NOT NULL,
		signing_key BLOB,
		created_at  INTEGER NOT NULL DEFAULT (unixepoch()),
		PRIMARY KEY (group_addr, author)
	);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize session schema: %w", err)
	}

	s := &Store{db: db, self: self}
	if err := s.loadOrCreateIdentity(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// IdentityPublicKey returns the account's curve25519 identity public
// key, shared with peers so they can establish sessions via pre-key
// messages.
func (s *Store) IdentityPublicKey() []byte {
	pub := make([]byte, len(s.identityPub))
	copy(pub, s.identityPub)
	return pub
}

func (s *Store) loadOrCreateIdentity() error {
	var priv, pub []byte
	err := s.db.QueryRow("SELECT private_key, public_key FROM identity WHERE id = 1").Scan(&priv, &pub)
	if err == nil {
		s.identityPriv = priv
		s.identityPub = pub
		return nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("failed to load identity key: %w", err)
	}

	priv = make([]byte, curve25519.ScalarSize)
	if _, err := rand.Read(priv); err != nil {
		return fmt.Errorf("failed to generate identity key: %w", err)
	}
	pub, err = curve25519.X25519(priv, curve25519.Basepoint)
	if err != nil {
		return fmt.Errorf("failed to derive identity public key: %w", err)
	}
	if _, err := s.db.Exec("INSERT INTO identity (id, private_key, public_key) VALUES (1, ?, ?)", priv, pub); err != nil {
		return fmt.Errorf("failed to persist identity key: %w", err)
	}
	s.identityPriv = priv
	s.identityPub = pub
	return nil
}
