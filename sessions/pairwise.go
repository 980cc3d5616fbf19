package sessions

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"

	"golang.org/x/crypto/curve25519"

	"github.com/lattica-im/lattica/wire"
)

// Pairwise ciphertext layout:
//
//	pkmsg: ephemeral public key (32) || counter (4, BE) || nonce+ciphertext
//	msg:   counter (4, BE) || nonce+ciphertext
//
// A pkmsg establishes the session as a side effect of decryption; a
// msg requires one to already exist.

const pairwiseLabel = "lattica/msg/v1"

// DecryptMessage decrypts a pairwise ciphertext from jid. encType is
// "pkmsg" or "msg".
func (s *Store) DecryptMessage(ctx context.Context, jid wire.Address, encType string, ciphertext []byte) ([]byte, error) {
	switch encType {
	case "pkmsg":
		if len(ciphertext) < curve25519.PointSize+4 {
			return nil, fmt.Errorf("pre-key message too short: %d bytes", len(ciphertext))
		}
		ephemeral := ciphertext[:curve25519.PointSize]
		ciphertext = ciphertext[curve25519.PointSize:]

		shared, err := curve25519.X25519(s.identityPriv, ephemeral)
		if err != nil {
			return nil, fmt.Errorf("pre-key agreement failed: %w", err)
		}
		chain, err := deriveChainKey(shared)
		if err != nil {
			return nil, err
		}
		// The new session must not replace an established one until
		// the ciphertext authenticates; an unauthenticated pkmsg must
		// leave existing session state untouched.
		plaintext, err := openWithChain(chain, ciphertext)
		if err != nil {
			return nil, err
		}
		if err := s.saveSession(ctx, jid, chain); err != nil {
			return nil, err
		}
		return plaintext, nil

	case "msg":
		chain, err := s.loadSession(ctx, jid)
		if err != nil {
			return nil, err
		}
		return openWithChain(chain, ciphertext)

	default:
		return nil, fmt.Errorf("unsupported pairwise type %q", encType)
	}
}

// openWithChain opens a counter-prefixed pairwise ciphertext against a
// chain key.
func openWithChain(chain, ciphertext []byte) ([]byte, error) {
	if len(ciphertext) < 4 {
		return nil, fmt.Errorf("pairwise message too short: %d bytes", len(ciphertext))
	}
	counter := binary.BigEndian.Uint32(ciphertext[:4])
	key, err := messageKey(chain, pairwiseLabel, counter)
	if err != nil {
		return nil, err
	}
	return open(key, ciphertext[4:])
}

// EncryptPreKeyMessage establishes a session with peer (whose identity
// public key the caller obtained out of band) and encrypts plaintext
// as a pkmsg.
func (s *Store) EncryptPreKeyMessage(ctx context.Context, peer wire.Address, peerIdentityPub, plaintext []byte) ([]byte, error) {
	ephPriv := make([]byte, curve25519.ScalarSize)
	if _, err := rand.Read(ephPriv); err != nil {
		return nil, fmt.Errorf("failed to generate ephemeral key: %w", err)
	}
	ephPub, err := curve25519.X25519(ephPriv, curve25519.Basepoint)
	if err != nil {
		return nil, fmt.Errorf("failed to derive ephemeral public key: %w", err)
	}
	shared, err := curve25519.X25519(ephPriv, peerIdentityPub)
	if err != nil {
		return nil, fmt.Errorf("pre-key agreement failed: %w", err)
	}
	chain, err := deriveChainKey(shared)
	if err != nil {
		return nil, err
	}
	if err := s.saveSession(ctx, peer, chain); err != nil {
		return nil, err
	}

	key, err := messageKey(chain, pairwiseLabel, 0)
	if err != nil {
		return nil, err
	}
	sealed, err := seal(key, plaintext)
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, len(ephPub)+4+len(sealed))
	out = append(out, ephPub...)
	out = binary.BigEndian.AppendUint32(out, 0)
	return append(out, sealed...), nil
}

// EncryptMessage encrypts plaintext as a msg over the established
// session with peer, advancing the outbound counter.
func (s *Store) EncryptMessage(ctx context.Context, peer wire.Address, plaintext []byte) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	chain, err := s.loadSession(ctx, peer)
	if err != nil {
		return nil, err
	}

	var counter uint32
	err = s.db.QueryRowContext(ctx,
		"UPDATE pairwise_sessions SET counter = counter + 1 WHERE peer = ? RETURNING counter",
		peer.String()).Scan(&counter)
	if err != nil {
		return nil, fmt.Errorf("failed to advance session counter: %w", err)
	}

	key, err := messageKey(chain, pairwiseLabel, counter)
	if err != nil {
		return nil, err
	}
	sealed, err := seal(key, plaintext)
	if err != nil {
		return nil, err
	}

	out := binary.BigEndian.AppendUint32(nil, counter)
	return append(out, sealed...), nil
}

func (s *Store) saveSession(ctx context.Context, peer wire.Address, chain []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO pairwise_sessions (peer, chain_key, counter) VALUES (?, ?, 0)
		ON CONFLICT(peer) DO UPDATE SET chain_key = excluded.chain_key, counter = 0`,
		peer.String(), chain)
	if err != nil {
		return fmt.Errorf("failed to save session for %s: %w", peer, err)
	}
	return nil
}

func (s *Store) loadSession(ctx context.Context, peer wire.Address) ([]byte, error) {
	var chain []byte
	err := s.db.QueryRowContext(ctx,
		"SELECT chain_key FROM pairwise_sessions WHERE peer = ?", peer.String()).Scan(&chain)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w for %s", ErrNoSession, peer)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session for %s: %w", peer, err)
	}
	return chain, nil
}
