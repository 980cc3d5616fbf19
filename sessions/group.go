package sessions

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/lattica-im/lattica/wire"
)

// Group ciphertext layout:
//
//	skmsg: key id (4, BE) || counter (4, BE) || nonce+ciphertext
//
// Sender keys are learned from SenderKeySetup payloads carried inside
// pairwise-encrypted messages.

const groupLabel = "lattica/skmsg/v1"

// DecryptGroupMessage decrypts a sender-key ciphertext addressed to
// group, authored by author.
func (s *Store) DecryptGroupMessage(ctx context.Context, group, author wire.Address, ciphertext []byte) ([]byte, error) {
	if len(ciphertext) < 8 {
		return nil, fmt.Errorf("group message too short: %d bytes", len(ciphertext))
	}
	keyID := binary.BigEndian.Uint32(ciphertext[:4])
	counter := binary.BigEndian.Uint32(ciphertext[4:8])

	storedID, chain, err := s.loadSenderKey(ctx, group, author)
	if err != nil {
		return nil, err
	}
	if storedID != keyID {
		return nil, fmt.Errorf("unknown sender key id %d for %s in %s", keyID, author, group)
	}

	key, err := messageKey(chain, groupLabel, counter)
	if err != nil {
		return nil, err
	}
	return open(key, ciphertext[8:])
}

// ProcessSenderKeySetup applies a group session key establishment or
// rotation authored by author. Re-applying the current setup is a
// no-op; a setup older than the stored one is rejected.
func (s *Store) ProcessSenderKeySetup(ctx context.Context, author wire.Address, setup *wire.SenderKeySetup) error {
	if len(setup.ChainKey) != chainKeySize {
		return fmt.Errorf("invalid sender key length %d", len(setup.ChainKey))
	}
	group, err := wire.ParseAddress(setup.Group)
	if err != nil {
		return fmt.Errorf("invalid group in sender key setup: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	storedID, _, err := s.loadSenderKey(ctx, group, author)
	switch {
	case errors.Is(err, ErrNoSenderKey):
	case err != nil:
		return err
	case storedID == setup.KeyID:
		return nil
	case storedID > setup.KeyID:
		return fmt.Errorf("stale sender key setup: have id %d, got %d", storedID, setup.KeyID)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sender_keys (group_addr, author, key_id, chain_key, signing_key)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(group_addr, author) DO UPDATE SET
			key_id = excluded.key_id,
			chain_key = excluded.chain_key,
			signing_key = excluded.signing_key`,
		group.String(), author.String(), setup.KeyID, setup.ChainKey, setup.SigningKey)
	if err != nil {
		return fmt.Errorf("failed to store sender key: %w", err)
	}
	return nil
}

// NewSenderKeySetup generates a fresh sender key for the local account
// in group, stores it, and returns the setup payload to distribute to
// the other members.
func (s *Store) NewSenderKeySetup(ctx context.Context, group wire.Address) (*wire.SenderKeySetup, error) {
	chain := make([]byte, chainKeySize)
	if _, err := rand.Read(chain); err != nil {
		return nil, fmt.Errorf("failed to generate sender key: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	keyID := uint32(1)
	storedID, _, err := s.loadSenderKey(ctx, group, s.self)
	if err == nil {
		keyID = storedID + 1
	} else if !errors.Is(err, ErrNoSenderKey) {
		return nil, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sender_keys (group_addr, author, key_id, chain_key)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(group_addr, author) DO UPDATE SET
			key_id = excluded.key_id,
			chain_key = excluded.chain_key`,
		group.String(), s.self.String(), keyID, chain)
	if err != nil {
		return nil, fmt.Errorf("failed to store own sender key: %w", err)
	}

	return &wire.SenderKeySetup{
		Group:    group.String(),
		KeyID:    keyID,
		ChainKey: chain,
	}, nil
}

// EncryptGroupMessage encrypts plaintext to group using the local
// account's current sender key.
func (s *Store) EncryptGroupMessage(ctx context.Context, group wire.Address, counter uint32, plaintext []byte) ([]byte, error) {
	keyID, chain, err := s.loadSenderKey(ctx, group, s.self)
	if err != nil {
		return nil, err
	}

	key, err := messageKey(chain, groupLabel, counter)
	if err != nil {
		return nil, err
	}
	sealed, err := seal(key, plaintext)
	if err != nil {
		return nil, err
	}

	out := binary.BigEndian.AppendUint32(nil, keyID)
	out = binary.BigEndian.AppendUint32(out, counter)
	return append(out, sealed...), nil
}

func (s *Store) loadSenderKey(ctx context.Context, group, author wire.Address) (uint32, []byte, error) {
	var keyID uint32
	var chain []byte
	err := s.db.QueryRowContext(ctx,
		"SELECT key_id, chain_key FROM sender_keys WHERE group_addr = ? AND author = ?",
		group.String(), author.String()).Scan(&keyID, &chain)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil, fmt.Errorf("%w for %s in %s", ErrNoSenderKey, author, group)
	}
	if err != nil {
		return 0, nil, fmt.Errorf("failed to load sender key: %w", err)
	}
	return keyID, chain, nil
}
