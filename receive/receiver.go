package receive

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/lattica-im/lattica/wire"
)

// SessionStore is the cryptographic session repository the dispatcher
// decrypts against. Implementations own their locking; the dispatcher
// treats every call as a single request/response that may block.
type SessionStore interface {
	// DecryptGroupMessage decrypts a sender-key ciphertext addressed
	// to group, authored by author.
	DecryptGroupMessage(ctx context.Context, group, author wire.Address, ciphertext []byte) ([]byte, error)

	// DecryptMessage decrypts a pairwise ciphertext from jid. encType
	// is EncPreKey for session-establishing messages and EncSession
	// for established sessions.
	DecryptMessage(ctx context.Context, jid wire.Address, encType string, ciphertext []byte) ([]byte, error)

	// ProcessSenderKeySetup applies a group session key establishment
	// or rotation authored by author.
	ProcessSenderKeySetup(ctx context.Context, author wire.Address, setup *wire.SenderKeySetup) error
}

// MappingStore is the bidirectional pseudonymous <-> phone-number
// identity mapping. Lookups return the zero address when no mapping is
// known, in which case callers use the queried identity unchanged.
type MappingStore interface {
	LIDForPhone(ctx context.Context, phone wire.Address) (wire.Address, error)
	PhoneForLID(ctx context.Context, lid wire.Address) (wire.Address, error)
	StorePair(ctx context.Context, lid, phone wire.Address) error
}

// Receiver resolves inbound stanzas for one local account. Stanzas are
// independent of each other; a Receiver may be shared across
// goroutines as long as its stores tolerate concurrent use.
type Receiver struct {
	selfPhone wire.Address
	selfLID   wire.Address
	sessions  SessionStore
	mappings  MappingStore
	log       zerolog.Logger
}

// NewReceiver creates a resolver for the local account identified by
// selfPhone and selfLID (the same account under both schemes).
func NewReceiver(selfPhone, selfLID wire.Address, sessions SessionStore, mappings MappingStore) *Receiver {
	return &Receiver{
		selfPhone: selfPhone,
		selfLID:   selfLID,
		sessions:  sessions,
		mappings:  mappings,
		log:       log.With().Str("component", "receiver").Logger(),
	}
}

// isLocal reports whether addr names the local account, compared under
// the scheme addr itself uses.
func (r *Receiver) isLocal(addr wire.Address) bool {
	if addr.IsLID() {
		return addr.SameUser(r.selfLID)
	}
	return addr.SameUser(r.selfPhone)
}
