// Package store provides the bidirectional pseudonymous <-> phone
// identity mapping used to key pairwise decryption sessions.
package store

import (
	"context"
	"sync"

	"github.com/lattica-im/lattica/wire"
)

// Memory is an in-process mapping store. Suitable for tests and for
// deployments that accept relearning mappings on restart.
type Memory struct {
	mu      sync.RWMutex
	byPhone map[string]wire.Address
	byLID   map[string]wire.Address
}

// NewMemory creates an empty in-memory mapping store.
func NewMemory() *Memory {
	return &Memory{
		byPhone: make(map[string]wire.Address),
		byLID:   make(map[string]wire.Address),
	}
}

// LIDForPhone returns the pseudonymous identity mapped to phone, or
// the zero address when unknown.
func (m *Memory) LIDForPhone(ctx context.Context, phone wire.Address) (wire.Address, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.byPhone[phone.Bare().String()], nil
}

// PhoneForLID returns the phone-number identity mapped to lid, or the
// zero address when unknown.
func (m *Memory) PhoneForLID(ctx context.Context, lid wire.Address) (wire.Address, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.byLID[lid.Bare().String()], nil
}

// StorePair records a verified pairing, replacing any previous mapping
// for either side.
func (m *Memory) StorePair(ctx context.Context, lid, phone wire.Address) error {
	lid = lid.Bare()
	phone = phone.Bare()
	m.mu.Lock()
	defer m.mu.Unlock()
	// Purge the displaced halves so a remap never leaves a stale
	// reverse entry behind.
	if old, ok := m.byLID[lid.String()]; ok {
		delete(m.byPhone, old.String())
	}
	if old, ok := m.byPhone[phone.String()]; ok {
		delete(m.byLID, old.String())
	}
	m.byPhone[phone.String()] = lid
	m.byLID[lid.String()] = phone
	return nil
}
