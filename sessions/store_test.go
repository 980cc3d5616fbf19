package sessions

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/lattica-im/lattica/wire"
)

func addr(t *testing.T, raw string) wire.Address {
	t.Helper()
	a, err := wire.ParseAddress(raw)
	if err != nil {
		t.Fatalf("Failed to parse address %q: %v", raw, err)
	}
	return a
}

func newStore(t *testing.T, self string) *Store {
	t.Helper()
	s, err := New(":memory:", addr(t, self))
	if err != nil {
		t.Fatalf("Failed to create session store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPairwisePreKeyThenSession(t *testing.T) {
	ctx := context.Background()
	alice := newStore(t, "300001@lid.lattica.net")
	bob := newStore(t, "200001@lid.lattica.net")
	aliceAddr := addr(t, "300001:2@lid.lattica.net")
	bobAddr := addr(t, "200001@lid.lattica.net")

	// First message establishes the session.
	first, err := alice.EncryptPreKeyMessage(ctx, bobAddr, bob.IdentityPublicKey(), []byte("hello"))
	if err != nil {
		t.Fatalf("Failed to encrypt pre-key message: %v", err)
	}
	out, err := bob.DecryptMessage(ctx, aliceAddr, "pkmsg", first)
	if err != nil {
		t.Fatalf("Failed to decrypt pre-key message: %v", err)
	}
	if !bytes.Equal(out, []byte("hello")) {
		t.Fatalf("Plaintext mismatch: %q", out)
	}

	// Later messages ride the established session.
	second, err := alice.EncryptMessage(ctx, bobAddr, []byte("again"))
	if err != nil {
		t.Fatalf("Failed to encrypt session message: %v", err)
	}
	out, err = bob.DecryptMessage(ctx, aliceAddr, "msg", second)
	if err != nil {
		t.Fatalf("Failed to decrypt session message: %v", err)
	}
	if !bytes.Equal(out, []byte("again")) {
		t.Fatalf("Plaintext mismatch: %q", out)
	}
}

func TestDecryptIsIdempotent(t *testing.T) {
	ctx := context.Background()
	alice := newStore(t, "300001@lid.lattica.net")
	bob := newStore(t, "200001@lid.lattica.net")
	aliceAddr := addr(t, "300001@lid.lattica.net")
	bobAddr := addr(t, "200001@lid.lattica.net")

	ct, err := alice.EncryptPreKeyMessage(ctx, bobAddr, bob.IdentityPublicKey(), []byte("replay me"))
	if err != nil {
		t.Fatalf("Failed to encrypt: %v", err)
	}

	first, err := bob.DecryptMessage(ctx, aliceAddr, "pkmsg", ct)
	if err != nil {
		t.Fatalf("First decrypt failed: %v", err)
	}
	second, err := bob.DecryptMessage(ctx, aliceAddr, "pkmsg", ct)
	if err != nil {
		t.Fatalf("Second decrypt failed: %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Error("Decryption with unchanged session state must be byte-identical")
	}
}

// An unauthenticated pkmsg must not overwrite an established session:
// anyone can send garbage bytes, and a failed decrypt must leave
// session state unchanged.
func TestFailedPreKeyMessageKeepsEstablishedSession(t *testing.T) {
	ctx := context.Background()
	alice := newStore(t, "300001@lid.lattica.net")
	bob := newStore(t, "200001@lid.lattica.net")
	aliceAddr := addr(t, "300001@lid.lattica.net")
	bobAddr := addr(t, "200001@lid.lattica.net")

	first, err := alice.EncryptPreKeyMessage(ctx, bobAddr, bob.IdentityPublicKey(), []byte("hello"))
	if err != nil {
		t.Fatalf("Failed to encrypt pre-key message: %v", err)
	}
	if _, err := bob.DecryptMessage(ctx, aliceAddr, "pkmsg", first); err != nil {
		t.Fatalf("Failed to establish session: %v", err)
	}

	garbage := make([]byte, 96)
	for i := range garbage {
		garbage[i] = byte(i + 1)
	}
	if _, err := bob.DecryptMessage(ctx, aliceAddr, "pkmsg", garbage); err == nil {
		t.Fatal("Expected garbage pre-key message to be rejected")
	}

	// The established session must still decrypt follow-up messages.
	second, err := alice.EncryptMessage(ctx, bobAddr, []byte("still here"))
	if err != nil {
		t.Fatalf("Failed to encrypt session message: %v", err)
	}
	out, err := bob.DecryptMessage(ctx, aliceAddr, "msg", second)
	if err != nil {
		t.Fatalf("Established session destroyed by failed pkmsg: %v", err)
	}
	if !bytes.Equal(out, []byte("still here")) {
		t.Fatalf("Plaintext mismatch: %q", out)
	}
}

func TestDecryptWithoutSession(t *testing.T) {
	bob := newStore(t, "200001@lid.lattica.net")
	_, err := bob.DecryptMessage(context.Background(), addr(t, "300001@lid.lattica.net"), "msg", make([]byte, 64))
	if !errors.Is(err, ErrNoSession) {
		t.Fatalf("Expected ErrNoSession, got %v", err)
	}
}

func TestDecryptUnsupportedType(t *testing.T) {
	bob := newStore(t, "200001@lid.lattica.net")
	_, err := bob.DecryptMessage(context.Background(), addr(t, "300001@lid.lattica.net"), "weird", make([]byte, 64))
	if err == nil {
		t.Fatal("Expected error for unsupported pairwise type")
	}
}

func TestGroupSenderKeyFlow(t *testing.T) {
	ctx := context.Background()
	alice := newStore(t, "300001@lid.lattica.net")
	bob := newStore(t, "200001@lid.lattica.net")
	aliceAddr := addr(t, "300001@lid.lattica.net")
	group := addr(t, "grp-77@g.lattica.net")

	setup, err := alice.NewSenderKeySetup(ctx, group)
	if err != nil {
		t.Fatalf("Failed to create sender key setup: %v", err)
	}
	if err := bob.ProcessSenderKeySetup(ctx, aliceAddr, setup); err != nil {
		t.Fatalf("Failed to process sender key setup: %v", err)
	}

	ct, err := alice.EncryptGroupMessage(ctx, group, 7, []byte("to the group"))
	if err != nil {
		t.Fatalf("Failed to encrypt group message: %v", err)
	}
	out, err := bob.DecryptGroupMessage(ctx, group, aliceAddr, ct)
	if err != nil {
		t.Fatalf("Failed to decrypt group message: %v", err)
	}
	if !bytes.Equal(out, []byte("to the group")) {
		t.Fatalf("Plaintext mismatch: %q", out)
	}
}

func TestGroupDecryptWithoutSenderKey(t *testing.T) {
	bob := newStore(t, "200001@lid.lattica.net")
	_, err := bob.DecryptGroupMessage(context.Background(),
		addr(t, "grp-77@g.lattica.net"), addr(t, "300001@lid.lattica.net"), make([]byte, 64))
	if !errors.Is(err, ErrNoSenderKey) {
		t.Fatalf("Expected ErrNoSenderKey, got %v", err)
	}
}

func TestSenderKeySetupRotationRules(t *testing.T) {
	ctx := context.Background()
	bob := newStore(t, "200001@lid.lattica.net")
	author := addr(t, "300001@lid.lattica.net")

	chain := make([]byte, 32)
	v2 := &wire.SenderKeySetup{Group: "grp-77@g.lattica.net", KeyID: 2, ChainKey: chain}
	if err := bob.ProcessSenderKeySetup(ctx, author, v2); err != nil {
		t.Fatalf("Failed to apply setup: %v", err)
	}

	// Re-applying the current setup is a no-op.
	if err := bob.ProcessSenderKeySetup(ctx, author, v2); err != nil {
		t.Errorf("Re-applying the same setup must not fail: %v", err)
	}

	// Older setups are rejected.
	v1 := &wire.SenderKeySetup{Group: "grp-77@g.lattica.net", KeyID: 1, ChainKey: chain}
	if err := bob.ProcessSenderKeySetup(ctx, author, v1); err == nil {
		t.Error("Expected stale setup to be rejected")
	}

	// Invalid chain keys are rejected.
	bad := &wire.SenderKeySetup{Group: "grp-77@g.lattica.net", KeyID: 3, ChainKey: []byte{1}}
	if err := bob.ProcessSenderKeySetup(ctx, author, bad); err == nil {
		t.Error("Expected invalid chain key to be rejected")
	}
}

func TestIdentityPersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/sessions.db"
	self := addr(t, "200001@lid.lattica.net")

	s1, err := New(path, self)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	pub := s1.IdentityPublicKey()
	s1.Close()

	s2, err := New(path, self)
	if err != nil {
		t.Fatalf("Failed to reopen store: %v", err)
	}
	defer s2.Close()
	if !bytes.Equal(pub, s2.IdentityPublicKey()) {
		t.Error("Identity key must persist across reopen")
	}
}
