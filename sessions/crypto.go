package sessions

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

const chainKeySize = 32

// deriveChainKey derives a pairwise session chain key from an ECDH
// shared secret.
func deriveChainKey(shared []byte) ([]byte, error) {
	key := make([]byte, chainKeySize)
	r := hkdf.New(sha256.New, shared, nil, []byte("lattica/pairwise/v1"))
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("failed to derive chain key: %w", err)
	}
	return key, nil
}

// messageKey derives the per-message AEAD key from a chain key and the
// message counter. Derivation is stateless: the same chain and counter
// always yield the same key, so decryption is idempotent.
func messageKey(chain []byte, label string, counter uint32) ([]byte, error) {
	info := make([]byte, 0, len(label)+4)
	info = append(info, label...)
	info = binary.BigEndian.AppendUint32(info, counter)

	key := make([]byte, chacha20poly1305.KeySize)
	r := hkdf.New(sha256.New, chain, nil, info)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("failed to derive message key: %w", err)
	}
	return key, nil
}

// seal encrypts plaintext with XChaCha20-Poly1305, prepending the
// random nonce to the ciphertext.
func seal(key, plaintext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	return aead.Seal(nonce, nonce, plaintext, nil), nil
}

// open decrypts a nonce-prefixed XChaCha20-Poly1305 ciphertext.
func open(key, ciphertext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	if len(ciphertext) < aead.NonceSize() {
		return nil, fmt.Errorf("ciphertext too short")
	}
	nonce := ciphertext[:aead.NonceSize()]
	plaintext, err := aead.Open(nil, nonce, ciphertext[aead.NonceSize():], nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open ciphertext: %w", err)
	}
	return plaintext, nil
}
