package wire

import (
	"crypto/rand"
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// Body is the structured message body carried inside an encrypted
// envelope part. One logical message may be assembled from several
// envelope parts; later parts overlay earlier ones via Merge.
type Body struct {
	Text     string      `cbor:"text,omitempty"`
	Caption  string      `cbor:"caption,omitempty"`
	Media    *MediaRef   `cbor:"media,omitempty"`
	Reaction *Reaction   `cbor:"reaction,omitempty"`
	Protocol *ProtocolOp `cbor:"protocol,omitempty"`
	Edit     string      `cbor:"edit,omitempty"`

	// DeviceSent wraps a body relayed from another of the sender's
	// linked devices; the inner body is the real content.
	DeviceSent *DeviceSent `cbor:"device_sent,omitempty"`

	// SenderKeySetup establishes or rotates the sender's shared group
	// encryption key. It is consumed by the session layer and does not
	// itself render as content.
	SenderKeySetup *SenderKeySetup `cbor:"sender_key_setup,omitempty"`
}

// MediaRef points at an encrypted media blob stored off-stanza.
type MediaRef struct {
	URL      string `cbor:"url"`
	MimeType string `cbor:"mime_type,omitempty"`
	FileSize uint64 `cbor:"file_size,omitempty"`
	SHA256   []byte `cbor:"sha256,omitempty"`
	MediaKey []byte `cbor:"media_key,omitempty"`
}

// Reaction is an emoji reaction to an earlier message.
type Reaction struct {
	TargetID string `cbor:"target_id"`
	Emoji    string `cbor:"emoji"`
}

// ProtocolOp is a non-content protocol operation (revoke, history
// sync, ephemeral-timer change) carried as a message body.
type ProtocolOp struct {
	Type     string `cbor:"type"`
	TargetID string `cbor:"target_id,omitempty"`
}

// DeviceSent wraps a message relayed from another linked device of the
// same account.
type DeviceSent struct {
	Destination string `cbor:"destination"`
	Body        *Body  `cbor:"body"`
}

// SenderKeySetup carries a group session key establishment or rotation.
type SenderKeySetup struct {
	Group      string `cbor:"group"`
	KeyID      uint32 `cbor:"key_id"`
	ChainKey   []byte `cbor:"chain_key"`
	SigningKey []byte `cbor:"signing_key,omitempty"`
}

// DecodeBody decodes a de-padded plaintext payload into a Body.
func DecodeBody(data []byte) (*Body, error) {
	var b Body
	if err := cbor.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("failed to decode message body: %w", err)
	}
	return &b, nil
}

// EncodeBody encodes a Body to its plaintext wire form.
func EncodeBody(b *Body) ([]byte, error) {
	data, err := cbor.Marshal(b)
	if err != nil {
		return nil, fmt.Errorf("failed to encode message body: %w", err)
	}
	return data, nil
}

// UnwrapDeviceSent returns the inner body when this body is a linked
// device relay wrapper, and the body itself otherwise.
func (b *Body) UnwrapDeviceSent() *Body {
	if b.DeviceSent != nil && b.DeviceSent.Body != nil {
		return b.DeviceSent.Body
	}
	return b
}

// Merge overlays other onto b. Fields set in other win; fields absent
// in other keep b's value. Envelope parts are merged in stanza order,
// so later parts override earlier ones.
func (b *Body) Merge(other *Body) {
	if other == nil {
		return
	}
	if other.Text != "" {
		b.Text = other.Text
	}
	if other.Caption != "" {
		b.Caption = other.Caption
	}
	if other.Media != nil {
		b.Media = other.Media
	}
	if other.Reaction != nil {
		b.Reaction = other.Reaction
	}
	if other.Protocol != nil {
		b.Protocol = other.Protocol
	}
	if other.Edit != "" {
		b.Edit = other.Edit
	}
	if other.DeviceSent != nil {
		b.DeviceSent = other.DeviceSent
	}
	if other.SenderKeySetup != nil {
		b.SenderKeySetup = other.SenderKeySetup
	}
}

// VerifiedNameCert is a signed business-name certificate attached to
// stanzas from verified business accounts.
type VerifiedNameCert struct {
	Details   []byte `cbor:"details"`
	Signature []byte `cbor:"signature"`
}

// VerifiedNameDetails is the signed portion of a VerifiedNameCert.
type VerifiedNameDetails struct {
	Serial       uint64 `cbor:"serial"`
	Issuer       string `cbor:"issuer"`
	VerifiedName string `cbor:"verified_name"`
}

// DecodeVerifiedName decodes a certificate blob and returns the
// verified display name it attests. Signature verification is the
// identity layer's job; the resolver only surfaces the name.
func DecodeVerifiedName(data []byte) (string, error) {
	var cert VerifiedNameCert
	if err := cbor.Unmarshal(data, &cert); err != nil {
		return "", fmt.Errorf("failed to decode verified name certificate: %w", err)
	}
	var details VerifiedNameDetails
	if err := cbor.Unmarshal(cert.Details, &details); err != nil {
		return "", fmt.Errorf("failed to decode certificate details: %w", err)
	}
	return details.VerifiedName, nil
}

// Pad appends random-length trailing padding (1 to 16 bytes, each byte
// holding the pad length) ahead of encryption.
func Pad(data []byte) []byte {
	var b [1]byte
	rand.Read(b[:])
	pad := int(b[0]&0x0f) + 1
	out := make([]byte, len(data), len(data)+pad)
	copy(out, data)
	for i := 0; i < pad; i++ {
		out = append(out, byte(pad))
	}
	return out
}

// Unpad strips the random trailing padding applied before encryption.
// The final byte is the pad length, 1 through 16 inclusive.
func Unpad(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, errors.New("cannot unpad empty payload")
	}
	pad := int(data[len(data)-1])
	if pad < 1 || pad > 16 || pad > len(data) {
		return nil, fmt.Errorf("invalid padding length %d", pad)
	}
	return data[:len(data)-pad], nil
}
