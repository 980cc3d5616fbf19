package receive

import (
	"context"
	"fmt"

	"github.com/lattica-im/lattica/wire"
)

// Envelope part encryption types.
const (
	EncSenderKey = "skmsg"
	EncPreKey    = "pkmsg"
	EncSession   = "msg"
	EncPlaintext = "plaintext"
)

// Decrypt processes every embedded envelope part of a stanza, in
// original order, enriching the classified message in place. Failures
// are isolated per part: a part that cannot be decrypted records a
// ciphertext stub on the message and processing continues. A stanza
// with no decryptable parts at all records the distinct StubAbsent
// parameter instead.
func (r *Receiver) Decrypt(ctx context.Context, node *wire.Node, c *Classified) {
	msg := c.Message
	decryptables := 0

	for i := range node.Children {
		child := &node.Children[i]
		switch {
		case child.Tag == "verified_name" && len(child.Data) > 0:
			name, err := wire.DecodeVerifiedName(child.Data)
			if err != nil {
				r.log.Warn().Err(err).Str("id", msg.Key.ID).Msg("Bad verified name certificate")
				continue
			}
			msg.VerifiedBizName = name

		case child.Tag == "unavailable" && child.Attr("type") == "view_once":
			msg.Key.ViewOnce = true

		case (child.Tag == "enc" || child.Tag == "plaintext") && len(child.Data) > 0:
			decryptables++
			if err := r.decryptPart(ctx, child, c); err != nil {
				r.log.Warn().
					Err(err).
					Str("id", msg.Key.ID).
					Str("chat", msg.Key.Remote.String()).
					Str("sender", c.Sender.String()).
					Str("author", c.Author.String()).
					Str("enc_type", partEncType(child)).
					Bool("no_session", IsNoSession(err)).
					Msg("Failed to decrypt envelope part")
				msg.StubType = StubCiphertext
				msg.StubParams = []string{err.Error()}
			}
		}
	}

	if decryptables == 0 {
		msg.StubType = StubCiphertext
		msg.StubParams = []string{StubAbsent}
	}
}

func partEncType(child *wire.Node) string {
	if child.Tag == "plaintext" {
		return EncPlaintext
	}
	return child.Attr("type")
}

// decryptPart handles one enc or plaintext child node.
func (r *Receiver) decryptPart(ctx context.Context, child *wire.Node, c *Classified) error {
	encType := partEncType(child)
	switch encType {
	case EncSenderKey, EncPreKey, EncSession, EncPlaintext:
	default:
		return fmt.Errorf("unknown envelope type: %q", encType)
	}

	var plaintext []byte
	var err error

	switch encType {
	case EncPlaintext:
		plaintext = child.Data

	case EncSenderKey:
		r.maybeStoreMapping(ctx, c)
		plaintext, err = r.sessions.DecryptGroupMessage(ctx, c.Message.Key.Remote, c.Author, child.Data)
		if err != nil {
			return err
		}

	default: // EncPreKey, EncSession
		r.maybeStoreMapping(ctx, c)
		subject, lerr := r.decryptionIdentity(ctx, c.DecryptSubject)
		if lerr != nil {
			return lerr
		}
		plaintext, err = r.sessions.DecryptMessage(ctx, subject, encType, child.Data)
		if err != nil {
			return err
		}
	}

	if encType != EncPlaintext {
		plaintext, err = wire.Unpad(plaintext)
		if err != nil {
			return err
		}
	}

	body, err := wire.DecodeBody(plaintext)
	if err != nil {
		return err
	}
	body = body.UnwrapDeviceSent()

	if setup := body.SenderKeySetup; setup != nil {
		// A corrupt or already-applied key update must not block the
		// message content itself.
		if err := r.sessions.ProcessSenderKeySetup(ctx, c.Author, setup); err != nil {
			r.log.Warn().
				Err(err).
				Str("author", c.Author.String()).
				Str("group", setup.Group).
				Msg("Failed to process sender key setup")
		}
	}

	if c.Message.Body == nil {
		c.Message.Body = &wire.Body{}
	}
	c.Message.Body.Merge(body)
	return nil
}

// decryptionIdentity rewrites a phone-number subject to its
// pseudonymous form when a mapping is known; the session layer keys
// pairwise sessions by pseudonymous identity once one is learned.
func (r *Receiver) decryptionIdentity(ctx context.Context, subject wire.Address) (wire.Address, error) {
	if !subject.IsPhone() {
		return subject, nil
	}
	lid, err := r.mappings.LIDForPhone(ctx, subject.Bare())
	if err != nil {
		return wire.Address{}, fmt.Errorf("mapping lookup for %s: %w", subject, err)
	}
	if lid.IsEmpty() {
		return subject, nil
	}
	return lid.WithDevice(subject.Device), nil
}

// maybeStoreMapping opportunistically records an observed
// pseudonymous <-> phone-number pairing. Best-effort: persistence
// failures are logged and swallowed, never surfaced to the caller.
func (r *Receiver) maybeStoreMapping(ctx context.Context, c *Classified) {
	alt := c.Addressing.SenderAlt
	if alt == nil || !alt.IsLID() {
		return
	}
	if !c.Sender.IsPhone() {
		return
	}
	// Only record when no earlier mapping already redirected the
	// decryption subject away from the observed sender.
	if !c.DecryptSubject.Equal(c.Sender) {
		return
	}
	if err := r.mappings.StorePair(ctx, alt.Bare(), c.Sender.Bare()); err != nil {
		r.log.Warn().
			Err(err).
			Str("lid", alt.Bare().String()).
			Str("phone", c.Sender.Bare().String()).
			Msg("Failed to store identity mapping")
	}
}
