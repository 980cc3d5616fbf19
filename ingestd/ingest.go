package main

import (
	"context"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/lattica-im/lattica/receive"
	"github.com/lattica-im/lattica/wire"
)

// Ack reports a stanza's resolution outcome back to the server.
type Ack struct {
	ID       string `cbor:"id"`
	StanzaID string `cbor:"stanza_id,omitempty"`
	Code     int    `cbor:"code"`
	Reason   string `cbor:"reason"`
}

// Publisher is the outbound side of the transport.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// Ingestor resolves stanzas and publishes acknowledgements.
type Ingestor struct {
	receiver   *receive.Receiver
	pub        Publisher
	ackSubject string
}

// NewIngestor creates an ingestor publishing acks under ackSubject.
func NewIngestor(receiver *receive.Receiver, pub Publisher, ackSubject string) *Ingestor {
	return &Ingestor{receiver: receiver, pub: pub, ackSubject: ackSubject}
}

// Handle resolves one stanza end to end. Resolution failures never
// stop the daemon; they are folded into the ack code.
func (in *Ingestor) Handle(ctx context.Context, stanza *Stanza) {
	node, err := wire.DecodeNode(stanza.Data)
	if err != nil {
		log.Warn().Err(err).Str("subject", stanza.Subject).Msg("Undecodable stanza")
		in.ack(&Ack{Code: int(receive.AckParseError), Reason: receive.AckParseError.String()})
		return
	}

	classified, err := in.receiver.Classify(node)
	if err != nil {
		reason := receive.ReasonFor(err, nil)
		log.Warn().
			Err(err).
			Str("id", node.Attr("id")).
			Str("from", node.Attr("from")).
			Str("reason", reason.String()).
			Msg("Stanza failed classification")
		in.ack(&Ack{StanzaID: node.Attr("id"), Code: int(reason), Reason: reason.String()})
		return
	}

	in.receiver.Decrypt(ctx, node, classified)

	msg := classified.Message
	reason := receive.ReasonFor(nil, msg)
	log.Debug().
		Str("id", msg.Key.ID).
		Str("chat", msg.Key.Remote.String()).
		Str("author", classified.Author.String()).
		Str("type", classified.Type.String()).
		Bool("stubbed", msg.StubType != receive.StubNone).
		Msg("Stanza resolved")

	in.ack(&Ack{StanzaID: msg.Key.ID, Code: int(reason), Reason: reason.String()})
}

// ack publishes on a per-stanza subject so the server can subscribe to
// individual outcomes. Stanzas that never yielded an id (undecodable
// payloads) are acked under the correlation id instead.
func (in *Ingestor) ack(a *Ack) {
	a.ID = uuid.NewString()
	data, err := cbor.Marshal(a)
	if err != nil {
		log.Error().Err(err).Msg("Failed to encode ack")
		return
	}
	subject := in.ackSubject + "." + a.StanzaID
	if a.StanzaID == "" {
		subject = in.ackSubject + "." + a.ID
	}
	if err := in.pub.Publish(subject, data); err != nil {
		log.Warn().Err(err).Str("stanza_id", a.StanzaID).Msg("Failed to publish ack")
	}
}
