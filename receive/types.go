// Package receive resolves inbound stanzas into message records: it
// classifies the stanza into a conversation identity under the
// network's two addressing schemes, then decrypts each embedded
// envelope part into a structured body, isolating failures per part.
package receive

import (
	"time"

	"github.com/lattica-im/lattica/wire"
)

// ChatType is the conversation category a stanza routes to. It
// determines which alternate-identity field is populated and which
// local identity fromMe is computed against.
type ChatType int

const (
	ChatDirect ChatType = iota
	ChatGroup
	ChatPeerBroadcast
	ChatOtherBroadcast
	ChatDirectPeerStatus
	ChatOtherStatus
	ChatNewsletter
)

func (t ChatType) String() string {
	switch t {
	case ChatDirect:
		return "chat"
	case ChatGroup:
		return "group"
	case ChatPeerBroadcast:
		return "peer_broadcast"
	case ChatOtherBroadcast:
		return "other_broadcast"
	case ChatDirectPeerStatus:
		return "direct_peer_status"
	case ChatOtherStatus:
		return "other_status"
	case ChatNewsletter:
		return "newsletter"
	}
	return "unknown"
}

// IsGroup reports whether the conversation is a group chat.
func (t ChatType) IsGroup() bool { return t == ChatGroup }

// MessageKey is the canonical identity of one message. RemoteAlt is
// populated only for non-group conversations and ParticipantAlt only
// for groups: the alternate-scheme identity always rides on whichever
// field names the actual sender, never both.
type MessageKey struct {
	Remote         wire.Address
	RemoteAlt      wire.Address
	FromMe         bool
	ID             string
	Participant    wire.Address
	ParticipantAlt wire.Address
	ServerID       int
	ViewOnce       bool
}

// Status is the delivery status of a message.
type Status int

const (
	StatusUnknown Status = iota
	StatusPending
	StatusServerAck
	StatusDelivered
	StatusRead
)

// StubType marks a message whose content could not be produced.
type StubType int

const (
	StubNone StubType = iota
	StubCiphertext
)

// StubAbsent is the stub parameter recorded when a stanza carried no
// decryptable content at all, as opposed to content that failed to
// decrypt (whose stub parameter is the underlying error text).
const StubAbsent = "Message absent from node"

// Message is the resolver's output for one stanza. It is created by
// Classify, mutated in place by Decrypt as envelope parts are
// processed, and owned exclusively by the caller afterwards.
type Message struct {
	Key             MessageKey
	Timestamp       time.Time
	PushName        string
	Broadcast       bool
	VerifiedBizName string
	Body            *wire.Body
	Status          Status
	StubType        StubType
	StubParams      []string
}

// Classified bundles the message skeleton with the identities the
// caller and the decryption dispatcher need.
type Classified struct {
	Message *Message
	Type    ChatType

	// Author is the effective composer of the message: the participant
	// for groups and broadcasts, the sender otherwise.
	Author wire.Address

	// Sender is the observed sender: participant when present, else
	// the stanza's from address.
	Sender wire.Address

	// DecryptSubject is the identity whose pairwise session decrypts
	// non-group envelope parts, before any cross-scheme rewrite.
	DecryptSubject wire.Address

	Addressing AddressingContext
}
