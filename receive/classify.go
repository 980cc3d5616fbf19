package receive

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/lattica-im/lattica/wire"
)

// Structural and policy violations. These abort classification of the
// whole stanza: a stanza that trips one cannot be routed at all.
var (
	ErrRecipientMismatch = errors.New("recipient present, but message not from me")
	ErrNoParticipant     = errors.New("no participant in group message")
	ErrUnknownSender     = errors.New("unknown message sender type")
)

// Classify routes a stanza to a conversation and builds its message
// identity skeleton. The returned Message is then enriched in place by
// Decrypt.
func (r *Receiver) Classify(node *wire.Node) (*Classified, error) {
	from, ok, err := node.AddrAttr("from")
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.New("stanza has no from attribute")
	}

	participant, hasParticipant, err := node.AddrAttr("participant")
	if err != nil {
		return nil, err
	}

	addressing := ResolveAddressing(node)

	var (
		chat     wire.Address
		author   wire.Address
		chatType ChatType
	)

	switch {
	case from.IsUserAddress():
		chat = from
		recipient, hasRecipient, err := node.AddrAttr("recipient")
		if err != nil {
			return nil, err
		}
		if hasRecipient && !recipient.IsBot() {
			if !recipient.SameUser(r.selfPhone) && !recipient.SameUser(r.selfLID) {
				return nil, ErrRecipientMismatch
			}
			chat = recipient
		}
		author = from
		chatType = ChatDirect

	case from.IsGroup():
		if !hasParticipant {
			return nil, ErrNoParticipant
		}
		chat = from
		author = participant
		chatType = ChatGroup

	case from.IsBroadcast():
		if !hasParticipant {
			return nil, ErrNoParticipant
		}
		chat = from
		author = participant
		local := r.isLocal(participant)
		if from.IsStatusBroadcast() {
			chatType = ChatOtherStatus
			if local {
				chatType = ChatDirectPeerStatus
			}
		} else {
			chatType = ChatOtherBroadcast
			if local {
				chatType = ChatPeerBroadcast
			}
		}

	case from.IsChannel():
		chat = from
		author = from
		chatType = ChatNewsletter

	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownSender, from.Host)
	}

	sender := from
	if hasParticipant {
		sender = participant
	}
	fromMe := r.isLocal(sender)

	key := MessageKey{
		Remote: chat,
		FromMe: fromMe,
		ID:     node.Attr("id"),
	}
	if chatType.IsGroup() || from.IsBroadcast() {
		key.Participant = author
	}
	if chatType == ChatNewsletter {
		if sid, err := strconv.Atoi(node.Attr("server_id")); err == nil {
			key.ServerID = sid
		}
	}
	if addressing.SenderAlt != nil {
		if chatType.IsGroup() {
			key.ParticipantAlt = *addressing.SenderAlt
		} else {
			key.RemoteAlt = *addressing.SenderAlt
		}
	}

	msg := &Message{
		Key:       key,
		PushName:  node.Attr("notify"),
		Broadcast: from.IsBroadcast(),
	}
	if ts, err := strconv.ParseInt(node.Attr("t"), 10, 64); err == nil {
		msg.Timestamp = time.Unix(ts, 0).UTC()
	}
	if fromMe {
		// The sender already knows the server accepted its own message.
		msg.Status = StatusServerAck
	}

	subject := chat
	if chatType == ChatDirect {
		subject = author
	}

	return &Classified{
		Message:        msg,
		Type:           chatType,
		Author:         author,
		Sender:         sender,
		DecryptSubject: subject,
		Addressing:     addressing,
	}, nil
}
