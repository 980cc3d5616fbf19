package receive

import "github.com/lattica-im/lattica/wire"

// Addressing modes. A stanza's primary addresses are expressed in one
// scheme; the suffixed attributes carry the other scheme's alternates.
const (
	ModePhone = "pn"
	ModeLID   = "lid"
)

// AddressingContext is the resolved addressing scheme of a stanza plus
// the cross-scheme alternate identities found on the wire. SenderAlt,
// when present, always carries the device qualifier of the primary
// sender it supplements; the wire alternates never carry reliable
// device data.
type AddressingContext struct {
	Mode         string
	SenderAlt    *wire.Address
	RecipientAlt *wire.Address
}

// ResolveAddressing extracts the addressing context from a stanza.
// Absent attributes simply yield nil alternates; there is no failure
// path.
func ResolveAddressing(node *wire.Node) AddressingContext {
	mode := node.Attr("addressing_mode")
	if mode != ModeLID {
		mode = ModePhone
	}

	var senderAlt, recipientAlt *wire.Address
	if mode == ModeLID {
		senderAlt = firstAddr(node, "participant_pn", "sender_pn", "peer_recipient_pn")
		recipientAlt = node.OptionalAddr("recipient_pn")
	} else {
		senderAlt = firstAddr(node, "participant_lid", "sender_lid", "peer_recipient_lid")
		recipientAlt = node.OptionalAddr("recipient_lid")
	}

	if senderAlt != nil {
		if primary := primarySender(node); primary != nil {
			alt := senderAlt.WithDevice(primary.Device)
			senderAlt = &alt
		}
	}

	return AddressingContext{
		Mode:         mode,
		SenderAlt:    senderAlt,
		RecipientAlt: recipientAlt,
	}
}

// primarySender is the identity whose device qualifier the alternate
// sender must mirror: participant when present, else from.
func primarySender(node *wire.Node) *wire.Address {
	if p := node.OptionalAddr("participant"); p != nil {
		return p
	}
	return node.OptionalAddr("from")
}

func firstAddr(node *wire.Node, names ...string) *wire.Address {
	for _, name := range names {
		if addr := node.OptionalAddr(name); addr != nil {
			return addr
		}
	}
	return nil
}
