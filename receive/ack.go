package receive

import "errors"

// AckReason is the acknowledgement code a caller attaches when
// reporting a stanza's outcome back to the server. The resolver never
// sends acks itself; it only surfaces enough detail to pick one.
type AckReason int

const (
	AckOK AckReason = 0

	AckParseError          AckReason = 460
	AckUnrecognizedStanza  AckReason = 461
	AckUnrecognizedType    AckReason = 462
	AckInvalidPayload      AckReason = 463
	AckMissingSecret       AckReason = 464
	AckStaleCounter        AckReason = 465
	AckDeletedOnPeer       AckReason = 466
	AckUnhandled           AckReason = 467
	AckUnsupportedAdmin    AckReason = 468
	AckUnsupportedGrouping AckReason = 469
	AckStorageFailure      AckReason = 470
)

func (r AckReason) String() string {
	switch r {
	case AckOK:
		return "ok"
	case AckParseError:
		return "parse_error"
	case AckUnrecognizedStanza:
		return "unrecognized_stanza"
	case AckUnrecognizedType:
		return "unrecognized_type"
	case AckInvalidPayload:
		return "invalid_payload"
	case AckMissingSecret:
		return "missing_message_secret"
	case AckStaleCounter:
		return "stale_counter"
	case AckDeletedOnPeer:
		return "deleted_on_peer"
	case AckUnhandled:
		return "unhandled"
	case AckUnsupportedAdmin:
		return "unsupported_admin_action"
	case AckUnsupportedGrouping:
		return "unsupported_group_addressing"
	case AckStorageFailure:
		return "storage_failure"
	}
	return "unknown"
}

// ReasonFor maps a resolver outcome onto an ack reason. classifyErr is
// the error returned by Classify, if any; msg is the finalized message
// when classification succeeded.
func ReasonFor(classifyErr error, msg *Message) AckReason {
	if classifyErr != nil {
		switch {
		case errors.Is(classifyErr, ErrUnknownSender):
			return AckUnrecognizedType
		case errors.Is(classifyErr, ErrNoParticipant),
			errors.Is(classifyErr, ErrRecipientMismatch):
			return AckInvalidPayload
		default:
			return AckParseError
		}
	}
	if msg == nil {
		return AckUnhandled
	}
	if msg.StubType == StubCiphertext {
		if len(msg.StubParams) == 1 && msg.StubParams[0] == StubAbsent {
			// No content at all is not a decrypt failure.
			return AckOK
		}
		return AckUnhandled
	}
	return AckOK
}
