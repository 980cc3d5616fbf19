// Package wire defines the Lattica network's address model, the stanza
// node tree produced by the transport, and the structured message body
// carried inside encrypted envelopes.
package wire

import (
	"fmt"
	"strconv"
	"strings"
)

// Address hosts. Every identity on the network lives under exactly one
// of these. Users are reachable under two coexisting schemes: the
// phone-number host and the pseudonymous LID host.
const (
	HostUser      = "user.lattica.net"
	HostLID       = "lid.lattica.net"
	HostGroup     = "g.lattica.net"
	HostBroadcast = "broadcast.lattica.net"
	HostChannel   = "channel.lattica.net"
	HostBot       = "bot.lattica.net"
)

// StatusBroadcastUser is the distinguished broadcast identity that
// carries status updates rather than a user-defined broadcast list.
const StatusBroadcastUser = "status"

// Address identifies a user, group, broadcast list, channel or bot on
// the network. The zero value means "no address".
type Address struct {
	User   string
	Device uint8
	Host   string
}

// ParseAddress parses the canonical "user[:device]@host" form.
func ParseAddress(s string) (Address, error) {
	user, host, ok := strings.Cut(s, "@")
	if !ok || host == "" {
		return Address{}, fmt.Errorf("invalid address %q: missing host", s)
	}

	var device uint8
	if name, dev, ok := strings.Cut(user, ":"); ok {
		d, err := strconv.ParseUint(dev, 10, 8)
		if err != nil {
			return Address{}, fmt.Errorf("invalid address %q: bad device qualifier: %w", s, err)
		}
		user = name
		device = uint8(d)
	}
	if user == "" {
		return Address{}, fmt.Errorf("invalid address %q: missing user", s)
	}

	return Address{User: user, Device: device, Host: host}, nil
}

// String returns the canonical wire form. A zero device is omitted.
func (a Address) String() string {
	if a.IsEmpty() {
		return ""
	}
	if a.Device == 0 {
		return a.User + "@" + a.Host
	}
	return a.User + ":" + strconv.Itoa(int(a.Device)) + "@" + a.Host
}

// IsEmpty reports whether this is the zero address.
func (a Address) IsEmpty() bool {
	return a.User == "" && a.Host == ""
}

// IsPhone reports whether the address uses the phone-number scheme.
func (a Address) IsPhone() bool { return a.Host == HostUser }

// IsLID reports whether the address uses the pseudonymous scheme.
func (a Address) IsLID() bool { return a.Host == HostLID }

// IsUserAddress reports whether the address identifies an individual
// user under either addressing scheme.
func (a Address) IsUserAddress() bool { return a.IsPhone() || a.IsLID() }

// IsGroup reports whether the address identifies a group.
func (a Address) IsGroup() bool { return a.Host == HostGroup }

// IsBroadcast reports whether the address identifies a broadcast list,
// including the status broadcast.
func (a Address) IsBroadcast() bool { return a.Host == HostBroadcast }

// IsStatusBroadcast reports whether the address is the distinguished
// status-update broadcast identity.
func (a Address) IsStatusBroadcast() bool {
	return a.Host == HostBroadcast && a.User == StatusBroadcastUser
}

// IsChannel reports whether the address identifies a newsletter channel.
func (a Address) IsChannel() bool { return a.Host == HostChannel }

// IsBot reports whether the address identifies a system or assistant
// identity. Bot addresses are exempt from recipient policy checks.
func (a Address) IsBot() bool { return a.Host == HostBot }

// Bare returns the address with its device qualifier stripped.
func (a Address) Bare() Address {
	a.Device = 0
	return a
}

// WithDevice returns the address with the given device qualifier.
func (a Address) WithDevice(device uint8) Address {
	a.Device = device
	return a
}

// Equal reports full equality including the device qualifier.
func (a Address) Equal(b Address) bool {
	return a.User == b.User && a.Device == b.Device && a.Host == b.Host
}

// SameUser reports whether both addresses name the same user on the
// same host, ignoring device qualifiers.
func (a Address) SameUser(b Address) bool {
	return a.User == b.User && a.Host == b.Host
}
