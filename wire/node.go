package wire

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// Node is one element of a stanza as delivered by the binary transport
// parser: a tag, string attributes, ordered children and an optional
// raw binary payload. Nodes are read-only once decoded; the resolver
// never mutates or produces them.
type Node struct {
	Tag      string            `cbor:"tag"`
	Attrs    map[string]string `cbor:"attrs,omitempty"`
	Children []Node            `cbor:"children,omitempty"`
	Data     []byte            `cbor:"data,omitempty"`
}

// DecodeNode decodes a stanza node from its CBOR wire form.
func DecodeNode(data []byte) (*Node, error) {
	var n Node
	if err := cbor.Unmarshal(data, &n); err != nil {
		return nil, fmt.Errorf("failed to decode stanza node: %w", err)
	}
	if n.Tag == "" {
		return nil, fmt.Errorf("failed to decode stanza node: empty tag")
	}
	return &n, nil
}

// EncodeNode encodes a stanza node to its CBOR wire form.
func EncodeNode(n *Node) ([]byte, error) {
	data, err := cbor.Marshal(n)
	if err != nil {
		return nil, fmt.Errorf("failed to encode stanza node: %w", err)
	}
	return data, nil
}

// Attr returns the named attribute, or "" if absent.
func (n *Node) Attr(name string) string {
	return n.Attrs[name]
}

// AddrAttr parses the named attribute as an address. It returns the
// zero address with ok=false when the attribute is absent, and an
// error only when the attribute is present but malformed.
func (n *Node) AddrAttr(name string) (addr Address, ok bool, err error) {
	raw, present := n.Attrs[name]
	if !present || raw == "" {
		return Address{}, false, nil
	}
	addr, err = ParseAddress(raw)
	if err != nil {
		return Address{}, false, fmt.Errorf("attribute %q: %w", name, err)
	}
	return addr, true, nil
}

// OptionalAddr parses the named attribute as an address, silently
// treating absent or malformed values as "no address". Used for the
// alternate-scheme attributes, which are advisory on the wire.
func (n *Node) OptionalAddr(name string) *Address {
	addr, ok, err := n.AddrAttr(name)
	if !ok || err != nil {
		return nil
	}
	return &addr
}
