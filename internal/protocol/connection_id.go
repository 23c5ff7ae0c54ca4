package protocol

import (
	"bytes"
	"fmt"
)

// A ConnectionID is a QUIC connection ID as it appears on the wire: an opaque
// byte string of up to 20 bytes, chosen by one of the endpoints.
type ConnectionID []byte

// Equal says if two connection IDs are equal
func (c ConnectionID) Equal(other ConnectionID) bool {
	return bytes.Equal(c, other)
}

// Len returns the length of the connection ID in bytes
func (c ConnectionID) Len() int {
	return len(c)
}

// Bytes returns the byte representation
func (c ConnectionID) Bytes() []byte {
	return []byte(c)
}

func (c ConnectionID) String() string {
	if c.Len() == 0 {
		return "(empty)"
	}
	return fmt.Sprintf("%x", c.Bytes())
}

// A PlaintextCID is the authenticated decoding of a connection ID minted by
// this cluster. MasterID identifies the connection; NodeID and ThreadID route
// packets to the instance that owns it.
type PlaintextCID struct {
	MasterID uint64
	NodeID   uint64
	ThreadID uint32
}
