package h3mux

import "net/netip"

// A PacketDropReason explains why incoming packets were discarded.
type PacketDropReason uint8

const (
	// DropReasonNoConnection: no connection matched and no acceptor is
	// configured (or the acceptor declined).
	DropReasonNoConnection PacketDropReason = iota
	// DropReasonDecodeError: the datagram did not parse as QUIC packets.
	DropReasonDecodeError
)

func (r PacketDropReason) String() string {
	switch r {
	case DropReasonNoConnection:
		return "no_connection"
	case DropReasonDecodeError:
		return "decode_error"
	default:
		return "unknown"
	}
}

// A Tracer observes socket and connection events on a Context. All fields
// are optional. The metrics package provides a prometheus-backed Tracer.
type Tracer struct {
	ReceivedDatagram    func(remote netip.AddrPort, size int)
	SentDatagram        func(remote netip.AddrPort, size int)
	SendError           func(remote netip.AddrPort, err error)
	DroppedPackets      func(remote netip.AddrPort, count int, reason PacketDropReason)
	AcceptedConnection  func(remote netip.AddrPort)
	DestroyedConnection func()
}
