package h3mux

import (
	"errors"
	"net/netip"
	"time"

	"github.com/h3mux/h3mux/internal/protocol"
)

// ErrFreeConnection is returned from TransportConn.PollSend once the
// transport has fully wound down and the connection object can be released.
var ErrFreeConnection = errors.New("connection can be freed")

// A DecodedPacket is a single QUIC packet extracted from a datagram by the
// transport's packet decoder.
type DecodedPacket struct {
	// Data holds the packet octets, header included.
	Data []byte
	// DestCID is the destination connection ID exactly as it appears on the
	// wire.
	DestCID protocol.ConnectionID
	// DestCIDMightBeClientGenerated is set for Initial and 0-RTT packets,
	// whose destination CID was chosen by the client rather than minted
	// here.
	DestCIDMightBeClientGenerated bool
	// Plaintext is the authenticated decoding of DestCID. It is only
	// meaningful when the CID passed authentication.
	Plaintext protocol.PlaintextCID
}

// A Datagram is one outbound UDP payload produced by the transport. The
// buffer is released by the send loop after the datagram has been written.
type Datagram struct {
	Addr   netip.AddrPort
	Buffer *PacketBuffer
}

// A PacketDecoder splits raw datagrams into QUIC packets. It is implemented
// by the transport configuration shared across connections.
type PacketDecoder interface {
	// DecodePacket decodes one packet from the head of b and returns the
	// number of bytes it occupies. ok is false when b does not start with a
	// decodable packet; the remainder of the datagram is then discarded.
	DecodePacket(b []byte) (p DecodedPacket, n int, ok bool)
}

// A TransportConn is the QUIC transport handle backing one connection. All
// methods are called from the context's loop.
type TransportConn interface {
	// Receive hands an incoming packet to the transport.
	Receive(p *DecodedPacket) error
	// IsDestination reports whether p, arriving from remote, is destined for
	// this connection.
	IsDestination(remote netip.AddrPort, p *DecodedPacket) bool
	// OpenUniStream opens a self-initiated unidirectional stream. The
	// transport announces the new stream through Conn.OnUniStreamOpen before
	// returning.
	OpenUniStream() (TransportStream, error)
	// PollSend fills batch with outbound datagrams and returns how many were
	// produced. ErrFreeConnection signals that the connection has wound down
	// and must be destroyed; any other error leaves the transport in an
	// unknown state.
	PollSend(batch []Datagram) (int, error)
	// NextTimeout returns the monotonic deadline of the transport's earliest
	// pending event.
	NextTimeout() time.Time
	// MasterID returns the authenticated numeric identity embedded in CIDs
	// minted for this connection.
	MasterID() uint64
	// OfferedCID returns the connection ID the client offered in its first
	// flight. Server-side only.
	OfferedCID() protocol.ConnectionID
	RemoteAddr() netip.AddrPort
	IsClient() bool
	// Close releases all transport state.
	Close() error
}

// A TransportStream is a unidirectional QUIC stream handle.
type TransportStream interface {
	StreamID() int64
	// IsSelfInitiated distinguishes egress streams (opened here) from
	// ingress streams (opened by the peer).
	IsSelfInitiated() bool
	SetCallbacks(cb StreamCallbacks)
	Callbacks() StreamCallbacks
	// RecvTransferComplete reports whether the peer has delivered the
	// receive side in full.
	RecvTransferComplete() bool
	// RecvContiguousBytes returns the length of the contiguous prefix of
	// received bytes not yet consumed.
	RecvContiguousBytes() int
	// SyncRecvBuf returns n consumed bytes to the flow-control window.
	SyncRecvBuf(n int)
	// SyncSendBuf tells the transport that the send buffer holds new bytes.
	SyncSendBuf() error
	// RequestStopSending asks the peer to stop sending on this stream.
	RequestStopSending(code ErrCode)
}

// StreamCallbacks receives per-stream events from the transport. The
// connection installs an implementation on every unidirectional stream.
type StreamCallbacks interface {
	// OnDestroy is invoked when the transport destroys the stream.
	OnDestroy(code ErrCode)
	// OnSendShift drops the first delta bytes of the send buffer; the
	// transport has durably handed them off.
	OnSendShift(delta int)
	// OnSendEmit copies up to len(dst) bytes starting at offset off of the
	// send buffer into dst. wroteAll is set iff the request saturated the
	// remaining bytes.
	OnSendEmit(off int, dst []byte) (n int, wroteAll bool, err error)
	// OnSendStop is invoked when the peer asks us to stop sending.
	OnSendStop(code ErrCode) error
	// OnReceive delivers stream bytes. off is relative to the first byte
	// not yet released through SyncRecvBuf, so out-of-order data lands
	// ahead of the contiguous window.
	OnReceive(off int, b []byte) error
	// OnReceiveReset is invoked when the peer resets its sending side.
	OnReceiveReset(code ErrCode) error
}
