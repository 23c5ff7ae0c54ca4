// Package h3mux implements the HTTP/3 (draft 17) framing and
// connection-multiplexing layer that sits between a QUIC transport and an
// HTTP request layer: control-stream framing, the QPACK encoder and decoder
// side channels, datagram-to-connection demultiplexing, and the send and
// timer loop that drives the transport's output onto the socket.
//
// The QUIC transport, the QPACK codec and the event loop are collaborators
// reached through interfaces; see PacketDecoder, TransportConn,
// TransportStream, QPACKDecoder, QPACKEncoder and EventLoop. Everything owned by a Context runs on a single event loop;
// nothing in this package is safe for concurrent use.
package h3mux

// NextProtoH3 is the ALPN token of the HTTP/3 draft this package speaks.
const NextProtoH3 = "h3-17"
