package protocol

// MaxPacketBufferSize is the size of outbound datagram buffers. QUIC packets
// never exceed the 1452 bytes available in an Ethernet-MTU IPv6 datagram.
const MaxPacketBufferSize = 1452

// MaxConnectionIDLen is the largest connection ID QUIC v1 permits.
const MaxConnectionIDLen = 20
