package h3mux

import (
	"sync"

	"github.com/h3mux/h3mux/internal/protocol"
)

// A PacketBuffer holds the payload of one outbound datagram. Transports fill
// one per datagram returned from PollSend; the send loop calls Release once
// the datagram has been written to the socket.
type PacketBuffer struct {
	Data []byte

	// refCount counts the datagrams sharing the buffer.
	// It doesn't support concurrent use.
	refCount int
}

// Split increases the refCount. It must be called when a buffer backs more
// than one datagram.
func (b *PacketBuffer) Split() {
	b.refCount++
}

// Release decreases the refCount. When it reaches 0 the buffer is put back
// into the pool.
func (b *PacketBuffer) Release() {
	if cap(b.Data) != protocol.MaxPacketBufferSize {
		panic("h3mux: Release called with packet buffer of wrong size")
	}
	b.refCount--
	if b.refCount < 0 {
		panic("h3mux: negative PacketBuffer refCount")
	}
	if b.refCount == 0 {
		packetBufferPool.Put(b)
	}
}

var packetBufferPool sync.Pool

// GetPacketBuffer returns an empty buffer with room for one datagram.
func GetPacketBuffer() *PacketBuffer {
	buf := packetBufferPool.Get().(*PacketBuffer)
	buf.refCount = 1
	buf.Data = buf.Data[:0]
	return buf
}

func init() {
	packetBufferPool.New = func() any {
		return &PacketBuffer{Data: make([]byte, 0, protocol.MaxPacketBufferSize)}
	}
}
