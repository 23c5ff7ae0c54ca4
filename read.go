package h3mux

import "net/netip"

const (
	// One read batch: up to 32 datagrams packed into a single 16 KiB
	// scratch buffer. Reading stops early once less than 2 KiB of room
	// remains, so every read has at least 2 KiB to land in.
	readBatchDatagrams = 32
	readBatchBufSize   = 16384
	readBatchMinRoom   = 2048

	// maxPacketBatch bounds how many decoded packets are grouped before
	// being flushed to their connection.
	maxPacketBatch = 64
)

type datagram struct {
	addr netip.AddrPort
	data []byte
}

// OnReadReady drains the socket. The event loop invokes it whenever the
// socket becomes readable.
func (ctx *Context) OnReadReady() {
	for {
		var buf [readBatchBufSize]byte
		var dgrams [readBatchDatagrams]datagram
		numDgrams := 0
		off := 0

		for numDgrams < readBatchDatagrams && readBatchBufSize-off >= readBatchMinRoom {
			n, addr, err := ctx.sock.ReadDatagram(buf[off:])
			if err != nil {
				ctx.logger.Debug("socket read failed", "error", err)
				break
			}
			if n <= 0 {
				break
			}
			if ctx.tracer != nil && ctx.tracer.ReceivedDatagram != nil {
				ctx.tracer.ReceivedDatagram(addr, n)
			}
			dgrams[numDgrams] = datagram{addr: addr, data: buf[off : off+n]}
			numDgrams++
			off += n
		}
		if numDgrams == 0 {
			return
		}

		ctx.processDatagrams(dgrams[:numDgrams])
	}
}

// processDatagrams decodes the batch into QUIC packets, grouping consecutive
// packets that share both the peer address and the destination CID bytes,
// and flushes each group to its connection. A change of either grouping key,
// or a full packet array, closes the open group before the next packet
// starts a new one.
func (ctx *Context) processDatagrams(dgrams []datagram) {
	var packets [maxPacketBatch]DecodedPacket
	numPackets := 0
	var groupAddr netip.AddrPort

	flush := func() {
		if numPackets != 0 {
			ctx.processPackets(groupAddr, packets[:numPackets])
			numPackets = 0
		}
	}

	for i := range dgrams {
		dgram := &dgrams[i]
		if numPackets != 0 && dgram.addr != groupAddr {
			flush()
		}
		groupAddr = dgram.addr

		data := dgram.data
		for len(data) > 0 {
			p, n, ok := ctx.decoder.DecodePacket(data)
			if !ok {
				// the rest of the datagram is not decodable
				if ctx.tracer != nil && ctx.tracer.DroppedPackets != nil {
					ctx.tracer.DroppedPackets(dgram.addr, 1, DropReasonDecodeError)
				}
				break
			}
			data = data[n:]

			if numPackets == maxPacketBatch || (numPackets != 0 && !packets[0].DestCID.Equal(p.DestCID)) {
				flush()
			}
			packets[numPackets] = p
			numPackets++
		}
	}
	flush()
}

// processPackets delivers one group of packets to its connection, consulting
// the acceptor on a miss. If a connection is in hand afterwards, its send
// path runs immediately: emitting while the connection state is hot keeps
// the reply in the same scheduling quantum as the request.
func (ctx *Context) processPackets(remote netip.AddrPort, packets []DecodedPacket) {
	conn := ctx.findConnection(remote, &packets[0])
	if conn != nil {
		for i := range packets {
			if err := conn.quic.Receive(&packets[i]); err != nil {
				ctx.logger.Debug("transport rejected packet", "remote", remote, "error", err)
			}
		}
	} else if ctx.acceptor != nil {
		conn = ctx.acceptor(ctx, remote, packets)
		if conn != nil && ctx.tracer != nil && ctx.tracer.AcceptedConnection != nil {
			ctx.tracer.AcceptedConnection(remote)
		}
	}

	if conn == nil {
		if ctx.tracer != nil && ctx.tracer.DroppedPackets != nil {
			ctx.tracer.DroppedPackets(remote, len(packets), DropReasonNoConnection)
		}
		return
	}

	if err := conn.Send(); err != nil {
		ctx.logger.Error("send failed", "remote", remote, "error", err)
	}
}
