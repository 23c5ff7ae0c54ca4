package h3mux

import (
	"io"
	"log/slog"
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/h3mux/h3mux/internal/protocol"
)

// fakes for the transport, socket and event loop collaborators

type fakeLoop struct {
	now     time.Time
	links   int
	unlinks int
	delays  map[*Timer]time.Duration
}

func newFakeLoop() *fakeLoop {
	return &fakeLoop{
		now:    time.Date(2019, 1, 15, 10, 0, 0, 0, time.UTC),
		delays: make(map[*Timer]time.Duration),
	}
}

func (l *fakeLoop) Now() time.Time { return l.now }

func (l *fakeLoop) LinkTimer(t *Timer, delay time.Duration) {
	l.links++
	l.delays[t] = delay
}

func (l *fakeLoop) UnlinkTimer(t *Timer) {
	l.unlinks++
	delete(l.delays, t)
}

type queuedDatagram struct {
	data []byte
	addr netip.AddrPort
}

type fakeSocket struct {
	reads  []queuedDatagram
	writes []queuedDatagram
	closed bool
}

func (s *fakeSocket) ReadDatagram(b []byte) (int, netip.AddrPort, error) {
	if len(s.reads) == 0 {
		return 0, netip.AddrPort{}, nil
	}
	d := s.reads[0]
	s.reads = s.reads[1:]
	n := copy(b, d.data)
	return n, d.addr, nil
}

func (s *fakeSocket) WriteDatagram(b []byte, to netip.AddrPort) error {
	data := make([]byte, len(b))
	copy(data, b)
	s.writes = append(s.writes, queuedDatagram{data: data, addr: to})
	return nil
}

func (s *fakeSocket) Close() error {
	s.closed = true
	return nil
}

type fakeStream struct {
	id            int64
	selfInitiated bool
	cb            StreamCallbacks

	recvComplete bool
	recvAvail    int
	syncedRecv   int
	syncedSend   int
	stopSending  []ErrCode
}

var _ TransportStream = &fakeStream{}

func (s *fakeStream) StreamID() int64                 { return s.id }
func (s *fakeStream) IsSelfInitiated() bool           { return s.selfInitiated }
func (s *fakeStream) SetCallbacks(cb StreamCallbacks) { s.cb = cb }
func (s *fakeStream) Callbacks() StreamCallbacks      { return s.cb }
func (s *fakeStream) RecvTransferComplete() bool      { return s.recvComplete }
func (s *fakeStream) RecvContiguousBytes() int        { return s.recvAvail }
func (s *fakeStream) SyncRecvBuf(n int)               { s.syncedRecv += n; s.recvAvail -= n }
func (s *fakeStream) SyncSendBuf() error              { s.syncedSend++; return nil }
func (s *fakeStream) RequestStopSending(code ErrCode) { s.stopSending = append(s.stopSending, code) }

// deliver counts b as newly contiguous received bytes and invokes the
// receive callback with offset off the way a transport would.
func (s *fakeStream) deliver(t *testing.T, off int, b []byte) error {
	t.Helper()
	require.NotNil(t, s.cb)
	s.recvAvail += len(b)
	return s.cb.OnReceive(off, b)
}

type fakeTransportConn struct {
	conn *Conn

	masterID    uint64
	offeredCID  protocol.ConnectionID
	remote      netip.AddrPort
	client      bool
	nextTimeout time.Time

	streams  []*fakeStream
	received []*DecodedPacket
	closed   bool

	pollSend func(batch []Datagram) (int, error)
	isDest   func(remote netip.AddrPort, p *DecodedPacket) bool
}

var _ TransportConn = &fakeTransportConn{}

func (c *fakeTransportConn) Receive(p *DecodedPacket) error {
	c.received = append(c.received, p)
	return nil
}

func (c *fakeTransportConn) IsDestination(remote netip.AddrPort, p *DecodedPacket) bool {
	if c.isDest != nil {
		return c.isDest(remote, p)
	}
	return true
}

func (c *fakeTransportConn) OpenUniStream() (TransportStream, error) {
	st := &fakeStream{id: int64(len(c.streams))*4 + 3, selfInitiated: true}
	c.conn.OnUniStreamOpen(st)
	c.streams = append(c.streams, st)
	return st, nil
}

func (c *fakeTransportConn) PollSend(batch []Datagram) (int, error) {
	if c.pollSend != nil {
		return c.pollSend(batch)
	}
	return 0, nil
}

func (c *fakeTransportConn) NextTimeout() time.Time            { return c.nextTimeout }
func (c *fakeTransportConn) MasterID() uint64                  { return c.masterID }
func (c *fakeTransportConn) OfferedCID() protocol.ConnectionID { return c.offeredCID }
func (c *fakeTransportConn) RemoteAddr() netip.AddrPort        { return c.remote }
func (c *fakeTransportConn) IsClient() bool                    { return c.client }
func (c *fakeTransportConn) Close() error                      { c.closed = true; return nil }

// fakePacketDecoder parses the test packet encoding: a one-byte CID length,
// the CID, a one-byte payload length, the payload. The flags byte ahead of
// the CID length selects client-generated CIDs.
type fakePacketDecoder struct{}

var _ PacketDecoder = fakePacketDecoder{}

func (fakePacketDecoder) DecodePacket(b []byte) (DecodedPacket, int, bool) {
	if len(b) < 2 {
		return DecodedPacket{}, 0, false
	}
	clientGenerated := b[0] != 0
	cidLen := int(b[1])
	if len(b) < 2+cidLen+1 {
		return DecodedPacket{}, 0, false
	}
	cid := append(protocol.ConnectionID{}, b[2:2+cidLen]...)
	payloadLen := int(b[2+cidLen])
	end := 2 + cidLen + 1 + payloadLen
	if len(b) < end {
		return DecodedPacket{}, 0, false
	}
	return DecodedPacket{
		Data:                          append([]byte{}, b[:end]...),
		DestCID:                       cid,
		DestCIDMightBeClientGenerated: clientGenerated,
	}, end, true
}

// encodeTestPacket builds one packet in the fakePacketDecoder encoding.
func encodeTestPacket(clientGenerated bool, cid []byte, payload []byte) []byte {
	b := make([]byte, 0, 3+len(cid)+len(payload))
	if clientGenerated {
		b = append(b, 1)
	} else {
		b = append(b, 0)
	}
	b = append(b, byte(len(cid)))
	b = append(b, cid...)
	b = append(b, byte(len(payload)))
	return append(b, payload...)
}

type frameRecord struct {
	typ     FrameType
	payload []byte
}

type testHarness struct {
	ctx    *Context
	loop   *fakeLoop
	sock   *fakeSocket
	frames []frameRecord

	destroyed bool
}

func newTestContext(t *testing.T) *testHarness {
	t.Helper()
	h := &testHarness{loop: newFakeLoop(), sock: &fakeSocket{}}
	h.ctx = NewContext(h.loop, h.sock, fakePacketDecoder{}, nil, &Config{
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	return h
}

func (h *testHarness) callbacks() *ConnCallbacks {
	return &ConnCallbacks{
		HandleControlStreamFrame: func(c *Conn, typ FrameType, payload []byte) error {
			if typ == FrameTypeSettings {
				return c.HandleSettingsFrame(payload)
			}
			h.frames = append(h.frames, frameRecord{typ: typ, payload: append([]byte{}, payload...)})
			return nil
		},
		DestroyConnection: func(c *Conn) {
			h.destroyed = true
			c.Dispose()
		},
	}
}

// newTestConn sets up a server-side connection on a fresh context.
func newTestConn(t *testing.T) (*testHarness, *Conn, *fakeTransportConn) {
	t.Helper()
	h := newTestContext(t)
	conn := NewConn(h.ctx, h.callbacks())
	tc := &fakeTransportConn{
		conn:        conn,
		masterID:    7,
		offeredCID:  protocol.ConnectionID{0xde, 0xad, 0xbe, 0xef},
		remote:      netip.MustParseAddrPort("192.0.2.33:4433"),
		nextTimeout: h.loop.now.Add(25 * time.Millisecond),
	}
	require.NoError(t, conn.Setup(tc))
	return h, conn, tc
}

// newIngressStream announces a fresh peer-initiated unistream to conn.
func newIngressStream(t *testing.T, conn *Conn, id int64) *fakeStream {
	t.Helper()
	st := &fakeStream{id: id}
	conn.OnUniStreamOpen(st)
	require.NotNil(t, st.cb)
	return st
}
