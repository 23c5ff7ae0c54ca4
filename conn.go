package h3mux

// defaultMaxBlockedStreams caps how many request streams may block on QPACK
// dynamic-table updates.
// TODO: make the blocked-streams limit configurable
const defaultMaxBlockedStreams = 100

// A QPACKDecoder is the half of the QPACK codec that consumes the peer's
// encoder stream and produces instructions for our decoder stream.
type QPACKDecoder interface {
	// FeedEncoderStream consumes as many complete encoder-stream
	// instructions from b as possible and returns the number of bytes
	// consumed, plus the ids of request streams the processed instructions
	// unblocked. A trailing partial instruction is left for the next call.
	FeedEncoderStream(b []byte) (consumed int, unblocked []int64, err error)
	// AppendStreamCancel appends a stream-cancellation instruction for
	// streamID to b.
	AppendStreamCancel(b []byte, streamID int64) []byte
	Close() error
}

// A QPACKEncoder is the half of the QPACK codec that consumes the peer's
// decoder stream (section acknowledgements, stream cancellations, insert
// count increments).
type QPACKEncoder interface {
	// FeedDecoderStream consumes as many complete decoder-stream
	// instructions from b as possible and returns the number of bytes
	// consumed.
	FeedDecoderStream(b []byte) (consumed int, err error)
	Close() error
}

// ConnCallbacks connect a Conn to the HTTP layer above it.
type ConnCallbacks struct {
	// HandleControlStreamFrame is invoked for every frame read from the
	// peer's control stream, SETTINGS included. The handler is expected to
	// call Conn.HandleSettingsFrame for SETTINGS.
	HandleControlStreamFrame func(c *Conn, t FrameType, payload []byte) error
	// DestroyConnection is invoked from the send loop once the transport
	// reports the connection can be freed. It must call Dispose.
	DestroyConnection func(c *Conn)
}

// A Conn is one HTTP/3 connection: a transport handle, the QPACK codec
// halves, the six unidirectional control streams and a timer.
type Conn struct {
	ctx       *Context
	quic      TransportConn
	callbacks *ConnCallbacks

	// qpackDec exists from setup; qpackEnc is created once the peer's
	// SETTINGS fixes its parameters.
	qpackDec QPACKDecoder
	qpackEnc QPACKEncoder

	ingress struct {
		control      *ingressUniStream
		qpackEncoder *ingressUniStream
		qpackDecoder *ingressUniStream
	}
	egress struct {
		control      *egressUniStream
		qpackEncoder *egressUniStream
		qpackDecoder *egressUniStream
	}

	timer *Timer
}

// NewConn constructs a bare connection bound to ctx. It is not usable until
// Setup attaches a transport handle.
func NewConn(ctx *Context, callbacks *ConnCallbacks) *Conn {
	c := &Conn{ctx: ctx, callbacks: callbacks}
	c.timer = NewTimer(c.onTimeout)
	return c
}

// Context returns the owning context.
func (c *Conn) Context() *Context { return c.ctx }

// Transport returns the attached transport handle, nil before Setup.
func (c *Conn) Transport() TransportConn { return c.quic }

// HasReceivedSettings reports whether the peer's SETTINGS frame has been
// processed. The QPACK encoder comes into existence at that moment, so its
// presence is the flag.
func (c *Conn) HasReceivedSettings() bool { return c.qpackEnc != nil }

// Setup attaches a transport handle, registers the connection for lookup,
// opens the three egress unidirectional streams and arms the timer. The
// transport must already announce new unidirectional streams through
// OnUniStreamOpen.
func (c *Conn) Setup(tc TransportConn) error {
	c.quic = tc
	c.qpackDec = c.ctx.config.NewQPACKDecoder(c.ctx.config.HeaderTableSize, defaultMaxBlockedStreams)

	c.ctx.connsByID[tc.MasterID()] = c
	if !tc.IsClient() {
		// TODO: remove the entry once the Initial and 0-RTT keys are discarded
		c.ctx.connsAccepting[calcAcceptingKeyForConn(tc)] = c
	}

	var err error
	if c.egress.control, err = c.openEgressUniStream([]byte("C\x00\x04")); err != nil {
		return err
	}
	if c.egress.qpackEncoder, err = c.openEgressUniStream([]byte("H")); err != nil {
		return err
	}
	if c.egress.qpackDecoder, err = c.openEgressUniStream([]byte("h")); err != nil {
		return err
	}

	c.scheduleTimer()
	return nil
}

// Dispose unregisters the connection, frees the QPACK codec halves and the
// transport handle, and disarms the timer.
func (c *Conn) Dispose() {
	if c.qpackDec != nil {
		c.qpackDec.Close()
		c.qpackDec = nil
	}
	if c.qpackEnc != nil {
		c.qpackEnc.Close()
		c.qpackEnc = nil
	}
	if c.quic != nil {
		delete(c.ctx.connsByID, c.quic.MasterID())
		if !c.quic.IsClient() {
			delete(c.ctx.connsAccepting, calcAcceptingKeyForConn(c.quic))
		}
		c.quic.Close()
		c.quic = nil
	}
	if c.timer.IsLinked() {
		c.ctx.loop.UnlinkTimer(c.timer)
		c.timer.unlink()
	}
	if c.ctx.tracer != nil && c.ctx.tracer.DestroyedConnection != nil {
		c.ctx.tracer.DestroyedConnection()
	}
}

// OnUniStreamOpen must be invoked by the transport whenever a unidirectional
// stream comes into existence, peer-initiated or self-initiated.
func (c *Conn) OnUniStreamOpen(st TransportStream) {
	if st.IsSelfInitiated() {
		st.SetCallbacks(&egressUniStream{conn: c, quic: st})
	} else {
		st.SetCallbacks(&ingressUniStream{conn: c, quic: st, role: roleUnknown})
	}
}

func (c *Conn) openEgressUniStream(initial []byte) (*egressUniStream, error) {
	qs, err := c.quic.OpenUniStream()
	if err != nil {
		return nil, err
	}
	stream, ok := qs.Callbacks().(*egressUniStream)
	if !ok {
		panic("h3mux: transport did not announce the stream through OnUniStreamOpen")
	}
	stream.sendbuf.Append(initial)
	if err := qs.SyncSendBuf(); err != nil {
		return nil, err
	}
	return stream, nil
}

// SendQPACKStreamCancel emits a QPACK stream-cancellation instruction for
// streamID on the egress decoder stream.
func (c *Conn) SendQPACKStreamCancel(streamID int64) error {
	stream := c.egress.qpackDecoder
	stream.sendbuf.Append(c.qpackDec.AppendStreamCancel(nil, streamID))
	return stream.quic.SyncSendBuf()
}

// SendQPACKHeaderAck appends raw decoder-side acknowledgement bytes to the
// egress encoder stream.
func (c *Conn) SendQPACKHeaderAck(b []byte) error {
	stream := c.egress.qpackEncoder
	stream.sendbuf.Append(b)
	return stream.quic.SyncSendBuf()
}

func (c *Conn) onTimeout() {
	if err := c.Send(); err != nil {
		c.ctx.logger.Error("send failed", "remote", c.quic.RemoteAddr(), "error", err)
	}
}
