package h3mux

// Unidirectional stream type bytes (draft 17).
const (
	streamTypeControl      = 'C'
	streamTypeQPACKEncoder = 'H'
	streamTypeQPACKDecoder = 'h'
)

// A streamRole is the fixed function of an ingress unidirectional stream,
// discovered from the first byte the peer sends.
type streamRole uint8

const (
	roleUnknown streamRole = iota
	roleControl
	roleQPACKEncoder
	roleQPACKDecoder
	// roleDiscard consumes and drops everything after an unknown type byte.
	roleDiscard
)

// An ingressUniStream is a peer-initiated unidirectional stream. Every
// discovered ingress unistream is critical: losing one kills the connection.
type ingressUniStream struct {
	conn    *Conn
	quic    TransportStream
	recvbuf buffer
	role    streamRole
}

var _ StreamCallbacks = &ingressUniStream{}

func (s *ingressUniStream) OnDestroy(ErrCode) {
	s.recvbuf = buffer{}
}

func (s *ingressUniStream) OnReceive(off int, b []byte) error {
	s.recvbuf.Splice(off, b)

	if s.quic.RecvTransferComplete() {
		return &ConnError{Code: ErrCodeClosedCriticalStream}
	}

	avail := s.quic.RecvContiguousBytes()
	if avail == 0 {
		return nil
	}

	consumed, err := s.handleInput(s.recvbuf.Bytes()[:avail])
	if consumed != 0 {
		s.recvbuf.Consume(consumed)
		s.quic.SyncRecvBuf(consumed)
	}
	return err
}

func (s *ingressUniStream) OnReceiveReset(ErrCode) error {
	return &ConnError{Code: ErrCodeClosedCriticalStream}
}

func (s *ingressUniStream) OnSendShift(int) {
	panic("h3mux: send event on ingress stream")
}

func (s *ingressUniStream) OnSendEmit(int, []byte) (int, bool, error) {
	panic("h3mux: send event on ingress stream")
}

func (s *ingressUniStream) OnSendStop(ErrCode) error {
	panic("h3mux: send event on ingress stream")
}

// handleInput consumes a prefix of src according to the stream's role and
// returns how many bytes it took.
func (s *ingressUniStream) handleInput(src []byte) (int, error) {
	consumed := 0
	if s.role == roleUnknown {
		if len(src) == 0 {
			// the peer may close a unistream without sending anything
			return 0, nil
		}
		switch src[0] {
		case streamTypeControl:
			s.conn.ingress.control = s
			s.role = roleControl
		case streamTypeQPACKEncoder:
			s.conn.ingress.qpackEncoder = s
			s.role = roleQPACKEncoder
		case streamTypeQPACKDecoder:
			s.conn.ingress.qpackDecoder = s
			s.role = roleQPACKDecoder
		default:
			s.quic.RequestStopSending(ErrCodeUnknownStreamType)
			s.role = roleDiscard
		}
		consumed = 1
	}

	var (
		n   int
		err error
	)
	rest := src[consumed:]
	switch s.role {
	case roleControl:
		n, err = s.handleControlInput(rest)
	case roleQPACKEncoder:
		n, err = s.handleQPACKEncoderInput(rest)
	case roleQPACKDecoder:
		n, err = s.handleQPACKDecoderInput(rest)
	case roleDiscard:
		n = len(rest)
	}
	return consumed + n, err
}

func (s *ingressUniStream) handleControlInput(src []byte) (int, error) {
	consumed := 0
	for consumed < len(src) {
		f, n, err := parseFrame(src[consumed:])
		if err == errIncomplete {
			return consumed, nil
		}
		if err != nil {
			return consumed, err
		}
		consumed += n

		// SETTINGS opens the control stream, exactly once; DATA never
		// belongs here.
		conn := s.conn
		if conn.HasReceivedSettings() == (f.Type == FrameTypeSettings) || f.Type == FrameTypeData {
			return consumed, malformedFrame(f.Type, "")
		}
		if err := conn.callbacks.HandleControlStreamFrame(conn, f.Type, f.Payload); err != nil {
			return consumed, err
		}
	}
	return consumed, nil
}

func (s *ingressUniStream) handleQPACKEncoderInput(src []byte) (int, error) {
	n, unblocked, err := s.conn.qpackDec.FeedEncoderStream(src)
	if err != nil {
		return n, err
	}
	_ = unblocked // TODO: surface streams unblocked by the decoder to the request layer
	return n, nil
}

func (s *ingressUniStream) handleQPACKDecoderInput(src []byte) (int, error) {
	enc := s.conn.qpackEnc
	if enc == nil {
		// acknowledgements cannot be interpreted before SETTINGS has fixed
		// the encoder's parameters; leave the bytes buffered
		return 0, nil
	}
	return enc.FeedDecoderStream(src)
}

// An egressUniStream is a self-initiated unidirectional stream. The first
// byte it ever emits is its stream-type byte, written at connection setup.
type egressUniStream struct {
	conn    *Conn
	quic    TransportStream
	sendbuf buffer
}

var _ StreamCallbacks = &egressUniStream{}

func (s *egressUniStream) OnDestroy(ErrCode) {
	s.sendbuf = buffer{}
}

func (s *egressUniStream) OnSendShift(delta int) {
	s.sendbuf.Consume(delta)
}

func (s *egressUniStream) OnSendEmit(off int, dst []byte) (int, bool, error) {
	avail := s.sendbuf.Len() - off
	n := len(dst)
	wroteAll := false
	if n >= avail {
		n = avail
		wroteAll = true
	}
	copy(dst[:n], s.sendbuf.Bytes()[off:])
	return n, wroteAll, nil
}

func (s *egressUniStream) OnSendStop(ErrCode) error {
	return &ConnError{Code: ErrCodeClosedCriticalStream}
}

func (s *egressUniStream) OnReceive(int, []byte) error {
	panic("h3mux: receive event on egress stream")
}

func (s *egressUniStream) OnReceiveReset(ErrCode) error {
	panic("h3mux: receive event on egress stream")
}
