package qpackcodec

import (
	"bytes"
	"errors"

	"github.com/quic-go/qpack"
)

var (
	errUnexpectedSectionAck = errors.New("qpackcodec: section acknowledgement without outstanding section")
	errInvalidIncrement     = errors.New("qpackcodec: invalid insert count increment")
)

// An Encoder is the sending half of the QPACK codec: it encodes field
// sections and consumes the peer's decoder stream (section
// acknowledgements, stream cancellations, insert count increments).
//
// The encoder never references the dynamic table, so encoded sections can
// always be decoded immediately.
type Encoder struct {
	headerTableSize uint64
	maxBlocked      int

	// insertCount counts dynamic inserts we have emitted; zero while the
	// encoder is static-only.
	insertCount        uint64
	knownReceivedCount uint64

	// outstanding counts unacknowledged field sections per request stream.
	outstanding map[int64]int
}

// NewEncoder returns an encoder honoring the peer's advertised table size
// and blocked-streams limit.
func NewEncoder(headerTableSize uint64, maxBlockedStreams int) *Encoder {
	return &Encoder{
		headerTableSize: headerTableSize,
		maxBlocked:      maxBlockedStreams,
		outstanding:     make(map[int64]int),
	}
}

// KnownReceivedCount returns how many of our dynamic inserts the peer has
// acknowledged.
func (e *Encoder) KnownReceivedCount() uint64 { return e.knownReceivedCount }

// EncodeFieldSection encodes fields as a field section referencing only the
// static table.
func (e *Encoder) EncodeFieldSection(fields []qpack.HeaderField) ([]byte, error) {
	var buf bytes.Buffer
	enc := qpack.NewEncoder(&buf)
	for _, f := range fields {
		if err := enc.WriteField(f); err != nil {
			return nil, err
		}
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// TrackSection records that a field section was sent on streamID, so the
// peer's acknowledgement for it is expected.
func (e *Encoder) TrackSection(streamID int64) {
	e.outstanding[streamID]++
}

// FeedDecoderStream consumes as many complete decoder-stream instructions
// from b as possible and returns the number of bytes consumed. A trailing
// partial instruction is left for the next call.
func (e *Encoder) FeedDecoderStream(b []byte) (int, error) {
	consumed := 0
	for consumed < len(b) {
		n, err := e.readInstruction(b[consumed:])
		if err != nil {
			return consumed, err
		}
		if n == 0 {
			break
		}
		consumed += n
	}
	return consumed, nil
}

// Close releases the encoder's state.
func (e *Encoder) Close() error {
	e.outstanding = nil
	return nil
}

func (e *Encoder) readInstruction(b []byte) (int, error) {
	switch {
	case b[0]&0x80 != 0: // Section Acknowledgment
		id, n, err := readPrefixedInt(b, 7)
		if err != nil || n == 0 {
			return 0, err
		}
		streamID := int64(id)
		if e.outstanding[streamID] == 0 {
			return 0, errUnexpectedSectionAck
		}
		e.outstanding[streamID]--
		if e.outstanding[streamID] == 0 {
			delete(e.outstanding, streamID)
		}
		return n, nil

	case b[0]&0x40 != 0: // Stream Cancellation
		id, n, err := readPrefixedInt(b, 6)
		if err != nil || n == 0 {
			return 0, err
		}
		delete(e.outstanding, int64(id))
		return n, nil

	default: // Insert Count Increment
		increment, n, err := readPrefixedInt(b, 6)
		if err != nil || n == 0 {
			return 0, err
		}
		if increment == 0 || e.knownReceivedCount+increment > e.insertCount {
			return 0, errInvalidIncrement
		}
		e.knownReceivedCount += increment
		return n, nil
	}
}
