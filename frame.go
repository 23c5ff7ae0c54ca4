package h3mux

import (
	"fmt"

	"github.com/quic-go/quic-go/quicvarint"
)

// maxFrameSize caps the payload of every frame other than DATA. The stream
// receive window must be at least this large, or a single frame could stall
// the control stream forever.
const maxFrameSize = 16384

// A FrameType identifies an HTTP/3 frame. Draft 17 encodes it as a single
// byte following the varint length.
type FrameType uint8

const (
	FrameTypeData          FrameType = 0x0
	FrameTypeHeaders       FrameType = 0x1
	FrameTypePriority      FrameType = 0x2
	FrameTypeCancelPush    FrameType = 0x3
	FrameTypeSettings      FrameType = 0x4
	FrameTypePushPromise   FrameType = 0x5
	FrameTypeGoAway        FrameType = 0x7
	FrameTypeMaxPushID     FrameType = 0xd
	FrameTypeDuplicatePush FrameType = 0xe
)

func (t FrameType) String() string {
	switch t {
	case FrameTypeData:
		return "DATA"
	case FrameTypeHeaders:
		return "HEADERS"
	case FrameTypePriority:
		return "PRIORITY"
	case FrameTypeCancelPush:
		return "CANCEL_PUSH"
	case FrameTypeSettings:
		return "SETTINGS"
	case FrameTypePushPromise:
		return "PUSH_PROMISE"
	case FrameTypeGoAway:
		return "GO_AWAY"
	case FrameTypeMaxPushID:
		return "MAX_PUSH_ID"
	case FrameTypeDuplicatePush:
		return "DUPLICATE_PUSH"
	default:
		return fmt.Sprintf("H3 frame type 0x%x", uint8(t))
	}
}

// A frame is a single HTTP/3 frame as read from a control stream: a varint
// payload length followed by a one-byte type.
type frame struct {
	Type   FrameType
	Length uint64
	// Payload is nil for DATA frames: their body is streamed by the request
	// layer, not buffered here.
	Payload    []byte
	headerSize int
}

// parseFrame decodes one frame from the head of b and returns the number of
// bytes consumed. For DATA frames only the header is consumed.
//
// errIncomplete means b ends in the middle of a frame; nothing was consumed
// and the caller should wait for more bytes. A *ConnError carrying a
// malformed-frame code means the peer violated the framing rules.
func parseFrame(b []byte) (frame, int, error) {
	length, n, err := quicvarint.Parse(b)
	if err != nil {
		return frame{}, 0, errIncomplete
	}
	if n == len(b) {
		return frame{}, 0, errIncomplete
	}
	f := frame{
		Type:       FrameType(b[n]),
		Length:     length,
		headerSize: n + 1,
	}
	consumed := f.headerSize
	if f.Type != FrameTypeData {
		if f.Length >= maxFrameSize {
			return frame{}, 0, malformedFrame(f.Type, "H3 frame too large")
		}
		if uint64(len(b)-consumed) < f.Length {
			return frame{}, 0, errIncomplete
		}
		f.Payload = b[consumed : consumed+int(f.Length)]
		consumed += int(f.Length)
	}
	return f, consumed, nil
}
