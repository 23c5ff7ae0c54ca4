package h3mux

import (
	"encoding/binary"
	"fmt"

	"github.com/quic-go/quic-go/quicvarint"
)

// A Setting identifies one HTTP/3 SETTINGS parameter. Draft 17 encodes
// setting identifiers as 16-bit integers.
type Setting uint16

const (
	SettingHeaderTableSize     Setting = 0x1
	SettingNumPlaceholders     Setting = 0x3
	SettingMaxHeaderListSize   Setting = 0x6
	SettingQPACKBlockedStreams Setting = 0x7
)

func (s Setting) String() string {
	switch s {
	case SettingHeaderTableSize:
		return "HEADER_TABLE_SIZE"
	case SettingNumPlaceholders:
		return "NUM_PLACEHOLDERS"
	case SettingMaxHeaderListSize:
		return "MAX_HEADER_LIST_SIZE"
	case SettingQPACKBlockedStreams:
		return "QPACK_BLOCKED_STREAMS"
	default:
		return fmt.Sprintf("H3 setting 0x%x", uint16(s))
	}
}

// DefaultHeaderTableSize is the QPACK header table size assumed until the
// peer's SETTINGS frame says otherwise.
const DefaultHeaderTableSize = 4096

// HandleSettingsFrame digests the peer's SETTINGS payload and creates the
// QPACK encoder with the negotiated table size. The control-stream framing
// layer guarantees SETTINGS arrives exactly once before anything else;
// calling this twice is a programmer error.
func (c *Conn) HandleSettingsFrame(payload []byte) error {
	if c.HasReceivedSettings() {
		panic("h3mux: SETTINGS handled twice")
	}

	headerTableSize := uint64(DefaultHeaderTableSize)
	for len(payload) > 0 {
		if len(payload) < 2 {
			return malformedFrame(FrameTypeSettings, "truncated setting id")
		}
		id := Setting(binary.BigEndian.Uint16(payload))
		value, n, err := quicvarint.Parse(payload[2:])
		if err != nil {
			return malformedFrame(FrameTypeSettings, "truncated setting value")
		}
		payload = payload[2+n:]

		switch id {
		case SettingHeaderTableSize:
			headerTableSize = value
		default:
			// unknown settings are ignored
		}
	}

	c.qpackEnc = c.ctx.config.NewQPACKEncoder(headerTableSize, defaultMaxBlockedStreams)
	return nil
}
