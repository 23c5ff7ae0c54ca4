// Package qpackcodec implements the QPACK side channels of an HTTP/3
// connection: the instruction streams that maintain the shared dynamic
// table and acknowledge field sections. Header blocks themselves are
// encoded and decoded through github.com/quic-go/qpack.
package qpackcodec

import (
	"errors"
	"slices"

	"github.com/quic-go/qpack"
)

var (
	errInvalidStaticIndex  = errors.New("qpackcodec: invalid static table index")
	errInvalidDynamicIndex = errors.New("qpackcodec: invalid dynamic table index")
	errTableCapacityTooBig = errors.New("qpackcodec: dynamic table capacity exceeds the advertised maximum")
	errEntryDoesNotFit     = errors.New("qpackcodec: inserted entry larger than the table capacity")
	errTooManyBlocked      = errors.New("qpackcodec: too many blocked streams")
)

// A Decoder is the receiving half of the QPACK codec: it consumes the
// peer's encoder stream, mirrors the peer's dynamic table, and emits
// instructions for our decoder stream.
type Decoder struct {
	maxTableCapacity uint64
	maxBlocked       int

	table       dynamicTable
	insertCount uint64

	// blocked maps a request stream to the insert count its field section
	// needs before it can be decoded.
	blocked map[int64]uint64
}

// NewDecoder returns a decoder for the given advertised table capacity and
// blocked-streams limit.
func NewDecoder(maxTableCapacity uint64, maxBlockedStreams int) *Decoder {
	return &Decoder{
		maxTableCapacity: maxTableCapacity,
		maxBlocked:       maxBlockedStreams,
		blocked:          make(map[int64]uint64),
	}
}

// InsertCount returns the number of entries ever inserted into the mirrored
// dynamic table.
func (d *Decoder) InsertCount() uint64 { return d.insertCount }

// FeedEncoderStream consumes as many complete encoder-stream instructions
// from b as possible. It returns the number of bytes consumed and the ids of
// request streams that became decodable. A trailing partial instruction is
// left unconsumed for the next call.
func (d *Decoder) FeedEncoderStream(b []byte) (int, []int64, error) {
	consumed := 0
	for consumed < len(b) {
		n, err := d.readInstruction(b[consumed:])
		if err != nil {
			return consumed, nil, err
		}
		if n == 0 {
			break
		}
		consumed += n
	}

	var unblocked []int64
	for id, required := range d.blocked {
		if required <= d.insertCount {
			unblocked = append(unblocked, id)
			delete(d.blocked, id)
		}
	}
	slices.Sort(unblocked)
	return consumed, unblocked, nil
}

// RegisterBlockedStream records that streamID cannot decode its field
// section until requiredInsertCount entries have been inserted. Streams
// already satisfied are not registered.
func (d *Decoder) RegisterBlockedStream(streamID int64, requiredInsertCount uint64) error {
	if requiredInsertCount <= d.insertCount {
		return nil
	}
	if len(d.blocked) >= d.maxBlocked {
		return errTooManyBlocked
	}
	d.blocked[streamID] = requiredInsertCount
	return nil
}

// AppendStreamCancel appends a stream-cancellation instruction for streamID
// to b.
func (d *Decoder) AppendStreamCancel(b []byte, streamID int64) []byte {
	delete(d.blocked, streamID)
	return appendPrefixedInt(b, 0x40, 6, uint64(streamID))
}

// AppendSectionAck appends a section-acknowledgement instruction for
// streamID to b.
func (d *Decoder) AppendSectionAck(b []byte, streamID int64) []byte {
	return appendPrefixedInt(b, 0x80, 7, uint64(streamID))
}

// AppendInsertCountIncrement appends an insert-count-increment instruction
// to b.
func (d *Decoder) AppendInsertCountIncrement(b []byte, increment uint64) []byte {
	return appendPrefixedInt(b, 0x00, 6, increment)
}

// DecodeFieldSection decodes an encoded field section that references only
// the static table.
func (d *Decoder) DecodeFieldSection(b []byte) ([]qpack.HeaderField, error) {
	dec := qpack.NewDecoder(func(qpack.HeaderField) {})
	return dec.DecodeFull(b)
}

// Close releases the decoder's state.
func (d *Decoder) Close() error {
	d.table = dynamicTable{}
	d.blocked = nil
	return nil
}

// readInstruction consumes one encoder-stream instruction. n == 0 with a nil
// error means b holds a partial instruction.
func (d *Decoder) readInstruction(b []byte) (int, error) {
	switch {
	case b[0]&0x80 != 0: // Insert With Name Reference
		static := b[0]&0x40 != 0
		idx, n, err := readPrefixedInt(b, 6)
		if err != nil || n == 0 {
			return 0, err
		}
		value, m, err := readLiteralString(b[n:], 7)
		if err != nil || m == 0 {
			return 0, err
		}
		var name string
		if static {
			if idx >= uint64(len(staticTable)) {
				return 0, errInvalidStaticIndex
			}
			name = staticTable[idx].Name
		} else {
			f, ok := d.table.relative(idx)
			if !ok {
				return 0, errInvalidDynamicIndex
			}
			name = f.Name
		}
		if err := d.insert(qpack.HeaderField{Name: name, Value: value}); err != nil {
			return 0, err
		}
		return n + m, nil

	case b[0]&0x40 != 0: // Insert Without Name Reference
		name, n, err := readLiteralString(b, 5)
		if err != nil || n == 0 {
			return 0, err
		}
		value, m, err := readLiteralString(b[n:], 7)
		if err != nil || m == 0 {
			return 0, err
		}
		if err := d.insert(qpack.HeaderField{Name: name, Value: value}); err != nil {
			return 0, err
		}
		return n + m, nil

	case b[0]&0x20 != 0: // Set Dynamic Table Capacity
		capacity, n, err := readPrefixedInt(b, 5)
		if err != nil || n == 0 {
			return 0, err
		}
		if capacity > d.maxTableCapacity {
			return 0, errTableCapacityTooBig
		}
		d.table.setCapacity(capacity)
		return n, nil

	default: // Duplicate
		idx, n, err := readPrefixedInt(b, 5)
		if err != nil || n == 0 {
			return 0, err
		}
		f, ok := d.table.relative(idx)
		if !ok {
			return 0, errInvalidDynamicIndex
		}
		if err := d.insert(f); err != nil {
			return 0, err
		}
		return n, nil
	}
}

func (d *Decoder) insert(f qpack.HeaderField) error {
	if !d.table.add(f) {
		return errEntryDoesNotFit
	}
	d.insertCount++
	return nil
}
