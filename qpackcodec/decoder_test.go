package qpackcodec

import (
	"testing"

	"github.com/quic-go/qpack"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/http2/hpack"
)

// instruction builders for tests

func setCapacity(c uint64) []byte {
	return appendPrefixedInt(nil, 0x20, 5, c)
}

func insertWithoutNameRef(name, value string) []byte {
	b := appendPrefixedInt(nil, 0x40, 5, uint64(len(name)))
	b = append(b, name...)
	b = appendPrefixedInt(b, 0x00, 7, uint64(len(value)))
	return append(b, value...)
}

func insertWithStaticNameRef(idx uint64, value string) []byte {
	b := appendPrefixedInt(nil, 0x80|0x40, 6, idx)
	b = appendPrefixedInt(b, 0x00, 7, uint64(len(value)))
	return append(b, value...)
}

func duplicate(idx uint64) []byte {
	return appendPrefixedInt(nil, 0x00, 5, idx)
}

func TestDecoderInsertWithoutNameRef(t *testing.T) {
	d := NewDecoder(4096, 100)
	input := append(setCapacity(1024), insertWithoutNameRef("x-custom", "yes")...)

	n, unblocked, err := d.FeedEncoderStream(input)
	require.NoError(t, err)
	require.Equal(t, len(input), n)
	require.Empty(t, unblocked)
	require.Equal(t, uint64(1), d.InsertCount())

	f, ok := d.table.relative(0)
	require.True(t, ok)
	require.Equal(t, qpack.HeaderField{Name: "x-custom", Value: "yes"}, f)
}

func TestDecoderInsertWithStaticNameRef(t *testing.T) {
	d := NewDecoder(4096, 100)
	input := append(setCapacity(1024), insertWithStaticNameRef(17, "PATCH")...)

	n, _, err := d.FeedEncoderStream(input)
	require.NoError(t, err)
	require.Equal(t, len(input), n)

	f, ok := d.table.relative(0)
	require.True(t, ok)
	require.Equal(t, qpack.HeaderField{Name: ":method", Value: "PATCH"}, f)
}

func TestDecoderHuffmanLiteral(t *testing.T) {
	d := NewDecoder(4096, 100)
	name := hpack.AppendHuffmanString(nil, "content-md5")
	b := appendPrefixedInt(setCapacity(1024), 0x40|0x20, 5, uint64(len(name)))
	b = append(b, name...)
	b = appendPrefixedInt(b, 0x00, 7, 0)

	n, _, err := d.FeedEncoderStream(b)
	require.NoError(t, err)
	require.Equal(t, len(b), n)
	f, ok := d.table.relative(0)
	require.True(t, ok)
	require.Equal(t, "content-md5", f.Name)
}

func TestDecoderDuplicate(t *testing.T) {
	d := NewDecoder(4096, 100)
	input := append(setCapacity(1024), insertWithoutNameRef("a", "1")...)
	input = append(input, insertWithoutNameRef("b", "2")...)
	input = append(input, duplicate(1)...) // re-insert "a"

	n, _, err := d.FeedEncoderStream(input)
	require.NoError(t, err)
	require.Equal(t, len(input), n)
	require.Equal(t, uint64(3), d.InsertCount())

	f, ok := d.table.relative(0)
	require.True(t, ok)
	require.Equal(t, "a", f.Name)
}

func TestDecoderEviction(t *testing.T) {
	d := NewDecoder(4096, 100)
	// room for barely more than one entry ("aaaa"+"bbbb"+32 = 40)
	input := append(setCapacity(64), insertWithoutNameRef("aaaa", "bbbb")...)
	input = append(input, insertWithoutNameRef("cccc", "dddd")...)

	_, _, err := d.FeedEncoderStream(input)
	require.NoError(t, err)
	require.Equal(t, uint64(2), d.InsertCount())
	require.Len(t, d.table.entries, 1)
	require.Equal(t, "cccc", d.table.entries[0].Name)
}

func TestDecoderPartialInstruction(t *testing.T) {
	d := NewDecoder(4096, 100)
	full := append(setCapacity(1024), insertWithoutNameRef("name", "value")...)

	// feed everything but the last byte: the trailing instruction stays
	n, _, err := d.FeedEncoderStream(full[:len(full)-1])
	require.NoError(t, err)
	require.Equal(t, len(setCapacity(1024)), n)
	require.Zero(t, d.InsertCount())

	n, _, err = d.FeedEncoderStream(full[len(setCapacity(1024)):])
	require.NoError(t, err)
	require.Equal(t, uint64(1), d.InsertCount())
	_ = n
}

func TestDecoderErrors(t *testing.T) {
	d := NewDecoder(4096, 100)

	// capacity above the advertised maximum
	_, _, err := d.FeedEncoderStream(setCapacity(65536))
	require.ErrorIs(t, err, errTableCapacityTooBig)

	// static index out of range
	d = NewDecoder(4096, 100)
	_, _, err = d.FeedEncoderStream(insertWithStaticNameRef(99, "x"))
	require.ErrorIs(t, err, errInvalidStaticIndex)

	// dynamic reference into an empty table
	d = NewDecoder(4096, 100)
	_, _, err = d.FeedEncoderStream(duplicate(0))
	require.ErrorIs(t, err, errInvalidDynamicIndex)

	// entry that can never fit the table
	d = NewDecoder(4096, 100)
	input := append(setCapacity(8), insertWithoutNameRef("too", "big")...)
	_, _, err = d.FeedEncoderStream(input)
	require.ErrorIs(t, err, errEntryDoesNotFit)
}

func TestDecoderUnblocking(t *testing.T) {
	d := NewDecoder(4096, 100)
	require.NoError(t, d.RegisterBlockedStream(8, 2))
	require.NoError(t, d.RegisterBlockedStream(12, 1))

	input := append(setCapacity(1024), insertWithoutNameRef("a", "1")...)
	_, unblocked, err := d.FeedEncoderStream(input)
	require.NoError(t, err)
	require.Equal(t, []int64{12}, unblocked)

	_, unblocked, err = d.FeedEncoderStream(insertWithoutNameRef("b", "2"))
	require.NoError(t, err)
	require.Equal(t, []int64{8}, unblocked)
}

func TestDecoderBlockedStreamLimit(t *testing.T) {
	d := NewDecoder(4096, 1)
	require.NoError(t, d.RegisterBlockedStream(0, 1))
	require.ErrorIs(t, d.RegisterBlockedStream(4, 1), errTooManyBlocked)

	// an already-satisfied stream is not registered at all
	require.NoError(t, d.RegisterBlockedStream(8, 0))
}

func TestDecoderInstructionAppenders(t *testing.T) {
	d := NewDecoder(4096, 100)
	require.Equal(t, []byte{0x45}, d.AppendStreamCancel(nil, 5))
	require.Equal(t, []byte{0x85}, d.AppendSectionAck(nil, 5))
	require.Equal(t, []byte{0x02}, d.AppendInsertCountIncrement(nil, 2))
}

func TestDecoderFieldSectionRoundTrip(t *testing.T) {
	e := NewEncoder(4096, 100)
	fields := []qpack.HeaderField{
		{Name: ":method", Value: "GET"},
		{Name: ":path", Value: "/index.html"},
		{Name: "user-agent", Value: "h3mux-test"},
	}
	encoded, err := e.EncodeFieldSection(fields)
	require.NoError(t, err)

	d := NewDecoder(4096, 100)
	decoded, err := d.DecodeFieldSection(encoded)
	require.NoError(t, err)
	require.Equal(t, fields, decoded)
}
