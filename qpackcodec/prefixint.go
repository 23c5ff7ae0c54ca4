package qpackcodec

import (
	"errors"

	"golang.org/x/net/http2/hpack"
)

var (
	errIntegerOverflow = errors.New("qpackcodec: prefixed integer overflow")
	errLiteralTooLong  = errors.New("qpackcodec: string literal too long")
)

// maxLiteralLength bounds string literals on the instruction streams. Real
// entries are limited by the dynamic table capacity long before this.
const maxLiteralLength = 1 << 20

// appendPrefixedInt appends v using HPACK's prefixed-integer encoding
// (RFC 7541, section 5.1), which QPACK borrows. firstByte carries the
// instruction bits above the prefix.
func appendPrefixedInt(b []byte, firstByte byte, prefixLen uint8, v uint64) []byte {
	max := uint64(1)<<prefixLen - 1
	if v < max {
		return append(b, firstByte|byte(v))
	}
	b = append(b, firstByte|byte(max))
	v -= max
	for v >= 128 {
		b = append(b, byte(v&0x7f)|0x80)
		v >>= 7
	}
	return append(b, byte(v))
}

// readPrefixedInt decodes a prefixed integer from the head of b. n == 0 with
// a nil error means b ends inside the integer.
func readPrefixedInt(b []byte, prefixLen uint8) (v uint64, n int, err error) {
	if len(b) == 0 {
		return 0, 0, nil
	}
	max := uint64(1)<<prefixLen - 1
	v = uint64(b[0]) & max
	if v < max {
		return v, 1, nil
	}
	var shift uint
	for i := 1; i < len(b); i++ {
		d := b[i]
		v += uint64(d&0x7f) << shift
		if d&0x80 == 0 {
			return v, i + 1, nil
		}
		shift += 7
		if shift > 62 {
			return 0, 0, errIntegerOverflow
		}
	}
	return 0, 0, nil
}

// readLiteralString decodes a string literal whose length uses a
// prefixLen-bit prefix, with the Huffman bit directly above it. n == 0 with
// a nil error means b ends inside the literal.
func readLiteralString(b []byte, prefixLen uint8) (s string, n int, err error) {
	if len(b) == 0 {
		return "", 0, nil
	}
	huffman := b[0]&(1<<prefixLen) != 0
	length, n, err := readPrefixedInt(b, prefixLen)
	if err != nil || n == 0 {
		return "", n, err
	}
	if length > maxLiteralLength {
		return "", 0, errLiteralTooLong
	}
	if uint64(len(b)-n) < length {
		return "", 0, nil
	}
	raw := b[n : n+int(length)]
	n += int(length)
	if huffman {
		decoded, err := hpack.HuffmanDecodeToString(raw)
		if err != nil {
			return "", 0, err
		}
		return decoded, n, nil
	}
	return string(raw), n, nil
}
