package h3mux

// A buffer is a growable byte buffer whose contents keep their absolute
// positions. The transport delivers stream data at explicit offsets to
// accommodate out-of-order arrival; Splice places such data, and the
// contiguous prefix is read through Bytes.
type buffer struct {
	b []byte
}

// Splice copies p to absolute position off, growing the buffer as needed.
// The logical size becomes max(previous size, off+len(p)); any gap between
// the previous size and off reads as zero bytes until filled.
func (b *buffer) Splice(off int, p []byte) {
	if need := off + len(p); need > len(b.b) {
		if need > cap(b.b) {
			grown := make([]byte, need, nextBufferCap(cap(b.b), need))
			copy(grown, b.b)
			b.b = grown
		} else {
			b.b = b.b[:need]
		}
	}
	copy(b.b[off:], p)
}

func nextBufferCap(cur, need int) int {
	if cur == 0 {
		cur = 256
	}
	for cur < need {
		cur *= 2
	}
	return cur
}

// Append adds p at the current end of the buffer.
func (b *buffer) Append(p []byte) {
	b.b = append(b.b, p...)
}

// Consume drops the first n bytes. Positions of the remaining bytes shift
// down by n.
func (b *buffer) Consume(n int) {
	b.b = b.b[n:]
	if len(b.b) == 0 {
		b.b = nil
	}
}

// Bytes returns the buffer contents. The slice is only valid until the next
// mutation.
func (b *buffer) Bytes() []byte { return b.b }

// Len returns the logical size of the buffer.
func (b *buffer) Len() int { return len(b.b) }
