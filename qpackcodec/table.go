package qpackcodec

import "github.com/quic-go/qpack"

// headerFieldSize is the table size contribution of one entry: name plus
// value plus the 32-byte per-entry overhead RFC 9204 charges.
func headerFieldSize(f qpack.HeaderField) uint64 {
	return uint64(len(f.Name)) + uint64(len(f.Value)) + 32
}

// A dynamicTable holds inserted entries, oldest first, and evicts from the
// front to stay within its capacity.
type dynamicTable struct {
	entries  []qpack.HeaderField
	size     uint64
	capacity uint64
}

func (t *dynamicTable) setCapacity(capacity uint64) {
	t.capacity = capacity
	t.evict()
}

// add inserts f, evicting older entries to make room. It reports false when
// f does not fit the table at all.
func (t *dynamicTable) add(f qpack.HeaderField) bool {
	size := headerFieldSize(f)
	if size > t.capacity {
		return false
	}
	for t.size+size > t.capacity {
		evicted := t.entries[0]
		t.entries = t.entries[1:]
		t.size -= headerFieldSize(evicted)
	}
	t.entries = append(t.entries, f)
	t.size += size
	return true
}

// relative resolves an encoder-stream relative index, where 0 is the most
// recently inserted entry.
func (t *dynamicTable) relative(idx uint64) (qpack.HeaderField, bool) {
	if idx >= uint64(len(t.entries)) {
		return qpack.HeaderField{}, false
	}
	return t.entries[uint64(len(t.entries))-1-idx], true
}

func (t *dynamicTable) evict() {
	for t.size > t.capacity {
		evicted := t.entries[0]
		t.entries = t.entries[1:]
		t.size -= headerFieldSize(evicted)
	}
}
