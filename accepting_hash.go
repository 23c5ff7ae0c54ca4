package h3mux

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"hash"
	"net/netip"
	"sync"
)

// The accepting map is probed with a key derived from unauthenticated packet
// contents. Keying the hash with a process-lifetime random secret keeps a
// remote peer from crafting CIDs that collide in the map.
var acceptingHasher struct {
	once sync.Once
	mx   sync.Mutex
	h    hash.Hash
}

func initAcceptingHasher() {
	var key [sha256.Size]byte
	if _, err := rand.Read(key[:]); err != nil {
		panic(fmt.Sprintf("h3mux: reading hash key: %v", err))
	}
	acceptingHasher.h = hmac.New(sha256.New, key[:])
}

// calcAcceptingKey derives the 64-bit accepting-map key from a peer address
// and the connection ID it offered. Input layout: family byte, address
// bytes, big-endian port, CID length byte, CID bytes. Only IPv4 and IPv6
// are supported; anything else is a programmer error.
func calcAcceptingKey(remote netip.AddrPort, cid []byte) uint64 {
	record := make([]byte, 0, 1+16+2+1+20)
	addr := remote.Addr()
	switch {
	case addr.Is4() || addr.Is4In6():
		a := addr.As4()
		record = append(record, 4)
		record = append(record, a[:]...)
	case addr.Is6():
		a := addr.As16()
		record = append(record, 6)
		record = append(record, a[:]...)
	default:
		panic("h3mux: unexpected address family")
	}
	record = binary.BigEndian.AppendUint16(record, remote.Port())
	record = append(record, uint8(len(cid)))
	record = append(record, cid...)

	acceptingHasher.once.Do(initAcceptingHasher)
	acceptingHasher.mx.Lock()
	defer acceptingHasher.mx.Unlock()
	acceptingHasher.h.Write(record)
	sum := acceptingHasher.h.Sum(nil)
	acceptingHasher.h.Reset()
	// The key is only ever used in-process, so host byte order is fine.
	return binary.NativeEndian.Uint64(sum)
}

func calcAcceptingKeyForConn(tc TransportConn) uint64 {
	return calcAcceptingKey(tc.RemoteAddr(), tc.OfferedCID())
}
