package h3mux

import (
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/h3mux/h3mux/internal/protocol"
)

func TestConnSetupOpensEgressStreams(t *testing.T) {
	_, _, tc := newTestConn(t)

	require.Len(t, tc.streams, 3)
	want := [][]byte{
		[]byte("C\x00\x04"), // stream type plus an empty SETTINGS frame
		[]byte("H"),
		[]byte("h"),
	}
	for i, st := range tc.streams {
		require.True(t, st.selfInitiated)
		egress, ok := st.cb.(*egressUniStream)
		require.True(t, ok)
		require.Equal(t, want[i], egress.sendbuf.Bytes())
		require.Equal(t, 1, st.syncedSend)
	}
}

func TestConnSetupRegistersForLookup(t *testing.T) {
	h, conn, tc := newTestConn(t)

	require.Same(t, conn, h.ctx.connsByID[tc.masterID])
	require.Same(t, conn, h.ctx.connsAccepting[calcAcceptingKeyForConn(tc)])

	// client-side connections never enter the accepting map
	h2 := newTestContext(t)
	clientConn := NewConn(h2.ctx, h2.callbacks())
	clientTC := &fakeTransportConn{
		conn:     clientConn,
		masterID: 9,
		remote:   tc.remote,
		client:   true,
	}
	require.NoError(t, clientConn.Setup(clientTC))
	require.Len(t, h2.ctx.connsAccepting, 0)
	require.Same(t, clientConn, h2.ctx.connsByID[uint64(9)])
}

func TestConnSetupSchedulesTimer(t *testing.T) {
	h, conn, tc := newTestConn(t)
	require.True(t, conn.timer.IsLinked())
	require.Equal(t, 1, h.loop.links)
	require.Equal(t, tc.nextTimeout, conn.timer.ExpireAt())
	require.Equal(t, 25*time.Millisecond, h.loop.delays[conn.timer])
}

func TestConnDispose(t *testing.T) {
	h, conn, tc := newTestConn(t)
	conn.Dispose()

	require.Empty(t, h.ctx.connsByID)
	require.Empty(t, h.ctx.connsAccepting)
	require.True(t, tc.closed)
	require.False(t, conn.timer.IsLinked())
	require.Nil(t, conn.quic)

	// disposing twice is harmless
	conn.Dispose()
}

func TestConnLookupLifecycle(t *testing.T) {
	h, conn, tc := newTestConn(t)

	packet := &DecodedPacket{
		DestCID:                       tc.offeredCID,
		DestCIDMightBeClientGenerated: true,
	}
	require.Same(t, conn, h.ctx.findConnection(tc.remote, packet))

	// a different peer offering the same CID hashes elsewhere
	other := netip.MustParseAddrPort("198.51.100.7:4433")
	require.Nil(t, h.ctx.findConnection(other, packet))

	// authenticated lookup by master ID
	authPacket := &DecodedPacket{
		DestCID:   protocol.ConnectionID{0x42},
		Plaintext: protocol.PlaintextCID{MasterID: tc.masterID},
	}
	require.Same(t, conn, h.ctx.findConnection(tc.remote, authPacket))

	// CIDs owned by another node or thread never match locally
	foreign := &DecodedPacket{
		DestCID:   protocol.ConnectionID{0x42},
		Plaintext: protocol.PlaintextCID{MasterID: tc.masterID, NodeID: 1},
	}
	require.Nil(t, h.ctx.findConnection(tc.remote, foreign))

	conn.Dispose()
	require.Nil(t, h.ctx.findConnection(tc.remote, packet))
	require.Nil(t, h.ctx.findConnection(tc.remote, authPacket))
}

func TestConnQPACKHelpers(t *testing.T) {
	_, conn, tc := newTestConn(t)

	require.NoError(t, conn.SendQPACKStreamCancel(1234))
	decoderStream := tc.streams[2]
	egress := decoderStream.cb.(*egressUniStream)
	// stream cancellation: 01 pattern over a 6-bit prefixed stream id
	require.Equal(t, byte(0x40|0x3f), egress.sendbuf.Bytes()[1+0]) // after the "h" preamble
	require.Equal(t, 2, decoderStream.syncedSend)

	require.NoError(t, conn.SendQPACKHeaderAck([]byte{0x85}))
	encoderStream := tc.streams[1]
	egress = encoderStream.cb.(*egressUniStream)
	require.Equal(t, []byte("H\x85"), egress.sendbuf.Bytes())
	require.Equal(t, 2, encoderStream.syncedSend)
}
