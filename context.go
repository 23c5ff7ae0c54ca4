package h3mux

import (
	"log/slog"
	"net/netip"
	"os"

	"github.com/h3mux/h3mux/internal/slogutil"
	"github.com/h3mux/h3mux/qpackcodec"
)

// A Socket is the datagram socket a Context multiplexes connections over.
// *UDPConn is the production implementation; tests substitute fakes.
type Socket interface {
	// ReadDatagram reads one datagram into b without blocking. A return of
	// n <= 0 with a nil error means the socket is drained.
	ReadDatagram(b []byte) (n int, from netip.AddrPort, err error)
	// WriteDatagram sends one datagram to the given peer.
	WriteDatagram(b []byte, to netip.AddrPort) error
	Close() error
}

// An Acceptor is consulted when packets match no existing connection. It may
// set up and return a new server-side connection, or return nil to drop the
// packets.
type Acceptor func(ctx *Context, remote netip.AddrPort, packets []DecodedPacket) *Conn

// Config holds the knobs of a Context. The zero value is valid.
type Config struct {
	// Logger defaults to a logger configured from H3MUX_LOG_LEVEL.
	Logger *slog.Logger
	// Tracer observes socket and connection events.
	Tracer *Tracer
	// HeaderTableSize is the QPACK header table size offered to peers.
	// Defaults to DefaultHeaderTableSize.
	HeaderTableSize uint64
	// NewQPACKDecoder and NewQPACKEncoder construct the QPACK codec halves.
	// They default to the qpackcodec package.
	NewQPACKDecoder func(headerTableSize uint64, maxBlockedStreams int) QPACKDecoder
	NewQPACKEncoder func(headerTableSize uint64, maxBlockedStreams int) QPACKEncoder
}

// Clone clones a Config.
func (c *Config) Clone() *Config {
	copied := *c
	return &copied
}

// populateConfig fills in defaults for unset fields. It may be called with
// nil.
func populateConfig(config *Config) *Config {
	if config == nil {
		config = &Config{}
	}
	config = config.Clone()
	if config.Logger == nil {
		config.Logger = slogutil.NewLogger(os.Stderr)
	}
	if config.HeaderTableSize == 0 {
		config.HeaderTableSize = DefaultHeaderTableSize
	}
	if config.NewQPACKDecoder == nil {
		config.NewQPACKDecoder = func(headerTableSize uint64, maxBlockedStreams int) QPACKDecoder {
			return qpackcodec.NewDecoder(headerTableSize, maxBlockedStreams)
		}
	}
	if config.NewQPACKEncoder == nil {
		config.NewQPACKEncoder = func(headerTableSize uint64, maxBlockedStreams int) QPACKEncoder {
			return qpackcodec.NewEncoder(headerTableSize, maxBlockedStreams)
		}
	}
	return config
}

// A Context owns a UDP socket and the HTTP/3 connections multiplexed over
// it. All of its methods run on the event loop driving it; the embedder
// invokes OnReadReady when the socket becomes readable.
type Context struct {
	loop     EventLoop
	sock     Socket
	decoder  PacketDecoder
	acceptor Acceptor
	config   *Config
	logger   *slog.Logger
	tracer   *Tracer

	// connsByID is the authenticated lookup: master ID to connection.
	connsByID map[uint64]*Conn
	// connsAccepting resolves client-generated CIDs of server-side
	// connections by their accepting hash.
	connsAccepting map[uint64]*Conn
}

// NewContext sets up a context over the given socket. decoder splits
// datagrams into QUIC packets; acceptor may be nil for client-only contexts.
func NewContext(loop EventLoop, sock Socket, decoder PacketDecoder, acceptor Acceptor, config *Config) *Context {
	config = populateConfig(config)
	return &Context{
		loop:           loop,
		sock:           sock,
		decoder:        decoder,
		acceptor:       acceptor,
		config:         config,
		logger:         config.Logger,
		tracer:         config.Tracer,
		connsByID:      make(map[uint64]*Conn),
		connsAccepting: make(map[uint64]*Conn),
	}
}

// Loop returns the event loop driving the context.
func (ctx *Context) Loop() EventLoop { return ctx.loop }

// Close shuts down the socket. Connections are disposed by their owner.
func (ctx *Context) Close() error {
	return ctx.sock.Close()
}

// findConnection resolves the connection an incoming packet belongs to, or
// nil.
func (ctx *Context) findConnection(remote netip.AddrPort, p *DecodedPacket) *Conn {
	// Initial and 0-RTT packets carry a client-chosen destination CID; the
	// connections they belong to are found through the accepting map.
	if p.DestCIDMightBeClientGenerated {
		if conn, ok := ctx.connsAccepting[calcAcceptingKey(remote, p.DestCID)]; ok {
			if conn.quic.IsClient() {
				panic("h3mux: client connection in accepting map")
			}
			if conn.quic.IsDestination(remote, p) {
				return conn
			}
		}
	}

	// CIDs we minted decode to a master ID, valid only if this instance owns
	// them
	if p.Plaintext.NodeID == 0 && p.Plaintext.ThreadID == 0 {
		if conn, ok := ctx.connsByID[p.Plaintext.MasterID]; ok {
			if conn.quic.IsDestination(remote, p) {
				return conn
			}
		}
	}

	// TODO: build a stateless reset map and recognize reset packets here

	return nil
}
