//go:build darwin || linux || freebsd

package h3mux

import (
	"fmt"
	"net"
	"net/netip"
	"syscall"

	"golang.org/x/sys/unix"
)

// receiveBufferSize is the socket receive buffer requested at construction.
// A context serves many connections over one socket, so the kernel default
// is far too small.
const receiveBufferSize = 2 << 20

// A UDPConn adapts a *net.UDPConn to the context's non-blocking batch read
// loop. ReadDatagram never blocks: once the socket is drained it reports
// zero bytes, ending the batch until the next readiness callback.
type UDPConn struct {
	conn    *net.UDPConn
	rawConn syscall.RawConn
}

var _ Socket = &UDPConn{}

// NewUDPConn wraps conn. The socket buffers are enlarged on a best-effort
// basis.
func NewUDPConn(conn *net.UDPConn) (*UDPConn, error) {
	rawConn, err := conn.SyscallConn()
	if err != nil {
		return nil, fmt.Errorf("couldn't get syscall.RawConn: %w", err)
	}
	c := &UDPConn{conn: conn, rawConn: rawConn}
	_ = setReceiveBuffer(rawConn, receiveBufferSize)
	_ = setSendBuffer(rawConn, receiveBufferSize)
	return c, nil
}

// LocalAddr returns the local address the socket is bound to.
func (c *UDPConn) LocalAddr() net.Addr { return c.conn.LocalAddr() }

func (c *UDPConn) ReadDatagram(b []byte) (int, netip.AddrPort, error) {
	var (
		n    int
		from netip.AddrPort
		rerr error
	)
	if err := c.rawConn.Control(func(fd uintptr) {
		for {
			nn, _, _, sa, err := unix.Recvmsg(int(fd), b, nil, unix.MSG_DONTWAIT)
			if err == unix.EINTR {
				continue
			}
			if err == unix.EAGAIN {
				return
			}
			if err != nil {
				rerr = err
				return
			}
			n = nn
			from = sockaddrToAddrPort(sa)
			return
		}
	}); err != nil {
		return 0, netip.AddrPort{}, err
	}
	return n, from, rerr
}

func (c *UDPConn) WriteDatagram(b []byte, to netip.AddrPort) error {
	sa := addrPortToSockaddr(to)
	var serr error
	if err := c.rawConn.Control(func(fd uintptr) {
		for {
			err := unix.Sendmsg(int(fd), b, nil, sa, 0)
			if err == unix.EINTR {
				continue
			}
			serr = err
			return
		}
	}); err != nil {
		return err
	}
	return serr
}

func (c *UDPConn) Close() error { return c.conn.Close() }

func sockaddrToAddrPort(sa unix.Sockaddr) netip.AddrPort {
	switch sa := sa.(type) {
	case *unix.SockaddrInet4:
		return netip.AddrPortFrom(netip.AddrFrom4(sa.Addr), uint16(sa.Port))
	case *unix.SockaddrInet6:
		return netip.AddrPortFrom(netip.AddrFrom16(sa.Addr), uint16(sa.Port))
	}
	return netip.AddrPort{}
}

func addrPortToSockaddr(ap netip.AddrPort) unix.Sockaddr {
	addr := ap.Addr()
	if addr.Is4() || addr.Is4In6() {
		return &unix.SockaddrInet4{Port: int(ap.Port()), Addr: addr.As4()}
	}
	return &unix.SockaddrInet6{Port: int(ap.Port()), Addr: addr.As16()}
}
