//go:build darwin || freebsd

package h3mux

import (
	"syscall"

	"golang.org/x/sys/unix"
)

func setReceiveBuffer(rc syscall.RawConn, bytes int) error {
	var serr error
	if err := rc.Control(func(fd uintptr) {
		serr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_RCVBUF, bytes)
	}); err != nil {
		return err
	}
	return serr
}

func setSendBuffer(rc syscall.RawConn, bytes int) error {
	var serr error
	if err := rc.Control(func(fd uintptr) {
		serr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_SNDBUF, bytes)
	}); err != nil {
		return err
	}
	return serr
}
