//go:build unix

package network

import (
	"net"

	"golang.org/x/sys/unix"
)

// tuneSocket sets TCP_NODELAY on the descriptor and, when sendBuffer is
// positive, SO_SNDBUF.
func tuneSocket(conn *net.TCPConn, sendBuffer int) error {
	raw, err := conn.SyscallConn()
	if err != nil {
		return err
	}
	var serr error
	err = raw.Control(func(fd uintptr) {
		if serr = unix.SetsockoptInt(int(fd), unix.IPPROTO_TCP, unix.TCP_NODELAY, 1); serr != nil {
			return
		}
		if sendBuffer > 0 {
			serr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_SNDBUF, sendBuffer)
		}
	})
	if err != nil {
		return err
	}
	return serr
}
