//go:build !unix

package network

import "net"

func tuneSocket(conn *net.TCPConn, sendBuffer int) error {
	if sendBuffer > 0 {
		return conn.SetWriteBuffer(sendBuffer)
	}
	return nil
}
