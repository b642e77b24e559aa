// Package network carries framed input messages between the client and the
// streaming host.
package network

import (
	"context"
	"fmt"
	"io"
	"net"
	"strconv"
	"time"

	"go.uber.org/zap"
)

// DefaultPort is the host's input stream port.
const DefaultPort = 35043

// Conn is an open transport. Every Write carries one complete framed message.
// Close must unblock a Write in progress.
type Conn = io.WriteCloser

// Dialer opens the transport to the host.
type Dialer interface {
	Dial(ctx context.Context, address string, port int) (Conn, error)
}

// TCPDialer connects over TCP with Nagle's algorithm disabled so each small
// input message leaves immediately.
type TCPDialer struct {
	// Timeout bounds connection setup. Zero means no timeout beyond ctx.
	Timeout time.Duration

	// SendBuffer sets SO_SNDBUF when positive.
	SendBuffer int

	Logger *zap.Logger
}

// Dial connects to address:port.
func (d *TCPDialer) Dial(ctx context.Context, address string, port int) (Conn, error) {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	target := net.JoinHostPort(address, strconv.Itoa(port))

	nd := net.Dialer{Timeout: d.Timeout}
	conn, err := nd.DialContext(ctx, "tcp", target)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", target, err)
	}

	if tcp, ok := conn.(*net.TCPConn); ok {
		if err := tcp.SetNoDelay(true); err != nil {
			conn.Close()
			return nil, fmt.Errorf("disable nagle on %s: %w", target, err)
		}
		if err := tuneSocket(tcp, d.SendBuffer); err != nil {
			logger.Warn("socket tuning failed", zap.String("addr", target), zap.Error(err))
		}
	}

	logger.Info("input stream connected",
		zap.String("addr", target),
		zap.String("local", conn.LocalAddr().String()))
	return conn, nil
}
