package network

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// DefaultWSPath is where the receiver accepts WebSocket input streams.
const DefaultWSPath = "/input"

// WSDialer connects over WebSocket. Each framed message travels as one
// binary message.
type WSDialer struct {
	Path    string
	Timeout time.Duration
	Logger  *zap.Logger
}

// Dial connects to ws://address:port/path.
func (d *WSDialer) Dial(ctx context.Context, address string, port int) (Conn, error) {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	path := d.Path
	if path == "" {
		path = DefaultWSPath
	}
	u := url.URL{Scheme: "ws", Host: net.JoinHostPort(address, strconv.Itoa(port)), Path: path}

	dialer := websocket.Dialer{
		HandshakeTimeout: d.Timeout,
		NetDialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			c, err := (&net.Dialer{Timeout: d.Timeout}).DialContext(ctx, network, addr)
			if err != nil {
				return nil, err
			}
			if tcp, ok := c.(*net.TCPConn); ok {
				tcp.SetNoDelay(true)
			}
			return c, nil
		},
	}
	conn, _, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", u.String(), err)
	}

	logger.Info("input stream connected", zap.String("url", u.String()))
	return &wsConn{conn: conn}, nil
}

type wsConn struct {
	conn  *websocket.Conn
	close sync.Once
}

func (c *wsConn) Write(p []byte) (int, error) {
	if err := c.conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Close sends a close frame if it can and closes the socket, which fails any
// blocked Write.
func (c *wsConn) Close() error {
	var err error
	c.close.Do(func() {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(100*time.Millisecond))
		err = c.conn.Close()
	})
	return err
}
