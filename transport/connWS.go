package transport

import (
	"io"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"github.com/VolantMQ/mqcore/types"
)

// connWs adapts message oriented websocket into byte stream.
// MQTT packets may span multiple websocket frames and a frame may carry multiple packets
type connWs struct {
	conn  *websocket.Conn
	prev  io.Reader
	wLock sync.Mutex
}

var _ net.Conn = (*connWs)(nil)

// NewWebSocketConn wraps websocket connection into net.Conn
func NewWebSocketConn(c *websocket.Conn) net.Conn {
	return &connWs{conn: c}
}

func (c *connWs) Read(b []byte) (int, error) {
	for {
		if c.prev == nil {
			mType, r, err := c.conn.NextReader()
			if err != nil {
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					return 0, io.EOF
				}

				return 0, err
			}

			// [MQTT-6.0.0-1]
			if mType != websocket.BinaryMessage {
				return 0, errors.Wrap(types.ErrProtocolViolation, "websocket: non binary frame")
			}

			c.prev = r
		}

		n, err := c.prev.Read(b)
		if err == io.EOF {
			c.prev = nil
			err = nil
		}

		if n > 0 || err != nil {
			return n, err
		}
	}
}

func (c *connWs) Write(b []byte) (int, error) {
	c.wLock.Lock()
	defer c.wLock.Unlock()

	if err := c.conn.WriteMessage(websocket.BinaryMessage, b); err != nil {
		return 0, err
	}

	return len(b), nil
}

func (c *connWs) Close() error {
	return c.conn.Close()
}

func (c *connWs) LocalAddr() net.Addr {
	return c.conn.LocalAddr()
}

func (c *connWs) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

func (c *connWs) SetDeadline(t time.Time) error {
	if err := c.conn.SetReadDeadline(t); err != nil {
		return err
	}

	return c.conn.SetWriteDeadline(t)
}

func (c *connWs) SetReadDeadline(t time.Time) error {
	return c.conn.SetReadDeadline(t)
}

func (c *connWs) SetWriteDeadline(t time.Time) error {
	return c.conn.SetWriteDeadline(t)
}
