package transport

import (
	"bufio"
	"net"
	"sync"
	"time"

	"github.com/eclipse/paho.mqtt.golang/packets"
	"github.com/pkg/errors"

	"github.com/VolantMQ/mqcore/packet"
	"github.com/VolantMQ/mqcore/systree"
)

// Conn is packet oriented wrapper around network connection.
// Read must be called from single goroutine, Write is safe for concurrent use
type Conn interface {
	Read() (packet.Provider, error)
	Write(packet.Provider) error
	Close() error
	RemoteAddr() net.Addr
	SetReadDeadline(time.Time) error
}

// statConn is wrapper to net.Conn
// implemented to encapsulate bytes statistic
type statConn struct {
	net.Conn
	stat systree.BytesMetric
}

// Read ...
func (c *statConn) Read(b []byte) (int, error) {
	n, err := c.Conn.Read(b)
	c.stat.Received(uint64(n))

	return n, err
}

// Write ...
func (c *statConn) Write(b []byte) (int, error) {
	n, err := c.Conn.Write(b)
	c.stat.Sent(uint64(n))

	return n, err
}

type conn struct {
	cn      net.Conn
	r       *bufio.Reader
	w       *bufio.Writer
	wLock   sync.Mutex
	packets systree.PacketsMetric
	once    sync.Once
}

var _ Conn = (*conn)(nil)

// NewConn wraps network connection into MQTT v3.1/v3.1.1 packet codec.
// metric is optional
func NewConn(cn net.Conn, metric systree.Metric) Conn {
	if metric == nil {
		metric = systree.NewNop().Metric()
	}

	sc := &statConn{
		Conn: cn,
		stat: metric.Bytes(),
	}

	return &conn{
		cn:      cn,
		r:       bufio.NewReader(sc),
		w:       bufio.NewWriter(sc),
		packets: metric.Packets(),
	}
}

// Read next packet from the wire.
// CONNECT refused by validation is returned together with packet.ReasonCode
// error so caller is able to respond with CONNACK
func (c *conn) Read() (packet.Provider, error) {
	cp, err := packets.ReadPacket(c.r)
	if err != nil {
		return nil, errors.Wrap(err, "read packet")
	}

	p, err := decode(cp)
	if p != nil {
		c.packets.Received(p.Type())
	}

	return p, err
}

// Write packet and flush it into network
func (c *conn) Write(p packet.Provider) error {
	cp, err := encode(p)
	if err != nil {
		return err
	}

	c.wLock.Lock()
	defer c.wLock.Unlock()

	if err = cp.Write(c.w); err != nil {
		return errors.Wrapf(err, "write %s", p.Type().Name())
	}

	if err = c.w.Flush(); err != nil {
		return errors.Wrapf(err, "write %s", p.Type().Name())
	}

	c.packets.Sent(p.Type())

	return nil
}

// Close underlying connection. Subsequent calls return nil
func (c *conn) Close() error {
	var err error

	c.once.Do(func() {
		err = c.cn.Close()
	})

	return err
}

func (c *conn) RemoteAddr() net.Addr {
	return c.cn.RemoteAddr()
}

func (c *conn) SetReadDeadline(t time.Time) error {
	return c.cn.SetReadDeadline(t)
}
