package connection

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/VolantMQ/mqcore/auth"
	"github.com/VolantMQ/mqcore/clients"
	"github.com/VolantMQ/mqcore/delivery"
	"github.com/VolantMQ/mqcore/packet"
	"github.com/VolantMQ/mqcore/store"
	"github.com/VolantMQ/mqcore/topics"
	"github.com/VolantMQ/mqcore/topics/types"
	"github.com/VolantMQ/mqcore/transport"
)

const wait = 2 * time.Second

type env struct {
	cfg *Config
}

func newEnv(t *testing.T, modify func(*Config, *delivery.Config)) *env {
	tp, err := topics.New(topicsTypes.NewMemConfig())
	require.NoError(t, err)

	retained := store.NewRetained()

	dCfg := &delivery.Config{
		Topics:   tp,
		Retained: retained,
	}

	cfg := &Config{}

	if modify != nil {
		modify(cfg, dCfg)
	}

	cfg.Engine, err = delivery.New(dCfg)
	require.NoError(t, err)

	cfg.Sessions, err = clients.NewManager(&clients.Config{
		TopicsMgr:    tp,
		Retained:     retained,
		Messenger:    cfg.Engine,
		AllowReplace: true,
	})
	require.NoError(t, err)

	return &env{cfg: cfg}
}

type client struct {
	conn   transport.Conn
	recv   chan packet.Provider
	closed chan struct{}
}

func (c *client) loop() {
	defer close(c.closed)

	for {
		p, err := c.conn.Read()
		if err != nil {
			return
		}

		c.recv <- p
	}
}

func (c *client) send(t *testing.T, p packet.Provider) {
	t.Helper()
	require.NoError(t, c.conn.Write(p))
}

func (c *client) expect(t *testing.T, kind packet.Type) packet.Provider {
	t.Helper()

	select {
	case p := <-c.recv:
		require.Equal(t, kind, p.Type(), "unexpected %s", p.Type().Name())
		return p
	case <-c.closed:
		t.Fatalf("connection closed while waiting for %s", kind.Name())
	case <-time.After(wait):
		t.Fatalf("timeout waiting for %s", kind.Name())
	}

	return nil
}

func (c *client) expectClosed(t *testing.T) {
	t.Helper()

	select {
	case <-c.closed:
	case <-time.After(wait):
		t.Fatal("connection still open")
	}
}

func (c *client) silent(t *testing.T, d time.Duration) {
	t.Helper()

	select {
	case p := <-c.recv:
		t.Fatalf("unexpected %s", p.Type().Name())
	case <-time.After(d):
	}
}

func (e *env) dial(t *testing.T, opts ...Option) (*client, *Type) {
	a, b := net.Pipe()

	s, err := New(e.cfg, transport.NewConn(b, nil), opts...)
	require.NoError(t, err)

	go s.Run()

	c := &client{
		conn:   transport.NewConn(a, nil),
		recv:   make(chan packet.Provider, 64),
		closed: make(chan struct{}),
	}

	go c.loop()

	t.Cleanup(func() {
		_ = c.conn.Close()
		select {
		case <-s.Done():
		case <-time.After(wait):
			t.Error("connection did not finish")
		}
	})

	return c, s
}

func (e *env) connect(t *testing.T, req *packet.Connect, opts ...Option) (*client, *Type, *packet.ConnAck) {
	t.Helper()

	c, s := e.dial(t, opts...)
	c.send(t, req)

	ack := c.expect(t, packet.CONNACK).(*packet.ConnAck)

	return c, s, ack
}

func connectReq(id string, clean bool) *packet.Connect {
	return &packet.Connect{
		ClientID:   id,
		CleanStart: clean,
		Version:    packet.ProtocolV311,
	}
}

func (c *client) subscribe(t *testing.T, filter string, qos packet.QosType) {
	t.Helper()

	c.send(t, &packet.Subscribe{
		PacketID: 1,
		Topics:   []packet.TopicQoS{{Filter: filter, QoS: qos}},
	})

	ack := c.expect(t, packet.SUBACK).(*packet.SubAck)
	require.Equal(t, []packet.QosType{qos}, ack.ReturnCodes)
}

type denyAll struct{}

func (denyAll) Password(string, string, []byte) auth.Status {
	return auth.StatusDeny
}

func (denyAll) ACL(string, string, string, auth.AccessType) auth.Status {
	return auth.StatusDeny
}

func TestConnectPingDisconnect(t *testing.T) {
	e := newEnv(t, nil)

	c, s, ack := e.connect(t, connectReq("c1", true))
	require.Equal(t, packet.CodeSuccess, ack.ReturnCode)
	require.False(t, ack.SessionPresent)
	require.Equal(t, "pipe", s.RemoteAddr().Network())

	c.send(t, &packet.PingReq{})
	c.expect(t, packet.PINGRESP)

	c.send(t, &packet.Disconnect{})
	c.expectClosed(t)

	<-s.Done()
	_, ok := e.cfg.Sessions.Get("c1")
	require.False(t, ok)
}

func TestConnectTimeout(t *testing.T) {
	e := newEnv(t, nil)

	c, s := e.dial(t, ConnectTimeout(50*time.Millisecond))
	c.expectClosed(t)
	<-s.Done()
}

func TestFirstPacketMustBeConnect(t *testing.T) {
	e := newEnv(t, nil)

	c, _ := e.dial(t)
	c.send(t, &packet.PingReq{})
	c.expectClosed(t)
	require.Empty(t, c.recv)
}

func TestConnectRefusedCodes(t *testing.T) {
	e := newEnv(t, func(c *Config, _ *delivery.Config) {
		c.Auth = denyAll{}
	})

	req := connectReq("c1", true)
	req.Username = "user"
	req.Password = []byte("bad")

	c, _, ack := e.connect(t, req)
	require.Equal(t, packet.CodeRefusedBadUsernameOrPassword, ack.ReturnCode)
	c.expectClosed(t)

	c, _, ack = e.connect(t, connectReq("c2", true))
	require.Equal(t, packet.CodeRefusedNotAuthorized, ack.ReturnCode)
	c.expectClosed(t)
}

func TestConnectIdentifierRejected(t *testing.T) {
	e := newEnv(t, nil)

	c, _, ack := e.connect(t, connectReq("", false))
	require.Equal(t, packet.CodeRefusedIdentifierRejected, ack.ReturnCode)
	c.expectClosed(t)
}

func TestConnectVersionNotAllowed(t *testing.T) {
	e := newEnv(t, func(c *Config, _ *delivery.Config) {
		c.Versions = map[packet.ProtocolVersion]bool{packet.ProtocolV311: true}
	})

	req := connectReq("c1", true)
	req.Version = packet.ProtocolV31

	c, _, ack := e.connect(t, req)
	require.Equal(t, packet.CodeRefusedUnacceptableProtocolVersion, ack.ReturnCode)
	c.expectClosed(t)
}

func TestKeepAliveTimeoutPublishesWill(t *testing.T) {
	e := newEnv(t, nil)
	unit := 20 * time.Millisecond

	observer, _, _ := e.connect(t, connectReq("observer", true))
	observer.subscribe(t, "dev/+/status", packet.QoS0)

	req := connectReq("dev-1", true)
	req.KeepAlive = 2
	req.Will = &packet.Will{
		Topic:   "dev/1/status",
		Payload: []byte("offline"),
	}

	start := time.Now()
	victim, _, ack := e.connect(t, req, KeepAliveUnit(unit))
	require.Equal(t, packet.CodeSuccess, ack.ReturnCode)

	victim.expectClosed(t)
	require.GreaterOrEqual(t, time.Since(start), 3*unit)

	msg := observer.expect(t, packet.PUBLISH).(*packet.Publish)
	require.Equal(t, "dev/1/status", msg.Topic)
	require.Equal(t, []byte("offline"), msg.Payload)
}

func TestKeepAliveResetByTraffic(t *testing.T) {
	e := newEnv(t, nil)
	unit := 40 * time.Millisecond

	req := connectReq("dev-1", true)
	req.KeepAlive = 2

	c, _, _ := e.connect(t, req, KeepAliveUnit(unit))

	for i := 0; i < 5; i++ {
		time.Sleep(unit)
		c.send(t, &packet.PingReq{})
		c.expect(t, packet.PINGRESP)
	}

	c.expectClosed(t)
}

func TestForceKeepAlive(t *testing.T) {
	e := newEnv(t, nil)

	c, _, _ := e.connect(t, connectReq("dev-1", true),
		KeepAlive(1),
		ForceKeepAlive(true),
		KeepAliveUnit(20*time.Millisecond))

	c.expectClosed(t)
}

func TestGracefulDisconnectSuppressesWill(t *testing.T) {
	e := newEnv(t, nil)

	observer, _, _ := e.connect(t, connectReq("observer", true))
	observer.subscribe(t, "will", packet.QoS0)

	req := connectReq("c1", true)
	req.Will = &packet.Will{Topic: "will", Payload: []byte("gone")}

	c, _, _ := e.connect(t, req)
	c.send(t, &packet.Disconnect{})
	c.expectClosed(t)

	observer.silent(t, 100*time.Millisecond)
}

func TestPublishQoS1Routing(t *testing.T) {
	e := newEnv(t, nil)

	sub, _, _ := e.connect(t, connectReq("sub", true))
	sub.subscribe(t, "home/+/temperature", packet.QoS1)

	pub, _, _ := e.connect(t, connectReq("pub", true))
	pub.send(t, &packet.Publish{
		Topic:    "home/kitchen/temperature",
		Payload:  []byte("21.5"),
		QoS:      packet.QoS1,
		PacketID: 7,
	})

	ack := pub.expect(t, packet.PUBACK).(*packet.Ack)
	require.Equal(t, packet.IDType(7), ack.PacketID)

	msg := sub.expect(t, packet.PUBLISH).(*packet.Publish)
	require.Equal(t, "home/kitchen/temperature", msg.Topic)
	require.Equal(t, packet.QoS1, msg.QoS)
	require.NotZero(t, msg.PacketID)
	require.False(t, msg.Retain)

	sub.send(t, packet.NewPubAck(msg.PacketID))

	// non matching topic is not delivered
	pub.send(t, &packet.Publish{Topic: "home/kitchen/humidity", Payload: []byte("40")})
	sub.silent(t, 100*time.Millisecond)
}

func TestPublishQoS2Handshake(t *testing.T) {
	e := newEnv(t, nil)

	sub, _, _ := e.connect(t, connectReq("sub", true))
	sub.subscribe(t, "a", packet.QoS2)

	pub, _, _ := e.connect(t, connectReq("pub", true))

	in := &packet.Publish{Topic: "a", Payload: []byte("x"), QoS: packet.QoS2, PacketID: 3}
	pub.send(t, in)
	pub.expect(t, packet.PUBREC)

	// duplicate before PUBREL is not routed again
	dup := *in
	dup.Dup = true
	pub.send(t, &dup)
	pub.expect(t, packet.PUBREC)

	pub.send(t, packet.NewPubRel(3))
	comp := pub.expect(t, packet.PUBCOMP).(*packet.Ack)
	require.Equal(t, packet.IDType(3), comp.PacketID)

	msg := sub.expect(t, packet.PUBLISH).(*packet.Publish)
	require.Equal(t, packet.QoS2, msg.QoS)

	sub.send(t, packet.NewPubRec(msg.PacketID))
	rel := sub.expect(t, packet.PUBREL).(*packet.Ack)
	require.Equal(t, msg.PacketID, rel.PacketID)
	sub.send(t, packet.NewPubComp(msg.PacketID))

	sub.silent(t, 100*time.Millisecond)
}

func TestRetainedDeliveredOnSubscribe(t *testing.T) {
	e := newEnv(t, nil)

	pub, _, _ := e.connect(t, connectReq("pub", true))
	pub.send(t, &packet.Publish{Topic: "cfg/mode", Payload: []byte("eco"), QoS: packet.QoS1, Retain: true, PacketID: 1})
	pub.expect(t, packet.PUBACK)

	sub, _, _ := e.connect(t, connectReq("sub", true))
	sub.subscribe(t, "cfg/#", packet.QoS0)

	msg := sub.expect(t, packet.PUBLISH).(*packet.Publish)
	require.True(t, msg.Retain)
	require.Equal(t, packet.QoS0, msg.QoS)
	require.Equal(t, []byte("eco"), msg.Payload)
}

func TestPersistentSessionReplay(t *testing.T) {
	e := newEnv(t, nil)

	sub, _, ack := e.connect(t, connectReq("sub", false))
	require.False(t, ack.SessionPresent)
	sub.subscribe(t, "a/#", packet.QoS1)

	pub, _, _ := e.connect(t, connectReq("pub", true))
	for i, payload := range []string{"1", "2"} {
		pub.send(t, &packet.Publish{Topic: "a/b", Payload: []byte(payload), QoS: packet.QoS1, PacketID: packet.IDType(i + 1)})
		pub.expect(t, packet.PUBACK)
	}

	first := sub.expect(t, packet.PUBLISH).(*packet.Publish)
	second := sub.expect(t, packet.PUBLISH).(*packet.Publish)
	require.Equal(t, []byte("1"), first.Payload)
	require.Equal(t, []byte("2"), second.Payload)

	// drop without acknowledgement
	require.NoError(t, sub.conn.Close())
	sub.expectClosed(t)

	require.Eventually(t, func() bool {
		ses, ok := e.cfg.Sessions.Get("sub")
		return ok && ses.State() == clients.StateSuspended
	}, wait, 5*time.Millisecond)

	// queued while offline
	pub.send(t, &packet.Publish{Topic: "a/c", Payload: []byte("3"), QoS: packet.QoS1, PacketID: 3})
	pub.expect(t, packet.PUBACK)

	sub, _, ack = e.connect(t, connectReq("sub", false))
	require.True(t, ack.SessionPresent)

	for _, want := range []*packet.Publish{first, second} {
		msg := sub.expect(t, packet.PUBLISH).(*packet.Publish)
		require.True(t, msg.Dup)
		require.Equal(t, want.PacketID, msg.PacketID)
		require.Equal(t, want.Payload, msg.Payload)
		sub.send(t, packet.NewPubAck(msg.PacketID))
	}

	msg := sub.expect(t, packet.PUBLISH).(*packet.Publish)
	require.False(t, msg.Dup)
	require.Equal(t, []byte("3"), msg.Payload)
}

func TestTakeover(t *testing.T) {
	e := newEnv(t, nil)

	observer, _, _ := e.connect(t, connectReq("observer", true))
	observer.subscribe(t, "will", packet.QoS0)

	req := connectReq("x", false)
	req.Will = &packet.Will{Topic: "will", Payload: []byte("taken")}

	first, firstConn, _ := e.connect(t, req)

	second, _, ack := e.connect(t, connectReq("x", false))
	require.Equal(t, packet.CodeSuccess, ack.ReturnCode)
	require.True(t, ack.SessionPresent)

	first.expectClosed(t)
	<-firstConn.Done()

	msg := observer.expect(t, packet.PUBLISH).(*packet.Publish)
	require.Equal(t, []byte("taken"), msg.Payload)

	second.send(t, &packet.PingReq{})
	second.expect(t, packet.PINGRESP)
}

func TestProtocolViolationCloses(t *testing.T) {
	e := newEnv(t, nil)

	observer, _, _ := e.connect(t, connectReq("observer", true))
	observer.subscribe(t, "will", packet.QoS0)

	req := connectReq("c1", true)
	req.Will = &packet.Will{Topic: "will", Payload: []byte("violation")}

	c, _, _ := e.connect(t, req)
	c.send(t, connectReq("c1", true))
	c.expectClosed(t)

	msg := observer.expect(t, packet.PUBLISH).(*packet.Publish)
	require.Equal(t, []byte("violation"), msg.Payload)
}

func TestWillTopicWithWildcardCloses(t *testing.T) {
	e := newEnv(t, nil)

	for _, topic := range []string{"a/#", "a/+/b", ""} {
		req := connectReq("c1", false)
		req.Will = &packet.Will{Topic: topic, Payload: []byte("x")}

		c, _ := e.dial(t)
		c.send(t, req)
		c.expectClosed(t)
		require.Empty(t, c.recv)

		_, ok := e.cfg.Sessions.Get("c1")
		require.False(t, ok, "topic %q", topic)
	}
}

func TestRetryStall(t *testing.T) {
	e := newEnv(t, func(_ *Config, d *delivery.Config) {
		d.RetryTimeout = 30 * time.Millisecond
		d.MaxRetries = 2
	})

	sub, _, _ := e.connect(t, connectReq("sub", true))
	sub.subscribe(t, "a", packet.QoS1)

	pub, _, _ := e.connect(t, connectReq("pub", true))
	pub.send(t, &packet.Publish{Topic: "a", Payload: []byte("x"), QoS: packet.QoS1, PacketID: 1})
	pub.expect(t, packet.PUBACK)

	msg := sub.expect(t, packet.PUBLISH).(*packet.Publish)
	require.False(t, msg.Dup)

	for i := 0; i < 2; i++ {
		msg = sub.expect(t, packet.PUBLISH).(*packet.Publish)
		require.True(t, msg.Dup)
	}

	sub.expectClosed(t)
}

func TestStop(t *testing.T) {
	e := newEnv(t, nil)

	c, s, _ := e.connect(t, connectReq("c1", false))
	s.Stop()
	s.Stop()

	c.expectClosed(t)
	<-s.Done()

	ses, ok := e.cfg.Sessions.Get("c1")
	require.True(t, ok)
	require.Equal(t, clients.StateSuspended, ses.State())
}

func TestKeepAliveDeadline(t *testing.T) {
	require.Equal(t, time.Duration(0), keepAliveDeadline(0, time.Second))
	require.Equal(t, 90*time.Second, keepAliveDeadline(60, time.Second))
	require.Equal(t, 30*time.Millisecond, keepAliveDeadline(2, 10*time.Millisecond))
}
