package server

import (
	"net"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"github.com/troian/healthcheck"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/VolantMQ/mqcore/auth"
	"github.com/VolantMQ/mqcore/clients"
	"github.com/VolantMQ/mqcore/configuration"
	"github.com/VolantMQ/mqcore/packet"
	"github.com/VolantMQ/mqcore/persistence"
	"github.com/VolantMQ/mqcore/persistence/types"
	"github.com/VolantMQ/mqcore/transport"
)

const wait = 5 * time.Second

func newConfig() Config {
	c := Config{Version: "test"}
	c.MQTT.Options.MaxQoS = 2
	c.MQTT.Options.AllowReplace = true
	c.MQTT.Options.ConnectTimeout = 2
	c.MQTT.KeepAlive.Period = 60
	c.MQTT.Delivery.RetryTimeout = 1
	c.MQTT.Delivery.MaxRetries = 5

	return c
}

func startServer(t *testing.T, c Config) (Server, string) {
	srv, err := NewServer(c)
	require.NoError(t, err)

	l, err := srv.ListenAndServe(&transport.Config{Addr: "127.0.0.1:0"})
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = srv.Shutdown()
	})

	return srv, "tcp://" + l.Addr().String()
}

type inbox struct {
	lock sync.Mutex
	msgs []mqtt.Message
	ch   chan struct{}
}

func newInbox() *inbox {
	return &inbox{ch: make(chan struct{}, 64)}
}

func (i *inbox) handler(_ mqtt.Client, m mqtt.Message) {
	i.lock.Lock()
	i.msgs = append(i.msgs, m)
	i.lock.Unlock()

	select {
	case i.ch <- struct{}{}:
	default:
	}
}

func (i *inbox) wait(t *testing.T, n int) []mqtt.Message {
	t.Helper()

	require.Eventually(t, func() bool {
		i.lock.Lock()
		defer i.lock.Unlock()
		return len(i.msgs) >= n
	}, wait, 10*time.Millisecond)

	i.lock.Lock()
	defer i.lock.Unlock()

	return append([]mqtt.Message(nil), i.msgs...)
}

func (i *inbox) len() int {
	i.lock.Lock()
	defer i.lock.Unlock()
	return len(i.msgs)
}

func dial(t *testing.T, broker string, modify func(*mqtt.ClientOptions)) mqtt.Client {
	t.Helper()

	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID("").
		SetCleanSession(true).
		SetAutoReconnect(false).
		SetConnectRetry(false).
		SetConnectTimeout(wait)

	if modify != nil {
		modify(opts)
	}

	cl := mqtt.NewClient(opts)
	tok := cl.Connect()
	require.True(t, tok.WaitTimeout(wait))
	require.NoError(t, tok.Error())

	t.Cleanup(func() {
		if cl.IsConnected() {
			cl.Disconnect(100)
		}
	})

	return cl
}

func done(t *testing.T, tok mqtt.Token) {
	t.Helper()
	require.True(t, tok.WaitTimeout(wait))
	require.NoError(t, tok.Error())
}

func TestPublishSubscribe(t *testing.T) {
	_, broker := startServer(t, newConfig())

	in := newInbox()

	sub := dial(t, broker, nil)
	done(t, sub.Subscribe("home/+/temperature", 2, in.handler))

	pub := dial(t, broker, nil)

	for qos := byte(0); qos <= 2; qos++ {
		done(t, pub.Publish("home/kitchen/temperature", qos, false, []byte{'0' + qos}))
	}
	done(t, pub.Publish("home/kitchen/humidity", 1, false, "skip"))

	msgs := in.wait(t, 3)
	require.Len(t, msgs, 3)

	for i, m := range msgs {
		require.Equal(t, "home/kitchen/temperature", m.Topic())
		require.Equal(t, byte(i), m.Qos())
		require.Equal(t, []byte{'0' + byte(i)}, m.Payload())
	}
}

func TestRetainedOnSubscribe(t *testing.T) {
	_, broker := startServer(t, newConfig())

	pub := dial(t, broker, nil)
	done(t, pub.Publish("status/door", 1, true, "open"))

	in := newInbox()
	sub := dial(t, broker, nil)
	done(t, sub.Subscribe("status/#", 1, in.handler))

	msgs := in.wait(t, 1)
	require.Equal(t, "open", string(msgs[0].Payload()))
	require.True(t, msgs[0].Retained())
}

func TestWillOnConnectionLoss(t *testing.T) {
	srv, broker := startServer(t, newConfig())

	in := newInbox()
	sub := dial(t, broker, nil)
	done(t, sub.Subscribe("clients/+/gone", 1, in.handler))

	// message on behalf of the server goes through same routing
	require.NoError(t, srv.Publish(&packet.Publish{Topic: "clients/srv/gone", QoS: packet.QoS1, Payload: []byte("srv")}))
	in.wait(t, 1)

	polite := dial(t, broker, func(o *mqtt.ClientOptions) {
		o.SetClientID("polite")
		o.SetWill("clients/polite/gone", "bye", 1, false)
	})

	// DISCONNECT suppresses will
	polite.Disconnect(100)
	time.Sleep(100 * time.Millisecond)
	require.Equal(t, 1, in.len())

	cn, err := net.Dial("tcp", broker[len("tcp://"):])
	require.NoError(t, err)

	raw := transport.NewConn(cn, nil)
	require.NoError(t, raw.Write(&packet.Connect{
		Version:      packet.ProtocolV311,
		ClientID:     "dying",
		CleanStart:   true,
		Will: &packet.Will{
			Topic:   "clients/dying/gone",
			Payload: []byte("bye"),
			QoS:     packet.QoS1,
		},
	}))
	require.NoError(t, raw.SetReadDeadline(time.Now().Add(wait)))

	p, err := raw.Read()
	require.NoError(t, err)
	require.Equal(t, packet.CONNACK, p.Type())

	// drop network connection without DISCONNECT
	require.NoError(t, raw.Close())

	msgs := in.wait(t, 2)
	require.Equal(t, "clients/dying/gone", msgs[1].Topic())
	require.Equal(t, "bye", string(msgs[1].Payload()))
}

func TestPersistentSession(t *testing.T) {
	srv, broker := startServer(t, newConfig())

	in := newInbox()

	persistent := func(o *mqtt.ClientOptions) {
		o.SetClientID("durable")
		o.SetCleanSession(false)
		o.SetDefaultPublishHandler(in.handler)
	}

	sub := dial(t, broker, persistent)
	done(t, sub.Subscribe("jobs/#", 1, in.handler))
	sub.Disconnect(100)

	require.Eventually(t, func() bool {
		ses, ok := srv.(*server).sessionsMgr.Get("durable")
		return ok && ses.State() == clients.StateSuspended
	}, wait, 10*time.Millisecond)

	pub := dial(t, broker, nil)
	done(t, pub.Publish("jobs/1", 1, false, "first"))
	done(t, pub.Publish("jobs/2", 1, false, "second"))

	dial(t, broker, persistent)

	msgs := in.wait(t, 2)
	require.Equal(t, "first", string(msgs[0].Payload()))
	require.Equal(t, "second", string(msgs[1].Payload()))
}

func TestAuthRefused(t *testing.T) {
	c := newConfig()

	a, err := auth.FromConfig(&configuration.AuthConfig{
		Backend: "static",
		Users: map[string]configuration.UserConfig{
			// sha256("secret")
			"alice": {Password: "2bb80d537b1da3e38bd30361aa855686bde0eacd7162fef6a25fe97bf527a25b"},
		},
	})
	require.NoError(t, err)
	c.Auth = a

	_, broker := startServer(t, c)

	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID("intruder").
		SetUsername("alice").
		SetPassword("wrong").
		SetAutoReconnect(false)

	cl := mqtt.NewClient(opts)
	tok := cl.Connect()
	require.True(t, tok.WaitTimeout(wait))
	require.Error(t, tok.Error())

	dial(t, broker, func(o *mqtt.ClientOptions) {
		o.SetUsername("alice")
		o.SetPassword("secret")
	})
}

func TestSystree(t *testing.T) {
	c := newConfig()
	c.MQTT.Systree.Enabled = true
	c.MQTT.Systree.UpdateInterval = 1

	_, broker := startServer(t, c)

	in := newInbox()
	cl := dial(t, broker, nil)
	done(t, cl.Subscribe("$SYS/broker/version", 0, in.handler))

	msgs := in.wait(t, 1)
	require.Equal(t, "test", string(msgs[0].Payload()))

	// $ topics never match leading wildcard
	all := newInbox()
	done(t, cl.Subscribe("#", 0, all.handler))
	time.Sleep(100 * time.Millisecond)
	require.Equal(t, 0, all.len())
}

func TestWebSocket(t *testing.T) {
	srv, err := NewServer(newConfig())
	require.NoError(t, err)
	defer srv.Shutdown() // nolint: errcheck

	l, err := srv.ListenAndServe(&transport.ConfigWS{
		Config: transport.Config{Addr: "127.0.0.1:0"},
		Path:   "/mqtt",
	})
	require.NoError(t, err)

	in := newInbox()
	cl := dial(t, "ws://"+l.Addr().String()+"/mqtt", nil)
	done(t, cl.Subscribe("ws/topic", 1, in.handler))
	done(t, cl.Publish("ws/topic", 1, false, "over websocket"))

	msgs := in.wait(t, 1)
	require.Equal(t, "over websocket", string(msgs[0].Payload()))
}

func TestPersistenceAcrossRestart(t *testing.T) {
	p, err := persistence.New(&persistenceTypes.MemConfig{})
	require.NoError(t, err)

	c := newConfig()
	c.Persistence = p

	srv, broker := startServer(t, c)

	pub := dial(t, broker, nil)
	done(t, pub.Publish("kept/topic", 1, true, "survives"))
	pub.Disconnect(100)

	require.NoError(t, srv.Shutdown())
	require.ErrorIs(t, srv.Shutdown(), ErrShuttingDown)

	_, broker = startServer(t, c)

	in := newInbox()
	sub := dial(t, broker, nil)
	done(t, sub.Subscribe("kept/#", 1, in.handler))

	msgs := in.wait(t, 1)
	require.Equal(t, "survives", string(msgs[0].Payload()))
}

func TestListenerErrors(t *testing.T) {
	srv, err := NewServer(newConfig())
	require.NoError(t, err)

	_, err = srv.ListenAndServe("tcp://127.0.0.1:0")
	require.ErrorIs(t, err, ErrInvalidListenerType)

	require.NoError(t, srv.Alive())
	require.NoError(t, srv.Shutdown())
	require.Error(t, srv.Alive())

	_, err = srv.ListenAndServe(&transport.Config{Addr: "127.0.0.1:0"})
	require.ErrorIs(t, err, ErrShuttingDown)
}

type failingChecks struct {
	lock    sync.Mutex
	added   []string
	removed []string
}

var errChecks = errors.New("checks unavailable")

func (f *failingChecks) AddLivenessCheck(string, healthcheck.Check) error { return errChecks }

func (f *failingChecks) AddReadinessCheck(name string, _ healthcheck.Check) error {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.added = append(f.added, name)
	return errChecks
}

func (f *failingChecks) RemoveLivenessCheck(string) error { return errChecks }

func (f *failingChecks) RemoveReadinessCheck(name string) error {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.removed = append(f.removed, name)
	return errChecks
}

func TestReadinessCheckErrorsLogged(t *testing.T) {
	prev := configuration.GetLogger()
	core, logs := observer.New(zap.ErrorLevel)
	configuration.SetLogger(zap.New(core).Sugar())
	t.Cleanup(func() {
		configuration.SetLogger(prev)
	})

	checks := &failingChecks{}

	c := newConfig()
	c.Health = checks

	srv, err := NewServer(c)
	require.NoError(t, err)

	l, err := srv.ListenAndServe(&transport.Config{Addr: "127.0.0.1:0"})
	require.NoError(t, err)

	// listener keeps serving despite failed registration
	dial(t, "tcp://"+l.Addr().String(), nil)

	require.NoError(t, srv.Shutdown())

	id := "listener:tcp://" + l.Addr().String()

	checks.lock.Lock()
	require.Equal(t, []string{id}, checks.added)
	require.Equal(t, []string{id}, checks.removed)
	checks.lock.Unlock()

	require.Equal(t, 1, logs.FilterMessage("add readiness check").Len())
	require.Equal(t, 1, logs.FilterMessage("remove readiness check").Len())
}
