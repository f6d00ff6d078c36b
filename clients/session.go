package clients

import (
	"sync"
	"time"

	"github.com/VolantMQ/mqcore/packet"
	"github.com/VolantMQ/mqcore/store"
	"github.com/VolantMQ/mqcore/subscriber"
)

// State of session lifecycle
type State int

// nolint: golint
const (
	StateNone State = iota
	StateActive
	StateSuspended
	StateDestroyed
)

var stateDesc = map[State]string{
	StateNone:      "none",
	StateActive:    "active",
	StateSuspended: "suspended",
	StateDestroyed: "destroyed",
}

func (s State) String() string {
	if d, ok := stateDesc[s]; ok {
		return d
	}

	return "unknown"
}

// Binding network connection currently attached to session
type Binding interface {
	// Evict closes connection from outside. Must not block
	Evict(reason packet.ReasonCode)
	// Done closed once connection teardown completed
	Done() <-chan struct{}
}

// DisconnectParams describe how network connection went away
type DisconnectParams struct {
	// Graceful client sent DISCONNECT
	Graceful bool
	// SendWill client asked will to be published despite graceful disconnect
	SendWill bool
	// ExpiryInterval overrides session expiry in seconds when set
	ExpiryInterval *uint32
	Reason         packet.ReasonCode
}

// Session state of the client that survives network connection
type Session struct {
	id        string
	username  string
	version   packet.ProtocolVersion
	createdAt time.Time
	sub       *subscriber.Type
	outbound  *store.Inflight
	inbound   *store.Inflight

	lock     sync.Mutex
	state    State
	binding  Binding
	clean    bool
	expiry   *time.Duration
	will     *packet.Will
	timers   expiry
	expireAt *time.Time
}

// ID client identifier
func (s *Session) ID() string {
	return s.id
}

// Username session authenticated with
func (s *Session) Username() string {
	s.lock.Lock()
	defer s.lock.Unlock()

	return s.username
}

// Version protocol version of last connection
func (s *Session) Version() packet.ProtocolVersion {
	s.lock.Lock()
	defer s.lock.Unlock()

	return s.version
}

// Subscriber subscriptions and delivery queue of session
func (s *Session) Subscriber() *subscriber.Type {
	return s.sub
}

// Outbound in-flight messages sent by server
func (s *Session) Outbound() *store.Inflight {
	return s.outbound
}

// Inbound in-flight QoS2 messages received from client
func (s *Session) Inbound() *store.Inflight {
	return s.inbound
}

// State current lifecycle state
func (s *Session) State() State {
	s.lock.Lock()
	defer s.lock.Unlock()

	return s.state
}

// Expiry configured session expiry. nil means never expires
func (s *Session) Expiry() *time.Duration {
	s.lock.Lock()
	defer s.lock.Unlock()

	if s.expiry == nil {
		return nil
	}

	d := *s.expiry
	return &d
}

// Present reports whether session outlives network connection
func (s *Session) Present() bool {
	s.lock.Lock()
	defer s.lock.Unlock()

	return !s.ends()
}

// ends must be called with lock held
func (s *Session) ends() bool {
	return s.clean || (s.expiry != nil && *s.expiry == 0)
}
