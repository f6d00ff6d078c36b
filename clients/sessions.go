package clients

import (
	"errors"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/VolantMQ/mqcore/configuration"
	"github.com/VolantMQ/mqcore/packet"
	"github.com/VolantMQ/mqcore/persistence/types"
	"github.com/VolantMQ/mqcore/store"
	"github.com/VolantMQ/mqcore/subscriber"
	"github.com/VolantMQ/mqcore/systree"
	"github.com/VolantMQ/mqcore/topics/types"
	"github.com/VolantMQ/mqcore/types"
)

// ExpiryNever session expiry interval meaning session does not expire
const ExpiryNever = ^uint32(0)

// Config manager configuration
type Config struct {
	TopicsMgr topicsTypes.Provider
	Retained  *store.Retained
	// Persist optional durable storage of sessions and retained messages
	Persist persistenceTypes.Provider
	// Messenger routes will messages
	Messenger types.TopicMessenger
	Systree   systree.Provider
	// DefaultExpiry applied to persistent sessions when connect does not carry expiry.
	// nil means never
	DefaultExpiry *time.Duration
	OfflineQoS0   bool
	AllowReplace  bool
	MaxQueued     int
	MaxSessions   int
}

// Manager clients manager
type Manager struct {
	Config
	sessionsDB persistenceTypes.Sessions
	retainedDB persistenceTypes.Retained
	log        *zap.Logger
	quit       chan struct{}

	lock       sync.Mutex
	containers map[string]*container
	count      int
}

// NewManager create new clients manager
func NewManager(c *Config) (*Manager, error) {
	if c.TopicsMgr == nil || c.Messenger == nil {
		return nil, errors.New("clients: topics manager and messenger required")
	}

	m := &Manager{
		Config:     *c,
		quit:       make(chan struct{}),
		log:        configuration.GetLogger().Desugar().Named("sessions"),
		containers: make(map[string]*container),
	}

	if m.Systree == nil {
		m.Systree = systree.NewNop()
	}

	if m.Retained == nil {
		m.Retained = store.NewRetained()
	}

	if c.Persist != nil {
		var err error
		if m.sessionsDB, err = c.Persist.Sessions(); err != nil {
			return nil, err
		}

		if m.retainedDB, err = c.Persist.Retained(); err != nil {
			return nil, err
		}

		m.log.Info("Loading sessions. Might take a while")

		if err = m.loadRetained(); err != nil {
			return nil, err
		}

		if err = m.loadSessions(time.Now()); err != nil {
			return nil, err
		}

		m.log.Info("Sessions loaded", zap.Int("count", m.Len()))
	}

	return m, nil
}

// Len number of sessions which are not destroyed
func (m *Manager) Len() int {
	m.lock.Lock()
	defer m.lock.Unlock()

	return m.count
}

// Get session by client id
func (m *Manager) Get(id string) (*Session, bool) {
	m.lock.Lock()
	c, ok := m.containers[id]
	m.lock.Unlock()

	if !ok {
		return nil, false
	}

	c.acquire()
	defer c.release()

	s := c.live()

	return s, s != nil
}

func (m *Manager) container(id string) *container {
	m.lock.Lock()
	defer m.lock.Unlock()

	c, ok := m.containers[id]
	if !ok {
		c = &container{}
		m.containers[id] = c
	}

	return c
}

// acquire locks container of given id.
// Retries if container has been reaped while waiting for lock
func (m *Manager) acquire(id string) *container {
	for {
		c := m.container(id)
		c.acquire()

		m.lock.Lock()
		current := m.containers[id] == c
		m.lock.Unlock()

		if current {
			return c
		}

		c.release()
	}
}

// reapLocked removes container without live session. Container lock must be held
func (m *Manager) reapLocked(id string, c *container) {
	if c.live() != nil {
		return
	}

	m.lock.Lock()
	if m.containers[id] == c {
		delete(m.containers, id)
	}
	m.lock.Unlock()
}

func (m *Manager) reap(id string) {
	m.lock.Lock()
	c, ok := m.containers[id]
	m.lock.Unlock()

	if !ok {
		return
	}

	c.acquire()
	m.reapLocked(id, c)
	c.release()
}

func (m *Manager) expiryFor(req *packet.Connect) *time.Duration {
	if req.ExpiryInterval != nil {
		if *req.ExpiryInterval == ExpiryNever {
			return nil
		}

		d := time.Duration(*req.ExpiryInterval) * time.Second
		return &d
	}

	// v3 clean session lasts as long as network connection
	// v5 session without expiry interval ends with network connection
	if req.CleanStart || req.Version >= packet.ProtocolV50 {
		d := time.Duration(0)
		return &d
	}

	if m.DefaultExpiry == nil {
		return nil
	}

	d := *m.DefaultExpiry
	return &d
}

// Connect binds network connection to session of the client.
// Returns session and whether session state was present before this connect
func (m *Manager) Connect(req *packet.Connect, b Binding) (*Session, bool, error) {
	select {
	case <-m.quit:
		return nil, false, packet.CodeRefusedServerUnavailable
	default:
	}

	id := req.ClientID
	generated := false

	if id == "" {
		// [MQTT-3.1.3-8]
		if !req.CleanStart {
			return nil, false, packet.CodeRefusedIdentifierRejected
		}

		id = uuid.NewString()
		generated = true
	}

	c := m.acquire(id)
	defer c.release()
	defer m.reapLocked(id, c)

	if old := c.live(); old != nil {
		old.lock.Lock()
		active, binding := old.state == StateActive, old.binding
		old.lock.Unlock()

		if active {
			if !m.AllowReplace {
				m.log.Warn("Client id in use", zap.String("ClientID", id))
				return nil, false, packet.CodeRefusedIdentifierRejected
			}

			m.log.Info("Session taken over", zap.String("ClientID", id))

			if binding != nil {
				binding.Evict(packet.CodeSessionTakenOver)
				<-binding.Done()
				// no-op if evicted connection has detached itself already
				m.Disconnect(old, binding, &DisconnectParams{Reason: packet.CodeSessionTakenOver})
			}
		}
	}

	now := time.Now()
	exp := m.expiryFor(req)
	clean := req.CleanStart && req.Version < packet.ProtocolV50

	var ses *Session
	present := false

	if old := c.live(); old != nil {
		old.lock.Lock()
		switch {
		case old.state == StateDestroyed:
			// expiry timer won the race after live check
		case old.expireAt != nil && !now.Before(*old.expireAt):
			m.destroy(old, "expired")
		case req.CleanStart:
			m.destroy(old, "clean start")
		default:
			// pending will is cancelled by resume
			old.timers.cancel()
			old.timers.will = nil
			old.expireAt = nil
			old.state = StateActive
			old.binding = b
			old.username = req.Username
			old.version = req.Version
			old.clean = clean
			old.expiry = exp
			old.will = req.Will
			ses = old
			present = true
		}
		old.lock.Unlock()
	}

	if ses == nil {
		var err error
		if ses, err = m.newSession(id, req, b, now); err != nil {
			m.log.Warn("Session create", zap.String("ClientID", id), zap.Error(err))
			return nil, false, err
		}

		ses.clean = clean
		ses.expiry = exp
		c.ses = ses

		if m.sessionsDB != nil {
			if err = m.sessionsDB.Delete(id); err != nil && err != persistenceTypes.ErrNotFound {
				m.log.Error("Couldn't wipe session", zap.String("ClientID", id), zap.Error(err))
			}
		}

		m.Systree.Sessions().Created(id, &systree.SessionCreatedStatus{
			ExpiryInterval: expiryDesc(exp),
			Clean:          req.CleanStart,
			Timestamp:      now.Format(time.RFC3339),
		})
	}

	ses.sub.Online()

	status := &systree.ClientConnectStatus{
		Username:       req.Username,
		CleanSession:   req.CleanStart,
		SessionPresent: present,
		Protocol:       req.Version,
		KeepAlive:      req.KeepAlive,
		Timestamp:      now.Format(time.RFC3339),
	}

	if a, ok := b.(interface{ RemoteAddr() net.Addr }); ok && a.RemoteAddr() != nil {
		status.Address = a.RemoteAddr().String()
	}

	m.Systree.Clients().Connected(id, status)

	m.log.Debug("Session connected",
		zap.String("ClientID", id),
		zap.Bool("generated", generated),
		zap.Bool("present", present))

	return ses, present, nil
}

func (m *Manager) newSession(id string, req *packet.Connect, b Binding, now time.Time) (*Session, error) {
	m.lock.Lock()
	if m.MaxSessions > 0 && m.count >= m.MaxSessions {
		m.lock.Unlock()
		return nil, types.ErrResourceExhausted
	}
	m.count++
	m.lock.Unlock()

	s := m.allocSession(id, now)
	s.state = StateActive
	s.binding = b
	s.username = req.Username
	s.version = req.Version
	s.will = req.Will

	return s, nil
}

func (m *Manager) allocSession(id string, createdAt time.Time) *Session {
	return &Session{
		id:        id,
		createdAt: createdAt,
		outbound:  store.NewInflight(store.Outbound),
		inbound:   store.NewInflight(store.Inbound),
		sub: subscriber.New(&subscriber.Config{
			ID:          id,
			Topics:      m.TopicsMgr,
			Retained:    m.Retained,
			OfflineQoS0: m.OfflineQoS0,
			MaxQueued:   m.MaxQueued,
		}),
	}
}

// Disconnect detaches network connection from session.
// Calls with binding not attached to session are ignored
func (m *Manager) Disconnect(s *Session, b Binding, p *DisconnectParams) {
	s.lock.Lock()
	defer s.lock.Unlock()

	if s.state != StateActive || s.binding != b {
		return
	}

	s.binding = nil

	if p.ExpiryInterval != nil {
		if *p.ExpiryInterval == ExpiryNever {
			s.expiry = nil
		} else {
			d := time.Duration(*p.ExpiryInterval) * time.Second
			s.expiry = &d
		}
	}

	will := s.will
	s.will = nil

	if will != nil && p.Graceful && !p.SendWill {
		will = nil
	}

	reason := "normal"
	switch {
	case p.Graceful:
	case p.Reason == packet.CodeSuccess:
		reason = "connection lost"
	default:
		reason = p.Reason.Error()
	}

	m.Systree.Clients().Disconnected(s.id, reason)
	m.log.Debug("Disconnected", zap.String("ClientID", s.id), zap.String("reason", reason))

	s.sub.Offline(false)

	now := time.Now()

	// session ends with network connection. will is published regardless of delay
	if s.ends() {
		if will != nil {
			m.publishWill(s.id, will)
		}

		m.destroy(s, "clean")
		return
	}

	s.state = StateSuspended

	if will != nil {
		if will.Delay == 0 {
			m.publishWill(s.id, will)
		} else {
			s.timers.will = will
			s.timers.willAt = now.Add(will.DelayDuration())
		}
	}

	if s.expiry != nil {
		at := now.Add(*s.expiry)
		s.expireAt = &at
	}

	m.schedule(s, now)
	m.persist(s, now)
}

// destroy must be called with session lock held
func (m *Manager) destroy(s *Session, reason string) {
	if s.state == StateDestroyed {
		return
	}

	s.timers.cancel()

	// session end publishes delayed will which has not been fired yet
	if s.timers.will != nil {
		m.publishWill(s.id, s.timers.will)
		s.timers.will = nil
	}

	s.state = StateDestroyed
	s.binding = nil
	s.will = nil
	s.expireAt = nil

	s.sub.Offline(true)
	s.outbound.Reset()
	s.inbound.Reset()

	m.lock.Lock()
	m.count--
	m.lock.Unlock()

	if m.sessionsDB != nil {
		if err := m.sessionsDB.Delete(s.id); err != nil && err != persistenceTypes.ErrNotFound {
			m.log.Error("Couldn't wipe session", zap.String("ClientID", s.id), zap.Error(err))
		}
	}

	m.Systree.Sessions().Removed(s.id, &systree.SessionDeletedStatus{
		Timestamp: time.Now().Format(time.RFC3339),
		Reason:    reason,
	})

	m.log.Debug("Session destroyed", zap.String("ClientID", s.id), zap.String("reason", reason))

	go m.reap(s.id)
}

func (m *Manager) publishWill(id string, will *packet.Will) {
	m.log.Debug("Publish will", zap.String("ClientID", id), zap.String("topic", will.Topic))

	if err := m.Messenger.Publish(will.Publish()); err != nil {
		m.log.Error("Publish will", zap.String("ClientID", id), zap.Error(err))
	}
}

// Shutdown clients manager
// gracefully shutdown by evicting all active connections and persist states
func (m *Manager) Shutdown() error {
	select {
	case <-m.quit:
		return errors.New("already stopped")
	default:
		close(m.quit)
	}

	m.lock.Lock()
	containers := make(map[string]*container, len(m.containers))
	for id, c := range m.containers {
		containers[id] = c
	}
	m.lock.Unlock()

	for _, c := range containers {
		c.acquire()

		if s := c.live(); s != nil {
			s.lock.Lock()
			b := s.binding
			s.lock.Unlock()

			if b != nil {
				b.Evict(packet.CodeServerShuttingDown)
				<-b.Done()
				m.Disconnect(s, b, &DisconnectParams{Reason: packet.CodeServerShuttingDown})
			}

			s.lock.Lock()
			s.timers.cancel()
			if s.state == StateSuspended {
				m.persist(s, time.Now())
			}
			s.lock.Unlock()
		}

		c.release()
	}

	return m.storeRetained()
}

// persist must be called with session lock held
func (m *Manager) persist(s *Session, now time.Time) {
	if m.sessionsDB == nil {
		return
	}

	state := &persistenceTypes.SessionState{
		ClientID:      s.id,
		Version:       byte(s.version),
		ExpireAt:      s.expireAt,
		Subscriptions: make(map[string]byte),
		Timestamp:     s.createdAt,
	}

	for filter, qos := range s.sub.Subscriptions() {
		state.Subscriptions[filter] = byte(qos)
	}

	for _, msg := range s.sub.Queued() {
		state.Queue = append(state.Queue, persistenceTypes.FromPublish(msg))
	}

	state.Outbound = persistEntries(s.outbound)
	state.Inbound = persistEntries(s.inbound)

	if w := s.timers.will; w != nil {
		pw := *w
		if remaining := s.timers.willAt.Sub(now); remaining > 0 {
			pw.Delay = uint32((remaining + time.Second - 1) / time.Second)
		} else {
			pw.Delay = 0
		}
		state.Will = persistenceTypes.FromWill(&pw)
	}

	if err := m.sessionsDB.Store(state); err != nil {
		m.log.Error("Couldn't persist session", zap.String("ClientID", s.id), zap.Error(err))
	}
}

func persistEntries(f *store.Inflight) []persistenceTypes.InflightEntry {
	var res []persistenceTypes.InflightEntry

	f.Range(func(e *store.Entry) bool {
		if e.Message == nil {
			return true
		}

		res = append(res, persistenceTypes.InflightEntry{
			PacketID: uint16(e.ID),
			State:    byte(e.State),
			Attempts: e.Attempts,
			Message:  persistenceTypes.FromPublish(e.Message),
		})
		return true
	})

	return res
}

func restoreEntries(f *store.Inflight, entries []persistenceTypes.InflightEntry) error {
	for i := range entries {
		e := &entries[i]
		if err := f.Restore(&store.Entry{
			ID:       packet.IDType(e.PacketID),
			Message:  e.Message.Publish(),
			State:    store.State(e.State),
			Attempts: e.Attempts,
		}); err != nil {
			return err
		}
	}

	return nil
}

func (m *Manager) loadSessions(now time.Time) error {
	return m.sessionsDB.Load(func(state *persistenceTypes.SessionState) error {
		id := state.ClientID

		if state.Expired(now) {
			m.log.Debug("Persisted session expired", zap.String("ClientID", id))
			// delayed will would have fired before expiry
			if w := state.Will.Will(); w != nil {
				m.publishWill(id, w)
			}

			if err := m.sessionsDB.Delete(id); err != nil && err != persistenceTypes.ErrNotFound {
				m.log.Error("Persisted session delete", zap.String("ClientID", id), zap.Error(err))
			}
			return nil
		}

		s := m.allocSession(id, state.Timestamp)
		s.state = StateSuspended
		s.version = packet.ProtocolVersion(state.Version)

		if state.ExpireAt != nil {
			at := *state.ExpireAt
			d := at.Sub(now)
			s.expireAt = &at
			s.expiry = &d
		}

		if w := state.Will.Will(); w != nil {
			s.timers.will = w
			s.timers.willAt = now.Add(w.DelayDuration())
		}

		subs := make(subscriber.Subscriptions, len(state.Subscriptions))
		for filter, qos := range state.Subscriptions {
			subs[filter] = packet.QosType(qos)
		}

		queued := make([]*packet.Publish, 0, len(state.Queue))
		for i := range state.Queue {
			queued = append(queued, state.Queue[i].Publish())
		}

		s.sub.Restore(subs, queued)

		if err := restoreEntries(s.outbound, state.Outbound); err != nil {
			m.log.Error("Restore outbound", zap.String("ClientID", id), zap.Error(err))
		}

		if err := restoreEntries(s.inbound, state.Inbound); err != nil {
			m.log.Error("Restore inbound", zap.String("ClientID", id), zap.Error(err))
		}

		m.lock.Lock()
		m.containers[id] = &container{ses: s}
		m.count++
		m.lock.Unlock()

		s.lock.Lock()
		m.schedule(s, now)
		s.lock.Unlock()

		m.Systree.Sessions().Created(id, &systree.SessionCreatedStatus{
			ExpiryInterval: expiryDesc(s.expiry),
			Timestamp:      state.Timestamp.Format(time.RFC3339),
		})

		return nil
	})
}

func (m *Manager) loadRetained() error {
	msgs, err := m.retainedDB.Load()
	if err != nil {
		return err
	}

	pubs := make([]*packet.Publish, 0, len(msgs))
	for i := range msgs {
		pubs = append(pubs, msgs[i].Publish())
	}

	m.log.Debug("Retained messages loaded", zap.Int("count", m.Retained.Load(pubs)))

	return nil
}

func (m *Manager) storeRetained() error {
	if m.retainedDB == nil {
		return nil
	}

	snapshot := m.Retained.Snapshot()
	msgs := make([]persistenceTypes.Message, 0, len(snapshot))
	for _, p := range snapshot {
		msgs = append(msgs, persistenceTypes.FromPublish(p))
	}

	return m.retainedDB.Store(msgs)
}

func expiryDesc(d *time.Duration) string {
	if d == nil {
		return "never"
	}

	return d.String()
}
