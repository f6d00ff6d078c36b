package mem

import (
	"context"
	"sync"

	"github.com/VolantMQ/mqcore/persistence/types"
)

type dbStatus struct {
	done chan struct{}
}

func (s *dbStatus) closed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

type impl struct {
	status dbStatus

	r retained
	s sessions
}

// New allocate new persistence provider of in memory type
func New(config *persistenceTypes.MemConfig) (persistenceTypes.Provider, error) {
	if config == nil {
		return nil, persistenceTypes.ErrInvalidArgs
	}

	pl := &impl{}

	pl.status.done = make(chan struct{})

	pl.r = retained{
		status: &pl.status,
	}

	pl.s = sessions{
		status:   &pl.status,
		sessions: make(map[string]*persistenceTypes.SessionState),
	}

	return pl, nil
}

// Sessions
func (p *impl) Sessions() (persistenceTypes.Sessions, error) {
	if p.status.closed() {
		return nil, persistenceTypes.ErrNotOpen
	}

	return &p.s, nil
}

// Retained
func (p *impl) Retained() (persistenceTypes.Retained, error) {
	if p.status.closed() {
		return nil, persistenceTypes.ErrNotOpen
	}

	return &p.r, nil
}

// Ping always succeeds while open
func (p *impl) Ping(context.Context) error {
	if p.status.closed() {
		return persistenceTypes.ErrNotOpen
	}

	return nil
}

// Shutdown provider
func (p *impl) Shutdown() error {
	select {
	case <-p.status.done:
		return persistenceTypes.ErrNotOpen
	default:
		close(p.status.done)
	}

	return nil
}

type retained struct {
	status *dbStatus

	lock sync.Mutex
	msgs []persistenceTypes.Message
}

func (r *retained) Store(msgs []persistenceTypes.Message) error {
	if r.status.closed() {
		return persistenceTypes.ErrNotOpen
	}

	r.lock.Lock()
	defer r.lock.Unlock()

	r.msgs = append([]persistenceTypes.Message(nil), msgs...)

	return nil
}

func (r *retained) Load() ([]persistenceTypes.Message, error) {
	if r.status.closed() {
		return nil, persistenceTypes.ErrNotOpen
	}

	r.lock.Lock()
	defer r.lock.Unlock()

	return append([]persistenceTypes.Message(nil), r.msgs...), nil
}

func (r *retained) Wipe() error {
	if r.status.closed() {
		return persistenceTypes.ErrNotOpen
	}

	r.lock.Lock()
	r.msgs = nil
	r.lock.Unlock()

	return nil
}

type sessions struct {
	status *dbStatus

	lock     sync.Mutex
	sessions map[string]*persistenceTypes.SessionState
}

func copyState(st *persistenceTypes.SessionState) *persistenceTypes.SessionState {
	c := *st

	if st.Subscriptions != nil {
		c.Subscriptions = make(map[string]byte, len(st.Subscriptions))
		for k, v := range st.Subscriptions {
			c.Subscriptions[k] = v
		}
	}

	c.Queue = append([]persistenceTypes.Message(nil), st.Queue...)
	c.Outbound = append([]persistenceTypes.InflightEntry(nil), st.Outbound...)
	c.Inbound = append([]persistenceTypes.InflightEntry(nil), st.Inbound...)

	if st.ExpireAt != nil {
		at := *st.ExpireAt
		c.ExpireAt = &at
	}

	if st.Will != nil {
		w := *st.Will
		c.Will = &w
	}

	return &c
}

func (s *sessions) Load(fn func(*persistenceTypes.SessionState) error) error {
	if s.status.closed() {
		return persistenceTypes.ErrNotOpen
	}

	s.lock.Lock()
	states := make([]*persistenceTypes.SessionState, 0, len(s.sessions))
	for _, st := range s.sessions {
		states = append(states, copyState(st))
	}
	s.lock.Unlock()

	for _, st := range states {
		if err := fn(st); err != nil {
			return err
		}
	}

	return nil
}

func (s *sessions) Get(id string) (*persistenceTypes.SessionState, error) {
	if s.status.closed() {
		return nil, persistenceTypes.ErrNotOpen
	}

	s.lock.Lock()
	defer s.lock.Unlock()

	st, ok := s.sessions[id]
	if !ok {
		return nil, persistenceTypes.ErrNotFound
	}

	return copyState(st), nil
}

func (s *sessions) Store(st *persistenceTypes.SessionState) error {
	if s.status.closed() {
		return persistenceTypes.ErrNotOpen
	}

	if st == nil || st.ClientID == "" {
		return persistenceTypes.ErrInvalidArgs
	}

	s.lock.Lock()
	s.sessions[st.ClientID] = copyState(st)
	s.lock.Unlock()

	return nil
}

func (s *sessions) Delete(id string) error {
	if s.status.closed() {
		return persistenceTypes.ErrNotOpen
	}

	s.lock.Lock()
	defer s.lock.Unlock()

	if _, ok := s.sessions[id]; !ok {
		return persistenceTypes.ErrNotFound
	}

	delete(s.sessions, id)

	return nil
}

func (s *sessions) Wipe() error {
	if s.status.closed() {
		return persistenceTypes.ErrNotOpen
	}

	s.lock.Lock()
	s.sessions = make(map[string]*persistenceTypes.SessionState)
	s.lock.Unlock()

	return nil
}
