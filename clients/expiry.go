package clients

import (
	"time"

	"github.com/VolantMQ/mqcore/packet"
)

// expiry timers of suspended session.
// Single timer fires at earliest of will delay and session expiry.
// generation invalidates callbacks of timers stopped concurrently
type expiry struct {
	timer      *time.Timer
	generation uint64
	will       *packet.Will
	willAt     time.Time
}

// cancel must be called with session lock held
func (e *expiry) cancel() {
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}

	e.generation++
}

// next deadline, false if nothing to wait for
func (e *expiry) next(expireAt *time.Time) (time.Time, bool) {
	switch {
	case e.will != nil && expireAt != nil:
		if e.willAt.Before(*expireAt) {
			return e.willAt, true
		}
		return *expireAt, true
	case e.will != nil:
		return e.willAt, true
	case expireAt != nil:
		return *expireAt, true
	default:
		return time.Time{}, false
	}
}

// schedule must be called with session lock held
func (m *Manager) schedule(s *Session, now time.Time) {
	s.timers.cancel()

	at, ok := s.timers.next(s.expireAt)
	if !ok {
		return
	}

	gen := s.timers.generation
	s.timers.timer = time.AfterFunc(at.Sub(now), func() {
		m.timerCallback(s, gen)
	})
}

func (m *Manager) timerCallback(s *Session, gen uint64) {
	s.lock.Lock()
	defer s.lock.Unlock()

	if s.timers.generation != gen || s.state != StateSuspended {
		return
	}

	now := time.Now()

	// 1. delayed will elapsed
	if s.timers.will != nil && !now.Before(s.timers.willAt) {
		m.publishWill(s.id, s.timers.will)
		s.timers.will = nil
	}

	// 2. session expired. wipe it
	if s.expireAt != nil && !now.Before(*s.expireAt) {
		m.destroy(s, "expired")
		return
	}

	m.schedule(s, now)
}
