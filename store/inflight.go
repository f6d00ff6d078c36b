package store

import (
	"errors"
	"sync"
	"time"

	"github.com/VolantMQ/mqcore/omap"
	"github.com/VolantMQ/mqcore/packet"
)

// State of in-flight QoS1/QoS2 exchange
type State byte

// nolint: golint
const (
	StatePending State = iota
	StateSent
	StateReceived
	StateReleased
	StateCompleted
	StateAcknowledged
)

var stateName = [...]string{
	"pending",
	"sent",
	"received",
	"released",
	"completed",
	"acknowledged",
}

func (s State) String() string {
	if int(s) < len(stateName) {
		return stateName[s]
	}

	return "unknown"
}

// Direction of message flow relative to server
type Direction byte

// nolint: golint
const (
	Outbound Direction = iota
	Inbound
)

var (
	// ErrUnknownPacketID acknowledgement for packet id without tracked state
	ErrUnknownPacketID = errors.New("store: unknown packet id")

	// ErrPacketIDInUse packet id already tracked
	ErrPacketIDInUse = errors.New("store: packet id in use")

	// ErrUnexpectedAck acknowledgement kind does not fit current state
	ErrUnexpectedAck = errors.New("store: unexpected acknowledgement")

	// ErrNoFreeID all packet identifiers are in use
	ErrNoFreeID = errors.New("store: no free packet id")
)

// Entry tracked message
type Entry struct {
	ID       packet.IDType
	Message  *packet.Publish
	State    State
	Attempts int
	LastSent time.Time
}

// Inflight tracks unfinished QoS1/QoS2 exchanges of one session in one direction.
// Iteration order is order of insertion
type Inflight struct {
	lock    sync.Mutex
	dir     Direction
	entries omap.Map[packet.IDType, *Entry]
	counter uint16
}

// NewInflight allocate table for given direction
func NewInflight(dir Direction) *Inflight {
	return &Inflight{
		dir:     dir,
		entries: omap.New[packet.IDType, *Entry](),
	}
}

// Direction of the table
func (f *Inflight) Direction() Direction {
	return f.dir
}

// Acquire next free packet identifier in range 1..65535
func (f *Inflight) Acquire() (packet.IDType, error) {
	f.lock.Lock()
	defer f.lock.Unlock()

	for count := 0; count < 0xFFFF; count++ {
		f.counter++
		if f.counter == 0 {
			f.counter = 1
		}

		id := packet.IDType(f.counter)
		if _, ok := f.entries.Get(id); !ok {
			return id, nil
		}
	}

	return 0, ErrNoFreeID
}

// Track start exchange for message with given id.
// Outbound entries start in StateSent, inbound in StateReceived
func (f *Inflight) Track(id packet.IDType, msg *packet.Publish, now time.Time) (*Entry, error) {
	if id == 0 {
		return nil, ErrUnknownPacketID
	}

	f.lock.Lock()
	defer f.lock.Unlock()

	if _, ok := f.entries.Get(id); ok {
		return nil, ErrPacketIDInUse
	}

	e := &Entry{
		ID:       id,
		Message:  msg,
		State:    StateSent,
		Attempts: 1,
		LastSent: now,
	}

	if f.dir == Inbound {
		e.State = StateReceived
	}

	f.entries.Set(id, e)

	return e, nil
}

// Restore puts entry back as is. Used when loading persisted sessions
func (f *Inflight) Restore(e *Entry) error {
	f.lock.Lock()
	defer f.lock.Unlock()

	if _, ok := f.entries.Get(e.ID); ok {
		return ErrPacketIDInUse
	}

	f.entries.Set(e.ID, e)

	return nil
}

// Resolve applies acknowledgement to tracked entry.
// Entries reaching terminal state are removed and their id becomes free
func (f *Inflight) Resolve(id packet.IDType, ack packet.Type) (*Entry, error) {
	f.lock.Lock()
	defer f.lock.Unlock()

	e, ok := f.entries.Get(id)
	if !ok {
		return nil, ErrUnknownPacketID
	}

	if f.dir == Inbound {
		if ack != packet.PUBREL || e.State != StateReceived {
			return e, ErrUnexpectedAck
		}

		e.State = StateCompleted
		f.entries.Delete(id)
		return e, nil
	}

	switch ack {
	case packet.PUBACK:
		if e.Message.QoS != packet.QoS1 || e.State != StateSent {
			return e, ErrUnexpectedAck
		}

		e.State = StateAcknowledged
		f.entries.Delete(id)
	case packet.PUBREC:
		if e.Message.QoS != packet.QoS2 {
			return e, ErrUnexpectedAck
		}

		switch e.State {
		case StateSent:
			e.State = StateReceived
		case StateReceived, StateReleased:
			// duplicate PUBREC, caller repeats PUBREL
		default:
			return e, ErrUnexpectedAck
		}
	case packet.PUBCOMP:
		if e.Message.QoS != packet.QoS2 || e.State != StateReleased {
			return e, ErrUnexpectedAck
		}

		e.State = StateCompleted
		f.entries.Delete(id)
	default:
		return e, ErrUnexpectedAck
	}

	return e, nil
}

// MarkReleased moves outbound QoS2 entry from received to released once PUBREL is sent
func (f *Inflight) MarkReleased(id packet.IDType, now time.Time) error {
	f.lock.Lock()
	defer f.lock.Unlock()

	e, ok := f.entries.Get(id)
	if !ok {
		return ErrUnknownPacketID
	}

	switch e.State {
	case StateReceived:
		e.State = StateReleased
		e.Attempts = 1
		e.LastSent = now
	case StateReleased:
	default:
		return ErrUnexpectedAck
	}

	return nil
}

// Get tracked entry
func (f *Inflight) Get(id packet.IDType) (*Entry, bool) {
	f.lock.Lock()
	defer f.lock.Unlock()

	return f.entries.Get(id)
}

// Has reports whether id is tracked
func (f *Inflight) Has(id packet.IDType) bool {
	_, ok := f.Get(id)
	return ok
}

// Range calls fn for every entry in insertion order until fn returns false.
// fn must not modify the table
func (f *Inflight) Range(fn func(*Entry) bool) {
	f.lock.Lock()
	defer f.lock.Unlock()

	iter := f.entries.Iterator()
	for kv, ok := iter(); ok; kv, ok = iter() {
		if !fn(kv.Value) {
			return
		}
	}
}

// Due returns entries waiting for acknowledgement longer than timeout, in insertion order
func (f *Inflight) Due(now time.Time, timeout time.Duration) []*Entry {
	var res []*Entry

	f.Range(func(e *Entry) bool {
		if (e.State == StateSent || e.State == StateReleased) && !now.Before(e.LastSent.Add(timeout)) {
			res = append(res, e)
		}
		return true
	})

	return res
}

// Touch records retransmission of entry
func (f *Inflight) Touch(id packet.IDType, now time.Time) (int, error) {
	f.lock.Lock()
	defer f.lock.Unlock()

	e, ok := f.entries.Get(id)
	if !ok {
		return 0, ErrUnknownPacketID
	}

	e.Attempts++
	e.LastSent = now

	return e.Attempts, nil
}

// Entries snapshot of entries in insertion order
func (f *Inflight) Entries() []*Entry {
	var res []*Entry

	f.Range(func(e *Entry) bool {
		res = append(res, e)
		return true
	})

	return res
}

// Len number of tracked entries
func (f *Inflight) Len() int {
	f.lock.Lock()
	defer f.lock.Unlock()

	return f.entries.Len()
}

// Reset drops all entries
func (f *Inflight) Reset() {
	f.lock.Lock()
	defer f.lock.Unlock()

	f.entries.Clear()
}
