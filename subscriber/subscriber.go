package subscriber

import (
	"sync"
	"unsafe"

	"go.uber.org/zap"

	"github.com/VolantMQ/mqcore/configuration"
	"github.com/VolantMQ/mqcore/packet"
	topicsTypes "github.com/VolantMQ/mqcore/topics/types"
	"github.com/VolantMQ/mqcore/types"
)

// RetainedProvider source of retained messages delivered upon subscribe
type RetainedProvider interface {
	Matching(filter string) []*packet.Publish
}

// Subscriptions contains active subscriptions with respective granted QoS
type Subscriptions map[string]packet.QosType

// Config of subscriber
type Config struct {
	// ID client id
	ID string

	// Topics manager
	Topics topicsTypes.Provider

	// Retained messages delivered on subscribe. Optional
	Retained RetainedProvider

	// OfflineQoS0 either queue QoS0 messages when offline or not
	OfflineQoS0 bool

	// MaxQueued limits delivery queue. 0 means unlimited
	MaxQueued int
}

// Type the subscription object of session.
// Keeps subscriptions and FIFO queue of messages waiting for delivery.
// Fan-out writes into queue never block, owner of the session reads queue
// once signalled via Notify channel
type Type struct {
	id          string
	topics      topicsTypes.Provider
	retained    RetainedProvider
	log         *zap.SugaredLogger
	notify      chan struct{}
	offlineQoS0 bool
	maxQueued   int

	lock          sync.Mutex
	subscriptions Subscriptions
	queue         *types.Queue[*packet.Publish]
	online        bool
	dropped       uint64
}

var _ topicsTypes.Subscriber = (*Type)(nil)

// New subscriber object
func New(config *Config) *Type {
	return &Type{
		id:            config.ID,
		topics:        config.Topics,
		retained:      config.Retained,
		log:           configuration.GetLogger().Named("subscriber").Named(config.ID),
		notify:        make(chan struct{}, 1),
		offlineQoS0:   config.OfflineQoS0,
		maxQueued:     config.MaxQueued,
		subscriptions: make(Subscriptions),
		queue:         types.NewQueue[*packet.Publish](),
	}
}

// Hash returns address of the provider struct.
// Used by topics provider as a key to subscriber object
func (s *Type) Hash() uintptr {
	return uintptr(unsafe.Pointer(s))
}

// ID client identifier subscriber belongs to
func (s *Type) ID() string {
	return s.id
}

// Notify signalled when queue receives new messages
func (s *Type) Notify() <-chan struct{} {
	return s.notify
}

func (s *Type) signal() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// Subscriptions list active subscriptions
func (s *Type) Subscriptions() Subscriptions {
	s.lock.Lock()
	defer s.lock.Unlock()

	res := make(Subscriptions, len(s.subscriptions))
	for k, v := range s.subscriptions {
		res[k] = v
	}

	return res
}

// Subscribe to given filter and enqueue retained messages matching it.
// Retained messages are queued before any message routed after subscribe completes
func (s *Type) Subscribe(filter string, qos packet.QosType) (packet.QosType, error) {
	s.lock.Lock()

	granted, err := s.topics.Subscribe(filter, s, qos)
	if err != nil {
		s.lock.Unlock()
		return granted, err
	}

	s.subscriptions[filter] = granted

	queued := 0
	if s.retained != nil {
		for _, m := range s.retained.Matching(filter) {
			msg := m.CopyWithQoS(granted)
			msg.Retain = true
			if s.enqueue(msg) {
				queued++
			}
		}
	}

	s.lock.Unlock()

	if queued > 0 {
		s.signal()
	}

	return granted, nil
}

// UnSubscribe from given filter
func (s *Type) UnSubscribe(filter string) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	if _, ok := s.subscriptions[filter]; !ok {
		return topicsTypes.ErrNotFound
	}

	delete(s.subscriptions, filter)

	return s.topics.UnSubscribe(filter, s)
}

// UnSubscribeAll remove all subscriptions
func (s *Type) UnSubscribeAll() {
	s.lock.Lock()
	defer s.lock.Unlock()

	for filter := range s.subscriptions {
		if err := s.topics.UnSubscribe(filter, s); err != nil {
			s.log.Debugw("unsubscribe", "filter", filter, "error", err)
		}
		delete(s.subscriptions, filter)
	}
}

// Restore subscriptions of persisted session. Retained messages are not delivered
func (s *Type) Restore(subs Subscriptions, queued []*packet.Publish) {
	s.lock.Lock()

	for filter, qos := range subs {
		granted, err := s.topics.Subscribe(filter, s, qos)
		if err != nil {
			s.log.Warnw("restore subscription", "filter", filter, "error", err)
			continue
		}

		s.subscriptions[filter] = granted
	}

	for _, m := range queued {
		s.queue.Add(m)
	}

	s.lock.Unlock()

	if len(queued) > 0 {
		s.signal()
	}
}

// enqueue must be called with lock held
func (s *Type) enqueue(msg *packet.Publish) bool {
	if !s.online && msg.QoS == packet.QoS0 && !s.offlineQoS0 {
		return false
	}

	if s.maxQueued > 0 && s.queue.Length() >= s.maxQueued {
		s.dropped++
		return false
	}

	s.queue.Add(msg)

	return true
}

// Publish message accordingly to subscriber state.
// Message must be own copy of the subscriber
// online: queue and notify session
// offline: queue QoS1 and QoS2, and QoS0 if set by config
func (s *Type) Publish(msg *packet.Publish) error {
	s.lock.Lock()

	if s.maxQueued > 0 && s.queue.Length() >= s.maxQueued {
		s.dropped++
		s.lock.Unlock()
		s.log.Warnw("queue full, message dropped", "topic", msg.Topic)
		return types.ErrResourceExhausted
	}

	queued := s.enqueue(msg)
	s.lock.Unlock()

	if queued {
		s.signal()
	}

	return nil
}

// Dequeue next message waiting for delivery
func (s *Type) Dequeue() (*packet.Publish, bool) {
	s.lock.Lock()
	defer s.lock.Unlock()

	return s.queue.Remove()
}

// Requeue puts message back at the head of queue
func (s *Type) Requeue(msg *packet.Publish) {
	s.lock.Lock()
	s.queue.PushFront(msg)
	s.lock.Unlock()
}

// Queued snapshot of messages waiting for delivery
func (s *Type) Queued() []*packet.Publish {
	s.lock.Lock()
	defer s.lock.Unlock()

	res := make([]*packet.Publish, 0, s.queue.Length())
	for i := 0; i < s.queue.Length(); i++ {
		res = append(res, s.queue.Get(i))
	}

	return res
}

// QueueLen number of messages waiting for delivery
func (s *Type) QueueLen() int {
	s.lock.Lock()
	defer s.lock.Unlock()

	return s.queue.Length()
}

// Dropped number of messages dropped due to queue limit
func (s *Type) Dropped() uint64 {
	s.lock.Lock()
	defer s.lock.Unlock()

	return s.dropped
}

// Online moves subscriber to online state
func (s *Type) Online() {
	s.lock.Lock()
	s.online = true
	pending := s.queue.Length() > 0
	s.lock.Unlock()

	if pending {
		s.signal()
	}
}

// Offline put subscriber offline
// if shutdown is true it does unsubscribe from all active subscriptions and drops queue
func (s *Type) Offline(shutdown bool) {
	if shutdown {
		s.UnSubscribeAll()
	}

	s.lock.Lock()
	s.online = false
	if shutdown {
		s.queue.Clear()
	}
	s.lock.Unlock()
}

// IsOnline reports subscriber state
func (s *Type) IsOnline() bool {
	s.lock.Lock()
	defer s.lock.Unlock()

	return s.online
}
