package store

import (
	"sort"
	"sync"

	"github.com/VolantMQ/mqcore/packet"
	"github.com/VolantMQ/mqcore/topics"
)

// Retained holds last retained message per exact topic
type Retained struct {
	lock     sync.RWMutex
	messages map[string]*packet.Publish
}

// NewRetained allocate empty retained table
func NewRetained() *Retained {
	return &Retained{
		messages: make(map[string]*packet.Publish),
	}
}

// Set replaces retained message for topic. Empty payload removes it.
// Returns true if table changed
func (r *Retained) Set(msg *packet.Publish) (bool, error) {
	if err := topics.ValidateTopic(msg.Topic); err != nil {
		return false, err
	}

	r.lock.Lock()
	defer r.lock.Unlock()

	if len(msg.Payload) == 0 {
		_, ok := r.messages[msg.Topic]
		delete(r.messages, msg.Topic)
		return ok, nil
	}

	m := msg.Copy()
	m.Retain = true
	r.messages[msg.Topic] = m

	return true, nil
}

// Get retained message for exact topic
func (r *Retained) Get(topic string) (*packet.Publish, bool) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	m, ok := r.messages[topic]
	if !ok {
		return nil, false
	}

	return m.Copy(), true
}

// Matching returns copies of retained messages matching filter ordered by topic
func (r *Retained) Matching(filter string) []*packet.Publish {
	r.lock.RLock()
	var res []*packet.Publish
	for topic, m := range r.messages {
		if topics.Match(topic, filter) {
			res = append(res, m.Copy())
		}
	}
	r.lock.RUnlock()

	sort.Slice(res, func(i, j int) bool {
		return res[i].Topic < res[j].Topic
	})

	return res
}

// Len number of retained messages
func (r *Retained) Len() int {
	r.lock.RLock()
	defer r.lock.RUnlock()

	return len(r.messages)
}

// Snapshot returns copies of all retained messages
func (r *Retained) Snapshot() []*packet.Publish {
	r.lock.RLock()
	res := make([]*packet.Publish, 0, len(r.messages))
	for _, m := range r.messages {
		res = append(res, m.Copy())
	}
	r.lock.RUnlock()

	sort.Slice(res, func(i, j int) bool {
		return res[i].Topic < res[j].Topic
	})

	return res
}

// Load restores retained messages. Invalid entries are skipped
func (r *Retained) Load(msgs []*packet.Publish) int {
	count := 0
	for _, m := range msgs {
		if changed, err := r.Set(m); err == nil && changed {
			count++
		}
	}

	return count
}
