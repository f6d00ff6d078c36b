package systree

import (
	"strconv"
	"sync/atomic"
	"time"

	"github.com/VolantMQ/mqcore/packet"
)

// DynamicValue interface describes states of the dynamic value
type DynamicValue interface {
	Topic() string
	// Publish used by systree update routine to publish new value on periodic basis.
	// Each call returns new retained message
	Publish() *packet.Publish
}

type dynamicValue struct {
	topic    string
	getValue func() []byte
}

type dynamicValueInteger struct {
	dynamicValue
	val uint64
}

type dynamicValueUpTime struct {
	dynamicValue
	startTime time.Time
}

type dynamicValueCurrentTime struct {
	dynamicValue
}

func newDynamicValueInteger(topic string) *dynamicValueInteger {
	v := &dynamicValueInteger{}
	v.topic = topic
	v.getValue = v.get

	return v
}

func newDynamicValueUpTime(topic string) *dynamicValueUpTime {
	v := &dynamicValueUpTime{
		startTime: time.Now(),
	}

	v.topic = topic
	v.getValue = v.get

	return v
}

func newDynamicValueCurrentTime(topic string) *dynamicValueCurrentTime {
	v := &dynamicValueCurrentTime{}
	v.topic = topic
	v.getValue = v.get

	return v
}

func (v *dynamicValueInteger) get() []byte {
	val := strconv.FormatUint(atomic.LoadUint64(&v.val), 10)
	return []byte(val)
}

func (v *dynamicValueInteger) add(delta uint64) uint64 {
	return atomic.AddUint64(&v.val, delta)
}

func (v *dynamicValueInteger) load() uint64 {
	return atomic.LoadUint64(&v.val)
}

func (v *dynamicValueUpTime) get() []byte {
	diff := time.Since(v.startTime) / time.Second

	return []byte(strconv.FormatInt(int64(diff), 10))
}

func (v *dynamicValueCurrentTime) get() []byte {
	val := time.Now().Format(time.RFC3339)
	return []byte(val)
}

func (m *dynamicValue) Topic() string {
	return m.topic
}

func (m *dynamicValue) Publish() *packet.Publish {
	msg := packet.NewPublish(m.topic, m.getValue(), packet.QoS0)
	msg.Retain = true

	return msg
}

func newStaticValue(topic string, payload []byte) *packet.Publish {
	msg := packet.NewPublish(topic, payload, packet.QoS0)
	msg.Retain = true

	return msg
}
