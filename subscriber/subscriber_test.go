package subscriber

import (
	"testing"

	"github.com/VolantMQ/mqcore/packet"
	"github.com/VolantMQ/mqcore/store"
	"github.com/VolantMQ/mqcore/topics"
	topicsTypes "github.com/VolantMQ/mqcore/topics/types"
	"github.com/VolantMQ/mqcore/types"
	"github.com/stretchr/testify/require"
)

func newTopics(t *testing.T) topicsTypes.Provider {
	prov, err := topics.New(topicsTypes.NewMemConfig())
	require.NoError(t, err)
	return prov
}

func TestSubscribeDeliversRetainedFirst(t *testing.T) {
	tp := newTopics(t)
	retained := store.NewRetained()
	_, err := retained.Set(packet.NewPublish("home/kitchen/temperature", []byte("21"), packet.QoS2))
	require.NoError(t, err)

	s := New(&Config{ID: "c1", Topics: tp, Retained: retained})
	s.Online()

	granted, err := s.Subscribe("home/+/temperature", packet.QoS1)
	require.NoError(t, err)
	require.Equal(t, packet.QoS1, granted)

	require.NoError(t, s.Publish(packet.NewPublish("home/kitchen/temperature", []byte("22"), packet.QoS1)))

	select {
	case <-s.Notify():
	default:
		require.FailNow(t, "expected notification")
	}

	m, ok := s.Dequeue()
	require.True(t, ok)
	require.True(t, m.Retain)
	require.Equal(t, packet.QoS1, m.QoS)
	require.Equal(t, []byte("21"), m.Payload)

	m, ok = s.Dequeue()
	require.True(t, ok)
	require.False(t, m.Retain)
	require.Equal(t, []byte("22"), m.Payload)

	_, ok = s.Dequeue()
	require.False(t, ok)

	require.Equal(t, Subscriptions{"home/+/temperature": packet.QoS1}, s.Subscriptions())
	require.Len(t, tp.Subscribers("home/a/temperature"), 1)
}

func TestOfflineQoS0(t *testing.T) {
	tp := newTopics(t)

	s := New(&Config{ID: "c1", Topics: tp})
	require.NoError(t, s.Publish(packet.NewPublish("a", []byte("x"), packet.QoS0)))
	require.NoError(t, s.Publish(packet.NewPublish("a", []byte("y"), packet.QoS1)))
	require.Equal(t, 1, s.QueueLen())

	keep := New(&Config{ID: "c2", Topics: tp, OfflineQoS0: true})
	require.NoError(t, keep.Publish(packet.NewPublish("a", []byte("x"), packet.QoS0)))
	require.Equal(t, 1, keep.QueueLen())
}

func TestMaxQueued(t *testing.T) {
	s := New(&Config{ID: "c1", Topics: newTopics(t), MaxQueued: 2})
	s.Online()

	require.NoError(t, s.Publish(packet.NewPublish("a", []byte("1"), packet.QoS1)))
	require.NoError(t, s.Publish(packet.NewPublish("a", []byte("2"), packet.QoS1)))
	require.ErrorIs(t, s.Publish(packet.NewPublish("a", []byte("3"), packet.QoS1)), types.ErrResourceExhausted)
	require.Equal(t, uint64(1), s.Dropped())

	queued := s.Queued()
	require.Len(t, queued, 2)
	require.Equal(t, []byte("1"), queued[0].Payload)
	require.Equal(t, []byte("2"), queued[1].Payload)
}

func TestRequeue(t *testing.T) {
	s := New(&Config{ID: "c1", Topics: newTopics(t)})
	s.Online()

	require.NoError(t, s.Publish(packet.NewPublish("a", []byte("1"), packet.QoS1)))
	require.NoError(t, s.Publish(packet.NewPublish("a", []byte("2"), packet.QoS1)))

	m, _ := s.Dequeue()
	s.Requeue(m)

	m, _ = s.Dequeue()
	require.Equal(t, []byte("1"), m.Payload)
}

func TestUnsubscribeAndShutdown(t *testing.T) {
	tp := newTopics(t)
	s := New(&Config{ID: "c1", Topics: tp})

	_, err := s.Subscribe("a/#", packet.QoS1)
	require.NoError(t, err)
	_, err = s.Subscribe("b", packet.QoS0)
	require.NoError(t, err)

	require.NoError(t, s.UnSubscribe("b"))
	require.ErrorIs(t, s.UnSubscribe("b"), topicsTypes.ErrNotFound)
	require.Len(t, tp.Subscribers("b"), 0)

	require.NoError(t, s.Publish(packet.NewPublish("a/x", []byte("1"), packet.QoS1)))

	s.Offline(true)
	require.Len(t, tp.Subscribers("a/x"), 0)
	require.Equal(t, 0, s.QueueLen())
	require.False(t, s.IsOnline())
}

func TestRestore(t *testing.T) {
	tp := newTopics(t)
	s := New(&Config{ID: "c1", Topics: tp})

	s.Restore(Subscriptions{"a/+": packet.QoS2}, []*packet.Publish{packet.NewPublish("a/b", []byte("q"), packet.QoS1)})

	subs := tp.Subscribers("a/b")
	require.Len(t, subs, 1)
	require.Equal(t, packet.QoS2, subs[0].QoS)
	require.Equal(t, 1, s.QueueLen())
}
