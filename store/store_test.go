package store

import (
	"testing"
	"time"

	"github.com/VolantMQ/mqcore/packet"
	"github.com/stretchr/testify/require"
)

func TestRetainedSetDelete(t *testing.T) {
	r := NewRetained()

	changed, err := r.Set(packet.NewPublish("a/b", []byte("1"), packet.QoS1))
	require.NoError(t, err)
	require.True(t, changed)

	_, err = r.Set(packet.NewPublish("a/c", []byte("2"), packet.QoS0))
	require.NoError(t, err)
	_, err = r.Set(packet.NewPublish("a/b", []byte("3"), packet.QoS2))
	require.NoError(t, err)

	require.Equal(t, 2, r.Len())

	m, ok := r.Get("a/b")
	require.True(t, ok)
	require.Equal(t, []byte("3"), m.Payload)
	require.Equal(t, packet.QoS2, m.QoS)
	require.True(t, m.Retain)

	changed, err = r.Set(packet.NewPublish("a/b", nil, packet.QoS0))
	require.NoError(t, err)
	require.True(t, changed)
	require.Equal(t, 1, r.Len())

	changed, err = r.Set(packet.NewPublish("missing", nil, packet.QoS0))
	require.NoError(t, err)
	require.False(t, changed)

	_, err = r.Set(packet.NewPublish("a/+", []byte("x"), packet.QoS0))
	require.Error(t, err)
}

func TestRetainedMatching(t *testing.T) {
	r := NewRetained()

	for _, topic := range []string{"home/kitchen/temperature", "home/bath/temperature", "home/kitchen/humidity", "$SYS/uptime"} {
		_, err := r.Set(packet.NewPublish(topic, []byte(topic), packet.QoS1))
		require.NoError(t, err)
	}

	res := r.Matching("home/+/temperature")
	require.Len(t, res, 2)
	require.Equal(t, "home/bath/temperature", res[0].Topic)
	require.Equal(t, "home/kitchen/temperature", res[1].Topic)
	require.True(t, res[0].Retain)

	require.Len(t, r.Matching("#"), 3)
	require.Len(t, r.Matching("$SYS/#"), 1)

	// returned messages are copies
	res[0].Payload = []byte("changed")
	m, _ := r.Get("home/bath/temperature")
	require.Equal(t, []byte("home/bath/temperature"), m.Payload)

	other := NewRetained()
	require.Equal(t, 4, other.Load(r.Snapshot()))
	require.Equal(t, 4, other.Len())
}

func TestInflightOutboundQoS1(t *testing.T) {
	f := NewInflight(Outbound)
	now := time.Now()

	id, err := f.Acquire()
	require.NoError(t, err)
	require.Equal(t, packet.IDType(1), id)

	_, err = f.Track(id, packet.NewPublish("a", nil, packet.QoS1), now)
	require.NoError(t, err)

	_, err = f.Track(id, packet.NewPublish("a", nil, packet.QoS1), now)
	require.ErrorIs(t, err, ErrPacketIDInUse)

	_, err = f.Resolve(id, packet.PUBREC)
	require.ErrorIs(t, err, ErrUnexpectedAck)

	e, err := f.Resolve(id, packet.PUBACK)
	require.NoError(t, err)
	require.Equal(t, StateAcknowledged, e.State)
	require.False(t, f.Has(id))

	_, err = f.Resolve(id, packet.PUBACK)
	require.ErrorIs(t, err, ErrUnknownPacketID)
}

func TestInflightOutboundQoS2(t *testing.T) {
	f := NewInflight(Outbound)
	now := time.Now()

	_, err := f.Track(5, packet.NewPublish("a", nil, packet.QoS2), now)
	require.NoError(t, err)

	_, err = f.Resolve(5, packet.PUBCOMP)
	require.ErrorIs(t, err, ErrUnexpectedAck)

	e, err := f.Resolve(5, packet.PUBREC)
	require.NoError(t, err)
	require.Equal(t, StateReceived, e.State)

	require.NoError(t, f.MarkReleased(5, now))
	e, _ = f.Get(5)
	require.Equal(t, StateReleased, e.State)

	// duplicate PUBREC keeps released state
	e, err = f.Resolve(5, packet.PUBREC)
	require.NoError(t, err)
	require.Equal(t, StateReleased, e.State)

	e, err = f.Resolve(5, packet.PUBCOMP)
	require.NoError(t, err)
	require.Equal(t, StateCompleted, e.State)
	require.Equal(t, 0, f.Len())

	require.ErrorIs(t, f.MarkReleased(5, now), ErrUnknownPacketID)
}

func TestInflightInbound(t *testing.T) {
	f := NewInflight(Inbound)

	e, err := f.Track(9, packet.NewPublish("a", nil, packet.QoS2), time.Now())
	require.NoError(t, err)
	require.Equal(t, StateReceived, e.State)

	_, err = f.Resolve(9, packet.PUBACK)
	require.ErrorIs(t, err, ErrUnexpectedAck)

	e, err = f.Resolve(9, packet.PUBREL)
	require.NoError(t, err)
	require.Equal(t, StateCompleted, e.State)

	_, err = f.Resolve(9, packet.PUBREL)
	require.ErrorIs(t, err, ErrUnknownPacketID)
}

func TestInflightOrderAndDue(t *testing.T) {
	f := NewInflight(Outbound)
	start := time.Now()

	for i, id := range []packet.IDType{7, 3, 9} {
		_, err := f.Track(id, packet.NewPublish("a", nil, packet.QoS1), start.Add(time.Duration(i)*time.Second))
		require.NoError(t, err)
	}

	var ids []packet.IDType
	for _, e := range f.Entries() {
		ids = append(ids, e.ID)
	}
	require.Equal(t, []packet.IDType{7, 3, 9}, ids)

	due := f.Due(start.Add(11*time.Second), 10*time.Second)
	require.Len(t, due, 2)
	require.Equal(t, packet.IDType(7), due[0].ID)
	require.Equal(t, packet.IDType(3), due[1].ID)

	attempts, err := f.Touch(7, start.Add(11*time.Second))
	require.NoError(t, err)
	require.Equal(t, 2, attempts)

	due = f.Due(start.Add(11*time.Second), 10*time.Second)
	require.Len(t, due, 1)

	f.Reset()
	require.Equal(t, 0, f.Len())
}

func TestInflightAcquireSkipsUsed(t *testing.T) {
	f := NewInflight(Outbound)
	now := time.Now()

	_, err := f.Track(1, packet.NewPublish("a", nil, packet.QoS1), now)
	require.NoError(t, err)
	_, err = f.Track(2, packet.NewPublish("a", nil, packet.QoS1), now)
	require.NoError(t, err)

	id, err := f.Acquire()
	require.NoError(t, err)
	require.Equal(t, packet.IDType(3), id)

	// counter wraps around skipping zero
	f.counter = 0xFFFF
	id, err = f.Acquire()
	require.NoError(t, err)
	require.Equal(t, packet.IDType(3), id)

	for i := 3; i <= 0xFFFF; i++ {
		f.entries.Set(packet.IDType(i), &Entry{ID: packet.IDType(i)})
	}

	_, err = f.Acquire()
	require.ErrorIs(t, err, ErrNoFreeID)
}
