package topics

import (
	"math/rand"
	"strings"
	"testing"

	"github.com/VolantMQ/mqcore/packet"
	topicsTypes "github.com/VolantMQ/mqcore/topics/types"
	"github.com/stretchr/testify/require"
)

type testSubscriber struct {
	id   uintptr
	msgs []*packet.Publish
}

func (s *testSubscriber) Publish(m *packet.Publish) error {
	s.msgs = append(s.msgs, m)
	return nil
}

func (s *testSubscriber) Hash() uintptr {
	return s.id
}

func TestTopicsUnknownProvider(t *testing.T) {
	_, err := New(nil)
	require.EqualError(t, err, topicsTypes.ErrInvalidArgs.Error())

	_, err = New(topicsTypes.MemConfig{Name: "mem"})
	require.EqualError(t, err, topicsTypes.ErrUnknownProvider.Error())
}

func TestTopicsOpenCloseProvider(t *testing.T) {
	prov, err := New(topicsTypes.NewMemConfig())
	require.NoError(t, err)
	require.NoError(t, prov.Close())
}

func TestMatchTable(t *testing.T) {
	cases := []struct {
		topic  string
		filter string
		match  bool
	}{
		{"sport/tennis/player1", "sport/tennis/player1", true},
		{"sport/tennis/player1", "sport/tennis/player2", false},
		{"sport/tennis/player1", "sport/tennis/player1/#", true},
		{"sport/tennis/player1/ranking", "sport/tennis/player1/#", true},
		{"sport/tennis/player1/score/wimbledon", "sport/tennis/player1/#", true},
		{"sport", "sport/#", true},
		{"sport/tennis", "sport/+", true},
		{"sport/tennis/player1", "sport/+", false},
		{"sport", "sport/+", false},
		{"sport/", "sport/+", true},
		{"/finance", "+/+", true},
		{"/finance", "/+", true},
		{"/finance", "+", false},
		{"a/b/c", "#", true},
		{"a", "+/#", true},
		{"a/b/c", "a/+/c", true},
		{"a/b/d", "a/+/c", false},
		{"Sport", "sport", false},
		{"$SYS/broker/uptime", "#", false},
		{"$SYS/broker/uptime", "+/broker/uptime", false},
		{"$SYS/broker/uptime", "$SYS/#", true},
		{"$SYS/broker/uptime", "$SYS/+/uptime", true},
		{"home/livingroom/temperature", "home/+/temperature", true},
		{"home/kitchen/humidity", "home/+/temperature", false},
		{"a//b", "a/+/b", true},
		{"a//b", "a/b", false},
	}

	for _, c := range cases {
		require.Equal(t, c.match, Match(c.topic, c.filter), "topic %q filter %q", c.topic, c.filter)
	}
}

func TestEmptyLevels(t *testing.T) {
	for _, topic := range []string{"/a", "a//b", "a/", "//"} {
		require.NoError(t, ValidateTopic(topic), topic)
		require.NoError(t, ValidateFilter(topic), topic)
		require.True(t, Match(topic, topic), topic)
	}

	// empty level matches only empty level
	require.False(t, Match("/a", "a"))
	require.False(t, Match("a", "/a"))
	require.False(t, Match("a/b", "a//b"))
	require.False(t, Match("a/", "a"))
	require.True(t, Match("a/", "a/#"))
}

func TestValidate(t *testing.T) {
	require.NoError(t, ValidateTopic("a/b"))
	require.NoError(t, ValidateTopic("/"))
	require.ErrorIs(t, ValidateTopic(""), topicsTypes.ErrEmptyTopic)
	require.ErrorIs(t, ValidateTopic("a/+"), topicsTypes.ErrWildcardInTopic)
	require.ErrorIs(t, ValidateTopic("a/#"), topicsTypes.ErrWildcardInTopic)
	require.ErrorIs(t, ValidateTopic("a\x00b"), topicsTypes.ErrNullCharacter)

	require.NoError(t, ValidateFilter("#"))
	require.NoError(t, ValidateFilter("+/+/#"))
	require.NoError(t, ValidateFilter("a//b"))
	require.ErrorIs(t, ValidateFilter(""), topicsTypes.ErrEmptyTopic)
	require.ErrorIs(t, ValidateFilter("a/#/b"), topicsTypes.ErrMultiLevel)
	require.ErrorIs(t, ValidateFilter("a/b#"), topicsTypes.ErrInvalidWildcardSharp)
	require.ErrorIs(t, ValidateFilter("a/b+/c"), topicsTypes.ErrInvalidWildcardPlus)

	// anything accepted by validation must match the syntax regexp
	for _, f := range []string{"#", "+", "a/+/b/#", "/+", "a//#"} {
		require.NoError(t, ValidateFilter(f))
		require.True(t, topicsTypes.TopicRegexp.MatchString(f), f)
	}
}

// referenceMatch recursive matcher used to cross-check Match
func referenceMatch(topic, filter []string) bool {
	if len(filter) == 0 {
		return len(topic) == 0
	}

	switch filter[0] {
	case "#":
		return true
	case "+":
		if len(topic) == 0 {
			return false
		}
		return referenceMatch(topic[1:], filter[1:])
	default:
		if len(topic) == 0 || topic[0] != filter[0] {
			return false
		}
		return referenceMatch(topic[1:], filter[1:])
	}
}

func reference(topic, filter string) bool {
	if strings.HasPrefix(topic, "$") && (filter[0] == '+' || filter[0] == '#') {
		return false
	}

	return referenceMatch(strings.Split(topic, "/"), strings.Split(filter, "/"))
}

func TestMatchProperty(t *testing.T) {
	rnd := rand.New(rand.NewSource(42))
	alphabet := []string{"a", "b", "$c", ""}

	genTopic := func() string {
		n := 1 + rnd.Intn(4)
		levels := make([]string, n)
		for i := range levels {
			levels[i] = alphabet[rnd.Intn(len(alphabet))]
		}

		// '$' only meaningful at first level
		for i := 1; i < n; i++ {
			levels[i] = strings.TrimPrefix(levels[i], "$")
		}

		if s := strings.Join(levels, "/"); s != "" {
			return s
		}

		return "a"
	}

	genFilter := func() string {
		n := 1 + rnd.Intn(4)
		levels := make([]string, n)
		for i := range levels {
			switch rnd.Intn(4) {
			case 0:
				levels[i] = "+"
			default:
				levels[i] = alphabet[rnd.Intn(len(alphabet))]
			}
		}

		if rnd.Intn(3) == 0 {
			levels[n-1] = "#"
		}

		if f := strings.Join(levels, "/"); f != "" {
			return f
		}

		return "+"
	}

	for i := 0; i < 20000; i++ {
		topic := genTopic()
		filter := genFilter()

		require.NoError(t, ValidateFilter(filter))

		require.Equal(t, reference(topic, filter), Match(topic, filter), "topic %q filter %q", topic, filter)
	}
}

func TestMatchAgainstTrie(t *testing.T) {
	rnd := rand.New(rand.NewSource(7))

	prov, err := New(topicsTypes.NewMemConfig())
	require.NoError(t, err)

	filters := []string{"#", "a/#", "a/+", "+/b", "a/b", "$c/#", "+/+/+", "a//b", "/#", "+"}
	var subs []topicsTypes.Subscription

	for i, f := range filters {
		s := &testSubscriber{id: uintptr(i + 1)}
		_, err = prov.Subscribe(f, s, packet.QoS1)
		require.NoError(t, err)
		subs = append(subs, topicsTypes.Subscription{Filter: f, QoS: packet.QoS1, Subscriber: s})
	}

	for i := 0; i < 2000; i++ {
		levels := make([]string, 1+rnd.Intn(3))
		for j := range levels {
			levels[j] = []string{"a", "b", ""}[rnd.Intn(3)]
		}
		if rnd.Intn(5) == 0 {
			levels[0] = "$c"
		}

		topic := strings.Join(levels, "/")

		expected := map[uintptr]bool{}
		for _, s := range MatchAll(topic, subs) {
			expected[s.Subscriber.Hash()] = true
		}

		actual := map[uintptr]bool{}
		for _, s := range prov.Subscribers(topic) {
			actual[s.Subscriber.Hash()] = true
		}

		require.Equal(t, expected, actual, "topic %q", topic)
	}
}
