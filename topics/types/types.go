package topicsTypes

import (
	"errors"
	"regexp"
	"strings"

	"github.com/VolantMQ/mqcore/packet"
)

const (
	// MWC is the multi-level wildcard
	MWC = "#"

	// SWC is the single level wildcard
	SWC = "+"

	// SEP is the topic level separator
	SEP = "/"

	// SYS is the starting character of the system level topics
	SYS = "$"
)

// TopicRegexp describes syntactically valid topic filter
var TopicRegexp = regexp.MustCompile(`^(([^+#]*|\+)(/([^+#]*|\+))*(/#)?|#)$`)

var (
	// ErrInvalidArgs invalid arguments provided
	ErrInvalidArgs = errors.New("topics: invalid arguments")

	// ErrUnknownProvider if provider is unknown
	ErrUnknownProvider = errors.New("topics: unknown provider")

	// ErrNotFound object not found
	ErrNotFound = errors.New("topics: not found")

	// ErrEmptyTopic topic or filter is empty string
	ErrEmptyTopic = errors.New("topics: empty topic")

	// ErrNullCharacter U+0000 is not allowed in topic names and filters
	ErrNullCharacter = errors.New("topics: null character")

	// ErrWildcardInTopic topic name used for publish contains wildcard
	ErrWildcardInTopic = errors.New("topics: wildcard characters not allowed in topic name")

	// ErrMultiLevel multi-level wildcard
	ErrMultiLevel = errors.New("topics: multi-level wildcard found in filter and it's not at the last level")

	// ErrInvalidSubscriber invalid subscriber object
	ErrInvalidSubscriber = errors.New("topics: subscriber cannot be nil")

	// ErrInvalidQoS requested QoS is out of range
	ErrInvalidQoS = errors.New("topics: invalid QoS")

	// ErrInvalidWildcardPlus Wildcard character '+' must occupy entire topic level
	ErrInvalidWildcardPlus = errors.New("topics: wildcard character '+' must occupy entire topic level")

	// ErrInvalidWildcardSharp Wildcard character '#' must occupy entire topic level
	ErrInvalidWildcardSharp = errors.New("topics: wildcard character '#' must occupy entire topic level")
)

// Subscriber used inside each session as an object to provide to topic manager upon subscribe
type Subscriber interface {
	// Publish enqueue message for delivery. Must not block
	Publish(*packet.Publish) error
	Hash() uintptr
}

// Subscription binds subscriber to filter with granted QoS
type Subscription struct {
	Filter     string
	QoS        packet.QosType
	Subscriber Subscriber
}

// Provider interface
type Provider interface {
	Subscribe(filter string, s Subscriber, qos packet.QosType) (packet.QosType, error)
	UnSubscribe(filter string, s Subscriber) error
	// Subscribers resolve all subscribers matching topic name.
	// Each subscriber appears once with maximum QoS across its matching filters
	Subscribers(topic string) []Subscription
	Close() error
}

// ValidateTopic checks topic name suitable for publishing
func ValidateTopic(topic string) error {
	if len(topic) == 0 {
		return ErrEmptyTopic
	}

	if strings.IndexByte(topic, 0) >= 0 {
		return ErrNullCharacter
	}

	if strings.ContainsAny(topic, MWC+SWC) {
		return ErrWildcardInTopic
	}

	return nil
}

// ValidateFilter checks subscription filter
func ValidateFilter(filter string) error {
	if len(filter) == 0 {
		return ErrEmptyTopic
	}

	if strings.IndexByte(filter, 0) >= 0 {
		return ErrNullCharacter
	}

	levels := strings.Split(filter, SEP)
	for i, level := range levels {
		if strings.Contains(level, MWC) {
			if level != MWC {
				return ErrInvalidWildcardSharp
			}

			if i != len(levels)-1 {
				return ErrMultiLevel
			}
		}

		if strings.Contains(level, SWC) && level != SWC {
			return ErrInvalidWildcardPlus
		}
	}

	return nil
}
