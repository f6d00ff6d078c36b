package persistenceTypes

import (
	"context"
	"time"

	"github.com/VolantMQ/mqcore/packet"
)

// Errors persistence errors
type Errors int

// nolint: golint
const (
	// ErrInvalidArgs invalid arguments provided
	ErrInvalidArgs Errors = iota
	// ErrUnknownProvider if provider is unknown
	ErrUnknownProvider
	// ErrNotFound object not found
	ErrNotFound
	// ErrNotOpen storage is not open
	ErrNotOpen
)

var errorsDesc = map[Errors]string{
	ErrInvalidArgs:     "persistence: invalid arguments",
	ErrUnknownProvider: "persistence: unknown provider",
	ErrNotFound:        "persistence: not found",
	ErrNotOpen:         "persistence: not open",
}

// Errors description during persistence
func (e Errors) Error() string {
	if s, ok := errorsDesc[e]; ok {
		return s
	}

	return "unknown error"
}

// Message persisted application message
type Message struct {
	Topic    string `bson:"topic" json:"topic"`
	Payload  []byte `bson:"payload,omitempty" json:"payload,omitempty"`
	QoS      byte   `bson:"qos" json:"qos"`
	Retain   bool   `bson:"retain,omitempty" json:"retain,omitempty"`
	Dup      bool   `bson:"dup,omitempty" json:"dup,omitempty"`
	PacketID uint16 `bson:"packetId,omitempty" json:"packetId,omitempty"`
}

// InflightEntry persisted state of unfinished QoS1/QoS2 exchange
type InflightEntry struct {
	PacketID uint16  `bson:"packetId" json:"packetId"`
	State    byte    `bson:"state" json:"state"`
	Attempts int     `bson:"attempts" json:"attempts"`
	Message  Message `bson:"message" json:"message"`
}

// Will persisted last will
type Will struct {
	Topic   string `bson:"topic" json:"topic"`
	Payload []byte `bson:"payload,omitempty" json:"payload,omitempty"`
	QoS     byte   `bson:"qos" json:"qos"`
	Retain  bool   `bson:"retain,omitempty" json:"retain,omitempty"`
	Delay   uint32 `bson:"delay,omitempty" json:"delay,omitempty"`
}

// SessionState persisted session state
type SessionState struct {
	ClientID string `bson:"_id" json:"clientId"`
	Version  byte   `bson:"version" json:"version"`
	// ExpireAt nil means session never expires
	ExpireAt      *time.Time      `bson:"expireAt,omitempty" json:"expireAt,omitempty"`
	Subscriptions map[string]byte `bson:"subscriptions,omitempty" json:"subscriptions,omitempty"`
	Queue         []Message       `bson:"queue,omitempty" json:"queue,omitempty"`
	Outbound      []InflightEntry `bson:"outbound,omitempty" json:"outbound,omitempty"`
	Inbound       []InflightEntry `bson:"inbound,omitempty" json:"inbound,omitempty"`
	Will          *Will           `bson:"will,omitempty" json:"will,omitempty"`
	Timestamp     time.Time       `bson:"timestamp" json:"timestamp"`
}

// Expired reports whether session expiry passed at given moment
func (s *SessionState) Expired(now time.Time) bool {
	return s.ExpireAt != nil && !now.Before(*s.ExpireAt)
}

// Retained provider for load/store retained messages
type Retained interface {
	// Store replace persisted retained messages
	Store([]Message) error
	// Load load retained messages
	Load() ([]Message, error)
	// Wipe retained storage
	Wipe() error
}

// Sessions interface allows operating with sessions inside backend
type Sessions interface {
	Load(func(*SessionState) error) error
	Get(id string) (*SessionState, error)
	Store(*SessionState) error
	Delete(id string) error
	Wipe() error
}

// Provider interface implemented by different backends
type Provider interface {
	Sessions() (Sessions, error)
	Retained() (Retained, error)
	Ping(context.Context) error
	Shutdown() error
}

// ProviderConfig interface implemented by every backend
type ProviderConfig interface{}

// MemConfig configuration of the in memory backend
type MemConfig struct{}

// MongoConfig configuration of the MongoDB backend
type MongoConfig struct {
	URI      string
	Database string
	Timeout  time.Duration
}

// FromPublish converts message into persisted form
func FromPublish(p *packet.Publish) Message {
	return Message{
		Topic:    p.Topic,
		Payload:  p.Payload,
		QoS:      byte(p.QoS),
		Retain:   p.Retain,
		Dup:      p.Dup,
		PacketID: uint16(p.PacketID),
	}
}

// Publish converts persisted message back
func (m *Message) Publish() *packet.Publish {
	return &packet.Publish{
		Topic:    m.Topic,
		Payload:  m.Payload,
		QoS:      packet.QosType(m.QoS),
		Retain:   m.Retain,
		Dup:      m.Dup,
		PacketID: packet.IDType(m.PacketID),
	}
}

// FromWill converts will into persisted form
func FromWill(w *packet.Will) *Will {
	if w == nil {
		return nil
	}

	return &Will{
		Topic:   w.Topic,
		Payload: w.Payload,
		QoS:     byte(w.QoS),
		Retain:  w.Retain,
		Delay:   w.Delay,
	}
}

// Will converts persisted will back
func (w *Will) Will() *packet.Will {
	if w == nil {
		return nil
	}

	return &packet.Will{
		Topic:   w.Topic,
		Payload: w.Payload,
		QoS:     packet.QosType(w.QoS),
		Retain:  w.Retain,
		Delay:   w.Delay,
	}
}
