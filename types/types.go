package types

import (
	"errors"

	"github.com/VolantMQ/mqcore/packet"
)

// TopicMessenger interface for session or systree used to publish or retain messages
type TopicMessenger interface {
	// Publish route message to subscribers. Message with retain flag updates retained table
	Publish(*packet.Publish) error
}

var (
	// ErrProtocolViolation peer violated protocol, connection must be closed ungracefully
	ErrProtocolViolation = errors.New("protocol violation")

	// ErrNotAuthorized operation denied by auth provider
	ErrNotAuthorized = errors.New("not authorized")

	// ErrResourceExhausted limits of queue, sessions or connections reached
	ErrResourceExhausted = errors.New("resource exhausted")

	// ErrStalled peer did not acknowledge message within retry budget
	ErrStalled = errors.New("delivery stalled")

	// ErrClosed object was stopped
	ErrClosed = errors.New("closed")
)

// DuplicateConfig defines behaviour of server on new client with existing ID
type DuplicateConfig struct {
	// Replace Either allow or deny replacing of existing session if there new client
	// with same clientID
	Replace bool

	// OnAttempt If requested we notify if there is attempt to dup session
	OnAttempt func(id string, replaced bool)
}
