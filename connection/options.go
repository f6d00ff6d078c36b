package connection

import (
	"time"

	"github.com/pkg/errors"
)

// Option configures connection
type Option func(*Type) error

// SetOptions apply options to connection
func (s *Type) SetOptions(opts ...Option) error {
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return err
		}
	}

	return nil
}

// KeepAlive server keep alive period in units.
// Applied to clients connecting with zero keep alive only if ForceKeepAlive set
func KeepAlive(val uint16) Option {
	return func(t *Type) error {
		t.keepAlive = val
		return nil
	}
}

// ForceKeepAlive replace zero keep alive requested by client with server value
func ForceKeepAlive(val bool) Option {
	return func(t *Type) error {
		t.forceKeepAlive = val
		return nil
	}
}

// KeepAliveUnit duration of single keep alive unit. Defaults to second
func KeepAliveUnit(val time.Duration) Option {
	return func(t *Type) error {
		if val <= 0 {
			return errors.New("connection: keep alive unit must be positive")
		}

		t.unit = val
		return nil
	}
}

// ConnectTimeout time allowed to receive CONNECT after connection established
func ConnectTimeout(val time.Duration) Option {
	return func(t *Type) error {
		if val <= 0 {
			return errors.New("connection: connect timeout must be positive")
		}

		t.connectTimeout = val
		return nil
	}
}
