package auth

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/VolantMQ/mqcore/configuration"
)

// Manager chains providers. First provider allowing request wins
type Manager struct {
	p         []Provider
	anonymous bool
}

var providers = struct {
	sync.RWMutex
	list map[string]Provider
}{
	list: make(map[string]Provider),
}

// Register auth provider
func Register(name string, provider Provider) error {
	if name == "" || provider == nil {
		return ErrInvalidArgs
	}

	providers.Lock()
	defer providers.Unlock()

	if _, dup := providers.list[name]; dup {
		return ErrAlreadyExists
	}

	providers.list[name] = provider

	return nil
}

// UnRegister authenticator
func UnRegister(name string) {
	providers.Lock()
	delete(providers.list, name)
	providers.Unlock()
}

// NewManager new auth manager from registered provider names
func NewManager(p []string, anonymous bool) (*Manager, error) {
	m := Manager{
		anonymous: anonymous,
	}

	providers.RLock()
	defer providers.RUnlock()

	for _, pa := range p {
		pvd, ok := providers.list[pa]
		if !ok {
			return nil, errors.Wrapf(ErrUnknownProvider, "%q", pa)
		}

		m.p = append(m.p, pvd)
	}

	return &m, nil
}

// NewManagerWith builds manager from provider instances
func NewManagerWith(anonymous bool, p ...Provider) *Manager {
	return &Manager{
		p:         p,
		anonymous: anonymous,
	}
}

// Password authentication. Connect without username allowed only if anonymous access enabled
func (m *Manager) Password(clientID, user string, password []byte) Status {
	if user == "" && len(password) == 0 {
		if m.anonymous {
			return StatusAllow
		}

		return StatusDeny
	}

	for _, p := range m.p {
		if status := p.Password(clientID, user, password); status == StatusAllow {
			return status
		}
	}

	return StatusDeny
}

// ACL check permissions
func (m *Manager) ACL(clientID, user, topic string, access AccessType) Status {
	for _, p := range m.p {
		if status := p.ACL(clientID, user, topic, access); status == StatusAllow {
			return status
		}
	}

	return StatusDeny
}

// FromConfig builds manager described by auth section of configuration
func FromConfig(c *configuration.AuthConfig) (*Manager, error) {
	switch c.Backend {
	case "", "allowAll":
		return NewManagerWith(c.Anonymous, AllowAll{}), nil
	case "static":
		st, err := NewStatic(c.Users)
		if err != nil {
			return nil, err
		}

		return NewManagerWith(c.Anonymous, st), nil
	default:
		return nil, errors.Wrapf(ErrUnknownProvider, "%q", c.Backend)
	}
}
