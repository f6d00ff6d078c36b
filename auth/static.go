package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"

	"github.com/VolantMQ/mqcore/configuration"
	"github.com/VolantMQ/mqcore/topics"
)

type creds struct {
	hash      []byte
	publish   []string
	subscribe []string
}

// Static users loaded from config. Passwords are stored sha-256 hashed,
// access is granted by list of topic filters per direction
type Static struct {
	creds map[string]creds
}

var _ Provider = (*Static)(nil)

// NewStatic loads users from config
func NewStatic(users map[string]configuration.UserConfig) (*Static, error) {
	s := &Static{
		creds: make(map[string]creds),
	}

	for u, c := range users {
		hash, err := hex.DecodeString(c.Password)
		if err != nil || len(hash) != sha256.Size {
			return nil, ErrInvalidArgs
		}

		for _, f := range append(append([]string{}, c.Publish...), c.Subscribe...) {
			if err = topics.ValidateFilter(f); err != nil {
				return nil, err
			}
		}

		s.creds[u] = creds{
			hash:      hash,
			publish:   c.Publish,
			subscribe: c.Subscribe,
		}
	}

	return s, nil
}

// Password check sha-256 of password against stored hash
func (a *Static) Password(_, user string, password []byte) Status {
	if cred, ok := a.creds[user]; ok {
		sum := sha256.Sum256(password)
		if subtle.ConstantTimeCompare(sum[:], cred.hash) == 1 {
			return StatusAllow
		}
	}

	return StatusDeny
}

// ACL write access is checked against publish filters with topic name,
// read access requires requested filter to be covered by one of subscribe filters
func (a *Static) ACL(_, user, topic string, access AccessType) Status {
	cred, ok := a.creds[user]
	if !ok {
		return StatusDeny
	}

	switch access {
	case AccessTypeWrite:
		for _, f := range cred.publish {
			if topics.Match(topic, f) {
				return StatusAllow
			}
		}
	case AccessTypeRead:
		for _, f := range cred.subscribe {
			if covers(f, topic) {
				return StatusAllow
			}
		}
	}

	return StatusDeny
}

// covers reports whether every topic matched by requested filter is matched by allowed one
func covers(allowed, requested string) bool {
	al := strings.Split(allowed, "/")
	rl := strings.Split(requested, "/")

	for i, a := range al {
		if a == "#" {
			return !(i == 0 && strings.HasPrefix(requested, "$"))
		}

		if i >= len(rl) {
			return false
		}

		r := rl[i]
		switch {
		case a == "+":
			if r == "#" {
				return false
			}
			if i == 0 && strings.HasPrefix(r, "$") {
				return false
			}
		case a != r:
			return false
		}
	}

	return len(al) == len(rl)
}
