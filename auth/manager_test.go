package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/VolantMQ/mqcore/configuration"
	"github.com/stretchr/testify/require"
)

func hash(p string) string {
	sum := sha256.Sum256([]byte(p))
	return hex.EncodeToString(sum[:])
}

func newStatic(t *testing.T) *Static {
	s, err := NewStatic(map[string]configuration.UserConfig{
		"testuser": {
			Password:  hash("testpassword"),
			Publish:   []string{"home/+/temperature", "devices/#"},
			Subscribe: []string{"home/#"},
		},
	})
	require.NoError(t, err)
	return s
}

func TestStaticPassword(t *testing.T) {
	s := newStatic(t)

	require.Equal(t, StatusAllow, s.Password("id", "testuser", []byte("testpassword")))
	require.Equal(t, StatusDeny, s.Password("id", "testuser", []byte("wrong")))
	require.Equal(t, StatusDeny, s.Password("id", "unknown", []byte("testpassword")))
}

func TestStaticACL(t *testing.T) {
	s := newStatic(t)

	require.Equal(t, StatusAllow, s.ACL("id", "testuser", "home/kitchen/temperature", AccessTypeWrite))
	require.Equal(t, StatusAllow, s.ACL("id", "testuser", "devices/a/b", AccessTypeWrite))
	require.Equal(t, StatusDeny, s.ACL("id", "testuser", "home/kitchen/humidity", AccessTypeWrite))

	require.Equal(t, StatusAllow, s.ACL("id", "testuser", "home/+/temperature", AccessTypeRead))
	require.Equal(t, StatusAllow, s.ACL("id", "testuser", "home/#", AccessTypeRead))
	require.Equal(t, StatusDeny, s.ACL("id", "testuser", "#", AccessTypeRead))
	require.Equal(t, StatusDeny, s.ACL("id", "testuser", "office/a", AccessTypeRead))
	require.Equal(t, StatusDeny, s.ACL("id", "nobody", "home/a", AccessTypeRead))
}

func TestStaticInvalidConfig(t *testing.T) {
	_, err := NewStatic(map[string]configuration.UserConfig{"u": {Password: "plain"}})
	require.ErrorIs(t, err, ErrInvalidArgs)

	_, err = NewStatic(map[string]configuration.UserConfig{"u": {Password: hash("p"), Publish: []string{"a/#/b"}}})
	require.Error(t, err)
}

func TestCovers(t *testing.T) {
	require.True(t, covers("#", "a/b"))
	require.True(t, covers("a/+", "a/b"))
	require.True(t, covers("a/+", "a/+"))
	require.False(t, covers("a/+", "a/#"))
	require.False(t, covers("a/+", "a/b/c"))
	require.True(t, covers("a/#", "a"))
	require.False(t, covers("#", "$SYS/#"))
	require.False(t, covers("+/x", "$SYS/x"))
	require.True(t, covers("$SYS/#", "$SYS/broker/+"))
}

func TestManager(t *testing.T) {
	require.NoError(t, Register("static-test", newStatic(t)))
	defer UnRegister("static-test")

	require.ErrorIs(t, Register("static-test", AllowAll{}), ErrAlreadyExists)
	require.ErrorIs(t, Register("", nil), ErrInvalidArgs)

	_, err := NewManager([]string{"missing"}, false)
	require.ErrorIs(t, err, ErrUnknownProvider)

	m, err := NewManager([]string{"static-test"}, false)
	require.NoError(t, err)

	require.Equal(t, StatusAllow, m.Password("id", "testuser", []byte("testpassword")))
	require.Equal(t, StatusDeny, m.Password("id", "", nil))
	require.Equal(t, StatusDeny, m.ACL("id", "testuser", "office", AccessTypeWrite))

	anon := NewManagerWith(true, AllowAll{})
	require.Equal(t, StatusAllow, anon.Password("id", "", nil))
	require.Equal(t, StatusAllow, anon.ACL("id", "", "office", AccessTypeWrite))

	require.EqualError(t, StatusDeny, "auth status: access denied")
}

func TestFromConfig(t *testing.T) {
	m, err := FromConfig(&configuration.AuthConfig{Anonymous: true})
	require.NoError(t, err)
	require.Equal(t, StatusAllow, m.Password("id", "", nil))

	m, err = FromConfig(&configuration.AuthConfig{
		Backend: "static",
		Users: map[string]configuration.UserConfig{
			"testuser": {Password: hash("testpassword"), Subscribe: []string{"#"}},
		},
	})
	require.NoError(t, err)
	require.Equal(t, StatusDeny, m.Password("id", "", nil))
	require.Equal(t, StatusAllow, m.Password("id", "testuser", []byte("testpassword")))
	require.Equal(t, StatusAllow, m.ACL("id", "testuser", "a/b", AccessTypeRead))

	_, err = FromConfig(&configuration.AuthConfig{Backend: "ldap"})
	require.ErrorIs(t, err, ErrUnknownProvider)
}
