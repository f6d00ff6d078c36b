package configuration

import (
	"crypto/tls"
	"os"
	"time"

	"github.com/pkg/errors"
)

// TimestampConfig entry in system.log.console.timestamp
type TimestampConfig struct {
	Format string `yaml:"format,omitempty"`
}

// ConsoleLogConfig entry in system.log.console
type ConsoleLogConfig struct {
	Level     string           `yaml:"level,omitempty"`
	Timestamp *TimestampConfig `yaml:"timestamp,omitempty"`
}

// LogConfig entry in system.log
type LogConfig struct {
	Console ConsoleLogConfig `yaml:"console,omitempty"`
}

// SystemConfig entry in system
type SystemConfig struct {
	Log LogConfig `yaml:"log,omitempty"`
}

// TLSConfig used by ssl/wss listeners
type TLSConfig struct {
	Cert string `yaml:"cert,omitempty"`
	Key  string `yaml:"key,omitempty"`
}

// PortConfig configuration of tcp/ssl/ws(s) listeners
type PortConfig struct {
	Host string    `yaml:"host,omitempty"`
	TLS  TLSConfig `yaml:"tls,omitempty"`
	Path string    `yaml:"path,omitempty"`
}

// SessionsConfig entry in mqtt.sessions
type SessionsConfig struct {
	// DefaultExpiry is either "never" or duration parsable by time.ParseDuration
	DefaultExpiry string `yaml:"defaultExpiry,omitempty"`
	MaxQueued     int    `yaml:"maxQueued,omitempty"`
}

// DeliveryConfig entry in mqtt.delivery
type DeliveryConfig struct {
	MaxInflight int `yaml:"maxInflight,omitempty"`
	// RetryTimeout in seconds. 0 disables retransmission
	RetryTimeout int `yaml:"retryTimeout"`
	MaxRetries   int `yaml:"maxRetries,omitempty"`
}

// MqttConfig server config
type MqttConfig struct {
	Systree struct {
		Enabled        bool `yaml:"enabled"`
		UpdateInterval int  `yaml:"updateInterval,omitempty"`
	} `yaml:"systree,omitempty"`
	KeepAlive struct {
		Period int  `yaml:"period,omitempty"`
		Force  bool `yaml:"force,omitempty"`
	} `yaml:"keepAlive,omitempty"`
	Options struct {
		ConnectTimeout int  `yaml:"connectTimeout,omitempty"`
		OfflineQoS0    bool `yaml:"offlineQoS0"`
		AllowReplace   bool `yaml:"allowReplace"`
		MaxQoS         byte `yaml:"maxQoS"`
		MaxSessions    int  `yaml:"maxSessions,omitempty"`
	} `yaml:"options,omitempty"`
	Sessions SessionsConfig `yaml:"sessions,omitempty"`
	Delivery DeliveryConfig `yaml:"delivery,omitempty"`
}

// ListenersConfig entry in listeners
// MQTT is map of listener type (tcp, ssl, ws, wss) to map of port to config
type ListenersConfig struct {
	DefaultAddr string                           `yaml:"defaultAddr,omitempty"`
	AcceptRate  float64                          `yaml:"acceptRate,omitempty"`
	AcceptBurst int                              `yaml:"acceptBurst,omitempty"`
	MQTT        map[string]map[string]PortConfig `yaml:"mqtt,omitempty"`
}

// UserConfig entry in auth.users
type UserConfig struct {
	// Password sha-256 hex encoded
	Password  string   `yaml:"password"`
	Publish   []string `yaml:"publish,omitempty"`
	Subscribe []string `yaml:"subscribe,omitempty"`
}

// AuthConfig entry in auth
type AuthConfig struct {
	Backend   string                `yaml:"backend,omitempty"`
	Anonymous bool                  `yaml:"anonymous"`
	Users     map[string]UserConfig `yaml:"users,omitempty"`
}

// MongoConfig entry in persistence.mongo
type MongoConfig struct {
	URI      string `yaml:"uri,omitempty"`
	Database string `yaml:"database,omitempty"`
	// Timeout in seconds
	Timeout int `yaml:"timeout,omitempty"`
}

// PersistenceConfig entry in persistence
type PersistenceConfig struct {
	Backend string      `yaml:"backend,omitempty"`
	Mongo   MongoConfig `yaml:"mongo,omitempty"`
}

// HealthConfig entry in health
type HealthConfig struct {
	Address string `yaml:"address,omitempty"`
}

// Config system-wide config
type Config struct {
	Version     string            `yaml:"version,omitempty"`
	System      SystemConfig      `yaml:"system,omitempty"`
	Mqtt        MqttConfig        `yaml:"mqtt,omitempty"`
	Listeners   ListenersConfig   `yaml:"listeners,omitempty"`
	Auth        AuthConfig        `yaml:"auth,omitempty"`
	Persistence PersistenceConfig `yaml:"persistence,omitempty"`
	Health      HealthConfig      `yaml:"health,omitempty"`
}

// Expiry parse default session expiry. nil means session never expires
func (s *SessionsConfig) Expiry() (*time.Duration, error) {
	if s.DefaultExpiry == "" || s.DefaultExpiry == "never" {
		return nil, nil
	}

	d, err := time.ParseDuration(s.DefaultExpiry)
	if err != nil {
		return nil, errors.Wrap(err, "config: mqtt.sessions.defaultExpiry")
	}

	if d < 0 {
		return nil, errors.New("config: mqtt.sessions.defaultExpiry must not be negative")
	}

	return &d, nil
}

// Validate loads key pair
func (t *TLSConfig) Validate() (tls.Certificate, error) {
	if len(t.Cert) == 0 {
		return tls.Certificate{}, errors.New("empty certificate name")
	}

	if len(t.Key) == 0 {
		return tls.Certificate{}, errors.New("empty key name")
	}

	certPEMBlock, err := os.ReadFile(t.Cert)
	if err != nil {
		return tls.Certificate{}, errors.Wrap(err, "tls: read certificate: "+t.Cert)
	}

	keyPEMBlock, err := os.ReadFile(t.Key)
	if err != nil {
		return tls.Certificate{}, errors.Wrap(err, "tls: read key: "+t.Key)
	}

	return tls.X509KeyPair(certPEMBlock, keyPEMBlock)
}

// LoadConfig tls config from key pair
func (t *TLSConfig) LoadConfig() (*tls.Config, error) {
	certs, err := t.Validate()
	if err != nil {
		return nil, err
	}

	c := &tls.Config{
		MinVersion: tls.VersionTLS12,
	}

	c.Certificates = append(c.Certificates, certs)

	return c, nil
}
