package configuration

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// DefaultConfig Load minimum working configuration to allow
// server start without user provided one
func DefaultConfig() *Config {
	c := Config{}
	if err := yaml.Unmarshal(defaultConfig, &c); err != nil {
		panic(err.Error())
	}

	return &c
}

// ReadConfig read service configuration. User config is merged on top of default one.
// Empty file name results in default config
func ReadConfig(file string) (*Config, error) {
	log := GetLogger()

	c := DefaultConfig()

	if len(file) == 0 {
		log.Info("no config file provided. use --config option or " + EnvConfigFile + " environment variable to provide own")
		return c, nil
	}

	log.Infow("loading config", "file", file)

	data, err := os.ReadFile(file)
	if err != nil {
		return nil, errors.Wrap(err, "config read")
	}

	if err = yaml.Unmarshal(data, c); err != nil {
		return nil, errors.Wrap(err, "config parse")
	}

	if err = c.Validate(); err != nil {
		return nil, err
	}

	return c, nil
}

// Validate checks values which cannot be expressed by yaml types
func (c *Config) Validate() error {
	if _, err := c.Mqtt.Sessions.Expiry(); err != nil {
		return err
	}

	if c.Mqtt.Options.MaxQoS > 2 {
		return errors.Errorf("config: invalid maxQoS %d", c.Mqtt.Options.MaxQoS)
	}

	switch c.Persistence.Backend {
	case "", "mem", "mongo":
	default:
		return errors.Errorf("config: unknown persistence backend %q", c.Persistence.Backend)
	}

	switch c.Auth.Backend {
	case "", "allowAll", "static":
	default:
		return errors.Errorf("config: unknown auth backend %q", c.Auth.Backend)
	}

	return nil
}
