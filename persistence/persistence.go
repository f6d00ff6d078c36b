// Package persistence provides storage backends for sessions and retained messages
package persistence

import (
	"time"

	"github.com/VolantMQ/mqcore/configuration"
	"github.com/VolantMQ/mqcore/persistence/mem"
	"github.com/VolantMQ/mqcore/persistence/mongo"
	"github.com/VolantMQ/mqcore/persistence/types"
)

// New persistence provider
func New(config persistenceTypes.ProviderConfig) (persistenceTypes.Provider, error) {
	if config == nil {
		return nil, persistenceTypes.ErrInvalidArgs
	}

	switch cfg := config.(type) {
	case *persistenceTypes.MemConfig:
		return mem.New(cfg)
	case *persistenceTypes.MongoConfig:
		return mongo.New(cfg)
	default:
		return nil, persistenceTypes.ErrUnknownProvider
	}
}

// FromConfig selects backend described by persistence section of configuration
func FromConfig(c *configuration.PersistenceConfig) (persistenceTypes.Provider, error) {
	switch c.Backend {
	case "", "mem":
		return New(&persistenceTypes.MemConfig{})
	case "mongo":
		return New(&persistenceTypes.MongoConfig{
			URI:      c.Mongo.URI,
			Database: c.Mongo.Database,
			Timeout:  time.Duration(c.Mongo.Timeout) * time.Second,
		})
	default:
		return nil, persistenceTypes.ErrUnknownProvider
	}
}
