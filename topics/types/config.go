package topicsTypes

import (
	"github.com/VolantMQ/mqcore/packet"
	"github.com/VolantMQ/mqcore/systree"
)

// ProviderConfig interface implemented by every backend
type ProviderConfig interface{}

// MemConfig of topics manager
type MemConfig struct {
	Name   string
	MaxQoS packet.QosType
	Stat   systree.SubscriptionsStat
}

// NewMemConfig generate default config for memory
func NewMemConfig() *MemConfig {
	return &MemConfig{
		Name:   "mem",
		MaxQoS: packet.QoS2,
	}
}
