package systree

import (
	"github.com/VolantMQ/mqcore/packet"
	"github.com/VolantMQ/mqcore/types"
)

type impl struct {
	server        server
	metrics       metric
	subscriptions subscriptionsStat
	clients       clients
	sessions      sessions
}

// NewTree allocate systree provider.
// Returns static retained messages to be published once and dynamic values
// to be refreshed periodically
func NewTree(base, version string, caps *Capabilities) (Provider, []*packet.Publish, []DynamicValue, error) {
	var dynUpdates []DynamicValue
	var staticRetains []*packet.Publish

	tr := &impl{
		newServer(base, version, caps, &dynUpdates, &staticRetains),
		newMetric(base, &dynUpdates),
		newStatSubscription(base+"/stats", &dynUpdates),
		newClients(base, &dynUpdates),
		newSessions(base, &dynUpdates),
	}

	return tr, staticRetains, dynUpdates, nil
}

func (t *impl) SetCallbacks(cb types.TopicMessenger) {
	t.clients.topicsManager = cb
	t.sessions.topicsManager = cb
}

// Sessions get sessions stat provider
func (t *impl) Sessions() Sessions {
	return &t.sessions
}

// Clients get clients stat provider
func (t *impl) Clients() Clients {
	return &t.clients
}

// Metric get metric provider
func (t *impl) Metric() Metric {
	return &t.metrics
}

// Subscriptions get subscriptions stat provider
func (t *impl) Subscriptions() SubscriptionsStat {
	return &t.subscriptions
}
