package systree

import (
	"github.com/VolantMQ/mqcore/packet"
	"github.com/VolantMQ/mqcore/types"
)

// SubscriptionsStatNop does not count anything
type SubscriptionsStatNop struct{}

// Subscribed no-op
func (SubscriptionsStatNop) Subscribed() {}

// UnSubscribed no-op
func (SubscriptionsStatNop) UnSubscribed() {}

type nopTree struct{}
type nopMetric struct{}
type nopPackets struct{}
type nopBytes struct{}
type nopClients struct{}
type nopSessions struct{}

// NewNop systree used when systree disabled in config
func NewNop() Provider {
	return nopTree{}
}

func (nopTree) SetCallbacks(types.TopicMessenger) {}
func (nopTree) Metric() Metric { return nopMetric{} }
func (nopTree) Subscriptions() SubscriptionsStat { return SubscriptionsStatNop{} }
func (nopTree) Clients() Clients { return nopClients{} }
func (nopTree) Sessions() Sessions { return nopSessions{} }
func (nopMetric) Bytes() BytesMetric { return nopBytes{} }
func (nopMetric) Packets() PacketsMetric { return nopPackets{} }
func (nopPackets) Sent(packet.Type) {}
func (nopPackets) Received(packet.Type) {}
func (nopBytes) Sent(uint64) {}
func (nopBytes) Received(uint64) {}
func (nopClients) Connected(string, *ClientConnectStatus) {}
func (nopClients) Disconnected(string, string) {}
func (nopSessions) Created(string, *SessionCreatedStatus) {}
func (nopSessions) Removed(string, *SessionDeletedStatus) {}
