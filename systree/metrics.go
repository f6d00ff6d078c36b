package systree

import (
	"strings"

	"github.com/VolantMQ/mqcore/packet"
)

type metricEntry struct {
	sent *dynamicValueInteger
	recv *dynamicValueInteger
}

type packetsMetric struct {
	total   *metricEntry
	byType  [packet.DISCONNECT + 1]*metricEntry
	unknown *metricEntry
}

type bytesMetric struct {
	metricEntry
}

type metric struct {
	packets *packetsMetric
	bytes   *bytesMetric
}

func newMetricEntry(topicPrefix string, retained *[]DynamicValue) *metricEntry {
	m := &metricEntry{
		sent: newDynamicValueInteger(topicPrefix + "/sent"),
		recv: newDynamicValueInteger(topicPrefix + "/received"),
	}

	*retained = append(*retained, m.sent, m.recv)
	return m
}

func newBytesMetric(topicPrefix string, retained *[]DynamicValue) *bytesMetric {
	return &bytesMetric{
		metricEntry: *newMetricEntry(topicPrefix+"/bytes", retained),
	}
}

func newMetric(topicPrefix string, retained *[]DynamicValue) metric {
	return metric{
		packets: newPacketsMetric(topicPrefix+"/metrics", retained),
		bytes:   newBytesMetric(topicPrefix+"/metrics", retained),
	}
}

func newPacketsMetric(topicPrefix string, retained *[]DynamicValue) *packetsMetric {
	m := &packetsMetric{
		total:   newMetricEntry(topicPrefix+"/packets/total", retained),
		unknown: &metricEntry{sent: newDynamicValueInteger(""), recv: newDynamicValueInteger("")},
	}

	for t := packet.CONNECT; t <= packet.DISCONNECT; t++ {
		m.byType[t] = newMetricEntry(topicPrefix+"/packets/"+strings.ToLower(t.Name()), retained)
	}

	return m
}

func (t *packetsMetric) entry(mt packet.Type) *metricEntry {
	if mt.Valid() {
		return t.byType[mt]
	}

	return t.unknown
}

// Sent add sent packet to metrics
func (t *packetsMetric) Sent(mt packet.Type) {
	t.total.sent.add(1)
	t.entry(mt).sent.add(1)
}

// Received add received packet to metrics
func (t *packetsMetric) Received(mt packet.Type) {
	t.total.recv.add(1)
	t.entry(mt).recv.add(1)
}

// Bytes get bytes metric provider
func (t *metric) Bytes() BytesMetric {
	return t.bytes
}

// Packets get packets metric provider
func (t *metric) Packets() PacketsMetric {
	return t.packets
}

// Sent add sent bytes to statistic
func (t *bytesMetric) Sent(bytes uint64) {
	t.sent.add(bytes)
}

// Received add received bytes to statistic
func (t *bytesMetric) Received(bytes uint64) {
	t.recv.add(bytes)
}
