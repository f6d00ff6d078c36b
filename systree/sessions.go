package systree

import (
	"github.com/VolantMQ/mqcore/packet"
	"github.com/VolantMQ/mqcore/types"
)

// SessionCreatedStatus report when session status once created
type SessionCreatedStatus struct {
	ExpiryInterval string `json:"expiryInterval,omitempty"`
	WillDelay      string `json:"willDelay,omitempty"`
	Timestamp      string `json:"timestamp"`
	Clean          bool   `json:"clean"`
}

// SessionDeletedStatus report when session status once deleted
type SessionDeletedStatus struct {
	Timestamp string `json:"timestamp"`
	Reason    string `json:"reason"`
}

type sessions struct {
	stat

	topicsManager types.TopicMessenger
	topic         string
}

func newSessions(topicPrefix string, retained *[]DynamicValue) sessions {
	c := sessions{
		stat:  newStat(topicPrefix+"/stats/sessions", retained),
		topic: topicPrefix + "/sessions/",
	}

	return c
}

// Created add to statistic new session
func (t *sessions) Created(id string, status *SessionCreatedStatus) {
	t.inc()

	if t.topicsManager != nil {
		notifyMsg := packet.NewPublish(t.topic+id, jsonPayload(status), packet.QoS0)
		notifyMsg.Retain = true

		t.topicsManager.Publish(notifyMsg) // nolint: errcheck
	}
}

// Removed remove session from statistic
func (t *sessions) Removed(id string, status *SessionDeletedStatus) {
	t.dec()

	if t.topicsManager != nil {
		reset := packet.NewPublish(t.topic+id, nil, packet.QoS0)
		reset.Retain = true
		t.topicsManager.Publish(reset) // nolint: errcheck

		notifyMsg := packet.NewPublish(t.topic+id+"/removed", jsonPayload(status), packet.QoS0)
		t.topicsManager.Publish(notifyMsg) // nolint: errcheck
	}
}
