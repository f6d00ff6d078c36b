package systree

import (
	"encoding/json"
	"time"

	"github.com/VolantMQ/mqcore/packet"
	"github.com/VolantMQ/mqcore/types"
)

// ClientConnectStatus is payload of $SYS/broker/clients/<id>/connected
type ClientConnectStatus struct {
	Address        string                 `json:"address"`
	Username       string                 `json:"username,omitempty"`
	CleanSession   bool                   `json:"cleanSession"`
	SessionPresent bool                   `json:"sessionPresent"`
	Protocol       packet.ProtocolVersion `json:"protocol"`
	KeepAlive      uint16                 `json:"keepAlive"`
	Timestamp      string                 `json:"timestamp"`
}

type clientDisconnectStatus struct {
	Reason    string `json:"reason"`
	Timestamp string `json:"timestamp"`
}

type clients struct {
	stat
	topic         string
	topicsManager types.TopicMessenger
}

func newClients(topicPrefix string, retained *[]DynamicValue) clients {
	c := clients{
		stat:  newStat(topicPrefix+"/stats/clients", retained),
		topic: topicPrefix + "/clients/",
	}

	return c
}

func jsonPayload(v interface{}) []byte {
	out, err := json.Marshal(v)
	if err != nil {
		return []byte("data error")
	}

	return out
}

// Connected add to statistic new client
func (t *clients) Connected(id string, status *ClientConnectStatus) {
	t.inc()

	if t.topicsManager != nil {
		// notify client connected
		notifyMsg := packet.NewPublish(t.topic+id+"/connected", jsonPayload(status), packet.QoS0)
		notifyMsg.Retain = true
		t.topicsManager.Publish(notifyMsg) // nolint: errcheck

		// remove previous disconnect if any
		reset := packet.NewPublish(t.topic+id+"/disconnected", nil, packet.QoS0)
		reset.Retain = true
		t.topicsManager.Publish(reset) // nolint: errcheck
	}
}

// Disconnected remove client from statistic
func (t *clients) Disconnected(id string, reason string) {
	t.dec()

	if t.topicsManager != nil {
		notifyPayload := clientDisconnectStatus{
			Reason:    reason,
			Timestamp: time.Now().Format(time.RFC3339),
		}

		notifyMsg := packet.NewPublish(t.topic+id+"/disconnected", jsonPayload(&notifyPayload), packet.QoS0)
		notifyMsg.Retain = true
		t.topicsManager.Publish(notifyMsg) // nolint: errcheck

		// remove connected retained message
		reset := packet.NewPublish(t.topic+id+"/connected", nil, packet.QoS0)
		reset.Retain = true
		t.topicsManager.Publish(reset) // nolint: errcheck
	}
}
