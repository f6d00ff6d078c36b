package systree

import (
	"encoding/json"

	"github.com/VolantMQ/mqcore/packet"
)

// Capabilities announced by broker under $SYS/broker/capabilities
type Capabilities struct {
	SupportedVersions             []packet.ProtocolVersion
	MaxQoS                        string
	MaxSessions                   uint64
	ServerKeepAlive               uint16
	RetainAvailable               bool
	WildcardSubscriptionAvailable bool
}

type server struct {
	version  string
	upTime   *dynamicValueUpTime
	currTime *dynamicValueCurrentTime
}

func newServer(topicPrefix, version string, caps *Capabilities, dynRetains *[]DynamicValue, staticRetains *[]*packet.Publish) server {
	b := server{
		upTime:   newDynamicValueUpTime(topicPrefix + "/uptime"),
		currTime: newDynamicValueCurrentTime(topicPrefix + "/datetime"),
		version:  version,
	}

	*dynRetains = append(*dynRetains, b.upTime, b.currTime)
	*staticRetains = append(*staticRetains, newStaticValue(topicPrefix+"/version", []byte(b.version)))

	if caps != nil {
		var payload []byte
		if data, err := json.Marshal(caps); err == nil {
			payload = data
		} else {
			payload = []byte(err.Error())
		}

		*staticRetains = append(*staticRetains, newStaticValue(topicPrefix+"/capabilities", payload))
	}

	return b
}
