package connection

import (
	"time"
)

// keepAliveDeadline is the time allowed between two packets from client.
// [MQTT-3.1.2-24] one and a half times the keep alive period
func keepAliveDeadline(keepAlive uint16, unit time.Duration) time.Duration {
	d := time.Duration(keepAlive) * unit
	return d + d/2
}

// negotiateKeepAlive returns keep alive in effect for the connection
func (s *Type) negotiateKeepAlive(requested uint16) uint16 {
	if requested == 0 && s.forceKeepAlive {
		return s.keepAlive
	}

	return requested
}
