package packet

import (
	"time"
)

// Will describes the message published on behalf of a client that goes away
// without a proper DISCONNECT
type Will struct {
	Topic   string
	Payload []byte
	QoS     QosType
	Retain  bool
	// Delay in seconds before the will is published. 0 publishes immediately
	Delay uint32
}

// Publish converts will into message ready to route
func (w *Will) Publish() *Publish {
	msg := NewPublish(w.Topic, w.Payload, w.QoS)
	msg.Retain = w.Retain
	return msg
}

// DelayDuration returns will delay as time.Duration
func (w *Will) DelayDuration() time.Duration {
	return time.Duration(w.Delay) * time.Second
}

// Connect is the first packet sent by client on a network connection
type Connect struct {
	ClientID   string
	CleanStart bool
	// KeepAlive in seconds. 0 disables liveness check
	KeepAlive uint16
	Will      *Will
	Username  string
	Password  []byte
	Version   ProtocolVersion
	// ExpiryInterval in seconds. nil means version default
	ExpiryInterval *uint32
}

// Type of packet
func (c *Connect) Type() Type {
	return CONNECT
}

// ConnAck is the server response to Connect
type ConnAck struct {
	SessionPresent bool
	ReturnCode     ReasonCode
}

// Type of packet
func (c *ConnAck) Type() Type {
	return CONNACK
}

// PingReq keep-alive request
type PingReq struct{}

// Type of packet
func (p *PingReq) Type() Type {
	return PINGREQ
}

// PingResp keep-alive response
type PingResp struct{}

// Type of packet
func (p *PingResp) Type() Type {
	return PINGRESP
}

// Disconnect is the graceful client goodbye
type Disconnect struct {
	// SendWill asks server to publish will regardless of graceful close
	SendWill bool
	// ExpiryInterval overrides the interval set on connect
	ExpiryInterval *uint32
	ReasonCode     ReasonCode
}

// Type of packet
func (d *Disconnect) Type() Type {
	return DISCONNECT
}
