package packet

// Publish is application message either received from client or delivered to it.
// Once routed it must be treated as immutable, each recipient gets own Copy
type Publish struct {
	Topic   string
	Payload []byte
	QoS     QosType
	Retain  bool
	Dup     bool
	// PacketID valid only for QoS1 and QoS2
	PacketID IDType
}

// NewPublish allocate new publish message
func NewPublish(topic string, payload []byte, qos QosType) *Publish {
	return &Publish{
		Topic:   topic,
		Payload: payload,
		QoS:     qos,
	}
}

// Type of packet
func (p *Publish) Type() Type {
	return PUBLISH
}

// ID returns packet identifier
func (p *Publish) ID() IDType {
	return p.PacketID
}

// Copy message. Payload is shared as it is never modified after routing.
// Packet ID and dup flag are cleared as they are per-session properties
func (p *Publish) Copy() *Publish {
	return &Publish{
		Topic:   p.Topic,
		Payload: p.Payload,
		QoS:     p.QoS,
		Retain:  p.Retain,
	}
}

// CopyWithQoS returns copy of message downgraded to given QoS
func (p *Publish) CopyWithQoS(qos QosType) *Publish {
	m := p.Copy()
	m.QoS = MinQoS(p.QoS, qos)
	return m
}
