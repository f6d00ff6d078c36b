package packet

// Ack covers PUBACK, PUBREC, PUBREL and PUBCOMP packets which differ only by type
type Ack struct {
	kind       Type
	PacketID   IDType
	ReasonCode ReasonCode
}

// NewAck allocate ack of given kind. Panics if kind is not one of publish acks
func NewAck(kind Type, id IDType) *Ack {
	if !kind.IsAck() {
		panic("packet: invalid ack type " + kind.Name())
	}

	return &Ack{kind: kind, PacketID: id}
}

// NewPubAck QoS1 acknowledgement
func NewPubAck(id IDType) *Ack { return NewAck(PUBACK, id) }

// NewPubRec QoS2 publish received
func NewPubRec(id IDType) *Ack { return NewAck(PUBREC, id) }

// NewPubRel QoS2 publish release
func NewPubRel(id IDType) *Ack { return NewAck(PUBREL, id) }

// NewPubComp QoS2 publish complete
func NewPubComp(id IDType) *Ack { return NewAck(PUBCOMP, id) }

// Type of packet
func (a *Ack) Type() Type {
	return a.kind
}

// ID returns packet identifier
func (a *Ack) ID() IDType {
	return a.PacketID
}
