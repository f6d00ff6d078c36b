package packet

// Type of control packet. 4-bit value on the wire
type Type byte

// IDType as per [MQTT-2.2.1]
type IDType uint16

// Control packet types of MQTT 3.1.1 section 2.2.1
const (
	RESERVED Type = iota
	CONNECT
	CONNACK
	PUBLISH
	PUBACK
	PUBREC
	PUBREL
	PUBCOMP
	SUBSCRIBE
	SUBACK
	UNSUBSCRIBE
	UNSUBACK
	PINGREQ
	PINGRESP
	DISCONNECT
)

var typeInfo = [DISCONNECT + 1]struct {
	name string
	desc string
}{
	{"RESERVED", "Reserved"},
	{"CONNECT", "Client request to connect to Server"},
	{"CONNACK", "Accept acknowledgement"},
	{"PUBLISH", "Publish message"},
	{"PUBACK", "Publish acknowledgement"},
	{"PUBREC", "Publish received (assured delivery part 1)"},
	{"PUBREL", "Publish release (assured delivery part 2)"},
	{"PUBCOMP", "Publish complete (assured delivery part 3)"},
	{"SUBSCRIBE", "Client subscribe request"},
	{"SUBACK", "Subscribe acknowledgement"},
	{"UNSUBSCRIBE", "Unsubscribe request"},
	{"UNSUBACK", "Unsubscribe acknowledgement"},
	{"PINGREQ", "PING request"},
	{"PINGRESP", "PING response"},
	{"DISCONNECT", "Client is disconnecting"},
}

// Name of the packet type as written in protocol documents
func (t Type) Name() string {
	if t > DISCONNECT {
		return "UNKNOWN"
	}

	return typeInfo[t].name
}

// Desc human readable description of the packet type
func (t Type) Desc() string {
	if t > DISCONNECT {
		return "UNKNOWN"
	}

	return typeInfo[t].desc
}

// IsAck reports whether type is one of the four publish acknowledgements
func (t Type) IsAck() bool {
	return t >= PUBACK && t <= PUBCOMP
}

// Valid reports whether type is known control packet
func (t Type) Valid() bool {
	return t > RESERVED && t <= DISCONNECT
}
