package packet

// TopicQoS single filter request within SUBSCRIBE
type TopicQoS struct {
	Filter string
	QoS    QosType
}

// Subscribe request
type Subscribe struct {
	PacketID IDType
	Topics   []TopicQoS
}

// Type of packet
func (s *Subscribe) Type() Type {
	return SUBSCRIBE
}

// ID returns packet identifier
func (s *Subscribe) ID() IDType {
	return s.PacketID
}

// SubAck carries granted QoS or QosFailure per requested filter in request order
type SubAck struct {
	PacketID    IDType
	ReturnCodes []QosType
}

// Type of packet
func (s *SubAck) Type() Type {
	return SUBACK
}

// ID returns packet identifier
func (s *SubAck) ID() IDType {
	return s.PacketID
}

// UnSubscribe request
type UnSubscribe struct {
	PacketID IDType
	Topics   []string
}

// Type of packet
func (s *UnSubscribe) Type() Type {
	return UNSUBSCRIBE
}

// ID returns packet identifier
func (s *UnSubscribe) ID() IDType {
	return s.PacketID
}

// UnSubAck response to UnSubscribe
type UnSubAck struct {
	PacketID IDType
}

// Type of packet
func (s *UnSubAck) Type() Type {
	return UNSUBACK
}

// ID returns packet identifier
func (s *UnSubAck) ID() IDType {
	return s.PacketID
}
