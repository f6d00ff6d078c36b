package transport

import (
	"github.com/eclipse/paho.mqtt.golang/packets"
	"github.com/pkg/errors"

	"github.com/VolantMQ/mqcore/packet"
	"github.com/VolantMQ/mqcore/types"
)

// ErrUnsupportedPacket returned on attempt to encode packet wire format has no representation for
var ErrUnsupportedPacket = errors.New("transport: unsupported packet")

func decode(cp packets.ControlPacket) (packet.Provider, error) {
	switch p := cp.(type) {
	case *packets.ConnectPacket:
		return decodeConnect(p)
	case *packets.ConnackPacket:
		return &packet.ConnAck{
			SessionPresent: p.SessionPresent,
			ReturnCode:     packet.ReasonCode(p.ReturnCode),
		}, nil
	case *packets.PublishPacket:
		return &packet.Publish{
			Topic:    p.TopicName,
			Payload:  p.Payload,
			QoS:      packet.QosType(p.Qos),
			Retain:   p.Retain,
			Dup:      p.Dup,
			PacketID: packet.IDType(p.MessageID),
		}, nil
	case *packets.PubackPacket:
		return packet.NewPubAck(packet.IDType(p.MessageID)), nil
	case *packets.PubrecPacket:
		return packet.NewPubRec(packet.IDType(p.MessageID)), nil
	case *packets.PubrelPacket:
		return packet.NewPubRel(packet.IDType(p.MessageID)), nil
	case *packets.PubcompPacket:
		return packet.NewPubComp(packet.IDType(p.MessageID)), nil
	case *packets.SubscribePacket:
		// [MQTT-3.8.3-3]
		if len(p.Topics) == 0 || len(p.Topics) != len(p.Qoss) {
			return nil, errors.Wrap(types.ErrProtocolViolation, "subscribe without topics")
		}

		req := &packet.Subscribe{
			PacketID: packet.IDType(p.MessageID),
			Topics:   make([]packet.TopicQoS, 0, len(p.Topics)),
		}

		for i, t := range p.Topics {
			req.Topics = append(req.Topics, packet.TopicQoS{Filter: t, QoS: packet.QosType(p.Qoss[i])})
		}

		return req, nil
	case *packets.SubackPacket:
		resp := &packet.SubAck{
			PacketID:    packet.IDType(p.MessageID),
			ReturnCodes: make([]packet.QosType, 0, len(p.ReturnCodes)),
		}

		for _, c := range p.ReturnCodes {
			resp.ReturnCodes = append(resp.ReturnCodes, packet.QosType(c))
		}

		return resp, nil
	case *packets.UnsubscribePacket:
		// [MQTT-3.10.3-2]
		if len(p.Topics) == 0 {
			return nil, errors.Wrap(types.ErrProtocolViolation, "unsubscribe without topics")
		}

		return &packet.UnSubscribe{
			PacketID: packet.IDType(p.MessageID),
			Topics:   p.Topics,
		}, nil
	case *packets.UnsubackPacket:
		return &packet.UnSubAck{PacketID: packet.IDType(p.MessageID)}, nil
	case *packets.PingreqPacket:
		return &packet.PingReq{}, nil
	case *packets.PingrespPacket:
		return &packet.PingResp{}, nil
	case *packets.DisconnectPacket:
		return &packet.Disconnect{}, nil
	default:
		return nil, errors.Wrapf(types.ErrProtocolViolation, "unknown packet %T", cp)
	}
}

func decodeConnect(p *packets.ConnectPacket) (packet.Provider, error) {
	req := &packet.Connect{
		ClientID:   p.ClientIdentifier,
		CleanStart: p.CleanSession,
		KeepAlive:  p.Keepalive,
		Version:    packet.ProtocolVersion(p.ProtocolVersion),
	}

	if p.UsernameFlag {
		req.Username = p.Username
	}

	if p.PasswordFlag {
		req.Password = p.Password
	}

	if p.WillFlag {
		if !packet.QosType(p.WillQos).IsValid() {
			return nil, errors.Wrapf(types.ErrProtocolViolation, "will qos %d", p.WillQos)
		}

		req.Will = &packet.Will{
			Topic:   p.WillTopic,
			Payload: p.WillMessage,
			QoS:     packet.QosType(p.WillQos),
			Retain:  p.WillRetain,
		}
	}

	switch code := p.Validate(); code {
	case packets.Accepted:
		return req, nil
	case packets.ErrProtocolViolation:
		return nil, errors.Wrap(types.ErrProtocolViolation, "connect")
	default:
		return req, packet.ReasonCode(code)
	}
}

func encode(p packet.Provider) (packets.ControlPacket, error) {
	switch m := p.(type) {
	case *packet.Connect:
		return encodeConnect(m)
	case *packet.ConnAck:
		resp := packets.NewControlPacket(packets.Connack).(*packets.ConnackPacket)
		resp.SessionPresent = m.SessionPresent
		resp.ReturnCode = m.ReturnCode.ConnAckV3().Value()
		return resp, nil
	case *packet.Publish:
		msg := packets.NewControlPacket(packets.Publish).(*packets.PublishPacket)
		msg.TopicName = m.Topic
		msg.Payload = m.Payload
		msg.Qos = byte(m.QoS)
		msg.Retain = m.Retain
		msg.Dup = m.Dup
		msg.MessageID = uint16(m.PacketID)
		return msg, nil
	case *packet.Ack:
		return encodeAck(m)
	case *packet.Subscribe:
		req := packets.NewControlPacket(packets.Subscribe).(*packets.SubscribePacket)
		req.MessageID = uint16(m.PacketID)
		for _, t := range m.Topics {
			req.Topics = append(req.Topics, t.Filter)
			req.Qoss = append(req.Qoss, byte(t.QoS))
		}
		return req, nil
	case *packet.SubAck:
		resp := packets.NewControlPacket(packets.Suback).(*packets.SubackPacket)
		resp.MessageID = uint16(m.PacketID)
		for _, c := range m.ReturnCodes {
			resp.ReturnCodes = append(resp.ReturnCodes, byte(c))
		}
		return resp, nil
	case *packet.UnSubscribe:
		req := packets.NewControlPacket(packets.Unsubscribe).(*packets.UnsubscribePacket)
		req.MessageID = uint16(m.PacketID)
		req.Topics = m.Topics
		return req, nil
	case *packet.UnSubAck:
		resp := packets.NewControlPacket(packets.Unsuback).(*packets.UnsubackPacket)
		resp.MessageID = uint16(m.PacketID)
		return resp, nil
	case *packet.PingReq:
		return packets.NewControlPacket(packets.Pingreq), nil
	case *packet.PingResp:
		return packets.NewControlPacket(packets.Pingresp), nil
	case *packet.Disconnect:
		return packets.NewControlPacket(packets.Disconnect), nil
	default:
		return nil, errors.Wrapf(ErrUnsupportedPacket, "%T", p)
	}
}

func encodeAck(m *packet.Ack) (packets.ControlPacket, error) {
	id := uint16(m.PacketID)

	switch m.Type() {
	case packet.PUBACK:
		a := packets.NewControlPacket(packets.Puback).(*packets.PubackPacket)
		a.MessageID = id
		return a, nil
	case packet.PUBREC:
		a := packets.NewControlPacket(packets.Pubrec).(*packets.PubrecPacket)
		a.MessageID = id
		return a, nil
	case packet.PUBREL:
		a := packets.NewControlPacket(packets.Pubrel).(*packets.PubrelPacket)
		a.MessageID = id
		return a, nil
	default:
		a := packets.NewControlPacket(packets.Pubcomp).(*packets.PubcompPacket)
		a.MessageID = id
		return a, nil
	}
}

func encodeConnect(m *packet.Connect) (packets.ControlPacket, error) {
	version := m.Version
	if version == 0 {
		version = packet.ProtocolV311
	}

	if version == packet.ProtocolV50 {
		return nil, errors.Wrap(ErrUnsupportedPacket, "connect v5.0")
	}

	name, ok := packet.SupportedVersions[version]
	if !ok {
		return nil, errors.Wrapf(ErrUnsupportedPacket, "connect version %d", version)
	}

	req := packets.NewControlPacket(packets.Connect).(*packets.ConnectPacket)
	req.ProtocolName = name
	req.ProtocolVersion = byte(version)
	req.CleanSession = m.CleanStart
	req.Keepalive = m.KeepAlive
	req.ClientIdentifier = m.ClientID

	if len(m.Username) > 0 {
		req.UsernameFlag = true
		req.Username = m.Username
	}

	if m.Password != nil {
		req.PasswordFlag = true
		req.Password = m.Password
	}

	if m.Will != nil {
		req.WillFlag = true
		req.WillTopic = m.Will.Topic
		req.WillMessage = m.Will.Payload
		req.WillQos = byte(m.Will.QoS)
		req.WillRetain = m.Will.Retain
	}

	return req, nil
}
