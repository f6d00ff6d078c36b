// Package delivery implements message routing and QoS handshakes
// between sessions.
package delivery

import (
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/VolantMQ/mqcore/auth"
	"github.com/VolantMQ/mqcore/configuration"
	"github.com/VolantMQ/mqcore/packet"
	"github.com/VolantMQ/mqcore/store"
	"github.com/VolantMQ/mqcore/subscriber"
	"github.com/VolantMQ/mqcore/topics/types"
	"github.com/VolantMQ/mqcore/types"
)

// Session state engine operates on.
// All calls for given session expected from single goroutine owning it
type Session interface {
	ID() string
	Username() string
	Subscriber() *subscriber.Type
	Outbound() *store.Inflight
	Inbound() *store.Inflight
}

// Sender writes packet to the network connection of session
type Sender func(packet.Provider) error

// Config of delivery engine
type Config struct {
	Topics   topicsTypes.Provider
	Retained *store.Retained
	// ACL optional. nil allows everything
	ACL auth.Provider
	// MaxInflight outbound QoS1/QoS2 messages awaiting acknowledgement. 0 means unlimited
	MaxInflight int
	// RetryTimeout before unacknowledged message is retransmitted. 0 disables retransmission
	RetryTimeout time.Duration
	// MaxRetries retransmissions before connection considered stalled. 0 means unlimited
	MaxRetries int
}

// Engine routes messages and drives QoS state machines
type Engine struct {
	Config
	log *zap.Logger
}

var _ types.TopicMessenger = (*Engine)(nil)

// New delivery engine
func New(c *Config) (*Engine, error) {
	if c.Topics == nil || c.Retained == nil {
		return nil, errors.New("delivery: topics and retained store required")
	}

	return &Engine{
		Config: *c,
		log:    configuration.GetLogger().Desugar().Named("delivery"),
	}, nil
}

// Publish message to every matching subscriber.
// Each recipient receives own copy at min(message QoS, granted QoS).
// Fan-out only enqueues so slow subscriber never blocks others
func (e *Engine) Publish(msg *packet.Publish) error {
	if err := topicsTypes.ValidateTopic(msg.Topic); err != nil {
		return err
	}

	if msg.Retain {
		if _, err := e.Retained.Set(msg); err != nil {
			return err
		}
	}

	for _, s := range e.Topics.Subscribers(msg.Topic) {
		m := msg.CopyWithQoS(s.QoS)
		// [MQTT-3.3.1-9] retain flag cleared for established subscriptions
		m.Retain = false

		if err := s.Subscriber.Publish(m); err != nil {
			e.log.Debug("Subscriber rejected message",
				zap.String("topic", msg.Topic),
				zap.Error(err))
		}
	}

	return nil
}

func (e *Engine) authorize(s Session, topic string, access auth.AccessType) bool {
	if e.ACL == nil {
		return true
	}

	return e.ACL.ACL(s.ID(), s.Username(), topic, access) == auth.StatusAllow
}

// OnPublish invoked when server receives PUBLISH message from remote
// On QoS == 0, we should just take the next step, no ack required
// On QoS == 1, route then send back PUBACK
// On QoS == 2, route on first receipt, store packet id and send back PUBREC
func (e *Engine) OnPublish(s Session, pkt *packet.Publish) (packet.Provider, error) {
	if err := topicsTypes.ValidateTopic(pkt.Topic); err != nil {
		return nil, errors.Wrapf(types.ErrProtocolViolation, "publish topic %q: %s", pkt.Topic, err)
	}

	if !pkt.QoS.IsValid() {
		return nil, errors.Wrapf(types.ErrProtocolViolation, "publish qos %d", pkt.QoS)
	}

	if pkt.QoS > packet.QoS0 && pkt.PacketID == 0 {
		return nil, errors.Wrap(types.ErrProtocolViolation, "publish without packet id")
	}

	msg := pkt.Copy()

	// denied message is dropped but acknowledged as usual
	allowed := e.authorize(s, pkt.Topic, auth.AccessTypeWrite)
	if !allowed {
		e.log.Warn("Publish not authorized",
			zap.String("ClientID", s.ID()),
			zap.String("topic", pkt.Topic))
	}

	route := func() {
		if !allowed {
			return
		}

		if err := e.Publish(msg); err != nil {
			e.log.Error("Couldn't publish message",
				zap.String("ClientID", s.ID()),
				zap.Uint8("QoS", uint8(pkt.QoS)),
				zap.Error(err))
		}
	}

	switch pkt.QoS {
	case packet.QoS2:
		// [MQTT-4.3.3-2] duplicate of message which is not released yet is not routed again
		if s.Inbound().Has(pkt.PacketID) {
			return packet.NewPubRec(pkt.PacketID), nil
		}

		// [MQTT-4.3.3-9]
		// store incoming QoS 2 message before sending PUBREC as theoretically PUBREL
		// might come before store in case message store done after write PUBREC
		if _, err := s.Inbound().Track(pkt.PacketID, msg, time.Now()); err != nil {
			return nil, err
		}

		route()

		return packet.NewPubRec(pkt.PacketID), nil
	case packet.QoS1:
		route()
		return packet.NewPubAck(pkt.PacketID), nil
	default:
		route()
		return nil, nil
	}
}

// OnAck handle acknowledgment received from remote.
// Acknowledgements of unknown packet ids are logged and discarded
func (e *Engine) OnAck(s Session, ack *packet.Ack) (packet.Provider, error) {
	id := ack.PacketID

	switch ack.Type() {
	case packet.PUBACK:
		// remote acknowledged PUBLISH QoS 1 message sent by this server
		if _, err := s.Outbound().Resolve(id, packet.PUBACK); err != nil {
			e.discard(s, ack, err)
		}
	case packet.PUBREC:
		// remote received PUBLISH message sent by this server
		if _, err := s.Outbound().Resolve(id, packet.PUBREC); err != nil {
			e.discard(s, ack, err)
			return nil, nil
		}

		// mark PUBREL before writing into network as theoretically response may come
		// faster than state updated
		if err := s.Outbound().MarkReleased(id, time.Now()); err != nil {
			e.discard(s, ack, err)
			return nil, nil
		}

		return packet.NewPubRel(id), nil
	case packet.PUBREL:
		// Remote has released PUBLISH. PUBCOMP is sent even for unknown id
		// as previous PUBCOMP might have been lost
		if _, err := s.Inbound().Resolve(id, packet.PUBREL); err != nil {
			e.discard(s, ack, err)
		}

		return packet.NewPubComp(id), nil
	case packet.PUBCOMP:
		// PUBREL message has been acknowledged, release from queue
		if _, err := s.Outbound().Resolve(id, packet.PUBCOMP); err != nil {
			e.discard(s, ack, err)
		}
	default:
		return nil, errors.Wrapf(types.ErrProtocolViolation, "unsupported ack %s", ack.Type().Name())
	}

	return nil, nil
}

func (e *Engine) discard(s Session, ack *packet.Ack, err error) {
	e.log.Debug("Ack discarded",
		zap.String("ClientID", s.ID()),
		zap.String("type", ack.Type().Name()),
		zap.Uint16("PacketID", uint16(ack.PacketID)),
		zap.Error(err))
}

// Subscribe registers requested filters and returns granted QoS per filter in request order.
// Retained messages matching filter are queued before any later publish
func (e *Engine) Subscribe(s Session, pkt *packet.Subscribe) *packet.SubAck {
	resp := &packet.SubAck{
		PacketID:    pkt.PacketID,
		ReturnCodes: make([]packet.QosType, 0, len(pkt.Topics)),
	}

	for _, t := range pkt.Topics {
		code := packet.QosFailure

		if err := topicsTypes.ValidateFilter(t.Filter); err != nil {
			e.log.Debug("Invalid filter",
				zap.String("ClientID", s.ID()),
				zap.String("filter", t.Filter),
				zap.Error(err))
		} else if !e.authorize(s, t.Filter, auth.AccessTypeRead) {
			e.log.Warn("Subscribe not authorized",
				zap.String("ClientID", s.ID()),
				zap.String("filter", t.Filter))
		} else if granted, err := s.Subscriber().Subscribe(t.Filter, t.QoS); err != nil {
			e.log.Debug("Subscribe",
				zap.String("ClientID", s.ID()),
				zap.String("filter", t.Filter),
				zap.Error(err))
		} else {
			code = granted
		}

		resp.ReturnCodes = append(resp.ReturnCodes, code)
	}

	return resp
}

// Unsubscribe removes filters from session. Unknown filters are ignored
func (e *Engine) Unsubscribe(s Session, pkt *packet.UnSubscribe) *packet.UnSubAck {
	for _, filter := range pkt.Topics {
		if err := s.Subscriber().UnSubscribe(filter); err != nil && err != topicsTypes.ErrNotFound {
			e.log.Debug("Unsubscribe",
				zap.String("ClientID", s.ID()),
				zap.String("filter", filter),
				zap.Error(err))
		}
	}

	return &packet.UnSubAck{PacketID: pkt.PacketID}
}

// Flush moves queued messages of session to network.
// QoS1/QoS2 messages get packet id and are tracked until acknowledged.
// Stops once MaxInflight messages await acknowledgement
func (e *Engine) Flush(s Session, send Sender) error {
	sub := s.Subscriber()
	out := s.Outbound()

	for {
		if e.MaxInflight > 0 && out.Len() >= e.MaxInflight {
			return nil
		}

		msg, ok := sub.Dequeue()
		if !ok {
			return nil
		}

		if msg.QoS > packet.QoS0 {
			id, err := out.Acquire()
			if err != nil {
				sub.Requeue(msg)
				return nil
			}

			msg.PacketID = id

			if _, err = out.Track(id, msg, time.Now()); err != nil {
				sub.Requeue(msg)
				return err
			}
		}

		if err := send(msg); err != nil {
			return err
		}
	}
}

func retransmit(entry *store.Entry) packet.Provider {
	if entry.State == store.StateSent {
		dup := *entry.Message
		dup.Dup = true
		return &dup
	}

	return packet.NewPubRel(entry.ID)
}

// Replay retransmits unacknowledged outbound messages in original order,
// then flushes queued messages
func (e *Engine) Replay(s Session, send Sender) error {
	now := time.Now()
	out := s.Outbound()

	for _, entry := range out.Entries() {
		switch entry.State {
		case store.StateReceived:
			// PUBREC received but PUBREL never sent
			if err := out.MarkReleased(entry.ID, now); err != nil {
				return err
			}
		case store.StateSent, store.StateReleased:
			if _, err := out.Touch(entry.ID, now); err != nil {
				return err
			}
		default:
			continue
		}

		if err := send(retransmit(entry)); err != nil {
			return err
		}
	}

	return e.Flush(s, send)
}

// Retry retransmits outbound messages awaiting acknowledgement longer than RetryTimeout.
// Returns types.ErrStalled once message has been retransmitted MaxRetries times
func (e *Engine) Retry(s Session, now time.Time, send Sender) error {
	if e.RetryTimeout <= 0 {
		return nil
	}

	out := s.Outbound()

	for _, entry := range out.Due(now, e.RetryTimeout) {
		if e.MaxRetries > 0 && entry.Attempts > e.MaxRetries {
			return errors.Wrapf(types.ErrStalled, "packet id %d", entry.ID)
		}

		if _, err := out.Touch(entry.ID, now); err != nil {
			continue
		}

		e.log.Debug("Retransmit",
			zap.String("ClientID", s.ID()),
			zap.Uint16("PacketID", uint16(entry.ID)),
			zap.Stringer("state", entry.State))

		if err := send(retransmit(entry)); err != nil {
			return err
		}
	}

	return nil
}
