package connection

import (
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/VolantMQ/mqcore/clients"
	"github.com/VolantMQ/mqcore/packet"
	"github.com/VolantMQ/mqcore/types"
)

// receiver reads packets and hands them to dispatch loop.
// Read deadline is rearmed before every packet so silence longer than keep alive
// deadline fails the read
func (s *Type) receiver(deadline time.Duration, in chan<- packet.Provider, errs chan<- error, stop <-chan struct{}) {
	for {
		if deadline > 0 {
			if err := s.conn.SetReadDeadline(time.Now().Add(deadline)); err != nil {
				errs <- err
				return
			}
		}

		p, err := s.conn.Read()
		if err != nil {
			errs <- err
			return
		}

		select {
		case in <- p:
		case <-stop:
			return
		}
	}
}

// serve runs dispatch loop owning session state until connection goes away
func (s *Type) serve(deadline time.Duration) *clients.DisconnectParams {
	in := make(chan packet.Provider)
	errs := make(chan error, 1)
	stop := make(chan struct{})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.receiver(deadline, in, errs, stop)
	}()

	defer func() {
		close(stop)
		s.conn.Close() // nolint: errcheck
		wg.Wait()
	}()

	send := s.conn.Write

	if err := s.Engine.Replay(s.ses, send); err != nil {
		return s.failed(err)
	}

	var retry <-chan time.Time
	if s.Engine.RetryTimeout > 0 {
		ticker := time.NewTicker(s.Engine.RetryTimeout)
		defer ticker.Stop()
		retry = ticker.C
	}

	notify := s.ses.Subscriber().Notify()

	for {
		select {
		case p := <-in:
			params, err := s.process(p)
			if err != nil {
				return s.failed(err)
			}

			if params != nil {
				return params
			}
		case err := <-errs:
			return s.failed(err)
		case <-notify:
			if err := s.Engine.Flush(s.ses, send); err != nil {
				return s.failed(err)
			}
		case now := <-retry:
			if err := s.Engine.Retry(s.ses, now, send); err != nil {
				return s.failed(err)
			}
		case <-s.quit:
			return &clients.DisconnectParams{Reason: s.evicted()}
		}
	}
}

// failed converts error into ungraceful disconnect
func (s *Type) failed(err error) *clients.DisconnectParams {
	select {
	case <-s.quit:
		return &clients.DisconnectParams{Reason: s.evicted()}
	default:
	}

	reason := classify(err)

	if reason == packet.CodeSuccess {
		s.log.Debug("Connection lost", zap.Error(err))
	} else {
		s.log.Warn("Closing connection", zap.String("reason", reason.Error()), zap.Error(err))
	}

	return &clients.DisconnectParams{Reason: reason}
}

// process single packet received from client.
// Returns non nil params if client disconnected gracefully
func (s *Type) process(p packet.Provider) (*clients.DisconnectParams, error) {
	var resp packet.Provider
	var err error

	switch pkt := p.(type) {
	case *packet.Publish:
		resp, err = s.Engine.OnPublish(s.ses, pkt)
	case *packet.Ack:
		if resp, err = s.Engine.OnAck(s.ses, pkt); err == nil && resp == nil {
			// acknowledgement might have released in-flight slot
			err = s.Engine.Flush(s.ses, s.conn.Write)
		}
	case *packet.Subscribe:
		resp = s.Engine.Subscribe(s.ses, pkt)
	case *packet.UnSubscribe:
		resp = s.Engine.Unsubscribe(s.ses, pkt)
	case *packet.PingReq:
		// For PINGREQ message, we should send back PINGRESP
		resp = &packet.PingResp{}
	case *packet.Disconnect:
		// For DISCONNECT message, we should quit without sending Will
		return &clients.DisconnectParams{
			Graceful:       true,
			SendWill:       pkt.SendWill,
			ExpiryInterval: pkt.ExpiryInterval,
			Reason:         pkt.ReasonCode,
		}, nil
	default:
		// [MQTT-3.1.0-2] second CONNECT and server side packets are violations
		return nil, errors.Wrapf(types.ErrProtocolViolation, "unexpected %s", p.Type().Name())
	}

	if err != nil {
		return nil, err
	}

	if resp != nil {
		return nil, s.conn.Write(resp)
	}

	return nil, nil
}
