// Copyright (c) 2014 The SurgeMQ Authors. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package connection supervises single network connection from CONNECT
// until it goes away, driving the bound session.
package connection

import (
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/VolantMQ/mqcore/auth"
	"github.com/VolantMQ/mqcore/clients"
	"github.com/VolantMQ/mqcore/configuration"
	"github.com/VolantMQ/mqcore/delivery"
	"github.com/VolantMQ/mqcore/packet"
	topicsTypes "github.com/VolantMQ/mqcore/topics/types"
	"github.com/VolantMQ/mqcore/transport"
	"github.com/VolantMQ/mqcore/types"
)

// Config is system wide configuration parameters for every connection
type Config struct {
	Sessions *clients.Manager
	Engine   *delivery.Engine
	// Auth optional. nil allows every client
	Auth auth.Provider
	// Versions allowed protocol versions. Defaults to v3.1 and v3.1.1
	Versions map[packet.ProtocolVersion]bool
}

// Type supervises network connection
type Type struct {
	Config
	conn           transport.Conn
	log            *zap.Logger
	ses            *clients.Session
	quit           chan struct{}
	done           chan struct{}
	onEvict        sync.Once
	reason         atomic.Uint32
	keepAlive      uint16
	forceKeepAlive bool
	unit           time.Duration
	connectTimeout time.Duration
}

var _ clients.Binding = (*Type)(nil)

// New allocate connection supervisor. Call Run to serve it
func New(c *Config, conn transport.Conn, opts ...Option) (*Type, error) {
	if c.Sessions == nil || c.Engine == nil {
		return nil, errors.New("connection: sessions and engine required")
	}

	s := &Type{
		Config:         *c,
		conn:           conn,
		quit:           make(chan struct{}),
		done:           make(chan struct{}),
		unit:           time.Second,
		connectTimeout: 2 * time.Second,
		log:            configuration.GetLogger().Desugar().Named("connection"),
	}

	if s.Versions == nil {
		s.Versions = map[packet.ProtocolVersion]bool{
			packet.ProtocolV31:  true,
			packet.ProtocolV311: true,
		}
	}

	if err := s.SetOptions(opts...); err != nil {
		return nil, err
	}

	return s, nil
}

// Evict closes connection from outside. Does not block
func (s *Type) Evict(reason packet.ReasonCode) {
	s.onEvict.Do(func() {
		s.reason.Store(uint32(reason))
		close(s.quit)
		s.conn.Close() // nolint: errcheck
	})
}

// Stop connection on server shutdown
func (s *Type) Stop() {
	s.Evict(packet.CodeServerShuttingDown)
}

// Done closed once connection teardown completed
func (s *Type) Done() <-chan struct{} {
	return s.done
}

// RemoteAddr of the client
func (s *Type) RemoteAddr() net.Addr {
	return s.conn.RemoteAddr()
}

// Run serves connection until it goes away. Blocks
func (s *Type) Run() {
	defer close(s.done)
	defer s.conn.Close() // nolint: errcheck

	req, ok := s.handshake()
	if !ok {
		return
	}

	s.log = s.log.With(zap.String("ClientID", s.ses.ID()))

	params := s.serve(keepAliveDeadline(req.KeepAlive, s.unit))

	s.Sessions.Disconnect(s.ses, s, params)

	s.log.Debug("Connection closed",
		zap.Bool("graceful", params.Graceful),
		zap.String("reason", params.Reason.Error()))
}

// handshake reads CONNECT and binds session.
// Returns false if connection has to be closed
func (s *Type) handshake() (*packet.Connect, bool) {
	if err := s.conn.SetReadDeadline(time.Now().Add(s.connectTimeout)); err != nil {
		return nil, false
	}

	p, err := s.conn.Read()

	req, isConnect := p.(*packet.Connect)

	if err != nil {
		if code, ok := errors.Cause(err).(packet.ReasonCode); ok && isConnect {
			s.log.Debug("Connect refused", zap.String("ClientID", req.ClientID), zap.Error(code))
			s.refuse(code)
		} else {
			s.log.Debug("Couldn't read CONNECT", zap.Error(err))
		}

		return nil, false
	}

	// [MQTT-3.1.0-1]
	if !isConnect {
		s.log.Warn("Unexpected packet type",
			zap.String("expected", "CONNECT"),
			zap.String("received", p.Type().Name()))
		return nil, false
	}

	if err = s.conn.SetReadDeadline(time.Time{}); err != nil {
		return nil, false
	}

	if !s.Versions[req.Version] {
		s.refuse(packet.CodeRefusedUnacceptableProtocolVersion)
		return nil, false
	}

	// [MQTT-3.1.2-9] will topic follows publish topic rules
	if req.Will != nil {
		if err = topicsTypes.ValidateTopic(req.Will.Topic); err != nil {
			s.log.Warn("Invalid will topic",
				zap.String("ClientID", req.ClientID),
				zap.String("topic", req.Will.Topic),
				zap.Error(err))
			return nil, false
		}
	}

	if code := s.authenticate(req); code != packet.CodeSuccess {
		s.log.Info("Connect not authorized",
			zap.String("ClientID", req.ClientID),
			zap.String("username", req.Username))
		s.refuse(code)
		return nil, false
	}

	req.KeepAlive = s.negotiateKeepAlive(req.KeepAlive)

	ses, present, err := s.Sessions.Connect(req, s)
	if err != nil {
		code, ok := errors.Cause(err).(packet.ReasonCode)
		if !ok {
			code = packet.CodeRefusedServerUnavailable
		}

		s.refuse(code)
		return nil, false
	}

	s.ses = ses

	if err = s.conn.Write(&packet.ConnAck{SessionPresent: present, ReturnCode: packet.CodeSuccess}); err != nil {
		s.Sessions.Disconnect(ses, s, &clients.DisconnectParams{})
		return nil, false
	}

	return req, true
}

func (s *Type) authenticate(req *packet.Connect) packet.ReasonCode {
	if s.Auth == nil {
		return packet.CodeSuccess
	}

	if s.Auth.Password(req.ClientID, req.Username, req.Password) == auth.StatusAllow {
		return packet.CodeSuccess
	}

	if len(req.Username) > 0 {
		return packet.CodeRefusedBadUsernameOrPassword
	}

	return packet.CodeRefusedNotAuthorized
}

// refuse responds to CONNECT with error code
func (s *Type) refuse(code packet.ReasonCode) {
	if err := s.conn.Write(&packet.ConnAck{ReturnCode: code}); err != nil {
		s.log.Debug("Couldn't write CONNACK", zap.Error(err))
	}
}

// evicted returns reason connection was closed from outside
func (s *Type) evicted() packet.ReasonCode {
	return packet.ReasonCode(s.reason.Load())
}

// classify error which caused connection close
func classify(err error) packet.ReasonCode {
	var ne net.Error

	switch {
	case errors.Is(err, types.ErrProtocolViolation):
		return packet.CodeProtocolError
	case errors.Is(err, types.ErrStalled):
		return packet.CodeUnspecifiedError
	case errors.As(err, &ne) && ne.Timeout():
		return packet.CodeKeepAliveTimeout
	default:
		return packet.CodeSuccess
	}
}
