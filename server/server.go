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

// Package server assembles topics, retained store, sessions, delivery engine
// and listeners into MQTT broker.
package server

import (
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/troian/healthcheck"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/VolantMQ/mqcore/auth"
	"github.com/VolantMQ/mqcore/clients"
	"github.com/VolantMQ/mqcore/configuration"
	"github.com/VolantMQ/mqcore/connection"
	"github.com/VolantMQ/mqcore/delivery"
	"github.com/VolantMQ/mqcore/packet"
	"github.com/VolantMQ/mqcore/persistence/types"
	"github.com/VolantMQ/mqcore/store"
	"github.com/VolantMQ/mqcore/systree"
	"github.com/VolantMQ/mqcore/topics"
	"github.com/VolantMQ/mqcore/topics/types"
	"github.com/VolantMQ/mqcore/transport"
	"github.com/VolantMQ/mqcore/types"
)

var (
	// ErrInvalidListenerType invalid listener type
	ErrInvalidListenerType = errors.New("invalid listener type")
	// ErrTransportAlreadyExists transport already exists
	ErrTransportAlreadyExists = errors.New("transport already exists")
	// ErrShuttingDown server does not accept new listeners once shutdown started
	ErrShuttingDown = errors.New("server is shutting down")
)

// Config configuration of the MQTT server
type Config struct {
	MQTT configuration.MqttConfig

	// Persistence optional. Sessions and retained messages are not stored if nil
	Persistence persistenceTypes.Provider

	// Auth optional. nil allows everything
	Auth auth.Provider

	// AcceptLimiter optional rate limiter shared by all listeners
	AcceptLimiter *rate.Limiter

	// Health optional. Every listener registers readiness check
	Health healthcheck.Checks

	// TransportStatus user provided callback to track transport status
	// If not set than defaults to mock function
	TransportStatus func(id string, status string)

	Version string
}

// Server server API
type Server interface {
	// ListenAndServe configures transport according to provided config
	// This is non blocking function. It returns nil if listener started
	// or error if any happened during configuration.
	// Transport status reported over TransportStatus callback in server configuration
	ListenAndServe(interface{}) (transport.Provider, error)

	// Shutdown terminates the server by shutting down all the client connections and closing
	// configured listeners. It does full clean up of the resources
	Shutdown() error

	// Alive returns nil while server accepts connections
	Alive() error

	types.TopicMessenger
}

// server is a library implementation of the MQTT server that, as best it can, complies
// with the MQTT 3.1 and 3.1.1 specs.
type server struct {
	Config
	sessionsMgr *clients.Manager
	engine      *delivery.Engine
	topicsMgr   topicsTypes.Provider
	sysTree     systree.Provider
	connConfig  connection.Config
	connOpts    []connection.Option
	log         *zap.SugaredLogger
	quit        chan struct{}
	lock        sync.Mutex
	onClose     sync.Once
	conns       map[*connection.Type]struct{}
	transports  struct {
		list  map[string]transport.Provider
		group errgroup.Group
	}
	systreeDone sync.WaitGroup
}

var _ Server = (*server)(nil)

// NewServer allocate server object
func NewServer(config Config) (Server, error) {
	s := &server{
		Config: config,
		quit:   make(chan struct{}),
		conns:  make(map[*connection.Type]struct{}),
		log:    configuration.GetLogger().Named("server"),
	}

	s.transports.list = make(map[string]transport.Provider)

	if s.TransportStatus == nil {
		s.TransportStatus = func(string, string) {}
	}

	expiry, err := s.MQTT.Sessions.Expiry()
	if err != nil {
		return nil, err
	}

	var dynamic []systree.DynamicValue
	var static []*packet.Publish

	if s.MQTT.Systree.Enabled {
		if s.sysTree, static, dynamic, err = systree.NewTree("$SYS/broker", s.Version, s.capabilities()); err != nil {
			return nil, err
		}
	} else {
		s.sysTree = systree.NewNop()
	}

	topicsConfig := topicsTypes.NewMemConfig()
	topicsConfig.MaxQoS = packet.QosType(s.MQTT.Options.MaxQoS)
	topicsConfig.Stat = s.sysTree.Subscriptions()

	if s.topicsMgr, err = topics.New(topicsConfig); err != nil {
		s.log.Errorf("cannot create topics")
		return nil, err
	}

	retained := store.NewRetained()

	if s.engine, err = delivery.New(&delivery.Config{
		Topics:       s.topicsMgr,
		Retained:     retained,
		ACL:          s.Auth,
		MaxInflight:  s.MQTT.Delivery.MaxInflight,
		RetryTimeout: time.Duration(s.MQTT.Delivery.RetryTimeout) * time.Second,
		MaxRetries:   s.MQTT.Delivery.MaxRetries,
	}); err != nil {
		return nil, err
	}

	s.sysTree.SetCallbacks(s.engine)

	mConfig := &clients.Config{
		TopicsMgr:     s.topicsMgr,
		Retained:      retained,
		Persist:       s.Persistence,
		Messenger:     s.engine,
		Systree:       s.sysTree,
		DefaultExpiry: expiry,
		OfflineQoS0:   s.MQTT.Options.OfflineQoS0,
		AllowReplace:  s.MQTT.Options.AllowReplace,
		MaxQueued:     s.MQTT.Sessions.MaxQueued,
		MaxSessions:   s.MQTT.Options.MaxSessions,
	}

	if s.sessionsMgr, err = clients.NewManager(mConfig); err != nil {
		s.log.Errorf("cannot create client manager")
		return nil, err
	}

	s.connConfig = connection.Config{
		Sessions: s.sessionsMgr,
		Engine:   s.engine,
		Auth:     s.Auth,
	}

	s.connOpts = append(s.connOpts, connection.ForceKeepAlive(s.MQTT.KeepAlive.Force))

	if s.MQTT.KeepAlive.Period > 0 {
		s.connOpts = append(s.connOpts, connection.KeepAlive(uint16(s.MQTT.KeepAlive.Period)))
	}

	if s.MQTT.Options.ConnectTimeout > 0 {
		s.connOpts = append(s.connOpts,
			connection.ConnectTimeout(time.Duration(s.MQTT.Options.ConnectTimeout)*time.Second))
	}

	for _, msg := range static {
		if err = s.engine.Publish(msg); err != nil {
			return nil, err
		}
	}

	if len(dynamic) > 0 {
		interval := time.Duration(s.MQTT.Systree.UpdateInterval) * time.Second
		if interval <= 0 {
			interval = 10 * time.Second
		}

		s.systreeDone.Add(1)
		go s.systreeUpdater(interval, dynamic)
	}

	return s, nil
}

func (s *server) capabilities() *systree.Capabilities {
	return &systree.Capabilities{
		SupportedVersions:             []packet.ProtocolVersion{packet.ProtocolV31, packet.ProtocolV311},
		MaxQoS:                        packet.QosType(s.MQTT.Options.MaxQoS).Desc(),
		MaxSessions:                   uint64(s.MQTT.Options.MaxSessions),
		ServerKeepAlive:               uint16(s.MQTT.KeepAlive.Period),
		RetainAvailable:               true,
		WildcardSubscriptionAvailable: true,
	}
}

// systreeUpdater republishes dynamic $SYS values until shutdown
func (s *server) systreeUpdater(interval time.Duration, values []systree.DynamicValue) {
	defer s.systreeDone.Done()

	publish := func() {
		for _, v := range values {
			if err := s.engine.Publish(v.Publish()); err != nil {
				s.log.Errorw("systree update", "topic", v.Topic(), "error", err)
			}
		}
	}

	publish()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			publish()
		case <-s.quit:
			return
		}
	}
}

// Publish message on behalf of the server
func (s *server) Publish(msg *packet.Publish) error {
	return s.engine.Publish(msg)
}

// Alive ...
func (s *server) Alive() error {
	select {
	case <-s.quit:
		return ErrShuttingDown
	default:
		return nil
	}
}

// ListenAndServe start listener
func (s *server) ListenAndServe(config interface{}) (transport.Provider, error) {
	if err := s.Alive(); err != nil {
		return nil, err
	}

	var l transport.Provider
	var err error

	switch c := config.(type) {
	case *transport.Config:
		tc := *c
		s.bindListener(&tc)
		l, err = transport.NewTCP(&tc)
	case *transport.ConfigWS:
		wc := *c
		s.bindListener(&wc.Config)
		l, err = transport.NewWS(&wc)
	default:
		return nil, ErrInvalidListenerType
	}

	if err != nil {
		return nil, err
	}

	s.lock.Lock()
	defer s.lock.Unlock()

	id := l.Protocol() + "://" + l.Addr().String()

	if _, ok := s.transports.list[id]; ok {
		_ = l.Close()
		return nil, ErrTransportAlreadyExists
	}

	s.transports.list[id] = l

	if s.Health != nil {
		addr := l.Addr().String()
		e := s.Health.AddReadinessCheck("listener:"+id, func() error {
			if e := s.Alive(); e != nil {
				return e
			}

			return healthcheck.TCPDialCheck(addr, 1*time.Second)()
		})
		if e != nil {
			s.log.Errorw("add readiness check", "address", id, "error", e)
		}
	}

	s.transports.group.Go(func() error {
		s.TransportStatus(id, "started")

		status := "stopped"

		err := l.Serve()
		if err != nil {
			status = err.Error()
		}

		s.TransportStatus(id, status)

		return err
	})

	s.log.Infow("listener started", "address", id)

	return l, nil
}

func (s *server) bindListener(c *transport.Config) {
	c.Handler = s.handleConnection
	c.Metric = s.sysTree.Metric()

	if c.Limiter == nil {
		c.Limiter = s.AcceptLimiter
	}
}

// handleConnection is for the broker to handle an incoming connection from a client
func (s *server) handleConnection(conn transport.Conn) {
	c, err := connection.New(&s.connConfig, conn, s.connOpts...)
	if err != nil {
		s.log.Errorw("Couldn't create connection", "error", err)
		conn.Close() // nolint: errcheck
		return
	}

	s.lock.Lock()
	if s.Alive() != nil {
		s.lock.Unlock()
		conn.Close() // nolint: errcheck
		return
	}
	s.conns[c] = struct{}{}
	s.lock.Unlock()

	c.Run()

	s.lock.Lock()
	delete(s.conns, c)
	s.lock.Unlock()
}

// Shutdown server
func (s *server) Shutdown() error {
	err := ErrShuttingDown

	// By closing the quit channel, we are telling the server to stop accepting new
	// connection.
	s.onClose.Do(func() {
		err = nil

		s.lock.Lock()
		close(s.quit)

		// We then close all listeners, which will force Accept() to return if it's
		// blocked waiting for new connections.
		for id, l := range s.transports.list {
			if e := l.Close(); e != nil {
				s.log.Errorw("close listener", "address", id, "error", e)
			}

			if s.Health != nil {
				if e := s.Health.RemoveReadinessCheck("listener:" + id); e != nil {
					s.log.Errorw("remove readiness check", "address", id, "error", e)
				}
			}
		}

		conns := make([]*connection.Type, 0, len(s.conns))
		for c := range s.conns {
			conns = append(conns, c)
		}
		s.lock.Unlock()

		for _, c := range conns {
			c.Stop()
		}

		// Wait all of listeners has finished
		if e := s.transports.group.Wait(); e != nil {
			s.log.Errorw("listener", "error", e)
		}

		s.systreeDone.Wait()

		if e := s.sessionsMgr.Shutdown(); e != nil {
			s.log.Errorw("stop session manager", "error", e)
			err = e
		}

		if e := s.topicsMgr.Close(); e != nil {
			s.log.Errorw("stop topics manager", "error", e)
		}
	})

	return err
}
