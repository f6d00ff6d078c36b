package transport

import (
	"crypto/tls"
	"net"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/VolantMQ/mqcore/configuration"
	"github.com/VolantMQ/mqcore/systree"
)

// Handler invoked in own goroutine for every accepted connection.
// Connection is owned by handler once called
type Handler func(Conn)

// Config listener
type Config struct {
	// Addr to listen on in host:port form
	Addr    string
	TLS     *tls.Config
	Handler Handler
	// Metric optional bytes and packets statistic
	Metric systree.Metric
	// Limiter optional accept rate limiter. Connections above rate are closed immediately
	Limiter *rate.Limiter
}

// Provider is a network listener
type Provider interface {
	Protocol() string
	Addr() net.Addr
	// Serve blocks until Close called and every handler returned
	Serve() error
	// Close stops accepting new connections
	Close() error
}

// NewLimiter allocate accept limiter. Returns nil if limit is not positive
func NewLimiter(perSecond float64, burst int) *rate.Limiter {
	if perSecond <= 0 {
		return nil
	}

	if burst <= 0 {
		burst = 1
	}

	return rate.NewLimiter(rate.Limit(perSecond), burst)
}

type baseConfig struct {
	Config
	protocol     string
	quit         chan struct{}
	log          *zap.Logger
	lock         sync.Mutex
	onConnection sync.WaitGroup
	onceStop     sync.Once
}

func newBase(c *Config, protocol string) baseConfig {
	if c.Metric == nil {
		c.Metric = systree.NewNop().Metric()
	}

	return baseConfig{
		Config:   *c,
		protocol: protocol,
		quit:     make(chan struct{}),
		log:      configuration.GetLogger().Desugar().Named("listener: " + protocol + "://" + c.Addr),
	}
}

func (b *baseConfig) Protocol() string {
	return b.protocol
}

// admit checks accept rate
func (b *baseConfig) admit() bool {
	return b.Limiter == nil || b.Limiter.Allow()
}

func (b *baseConfig) handleConnection(cn net.Conn) {
	if !b.admit() {
		b.log.Warn("Accept rate exceeded, connection dropped",
			zap.String("remote", cn.RemoteAddr().String()))
		cn.Close() // nolint: errcheck
		return
	}

	b.lock.Lock()
	if b.stopped() {
		b.lock.Unlock()
		cn.Close() // nolint: errcheck
		return
	}
	b.onConnection.Add(1)
	b.lock.Unlock()

	go func() {
		defer b.onConnection.Done()
		b.Handler(NewConn(cn, b.Metric))
	}()
}

// stop marks listener stopped. Returns false if already stopped
func (b *baseConfig) stop() bool {
	stopped := false

	b.onceStop.Do(func() {
		b.lock.Lock()
		close(b.quit)
		b.lock.Unlock()
		stopped = true
	})

	return stopped
}

func (b *baseConfig) stopped() bool {
	select {
	case <-b.quit:
		return true
	default:
		return false
	}
}
