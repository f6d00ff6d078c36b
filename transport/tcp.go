package transport

import (
	"crypto/tls"
	"net"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

type tcp struct {
	baseConfig

	listener net.Listener
}

// NewTCP create new tcp transport. Listener is bound immediately,
// TLS is enabled if config carries tls.Config
func NewTCP(config *Config) (Provider, error) {
	if config.Handler == nil {
		return nil, errors.New("transport: handler required")
	}

	protocol := "tcp"
	if config.TLS != nil {
		protocol = "ssl"
	}

	ln, err := net.Listen("tcp", config.Addr)
	if err != nil {
		return nil, errors.Wrap(err, "transport: listen "+config.Addr)
	}

	if config.TLS != nil {
		ln = tls.NewListener(ln, config.TLS)
	}

	return &tcp{
		baseConfig: newBase(config, protocol),
		listener:   ln,
	}, nil
}

func (l *tcp) Addr() net.Addr {
	return l.listener.Addr()
}

// Close tcp listener
func (l *tcp) Close() error {
	if !l.stop() {
		return nil
	}

	return l.listener.Close()
}

// Serve start serving connections
func (l *tcp) Serve() error {
	defer l.onConnection.Wait()

	var tempDelay time.Duration // how long to sleep on accept failure

	for {
		cn, err := l.listener.Accept()
		if err != nil {
			// http://zhen.org/blog/graceful-shutdown-of-go-net-dot-listeners/
			if l.stopped() {
				return nil
			}

			// Borrowed from go1.3.3/src/pkg/net/http/server.go:1699
			if ne, ok := err.(net.Error); ok && ne.Temporary() { // nolint: staticcheck
				if tempDelay == 0 {
					tempDelay = 5 * time.Millisecond
				} else {
					tempDelay *= 2
				}
				if max := 1 * time.Second; tempDelay > max {
					tempDelay = max
				}
				l.log.Error("Couldn't accept connection. Retrying",
					zap.Error(err),
					zap.Duration("retryIn", tempDelay))

				select {
				case <-time.After(tempDelay):
				case <-l.quit:
					return nil
				}
				continue
			}

			return err
		}

		tempDelay = 0
		l.handleConnection(cn)
	}
}
