package transport

import (
	"context"
	"crypto/tls"
	"net"
	"net/http"
	"regexp"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

var subProtocolRegexp = regexp.MustCompile(`^mqtt(([vV])(3.1|3.1.1|5.0))?$`)

// ConfigWS listener object for websocket server
type ConfigWS struct {
	Config
	// Path websocket endpoint served on. Defaults to "/"
	Path string
}

type ws struct {
	baseConfig
	http     *http.Server
	up       websocket.Upgrader
	listener net.Listener
}

// NewWS create new websocket transport
func NewWS(config *ConfigWS) (Provider, error) {
	if config.Handler == nil {
		return nil, errors.New("transport: handler required")
	}

	protocol := "ws"
	if config.TLS != nil {
		protocol = "wss"
	}

	ln, err := net.Listen("tcp", config.Addr)
	if err != nil {
		return nil, errors.Wrap(err, "transport: listen "+config.Addr)
	}

	if config.TLS != nil {
		ln = tls.NewListener(ln, config.TLS)
	}

	l := &ws{
		baseConfig: newBase(&config.Config, protocol),
		listener:   ln,
		up: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(*http.Request) bool {
				return true
			},
		},
	}

	path := config.Path
	if len(path) == 0 {
		path = "/"
	} else if path[0] != '/' {
		path = "/" + path
	}

	mux := http.NewServeMux()
	mux.Handle(path, l)

	l.http = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return l, nil
}

func (l *ws) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var proto string
	for _, p := range websocket.Subprotocols(r) {
		if subProtocolRegexp.MatchString(p) {
			proto = p
			break
		}
	}

	if proto == "" {
		http.Error(w, "unsupported \"Sec-WebSocket-Protocol\"", http.StatusBadRequest)
		return
	}

	if l.stopped() {
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	}

	// Upgrader has no Subprotocols set so negotiated value is taken from response header
	cn, err := l.up.Upgrade(w, r, http.Header{"Sec-Websocket-Protocol": []string{proto}})
	if err != nil {
		l.log.Error("Upgrade", zap.Error(err))
		return
	}

	l.handleConnection(NewWebSocketConn(cn))
}

func (l *ws) Addr() net.Addr {
	return l.listener.Addr()
}

// Serve ...
func (l *ws) Serve() error {
	defer l.onConnection.Wait()

	if err := l.http.Serve(l.listener); err != nil && err != http.ErrServerClosed {
		return err
	}

	return nil
}

// Close websocket listener
func (l *ws) Close() error {
	if !l.stop() {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return l.http.Shutdown(ctx)
}
