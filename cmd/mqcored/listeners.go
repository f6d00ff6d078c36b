package main

import (
	"net"
	"sort"

	"github.com/pkg/errors"

	"github.com/VolantMQ/mqcore/configuration"
	"github.com/VolantMQ/mqcore/transport"
)

// loadListeners converts listeners section into transport configs accepted by server.ListenAndServe
func loadListeners(lCfg *configuration.ListenersConfig) ([]interface{}, error) {
	var listeners []interface{}

	limiter := transport.NewLimiter(lCfg.AcceptRate, lCfg.AcceptBurst)

	// stable order keeps startup log readable
	names := make([]string, 0, len(lCfg.MQTT))
	for name := range lCfg.MQTT {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		ports := lCfg.MQTT[name]

		keys := make([]string, 0, len(ports))
		for port := range ports {
			keys = append(keys, port)
		}
		sort.Strings(keys)

		for _, port := range keys {
			cfg := ports[port]

			host := lCfg.DefaultAddr
			if len(cfg.Host) > 0 {
				host = cfg.Host
			}

			tCfg := transport.Config{
				Addr:    net.JoinHostPort(host, port),
				Limiter: limiter,
			}

			secure := name == "ssl" || name == "wss"

			if secure || len(cfg.TLS.Cert) > 0 {
				tlsConfig, err := cfg.TLS.LoadConfig()
				if err != nil {
					return nil, errors.Wrapf(err, "listeners.mqtt.%s.%s", name, port)
				}

				tCfg.TLS = tlsConfig
			}

			switch name {
			case "tcp", "ssl":
				listeners = append(listeners, &tCfg)
			case "ws", "wss":
				listeners = append(listeners, &transport.ConfigWS{
					Config: tCfg,
					Path:   cfg.Path,
				})
			default:
				return nil, errors.Errorf("unknown mqtt listener type %s", name)
			}
		}
	}

	return listeners, nil
}
