// mqcored runs MQTT broker configured from yaml file
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/troian/healthcheck"
	"go.uber.org/zap"

	"github.com/VolantMQ/mqcore/auth"
	"github.com/VolantMQ/mqcore/configuration"
	"github.com/VolantMQ/mqcore/persistence"
	"github.com/VolantMQ/mqcore/server"
)

// these are provided at compile time
var (
	// GitCommit SHA hash
	GitCommit string

	// BuildDate build date
	BuildDate string

	// Version application version
	Version string
)

func init() {
	if Version == "" {
		Version = "UNKNOWN"
	}

	if BuildDate == "" {
		BuildDate = "UNKNOWN"
	}
}

func newRootCmd() *cobra.Command {
	var configFile string

	cmd := &cobra.Command{
		Use:           "mqcored",
		Short:         "MQTT 3.1/3.1.1 broker",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if configFile == "" {
				configFile = configuration.ConfigFile()
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return run(ctx, configFile)
		},
	}

	cmd.Flags().StringVarP(&configFile, "config", "c", "",
		"path to yaml config. Overrides "+configuration.EnvConfigFile+" environment variable")

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Printf("version: %s\ncommit : %s\ndate   : %s\n", Version, GitCommit, BuildDate)
		},
	})

	return cmd
}

// run blocks until ctx cancelled or any listener failed to start
func run(ctx context.Context, configFile string) error {
	config, err := configuration.ReadConfig(configFile)
	if err != nil {
		return err
	}

	if err = configuration.ConfigureLoggers(&config.System.Log); err != nil {
		return errors.Wrap(err, "configure loggers")
	}

	logger := configuration.GetLogger()

	logger.Infow("starting service...", "version", Version, "commit", GitCommit, "date", BuildDate)

	persist, err := persistence.FromConfig(&config.Persistence)
	if err != nil {
		return errors.Wrap(err, "persistence")
	}

	defer func() {
		if e := persist.Shutdown(); e != nil {
			logger.Error("shutdown persistence", zap.Error(e))
		}
	}()

	authMgr, err := auth.FromConfig(&config.Auth)
	if err != nil {
		return errors.Wrap(err, "auth")
	}

	listeners, err := loadListeners(&config.Listeners)
	if err != nil {
		return errors.Wrap(err, "listeners")
	}

	if len(listeners) == 0 {
		return errors.New("no mqtt listeners")
	}

	health := healthcheck.NewHandler()

	_ = health.AddReadinessCheck("persistence", func() error {
		pctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return persist.Ping(pctx)
	})

	srv, err := server.NewServer(server.Config{
		MQTT:        config.Mqtt,
		Persistence: persist,
		Auth:        authMgr,
		Health:      health,
		TransportStatus: func(id string, status string) {
			logger.Infow("listener state", "id", id, "status", status)
		},
		Version: Version,
	})
	if err != nil {
		return errors.Wrap(err, "server create")
	}

	defer func() {
		if e := srv.Shutdown(); e != nil {
			logger.Error("shutdown server", zap.Error(e))
		}
	}()

	_ = health.AddLivenessCheck("server", srv.Alive)

	var httpSrv *http.Server

	if len(config.Health.Address) > 0 {
		httpSrv = &http.Server{
			Addr:              config.Health.Address,
			Handler:           health,
			ReadHeaderTimeout: 5 * time.Second,
		}

		go func() {
			logger.Info("starting health server on " + httpSrv.Addr)
			if e := httpSrv.ListenAndServe(); e != nil && !errors.Is(e, http.ErrServerClosed) {
				logger.Error("health server", zap.Error(e))
			}
		}()

		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = httpSrv.Shutdown(sctx)
		}()
	}

	logger.Info("MQTT starting listeners")
	for _, l := range listeners {
		if _, err = srv.ListenAndServe(l); err != nil {
			return errors.Wrap(err, "listen and serve")
		}
	}

	<-ctx.Done()
	logger.Info("service received signal: ", ctx.Err().Error())

	return nil
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		configuration.GetLogger().Error(err.Error())
		os.Exit(1)
	}
}
