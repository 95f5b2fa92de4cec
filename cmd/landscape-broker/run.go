package main

import (
	"context"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/canonical/landscape-client-sub002/cli"
	"github.com/canonical/landscape-client-sub002/config"
	"github.com/canonical/landscape-client-sub002/errors"
	"github.com/canonical/landscape-client-sub002/log"
)

// metricsListenAddr is loopback-only: the metrics endpoint is meant for a
// co-located scraper, never for exposure beyond the host.
const metricsListenAddr = "127.0.0.1:8813"

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the message exchange loop until terminated",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			logger := newLogger(cfg)
			b, err := newBroker(cfg, logger)
			if err != nil {
				return err
			}

			ln, err := net.Listen("tcp", metricsListenAddr)
			if err != nil {
				return errors.Wrap(err, "run: failed to bind metrics listener")
			}
			srv := &http.Server{Handler: b.metrics.MetricsHandler()}
			go func() {
				if serveErr := srv.Serve(ln); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
					logger.Errorf("metrics server stopped unexpectedly: %v", serveErr)
				}
			}()
			defer func() { _ = srv.Close() }()

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			signals := cli.SignalsHandler([]os.Signal{syscall.SIGINT, syscall.SIGTERM})
			go func() {
				<-signals
				logger.Info("signal received, shutting down")
				b.reactor.Stop()
				cancel()
			}()

			b.start()
			if err := b.reactor.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
}

func newLogger(cfg config.Config) log.Logger {
	opts := log.ZeroOptions{}
	if cfg.LogDir != "" {
		if err := os.MkdirAll(cfg.LogDir, 0o755); err == nil {
			if f, err := os.OpenFile(filepath.Join(cfg.LogDir, "broker.log"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644); err == nil {
				opts.Sink = f
			}
		}
	}
	return log.WithZero(opts)
}
