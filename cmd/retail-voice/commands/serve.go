package commands

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/teslashibe/go-retail-voice/internal/log"
	"github.com/teslashibe/go-retail-voice/pkg/catalog"
	"github.com/teslashibe/go-retail-voice/pkg/web"
)

const shutdownTimeout = 15 * time.Second

var listenAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP and websocket API",
	Long: `Start the voice assistant API.

Endpoints:
  POST /voice      multipart/form-data with an "audio" file
  POST /text       JSON {"text": "...", "sessionId": "..."}
  GET  /health     liveness
  GET  /metrics    Prometheus metrics
  GET  /ws/turns   live feed of completed turns
  GET  /ws/voice   one conversation per connection`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&listenAddr, "addr", "", "Listen address (overrides config, default :5000)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(os.Stdout)
	if err != nil {
		return err
	}
	if listenAddr != "" {
		cfg.ListenAddr = listenAddr
	}
	logger := log.L()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	svc, err := newService(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		svc.close(closeCtx)
	}()

	if cfg.ValidateToolsOnStart {
		vctx, cancel := context.WithTimeout(ctx, cfg.HealthCheckTimeout())
		err := catalog.ValidateAttributeKeys(vctx, svc.catalog)
		cancel()
		var keyErr *catalog.KeyTableError
		switch {
		case errors.As(err, &keyErr):
			return err
		case err != nil:
			// The tool server may come up after us; requests report it.
			logger.Warn("tool server not reachable at startup", "endpoint", svc.catalog.Endpoint(), "error", err)
		default:
			logger.Info("attribute key table validated", "endpoint", svc.catalog.Endpoint())
		}
	}

	srv := web.NewServer(web.Config{
		Version:  Version,
		Runner:   svc.orchestrator,
		Sessions: svc.sessions,
		Gatherer: svc.registry,
		Logger:   logger,
	})

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start(ctx, cfg.ListenAddr) }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", "error", err)
	}
	return nil
}
