package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"cravebiz/internal/handlers"
	"cravebiz/internal/identity"
	"cravebiz/internal/jobs/background"
	"cravebiz/internal/logger"
	"cravebiz/internal/middleware"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 15 * time.Second

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the recurrence scheduler and the ops HTTP server",
	Long: `Starts the background scheduler that fires due recurring invoice
templates every RECURRENCE_INTERVAL, and an HTTP server on HTTP_PORT with
health checks and authenticated job endpoints.

Several workers may run against one database; the Redis lock ensures only
one of them fires templates at a time.`,
	Example: `  # Run with settings from .env
  cravebiz worker

  # Fire every five minutes
  RECURRENCE_INTERVAL=5m cravebiz worker`,
	RunE: runWorker,
}

func init() {
	rootCmd.AddCommand(workerCmd)
	workerCmd.Flags().Duration("run-timeout", 0, "Upper bound for one recurrence run (default: the interval)")
}

func runWorker(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("worker")
	runTimeout, _ := cmd.Flags().GetDuration("run-timeout")

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	verifier, err := newVerifier(log)
	if err != nil {
		return err
	}
	defer verifier.Close()

	scheduler, err := background.NewJobScheduler(a.recurrence(), cfg.Recurrence.Interval, runTimeout, logger.WithComponent("scheduler"))
	if err != nil {
		return fmt.Errorf("create scheduler: %w", err)
	}
	scheduler.Start()
	defer func() {
		if err := scheduler.Stop(); err != nil {
			log.Warn().Err(err).Msg("stop scheduler")
		}
	}()

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	middleware.Standard(e, version, logger.WithComponent("http"))

	health := handlers.NewHealthHandlers(a.pool, a.cache, a.logos, version)
	handlers.RegisterRoutes(e, health, handlers.NewJobHandlers(scheduler, logger.WithComponent("jobs")), verifier)

	errCh := make(chan error, 1)
	go func() {
		addr := ":" + cfg.HTTPPort
		log.Info().Str("addr", addr).Str("version", version).Msg("ops server listening")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("ops server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("ops server shutdown")
	}
	log.Info().Msg("worker stopped")
	return nil
}

// newVerifier prefers the shared secret and falls back to the JWKS endpoint.
func newVerifier(log zerolog.Logger) (*identity.Verifier, error) {
	if cfg.Auth.JWTSecret != "" {
		return identity.NewHMACVerifier(cfg.Auth.JWTSecret), nil
	}
	v, err := identity.NewJWKSVerifier(cfg.Auth.JWKSURL, logger.WithComponent("identity"))
	if err != nil {
		return nil, fmt.Errorf("load jwks: %w", err)
	}
	log.Info().Str("jwks_url", cfg.Auth.JWKSURL).Msg("verifying tokens against jwks")
	return v, nil
}
