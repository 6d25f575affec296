package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/MrEthical07/shopauth/cart"
	"github.com/MrEthical07/shopauth/external"
	"github.com/MrEthical07/shopauth/httpapi"
	"github.com/MrEthical07/shopauth/metrics/export/otel"
	"github.com/MrEthical07/shopauth/metrics/export/prometheus"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return serve(ctx)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func serve(ctx context.Context) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	a, err := newApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		if err := a.close(closeCtx); err != nil {
			log.Warn("shutdown", zap.Error(err))
		}
	}()

	if err := a.engine.EnsureRoles(ctx); err != nil {
		return fmt.Errorf("seed roles: %w", err)
	}
	if cfg.Admin.Email != "" {
		if _, created, err := a.engine.BootstrapAdmin(ctx, cfg.Admin.Email, cfg.Admin.Password); err != nil {
			log.Error("bootstrap admin failed", zap.Error(err))
		} else if created {
			log.Info("bootstrap admin created", zap.String("email", cfg.Admin.Email))
		}
	}

	carts, err := cart.New(a.redis, a.store, cart.Config{
		KeyPrefix: cfg.Session.RedisPrefix + ":cart",
		TTL:       cfg.Session.IdleTimeout,
	}, log)
	if err != nil {
		return err
	}

	if cfg.Metrics.OTelLogInterval > 0 {
		pipeline, err := otel.NewLogPipeline(a.engine, log, cfg.Metrics.OTelLogInterval)
		if err != nil {
			return fmt.Errorf("otel metrics: %w", err)
		}
		defer func() {
			flushCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
			defer cancel()
			if err := pipeline.Shutdown(flushCtx); err != nil {
				log.Warn("otel metrics shutdown", zap.Error(err))
			}
		}()
		log.Info("otel metrics enabled", zap.Duration("interval", cfg.Metrics.OTelLogInterval))
	}

	handler := httpapi.New(httpapi.Deps{
		Engine:    a.engine,
		Cart:      carts,
		Providers: external.NewRegistry(cfg.External, cfg.App.BaseURL),
		Metrics:   prometheus.New(a.engine).Handler(),
		Logger:    log,
	}).Routes()
	srv := httpapi.NewHTTPServer(cfg.HTTP, handler)

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", zap.String("addr", cfg.HTTP.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
