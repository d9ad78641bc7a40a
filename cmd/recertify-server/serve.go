package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BrandonDHaskell/Recertify/server/internal/grpcapi"
	"github.com/BrandonDHaskell/Recertify/server/internal/httpapi"
)

func newServeCmd(setup setupFn) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the periodic review trigger",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := buildApp(ctx, cfg, logger, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			return serve(ctx, a)
		},
	}
}

func serve(ctx context.Context, a *app) error {
	logger := a.logger

	srv := httpapi.NewServer(httpapi.Dependencies{
		Logger:             logger,
		Addr:               a.cfg.HTTPAddr,
		Production:         a.cfg.IsProduction(),
		RateLimitPerMinute: a.cfg.RateLimitPerMinute,
		Queries:            a.queries,
		Certifications:     a.certifications,
		Trigger:            a.trigger,
		Metrics:            promhttp.Handler(),
	})

	var grpcSrv *grpcapi.Server
	if a.cfg.GRPCAddr != "" {
		grpcSrv = grpcapi.NewServer(a.cfg.GRPCAddr, logger)
	}

	g, gctx := errgroup.WithContext(ctx)

	a.trigger.Start(gctx)

	g.Go(func() error {
		logger.Info("listening", zap.String("addr", a.cfg.HTTPAddr), zap.String("env", a.cfg.Env))
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if grpcSrv != nil {
		g.Go(grpcSrv.Start)
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if grpcSrv != nil {
			_ = grpcSrv.Shutdown(shutdownCtx)
		}
		err := srv.Shutdown(shutdownCtx)
		a.trigger.Stop()
		return err
	})

	return g.Wait()
}
