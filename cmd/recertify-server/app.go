package main

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/BrandonDHaskell/Recertify/server/internal/config"
	"github.com/BrandonDHaskell/Recertify/server/internal/db"
	"github.com/BrandonDHaskell/Recertify/server/internal/metrics"
	"github.com/BrandonDHaskell/Recertify/server/internal/recertify/audit"
	"github.com/BrandonDHaskell/Recertify/server/internal/recertify/delivery"
	"github.com/BrandonDHaskell/Recertify/server/internal/recertify/lock"
	"github.com/BrandonDHaskell/Recertify/server/internal/recertify/service"
	"github.com/BrandonDHaskell/Recertify/server/internal/recertify/source"
	"github.com/BrandonDHaskell/Recertify/server/internal/recertify/store"
	"github.com/BrandonDHaskell/Recertify/server/internal/recertify/store/memory"
	"github.com/BrandonDHaskell/Recertify/server/internal/recertify/store/sqlite"
)

// app is the wired dependency graph shared by serve and scan.
type app struct {
	cfg     config.Config
	logger  *zap.Logger
	metrics *metrics.Metrics

	store          store.EntitlementStore
	selector       *service.DueReviewSelector
	dispatcher     *service.NotificationDispatcher
	trigger        *service.ReviewTrigger
	queries        *service.QueryService
	certifications *service.CertificationService

	closers []func()
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// buildApp opens the store, loads entitlements and wires the services.  reg
// may be nil to use the default Prometheus registerer.
func buildApp(ctx context.Context, cfg config.Config, logger *zap.Logger, reg prometheus.Registerer) (*app, error) {
	a := &app{cfg: cfg, logger: logger, metrics: metrics.New(reg)}

	if err := a.openStore(ctx); err != nil {
		a.Close()
		return nil, err
	}

	sender, err := a.newSender()
	if err != nil {
		a.Close()
		return nil, err
	}

	var runLock service.RunLock
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		a.closers = append(a.closers, func() { _ = rdb.Close() })
		runLock = lock.NewRedisRunLock(rdb, lock.DefaultKey, cfg.RunLockTTL, logger)
	}

	a.selector = service.NewDueReviewSelector(a.store, cfg.Lookahead, nil, logger)
	a.dispatcher = service.NewNotificationDispatcher(sender, cfg.ReviewBaseURL, logger, a.metrics)
	a.trigger = service.NewReviewTrigger(a.selector, a.dispatcher, service.TriggerConfig{
		Interval:   cfg.ReviewInterval,
		RunOnStart: cfg.RunOnStart,
		Lock:       runLock,
	}, nil, logger, a.metrics)
	a.queries = service.NewQueryService(a.store, cfg.Lookahead, nil)
	a.certifications = service.NewCertificationService(a.store, audit.NewZapLogger(logger), nil, logger, a.metrics)
	return a, nil
}

func (a *app) openStore(ctx context.Context) error {
	switch a.cfg.Store {
	case "sqlite":
		conn, err := db.Open(ctx, db.Config{Path: a.cfg.DBPath, Env: a.cfg.Env})
		if err != nil {
			return err
		}
		writer := db.NewWorker(conn)
		a.closers = append(a.closers, func() { _ = conn.Close() }, writer.Close)
		a.store = sqlite.NewEntitlementStore(conn, writer)
		return a.loadEntitlements(ctx, conn)
	default:
		a.store = memory.NewEntitlementStore()
		return a.loadEntitlements(ctx, nil)
	}
}

// loadEntitlements ingests the configured source file.  Without one, dev
// gets the sample data set; a SQLite database is only seeded while empty.
func (a *app) loadEntitlements(ctx context.Context, conn *sql.DB) error {
	if a.cfg.SourceFile != "" {
		recs, err := source.LoadFile(a.cfg.SourceFile)
		if err != nil {
			return err
		}
		n, err := service.Ingest(ctx, a.store, recs, nil, a.logger)
		if err != nil {
			return fmt.Errorf("ingest %s: %w", a.cfg.SourceFile, err)
		}
		a.logger.Info("entitlements loaded", zap.String("source", a.cfg.SourceFile), zap.Int("records", len(recs)), zap.Int("scheduled", n))
		return nil
	}

	if a.cfg.IsProduction() {
		a.logger.Warn("no entitlement source configured")
		return nil
	}

	seed := func(ctx context.Context) error {
		n, err := service.Ingest(ctx, a.store, source.Sample(), nil, a.logger)
		if err != nil {
			return err
		}
		a.logger.Info("sample entitlements loaded", zap.Int("scheduled", n))
		return nil
	}
	if conn == nil {
		return seed(ctx)
	}
	_, err := db.SeedDev(ctx, conn, db.SeedDevOptions{Seed: seed})
	return err
}

// newSender builds the delivery chain for cfg.Delivery.  Every mode also
// writes a log line per notification.
func (a *app) newSender() (delivery.Sender, error) {
	logSender := delivery.NewLogSender(a.logger)

	switch a.cfg.Delivery {
	case "queue":
		client := asynq.NewClient(asynq.RedisClientOpt{Addr: a.cfg.RedisAddr})
		a.closers = append(a.closers, func() { _ = client.Close() })
		return delivery.NewMultiSender(logSender, delivery.NewQueueSender(client)), nil
	case "log":
		return logSender, nil
	}

	direct, err := a.newDirectSender()
	if err != nil {
		return nil, err
	}
	return delivery.NewMultiSender(logSender, direct), nil
}

// newDirectSender builds the sender that reaches the reviewer: webhook or
// discord, falling back to the log.  The queue worker uses it too.
func (a *app) newDirectSender() (delivery.Sender, error) {
	switch {
	case a.cfg.Delivery == "webhook" || (a.cfg.Delivery == "queue" && a.cfg.WebhookURL != ""):
		return delivery.NewWebhookSender(delivery.WebhookConfig{
			URL:           a.cfg.WebhookURL,
			AuthToken:     a.cfg.WebhookToken,
			Timeout:       10 * time.Second,
			RatePerMinute: a.cfg.WebhookRatePerMinute,
		}), nil
	case a.cfg.DiscordToken != "" && a.cfg.DiscordChannelID != "":
		session, err := delivery.NewDiscordSession(a.cfg.DiscordToken)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() { _ = session.Close() })
		return delivery.NewDiscordSender(session, a.cfg.DiscordChannelID), nil
	}
	return delivery.NewLogSender(a.logger), nil
}
