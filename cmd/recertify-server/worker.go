package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/BrandonDHaskell/Recertify/server/internal/recertify/delivery"
)

func newWorkerCmd(setup setupFn) *cobra.Command {
	var concurrency int

	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Deliver queued reviewer notifications",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			if cfg.RedisAddr == "" {
				return errors.New("worker requires RECERTIFY_REDIS_ADDR")
			}

			a := &app{cfg: cfg, logger: logger}
			defer a.Close()
			sender, err := a.newDirectSender()
			if err != nil {
				return err
			}

			srv := asynq.NewServer(asynq.RedisClientOpt{Addr: cfg.RedisAddr}, asynq.Config{
				Concurrency: concurrency,
				Queues:      map[string]int{delivery.QueueNotifications: 1},
				ErrorHandler: asynq.ErrorHandlerFunc(func(_ context.Context, task *asynq.Task, err error) {
					logger.Error("notification task failed", zap.String("type", task.Type()), zap.Error(err))
				}),
			})

			mux := asynq.NewServeMux()
			delivery.NewTaskHandler(sender).Register(mux)

			logger.Info("worker started", zap.String("redis", cfg.RedisAddr), zap.String("sender", sender.Name()))
			if err := srv.Run(mux); err != nil {
				return fmt.Errorf("asynq worker: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&concurrency, "concurrency", 4, "number of notifications delivered in parallel")
	return cmd
}
