package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/BrandonDHaskell/Recertify/server/internal/config"
	"github.com/BrandonDHaskell/Recertify/server/internal/logging"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var envFile string

	root := &cobra.Command{
		Use:           "recertify-server",
		Short:         "Periodic access-entitlement recertification engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file to read before the environment")

	// setup is shared by every subcommand.
	setup := func() (config.Config, *zap.Logger, error) {
		cfg, err := config.Load(envFile)
		if err != nil {
			return config.Config{}, nil, err
		}
		logger, err := logging.New(cfg.LogFormat, cfg.LogLevel)
		if err != nil {
			return config.Config{}, nil, err
		}
		return cfg, logger, nil
	}

	serve := newServeCmd(setup)
	root.AddCommand(serve, newScanCmd(setup), newWorkerCmd(setup))
	root.RunE = serve.RunE
	return root
}

type setupFn func() (config.Config, *zap.Logger, error)
