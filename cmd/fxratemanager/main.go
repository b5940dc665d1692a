package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/bher20/fxratemanager/internal/app"
	"github.com/bher20/fxratemanager/internal/config"
	"github.com/bher20/fxratemanager/internal/logging"
)

var configPath string

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "fxratemanager",
		Short:         "Exchange rates triangulated from central bank feeds",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML config file (default $FXRATES_CONFIG)")

	root.AddCommand(
		newServeCmd(),
		newRateCmd(),
		newRefreshCmd(),
		newResourcesCmd(),
		newMigrateCmd(),
		newTokenCmd(),
	)
	return root
}

// setup loads the configuration and the process logger.
func setup() (config.Config, *zap.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return config.Config{}, nil, err
	}
	log, err := logging.New(logging.Config{Format: cfg.Log.Format, Level: cfg.Log.Level})
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, log, nil
}

// withApp builds the application, runs fn and tears the application down.
func withApp(ctx context.Context, fn func(*app.App) error) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	defer log.Sync()

	a, err := app.New(ctx, app.Options{Config: cfg, Logger: log})
	if err != nil {
		return err
	}
	runErr := fn(a)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := a.Close(shutdownCtx); err != nil {
		log.Warn("shutdown incomplete", zap.Error(err))
	}
	return runErr
}
