// Command sharectl is the maintenance tool for the share store: it rebuilds the
// file backend's index, inspects shares without counting an access, and mints
// bearer tokens for local testing.
package main

import (
	"alcyxob/fitness-share/internal/bootstrap"
	"alcyxob/fitness-share/internal/config"
	"alcyxob/fitness-share/internal/logging"
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var configDir string

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "sharectl",
		Short:         "Maintenance tool for shared workout plans",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configDir, "config", ".", "directory containing config.yaml")

	root.AddCommand(
		newRebuildIndexCmd(),
		newListCmd(),
		newShowCmd(),
		newTokenCmd(),
	)
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// loadConfig reads the config the server would use. The CLI logs to stderr at
// warn level unless the config asks for something quieter or louder.
func loadConfig() (config.Config, *zap.Logger, error) {
	cfg, err := config.LoadConfig(configDir)
	if err != nil {
		return cfg, nil, err
	}
	level := cfg.App.LogLevel
	if level == "" || level == "info" {
		level = "warn"
	}
	logger, _, err := logging.NewLogger(cfg.App.Environment, level)
	if err != nil {
		return cfg, nil, err
	}
	return cfg, logger, nil
}

// withStore opens the configured store, runs fn and closes it again.
func withStore(ctx context.Context, fn func(*bootstrap.Store) error) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	defer logger.Sync()

	store, err := bootstrap.OpenStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(store)
}
