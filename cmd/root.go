// Package cmd holds the wrms command line.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"wp-fleet-manager/config"
	"wp-fleet-manager/store"
	"wp-fleet-manager/utils"
)

var (
	// Version is set via ldflags during build.
	Version = "dev"

	configPath string
)

var rootCmd = &cobra.Command{
	Use:   "wrms",
	Short: "wrms - manage a fleet of WordPress sites",
	Long: `wrms is the backend of the WordPress fleet dashboard. It talks to the
companion plugin on every managed site to read status, list pending updates,
and apply them inside a maintenance window.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to the YAML config file")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(userCmd)
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// setup loads config, installs the logger, and opens the migrated store.
func setup() (*config.Config, *store.Store, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, nil, err
	}
	if _, err := utils.InitLogger(utils.LogConfig{Dir: cfg.Log.Dir, Level: cfg.Log.Level, Tee: cfg.Log.Tee}); err != nil {
		return nil, nil, fmt.Errorf("failed to init logger: %w", err)
	}
	st, err := store.Open(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return nil, nil, err
	}
	return cfg, st, nil
}
