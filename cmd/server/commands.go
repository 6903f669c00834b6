package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/TheGojiOG/serverhost/internal/config"
	"github.com/TheGojiOG/serverhost/internal/logging"
)

// NewRootCmd runs the supervisor; `migrate` only prepares the database.
func NewRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "serverhost",
		Short:         "Game server supervisor",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(configPath, serve)
		},
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.yaml (default $CONFIG_PATH or ./configs/config.yaml)")

	root.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(configPath, runMigrations)
		},
	})

	return root
}

// withRuntime loads the configuration and the logger, then runs fn.
func withRuntime(configPath string, fn func(*config.Config, *slog.Logger) error) error {
	if configPath == "" {
		configPath = config.GetConfigPath()
	}
	cfg, err := config.LoadFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, closeLog := logging.New(cfg.Logging)
	defer closeLog.Close()
	logging.RedirectStdLog(logger)

	return fn(cfg, logger)
}

func runMigrations(cfg *config.Config, logger *slog.Logger) error {
	db, err := openDatabase(cfg, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	logger.Info("migrations completed successfully", "database", cfg.Database.Path)
	return nil
}
