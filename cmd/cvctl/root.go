package main

import (
	"fmt"

	"github.com/cvbank/cvbank-backend/pkg/config"
	"github.com/cvbank/cvbank-backend/pkg/logger"
	"github.com/spf13/cobra"
)

const app = "cvctl"

var (
	cfg *config.Config
	log *logger.Logger

	rootCmd = &cobra.Command{
		Use:          app,
		Short:        "cvctl manages the CV bank database, storage and AI provider",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cfg, err = config.Load("cv-service")
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			log = logger.New(app, cfg.Server.Environment)
			return log.SetLevel(cfg.Server.LogLevel)
		},
	}
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}
