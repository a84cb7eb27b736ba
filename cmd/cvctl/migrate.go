package main

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/cvbank/cvbank-backend/pkg/config"
	"github.com/cvbank/cvbank-backend/pkg/database"
	"github.com/spf13/cobra"
)

var errNotPostgres = errors.New("migrations only apply to the postgres driver")

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply or roll back database migrations",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	Args:  cobra.NoArgs,
	RunE: func(_ *cobra.Command, _ []string) error {
		if cfg.Database.Driver != config.DriverPostgres {
			return errNotPostgres
		}
		return database.Migrate(cfg.Database.MigrationURL(), log)
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down [steps]",
	Short: "Roll back migrations (default 1 step)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		if cfg.Database.Driver != config.DriverPostgres {
			return errNotPostgres
		}
		steps := 1
		if len(args) == 1 {
			n, err := strconv.Atoi(args[0])
			if err != nil || n < 1 {
				return fmt.Errorf("steps must be a positive integer, got %q", args[0])
			}
			steps = n
		}
		return database.MigrateDown(cfg.Database.MigrationURL(), steps, log)
	},
}

func init() {
	migrateCmd.AddCommand(migrateUpCmd, migrateDownCmd)
	rootCmd.AddCommand(migrateCmd)
}
