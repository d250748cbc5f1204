package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nivaasika/nivaasika-engine/pkg/database"
	"github.com/nivaasika/nivaasika-engine/pkg/logging"
)

var migrateSteps int

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage the database schema",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		return migrateUp()
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		sqlDB, err := database.OpenSQL(cfg.Database.ConnectionString())
		if err != nil {
			return err
		}
		defer sqlDB.Close()
		return database.RollbackMigrations(sqlDB, migrateSteps, logger)
	},
}

func init() {
	migrateDownCmd.Flags().IntVar(&migrateSteps, "steps", 1, "number of migrations to roll back")
	migrateCmd.AddCommand(migrateUpCmd, migrateDownCmd)
	rootCmd.AddCommand(migrateCmd)
}

func migrateUp() error {
	sqlDB, err := database.OpenSQL(cfg.Database.ConnectionString())
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	if err := database.RunMigrations(sqlDB, logger); err != nil {
		return fmt.Errorf("%s", logging.SanitizeError(err))
	}
	return nil
}
