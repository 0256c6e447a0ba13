package main

import (
	"database/sql"
	"fmt"

	"github.com/hairizuanbinnoorazman/cua-agent/taskrun"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run history database migration commands",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := LoadConfig(configFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		if err := runMigration(cfg, taskrun.MigrateUp); err != nil {
			return err
		}

		fmt.Println("Migrations applied successfully")
		return nil
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Rollback the most recent migration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := LoadConfig(configFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		if err := runMigration(cfg, taskrun.MigrateDown); err != nil {
			return err
		}

		fmt.Println("Migration rolled back successfully")
		return nil
	},
}

func init() {
	migrateCmd.AddCommand(migrateUpCmd)
	migrateCmd.AddCommand(migrateDownCmd)

	migrateCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file path")

	rootCmd.AddCommand(migrateCmd)
}

// runMigration connects to the MySQL run history and applies fn to it.
// SQLite history creates its own table on open and has nothing to migrate.
func runMigration(cfg *Config, fn func(*sql.DB) error) error {
	if cfg.History.Driver != taskrun.DriverMySQL {
		return fmt.Errorf("%w: migrations need history.driver %q, got %q", ErrConfiguration, taskrun.DriverMySQL, cfg.History.Driver)
	}
	if cfg.History.DSN == "" {
		return fmt.Errorf("%w: history.dsn is required for mysql history", ErrConfiguration)
	}

	db, err := taskrun.Open(taskrun.DBConfig{
		Driver:       cfg.History.Driver,
		DSN:          cfg.History.DSN,
		MaxOpenConns: cfg.History.MaxOpenConns,
		MaxIdleConns: cfg.History.MaxIdleConns,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get database instance: %w", err)
	}
	defer sqlDB.Close()

	return fn(sqlDB)
}
