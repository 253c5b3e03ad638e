package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/totegamma/concrnt-identity/internal/config"
	"github.com/totegamma/concrnt-identity/internal/infrastructure/logging"
	"github.com/totegamma/concrnt-identity/internal/infrastructure/providers"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		conf, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		if conf.Database.Driver != "postgres" {
			return fmt.Errorf("migrate requires the postgres database driver, got %q", conf.Database.Driver)
		}

		logger, err := logging.New(conf.Log.Level, conf.Log.Development)
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		db, err := providers.NewDatabase(conf.Database, logger)
		if err != nil {
			return fmt.Errorf("failed to connect database: %w", err)
		}
		if err := providers.MigrateDatabase(db); err != nil {
			return fmt.Errorf("failed to migrate database: %w", err)
		}
		logger.Info("database migrated")
		return nil
	},
}
