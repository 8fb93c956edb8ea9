package main

import (
	"database/sql"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/coralcp/dbaas/config"
	"github.com/coralcp/dbaas/db"
	"github.com/coralcp/dbaas/logging"
	"github.com/coralcp/dbaas/migrations"
)

func newMigrateCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or revert the instances database schema",
	}
	root.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigration(migrations.Up)
		},
	})
	root.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Revert the most recently applied migration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigration(migrations.Down)
		},
	})
	return root
}

func runMigration(apply func(*sql.DB, *zap.Logger) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync()

	gdb, err := db.New(logger, cfg.DataRoot+"/instances.db")
	if err != nil {
		return err
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		return err
	}
	return apply(sqlDB, logger)
}
