package main

import (
	"task-notify/internal/database"

	"github.com/spf13/cobra"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadRuntime()
			if err != nil {
				return err
			}
			defer log.Sync()

			db, err := database.NewConnection(cfg.Database, log.Named("db"))
			if err != nil {
				return err
			}
			defer database.Close(db)

			log.Info("Database migration completed successfully")
			return nil
		},
	}
}
