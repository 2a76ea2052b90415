package main

import (
	"context"
	"errors"
	"fmt"

	"task-notify/internal/auth"
	"task-notify/internal/database"
	"task-notify/internal/models"
	"task-notify/internal/repositories"
	"task-notify/internal/services"
	"task-notify/pkg/logger"

	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

const (
	demoEmail    = "demo@example.com"
	demoPassword = "Demo1234!"
)

func seedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Create a demo user with a few tasks",
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

			tokens := auth.NewTokenManager(cfg.JWT.Secret, cfg.JWT.Issuer, cfg.JWT.ExpirationTime)
			if err := seed(cmd.Context(), db, tokens, log); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "demo user: %s / %s\n", demoEmail, demoPassword)
			return nil
		},
	}
}

func seed(ctx context.Context, db *gorm.DB, tokens *auth.TokenManager, log *logger.Logger) error {
	if ctx == nil {
		ctx = context.Background()
	}
	users := services.NewUserService(repositories.NewUserRepository(db), tokens, log)
	// seeding happens before any listener runs, so there is nobody to notify
	tasks := services.NewTaskService(repositories.NewTaskRepository(db), nil, log)

	user, err := users.Register(ctx, &models.RegisterRequest{Name: "Demo", Email: demoEmail, Password: demoPassword})
	if errors.Is(err, services.ErrUserAlreadyExists) {
		log.Info("Demo user already exists, skipping seed", "email", demoEmail)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to create demo user: %w", err)
	}

	demo := []models.CreateTaskRequest{
		{Title: "Revisar correo", Status: models.TaskStatusDone},
		{Title: "Preparar presentación", Status: models.TaskStatusInProgress},
		{Title: "Comprar pan"},
	}
	for i := range demo {
		if _, err := tasks.Create(ctx, user.ID, &demo[i]); err != nil {
			return fmt.Errorf("failed to create demo task: %w", err)
		}
	}

	log.Info("Database seeded", "userID", user.ID, "tasks", len(demo))
	return nil
}
