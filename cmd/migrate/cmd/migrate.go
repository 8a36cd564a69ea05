package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	"github.com/survivorsoul/soulsongs/internal/config"
	"github.com/survivorsoul/soulsongs/internal/db"
	"github.com/survivorsoul/soulsongs/internal/logger"
)

func UpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDB(cmd.Context(), func(database *sqlx.DB, driver string) error {
				err := db.RunMigrations(database.DB, driver)
				if err != nil {
					return err
				}
				return printVersion(cmd, database, driver)
			})
		},
	}
}

func DownCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "down",
		Short: "Roll back the most recent migration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDB(cmd.Context(), func(database *sqlx.DB, driver string) error {
				err := db.MigrateDown(database.DB, driver)
				if err != nil {
					return err
				}
				return printVersion(cmd, database, driver)
			})
		},
	}
}

func StatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show applied and pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDB(cmd.Context(), func(database *sqlx.DB, driver string) error {
				return db.MigrationStatus(database.DB, driver)
			})
		},
	}
}

// withDB loads config the same way the server does and opens the configured database.
func withDB(ctx context.Context, fn func(database *sqlx.DB, driver string) error) error {
	if ctx == nil {
		ctx = context.Background()
	}

	cfg := config.Load()
	flush := logger.Init(logger.Options{Development: cfg.IsDevelopment(), AppName: cfg.AppName})
	defer flush()

	driver := db.NormalizeDriver(cfg.DBDriver)
	database, err := db.Init(ctx, driver, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer func() {
		closeErr := database.Close()
		if closeErr != nil {
			slog.Error("failed to close database", "error", closeErr)
		}
	}()

	return fn(database, driver)
}

func printVersion(cmd *cobra.Command, database *sqlx.DB, driver string) error {
	version, err := db.Version(database.DB, driver)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "database at version %d\n", version)
	return nil
}
