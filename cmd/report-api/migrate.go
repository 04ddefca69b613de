package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/noah-isme/report-revision-api/internal/repository"
	"github.com/noah-isme/report-revision-api/pkg/database"
)

var migrateDir string

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending Postgres migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := database.NewPostgres(cmd.Context(), cfg.Database)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer db.Close()

		dir := migrateDir
		if dir == "" {
			dir = cfg.Migrations.Dir
		}
		applied, err := repository.ApplyMigrations(cmd.Context(), db, dir, logr.Named("migrate"))
		if err != nil {
			return fmt.Errorf("apply migrations: %w", err)
		}
		logr.Info("migrations complete", zap.Int("applied", len(applied)), zap.Strings("files", applied))
		return nil
	},
}

func init() {
	migrateCmd.Flags().StringVar(&migrateDir, "dir", "", "migrations directory (default from config)")
	rootCmd.AddCommand(migrateCmd)
}
