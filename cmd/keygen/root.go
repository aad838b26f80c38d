package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/caarlos0/env/v10"
	"github.com/spf13/cobra"

	"github.com/moveoone/moveo/internal/database"
)

// Config is read from the same environment as the collector.
type Config struct {
	Database database.Config `envPrefix:"DB_"`
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "keygen",
		Short: "Manage Moveo collector tokens and models",
		Long: `keygen creates and revokes SDK tokens and registers prediction models in
the collector database. It reads the DB_* environment variables the collector uses.`,
		SilenceUsage: true,
	}
	root.AddCommand(newTokenCmd(), newModelCmd())
	return root
}

// openDatabase opens the collector database with migrations applied.
func openDatabase(ctx context.Context) (*database.Client, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return database.Open(ctx, cfg.Database, quietLogger())
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
