package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/saturnino-fabrica-de-software/carinho-integracoes/internal/config"
	"github.com/saturnino-fabrica-de-software/carinho-integracoes/internal/database"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	action := pflag.StringP("action", "a", "up", "migration action: up, down, version, force")
	version := pflag.Int("version", -1, "target version for the force action")
	dbName := pflag.String("db-name", "integracoes", "database name recorded by the migrator")
	pflag.Parse()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	logger := config.NewLogger(cfg.Environment, cfg.LogLevel)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	db, err := database.OpenSQL(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	migrator, err := database.NewMigrator(db, *dbName)
	if err != nil {
		return err
	}
	defer func() { _ = migrator.Close() }()

	switch *action {
	case "up":
		if err := migrator.Up(); err != nil {
			return fmt.Errorf("migration up failed: %w", err)
		}
		logger.Info("migrations applied")

	case "down":
		if err := migrator.Down(); err != nil {
			return fmt.Errorf("migration down failed: %w", err)
		}
		logger.Info("last migration rolled back")

	case "version":
		v, dirty, err := migrator.Version()
		if err != nil {
			return fmt.Errorf("failed to get version: %w", err)
		}
		logger.Info("current schema version", slog.Uint64("version", uint64(v)), slog.Bool("dirty", dirty))

	case "force":
		if *version < 0 {
			return fmt.Errorf("--version is required for the force action")
		}
		if err := migrator.Force(*version); err != nil {
			return fmt.Errorf("force migration failed: %w", err)
		}
		logger.Warn("migration version forced", slog.Int("version", *version))

	default:
		return fmt.Errorf("invalid action: %s (use: up, down, version, force)", *action)
	}

	return nil
}
