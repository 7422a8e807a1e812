package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/golang-migrate/migrate/v4"
	"github.com/liamcoop/sqlgen/internal/config"
	"github.com/liamcoop/sqlgen/internal/logger"
	"github.com/liamcoop/sqlgen/migrations"
)

func main() {
	var databaseURL string
	var configPath string
	var command string

	flag.StringVar(&databaseURL, "database", "", "Database URL (defaults to the config file or DATABASE_URL)")
	flag.StringVar(&configPath, "config", "", "Path to an HCL config file")
	flag.StringVar(&command, "command", "up", "Migration command: up, down, version, force")
	flag.Parse()

	if databaseURL == "" {
		cfg, err := config.Load(configPath)
		if err != nil {
			logger.Fatal("Failed to load config", "error", err)
		}
		databaseURL = cfg.DatabaseURL
	}
	if databaseURL == "" {
		logger.Fatal("Database URL is required. Use -database flag, a config file or DATABASE_URL environment variable")
	}

	logger.Info("Connecting to database...")

	m, err := migrations.New(databaseURL)
	if err != nil {
		logger.Fatal("Failed to create migration instance", "error", err)
	}
	defer m.Close()

	if err := run(m, command, flag.Args()); err != nil {
		logger.Error("Migration command failed", "command", command, "error", err)
		m.Close()
		os.Exit(1)
	}
}

func run(m *migrate.Migrate, command string, args []string) error {
	switch command {
	case "up":
		logger.Info("Running migrations up...")
		err := m.Up()
		if errors.Is(err, migrate.ErrNoChange) {
			logger.Info("No migrations to run (database is up to date)")
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
		logger.Info("Migrations completed successfully")

	case "down":
		logger.Info("Rolling back migrations...")
		if err := m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("failed to rollback migrations: %w", err)
		}
		logger.Info("Rollback completed successfully")

	case "version":
		version, dirty, err := m.Version()
		if err != nil {
			return fmt.Errorf("failed to get version: %w", err)
		}
		logger.Info("Current version", "version", version, "dirty", dirty)

	case "force":
		if len(args) < 1 {
			return errors.New("force command requires a version number: -command force <version>")
		}
		var version int
		if _, err := fmt.Sscanf(args[0], "%d", &version); err != nil {
			return fmt.Errorf("invalid version number: %w", err)
		}
		if err := m.Force(version); err != nil {
			return fmt.Errorf("failed to force version: %w", err)
		}
		logger.Info("Forced version", "version", version)

	default:
		return fmt.Errorf("unknown command: %s (use: up, down, version, force)", command)
	}
	return nil
}
