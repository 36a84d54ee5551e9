package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/golang-migrate/migrate/v4"

	"github.com/liamcoop/rulesets/internal/db"
	"github.com/liamcoop/rulesets/internal/logger"
)

func main() {
	var databaseURL string
	var command string

	flag.StringVar(&databaseURL, "database", "", "Database URL (required)")
	flag.StringVar(&command, "command", "up", "Migration command: up, down, steps, version, force")
	flag.Parse()

	// Check for database URL from flag or environment
	if databaseURL == "" {
		databaseURL = os.Getenv("RULESETS_STORE_URL")
	}
	if databaseURL == "" {
		logger.Fatal("Database URL is required. Use -database flag or RULESETS_STORE_URL environment variable")
	}

	conn, err := db.Open(databaseURL)
	if err != nil {
		logger.Fatal("Failed to connect to database", "error", err)
	}

	m, err := db.NewMigrator(conn)
	if err != nil {
		logger.Fatal("Failed to create migration instance", "error", err)
	}
	defer m.Close()

	logger.Info("Connected to database", "driver", conn.DriverName())

	if err := run(m, command, flag.Args()); err != nil {
		m.Close()
		logger.Fatal("Migration failed", "command", command, "error", err)
	}
}

// run executes one migration command against m
func run(m *migrate.Migrate, command string, args []string) error {
	switch command {
	case "up":
		err := m.Up()
		if errors.Is(err, migrate.ErrNoChange) {
			logger.Info("No migrations to run (database is up to date)")
			return nil
		}
		if err != nil {
			return err
		}
		logger.Info("Migrations completed successfully")

	case "down":
		if err := m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return err
		}
		logger.Info("Rollback completed successfully")

	case "steps":
		n, err := intArg(args, "steps <n>")
		if err != nil {
			return err
		}
		if err := m.Steps(n); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return err
		}
		logger.Info("Applied migration steps", "steps", n)

	case "version":
		version, dirty, err := m.Version()
		if errors.Is(err, migrate.ErrNilVersion) {
			logger.Info("No migrations applied")
			return nil
		}
		if err != nil {
			return err
		}
		logger.Info("Current version", "version", version, "dirty", dirty)

	case "force":
		version, err := intArg(args, "force <version>")
		if err != nil {
			return err
		}
		if err := m.Force(version); err != nil {
			return err
		}
		logger.Info("Forced version", "version", version)

	default:
		return fmt.Errorf("unknown command %q (use: up, down, steps, version, force)", command)
	}
	return nil
}

func intArg(args []string, usage string) (int, error) {
	if len(args) < 1 {
		return 0, fmt.Errorf("usage: -command %s", usage)
	}
	var n int
	if _, err := fmt.Sscanf(args[0], "%d", &n); err != nil {
		return 0, fmt.Errorf("invalid number %q: %w", args[0], err)
	}
	return n, nil
}
