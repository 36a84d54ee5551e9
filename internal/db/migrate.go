package db

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	migratedb "github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"

	"github.com/liamcoop/rulesets/migrations"
)

// MigrationSource returns the embedded migrations directory for a driver
func MigrationSource(driverName string) (fs.FS, string, error) {
	switch driverName {
	case DriverPostgres:
		return migrations.PostgresMigrations, "postgres", nil
	case DriverSqlite:
		return migrations.SqliteMigrations, "sqlite", nil
	default:
		return nil, "", fmt.Errorf("no migrations for driver %s", driverName)
	}
}

// NewMigrator builds a golang-migrate instance over the embedded migrations
// for db's driver. Closing it closes db as well.
func NewMigrator(db *sqlx.DB) (*migrate.Migrate, error) {
	fsys, dir, err := MigrationSource(db.DriverName())
	if err != nil {
		return nil, err
	}

	src, err := iofs.New(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to open migration source: %w", err)
	}

	var driver migratedb.Driver
	switch db.DriverName() {
	case DriverPostgres:
		driver, err = postgres.WithInstance(db.DB, &postgres.Config{})
	case DriverSqlite:
		driver, err = sqlite3.WithInstance(db.DB, &sqlite3.Config{})
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, db.DriverName(), driver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migration instance: %w", err)
	}
	return m, nil
}

// Migrate applies every pending up migration to an open connection.
// ErrNoChange is not an error.
func Migrate(db *sqlx.DB) error {
	// m is not closed: closing it would close the shared *sql.DB
	m, err := NewMigrator(db)
	if err != nil {
		return err
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}
