package database

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations
var migrationsFS embed.FS

// Migrate applies the embedded migration set named after the database
func (db *DB) Migrate() error {
	return ApplyMigrations(db.conn, db.name)
}

// ApplyMigrations runs migrations/<name> against an open connection.
// The connection is left open; callers own its lifecycle.
func ApplyMigrations(conn *sql.DB, name string) error {
	dir := path.Join("migrations", name)
	if _, err := fs.Stat(migrationsFS, dir); err != nil {
		return fmt.Errorf("no migrations for database %s: %w", name, err)
	}

	src, err := iofs.New(migrationsFS, dir)
	if err != nil {
		return fmt.Errorf("failed to open migration source for %s: %w", name, err)
	}
	defer func() { _ = src.Close() }()

	driver, err := sqlite.WithInstance(conn, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver for %s: %w", name, err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrator for %s: %w", name, err)
	}

	// m.Close() would also close conn
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to apply migrations for %s: %w", name, err)
	}

	return nil
}
