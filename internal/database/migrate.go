package database

import (
	"embed"
	"errors"
	"fmt"
	"log"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/mysql"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"sales-reconciliation/internal/config"
)

//go:embed migrations
var migrationsFS embed.FS

func newMigrate(cfg *config.Config) (*migrate.Migrate, error) {
	if cfg.Migration.Dir != "" {
		return migrate.New(fmt.Sprintf("file://%s", cfg.Migration.Dir), cfg.GetMigrationDBURL())
	}

	src, err := iofs.New(migrationsFS, "migrations/"+cfg.Database.Driver)
	if err != nil {
		return nil, fmt.Errorf("failed to open embedded migrations: %w", err)
	}
	return migrate.NewWithSourceInstance("iofs", src, cfg.GetMigrationDBURL())
}

// Migrate applies a migration command: up or down, optionally limited to steps.
func Migrate(cfg *config.Config, command string, steps int) error {
	m, err := newMigrate(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize migrate: %w", err)
	}
	defer m.Close()

	switch command {
	case "up":
		if steps > 0 {
			err = m.Steps(steps)
		} else {
			err = m.Up()
		}
	case "down":
		if steps > 0 {
			err = m.Steps(-steps)
		} else {
			err = m.Down()
		}
	default:
		return fmt.Errorf("invalid migration command: %s", command)
	}

	if errors.Is(err, migrate.ErrNoChange) {
		log.Printf("No migration changes to apply")
		return nil
	}
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	log.Println("Migration completed successfully")
	return nil
}

// MigrationVersion reports the applied schema version. ok is false when no
// migration has been applied yet.
func MigrationVersion(cfg *config.Config) (version uint, dirty bool, ok bool, err error) {
	m, err := newMigrate(cfg)
	if err != nil {
		return 0, false, false, fmt.Errorf("failed to initialize migrate: %w", err)
	}
	defer m.Close()

	version, dirty, err = m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, false, nil
	}
	if err != nil {
		return 0, false, false, fmt.Errorf("failed to get version: %w", err)
	}
	return version, dirty, true, nil
}
