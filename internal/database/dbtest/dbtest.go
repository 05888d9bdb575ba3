// Package dbtest opens migrated SQLite databases for tests.
package dbtest

import (
	"database/sql"
	"path/filepath"
	"testing"

	"sales-reconciliation/internal/config"
	"sales-reconciliation/internal/database"
)

// Config returns a sqlite configuration rooted in a fresh temp dir.
func Config(t testing.TB) *config.Config {
	t.Helper()
	return &config.Config{
		ServerAddress:   ":0",
		Environment:     "test",
		DefaultCurrency: "MXN",
		Database: config.DatabaseConfig{
			Driver: config.DriverSQLite,
			Path:   filepath.Join(t.TempDir(), "reconciliation.db"),
		},
		Matching: config.MatchingConfig{
			MinScore:       20,
			AmbiguityRatio: 0.7,
			Timezone:       "UTC",
		},
	}
}

// Open migrates a new sqlite database and returns a connection to it.
func Open(t testing.TB) (*sql.DB, *config.Config) {
	t.Helper()
	cfg := Config(t)
	if err := database.Migrate(cfg, "up", 0); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	db, err := database.NewConnection(cfg)
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db, cfg
}
