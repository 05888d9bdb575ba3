package database

import "sales-reconciliation/internal/config"

// Dialect covers the few statements that differ between MySQL and SQLite.
type Dialect string

const (
	MySQL  Dialect = config.DriverMySQL
	SQLite Dialect = config.DriverSQLite
)

func DialectFor(cfg *config.Config) Dialect {
	if cfg.Database.Driver == config.DriverSQLite {
		return SQLite
	}
	return MySQL
}

// OnConflictDoNothing is appended to an INSERT so that a row clashing on the
// unique column is skipped with zero rows affected. Other errors still fail.
func (d Dialect) OnConflictDoNothing(column string) string {
	if d == SQLite {
		return " ON CONFLICT (" + column + ") DO NOTHING"
	}
	return " ON DUPLICATE KEY UPDATE " + column + " = " + column
}

// ForUpdate is appended to row reads that must lock within a transaction.
// SQLite locks the whole database on write so it needs no clause.
func (d Dialect) ForUpdate() string {
	if d == SQLite {
		return ""
	}
	return " FOR UPDATE"
}
