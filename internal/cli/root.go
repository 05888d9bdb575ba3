// Package cli implements reconctl, the operator command line of the
// reconciliation service. It works directly on the configured database.
package cli

import (
	"database/sql"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"sales-reconciliation/internal/config"
	"sales-reconciliation/internal/database"
	"sales-reconciliation/internal/services"
)

var rootCmd = &cobra.Command{
	Use:   "reconctl",
	Short: "Operate the payment reconciliation service",
	Long: `reconctl runs reconciliation passes, imports bank statements, seeds
bank accounts and resolves payments by hand against the same database the
server uses. Configuration is read from .env and the environment.`,
	SilenceUsage: true,
}

// Execute runs the command line and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// openServices loads the configuration and wires the services over a fresh
// connection. The caller closes the returned database.
func openServices() (*services.Services, *sql.DB, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	db, err := database.NewConnection(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("connect database: %w", err)
	}
	svc, err := services.New(db, cfg)
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	return svc, db, nil
}
