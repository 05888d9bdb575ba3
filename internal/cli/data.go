package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"sales-reconciliation/internal/config"
	"sales-reconciliation/internal/database"
	"sales-reconciliation/internal/services"
)

func init() {
	rootCmd.AddCommand(accountsCmd)
	accountsCmd.AddCommand(accountsSeedCmd)
	accountsCmd.AddCommand(accountsListCmd)

	rootCmd.AddCommand(paymentsCmd)
	paymentsCmd.AddCommand(paymentsImportCmd)

	rootCmd.AddCommand(migrateCmd)

	accountsListCmd.Flags().Bool("active", false, "Only list active accounts")
	migrateCmd.Flags().Int("steps", 0, "Number of migration steps (0 means all)")
}

// ─── accounts ───────────────────────────────────────────────────────────────

var accountsCmd = &cobra.Command{
	Use:   "accounts",
	Short: "Manage the receiving bank accounts",
}

var accountsSeedCmd = &cobra.Command{
	Use:   "seed FILE",
	Short: "Register the accounts listed in a TOML file",
	Long: `Register the accounts listed in a TOML file. Accounts already known by
bank and account number are left untouched, so seeding is repeatable.

  [[account]]
  bank = "BBVA"
  alias = "Operations"
  account_number = "0123456789"`,
	Args: cobra.ExactArgs(1),
	RunE: runAccountsSeed,
}

func runAccountsSeed(cmd *cobra.Command, args []string) error {
	inputs, err := services.LoadAccountsFile(args[0])
	if err != nil {
		return err
	}

	svc, db, err := openServices()
	if err != nil {
		return err
	}
	defer db.Close()

	created, existing, err := svc.Accounts.SeedAccounts(cmd.Context(), inputs)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Accounts created: %d, already present: %d\n", created, existing)
	return nil
}

var accountsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the registered accounts",
	RunE:  runAccountsList,
}

func runAccountsList(cmd *cobra.Command, args []string) error {
	activeOnly, _ := cmd.Flags().GetBool("active")

	svc, db, err := openServices()
	if err != nil {
		return err
	}
	defer db.Close()

	accounts, err := svc.Accounts.ListAccounts(cmd.Context(), activeOnly)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tBANK\tALIAS\tNUMBER\tCURRENCY\tACTIVE")
	for _, a := range accounts {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%v\n", a.ID, a.Bank, a.Alias, a.AccountNumber, a.Currency, a.Active)
	}
	return w.Flush()
}

// ─── payments ───────────────────────────────────────────────────────────────

var paymentsCmd = &cobra.Command{
	Use:   "payments",
	Short: "Ingest detected payments",
}

var paymentsImportCmd = &cobra.Command{
	Use:   "import FILE.csv",
	Short: "Import a bank statement in the canonical CSV layout",
	Long: `Import a bank statement in the canonical CSV layout. The header row names
the columns: bank, account_number, bank_account_id, operation_date,
amount, reference, extended_reference, concept, posted_balance.
Lines already imported are skipped. A reconciliation pass follows.`,
	Args: cobra.ExactArgs(1),
	RunE: runPaymentsImport,
}

func runPaymentsImport(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("open statement: %w", err)
	}
	defer f.Close()

	inputs, rowErrs, err := services.ParsePaymentsCSV(f, filepath.Base(args[0]))
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	for _, e := range rowErrs {
		fmt.Fprintf(out, "skipped %s\n", e)
	}
	if len(inputs) == 0 {
		return fmt.Errorf("no payments to import")
	}

	svc, db, err := openServices()
	if err != nil {
		return err
	}
	defer db.Close()

	result, err := svc.Ingestion.IngestPayments(cmd.Context(), inputs)
	if err != nil {
		return err
	}
	for _, e := range result.Errors {
		fmt.Fprintln(out, e)
	}
	fmt.Fprintf(out, "Imported %d, duplicates %d, rejected %d\n",
		result.Inserted, result.Duplicates, len(result.Errors)+len(rowErrs))
	if result.Resolved > 0 {
		fmt.Fprintf(out, "Completed the account of %d payments stored unresolved\n", result.Resolved)
	}
	if result.BatchID != "" {
		fmt.Fprintf(out, "Run %s: matched=%d review=%d\n", result.BatchID, result.Matched, result.Review)
	}
	return nil
}

// ─── migrate ────────────────────────────────────────────────────────────────

var migrateCmd = &cobra.Command{
	Use:       "migrate up|down|version",
	Short:     "Apply or inspect the database schema migrations",
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{"up", "down", "version"},
	RunE:      runMigrate,
}

func runMigrate(cmd *cobra.Command, args []string) error {
	steps, _ := cmd.Flags().GetInt("steps")

	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	db, err := database.NewConnection(cfg)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	db.Close()

	if args[0] == "version" {
		version, dirty, ok, err := database.MigrationVersion(cfg)
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintln(cmd.OutOrStdout(), "No migrations have been applied yet")
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Current migration version: %d (dirty: %v)\n", version, dirty)
		return nil
	}
	return database.Migrate(cfg, args[0], steps)
}
