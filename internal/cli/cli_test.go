package cli

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"sales-reconciliation/internal/models"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetErr(&buf)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return buf.String(), err
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestOperatorWorkflow(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("DB_PATH", filepath.Join(dir, "cli.db"))

	if out, err := execute(t, "migrate", "up"); err != nil {
		t.Fatalf("migrate up: %v\n%s", err, out)
	}

	accounts := writeFile(t, dir, "accounts.toml", `
[[account]]
bank = "BBVA"
alias = "Operations"
account_number = "0011223344"
`)
	out, err := execute(t, "accounts", "seed", accounts)
	if err != nil {
		t.Fatalf("accounts seed: %v", err)
	}
	if !strings.Contains(out, "Accounts created: 1") {
		t.Fatalf("seed output got=%q", out)
	}

	out, err = execute(t, "accounts", "list")
	if err != nil {
		t.Fatalf("accounts list: %v", err)
	}
	if !strings.Contains(out, "Operations") {
		t.Fatalf("list output got=%q", out)
	}

	statement := writeFile(t, dir, "march.csv",
		"bank,account_number,operation_date,amount,reference\n"+
			"BBVA,0011223344,2026-03-11,250.00,F-1\n")
	out, err = execute(t, "payments", "import", statement)
	if err != nil {
		t.Fatalf("payments import: %v", err)
	}
	if !strings.Contains(out, "Imported 1, duplicates 0") {
		t.Fatalf("import output got=%q", out)
	}

	out, err = execute(t, "payments", "import", statement)
	if err != nil {
		t.Fatalf("second import: %v", err)
	}
	if !strings.Contains(out, "Imported 0, duplicates 1") {
		t.Fatalf("second import output got=%q", out)
	}

	out, err = execute(t, "run")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(out, "processed=1 matched=0 review=0 skipped=1") {
		t.Fatalf("run output got=%q", out)
	}

	out, err = execute(t, "candidates", "1")
	if err != nil {
		t.Fatalf("candidates: %v", err)
	}
	if !strings.Contains(out, "No candidate sales.") {
		t.Fatalf("candidates output got=%q", out)
	}

	_, err = execute(t, "match", "1", "--folio", "F-1")
	if !errors.Is(err, models.ErrSaleNotFound) {
		t.Fatalf("match got=%v want=%v", err, models.ErrSaleNotFound)
	}
}

func TestMigrateRejectsUnknownCommand(t *testing.T) {
	if _, err := execute(t, "migrate", "sideways"); err == nil {
		t.Fatalf("expected an error for an unknown migrate command")
	}
}
