package services

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"sales-reconciliation/internal/database/dbtest"
	"sales-reconciliation/internal/models"
)

var t0 = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func newTestServices(t *testing.T) *Services {
	t.Helper()
	db, cfg := dbtest.Open(t)
	svc, err := New(db, cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	svc.Sales.now = func() time.Time { return t0 }
	return svc
}

func createAccount(t *testing.T, svc *Services, number string) *models.BankAccount {
	t.Helper()
	account, err := svc.Accounts.CreateAccount(context.Background(), AccountInput{
		Bank:          "bbva",
		Alias:         "Operations " + number,
		AccountNumber: number,
	})
	if err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}
	return account
}

func createSale(t *testing.T, svc *Services, accountID int64, folio, amount string) *models.Sale {
	t.Helper()
	sale, err := svc.Sales.CreateSale(context.Background(), SaleInput{
		Folio:         folio,
		CustomerName:  "Customer " + folio,
		Amount:        decimal.RequireFromString(amount),
		BankAccountID: accountID,
		SalespersonID: 7,
	})
	if err != nil {
		t.Fatalf("CreateSale(%s): %v", folio, err)
	}
	return sale
}

func paymentInput(number, date, amount, reference string) PaymentInput {
	return PaymentInput{
		Bank:          "BBVA",
		AccountNumber: number,
		OperationDate: date,
		Amount:        decimal.RequireFromString(amount),
		Reference:     reference,
		Concept:       "SPEI RECIBIDO",
	}
}

func ingest(t *testing.T, svc *Services, inputs ...PaymentInput) *IngestionResult {
	t.Helper()
	result, err := svc.Ingestion.IngestPayments(context.Background(), inputs)
	if err != nil {
		t.Fatalf("IngestPayments: %v", err)
	}
	return result
}

func onlyPayment(t *testing.T, svc *Services) *models.DetectedPayment {
	t.Helper()
	payments, total, err := svc.Reconciliation.ListPayments(context.Background(), models.PaymentFilter{})
	if err != nil {
		t.Fatalf("ListPayments: %v", err)
	}
	if total != 1 {
		t.Fatalf("payments total got=%d want=1", total)
	}
	return payments[0]
}

func TestIngestPaymentsDeduplicatesAndMatches(t *testing.T) {
	svc := newTestServices(t)
	ctx := context.Background()
	account := createAccount(t, svc, "0011223344")
	sale := createSale(t, svc, account.ID, "F-100", "1500.00")

	batch := []PaymentInput{paymentInput("0011223344", "2026-03-11", "1500.00", "PAGO F-100")}
	result := ingest(t, svc, batch...)
	if !result.Success || result.Inserted != 1 || result.Duplicates != 0 {
		t.Fatalf("first ingestion got=%+v", result)
	}
	if result.Matched != 1 || result.BatchID == "" {
		t.Fatalf("reconciliation after ingestion got matched=%d batch=%q", result.Matched, result.BatchID)
	}

	again := ingest(t, svc, batch...)
	if again.Inserted != 0 || again.Duplicates != 1 || again.BatchID != "" {
		t.Fatalf("second ingestion got=%+v", again)
	}

	got, err := svc.Sales.GetSale(ctx, sale.ID)
	if err != nil {
		t.Fatalf("GetSale: %v", err)
	}
	if got.Status != models.SaleStatusPaid {
		t.Fatalf("sale status got=%s want=%s", got.Status, models.SaleStatusPaid)
	}
	p := onlyPayment(t, svc)
	if p.Status != models.PaymentStatusMatch || p.SaleID == nil || *p.SaleID != sale.ID {
		t.Fatalf("payment got status=%s sale=%v", p.Status, p.SaleID)
	}

	run, err := svc.Reconciliation.GetRun(ctx, result.BatchID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if run.Status != models.RunStatusCompleted || run.Trigger != models.TriggerPaymentBatch || run.Matched != 1 {
		t.Fatalf("run got=%+v", run)
	}
}

func TestIngestPaymentsRejectsInvalidLines(t *testing.T) {
	svc := newTestServices(t)
	createAccount(t, svc, "0011223344")

	missingBank := paymentInput("0011223344", "2026-03-11", "10.00", "")
	missingBank.Bank = " "
	result := ingest(t, svc,
		missingBank,
		paymentInput("0011223344", "11/03/2026", "10.00", ""),
		paymentInput("0011223344", "2026-03-11", "0", ""),
		paymentInput("9999999999", "2026-03-11", "10.00", "unknown account"),
	)
	if result.Success {
		t.Fatalf("expected unsuccessful ingestion")
	}
	if len(result.Errors) != 3 {
		t.Fatalf("errors got=%v want 3", result.Errors)
	}
	if result.Inserted != 1 {
		t.Fatalf("inserted got=%d want=1", result.Inserted)
	}

	p := onlyPayment(t, svc)
	if p.BankAccountID != nil {
		t.Fatalf("payment for unknown account resolved to %d", *p.BankAccountID)
	}
	if p.Status != models.PaymentStatusPending {
		t.Fatalf("payment status got=%s want=%s", p.Status, models.PaymentStatusPending)
	}
}

func TestCreateSaleMatchesPendingPayment(t *testing.T) {
	svc := newTestServices(t)
	account := createAccount(t, svc, "0011223344")

	result := ingest(t, svc, paymentInput("0011223344", "2026-03-10", "820.50", "TRANSFER"))
	if result.Matched != 0 {
		t.Fatalf("matched without sales: %d", result.Matched)
	}

	sale := createSale(t, svc, account.ID, "F-200", "820.50")
	if sale.Status != models.SaleStatusPaid {
		t.Fatalf("sale status got=%s want=%s", sale.Status, models.SaleStatusPaid)
	}
}

func TestCreateSaleValidation(t *testing.T) {
	svc := newTestServices(t)
	ctx := context.Background()
	inactive := false
	account, err := svc.Accounts.CreateAccount(ctx, AccountInput{Bank: "BBVA", AccountNumber: "1", Active: &inactive})
	if err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}

	tests := []struct {
		name  string
		input SaleInput
	}{
		{"missing folio", SaleInput{CustomerName: "A", Amount: decimal.NewFromInt(1), BankAccountID: account.ID}},
		{"non-positive amount", SaleInput{Folio: "F", CustomerName: "A", Amount: decimal.Zero, BankAccountID: account.ID}},
		{"unknown account", SaleInput{Folio: "F", CustomerName: "A", Amount: decimal.NewFromInt(1), BankAccountID: 999}},
		{"inactive account", SaleInput{Folio: "F", CustomerName: "A", Amount: decimal.NewFromInt(1), BankAccountID: account.ID}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Sales.CreateSale(ctx, tt.input)
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("got=%v want ValidationError", err)
			}
		})
	}
}

func TestAwaitingHintResolvesTie(t *testing.T) {
	svc := newTestServices(t)
	ctx := context.Background()
	account := createAccount(t, svc, "0011223344")
	a := createSale(t, svc, account.ID, "F-A", "300.00")
	b := createSale(t, svc, account.ID, "F-B", "300.00")

	awaiting, err := svc.Sales.MarkAwaiting(ctx, a.ID)
	if err != nil {
		t.Fatalf("MarkAwaiting: %v", err)
	}
	if awaiting.Paid || awaiting.Sale.Status != models.SaleStatusAwaitingReconciliation {
		t.Fatalf("awaiting got paid=%v status=%s", awaiting.Paid, awaiting.Sale.Status)
	}

	// two days later: 5 points each, plus 15 for the reported one
	result := ingest(t, svc, paymentInput("0011223344", "2026-03-12", "300.00", "TRANSFER"))
	if result.Matched != 1 {
		t.Fatalf("matched got=%d want=1", result.Matched)
	}

	gotA, _ := svc.Sales.GetSale(ctx, a.ID)
	gotB, _ := svc.Sales.GetSale(ctx, b.ID)
	if !gotA.IsPaid() || gotB.IsPaid() {
		t.Fatalf("got a=%s b=%s want a PAID only", gotA.Status, gotB.Status)
	}

	again, err := svc.Sales.MarkAwaiting(ctx, a.ID)
	if err != nil {
		t.Fatalf("MarkAwaiting on paid sale: %v", err)
	}
	if !again.Paid {
		t.Fatalf("expected paid sale to report paid")
	}
}

func TestAmbiguousPaymentReviewAndManualMatch(t *testing.T) {
	svc := newTestServices(t)
	ctx := context.Background()
	account := createAccount(t, svc, "0011223344")
	createSale(t, svc, account.ID, "F-1", "450.00")
	b := createSale(t, svc, account.ID, "F-2", "450.00")

	result := ingest(t, svc, paymentInput("0011223344", "2026-03-12", "450.00", "TRANSFER"))
	if result.Review != 1 || result.Matched != 0 {
		t.Fatalf("ingestion got review=%d matched=%d", result.Review, result.Matched)
	}
	p := onlyPayment(t, svc)
	if p.Status != models.PaymentStatusReview {
		t.Fatalf("payment status got=%s want=%s", p.Status, models.PaymentStatusReview)
	}

	candidates, err := svc.Reconciliation.GetCandidates(ctx, p.ID)
	if err != nil {
		t.Fatalf("GetCandidates: %v", err)
	}
	if len(candidates.Candidates) != 2 {
		t.Fatalf("candidates got=%d want=2", len(candidates.Candidates))
	}
	if candidates.Suggestion == nil || candidates.Suggestion.Outcome != "review" {
		t.Fatalf("suggestion got=%+v", candidates.Suggestion)
	}

	match, err := svc.Reconciliation.ManualMatch(ctx, ManualMatchRequest{PaymentID: p.ID, Folio: " f-2 ", UserID: "ana"})
	if err != nil {
		t.Fatalf("ManualMatch: %v", err)
	}
	if match.SaleID != b.ID {
		t.Fatalf("matched sale got=%d want=%d", match.SaleID, b.ID)
	}
	gotB, _ := svc.Sales.GetSale(ctx, b.ID)
	if !gotB.IsPaid() {
		t.Fatalf("sale status got=%s want PAID", gotB.Status)
	}

	audit, err := svc.Reconciliation.GetPaymentAudit(ctx, p.ID)
	if err != nil {
		t.Fatalf("GetPaymentAudit: %v", err)
	}
	var actions []string
	for _, a := range audit {
		actions = append(actions, a.Action)
	}
	if strings.Join(actions, ",") != "review,manual_match" {
		t.Fatalf("audit actions got=%v", actions)
	}
	if audit[1].UserID != "ana" {
		t.Fatalf("audit user got=%q want=ana", audit[1].UserID)
	}

	_, err = svc.Reconciliation.ManualMatch(ctx, ManualMatchRequest{PaymentID: p.ID, SaleID: b.ID})
	if !errors.Is(err, models.ErrPaymentNotPending) {
		t.Fatalf("second manual match got=%v want=%v", err, models.ErrPaymentNotPending)
	}
}

func TestManualMatchErrors(t *testing.T) {
	svc := newTestServices(t)
	ctx := context.Background()
	account := createAccount(t, svc, "0011223344")
	createSale(t, svc, account.ID, "DUP", "10.00")
	createSale(t, svc, account.ID, "DUP", "20.00")
	paid := createSale(t, svc, account.ID, "PAID-1", "30.00")
	ingest(t, svc,
		paymentInput("0011223344", "2026-03-11", "30.00", "PAGO"),
		paymentInput("5555", "2026-03-11", "99.00", "unresolved"),
	)
	if got, _ := svc.Sales.GetSale(ctx, paid.ID); !got.IsPaid() {
		t.Fatalf("setup: sale %d not paid", paid.ID)
	}

	pending, _, err := svc.Reconciliation.ListPayments(ctx, models.PaymentFilter{Status: models.PaymentStatusPending})
	if err != nil || len(pending) != 1 {
		t.Fatalf("pending payments got=%d err=%v", len(pending), err)
	}
	paymentID := pending[0].ID

	tests := []struct {
		name string
		req  ManualMatchRequest
		want error
	}{
		{"ambiguous folio", ManualMatchRequest{PaymentID: paymentID, Folio: "dup"}, models.ErrAmbiguousFolio},
		{"unknown folio", ManualMatchRequest{PaymentID: paymentID, Folio: "nope"}, models.ErrSaleNotFound},
		{"paid sale", ManualMatchRequest{PaymentID: paymentID, SaleID: paid.ID}, models.ErrSaleAlreadyPaid},
		{"unknown payment", ManualMatchRequest{PaymentID: 9999, SaleID: paid.ID}, models.ErrPaymentNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Reconciliation.ManualMatch(ctx, tt.req)
			if !errors.Is(err, tt.want) {
				t.Fatalf("got=%v want=%v", err, tt.want)
			}
		})
	}

	_, err = svc.Reconciliation.ManualMatch(ctx, ManualMatchRequest{PaymentID: paymentID})
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("missing target got=%v want ValidationError", err)
	}
}

func TestPaidSaleIsImmutable(t *testing.T) {
	svc := newTestServices(t)
	ctx := context.Background()
	account := createAccount(t, svc, "0011223344")
	sale := createSale(t, svc, account.ID, "F-9", "75.00")
	ingest(t, svc, paymentInput("0011223344", "2026-03-10", "75.00", "F-9"))

	_, err := svc.Sales.UpdateSale(ctx, sale.ID, SaleInput{
		Folio: "F-9", CustomerName: "X", Amount: decimal.NewFromInt(80), BankAccountID: account.ID,
	})
	if !errors.Is(err, models.ErrSaleAlreadyPaid) {
		t.Fatalf("UpdateSale got=%v want=%v", err, models.ErrSaleAlreadyPaid)
	}
	if err := svc.Sales.DeleteSale(ctx, sale.ID); !errors.Is(err, models.ErrSaleAlreadyPaid) {
		t.Fatalf("DeleteSale got=%v want=%v", err, models.ErrSaleAlreadyPaid)
	}
	if _, err := svc.Sales.MarkNeedsReview(ctx, sale.ID); !errors.Is(err, models.ErrSaleAlreadyPaid) {
		t.Fatalf("MarkNeedsReview got=%v want=%v", err, models.ErrSaleAlreadyPaid)
	}

	detail, err := svc.Sales.GetSaleDetail(ctx, sale.ID)
	if err != nil {
		t.Fatalf("GetSaleDetail: %v", err)
	}
	if detail.Payment == nil || detail.LastPaymentsUpdate == nil {
		t.Fatalf("detail got payment=%v last=%v", detail.Payment, detail.LastPaymentsUpdate)
	}
}

func TestUpdateSaleRetriesMatching(t *testing.T) {
	svc := newTestServices(t)
	ctx := context.Background()
	account := createAccount(t, svc, "0011223344")
	sale := createSale(t, svc, account.ID, "F-3", "100.00")
	ingest(t, svc, paymentInput("0011223344", "2026-03-10", "110.00", "TRANSFER"))

	if got, _ := svc.Sales.GetSale(ctx, sale.ID); got.IsPaid() {
		t.Fatalf("sale paid before amount fix")
	}
	updated, err := svc.Sales.UpdateSale(ctx, sale.ID, SaleInput{
		Folio: "F-3", CustomerName: "Customer F-3", Amount: decimal.RequireFromString("110.00"), BankAccountID: account.ID,
	})
	if err != nil {
		t.Fatalf("UpdateSale: %v", err)
	}
	if !updated.IsPaid() {
		t.Fatalf("sale status got=%s want PAID", updated.Status)
	}
}

func TestCreateQuickSales(t *testing.T) {
	svc := newTestServices(t)
	ctx := context.Background()
	account := createAccount(t, svc, "0011223344")

	result, err := svc.Sales.CreateQuickSales(ctx, QuickSaleInput{
		SalespersonID: 3,
		BankAccountID: account.ID,
		Documents: []QuickSaleDocument{
			{Customer: "ACME-01 Corp", Document: "INV-1", OriginalAmount: decimal.NewFromInt(120), EditedAmount: decimal.NewFromInt(100)},
			{Customer: "Beta", Document: "INV-2", OriginalAmount: decimal.NewFromInt(40), EditedAmount: decimal.Zero},
			{Customer: "ACME-01 Corp", Document: "INV-3", OriginalAmount: decimal.NewFromInt(50), EditedAmount: decimal.NewFromInt(50)},
		},
	})
	if err != nil {
		t.Fatalf("CreateQuickSales: %v", err)
	}
	if len(result.Sales) != 1 {
		t.Fatalf("sales got=%d want=1", len(result.Sales))
	}
	if len(result.Skipped) != 1 || result.Skipped[0] != "Beta" {
		t.Fatalf("skipped got=%v want=[Beta]", result.Skipped)
	}

	sale := result.Sales[0]
	if want := "VR-ACME01-20260310120000-01"; sale.Folio != want {
		t.Fatalf("folio got=%s want=%s", sale.Folio, want)
	}
	if !sale.Amount.Equal(decimal.NewFromInt(150)) {
		t.Fatalf("amount got=%s want=150", sale.Amount)
	}
	if len(sale.LineItems) != 2 || sale.LineItems[1].Document != "INV-3" {
		t.Fatalf("line items got=%+v", sale.LineItems)
	}
}

func TestDailySummary(t *testing.T) {
	svc := newTestServices(t)
	ctx := context.Background()
	account := createAccount(t, svc, "0011223344")
	createSale(t, svc, account.ID, "F-1", "100.00")
	createSale(t, svc, account.ID, "F-2", "250.00")
	ingest(t, svc,
		paymentInput("0011223344", "2026-03-11", "100.00", "F-1"),
		paymentInput("0011223344", "2026-03-11", "42.00", "OTHER"),
	)

	sales, err := svc.Reports.DailySummary(ctx, t0)
	if err != nil {
		t.Fatalf("DailySummary: %v", err)
	}
	if sales.SalesCount != 2 || sales.SalesPaid != 1 || sales.SalesOpen != 1 {
		t.Fatalf("sales summary got=%+v", sales)
	}
	if !sales.SalesTotal.Equal(decimal.NewFromInt(350)) || !sales.SalesPaidTotal.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("sales totals got total=%s paid=%s", sales.SalesTotal, sales.SalesPaidTotal)
	}

	payments, err := svc.Reports.DailySummary(ctx, t0.AddDate(0, 0, 1))
	if err != nil {
		t.Fatalf("DailySummary: %v", err)
	}
	if payments.Date != "2026-03-11" || payments.PaymentsCount != 2 || payments.PaymentsMatched != 1 || payments.PaymentsPending != 1 {
		t.Fatalf("payments summary got=%+v", payments)
	}
	if !payments.UnlinkedTotal.Equal(decimal.NewFromInt(42)) {
		t.Fatalf("unlinked total got=%s want=42", payments.UnlinkedTotal)
	}
}

func TestSeedAccountsFromFile(t *testing.T) {
	svc := newTestServices(t)
	ctx := context.Background()

	path := filepath.Join(t.TempDir(), "accounts.toml")
	content := `
[[account]]
bank = "bbva"
alias = "Operations"
account_number = "0011223344"

[[account]]
bank = "Banorte"
alias = "Payroll"
account_number = "5566"
currency = "usd"
active = false
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write accounts file: %v", err)
	}

	inputs, err := LoadAccountsFile(path)
	if err != nil {
		t.Fatalf("LoadAccountsFile: %v", err)
	}
	created, existing, err := svc.Accounts.SeedAccounts(ctx, inputs)
	if err != nil || created != 2 || existing != 0 {
		t.Fatalf("first seed got created=%d existing=%d err=%v", created, existing, err)
	}
	created, existing, err = svc.Accounts.SeedAccounts(ctx, inputs)
	if err != nil || created != 0 || existing != 2 {
		t.Fatalf("second seed got created=%d existing=%d err=%v", created, existing, err)
	}

	active, err := svc.Accounts.ListAccounts(ctx, true)
	if err != nil {
		t.Fatalf("ListAccounts: %v", err)
	}
	if len(active) != 1 || active[0].Bank != "BBVA" {
		t.Fatalf("active accounts got=%+v", active)
	}
}

func TestParsePaymentsCSV(t *testing.T) {
	data := `bank,account_number,bank_account_id,operation_date,amount,reference,extended_reference,concept,posted_balance
BBVA,0011223344,,2026-03-11,1500.00,PAGO F-100,,SPEI,20000.50
BBVA,0011223344,,2026-03-11,abc,,,,
Banorte,,4,2026-03-12,99.9,,,DEPOSITO,
`
	inputs, rowErrs, err := ParsePaymentsCSV(strings.NewReader(data), "march.csv")
	if err != nil {
		t.Fatalf("ParsePaymentsCSV: %v", err)
	}
	if len(inputs) != 2 {
		t.Fatalf("inputs got=%d want=2", len(inputs))
	}
	if len(rowErrs) != 1 || !strings.HasPrefix(rowErrs[0], "line 3") {
		t.Fatalf("row errors got=%v", rowErrs)
	}

	first := inputs[0]
	if first.Reference != "PAGO F-100" || !first.PostedBalance.Valid || first.SourceFile != "march.csv" {
		t.Fatalf("first row got=%+v", first)
	}
	second := inputs[1]
	if second.BankAccountID == nil || *second.BankAccountID != 4 || second.PostedBalance.Valid {
		t.Fatalf("second row got=%+v", second)
	}

	_, _, err = ParsePaymentsCSV(strings.NewReader("bank,amount\nBBVA,1\n"), "")
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("missing column got=%v want ValidationError", err)
	}
}

func TestSetReceiptAndNeedsReview(t *testing.T) {
	svc := newTestServices(t)
	ctx := context.Background()
	account := createAccount(t, svc, "0011223344")
	sale := createSale(t, svc, account.ID, "F-R", "64.00")

	got, err := svc.Sales.SetReceipt(ctx, sale.ID, " receipts/f-r.pdf ")
	if err != nil {
		t.Fatalf("SetReceipt: %v", err)
	}
	if got.ReceiptRef != "receipts/f-r.pdf" {
		t.Fatalf("receipt got=%q", got.ReceiptRef)
	}

	got, err = svc.Sales.MarkNeedsReview(ctx, sale.ID)
	if err != nil {
		t.Fatalf("MarkNeedsReview: %v", err)
	}
	if got.Status != models.SaleStatusNeedsReview {
		t.Fatalf("status got=%s want=%s", got.Status, models.SaleStatusNeedsReview)
	}

	if _, err := svc.Sales.SetReceipt(ctx, 9999, "x"); !errors.Is(err, models.ErrSaleNotFound) {
		t.Fatalf("unknown sale got=%v want=%v", err, models.ErrSaleNotFound)
	}
	if err := svc.Sales.DeleteSale(ctx, sale.ID); err != nil {
		t.Fatalf("DeleteSale: %v", err)
	}
	if _, err := svc.Sales.GetSale(ctx, sale.ID); !errors.Is(err, models.ErrSaleNotFound) {
		t.Fatalf("deleted sale got=%v want=%v", err, models.ErrSaleNotFound)
	}
}

func TestReimportAfterAccountRegistrationIsDuplicate(t *testing.T) {
	svc := newTestServices(t)
	ctx := context.Background()
	line := paymentInput("0011223344", "2026-03-11", "1500.00", "PAGO F-100")

	first := ingest(t, svc, line)
	if first.Inserted != 1 {
		t.Fatalf("first import got=%+v", first)
	}
	if p := onlyPayment(t, svc); p.BankAccountID != nil || p.AccountNumber != "0011223344" {
		t.Fatalf("unresolved payment got account=%v number=%q", p.BankAccountID, p.AccountNumber)
	}

	account := createAccount(t, svc, "0011223344")
	sale := createSale(t, svc, account.ID, "F-100", "1500.00")
	if sale.Status != models.SaleStatusPending {
		t.Fatalf("sale status got=%s want=%s", sale.Status, models.SaleStatusPending)
	}

	again := ingest(t, svc, line)
	if again.Inserted != 0 || again.Duplicates != 1 || again.Resolved != 1 {
		t.Fatalf("second import got inserted=%d duplicates=%d resolved=%d want 0/1/1",
			again.Inserted, again.Duplicates, again.Resolved)
	}
	if again.Matched != 1 {
		t.Fatalf("matched got=%d want=1", again.Matched)
	}

	p := onlyPayment(t, svc)
	if p.BankAccountID == nil || *p.BankAccountID != account.ID {
		t.Fatalf("payment account got=%v want=%d", p.BankAccountID, account.ID)
	}
	if p.Status != models.PaymentStatusMatch || p.SaleID == nil || *p.SaleID != sale.ID {
		t.Fatalf("payment got status=%s sale=%v", p.Status, p.SaleID)
	}
	got, err := svc.Sales.GetSale(ctx, sale.ID)
	if err != nil {
		t.Fatalf("GetSale: %v", err)
	}
	if !got.IsPaid() {
		t.Fatalf("sale status got=%s want=%s", got.Status, models.SaleStatusPaid)
	}
}

func TestIngestResolvesAccountByNumber(t *testing.T) {
	svc := newTestServices(t)
	account := createAccount(t, svc, "0011223344")

	line := paymentInput(" 0011223344 ", "2026-03-11", "75.00", "")
	line.Bank = " bbva "
	result := ingest(t, svc, line)
	if result.Inserted != 1 || len(result.Errors) != 0 {
		t.Fatalf("import got=%+v", result)
	}

	p := onlyPayment(t, svc)
	if p.BankAccountID == nil || *p.BankAccountID != account.ID {
		t.Fatalf("payment account got=%v want=%d", p.BankAccountID, account.ID)
	}
	if p.Bank != "BBVA" || p.AccountNumber != "0011223344" {
		t.Fatalf("payment got bank=%q number=%q", p.Bank, p.AccountNumber)
	}
}

func TestIngestResolvesAccountByID(t *testing.T) {
	svc := newTestServices(t)
	account := createAccount(t, svc, "0011223344")

	byID := paymentInput("", "2026-03-11", "75.00", "SPEI")
	byID.BankAccountID = &account.ID
	result := ingest(t, svc, byID)
	if result.Inserted != 1 {
		t.Fatalf("import got=%+v", result)
	}
	p := onlyPayment(t, svc)
	if p.BankAccountID == nil || *p.BankAccountID != account.ID {
		t.Fatalf("payment account got=%v want=%d", p.BankAccountID, account.ID)
	}
	if p.AccountNumber != "0011223344" {
		t.Fatalf("account number got=%q want the registered one", p.AccountNumber)
	}

	// the same line keyed by number is the same payment
	byNumber := paymentInput("0011223344", "2026-03-11", "75.00", "SPEI")
	again := ingest(t, svc, byNumber)
	if again.Inserted != 0 || again.Duplicates != 1 {
		t.Fatalf("import by number got inserted=%d duplicates=%d want 0/1", again.Inserted, again.Duplicates)
	}

	missing := int64(999)
	unknown := paymentInput("", "2026-03-12", "75.00", "")
	unknown.BankAccountID = &missing
	rejected := ingest(t, svc, unknown)
	if rejected.Success || len(rejected.Errors) != 1 || rejected.Inserted != 0 {
		t.Fatalf("unknown account id got=%+v", rejected)
	}
}

func TestReportTodayUsesBusinessZone(t *testing.T) {
	reports := NewReportService(nil, nil, time.FixedZone("UTC-6", -6*60*60))
	reports.now = func() time.Time { return time.Date(2026, 3, 11, 3, 0, 0, 0, time.UTC) }

	y, m, d := reports.Today().Date()
	if got := time.Date(y, m, d, 0, 0, 0, 0, time.UTC).Format(models.DateLayout); got != "2026-03-10" {
		t.Fatalf("today got=%s want=2026-03-10", got)
	}
}
