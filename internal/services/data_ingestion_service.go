package services

import (
	"context"
	"database/sql"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"sales-reconciliation/internal/database"
	"sales-reconciliation/internal/metrics"
	"sales-reconciliation/internal/models"
	"sales-reconciliation/internal/repositories"
)

type DataIngestionService struct {
	db             *sql.DB
	paymentRepo    repositories.PaymentRepository
	accountRepo    repositories.BankAccountRepository
	reconciliation *ReconciliationService
	now            func() time.Time
}

func NewDataIngestionService(
	db *sql.DB,
	paymentRepo repositories.PaymentRepository,
	accountRepo repositories.BankAccountRepository,
	reconciliation *ReconciliationService,
) *DataIngestionService {
	return &DataIngestionService{
		db:             db,
		paymentRepo:    paymentRepo,
		accountRepo:    accountRepo,
		reconciliation: reconciliation,
		now:            time.Now,
	}
}

// PaymentInput is one credit line of a normalized bank statement.
type PaymentInput struct {
	Bank              string              `json:"bank"`
	BankAccountID     *int64              `json:"bank_account_id,omitempty"`
	AccountNumber     string              `json:"account_number,omitempty"`
	OperationDate     string              `json:"operation_date"`
	Amount            decimal.Decimal     `json:"amount"`
	Reference         string              `json:"reference,omitempty"`
	ExtendedReference string              `json:"extended_reference,omitempty"`
	Concept           string              `json:"concept,omitempty"`
	PostedBalance     decimal.NullDecimal `json:"posted_balance"`
	SourceFile        string              `json:"source_file,omitempty"`
	Fingerprint       string              `json:"fingerprint,omitempty"`
}

// IngestionResult reports one batch. Resolved counts duplicates whose stored
// copy had no account yet and now has one.
type IngestionResult struct {
	Success      bool     `json:"success"`
	RecordsCount int      `json:"records_count"`
	Inserted     int      `json:"inserted"`
	Duplicates   int      `json:"duplicates"`
	Resolved     int      `json:"resolved"`
	Errors       []string `json:"errors,omitempty"`
	BatchID      string   `json:"batch_id,omitempty"`
	Matched      int      `json:"matched"`
	Review       int      `json:"review"`
}

// IngestPayments stores a batch of detected payments, silently skipping the
// ones whose fingerprint is already known, and then runs reconciliation when
// anything new was stored. A skipped line whose account is now registered
// completes a copy that was stored unresolved. Invalid lines are reported and skipped without
// failing the batch.
func (s *DataIngestionService) IngestPayments(ctx context.Context, inputs []PaymentInput) (*IngestionResult, error) {
	result := &IngestionResult{RecordsCount: len(inputs)}
	createdAt := s.now().UTC().Truncate(time.Second)

	// account lookups read through the pool, so lines are built before the
	// transaction takes the only SQLite connection
	type line struct {
		n       int
		payment *models.DetectedPayment
	}
	lines := make([]line, 0, len(inputs))
	for i, input := range inputs {
		payment, err := s.buildPayment(ctx, input)
		if err != nil {
			if ctx.Err() != nil {
				return nil, err
			}
			result.Errors = append(result.Errors, fmt.Sprintf("Invalid payment at line %d: %v", i+1, err))
			continue
		}
		payment.CreatedAt = createdAt
		lines = append(lines, line{n: i + 1, payment: payment})
	}

	err := database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		for _, l := range lines {
			inserted, err := s.paymentRepo.InsertPayment(ctx, tx, l.payment)
			if err != nil {
				return fmt.Errorf("failed to insert payment at line %d: %w", l.n, err)
			}
			if inserted {
				result.Inserted++
				continue
			}
			result.Duplicates++
			if l.payment.BankAccountID == nil {
				continue
			}
			attached, err := s.paymentRepo.AttachAccount(ctx, tx, l.payment.Fingerprint, *l.payment.BankAccountID)
			if err != nil {
				return fmt.Errorf("failed to attach account at line %d: %w", l.n, err)
			}
			if attached {
				result.Resolved++
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	result.Success = len(result.Errors) == 0
	metrics.ObserveIngestion(result.Inserted, result.Duplicates, len(result.Errors))
	log.Printf("[ingestion] received=%d inserted=%d duplicates=%d resolved=%d rejected=%d",
		result.RecordsCount, result.Inserted, result.Duplicates, result.Resolved, len(result.Errors))

	if result.Inserted > 0 || result.Resolved > 0 {
		run, err := s.reconciliation.RunReconciliation(ctx, models.TriggerPaymentBatch)
		if err != nil {
			log.Printf("[ingestion] reconciliation after batch failed: %v", err)
			return result, nil
		}
		result.BatchID = run.BatchID
		result.Matched = run.Matched
		result.Review = run.Review
	}
	return result, nil
}

func (s *DataIngestionService) buildPayment(ctx context.Context, input PaymentInput) (*models.DetectedPayment, error) {
	if err := validatePayment(input); err != nil {
		return nil, err
	}
	opDate, _ := time.Parse(models.DateLayout, strings.TrimSpace(input.OperationDate))

	payment := &models.DetectedPayment{
		Bank:              normalizeBank(input.Bank),
		OperationDate:     opDate,
		Amount:            input.Amount,
		Reference:         strings.TrimSpace(input.Reference),
		ExtendedReference: strings.TrimSpace(input.ExtendedReference),
		Concept:           strings.TrimSpace(input.Concept),
		PostedBalance:     input.PostedBalance,
		SourceFile:        input.SourceFile,
		Status:            models.PaymentStatusPending,
	}

	account, err := s.resolveAccount(ctx, payment.Bank, input)
	if err != nil {
		return nil, err
	}
	payment.AccountNumber = strings.TrimSpace(input.AccountNumber)
	if account != nil {
		payment.BankAccountID = &account.ID
		if payment.AccountNumber == "" {
			payment.AccountNumber = account.AccountNumber
		}
	}

	payment.Fingerprint = strings.TrimSpace(input.Fingerprint)
	if payment.Fingerprint == "" {
		payment.Fingerprint = payment.ComputeFingerprint()
	}
	return payment, nil
}

// resolveAccount maps a statement line to a registered account. A line
// whose account number is unknown is still stored, unresolved.
func (s *DataIngestionService) resolveAccount(ctx context.Context, bank string, input PaymentInput) (*models.BankAccount, error) {
	if input.BankAccountID != nil {
		account, err := s.accountRepo.GetBankAccountByID(ctx, *input.BankAccountID)
		if err != nil {
			return nil, fmt.Errorf("bank_account_id %d: %w", *input.BankAccountID, err)
		}
		return account, nil
	}
	number := strings.TrimSpace(input.AccountNumber)
	if number == "" {
		return nil, nil
	}
	account, err := s.accountRepo.FindBankAccount(ctx, bank, number)
	if errors.Is(err, models.ErrBankAccountNotFound) {
		log.Printf("[ingestion] no registered account %s/%s, payment left unresolved", bank, number)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return account, nil
}

func validatePayment(input PaymentInput) error {
	if strings.TrimSpace(input.Bank) == "" {
		return fmt.Errorf("bank is required")
	}
	if strings.TrimSpace(input.OperationDate) == "" {
		return fmt.Errorf("operation_date is required")
	}
	if _, err := time.Parse(models.DateLayout, strings.TrimSpace(input.OperationDate)); err != nil {
		return fmt.Errorf("operation_date must be YYYY-MM-DD")
	}
	if !input.Amount.IsPositive() {
		return fmt.Errorf("amount is required and must be positive")
	}
	return nil
}

func normalizeBank(bank string) string {
	return strings.ToUpper(strings.TrimSpace(bank))
}

// CSV column names of the canonical payment import format.
const (
	csvBank              = "bank"
	csvAccountNumber     = "account_number"
	csvBankAccountID     = "bank_account_id"
	csvOperationDate     = "operation_date"
	csvAmount            = "amount"
	csvReference         = "reference"
	csvExtendedReference = "extended_reference"
	csvConcept           = "concept"
	csvPostedBalance     = "posted_balance"
)

// ParsePaymentsCSV reads the canonical payment import format. The first row
// is a header naming the columns; unknown columns are ignored. Rows that
// fail to parse are returned as errors alongside the rows that did.
func ParsePaymentsCSV(r io.Reader, sourceFile string) ([]PaymentInput, []string, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err == io.EOF {
		return nil, nil, invalid("csv", "empty file")
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read csv header: %w", err)
	}
	columns := make(map[string]int, len(header))
	for i, name := range header {
		columns[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, required := range []string{csvBank, csvOperationDate, csvAmount} {
		if _, ok := columns[required]; !ok {
			return nil, nil, invalid("csv", "missing column %q", required)
		}
	}

	var (
		inputs  []PaymentInput
		rowErrs []string
		lineNo  = 1
	)
	fieldOf := func(record []string, name string) string {
		i, ok := columns[name]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		lineNo++
		if err != nil {
			return nil, nil, fmt.Errorf("failed to read csv line %d: %w", lineNo, err)
		}

		input := PaymentInput{
			Bank:              fieldOf(record, csvBank),
			AccountNumber:     fieldOf(record, csvAccountNumber),
			OperationDate:     fieldOf(record, csvOperationDate),
			Reference:         fieldOf(record, csvReference),
			ExtendedReference: fieldOf(record, csvExtendedReference),
			Concept:           fieldOf(record, csvConcept),
			SourceFile:        sourceFile,
		}
		if err := parseCSVNumbers(&input, record, fieldOf); err != nil {
			rowErrs = append(rowErrs, fmt.Sprintf("line %d: %v", lineNo, err))
			continue
		}
		inputs = append(inputs, input)
	}
	return inputs, rowErrs, nil
}

func parseCSVNumbers(input *PaymentInput, record []string, fieldOf func([]string, string) string) error {
	amount, err := decimal.NewFromString(fieldOf(record, csvAmount))
	if err != nil {
		return fmt.Errorf("invalid amount %q", fieldOf(record, csvAmount))
	}
	input.Amount = amount

	if raw := fieldOf(record, csvPostedBalance); raw != "" {
		balance, err := decimal.NewFromString(raw)
		if err != nil {
			return fmt.Errorf("invalid posted_balance %q", raw)
		}
		input.PostedBalance = decimal.NewNullDecimal(balance)
	}
	if raw := fieldOf(record, csvBankAccountID); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid bank_account_id %q", raw)
		}
		input.BankAccountID = &id
	}
	return nil
}
