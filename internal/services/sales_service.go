package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"sales-reconciliation/internal/database"
	"sales-reconciliation/internal/models"
	"sales-reconciliation/internal/repositories"
)

type SalesService struct {
	db              *sql.DB
	saleRepo        repositories.SaleRepository
	paymentRepo     repositories.PaymentRepository
	accountRepo     repositories.BankAccountRepository
	reconciliation  *ReconciliationService
	defaultCurrency string
	now             func() time.Time
}

func NewSalesService(
	db *sql.DB,
	saleRepo repositories.SaleRepository,
	paymentRepo repositories.PaymentRepository,
	accountRepo repositories.BankAccountRepository,
	reconciliation *ReconciliationService,
	defaultCurrency string,
) *SalesService {
	if defaultCurrency == "" {
		defaultCurrency = models.DefaultCurrency
	}
	return &SalesService{
		db:              db,
		saleRepo:        saleRepo,
		paymentRepo:     paymentRepo,
		accountRepo:     accountRepo,
		reconciliation:  reconciliation,
		defaultCurrency: defaultCurrency,
		now:             time.Now,
	}
}

type SaleInput struct {
	Folio         string          `json:"folio"`
	CustomerName  string          `json:"customer_name"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency,omitempty"`
	BankAccountID int64           `json:"bank_account_id"`
	SalespersonID int64           `json:"salesperson_id"`
	Note          string          `json:"note,omitempty"`
}

func validateSale(input SaleInput) error {
	if strings.TrimSpace(input.Folio) == "" {
		return invalid("folio", "is required")
	}
	if strings.TrimSpace(input.CustomerName) == "" {
		return invalid("customer_name", "is required")
	}
	if !input.Amount.IsPositive() {
		return invalid("amount", "must be positive")
	}
	if input.BankAccountID == 0 {
		return invalid("bank_account_id", "is required")
	}
	return nil
}

// requireActiveAccount checks that sales can still be registered against an account.
func (s *SalesService) requireActiveAccount(ctx context.Context, id int64) error {
	account, err := s.accountRepo.GetBankAccountByID(ctx, id)
	if errors.Is(err, models.ErrBankAccountNotFound) {
		return invalid("bank_account_id", "account %d does not exist", id)
	}
	if err != nil {
		return err
	}
	if !account.Active {
		return invalid("bank_account_id", "account %d is inactive", id)
	}
	return nil
}

func (s *SalesService) timestamp() time.Time {
	return s.now().UTC().Truncate(time.Second)
}

// reconcile runs a pass after a sale change. Failures are logged only: the
// change itself is already committed and the next trigger retries.
func (s *SalesService) reconcile(ctx context.Context, trigger string) {
	if _, err := s.reconciliation.RunReconciliation(ctx, trigger); err != nil {
		log.Printf("[sales] reconciliation after %s failed: %v", trigger, err)
	}
}

// CreateSale registers a sale and immediately tries to match it against the
// pending payments. The returned sale reflects the outcome of that pass.
func (s *SalesService) CreateSale(ctx context.Context, input SaleInput) (*models.Sale, error) {
	if err := validateSale(input); err != nil {
		return nil, err
	}
	if err := s.requireActiveAccount(ctx, input.BankAccountID); err != nil {
		return nil, err
	}

	now := s.timestamp()
	sale := &models.Sale{
		Folio:         strings.TrimSpace(input.Folio),
		CustomerName:  strings.TrimSpace(input.CustomerName),
		Amount:        input.Amount,
		Currency:      s.currency(input.Currency),
		BankAccountID: input.BankAccountID,
		SalespersonID: input.SalespersonID,
		Status:        models.SaleStatusPending,
		Note:          input.Note,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	err := database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		return s.saleRepo.CreateSale(ctx, tx, sale)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create sale: %w", err)
	}
	log.Printf("[sales] sale %d (%s) created for %s", sale.ID, sale.Folio, sale.Amount.StringFixed(2))

	s.reconcile(ctx, models.TriggerNewSale)
	return s.saleRepo.GetSaleByID(ctx, sale.ID)
}

// UpdateSale edits a sale that is not yet PAID and retries matching.
func (s *SalesService) UpdateSale(ctx context.Context, id int64, input SaleInput) (*models.Sale, error) {
	if err := validateSale(input); err != nil {
		return nil, err
	}
	sale, err := s.saleRepo.GetSaleByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if sale.IsPaid() {
		return nil, models.ErrSaleAlreadyPaid
	}
	if input.BankAccountID != sale.BankAccountID {
		if err := s.requireActiveAccount(ctx, input.BankAccountID); err != nil {
			return nil, err
		}
	}

	sale.Folio = strings.TrimSpace(input.Folio)
	sale.CustomerName = strings.TrimSpace(input.CustomerName)
	sale.Amount = input.Amount
	sale.Currency = s.currency(input.Currency)
	sale.BankAccountID = input.BankAccountID
	sale.Note = input.Note
	sale.UpdatedAt = s.timestamp()

	err = database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		return s.saleRepo.UpdateSale(ctx, tx, sale)
	})
	if err != nil {
		return nil, err
	}

	s.reconcile(ctx, models.TriggerSaleUpdated)
	return s.saleRepo.GetSaleByID(ctx, id)
}

func (s *SalesService) DeleteSale(ctx context.Context, id int64) error {
	err := database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		return s.saleRepo.DeleteSale(ctx, tx, id)
	})
	if err != nil {
		return err
	}
	log.Printf("[sales] sale %d deleted", id)
	return nil
}

type AwaitingResult struct {
	Sale *models.Sale `json:"sale"`
	Paid bool         `json:"paid"`
}

// MarkAwaiting flags a sale as reported paid by the customer, which raises
// its score, and runs a pass. Paid tells whether the sale ended up PAID.
func (s *SalesService) MarkAwaiting(ctx context.Context, id int64) (*AwaitingResult, error) {
	sale, err := s.saleRepo.GetSaleByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if sale.IsPaid() {
		return &AwaitingResult{Sale: sale, Paid: true}, nil
	}

	err = database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		return s.saleRepo.UpdateSaleStatus(ctx, tx, id, models.SaleStatusAwaitingReconciliation, s.timestamp())
	})
	if err != nil {
		return nil, err
	}

	s.reconcile(ctx, models.TriggerAwaitingHint)
	sale, err = s.saleRepo.GetSaleByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return &AwaitingResult{Sale: sale, Paid: sale.IsPaid()}, nil
}

func (s *SalesService) MarkNeedsReview(ctx context.Context, id int64) (*models.Sale, error) {
	err := database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		return s.saleRepo.UpdateSaleStatus(ctx, tx, id, models.SaleStatusNeedsReview, s.timestamp())
	})
	if err != nil {
		return nil, err
	}
	return s.saleRepo.GetSaleByID(ctx, id)
}

// SetReceipt records the reference of an uploaded payment receipt. An empty
// ref clears it.
func (s *SalesService) SetReceipt(ctx context.Context, id int64, ref string) (*models.Sale, error) {
	err := database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		return s.saleRepo.SetReceiptRef(ctx, tx, id, strings.TrimSpace(ref), s.timestamp())
	})
	if err != nil {
		return nil, err
	}
	return s.saleRepo.GetSaleByID(ctx, id)
}

func (s *SalesService) GetSale(ctx context.Context, id int64) (*models.Sale, error) {
	return s.saleRepo.GetSaleByID(ctx, id)
}

func (s *SalesService) ListSales(ctx context.Context, f models.SaleFilter) ([]*models.Sale, int, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, 0, invalid("status", "unknown sale status %q", f.Status)
	}
	return s.saleRepo.ListSales(ctx, f)
}

type SaleDetail struct {
	Sale *models.Sale `json:"sale"`
	// Payment is the payment linked to the sale, if any.
	Payment *models.DetectedPayment `json:"payment,omitempty"`
	// LastPaymentsUpdate is when a statement for the sale's account was last ingested.
	LastPaymentsUpdate *time.Time `json:"last_payments_update,omitempty"`
}

func (s *SalesService) GetSaleDetail(ctx context.Context, id int64) (*SaleDetail, error) {
	sale, err := s.saleRepo.GetSaleByID(ctx, id)
	if err != nil {
		return nil, err
	}
	detail := &SaleDetail{Sale: sale}

	payment, err := s.paymentRepo.GetPaymentBySaleID(ctx, id)
	switch {
	case err == nil:
		detail.Payment = payment
	case !errors.Is(err, models.ErrPaymentNotFound):
		return nil, err
	}

	detail.LastPaymentsUpdate, err = s.paymentRepo.LastIngestedAt(ctx, sale.BankAccountID)
	if err != nil {
		return nil, err
	}
	return detail, nil
}

func (s *SalesService) currency(c string) string {
	c = strings.ToUpper(strings.TrimSpace(c))
	if c == "" {
		return s.defaultCurrency
	}
	return c
}
