package models

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

type SaleStatus string

const (
	SaleStatusPending                SaleStatus = "PENDING"
	SaleStatusAwaitingReconciliation SaleStatus = "AWAITING_RECONCILIATION"
	SaleStatusPaid                   SaleStatus = "PAID"
	SaleStatusNeedsReview            SaleStatus = "NEEDS_REVIEW"
)

func (s SaleStatus) Valid() bool {
	switch s {
	case SaleStatusPending, SaleStatusAwaitingReconciliation, SaleStatusPaid, SaleStatusNeedsReview:
		return true
	}
	return false
}

type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "PENDING"
	PaymentStatusMatch   PaymentStatus = "MATCH"
	PaymentStatusReview  PaymentStatus = "REVIEW"
)

func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentStatusPending, PaymentStatusMatch, PaymentStatusReview:
		return true
	}
	return false
}

const DefaultCurrency = "MXN"

// DateLayout is the wire and storage format of calendar dates.
const DateLayout = "2006-01-02"

// BankAccount is a receiving account owned by the organization.
type BankAccount struct {
	ID            int64     `db:"id" json:"id"`
	Bank          string    `db:"bank" json:"bank"`
	Alias         string    `db:"alias" json:"alias"`
	AccountNumber string    `db:"account_number" json:"account_number,omitempty"`
	Clabe         string    `db:"clabe" json:"clabe,omitempty"`
	Currency      string    `db:"currency" json:"currency"`
	Active        bool      `db:"active" json:"active"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// Sale is a receivable registered by a salesperson.
type Sale struct {
	ID            int64           `db:"id" json:"id"`
	Folio         string          `db:"folio" json:"folio"`
	CustomerName  string          `db:"customer_name" json:"customer_name"`
	Amount        decimal.Decimal `db:"amount" json:"amount"`
	Currency      string          `db:"currency" json:"currency"`
	BankAccountID int64           `db:"bank_account_id" json:"bank_account_id"`
	SalespersonID int64           `db:"salesperson_id" json:"salesperson_id"`
	Status        SaleStatus      `db:"status" json:"status"`
	Note          string          `db:"note" json:"note,omitempty"`
	ReceiptRef    string          `db:"receipt_ref" json:"receipt_ref,omitempty"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time       `db:"updated_at" json:"updated_at"`
	LineItems     []SaleLineItem  `json:"line_items,omitempty"`
}

func (s *Sale) IsPaid() bool {
	return s.Status == SaleStatusPaid
}

// SaleLineItem is one receivable document rolled into a quick sale.
type SaleLineItem struct {
	ID             int64           `db:"id" json:"id"`
	SaleID         int64           `db:"sale_id" json:"sale_id"`
	Document       string          `db:"document" json:"document"`
	EditedAmount   decimal.Decimal `db:"edited_amount" json:"edited_amount"`
	OriginalAmount decimal.Decimal `db:"original_amount" json:"original_amount"`
}

// DetectedPayment is an incoming credit read from a bank statement.
type DetectedPayment struct {
	ID                int64               `db:"id" json:"id"`
	Bank              string              `db:"bank" json:"bank"`
	BankAccountID     *int64              `db:"bank_account_id" json:"bank_account_id"`
	AccountNumber     string              `db:"account_number" json:"account_number"`
	OperationDate     time.Time           `db:"operation_date" json:"operation_date"`
	Amount            decimal.Decimal     `db:"amount" json:"amount"`
	Reference         string              `db:"reference" json:"reference"`
	ExtendedReference string              `db:"extended_reference" json:"extended_reference"`
	Concept           string              `db:"concept" json:"concept"`
	PostedBalance     decimal.NullDecimal `db:"posted_balance" json:"posted_balance"`
	SourceFile        string              `db:"source_file" json:"source_file"`
	Fingerprint       string              `db:"fingerprint" json:"fingerprint"`
	Status            PaymentStatus       `db:"status" json:"status"`
	SaleID            *int64              `db:"sale_id" json:"sale_id"`
	CreatedAt         time.Time           `db:"created_at" json:"created_at"`
}

// HasAccount reports whether the receiving account was resolved at ingestion.
func (p *DetectedPayment) HasAccount() bool {
	return p.BankAccountID != nil
}

// HasAmount reports whether the payment carries a usable positive amount.
func (p *DetectedPayment) HasAmount() bool {
	return p.Amount.IsPositive()
}

// ReconciliationRun is one persisted matching pass.
type ReconciliationRun struct {
	ID           int64      `db:"id" json:"id"`
	BatchID      string     `db:"batch_id" json:"batch_id"`
	Trigger      string     `db:"trigger_source" json:"trigger"`
	Status       string     `db:"status" json:"status"`
	Processed    int        `db:"processed" json:"processed"`
	Matched      int        `db:"matched" json:"matched"`
	Review       int        `db:"review" json:"review"`
	Skipped      int        `db:"skipped" json:"skipped"`
	ErrorMessage string     `db:"error_message" json:"error_message,omitempty"`
	StartedAt    time.Time  `db:"started_at" json:"started_at"`
	FinishedAt   *time.Time `db:"finished_at" json:"finished_at,omitempty"`
}

const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
)

// Triggers recorded on a run.
const (
	TriggerManual       = "manual"
	TriggerNewSale      = "new_sale"
	TriggerSaleUpdated  = "sale_updated"
	TriggerAwaitingHint = "awaiting_hint"
	TriggerPaymentBatch = "payment_batch"
	TriggerQuickSale    = "quick_sale"
)

// ReconciliationAudit represents an audit trail entry
type ReconciliationAudit struct {
	ID        int64           `db:"id" json:"id"`
	RunID     *int64          `db:"run_id" json:"run_id,omitempty"`
	PaymentID int64           `db:"payment_id" json:"payment_id"`
	SaleID    *int64          `db:"sale_id" json:"sale_id,omitempty"`
	Action    string          `db:"action" json:"action"`
	Details   json.RawMessage `db:"details" json:"details"`
	UserID    string          `db:"user_id" json:"user_id,omitempty"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
}

const (
	AuditActionMatched     = "matched"
	AuditActionReview      = "review"
	AuditActionManualMatch = "manual_match"
)

// PaymentFilter narrows payment listings. Zero values are ignored.
type PaymentFilter struct {
	Bank          string
	Status        PaymentStatus
	BankAccountID int64
	From          *time.Time
	To            *time.Time
	Amount        *decimal.Decimal
	Page          int
	Limit         int
}

// SaleFilter narrows sale listings. Zero values are ignored.
type SaleFilter struct {
	Status        SaleStatus
	BankAccountID int64
	SalespersonID int64
	Folio         string
	CreatedFrom   *time.Time
	CreatedTo     *time.Time
	Page          int
	Limit         int
}
