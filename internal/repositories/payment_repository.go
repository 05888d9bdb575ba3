package repositories

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"sales-reconciliation/internal/database"
	"sales-reconciliation/internal/matching"
	"sales-reconciliation/internal/models"
)

type PaymentRepository interface {
	// InsertPayment stores p unless its fingerprint is already known, in
	// which case it reports false and leaves p.ID unset.
	InsertPayment(ctx context.Context, tx *sql.Tx, p *models.DetectedPayment) (bool, error)
	// AttachAccount sets the account of the stored payment with the given
	// fingerprint when it was stored unresolved. It reports whether it did.
	AttachAccount(ctx context.Context, tx *sql.Tx, fingerprint string, bankAccountID int64) (bool, error)
	GetPaymentByID(ctx context.Context, id int64) (*models.DetectedPayment, error)
	GetPaymentBySaleID(ctx context.Context, saleID int64) (*models.DetectedPayment, error)
	ListPayments(ctx context.Context, f models.PaymentFilter) ([]*models.DetectedPayment, int, error)
	ListPendingPayments(ctx context.Context) ([]*models.DetectedPayment, error)
	LastIngestedAt(ctx context.Context, bankAccountID int64) (*time.Time, error)
}

type paymentRepository struct {
	db      *sql.DB
	dialect database.Dialect
}

func NewPaymentRepository(db *sql.DB, dialect database.Dialect) PaymentRepository {
	return &paymentRepository{db: db, dialect: dialect}
}

const paymentColumns = `id, bank, bank_account_id, account_number, operation_date, amount, reference, extended_reference,
	concept, posted_balance, source_file, fingerprint, status, sale_id, created_at`

func scanPayment(row rowScanner) (*models.DetectedPayment, error) {
	var (
		p         models.DetectedPayment
		accountID sql.NullInt64
		saleID    sql.NullInt64
		status    string
	)
	err := row.Scan(
		&p.ID,
		&p.Bank,
		&accountID,
		&p.AccountNumber,
		&p.OperationDate,
		&p.Amount,
		&p.Reference,
		&p.ExtendedReference,
		&p.Concept,
		&p.PostedBalance,
		&p.SourceFile,
		&p.Fingerprint,
		&status,
		&saleID,
		&p.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if accountID.Valid {
		p.BankAccountID = &accountID.Int64
	}
	if saleID.Valid {
		p.SaleID = &saleID.Int64
	}
	p.Status = models.PaymentStatus(status)
	return &p, nil
}

func collectPayments(rows *sql.Rows) ([]*models.DetectedPayment, error) {
	defer rows.Close()
	var payments []*models.DetectedPayment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func (r *paymentRepository) InsertPayment(ctx context.Context, tx *sql.Tx, p *models.DetectedPayment) (bool, error) {
	query := `
		INSERT INTO detected_payments (
			bank, bank_account_id, account_number, operation_date, amount, reference, extended_reference,
			concept, posted_balance, source_file, fingerprint, status, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)` + r.dialect.OnConflictDoNothing("fingerprint")
	result, err := tx.ExecContext(ctx, query,
		p.Bank,
		nullInt64(p.BankAccountID),
		p.AccountNumber,
		p.OperationDate.Format(models.DateLayout),
		p.Amount,
		p.Reference,
		p.ExtendedReference,
		p.Concept,
		p.PostedBalance,
		p.SourceFile,
		p.Fingerprint,
		string(p.Status),
		p.CreatedAt.UTC(),
	)
	if err != nil {
		return false, err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	if rowsAffected == 0 {
		return false, nil
	}

	id, err := result.LastInsertId()
	if err != nil {
		return false, err
	}
	p.ID = id
	return true, nil
}

func (r *paymentRepository) AttachAccount(ctx context.Context, tx *sql.Tx, fingerprint string, bankAccountID int64) (bool, error) {
	result, err := tx.ExecContext(ctx,
		"UPDATE detected_payments SET bank_account_id = ? WHERE fingerprint = ? AND bank_account_id IS NULL AND status = ?",
		bankAccountID, fingerprint, string(models.PaymentStatusPending),
	)
	if err != nil {
		return false, err
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rowsAffected > 0, nil
}

func (r *paymentRepository) GetPaymentByID(ctx context.Context, id int64) (*models.DetectedPayment, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+paymentColumns+" FROM detected_payments WHERE id = ?", id)
	p, err := scanPayment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrPaymentNotFound
	}
	return p, err
}

func (r *paymentRepository) GetPaymentBySaleID(ctx context.Context, saleID int64) (*models.DetectedPayment, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+paymentColumns+" FROM detected_payments WHERE sale_id = ?", saleID)
	p, err := scanPayment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrPaymentNotFound
	}
	return p, err
}

func (r *paymentRepository) ListPayments(ctx context.Context, f models.PaymentFilter) ([]*models.DetectedPayment, int, error) {
	where, args := buildPaymentWhere(f)

	var total int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM detected_payments"+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit, offset := pageBounds(f.Page, f.Limit)
	query := "SELECT " + paymentColumns + " FROM detected_payments" + where +
		" ORDER BY operation_date DESC, id DESC LIMIT ? OFFSET ?"
	rows, err := r.db.QueryContext(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	payments, err := collectPayments(rows)
	return payments, total, err
}

// ListPendingPayments returns PENDING payments in processing order.
func (r *paymentRepository) ListPendingPayments(ctx context.Context) ([]*models.DetectedPayment, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+paymentColumns+" FROM detected_payments WHERE status = ? ORDER BY operation_date ASC, id ASC",
		string(models.PaymentStatusPending),
	)
	if err != nil {
		return nil, err
	}
	return collectPayments(rows)
}

// LastIngestedAt returns when a payment for the account was last recorded,
// or nil when none was.
func (r *paymentRepository) LastIngestedAt(ctx context.Context, bankAccountID int64) (*time.Time, error) {
	var at time.Time
	err := r.db.QueryRowContext(ctx,
		"SELECT created_at FROM detected_payments WHERE bank_account_id = ? ORDER BY created_at DESC LIMIT 1",
		bankAccountID,
	).Scan(&at)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &at, nil
}

func buildPaymentWhere(f models.PaymentFilter) (string, []any) {
	var clauses []string
	var args []any

	if f.Bank != "" {
		clauses = append(clauses, "bank = ?")
		args = append(args, f.Bank)
	}
	if f.Status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, string(f.Status))
	}
	if f.BankAccountID != 0 {
		clauses = append(clauses, "bank_account_id = ?")
		args = append(args, f.BankAccountID)
	}
	if f.From != nil {
		clauses = append(clauses, "operation_date >= ?")
		args = append(args, f.From.Format(models.DateLayout))
	}
	if f.To != nil {
		clauses = append(clauses, "operation_date <= ?")
		args = append(args, f.To.Format(models.DateLayout))
	}
	if f.Amount != nil {
		lo, hi := matching.AmountWindow(*f.Amount)
		clauses = append(clauses, "amount > ? AND amount < ?")
		args = append(args, lo, hi)
	}

	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}
