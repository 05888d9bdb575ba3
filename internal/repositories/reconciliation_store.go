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

// ReconciliationStore is the SQL backed matching.Store. Every link is a
// single transaction whose conditional updates make the move of a sale to
// PAID the one commit point concurrent writers compete for.
type ReconciliationStore struct {
	db       *sql.DB
	dialect  database.Dialect
	payments PaymentRepository
}

var _ matching.Store = (*ReconciliationStore)(nil)

func NewReconciliationStore(db *sql.DB, dialect database.Dialect, payments PaymentRepository) *ReconciliationStore {
	return &ReconciliationStore{db: db, dialect: dialect, payments: payments}
}

func (s *ReconciliationStore) ListPendingPayments(ctx context.Context) ([]*models.DetectedPayment, error) {
	return s.payments.ListPendingPayments(ctx)
}

func (s *ReconciliationStore) FindCandidateSales(ctx context.Context, p *models.DetectedPayment) ([]*models.Sale, error) {
	if !p.HasAccount() || !p.HasAmount() {
		return nil, nil
	}
	lo, hi := matching.AmountWindow(p.Amount)
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+saleColumns+`
		FROM sales
		WHERE bank_account_id = ? AND status <> ? AND amount > ? AND amount < ?
		ORDER BY id
	`, *p.BankAccountID, string(models.SaleStatusPaid), lo, hi)
	if err != nil {
		return nil, err
	}
	return collectSales(rows)
}

func (s *ReconciliationStore) LinkPaymentToSale(ctx context.Context, paymentID, saleID int64, at time.Time) error {
	return s.link(ctx, paymentID, saleID, at, models.PaymentStatusPending)
}

// OverrideLink is the operator path: it also accepts payments that the
// engine sent to REVIEW.
func (s *ReconciliationStore) OverrideLink(ctx context.Context, paymentID, saleID int64, at time.Time) error {
	return s.link(ctx, paymentID, saleID, at, models.PaymentStatusPending, models.PaymentStatusReview)
}

func (s *ReconciliationStore) MarkPaymentForReview(ctx context.Context, paymentID int64) error {
	return database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx,
			"UPDATE detected_payments SET status = ? WHERE id = ? AND status = ?",
			string(models.PaymentStatusReview), paymentID, string(models.PaymentStatusPending),
		)
		if err != nil {
			return err
		}
		return explainPaymentMiss(ctx, tx, result, paymentID)
	})
}

func (s *ReconciliationStore) link(ctx context.Context, paymentID, saleID int64, at time.Time, from ...models.PaymentStatus) error {
	return database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		var status string
		err := tx.QueryRowContext(ctx, "SELECT status FROM sales WHERE id = ?"+s.dialect.ForUpdate(), saleID).Scan(&status)
		if errors.Is(err, sql.ErrNoRows) {
			return models.ErrSaleNotFound
		}
		if err != nil {
			return err
		}
		if models.SaleStatus(status) == models.SaleStatusPaid {
			return models.ErrSaleAlreadyPaid
		}

		args := []any{string(models.PaymentStatusMatch), saleID, paymentID}
		for _, st := range from {
			args = append(args, string(st))
		}
		placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(from)), ", ")
		result, err := tx.ExecContext(ctx,
			"UPDATE detected_payments SET status = ?, sale_id = ? WHERE id = ? AND status IN ("+placeholders+")",
			args...,
		)
		if err != nil {
			return err
		}
		if err := explainPaymentMiss(ctx, tx, result, paymentID); err != nil {
			return err
		}

		result, err = tx.ExecContext(ctx,
			"UPDATE sales SET status = ?, updated_at = ? WHERE id = ? AND status <> ?",
			string(models.SaleStatusPaid), at.UTC(), saleID, string(models.SaleStatusPaid),
		)
		if err != nil {
			return err
		}
		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if rowsAffected == 0 {
			return models.ErrSaleAlreadyPaid
		}
		return nil
	})
}

// explainPaymentMiss turns a guarded payment update that touched no row into
// the matching sentinel error.
func explainPaymentMiss(ctx context.Context, tx *sql.Tx, result sql.Result, paymentID int64) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected > 0 {
		return nil
	}

	var one int
	err = tx.QueryRowContext(ctx, "SELECT 1 FROM detected_payments WHERE id = ?", paymentID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return models.ErrPaymentNotFound
	}
	if err != nil {
		return err
	}
	return models.ErrPaymentNotPending
}
