package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"sales-reconciliation/internal/matching"
	"sales-reconciliation/internal/models"
)

type SaleRepository interface {
	CreateSale(ctx context.Context, tx *sql.Tx, sale *models.Sale) error
	GetSaleByID(ctx context.Context, id int64) (*models.Sale, error)
	GetOpenSalesByFolio(ctx context.Context, folio string) ([]*models.Sale, error)
	ListSales(ctx context.Context, f models.SaleFilter) ([]*models.Sale, int, error)
	ListOpenSalesByAmount(ctx context.Context, bankAccountID int64, amount decimal.Decimal, limit int) ([]*models.Sale, error)
	UpdateSale(ctx context.Context, tx *sql.Tx, sale *models.Sale) error
	UpdateSaleStatus(ctx context.Context, tx *sql.Tx, id int64, status models.SaleStatus, at time.Time) error
	SetReceiptRef(ctx context.Context, tx *sql.Tx, id int64, ref string, at time.Time) error
	DeleteSale(ctx context.Context, tx *sql.Tx, id int64) error
	GetLineItems(ctx context.Context, saleID int64) ([]models.SaleLineItem, error)
}

type saleRepository struct {
	db *sql.DB
}

func NewSaleRepository(db *sql.DB) SaleRepository {
	return &saleRepository{db: db}
}

const saleColumns = `id, folio, customer_name, amount, currency, bank_account_id, salesperson_id,
	status, note, receipt_ref, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSale(row rowScanner) (*models.Sale, error) {
	var (
		sale       models.Sale
		status     string
		receiptRef sql.NullString
	)
	err := row.Scan(
		&sale.ID,
		&sale.Folio,
		&sale.CustomerName,
		&sale.Amount,
		&sale.Currency,
		&sale.BankAccountID,
		&sale.SalespersonID,
		&status,
		&sale.Note,
		&receiptRef,
		&sale.CreatedAt,
		&sale.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	sale.Status = models.SaleStatus(status)
	sale.ReceiptRef = receiptRef.String
	return &sale, nil
}

func collectSales(rows *sql.Rows) ([]*models.Sale, error) {
	defer rows.Close()
	var sales []*models.Sale
	for rows.Next() {
		sale, err := scanSale(rows)
		if err != nil {
			return nil, err
		}
		sales = append(sales, sale)
	}
	return sales, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func (r *saleRepository) CreateSale(ctx context.Context, tx *sql.Tx, sale *models.Sale) error {
	query := `
		INSERT INTO sales (
			folio, customer_name, amount, currency, bank_account_id, salesperson_id,
			status, note, receipt_ref, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	result, err := tx.ExecContext(ctx, query,
		sale.Folio,
		sale.CustomerName,
		sale.Amount,
		sale.Currency,
		sale.BankAccountID,
		sale.SalespersonID,
		string(sale.Status),
		sale.Note,
		nullString(sale.ReceiptRef),
		sale.CreatedAt.UTC(),
		sale.UpdatedAt.UTC(),
	)
	if err != nil {
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	sale.ID = id

	for i := range sale.LineItems {
		item := &sale.LineItems[i]
		item.SaleID = id
		result, err := tx.ExecContext(ctx, `
			INSERT INTO sale_line_items (sale_id, document, edited_amount, original_amount)
			VALUES (?, ?, ?, ?)
		`, id, item.Document, item.EditedAmount, item.OriginalAmount)
		if err != nil {
			return fmt.Errorf("failed to insert line item %s: %w", item.Document, err)
		}
		if item.ID, err = result.LastInsertId(); err != nil {
			return err
		}
	}
	return nil
}

func (r *saleRepository) GetSaleByID(ctx context.Context, id int64) (*models.Sale, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+saleColumns+" FROM sales WHERE id = ?", id)
	sale, err := scanSale(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrSaleNotFound
	}
	if err != nil {
		return nil, err
	}

	sale.LineItems, err = r.GetLineItems(ctx, id)
	if err != nil {
		return nil, err
	}
	return sale, nil
}

// GetOpenSalesByFolio returns the not yet PAID sales whose folio equals the
// given one, ignoring case and surrounding spaces.
func (r *saleRepository) GetOpenSalesByFolio(ctx context.Context, folio string) ([]*models.Sale, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+saleColumns+" FROM sales WHERE LOWER(TRIM(folio)) = ? AND status <> ? ORDER BY id",
		strings.ToLower(strings.TrimSpace(folio)), string(models.SaleStatusPaid),
	)
	if err != nil {
		return nil, err
	}
	return collectSales(rows)
}

func (r *saleRepository) ListSales(ctx context.Context, f models.SaleFilter) ([]*models.Sale, int, error) {
	where, args := buildSaleWhere(f)

	var total int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM sales"+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit, offset := pageBounds(f.Page, f.Limit)
	query := "SELECT " + saleColumns + " FROM sales" + where + " ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?"
	rows, err := r.db.QueryContext(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	sales, err := collectSales(rows)
	return sales, total, err
}

func (r *saleRepository) ListOpenSalesByAmount(ctx context.Context, bankAccountID int64, amount decimal.Decimal, limit int) ([]*models.Sale, error) {
	lo, hi := matching.AmountWindow(amount)
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+saleColumns+`
		FROM sales
		WHERE bank_account_id = ? AND status <> ? AND amount > ? AND amount < ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`, bankAccountID, string(models.SaleStatusPaid), lo, hi, limit)
	if err != nil {
		return nil, err
	}
	return collectSales(rows)
}

func (r *saleRepository) UpdateSale(ctx context.Context, tx *sql.Tx, sale *models.Sale) error {
	query := `
		UPDATE sales
		SET folio = ?,
		    customer_name = ?,
		    amount = ?,
		    currency = ?,
		    bank_account_id = ?,
		    note = ?,
		    updated_at = ?
		WHERE id = ? AND status <> ?
	`
	result, err := tx.ExecContext(ctx, query,
		sale.Folio,
		sale.CustomerName,
		sale.Amount,
		sale.Currency,
		sale.BankAccountID,
		sale.Note,
		sale.UpdatedAt.UTC(),
		sale.ID,
		string(models.SaleStatusPaid),
	)
	if err != nil {
		return err
	}
	return r.requireUnpaidChange(ctx, tx, result, sale.ID)
}

// UpdateSaleStatus changes the status of a sale that is not yet PAID.
func (r *saleRepository) UpdateSaleStatus(ctx context.Context, tx *sql.Tx, id int64, status models.SaleStatus, at time.Time) error {
	result, err := tx.ExecContext(ctx,
		"UPDATE sales SET status = ?, updated_at = ? WHERE id = ? AND status <> ?",
		string(status), at.UTC(), id, string(models.SaleStatusPaid),
	)
	if err != nil {
		return err
	}
	return r.requireUnpaidChange(ctx, tx, result, id)
}

func (r *saleRepository) SetReceiptRef(ctx context.Context, tx *sql.Tx, id int64, ref string, at time.Time) error {
	result, err := tx.ExecContext(ctx,
		"UPDATE sales SET receipt_ref = ?, updated_at = ? WHERE id = ?",
		nullString(ref), at.UTC(), id,
	)
	if err != nil {
		return err
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return models.ErrSaleNotFound
	}
	return nil
}

func (r *saleRepository) DeleteSale(ctx context.Context, tx *sql.Tx, id int64) error {
	if _, err := tx.ExecContext(ctx, `
		DELETE FROM sale_line_items
		WHERE sale_id IN (SELECT id FROM sales WHERE id = ? AND status <> ?)
	`, id, string(models.SaleStatusPaid)); err != nil {
		return err
	}
	result, err := tx.ExecContext(ctx, "DELETE FROM sales WHERE id = ? AND status <> ?", id, string(models.SaleStatusPaid))
	if err != nil {
		return err
	}
	return r.requireUnpaidChange(ctx, tx, result, id)
}

// requireUnpaidChange explains a guarded write that touched no row.
func (r *saleRepository) requireUnpaidChange(ctx context.Context, tx *sql.Tx, result sql.Result, id int64) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected > 0 {
		return nil
	}

	var status string
	err = tx.QueryRowContext(ctx, "SELECT status FROM sales WHERE id = ?", id).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return models.ErrSaleNotFound
	}
	if err != nil {
		return err
	}
	if models.SaleStatus(status) == models.SaleStatusPaid {
		return models.ErrSaleAlreadyPaid
	}
	// MySQL reports zero affected rows when the values did not change
	return nil
}

func (r *saleRepository) GetLineItems(ctx context.Context, saleID int64) ([]models.SaleLineItem, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, sale_id, document, edited_amount, original_amount
		FROM sale_line_items
		WHERE sale_id = ?
		ORDER BY id
	`, saleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []models.SaleLineItem
	for rows.Next() {
		var item models.SaleLineItem
		if err := rows.Scan(&item.ID, &item.SaleID, &item.Document, &item.EditedAmount, &item.OriginalAmount); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func buildSaleWhere(f models.SaleFilter) (string, []any) {
	var clauses []string
	var args []any

	if f.Status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, string(f.Status))
	}
	if f.BankAccountID != 0 {
		clauses = append(clauses, "bank_account_id = ?")
		args = append(args, f.BankAccountID)
	}
	if f.SalespersonID != 0 {
		clauses = append(clauses, "salesperson_id = ?")
		args = append(args, f.SalespersonID)
	}
	if f.Folio != "" {
		clauses = append(clauses, "LOWER(folio) LIKE ?")
		args = append(args, "%"+strings.ToLower(strings.TrimSpace(f.Folio))+"%")
	}
	if f.CreatedFrom != nil {
		clauses = append(clauses, "created_at >= ?")
		args = append(args, f.CreatedFrom.UTC())
	}
	if f.CreatedTo != nil {
		clauses = append(clauses, "created_at < ?")
		args = append(args, f.CreatedTo.UTC())
	}

	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func pageBounds(page, limit int) (int, int) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}
	if page <= 0 {
		page = 1
	}
	return limit, (page - 1) * limit
}
