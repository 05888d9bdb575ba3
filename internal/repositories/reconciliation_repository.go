package repositories

import (
	"context"
	"database/sql"
	"errors"

	"sales-reconciliation/internal/models"
)

type ReconciliationRepository interface {
	CreateRun(ctx context.Context, tx *sql.Tx, run *models.ReconciliationRun) error
	FinishRun(ctx context.Context, tx *sql.Tx, run *models.ReconciliationRun) error
	GetRunByBatchID(ctx context.Context, batchID string) (*models.ReconciliationRun, error)
	ListRuns(ctx context.Context, limit int) ([]*models.ReconciliationRun, error)
	CreateAuditEntry(ctx context.Context, tx *sql.Tx, audit *models.ReconciliationAudit) error
	ListAuditByPayment(ctx context.Context, paymentID int64) ([]*models.ReconciliationAudit, error)
	ListAuditByRun(ctx context.Context, runID int64) ([]*models.ReconciliationAudit, error)
}

type reconciliationRepository struct {
	db *sql.DB
}

func NewReconciliationRepository(db *sql.DB) ReconciliationRepository {
	return &reconciliationRepository{db: db}
}

const runColumns = `id, batch_id, trigger_source, status, processed, matched, review, skipped,
	error_message, started_at, finished_at`

func scanRun(row rowScanner) (*models.ReconciliationRun, error) {
	var (
		run      models.ReconciliationRun
		finished sql.NullTime
	)
	err := row.Scan(
		&run.ID,
		&run.BatchID,
		&run.Trigger,
		&run.Status,
		&run.Processed,
		&run.Matched,
		&run.Review,
		&run.Skipped,
		&run.ErrorMessage,
		&run.StartedAt,
		&finished,
	)
	if err != nil {
		return nil, err
	}
	if finished.Valid {
		run.FinishedAt = &finished.Time
	}
	return &run, nil
}

func (r *reconciliationRepository) CreateRun(ctx context.Context, tx *sql.Tx, run *models.ReconciliationRun) error {
	query := `
		INSERT INTO reconciliation_runs (batch_id, trigger_source, status, started_at)
		VALUES (?, ?, ?, ?)
	`
	result, err := tx.ExecContext(ctx, query, run.BatchID, run.Trigger, run.Status, run.StartedAt.UTC())
	if err != nil {
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	run.ID = id
	return nil
}

func (r *reconciliationRepository) FinishRun(ctx context.Context, tx *sql.Tx, run *models.ReconciliationRun) error {
	var finished sql.NullTime
	if run.FinishedAt != nil {
		finished = sql.NullTime{Time: run.FinishedAt.UTC(), Valid: true}
	}
	query := `
		UPDATE reconciliation_runs
		SET status = ?,
		    processed = ?,
		    matched = ?,
		    review = ?,
		    skipped = ?,
		    error_message = ?,
		    finished_at = ?
		WHERE id = ?
	`
	result, err := tx.ExecContext(ctx, query,
		run.Status,
		run.Processed,
		run.Matched,
		run.Review,
		run.Skipped,
		run.ErrorMessage,
		finished,
		run.ID,
	)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return models.ErrRunNotFound
	}
	return nil
}

func (r *reconciliationRepository) GetRunByBatchID(ctx context.Context, batchID string) (*models.ReconciliationRun, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+runColumns+" FROM reconciliation_runs WHERE batch_id = ?", batchID)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrRunNotFound
	}
	return run, err
}

func (r *reconciliationRepository) ListRuns(ctx context.Context, limit int) ([]*models.ReconciliationRun, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.QueryContext(ctx, "SELECT "+runColumns+" FROM reconciliation_runs ORDER BY id DESC LIMIT ?", limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*models.ReconciliationRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func (r *reconciliationRepository) CreateAuditEntry(ctx context.Context, tx *sql.Tx, audit *models.ReconciliationAudit) error {
	query := `
		INSERT INTO reconciliation_audit (run_id, payment_id, sale_id, action, details, user_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	details := string(audit.Details)
	if details == "" {
		details = "{}"
	}
	result, err := tx.ExecContext(ctx, query,
		nullInt64(audit.RunID),
		audit.PaymentID,
		nullInt64(audit.SaleID),
		audit.Action,
		details,
		audit.UserID,
		audit.CreatedAt.UTC(),
	)
	if err != nil {
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	audit.ID = id
	return nil
}

func (r *reconciliationRepository) ListAuditByPayment(ctx context.Context, paymentID int64) ([]*models.ReconciliationAudit, error) {
	return r.listAudit(ctx, "payment_id = ?", paymentID)
}

func (r *reconciliationRepository) ListAuditByRun(ctx context.Context, runID int64) ([]*models.ReconciliationAudit, error) {
	return r.listAudit(ctx, "run_id = ?", runID)
}

func (r *reconciliationRepository) listAudit(ctx context.Context, where string, arg any) ([]*models.ReconciliationAudit, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, run_id, payment_id, sale_id, action, details, user_id, created_at
		FROM reconciliation_audit
		WHERE `+where+`
		ORDER BY id
	`, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*models.ReconciliationAudit
	for rows.Next() {
		var (
			a       models.ReconciliationAudit
			runID   sql.NullInt64
			saleID  sql.NullInt64
			details []byte
		)
		if err := rows.Scan(&a.ID, &runID, &a.PaymentID, &saleID, &a.Action, &details, &a.UserID, &a.CreatedAt); err != nil {
			return nil, err
		}
		if runID.Valid {
			a.RunID = &runID.Int64
		}
		if saleID.Valid {
			a.SaleID = &saleID.Int64
		}
		a.Details = details
		entries = append(entries, &a)
	}
	return entries, rows.Err()
}
