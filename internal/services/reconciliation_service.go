package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"sales-reconciliation/internal/database"
	"sales-reconciliation/internal/matching"
	"sales-reconciliation/internal/metrics"
	"sales-reconciliation/internal/models"
	"sales-reconciliation/internal/repositories"
)

// CandidateLimit caps the sales offered to an operator for one payment.
const CandidateLimit = 30

type ReconciliationService struct {
	db                 *sql.DB
	matchEngine        *matching.MatchEngine
	store              *repositories.ReconciliationStore
	saleRepo           repositories.SaleRepository
	paymentRepo        repositories.PaymentRepository
	reconciliationRepo repositories.ReconciliationRepository
	now                func() time.Time
}

func NewReconciliationService(
	db *sql.DB,
	matchEngine *matching.MatchEngine,
	store *repositories.ReconciliationStore,
	saleRepo repositories.SaleRepository,
	paymentRepo repositories.PaymentRepository,
	reconciliationRepo repositories.ReconciliationRepository,
) *ReconciliationService {
	return &ReconciliationService{
		db:                 db,
		matchEngine:        matchEngine,
		store:              store,
		saleRepo:           saleRepo,
		paymentRepo:        paymentRepo,
		reconciliationRepo: reconciliationRepo,
		now:                time.Now,
	}
}

type ReconciliationResult struct {
	BatchID   string              `json:"batch_id"`
	Trigger   string              `json:"trigger"`
	Status    string              `json:"status"`
	Processed int                 `json:"processed"`
	Matched   int                 `json:"matched"`
	Review    int                 `json:"review"`
	Skipped   int                 `json:"skipped"`
	Decisions []matching.Decision `json:"decisions,omitempty"`
}

func (s *ReconciliationService) timestamp() time.Time {
	return s.now().UTC().Truncate(time.Second)
}

// RunReconciliation runs one matching pass and records it as a run with an
// audit entry per MATCH or REVIEW decision.
func (s *ReconciliationService) RunReconciliation(ctx context.Context, trigger string) (*ReconciliationResult, error) {
	start := time.Now()
	run := &models.ReconciliationRun{
		BatchID:   uuid.NewString(),
		Trigger:   trigger,
		Status:    models.RunStatusRunning,
		StartedAt: s.timestamp(),
	}
	err := database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		return s.reconciliationRepo.CreateRun(ctx, tx, run)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create reconciliation run: %w", err)
	}

	result, runErr := s.matchEngine.Run(ctx, s.store)
	if result == nil {
		result = &matching.RunResult{}
	}

	finished := s.timestamp()
	run.FinishedAt = &finished
	run.Processed, run.Matched, run.Review, run.Skipped = result.Processed, result.Matched, result.Review, result.Skipped
	run.Status = models.RunStatusCompleted
	if runErr != nil {
		run.Status = models.RunStatusFailed
		run.ErrorMessage = runErr.Error()
	}

	// the run is recorded even when the caller has gone away
	recordCtx := context.WithoutCancel(ctx)
	err = database.WithTx(recordCtx, s.db, func(tx *sql.Tx) error {
		for _, d := range result.Decisions {
			if d.Outcome != matching.OutcomeMatched && d.Outcome != matching.OutcomeReview {
				continue
			}
			if err := s.reconciliationRepo.CreateAuditEntry(recordCtx, tx, decisionAudit(run.ID, d, finished)); err != nil {
				return fmt.Errorf("failed to create audit entry: %w", err)
			}
		}
		return s.reconciliationRepo.FinishRun(recordCtx, tx, run)
	})

	outcomes := make(map[string]int)
	for _, d := range result.Decisions {
		outcomes[string(d.Outcome)]++
	}
	metrics.ObserveRun(trigger, runErr, time.Since(start), outcomes)

	log.Printf("[reconciliation] run %s (%s): processed=%d matched=%d review=%d skipped=%d",
		run.BatchID, trigger, run.Processed, run.Matched, run.Review, run.Skipped)

	if runErr != nil {
		return nil, fmt.Errorf("reconciliation run %s failed: %w", run.BatchID, runErr)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to record reconciliation run %s: %w", run.BatchID, err)
	}

	return &ReconciliationResult{
		BatchID:   run.BatchID,
		Trigger:   trigger,
		Status:    run.Status,
		Processed: result.Processed,
		Matched:   result.Matched,
		Review:    result.Review,
		Skipped:   result.Skipped,
		Decisions: result.Decisions,
	}, nil
}

func decisionAudit(runID int64, d matching.Decision, at time.Time) *models.ReconciliationAudit {
	details := map[string]interface{}{
		"outcome":    d.Outcome,
		"candidates": d.Candidates,
	}
	if d.Reason != "" {
		details["reason"] = d.Reason
	}
	if len(d.Scored) > 0 {
		scores := make([]map[string]interface{}, 0, len(d.Scored))
		for _, c := range d.Scored {
			scores = append(scores, map[string]interface{}{
				"sale_id":  c.Sale.ID,
				"score":    c.Score,
				"criteria": c.Criteria,
			})
		}
		details["scores"] = scores
	}
	raw, _ := json.Marshal(details)

	audit := &models.ReconciliationAudit{
		RunID:     &runID,
		PaymentID: d.PaymentID,
		Action:    models.AuditActionReview,
		Details:   raw,
		CreatedAt: at,
	}
	if d.Outcome == matching.OutcomeMatched {
		saleID := d.SaleID
		audit.SaleID = &saleID
		audit.Action = models.AuditActionMatched
	}
	return audit
}

func (s *ReconciliationService) GetRun(ctx context.Context, batchID string) (*models.ReconciliationRun, error) {
	return s.reconciliationRepo.GetRunByBatchID(ctx, batchID)
}

func (s *ReconciliationService) ListRuns(ctx context.Context, limit int) ([]*models.ReconciliationRun, error) {
	return s.reconciliationRepo.ListRuns(ctx, limit)
}

type ManualMatchRequest struct {
	PaymentID int64  `json:"payment_id"`
	SaleID    int64  `json:"sale_id,omitempty"`
	Folio     string `json:"folio,omitempty"`
	UserID    string `json:"user_id,omitempty"`
}

type ManualMatchResult struct {
	PaymentID int64  `json:"payment_id"`
	SaleID    int64  `json:"sale_id"`
	Folio     string `json:"folio"`
}

// ManualMatch links a payment to the sale chosen by an operator, either by
// id or by folio, bypassing scoring. The sale must not be PAID and the
// payment must still be PENDING or in REVIEW.
func (s *ReconciliationService) ManualMatch(ctx context.Context, req ManualMatchRequest) (*ManualMatchResult, error) {
	if req.PaymentID == 0 {
		return nil, invalid("payment_id", "is required")
	}
	payment, err := s.paymentRepo.GetPaymentByID(ctx, req.PaymentID)
	if err != nil {
		return nil, err
	}
	if payment.Status == models.PaymentStatusMatch {
		return nil, models.ErrPaymentNotPending
	}

	var sale *models.Sale
	method := "sale_id"
	switch {
	case req.SaleID != 0:
		sale, err = s.saleRepo.GetSaleByID(ctx, req.SaleID)
		if err != nil {
			return nil, err
		}
		if sale.IsPaid() {
			return nil, models.ErrSaleAlreadyPaid
		}
	case req.Folio != "":
		method = "folio"
		sales, err := s.saleRepo.GetOpenSalesByFolio(ctx, req.Folio)
		if err != nil {
			return nil, fmt.Errorf("failed to look up folio %q: %w", req.Folio, err)
		}
		if len(sales) == 0 {
			return nil, fmt.Errorf("no open sale with folio %q: %w", req.Folio, models.ErrSaleNotFound)
		}
		if len(sales) > 1 {
			return nil, fmt.Errorf("folio %q: %w", req.Folio, models.ErrAmbiguousFolio)
		}
		sale = sales[0]
	default:
		return nil, invalid("sale_id", "a sale id or a folio is required")
	}

	at := s.timestamp()
	if err := s.store.OverrideLink(ctx, payment.ID, sale.ID, at); err != nil {
		return nil, err
	}
	metrics.ManualMatches.Inc()

	details, _ := json.Marshal(map[string]interface{}{
		"method":          method,
		"folio":           sale.Folio,
		"previous_status": payment.Status,
	})
	saleID := sale.ID
	err = database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		return s.reconciliationRepo.CreateAuditEntry(ctx, tx, &models.ReconciliationAudit{
			PaymentID: payment.ID,
			SaleID:    &saleID,
			Action:    models.AuditActionManualMatch,
			Details:   details,
			UserID:    req.UserID,
			CreatedAt: at,
		})
	})
	if err != nil {
		// the link itself is committed
		log.Printf("[reconciliation] failed to audit manual match of payment %d: %v", payment.ID, err)
	}

	log.Printf("[reconciliation] payment %d manually linked to sale %d (%s) by %q", payment.ID, sale.ID, sale.Folio, req.UserID)
	return &ManualMatchResult{PaymentID: payment.ID, SaleID: sale.ID, Folio: sale.Folio}, nil
}

type CandidatesResult struct {
	Payment    *models.DetectedPayment    `json:"payment"`
	Candidates []matching.ScoredCandidate `json:"candidates"`
	Suggestion *matching.Decision         `json:"suggestion,omitempty"`
}

// GetCandidates lists the open sales an operator can choose from for an
// unresolved payment, newest first, each with its preview score.
func (s *ReconciliationService) GetCandidates(ctx context.Context, paymentID int64) (*CandidatesResult, error) {
	payment, err := s.paymentRepo.GetPaymentByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	result := &CandidatesResult{Payment: payment, Candidates: []matching.ScoredCandidate{}}
	if payment.Status == models.PaymentStatusMatch || !payment.HasAccount() || !payment.HasAmount() {
		return result, nil
	}

	sales, err := s.saleRepo.ListOpenSalesByAmount(ctx, *payment.BankAccountID, payment.Amount, CandidateLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to list candidates for payment %d: %w", paymentID, err)
	}
	sales = matching.SelectCandidates(payment, sales)
	for _, sale := range sales {
		result.Candidates = append(result.Candidates, matching.ScoreCandidate(payment, sale, s.matchEngine.Location()))
	}
	if len(sales) > 0 {
		d := s.matchEngine.Evaluate(payment, sales)
		result.Suggestion = &d
	}
	return result, nil
}

func (s *ReconciliationService) GetPaymentAudit(ctx context.Context, paymentID int64) ([]*models.ReconciliationAudit, error) {
	if _, err := s.paymentRepo.GetPaymentByID(ctx, paymentID); err != nil {
		return nil, err
	}
	return s.reconciliationRepo.ListAuditByPayment(ctx, paymentID)
}

func (s *ReconciliationService) GetPayment(ctx context.Context, id int64) (*models.DetectedPayment, error) {
	return s.paymentRepo.GetPaymentByID(ctx, id)
}

func (s *ReconciliationService) ListPayments(ctx context.Context, f models.PaymentFilter) ([]*models.DetectedPayment, int, error) {
	return s.paymentRepo.ListPayments(ctx, f)
}
