package matching

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"sales-reconciliation/internal/models"
)

const (
	// DefaultMinScore is the lowest top score accepted without review.
	DefaultMinScore = 20.0
	// DefaultAmbiguityRatio sends a payment to review when the runner-up
	// scores at least this fraction of the best candidate.
	DefaultAmbiguityRatio = 0.7

	// maxApplyAttempts bounds how often one payment is re-decided when the
	// sale it was linked to got paid elsewhere during the pass.
	maxApplyAttempts = 3
)

// Store is the persistence the engine needs for one pass.
type Store interface {
	// ListPendingPayments returns every payment in PENDING state.
	ListPendingPayments(ctx context.Context) ([]*models.DetectedPayment, error)
	// FindCandidateSales returns the open sales of the payment's account whose
	// amount is within tolerance, in a stable order.
	FindCandidateSales(ctx context.Context, p *models.DetectedPayment) ([]*models.Sale, error)
	// LinkPaymentToSale atomically moves the payment PENDING -> MATCH and the
	// sale to PAID. It fails with models.ErrPaymentNotPending or
	// models.ErrSaleAlreadyPaid without changing anything.
	LinkPaymentToSale(ctx context.Context, paymentID, saleID int64, at time.Time) error
	// MarkPaymentForReview moves the payment PENDING -> REVIEW.
	MarkPaymentForReview(ctx context.Context, paymentID int64) error
}

type Outcome string

const (
	OutcomeMatched      Outcome = "matched"
	OutcomeReview       Outcome = "review"
	OutcomeNoCandidates Outcome = "no_candidates"
	OutcomeIncomplete   Outcome = "incomplete"
	// OutcomeStale means the payment left PENDING after the pass listed it.
	OutcomeStale Outcome = "stale"
)

type Decision struct {
	PaymentID  int64             `json:"payment_id"`
	SaleID     int64             `json:"sale_id,omitempty"`
	Outcome    Outcome           `json:"outcome"`
	Candidates int               `json:"candidates"`
	Scored     []ScoredCandidate `json:"scored,omitempty"`
	Reason     string            `json:"reason,omitempty"`
}

// BestScore returns the top score, zero when no scoring happened.
func (d Decision) BestScore() float64 {
	if len(d.Scored) == 0 {
		return 0
	}
	return d.Scored[0].Score
}

type RunResult struct {
	Processed int        `json:"processed"`
	Matched   int        `json:"matched"`
	Review    int        `json:"review"`
	Skipped   int        `json:"skipped"`
	Decisions []Decision `json:"decisions"`
}

type MatchEngine struct {
	mu             sync.Mutex
	minScore       float64
	ambiguityRatio float64
	location       *time.Location
	now            func() time.Time
}

type Option func(*MatchEngine)

func WithThresholds(minScore, ambiguityRatio float64) Option {
	return func(m *MatchEngine) {
		m.minScore = minScore
		m.ambiguityRatio = ambiguityRatio
	}
}

func WithLocation(loc *time.Location) Option {
	return func(m *MatchEngine) {
		if loc != nil {
			m.location = loc
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(m *MatchEngine) {
		m.now = now
	}
}

func NewMatchEngine(opts ...Option) *MatchEngine {
	m := &MatchEngine{
		minScore:       DefaultMinScore,
		ambiguityRatio: DefaultAmbiguityRatio,
		location:       time.UTC,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *MatchEngine) Location() *time.Location {
	return m.location
}

// Run performs one full pass over the pending payments. Passes on the same
// engine never overlap. A storage failure aborts the pass; payments already
// decided stay decided, so the pass can simply be run again.
func (m *MatchEngine) Run(ctx context.Context, store Store) (*RunResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	payments, err := store.ListPendingPayments(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending payments: %w", err)
	}
	sortForProcessing(payments)

	result := &RunResult{}
	for _, p := range payments {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		decision, err := m.process(ctx, store, p)
		if err != nil {
			return result, err
		}

		result.Processed++
		switch decision.Outcome {
		case OutcomeMatched:
			result.Matched++
		case OutcomeReview:
			result.Review++
		default:
			result.Skipped++
		}
		result.Decisions = append(result.Decisions, decision)
	}

	return result, nil
}

// process decides one payment and applies the decision. A sale paid by an
// operator since the candidates were read makes the payment be decided again
// on fresh candidates; a payment that left PENDING is reported stale.
func (m *MatchEngine) process(ctx context.Context, store Store, p *models.DetectedPayment) (Decision, error) {
	for attempt := 1; ; attempt++ {
		candidates, err := m.candidatesFor(ctx, store, p)
		if err != nil {
			return Decision{}, err
		}
		decision := m.Evaluate(p, candidates)

		switch decision.Outcome {
		case OutcomeMatched:
			err = store.LinkPaymentToSale(ctx, p.ID, decision.SaleID, m.now().UTC().Truncate(time.Second))
		case OutcomeReview:
			err = store.MarkPaymentForReview(ctx, p.ID)
		}

		switch {
		case err == nil:
			return decision, nil
		case errors.Is(err, models.ErrSaleAlreadyPaid) && attempt < maxApplyAttempts:
			log.Printf("[reconciliation] sale %d was paid during the pass, re-reading candidates of payment %d", decision.SaleID, p.ID)
		case errors.Is(err, models.ErrSaleAlreadyPaid), errors.Is(err, models.ErrPaymentNotPending):
			log.Printf("[reconciliation] payment %d changed state during the pass, skipping: %v", p.ID, err)
			return Decision{PaymentID: p.ID, Outcome: OutcomeStale, Candidates: decision.Candidates, Reason: err.Error()}, nil
		default:
			return decision, fmt.Errorf("failed to apply %s for payment %d: %w", decision.Outcome, p.ID, err)
		}
	}
}

func (m *MatchEngine) candidatesFor(ctx context.Context, store Store, p *models.DetectedPayment) ([]*models.Sale, error) {
	if !p.HasAccount() || !p.HasAmount() {
		return nil, nil
	}
	sales, err := store.FindCandidateSales(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("failed to find candidates for payment %d: %w", p.ID, err)
	}
	return SelectCandidates(p, sales), nil
}

// Evaluate decides what should happen to p given its candidate sales. It has
// no side effects.
func (m *MatchEngine) Evaluate(p *models.DetectedPayment, candidates []*models.Sale) Decision {
	d := Decision{PaymentID: p.ID, Candidates: len(candidates)}

	switch {
	case !p.HasAccount():
		d.Outcome = OutcomeIncomplete
		d.Reason = "account not resolved"
		return d
	case !p.HasAmount():
		d.Outcome = OutcomeIncomplete
		d.Reason = "amount missing"
		return d
	case len(candidates) == 0:
		d.Outcome = OutcomeNoCandidates
		return d
	case len(candidates) == 1:
		d.Outcome = OutcomeMatched
		d.SaleID = candidates[0].ID
		d.Reason = "single candidate"
		return d
	}

	d.Scored = m.Rank(p, candidates)
	best, second := d.Scored[0].Score, d.Scored[1].Score

	switch {
	case best < m.minScore:
		d.Outcome = OutcomeReview
		d.Reason = fmt.Sprintf("best score %.0f below %.0f", best, m.minScore)
	case second >= m.ambiguityRatio*best:
		d.Outcome = OutcomeReview
		d.Reason = fmt.Sprintf("runner-up %.0f too close to best %.0f", second, best)
	default:
		d.Outcome = OutcomeMatched
		d.SaleID = d.Scored[0].Sale.ID
	}
	return d
}

// Rank scores every candidate and orders them best first. Equal scores keep
// the candidates' original order.
func (m *MatchEngine) Rank(p *models.DetectedPayment, candidates []*models.Sale) []ScoredCandidate {
	scored := make([]ScoredCandidate, 0, len(candidates))
	for _, s := range candidates {
		scored = append(scored, ScoreCandidate(p, s, m.location))
	}
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})
	return scored
}

func sortForProcessing(payments []*models.DetectedPayment) {
	sort.SliceStable(payments, func(i, j int) bool {
		a, b := payments[i], payments[j]
		if !a.OperationDate.Equal(b.OperationDate) {
			return a.OperationDate.Before(b.OperationDate)
		}
		return a.ID < b.ID
	})
}
