package matching

import (
	"strings"
	"time"

	"sales-reconciliation/internal/models"
)

const (
	// Score contributions
	FolioScore        = 70.0
	SameDayScore      = 20.0
	NextDayScore      = 10.0
	NearDayScore      = 5.0
	VeryFreshScore    = 10.0
	FreshScore        = 5.0
	AwaitingHintScore = 15.0

	// Freshness windows in hours before the payment's midnight
	VeryFreshHours = 4.0
	FreshHours     = 24.0

	// Days after the sale still counted as near
	NearDayMax = 3
)

// Match criteria recorded on a scored candidate.
const (
	CriterionFolio        = "folio_in_reference"
	CriterionSameDay      = "same_day"
	CriterionNextDay      = "next_day"
	CriterionNearDay      = "within_3_days"
	CriterionVeryFresh    = "created_within_4h"
	CriterionFresh        = "created_within_24h"
	CriterionAwaitingHint = "customer_reported_payment"
)

type ScoredCandidate struct {
	Sale     *models.Sale `json:"sale"`
	Score    float64      `json:"score"`
	Criteria []string     `json:"criteria"`
}

// ScoreCandidate rates how likely sale is the one paid by p. Calendar days
// and the payment's midnight are taken in loc.
func ScoreCandidate(p *models.DetectedPayment, sale *models.Sale, loc *time.Location) ScoredCandidate {
	if loc == nil {
		loc = time.UTC
	}
	result := ScoredCandidate{Sale: sale}
	add := func(points float64, criterion string) {
		result.Score += points
		result.Criteria = append(result.Criteria, criterion)
	}

	if folioInReferences(sale.Folio, p) {
		add(FolioScore, CriterionFolio)
	}

	paymentDay := time.Date(p.OperationDate.Year(), p.OperationDate.Month(), p.OperationDate.Day(), 0, 0, 0, 0, loc)
	created := sale.CreatedAt.In(loc)
	saleDay := time.Date(created.Year(), created.Month(), created.Day(), 0, 0, 0, 0, loc)

	switch days := calendarDays(saleDay, paymentDay); {
	case days == 0:
		add(SameDayScore, CriterionSameDay)
	case days == 1:
		add(NextDayScore, CriterionNextDay)
	case days >= 2 && days <= NearDayMax:
		add(NearDayScore, CriterionNearDay)
	}

	switch hours := paymentDay.Sub(created).Hours(); {
	case hours >= 0 && hours <= VeryFreshHours:
		add(VeryFreshScore, CriterionVeryFresh)
	case hours >= 0 && hours <= FreshHours:
		add(FreshScore, CriterionFresh)
	}

	if sale.Status == models.SaleStatusAwaitingReconciliation {
		add(AwaitingHintScore, CriterionAwaitingHint)
	}

	return result
}

// calendarDays counts whole days from a to b; negative when b is earlier.
func calendarDays(a, b time.Time) int {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	ua := time.Date(ay, am, ad, 0, 0, 0, 0, time.UTC)
	ub := time.Date(by, bm, bd, 0, 0, 0, 0, time.UTC)
	return int(ub.Sub(ua).Hours() / 24)
}

func folioInReferences(folio string, p *models.DetectedPayment) bool {
	folio = strings.ToLower(strings.TrimSpace(folio))
	if folio == "" {
		return false
	}
	text := strings.ToLower(p.Reference + " " + p.ExtendedReference + " " + p.Concept)
	if strings.Contains(text, folio) {
		return true
	}
	compact := stripSeparators(folio)
	return compact != "" && strings.Contains(stripSeparators(text), compact)
}

func stripSeparators(s string) string {
	return strings.NewReplacer("-", "", " ", "").Replace(s)
}
