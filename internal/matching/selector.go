package matching

import (
	"github.com/shopspring/decimal"

	"sales-reconciliation/internal/models"
)

// AmountTolerance is the strict upper bound on |sale - payment|.
var AmountTolerance = decimal.New(1, -2)

// AmountWindow returns the open interval a candidate sale amount must fall in.
func AmountWindow(amount decimal.Decimal) (decimal.Decimal, decimal.Decimal) {
	return amount.Sub(AmountTolerance), amount.Add(AmountTolerance)
}

func AmountsMatch(a, b decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThan(AmountTolerance)
}

// SelectCandidates keeps the sales that could have been paid by p: same
// account, not yet PAID and an amount within tolerance. Input order is kept.
func SelectCandidates(p *models.DetectedPayment, sales []*models.Sale) []*models.Sale {
	if !p.HasAccount() || !p.HasAmount() {
		return nil
	}
	var candidates []*models.Sale
	for _, s := range sales {
		if s.BankAccountID != *p.BankAccountID || s.IsPaid() {
			continue
		}
		if !AmountsMatch(s.Amount, p.Amount) {
			continue
		}
		candidates = append(candidates, s)
	}
	return candidates
}
