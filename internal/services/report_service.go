package services

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"sales-reconciliation/internal/models"
	"sales-reconciliation/internal/repositories"
)

const reportPageSize = 500

type ReportService struct {
	saleRepo    repositories.SaleRepository
	paymentRepo repositories.PaymentRepository
	loc         *time.Location
	now         func() time.Time
}

func NewReportService(saleRepo repositories.SaleRepository, paymentRepo repositories.PaymentRepository, loc *time.Location) *ReportService {
	if loc == nil {
		loc = time.UTC
	}
	return &ReportService{saleRepo: saleRepo, paymentRepo: paymentRepo, loc: loc, now: time.Now}
}

// Today is the current date in the business timezone.
func (s *ReportService) Today() time.Time {
	return s.now().In(s.loc)
}

// DailySummary is the close of one business day.
type DailySummary struct {
	Date string `json:"date"`

	SalesCount     int             `json:"sales_count"`
	SalesPaid      int             `json:"sales_paid"`
	SalesOpen      int             `json:"sales_open"`
	SalesTotal     decimal.Decimal `json:"sales_total"`
	SalesPaidTotal decimal.Decimal `json:"sales_paid_total"`

	PaymentsCount   int             `json:"payments_count"`
	PaymentsMatched int             `json:"payments_matched"`
	PaymentsReview  int             `json:"payments_review"`
	PaymentsPending int             `json:"payments_pending"`
	PaymentsTotal   decimal.Decimal `json:"payments_total"`
	// UnlinkedTotal sums the payments of the day not linked to any sale.
	UnlinkedTotal decimal.Decimal `json:"unlinked_total"`
}

// DailySummary totals the sales registered and the payments operated on the
// given calendar day of the business timezone.
func (s *ReportService) DailySummary(ctx context.Context, day time.Time) (*DailySummary, error) {
	y, m, d := day.Date()
	from := time.Date(y, m, d, 0, 0, 0, 0, s.loc)
	to := from.AddDate(0, 0, 1)
	opDate := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)

	summary := &DailySummary{Date: opDate.Format(models.DateLayout)}

	for page := 1; ; page++ {
		sales, total, err := s.saleRepo.ListSales(ctx, models.SaleFilter{
			CreatedFrom: &from,
			CreatedTo:   &to,
			Page:        page,
			Limit:       reportPageSize,
		})
		if err != nil {
			return nil, err
		}
		for _, sale := range sales {
			summary.SalesCount++
			summary.SalesTotal = summary.SalesTotal.Add(sale.Amount)
			if sale.IsPaid() {
				summary.SalesPaid++
				summary.SalesPaidTotal = summary.SalesPaidTotal.Add(sale.Amount)
			} else {
				summary.SalesOpen++
			}
		}
		if len(sales) == 0 || summary.SalesCount >= total {
			break
		}
	}

	for page := 1; ; page++ {
		payments, total, err := s.paymentRepo.ListPayments(ctx, models.PaymentFilter{
			From:  &opDate,
			To:    &opDate,
			Page:  page,
			Limit: reportPageSize,
		})
		if err != nil {
			return nil, err
		}
		for _, p := range payments {
			summary.PaymentsCount++
			summary.PaymentsTotal = summary.PaymentsTotal.Add(p.Amount)
			switch p.Status {
			case models.PaymentStatusMatch:
				summary.PaymentsMatched++
			case models.PaymentStatusReview:
				summary.PaymentsReview++
			default:
				summary.PaymentsPending++
			}
			if p.SaleID == nil {
				summary.UnlinkedTotal = summary.UnlinkedTotal.Add(p.Amount)
			}
		}
		if len(payments) == 0 || summary.PaymentsCount >= total {
			break
		}
	}
	return summary, nil
}
