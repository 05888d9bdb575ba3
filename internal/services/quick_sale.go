package services

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strings"

	"github.com/shopspring/decimal"

	"sales-reconciliation/internal/database"
	"sales-reconciliation/internal/models"
)

// QuickSaleDocument is one outstanding receivable document picked by a
// salesperson, with the amount they edited it to.
type QuickSaleDocument struct {
	Customer       string          `json:"customer"`
	Document       string          `json:"document"`
	OriginalAmount decimal.Decimal `json:"original_amount"`
	EditedAmount   decimal.Decimal `json:"edited_amount"`
}

type QuickSaleInput struct {
	SalespersonID int64               `json:"salesperson_id"`
	BankAccountID int64               `json:"bank_account_id"`
	Currency      string              `json:"currency,omitempty"`
	Documents     []QuickSaleDocument `json:"documents"`
}

type QuickSaleResult struct {
	Sales []*models.Sale `json:"sales"`
	// Skipped lists the customers whose documents added up to nothing.
	Skipped []string `json:"skipped,omitempty"`
}

type customerDocs struct {
	customer string
	docs     []QuickSaleDocument
	total    decimal.Decimal
}

// CreateQuickSales rolls the selected documents into one sale per customer,
// with the documents kept as line items, and then runs a single pass.
func (s *SalesService) CreateQuickSales(ctx context.Context, input QuickSaleInput) (*QuickSaleResult, error) {
	if len(input.Documents) == 0 {
		return nil, invalid("documents", "at least one document is required")
	}
	if input.BankAccountID == 0 {
		return nil, invalid("bank_account_id", "is required")
	}
	if err := s.requireActiveAccount(ctx, input.BankAccountID); err != nil {
		return nil, err
	}

	var groups []*customerDocs
	byCustomer := make(map[string]*customerDocs)
	for i, doc := range input.Documents {
		customer := strings.TrimSpace(doc.Customer)
		if customer == "" {
			return nil, invalid("documents", "document %d has no customer", i+1)
		}
		if strings.TrimSpace(doc.Document) == "" {
			return nil, invalid("documents", "document %d has no document number", i+1)
		}
		g, ok := byCustomer[customer]
		if !ok {
			g = &customerDocs{customer: customer}
			byCustomer[customer] = g
			groups = append(groups, g)
		}
		g.docs = append(g.docs, doc)
		g.total = g.total.Add(doc.EditedAmount)
	}

	now := s.timestamp()
	result := &QuickSaleResult{Sales: []*models.Sale{}}
	err := database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		seq := 0
		for _, g := range groups {
			if !g.total.IsPositive() {
				result.Skipped = append(result.Skipped, g.customer)
				continue
			}
			seq++
			sale := &models.Sale{
				Folio:         quickSaleFolio(g.customer, now.Format("20060102150405"), seq),
				CustomerName:  g.customer,
				Amount:        g.total,
				Currency:      s.currency(input.Currency),
				BankAccountID: input.BankAccountID,
				SalespersonID: input.SalespersonID,
				Status:        models.SaleStatusPending,
				Note:          fmt.Sprintf("Quick sale of %d documents", len(g.docs)),
				CreatedAt:     now,
				UpdatedAt:     now,
			}
			for _, doc := range g.docs {
				sale.LineItems = append(sale.LineItems, models.SaleLineItem{
					Document:       strings.TrimSpace(doc.Document),
					EditedAmount:   doc.EditedAmount,
					OriginalAmount: doc.OriginalAmount,
				})
			}
			if err := s.saleRepo.CreateSale(ctx, tx, sale); err != nil {
				return fmt.Errorf("failed to create quick sale for %s: %w", g.customer, err)
			}
			result.Sales = append(result.Sales, sale)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	log.Printf("[sales] quick sale: %d sales created, %d customers skipped", len(result.Sales), len(result.Skipped))

	if len(result.Sales) > 0 {
		s.reconcile(ctx, models.TriggerQuickSale)
		for i, sale := range result.Sales {
			if fresh, err := s.saleRepo.GetSaleByID(ctx, sale.ID); err == nil {
				result.Sales[i] = fresh
			}
		}
	}
	return result, nil
}

// quickSaleFolio builds VR-<customer code>-<timestamp>-<nn>, the customer
// code being the first word of the customer name without dashes.
func quickSaleFolio(customer, stamp string, seq int) string {
	code := strings.ReplaceAll(strings.Fields(customer)[0], "-", "")
	if code == "" {
		code = "X"
	}
	return fmt.Sprintf("VR-%s-%s-%02d", strings.ToUpper(code), stamp, seq)
}
