package services

import (
	"database/sql"
	"fmt"

	"sales-reconciliation/internal/config"
	"sales-reconciliation/internal/database"
	"sales-reconciliation/internal/matching"
	"sales-reconciliation/internal/repositories"
)

// ValidationError reports unusable input from a caller.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// Services wires every service of the application over one database.
type Services struct {
	Reconciliation *ReconciliationService
	Sales          *SalesService
	Ingestion      *DataIngestionService
	Accounts       *AccountService
	Reports        *ReportService
}

func New(db *sql.DB, cfg *config.Config) (*Services, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	dialect := database.DialectFor(cfg)

	saleRepo := repositories.NewSaleRepository(db)
	paymentRepo := repositories.NewPaymentRepository(db, dialect)
	accountRepo := repositories.NewBankAccountRepository(db)
	reconciliationRepo := repositories.NewReconciliationRepository(db)

	engine := matching.NewMatchEngine(
		matching.WithThresholds(cfg.Matching.MinScore, cfg.Matching.AmbiguityRatio),
		matching.WithLocation(loc),
	)
	store := repositories.NewReconciliationStore(db, dialect, paymentRepo)

	reconciliation := NewReconciliationService(db, engine, store, saleRepo, paymentRepo, reconciliationRepo)
	currency := cfg.DefaultCurrency

	return &Services{
		Reconciliation: reconciliation,
		Sales:          NewSalesService(db, saleRepo, paymentRepo, accountRepo, reconciliation, currency),
		Ingestion:      NewDataIngestionService(db, paymentRepo, accountRepo, reconciliation),
		Accounts:       NewAccountService(db, accountRepo, currency),
		Reports:        NewReportService(saleRepo, paymentRepo, loc),
	}, nil
}
