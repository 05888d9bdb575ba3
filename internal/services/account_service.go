package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"sales-reconciliation/internal/database"
	"sales-reconciliation/internal/models"
	"sales-reconciliation/internal/repositories"
)

type AccountService struct {
	db              *sql.DB
	accountRepo     repositories.BankAccountRepository
	defaultCurrency string
}

func NewAccountService(db *sql.DB, accountRepo repositories.BankAccountRepository, defaultCurrency string) *AccountService {
	if defaultCurrency == "" {
		defaultCurrency = models.DefaultCurrency
	}
	return &AccountService{db: db, accountRepo: accountRepo, defaultCurrency: defaultCurrency}
}

type AccountInput struct {
	Bank          string `json:"bank" toml:"bank"`
	Alias         string `json:"alias" toml:"alias"`
	AccountNumber string `json:"account_number" toml:"account_number"`
	Clabe         string `json:"clabe,omitempty" toml:"clabe"`
	Currency      string `json:"currency,omitempty" toml:"currency"`
	Active        *bool  `json:"active,omitempty" toml:"active"`
}

// accountsFile is the layout of an accounts seed file:
//
//	[[account]]
//	bank = "BBVA"
//	alias = "Operations"
//	account_number = "0123456789"
type accountsFile struct {
	Accounts []AccountInput `toml:"account"`
}

func (s *AccountService) CreateAccount(ctx context.Context, input AccountInput) (*models.BankAccount, error) {
	account, err := s.buildAccount(input)
	if err != nil {
		return nil, err
	}
	err = database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		return s.accountRepo.CreateBankAccount(ctx, tx, account)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create bank account: %w", err)
	}
	return account, nil
}

func (s *AccountService) buildAccount(input AccountInput) (*models.BankAccount, error) {
	if strings.TrimSpace(input.Bank) == "" {
		return nil, invalid("bank", "is required")
	}
	if strings.TrimSpace(input.AccountNumber) == "" {
		return nil, invalid("account_number", "is required")
	}
	currency := strings.ToUpper(strings.TrimSpace(input.Currency))
	if currency == "" {
		currency = s.defaultCurrency
	}
	active := true
	if input.Active != nil {
		active = *input.Active
	}
	alias := strings.TrimSpace(input.Alias)
	if alias == "" {
		alias = strings.TrimSpace(input.AccountNumber)
	}
	return &models.BankAccount{
		Bank:          normalizeBank(input.Bank),
		Alias:         alias,
		AccountNumber: strings.TrimSpace(input.AccountNumber),
		Clabe:         strings.TrimSpace(input.Clabe),
		Currency:      currency,
		Active:        active,
		CreatedAt:     time.Now().UTC().Truncate(time.Second),
	}, nil
}

func (s *AccountService) ListAccounts(ctx context.Context, activeOnly bool) ([]*models.BankAccount, error) {
	return s.accountRepo.ListBankAccounts(ctx, activeOnly)
}

// LoadAccountsFile reads a TOML accounts seed file.
func LoadAccountsFile(path string) ([]AccountInput, error) {
	var file accountsFile
	if _, err := toml.DecodeFile(path, &file); err != nil {
		return nil, fmt.Errorf("failed to read accounts file %s: %w", path, err)
	}
	return file.Accounts, nil
}

// SeedAccounts creates the accounts that are not registered yet, keyed by
// bank and account number. Existing accounts are left untouched.
func (s *AccountService) SeedAccounts(ctx context.Context, inputs []AccountInput) (created, existing int, err error) {
	for _, input := range inputs {
		account, err := s.buildAccount(input)
		if err != nil {
			return created, existing, err
		}
		_, err = s.accountRepo.FindBankAccount(ctx, account.Bank, account.AccountNumber)
		if err == nil {
			existing++
			continue
		}
		if !errors.Is(err, models.ErrBankAccountNotFound) {
			return created, existing, err
		}
		err = database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
			return s.accountRepo.CreateBankAccount(ctx, tx, account)
		})
		if err != nil {
			return created, existing, fmt.Errorf("failed to seed account %s/%s: %w", account.Bank, account.AccountNumber, err)
		}
		created++
	}
	log.Printf("[accounts] seeded %d accounts, %d already present", created, existing)
	return created, existing, nil
}
