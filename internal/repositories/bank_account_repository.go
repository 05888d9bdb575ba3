package repositories

import (
	"context"
	"database/sql"
	"errors"

	"sales-reconciliation/internal/models"
)

type BankAccountRepository interface {
	CreateBankAccount(ctx context.Context, tx *sql.Tx, account *models.BankAccount) error
	GetBankAccountByID(ctx context.Context, id int64) (*models.BankAccount, error)
	FindBankAccount(ctx context.Context, bank, accountNumber string) (*models.BankAccount, error)
	ListBankAccounts(ctx context.Context, activeOnly bool) ([]*models.BankAccount, error)
}

type bankAccountRepository struct {
	db *sql.DB
}

func NewBankAccountRepository(db *sql.DB) BankAccountRepository {
	return &bankAccountRepository{db: db}
}

const bankAccountColumns = "id, bank, alias, account_number, clabe, currency, active, created_at"

func scanBankAccount(row rowScanner) (*models.BankAccount, error) {
	var a models.BankAccount
	err := row.Scan(&a.ID, &a.Bank, &a.Alias, &a.AccountNumber, &a.Clabe, &a.Currency, &a.Active, &a.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *bankAccountRepository) CreateBankAccount(ctx context.Context, tx *sql.Tx, account *models.BankAccount) error {
	query := `
		INSERT INTO bank_accounts (bank, alias, account_number, clabe, currency, active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	result, err := tx.ExecContext(ctx, query,
		account.Bank,
		account.Alias,
		account.AccountNumber,
		account.Clabe,
		account.Currency,
		account.Active,
		account.CreatedAt.UTC(),
	)
	if err != nil {
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	account.ID = id
	return nil
}

func (r *bankAccountRepository) GetBankAccountByID(ctx context.Context, id int64) (*models.BankAccount, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+bankAccountColumns+" FROM bank_accounts WHERE id = ?", id)
	a, err := scanBankAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrBankAccountNotFound
	}
	return a, err
}

func (r *bankAccountRepository) FindBankAccount(ctx context.Context, bank, accountNumber string) (*models.BankAccount, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+bankAccountColumns+" FROM bank_accounts WHERE bank = ? AND account_number = ?",
		bank, accountNumber,
	)
	a, err := scanBankAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrBankAccountNotFound
	}
	return a, err
}

func (r *bankAccountRepository) ListBankAccounts(ctx context.Context, activeOnly bool) ([]*models.BankAccount, error) {
	query := "SELECT " + bankAccountColumns + " FROM bank_accounts"
	if activeOnly {
		query += " WHERE active = 1"
	}
	query += " ORDER BY bank, alias"

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []*models.BankAccount
	for rows.Next() {
		a, err := scanBankAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}
