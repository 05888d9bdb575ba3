package models

import "errors"

var (
	ErrSaleNotFound        = errors.New("sale not found")
	ErrPaymentNotFound     = errors.New("payment not found")
	ErrBankAccountNotFound = errors.New("bank account not found")
	ErrRunNotFound         = errors.New("reconciliation run not found")

	// ErrSaleAlreadyPaid is returned when a sale that is already PAID would be
	// linked, edited or deleted.
	ErrSaleAlreadyPaid = errors.New("sale is already paid")
	// ErrPaymentNotPending is returned when a payment has already left the
	// state required for the requested transition.
	ErrPaymentNotPending = errors.New("payment is not pending")
	ErrAmbiguousFolio    = errors.New("folio matches more than one open sale")
)
