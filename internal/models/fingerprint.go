package models

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
)

// ComputeFingerprint derives the deduplication key of a payment from its
// bank, account, date, amount, reference fields and posted balance.
//
// The account is the number printed on the statement, so a line hashes the
// same before and after its account is registered. The database id is used
// only when no number is known.
func (p *DetectedPayment) ComputeFingerprint() string {
	account := strings.TrimSpace(p.AccountNumber)
	if account == "" && p.BankAccountID != nil {
		account = "id:" + strconv.FormatInt(*p.BankAccountID, 10)
	}
	balance := ""
	if p.PostedBalance.Valid {
		balance = p.PostedBalance.Decimal.StringFixed(2)
	}

	raw := strings.Join([]string{
		strings.ToUpper(strings.TrimSpace(p.Bank)),
		account,
		p.OperationDate.Format(DateLayout),
		p.Amount.StringFixed(2),
		strings.TrimSpace(p.Reference),
		strings.TrimSpace(p.ExtendedReference),
		strings.TrimSpace(p.Concept),
		balance,
	}, "|")

	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
