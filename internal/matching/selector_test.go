package matching

import (
	"testing"

	"github.com/shopspring/decimal"

	"sales-reconciliation/internal/models"
)

func TestSelectCandidates(t *testing.T) {
	otherAccount := sale(4, "D", "100.00", payDay)
	otherAccount.BankAccountID = account + 1
	paid := sale(5, "E", "100.00", payDay)
	paid.Status = models.SaleStatusPaid
	awaiting := sale(6, "F", "100.00", payDay)
	awaiting.Status = models.SaleStatusAwaitingReconciliation

	sales := []*models.Sale{
		sale(1, "A", "100.00", payDay),
		sale(2, "B", "100.009", payDay),
		sale(3, "C", "100.01", payDay),
		otherAccount,
		paid,
		awaiting,
		sale(7, "G", "99.99", payDay),
	}

	got := SelectCandidates(payment(10, "100", payDay, ""), sales)
	want := []int64{1, 2, 6}
	if len(got) != len(want) {
		t.Fatalf("candidates got=%d want=%d", len(got), len(want))
	}
	for i, s := range got {
		if s.ID != want[i] {
			t.Fatalf("candidate %d got=%d want=%d", i, s.ID, want[i])
		}
	}
}

func TestSelectCandidatesWithoutAccount(t *testing.T) {
	p := payment(10, "100", payDay, "")
	p.BankAccountID = nil
	if got := SelectCandidates(p, []*models.Sale{sale(1, "A", "100", payDay)}); len(got) != 0 {
		t.Fatalf("payment without account got %d candidates", len(got))
	}
}

func TestAmountWindow(t *testing.T) {
	lo, hi := AmountWindow(decimal.RequireFromString("250.50"))
	if !lo.Equal(decimal.RequireFromString("250.49")) || !hi.Equal(decimal.RequireFromString("250.51")) {
		t.Fatalf("window got=(%s, %s)", lo, hi)
	}
}
