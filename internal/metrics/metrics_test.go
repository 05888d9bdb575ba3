package metrics

import (
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveRun(t *testing.T) {
	okBefore := testutil.ToFloat64(ReconciliationRuns.WithLabelValues("manual", "ok"))
	errBefore := testutil.ToFloat64(ReconciliationRuns.WithLabelValues("manual", "error"))
	matchedBefore := testutil.ToFloat64(PaymentDecisions.WithLabelValues("matched"))

	ObserveRun("manual", nil, 20*time.Millisecond, map[string]int{"matched": 3})
	ObserveRun("manual", errors.New("boom"), time.Millisecond, nil)

	if got := testutil.ToFloat64(ReconciliationRuns.WithLabelValues("manual", "ok")) - okBefore; got != 1 {
		t.Errorf("ok runs delta got=%v want=1", got)
	}
	if got := testutil.ToFloat64(ReconciliationRuns.WithLabelValues("manual", "error")) - errBefore; got != 1 {
		t.Errorf("error runs delta got=%v want=1", got)
	}
	if got := testutil.ToFloat64(PaymentDecisions.WithLabelValues("matched")) - matchedBefore; got != 3 {
		t.Errorf("matched delta got=%v want=3", got)
	}
}

func TestHandlerExposesCollectors(t *testing.T) {
	ObserveIngestion(2, 1, 0)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if rec.Code != 200 {
		t.Fatalf("status got=%d want=200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "sales_reconciliation_ingestion_payments_total") {
		t.Fatalf("ingestion counter missing from exposition")
	}
}
