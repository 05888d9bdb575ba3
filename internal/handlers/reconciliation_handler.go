package handlers

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"sales-reconciliation/internal/models"
	"sales-reconciliation/internal/services"
)

type ReconciliationHandler struct {
	reconciliationService *services.ReconciliationService
	reportService         *services.ReportService
	processingMutex       sync.Mutex
	activeProcesses       map[string]bool
}

func NewReconciliationHandler(reconciliationService *services.ReconciliationService, reportService *services.ReportService) *ReconciliationHandler {
	return &ReconciliationHandler{
		reconciliationService: reconciliationService,
		reportService:         reportService,
		activeProcesses:       make(map[string]bool),
	}
}

// RunReconciliation starts a pass on demand. A second request while one is
// in progress is refused instead of queued.
func (h *ReconciliationHandler) RunReconciliation(w http.ResponseWriter, r *http.Request) {
	const processKey = models.TriggerManual

	h.processingMutex.Lock()
	if h.activeProcesses[processKey] {
		h.processingMutex.Unlock()
		respondWithError(w, http.StatusConflict, "Reconciliation is already in progress")
		return
	}
	h.activeProcesses[processKey] = true
	h.processingMutex.Unlock()

	defer func() {
		h.processingMutex.Lock()
		delete(h.activeProcesses, processKey)
		h.processingMutex.Unlock()
	}()

	result, err := h.reconciliationService.RunReconciliation(r.Context(), models.TriggerManual)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, result)
}

func (h *ReconciliationHandler) GetRun(w http.ResponseWriter, r *http.Request) {
	batchID := mux.Vars(r)["batch_id"]
	if batchID == "" {
		respondWithError(w, http.StatusBadRequest, "Batch ID is required")
		return
	}

	run, err := h.reconciliationService.GetRun(r.Context(), batchID)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, run)
}

func (h *ReconciliationHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := h.reconciliationService.ListRuns(r.Context(), queryInt(r, "limit"))
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	if runs == nil {
		runs = []*models.ReconciliationRun{}
	}
	respondWithJSON(w, http.StatusOK, runs)
}

func (h *ReconciliationHandler) ListPayments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := models.PaymentFilter{
		Bank:          q.Get("bank"),
		Status:        models.PaymentStatus(q.Get("status")),
		BankAccountID: queryInt64(r, "bank_account_id"),
		Page:          queryInt(r, "page"),
		Limit:         queryInt(r, "limit"),
	}
	if f.Status != "" && !f.Status.Valid() {
		respondWithError(w, http.StatusBadRequest, "Invalid status")
		return
	}
	var err error
	if f.From, err = queryDate(r, "from_date"); err != nil {
		respondWithServiceError(w, err)
		return
	}
	if f.To, err = queryDate(r, "to_date"); err != nil {
		respondWithServiceError(w, err)
		return
	}
	if raw := q.Get("amount"); raw != "" {
		amount, err := decimal.NewFromString(raw)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, "Invalid amount")
			return
		}
		f.Amount = &amount
	}

	payments, total, err := h.reconciliationService.ListPayments(r.Context(), f)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	if payments == nil {
		payments = []*models.DetectedPayment{}
	}
	respondWithJSON(w, http.StatusOK, ListResponse{Data: payments, Total: total, Page: f.Page, Limit: f.Limit})
}

func (h *ReconciliationHandler) GetPayment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		respondWithError(w, http.StatusBadRequest, "Invalid payment id")
		return
	}
	payment, err := h.reconciliationService.GetPayment(r.Context(), id)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, payment)
}

func (h *ReconciliationHandler) GetCandidates(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		respondWithError(w, http.StatusBadRequest, "Invalid payment id")
		return
	}
	result, err := h.reconciliationService.GetCandidates(r.Context(), id)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, result)
}

func (h *ReconciliationHandler) ManualMatch(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		respondWithError(w, http.StatusBadRequest, "Invalid payment id")
		return
	}

	var request services.ManualMatchRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	request.PaymentID = id

	result, err := h.reconciliationService.ManualMatch(r.Context(), request)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, result)
}

func (h *ReconciliationHandler) GetPaymentAudit(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		respondWithError(w, http.StatusBadRequest, "Invalid payment id")
		return
	}
	entries, err := h.reconciliationService.GetPaymentAudit(r.Context(), id)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	if entries == nil {
		entries = []*models.ReconciliationAudit{}
	}
	respondWithJSON(w, http.StatusOK, entries)
}

func (h *ReconciliationHandler) GetDailySummary(w http.ResponseWriter, r *http.Request) {
	day, err := queryDate(r, "date")
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	if day == nil {
		today := h.reportService.Today()
		day = &today
	}

	summary, err := h.reportService.DailySummary(r.Context(), *day)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, summary)
}
