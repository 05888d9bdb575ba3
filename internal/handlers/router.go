package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"sales-reconciliation/internal/metrics"
	"sales-reconciliation/internal/models"
	"sales-reconciliation/internal/services"
)

func SetupRouter(svc *services.Services) *mux.Router {
	router := mux.NewRouter()

	reconciliationHandler := NewReconciliationHandler(svc.Reconciliation, svc.Reports)
	dataHandler := NewDataHandler(svc.Ingestion)
	salesHandler := NewSalesHandler(svc.Sales)
	accountHandler := NewAccountHandler(svc.Accounts)

	router.HandleFunc("/health", healthCheckHandler).Methods(http.MethodGet)
	router.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	api := router.PathPrefix("/api/v1").Subrouter()
	api.Use(loggingMiddleware)
	api.Use(jsonContentTypeMiddleware)

	api.HandleFunc("/reconciliation/run", reconciliationHandler.RunReconciliation).Methods(http.MethodPost)
	api.HandleFunc("/reconciliation/runs", reconciliationHandler.ListRuns).Methods(http.MethodGet)
	api.HandleFunc("/reconciliation/runs/{batch_id}", reconciliationHandler.GetRun).Methods(http.MethodGet)

	api.HandleFunc("/payments", dataHandler.IngestPayments).Methods(http.MethodPost)
	api.HandleFunc("/payments/import", dataHandler.ImportPaymentsCSV).Methods(http.MethodPost)
	api.HandleFunc("/payments", reconciliationHandler.ListPayments).Methods(http.MethodGet)
	api.HandleFunc("/payments/{id:[0-9]+}", reconciliationHandler.GetPayment).Methods(http.MethodGet)
	api.HandleFunc("/payments/{id:[0-9]+}/candidates", reconciliationHandler.GetCandidates).Methods(http.MethodGet)
	api.HandleFunc("/payments/{id:[0-9]+}/match", reconciliationHandler.ManualMatch).Methods(http.MethodPost)
	api.HandleFunc("/payments/{id:[0-9]+}/audit", reconciliationHandler.GetPaymentAudit).Methods(http.MethodGet)

	api.HandleFunc("/sales", salesHandler.CreateSale).Methods(http.MethodPost)
	api.HandleFunc("/sales", salesHandler.ListSales).Methods(http.MethodGet)
	api.HandleFunc("/sales/quick", salesHandler.CreateQuickSales).Methods(http.MethodPost)
	api.HandleFunc("/sales/{id:[0-9]+}", salesHandler.GetSale).Methods(http.MethodGet)
	api.HandleFunc("/sales/{id:[0-9]+}", salesHandler.UpdateSale).Methods(http.MethodPut)
	api.HandleFunc("/sales/{id:[0-9]+}", salesHandler.DeleteSale).Methods(http.MethodDelete)
	api.HandleFunc("/sales/{id:[0-9]+}/awaiting", salesHandler.MarkAwaiting).Methods(http.MethodPost)
	api.HandleFunc("/sales/{id:[0-9]+}/needs-review", salesHandler.MarkNeedsReview).Methods(http.MethodPost)
	api.HandleFunc("/sales/{id:[0-9]+}/receipt", salesHandler.SetReceipt).Methods(http.MethodPut)

	api.HandleFunc("/bank-accounts", accountHandler.ListAccounts).Methods(http.MethodGet)
	api.HandleFunc("/bank-accounts", accountHandler.CreateAccount).Methods(http.MethodPost)

	api.HandleFunc("/reports/daily", reconciliationHandler.GetDailySummary).Methods(http.MethodGet)

	return router
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("[http] %s %s %s (%s)", r.RemoteAddr, r.Method, r.URL.Path, time.Since(start))
	})
}

func jsonContentTypeMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

func healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	response := map[string]string{
		"status": "healthy",
	}
	respondWithJSON(w, http.StatusOK, response)
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type ListResponse struct {
	Data  interface{} `json:"data"`
	Total int         `json:"total"`
	Page  int         `json:"page"`
	Limit int         `json:"limit"`
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, ErrorResponse{Error: message})
}

// respondWithServiceError maps domain errors to their HTTP status.
func respondWithServiceError(w http.ResponseWriter, err error) {
	var verr *services.ValidationError
	switch {
	case errors.As(err, &verr):
		respondWithError(w, http.StatusBadRequest, verr.Error())
	case errors.Is(err, models.ErrSaleNotFound),
		errors.Is(err, models.ErrPaymentNotFound),
		errors.Is(err, models.ErrBankAccountNotFound),
		errors.Is(err, models.ErrRunNotFound):
		respondWithError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, models.ErrSaleAlreadyPaid),
		errors.Is(err, models.ErrPaymentNotPending),
		errors.Is(err, models.ErrAmbiguousFolio):
		respondWithError(w, http.StatusConflict, err.Error())
	default:
		log.Printf("[http] internal error: %v", err)
		respondWithError(w, http.StatusInternalServerError, err.Error())
	}
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error": "Error marshaling JSON response"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}

func pathID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	return id, err == nil && id > 0
}

func queryInt(r *http.Request, name string) int {
	n, _ := strconv.Atoi(r.URL.Query().Get(name))
	return n
}

func queryInt64(r *http.Request, name string) int64 {
	n, _ := strconv.ParseInt(r.URL.Query().Get(name), 10, 64)
	return n
}

func queryDate(r *http.Request, name string) (*time.Time, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(models.DateLayout, raw)
	if err != nil {
		return nil, &services.ValidationError{Field: name, Message: "must be YYYY-MM-DD"}
	}
	return &t, nil
}
