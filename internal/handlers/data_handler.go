package handlers

import (
	"encoding/json"
	"net/http"

	"sales-reconciliation/internal/services"
)

const maxImportBytes = 10 << 20

type DataHandler struct {
	dataIngestionService *services.DataIngestionService
}

func NewDataHandler(dataIngestionService *services.DataIngestionService) *DataHandler {
	return &DataHandler{
		dataIngestionService: dataIngestionService,
	}
}

// IngestPayments accepts a JSON array of normalized statement lines.
func (h *DataHandler) IngestPayments(w http.ResponseWriter, r *http.Request) {
	var payments []services.PaymentInput

	if err := json.NewDecoder(r.Body).Decode(&payments); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if len(payments) == 0 {
		respondWithError(w, http.StatusBadRequest, "No payments provided")
		return
	}

	result, err := h.dataIngestionService.IngestPayments(r.Context(), payments)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	status := http.StatusOK
	if !result.Success {
		status = http.StatusPartialContent
	}
	respondWithJSON(w, status, result)
}

// ImportPaymentsCSV accepts a statement in the canonical CSV layout as the
// raw request body. The optional source query parameter names the file.
func (h *DataHandler) ImportPaymentsCSV(w http.ResponseWriter, r *http.Request) {
	body := http.MaxBytesReader(w, r.Body, maxImportBytes)
	payments, rowErrs, err := services.ParsePaymentsCSV(body, r.URL.Query().Get("source"))
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	if len(payments) == 0 && len(rowErrs) == 0 {
		respondWithError(w, http.StatusBadRequest, "No payments provided")
		return
	}

	result := &services.IngestionResult{}
	if len(payments) > 0 {
		result, err = h.dataIngestionService.IngestPayments(r.Context(), payments)
		if err != nil {
			respondWithServiceError(w, err)
			return
		}
	}
	result.RecordsCount += len(rowErrs)
	result.Errors = append(rowErrs, result.Errors...)
	result.Success = len(result.Errors) == 0

	status := http.StatusOK
	if !result.Success {
		status = http.StatusPartialContent
	}
	respondWithJSON(w, status, result)
}
