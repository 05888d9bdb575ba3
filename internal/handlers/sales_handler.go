package handlers

import (
	"encoding/json"
	"net/http"

	"sales-reconciliation/internal/models"
	"sales-reconciliation/internal/services"
)

type SalesHandler struct {
	salesService *services.SalesService
}

func NewSalesHandler(salesService *services.SalesService) *SalesHandler {
	return &SalesHandler{salesService: salesService}
}

func (h *SalesHandler) CreateSale(w http.ResponseWriter, r *http.Request) {
	var input services.SaleInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	sale, err := h.salesService.CreateSale(r.Context(), input)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, sale)
}

func (h *SalesHandler) CreateQuickSales(w http.ResponseWriter, r *http.Request) {
	var input services.QuickSaleInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	result, err := h.salesService.CreateQuickSales(r.Context(), input)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, result)
}

func (h *SalesHandler) ListSales(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := models.SaleFilter{
		Status:        models.SaleStatus(q.Get("status")),
		BankAccountID: queryInt64(r, "bank_account_id"),
		SalespersonID: queryInt64(r, "salesperson_id"),
		Folio:         q.Get("folio"),
		Page:          queryInt(r, "page"),
		Limit:         queryInt(r, "limit"),
	}
	var err error
	if f.CreatedFrom, err = queryDate(r, "from_date"); err != nil {
		respondWithServiceError(w, err)
		return
	}
	if f.CreatedTo, err = queryDate(r, "to_date"); err != nil {
		respondWithServiceError(w, err)
		return
	}
	if f.CreatedTo != nil {
		end := f.CreatedTo.AddDate(0, 0, 1)
		f.CreatedTo = &end
	}

	sales, total, err := h.salesService.ListSales(r.Context(), f)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	if sales == nil {
		sales = []*models.Sale{}
	}
	respondWithJSON(w, http.StatusOK, ListResponse{Data: sales, Total: total, Page: f.Page, Limit: f.Limit})
}

func (h *SalesHandler) GetSale(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		respondWithError(w, http.StatusBadRequest, "Invalid sale id")
		return
	}
	detail, err := h.salesService.GetSaleDetail(r.Context(), id)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, detail)
}

func (h *SalesHandler) UpdateSale(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		respondWithError(w, http.StatusBadRequest, "Invalid sale id")
		return
	}
	var input services.SaleInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	sale, err := h.salesService.UpdateSale(r.Context(), id, input)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, sale)
}

func (h *SalesHandler) DeleteSale(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		respondWithError(w, http.StatusBadRequest, "Invalid sale id")
		return
	}
	if err := h.salesService.DeleteSale(r.Context(), id); err != nil {
		respondWithServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *SalesHandler) MarkAwaiting(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		respondWithError(w, http.StatusBadRequest, "Invalid sale id")
		return
	}
	result, err := h.salesService.MarkAwaiting(r.Context(), id)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, result)
}

func (h *SalesHandler) MarkNeedsReview(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		respondWithError(w, http.StatusBadRequest, "Invalid sale id")
		return
	}
	sale, err := h.salesService.MarkNeedsReview(r.Context(), id)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, sale)
}

func (h *SalesHandler) SetReceipt(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		respondWithError(w, http.StatusBadRequest, "Invalid sale id")
		return
	}
	var request struct {
		ReceiptRef string `json:"receipt_ref"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	sale, err := h.salesService.SetReceipt(r.Context(), id, request.ReceiptRef)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, sale)
}
