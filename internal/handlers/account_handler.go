package handlers

import (
	"encoding/json"
	"net/http"

	"sales-reconciliation/internal/models"
	"sales-reconciliation/internal/services"
)

type AccountHandler struct {
	accountService *services.AccountService
}

func NewAccountHandler(accountService *services.AccountService) *AccountHandler {
	return &AccountHandler{accountService: accountService}
}

func (h *AccountHandler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("active") == "true"
	accounts, err := h.accountService.ListAccounts(r.Context(), activeOnly)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	if accounts == nil {
		accounts = []*models.BankAccount{}
	}
	respondWithJSON(w, http.StatusOK, accounts)
}

func (h *AccountHandler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var input services.AccountInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	account, err := h.accountService.CreateAccount(r.Context(), input)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, account)
}
