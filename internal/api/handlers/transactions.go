package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/raizfin/finance-amendments/internal/api/middleware"
	"github.com/raizfin/finance-amendments/internal/domain"
	"github.com/raizfin/finance-amendments/internal/store"
)

// TransactionsHandler handles the movements listing and manual posting.
type TransactionsHandler struct {
	records store.RecordStore
	log     zerolog.Logger
}

// NewTransactionsHandler creates a new transactions handler.
func NewTransactionsHandler(records store.RecordStore, log zerolog.Logger) *TransactionsHandler {
	return &TransactionsHandler{records: records, log: log}
}

// ListTransactions handles GET /api/transactions.
func (h *TransactionsHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	filter := store.TransactionFilter{
		Status: domain.TransactionStatus(r.URL.Query().Get("status")),
		Branch: r.URL.Query().Get("branch"),
		Brand:  r.URL.Query().Get("brand"),
	}

	txs, err := h.records.ListTransactions(ctx, filter)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list transactions")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list transactions")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"transactions": txs,
		"count":        len(txs),
	})
}

// CreateTransaction handles POST /api/transactions. New records start
// Normal; the amendment workflow is the only way to mutate them afterwards.
func (h *TransactionsHandler) CreateTransaction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var payload struct {
		Description string          `json:"description"`
		Amount      decimal.Decimal `json:"amount"`
		Date        string          `json:"date"` // "2006-01"
		Category    string          `json:"category"`
		Branch      string          `json:"branch"`
		Brand       string          `json:"brand,omitempty"`
		Scenario    string          `json:"scenario,omitempty"`
		Tag01       string          `json:"tag01,omitempty"`
		Tag02       string          `json:"tag02,omitempty"`
		Tag03       string          `json:"tag03,omitempty"`
		Recurring   string          `json:"recurring,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if payload.Description == "" || payload.Category == "" || payload.Branch == "" {
		middleware.WriteError(w, http.StatusBadRequest, "description, category and branch are required")
		return
	}

	date, err := parseMonth(payload.Date)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	tx := &domain.Transaction{
		ID:          uuid.New().String(),
		Description: payload.Description,
		Amount:      payload.Amount.Round(2),
		Date:        date,
		Category:    payload.Category,
		Type:        domain.TypeForCategory(payload.Category),
		Branch:      payload.Branch,
		Brand:       payload.Brand,
		Scenario:    payload.Scenario,
		Tag01:       payload.Tag01,
		Tag02:       payload.Tag02,
		Tag03:       payload.Tag03,
		Recurring:   payload.Recurring,
		Status:      domain.StatusNormal,
	}

	if err := h.records.CreateTransaction(ctx, tx); err != nil {
		h.log.Error().Err(err).Msg("Failed to create transaction")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to create transaction")
		return
	}

	middleware.WriteJSON(w, http.StatusCreated, tx)
}
