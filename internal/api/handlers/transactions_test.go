package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raizfin/finance-amendments/internal/domain"
	"github.com/raizfin/finance-amendments/internal/store/inmemory"
)

func TestCreateTransaction(t *testing.T) {
	records := inmemory.NewRecordStore()
	h := NewTransactionsHandler(records, zerolog.Nop())

	body, _ := json.Marshal(map[string]interface{}{
		"description": "Aluguel abril",
		"amount":      "8500.00",
		"date":        "2025-04",
		"category":    "Aluguel Imóveis",
		"branch":      "Centro",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/transactions", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.CreateTransaction(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created domain.Transaction
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, domain.TypeFixedCost, created.Type, "type is derived from the category")
	assert.Equal(t, domain.StatusNormal, created.Status)
	assert.Equal(t, time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC), created.Date)

	stored, err := records.GetTransaction(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Aluguel abril", stored.Description)
}

func TestCreateTransactionValidation(t *testing.T) {
	h := NewTransactionsHandler(inmemory.NewRecordStore(), zerolog.Nop())

	tests := []struct {
		name string
		body map[string]interface{}
	}{
		{"missing description", map[string]interface{}{
			"amount": "10.00", "date": "2025-04", "category": "ISS", "branch": "Centro",
		}},
		{"missing branch", map[string]interface{}{
			"description": "x", "amount": "10.00", "date": "2025-04", "category": "ISS",
		}},
		{"bad date", map[string]interface{}{
			"description": "x", "amount": "10.00", "date": "abril", "category": "ISS", "branch": "Centro",
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, _ := json.Marshal(tt.body)
			req := httptest.NewRequest(http.MethodPost, "/api/transactions", bytes.NewReader(body))
			rec := httptest.NewRecorder()
			h.CreateTransaction(rec, req)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestListTransactionsFilters(t *testing.T) {
	records := inmemory.NewRecordStore()
	h := NewTransactionsHandler(records, zerolog.Nop())

	seed := []*domain.Transaction{
		{ID: "tx-1", Description: "a", Category: "ISS", Branch: "Centro", Status: domain.StatusNormal},
		{ID: "tx-2", Description: "b", Category: "ISS", Branch: "Sul", Status: domain.StatusPendente},
	}
	require.NoError(t, records.BulkCreateTransactions(context.Background(), seed))

	req := httptest.NewRequest(http.MethodGet, "/api/transactions?branch=Sul", nil)
	rec := httptest.NewRecorder()
	h.ListTransactions(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var out struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, 1, out.Count)
}
