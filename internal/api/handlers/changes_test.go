package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raizfin/finance-amendments/internal/amendments"
	"github.com/raizfin/finance-amendments/internal/api/middleware"
	"github.com/raizfin/finance-amendments/internal/auth"
	"github.com/raizfin/finance-amendments/internal/domain"
	"github.com/raizfin/finance-amendments/internal/store"
	"github.com/raizfin/finance-amendments/internal/store/inmemory"
)

const adminEmail = "boss@raiz.com"

type testAPI struct {
	records *inmemory.RecordStore
	changes *inmemory.ChangeStore
	handler http.Handler
}

// newTestAPI wires the handlers onto the same routes the server uses.
func newTestAPI(t *testing.T) *testAPI {
	t.Helper()

	records := inmemory.NewRecordStore()
	changes := inmemory.NewChangeStore()
	log := zerolog.Nop()
	gate := auth.NewStaticGate([]string{adminEmail})
	registry := amendments.NewRegistry(records, changes, log, time.Second)
	engine := amendments.NewEngine(gate, records, changes, log, time.Second)
	h := NewChangesHandler(records, changes, registry, engine, log)

	mux := http.NewServeMux()
	mux.HandleFunc("/api/changes", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			h.ListChanges(w, r)
		case http.MethodPost:
			h.SubmitChange(w, r)
		default:
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})
	mux.HandleFunc("/api/changes/", func(w http.ResponseWriter, r *http.Request) {
		rest := strings.TrimPrefix(r.URL.Path, "/api/changes/")
		changeID, action, _ := strings.Cut(rest, "/")
		switch action {
		case "approve":
			h.ApproveChange(w, r, changeID)
		case "reject":
			h.RejectChange(w, r, changeID)
		default:
			middleware.WriteError(w, http.StatusNotFound, "Unknown action")
		}
	})

	return &testAPI{
		records: records,
		changes: changes,
		handler: middleware.Actor(mux),
	}
}

func (a *testAPI) seedTransaction(t *testing.T, id string) *domain.Transaction {
	t.Helper()
	tx := &domain.Transaction{
		ID:          id,
		Description: "Folha docentes",
		Amount:      decimal.RequireFromString("1000.00"),
		Date:        time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
		Category:    "Salários Professores",
		Type:        domain.TypeVariableCost,
		Branch:      "Centro",
		Status:      domain.StatusNormal,
	}
	require.NoError(t, a.records.CreateTransaction(context.Background(), tx))
	return tx
}

func (a *testAPI) do(t *testing.T, method, path, actorEmail string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if actorEmail != "" {
		req.Header.Set("X-Actor-Email", actorEmail)
		req.Header.Set("X-Actor-Name", "Test User")
	}

	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	return rec
}

func (a *testAPI) submitDelete(t *testing.T, txID string) string {
	t.Helper()
	rec := a.do(t, http.MethodPost, "/api/changes", "viewer@raiz.com", map[string]interface{}{
		"transaction_id": txID,
		"type":           "DELETE",
		"justification":  "duplicado",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.NotEmpty(t, created.ID)
	return created.ID
}

func TestSubmitChangeRequiresActor(t *testing.T) {
	api := newTestAPI(t)
	api.seedTransaction(t, "tx-1")

	rec := api.do(t, http.MethodPost, "/api/changes", "", map[string]interface{}{
		"transaction_id": "tx-1",
		"type":           "DELETE",
		"justification":  "x",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSubmitChangeCreatesAndLocks(t *testing.T) {
	api := newTestAPI(t)
	tx := api.seedTransaction(t, "tx-1")

	id := api.submitDelete(t, tx.ID)

	got, err := api.records.GetTransaction(context.Background(), tx.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPendente, got.Status)

	change, err := api.changes.GetChange(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, domain.ChangePendente, change.Status)
	assert.Equal(t, "viewer@raiz.com", change.RequestedBy)
}

func TestSubmitChangeLegacyTypeAliases(t *testing.T) {
	api := newTestAPI(t)

	tests := []struct {
		alias string
		want  domain.ChangeType
	}{
		{"CONTA", domain.ChangeFieldEdit},
		{"RATEIO", domain.ChangeSplit},
		{"EXCLUSAO", domain.ChangeDelete},
	}
	for i, tt := range tests {
		txID := fmt.Sprintf("tx-%d", i)
		api.seedTransaction(t, txID)

		body := map[string]interface{}{
			"transaction_id": txID,
			"type":           tt.alias,
			"justification":  "ajuste",
		}
		switch tt.want {
		case domain.ChangeFieldEdit:
			body["field_edit"] = map[string]string{"category": "Rateio"}
		case domain.ChangeSplit:
			body["parts"] = []map[string]interface{}{
				{"amount": "600.00", "branch": "Centro", "date": "2025-03", "category": "Rateio"},
				{"amount": "400.00", "branch": "Sul", "date": "2025-03", "category": "Rateio"},
			}
		}

		rec := api.do(t, http.MethodPost, "/api/changes", "viewer@raiz.com", body)
		require.Equal(t, http.StatusCreated, rec.Code, "alias %s: %s", tt.alias, rec.Body.String())

		var created struct {
			Type domain.ChangeType `json:"type"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
		assert.Equal(t, tt.want, created.Type, "alias %s", tt.alias)
	}
}

func TestSubmitChangeStatusMapping(t *testing.T) {
	api := newTestAPI(t)
	api.seedTransaction(t, "tx-1")

	tests := []struct {
		name string
		body map[string]interface{}
		want int
	}{
		{
			name: "unknown transaction",
			body: map[string]interface{}{
				"transaction_id": "missing", "type": "DELETE", "justification": "x",
			},
			want: http.StatusNotFound,
		},
		{
			name: "blank justification",
			body: map[string]interface{}{
				"transaction_id": "tx-1", "type": "DELETE", "justification": "   ",
			},
			want: http.StatusUnprocessableEntity,
		},
		{
			name: "unbalanced split",
			body: map[string]interface{}{
				"transaction_id": "tx-1", "type": "SPLIT", "justification": "rateio",
				"parts": []map[string]interface{}{
					{"amount": "600.00", "branch": "Centro", "date": "2025-03", "category": "Rateio"},
					{"amount": "300.00", "branch": "Sul", "date": "2025-03", "category": "Rateio"},
				},
			},
			want: http.StatusUnprocessableEntity,
		},
		{
			name: "unknown type",
			body: map[string]interface{}{
				"transaction_id": "tx-1", "type": "RENAME", "justification": "x",
			},
			want: http.StatusBadRequest,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := api.do(t, http.MethodPost, "/api/changes", "viewer@raiz.com", tt.body)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}
}

func TestApproveChange(t *testing.T) {
	api := newTestAPI(t)
	tx := api.seedTransaction(t, "tx-1")
	id := api.submitDelete(t, tx.ID)

	rec := api.do(t, http.MethodPost, "/api/changes/"+id+"/approve", adminEmail, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	_, err := api.records.GetTransaction(context.Background(), tx.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestApproveChangeForbiddenForNonAdmin(t *testing.T) {
	api := newTestAPI(t)
	tx := api.seedTransaction(t, "tx-1")
	id := api.submitDelete(t, tx.ID)

	rec := api.do(t, http.MethodPost, "/api/changes/"+id+"/approve", "viewer@raiz.com", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestApproveChangeConflictWhenResolved(t *testing.T) {
	api := newTestAPI(t)
	tx := api.seedTransaction(t, "tx-1")
	id := api.submitDelete(t, tx.ID)

	require.Equal(t, http.StatusOK, api.do(t, http.MethodPost, "/api/changes/"+id+"/reject", adminEmail, nil).Code)

	rec := api.do(t, http.MethodPost, "/api/changes/"+id+"/approve", adminEmail, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestApproveChangeNotFound(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, http.MethodPost, "/api/changes/missing/approve", adminEmail, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRejectChangeUnlocksTransaction(t *testing.T) {
	api := newTestAPI(t)
	tx := api.seedTransaction(t, "tx-1")
	id := api.submitDelete(t, tx.ID)

	rec := api.do(t, http.MethodPost, "/api/changes/"+id+"/reject", adminEmail, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	got, err := api.records.GetTransaction(context.Background(), tx.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusNormal, got.Status)
}

func TestListChanges(t *testing.T) {
	api := newTestAPI(t)
	tx := api.seedTransaction(t, "tx-1")
	api.submitDelete(t, tx.ID)

	rec := api.do(t, http.MethodGet, "/api/changes?status=Pendente", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var out struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, 1, out.Count)
}
