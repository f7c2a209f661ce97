// Package handlers exposes the amendment workflow over the dashboard's
// in-process HTTP boundary.
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/raizfin/finance-amendments/internal/amendments"
	"github.com/raizfin/finance-amendments/internal/api/middleware"
	"github.com/raizfin/finance-amendments/internal/domain"
	"github.com/raizfin/finance-amendments/internal/store"
)

// ChangesHandler handles change request endpoints.
type ChangesHandler struct {
	records  store.RecordStore
	changes  store.ChangeStore
	registry *amendments.Registry
	engine   *amendments.Engine
	log      zerolog.Logger
}

// NewChangesHandler creates a new changes handler.
func NewChangesHandler(records store.RecordStore, changes store.ChangeStore, registry *amendments.Registry, engine *amendments.Engine, log zerolog.Logger) *ChangesHandler {
	return &ChangesHandler{
		records:  records,
		changes:  changes,
		registry: registry,
		engine:   engine,
		log:      log,
	}
}

type fieldEditPayload struct {
	Category  *string `json:"category,omitempty"`
	Branch    *string `json:"branch,omitempty"`
	Brand     *string `json:"brand,omitempty"`
	Date      *string `json:"date,omitempty"` // "2006-01"
	Recurring *string `json:"recurring,omitempty"`
}

type splitPartPayload struct {
	Amount   decimal.Decimal `json:"amount"`
	Branch   string          `json:"branch"`
	Brand    string          `json:"brand,omitempty"`
	Date     string          `json:"date"` // "2006-01"
	Category string          `json:"category"`
}

type submitPayload struct {
	TransactionID string             `json:"transaction_id"`
	Type          string             `json:"type"`
	Description   string             `json:"description,omitempty"`
	Justification string             `json:"justification"`
	FieldEdit     *fieldEditPayload  `json:"field_edit,omitempty"`
	Parts         []splitPartPayload `json:"parts,omitempty"`
}

// SubmitChange handles POST /api/changes.
func (h *ChangesHandler) SubmitChange(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	actor, ok := middleware.ActorFromContext(ctx)
	if !ok {
		middleware.WriteError(w, http.StatusUnauthorized, "Actor identity is required")
		return
	}

	var payload submitPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if payload.TransactionID == "" {
		middleware.WriteError(w, http.StatusBadRequest, "transaction_id is required")
		return
	}

	proposal, err := payload.proposal()
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	tx, err := h.records.GetTransaction(ctx, payload.TransactionID)
	if err != nil {
		h.writeWorkflowError(w, err)
		return
	}

	change, err := h.registry.Submit(ctx, amendments.SubmitRequest{
		Transaction:   tx,
		Proposal:      proposal,
		Description:   payload.Description,
		Justification: payload.Justification,
	}, actor)
	if err != nil {
		h.writeWorkflowError(w, err)
		return
	}

	middleware.WriteJSON(w, http.StatusCreated, changeJSON(change))
}

// ApproveChange handles POST /api/changes/{id}/approve.
func (h *ChangesHandler) ApproveChange(w http.ResponseWriter, r *http.Request, changeID string) {
	ctx := r.Context()

	actor, ok := middleware.ActorFromContext(ctx)
	if !ok {
		middleware.WriteError(w, http.StatusUnauthorized, "Actor identity is required")
		return
	}

	if err := h.engine.Approve(ctx, changeID, actor); err != nil {
		h.writeWorkflowError(w, err)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]string{
		"change_id": changeID,
		"status":    string(domain.ChangeAplicado),
	})
}

// RejectChange handles POST /api/changes/{id}/reject.
func (h *ChangesHandler) RejectChange(w http.ResponseWriter, r *http.Request, changeID string) {
	ctx := r.Context()

	actor, ok := middleware.ActorFromContext(ctx)
	if !ok {
		middleware.WriteError(w, http.StatusUnauthorized, "Actor identity is required")
		return
	}

	if err := h.engine.Reject(ctx, changeID, actor); err != nil {
		h.writeWorkflowError(w, err)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]string{
		"change_id": changeID,
		"status":    string(domain.ChangeReprovado),
	})
}

// ListChanges handles GET /api/changes.
func (h *ChangesHandler) ListChanges(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	filter := store.ChangeFilter{
		Status:        domain.ChangeStatus(r.URL.Query().Get("status")),
		TransactionID: r.URL.Query().Get("transaction_id"),
	}

	changes, err := h.changes.ListChanges(ctx, filter)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list change requests")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list change requests")
		return
	}

	items := make([]map[string]interface{}, 0, len(changes))
	for _, c := range changes {
		items = append(items, changeJSON(c))
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"changes": items,
		"count":   len(items),
	})
}

// proposal converts the wire payload into the typed proposal. The dashboard
// historically used CONTA/DATA/MARCA/FILIAL/MULTI for field edits, RATEIO
// for splits and EXCLUSAO for deletions; those aliases are still accepted.
func (p *submitPayload) proposal() (domain.Proposal, error) {
	switch p.Type {
	case "FIELD_EDIT", "CONTA", "DATA", "MARCA", "FILIAL", "MULTI":
		if p.FieldEdit == nil {
			return nil, fmt.Errorf("field_edit payload is required for type %s", p.Type)
		}
		edit := &domain.FieldEdit{
			Category:  p.FieldEdit.Category,
			Branch:    p.FieldEdit.Branch,
			Brand:     p.FieldEdit.Brand,
			Recurring: p.FieldEdit.Recurring,
		}
		if p.FieldEdit.Date != nil {
			d, err := parseMonth(*p.FieldEdit.Date)
			if err != nil {
				return nil, err
			}
			edit.Date = &d
		}
		return edit, nil
	case "SPLIT", "RATEIO":
		if len(p.Parts) == 0 {
			return nil, fmt.Errorf("parts payload is required for type %s", p.Type)
		}
		parts := make([]domain.SplitPart, 0, len(p.Parts))
		for _, part := range p.Parts {
			d, err := parseMonth(part.Date)
			if err != nil {
				return nil, err
			}
			parts = append(parts, domain.SplitPart{
				Amount:   part.Amount,
				Branch:   part.Branch,
				Brand:    part.Brand,
				Date:     d,
				Category: part.Category,
			})
		}
		return &domain.Split{Parts: parts}, nil
	case "DELETE", "EXCLUSAO":
		return domain.Delete{}, nil
	default:
		return nil, fmt.Errorf("unknown change type %q", p.Type)
	}
}

func parseMonth(s string) (time.Time, error) {
	for _, layout := range []string{"2006-01", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return domain.MonthOf(t), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q, expected YYYY-MM", s)
}

// changeJSON renders a change request including its proposal envelope.
func changeJSON(c *domain.ChangeRequest) map[string]interface{} {
	out := map[string]interface{}{
		"id":                c.ID,
		"transaction_id":    c.TransactionID,
		"type":              c.Type,
		"original_snapshot": c.OriginalSnapshot,
		"description":       c.Description,
		"justification":     c.Justification,
		"status":            c.Status,
		"requested_by":      c.RequestedBy,
		"requested_at":      c.RequestedAt,
	}
	if c.RequestedByName != "" {
		out["requested_by_name"] = c.RequestedByName
	}
	if c.ApprovedBy != nil {
		out["approved_by"] = *c.ApprovedBy
	}
	if c.ApprovedAt != nil {
		out["approved_at"] = *c.ApprovedAt
	}
	if c.Proposal != nil {
		if raw, err := domain.MarshalProposal(c.Proposal); err == nil {
			out["proposal"] = json.RawMessage(raw)
		}
	}
	return out
}

// writeWorkflowError maps workflow errors onto HTTP statuses. The orphaned
// original case is the one error that must never degrade into a background
// log line: the response carries a reconciliation flag and the ids needed to
// fix the books by hand.
func (h *ChangesHandler) writeWorkflowError(w http.ResponseWriter, err error) {
	var invalidSplit *amendments.InvalidSplitError
	var orphan *amendments.OrphanedOriginalError

	switch {
	case errors.As(err, &orphan):
		h.log.Error().
			Str("change_id", orphan.ChangeID).
			Str("transaction_id", orphan.TransactionID).
			Strs("part_ids", orphan.PartIDs).
			Err(orphan.Err).
			Msg("Orphaned original requires manual reconciliation")
		middleware.WriteJSON(w, http.StatusInternalServerError, map[string]interface{}{
			"error":                   orphan.Error(),
			"reconciliation_required": true,
			"change_id":               orphan.ChangeID,
			"transaction_id":          orphan.TransactionID,
			"part_ids":                orphan.PartIDs,
		})
	case errors.As(err, &invalidSplit):
		middleware.WriteError(w, http.StatusUnprocessableEntity, invalidSplit.Error())
	case errors.Is(err, amendments.ErrEmptyJustification):
		middleware.WriteError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, amendments.ErrNotAuthorized):
		middleware.WriteError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, amendments.ErrAlreadyResolved):
		middleware.WriteError(w, http.StatusConflict, err.Error())
	case errors.Is(err, amendments.ErrPendingChangeExists):
		middleware.WriteError(w, http.StatusConflict, err.Error())
	case errors.Is(err, store.ErrNotFound):
		middleware.WriteError(w, http.StatusNotFound, "Not found")
	case errors.Is(err, amendments.ErrStoreWrite):
		middleware.WriteError(w, http.StatusBadGateway, err.Error())
	default:
		h.log.Error().Err(err).Msg("Unexpected workflow error")
		middleware.WriteError(w, http.StatusInternalServerError, "Internal server error")
	}
}
