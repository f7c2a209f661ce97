// Package amendments implements the transaction amendment workflow: change
// request submission, split reconciliation, and the approval state machine.
package amendments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/raizfin/finance-amendments/internal/auth"
	"github.com/raizfin/finance-amendments/internal/domain"
	"github.com/raizfin/finance-amendments/internal/store"
)

// defaultStoreTimeout bounds each individual store call. The workflow has no
// cancellation semantics of its own; a timed-out call surfaces as
// ErrStoreWrite and the caller retries the whole operation.
const defaultStoreTimeout = 10 * time.Second

// SubmitRequest is a user proposal to amend one posted transaction.
type SubmitRequest struct {
	Transaction   *domain.Transaction
	Proposal      domain.Proposal
	Description   string
	Justification string
}

// Registry creates change requests from user proposals, snapshotting the
// original record and locking it in Pendente status.
type Registry struct {
	records    store.RecordStore
	changes    store.ChangeStore
	reconciler SplitReconciler
	log        zerolog.Logger
	timeout    time.Duration
	now        func() time.Time
}

// NewRegistry creates a registry over the given stores. A non-positive
// timeout falls back to the default per-call store timeout.
func NewRegistry(records store.RecordStore, changes store.ChangeStore, log zerolog.Logger, timeout time.Duration) *Registry {
	if timeout <= 0 {
		timeout = defaultStoreTimeout
	}
	return &Registry{
		records: records,
		changes: changes,
		log:     log,
		timeout: timeout,
		now:     time.Now,
	}
}

// Submit validates the proposal, creates the change request in Pendente
// status and marks the transaction Pendente. The two writes hit independent
// stores and are not atomic: if the transaction update fails after the
// change request was created, Submit returns ErrStoreWrite and the change
// request stays visible to approvers, who can reject it to re-normalize the
// record.
func (r *Registry) Submit(ctx context.Context, req SubmitRequest, actor auth.Actor) (*domain.ChangeRequest, error) {
	if strings.TrimSpace(req.Justification) == "" {
		return nil, ErrEmptyJustification
	}
	if req.Transaction == nil || req.Transaction.ID == "" {
		return nil, fmt.Errorf("Submit: transaction is required")
	}

	if split, ok := req.Proposal.(*domain.Split); ok {
		if err := r.reconciler.Validate(req.Transaction, split.Parts); err != nil {
			return nil, err
		}
	}

	change := &domain.ChangeRequest{
		ID:               uuid.New().String(),
		TransactionID:    req.Transaction.ID,
		Type:             req.Proposal.Kind(),
		OriginalSnapshot: *req.Transaction.Clone(),
		Proposal:         req.Proposal,
		Description:      req.Description,
		Justification:    req.Justification,
		Status:           domain.ChangePendente,
		RequestedBy:      actor.Email,
		RequestedByName:  actor.Name,
		RequestedAt:      r.now(),
	}

	cctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	if err := r.changes.CreateChange(cctx, change); err != nil {
		if errors.Is(err, store.ErrPendingExists) {
			return nil, ErrPendingChangeExists
		}
		return nil, fmt.Errorf("Submit: create change: %v: %w", err, ErrStoreWrite)
	}

	pendente := domain.StatusPendente
	uctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	if err := r.records.UpdateTransaction(uctx, req.Transaction.ID, store.TransactionPatch{Status: &pendente}); err != nil {
		// The change request is already durable. Reported, not rolled back:
		// the stores are independent and the reject path re-normalizes.
		r.log.Error().
			Err(err).
			Str("change_id", change.ID).
			Str("transaction_id", req.Transaction.ID).
			Msg("Change request created but locking the transaction failed")
		return nil, fmt.Errorf("Submit: mark transaction pending: %v: %w", err, ErrStoreWrite)
	}

	r.log.Info().
		Str("change_id", change.ID).
		Str("transaction_id", req.Transaction.ID).
		Str("type", string(change.Type)).
		Str("requested_by", actor.Email).
		Msg("Change request submitted")

	return change, nil
}
