package amendments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/raizfin/finance-amendments/internal/auth"
	"github.com/raizfin/finance-amendments/internal/domain"
	"github.com/raizfin/finance-amendments/internal/store"
)

// Engine resolves pending change requests. Approve and Reject both claim
// the request first through a conditional status transition at the change
// store, so two resolvers racing on the same request cannot both apply it:
// the loser's compare-and-swap fails and maps to ErrAlreadyResolved.
type Engine struct {
	gate       auth.AuthorizationGate
	records    store.RecordStore
	changes    store.ChangeStore
	reconciler SplitReconciler
	log        zerolog.Logger
	timeout    time.Duration
	now        func() time.Time
}

// NewEngine creates an approval engine. A non-positive timeout falls back to
// the default per-call store timeout.
func NewEngine(gate auth.AuthorizationGate, records store.RecordStore, changes store.ChangeStore, log zerolog.Logger, timeout time.Duration) *Engine {
	if timeout <= 0 {
		timeout = defaultStoreTimeout
	}
	return &Engine{
		gate:    gate,
		records: records,
		changes: changes,
		log:     log,
		timeout: timeout,
		now:     time.Now,
	}
}

// loadPending fetches the change request and screens the cheap preconditions
// before anything is claimed or written.
func (e *Engine) loadPending(ctx context.Context, changeID string, actor auth.Actor) (*domain.ChangeRequest, error) {
	gctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	change, err := e.changes.GetChange(gctx, changeID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load change %s: %v: %w", changeID, err, ErrStoreWrite)
	}
	if change.Status.Terminal() {
		return nil, ErrAlreadyResolved
	}
	if !e.gate.IsAdmin(actor) {
		return nil, ErrNotAuthorized
	}
	return change, nil
}

// claim performs the conditional Pendente -> terminal transition. A lost
// compare-and-swap means someone else resolved the request first.
func (e *Engine) claim(ctx context.Context, changeID string, to domain.ChangeStatus, actor auth.Actor) error {
	by := actor.Email
	at := e.now()

	cctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	err := e.changes.ResolveChange(cctx, changeID, store.Resolution{
		From:       domain.ChangePendente,
		To:         to,
		ApprovedBy: &by,
		ApprovedAt: &at,
	})
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			return ErrAlreadyResolved
		}
		return fmt.Errorf("claim change %s: %v: %w", changeID, err, ErrStoreWrite)
	}
	return nil
}

// unclaim releases a claim after an apply failed before any destructive
// write landed, restoring Pendente so the caller can retry the whole call.
func (e *Engine) unclaim(ctx context.Context, changeID string, from domain.ChangeStatus) {
	uctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	err := e.changes.ResolveChange(uctx, changeID, store.Resolution{
		From: from,
		To:   domain.ChangePendente,
	})
	if err != nil {
		e.log.Error().
			Err(err).
			Str("change_id", changeID).
			Msg("Releasing the claim failed; change request is stuck in a resolved status with no applied mutation")
	}
}

// Approve applies a pending change request to the record store and marks it
// Aplicado. For splits the new rows are inserted before the original is
// deleted - never the other way around: a failed insert loses nothing, while
// a failed delete after a successful insert leaves both the original and the
// parts present. That over-count is reported as OrphanedOriginalError and
// must be reconciled manually.
func (e *Engine) Approve(ctx context.Context, changeID string, actor auth.Actor) error {
	change, err := e.loadPending(ctx, changeID, actor)
	if err != nil {
		return err
	}

	if err := e.claim(ctx, changeID, domain.ChangeAplicado, actor); err != nil {
		return err
	}

	switch p := change.Proposal.(type) {
	case *domain.FieldEdit:
		err = e.applyFieldEdit(ctx, change, p)
	case *domain.Split:
		err = e.applySplit(ctx, change, p)
	case domain.Delete:
		err = e.applyDelete(ctx, change)
	default:
		err = fmt.Errorf("change %s has unknown proposal type %T", changeID, change.Proposal)
	}
	if err != nil {
		var orphan *OrphanedOriginalError
		if errors.As(err, &orphan) {
			// The parts exist; reverting the claim would misstate history.
			e.log.Error().
				Str("change_id", orphan.ChangeID).
				Str("transaction_id", orphan.TransactionID).
				Strs("part_ids", orphan.PartIDs).
				Err(orphan.Err).
				Msg("Split parts created but the original survives; totals are over-counted until manually reconciled")
			return err
		}
		e.unclaim(ctx, changeID, domain.ChangeAplicado)
		return err
	}

	e.log.Info().
		Str("change_id", changeID).
		Str("transaction_id", change.TransactionID).
		Str("type", string(change.Type)).
		Str("approved_by", actor.Email).
		Msg("Change request approved")
	return nil
}

// Reject marks a pending change request Reprovado and unlocks the
// transaction back to Normal.
func (e *Engine) Reject(ctx context.Context, changeID string, actor auth.Actor) error {
	change, err := e.loadPending(ctx, changeID, actor)
	if err != nil {
		return err
	}

	if err := e.claim(ctx, changeID, domain.ChangeReprovado, actor); err != nil {
		return err
	}

	normal := domain.StatusNormal
	uctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	if err := e.records.UpdateTransaction(uctx, change.TransactionID, store.TransactionPatch{Status: &normal}); err != nil {
		// The rejection itself is durable; only the visible lock is stale.
		e.log.Error().
			Err(err).
			Str("change_id", changeID).
			Str("transaction_id", change.TransactionID).
			Msg("Change request rejected but unlocking the transaction failed")
		return fmt.Errorf("Reject: unlock transaction %s: %v: %w", change.TransactionID, err, ErrStoreWrite)
	}

	e.log.Info().
		Str("change_id", changeID).
		Str("transaction_id", change.TransactionID).
		Str("rejected_by", actor.Email).
		Msg("Change request rejected")
	return nil
}

func (e *Engine) applyFieldEdit(ctx context.Context, change *domain.ChangeRequest, edit *domain.FieldEdit) error {
	ajustado := domain.StatusAjustado
	patch := store.TransactionPatch{
		Category:  edit.Category,
		Branch:    edit.Branch,
		Brand:     edit.Brand,
		Recurring: edit.Recurring,
		Status:    &ajustado,
	}
	if edit.Date != nil {
		d := domain.MonthOf(*edit.Date)
		patch.Date = &d
	}
	if edit.Category != nil {
		t := domain.TypeForCategory(*edit.Category)
		patch.Type = &t
	}

	uctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	if err := e.records.UpdateTransaction(uctx, change.TransactionID, patch); err != nil {
		return fmt.Errorf("Approve: apply field edit to %s: %v: %w", change.TransactionID, err, ErrStoreWrite)
	}
	return nil
}

func (e *Engine) applySplit(ctx context.Context, change *domain.ChangeRequest, split *domain.Split) error {
	// Deltas are computed against the submission-time snapshot, not the live
	// record; the record has been locked in Pendente since then.
	parts := e.reconciler.Materialize(&change.OriginalSnapshot, split.Parts)

	bctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	if err := e.records.BulkCreateTransactions(bctx, parts); err != nil {
		return fmt.Errorf("Approve: insert split parts for %s: %v: %w", change.TransactionID, err, ErrStoreWrite)
	}

	dctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	if err := e.records.DeleteTransaction(dctx, change.TransactionID); err != nil {
		ids := make([]string, len(parts))
		for i, p := range parts {
			ids[i] = p.ID
		}
		return &OrphanedOriginalError{
			ChangeID:      change.ID,
			TransactionID: change.TransactionID,
			PartIDs:       ids,
			Err:           err,
		}
	}
	return nil
}

func (e *Engine) applyDelete(ctx context.Context, change *domain.ChangeRequest) error {
	dctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	if err := e.records.DeleteTransaction(dctx, change.TransactionID); err != nil {
		return fmt.Errorf("Approve: delete transaction %s: %v: %w", change.TransactionID, err, ErrStoreWrite)
	}
	return nil
}
