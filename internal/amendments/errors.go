package amendments

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyJustification rejects a submission with a blank justification.
	ErrEmptyJustification = errors.New("justification is required")

	// ErrNotAuthorized rejects approve/reject calls from non-admin actors.
	// No mutation happens when this is returned.
	ErrNotAuthorized = errors.New("actor is not authorized to resolve change requests")

	// ErrAlreadyResolved means the change request left Pendente before this
	// call could claim it, either earlier or through a concurrent resolver.
	// Callers should refresh state rather than retry.
	ErrAlreadyResolved = errors.New("change request already resolved")

	// ErrPendingChangeExists rejects a submission against a transaction that
	// already has an open change request.
	ErrPendingChangeExists = errors.New("transaction already has a pending change request")

	// ErrStoreWrite wraps transient persistence failures that occurred
	// before any destructive step. The whole call is safe to retry.
	ErrStoreWrite = errors.New("store write failed")
)

// InvalidSplitError rejects a split proposal that cannot reconcile against
// the original amount.
type InvalidSplitError struct {
	Reason string
}

func (e *InvalidSplitError) Error() string {
	return fmt.Sprintf("invalid split: %s", e.Reason)
}

// OrphanedOriginalError reports that split parts were inserted but deleting
// the original transaction failed, leaving the total over-counted. This is
// never safe to retry automatically and must be reconciled manually; callers
// are required to surface it as a blocking error, not a log line.
type OrphanedOriginalError struct {
	ChangeID      string
	TransactionID string
	PartIDs       []string
	Err           error
}

func (e *OrphanedOriginalError) Error() string {
	return fmt.Sprintf("orphaned original: split parts for change %s were created but deleting transaction %s failed: %v",
		e.ChangeID, e.TransactionID, e.Err)
}

func (e *OrphanedOriginalError) Unwrap() error { return e.Err }
