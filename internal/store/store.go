// Package store defines the persistence contracts consumed by the amendment
// workflow. RecordStore and ChangeStore are independent external systems;
// callers must not assume a transaction spanning both.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/raizfin/finance-amendments/internal/domain"
)

var (
	// ErrNotFound is returned when the requested entity does not exist.
	ErrNotFound = errors.New("store: not found")

	// ErrConflict is returned by ResolveChange when the change request is
	// no longer in the expected status. The compare-and-swap lost.
	ErrConflict = errors.New("store: status conflict")

	// ErrPendingExists is returned by CreateChange when the target
	// transaction already has an open change request.
	ErrPendingExists = errors.New("store: pending change exists for transaction")
)

// TransactionPatch is a partial update of a transaction. Nil fields are left
// unchanged.
type TransactionPatch struct {
	Description *string
	Category    *string
	Type        *domain.TransactionType
	Branch      *string
	Brand       *string
	Date        *time.Time
	Recurring   *string
	Status      *domain.TransactionStatus
}

// TransactionFilter narrows ListTransactions. Zero values match everything.
type TransactionFilter struct {
	Status domain.TransactionStatus
	Branch string
	Brand  string
	Limit  int
}

// ChangeFilter narrows ListChanges. Zero values match everything.
type ChangeFilter struct {
	Status        domain.ChangeStatus
	TransactionID string
	Limit         int
}

// Resolution is a conditional status transition for a change request. The
// update applies only while the request is still in From; otherwise the
// store returns ErrConflict and writes nothing. ApprovedBy/ApprovedAt are
// written as given; nil clears them, which is how the engine releases a
// claim after a failed apply.
type Resolution struct {
	From       domain.ChangeStatus
	To         domain.ChangeStatus
	ApprovedBy *string
	ApprovedAt *time.Time
}

// RecordStore is the durable store of posted transactions.
type RecordStore interface {
	CreateTransaction(ctx context.Context, tx *domain.Transaction) error
	BulkCreateTransactions(ctx context.Context, txs []*domain.Transaction) error
	GetTransaction(ctx context.Context, id string) (*domain.Transaction, error)
	ListTransactions(ctx context.Context, f TransactionFilter) ([]*domain.Transaction, error)
	UpdateTransaction(ctx context.Context, id string, patch TransactionPatch) error
	DeleteTransaction(ctx context.Context, id string) error
}

// ChangeStore is the durable store of change requests. CreateChange enforces
// at most one open request per transaction (ErrPendingExists); each backend
// makes the check-then-insert atomic under its own locking primitive.
type ChangeStore interface {
	CreateChange(ctx context.Context, c *domain.ChangeRequest) error
	GetChange(ctx context.Context, id string) (*domain.ChangeRequest, error)
	ListChanges(ctx context.Context, f ChangeFilter) ([]*domain.ChangeRequest, error)
	ResolveChange(ctx context.Context, id string, res Resolution) error
}
