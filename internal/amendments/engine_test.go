package amendments

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raizfin/finance-amendments/internal/auth"
	"github.com/raizfin/finance-amendments/internal/domain"
	"github.com/raizfin/finance-amendments/internal/store"
	"github.com/raizfin/finance-amendments/internal/store/inmemory"
)

var (
	admin    = auth.Actor{Email: "boss@raiz.com", Name: "Boss", Role: auth.RoleAdmin}
	reviewer = auth.Actor{Email: "viewer@raiz.com", Name: "Viewer"}
)

// flakyRecords wraps a real record store and lets individual tests fail
// chosen operations.
type flakyRecords struct {
	store.RecordStore
	bulkCreateFn func(ctx context.Context, txs []*domain.Transaction) error
	deleteFn     func(ctx context.Context, id string) error
	updateFn     func(ctx context.Context, id string, patch store.TransactionPatch) error
}

func (f *flakyRecords) BulkCreateTransactions(ctx context.Context, txs []*domain.Transaction) error {
	if f.bulkCreateFn != nil {
		return f.bulkCreateFn(ctx, txs)
	}
	return f.RecordStore.BulkCreateTransactions(ctx, txs)
}

func (f *flakyRecords) DeleteTransaction(ctx context.Context, id string) error {
	if f.deleteFn != nil {
		return f.deleteFn(ctx, id)
	}
	return f.RecordStore.DeleteTransaction(ctx, id)
}

func (f *flakyRecords) UpdateTransaction(ctx context.Context, id string, patch store.TransactionPatch) error {
	if f.updateFn != nil {
		return f.updateFn(ctx, id, patch)
	}
	return f.RecordStore.UpdateTransaction(ctx, id, patch)
}

type workflow struct {
	records  *flakyRecords
	changes  *inmemory.ChangeStore
	registry *Registry
	engine   *Engine
}

func newWorkflow(t *testing.T) *workflow {
	t.Helper()

	records := &flakyRecords{RecordStore: inmemory.NewRecordStore()}
	changes := inmemory.NewChangeStore()
	gate := auth.NewStaticGate([]string{admin.Email})
	log := zerolog.Nop()

	return &workflow{
		records:  records,
		changes:  changes,
		registry: NewRegistry(records, changes, log, time.Second),
		engine:   NewEngine(gate, records, changes, log, time.Second),
	}
}

// seed posts a transaction and opens a change request against it.
func (w *workflow) seed(t *testing.T, proposal domain.Proposal) (*domain.Transaction, *domain.ChangeRequest) {
	t.Helper()
	ctx := context.Background()

	tx := originalTransaction("1000.00")
	require.NoError(t, w.records.CreateTransaction(ctx, tx))

	change, err := w.registry.Submit(ctx, SubmitRequest{
		Transaction:   tx,
		Proposal:      proposal,
		Justification: "lançado na unidade errada",
	}, reviewer)
	require.NoError(t, err)
	return tx, change
}

func TestApproveFieldEdit(t *testing.T) {
	w := newWorkflow(t)
	ctx := context.Background()

	category := "Rateio"
	branch := "Unidade Sul"
	tx, change := w.seed(t, &domain.FieldEdit{Category: &category, Branch: &branch})

	require.NoError(t, w.engine.Approve(ctx, change.ID, admin))

	got, err := w.records.GetTransaction(ctx, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, "Rateio", got.Category)
	assert.Equal(t, domain.TypeRateio, got.Type, "type must be re-derived from the new category")
	assert.Equal(t, "Unidade Sul", got.Branch)
	assert.Equal(t, domain.StatusAjustado, got.Status)
	assert.True(t, got.Amount.Equal(tx.Amount), "field edits never touch the amount")

	resolved, err := w.changes.GetChange(ctx, change.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ChangeAplicado, resolved.Status)
	require.NotNil(t, resolved.ApprovedBy)
	assert.Equal(t, admin.Email, *resolved.ApprovedBy)
	assert.NotNil(t, resolved.ApprovedAt)
}

func TestApproveSplit(t *testing.T) {
	w := newWorkflow(t)
	ctx := context.Background()

	tx, change := w.seed(t, &domain.Split{Parts: []domain.SplitPart{
		part("600.00", "Unidade Centro"),
		part("400.00", "Unidade Sul"),
	}})

	require.NoError(t, w.engine.Approve(ctx, change.ID, admin))

	_, err := w.records.GetTransaction(ctx, tx.ID)
	assert.ErrorIs(t, err, store.ErrNotFound, "original must be gone after an approved split")

	parts, err := w.records.ListTransactions(ctx, store.TransactionFilter{Status: domain.StatusRateado})
	require.NoError(t, err)
	require.Len(t, parts, 2)
	total := parts[0].Amount.Add(parts[1].Amount)
	assert.True(t, total.Equal(tx.Amount), "parts must preserve the original amount, got %s", total)

	resolved, err := w.changes.GetChange(ctx, change.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ChangeAplicado, resolved.Status)
}

func TestApproveDelete(t *testing.T) {
	w := newWorkflow(t)
	ctx := context.Background()

	tx, change := w.seed(t, domain.Delete{})

	require.NoError(t, w.engine.Approve(ctx, change.ID, admin))

	_, err := w.records.GetTransaction(ctx, tx.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestApproveNonAdminLeavesStateUntouched(t *testing.T) {
	w := newWorkflow(t)
	ctx := context.Background()

	tx, change := w.seed(t, domain.Delete{})

	err := w.engine.Approve(ctx, change.ID, reviewer)
	assert.ErrorIs(t, err, ErrNotAuthorized)

	got, err := w.records.GetTransaction(ctx, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPendente, got.Status)

	pending, err := w.changes.GetChange(ctx, change.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ChangePendente, pending.Status)
	assert.Nil(t, pending.ApprovedBy)
}

func TestResolveIsOnce(t *testing.T) {
	w := newWorkflow(t)
	ctx := context.Background()

	category := "Rateio"
	_, change := w.seed(t, &domain.FieldEdit{Category: &category})

	require.NoError(t, w.engine.Approve(ctx, change.ID, admin))

	assert.ErrorIs(t, w.engine.Approve(ctx, change.ID, admin), ErrAlreadyResolved)
	assert.ErrorIs(t, w.engine.Reject(ctx, change.ID, admin), ErrAlreadyResolved)
}

func TestApproveUnknownChange(t *testing.T) {
	w := newWorkflow(t)

	err := w.engine.Approve(context.Background(), "missing", admin)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestRejectRevertsTransaction(t *testing.T) {
	w := newWorkflow(t)
	ctx := context.Background()

	tx, change := w.seed(t, domain.Delete{})

	require.NoError(t, w.engine.Reject(ctx, change.ID, admin))

	got, err := w.records.GetTransaction(ctx, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusNormal, got.Status, "rejection must unlock the record")

	resolved, err := w.changes.GetChange(ctx, change.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ChangeReprovado, resolved.Status)
	require.NotNil(t, resolved.ApprovedBy)
	assert.Equal(t, admin.Email, *resolved.ApprovedBy)
}

func TestApproveSplitInsertFailureIsRetryable(t *testing.T) {
	w := newWorkflow(t)
	ctx := context.Background()

	tx, change := w.seed(t, &domain.Split{Parts: []domain.SplitPart{
		part("600.00", "A"),
		part("400.00", "B"),
	}})

	w.records.bulkCreateFn = func(context.Context, []*domain.Transaction) error {
		return errors.New("insert quota exceeded")
	}

	err := w.engine.Approve(ctx, change.ID, admin)
	assert.ErrorIs(t, err, ErrStoreWrite)

	got, gerr := w.records.GetTransaction(ctx, tx.ID)
	require.NoError(t, gerr)
	assert.Equal(t, domain.StatusPendente, got.Status, "original must survive a failed insert")

	pending, gerr := w.changes.GetChange(ctx, change.ID)
	require.NoError(t, gerr)
	assert.Equal(t, domain.ChangePendente, pending.Status, "claim must be released so the approval can be retried")

	// Retry once the store recovers.
	w.records.bulkCreateFn = nil
	require.NoError(t, w.engine.Approve(ctx, change.ID, admin))
}

func TestApproveSplitDeleteFailureReportsOrphan(t *testing.T) {
	w := newWorkflow(t)
	ctx := context.Background()

	tx, change := w.seed(t, &domain.Split{Parts: []domain.SplitPart{
		part("600.00", "A"),
		part("400.00", "B"),
	}})

	w.records.deleteFn = func(context.Context, string) error {
		return errors.New("delete timed out")
	}

	err := w.engine.Approve(ctx, change.ID, admin)

	var orphan *OrphanedOriginalError
	require.ErrorAs(t, err, &orphan)
	assert.Equal(t, change.ID, orphan.ChangeID)
	assert.Equal(t, tx.ID, orphan.TransactionID)
	assert.Len(t, orphan.PartIDs, 2)

	// Both the original and the parts are present; totals over-count until
	// someone reconciles by hand.
	_, gerr := w.records.GetTransaction(ctx, tx.ID)
	assert.NoError(t, gerr)
	parts, gerr := w.records.ListTransactions(ctx, store.TransactionFilter{Status: domain.StatusRateado})
	require.NoError(t, gerr)
	assert.Len(t, parts, 2)

	resolved, gerr := w.changes.GetChange(ctx, change.ID)
	require.NoError(t, gerr)
	assert.Equal(t, domain.ChangeAplicado, resolved.Status, "the parts exist, so the change stays applied")
}

func TestConcurrentApproversOnlyOneWins(t *testing.T) {
	w := newWorkflow(t)
	ctx := context.Background()

	_, change := w.seed(t, &domain.Split{Parts: []domain.SplitPart{
		part("600.00", "A"),
		part("400.00", "B"),
	}})

	results := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() {
			results <- w.engine.Approve(ctx, change.ID, admin)
		}()
	}

	var wins, losses int
	for i := 0; i < 2; i++ {
		switch err := <-results; {
		case err == nil:
			wins++
		case errors.Is(err, ErrAlreadyResolved):
			losses++
		default:
			t.Fatalf("unexpected approve error: %v", err)
		}
	}
	assert.Equal(t, 1, wins, "exactly one approver must win the claim")
	assert.Equal(t, 1, losses)

	parts, err := w.records.ListTransactions(ctx, store.TransactionFilter{Status: domain.StatusRateado})
	require.NoError(t, err)
	assert.Len(t, parts, 2, "the split must be applied exactly once")
}
