package amendments

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/raizfin/finance-amendments/internal/domain"
)

// splitTolerance is the absolute currency tolerance for split
// reconciliation. The UI rounds each part to 2 decimals, so the sum can
// drift by a few cents across many parts.
var splitTolerance = decimal.RequireFromString("0.05")

// SplitReconciler validates a split plan against the original transaction
// and materializes it into concrete new records. Both operations are pure.
type SplitReconciler struct{}

// usableParts drops zero-amount parts. The dashboard lets users leave an
// empty row behind; those rows are ignored, not rejected.
func (SplitReconciler) usableParts(parts []domain.SplitPart) []domain.SplitPart {
	kept := make([]domain.SplitPart, 0, len(parts))
	for _, p := range parts {
		if !p.Amount.IsZero() {
			kept = append(kept, p)
		}
	}
	return kept
}

// Validate checks that the parts fully allocate the original amount.
// Negative parts are rejected, zero parts are dropped, and the remaining sum
// must match the original within the tolerance.
func (r SplitReconciler) Validate(original *domain.Transaction, parts []domain.SplitPart) error {
	kept := r.usableParts(parts)
	if len(kept) == 0 {
		return &InvalidSplitError{Reason: "no split parts with a non-zero amount"}
	}

	sum := decimal.Zero
	for i, p := range kept {
		if p.Amount.IsNegative() {
			return &InvalidSplitError{Reason: fmt.Sprintf("part %d has non-positive amount %s", i+1, p.Amount)}
		}
		sum = sum.Add(p.Amount)
	}

	if diff := sum.Sub(original.Amount).Abs(); diff.GreaterThan(splitTolerance) {
		return &InvalidSplitError{Reason: fmt.Sprintf("parts sum to %s but the original amount is %s", sum, original.Amount)}
	}
	return nil
}

// Materialize derives one new transaction per part, in input order. Each
// part inherits the original's description, scenario and tags, takes its own
// amount, date, branch, brand and category, and re-derives the transaction
// type from the category. The description carries a "[R{i}/{n}]" suffix as
// the only link back to the source record - there is no parent-id column.
func (r SplitReconciler) Materialize(original *domain.Transaction, parts []domain.SplitPart) []*domain.Transaction {
	kept := r.usableParts(parts)
	n := len(kept)

	txs := make([]*domain.Transaction, 0, n)
	for i, p := range kept {
		tx := original.Clone()
		tx.ID = uuid.New().String()
		tx.Description = fmt.Sprintf("%s [R%d/%d]", original.Description, i+1, n)
		tx.Amount = p.Amount.Round(2)
		tx.Date = domain.MonthOf(p.Date)
		tx.Branch = p.Branch
		tx.Brand = p.Brand
		tx.Category = p.Category
		tx.Type = domain.TypeForCategory(p.Category)
		tx.Status = domain.StatusRateado
		txs = append(txs, tx)
	}
	return txs
}
