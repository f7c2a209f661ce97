package domain

import "time"

// ChangeType discriminates the three kinds of amendment a change request can
// propose against a posted transaction.
type ChangeType string

const (
	// ChangeFieldEdit amends classification fields in place (the dashboard's
	// CONTA/DATA/MARCA/FILIAL/MULTI change kinds all collapse onto this).
	ChangeFieldEdit ChangeType = "FIELD_EDIT"
	// ChangeSplit apportions one transaction across several new ones (rateio).
	ChangeSplit ChangeType = "SPLIT"
	// ChangeDelete removes the transaction.
	ChangeDelete ChangeType = "DELETE"
)

// ChangeStatus is the lifecycle state of a change request. Transitions are
// monotonic: Pendente moves to exactly one of Aplicado or Reprovado, once.
type ChangeStatus string

const (
	ChangePendente ChangeStatus = "Pendente"
	ChangeAplicado ChangeStatus = "Aplicado"
	ChangeReprovado ChangeStatus = "Reprovado"
)

// Terminal reports whether the status is a resolved end state.
func (s ChangeStatus) Terminal() bool {
	return s == ChangeAplicado || s == ChangeReprovado
}

// ChangeRequest is a proposal to mutate exactly one transaction. It carries
// a deep snapshot of the record as it stood at submission time; split deltas
// and the audit trail are computed against the snapshot, never against the
// live record.
type ChangeRequest struct {
	ID              string       `json:"id"`
	TransactionID   string       `json:"transaction_id"`
	Type            ChangeType   `json:"type"`
	OriginalSnapshot Transaction `json:"original_snapshot"`
	Proposal        Proposal     `json:"-"`
	Description     string       `json:"description,omitempty"`
	Justification   string       `json:"justification"`
	Status          ChangeStatus `json:"status"`
	RequestedBy     string       `json:"requested_by"`
	RequestedByName string       `json:"requested_by_name,omitempty"`
	RequestedAt     time.Time    `json:"requested_at"`
	ApprovedBy      *string      `json:"approved_by,omitempty"`
	ApprovedAt      *time.Time   `json:"approved_at,omitempty"`
}

// Clone returns an independent copy of the change request. Proposal values
// are immutable after construction, so sharing them is safe.
func (c *ChangeRequest) Clone() *ChangeRequest {
	cp := *c
	if c.ApprovedBy != nil {
		by := *c.ApprovedBy
		cp.ApprovedBy = &by
	}
	if c.ApprovedAt != nil {
		at := *c.ApprovedAt
		cp.ApprovedAt = &at
	}
	return &cp
}
