package bigquery

import (
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"

	"github.com/raizfin/finance-amendments/internal/domain"
)

type transactionRow struct {
	ID          string     `bigquery:"id"`
	Description string     `bigquery:"description"`
	Amount      *big.Rat   `bigquery:"amount"` // NUMERIC
	Date        civil.Date `bigquery:"date"`
	Category    string     `bigquery:"category"`
	Type        string     `bigquery:"type"`
	Branch      string     `bigquery:"branch"`
	Brand       string     `bigquery:"brand"`
	Scenario    string     `bigquery:"scenario"`
	Tag01       string     `bigquery:"tag01"`
	Tag02       string     `bigquery:"tag02"`
	Tag03       string     `bigquery:"tag03"`
	Recurring   string     `bigquery:"recurring"`
	Status      string     `bigquery:"status"`
}

type changeRow struct {
	ID               string                 `bigquery:"id"`
	TransactionID    string                 `bigquery:"transaction_id"`
	Type             string                 `bigquery:"type"`
	OriginalSnapshot string                 `bigquery:"original_snapshot"` // JSON
	Proposal         string                 `bigquery:"proposal"`          // JSON envelope
	Description      string                 `bigquery:"description"`
	Justification    string                 `bigquery:"justification"`
	Status           string                 `bigquery:"status"`
	RequestedBy      string                 `bigquery:"requested_by"`
	RequestedByName  string                 `bigquery:"requested_by_name"`
	RequestedAt      time.Time              `bigquery:"requested_at"`
	ApprovedBy       bigquery.NullString    `bigquery:"approved_by"`
	ApprovedAt       bigquery.NullTimestamp `bigquery:"approved_at"`
}

func toTransactionRow(tx *domain.Transaction) *transactionRow {
	return &transactionRow{
		ID:          tx.ID,
		Description: tx.Description,
		Amount:      tx.Amount.Rat(),
		Date:        civil.DateOf(tx.Date),
		Category:    tx.Category,
		Type:        string(tx.Type),
		Branch:      tx.Branch,
		Brand:       tx.Brand,
		Scenario:    tx.Scenario,
		Tag01:       tx.Tag01,
		Tag02:       tx.Tag02,
		Tag03:       tx.Tag03,
		Recurring:   tx.Recurring,
		Status:      string(tx.Status),
	}
}

func (r *transactionRow) toDomain() *domain.Transaction {
	tx := &domain.Transaction{
		ID:          r.ID,
		Description: r.Description,
		Date:        r.Date.In(time.UTC),
		Category:    r.Category,
		Type:        domain.TransactionType(r.Type),
		Branch:      r.Branch,
		Brand:       r.Brand,
		Scenario:    r.Scenario,
		Tag01:       r.Tag01,
		Tag02:       r.Tag02,
		Tag03:       r.Tag03,
		Recurring:   r.Recurring,
		Status:      domain.TransactionStatus(r.Status),
	}
	if r.Amount != nil {
		tx.Amount = decimal.NewFromBigRat(r.Amount, 2)
	}
	return tx
}

func toChangeRow(c *domain.ChangeRequest) (*changeRow, error) {
	snapshot, err := json.Marshal(c.OriginalSnapshot)
	if err != nil {
		return nil, fmt.Errorf("marshal snapshot: %w", err)
	}
	proposal, err := domain.MarshalProposal(c.Proposal)
	if err != nil {
		return nil, fmt.Errorf("marshal proposal: %w", err)
	}

	row := &changeRow{
		ID:               c.ID,
		TransactionID:    c.TransactionID,
		Type:             string(c.Type),
		OriginalSnapshot: string(snapshot),
		Proposal:         string(proposal),
		Description:      c.Description,
		Justification:    c.Justification,
		Status:           string(c.Status),
		RequestedBy:      c.RequestedBy,
		RequestedByName:  c.RequestedByName,
		RequestedAt:      c.RequestedAt,
	}
	if c.ApprovedBy != nil {
		row.ApprovedBy = bigquery.NullString{StringVal: *c.ApprovedBy, Valid: true}
	}
	if c.ApprovedAt != nil {
		row.ApprovedAt = bigquery.NullTimestamp{Timestamp: *c.ApprovedAt, Valid: true}
	}
	return row, nil
}

func (r *changeRow) toDomain() (*domain.ChangeRequest, error) {
	c := &domain.ChangeRequest{
		ID:              r.ID,
		TransactionID:   r.TransactionID,
		Type:            domain.ChangeType(r.Type),
		Description:     r.Description,
		Justification:   r.Justification,
		Status:          domain.ChangeStatus(r.Status),
		RequestedBy:     r.RequestedBy,
		RequestedByName: r.RequestedByName,
		RequestedAt:     r.RequestedAt,
	}
	if err := json.Unmarshal([]byte(r.OriginalSnapshot), &c.OriginalSnapshot); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	proposal, err := domain.UnmarshalProposal([]byte(r.Proposal))
	if err != nil {
		return nil, err
	}
	c.Proposal = proposal
	if r.ApprovedBy.Valid {
		by := r.ApprovedBy.StringVal
		c.ApprovedBy = &by
	}
	if r.ApprovedAt.Valid {
		at := r.ApprovedAt.Timestamp
		c.ApprovedAt = &at
	}
	return c, nil
}
