// Package inmemory provides map-backed implementations of the record and
// change stores. Data is lost on restart - meant for tests and local
// development; production deployments use the sqlite or bigquery backends.
package inmemory

import (
	"context"
	"fmt"
	"sync"

	"github.com/raizfin/finance-amendments/internal/domain"
	"github.com/raizfin/finance-amendments/internal/store"
)

// RecordStore is an in-memory implementation of store.RecordStore. It is
// safe for concurrent use and returns copies so callers cannot mutate the
// stored state behind its back.
type RecordStore struct {
	mu  sync.RWMutex
	txs map[string]*domain.Transaction
}

// NewRecordStore creates an empty in-memory record store.
func NewRecordStore() *RecordStore {
	return &RecordStore{txs: make(map[string]*domain.Transaction)}
}

// CreateTransaction implements store.RecordStore.
func (s *RecordStore) CreateTransaction(ctx context.Context, tx *domain.Transaction) error {
	if tx.ID == "" {
		return fmt.Errorf("CreateTransaction: transaction ID is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.txs[tx.ID] = tx.Clone()
	return nil
}

// BulkCreateTransactions implements store.RecordStore. The batch is inserted
// atomically: either every row lands or none do.
func (s *RecordStore) BulkCreateTransactions(ctx context.Context, txs []*domain.Transaction) error {
	for _, tx := range txs {
		if tx.ID == "" {
			return fmt.Errorf("BulkCreateTransactions: transaction ID is required")
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, tx := range txs {
		s.txs[tx.ID] = tx.Clone()
	}
	return nil
}

// GetTransaction implements store.RecordStore.
func (s *RecordStore) GetTransaction(ctx context.Context, id string) (*domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tx, ok := s.txs[id]
	if !ok {
		return nil, fmt.Errorf("GetTransaction %s: %w", id, store.ErrNotFound)
	}
	return tx.Clone(), nil
}

// ListTransactions implements store.RecordStore.
func (s *RecordStore) ListTransactions(ctx context.Context, f store.TransactionFilter) ([]*domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Transaction
	for _, tx := range s.txs {
		if f.Status != "" && tx.Status != f.Status {
			continue
		}
		if f.Branch != "" && tx.Branch != f.Branch {
			continue
		}
		if f.Brand != "" && tx.Brand != f.Brand {
			continue
		}
		result = append(result, tx.Clone())
		if f.Limit > 0 && len(result) == f.Limit {
			break
		}
	}
	return result, nil
}

// UpdateTransaction implements store.RecordStore.
func (s *RecordStore) UpdateTransaction(ctx context.Context, id string, patch store.TransactionPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, ok := s.txs[id]
	if !ok {
		return fmt.Errorf("UpdateTransaction %s: %w", id, store.ErrNotFound)
	}

	if patch.Description != nil {
		tx.Description = *patch.Description
	}
	if patch.Category != nil {
		tx.Category = *patch.Category
	}
	if patch.Type != nil {
		tx.Type = *patch.Type
	}
	if patch.Branch != nil {
		tx.Branch = *patch.Branch
	}
	if patch.Brand != nil {
		tx.Brand = *patch.Brand
	}
	if patch.Date != nil {
		tx.Date = *patch.Date
	}
	if patch.Recurring != nil {
		tx.Recurring = *patch.Recurring
	}
	if patch.Status != nil {
		tx.Status = *patch.Status
	}
	return nil
}

// DeleteTransaction implements store.RecordStore.
func (s *RecordStore) DeleteTransaction(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.txs[id]; !ok {
		return fmt.Errorf("DeleteTransaction %s: %w", id, store.ErrNotFound)
	}
	delete(s.txs, id)
	return nil
}

// ChangeStore is an in-memory implementation of store.ChangeStore. The
// pending-uniqueness check and the conditional resolution both run under the
// write lock, so they are atomic with respect to each other.
type ChangeStore struct {
	mu      sync.RWMutex
	changes map[string]*domain.ChangeRequest
}

// NewChangeStore creates an empty in-memory change store.
func NewChangeStore() *ChangeStore {
	return &ChangeStore{changes: make(map[string]*domain.ChangeRequest)}
}

// CreateChange implements store.ChangeStore.
func (s *ChangeStore) CreateChange(ctx context.Context, c *domain.ChangeRequest) error {
	if c.ID == "" {
		return fmt.Errorf("CreateChange: change ID is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.changes {
		if existing.TransactionID == c.TransactionID && existing.Status == domain.ChangePendente {
			return fmt.Errorf("CreateChange for transaction %s: %w", c.TransactionID, store.ErrPendingExists)
		}
	}

	s.changes[c.ID] = c.Clone()
	return nil
}

// GetChange implements store.ChangeStore.
func (s *ChangeStore) GetChange(ctx context.Context, id string) (*domain.ChangeRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.changes[id]
	if !ok {
		return nil, fmt.Errorf("GetChange %s: %w", id, store.ErrNotFound)
	}
	return c.Clone(), nil
}

// ListChanges implements store.ChangeStore.
func (s *ChangeStore) ListChanges(ctx context.Context, f store.ChangeFilter) ([]*domain.ChangeRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.ChangeRequest
	for _, c := range s.changes {
		if f.Status != "" && c.Status != f.Status {
			continue
		}
		if f.TransactionID != "" && c.TransactionID != f.TransactionID {
			continue
		}
		result = append(result, c.Clone())
		if f.Limit > 0 && len(result) == f.Limit {
			break
		}
	}
	return result, nil
}

// ResolveChange implements store.ChangeStore.
func (s *ChangeStore) ResolveChange(ctx context.Context, id string, res store.Resolution) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.changes[id]
	if !ok {
		return fmt.Errorf("ResolveChange %s: %w", id, store.ErrNotFound)
	}
	if c.Status != res.From {
		return fmt.Errorf("ResolveChange %s: status is %s, expected %s: %w", id, c.Status, res.From, store.ErrConflict)
	}

	c.Status = res.To
	c.ApprovedBy = res.ApprovedBy
	c.ApprovedAt = res.ApprovedAt
	return nil
}

// Interface checks.
var _ store.RecordStore = (*RecordStore)(nil)
var _ store.ChangeStore = (*ChangeStore)(nil)
