// Package sqlite implements the record and change stores on a local SQLite
// database. Suitable for single-node deployments; the BigQuery backend
// serves the hosted dashboard.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/raizfin/finance-amendments/internal/domain"
	"github.com/raizfin/finance-amendments/internal/store"
)

const dateFormat = "2006-01-02"

// Store implements store.RecordStore and store.ChangeStore over one SQLite
// database.
type Store struct {
	db *sql.DB
}

// Open opens (and if needed creates) the database at path, enabling WAL
// mode and foreign keys, and applies the schema.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("sqlite.Open: create directory: %w", err)
	}

	connStr := fmt.Sprintf("file:%s?_foreign_keys=on&_journal_mode=WAL", path)
	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("sqlite.Open: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite.Open: ping: %w", err)
	}
	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite.Open: apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

const txColumns = "id, description, amount, date, category, type, branch, brand, scenario, tag01, tag02, tag03, recurring, status"

// CreateTransaction implements store.RecordStore.
func (s *Store) CreateTransaction(ctx context.Context, tx *domain.Transaction) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO transactions ("+txColumns+") VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)",
		txArgs(tx)...)
	if err != nil {
		return fmt.Errorf("CreateTransaction %s: %w", tx.ID, err)
	}
	return nil
}

// BulkCreateTransactions implements store.RecordStore. The batch is inserted
// in one transaction so a mid-batch failure leaves no rows behind.
func (s *Store) BulkCreateTransactions(ctx context.Context, txs []*domain.Transaction) error {
	if len(txs) == 0 {
		return nil
	}

	dbtx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("BulkCreateTransactions: begin: %w", err)
	}
	defer dbtx.Rollback()

	stmt, err := dbtx.PrepareContext(ctx,
		"INSERT INTO transactions ("+txColumns+") VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)")
	if err != nil {
		return fmt.Errorf("BulkCreateTransactions: prepare: %w", err)
	}
	defer stmt.Close()

	for _, tx := range txs {
		if _, err := stmt.ExecContext(ctx, txArgs(tx)...); err != nil {
			return fmt.Errorf("BulkCreateTransactions: insert %s: %w", tx.ID, err)
		}
	}
	if err := dbtx.Commit(); err != nil {
		return fmt.Errorf("BulkCreateTransactions: commit: %w", err)
	}
	return nil
}

// GetTransaction implements store.RecordStore.
func (s *Store) GetTransaction(ctx context.Context, id string) (*domain.Transaction, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+txColumns+" FROM transactions WHERE id = ?", id)
	tx, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("GetTransaction %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("GetTransaction %s: %w", id, err)
	}
	return tx, nil
}

// ListTransactions implements store.RecordStore.
func (s *Store) ListTransactions(ctx context.Context, f store.TransactionFilter) ([]*domain.Transaction, error) {
	query := "SELECT " + txColumns + " FROM transactions"
	var conds []string
	var args []interface{}
	if f.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, string(f.Status))
	}
	if f.Branch != "" {
		conds = append(conds, "branch = ?")
		args = append(args, f.Branch)
	}
	if f.Brand != "" {
		conds = append(conds, "brand = ?")
		args = append(args, f.Brand)
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY date DESC, id"
	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ListTransactions: %w", err)
	}
	defer rows.Close()

	var result []*domain.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("ListTransactions: scan: %w", err)
		}
		result = append(result, tx)
	}
	return result, rows.Err()
}

// UpdateTransaction implements store.RecordStore.
func (s *Store) UpdateTransaction(ctx context.Context, id string, patch store.TransactionPatch) error {
	var sets []string
	var args []interface{}
	add := func(col string, v interface{}) {
		sets = append(sets, col+" = ?")
		args = append(args, v)
	}

	if patch.Description != nil {
		add("description", *patch.Description)
	}
	if patch.Category != nil {
		add("category", *patch.Category)
	}
	if patch.Type != nil {
		add("type", string(*patch.Type))
	}
	if patch.Branch != nil {
		add("branch", *patch.Branch)
	}
	if patch.Brand != nil {
		add("brand", *patch.Brand)
	}
	if patch.Date != nil {
		add("date", patch.Date.Format(dateFormat))
	}
	if patch.Recurring != nil {
		add("recurring", *patch.Recurring)
	}
	if patch.Status != nil {
		add("status", string(*patch.Status))
	}
	if len(sets) == 0 {
		return nil
	}

	args = append(args, id)
	res, err := s.db.ExecContext(ctx,
		"UPDATE transactions SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...)
	if err != nil {
		return fmt.Errorf("UpdateTransaction %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("UpdateTransaction %s: rows affected: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("UpdateTransaction %s: %w", id, store.ErrNotFound)
	}
	return nil
}

// DeleteTransaction implements store.RecordStore.
func (s *Store) DeleteTransaction(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM transactions WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("DeleteTransaction %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("DeleteTransaction %s: rows affected: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("DeleteTransaction %s: %w", id, store.ErrNotFound)
	}
	return nil
}

// CreateChange implements store.ChangeStore. The partial unique index on
// open changes turns a concurrent duplicate submission into a constraint
// violation, which maps to ErrPendingExists.
func (s *Store) CreateChange(ctx context.Context, c *domain.ChangeRequest) error {
	snapshot, err := json.Marshal(c.OriginalSnapshot)
	if err != nil {
		return fmt.Errorf("CreateChange %s: marshal snapshot: %w", c.ID, err)
	}
	proposal, err := domain.MarshalProposal(c.Proposal)
	if err != nil {
		return fmt.Errorf("CreateChange %s: marshal proposal: %w", c.ID, err)
	}

	var approvedBy, approvedAt interface{}
	if c.ApprovedBy != nil {
		approvedBy = *c.ApprovedBy
	}
	if c.ApprovedAt != nil {
		approvedAt = c.ApprovedAt.Format(time.RFC3339Nano)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO manual_changes
		  (id, transaction_id, type, original_snapshot, proposal, description,
		   justification, status, requested_by, requested_by_name, requested_at,
		   approved_by, approved_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		c.ID, c.TransactionID, string(c.Type), string(snapshot), string(proposal),
		c.Description, c.Justification, string(c.Status), c.RequestedBy,
		c.RequestedByName, c.RequestedAt.Format(time.RFC3339Nano),
		approvedBy, approvedAt)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
			return fmt.Errorf("CreateChange for transaction %s: %w", c.TransactionID, store.ErrPendingExists)
		}
		return fmt.Errorf("CreateChange %s: %w", c.ID, err)
	}
	return nil
}

const changeColumns = "id, transaction_id, type, original_snapshot, proposal, description, justification, status, requested_by, requested_by_name, requested_at, approved_by, approved_at"

// GetChange implements store.ChangeStore.
func (s *Store) GetChange(ctx context.Context, id string) (*domain.ChangeRequest, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+changeColumns+" FROM manual_changes WHERE id = ?", id)
	c, err := scanChange(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("GetChange %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("GetChange %s: %w", id, err)
	}
	return c, nil
}

// ListChanges implements store.ChangeStore.
func (s *Store) ListChanges(ctx context.Context, f store.ChangeFilter) ([]*domain.ChangeRequest, error) {
	query := "SELECT " + changeColumns + " FROM manual_changes"
	var conds []string
	var args []interface{}
	if f.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, string(f.Status))
	}
	if f.TransactionID != "" {
		conds = append(conds, "transaction_id = ?")
		args = append(args, f.TransactionID)
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY requested_at DESC"
	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ListChanges: %w", err)
	}
	defer rows.Close()

	var result []*domain.ChangeRequest
	for rows.Next() {
		c, err := scanChange(rows)
		if err != nil {
			return nil, fmt.Errorf("ListChanges: scan: %w", err)
		}
		result = append(result, c)
	}
	return result, rows.Err()
}

// ResolveChange implements store.ChangeStore. The status condition in the
// WHERE clause makes the transition a compare-and-swap; zero affected rows
// with an existing id means the swap lost.
func (s *Store) ResolveChange(ctx context.Context, id string, res store.Resolution) error {
	var approvedBy, approvedAt interface{}
	if res.ApprovedBy != nil {
		approvedBy = *res.ApprovedBy
	}
	if res.ApprovedAt != nil {
		approvedAt = res.ApprovedAt.Format(time.RFC3339Nano)
	}

	r, err := s.db.ExecContext(ctx, `
		UPDATE manual_changes
		SET status = ?, approved_by = ?, approved_at = ?
		WHERE id = ? AND status = ?`,
		string(res.To), approvedBy, approvedAt, id, string(res.From))
	if err != nil {
		return fmt.Errorf("ResolveChange %s: %w", id, err)
	}
	n, err := r.RowsAffected()
	if err != nil {
		return fmt.Errorf("ResolveChange %s: rows affected: %w", id, err)
	}
	if n == 1 {
		return nil
	}

	var exists int
	err = s.db.QueryRowContext(ctx,
		"SELECT 1 FROM manual_changes WHERE id = ?", id).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("ResolveChange %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("ResolveChange %s: %w", id, err)
	}
	return fmt.Errorf("ResolveChange %s: %w", id, store.ErrConflict)
}

func txArgs(tx *domain.Transaction) []interface{} {
	return []interface{}{
		tx.ID, tx.Description, tx.Amount.StringFixed(2), tx.Date.Format(dateFormat),
		tx.Category, string(tx.Type), tx.Branch, tx.Brand, tx.Scenario,
		tx.Tag01, tx.Tag02, tx.Tag03, tx.Recurring, string(tx.Status),
	}
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanTransaction(row scanner) (*domain.Transaction, error) {
	var tx domain.Transaction
	var amount, date, txType, status string
	err := row.Scan(&tx.ID, &tx.Description, &amount, &date, &tx.Category,
		&txType, &tx.Branch, &tx.Brand, &tx.Scenario, &tx.Tag01, &tx.Tag02,
		&tx.Tag03, &tx.Recurring, &status)
	if err != nil {
		return nil, err
	}

	if tx.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("parse amount %q: %w", amount, err)
	}
	if tx.Date, err = time.Parse(dateFormat, date); err != nil {
		return nil, fmt.Errorf("parse date %q: %w", date, err)
	}
	tx.Type = domain.TransactionType(txType)
	tx.Status = domain.TransactionStatus(status)
	return &tx, nil
}

func scanChange(row scanner) (*domain.ChangeRequest, error) {
	var c domain.ChangeRequest
	var cType, status, snapshot, proposal, requestedAt string
	var approvedBy, approvedAt sql.NullString
	err := row.Scan(&c.ID, &c.TransactionID, &cType, &snapshot, &proposal,
		&c.Description, &c.Justification, &status, &c.RequestedBy,
		&c.RequestedByName, &requestedAt, &approvedBy, &approvedAt)
	if err != nil {
		return nil, err
	}

	c.Type = domain.ChangeType(cType)
	c.Status = domain.ChangeStatus(status)
	if err := json.Unmarshal([]byte(snapshot), &c.OriginalSnapshot); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	if c.Proposal, err = domain.UnmarshalProposal([]byte(proposal)); err != nil {
		return nil, err
	}
	if c.RequestedAt, err = time.Parse(time.RFC3339Nano, requestedAt); err != nil {
		return nil, fmt.Errorf("parse requested_at %q: %w", requestedAt, err)
	}
	if approvedBy.Valid {
		c.ApprovedBy = &approvedBy.String
	}
	if approvedAt.Valid {
		at, err := time.Parse(time.RFC3339Nano, approvedAt.String)
		if err != nil {
			return nil, fmt.Errorf("parse approved_at %q: %w", approvedAt.String, err)
		}
		c.ApprovedAt = &at
	}
	return &c, nil
}

// Interface checks.
var _ store.RecordStore = (*Store)(nil)
var _ store.ChangeStore = (*Store)(nil)
