// Package bigquery implements the record and change stores on BigQuery,
// the backend the hosted dashboard reports from. Creates go through the
// streaming inserter; updates, deletes and the conditional change
// resolution run as parameterized DML.
package bigquery

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"

	"github.com/raizfin/finance-amendments/internal/domain"
	"github.com/raizfin/finance-amendments/internal/store"
)

const (
	transactionsTable = "transactions"
	changesTable      = "manual_changes"
)

// Store implements store.RecordStore and store.ChangeStore with a shared
// BigQuery client.
type Store struct {
	client  *bigquery.Client
	project string
	dataset string
}

// NewStore creates a store for the given project and dataset.
func NewStore(ctx context.Context, project, dataset string) (*Store, error) {
	client, err := bigquery.NewClient(ctx, project)
	if err != nil {
		return nil, fmt.Errorf("bigquery.NewStore: creating client: %w", err)
	}
	return &Store{client: client, project: project, dataset: dataset}, nil
}

// Close closes the BigQuery client.
func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) table(name string) string {
	return "`" + s.project + "." + s.dataset + "." + name + "`"
}

// CreateTransaction implements store.RecordStore.
func (s *Store) CreateTransaction(ctx context.Context, tx *domain.Transaction) error {
	return s.BulkCreateTransactions(ctx, []*domain.Transaction{tx})
}

// BulkCreateTransactions implements store.RecordStore.
func (s *Store) BulkCreateTransactions(ctx context.Context, txs []*domain.Transaction) error {
	if len(txs) == 0 {
		return nil
	}

	rows := make([]*transactionRow, len(txs))
	for i, tx := range txs {
		rows[i] = toTransactionRow(tx)
	}

	inserter := s.client.DatasetInProject(s.project, s.dataset).Table(transactionsTable).Inserter()
	if err := inserter.Put(ctx, rows); err != nil {
		return fmt.Errorf("BulkCreateTransactions: inserting rows: %w", err)
	}
	return nil
}

// GetTransaction implements store.RecordStore.
func (s *Store) GetTransaction(ctx context.Context, id string) (*domain.Transaction, error) {
	q := s.client.Query(`SELECT * FROM ` + s.table(transactionsTable) + ` WHERE id = @id`)
	q.Parameters = []bigquery.QueryParameter{{Name: "id", Value: id}}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("GetTransaction %s: query read: %w", id, err)
	}

	var r transactionRow
	err = it.Next(&r)
	if err == iterator.Done {
		return nil, fmt.Errorf("GetTransaction %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("GetTransaction %s: iter next: %w", id, err)
	}
	return r.toDomain(), nil
}

// ListTransactions implements store.RecordStore.
func (s *Store) ListTransactions(ctx context.Context, f store.TransactionFilter) ([]*domain.Transaction, error) {
	query := `SELECT * FROM ` + s.table(transactionsTable)
	var conds []string
	var params []bigquery.QueryParameter
	if f.Status != "" {
		conds = append(conds, "status = @status")
		params = append(params, bigquery.QueryParameter{Name: "status", Value: string(f.Status)})
	}
	if f.Branch != "" {
		conds = append(conds, "branch = @branch")
		params = append(params, bigquery.QueryParameter{Name: "branch", Value: f.Branch})
	}
	if f.Brand != "" {
		conds = append(conds, "brand = @brand")
		params = append(params, bigquery.QueryParameter{Name: "brand", Value: f.Brand})
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY date DESC, id"
	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", f.Limit)
	}

	q := s.client.Query(query)
	q.Parameters = params

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("ListTransactions: query read: %w", err)
	}

	var result []*domain.Transaction
	for {
		var r transactionRow
		err := it.Next(&r)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ListTransactions: iter next: %w", err)
		}
		result = append(result, r.toDomain())
	}
	return result, nil
}

// UpdateTransaction implements store.RecordStore.
func (s *Store) UpdateTransaction(ctx context.Context, id string, patch store.TransactionPatch) error {
	var sets []string
	var params []bigquery.QueryParameter
	add := func(col string, v interface{}) {
		sets = append(sets, fmt.Sprintf("%s = @set_%s", col, col))
		params = append(params, bigquery.QueryParameter{Name: "set_" + col, Value: v})
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
		add("date", civil.DateOf(*patch.Date))
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

	params = append(params, bigquery.QueryParameter{Name: "id", Value: id})
	q := s.client.Query(`UPDATE ` + s.table(transactionsTable) + `
		SET ` + strings.Join(sets, ", ") + `
		WHERE id = @id`)
	q.Parameters = params

	n, err := s.runDML(ctx, q)
	if err != nil {
		return fmt.Errorf("UpdateTransaction %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("UpdateTransaction %s: %w", id, store.ErrNotFound)
	}
	return nil
}

// DeleteTransaction implements store.RecordStore.
func (s *Store) DeleteTransaction(ctx context.Context, id string) error {
	q := s.client.Query(`DELETE FROM ` + s.table(transactionsTable) + ` WHERE id = @id`)
	q.Parameters = []bigquery.QueryParameter{{Name: "id", Value: id}}

	n, err := s.runDML(ctx, q)
	if err != nil {
		return fmt.Errorf("DeleteTransaction %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("DeleteTransaction %s: %w", id, store.ErrNotFound)
	}
	return nil
}

// CreateChange implements store.ChangeStore. BigQuery has no unique
// constraints, so the open-change check is a conditional insert: the row is
// only written when no Pendente row exists for the transaction, and the
// affected-row count tells us which way it went.
func (s *Store) CreateChange(ctx context.Context, c *domain.ChangeRequest) error {
	row, err := toChangeRow(c)
	if err != nil {
		return fmt.Errorf("CreateChange %s: %w", c.ID, err)
	}

	q := s.client.Query(`
		INSERT INTO ` + s.table(changesTable) + `
		  (id, transaction_id, type, original_snapshot, proposal, description,
		   justification, status, requested_by, requested_by_name, requested_at,
		   approved_by, approved_at)
		SELECT @id, @transaction_id, @type, @original_snapshot, @proposal,
		       @description, @justification, @status, @requested_by,
		       @requested_by_name, @requested_at, NULL, NULL
		WHERE NOT EXISTS (
		  SELECT 1 FROM ` + s.table(changesTable) + `
		  WHERE transaction_id = @transaction_id AND status = 'Pendente'
		)`)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "id", Value: row.ID},
		{Name: "transaction_id", Value: row.TransactionID},
		{Name: "type", Value: row.Type},
		{Name: "original_snapshot", Value: row.OriginalSnapshot},
		{Name: "proposal", Value: row.Proposal},
		{Name: "description", Value: row.Description},
		{Name: "justification", Value: row.Justification},
		{Name: "status", Value: row.Status},
		{Name: "requested_by", Value: row.RequestedBy},
		{Name: "requested_by_name", Value: row.RequestedByName},
		{Name: "requested_at", Value: row.RequestedAt},
	}

	n, err := s.runDML(ctx, q)
	if err != nil {
		return fmt.Errorf("CreateChange %s: %w", c.ID, err)
	}
	if n == 0 {
		return fmt.Errorf("CreateChange for transaction %s: %w", c.TransactionID, store.ErrPendingExists)
	}
	return nil
}

// GetChange implements store.ChangeStore.
func (s *Store) GetChange(ctx context.Context, id string) (*domain.ChangeRequest, error) {
	q := s.client.Query(`SELECT * FROM ` + s.table(changesTable) + ` WHERE id = @id`)
	q.Parameters = []bigquery.QueryParameter{{Name: "id", Value: id}}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("GetChange %s: query read: %w", id, err)
	}

	var r changeRow
	err = it.Next(&r)
	if err == iterator.Done {
		return nil, fmt.Errorf("GetChange %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("GetChange %s: iter next: %w", id, err)
	}
	c, err := r.toDomain()
	if err != nil {
		return nil, fmt.Errorf("GetChange %s: %w", id, err)
	}
	return c, nil
}

// ListChanges implements store.ChangeStore.
func (s *Store) ListChanges(ctx context.Context, f store.ChangeFilter) ([]*domain.ChangeRequest, error) {
	query := `SELECT * FROM ` + s.table(changesTable)
	var conds []string
	var params []bigquery.QueryParameter
	if f.Status != "" {
		conds = append(conds, "status = @status")
		params = append(params, bigquery.QueryParameter{Name: "status", Value: string(f.Status)})
	}
	if f.TransactionID != "" {
		conds = append(conds, "transaction_id = @transaction_id")
		params = append(params, bigquery.QueryParameter{Name: "transaction_id", Value: f.TransactionID})
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY requested_at DESC"
	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", f.Limit)
	}

	q := s.client.Query(query)
	q.Parameters = params

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("ListChanges: query read: %w", err)
	}

	var result []*domain.ChangeRequest
	for {
		var r changeRow
		err := it.Next(&r)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ListChanges: iter next: %w", err)
		}
		c, err := r.toDomain()
		if err != nil {
			return nil, fmt.Errorf("ListChanges: %w", err)
		}
		result = append(result, c)
	}
	return result, nil
}

// ResolveChange implements store.ChangeStore. The status condition makes
// the update a compare-and-swap; zero updated rows for an existing id means
// the swap lost.
func (s *Store) ResolveChange(ctx context.Context, id string, res store.Resolution) error {
	var approvedBy, approvedAt interface{}
	if res.ApprovedBy != nil {
		approvedBy = bigquery.NullString{StringVal: *res.ApprovedBy, Valid: true}
	} else {
		approvedBy = bigquery.NullString{}
	}
	if res.ApprovedAt != nil {
		approvedAt = bigquery.NullTimestamp{Timestamp: *res.ApprovedAt, Valid: true}
	} else {
		approvedAt = bigquery.NullTimestamp{}
	}

	q := s.client.Query(`
		UPDATE ` + s.table(changesTable) + `
		SET status = @to, approved_by = @approved_by, approved_at = @approved_at
		WHERE id = @id AND status = @from`)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "to", Value: string(res.To)},
		{Name: "approved_by", Value: approvedBy},
		{Name: "approved_at", Value: approvedAt},
		{Name: "id", Value: id},
		{Name: "from", Value: string(res.From)},
	}

	n, err := s.runDML(ctx, q)
	if err != nil {
		return fmt.Errorf("ResolveChange %s: %w", id, err)
	}
	if n == 1 {
		return nil
	}

	if _, err := s.GetChange(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("ResolveChange %s: %w", id, store.ErrNotFound)
		}
		return err
	}
	return fmt.Errorf("ResolveChange %s: %w", id, store.ErrConflict)
}

// runDML runs a DML query to completion and returns the affected row count.
func (s *Store) runDML(ctx context.Context, q *bigquery.Query) (int64, error) {
	job, err := q.Run(ctx)
	if err != nil {
		return 0, fmt.Errorf("run query: %w", err)
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return 0, fmt.Errorf("wait for job: %w", err)
	}
	if err := status.Err(); err != nil {
		return 0, fmt.Errorf("job failed: %w", err)
	}

	if status.Statistics != nil {
		if qs, ok := status.Statistics.Details.(*bigquery.QueryStatistics); ok && qs.DMLStats != nil {
			return qs.DMLStats.InsertedRowCount + qs.DMLStats.UpdatedRowCount + qs.DMLStats.DeletedRowCount, nil
		}
	}
	return 0, nil
}

// EnsureTables creates the dataset and both tables if they do not exist.
// Used by cmd/migrate.
func (s *Store) EnsureTables(ctx context.Context) error {
	ds := s.client.DatasetInProject(s.project, s.dataset)
	if err := ds.Create(ctx, &bigquery.DatasetMetadata{Name: s.dataset}); err != nil && !isAlreadyExists(err) {
		return fmt.Errorf("EnsureTables: create dataset: %w", err)
	}

	txSchema, err := bigquery.InferSchema(transactionRow{})
	if err != nil {
		return fmt.Errorf("EnsureTables: infer transactions schema: %w", err)
	}
	if err := ds.Table(transactionsTable).Create(ctx, &bigquery.TableMetadata{Schema: txSchema}); err != nil && !isAlreadyExists(err) {
		return fmt.Errorf("EnsureTables: create transactions table: %w", err)
	}

	chSchema, err := bigquery.InferSchema(changeRow{})
	if err != nil {
		return fmt.Errorf("EnsureTables: infer changes schema: %w", err)
	}
	if err := ds.Table(changesTable).Create(ctx, &bigquery.TableMetadata{Schema: chSchema}); err != nil && !isAlreadyExists(err) {
		return fmt.Errorf("EnsureTables: create changes table: %w", err)
	}
	return nil
}

func isAlreadyExists(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == 409
}

// Interface checks.
var _ store.RecordStore = (*Store)(nil)
var _ store.ChangeStore = (*Store)(nil)
