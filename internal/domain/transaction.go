package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType is the income-statement classification of a transaction.
// It is never set directly by callers; it is derived from the category via
// TypeForCategory so that amendments cannot desynchronize the two.
type TransactionType string

const (
	TypeRevenue      TransactionType = "REVENUE"
	TypeFixedCost    TransactionType = "FIXED_COST"
	TypeVariableCost TransactionType = "VARIABLE_COST"
	TypeSGA          TransactionType = "SGA"
	TypeRateio       TransactionType = "RATEIO"
)

// TransactionStatus tracks where a transaction stands in the amendment
// workflow. A transaction is Normal until a change request is opened against
// it, and only the approval engine moves it to a resolved status.
type TransactionStatus string

const (
	// StatusNormal is a posted record with no open change request.
	StatusNormal TransactionStatus = "Normal"
	// StatusPendente marks a record locked by an open change request.
	StatusPendente TransactionStatus = "Pendente"
	// StatusAjustado marks a record mutated by an approved field edit.
	StatusAjustado TransactionStatus = "Ajustado"
	// StatusRateado marks a record created by an approved split.
	StatusRateado TransactionStatus = "Rateado"
	// StatusExcluido marks a record removed by an approved deletion.
	StatusExcluido TransactionStatus = "Excluido"
)

// Transaction is one posted financial record. Once a change request exists
// against it, the record is mutated only through the approval engine.
type Transaction struct {
	ID          string            `json:"id"`
	Description string            `json:"description"`
	Amount      decimal.Decimal   `json:"amount"`
	Date        time.Time         `json:"date"` // month precision, first of month
	Category    string            `json:"category"`
	Type        TransactionType   `json:"type"`
	Branch      string            `json:"branch"`
	Brand       string            `json:"brand,omitempty"`
	Scenario    string            `json:"scenario,omitempty"`
	Tag01       string            `json:"tag01,omitempty"`
	Tag02       string            `json:"tag02,omitempty"`
	Tag03       string            `json:"tag03,omitempty"`
	Recurring   string            `json:"recurring,omitempty"`
	Status      TransactionStatus `json:"status"`
}

// Clone returns an independent copy of the transaction. Used when
// snapshotting the original record into a change request, so later record
// mutations cannot leak into the audit trail.
func (t *Transaction) Clone() *Transaction {
	c := *t
	return &c
}

// MonthOf truncates a timestamp to the month granularity used by records.
func MonthOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}
