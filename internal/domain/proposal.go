package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Proposal is the payload of a change request, discriminated by Kind. The
// dashboard this service replaces kept one JSON-stringified blob for every
// change kind and shape-sniffed it at approval time; here each kind is a
// concrete type and stores persist them through a tagged envelope.
type Proposal interface {
	Kind() ChangeType
}

// FieldEdit proposes new values for classification fields. Nil means the
// field is left untouched. A category edit re-derives the transaction type
// on apply.
type FieldEdit struct {
	Category  *string    `json:"category,omitempty"`
	Branch    *string    `json:"branch,omitempty"`
	Brand     *string    `json:"brand,omitempty"`
	Date      *time.Time `json:"date,omitempty"`
	Recurring *string    `json:"recurring,omitempty"`
}

func (*FieldEdit) Kind() ChangeType { return ChangeFieldEdit }

// SplitPart is one slice of a proposed apportionment. Parts exist only
// inside a change request until approval materializes them into records.
type SplitPart struct {
	Amount   decimal.Decimal `json:"amount"`
	Branch   string          `json:"branch"`
	Brand    string          `json:"brand,omitempty"`
	Date     time.Time       `json:"date"`
	Category string          `json:"category"`
}

// Split proposes dividing the original amount across the parts, in order.
type Split struct {
	Parts []SplitPart `json:"parts"`
}

func (*Split) Kind() ChangeType { return ChangeSplit }

// Delete proposes removing the transaction outright.
type Delete struct{}

func (Delete) Kind() ChangeType { return ChangeDelete }

// proposalEnvelope is the persisted form of a Proposal.
type proposalEnvelope struct {
	Kind      ChangeType `json:"kind"`
	FieldEdit *FieldEdit `json:"field_edit,omitempty"`
	Split     *Split     `json:"split,omitempty"`
}

// MarshalProposal encodes a proposal into its store envelope.
func MarshalProposal(p Proposal) ([]byte, error) {
	env := proposalEnvelope{Kind: p.Kind()}
	switch v := p.(type) {
	case *FieldEdit:
		env.FieldEdit = v
	case *Split:
		env.Split = v
	case Delete:
	default:
		return nil, fmt.Errorf("MarshalProposal: unknown proposal type %T", p)
	}
	return json.Marshal(env)
}

// UnmarshalProposal decodes a store envelope back into a typed proposal.
func UnmarshalProposal(data []byte) (Proposal, error) {
	var env proposalEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("UnmarshalProposal: decode envelope: %w", err)
	}
	switch env.Kind {
	case ChangeFieldEdit:
		if env.FieldEdit == nil {
			return nil, fmt.Errorf("UnmarshalProposal: field edit envelope without payload")
		}
		return env.FieldEdit, nil
	case ChangeSplit:
		if env.Split == nil {
			return nil, fmt.Errorf("UnmarshalProposal: split envelope without payload")
		}
		return env.Split, nil
	case ChangeDelete:
		return Delete{}, nil
	default:
		return nil, fmt.Errorf("UnmarshalProposal: unknown change kind %q", env.Kind)
	}
}
