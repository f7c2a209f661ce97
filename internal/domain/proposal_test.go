package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestProposalEnvelopeRoundTrip(t *testing.T) {
	category := "Rateio"
	date := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		proposal Proposal
		check    func(t *testing.T, got Proposal)
	}{
		{
			name:     "field edit",
			proposal: &FieldEdit{Category: &category, Date: &date},
			check: func(t *testing.T, got Proposal) {
				edit, ok := got.(*FieldEdit)
				if !ok {
					t.Fatalf("decoded %T, want *FieldEdit", got)
				}
				if edit.Category == nil || *edit.Category != category {
					t.Errorf("category = %v, want %q", edit.Category, category)
				}
				if edit.Date == nil || !edit.Date.Equal(date) {
					t.Errorf("date = %v, want %v", edit.Date, date)
				}
				if edit.Branch != nil {
					t.Errorf("branch should stay nil, got %v", *edit.Branch)
				}
			},
		},
		{
			name: "split",
			proposal: &Split{Parts: []SplitPart{
				{Amount: decimal.RequireFromString("600.00"), Branch: "Centro", Date: date, Category: "Rateio"},
				{Amount: decimal.RequireFromString("400.00"), Branch: "Sul", Date: date, Category: "Rateio"},
			}},
			check: func(t *testing.T, got Proposal) {
				split, ok := got.(*Split)
				if !ok {
					t.Fatalf("decoded %T, want *Split", got)
				}
				if len(split.Parts) != 2 {
					t.Fatalf("decoded %d parts, want 2", len(split.Parts))
				}
				if !split.Parts[0].Amount.Equal(decimal.RequireFromString("600.00")) {
					t.Errorf("first amount = %s, want 600.00", split.Parts[0].Amount)
				}
			},
		},
		{
			name:     "delete",
			proposal: Delete{},
			check: func(t *testing.T, got Proposal) {
				if _, ok := got.(Delete); !ok {
					t.Fatalf("decoded %T, want Delete", got)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := MarshalProposal(tt.proposal)
			if err != nil {
				t.Fatalf("MarshalProposal: %v", err)
			}
			got, err := UnmarshalProposal(data)
			if err != nil {
				t.Fatalf("UnmarshalProposal: %v", err)
			}
			if got.Kind() != tt.proposal.Kind() {
				t.Errorf("kind = %s, want %s", got.Kind(), tt.proposal.Kind())
			}
			tt.check(t, got)
		})
	}
}

func TestUnmarshalProposalRejectsBadEnvelopes(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"unknown kind", `{"kind":"RENAME"}`},
		{"field edit without payload", `{"kind":"FIELD_EDIT"}`},
		{"split without payload", `{"kind":"SPLIT"}`},
		{"not json", `{{`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := UnmarshalProposal([]byte(tt.data)); err == nil {
				t.Error("UnmarshalProposal() expected error, got nil")
			}
		})
	}
}
