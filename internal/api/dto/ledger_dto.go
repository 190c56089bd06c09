package dto

import (
	"time"

	"github.com/spec-kit/triage-ledger/internal/audit"
	"github.com/spec-kit/triage-ledger/internal/domain"
)

// AppendResponse acknowledges an accepted record.
type AppendResponse struct {
	Seq         uint64               `json:"seq"`
	TicketID    string               `json:"ticket_id"`
	Kind        domain.RecordKind    `json:"kind"`
	Fingerprint string               `json:"fingerprint"`
	ProposalSeq uint64               `json:"proposal_seq,omitempty"`
	State       domain.WorkflowState `json:"state"`
	AppendedAt  time.Time            `json:"appended_at"`
}

// ValidateResponse is the result of a dry-run validation.
type ValidateResponse struct {
	Kind       domain.RecordKind        `json:"kind"`
	Valid      bool                     `json:"valid"`
	Violations []domain.SchemaViolation `json:"violations"`
}

// StateResponse reports a ticket's workflow state.
type StateResponse struct {
	TicketID string               `json:"ticket_id"`
	State    domain.WorkflowState `json:"state"`
}

// HistoryResponse lists a ticket's records in history order.
type HistoryResponse struct {
	TicketID string         `json:"ticket_id"`
	State    string         `json:"state"`
	Records  []audit.Record `json:"records"`
}
