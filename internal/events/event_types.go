package events

import (
	"time"

	"github.com/spec-kit/triage-ledger/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventRecordAppended       EventType = "record_appended"
	EventWorkflowStateChanged EventType = "workflow_state_changed"
)

// Event represents a ledger event emitted after a successful append.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	TicketID  string      `json:"ticket_id"`
	Seq       uint64      `json:"seq"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// RecordAppendedPayload payload.
type RecordAppendedPayload struct {
	Kind        domain.RecordKind `json:"kind"`
	Fingerprint string            `json:"fingerprint"`
	ProposalSeq uint64            `json:"proposal_seq,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
}

// WorkflowStateChangedPayload payload.
type WorkflowStateChangedPayload struct {
	OldState domain.WorkflowState `json:"old_state,omitempty"`
	NewState domain.WorkflowState `json:"new_state"`
}
