package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// WorkflowState is the derived processing phase of a ticket.
type WorkflowState string

const (
	WorkflowIntake   WorkflowState = "INTAKE"
	WorkflowProposed WorkflowState = "PROPOSED"
	WorkflowResolved WorkflowState = "RESOLVED"
)

// WorkflowStates lists every state in lifecycle order.
var WorkflowStates = []WorkflowState{WorkflowIntake, WorkflowProposed, WorkflowResolved}

// Ticket is the raw customer submission and the root of a workflow.
// It is never edited or deleted.
type Ticket struct {
	ID        uuid.UUID `json:"id"`
	RawText   string    `json:"raw_text"`
	CreatedAt time.Time `json:"created_at"`
}

// NewTicket builds a Ticket and checks its field constraints.
func NewTicket(id uuid.UUID, rawText string, createdAt time.Time) (Ticket, error) {
	t := Ticket{ID: id, RawText: rawText, CreatedAt: createdAt}
	return t, violationsError(KindTicket, t.Validate())
}

func (t Ticket) Kind() RecordKind     { return KindTicket }
func (t Ticket) TicketRef() uuid.UUID { return t.ID }
func (t Ticket) Created() time.Time   { return t.CreatedAt }

// Validate implements Record.
func (t Ticket) Validate() []SchemaViolation {
	var vs []SchemaViolation
	if t.ID == uuid.Nil {
		vs = append(vs, SchemaViolation{Field: "id", Rule: "must be a non-nil UUID"})
	}
	if strings.TrimSpace(t.RawText) == "" {
		vs = append(vs, SchemaViolation{Field: "raw_text", Rule: "must be non-empty"})
	}
	if t.CreatedAt.IsZero() {
		vs = append(vs, SchemaViolation{Field: "created_at", Rule: "must be set"})
	}
	return vs
}
