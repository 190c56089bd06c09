package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// FaithfulnessConfidence is the probability that a summary faithfully
// represents the raw ticket text. It is not a decision signal and has no
// conversion to AgreementConfidence.
type FaithfulnessConfidence float64

// TicketSummary is a display-only digest of a ticket's raw text. A
// corrected summary is a new record.
type TicketSummary struct {
	TicketID   uuid.UUID              `json:"ticket_id"`
	Summary    string                 `json:"summary"`
	Confidence FaithfulnessConfidence `json:"confidence"`
	CreatedAt  time.Time              `json:"created_at"`
}

// NewTicketSummary builds a TicketSummary and checks its field constraints.
func NewTicketSummary(ticketID uuid.UUID, summary string, confidence FaithfulnessConfidence, createdAt time.Time) (TicketSummary, error) {
	s := TicketSummary{TicketID: ticketID, Summary: summary, Confidence: confidence, CreatedAt: createdAt}
	return s, violationsError(KindSummary, s.Validate())
}

func (s TicketSummary) Kind() RecordKind     { return KindSummary }
func (s TicketSummary) TicketRef() uuid.UUID { return s.TicketID }
func (s TicketSummary) Created() time.Time   { return s.CreatedAt }

// Validate implements Record.
func (s TicketSummary) Validate() []SchemaViolation {
	var vs []SchemaViolation
	if s.TicketID == uuid.Nil {
		vs = append(vs, SchemaViolation{Field: "ticket_id", Rule: "must be a non-nil UUID"})
	}
	if strings.TrimSpace(s.Summary) == "" {
		vs = append(vs, SchemaViolation{Field: "summary", Rule: "must be non-empty"})
	}
	if v, ok := checkProbability("confidence", float64(s.Confidence)); !ok {
		vs = append(vs, v)
	}
	if s.CreatedAt.IsZero() {
		vs = append(vs, SchemaViolation{Field: "created_at", Rule: "must be set"})
	}
	return vs
}
