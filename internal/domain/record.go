package domain

import (
	"time"

	"github.com/google/uuid"
)

// RecordKind names one of the four record schemas held by the ledger.
type RecordKind string

const (
	KindTicket   RecordKind = "ticket"
	KindSummary  RecordKind = "ticket_summary"
	KindProposal RecordKind = "decision_proposal"
	KindFeedback RecordKind = "human_feedback"
)

// ParseRecordKind accepts the canonical kind names plus the short route aliases.
func ParseRecordKind(s string) (RecordKind, bool) {
	switch s {
	case string(KindTicket), "tickets":
		return KindTicket, true
	case string(KindSummary), "summary", "summaries":
		return KindSummary, true
	case string(KindProposal), "proposal", "proposals":
		return KindProposal, true
	case string(KindFeedback), "feedback":
		return KindFeedback, true
	}
	return "", false
}

// Record is implemented by the four immutable record values.
type Record interface {
	Kind() RecordKind
	// TicketRef is the id of the Ticket the record belongs to. For a
	// Ticket it is its own id.
	TicketRef() uuid.UUID
	Created() time.Time
	// Validate reports every field-level violation of the record.
	Validate() []SchemaViolation
}

// Clone returns a copy of rec sharing no mutable memory with it.
func Clone(rec Record) Record {
	if p, ok := rec.(DecisionProposal); ok {
		p.ReasonCodes = append([]string{}, p.ReasonCodes...)
		return p
	}
	return rec
}
