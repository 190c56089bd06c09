package lifecycle

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/spec-kit/triage-ledger/internal/domain"
)

// Invariant names the cross-entity rule an append violated.
type Invariant string

const (
	InvariantTicketReference    Invariant = "ticket_reference"
	InvariantProposalReference  Invariant = "proposal_reference"
	InvariantSupersededProposal Invariant = "superseded_proposal"
	InvariantConfidenceMatch    Invariant = "confidence_match"
	InvariantOrdering           Invariant = "ordering"
	InvariantDuplicate          Invariant = "duplicate"
	InvariantConflictingTicket  Invariant = "conflicting_ticket"
	InvariantJournal            Invariant = "journal"
)

var (
	ErrUnknownTicket      = errors.New("unknown ticket")
	ErrNoProposal         = errors.New("ticket has no decision proposal")
	ErrProposalNotFound   = errors.New("proposal not found")
	ErrSupersededProposal = errors.New("proposal superseded")
	ErrConfidenceMismatch = errors.New("confidence_at_time does not match proposal confidence")
	ErrOrderingViolation  = errors.New("record precedes the record it depends on")
	ErrDuplicateRecord    = errors.New("duplicate record")
	ErrConflictingRecord  = errors.New("conflicting record")
	ErrJournal            = errors.New("journal write failed")
)

// UnknownTicketError reports a ticket id with no Ticket record.
type UnknownTicketError struct {
	TicketID uuid.UUID
}

func (e *UnknownTicketError) Error() string {
	return fmt.Sprintf("unknown ticket %s", e.TicketID)
}

// Is makes errors.Is(err, ErrUnknownTicket) hold.
func (e *UnknownTicketError) Is(target error) bool {
	return target == ErrUnknownTicket
}

// AppendError is a rejected append. The ledger is unchanged when one is
// returned.
type AppendError struct {
	TicketID  uuid.UUID
	Kind      domain.RecordKind
	Invariant Invariant
	Detail    string
	Err       error
}

func (e *AppendError) Error() string {
	msg := fmt.Sprintf("append %s to ticket %s violates %s: %v", e.Kind, e.TicketID, e.Invariant, e.Err)
	if e.Detail != "" {
		msg += " (" + e.Detail + ")"
	}
	return msg
}

func (e *AppendError) Unwrap() error {
	return e.Err
}
