package lifecycle

import (
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/triage-ledger/internal/domain"
)

// Entry is the ledger handle of an appended record.
type Entry struct {
	// Seq is assigned by the Coordinator at append time and never reused.
	Seq    uint64
	Record domain.Record
	// Fingerprint identifies the record content within its ticket.
	Fingerprint string
	// ProposalSeq is the proposal a HumanFeedback disposes of. Zero for
	// every other kind.
	ProposalSeq uint64
	AppendedAt  time.Time
}

func (e Entry) Kind() domain.RecordKind { return e.Record.Kind() }
func (e Entry) TicketID() uuid.UUID     { return e.Record.TicketRef() }
func (e Entry) CreatedAt() time.Time    { return e.Record.Created() }

// before reports whether e sorts ahead of o in a ticket's history:
// created_at ascending, then sequence number. It orders History only;
// which proposal is latest is decided by Seq alone.
func (e Entry) before(o Entry) bool {
	ec, oc := e.CreatedAt(), o.CreatedAt()
	if !ec.Equal(oc) {
		return ec.Before(oc)
	}
	return e.Seq < o.Seq
}

func (e Entry) clone() Entry {
	e.Record = domain.Clone(e.Record)
	return e
}

// TicketView is an immutable copy of one ticket's ledger state.
type TicketView struct {
	TicketID uuid.UUID
	State    domain.WorkflowState
	// Entries is the audit trail in history order.
	Entries []Entry
	// LatestProposalSeq is zero while the ticket is in intake.
	LatestProposalSeq uint64
}

// Ticket returns the root record of the view.
func (v TicketView) Ticket() domain.Ticket {
	for _, e := range v.Entries {
		if t, ok := e.Record.(domain.Ticket); ok {
			return t
		}
	}
	return domain.Ticket{}
}

// Entry returns the entry with the given sequence number.
func (v TicketView) Entry(seq uint64) (Entry, bool) {
	for _, e := range v.Entries {
		if e.Seq == seq {
			return e, true
		}
	}
	return Entry{}, false
}

// LatestProposal returns the most recent DecisionProposal.
func (v TicketView) LatestProposal() (Entry, domain.DecisionProposal, bool) {
	if v.LatestProposalSeq == 0 {
		return Entry{}, domain.DecisionProposal{}, false
	}
	e, ok := v.Entry(v.LatestProposalSeq)
	if !ok {
		return Entry{}, domain.DecisionProposal{}, false
	}
	return e, e.Record.(domain.DecisionProposal), true
}

// LatestFeedback returns the last appended HumanFeedback disposing of the
// given proposal.
func (v TicketView) LatestFeedback(proposalSeq uint64) (Entry, domain.HumanFeedback, bool) {
	var (
		latest Entry
		found  domain.HumanFeedback
		ok     bool
	)
	for _, e := range v.Entries {
		fb, isFeedback := e.Record.(domain.HumanFeedback)
		if !isFeedback || e.ProposalSeq != proposalSeq || (ok && e.Seq < latest.Seq) {
			continue
		}
		latest, found, ok = e, fb, true
	}
	return latest, found, ok
}

// LatestSummary returns the most recent TicketSummary. Summaries are
// display aids only.
func (v TicketView) LatestSummary() (Entry, domain.TicketSummary, bool) {
	for i := len(v.Entries) - 1; i >= 0; i-- {
		if s, ok := v.Entries[i].Record.(domain.TicketSummary); ok {
			return v.Entries[i], s, true
		}
	}
	return Entry{}, domain.TicketSummary{}, false
}
