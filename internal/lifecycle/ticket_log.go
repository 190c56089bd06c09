package lifecycle

import (
	"fmt"
	"slices"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/spec-kit/triage-ledger/internal/domain"
)

// ticketLog is the arena slot for one ticket: its entries in history order
// plus the indexes needed to check invariants. Records never point back at
// each other; relations are expressed by sequence numbers.
type ticketLog struct {
	mu sync.RWMutex

	id        uuid.UUID
	committed bool
	ticket    domain.Ticket

	entries      []Entry
	bySeq        map[uint64]Entry
	fingerprints map[string]uint64
	// feedback maps a proposal seq to the seqs of its feedback.
	feedback       map[uint64][]uint64
	latestProposal uint64
	state          domain.WorkflowState
}

func newTicketLog(id uuid.UUID) *ticketLog {
	return &ticketLog{
		id:           id,
		bySeq:        make(map[uint64]Entry),
		fingerprints: make(map[string]uint64),
		feedback:     make(map[uint64][]uint64),
	}
}

// admit checks rec against the ticket's invariants and returns the entry
// to commit, without Seq and AppendedAt. Caller holds l.mu.
func (l *ticketLog) admit(rec domain.Record, fingerprint string) (Entry, *AppendError) {
	entry := Entry{Record: rec, Fingerprint: fingerprint}
	reject := func(inv Invariant, err error, detail string) (Entry, *AppendError) {
		return Entry{}, &AppendError{TicketID: l.id, Kind: rec.Kind(), Invariant: inv, Err: err, Detail: detail}
	}

	if seq, ok := l.fingerprints[fingerprint]; ok {
		return reject(InvariantDuplicate, ErrDuplicateRecord, fmt.Sprintf("identical to seq %d", seq))
	}
	if rec.Created().Before(l.ticket.CreatedAt) {
		return reject(InvariantOrdering, ErrOrderingViolation, "created before its ticket")
	}

	fb, ok := rec.(domain.HumanFeedback)
	if !ok {
		return entry, nil
	}

	if l.latestProposal == 0 {
		return reject(InvariantProposalReference, ErrNoProposal, "")
	}
	target := l.latestProposal
	if fb.ProposalSeq != 0 {
		target = fb.ProposalSeq
		pe, ok := l.bySeq[target]
		if !ok || pe.Kind() != domain.KindProposal {
			return reject(InvariantProposalReference, ErrProposalNotFound, fmt.Sprintf("proposal_seq %d", target))
		}
		if target != l.latestProposal && len(l.feedback[target]) > 0 {
			return reject(InvariantSupersededProposal, ErrSupersededProposal,
				fmt.Sprintf("proposal_seq %d was reviewed and replaced by seq %d", target, l.latestProposal))
		}
	}

	proposalEntry := l.bySeq[target]
	proposal := proposalEntry.Record.(domain.DecisionProposal)
	if fb.ConfidenceAtTime != proposal.Confidence {
		return reject(InvariantConfidenceMatch, ErrConfidenceMismatch,
			fmt.Sprintf("got %v, proposal seq %d has %v", fb.ConfidenceAtTime, target, proposal.Confidence))
	}
	if fb.CreatedAt.Before(proposal.CreatedAt) {
		return reject(InvariantOrdering, ErrOrderingViolation, fmt.Sprintf("created before proposal seq %d", target))
	}

	entry.ProposalSeq = target
	return entry, nil
}

// commit appends an admitted entry and recomputes the workflow state.
// Caller holds l.mu.
func (l *ticketLog) commit(e Entry) {
	pos := sort.Search(len(l.entries), func(i int) bool { return e.before(l.entries[i]) })
	l.entries = slices.Insert(l.entries, pos, e)
	l.bySeq[e.Seq] = e
	l.fingerprints[e.Fingerprint] = e.Seq

	switch rec := e.Record.(type) {
	case domain.Ticket:
		l.ticket = rec
		l.committed = true
	case domain.DecisionProposal:
		// Seq only grows, so the last accepted proposal is the latest one
		// whatever created_at the submitter stamped on it.
		l.latestProposal = e.Seq
	case domain.HumanFeedback:
		l.feedback[e.ProposalSeq] = append(l.feedback[e.ProposalSeq], e.Seq)
	}
	l.state = l.deriveState()
}

// deriveState computes the workflow phase from the latest proposal and the
// last feedback appended against it.
func (l *ticketLog) deriveState() domain.WorkflowState {
	if l.latestProposal == 0 {
		return domain.WorkflowIntake
	}
	reviews := l.feedback[l.latestProposal]
	if len(reviews) == 0 {
		return domain.WorkflowProposed
	}
	latest := l.bySeq[reviews[len(reviews)-1]]
	if latest.Record.(domain.HumanFeedback).Action().Resolves() {
		return domain.WorkflowResolved
	}
	return domain.WorkflowProposed
}

// view copies the log. Caller holds l.mu for reading.
func (l *ticketLog) view() TicketView {
	entries := make([]Entry, len(l.entries))
	for i, e := range l.entries {
		entries[i] = e.clone()
	}
	return TicketView{
		TicketID:          l.id,
		State:             l.state,
		Entries:           entries,
		LatestProposalSeq: l.latestProposal,
	}
}
