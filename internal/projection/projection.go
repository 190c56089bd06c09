// Package projection derives read-only views from the ledger. Every
// cross-ticket view is computed from a single coordinator snapshot.
package projection

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/triage-ledger/internal/audit"
	"github.com/spec-kit/triage-ledger/internal/domain"
	"github.com/spec-kit/triage-ledger/internal/lifecycle"
)

var (
	ErrNoProposal = errors.New("ticket has no decision proposal")
	ErrNoSummary  = errors.New("ticket has no summary")
	ErrNoFeedback = errors.New("no feedback in window")
	ErrBadWindow  = errors.New("window must be positive")
)

// Source is the part of the coordinator projections read from.
type Source interface {
	View(ticketID uuid.UUID) (lifecycle.TicketView, error)
	Snapshot() lifecycle.Snapshot
}

// Projector computes projections over a Source.
type Projector struct {
	source Source
	now    func() time.Time
}

// NewProjector constructs a projector. A nil clock uses time.Now.
func NewProjector(source Source, clock func() time.Time) *Projector {
	if clock == nil {
		clock = time.Now
	}
	return &Projector{source: source, now: clock}
}

// ProposalView is a proposal together with its ledger handle.
type ProposalView struct {
	Seq      uint64
	Proposal domain.DecisionProposal
	// Disposition is the latest feedback action on the proposal, empty if
	// none.
	Disposition domain.FeedbackAction
}

// LatestProposal returns the most recent proposal of a ticket.
func (p *Projector) LatestProposal(ticketID uuid.UUID) (ProposalView, error) {
	v, err := p.source.View(ticketID)
	if err != nil {
		return ProposalView{}, err
	}
	return latestProposal(v)
}

func latestProposal(v lifecycle.TicketView) (ProposalView, error) {
	e, proposal, ok := v.LatestProposal()
	if !ok {
		return ProposalView{}, ErrNoProposal
	}
	pv := ProposalView{Seq: e.Seq, Proposal: proposal}
	if _, fb, ok := v.LatestFeedback(e.Seq); ok {
		pv.Disposition = fb.Action()
	}
	return pv, nil
}

// LatestSummary returns the most recent summary of a ticket, for display.
func (p *Projector) LatestSummary(ticketID uuid.UUID) (uint64, domain.TicketSummary, error) {
	v, err := p.source.View(ticketID)
	if err != nil {
		return 0, domain.TicketSummary{}, err
	}
	e, s, ok := v.LatestSummary()
	if !ok {
		return 0, domain.TicketSummary{}, ErrNoSummary
	}
	return e.Seq, s, nil
}

// ReviewItem is a ticket waiting on a human or on a re-proposal.
type ReviewItem struct {
	TicketID uuid.UUID
	Ticket   domain.Ticket
	State    domain.WorkflowState
	Latest   ProposalView
	// RejectionReason is set for tickets whose latest proposal was rejected.
	RejectionReason string
}

// PendingReview lists every ticket in PROPOSED, including those whose latest
// proposal was rejected and is waiting on a new one.
func (p *Projector) PendingReview() []ReviewItem {
	var items []ReviewItem
	for _, v := range p.source.Snapshot().Tickets {
		if v.State != domain.WorkflowProposed {
			continue
		}
		latest, err := latestProposal(v)
		if err != nil {
			continue
		}
		item := ReviewItem{TicketID: v.TicketID, Ticket: v.Ticket(), State: v.State, Latest: latest}
		if latest.Disposition == domain.ActionRejected {
			_, fb, _ := v.LatestFeedback(latest.Seq)
			item.RejectionReason, _ = fb.RejectionReason()
		}
		items = append(items, item)
	}
	return items
}

// AwaitingReproposal lists tickets whose latest proposal was rejected and
// that need a fresh proposal.
func (p *Projector) AwaitingReproposal() []ReviewItem {
	var items []ReviewItem
	for _, v := range p.source.Snapshot().Tickets {
		latest, err := latestProposal(v)
		if err != nil || latest.Disposition != domain.ActionRejected {
			continue
		}
		_, fb, _ := v.LatestFeedback(latest.Seq)
		reason, _ := fb.RejectionReason()
		items = append(items, ReviewItem{
			TicketID:        v.TicketID,
			Ticket:          v.Ticket(),
			State:           v.State,
			Latest:          latest,
			RejectionReason: reason,
		})
	}
	return items
}

// RejectionStats summarizes feedback created inside a window.
type RejectionStats struct {
	From     time.Time
	To       time.Time
	Total    int
	Rejected int
	Rate     float64
}

// RejectionRate is the share of feedback records created in the last
// window that rejected their proposal. It fails with ErrNoFeedback rather
// than report a rate over nothing.
func (p *Projector) RejectionRate(window time.Duration) (RejectionStats, error) {
	if window <= 0 {
		return RejectionStats{}, ErrBadWindow
	}
	to := p.now()
	stats := RejectionStats{From: to.Add(-window), To: to}
	for _, v := range p.source.Snapshot().Tickets {
		for _, e := range v.Entries {
			fb, ok := e.Record.(domain.HumanFeedback)
			if !ok || fb.CreatedAt.Before(stats.From) || fb.CreatedAt.After(to) {
				continue
			}
			stats.Total++
			if fb.Action() == domain.ActionRejected {
				stats.Rejected++
			}
		}
	}
	if stats.Total == 0 {
		return stats, ErrNoFeedback
	}
	stats.Rate = float64(stats.Rejected) / float64(stats.Total)
	return stats, nil
}

// StateCounts counts tickets per workflow state. Every state is present.
func (p *Projector) StateCounts() map[domain.WorkflowState]int {
	counts := make(map[domain.WorkflowState]int, len(domain.WorkflowStates))
	for _, s := range domain.WorkflowStates {
		counts[s] = 0
	}
	for _, v := range p.source.Snapshot().Tickets {
		counts[v.State]++
	}
	return counts
}

// Export returns the audit trail of one ticket for compliance review.
func (p *Projector) Export(ticketID uuid.UUID) (audit.Trail, error) {
	v, err := p.source.View(ticketID)
	if err != nil {
		return audit.Trail{}, err
	}
	return audit.NewTrail(ticketID.String(), v.State, v.Entries, p.now()), nil
}
