package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// FeedbackAction is the reviewer's disposition of a proposal.
type FeedbackAction string

const (
	ActionApproved FeedbackAction = "approved"
	ActionEdited   FeedbackAction = "edited"
	ActionRejected FeedbackAction = "rejected"
)

// Valid reports whether a is a known action.
func (a FeedbackAction) Valid() bool {
	switch a {
	case ActionApproved, ActionEdited, ActionRejected:
		return true
	}
	return false
}

// Resolves reports whether the action closes a proposal round.
func (a FeedbackAction) Resolves() bool {
	return a == ActionApproved || a == ActionEdited
}

// Disposition is the variant part of a HumanFeedback. Each variant carries
// only the fields that are valid for its action.
type Disposition interface {
	Action() FeedbackAction
	validate() []SchemaViolation
}

// Approved accepts the proposal unchanged.
type Approved struct{}

// Edited accepts the proposal with changes. Diff is optional.
type Edited struct {
	Diff string
}

// Rejected refuses the proposal. Reason is mandatory.
type Rejected struct {
	Reason string
}

func (Approved) Action() FeedbackAction { return ActionApproved }
func (Edited) Action() FeedbackAction   { return ActionEdited }
func (Rejected) Action() FeedbackAction { return ActionRejected }

func (Approved) validate() []SchemaViolation { return nil }
func (Edited) validate() []SchemaViolation   { return nil }

func (r Rejected) validate() []SchemaViolation {
	if strings.TrimSpace(r.Reason) == "" {
		return []SchemaViolation{{Field: "rejection_reason", Rule: "required when action == rejected"}}
	}
	return nil
}

// NewDisposition maps the flat wire fields onto a variant. Presence of
// rejectionReason is strictly coupled to action; editedDiff is only
// accepted for edited.
func NewDisposition(action FeedbackAction, rejectionReason, editedDiff *string) (Disposition, []SchemaViolation) {
	var vs []SchemaViolation
	if rejectionReason != nil && action != ActionRejected {
		vs = append(vs, SchemaViolation{Field: "rejection_reason", Rule: "present but action != rejected"})
	}
	if editedDiff != nil && action != ActionEdited {
		vs = append(vs, SchemaViolation{Field: "edited_diff", Rule: "present but action != edited"})
	}

	var d Disposition
	switch action {
	case ActionApproved:
		d = Approved{}
	case ActionEdited:
		e := Edited{}
		if editedDiff != nil {
			e.Diff = *editedDiff
		}
		d = e
	case ActionRejected:
		if rejectionReason == nil {
			vs = append(vs, SchemaViolation{Field: "rejection_reason", Rule: "required when action == rejected"})
			break
		}
		d = Rejected{Reason: *rejectionReason}
		vs = append(vs, d.validate()...)
	default:
		vs = append(vs, SchemaViolation{
			Field: "action",
			Rule:  fmt.Sprintf("%q not one of approved, edited, rejected", action),
		})
	}
	return d, vs
}

// HumanFeedback is a reviewer's disposition of one proposal.
type HumanFeedback struct {
	TicketID    uuid.UUID
	Disposition Disposition
	// ConfidenceAtTime snapshots the disposed proposal's confidence.
	ConfidenceAtTime AgreementConfidence
	// ProposalSeq explicitly targets a proposal by its ledger sequence
	// number. Zero targets the most recent proposal.
	ProposalSeq uint64
	CreatedAt   time.Time
}

// NewHumanFeedback builds a HumanFeedback and checks its field constraints.
func NewHumanFeedback(ticketID uuid.UUID, disposition Disposition, confidenceAtTime AgreementConfidence, createdAt time.Time) (HumanFeedback, error) {
	f := HumanFeedback{
		TicketID:         ticketID,
		Disposition:      disposition,
		ConfidenceAtTime: confidenceAtTime,
		CreatedAt:        createdAt,
	}
	return f, violationsError(KindFeedback, f.Validate())
}

func (f HumanFeedback) Kind() RecordKind     { return KindFeedback }
func (f HumanFeedback) TicketRef() uuid.UUID { return f.TicketID }
func (f HumanFeedback) Created() time.Time   { return f.CreatedAt }

// Action returns the disposition's action, or "" when none is set.
func (f HumanFeedback) Action() FeedbackAction {
	if f.Disposition == nil {
		return ""
	}
	return f.Disposition.Action()
}

// RejectionReason returns the reason of a Rejected disposition.
func (f HumanFeedback) RejectionReason() (string, bool) {
	r, ok := f.Disposition.(Rejected)
	return r.Reason, ok
}

// EditedDiff returns the diff of an Edited disposition.
func (f HumanFeedback) EditedDiff() (string, bool) {
	e, ok := f.Disposition.(Edited)
	return e.Diff, ok
}

// Validate implements Record.
func (f HumanFeedback) Validate() []SchemaViolation {
	var vs []SchemaViolation
	if f.TicketID == uuid.Nil {
		vs = append(vs, SchemaViolation{Field: "ticket_id", Rule: "must be a non-nil UUID"})
	}
	if f.Disposition == nil {
		vs = append(vs, SchemaViolation{Field: "action", Rule: "required"})
	} else {
		vs = append(vs, f.Disposition.validate()...)
	}
	if v, ok := checkProbability("confidence_at_time", float64(f.ConfidenceAtTime)); !ok {
		vs = append(vs, v)
	}
	if f.CreatedAt.IsZero() {
		vs = append(vs, SchemaViolation{Field: "created_at", Rule: "must be set"})
	}
	return vs
}

type feedbackWire struct {
	TicketID         uuid.UUID           `json:"ticket_id"`
	Action           FeedbackAction      `json:"action"`
	ConfidenceAtTime AgreementConfidence `json:"confidence_at_time"`
	RejectionReason  *string             `json:"rejection_reason,omitempty"`
	EditedDiff       *string             `json:"edited_diff,omitempty"`
	ProposalSeq      uint64              `json:"proposal_seq,omitempty"`
	CreatedAt        time.Time           `json:"created_at"`
}

// MarshalJSON flattens the disposition into the wire fields.
func (f HumanFeedback) MarshalJSON() ([]byte, error) {
	w := feedbackWire{
		TicketID:         f.TicketID,
		Action:           f.Action(),
		ConfidenceAtTime: f.ConfidenceAtTime,
		ProposalSeq:      f.ProposalSeq,
		CreatedAt:        f.CreatedAt,
	}
	switch d := f.Disposition.(type) {
	case Rejected:
		w.RejectionReason = &d.Reason
	case Edited:
		if d.Diff != "" {
			w.EditedDiff = &d.Diff
		}
	}
	return json.Marshal(w)
}
