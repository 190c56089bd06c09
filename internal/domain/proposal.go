package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Decision is the outcome proposed by the decision model.
type Decision string

const (
	DecisionApprove    Decision = "approve"
	DecisionDeny       Decision = "deny"
	DecisionCantDecide Decision = "cant_decide"
)

// Valid reports whether d is a known decision.
func (d Decision) Valid() bool {
	switch d {
	case DecisionApprove, DecisionDeny, DecisionCantDecide:
		return true
	}
	return false
}

// AgreementConfidence is the predicted probability that a human accepts a
// proposal unchanged. Feedback snapshots it for audit.
type AgreementConfidence float64

// DecisionProposal is the model's advisory recommendation. It stays pending
// until a HumanFeedback disposes of it.
type DecisionProposal struct {
	TicketID      uuid.UUID           `json:"ticket_id"`
	Decision      Decision            `json:"decision"`
	Confidence    AgreementConfidence `json:"confidence"`
	ReasonCodes   []string            `json:"reason_codes"`
	ResponseDraft string              `json:"response_draft"`
	CreatedAt     time.Time           `json:"created_at"`
}

// NewDecisionProposal builds a DecisionProposal and checks its field constraints.
func NewDecisionProposal(ticketID uuid.UUID, decision Decision, confidence AgreementConfidence, reasonCodes []string, responseDraft string, createdAt time.Time) (DecisionProposal, error) {
	p := DecisionProposal{
		TicketID:      ticketID,
		Decision:      decision,
		Confidence:    confidence,
		ReasonCodes:   append([]string{}, reasonCodes...),
		ResponseDraft: responseDraft,
		CreatedAt:     createdAt,
	}
	return p, violationsError(KindProposal, p.Validate())
}

func (p DecisionProposal) Kind() RecordKind     { return KindProposal }
func (p DecisionProposal) TicketRef() uuid.UUID { return p.TicketID }
func (p DecisionProposal) Created() time.Time   { return p.CreatedAt }

// Validate implements Record.
func (p DecisionProposal) Validate() []SchemaViolation {
	var vs []SchemaViolation
	if p.TicketID == uuid.Nil {
		vs = append(vs, SchemaViolation{Field: "ticket_id", Rule: "must be a non-nil UUID"})
	}
	if !p.Decision.Valid() {
		vs = append(vs, SchemaViolation{
			Field: "decision",
			Rule:  fmt.Sprintf("%q not one of approve, deny, cant_decide", p.Decision),
		})
	}
	if v, ok := checkProbability("confidence", float64(p.Confidence)); !ok {
		vs = append(vs, v)
	}
	for i, code := range p.ReasonCodes {
		if strings.TrimSpace(code) == "" {
			vs = append(vs, SchemaViolation{Field: fmt.Sprintf("reason_codes[%d]", i), Rule: "must be non-empty"})
		}
	}
	if strings.TrimSpace(p.ResponseDraft) == "" && p.Decision != DecisionCantDecide {
		vs = append(vs, SchemaViolation{Field: "response_draft", Rule: "may be empty only when decision == cant_decide"})
	}
	if p.CreatedAt.IsZero() {
		vs = append(vs, SchemaViolation{Field: "created_at", Rule: "must be set"})
	}
	return vs
}
