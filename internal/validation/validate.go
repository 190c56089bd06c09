// Package validation turns raw candidate payloads from the ingestion,
// summarization, decision and review collaborators into typed records.
// Validation is exhaustive: every violation in a candidate is reported.
package validation

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/triage-ledger/internal/domain"
)

// Validate checks a JSON candidate against the schema of kind and returns
// the typed record, or a *domain.ValidationError listing every violation.
// It knows nothing about other records.
func Validate(payload []byte, kind domain.RecordKind) (domain.Record, error) {
	r, err := newReader(payload, kind)
	if err != nil {
		return nil, err
	}

	var rec domain.Record
	switch kind {
	case domain.KindTicket:
		rec = r.ticket()
	case domain.KindSummary:
		rec = r.summary()
	case domain.KindProposal:
		rec = r.proposal()
	case domain.KindFeedback:
		rec = r.feedback()
	default:
		return nil, &domain.ValidationError{
			Kind:       kind,
			Violations: []domain.SchemaViolation{{Field: "kind", Rule: fmt.Sprintf("unknown record kind %q", kind)}},
		}
	}

	r.rejectUnknown()
	r.merge(rec.Validate())
	if len(r.violations) > 0 {
		return nil, &domain.ValidationError{Kind: kind, Violations: r.violations}
	}
	return rec, nil
}

var knownFields = map[domain.RecordKind][]string{
	domain.KindTicket:   {"id", "raw_text", "created_at"},
	domain.KindSummary:  {"ticket_id", "summary", "confidence", "created_at"},
	domain.KindProposal: {"ticket_id", "decision", "confidence", "reason_codes", "response_draft", "created_at"},
	domain.KindFeedback: {"ticket_id", "action", "confidence_at_time", "rejection_reason", "edited_diff", "proposal_seq", "created_at"},
}

type reader struct {
	kind       domain.RecordKind
	fields     map[string]json.RawMessage
	violations []domain.SchemaViolation
	reported   map[string]bool
}

func newReader(payload []byte, kind domain.RecordKind) (*reader, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil || fields == nil {
		return nil, &domain.ValidationError{
			Kind:       kind,
			Violations: []domain.SchemaViolation{{Field: "$", Rule: "payload must be a JSON object"}},
		}
	}
	return &reader{kind: kind, fields: fields, reported: map[string]bool{}}, nil
}

func (r *reader) fail(field, rule string) {
	r.reported[field] = true
	r.violations = append(r.violations, domain.SchemaViolation{Field: field, Rule: rule})
}

// merge adds record-level violations for fields that did not already fail
// decoding.
func (r *reader) merge(vs []domain.SchemaViolation) {
	for _, v := range vs {
		if r.reported[v.Field] {
			continue
		}
		r.fail(v.Field, v.Rule)
	}
}

func (r *reader) rejectUnknown() {
	allowed := map[string]bool{}
	for _, f := range knownFields[r.kind] {
		allowed[f] = true
	}
	var unknown []string
	for name := range r.fields {
		if !allowed[name] {
			unknown = append(unknown, name)
		}
	}
	sort.Strings(unknown)
	for _, name := range unknown {
		r.fail(name, "unknown field")
	}
}

// raw returns the field value, treating JSON null as absent.
func (r *reader) raw(name string) (json.RawMessage, bool) {
	v, ok := r.fields[name]
	if !ok || bytes.Equal(bytes.TrimSpace(v), []byte("null")) {
		return nil, false
	}
	return v, true
}

func (r *reader) requiredString(name string) string {
	v, ok := r.raw(name)
	if !ok {
		r.fail(name, "required")
		return ""
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		r.fail(name, "must be a string")
		return ""
	}
	return s
}

func (r *reader) optionalString(name string) *string {
	v, ok := r.raw(name)
	if !ok {
		return nil
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		r.fail(name, "must be a string")
		return nil
	}
	return &s
}

func (r *reader) uuid(name string) uuid.UUID {
	s := r.requiredString(name)
	if r.reported[name] {
		return uuid.Nil
	}
	id, err := uuid.Parse(s)
	if err != nil {
		r.fail(name, fmt.Sprintf("%q is not a UUID", s))
		return uuid.Nil
	}
	return id
}

func (r *reader) number(name string) float64 {
	v, ok := r.raw(name)
	if !ok {
		r.fail(name, "required")
		return 0
	}
	var f float64
	if err := json.Unmarshal(v, &f); err != nil {
		r.fail(name, "must be a number")
		return 0
	}
	return f
}

func (r *reader) timestamp(name string) time.Time {
	s := r.requiredString(name)
	if r.reported[name] {
		return time.Time{}
	}
	ts, err := time.Parse(time.RFC3339, s)
	if err != nil {
		r.fail(name, fmt.Sprintf("%q is not an RFC 3339 timestamp", s))
		return time.Time{}
	}
	return ts
}

func (r *reader) stringList(name string) []string {
	v, ok := r.raw(name)
	if !ok {
		r.fail(name, "required")
		return nil
	}
	list := []string{}
	if err := json.Unmarshal(v, &list); err != nil {
		r.fail(name, "must be an array of strings")
		return nil
	}
	return list
}

func (r *reader) optionalSeq(name string) uint64 {
	v, ok := r.raw(name)
	if !ok {
		return 0
	}
	var seq uint64
	if err := json.Unmarshal(v, &seq); err != nil || seq == 0 {
		r.fail(name, "must be a positive integer")
		return 0
	}
	return seq
}

func (r *reader) ticket() domain.Ticket {
	return domain.Ticket{
		ID:        r.uuid("id"),
		RawText:   r.requiredString("raw_text"),
		CreatedAt: r.timestamp("created_at"),
	}
}

func (r *reader) summary() domain.TicketSummary {
	return domain.TicketSummary{
		TicketID:   r.uuid("ticket_id"),
		Summary:    r.requiredString("summary"),
		Confidence: domain.FaithfulnessConfidence(r.number("confidence")),
		CreatedAt:  r.timestamp("created_at"),
	}
}

func (r *reader) proposal() domain.DecisionProposal {
	return domain.DecisionProposal{
		TicketID:      r.uuid("ticket_id"),
		Decision:      domain.Decision(r.requiredString("decision")),
		Confidence:    domain.AgreementConfidence(r.number("confidence")),
		ReasonCodes:   r.stringList("reason_codes"),
		ResponseDraft: r.requiredString("response_draft"),
		CreatedAt:     r.timestamp("created_at"),
	}
}

func (r *reader) feedback() domain.HumanFeedback {
	f := domain.HumanFeedback{
		TicketID: r.uuid("ticket_id"),
	}
	action := domain.FeedbackAction(r.requiredString("action"))
	reason := r.optionalString("rejection_reason")
	diff := r.optionalString("edited_diff")
	if !r.reported["action"] {
		d, vs := domain.NewDisposition(action, reason, diff)
		for _, v := range vs {
			r.fail(v.Field, v.Rule)
		}
		f.Disposition = d
	}
	f.ConfidenceAtTime = domain.AgreementConfidence(r.number("confidence_at_time"))
	f.ProposalSeq = r.optionalSeq("proposal_seq")
	f.CreatedAt = r.timestamp("created_at")
	return f
}
