package domain

import (
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
)

var testTime = time.Date(2025, 3, 1, 9, 30, 0, 0, time.UTC)

func strPtr(s string) *string { return &s }

func TestConfidenceRange(t *testing.T) {
	id := uuid.New()
	tests := []struct {
		name  string
		value float64
		ok    bool
	}{
		{"zero", 0, true},
		{"one", 1, true},
		{"middle", 0.42, true},
		{"negative", -0.01, false},
		{"above one", 1.4, false},
		{"nan", math.NaN(), false},
		{"inf", math.Inf(1), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, errSummary := NewTicketSummary(id, "short", FaithfulnessConfidence(tt.value), testTime)
			_, errProposal := NewDecisionProposal(id, DecisionApprove, AgreementConfidence(tt.value), nil, "ok", testTime)
			_, errFeedback := NewHumanFeedback(id, Approved{}, AgreementConfidence(tt.value), testTime)
			for kind, err := range map[string]error{"summary": errSummary, "proposal": errProposal, "feedback": errFeedback} {
				if (err == nil) != tt.ok {
					t.Errorf("%s: err = %v, want ok=%v", kind, err, tt.ok)
				}
			}
		})
	}
}

func TestConfidenceViolationMessage(t *testing.T) {
	_, err := NewDecisionProposal(uuid.New(), DecisionApprove, 1.4, nil, "ok", testTime)
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if len(verr.Violations) != 1 {
		t.Fatalf("violations = %v, want 1", verr.Violations)
	}
	if got := verr.Violations[0].Error(); got != "confidence: value 1.4 outside [0,1]" {
		t.Errorf("message = %q", got)
	}
}

func TestNewDisposition(t *testing.T) {
	tests := []struct {
		name       string
		action     FeedbackAction
		reason     *string
		diff       *string
		wantAction FeedbackAction
		wantFields []string
	}{
		{name: "approved", action: ActionApproved, wantAction: ActionApproved},
		{name: "edited with diff", action: ActionEdited, diff: strPtr("-a +b"), wantAction: ActionEdited},
		{name: "edited without diff", action: ActionEdited, wantAction: ActionEdited},
		{name: "rejected with reason", action: ActionRejected, reason: strPtr("wrong policy"), wantAction: ActionRejected},
		{name: "rejected without reason", action: ActionRejected, wantFields: []string{"rejection_reason"}},
		{name: "rejected blank reason", action: ActionRejected, reason: strPtr("  "), wantAction: ActionRejected, wantFields: []string{"rejection_reason"}},
		{name: "approved with reason", action: ActionApproved, reason: strPtr("nope"), wantAction: ActionApproved, wantFields: []string{"rejection_reason"}},
		{name: "approved with diff", action: ActionApproved, diff: strPtr("x"), wantAction: ActionApproved, wantFields: []string{"edited_diff"}},
		{name: "unknown action", action: "escalated", wantFields: []string{"action"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, vs := NewDisposition(tt.action, tt.reason, tt.diff)
			var got FeedbackAction
			if d != nil {
				got = d.Action()
			}
			if got != tt.wantAction {
				t.Errorf("action = %q, want %q", got, tt.wantAction)
			}
			if len(vs) != len(tt.wantFields) {
				t.Fatalf("violations = %v, want fields %v", vs, tt.wantFields)
			}
			for i, f := range tt.wantFields {
				if vs[i].Field != f {
					t.Errorf("violation[%d].Field = %q, want %q", i, vs[i].Field, f)
				}
			}
		})
	}
}

func TestDecisionProposalResponseDraft(t *testing.T) {
	id := uuid.New()
	if _, err := NewDecisionProposal(id, DecisionCantDecide, 0.2, nil, "", testTime); err != nil {
		t.Errorf("cant_decide with empty draft: %v", err)
	}
	_, err := NewDecisionProposal(id, DecisionDeny, 0.2, []string{"R1"}, "", testTime)
	if err == nil || !strings.Contains(err.Error(), "response_draft") {
		t.Errorf("deny with empty draft: err = %v", err)
	}
}

func TestValidationIsExhaustive(t *testing.T) {
	p := DecisionProposal{Decision: "maybe", Confidence: 2, ReasonCodes: []string{"ok", ""}}
	vs := p.Validate()
	want := []string{"ticket_id", "decision", "confidence", "reason_codes[1]", "response_draft", "created_at"}
	if len(vs) != len(want) {
		t.Fatalf("violations = %v, want %v", vs, want)
	}
	for i, f := range want {
		if vs[i].Field != f {
			t.Errorf("violation[%d] = %q, want %q", i, vs[i].Field, f)
		}
	}
}

func TestCloneDetachesReasonCodes(t *testing.T) {
	p, err := NewDecisionProposal(uuid.New(), DecisionDeny, 0.5, []string{"A"}, "no", testTime)
	if err != nil {
		t.Fatal(err)
	}
	c := Clone(p).(DecisionProposal)
	c.ReasonCodes[0] = "B"
	if p.ReasonCodes[0] != "A" {
		t.Error("clone shares reason codes with original")
	}
}

func TestFingerprintDistinguishesContent(t *testing.T) {
	id := uuid.New()
	a, _ := NewTicketSummary(id, "one", 0.9, testTime)
	b, _ := NewTicketSummary(id, "one", 0.9, testTime)
	c, _ := NewTicketSummary(id, "two", 0.9, testTime)

	fa, err := Fingerprint(a)
	if err != nil {
		t.Fatal(err)
	}
	fb, _ := Fingerprint(b)
	fc, _ := Fingerprint(c)
	if fa != fb {
		t.Error("identical records have different fingerprints")
	}
	if fa == fc {
		t.Error("different records share a fingerprint")
	}
}

func TestHumanFeedbackMarshalFlattensDisposition(t *testing.T) {
	f, err := NewHumanFeedback(uuid.New(), Rejected{Reason: "wrong policy"}, 0.4, testTime)
	if err != nil {
		t.Fatal(err)
	}
	raw, err := f.MarshalJSON()
	if err != nil {
		t.Fatal(err)
	}
	s := string(raw)
	for _, want := range []string{`"action":"rejected"`, `"rejection_reason":"wrong policy"`, `"confidence_at_time":0.4`} {
		if !strings.Contains(s, want) {
			t.Errorf("%s missing %s", s, want)
		}
	}
	if strings.Contains(s, "edited_diff") || strings.Contains(s, "proposal_seq") {
		t.Errorf("unexpected optional fields in %s", s)
	}
}
