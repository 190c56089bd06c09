// Package audit renders a ticket's audit trail for compliance review.
package audit

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/zstd"
	"gopkg.in/yaml.v3"

	"github.com/spec-kit/triage-ledger/internal/domain"
	"github.com/spec-kit/triage-ledger/internal/lifecycle"
)

// Format is an export encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatCBOR Format = "cbor"
)

// Compression is an optional export compression.
type Compression string

const (
	CompressionNone Compression = ""
	CompressionZstd Compression = "zstd"
)

// ParseFormat resolves a format name; empty means JSON.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case "", FormatJSON:
		return FormatJSON, nil
	case FormatYAML, "yml":
		return FormatYAML, nil
	case FormatCBOR:
		return FormatCBOR, nil
	}
	return "", fmt.Errorf("unsupported export format %q", s)
}

// ParseCompression resolves a compression name; empty and "none" mean none.
func ParseCompression(s string) (Compression, error) {
	switch s {
	case "", "none":
		return CompressionNone, nil
	case string(CompressionZstd):
		return CompressionZstd, nil
	}
	return "", fmt.Errorf("unsupported export compression %q", s)
}

// Trail is the exported audit trail of one ticket.
type Trail struct {
	TicketID   string    `json:"ticket_id" yaml:"ticket_id"`
	State      string    `json:"state,omitempty" yaml:"state,omitempty"`
	ExportedAt time.Time `json:"exported_at" yaml:"exported_at"`
	Records    []Record  `json:"records" yaml:"records"`
}

// Record is one flattened ledger entry. Each confidence keeps its own
// field because the values are not comparable across kinds.
type Record struct {
	Seq         uint64    `json:"seq" yaml:"seq"`
	Kind        string    `json:"kind" yaml:"kind"`
	CreatedAt   time.Time `json:"created_at" yaml:"created_at"`
	AppendedAt  time.Time `json:"appended_at" yaml:"appended_at"`
	Fingerprint string    `json:"fingerprint" yaml:"fingerprint"`

	RawText string `json:"raw_text,omitempty" yaml:"raw_text,omitempty"`

	Summary                string   `json:"summary,omitempty" yaml:"summary,omitempty"`
	FaithfulnessConfidence *float64 `json:"faithfulness_confidence,omitempty" yaml:"faithfulness_confidence,omitempty"`

	Decision            string   `json:"decision,omitempty" yaml:"decision,omitempty"`
	AgreementConfidence *float64 `json:"agreement_confidence,omitempty" yaml:"agreement_confidence,omitempty"`
	ReasonCodes         []string `json:"reason_codes,omitempty" yaml:"reason_codes,omitempty"`
	ResponseDraft       string   `json:"response_draft,omitempty" yaml:"response_draft,omitempty"`

	Action           string   `json:"action,omitempty" yaml:"action,omitempty"`
	ConfidenceAtTime *float64 `json:"confidence_at_time,omitempty" yaml:"confidence_at_time,omitempty"`
	RejectionReason  string   `json:"rejection_reason,omitempty" yaml:"rejection_reason,omitempty"`
	EditedDiff       string   `json:"edited_diff,omitempty" yaml:"edited_diff,omitempty"`
	ProposalSeq      uint64   `json:"proposal_seq,omitempty" yaml:"proposal_seq,omitempty"`
}

// NewTrail flattens entries, which must already be in history order.
func NewTrail(ticketID string, state domain.WorkflowState, entries []lifecycle.Entry, exportedAt time.Time) Trail {
	trail := Trail{
		TicketID:   ticketID,
		State:      string(state),
		ExportedAt: exportedAt.UTC(),
		Records:    make([]Record, 0, len(entries)),
	}
	for _, e := range entries {
		trail.Records = append(trail.Records, flatten(e))
	}
	return trail
}

func flatten(e lifecycle.Entry) Record {
	r := Record{
		Seq:         e.Seq,
		Kind:        string(e.Kind()),
		CreatedAt:   e.CreatedAt(),
		AppendedAt:  e.AppendedAt,
		Fingerprint: e.Fingerprint,
		ProposalSeq: e.ProposalSeq,
	}
	switch rec := e.Record.(type) {
	case domain.Ticket:
		r.RawText = rec.RawText
	case domain.TicketSummary:
		c := float64(rec.Confidence)
		r.Summary = rec.Summary
		r.FaithfulnessConfidence = &c
	case domain.DecisionProposal:
		c := float64(rec.Confidence)
		r.Decision = string(rec.Decision)
		r.AgreementConfidence = &c
		r.ReasonCodes = rec.ReasonCodes
		r.ResponseDraft = rec.ResponseDraft
	case domain.HumanFeedback:
		c := float64(rec.ConfidenceAtTime)
		r.Action = string(rec.Action())
		r.ConfidenceAtTime = &c
		r.RejectionReason, _ = rec.RejectionReason()
		r.EditedDiff, _ = rec.EditedDiff()
	}
	return r
}

var cborMode = func() cbor.EncMode {
	mode, err := cbor.EncOptions{Time: cbor.TimeRFC3339Nano}.EncMode()
	if err != nil {
		panic(err)
	}
	return mode
}()

// Encode renders the trail and returns the bytes with their content type.
func Encode(trail Trail, format Format, compression Compression) ([]byte, string, error) {
	var (
		out         []byte
		contentType string
		err         error
	)
	switch format {
	case FormatJSON, "":
		out, err = json.MarshalIndent(trail, "", "  ")
		contentType = "application/json"
	case FormatYAML:
		out, err = yaml.Marshal(trail)
		contentType = "application/yaml"
	case FormatCBOR:
		out, err = cborMode.Marshal(trail)
		contentType = "application/cbor"
	default:
		return nil, "", fmt.Errorf("unsupported export format %q", format)
	}
	if err != nil {
		return nil, "", fmt.Errorf("encode %s: %w", format, err)
	}

	switch compression {
	case CompressionNone:
		return out, contentType, nil
	case CompressionZstd:
		enc, err := zstd.NewWriter(nil)
		if err != nil {
			return nil, "", err
		}
		defer enc.Close()
		return enc.EncodeAll(out, nil), "application/zstd", nil
	}
	return nil, "", fmt.Errorf("unsupported export compression %q", compression)
}
