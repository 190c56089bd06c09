package dto

import (
	"time"

	"github.com/spec-kit/triage-ledger/internal/domain"
)

// ProposalResponse is a proposal with its ledger handle.
type ProposalResponse struct {
	Seq         uint64                  `json:"seq"`
	Proposal    domain.DecisionProposal `json:"proposal"`
	Disposition domain.FeedbackAction   `json:"disposition,omitempty"`
}

// SummaryResponse is a summary with its ledger handle.
type SummaryResponse struct {
	Seq     uint64               `json:"seq"`
	Summary domain.TicketSummary `json:"summary"`
}

// ReviewItemResponse is one row of a review queue.
type ReviewItemResponse struct {
	TicketID        string               `json:"ticket_id"`
	State           domain.WorkflowState `json:"state"`
	RawText         string               `json:"raw_text"`
	Latest          ProposalResponse     `json:"latest_proposal"`
	RejectionReason string               `json:"rejection_reason,omitempty"`
}

// RejectionRateResponse summarizes feedback inside a window.
type RejectionRateResponse struct {
	From     time.Time `json:"from"`
	To       time.Time `json:"to"`
	Total    int       `json:"total"`
	Rejected int       `json:"rejected"`
	Rate     float64   `json:"rate"`
}
