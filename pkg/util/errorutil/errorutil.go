package errorutil

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/spec-kit/triage-ledger/internal/domain"
	"github.com/spec-kit/triage-ledger/internal/lifecycle"
	"github.com/spec-kit/triage-ledger/internal/projection"
)

// Error codes returned to HTTP clients.
const (
	CodeValidationFailed   = "VALIDATION_FAILED"
	CodeUnknownTicket      = "UNKNOWN_TICKET"
	CodeAppendRejected     = "APPEND_REJECTED"
	CodeJournalUnavailable = "JOURNAL_UNAVAILABLE"
	CodeNotFound           = "NOT_FOUND"
	CodeBadRequest         = "BAD_REQUEST"
	CodeInternal           = "INTERNAL_ERROR"
)

// DomainError standardizes application errors.
type DomainError struct {
	Code       string
	Message    string
	HTTPStatus int
	Details    map[string]any
	Err        error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError constructs a DomainError.
func NewDomainError(code, message string, status int, details map[string]any) *DomainError {
	return &DomainError{Code: code, Message: message, HTTPStatus: status, Details: details}
}

func NewBadRequest(message string, details map[string]any) error {
	return NewDomainError(CodeBadRequest, message, http.StatusBadRequest, details)
}

func NewInternalError(err error) error {
	return &DomainError{
		Code:       CodeInternal,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// ToDomainError converts ledger errors to a DomainError naming the exact
// field, rule or invariant that failed.
func ToDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}

	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		return &DomainError{
			Code:       CodeValidationFailed,
			Message:    verr.Error(),
			HTTPStatus: http.StatusUnprocessableEntity,
			Details: map[string]any{
				"kind":       string(verr.Kind),
				"violations": verr.Violations,
			},
			Err: err,
		}
	}

	var aerr *lifecycle.AppendError
	if errors.As(err, &aerr) {
		details := map[string]any{
			"ticket_id": aerr.TicketID.String(),
			"kind":      string(aerr.Kind),
			"invariant": string(aerr.Invariant),
		}
		if aerr.Detail != "" {
			details["detail"] = aerr.Detail
		}
		switch aerr.Invariant {
		case lifecycle.InvariantTicketReference:
			return &DomainError{Code: CodeUnknownTicket, Message: aerr.Error(), HTTPStatus: http.StatusNotFound, Details: details, Err: err}
		case lifecycle.InvariantJournal:
			return &DomainError{Code: CodeJournalUnavailable, Message: "ledger journal unavailable", HTTPStatus: http.StatusServiceUnavailable, Details: details, Err: err}
		}
		return &DomainError{Code: CodeAppendRejected, Message: aerr.Error(), HTTPStatus: http.StatusConflict, Details: details, Err: err}
	}

	var unknown *lifecycle.UnknownTicketError
	if errors.As(err, &unknown) {
		return &DomainError{
			Code:       CodeUnknownTicket,
			Message:    unknown.Error(),
			HTTPStatus: http.StatusNotFound,
			Details:    map[string]any{"ticket_id": unknown.TicketID.String()},
			Err:        err,
		}
	}

	switch {
	case errors.Is(err, projection.ErrNoProposal), errors.Is(err, projection.ErrNoSummary), errors.Is(err, projection.ErrNoFeedback):
		return &DomainError{Code: CodeNotFound, Message: err.Error(), HTTPStatus: http.StatusNotFound, Err: err}
	case errors.Is(err, projection.ErrBadWindow):
		return &DomainError{Code: CodeBadRequest, Message: err.Error(), HTTPStatus: http.StatusBadRequest, Err: err}
	}

	return &DomainError{
		Code:       CodeInternal,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}
