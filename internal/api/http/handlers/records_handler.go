package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/spec-kit/triage-ledger/internal/api/dto"
	"github.com/spec-kit/triage-ledger/internal/audit"
	"github.com/spec-kit/triage-ledger/internal/domain"
	"github.com/spec-kit/triage-ledger/internal/lifecycle"
	"github.com/spec-kit/triage-ledger/internal/validation"
	apperrors "github.com/spec-kit/triage-ledger/pkg/util/errorutil"
)

// RecordsHandler ingests candidate records and serves per-ticket reads.
type RecordsHandler struct {
	ledger *lifecycle.Coordinator
	now    func() time.Time
}

// NewRecordsHandler constructs handler. A nil clock uses time.Now.
func NewRecordsHandler(ledger *lifecycle.Coordinator, clock func() time.Time) *RecordsHandler {
	if clock == nil {
		clock = time.Now
	}
	return &RecordsHandler{ledger: ledger, now: clock}
}

// CreateTicket POST /tickets.
func (h *RecordsHandler) CreateTicket(c *fiber.Ctx) error {
	return h.append(c, domain.KindTicket)
}

// CreateSummary POST /summaries.
func (h *RecordsHandler) CreateSummary(c *fiber.Ctx) error {
	return h.append(c, domain.KindSummary)
}

// CreateProposal POST /proposals.
func (h *RecordsHandler) CreateProposal(c *fiber.Ctx) error {
	return h.append(c, domain.KindProposal)
}

// CreateFeedback POST /feedback.
func (h *RecordsHandler) CreateFeedback(c *fiber.Ctx) error {
	return h.append(c, domain.KindFeedback)
}

func (h *RecordsHandler) append(c *fiber.Ctx, kind domain.RecordKind) error {
	rec, err := validation.Validate(c.Body(), kind)
	if err != nil {
		return err
	}
	entry, state, err := h.ledger.AppendWithState(c.UserContext(), rec)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.AppendResponse{
		Seq:         entry.Seq,
		TicketID:    entry.TicketID().String(),
		Kind:        entry.Kind(),
		Fingerprint: entry.Fingerprint,
		ProposalSeq: entry.ProposalSeq,
		State:       state,
		AppendedAt:  entry.AppendedAt,
	}})
}

// Validate POST /validate/:kind. Checks a candidate without appending it.
func (h *RecordsHandler) Validate(c *fiber.Ctx) error {
	kind, ok := domain.ParseRecordKind(c.Params("kind"))
	if !ok {
		return apperrors.NewBadRequest("unknown record kind", map[string]any{"kind": c.Params("kind")})
	}
	resp := dto.ValidateResponse{Kind: kind, Valid: true, Violations: []domain.SchemaViolation{}}
	if _, err := validation.Validate(c.Body(), kind); err != nil {
		var verr *domain.ValidationError
		if !errors.As(err, &verr) {
			return err
		}
		resp.Valid = false
		resp.Violations = verr.Violations
	}
	return c.JSON(fiber.Map{"data": resp})
}

// GetState GET /tickets/:id/state.
func (h *RecordsHandler) GetState(c *fiber.Ctx) error {
	id, err := ticketIDParam(c)
	if err != nil {
		return err
	}
	state, err := h.ledger.CurrentState(id)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.StateResponse{TicketID: id.String(), State: state}})
}

// GetHistory GET /tickets/:id/history.
func (h *RecordsHandler) GetHistory(c *fiber.Ctx) error {
	id, err := ticketIDParam(c)
	if err != nil {
		return err
	}
	view, err := h.ledger.View(id)
	if err != nil {
		return err
	}
	trail := audit.NewTrail(id.String(), view.State, view.Entries, h.now())
	return c.JSON(fiber.Map{"data": dto.HistoryResponse{
		TicketID: trail.TicketID,
		State:    trail.State,
		Records:  trail.Records,
	}})
}

func ticketIDParam(c *fiber.Ctx) (uuid.UUID, error) {
	raw := strings.TrimSpace(c.Params("id"))
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, apperrors.NewBadRequest("invalid ticket id", map[string]any{"id": raw})
	}
	return id, nil
}
