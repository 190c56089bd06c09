package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/triage-ledger/internal/api/dto"
	"github.com/spec-kit/triage-ledger/internal/audit"
	"github.com/spec-kit/triage-ledger/internal/projection"
	apperrors "github.com/spec-kit/triage-ledger/pkg/util/errorutil"
)

// ReviewHandler serves the read-only projections.
type ReviewHandler struct {
	projector     *projection.Projector
	defaultWindow time.Duration
}

// NewReviewHandler constructs handler.
func NewReviewHandler(projector *projection.Projector, defaultWindow time.Duration) *ReviewHandler {
	return &ReviewHandler{projector: projector, defaultWindow: defaultWindow}
}

// LatestProposal GET /tickets/:id/proposals/latest.
func (h *ReviewHandler) LatestProposal(c *fiber.Ctx) error {
	id, err := ticketIDParam(c)
	if err != nil {
		return err
	}
	pv, err := h.projector.LatestProposal(id)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": proposalResponse(pv)})
}

// LatestSummary GET /tickets/:id/summaries/latest.
func (h *ReviewHandler) LatestSummary(c *fiber.Ctx) error {
	id, err := ticketIDParam(c)
	if err != nil {
		return err
	}
	seq, summary, err := h.projector.LatestSummary(id)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.SummaryResponse{Seq: seq, Summary: summary}})
}

// PendingReview GET /review/pending.
func (h *ReviewHandler) PendingReview(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"data": reviewItems(h.projector.PendingReview())})
}

// AwaitingReproposal GET /review/rejected.
func (h *ReviewHandler) AwaitingReproposal(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"data": reviewItems(h.projector.AwaitingReproposal())})
}

// RejectionRate GET /stats/rejection-rate?window=24h.
func (h *ReviewHandler) RejectionRate(c *fiber.Ctx) error {
	window := h.defaultWindow
	if raw := c.Query("window"); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			return apperrors.NewBadRequest("invalid window", map[string]any{"window": raw})
		}
		window = parsed
	}
	stats, err := h.projector.RejectionRate(window)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.RejectionRateResponse{
		From:     stats.From,
		To:       stats.To,
		Total:    stats.Total,
		Rejected: stats.Rejected,
		Rate:     stats.Rate,
	}})
}

// StateCounts GET /stats/states.
func (h *ReviewHandler) StateCounts(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"data": h.projector.StateCounts()})
}

// Export GET /tickets/:id/export?format=yaml&compress=zstd.
func (h *ReviewHandler) Export(c *fiber.Ctx) error {
	id, err := ticketIDParam(c)
	if err != nil {
		return err
	}
	format, err := audit.ParseFormat(c.Query("format"))
	if err != nil {
		return apperrors.NewBadRequest(err.Error(), map[string]any{"format": c.Query("format")})
	}
	compression, err := audit.ParseCompression(c.Query("compress"))
	if err != nil {
		return apperrors.NewBadRequest(err.Error(), map[string]any{"compress": c.Query("compress")})
	}
	trail, err := h.projector.Export(id)
	if err != nil {
		return err
	}
	body, contentType, err := audit.Encode(trail, format, compression)
	if err != nil {
		return apperrors.NewInternalError(err)
	}
	filename := id.String() + "." + string(format)
	if compression == audit.CompressionZstd {
		filename += ".zst"
	}
	c.Set(fiber.HeaderContentType, contentType)
	c.Set(fiber.HeaderContentDisposition, `attachment; filename="`+filename+`"`)
	return c.Send(body)
}

func proposalResponse(pv projection.ProposalView) dto.ProposalResponse {
	return dto.ProposalResponse{Seq: pv.Seq, Proposal: pv.Proposal, Disposition: pv.Disposition}
}

func reviewItems(items []projection.ReviewItem) []dto.ReviewItemResponse {
	resp := make([]dto.ReviewItemResponse, 0, len(items))
	for _, item := range items {
		resp = append(resp, dto.ReviewItemResponse{
			TicketID:        item.TicketID.String(),
			State:           item.State,
			RawText:         item.Ticket.RawText,
			Latest:          proposalResponse(item.Latest),
			RejectionReason: item.RejectionReason,
		})
	}
	return resp
}
