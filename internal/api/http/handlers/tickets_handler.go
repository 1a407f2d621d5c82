package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/queue-service/internal/api/dto"
	"github.com/spec-kit/queue-service/internal/auth"
	"github.com/spec-kit/queue-service/internal/clock"
	"github.com/spec-kit/queue-service/internal/domain"
	"github.com/spec-kit/queue-service/internal/service"
	apperrors "github.com/spec-kit/queue-service/pkg/util/errorutil"
)

// TicketsHandler exposes ticket admission, lifecycle and wait estimation.
type TicketsHandler struct {
	tickets   *service.TicketService
	estimator *service.EstimatorService
	clock     clock.Clock
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(ticketService *service.TicketService, estimator *service.EstimatorService, clk clock.Clock) *TicketsHandler {
	return &TicketsHandler{tickets: ticketService, estimator: estimator, clock: clk}
}

// Enqueue POST /v1/tickets.
func (h *TicketsHandler) Enqueue(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	var req dto.EnqueueRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.QueueID == "" || req.ServiceID == "" {
		return apperrors.NewValidationError("queue_id and service_id required", nil)
	}
	ticket, err := h.tickets.Enqueue(c.UserContext(), actor, service.EnqueueInput{
		QueueID:   req.QueueID,
		ServiceID: req.ServiceID,
		Priority:  req.Priority,
		Customer:  req.Customer,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": ticketResponse(ticket)})
}

// GetTicket GET /v1/tickets/:id.
func (h *TicketsHandler) GetTicket(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	ticket, err := h.tickets.Get(c.UserContext(), actor, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketResponse(ticket)})
}

// History GET /v1/tickets/:id/history.
func (h *TicketsHandler) History(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	entries, err := h.tickets.History(c.UserContext(), actor, c.Params("id"))
	if err != nil {
		return err
	}
	items := make([]dto.HistoryResponse, 0, len(entries))
	for i := range entries {
		items = append(items, historyResponse(&entries[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// Call POST /v1/tickets/:id/call.
func (h *TicketsHandler) Call(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	ticket, err := h.tickets.Call(c.UserContext(), actor, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketResponse(ticket)})
}

// Start POST /v1/tickets/:id/start.
func (h *TicketsHandler) Start(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	var req dto.StartTicketRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return apperrors.NewValidationError("invalid payload", nil)
		}
	}
	userID := req.UserID
	if userID == "" {
		userID = actor.UserID
	}
	ticket, session, err := h.tickets.Start(c.UserContext(), actor, c.Params("id"), service.StartInput{
		UserID:     userID,
		ResourceID: req.ResourceID,
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.StartTicketResponse{
		Ticket:  ticketResponse(ticket),
		Session: sessionResponse(session, h.clock.Now()),
	}})
}

// Complete POST /v1/tickets/:id/complete.
func (h *TicketsHandler) Complete(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	var req dto.NotesRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return apperrors.NewValidationError("invalid payload", nil)
		}
	}
	ticket, err := h.tickets.Complete(c.UserContext(), actor, c.Params("id"), req.Notes)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketResponse(ticket)})
}

// Cancel POST /v1/tickets/:id/cancel.
func (h *TicketsHandler) Cancel(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	var req dto.ReasonRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return apperrors.NewValidationError("invalid payload", nil)
		}
	}
	ticket, err := h.tickets.Cancel(c.UserContext(), actor, c.Params("id"), req.Reason)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketResponse(ticket)})
}

// NoShow POST /v1/tickets/:id/no-show.
func (h *TicketsHandler) NoShow(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	ticket, err := h.tickets.MarkNoShow(c.UserContext(), actor, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketResponse(ticket)})
}

// Position GET /v1/tickets/:id/position.
func (h *TicketsHandler) Position(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	position, err := h.estimator.Position(c.UserContext(), actor, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.PositionResponse{TicketID: c.Params("id"), Position: position}})
}

// Estimate GET /v1/tickets/:id/estimate.
func (h *TicketsHandler) Estimate(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	estimate, err := h.estimator.Estimate(c.UserContext(), actor, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.EstimateResponse{
		TicketID:              c.Params("id"),
		Position:              estimate.Position,
		AverageServiceMinutes: estimate.AverageServiceMinutes,
		ActiveAgents:          estimate.ActiveAgents,
		EstimatedWaitMinutes:  estimate.EstimatedWaitMinutes,
	}})
}

func currentActor(c *fiber.Ctx) (domain.Actor, error) {
	actor, ok := auth.ActorFromContext(c)
	if !ok {
		return domain.Actor{}, apperrors.NewUnauthorized("authentication required")
	}
	return actor, nil
}

func ticketResponse(ticket *domain.Ticket) dto.TicketResponse {
	return dto.TicketResponse{
		ID:              ticket.ID,
		QueueID:         ticket.QueueID,
		ServiceID:       ticket.ServiceID,
		UnitID:          ticket.UnitID,
		Number:          ticket.Number,
		Status:          ticket.Status,
		Priority:        ticket.Priority,
		IssuedAt:        ticket.IssuedAt,
		CalledAt:        ticket.CalledAt,
		StartedAt:       ticket.StartedAt,
		CompletedAt:     ticket.CompletedAt,
		CancelledAt:     ticket.CancelledAt,
		CancelReason:    ticket.CancelReason,
		CompletionNotes: ticket.CompletionNotes,
		Customer:        ticket.Customer,
		Version:         ticket.Version,
	}
}

func historyResponse(entry *domain.HistoryEntry) dto.HistoryResponse {
	return dto.HistoryResponse{
		ID:         entry.ID,
		EntityType: entry.EntityType,
		EntityID:   entry.EntityID,
		ActorID:    entry.ActorID,
		ChangeType: entry.ChangeType,
		OldValue:   entry.OldValue,
		NewValue:   entry.NewValue,
		CreatedAt:  entry.CreatedAt,
	}
}
