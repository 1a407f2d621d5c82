package handlers

import (
	"context"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/queue-service/internal/api/dto"
	"github.com/spec-kit/queue-service/internal/domain"
	"github.com/spec-kit/queue-service/internal/service"
	apperrors "github.com/spec-kit/queue-service/pkg/util/errorutil"
)

// QueuesHandler exposes queue administration, status control and the waiting line.
type QueuesHandler struct {
	queues  *service.QueueService
	tickets *service.TicketService
	catalog *service.CatalogService
}

// NewQueuesHandler constructs handler.
func NewQueuesHandler(queues *service.QueueService, tickets *service.TicketService, catalog *service.CatalogService) *QueuesHandler {
	return &QueuesHandler{queues: queues, tickets: tickets, catalog: catalog}
}

// CreateQueue POST /v1/queues.
func (h *QueuesHandler) CreateQueue(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	var req dto.CreateQueueRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	queue, err := h.catalog.CreateQueue(c.UserContext(), actor, service.QueueInput{
		UnitID:      req.UnitID,
		Code:        req.Code,
		Name:        req.Name,
		MaxCapacity: req.MaxCapacity,
		Status:      req.Status,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": queueResponse(queue)})
}

// GetQueue GET /v1/queues/:id.
func (h *QueuesHandler) GetQueue(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	queue, err := h.queues.Get(c.UserContext(), actor, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": queueResponse(queue)})
}

// UpdateQueue PATCH /v1/queues/:id.
func (h *QueuesHandler) UpdateQueue(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	var req dto.UpdateQueueRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	queue, err := h.catalog.UpdateQueue(c.UserContext(), actor, c.Params("id"), service.QueueUpdate{
		Name:        req.Name,
		MaxCapacity: req.MaxCapacity,
		IsActive:    req.IsActive,
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": queueResponse(queue)})
}

// DeleteQueue DELETE /v1/queues/:id.
func (h *QueuesHandler) DeleteQueue(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	if err := h.catalog.DeleteQueue(c.UserContext(), actor, c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}

// ListQueues GET /v1/units/:id/queues.
func (h *QueuesHandler) ListQueues(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	queues, err := h.catalog.ListQueues(c.UserContext(), actor, c.Params("id"))
	if err != nil {
		return err
	}
	items := make([]dto.QueueResponse, 0, len(queues))
	for i := range queues {
		items = append(items, queueResponse(&queues[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// ChangeStatus POST /v1/queues/:id/status.
func (h *QueuesHandler) ChangeStatus(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	var req dto.ChangeQueueStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	to, err := domain.ParseQueueStatus(req.Status)
	if err != nil {
		return err
	}
	queue, err := h.queues.ChangeStatus(c.UserContext(), actor, c.Params("id"), to, req.Reason)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": queueResponse(queue)})
}

// Pause POST /v1/queues/:id/pause.
func (h *QueuesHandler) Pause(c *fiber.Ctx) error {
	return h.statusAction(c, h.queues.Pause)
}

// Resume POST /v1/queues/:id/resume.
func (h *QueuesHandler) Resume(c *fiber.Ctx) error {
	return h.statusAction(c, h.queues.Resume)
}

// Close POST /v1/queues/:id/close.
func (h *QueuesHandler) Close(c *fiber.Ctx) error {
	return h.statusAction(c, h.queues.Close)
}

// Open POST /v1/queues/:id/open.
func (h *QueuesHandler) Open(c *fiber.Ctx) error {
	return h.statusAction(c, h.queues.Open)
}

// NextCandidate GET /v1/queues/:id/next.
func (h *QueuesHandler) NextCandidate(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	ticket, err := h.tickets.NextCandidate(c.UserContext(), actor, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketResponse(ticket)})
}

// CallNext POST /v1/queues/:id/call-next.
func (h *QueuesHandler) CallNext(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	ticket, err := h.tickets.CallNext(c.UserContext(), actor, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketResponse(ticket)})
}

// Waiting GET /v1/queues/:id/tickets.
func (h *QueuesHandler) Waiting(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	tickets, err := h.tickets.ListWaiting(c.UserContext(), actor, c.Params("id"))
	if err != nil {
		return err
	}
	items := make([]dto.TicketResponse, 0, len(tickets))
	for i := range tickets {
		items = append(items, ticketResponse(&tickets[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

type queueAction func(ctx context.Context, actor domain.Actor, queueID, reason string) (*domain.Queue, error)

func (h *QueuesHandler) statusAction(c *fiber.Ctx, action queueAction) error {
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
	queue, err := action(c.UserContext(), actor, c.Params("id"), req.Reason)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": queueResponse(queue)})
}

func queueResponse(queue *domain.Queue) dto.QueueResponse {
	return dto.QueueResponse{
		ID:                 queue.ID,
		UnitID:             queue.UnitID,
		Code:               queue.Code,
		Name:               queue.Name,
		MaxCapacity:        queue.MaxCapacity,
		Status:             queue.Status,
		IsActive:           queue.IsActive,
		IsAcceptingTickets: queue.IsAcceptingTickets(),
		Version:            queue.Version,
	}
}
