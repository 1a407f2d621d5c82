package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/queue-service/internal/api/dto"
	"github.com/spec-kit/queue-service/internal/clock"
	"github.com/spec-kit/queue-service/internal/domain"
	"github.com/spec-kit/queue-service/internal/service"
	apperrors "github.com/spec-kit/queue-service/pkg/util/errorutil"
)

// SessionsHandler exposes session pause, resume and termination.
type SessionsHandler struct {
	sessions *service.SessionService
	clock    clock.Clock
}

// NewSessionsHandler constructs handler.
func NewSessionsHandler(sessions *service.SessionService, clk clock.Clock) *SessionsHandler {
	return &SessionsHandler{sessions: sessions, clock: clk}
}

// GetSession GET /v1/sessions/:id.
func (h *SessionsHandler) GetSession(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	session, err := h.sessions.Get(c.UserContext(), actor, c.Params("id"))
	if err != nil {
		return err
	}
	return h.respond(c, session)
}

// ActiveForAgent GET /v1/agents/:id/session.
func (h *SessionsHandler) ActiveForAgent(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	session, err := h.sessions.ActiveForUser(c.UserContext(), actor, c.Params("id"))
	if err != nil {
		return err
	}
	return h.respond(c, session)
}

// Pause POST /v1/sessions/:id/pause.
func (h *SessionsHandler) Pause(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	session, err := h.sessions.Pause(c.UserContext(), actor, c.Params("id"))
	if err != nil {
		return err
	}
	return h.respond(c, session)
}

// Resume POST /v1/sessions/:id/resume.
func (h *SessionsHandler) Resume(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	session, err := h.sessions.Resume(c.UserContext(), actor, c.Params("id"))
	if err != nil {
		return err
	}
	return h.respond(c, session)
}

// Complete POST /v1/sessions/:id/complete.
func (h *SessionsHandler) Complete(c *fiber.Ctx) error {
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
	session, err := h.sessions.Complete(c.UserContext(), actor, c.Params("id"), req.Notes)
	if err != nil {
		return err
	}
	return h.respond(c, session)
}

// Cancel POST /v1/sessions/:id/cancel.
func (h *SessionsHandler) Cancel(c *fiber.Ctx) error {
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
	session, err := h.sessions.Cancel(c.UserContext(), actor, c.Params("id"), req.Reason)
	if err != nil {
		return err
	}
	return h.respond(c, session)
}

func (h *SessionsHandler) respond(c *fiber.Ctx, session *domain.Session) error {
	return c.JSON(fiber.Map{"data": sessionResponse(session, h.clock.Now())})
}

func sessionResponse(session *domain.Session, now time.Time) dto.SessionResponse {
	return dto.SessionResponse{
		ID:                    session.ID,
		TicketID:              session.TicketID,
		UserID:                session.UserID,
		ResourceID:            session.ResourceID,
		QueueID:               session.QueueID,
		Status:                session.Status,
		StartedAt:             session.StartedAt,
		PausedAt:              session.PausedAt,
		CompletedAt:           session.CompletedAt,
		PauseCount:            session.PauseCount,
		PausedSeconds:         int64(session.PausedDuration.Seconds()),
		TotalDurationSeconds:  int64(session.TotalDuration(now).Seconds()),
		ActiveDurationSeconds: int64(session.ActiveDuration(now).Seconds()),
		Notes:                 session.Notes,
		Version:               session.Version,
	}
}
