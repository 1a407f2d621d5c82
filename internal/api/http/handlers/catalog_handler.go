package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/queue-service/internal/api/dto"
	"github.com/spec-kit/queue-service/internal/domain"
	"github.com/spec-kit/queue-service/internal/service"
	apperrors "github.com/spec-kit/queue-service/pkg/util/errorutil"
)

// CatalogHandler manages units, services, resources and agents.
type CatalogHandler struct {
	catalog *service.CatalogService
}

// NewCatalogHandler constructs handler.
func NewCatalogHandler(catalog *service.CatalogService) *CatalogHandler {
	return &CatalogHandler{catalog: catalog}
}

// CreateUnit POST /v1/units.
func (h *CatalogHandler) CreateUnit(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	var req dto.CreateUnitRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	unit, err := h.catalog.CreateUnit(c.UserContext(), actor, service.UnitInput{Name: req.Name, Timezone: req.Timezone})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": unitResponse(unit)})
}

// GetUnit GET /v1/units/:id.
func (h *CatalogHandler) GetUnit(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	unit, err := h.catalog.GetUnit(c.UserContext(), actor, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": unitResponse(unit)})
}

// CreateService POST /v1/services.
func (h *CatalogHandler) CreateService(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	var req dto.CreateServiceRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	svc, err := h.catalog.CreateService(c.UserContext(), actor, service.ServiceInput{
		UnitID:           req.UnitID,
		Name:             req.Name,
		EstimatedMinutes: req.EstimatedMinutes,
		Color:            req.Color,
		Settings:         req.Settings,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": serviceResponse(svc)})
}

// ListServices GET /v1/units/:id/services.
func (h *CatalogHandler) ListServices(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	services, err := h.catalog.ListServices(c.UserContext(), actor, c.Params("id"))
	if err != nil {
		return err
	}
	items := make([]dto.ServiceResponse, 0, len(services))
	for i := range services {
		items = append(items, serviceResponse(&services[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// DeleteService DELETE /v1/services/:id.
func (h *CatalogHandler) DeleteService(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	if err := h.catalog.DeleteService(c.UserContext(), actor, c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}

// CreateResource POST /v1/resources.
func (h *CatalogHandler) CreateResource(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	var req dto.CreateResourceRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	resource, err := h.catalog.CreateResource(c.UserContext(), actor, service.ResourceInput{UnitID: req.UnitID, Name: req.Name})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": resourceResponse(resource)})
}

// ListResources GET /v1/units/:id/resources.
func (h *CatalogHandler) ListResources(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	resources, err := h.catalog.ListResources(c.UserContext(), actor, c.Params("id"))
	if err != nil {
		return err
	}
	items := make([]dto.ResourceResponse, 0, len(resources))
	for i := range resources {
		items = append(items, resourceResponse(&resources[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// SetResourceStatus POST /v1/resources/:id/status.
func (h *CatalogHandler) SetResourceStatus(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	var req dto.StatusRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	status, err := domain.ParseResourceStatus(req.Status)
	if err != nil {
		return err
	}
	resource, err := h.catalog.SetResourceStatus(c.UserContext(), actor, c.Params("id"), status)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": resourceResponse(resource)})
}

// CreateAgent POST /v1/agents.
func (h *CatalogHandler) CreateAgent(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	var req dto.CreateAgentRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	agent, err := h.catalog.CreateAgent(c.UserContext(), actor, service.AgentInput{ID: req.ID, UnitID: req.UnitID, Name: req.Name})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": agentResponse(agent)})
}

// ListAgents GET /v1/units/:id/agents.
func (h *CatalogHandler) ListAgents(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	agents, err := h.catalog.ListAgents(c.UserContext(), actor, c.Params("id"))
	if err != nil {
		return err
	}
	items := make([]dto.AgentResponse, 0, len(agents))
	for i := range agents {
		items = append(items, agentResponse(&agents[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// SetAgentStatus POST /v1/agents/:id/status.
func (h *CatalogHandler) SetAgentStatus(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	var req dto.StatusRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	status, err := domain.ParseAgentStatus(req.Status)
	if err != nil {
		return err
	}
	agent, err := h.catalog.SetAgentStatus(c.UserContext(), actor, c.Params("id"), status)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": agentResponse(agent)})
}

func unitResponse(unit *domain.Unit) dto.UnitResponse {
	return dto.UnitResponse{ID: unit.ID, Name: unit.Name, Timezone: unit.Timezone}
}

func serviceResponse(svc *domain.Service) dto.ServiceResponse {
	return dto.ServiceResponse{
		ID:               svc.ID,
		UnitID:           svc.UnitID,
		Name:             svc.Name,
		EstimatedMinutes: svc.EstimatedMinutes,
		Color:            svc.Color,
		Settings:         svc.Settings,
	}
}

func resourceResponse(resource *domain.Resource) dto.ResourceResponse {
	return dto.ResourceResponse{ID: resource.ID, UnitID: resource.UnitID, Name: resource.Name, Status: resource.Status}
}

func agentResponse(agent *domain.Agent) dto.AgentResponse {
	return dto.AgentResponse{ID: agent.ID, UnitID: agent.UnitID, Name: agent.Name, Status: agent.Status}
}
