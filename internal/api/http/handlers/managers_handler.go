package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/bridgedesk/escalation-service/internal/api/dto"
	"github.com/bridgedesk/escalation-service/internal/auth"
	"github.com/bridgedesk/escalation-service/internal/domain"
	"github.com/bridgedesk/escalation-service/internal/service"
	apperrors "github.com/bridgedesk/escalation-service/pkg/util/errorutil"
)

// ManagersHandler serves team dashboards and assignment administration.
type ManagersHandler struct {
	managers    *service.ManagerService
	assignments *service.AssignmentService
}

// NewManagersHandler constructs handler.
func NewManagersHandler(managers *service.ManagerService, assignments *service.AssignmentService) *ManagersHandler {
	return &ManagersHandler{managers: managers, assignments: assignments}
}

// TeamMembers GET /managers/team-members.
func (h *ManagersHandler) TeamMembers(c *fiber.Ctx) error {
	actor, ok := auth.UserFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("user required")
	}
	members, err := h.managers.TeamMembers(c.UserContext(), actor, teamQuery(c))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": memberResponses(members)})
}

// Incoming GET /managers/incoming.
func (h *ManagersHandler) Incoming(c *fiber.Ctx) error {
	actor, ok := auth.UserFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("user required")
	}
	limit, offset := parseIntQuery(c, "limit", 50), parseIntQuery(c, "offset", 0)
	tickets, total, err := h.managers.IncomingTickets(c.UserContext(), actor, teamQuery(c), limit, offset)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketListResponse(tickets, total, limit, offset)})
}

// Outgoing GET /managers/outgoing.
func (h *ManagersHandler) Outgoing(c *fiber.Ctx) error {
	actor, ok := auth.UserFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("user required")
	}
	limit, offset := parseIntQuery(c, "limit", 50), parseIntQuery(c, "offset", 0)
	tickets, total, err := h.managers.OutgoingTickets(c.UserContext(), actor, teamQuery(c), limit, offset)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketListResponse(tickets, total, limit, offset)})
}

// Unassigned GET /managers/unassigned.
func (h *ManagersHandler) Unassigned(c *fiber.Ctx) error {
	actor, ok := auth.UserFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("user required")
	}
	tickets, err := h.managers.UnassignedTickets(c.UserContext(), actor, teamQuery(c))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketListResponse(tickets, len(tickets), 0, 0)})
}

// Metrics GET /managers/metrics.
func (h *ManagersHandler) Metrics(c *fiber.Ctx) error {
	actor, ok := auth.UserFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("user required")
	}
	metrics, err := h.managers.TeamMetrics(c.UserContext(), actor, teamQuery(c))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTeamMetricsResponse(metrics)})
}

// ToggleAutoAssign POST /managers/auto-assign.
func (h *ManagersHandler) ToggleAutoAssign(c *fiber.Ctx) error {
	actor, ok := auth.UserFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("user required")
	}
	var req dto.AutoAssignToggleRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if err := h.assignments.ToggleAutoAssign(c.UserContext(), actor, req.Enabled); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"auto_assign_enabled": req.Enabled}})
}

// ToggleUserActive POST /managers/users/:id/toggle-active.
func (h *ManagersHandler) ToggleUserActive(c *fiber.Ctx) error {
	actor, ok := auth.UserFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("user required")
	}
	user, err := h.assignments.ToggleUserActive(c.UserContext(), actor, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewUserResponse(user)})
}

func teamQuery(c *fiber.Ctx) domain.Role {
	return domain.Role(c.Query("team"))
}

func memberResponses(members []domain.TeamMember) []dto.TeamMemberResponse {
	items := make([]dto.TeamMemberResponse, 0, len(members))
	for _, m := range members {
		items = append(items, dto.NewTeamMemberResponse(m))
	}
	return items
}
