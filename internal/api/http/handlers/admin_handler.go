package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/bridgedesk/escalation-service/internal/api/dto"
	"github.com/bridgedesk/escalation-service/internal/auth"
	"github.com/bridgedesk/escalation-service/internal/service"
	apperrors "github.com/bridgedesk/escalation-service/pkg/util/errorutil"
)

// AdminHandler holds admin-only overrides. All routes behind RequireAdmin.
type AdminHandler struct {
	authService *service.AuthService
	attachments *service.AttachmentService
}

// NewAdminHandler constructs handler.
func NewAdminHandler(authService *service.AuthService, attachments *service.AttachmentService) *AdminHandler {
	return &AdminHandler{authService: authService, attachments: attachments}
}

// SetManagerFlag POST /admin/users/:id/manager.
func (h *AdminHandler) SetManagerFlag(c *fiber.Ctx) error {
	actor, ok := auth.UserFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("user required")
	}
	var req dto.ManagerFlagRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	user, err := h.authService.SetManagerFlag(c.UserContext(), actor, c.Params("id"), req.IsManager)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewUserResponse(user)})
}

// DeleteAttachment DELETE /admin/attachments/:id. Bypasses the approval
// protocol.
func (h *AdminHandler) DeleteAttachment(c *fiber.Ctx) error {
	actor, ok := auth.UserFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("user required")
	}
	if err := h.attachments.AdminDelete(c.UserContext(), actor, c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}
