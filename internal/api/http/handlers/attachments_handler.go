package handlers

import (
	"io"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/bridgedesk/escalation-service/internal/api/dto"
	"github.com/bridgedesk/escalation-service/internal/auth"
	"github.com/bridgedesk/escalation-service/internal/domain"
	"github.com/bridgedesk/escalation-service/internal/service"
	apperrors "github.com/bridgedesk/escalation-service/pkg/util/errorutil"
)

// AttachmentsHandler manages ticket files and the deletion approval protocol.
type AttachmentsHandler struct {
	attachments *service.AttachmentService
	deletions   *service.DeletionService
}

// NewAttachmentsHandler constructs handler.
func NewAttachmentsHandler(attachments *service.AttachmentService, deletions *service.DeletionService) *AttachmentsHandler {
	return &AttachmentsHandler{attachments: attachments, deletions: deletions}
}

// Upload POST /tickets/:number/attachments. Multipart form with one or more
// "files" parts and an optional "upload_context" field.
func (h *AttachmentsHandler) Upload(c *fiber.Ctx) error {
	actor, ok := auth.UserFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("user required")
	}
	form, err := c.MultipartForm()
	if err != nil {
		return apperrors.NewValidationError("multipart form required", nil)
	}
	files := form.File["files"]
	if len(files) == 0 {
		return apperrors.NewValidationError("at least one file required", nil)
	}

	uploadCtx := domain.UploadContextAdditional
	if raw := strings.TrimSpace(c.FormValue("upload_context")); raw != "" {
		uploadCtx = domain.UploadContext(raw)
	}

	inputs := make([]service.UploadInput, 0, len(files))
	for _, header := range files {
		file, err := header.Open()
		if err != nil {
			return apperrors.NewValidationError("unreadable file", map[string]any{"filename": header.Filename})
		}
		data, err := io.ReadAll(file)
		file.Close()
		if err != nil {
			return apperrors.NewValidationError("unreadable file", map[string]any{"filename": header.Filename})
		}
		input := service.UploadInput{Filename: header.Filename, Data: data}
		if mime := header.Header.Get("Content-Type"); mime != "" {
			input.MimeType = &mime
		}
		inputs = append(inputs, input)
	}

	attachments, err := h.attachments.UploadByNumber(c.UserContext(), actor, c.Params("number"), inputs, uploadCtx)
	if err != nil {
		return err
	}
	items := make([]dto.AttachmentResponse, 0, len(attachments))
	for _, a := range attachments {
		items = append(items, dto.NewAttachmentResponse(a, service.PhaseFor(a, nil)))
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": items})
}

// List GET /tickets/:number/attachments.
func (h *AttachmentsHandler) List(c *fiber.Ctx) error {
	actor, ok := auth.UserFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("user required")
	}
	attachments, phases, err := h.attachments.ListWithPhases(c.UserContext(), actor, c.Params("number"))
	if err != nil {
		return err
	}
	items := make([]dto.AttachmentResponse, 0, len(attachments))
	for _, a := range attachments {
		items = append(items, dto.NewAttachmentResponse(a, phases[a.ID]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// Download GET /attachments/:id/content.
func (h *AttachmentsHandler) Download(c *fiber.Ctx) error {
	actor, ok := auth.UserFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("user required")
	}
	attachment, data, err := h.attachments.Download(c.UserContext(), actor, c.Params("id"))
	if err != nil {
		return err
	}
	if attachment.MimeType != nil {
		c.Set(fiber.HeaderContentType, *attachment.MimeType)
	}
	c.Set(fiber.HeaderContentDisposition, `attachment; filename="`+attachment.Filename+`"`)
	return c.Send(data)
}

// RequestDeletion POST /attachments/:id/request-deletion.
func (h *AttachmentsHandler) RequestDeletion(c *fiber.Ctx) error {
	actor, ok := auth.UserFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("user required")
	}
	var req dto.RequestDeletionRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	request, err := h.deletions.RequestDeletion(c.UserContext(), actor, c.Params("id"), req.Reason)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.NewDeletionRequestResponse(*request, actor.ID)})
}

// PendingRequests GET /deletion-requests/pending.
func (h *AttachmentsHandler) PendingRequests(c *fiber.Ctx) error {
	actor, ok := auth.UserFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("user required")
	}
	requests, err := h.deletions.PendingForApprover(c.UserContext(), actor)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": deletionResponses(requests, actor.ID)})
}

// MyRequests GET /deletion-requests/mine.
func (h *AttachmentsHandler) MyRequests(c *fiber.Ctx) error {
	actor, ok := auth.UserFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("user required")
	}
	requests, err := h.deletions.MyRequests(c.UserContext(), actor)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": deletionResponses(requests, actor.ID)})
}

// Approve POST /deletion-requests/:id/approve. Returns the one-time code to
// the approver exactly once.
func (h *AttachmentsHandler) Approve(c *fiber.Ctx) error {
	actor, ok := auth.UserFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("user required")
	}
	request, otp, err := h.deletions.ApproveDeletion(c.UserContext(), actor, c.Params("id"))
	if err != nil {
		return err
	}
	resp := dto.NewDeletionRequestResponse(*request, actor.ID)
	resp.OTPCode = &otp
	resp.OTPExpiresAt = request.OTPExpiresAt
	return c.JSON(fiber.Map{"data": resp})
}

// Reject POST /deletion-requests/:id/reject.
func (h *AttachmentsHandler) Reject(c *fiber.Ctx) error {
	actor, ok := auth.UserFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("user required")
	}
	var req dto.RejectDeletionRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	request, err := h.deletions.RejectDeletion(c.UserContext(), actor, c.Params("id"), req.Reason)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewDeletionRequestResponse(*request, actor.ID)})
}

// Redeem DELETE /attachments/:id. Requires the approved one-time code.
func (h *AttachmentsHandler) Redeem(c *fiber.Ctx) error {
	actor, ok := auth.UserFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("user required")
	}
	var req dto.RedeemDeletionRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if strings.TrimSpace(req.OTPCode) == "" {
		return apperrors.NewValidationError("otp_code required", nil)
	}
	if err := h.deletions.RedeemDeletion(c.UserContext(), actor, c.Params("id"), req.OTPCode); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}

func deletionResponses(requests []domain.DeletionRequest, viewerID string) []dto.DeletionRequestResponse {
	items := make([]dto.DeletionRequestResponse, 0, len(requests))
	for _, r := range requests {
		items = append(items, dto.NewDeletionRequestResponse(r, viewerID))
	}
	return items
}
