package service

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/bridgedesk/escalation-service/internal/blob"
	"github.com/bridgedesk/escalation-service/internal/domain"
	"github.com/bridgedesk/escalation-service/internal/events"
	"github.com/bridgedesk/escalation-service/internal/repository"
	apperrors "github.com/bridgedesk/escalation-service/pkg/util/errorutil"
)

// UploadInput carries one file to attach.
type UploadInput struct {
	Filename string
	MimeType *string
	Data     []byte
}

// AttachmentService stores ticket files: bytes in the blob store, metadata in
// Postgres. Attachment rows are immutable once written; removal goes through
// the deletion approval protocol or an admin override.
type AttachmentService struct {
	attachments repository.AttachmentRepository
	tickets     repository.TicketRepository
	activities  repository.ActivityRepository
	blobs       blob.Store
	dispatcher  events.Dispatcher
	logger      *zap.Logger
}

// NewAttachmentService constructs the service.
func NewAttachmentService(
	attachments repository.AttachmentRepository,
	tickets repository.TicketRepository,
	activities repository.ActivityRepository,
	blobs blob.Store,
	dispatcher events.Dispatcher,
	logger *zap.Logger,
) *AttachmentService {
	return &AttachmentService{
		attachments: attachments,
		tickets:     tickets,
		activities:  activities,
		blobs:       blobs,
		dispatcher:  dispatcher,
		logger:      logger,
	}
}

// Upload writes the files to blob storage first, then records metadata. A
// storage failure aborts before any metadata exists, so callers can safely
// run this ahead of a status change.
func (s *AttachmentService) Upload(ctx context.Context, actor *domain.User, ticket *domain.Ticket, inputs []UploadInput, uploadCtx domain.UploadContext) ([]domain.Attachment, error) {
	if !domain.ValidUploadContext(uploadCtx) {
		return nil, apperrors.NewValidationError("unknown upload context", map[string]any{"upload_context": uploadCtx})
	}
	if !s.canUpload(actor, ticket) {
		return nil, apperrors.NewForbidden("no upload access to this ticket")
	}

	result := make([]domain.Attachment, 0, len(inputs))
	for _, input := range inputs {
		if strings.TrimSpace(input.Filename) == "" {
			return nil, apperrors.NewValidationError("filename required", nil)
		}
		if len(input.Data) == 0 {
			return nil, apperrors.NewValidationError("empty file", map[string]any{"filename": input.Filename})
		}

		key := uuid.NewString() + strings.ToLower(filepath.Ext(input.Filename))
		if err := s.blobs.Put(ctx, key, input.Data); err != nil {
			return nil, apperrors.NewUploadFailed(err)
		}

		attachment := domain.Attachment{
			TicketID:      ticket.ID,
			Filename:      filepath.Base(input.Filename),
			StorageKey:    key,
			MimeType:      input.MimeType,
			FileSize:      int64(len(input.Data)),
			UploadedBy:    actor.ID,
			UploadContext: uploadCtx,
		}
		if err := s.attachments.Create(ctx, &attachment); err != nil {
			// Orphaned blob; remove best effort before failing.
			if delErr := s.blobs.Delete(ctx, key); delErr != nil {
				s.logger.Warn("orphaned blob cleanup failed", zap.String("key", key), zap.Error(delErr))
			}
			return nil, apperrors.MapError(err)
		}

		s.logActivity(ctx, &domain.TicketActivity{
			TicketID: ticket.ID,
			ActorID:  &actor.ID,
			Action:   domain.ActionAttachmentAdded,
			Comment:  &attachment.Filename,
			Payload:  map[string]any{"attachment_id": attachment.ID, "upload_context": uploadCtx},
		})
		s.publishAttachment(ctx, events.EventAttachmentAdded, ticket.ID, &actor.ID, attachment.ID, attachment.Filename)
		result = append(result, attachment)
	}
	return result, nil
}

// UploadByNumber resolves the ticket and uploads, for the standalone
// attachment endpoint.
func (s *AttachmentService) UploadByNumber(ctx context.Context, actor *domain.User, ticketNumber string, inputs []UploadInput, uploadCtx domain.UploadContext) ([]domain.Attachment, error) {
	ticket, err := s.loadTicket(ctx, ticketNumber)
	if err != nil {
		return nil, err
	}
	return s.Upload(ctx, actor, ticket, inputs, uploadCtx)
}

// ListByTicket returns a ticket's attachments in upload order.
func (s *AttachmentService) ListByTicket(ctx context.Context, actor *domain.User, ticketNumber string) ([]domain.Attachment, error) {
	ticket, err := s.loadTicket(ctx, ticketNumber)
	if err != nil {
		return nil, err
	}
	if actor.Role == domain.RoleGrowth && !actor.IsManager && ticket.CreatedBy != actor.ID {
		return nil, apperrors.NewForbidden("access denied")
	}
	attachments, err := s.attachments.ListByTicket(ctx, ticket.ID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return attachments, nil
}

// ListWithPhases returns a ticket's attachments along with each one's
// derived narrative phase, keyed by attachment id.
func (s *AttachmentService) ListWithPhases(ctx context.Context, actor *domain.User, ticketNumber string) ([]domain.Attachment, map[string]domain.AttachmentPhase, error) {
	attachments, err := s.ListByTicket(ctx, actor, ticketNumber)
	if err != nil {
		return nil, nil, err
	}
	if len(attachments) == 0 {
		return attachments, map[string]domain.AttachmentPhase{}, nil
	}
	activities, err := s.activities.ListByTicket(ctx, attachments[0].TicketID)
	if err != nil {
		return nil, nil, apperrors.MapError(err)
	}
	firstReopen := FirstReopenAt(activities)
	phases := make(map[string]domain.AttachmentPhase, len(attachments))
	for _, a := range attachments {
		phases[a.ID] = PhaseFor(a, firstReopen)
	}
	return attachments, phases, nil
}

// Download streams an attachment's bytes.
func (s *AttachmentService) Download(ctx context.Context, actor *domain.User, attachmentID string) (*domain.Attachment, []byte, error) {
	attachment, ticket, err := s.loadAttachment(ctx, attachmentID)
	if err != nil {
		return nil, nil, err
	}
	if actor.Role == domain.RoleGrowth && !actor.IsManager && ticket.CreatedBy != actor.ID {
		return nil, nil, apperrors.NewForbidden("access denied")
	}
	data, err := s.blobs.Get(ctx, attachment.StorageKey)
	if err != nil {
		if errors.Is(err, blob.ErrNotFound) {
			return nil, nil, apperrors.NewNotFound("attachment content", map[string]any{"attachment_id": attachmentID})
		}
		return nil, nil, apperrors.MapError(err)
	}
	return attachment, data, nil
}

// AdminDelete removes an attachment immediately, bypassing the approval
// protocol. Distinct from OTP redemption and audited as such.
func (s *AttachmentService) AdminDelete(ctx context.Context, actor *domain.User, attachmentID string) error {
	if actor.Role != domain.RoleAdmin {
		return apperrors.NewForbidden("admin access required")
	}
	attachment, _, err := s.loadAttachment(ctx, attachmentID)
	if err != nil {
		return err
	}
	return s.Remove(ctx, &actor.ID, attachment, "deleted by admin override")
}

// Remove deletes the metadata row then the stored bytes. A failed blob delete
// after the row is gone is logged, not surfaced: the attachment no longer
// exists as far as the ticket is concerned.
func (s *AttachmentService) Remove(ctx context.Context, actorID *string, attachment *domain.Attachment, note string) error {
	if err := s.attachments.Delete(ctx, attachment.ID); err != nil {
		return apperrors.MapError(err)
	}
	if err := s.blobs.Delete(ctx, attachment.StorageKey); err != nil {
		s.logger.Warn("blob delete failed after metadata removal",
			zap.String("key", attachment.StorageKey),
			zap.Error(err))
	}
	s.logActivity(ctx, &domain.TicketActivity{
		TicketID: attachment.TicketID,
		ActorID:  actorID,
		Action:   domain.ActionAttachmentDeleted,
		Comment:  &note,
		Payload:  map[string]any{"attachment_id": attachment.ID, "filename": attachment.Filename},
	})
	s.publishAttachment(ctx, events.EventAttachmentDeleted, attachment.TicketID, actorID, attachment.ID, attachment.Filename)
	return nil
}

// GetWithTicket fetches an attachment along with its parent ticket.
func (s *AttachmentService) GetWithTicket(ctx context.Context, attachmentID string) (*domain.Attachment, *domain.Ticket, error) {
	return s.loadAttachment(ctx, attachmentID)
}

// PhaseFor places an attachment in the ticket's narrative. The stored upload
// context fixes initial and reopen uploads; resolution and additional uploads
// split on whether they landed before or after the first reopen.
func PhaseFor(attachment domain.Attachment, firstReopenAt *time.Time) domain.AttachmentPhase {
	beforeReopen := firstReopenAt == nil || attachment.CreatedAt.Before(*firstReopenAt)
	switch attachment.UploadContext {
	case domain.UploadContextInitial:
		return domain.PhaseInitial
	case domain.UploadContextReopen:
		return domain.PhaseReopen
	case domain.UploadContextResolution:
		if beforeReopen {
			return domain.PhasePrimaryResolution
		}
		return domain.PhaseUpdatedResolution
	default:
		if beforeReopen {
			return domain.PhaseInitial
		}
		return domain.PhaseReopen
	}
}

// FirstReopenAt extracts the timestamp of the first reopen from a ticket
// timeline, nil when the ticket was never reopened.
func FirstReopenAt(activities []domain.TicketActivity) *time.Time {
	for _, a := range activities {
		if a.Action == domain.ActionReopened {
			at := a.CreatedAt
			return &at
		}
	}
	return nil
}

// canUpload: the creator, any member of the counterpart team, or an admin.
func (s *AttachmentService) canUpload(actor *domain.User, ticket *domain.Ticket) bool {
	if actor.Role == domain.RoleAdmin {
		return true
	}
	if ticket.CreatedBy == actor.ID {
		return true
	}
	return actor.Role == ticket.CreatorRole.Opposite()
}

func (s *AttachmentService) loadTicket(ctx context.Context, ticketNumber string) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByNumber(ctx, ticketNumber)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_number": ticketNumber})
		}
		return nil, apperrors.MapError(err)
	}
	return ticket, nil
}

func (s *AttachmentService) loadAttachment(ctx context.Context, attachmentID string) (*domain.Attachment, *domain.Ticket, error) {
	attachment, err := s.attachments.GetByID(ctx, attachmentID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, apperrors.NewNotFound("attachment", map[string]any{"attachment_id": attachmentID})
		}
		return nil, nil, apperrors.MapError(err)
	}
	ticket, err := s.tickets.GetByID(ctx, attachment.TicketID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": attachment.TicketID})
		}
		return nil, nil, apperrors.MapError(err)
	}
	return attachment, ticket, nil
}

func (s *AttachmentService) logActivity(ctx context.Context, activity *domain.TicketActivity) {
	if err := s.activities.Create(ctx, activity); err != nil {
		s.logger.Error("activity append failed",
			zap.String("ticket_id", activity.TicketID),
			zap.String("action", string(activity.Action)),
			zap.Error(err))
	}
}

func (s *AttachmentService) publishAttachment(ctx context.Context, eventType events.EventType, ticketID string, actorID *string, attachmentID, filename string) {
	if s.dispatcher == nil {
		return
	}
	_ = s.dispatcher.Publish(ctx, events.Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		TicketID:  ticketID,
		ActorID:   actorID,
		Timestamp: time.Now(),
		Payload:   events.AttachmentPayload{AttachmentID: attachmentID, Filename: filename},
	})
}
