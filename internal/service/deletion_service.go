package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/bridgedesk/escalation-service/internal/domain"
	"github.com/bridgedesk/escalation-service/internal/events"
	"github.com/bridgedesk/escalation-service/internal/repository"
	apperrors "github.com/bridgedesk/escalation-service/pkg/util/errorutil"
)

// DeletionService implements the attachment-deletion approval protocol:
// request, cross-team approval minting a one-time code, and redemption that
// performs the physical delete. The OTP is single use and expires.
type DeletionService struct {
	requests    repository.DeletionRequestRepository
	attachments *AttachmentService
	dispatcher  events.Dispatcher
	logger      *zap.Logger
	otpTTL      time.Duration
}

// NewDeletionService constructs the service.
func NewDeletionService(
	requests repository.DeletionRequestRepository,
	attachments *AttachmentService,
	dispatcher events.Dispatcher,
	logger *zap.Logger,
	otpTTL time.Duration,
) *DeletionService {
	return &DeletionService{
		requests:    requests,
		attachments: attachments,
		dispatcher:  dispatcher,
		logger:      logger,
		otpTTL:      otpTTL,
	}
}

// RequestDeletion opens a deletion request for an attachment. Only someone
// with delete rights over the attachment may file one, a reason is mandatory,
// and at most one request per attachment may be open at a time.
func (s *DeletionService) RequestDeletion(ctx context.Context, actor *domain.User, attachmentID, reason string) (*domain.DeletionRequest, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, apperrors.NewValidationError("deletion reason required", nil)
	}
	attachment, ticket, err := s.attachments.GetWithTicket(ctx, attachmentID)
	if err != nil {
		return nil, err
	}
	if !canDelete(actor, attachment, ticket) {
		return nil, apperrors.NewForbidden("no delete rights over this attachment")
	}

	if existing, err := s.requests.GetOpenByAttachment(ctx, attachmentID); err == nil && existing != nil {
		return nil, apperrors.NewConflict("an open deletion request already exists for this attachment",
			map[string]any{"request_id": existing.ID, "status": existing.Status})
	} else if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.MapError(err)
	}

	request := &domain.DeletionRequest{
		AttachmentID:    attachmentID,
		RequesterID:     actor.ID,
		RequesterRole:   actor.Role,
		RequesterReason: reason,
		Status:          domain.DeletionStatusPending,
	}
	if err := s.requests.Create(ctx, request); err != nil {
		return nil, apperrors.MapError(err)
	}

	s.attachments.logActivity(ctx, &domain.TicketActivity{
		TicketID: ticket.ID,
		ActorID:  &actor.ID,
		Action:   domain.ActionDeletionRequested,
		Comment:  &reason,
		Payload:  map[string]any{"attachment_id": attachmentID, "request_id": request.ID},
	})
	s.publishDecision(ctx, events.EventDeletionRequested, ticket.ID, &actor.ID, request)
	s.logger.Info("deletion requested",
		zap.String("attachment", attachmentID),
		zap.String("requester", actor.ID))
	return request, nil
}

// ApproveDeletion approves a pending request and mints the one-time code.
// Approval must come from the team opposite the requester, or an admin; the
// code is returned once here and never broadcast.
func (s *DeletionService) ApproveDeletion(ctx context.Context, actor *domain.User, requestID string) (*domain.DeletionRequest, string, error) {
	request, err := s.loadRequest(ctx, requestID)
	if err != nil {
		return nil, "", err
	}
	if request.Status != domain.DeletionStatusPending {
		return nil, "", apperrors.NewConflict("deletion request already decided", map[string]any{"status": request.Status})
	}
	if err := s.authorizeDecision(actor, request); err != nil {
		return nil, "", err
	}

	otp, err := generateOTP()
	if err != nil {
		return nil, "", apperrors.NewInternalError(err)
	}
	expiresAt := time.Now().Add(s.otpTTL)
	if err := s.requests.Approve(ctx, request.ID, actor.ID, otp, expiresAt); err != nil {
		if errors.Is(err, repository.ErrRequestConflict) {
			return nil, "", apperrors.NewConflict("deletion request already decided", nil)
		}
		return nil, "", apperrors.MapError(err)
	}
	request.Status = domain.DeletionStatusApproved
	request.ApproverID = &actor.ID
	request.OTPCode = &otp
	request.OTPExpiresAt = &expiresAt

	attachment, ticket, err := s.attachments.GetWithTicket(ctx, request.AttachmentID)
	if err == nil {
		s.attachments.logActivity(ctx, &domain.TicketActivity{
			TicketID: ticket.ID,
			ActorID:  &actor.ID,
			Action:   domain.ActionDeletionApproved,
			Payload:  map[string]any{"attachment_id": attachment.ID, "request_id": request.ID},
		})
		s.publishDecision(ctx, events.EventDeletionDecided, ticket.ID, &actor.ID, request)
	}
	s.logger.Info("deletion approved",
		zap.String("request", request.ID),
		zap.String("approver", actor.ID),
		zap.Time("otp_expires_at", expiresAt))
	return request, otp, nil
}

// RejectDeletion terminates a pending request.
func (s *DeletionService) RejectDeletion(ctx context.Context, actor *domain.User, requestID string, reason *string) (*domain.DeletionRequest, error) {
	request, err := s.loadRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if request.Status != domain.DeletionStatusPending {
		return nil, apperrors.NewConflict("deletion request already decided", map[string]any{"status": request.Status})
	}
	if err := s.authorizeDecision(actor, request); err != nil {
		return nil, err
	}

	if err := s.requests.Reject(ctx, request.ID, actor.ID, reason); err != nil {
		if errors.Is(err, repository.ErrRequestConflict) {
			return nil, apperrors.NewConflict("deletion request already decided", nil)
		}
		return nil, apperrors.MapError(err)
	}
	request.Status = domain.DeletionStatusRejected
	request.ApproverID = &actor.ID
	request.RejectionReason = reason

	if attachment, ticket, err := s.attachments.GetWithTicket(ctx, request.AttachmentID); err == nil {
		s.attachments.logActivity(ctx, &domain.TicketActivity{
			TicketID: ticket.ID,
			ActorID:  &actor.ID,
			Action:   domain.ActionDeletionRejected,
			Comment:  reason,
			Payload:  map[string]any{"attachment_id": attachment.ID, "request_id": request.ID},
		})
		s.publishDecision(ctx, events.EventDeletionDecided, ticket.ID, &actor.ID, request)
	}
	s.logger.Info("deletion rejected", zap.String("request", request.ID), zap.String("approver", actor.ID))
	return request, nil
}

// RedeemDeletion performs the physical delete, gated on an approved request
// and the exact one-time code. The claim to used is atomic, so of two
// concurrent redemptions exactly one deletes and the other sees already-used.
func (s *DeletionService) RedeemDeletion(ctx context.Context, actor *domain.User, attachmentID, otp string) error {
	// The request is looked up before the attachment: once a code has been
	// redeemed the attachment is gone, and a retry must still see already-used
	// rather than not-found.
	request, err := s.requests.GetLatestByAttachment(ctx, attachmentID)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return apperrors.MapError(err)
	}
	if request != nil && request.Status == domain.DeletionStatusUsed {
		return apperrors.NewAlreadyUsed()
	}

	attachment, ticket, err := s.attachments.GetWithTicket(ctx, attachmentID)
	if err != nil {
		return err
	}
	if !canDelete(actor, attachment, ticket) {
		return apperrors.NewForbidden("no delete rights over this attachment")
	}
	if request == nil {
		return apperrors.NewNotFound("deletion request", map[string]any{"attachment_id": attachmentID})
	}

	switch request.Status {
	case domain.DeletionStatusPending:
		return apperrors.NewConflict("deletion request awaiting approval", map[string]any{"request_id": request.ID})
	case domain.DeletionStatusRejected:
		return apperrors.NewConflict("deletion request was rejected", map[string]any{"request_id": request.ID})
	}

	// Expiry is checked before the code so a stale code leaks nothing about
	// whether it was right.
	if request.OTPExpiresAt == nil || time.Now().After(*request.OTPExpiresAt) {
		return apperrors.NewOTPExpired()
	}
	if request.OTPCode == nil || *request.OTPCode != strings.TrimSpace(otp) {
		return apperrors.NewInvalidOTP()
	}

	if err := s.requests.ClaimUsed(ctx, request.ID); err != nil {
		if errors.Is(err, repository.ErrRequestConflict) {
			return apperrors.NewAlreadyUsed()
		}
		return apperrors.MapError(err)
	}

	if err := s.attachments.Remove(ctx, &actor.ID, attachment, "deleted via approved request"); err != nil {
		// The claim won but the delete failed; the code is burned either way.
		s.logger.Error("attachment removal failed after otp claim",
			zap.String("attachment", attachmentID),
			zap.String("request", request.ID),
			zap.Error(err))
		return err
	}
	s.logger.Info("attachment deleted via approval protocol",
		zap.String("attachment", attachmentID),
		zap.String("request", request.ID),
		zap.String("actor", actor.ID))
	return nil
}

// PendingForApprover lists requests awaiting the viewer's decision: for a
// team member, those filed by the opposite team; for admin, everything
// pending. OTP codes are never present on pending rows.
func (s *DeletionService) PendingForApprover(ctx context.Context, viewer *domain.User) ([]domain.DeletionRequest, error) {
	if viewer.Role == domain.RoleAdmin {
		requests, err := s.requests.ListAllPending(ctx)
		if err != nil {
			return nil, apperrors.MapError(err)
		}
		return requests, nil
	}
	if !viewer.Role.IsTeam() {
		return nil, apperrors.NewForbidden("access denied")
	}
	requests, err := s.requests.ListPendingForRequesterRole(ctx, viewer.Role.Opposite())
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return requests, nil
}

// MyRequests lists the viewer's own requests. Approved rows keep their OTP
// visible, the requester is the one who redeems it.
func (s *DeletionService) MyRequests(ctx context.Context, viewer *domain.User) ([]domain.DeletionRequest, error) {
	requests, err := s.requests.ListByRequester(ctx, viewer.ID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return requests, nil
}

// authorizeDecision: approval or rejection comes from the team opposite the
// requester, or an admin. The requester can never decide their own request.
func (s *DeletionService) authorizeDecision(actor *domain.User, request *domain.DeletionRequest) error {
	if actor.ID == request.RequesterID {
		return apperrors.NewForbidden("cannot decide your own deletion request")
	}
	if actor.Role == domain.RoleAdmin {
		return nil
	}
	if !actor.Role.IsTeam() || actor.Role == request.RequesterRole {
		return apperrors.NewUnauthorized("approval must come from the opposite team")
	}
	return nil
}

func (s *DeletionService) loadRequest(ctx context.Context, requestID string) (*domain.DeletionRequest, error) {
	request, err := s.requests.GetByID(ctx, requestID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("deletion request", map[string]any{"request_id": requestID})
		}
		return nil, apperrors.MapError(err)
	}
	return request, nil
}

func (s *DeletionService) publishDecision(ctx context.Context, eventType events.EventType, ticketID string, actorID *string, request *domain.DeletionRequest) {
	if s.dispatcher == nil {
		return
	}
	_ = s.dispatcher.Publish(ctx, events.Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		TicketID:  ticketID,
		ActorID:   actorID,
		Timestamp: time.Now(),
		Payload:   events.DeletionDecisionPayload{RequestID: request.ID, Status: request.Status},
	})
}

// canDelete holds the delete-rights rule shared by request and redemption:
// the uploader, the ticket creator, or an admin.
func canDelete(actor *domain.User, attachment *domain.Attachment, ticket *domain.Ticket) bool {
	if actor.Role == domain.RoleAdmin {
		return true
	}
	return attachment.UploadedBy == actor.ID || ticket.CreatedBy == actor.ID
}

// generateOTP returns a uniformly random six-digit code.
func generateOTP() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
