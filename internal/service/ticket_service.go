package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/bridgedesk/escalation-service/internal/domain"
	"github.com/bridgedesk/escalation-service/internal/events"
	"github.com/bridgedesk/escalation-service/internal/observability"
	"github.com/bridgedesk/escalation-service/internal/repository"
	"github.com/bridgedesk/escalation-service/internal/workflow"
	apperrors "github.com/bridgedesk/escalation-service/pkg/util/errorutil"
)

// TicketService owns the ticket lifecycle: creation, the resolve/reopen/close
// state machine, the admin force escape hatch, and the audit timeline.
type TicketService struct {
	tickets     repository.TicketRepository
	users       repository.UserRepository
	activities  repository.ActivityRepository
	attachments *AttachmentService
	assignments *AssignmentService
	dispatcher  events.Dispatcher
	logger      *zap.Logger
	metrics     *observability.Metrics
}

// TicketDependencies bundles collaborators for the ticket service.
type TicketDependencies struct {
	TicketRepo   repository.TicketRepository
	UserRepo     repository.UserRepository
	ActivityRepo repository.ActivityRepository
	Attachments  *AttachmentService
	Assignments  *AssignmentService
	Dispatcher   events.Dispatcher
	Logger       *zap.Logger
	Metrics      *observability.Metrics
}

// TicketCreateInput describes ticket creation payload.
type TicketCreateInput struct {
	BrandName      string
	Description    *string
	IssueType      *string
	ExpectedOutput *string
	Priority       domain.TicketPriority
}

// TicketUpdateInput describes editable classification fields.
type TicketUpdateInput struct {
	BrandName      *string
	Description    *string
	IssueType      *string
	ExpectedOutput *string
	Priority       *domain.TicketPriority
}

// TicketListFilter describes listing filters.
type TicketListFilter struct {
	Statuses    []domain.TicketStatus
	Priorities  []domain.TicketPriority
	BrandName   *string
	AssigneeID  *string
	CreatedFrom *time.Time
	CreatedTo   *time.Time
	Limit       int
	Offset      int
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	return &TicketService{
		tickets:     deps.TicketRepo,
		users:       deps.UserRepo,
		activities:  deps.ActivityRepo,
		attachments: deps.Attachments,
		assignments: deps.Assignments,
		dispatcher:  deps.Dispatcher,
		logger:      deps.Logger,
		metrics:     deps.Metrics,
	}
}

// CreateTicket files a new escalation. The creator's role is captured on the
// ticket and fixes team ownership for its whole life; the ticket number is a
// team-prefixed sequence.
func (s *TicketService) CreateTicket(ctx context.Context, creator *domain.User, input TicketCreateInput) (*domain.Ticket, error) {
	if !creator.Role.IsTeam() {
		return nil, apperrors.NewForbidden("only team members can file tickets")
	}
	if strings.TrimSpace(input.BrandName) == "" {
		return nil, apperrors.NewValidationError("brand_name required", nil)
	}
	if input.Priority == "" {
		input.Priority = domain.TicketPriorityMedium
	}
	if !domain.ValidPriority(input.Priority) {
		return nil, apperrors.NewValidationError("unknown priority", map[string]any{"priority": input.Priority})
	}

	number, err := s.nextTicketNumber(ctx, creator.Role)
	if err != nil {
		return nil, apperrors.MapError(err)
	}

	ticket := &domain.Ticket{
		TicketNumber:   number,
		CreatedBy:      creator.ID,
		CreatorRole:    creator.Role,
		BrandName:      strings.TrimSpace(input.BrandName),
		Description:    input.Description,
		IssueType:      input.IssueType,
		ExpectedOutput: input.ExpectedOutput,
		Priority:       input.Priority,
		Status:         domain.TicketStatusOpen,
	}
	if err := s.tickets.Create(ctx, ticket); err != nil {
		return nil, apperrors.MapError(err)
	}

	s.logActivity(ctx, &domain.TicketActivity{
		TicketID: ticket.ID,
		ActorID:  &creator.ID,
		Action:   domain.ActionCreated,
		Comment:  strPtr("Ticket created"),
	})
	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketCreated,
		TicketID: ticket.ID,
		ActorID:  &creator.ID,
		Payload: events.TicketCreatedPayload{
			TicketNumber: ticket.TicketNumber,
			CreatorRole:  ticket.CreatorRole,
			Priority:     ticket.Priority,
			BrandName:    ticket.BrandName,
		},
	})

	s.maybeAutoAssign(ctx, ticket)
	return ticket, nil
}

// maybeAutoAssign routes a fresh incoming ticket when the counterpart team
// has the toggle enabled. Best effort: failures are logged, never surfaced to
// the creator.
func (s *TicketService) maybeAutoAssign(ctx context.Context, ticket *domain.Ticket) {
	if s.assignments == nil {
		return
	}
	actingTeam := ticket.CreatorRole.Opposite()
	enabled, err := s.users.AutoAssignEnabledForTeam(ctx, actingTeam)
	if err != nil {
		s.logger.Warn("auto-assign toggle lookup failed", zap.String("ticket", ticket.TicketNumber), zap.Error(err))
		return
	}
	if !enabled {
		return
	}
	if _, err := s.assignments.AutoAssign(ctx, ticket); err != nil {
		s.logger.Warn("auto-assign failed", zap.String("ticket", ticket.TicketNumber), zap.Error(err))
	}
}

// GetTicket fetches a ticket by number, enforcing creator-team visibility for
// non-manager growth users.
func (s *TicketService) GetTicket(ctx context.Context, actor *domain.User, ticketNumber string) (*domain.Ticket, error) {
	ticket, err := s.loadTicket(ctx, ticketNumber)
	if err != nil {
		return nil, err
	}
	if !s.canView(actor, ticket) {
		return nil, apperrors.NewForbidden("access denied")
	}
	return ticket, nil
}

// ListTickets returns tickets visible to the actor, newest first within
// priority order.
func (s *TicketService) ListTickets(ctx context.Context, actor *domain.User, filter TicketListFilter) ([]domain.Ticket, int, error) {
	repoFilter := repository.TicketFilter{
		Statuses:        filter.Statuses,
		Priorities:      filter.Priorities,
		BrandName:       filter.BrandName,
		CurrentAssignee: filter.AssigneeID,
		CreatedFrom:     filter.CreatedFrom,
		CreatedTo:       filter.CreatedTo,
		Limit:           filter.Limit,
		Offset:          filter.Offset,
	}
	// Growth users see their own tickets only; ops and admin see everything.
	if actor.Role == domain.RoleGrowth {
		repoFilter.CreatedBy = &actor.ID
	}
	tickets, err := s.tickets.ListWithFilter(ctx, repoFilter)
	if err != nil {
		return nil, 0, apperrors.MapError(err)
	}
	total, err := s.tickets.CountWithFilter(ctx, repoFilter)
	if err != nil {
		return nil, 0, apperrors.MapError(err)
	}
	return tickets, total, nil
}

// UpdateTicket edits classification fields. Only the creator or an admin may
// edit; lifecycle fields are off limits here.
func (s *TicketService) UpdateTicket(ctx context.Context, actor *domain.User, ticketNumber string, input TicketUpdateInput) (*domain.Ticket, error) {
	ticket, err := s.loadTicket(ctx, ticketNumber)
	if err != nil {
		return nil, err
	}
	if actor.Role != domain.RoleAdmin && ticket.CreatedBy != actor.ID {
		return nil, apperrors.NewForbidden("only the creator or an admin may edit a ticket")
	}

	changed := map[string]any{}
	if input.BrandName != nil && strings.TrimSpace(*input.BrandName) != "" {
		ticket.BrandName = strings.TrimSpace(*input.BrandName)
		changed["brand_name"] = ticket.BrandName
	}
	if input.Description != nil {
		ticket.Description = input.Description
		changed["description"] = *input.Description
	}
	if input.IssueType != nil {
		ticket.IssueType = input.IssueType
		changed["issue_type"] = *input.IssueType
	}
	if input.ExpectedOutput != nil {
		ticket.ExpectedOutput = input.ExpectedOutput
		changed["expected_output"] = *input.ExpectedOutput
	}
	if input.Priority != nil {
		if !domain.ValidPriority(*input.Priority) {
			return nil, apperrors.NewValidationError("unknown priority", map[string]any{"priority": *input.Priority})
		}
		ticket.Priority = *input.Priority
		changed["priority"] = ticket.Priority
	}
	if len(changed) == 0 {
		return ticket, nil
	}

	if err := s.tickets.Update(ctx, ticket); err != nil {
		return nil, apperrors.MapError(err)
	}
	s.logActivity(ctx, &domain.TicketActivity{
		TicketID: ticket.ID,
		ActorID:  &actor.ID,
		Action:   domain.ActionUpdated,
		Comment:  strPtr("Ticket updated"),
		Payload:  changed,
	})
	return ticket, nil
}

// ResolveTicket submits a fix from the counterpart team, moving the ticket to
// processed. Attachments, when present, are uploaded before the status is
// touched so a failed upload leaves the ticket unchanged.
func (s *TicketService) ResolveTicket(ctx context.Context, actor *domain.User, ticketNumber, remarks string, uploads []UploadInput) (*domain.Ticket, error) {
	if strings.TrimSpace(remarks) == "" {
		return nil, apperrors.NewValidationError("resolution remarks required", nil)
	}
	ticket, err := s.loadTicket(ctx, ticketNumber)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(actor, ticket, workflow.ActionResolve); err != nil {
		return nil, err
	}

	attached, err := s.uploadBeforeMutate(ctx, actor, ticket, uploads, domain.UploadContextResolution)
	if err != nil {
		return nil, err
	}

	prior := ticket.Status
	now := time.Now()
	remarks = strings.TrimSpace(remarks)
	ticket.ResolutionRemarks = &remarks
	if ticket.PrimaryResolutionRemarks == nil {
		primary := remarks
		ticket.PrimaryResolutionRemarks = &primary
	}
	ticket.Status = domain.TicketStatusProcessed
	ticket.LastStatusChangeAt = &now
	if err := s.tickets.UpdateStatus(ctx, ticket, prior); err != nil {
		return nil, s.mapStatusErr(err, workflow.ActionResolve, prior, actor)
	}

	s.logActivity(ctx, &domain.TicketActivity{
		TicketID: ticket.ID,
		ActorID:  &actor.ID,
		Action:   domain.ActionResolutionAdded,
		Comment:  &remarks,
		Payload:  map[string]any{"attachments": attachmentIDs(attached)},
	})
	s.publishStatusChange(ctx, ticket, actor.ID, prior, false, remarks)
	s.logger.Info("ticket resolved", zap.String("ticket", ticket.TicketNumber), zap.String("actor", actor.ID))
	return ticket, nil
}

// ReopenTicket sends a processed ticket back to the counterpart team.
func (s *TicketService) ReopenTicket(ctx context.Context, actor *domain.User, ticketNumber, reason string, uploads []UploadInput) (*domain.Ticket, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, apperrors.NewValidationError("reopen reason required", nil)
	}
	ticket, err := s.loadTicket(ctx, ticketNumber)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(actor, ticket, workflow.ActionReopen); err != nil {
		return nil, err
	}

	if _, err := s.uploadBeforeMutate(ctx, actor, ticket, uploads, domain.UploadContextReopen); err != nil {
		return nil, err
	}

	prior := ticket.Status
	now := time.Now()
	reason = strings.TrimSpace(reason)
	ticket.ReopenReason = &reason
	ticket.Status = domain.TicketStatusReopened
	ticket.LastStatusChangeAt = &now
	if err := s.tickets.UpdateStatus(ctx, ticket, prior); err != nil {
		return nil, s.mapStatusErr(err, workflow.ActionReopen, prior, actor)
	}

	s.logActivity(ctx, &domain.TicketActivity{
		TicketID: ticket.ID,
		ActorID:  &actor.ID,
		Action:   domain.ActionReopened,
		Comment:  &reason,
	})
	s.publishStatusChange(ctx, ticket, actor.ID, prior, false, reason)
	s.logger.Info("ticket reopened", zap.String("ticket", ticket.TicketNumber), zap.String("actor", actor.ID))
	return ticket, nil
}

// CloseTicket is the creator team's acceptance of a submitted fix. Stamps
// resolved_at and ends the regular lifecycle.
func (s *TicketService) CloseTicket(ctx context.Context, actor *domain.User, ticketNumber string, acceptanceRemarks *string) (*domain.Ticket, error) {
	ticket, err := s.loadTicket(ctx, ticketNumber)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(actor, ticket, workflow.ActionClose); err != nil {
		return nil, err
	}

	prior := ticket.Status
	now := time.Now()
	if acceptanceRemarks != nil && strings.TrimSpace(*acceptanceRemarks) != "" {
		trimmed := strings.TrimSpace(*acceptanceRemarks)
		ticket.AcceptanceRemarks = &trimmed
	}
	ticket.Status = domain.TicketStatusClosed
	ticket.ResolvedAt = &now
	ticket.LastStatusChangeAt = &now
	if err := s.tickets.UpdateStatus(ctx, ticket, prior); err != nil {
		return nil, s.mapStatusErr(err, workflow.ActionClose, prior, actor)
	}

	s.logActivity(ctx, &domain.TicketActivity{
		TicketID: ticket.ID,
		ActorID:  &actor.ID,
		Action:   domain.ActionClosed,
		Comment:  ticket.AcceptanceRemarks,
	})
	s.publishStatusChange(ctx, ticket, actor.ID, prior, false, "")
	s.logger.Info("ticket closed", zap.String("ticket", ticket.TicketNumber), zap.String("actor", actor.ID))
	return ticket, nil
}

// ForceStatus is the admin escape hatch: any target status, mandatory reason,
// always audited as a distinct forced entry.
func (s *TicketService) ForceStatus(ctx context.Context, actor *domain.User, ticketNumber string, target domain.TicketStatus, reason string) (*domain.Ticket, error) {
	if actor.Role != domain.RoleAdmin {
		return nil, apperrors.NewForbidden("admin access required")
	}
	if strings.TrimSpace(reason) == "" {
		return nil, apperrors.NewValidationError("reason required for forced status change", nil)
	}
	if !domain.ValidStatus(target) {
		return nil, apperrors.NewValidationError("unknown status", map[string]any{"status": target})
	}
	ticket, err := s.loadTicket(ctx, ticketNumber)
	if err != nil {
		return nil, err
	}

	prior := ticket.Status
	now := time.Now()
	ticket.Status = target
	ticket.LastStatusChangeAt = &now
	if (target == domain.TicketStatusResolved || target == domain.TicketStatusClosed) && ticket.ResolvedAt == nil {
		ticket.ResolvedAt = &now
	}
	if err := s.tickets.UpdateStatus(ctx, ticket, prior); err != nil {
		return nil, s.mapStatusErr(err, "force", prior, actor)
	}

	reason = strings.TrimSpace(reason)
	s.logActivity(ctx, &domain.TicketActivity{
		TicketID: ticket.ID,
		ActorID:  &actor.ID,
		Action:   domain.ActionStatusForced,
		Comment:  &reason,
		Payload:  map[string]any{"old_status": prior, "new_status": target},
	})
	s.publishStatusChange(ctx, ticket, actor.ID, prior, true, reason)
	s.logger.Info("ticket status forced",
		zap.String("ticket", ticket.TicketNumber),
		zap.String("from", string(prior)),
		zap.String("to", string(target)),
		zap.String("actor", actor.ID))
	return ticket, nil
}

// DeleteTicket removes a ticket entirely. Admin only.
func (s *TicketService) DeleteTicket(ctx context.Context, actor *domain.User, ticketNumber string) error {
	if actor.Role != domain.RoleAdmin {
		return apperrors.NewForbidden("admin access required")
	}
	ticket, err := s.loadTicket(ctx, ticketNumber)
	if err != nil {
		return err
	}
	if err := s.tickets.Delete(ctx, ticket.ID); err != nil {
		return apperrors.MapError(err)
	}
	s.logger.Info("ticket deleted", zap.String("ticket", ticket.TicketNumber), zap.String("actor", actor.ID))
	return nil
}

// ListActivities returns the ticket timeline in creation order.
func (s *TicketService) ListActivities(ctx context.Context, actor *domain.User, ticketNumber string) ([]domain.TicketActivity, error) {
	ticket, err := s.loadTicket(ctx, ticketNumber)
	if err != nil {
		return nil, err
	}
	if !s.canView(actor, ticket) {
		return nil, apperrors.NewForbidden("access denied")
	}
	activities, err := s.activities.ListByTicket(ctx, ticket.ID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return activities, nil
}

func (s *TicketService) loadTicket(ctx context.Context, ticketNumber string) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByNumber(ctx, ticketNumber)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_number": ticketNumber})
		}
		return nil, apperrors.MapError(err)
	}
	return ticket, nil
}

// authorize applies the state table plus the bidirectional role policy:
// a missing edge is an invalid transition; an existing edge driven by the
// wrong team is an authorization failure.
func (s *TicketService) authorize(actor *domain.User, ticket *domain.Ticket, action workflow.Action) error {
	if _, ok := workflow.Target(action, ticket.Status); !ok {
		return apperrors.NewInvalidTransition(string(action), string(ticket.Status), string(actor.Role))
	}
	if !workflow.CanPerform(actor.Role, actor.Role == domain.RoleAdmin, ticket.CreatorRole, ticket.Status, action) {
		return apperrors.NewForbidden(fmt.Sprintf("role %s may not %s this ticket", actor.Role, action))
	}
	return nil
}

func (s *TicketService) canView(actor *domain.User, ticket *domain.Ticket) bool {
	if actor.Role != domain.RoleGrowth {
		return true
	}
	return ticket.CreatedBy == actor.ID || actor.IsManager
}

// uploadBeforeMutate writes any accompanying files before the status change
// so a failed upload aborts the whole operation with the ticket untouched.
func (s *TicketService) uploadBeforeMutate(ctx context.Context, actor *domain.User, ticket *domain.Ticket, uploads []UploadInput, uploadCtx domain.UploadContext) ([]domain.Attachment, error) {
	if len(uploads) == 0 || s.attachments == nil {
		return nil, nil
	}
	attached, err := s.attachments.Upload(ctx, actor, ticket, uploads, uploadCtx)
	if err != nil {
		return nil, err
	}
	return attached, nil
}

// mapStatusErr turns a lost CAS race into the same invalid-transition error a
// stale client would have gotten had it read the new status first.
func (s *TicketService) mapStatusErr(err error, action workflow.Action, prior domain.TicketStatus, actor *domain.User) error {
	if errors.Is(err, repository.ErrStatusConflict) {
		return apperrors.NewInvalidTransition(string(action), string(prior), string(actor.Role))
	}
	return apperrors.MapError(err)
}

// logActivity appends an audit entry. A failure here after a committed
// mutation is non-fatal but is logged and counted for alerting, since it
// leaves a hole in the timeline.
func (s *TicketService) logActivity(ctx context.Context, activity *domain.TicketActivity) {
	if err := s.activities.Create(ctx, activity); err != nil {
		s.metrics.RecordAuditFailure()
		s.logger.Error("activity append failed",
			zap.String("ticket_id", activity.TicketID),
			zap.String("action", string(activity.Action)),
			zap.Error(err))
	}
}

func (s *TicketService) publishStatusChange(ctx context.Context, ticket *domain.Ticket, actorID string, old domain.TicketStatus, forced bool, comment string) {
	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketStatusChanged,
		TicketID: ticket.ID,
		ActorID:  &actorID,
		Payload: events.TicketStatusChangedPayload{
			OldStatus: old,
			NewStatus: ticket.Status,
			Forced:    forced,
			Comment:   comment,
		},
	})
}

func (s *TicketService) publishEvent(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	_ = s.dispatcher.Publish(ctx, event)
}

func (s *TicketService) nextTicketNumber(ctx context.Context, role domain.Role) (string, error) {
	prefix := "GROW"
	if role == domain.RoleOps {
		prefix = "OPS"
	}
	seq, err := s.tickets.NextTicketNumber(ctx, prefix)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s-%04d", prefix, seq), nil
}

func attachmentIDs(attachments []domain.Attachment) []string {
	ids := make([]string, 0, len(attachments))
	for _, a := range attachments {
		ids = append(ids, a.ID)
	}
	return ids
}

func strPtr(s string) *string {
	return &s
}
