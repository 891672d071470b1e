package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/bridgedesk/escalation-service/internal/domain"
	"github.com/bridgedesk/escalation-service/internal/events"
	"github.com/bridgedesk/escalation-service/internal/repository"
	apperrors "github.com/bridgedesk/escalation-service/pkg/util/errorutil"
)

// AssignmentService routes tickets to members of the acting team, either by
// a manager's hand or automatically on creation.
type AssignmentService struct {
	tickets    repository.TicketRepository
	users      repository.UserRepository
	activities repository.ActivityRepository
	dispatcher events.Dispatcher
	logger     *zap.Logger
}

// NewAssignmentService constructs the service.
func NewAssignmentService(
	tickets repository.TicketRepository,
	users repository.UserRepository,
	activities repository.ActivityRepository,
	dispatcher events.Dispatcher,
	logger *zap.Logger,
) *AssignmentService {
	return &AssignmentService{
		tickets:    tickets,
		users:      users,
		activities: activities,
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// AssignTicket puts a ticket on a team member's queue. The assignee must be
// an active non-manager on the team opposite the ticket's creator; the acting
// manager must run that team. Re-assignment is allowed while the ticket is
// still in flight.
func (s *AssignmentService) AssignTicket(ctx context.Context, actor *domain.User, ticketNumber, assigneeID string, notes *string) (*domain.Ticket, error) {
	if actor.Role != domain.RoleAdmin && !actor.IsManager {
		return nil, apperrors.NewForbidden("manager access required")
	}
	ticket, err := s.loadTicket(ctx, ticketNumber)
	if err != nil {
		return nil, err
	}
	if ticket.Status == domain.TicketStatusClosed || ticket.Status == domain.TicketStatusResolved {
		return nil, apperrors.NewConflict("ticket is no longer assignable", map[string]any{"status": ticket.Status})
	}

	actingTeam := ticket.CreatorRole.Opposite()
	if actor.Role != domain.RoleAdmin && actor.Role != actingTeam {
		return nil, apperrors.NewForbidden("ticket belongs to the other team's queue")
	}

	assignee, err := s.users.GetByID(ctx, assigneeID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("user", map[string]any{"user_id": assigneeID})
		}
		return nil, apperrors.MapError(err)
	}
	if assignee.Role != actingTeam {
		return nil, apperrors.NewValidationError("assignee must belong to the resolving team", map[string]any{
			"assignee_role": assignee.Role,
			"required_role": actingTeam,
		})
	}
	if !assignee.IsActive {
		return nil, apperrors.NewConflict("assignee is deactivated", map[string]any{"user_id": assignee.ID})
	}
	if assignee.IsManager {
		return nil, apperrors.NewValidationError("managers do not take ticket assignments", nil)
	}

	action := domain.ActionAssigned
	if ticket.CurrentAssignee != nil {
		action = domain.ActionReassigned
	}
	ticket.CurrentAssignee = &assignee.ID
	if err := s.tickets.UpdateAssignee(ctx, ticket.ID, &assignee.ID); err != nil {
		return nil, apperrors.MapError(err)
	}

	s.logActivity(ctx, &domain.TicketActivity{
		TicketID: ticket.ID,
		ActorID:  &actor.ID,
		Action:   action,
		Comment:  notes,
		Payload:  map[string]any{"assignee_id": assignee.ID},
	})
	s.publishAssigned(ctx, ticket, &actor.ID, &assignee.ID, false)
	s.logger.Info("ticket assigned",
		zap.String("ticket", ticket.TicketNumber),
		zap.String("assignee", assignee.ID),
		zap.String("actor", actor.ID))
	return ticket, nil
}

// AutoAssign picks the active team member with the fewest active tickets,
// breaking ties by seniority then id so the choice is deterministic. The
// count is read at selection time; a concurrent burst of creations may land
// on the same member, which is acceptable.
func (s *AssignmentService) AutoAssign(ctx context.Context, ticket *domain.Ticket) (string, error) {
	actingTeam := ticket.CreatorRole.Opposite()
	candidates, err := s.users.ListAssignmentCandidates(ctx, actingTeam)
	if err != nil {
		return "", apperrors.MapError(err)
	}
	if len(candidates) == 0 {
		return "", apperrors.NewConflict("no active members available for assignment", map[string]any{"team": actingTeam})
	}
	chosen := candidates[0]

	ticket.CurrentAssignee = &chosen.ID
	if err := s.tickets.UpdateAssignee(ctx, ticket.ID, &chosen.ID); err != nil {
		return "", apperrors.MapError(err)
	}

	s.logActivity(ctx, &domain.TicketActivity{
		TicketID: ticket.ID,
		Action:   domain.ActionAssigned,
		Comment:  strPtr("Auto-assigned on creation"),
		Payload:  map[string]any{"assignee_id": chosen.ID, "auto": true},
	})
	s.publishAssigned(ctx, ticket, nil, &chosen.ID, true)
	s.logger.Info("ticket auto-assigned",
		zap.String("ticket", ticket.TicketNumber),
		zap.String("assignee", chosen.ID))
	return chosen.ID, nil
}

// ToggleAutoAssign flips the acting manager's auto-assignment preference for
// incoming tickets.
func (s *AssignmentService) ToggleAutoAssign(ctx context.Context, actor *domain.User, enabled bool) error {
	if actor.Role != domain.RoleAdmin && !actor.IsManager {
		return apperrors.NewForbidden("manager access required")
	}
	if err := s.users.SetAutoAssign(ctx, actor.ID, enabled); err != nil {
		return apperrors.MapError(err)
	}
	s.logger.Info("auto-assign toggled", zap.String("manager", actor.ID), zap.Bool("enabled", enabled))
	return nil
}

// ToggleUserActive flips a team member's active flag. Deactivated members
// keep their current tickets but drop out of assignment pools and cannot log
// in; admin may toggle anyone, a manager only their own team.
func (s *AssignmentService) ToggleUserActive(ctx context.Context, actor *domain.User, userID string) (*domain.User, error) {
	target, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("user", map[string]any{"user_id": userID})
		}
		return nil, apperrors.MapError(err)
	}
	if actor.Role != domain.RoleAdmin {
		if !actor.IsManager || actor.Role != target.Role {
			return nil, apperrors.NewForbidden("only the team's manager or an admin may change member status")
		}
	}
	if target.ID == actor.ID {
		return nil, apperrors.NewValidationError("cannot change your own active status", nil)
	}

	target.IsActive = !target.IsActive
	if err := s.users.SetActive(ctx, target.ID, target.IsActive); err != nil {
		return nil, apperrors.MapError(err)
	}
	s.logger.Info("user active flag toggled",
		zap.String("user", target.ID),
		zap.Bool("active", target.IsActive),
		zap.String("actor", actor.ID))
	return target, nil
}

func (s *AssignmentService) loadTicket(ctx context.Context, ticketNumber string) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByNumber(ctx, ticketNumber)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_number": ticketNumber})
		}
		return nil, apperrors.MapError(err)
	}
	return ticket, nil
}

func (s *AssignmentService) logActivity(ctx context.Context, activity *domain.TicketActivity) {
	if err := s.activities.Create(ctx, activity); err != nil {
		s.logger.Error("activity append failed",
			zap.String("ticket_id", activity.TicketID),
			zap.String("action", string(activity.Action)),
			zap.Error(err))
	}
}

func (s *AssignmentService) publishAssigned(ctx context.Context, ticket *domain.Ticket, actorID, assigneeID *string, auto bool) {
	if s.dispatcher == nil {
		return
	}
	_ = s.dispatcher.Publish(ctx, events.Event{
		ID:        uuid.NewString(),
		Type:      events.EventTicketAssigned,
		TicketID:  ticket.ID,
		ActorID:   actorID,
		Timestamp: time.Now(),
		Payload:   events.TicketAssignedPayload{AssigneeID: assigneeID, Auto: auto},
	})
}
