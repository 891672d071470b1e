package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/bridgedesk/escalation-service/internal/domain"
	"github.com/bridgedesk/escalation-service/internal/repository"
	apperrors "github.com/bridgedesk/escalation-service/pkg/util/errorutil"
)

// ManagerService serves team dashboards: member rosters with workload,
// incoming and outgoing queues, and aggregate metrics.
type ManagerService struct {
	tickets repository.TicketRepository
	users   repository.UserRepository
	metrics repository.MetricsRepository
	logger  *zap.Logger
}

// NewManagerService constructs the service.
func NewManagerService(
	tickets repository.TicketRepository,
	users repository.UserRepository,
	metrics repository.MetricsRepository,
	logger *zap.Logger,
) *ManagerService {
	return &ManagerService{tickets: tickets, users: users, metrics: metrics, logger: logger}
}

// TeamMembers lists a team's non-manager members with their active-ticket
// counts. A manager sees their own team; admin may name any team.
func (s *ManagerService) TeamMembers(ctx context.Context, actor *domain.User, team domain.Role) ([]domain.TeamMember, error) {
	team, err := s.resolveTeam(actor, team)
	if err != nil {
		return nil, err
	}
	members, err := s.users.ListTeamMembers(ctx, team)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return members, nil
}

// IncomingTickets is the queue the manager's team is expected to resolve:
// tickets filed by the opposite team, still in flight.
func (s *ManagerService) IncomingTickets(ctx context.Context, actor *domain.User, team domain.Role, limit, offset int) ([]domain.Ticket, int, error) {
	team, err := s.resolveTeam(actor, team)
	if err != nil {
		return nil, 0, err
	}
	creatorTeam := team.Opposite()
	return s.listQueue(ctx, repository.TicketFilter{
		CreatedByTeam:   &creatorTeam,
		ExcludeStatuses: []domain.TicketStatus{domain.TicketStatusClosed, domain.TicketStatusResolved},
		Limit:           limit,
		Offset:          offset,
	})
}

// OutgoingTickets is the team's own filings still waiting on the other side.
func (s *ManagerService) OutgoingTickets(ctx context.Context, actor *domain.User, team domain.Role, limit, offset int) ([]domain.Ticket, int, error) {
	team, err := s.resolveTeam(actor, team)
	if err != nil {
		return nil, 0, err
	}
	return s.listQueue(ctx, repository.TicketFilter{
		CreatedByTeam:   &team,
		ExcludeStatuses: []domain.TicketStatus{domain.TicketStatusClosed, domain.TicketStatusResolved},
		Limit:           limit,
		Offset:          offset,
	})
}

// UnassignedTickets is the incoming queue with nobody on it yet.
func (s *ManagerService) UnassignedTickets(ctx context.Context, actor *domain.User, team domain.Role) ([]domain.Ticket, error) {
	team, err := s.resolveTeam(actor, team)
	if err != nil {
		return nil, err
	}
	creatorTeam := team.Opposite()
	tickets, err := s.tickets.ListWithFilter(ctx, repository.TicketFilter{
		CreatedByTeam:   &creatorTeam,
		Unassigned:      true,
		ExcludeStatuses: []domain.TicketStatus{domain.TicketStatusClosed, domain.TicketStatusResolved},
	})
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return tickets, nil
}

// TeamMetrics aggregates lifecycle counts, thirty-day resolution time and
// reopen rate for tickets filed by the given team.
func (s *ManagerService) TeamMetrics(ctx context.Context, actor *domain.User, team domain.Role) (*domain.TeamMetrics, error) {
	team, err := s.resolveTeam(actor, team)
	if err != nil {
		return nil, err
	}
	metrics, err := s.metrics.TeamTicketCounts(ctx, team)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	if metrics.AvgResolutionTimeHours, err = s.metrics.AvgResolutionHours(ctx, team); err != nil {
		return nil, apperrors.MapError(err)
	}
	if metrics.ReopenRate, err = s.metrics.ReopenRate(ctx, team); err != nil {
		return nil, apperrors.MapError(err)
	}
	members, err := s.users.ListTeamMembers(ctx, team)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	metrics.TeamMembers = members
	return &metrics, nil
}

func (s *ManagerService) listQueue(ctx context.Context, filter repository.TicketFilter) ([]domain.Ticket, int, error) {
	tickets, err := s.tickets.ListWithFilter(ctx, filter)
	if err != nil {
		return nil, 0, apperrors.MapError(err)
	}
	total, err := s.tickets.CountWithFilter(ctx, filter)
	if err != nil {
		return nil, 0, apperrors.MapError(err)
	}
	return tickets, total, nil
}

// resolveTeam settles which team a request is about. Managers are pinned to
// their own team; admin must name one.
func (s *ManagerService) resolveTeam(actor *domain.User, requested domain.Role) (domain.Role, error) {
	if actor.Role == domain.RoleAdmin {
		if !requested.IsTeam() {
			return "", apperrors.NewValidationError("team required", map[string]any{"team": requested})
		}
		return requested, nil
	}
	if !actor.IsManager {
		return "", apperrors.NewForbidden("manager access required")
	}
	return actor.Role, nil
}
