package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bridgedesk/escalation-service/internal/domain"
	apperrors "github.com/bridgedesk/escalation-service/pkg/util/errorutil"
)

func TestAssignTicketRules(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	growth := env.addUser(domain.RoleGrowth)
	opsManager := env.addUser(domain.RoleOps, asManager)
	opsMember := env.addUser(domain.RoleOps, func(u *domain.User) { u.Email = "member@example.com" })
	growthMember := env.addUser(domain.RoleGrowth, func(u *domain.User) { u.Email = "gm@example.com" })

	ticket := env.createTicket(t, growth)

	// Non-managers cannot assign.
	_, err := env.assignments.AssignTicket(ctx, opsMember, ticket.TicketNumber, opsMember.ID, nil)
	assert.True(t, apperrors.HasCode(err, "FORBIDDEN"))

	// Assignee must sit on the resolving team.
	_, err = env.assignments.AssignTicket(ctx, opsManager, ticket.TicketNumber, growthMember.ID, nil)
	assert.True(t, apperrors.HasCode(err, "VALIDATION_FAILED"))

	// Managers do not take assignments themselves.
	_, err = env.assignments.AssignTicket(ctx, opsManager, ticket.TicketNumber, opsManager.ID, nil)
	assert.True(t, apperrors.HasCode(err, "VALIDATION_FAILED"))

	assigned, err := env.assignments.AssignTicket(ctx, opsManager, ticket.TicketNumber, opsMember.ID, nil)
	require.NoError(t, err)
	require.NotNil(t, assigned.CurrentAssignee)
	assert.Equal(t, opsMember.ID, *assigned.CurrentAssignee)
	assert.Equal(t, []domain.ActivityAction{domain.ActionCreated, domain.ActionAssigned}, env.activities.actions(ticket.ID))
}

func TestReassignmentAllowedWhileInFlight(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	growth := env.addUser(domain.RoleGrowth)
	opsManager := env.addUser(domain.RoleOps, asManager)
	first := env.addUser(domain.RoleOps, func(u *domain.User) { u.Email = "first@example.com" })
	second := env.addUser(domain.RoleOps, func(u *domain.User) { u.Email = "second@example.com" })

	ticket := env.createTicket(t, growth)
	_, err := env.assignments.AssignTicket(ctx, opsManager, ticket.TicketNumber, first.ID, nil)
	require.NoError(t, err)

	reassigned, err := env.assignments.AssignTicket(ctx, opsManager, ticket.TicketNumber, second.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, second.ID, *reassigned.CurrentAssignee)
	actions := env.activities.actions(ticket.ID)
	assert.Equal(t, domain.ActionReassigned, actions[len(actions)-1])

	// Closed tickets leave the assignment pool.
	_, err = env.ticketSvc.ResolveTicket(ctx, second, ticket.TicketNumber, "done", nil)
	require.NoError(t, err)
	_, err = env.ticketSvc.CloseTicket(ctx, growth, ticket.TicketNumber, nil)
	require.NoError(t, err)
	_, err = env.assignments.AssignTicket(ctx, opsManager, ticket.TicketNumber, first.ID, nil)
	assert.True(t, apperrors.HasCode(err, "CONFLICT"))
}

func TestAssignRejectsInactiveAssignee(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	growth := env.addUser(domain.RoleGrowth)
	opsManager := env.addUser(domain.RoleOps, asManager)
	inactive := env.addUser(domain.RoleOps, asInactive, func(u *domain.User) { u.Email = "gone@example.com" })

	ticket := env.createTicket(t, growth)
	_, err := env.assignments.AssignTicket(ctx, opsManager, ticket.TicketNumber, inactive.ID, nil)
	assert.True(t, apperrors.HasCode(err, "CONFLICT"))
}

func TestAutoAssignPicksLeastLoadedWithDeterministicTieBreak(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	growth := env.addUser(domain.RoleGrowth)

	older := env.addUser(domain.RoleOps, func(u *domain.User) {
		u.Email = "older@example.com"
		u.CreatedAt = time.Now().Add(-2 * time.Hour)
	})
	env.addUser(domain.RoleOps, func(u *domain.User) {
		u.Email = "newer@example.com"
		u.CreatedAt = time.Now().Add(-1 * time.Hour)
	})
	env.addUser(domain.RoleOps, asInactive, func(u *domain.User) {
		u.Email = "inactive@example.com"
		u.CreatedAt = time.Now().Add(-3 * time.Hour)
	})

	ticket := env.createTicket(t, growth)
	assigneeID, err := env.assignments.AutoAssign(ctx, ticket)
	require.NoError(t, err)
	// Equal load: seniority wins, inactive members never considered.
	assert.Equal(t, older.ID, assigneeID)
}

func TestAutoAssignNoCandidates(t *testing.T) {
	env := newTestEnv(t)
	growth := env.addUser(domain.RoleGrowth)
	env.addUser(domain.RoleOps, asInactive)

	ticket := env.createTicket(t, growth)
	_, err := env.assignments.AutoAssign(context.Background(), ticket)
	assert.True(t, apperrors.HasCode(err, "CONFLICT"))
}

func TestToggleUserActive(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	opsManager := env.addUser(domain.RoleOps, asManager)
	growthManager := env.addUser(domain.RoleGrowth, asManager, func(u *domain.User) { u.Email = "gmgr@example.com" })
	member := env.addUser(domain.RoleOps, func(u *domain.User) { u.Email = "member@example.com" })
	admin := env.addUser(domain.RoleAdmin)

	// Managers only touch their own team.
	_, err := env.assignments.ToggleUserActive(ctx, growthManager, member.ID)
	assert.True(t, apperrors.HasCode(err, "FORBIDDEN"))

	toggled, err := env.assignments.ToggleUserActive(ctx, opsManager, member.ID)
	require.NoError(t, err)
	assert.False(t, toggled.IsActive)

	toggled, err = env.assignments.ToggleUserActive(ctx, admin, member.ID)
	require.NoError(t, err)
	assert.True(t, toggled.IsActive)

	_, err = env.assignments.ToggleUserActive(ctx, opsManager, opsManager.ID)
	assert.True(t, apperrors.HasCode(err, "VALIDATION_FAILED"))
}

func TestDeactivatedMemberKeepsTickets(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	growth := env.addUser(domain.RoleGrowth)
	opsManager := env.addUser(domain.RoleOps, asManager)
	member := env.addUser(domain.RoleOps, func(u *domain.User) { u.Email = "member@example.com" })

	ticket := env.createTicket(t, growth)
	_, err := env.assignments.AssignTicket(ctx, opsManager, ticket.TicketNumber, member.ID, nil)
	require.NoError(t, err)

	_, err = env.assignments.ToggleUserActive(ctx, opsManager, member.ID)
	require.NoError(t, err)

	stored, err := env.tickets.GetByID(ctx, ticket.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.CurrentAssignee)
	assert.Equal(t, member.ID, *stored.CurrentAssignee)

	// But they drop out of future assignment pools.
	next := env.createTicket(t, growth)
	_, err = env.assignments.AutoAssign(ctx, next)
	assert.True(t, apperrors.HasCode(err, "CONFLICT"))
}
