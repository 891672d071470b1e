package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/bridgedesk/escalation-service/internal/domain"
	"github.com/bridgedesk/escalation-service/internal/events"
	"github.com/bridgedesk/escalation-service/internal/observability"
	apperrors "github.com/bridgedesk/escalation-service/pkg/util/errorutil"
)

type testEnv struct {
	tickets     *fakeTicketRepo
	users       *fakeUserRepo
	activities  *fakeActivityRepo
	attachRepo  *fakeAttachmentRepo
	deletions   *fakeDeletionRepo
	blobs       *memBlobStore
	metrics     *observability.Metrics
	attachments *AttachmentService
	assignments *AssignmentService
	deletionSvc *DeletionService
	ticketSvc   *TicketService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := zap.NewNop()
	dispatcher := events.NewInMemoryDispatcher()

	env := &testEnv{
		tickets:    newFakeTicketRepo(),
		activities: &fakeActivityRepo{},
		attachRepo: newFakeAttachmentRepo(),
		deletions:  newFakeDeletionRepo(),
		blobs:      newMemBlobStore(),
		metrics:    observability.NewMetrics(),
	}
	env.users = newFakeUserRepo(env.tickets)
	env.attachments = NewAttachmentService(env.attachRepo, env.tickets, env.activities, env.blobs, dispatcher, logger)
	env.assignments = NewAssignmentService(env.tickets, env.users, env.activities, dispatcher, logger)
	env.deletionSvc = NewDeletionService(env.deletions, env.attachments, dispatcher, logger, testOTPTTL)
	env.ticketSvc = NewTicketService(TicketDependencies{
		TicketRepo:   env.tickets,
		UserRepo:     env.users,
		ActivityRepo: env.activities,
		Attachments:  env.attachments,
		Assignments:  env.assignments,
		Dispatcher:   dispatcher,
		Logger:       logger,
		Metrics:      env.metrics,
	})
	return env
}

func (env *testEnv) addUser(role domain.Role, opts ...func(*domain.User)) *domain.User {
	user := &domain.User{
		Email:    string(role) + "@example.com",
		Role:     role,
		IsActive: true,
	}
	for _, opt := range opts {
		opt(user)
	}
	return env.users.add(user)
}

func asManager(u *domain.User)    { u.IsManager = true }
func asInactive(u *domain.User)   { u.IsActive = false }
func withAutoAssign(u *domain.User) {
	u.IsManager = true
	u.AutoAssignEnabled = true
}

func (env *testEnv) createTicket(t *testing.T, creator *domain.User) *domain.Ticket {
	t.Helper()
	ticket, err := env.ticketSvc.CreateTicket(context.Background(), creator, TicketCreateInput{
		BrandName: "acme",
		Priority:  domain.TicketPriorityHigh,
	})
	require.NoError(t, err)
	return ticket
}

func TestTicketLifecycle(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	growth := env.addUser(domain.RoleGrowth)
	ops := env.addUser(domain.RoleOps)

	ticket := env.createTicket(t, growth)
	assert.Equal(t, "GROW-0001", ticket.TicketNumber)
	assert.Equal(t, domain.TicketStatusOpen, ticket.Status)
	assert.Equal(t, domain.RoleGrowth, ticket.CreatorRole)

	ticket, err := env.ticketSvc.ResolveTicket(ctx, ops, ticket.TicketNumber, "fixed X", nil)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusProcessed, ticket.Status)
	require.NotNil(t, ticket.ResolutionRemarks)
	assert.Equal(t, "fixed X", *ticket.ResolutionRemarks)
	require.NotNil(t, ticket.PrimaryResolutionRemarks)
	assert.Equal(t, "fixed X", *ticket.PrimaryResolutionRemarks)
	assert.Nil(t, ticket.ResolvedAt)

	ticket, err = env.ticketSvc.ReopenTicket(ctx, growth, ticket.TicketNumber, "still broken", nil)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusReopened, ticket.Status)
	require.NotNil(t, ticket.ReopenReason)
	assert.Equal(t, "still broken", *ticket.ReopenReason)

	ticket, err = env.ticketSvc.ResolveTicket(ctx, ops, ticket.TicketNumber, "fixed Y", nil)
	require.NoError(t, err)
	assert.Equal(t, "fixed Y", *ticket.ResolutionRemarks)
	// First resolution text survives later cycles.
	assert.Equal(t, "fixed X", *ticket.PrimaryResolutionRemarks)

	remarks := "works now"
	ticket, err = env.ticketSvc.CloseTicket(ctx, growth, ticket.TicketNumber, &remarks)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusClosed, ticket.Status)
	require.NotNil(t, ticket.ResolvedAt)
	require.NotNil(t, ticket.AcceptanceRemarks)
	assert.Equal(t, "works now", *ticket.AcceptanceRemarks)

	assert.Equal(t, []domain.ActivityAction{
		domain.ActionCreated,
		domain.ActionResolutionAdded,
		domain.ActionReopened,
		domain.ActionResolutionAdded,
		domain.ActionClosed,
	}, env.activities.actions(ticket.ID))
}

func TestTicketNumberPrefixFollowsCreatorTeam(t *testing.T) {
	env := newTestEnv(t)
	growth := env.addUser(domain.RoleGrowth)
	ops := env.addUser(domain.RoleOps)

	assert.Equal(t, "GROW-0001", env.createTicket(t, growth).TicketNumber)
	assert.Equal(t, "GROW-0002", env.createTicket(t, growth).TicketNumber)
	assert.Equal(t, "OPS-0001", env.createTicket(t, ops).TicketNumber)
}

func TestResolveRequiresOppositeTeam(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	growth := env.addUser(domain.RoleGrowth)
	ops := env.addUser(domain.RoleOps)

	ticket := env.createTicket(t, growth)

	_, err := env.ticketSvc.ResolveTicket(ctx, growth, ticket.TicketNumber, "self serve", nil)
	assert.True(t, apperrors.HasCode(err, "FORBIDDEN"))

	ticket, err = env.ticketSvc.ResolveTicket(ctx, ops, ticket.TicketNumber, "done", nil)
	require.NoError(t, err)

	// Reopen and close belong to the creator's team.
	_, err = env.ticketSvc.ReopenTicket(ctx, ops, ticket.TicketNumber, "nope", nil)
	assert.True(t, apperrors.HasCode(err, "FORBIDDEN"))
	_, err = env.ticketSvc.CloseTicket(ctx, ops, ticket.TicketNumber, nil)
	assert.True(t, apperrors.HasCode(err, "FORBIDDEN"))
}

func TestStateTableRejectsIllegalEdges(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	growth := env.addUser(domain.RoleGrowth)
	ops := env.addUser(domain.RoleOps)

	ticket := env.createTicket(t, growth)

	// Close and reopen need a processed ticket.
	_, err := env.ticketSvc.CloseTicket(ctx, growth, ticket.TicketNumber, nil)
	assert.True(t, apperrors.HasCode(err, "INVALID_TRANSITION"))
	_, err = env.ticketSvc.ReopenTicket(ctx, growth, ticket.TicketNumber, "why", nil)
	assert.True(t, apperrors.HasCode(err, "INVALID_TRANSITION"))

	_, err = env.ticketSvc.ResolveTicket(ctx, ops, ticket.TicketNumber, "done", nil)
	require.NoError(t, err)

	// Resolving an already processed ticket is illegal for everyone.
	_, err = env.ticketSvc.ResolveTicket(ctx, ops, ticket.TicketNumber, "again", nil)
	assert.True(t, apperrors.HasCode(err, "INVALID_TRANSITION"))

	_, err = env.ticketSvc.CloseTicket(ctx, growth, ticket.TicketNumber, nil)
	require.NoError(t, err)

	// Closed is terminal for workflow actions.
	_, err = env.ticketSvc.ReopenTicket(ctx, growth, ticket.TicketNumber, "late", nil)
	assert.True(t, apperrors.HasCode(err, "INVALID_TRANSITION"))
	_, err = env.ticketSvc.ResolveTicket(ctx, ops, ticket.TicketNumber, "late", nil)
	assert.True(t, apperrors.HasCode(err, "INVALID_TRANSITION"))
}

func TestResolveRequiresRemarks(t *testing.T) {
	env := newTestEnv(t)
	growth := env.addUser(domain.RoleGrowth)
	ops := env.addUser(domain.RoleOps)
	ticket := env.createTicket(t, growth)

	_, err := env.ticketSvc.ResolveTicket(context.Background(), ops, ticket.TicketNumber, "   ", nil)
	assert.True(t, apperrors.HasCode(err, "VALIDATION_FAILED"))
}

func TestForceStatus(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	growth := env.addUser(domain.RoleGrowth)
	admin := env.addUser(domain.RoleAdmin)

	ticket := env.createTicket(t, growth)

	_, err := env.ticketSvc.ForceStatus(ctx, growth, ticket.TicketNumber, domain.TicketStatusClosed, "impatient")
	assert.True(t, apperrors.HasCode(err, "FORBIDDEN"))

	_, err = env.ticketSvc.ForceStatus(ctx, admin, ticket.TicketNumber, domain.TicketStatusClosed, "")
	assert.True(t, apperrors.HasCode(err, "VALIDATION_FAILED"))

	ticket, err = env.ticketSvc.ForceStatus(ctx, admin, ticket.TicketNumber, domain.TicketStatusResolved, "stale escalation")
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusResolved, ticket.Status)
	assert.NotNil(t, ticket.ResolvedAt)

	actions := env.activities.actions(ticket.ID)
	assert.Equal(t, domain.ActionStatusForced, actions[len(actions)-1])
}

func TestUploadFailureLeavesTicketUntouched(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	growth := env.addUser(domain.RoleGrowth)
	ops := env.addUser(domain.RoleOps)
	ticket := env.createTicket(t, growth)

	env.blobs.fail = errors.New("storage down")
	uploads := []UploadInput{{Filename: "proof.png", Data: []byte("png-bytes")}}
	_, err := env.ticketSvc.ResolveTicket(ctx, ops, ticket.TicketNumber, "fixed", uploads)
	assert.True(t, apperrors.HasCode(err, "UPLOAD_FAILED"))

	stored, getErr := env.ticketSvc.GetTicket(ctx, ops, ticket.TicketNumber)
	require.NoError(t, getErr)
	assert.Equal(t, domain.TicketStatusOpen, stored.Status)
	assert.Nil(t, stored.ResolutionRemarks)

	attachments, listErr := env.attachRepo.ListByTicket(ctx, ticket.ID)
	require.NoError(t, listErr)
	assert.Empty(t, attachments)
}

func TestGrowthVisibilityScoping(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.addUser(domain.RoleGrowth)
	bob := env.addUser(domain.RoleGrowth, func(u *domain.User) { u.Email = "bob@example.com" })
	ops := env.addUser(domain.RoleOps)

	mine := env.createTicket(t, alice)
	env.createTicket(t, bob)

	tickets, total, err := env.ticketSvc.ListTickets(ctx, alice, TicketListFilter{})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, tickets, 1)
	assert.Equal(t, mine.ID, tickets[0].ID)

	_, _, err = env.ticketSvc.ListTickets(ctx, ops, TicketListFilter{})
	require.NoError(t, err)

	_, err = env.ticketSvc.GetTicket(ctx, bob, mine.TicketNumber)
	assert.True(t, apperrors.HasCode(err, "FORBIDDEN"))

	_, err = env.ticketSvc.GetTicket(ctx, ops, mine.TicketNumber)
	require.NoError(t, err)
}

func TestAuditFailureDoesNotBlockMutation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	growth := env.addUser(domain.RoleGrowth)
	ops := env.addUser(domain.RoleOps)
	ticket := env.createTicket(t, growth)

	env.activities.failing = true
	resolved, err := env.ticketSvc.ResolveTicket(ctx, ops, ticket.TicketNumber, "fixed", nil)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusProcessed, resolved.Status)
	assert.Greater(t, env.metrics.AuditFailures(), int64(0))
}

func TestAutoAssignOnCreate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	growth := env.addUser(domain.RoleGrowth)
	env.addUser(domain.RoleOps, withAutoAssign)
	busy := env.addUser(domain.RoleOps, func(u *domain.User) { u.Email = "busy@example.com" })
	idle := env.addUser(domain.RoleOps, func(u *domain.User) { u.Email = "idle@example.com" })

	// Pre-load one active ticket on busy.
	seed := env.createTicket(t, growth)
	_, err := env.assignments.AssignTicket(ctx, env.addUser(domain.RoleOps, asManager), seed.TicketNumber, busy.ID, nil)
	require.NoError(t, err)

	ticket := env.createTicket(t, growth)
	stored, err := env.tickets.GetByID(ctx, ticket.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.CurrentAssignee)
	assert.Equal(t, idle.ID, *stored.CurrentAssignee)
}
