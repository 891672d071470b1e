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

func TestPhaseDerivation(t *testing.T) {
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	reopenAt := base.Add(2 * time.Hour)

	cases := []struct {
		name        string
		uploadCtx   domain.UploadContext
		uploadedAt  time.Time
		firstReopen *time.Time
		want        domain.AttachmentPhase
	}{
		{"initial upload", domain.UploadContextInitial, base, &reopenAt, domain.PhaseInitial},
		{"reopen upload", domain.UploadContextReopen, reopenAt.Add(time.Minute), &reopenAt, domain.PhaseReopen},
		{"resolution before reopen", domain.UploadContextResolution, base.Add(time.Hour), &reopenAt, domain.PhasePrimaryResolution},
		{"resolution never reopened", domain.UploadContextResolution, base.Add(time.Hour), nil, domain.PhasePrimaryResolution},
		{"resolution after reopen", domain.UploadContextResolution, reopenAt.Add(time.Hour), &reopenAt, domain.PhaseUpdatedResolution},
		{"additional before reopen", domain.UploadContextAdditional, base.Add(time.Minute), &reopenAt, domain.PhaseInitial},
		{"additional after reopen", domain.UploadContextAdditional, reopenAt.Add(time.Minute), &reopenAt, domain.PhaseReopen},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			attachment := domain.Attachment{UploadContext: tc.uploadCtx, CreatedAt: tc.uploadedAt}
			assert.Equal(t, tc.want, PhaseFor(attachment, tc.firstReopen))
		})
	}
}

func TestListWithPhasesAcrossLifecycle(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	growth := env.addUser(domain.RoleGrowth)
	ops := env.addUser(domain.RoleOps)
	ticket := env.createTicket(t, growth)

	env.uploadAttachment(t, growth, ticket)

	resolved, err := env.ticketSvc.ResolveTicket(ctx, ops, ticket.TicketNumber, "fix one", []UploadInput{
		{Filename: "fix1.log", Data: []byte("log")},
	})
	require.NoError(t, err)
	_, err = env.ticketSvc.ReopenTicket(ctx, growth, resolved.TicketNumber, "still broken", nil)
	require.NoError(t, err)
	_, err = env.ticketSvc.ResolveTicket(ctx, ops, ticket.TicketNumber, "fix two", []UploadInput{
		{Filename: "fix2.log", Data: []byte("log")},
	})
	require.NoError(t, err)

	attachments, phases, err := env.attachments.ListWithPhases(ctx, growth, ticket.TicketNumber)
	require.NoError(t, err)
	require.Len(t, attachments, 3)

	byName := map[string]domain.AttachmentPhase{}
	for _, a := range attachments {
		byName[a.Filename] = phases[a.ID]
	}
	assert.Equal(t, domain.PhaseInitial, byName["evidence.png"])
	assert.Equal(t, domain.PhasePrimaryResolution, byName["fix1.log"])
	assert.Equal(t, domain.PhaseUpdatedResolution, byName["fix2.log"])
}

func TestUploadPermissions(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	growth := env.addUser(domain.RoleGrowth)
	peer := env.addUser(domain.RoleGrowth, func(u *domain.User) { u.Email = "peer@example.com" })
	ops := env.addUser(domain.RoleOps)
	ticket := env.createTicket(t, growth)

	// Creator and the counterpart team may upload; an unrelated member of the
	// creator's team may not.
	_, err := env.attachments.Upload(ctx, growth, ticket, []UploadInput{{Filename: "a.txt", Data: []byte("x")}}, domain.UploadContextInitial)
	require.NoError(t, err)
	_, err = env.attachments.Upload(ctx, ops, ticket, []UploadInput{{Filename: "b.txt", Data: []byte("x")}}, domain.UploadContextAdditional)
	require.NoError(t, err)
	_, err = env.attachments.Upload(ctx, peer, ticket, []UploadInput{{Filename: "c.txt", Data: []byte("x")}}, domain.UploadContextAdditional)
	assert.True(t, apperrors.HasCode(err, "FORBIDDEN"))
}

func TestAdminDeleteBypassesProtocol(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	growth := env.addUser(domain.RoleGrowth)
	admin := env.addUser(domain.RoleAdmin)
	ticket := env.createTicket(t, growth)
	attachment := env.uploadAttachment(t, growth, ticket)

	err := env.attachments.AdminDelete(ctx, growth, attachment.ID)
	assert.True(t, apperrors.HasCode(err, "FORBIDDEN"))

	require.NoError(t, env.attachments.AdminDelete(ctx, admin, attachment.ID))
	_, getErr := env.attachRepo.GetByID(ctx, attachment.ID)
	assert.Error(t, getErr)

	actions := env.activities.actions(ticket.ID)
	assert.Equal(t, domain.ActionAttachmentDeleted, actions[len(actions)-1])
}

func TestUploadStoresBlobAndSize(t *testing.T) {
	env := newTestEnv(t)
	growth := env.addUser(domain.RoleGrowth)
	ticket := env.createTicket(t, growth)

	attachment := env.uploadAttachment(t, growth, ticket)
	data, err := env.blobs.Get(context.Background(), attachment.StorageKey)
	require.NoError(t, err)
	assert.Equal(t, []byte("png-bytes"), data)
	assert.Equal(t, int64(len("png-bytes")), attachment.FileSize)
}
