package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/bridgedesk/escalation-service/internal/auth"
	"github.com/bridgedesk/escalation-service/internal/domain"
	apperrors "github.com/bridgedesk/escalation-service/pkg/util/errorutil"
)

func newAuthService(users *fakeUserRepo) *AuthService {
	tokens := auth.NewTokenManager("test-secret", 60)
	return NewAuthService(users, tokens, bcrypt.MinCost, zap.NewNop())
}

func TestRegisterAndLogin(t *testing.T) {
	ctx := context.Background()
	users := newFakeUserRepo(newFakeTicketRepo())
	svc := newAuthService(users)

	_, err := svc.Register(ctx, RegisterInput{Email: "bad", Password: "longenough", Role: domain.RoleGrowth})
	assert.True(t, apperrors.HasCode(err, "VALIDATION_FAILED"))
	_, err = svc.Register(ctx, RegisterInput{Email: "a@b.com", Password: "short", Role: domain.RoleGrowth})
	assert.True(t, apperrors.HasCode(err, "VALIDATION_FAILED"))
	_, err = svc.Register(ctx, RegisterInput{Email: "a@b.com", Password: "longenough", Role: domain.RoleAdmin})
	assert.True(t, apperrors.HasCode(err, "VALIDATION_FAILED"))

	result, err := svc.Register(ctx, RegisterInput{Email: "A@B.com", Password: "longenough", Role: domain.RoleGrowth})
	require.NoError(t, err)
	assert.Equal(t, "a@b.com", result.User.Email)
	assert.NotEmpty(t, result.Token)

	_, err = svc.Register(ctx, RegisterInput{Email: "a@b.com", Password: "longenough", Role: domain.RoleOps})
	assert.True(t, apperrors.HasCode(err, "CONFLICT"))

	logged, err := svc.Login(ctx, "a@b.com", "longenough")
	require.NoError(t, err)
	assert.Equal(t, result.User.ID, logged.User.ID)
	assert.NotNil(t, logged.User)

	_, err = svc.Login(ctx, "a@b.com", "wrongpass")
	assert.True(t, apperrors.HasCode(err, "UNAUTHORIZED"))
	_, err = svc.Login(ctx, "nobody@b.com", "whatever")
	assert.True(t, apperrors.HasCode(err, "UNAUTHORIZED"))
}

func TestLoginRejectsDeactivated(t *testing.T) {
	ctx := context.Background()
	users := newFakeUserRepo(newFakeTicketRepo())
	svc := newAuthService(users)

	result, err := svc.Register(ctx, RegisterInput{Email: "a@b.com", Password: "longenough", Role: domain.RoleOps})
	require.NoError(t, err)
	require.NoError(t, users.SetActive(ctx, result.User.ID, false))

	_, err = svc.Login(ctx, "a@b.com", "longenough")
	assert.True(t, apperrors.HasCode(err, "FORBIDDEN"))
}

func TestSetManagerFlag(t *testing.T) {
	ctx := context.Background()
	users := newFakeUserRepo(newFakeTicketRepo())
	svc := newAuthService(users)

	member := users.add(&domain.User{Email: "m@b.com", Role: domain.RoleOps, IsActive: true})
	admin := users.add(&domain.User{Email: "root@b.com", Role: domain.RoleAdmin, IsActive: true})

	_, err := svc.SetManagerFlag(ctx, member, member.ID, true)
	assert.True(t, apperrors.HasCode(err, "FORBIDDEN"))

	promoted, err := svc.SetManagerFlag(ctx, admin, member.ID, true)
	require.NoError(t, err)
	assert.True(t, promoted.IsManager)
}
