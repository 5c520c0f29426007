package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/jwalitptl/scheduler-api/internal/model"
	"github.com/jwalitptl/scheduler-api/internal/repository/memory"
	"github.com/jwalitptl/scheduler-api/pkg/auth"
	apperrors "github.com/jwalitptl/scheduler-api/pkg/errors"
	"github.com/jwalitptl/scheduler-api/pkg/logger"
	"github.com/jwalitptl/scheduler-api/pkg/security"
)

func newService(t *testing.T) (*Service, *model.Therapist) {
	t.Helper()
	store := memory.NewStore(memory.New())
	hasher := security.NewBcryptHasher(bcrypt.MinCost)

	hash, err := hasher.Hash("password123")
	require.NoError(t, err)
	therapist := &model.Therapist{Name: "Noa", Phone: "0500000001", PasswordHash: hash, Role: model.RoleUser}
	require.NoError(t, store.Therapists.Create(context.Background(), therapist))

	jwtSvc := auth.NewJWTService(auth.Config{Secret: "a", RefreshSecret: "r"})
	return NewService(store.Therapists, jwtSvc, hasher, logger.Nop()), therapist
}

func TestLogin(t *testing.T) {
	svc, therapist := newService(t)
	ctx := context.Background()

	tokens, err := svc.Login(ctx, "0500000001", "password123")
	require.NoError(t, err)
	assert.NotEmpty(t, tokens.AccessToken)
	assert.NotEmpty(t, tokens.RefreshToken)

	claims, err := svc.Authenticate(tokens.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, therapist.ID, claims.TherapistID)

	_, err = svc.Login(ctx, "0500000001", "wrong-password")
	assert.True(t, apperrors.Is(err, apperrors.ErrUnauthorized))
	_, err = svc.Login(ctx, "0599999999", "password123")
	assert.True(t, apperrors.Is(err, apperrors.ErrUnauthorized))
}

func TestRefresh(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	tokens, err := svc.Login(ctx, "0500000001", "password123")
	require.NoError(t, err)

	refreshed, err := svc.Refresh(ctx, tokens.RefreshToken)
	require.NoError(t, err)
	assert.NotEmpty(t, refreshed.AccessToken)
	assert.Empty(t, refreshed.RefreshToken)

	_, err = svc.Refresh(ctx, tokens.AccessToken)
	assert.True(t, apperrors.Is(err, apperrors.ErrUnauthorized))

	_, err = svc.Authenticate(tokens.RefreshToken)
	assert.True(t, apperrors.Is(err, apperrors.ErrUnauthorized))
}
