package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/jwalitptl/scheduler-api/internal/model"
	"github.com/jwalitptl/scheduler-api/internal/repository"
	"github.com/jwalitptl/scheduler-api/pkg/auth"
	apperrors "github.com/jwalitptl/scheduler-api/pkg/errors"
	"github.com/jwalitptl/scheduler-api/pkg/security"
)

var ErrInvalidCredentials = errors.New("invalid credentials")

type Service struct {
	therapists repository.TherapistRepository
	jwtSvc     auth.JWTService
	hasher     security.PasswordHasher
	logger     zerolog.Logger
}

func NewService(therapists repository.TherapistRepository, jwtSvc auth.JWTService, hasher security.PasswordHasher, logger zerolog.Logger) *Service {
	return &Service{
		therapists: therapists,
		jwtSvc:     jwtSvc,
		hasher:     hasher,
		logger:     logger.With().Str("component", "auth").Logger(),
	}
}

// Login exchanges a phone and password for an access and refresh token.
func (s *Service) Login(ctx context.Context, phone, password string) (*model.TokenResponse, error) {
	therapist, err := s.therapists.GetByPhone(ctx, phone)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.Unauthorized(ErrInvalidCredentials)
	}
	if err != nil {
		return nil, apperrors.Internal(fmt.Errorf("failed to get therapist: %w", err))
	}

	if err := s.hasher.Compare(therapist.PasswordHash, password); err != nil {
		s.logger.Info().Int64("therapist_id", therapist.ID).Msg("failed login")
		return nil, apperrors.Unauthorized(ErrInvalidCredentials)
	}

	access, err := s.jwtSvc.GenerateAccessToken(therapist)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	refresh, err := s.jwtSvc.GenerateRefreshToken(therapist)
	if err != nil {
		return nil, apperrors.Internal(err)
	}

	return &model.TokenResponse{AccessToken: access, RefreshToken: refresh}, nil
}

// Refresh issues a new access token for a valid refresh token whose
// therapist still exists.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*model.TokenResponse, error) {
	claims, err := s.jwtSvc.ValidateRefreshToken(refreshToken)
	if err != nil {
		return nil, apperrors.Unauthorized(err)
	}

	therapist, err := s.therapists.Get(ctx, claims.TherapistID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.Unauthorized(err)
	}
	if err != nil {
		return nil, apperrors.Internal(fmt.Errorf("failed to get therapist: %w", err))
	}

	access, err := s.jwtSvc.GenerateAccessToken(therapist)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	return &model.TokenResponse{AccessToken: access}, nil
}

// Authenticate validates an access token.
func (s *Service) Authenticate(token string) (*model.TokenClaims, error) {
	claims, err := s.jwtSvc.ValidateToken(token)
	if err != nil {
		return nil, apperrors.Unauthorized(err)
	}
	return claims, nil
}
