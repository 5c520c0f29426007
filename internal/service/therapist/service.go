package therapist

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/jwalitptl/scheduler-api/internal/model"
	"github.com/jwalitptl/scheduler-api/internal/repository"
	"github.com/jwalitptl/scheduler-api/internal/service/availability"
	apperrors "github.com/jwalitptl/scheduler-api/pkg/errors"
	"github.com/jwalitptl/scheduler-api/pkg/security"
)

type Service struct {
	therapists   repository.TherapistRepository
	services     repository.ServiceRepository
	availability *availability.Service
	hasher       security.PasswordHasher
	logger       zerolog.Logger
}

func NewService(store *repository.Store, availabilitySvc *availability.Service, hasher security.PasswordHasher, logger zerolog.Logger) *Service {
	return &Service{
		therapists:   store.Therapists,
		services:     store.Services,
		availability: availabilitySvc,
		hasher:       hasher,
		logger:       logger.With().Str("component", "therapist").Logger(),
	}
}

func (s *Service) Register(ctx context.Context, req model.CreateTherapistRequest) (*model.Therapist, error) {
	hash, err := s.hash(req.Password)
	if err != nil {
		return nil, err
	}

	t := &model.Therapist{
		Name:         req.Name,
		Phone:        req.Phone,
		Email:        req.Email,
		PasswordHash: hash,
		Role:         model.RoleUser,
	}
	if err := s.therapists.Create(ctx, t); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, apperrors.Conflict("phone already registered", err)
		}
		return nil, s.internal("failed to create therapist", err)
	}

	s.logger.Info().Int64("therapist_id", t.ID).Msg("therapist registered")
	return t, nil
}

func (s *Service) Get(ctx context.Context, id int64) (*model.Therapist, error) {
	t, err := s.therapists.Get(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.NotFound("therapist", err)
	}
	if err != nil {
		return nil, s.internal("failed to get therapist", err)
	}
	return t, nil
}

func (s *Service) Update(ctx context.Context, id int64, req model.UpdateTherapistRequest) (*model.Therapist, error) {
	t, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		t.Name = *req.Name
	}
	if req.Phone != nil {
		t.Phone = *req.Phone
	}
	if req.Email != nil {
		t.Email = *req.Email
	}
	if req.Password != nil {
		if t.PasswordHash, err = s.hash(*req.Password); err != nil {
			return nil, err
		}
	}

	if err := s.therapists.Update(ctx, t); err != nil {
		switch {
		case errors.Is(err, repository.ErrDuplicate):
			return nil, apperrors.Conflict("phone already registered", err)
		case errors.Is(err, repository.ErrNotFound):
			return nil, apperrors.NotFound("therapist", err)
		}
		return nil, s.internal("failed to update therapist", err)
	}
	return t, nil
}

// Delete removes the therapist with its service, windows and appointments.
func (s *Service) Delete(ctx context.Context, id int64) error {
	err := s.therapists.Delete(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return apperrors.NotFound("therapist", err)
	}
	if err != nil {
		return s.internal("failed to delete therapist", err)
	}
	s.availability.InvalidateService(id)
	return nil
}

func (s *Service) GetService(ctx context.Context, therapistID int64) (*model.Service, error) {
	if _, err := s.Get(ctx, therapistID); err != nil {
		return nil, err
	}
	svc, err := s.services.GetByTherapist(ctx, therapistID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.NotFound("service", err)
	}
	if err != nil {
		return nil, s.internal("failed to get service", err)
	}
	return svc, nil
}

// UpsertService stores the therapist's only service. A new duration changes
// every slot set, so upcoming windows are recomputed.
func (s *Service) UpsertService(ctx context.Context, therapistID int64, req model.UpsertServiceRequest) (*model.Service, error) {
	if req.Duration <= 0 {
		return nil, apperrors.Configuration("service duration must be a positive number of minutes", nil)
	}
	if _, err := s.Get(ctx, therapistID); err != nil {
		return nil, err
	}

	svc := &model.Service{
		TherapistID: therapistID,
		Name:        req.Name,
		Description: req.Description,
		Duration:    req.Duration,
		Price:       req.Price,
	}
	if err := s.services.Upsert(ctx, svc); err != nil {
		return nil, s.internal("failed to save service", err)
	}
	s.availability.InvalidateService(therapistID)

	res, err := s.availability.RecomputeUpcoming(ctx, therapistID, s.availability.Today())
	if err != nil {
		s.logger.Warn().Err(err).Int64("therapist_id", therapistID).Msg("failed to recompute availability after service change")
	} else if res.Failed > 0 {
		s.logger.Warn().Int("failed", res.Failed).Int64("therapist_id", therapistID).Msg("some windows were not recomputed")
	}
	return svc, nil
}

func (s *Service) hash(password string) (string, error) {
	hash, err := s.hasher.Hash(password)
	if errors.Is(err, security.ErrPasswordTooShort) {
		return "", apperrors.BadRequest(fmt.Sprintf("password must be at least %d characters", security.MinPasswordLen), err)
	}
	if err != nil {
		return "", s.internal("failed to hash password", err)
	}
	return hash, nil
}

func (s *Service) internal(msg string, err error) error {
	s.logger.Error().Err(err).Msg(msg)
	return apperrors.Internal(fmt.Errorf("%s: %w", msg, err))
}
