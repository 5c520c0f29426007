package postgres

import (
	"context"
	"time"

	"github.com/jwalitptl/scheduler-api/internal/model"
)

func (r *serviceRepository) GetByTherapist(ctx context.Context, therapistID int64) (*model.Service, error) {
	query := `
		SELECT id, therapist_id, name, description, duration, price, created_at, updated_at
		FROM services
		WHERE therapist_id = $1
	`
	var service model.Service
	if err := r.db.GetContext(ctx, &service, query, therapistID); err != nil {
		return nil, translate(err, "failed to get service")
	}
	return &service, nil
}

// Upsert keeps at most one service row per therapist.
func (r *serviceRepository) Upsert(ctx context.Context, service *model.Service) error {
	query := `
		INSERT INTO services (therapist_id, name, description, duration, price, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		ON CONFLICT (therapist_id) DO UPDATE
		SET name = EXCLUDED.name,
			description = EXCLUDED.description,
			duration = EXCLUDED.duration,
			price = EXCLUDED.price,
			updated_at = EXCLUDED.updated_at
		RETURNING id, created_at, updated_at
	`
	err := r.db.QueryRowxContext(ctx, query,
		service.TherapistID,
		service.Name,
		service.Description,
		service.Duration,
		service.Price,
		time.Now(),
	).Scan(&service.ID, &service.CreatedAt, &service.UpdatedAt)
	return translate(err, "failed to upsert service")
}
