package postgres

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/scheduler-api/internal/model"
)

const therapistColumns = `id, name, phone, email, password_hash, role, created_at, updated_at`

func (r *therapistRepository) Create(ctx context.Context, therapist *model.Therapist) error {
	query := `
		INSERT INTO therapists (name, phone, email, password_hash, role, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`
	now := time.Now()
	therapist.CreatedAt = now
	therapist.UpdatedAt = now

	err := r.db.QueryRowxContext(ctx, query,
		therapist.Name,
		therapist.Phone,
		therapist.Email,
		therapist.PasswordHash,
		therapist.Role,
		therapist.CreatedAt,
		therapist.UpdatedAt,
	).Scan(&therapist.ID)
	return translate(err, "failed to create therapist")
}

func (r *therapistRepository) Get(ctx context.Context, id int64) (*model.Therapist, error) {
	var therapist model.Therapist
	err := r.db.GetContext(ctx, &therapist, `SELECT `+therapistColumns+` FROM therapists WHERE id = $1`, id)
	if err != nil {
		return nil, translate(err, "failed to get therapist")
	}
	return &therapist, nil
}

func (r *therapistRepository) GetByPhone(ctx context.Context, phone string) (*model.Therapist, error) {
	var therapist model.Therapist
	err := r.db.GetContext(ctx, &therapist, `SELECT `+therapistColumns+` FROM therapists WHERE phone = $1`, phone)
	if err != nil {
		return nil, translate(err, "failed to get therapist by phone")
	}
	return &therapist, nil
}

func (r *therapistRepository) Update(ctx context.Context, therapist *model.Therapist) error {
	query := `
		UPDATE therapists
		SET name = $1, phone = $2, email = $3, password_hash = $4, role = $5, updated_at = $6
		WHERE id = $7
	`
	therapist.UpdatedAt = time.Now()

	result, err := r.db.ExecContext(ctx, query,
		therapist.Name,
		therapist.Phone,
		therapist.Email,
		therapist.PasswordHash,
		therapist.Role,
		therapist.UpdatedAt,
		therapist.ID,
	)
	if err != nil {
		return translate(err, "failed to update therapist")
	}
	return requireAffected(result, "therapist")
}

// Delete removes the therapist together with everything it owns.
func (r *therapistRepository) Delete(ctx context.Context, id int64) error {
	return r.WithTx(ctx, func(tx *sqlx.Tx) error {
		for _, stmt := range []string{
			`DELETE FROM appointments WHERE therapist_id = $1`,
			`DELETE FROM availability WHERE therapist_id = $1`,
			`DELETE FROM services WHERE therapist_id = $1`,
		} {
			if _, err := tx.ExecContext(ctx, stmt, id); err != nil {
				return translate(err, "failed to delete therapist data")
			}
		}

		result, err := tx.ExecContext(ctx, `DELETE FROM therapists WHERE id = $1`, id)
		if err != nil {
			return translate(err, "failed to delete therapist")
		}
		return requireAffected(result, "therapist")
	})
}
