package postgres

import (
	"context"

	"github.com/jwalitptl/scheduler-api/internal/model"
)

// FindOrCreate is a single statement: the no-op update makes RETURNING yield the
// existing row when the phone is already known, keeping its stored name.
func (r *clientRepository) FindOrCreate(ctx context.Context, phone, name string) (*model.Client, error) {
	query := `
		INSERT INTO clients (name, phone)
		VALUES ($1, $2)
		ON CONFLICT (phone) DO UPDATE SET phone = EXCLUDED.phone
		RETURNING id, name, phone
	`
	var client model.Client
	if err := r.db.GetContext(ctx, &client, query, name, phone); err != nil {
		return nil, translate(err, "failed to find or create client")
	}
	return &client, nil
}

func (r *clientRepository) ListForTherapist(ctx context.Context, therapistID int64) ([]*model.Client, error) {
	query := `
		SELECT DISTINCT c.id, c.name, c.phone
		FROM clients c
		JOIN appointments a ON a.client_id = c.id
		WHERE a.therapist_id = $1
		ORDER BY c.name ASC
	`
	var clients []*model.Client
	if err := r.db.SelectContext(ctx, &clients, query, therapistID); err != nil {
		return nil, translate(err, "failed to list clients")
	}
	return clients, nil
}
