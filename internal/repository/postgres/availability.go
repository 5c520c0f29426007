package postgres

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/civil"

	"github.com/jwalitptl/scheduler-api/internal/model"
)

const windowColumns = `
	therapist_id, available_date,
	to_char(start_time, 'HH24:MI:SS') AS start_time,
	to_char(end_time, 'HH24:MI:SS') AS end_time,
	is_full
`

type windowRow struct {
	TherapistID int64     `db:"therapist_id"`
	Date        time.Time `db:"available_date"`
	StartTime   string    `db:"start_time"`
	EndTime     string    `db:"end_time"`
	IsFull      bool      `db:"is_full"`
}

func (w windowRow) toModel() (*model.AvailabilityWindow, error) {
	start, err := civil.ParseTime(w.StartTime)
	if err != nil {
		return nil, fmt.Errorf("failed to parse window start: %w", err)
	}
	end, err := civil.ParseTime(w.EndTime)
	if err != nil {
		return nil, fmt.Errorf("failed to parse window end: %w", err)
	}
	return &model.AvailabilityWindow{
		TherapistID: w.TherapistID,
		Date:        civil.DateOf(w.Date),
		StartTime:   start,
		EndTime:     end,
		IsFull:      w.IsFull,
	}, nil
}

func toModels(rows []windowRow) ([]*model.AvailabilityWindow, error) {
	windows := make([]*model.AvailabilityWindow, 0, len(rows))
	for _, row := range rows {
		w, err := row.toModel()
		if err != nil {
			return nil, err
		}
		windows = append(windows, w)
	}
	return windows, nil
}

func (r *availabilityRepository) GetWindow(ctx context.Context, therapistID int64, date civil.Date) (*model.AvailabilityWindow, error) {
	query := `SELECT ` + windowColumns + ` FROM availability WHERE therapist_id = $1 AND available_date = $2`

	var row windowRow
	if err := r.db.GetContext(ctx, &row, query, therapistID, date.String()); err != nil {
		return nil, translate(err, "failed to get availability window")
	}
	return row.toModel()
}

func (r *availabilityRepository) ListWindows(ctx context.Context, therapistID int64, from, to civil.Date) ([]*model.AvailabilityWindow, error) {
	query := `
		SELECT ` + windowColumns + `
		FROM availability
		WHERE therapist_id = $1 AND available_date BETWEEN $2 AND $3
		ORDER BY available_date ASC
	`
	var rows []windowRow
	if err := r.db.SelectContext(ctx, &rows, query, therapistID, from.String(), to.String()); err != nil {
		return nil, translate(err, "failed to list availability windows")
	}
	return toModels(rows)
}

func (r *availabilityRepository) ListUpcoming(ctx context.Context, from civil.Date) ([]*model.AvailabilityWindow, error) {
	query := `
		SELECT ` + windowColumns + `
		FROM availability
		WHERE available_date >= $1
		ORDER BY therapist_id ASC, available_date ASC
	`
	var rows []windowRow
	if err := r.db.SelectContext(ctx, &rows, query, from.String()); err != nil {
		return nil, translate(err, "failed to list upcoming windows")
	}
	return toModels(rows)
}

func (r *availabilityRepository) UpsertWindow(ctx context.Context, window *model.AvailabilityWindow) error {
	query := `
		INSERT INTO availability (therapist_id, available_date, start_time, end_time, is_full)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (therapist_id, available_date) DO UPDATE
		SET start_time = EXCLUDED.start_time, end_time = EXCLUDED.end_time
	`
	_, err := r.db.ExecContext(ctx, query,
		window.TherapistID,
		window.Date.String(),
		window.StartTime.String(),
		window.EndTime.String(),
		window.IsFull,
	)
	return translate(err, "failed to upsert availability window")
}

func (r *availabilityRepository) DeleteWindow(ctx context.Context, therapistID int64, date civil.Date) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM availability WHERE therapist_id = $1 AND available_date = $2`,
		therapistID, date.String(),
	)
	if err != nil {
		return translate(err, "failed to delete availability window")
	}
	return requireAffected(result, "availability window")
}

func (r *availabilityRepository) SetFull(ctx context.Context, therapistID int64, date civil.Date, isFull bool) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE availability SET is_full = $1 WHERE therapist_id = $2 AND available_date = $3`,
		isFull, therapistID, date.String(),
	)
	return translate(err, "failed to update availability flag")
}
