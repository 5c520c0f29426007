package postgres

import (
	"context"
	"time"

	"github.com/jwalitptl/scheduler-api/internal/model"
)

type appointmentRow struct {
	model.Appointment
	ClientName  string `db:"client_name"`
	ClientPhone string `db:"client_phone"`
}

func (r appointmentRow) toModel() *model.Appointment {
	apt := r.Appointment
	apt.Client = &model.Client{ID: apt.ClientID, Name: r.ClientName, Phone: r.ClientPhone}
	return &apt
}

const appointmentSelect = `
	SELECT a.id, a.therapist_id, a.service_id, a.client_id, a.start_time, a.created_at,
		   c.name AS client_name, c.phone AS client_phone
	FROM appointments a
	JOIN clients c ON c.id = a.client_id
`

// Create relies on appointments_therapist_start_key, so two concurrent inserts
// for the same therapist and start time cannot both succeed.
func (r *appointmentRepository) Create(ctx context.Context, appointment *model.Appointment) error {
	query := `
		INSERT INTO appointments (therapist_id, service_id, client_id, start_time, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`
	appointment.CreatedAt = time.Now()

	err := r.db.QueryRowxContext(ctx, query,
		appointment.TherapistID,
		appointment.ServiceID,
		appointment.ClientID,
		appointment.StartTime,
		appointment.CreatedAt,
	).Scan(&appointment.ID)
	return translate(err, "failed to create appointment")
}

func (r *appointmentRepository) Get(ctx context.Context, therapistID, id int64) (*model.Appointment, error) {
	var row appointmentRow
	err := r.db.GetContext(ctx, &row, appointmentSelect+` WHERE a.therapist_id = $1 AND a.id = $2`, therapistID, id)
	if err != nil {
		return nil, translate(err, "failed to get appointment")
	}
	return row.toModel(), nil
}

func (r *appointmentRepository) Delete(ctx context.Context, therapistID, id int64) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM appointments WHERE therapist_id = $1 AND id = $2`,
		therapistID, id,
	)
	if err != nil {
		return translate(err, "failed to delete appointment")
	}
	return requireAffected(result, "appointment")
}

func (r *appointmentRepository) List(ctx context.Context, therapistID int64) ([]*model.Appointment, error) {
	var rows []appointmentRow
	err := r.db.SelectContext(ctx, &rows, appointmentSelect+` WHERE a.therapist_id = $1 ORDER BY a.start_time ASC`, therapistID)
	if err != nil {
		return nil, translate(err, "failed to list appointments")
	}

	appointments := make([]*model.Appointment, 0, len(rows))
	for _, row := range rows {
		appointments = append(appointments, row.toModel())
	}
	return appointments, nil
}

func (r *appointmentRepository) ExistsAt(ctx context.Context, therapistID int64, start time.Time) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM appointments WHERE therapist_id = $1 AND start_time = $2)`

	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, therapistID, start); err != nil {
		return false, translate(err, "failed to check appointment time")
	}
	return exists, nil
}

func (r *appointmentRepository) BookedTimes(ctx context.Context, therapistID int64, from, to time.Time) ([]time.Time, error) {
	query := `
		SELECT start_time
		FROM appointments
		WHERE therapist_id = $1 AND start_time >= $2 AND start_time < $3
		ORDER BY start_time ASC
	`
	var times []time.Time
	if err := r.db.SelectContext(ctx, &times, query, therapistID, from, to); err != nil {
		return nil, translate(err, "failed to list booked times")
	}
	return times, nil
}
