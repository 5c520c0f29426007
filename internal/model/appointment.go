package model

import (
	"time"

	"cloud.google.com/go/civil"
)

// Appointment is a booked slot. No two appointments of a therapist share a start time.
type Appointment struct {
	ID          int64     `db:"id" json:"id"`
	TherapistID int64     `db:"therapist_id" json:"therapist_id"`
	ServiceID   int64     `db:"service_id" json:"service_id"`
	ClientID    int64     `db:"client_id" json:"client_id"`
	StartTime   time.Time `db:"start_time" json:"start_time"`
	Client      *Client   `db:"-" json:"client,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// Date returns the civil date the appointment starts on, in loc.
func (a *Appointment) Date(loc *time.Location) civil.Date {
	return civil.DateOf(a.StartTime.In(loc))
}

type BookAppointmentRequest struct {
	StartTime   civil.DateTime `json:"start_time"`
	ServiceID   int64          `json:"service_id" binding:"omitempty,min=1"`
	ClientName  string         `json:"client_name" binding:"required,max=100"`
	ClientPhone string         `json:"client_phone" binding:"required,phone"`
}

// CalendarEntry is the appointment shape consumed by the booking site calendar.
type CalendarEntry struct {
	ID       int64     `json:"id"`
	Title    string    `json:"title"`
	Category string    `json:"category"`
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
}
