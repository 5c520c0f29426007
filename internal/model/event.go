package model

import (
	"time"

	"cloud.google.com/go/civil"
)

// Event types published after state changes
const (
	EventAppointmentBooked    = "appointment.booked"
	EventAppointmentCancelled = "appointment.cancelled"
	EventAvailabilityFull     = "availability.full"
)

// Event describes a booking-side change for notification channels.
type Event struct {
	Type          string     `json:"type"`
	TherapistID   int64      `json:"therapist_id"`
	AppointmentID int64      `json:"appointment_id,omitempty"`
	Date          civil.Date `json:"date"`
	StartTime     *time.Time `json:"start_time,omitempty"`
	ClientName    string     `json:"client_name,omitempty"`
	ClientPhone   string     `json:"client_phone,omitempty"`
	OccurredAt    time.Time  `json:"occurred_at"`
}
