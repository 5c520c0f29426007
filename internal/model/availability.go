package model

import (
	"fmt"
	"time"

	"cloud.google.com/go/civil"
)

// AvailabilityWindow is a therapist's bookable day: one per therapist and date.
type AvailabilityWindow struct {
	TherapistID int64      `json:"therapist_id"`
	Date        civil.Date `json:"date"`
	StartTime   civil.Time `json:"start_time"`
	EndTime     civil.Time `json:"end_time"`
	IsFull      bool       `json:"is_full"`
}

// Bounds returns the window as absolute instants on its date in loc.
func (w *AvailabilityWindow) Bounds(loc *time.Location) (time.Time, time.Time) {
	return At(w.Date, w.StartTime, loc), At(w.Date, w.EndTime, loc)
}

// At combines a civil date and time of day in loc.
func At(d civil.Date, t civil.Time, loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Day, t.Hour, t.Minute, t.Second, t.Nanosecond, loc)
}

// ParseClock parses a time of day written as HH:MM or HH:MM:SS.
func ParseClock(s string) (civil.Time, error) {
	for _, layout := range []string{"15:04", "15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return civil.TimeOf(t), nil
		}
	}
	return civil.Time{}, fmt.Errorf("invalid time of day %q", s)
}

// ParseMonth parses YYYY-MM into the first day of that month.
func ParseMonth(s string) (civil.Date, error) {
	t, err := time.Parse("2006-01", s)
	if err != nil {
		return civil.Date{}, fmt.Errorf("invalid month %q", s)
	}
	return civil.DateOf(t), nil
}

type DeclareWindowRequest struct {
	Date      string `json:"date" binding:"required,civildate"`
	StartTime string `json:"start_time" binding:"required,clock"`
	EndTime   string `json:"end_time" binding:"required,clock"`
}

// DeclareRangeRequest declares the same daily window for every date in [Start.Date, End.Date).
type DeclareRangeRequest struct {
	Start civil.DateTime `json:"start"`
	End   civil.DateTime `json:"end"`
}

type AvailableTimesResponse struct {
	Date  civil.Date   `json:"date"`
	Times []civil.Time `json:"times"`
}

type OpenDatesResponse struct {
	Month string       `json:"month"`
	Dates []civil.Date `json:"dates"`
}
