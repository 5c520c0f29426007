package model

import (
	"time"
)

// Service is the single offering of a therapist. Its duration quantizes slots.
type Service struct {
	Base
	TherapistID int64  `db:"therapist_id" json:"therapist_id"`
	Name        string `db:"name" json:"name"`
	Description string `db:"description" json:"description"`
	Duration    int    `db:"duration" json:"duration"` // in minutes
	Price       int    `db:"price" json:"price"`
}

// SlotLength returns the duration as a time.Duration.
func (s *Service) SlotLength() time.Duration {
	return time.Duration(s.Duration) * time.Minute
}

type UpsertServiceRequest struct {
	Name        string `json:"name" binding:"required,max=100"`
	Description string `json:"description" binding:"max=1000"`
	Duration    int    `json:"duration"`
	Price       int    `json:"price" binding:"min=0"`
}
