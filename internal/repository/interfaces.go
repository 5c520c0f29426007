package repository

import (
	"context"
	"errors"
	"time"

	"cloud.google.com/go/civil"

	"github.com/jwalitptl/scheduler-api/internal/model"
)

var (
	// ErrNotFound is returned when a row does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate is returned when a write violates a unique constraint.
	ErrDuplicate = errors.New("duplicate record")
)

// All repository interfaces in one file
type (
	TherapistRepository interface {
		Create(ctx context.Context, therapist *model.Therapist) error
		Get(ctx context.Context, id int64) (*model.Therapist, error)
		GetByPhone(ctx context.Context, phone string) (*model.Therapist, error)
		Update(ctx context.Context, therapist *model.Therapist) error
		Delete(ctx context.Context, id int64) error
	}

	ServiceRepository interface {
		// GetByTherapist returns the therapist's only service.
		GetByTherapist(ctx context.Context, therapistID int64) (*model.Service, error)
		Upsert(ctx context.Context, service *model.Service) error
	}

	AvailabilityRepository interface {
		GetWindow(ctx context.Context, therapistID int64, date civil.Date) (*model.AvailabilityWindow, error)
		// ListWindows returns windows with from <= date <= to, ordered by date.
		ListWindows(ctx context.Context, therapistID int64, from, to civil.Date) ([]*model.AvailabilityWindow, error)
		// ListUpcoming returns every window on or after from across all therapists.
		ListUpcoming(ctx context.Context, from civil.Date) ([]*model.AvailabilityWindow, error)
		UpsertWindow(ctx context.Context, window *model.AvailabilityWindow) error
		DeleteWindow(ctx context.Context, therapistID int64, date civil.Date) error
		// SetFull writes the derived flag; a missing window is not an error.
		SetFull(ctx context.Context, therapistID int64, date civil.Date, isFull bool) error
	}

	AppointmentRepository interface {
		// Create inserts the appointment and assigns its id. A second appointment
		// for the same therapist and start time fails with ErrDuplicate.
		Create(ctx context.Context, appointment *model.Appointment) error
		Get(ctx context.Context, therapistID, id int64) (*model.Appointment, error)
		// Delete removes the therapist's appointment; ErrNotFound when absent.
		Delete(ctx context.Context, therapistID, id int64) error
		List(ctx context.Context, therapistID int64) ([]*model.Appointment, error)
		ExistsAt(ctx context.Context, therapistID int64, start time.Time) (bool, error)
		// BookedTimes returns start times within [from, to).
		BookedTimes(ctx context.Context, therapistID int64, from, to time.Time) ([]time.Time, error)
	}

	// DayLocker serializes flag recomputes of one (therapist, date) across
	// every process sharing the store.
	DayLocker interface {
		LockDay(ctx context.Context, therapistID int64, date civil.Date) (unlock func(), err error)
	}

	ClientRepository interface {
		// FindOrCreate returns the client owning phone, creating it with name when unknown.
		FindOrCreate(ctx context.Context, phone, name string) (*model.Client, error)
		ListForTherapist(ctx context.Context, therapistID int64) ([]*model.Client, error)
	}
)

// Store bundles the repositories one backend provides.
type Store struct {
	Therapists   TherapistRepository
	Services     ServiceRepository
	Availability AvailabilityRepository
	Appointments AppointmentRepository
	Clients      ClientRepository
	Locks        DayLocker
}
