package postgres

import (
	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/scheduler-api/internal/repository"
)

type therapistRepository struct {
	BaseRepository
}

type serviceRepository struct {
	db *sqlx.DB
}

type availabilityRepository struct {
	db *sqlx.DB
}

type appointmentRepository struct {
	db *sqlx.DB
}

type clientRepository struct {
	db *sqlx.DB
}

func NewTherapistRepository(db *sqlx.DB) repository.TherapistRepository {
	return &therapistRepository{BaseRepository: NewBaseRepository(db)}
}

func NewServiceRepository(db *sqlx.DB) repository.ServiceRepository {
	return &serviceRepository{db: db}
}

func NewAvailabilityRepository(db *sqlx.DB) repository.AvailabilityRepository {
	return &availabilityRepository{db: db}
}

func NewAppointmentRepository(db *sqlx.DB) repository.AppointmentRepository {
	return &appointmentRepository{db: db}
}

func NewClientRepository(db *sqlx.DB) repository.ClientRepository {
	return &clientRepository{db: db}
}

// NewStore wires every Postgres repository over one connection pool.
func NewStore(db *sqlx.DB) *repository.Store {
	return &repository.Store{
		Therapists:   NewTherapistRepository(db),
		Services:     NewServiceRepository(db),
		Availability: NewAvailabilityRepository(db),
		Appointments: NewAppointmentRepository(db),
		Clients:      NewClientRepository(db),
		Locks:        NewDayLocker(db),
	}
}
