package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/jwalitptl/scheduler-api/internal/model"
	"github.com/jwalitptl/scheduler-api/internal/repository"
	"github.com/jwalitptl/scheduler-api/internal/service/availability"
	"github.com/jwalitptl/scheduler-api/internal/service/notification"
	apperrors "github.com/jwalitptl/scheduler-api/pkg/errors"
	"github.com/jwalitptl/scheduler-api/pkg/metrics"
)

// Booking is a persisted appointment. AvailabilityErr is set when the
// appointment was stored but the day's full flag could not be refreshed.
type Booking struct {
	Appointment     *model.Appointment
	AvailabilityErr error
}

// Degraded reports whether the booking succeeded with a stale availability flag.
func (b *Booking) Degraded() bool {
	return b.AvailabilityErr != nil
}

// Cancellation mirrors Booking for deletes.
type Cancellation struct {
	Appointment     *model.Appointment
	AvailabilityErr error
}

func (c *Cancellation) Degraded() bool {
	return c.AvailabilityErr != nil
}

type Service struct {
	store        *repository.Store
	availability *availability.Service
	notifier     notification.Service
	metrics      *metrics.Metrics
	logger       zerolog.Logger
}

func NewService(store *repository.Store, availabilitySvc *availability.Service, notifier notification.Service, m *metrics.Metrics, logger zerolog.Logger) *Service {
	if notifier == nil {
		notifier = notification.Nop()
	}
	if m == nil {
		m = metrics.New("scheduler", nil)
	}
	return &Service{
		store:        store,
		availability: availabilitySvc,
		notifier:     notifier,
		metrics:      m,
		logger:       logger.With().Str("component", "appointment").Logger(),
	}
}

// Book reserves req.StartTime for a client of therapistID. Only a collision
// with an existing appointment is rejected; the start time is not checked
// against the declared window.
func (s *Service) Book(ctx context.Context, therapistID int64, req model.BookAppointmentRequest) (*Booking, error) {
	booking, err := s.book(ctx, therapistID, req)
	switch {
	case err == nil && booking.Degraded():
		s.metrics.Bookings.WithLabelValues("degraded").Inc()
	case err == nil:
		s.metrics.Bookings.WithLabelValues("ok").Inc()
	case apperrors.Is(err, apperrors.ErrConflict):
		s.metrics.Bookings.WithLabelValues("conflict").Inc()
	default:
		s.metrics.Bookings.WithLabelValues("error").Inc()
	}
	return booking, err
}

func (s *Service) book(ctx context.Context, therapistID int64, req model.BookAppointmentRequest) (*Booking, error) {
	if !req.StartTime.IsValid() {
		return nil, apperrors.BadRequest("invalid start time", nil)
	}

	if _, err := s.store.Therapists.Get(ctx, therapistID); err != nil {
		return nil, s.storageErr(err, "therapist", therapistID)
	}
	svc, err := s.store.Services.GetByTherapist(ctx, therapistID)
	if err != nil {
		return nil, s.storageErr(err, "service", therapistID)
	}
	if req.ServiceID != 0 && req.ServiceID != svc.ID {
		return nil, apperrors.NotFound("service", repository.ErrNotFound)
	}

	loc := s.availability.Location()
	start := model.At(req.StartTime.Date, req.StartTime.Time, loc)

	taken, err := s.store.Appointments.ExistsAt(ctx, therapistID, start)
	if err != nil {
		return nil, s.storageErr(err, "appointment", therapistID)
	}
	if taken {
		return nil, timeConflict(start)
	}

	client, err := s.store.Clients.FindOrCreate(ctx, req.ClientPhone, req.ClientName)
	if err != nil {
		return nil, s.storageErr(err, "client", therapistID)
	}

	apt := &model.Appointment{
		TherapistID: therapistID,
		ServiceID:   svc.ID,
		ClientID:    client.ID,
		StartTime:   start,
	}
	// The unique (therapist, start) constraint decides races the check above lost.
	if err := s.store.Appointments.Create(ctx, apt); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, timeConflict(start)
		}
		return nil, s.storageErr(err, "appointment", therapistID)
	}
	apt.Client = client

	booking := &Booking{Appointment: apt}
	date := apt.Date(loc)
	if _, err := s.availability.Recompute(ctx, therapistID, date); err != nil {
		booking.AvailabilityErr = err
		s.logger.Warn().
			Err(err).
			Int64("therapist_id", therapistID).
			Int64("appointment_id", apt.ID).
			Msg("appointment booked but availability not refreshed")
	}

	s.notifier.Notify(ctx, s.event(model.EventAppointmentBooked, apt, client))
	return booking, nil
}

// Cancel deletes an appointment of therapistID. Appointments of other
// therapists are reported as not found.
func (s *Service) Cancel(ctx context.Context, therapistID, appointmentID int64) (*Cancellation, error) {
	c, err := s.cancel(ctx, therapistID, appointmentID)
	switch {
	case err == nil && c.Degraded():
		s.metrics.Cancellations.WithLabelValues("degraded").Inc()
	case err == nil:
		s.metrics.Cancellations.WithLabelValues("ok").Inc()
	case apperrors.Is(err, apperrors.ErrNotFound):
		s.metrics.Cancellations.WithLabelValues("not_found").Inc()
	default:
		s.metrics.Cancellations.WithLabelValues("error").Inc()
	}
	return c, err
}

func (s *Service) cancel(ctx context.Context, therapistID, appointmentID int64) (*Cancellation, error) {
	apt, err := s.store.Appointments.Get(ctx, therapistID, appointmentID)
	if err != nil {
		return nil, s.storageErr(err, "appointment", therapistID)
	}
	if err := s.store.Appointments.Delete(ctx, therapistID, appointmentID); err != nil {
		return nil, s.storageErr(err, "appointment", therapistID)
	}

	c := &Cancellation{Appointment: apt}
	if _, err := s.availability.Recompute(ctx, therapistID, apt.Date(s.availability.Location())); err != nil {
		c.AvailabilityErr = err
		s.logger.Warn().
			Err(err).
			Int64("therapist_id", therapistID).
			Int64("appointment_id", apt.ID).
			Msg("appointment cancelled but availability not refreshed")
	}

	s.notifier.Notify(ctx, s.event(model.EventAppointmentCancelled, apt, apt.Client))
	return c, nil
}

func (s *Service) List(ctx context.Context, therapistID int64) ([]*model.Appointment, error) {
	apts, err := s.store.Appointments.List(ctx, therapistID)
	if err != nil {
		return nil, s.storageErr(err, "appointment", therapistID)
	}
	return apts, nil
}

func (s *Service) Get(ctx context.Context, therapistID, appointmentID int64) (*model.Appointment, error) {
	apt, err := s.store.Appointments.Get(ctx, therapistID, appointmentID)
	if err != nil {
		return nil, s.storageErr(err, "appointment", therapistID)
	}
	return apt, nil
}

// Calendar renders the therapist's appointments for the booking site calendar.
// Entries end one service duration after they start.
func (s *Service) Calendar(ctx context.Context, therapistID int64) ([]model.CalendarEntry, error) {
	apts, err := s.List(ctx, therapistID)
	if err != nil {
		return nil, err
	}

	var length time.Duration
	svc, err := s.store.Services.GetByTherapist(ctx, therapistID)
	switch {
	case err == nil:
		length = svc.SlotLength()
	case !errors.Is(err, repository.ErrNotFound):
		return nil, s.storageErr(err, "service", therapistID)
	}

	entries := make([]model.CalendarEntry, 0, len(apts))
	for _, apt := range apts {
		entry := model.CalendarEntry{
			ID:    apt.ID,
			Start: apt.StartTime,
			End:   apt.StartTime.Add(length),
		}
		if apt.Client != nil {
			entry.Title = apt.Client.Name
			entry.Category = apt.Client.Phone
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// Clients lists everyone who booked the therapist at least once.
func (s *Service) Clients(ctx context.Context, therapistID int64) ([]*model.Client, error) {
	clients, err := s.store.Clients.ListForTherapist(ctx, therapistID)
	if err != nil {
		return nil, s.storageErr(err, "client", therapistID)
	}
	return clients, nil
}

func (s *Service) event(typ string, apt *model.Appointment, client *model.Client) model.Event {
	start := apt.StartTime
	e := model.Event{
		Type:          typ,
		TherapistID:   apt.TherapistID,
		AppointmentID: apt.ID,
		Date:          apt.Date(s.availability.Location()),
		StartTime:     &start,
		OccurredAt:    time.Now(),
	}
	if client != nil {
		e.ClientName = client.Name
		e.ClientPhone = client.Phone
	}
	return e
}

// storageErr maps a repository error onto the application taxonomy. Anything
// but a missing row is logged and hidden behind an internal error.
func (s *Service) storageErr(err error, resource string, therapistID int64) error {
	if errors.Is(err, repository.ErrNotFound) {
		return apperrors.NotFound(resource, err)
	}
	s.logger.Error().
		Err(err).
		Str("resource", resource).
		Int64("therapist_id", therapistID).
		Msg("storage failure")
	return apperrors.Internal(fmt.Errorf("%s: %w", resource, err))
}

func timeConflict(start time.Time) error {
	return apperrors.Conflict(fmt.Sprintf("%s is already booked", start.Format("2006-01-02 15:04")), repository.ErrDuplicate)
}
