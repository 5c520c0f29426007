package notification

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/jwalitptl/scheduler-api/internal/email"
	"github.com/jwalitptl/scheduler-api/internal/model"
	"github.com/jwalitptl/scheduler-api/internal/repository"
	"github.com/jwalitptl/scheduler-api/pkg/messaging"
	"github.com/jwalitptl/scheduler-api/pkg/metrics"
)

const (
	channelBroker = "broker"
	channelEmail  = "email"

	deliveryTimeout = 10 * time.Second
)

// Service delivers events in the background. Delivery failures are logged
// and counted, never returned.
type Service interface {
	Notify(ctx context.Context, event model.Event)
	// Wait blocks until every pending delivery has finished.
	Wait()
}

type service struct {
	broker     messaging.Broker
	emailSvc   email.Service
	therapists repository.TherapistRepository
	metrics    *metrics.Metrics
	logger     zerolog.Logger
	wg         sync.WaitGroup
}

// NewService fans events out to broker and emailSvc; either may be nil.
func NewService(broker messaging.Broker, emailSvc email.Service, therapists repository.TherapistRepository, m *metrics.Metrics, logger zerolog.Logger) Service {
	return &service{
		broker:     broker,
		emailSvc:   emailSvc,
		therapists: therapists,
		metrics:    m,
		logger:     logger.With().Str("component", "notification").Logger(),
	}
}

func (s *service) Notify(ctx context.Context, event model.Event) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now()
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), deliveryTimeout)
		defer cancel()
		s.deliver(ctx, event)
	}()
}

func (s *service) Wait() {
	s.wg.Wait()
}

func (s *service) deliver(ctx context.Context, event model.Event) {
	if s.broker != nil {
		if err := s.broker.Publish(ctx, messaging.Channel, event); err != nil {
			s.failed(channelBroker, event, err)
		}
	}

	if s.emailSvc == nil || event.Type == model.EventAvailabilityFull {
		return
	}

	therapist, err := s.therapists.Get(ctx, event.TherapistID)
	if err != nil {
		s.failed(channelEmail, event, err)
		return
	}
	if therapist.Email == "" {
		return
	}

	switch event.Type {
	case model.EventAppointmentBooked:
		err = s.emailSvc.SendAppointmentBooked(ctx, therapist.Email, event)
	case model.EventAppointmentCancelled:
		err = s.emailSvc.SendAppointmentCancelled(ctx, therapist.Email, event)
	}
	if err != nil {
		s.failed(channelEmail, event, err)
	}
}

func (s *service) failed(channel string, event model.Event, err error) {
	if s.metrics != nil {
		s.metrics.NotificationsFailed.WithLabelValues(channel).Inc()
	}
	s.logger.Error().
		Err(err).
		Str("channel", channel).
		Str("event", event.Type).
		Int64("therapist_id", event.TherapistID).
		Int64("appointment_id", event.AppointmentID).
		Msg("notification delivery failed")
}

type nop struct{}

// Nop discards every event.
func Nop() Service { return nop{} }

func (nop) Notify(context.Context, model.Event) {}
func (nop) Wait()                               {}
