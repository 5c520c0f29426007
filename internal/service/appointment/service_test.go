package appointment

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/scheduler-api/internal/model"
	"github.com/jwalitptl/scheduler-api/internal/repository"
	"github.com/jwalitptl/scheduler-api/internal/repository/memory"
	"github.com/jwalitptl/scheduler-api/internal/service/availability"
	apperrors "github.com/jwalitptl/scheduler-api/pkg/errors"
	"github.com/jwalitptl/scheduler-api/pkg/logger"
	"github.com/jwalitptl/scheduler-api/pkg/metrics"
)

var (
	loc      = time.FixedZone("IST", 2*60*60)
	now      = time.Date(2026, 11, 10, 8, 0, 0, 0, loc)
	tomorrow = civil.DateOf(now).AddDays(1)
)

type fixture struct {
	db           *memory.DB
	store        *repository.Store
	availability *availability.Service
	svc          *Service
	metrics      *metrics.Metrics
	therapist    *model.Therapist
	service      *model.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	db := memory.New()
	store := memory.NewStore(db)

	therapist := &model.Therapist{Name: "Noa", Phone: "0500000001", Role: model.RoleUser}
	require.NoError(t, store.Therapists.Create(ctx, therapist))
	service := &model.Service{TherapistID: therapist.ID, Name: "Session", Duration: 30}
	require.NoError(t, store.Services.Upsert(ctx, service))

	m := metrics.New("test", nil)
	avail := availability.NewService(store, availability.Config{Location: loc, Now: func() time.Time { return now }}, nil, m, logger.Nop())

	return &fixture{
		db:           db,
		store:        store,
		availability: avail,
		svc:          NewService(store, avail, nil, m, logger.Nop()),
		metrics:      m,
		therapist:    therapist,
		service:      service,
	}
}

func (f *fixture) declare(t *testing.T, start, end civil.Time) {
	t.Helper()
	_, err := f.availability.DeclareWindow(context.Background(), f.therapist.ID, tomorrow, start, end)
	require.NoError(t, err)
}

func (f *fixture) isFull(t *testing.T) bool {
	t.Helper()
	w, err := f.store.Availability.GetWindow(context.Background(), f.therapist.ID, tomorrow)
	require.NoError(t, err)
	return w.IsFull
}

func request(at civil.Time, phone string) model.BookAppointmentRequest {
	return model.BookAppointmentRequest{
		StartTime:   civil.DateTime{Date: tomorrow, Time: at},
		ClientName:  "Dana",
		ClientPhone: phone,
	}
}

func TestBook_FillsAndCancelReopensDay(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.declare(t, civil.Time{Hour: 9}, civil.Time{Hour: 9, Minute: 30})

	booking, err := f.svc.Book(ctx, f.therapist.ID, request(civil.Time{Hour: 9}, "0521111111"))
	require.NoError(t, err)
	assert.False(t, booking.Degraded())

	apt := booking.Appointment
	assert.NotZero(t, apt.ID)
	assert.Equal(t, f.service.ID, apt.ServiceID)
	assert.True(t, apt.StartTime.Equal(time.Date(2026, 11, 11, 9, 0, 0, 0, loc)))
	require.NotNil(t, apt.Client)
	assert.Equal(t, "0521111111", apt.Client.Phone)
	assert.True(t, f.isFull(t))

	cancellation, err := f.svc.Cancel(ctx, f.therapist.ID, apt.ID)
	require.NoError(t, err)
	assert.False(t, cancellation.Degraded())
	assert.Equal(t, apt.ID, cancellation.Appointment.ID)
	assert.False(t, f.isFull(t))

	times, err := f.availability.AvailableTimes(ctx, f.therapist.ID, tomorrow)
	require.NoError(t, err)
	assert.Equal(t, []civil.Time{{Hour: 9}}, times)
}

func TestBook_Conflict(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.declare(t, civil.Time{Hour: 9}, civil.Time{Hour: 12})

	_, err := f.svc.Book(ctx, f.therapist.ID, request(civil.Time{Hour: 10}, "0521111111"))
	require.NoError(t, err)

	_, err = f.svc.Book(ctx, f.therapist.ID, request(civil.Time{Hour: 10}, "0522222222"))
	assert.True(t, apperrors.Is(err, apperrors.ErrConflict))

	clients, err := f.svc.Clients(ctx, f.therapist.ID)
	require.NoError(t, err)
	assert.Len(t, clients, 1)
	probe, err := f.store.Clients.FindOrCreate(ctx, "0522222222", "probe")
	require.NoError(t, err)
	assert.Equal(t, "probe", probe.Name, "rejected booking created no client")

	apts, err := f.svc.List(ctx, f.therapist.ID)
	require.NoError(t, err)
	assert.Len(t, apts, 1)
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.Bookings.WithLabelValues("conflict")))
}

func TestBook_Concurrent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.declare(t, civil.Time{Hour: 9}, civil.Time{Hour: 12})

	const n = 16
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		conflicts int
	)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			phone := fmt.Sprintf("05200000%02d", i)
			_, err := f.svc.Book(ctx, f.therapist.ID, request(civil.Time{Hour: 11}, phone))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case apperrors.Is(err, apperrors.ErrConflict):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, n-1, conflicts)

	apts, err := f.svc.List(ctx, f.therapist.ID)
	require.NoError(t, err)
	assert.Len(t, apts, 1)
}

func TestBook_OutsideWindowAllowed(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.declare(t, civil.Time{Hour: 9}, civil.Time{Hour: 9, Minute: 30})

	booking, err := f.svc.Book(ctx, f.therapist.ID, request(civil.Time{Hour: 18, Minute: 10}, "0521111111"))
	require.NoError(t, err)
	assert.False(t, booking.Degraded())
	assert.False(t, f.isFull(t), "the 09:00 slot is still free")
}

func TestBook_WithoutWindow(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	booking, err := f.svc.Book(ctx, f.therapist.ID, request(civil.Time{Hour: 9}, "0521111111"))
	require.NoError(t, err)
	assert.False(t, booking.Degraded())
}

func TestBook_Degraded(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.declare(t, civil.Time{Hour: 9}, civil.Time{Hour: 9, Minute: 30})

	f.db.FailSetFull = errors.New("disk full")
	booking, err := f.svc.Book(ctx, f.therapist.ID, request(civil.Time{Hour: 9}, "0521111111"))
	require.NoError(t, err)
	require.True(t, booking.Degraded())
	assert.ErrorIs(t, booking.AvailabilityErr, availability.ErrStale)
	assert.NotZero(t, booking.Appointment.ID)
	assert.False(t, f.isFull(t))

	cancellation, err := f.svc.Cancel(ctx, f.therapist.ID, booking.Appointment.ID)
	require.NoError(t, err)
	assert.True(t, cancellation.Degraded())

	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.Bookings.WithLabelValues("degraded")))
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.Cancellations.WithLabelValues("degraded")))
}

func TestBook_ResolvesService(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	req := request(civil.Time{Hour: 9}, "0521111111")
	req.ServiceID = f.service.ID + 100
	_, err := f.svc.Book(ctx, f.therapist.ID, req)
	assert.True(t, apperrors.Is(err, apperrors.ErrNotFound))

	req.ServiceID = f.service.ID
	_, err = f.svc.Book(ctx, f.therapist.ID, req)
	assert.NoError(t, err)

	_, err = f.svc.Book(ctx, 999, request(civil.Time{Hour: 9}, "0521111111"))
	assert.True(t, apperrors.Is(err, apperrors.ErrNotFound))

	bad := request(civil.Time{Hour: 9}, "0521111111")
	bad.StartTime.Time.Hour = 24
	_, err = f.svc.Book(ctx, f.therapist.ID, bad)
	assert.True(t, apperrors.Is(err, apperrors.ErrBadRequest))
}

func TestBook_ReusesClientByPhone(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	first, err := f.svc.Book(ctx, f.therapist.ID, request(civil.Time{Hour: 9}, "0521111111"))
	require.NoError(t, err)
	second, err := f.svc.Book(ctx, f.therapist.ID, request(civil.Time{Hour: 10}, "0521111111"))
	require.NoError(t, err)
	assert.Equal(t, first.Appointment.ClientID, second.Appointment.ClientID)
}

func TestCancel_ScopedToTherapist(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	booking, err := f.svc.Book(ctx, f.therapist.ID, request(civil.Time{Hour: 9}, "0521111111"))
	require.NoError(t, err)

	other := &model.Therapist{Name: "Gil", Phone: "0500000002"}
	require.NoError(t, f.store.Therapists.Create(ctx, other))

	_, err = f.svc.Cancel(ctx, other.ID, booking.Appointment.ID)
	assert.True(t, apperrors.Is(err, apperrors.ErrNotFound))
	_, err = f.svc.Get(ctx, other.ID, booking.Appointment.ID)
	assert.True(t, apperrors.Is(err, apperrors.ErrNotFound))

	_, err = f.svc.Get(ctx, f.therapist.ID, booking.Appointment.ID)
	assert.NoError(t, err)

	_, err = f.svc.Cancel(ctx, f.therapist.ID, booking.Appointment.ID)
	require.NoError(t, err)
	_, err = f.svc.Cancel(ctx, f.therapist.ID, booking.Appointment.ID)
	assert.True(t, apperrors.Is(err, apperrors.ErrNotFound))
}

func TestCalendar(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.svc.Book(ctx, f.therapist.ID, request(civil.Time{Hour: 10}, "0521111111"))
	require.NoError(t, err)
	_, err = f.svc.Book(ctx, f.therapist.ID, request(civil.Time{Hour: 9}, "0522222222"))
	require.NoError(t, err)

	entries, err := f.svc.Calendar(ctx, f.therapist.ID)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, "Dana", entries[0].Title)
	assert.Equal(t, "0522222222", entries[0].Category)
	assert.Equal(t, 30*time.Minute, entries[0].End.Sub(entries[0].Start))
	assert.True(t, entries[0].Start.Before(entries[1].Start))
}
