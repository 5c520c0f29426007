// Package repotest is a behavioral suite every repository.Store backend must pass.
package repotest

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/scheduler-api/internal/model"
	"github.com/jwalitptl/scheduler-api/internal/repository"
)

// Run executes the suite. newStore must return an empty store on every call.
func Run(t *testing.T, newStore func(t *testing.T) *repository.Store) {
	t.Run("therapists", func(t *testing.T) { testTherapists(t, newStore(t)) })
	t.Run("services", func(t *testing.T) { testServices(t, newStore(t)) })
	t.Run("availability", func(t *testing.T) { testAvailability(t, newStore(t)) })
	t.Run("appointments", func(t *testing.T) { testAppointments(t, newStore(t)) })
	t.Run("concurrent create", func(t *testing.T) { testConcurrentCreate(t, newStore(t)) })
	t.Run("day locks", func(t *testing.T) { testDayLocks(t, newStore(t)) })
}

var day = civil.Date{Year: 2030, Month: time.March, Day: 4}

func seed(t *testing.T, s *repository.Store, phone string) (*model.Therapist, *model.Service) {
	t.Helper()
	ctx := context.Background()
	th := &model.Therapist{Name: "Noa", Phone: phone, PasswordHash: "x", Role: "USER"}
	require.NoError(t, s.Therapists.Create(ctx, th))
	svc := &model.Service{TherapistID: th.ID, Name: "Session", Duration: 30}
	require.NoError(t, s.Services.Upsert(ctx, svc))
	return th, svc
}

func testTherapists(t *testing.T, s *repository.Store) {
	ctx := context.Background()
	th, _ := seed(t, s, "0501111111")
	require.NotZero(t, th.ID)

	got, err := s.Therapists.GetByPhone(ctx, "0501111111")
	require.NoError(t, err)
	assert.Equal(t, th.ID, got.ID)

	dup := &model.Therapist{Name: "Other", Phone: "0501111111", PasswordHash: "x", Role: "USER"}
	assert.ErrorIs(t, s.Therapists.Create(ctx, dup), repository.ErrDuplicate)

	got.Name = "Noa Levi"
	require.NoError(t, s.Therapists.Update(ctx, got))
	got, err = s.Therapists.Get(ctx, th.ID)
	require.NoError(t, err)
	assert.Equal(t, "Noa Levi", got.Name)

	require.NoError(t, s.Therapists.Delete(ctx, th.ID))
	_, err = s.Therapists.Get(ctx, th.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)
	_, err = s.Services.GetByTherapist(ctx, th.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)
	assert.ErrorIs(t, s.Therapists.Delete(ctx, th.ID), repository.ErrNotFound)
}

func testServices(t *testing.T, s *repository.Store) {
	ctx := context.Background()
	th, svc := seed(t, s, "0502222222")

	again := &model.Service{TherapistID: th.ID, Name: "Long session", Duration: 50}
	require.NoError(t, s.Services.Upsert(ctx, again))
	assert.Equal(t, svc.ID, again.ID)

	got, err := s.Services.GetByTherapist(ctx, th.ID)
	require.NoError(t, err)
	assert.Equal(t, 50, got.Duration)
	assert.Equal(t, "Long session", got.Name)
}

func testAvailability(t *testing.T, s *repository.Store) {
	ctx := context.Background()
	th, _ := seed(t, s, "0503333333")

	_, err := s.Availability.GetWindow(ctx, th.ID, day)
	assert.ErrorIs(t, err, repository.ErrNotFound)

	w := &model.AvailabilityWindow{
		TherapistID: th.ID,
		Date:        day,
		StartTime:   civil.Time{Hour: 9},
		EndTime:     civil.Time{Hour: 12},
	}
	require.NoError(t, s.Availability.UpsertWindow(ctx, w))
	require.NoError(t, s.Availability.SetFull(ctx, th.ID, day, true))

	w.StartTime = civil.Time{Hour: 10, Minute: 30}
	require.NoError(t, s.Availability.UpsertWindow(ctx, w))

	got, err := s.Availability.GetWindow(ctx, th.ID, day)
	require.NoError(t, err)
	assert.Equal(t, civil.Time{Hour: 10, Minute: 30}, got.StartTime)
	assert.Equal(t, civil.Time{Hour: 12}, got.EndTime)
	assert.True(t, got.IsFull, "upsert keeps the derived flag")

	require.NoError(t, s.Availability.SetFull(ctx, th.ID, day.AddDays(9), true), "missing window is not an error")

	next := *w
	next.Date = day.AddDays(1)
	require.NoError(t, s.Availability.UpsertWindow(ctx, &next))

	list, err := s.Availability.ListWindows(ctx, th.ID, day, day.AddDays(1))
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, day, list[0].Date)
	assert.Equal(t, day.AddDays(1), list[1].Date)

	upcoming, err := s.Availability.ListUpcoming(ctx, day.AddDays(1))
	require.NoError(t, err)
	require.Len(t, upcoming, 1)

	require.NoError(t, s.Availability.DeleteWindow(ctx, th.ID, day))
	assert.ErrorIs(t, s.Availability.DeleteWindow(ctx, th.ID, day), repository.ErrNotFound)
}

func testAppointments(t *testing.T, s *repository.Store) {
	ctx := context.Background()
	th, svc := seed(t, s, "0504444444")
	other, _ := seed(t, s, "0505555555")

	client, err := s.Clients.FindOrCreate(ctx, "0521234567", "Dana")
	require.NoError(t, err)
	same, err := s.Clients.FindOrCreate(ctx, "0521234567", "Someone else")
	require.NoError(t, err)
	assert.Equal(t, client.ID, same.ID)
	assert.Equal(t, "Dana", same.Name)

	start := time.Date(2030, time.March, 4, 9, 0, 0, 0, time.UTC)
	apt := &model.Appointment{TherapistID: th.ID, ServiceID: svc.ID, ClientID: client.ID, StartTime: start}
	require.NoError(t, s.Appointments.Create(ctx, apt))
	require.NotZero(t, apt.ID)

	// The same instant written in another zone is the same start time.
	clash := &model.Appointment{TherapistID: th.ID, ServiceID: svc.ID, ClientID: client.ID,
		StartTime: start.In(time.FixedZone("IST", 2*60*60))}
	assert.ErrorIs(t, s.Appointments.Create(ctx, clash), repository.ErrDuplicate)

	taken, err := s.Appointments.ExistsAt(ctx, th.ID, start)
	require.NoError(t, err)
	assert.True(t, taken)
	taken, err = s.Appointments.ExistsAt(ctx, other.ID, start)
	require.NoError(t, err)
	assert.False(t, taken)

	later := &model.Appointment{TherapistID: th.ID, ServiceID: svc.ID, ClientID: client.ID, StartTime: start.Add(24 * time.Hour)}
	require.NoError(t, s.Appointments.Create(ctx, later))

	booked, err := s.Appointments.BookedTimes(ctx, th.ID, start, start.Add(24*time.Hour))
	require.NoError(t, err)
	require.Len(t, booked, 1)
	assert.True(t, booked[0].Equal(start))

	got, err := s.Appointments.Get(ctx, th.ID, apt.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Client)
	assert.Equal(t, "Dana", got.Client.Name)
	_, err = s.Appointments.Get(ctx, other.ID, apt.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)

	list, err := s.Appointments.List(ctx, th.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, apt.ID, list[0].ID)

	clients, err := s.Clients.ListForTherapist(ctx, th.ID)
	require.NoError(t, err)
	require.Len(t, clients, 1)

	assert.ErrorIs(t, s.Appointments.Delete(ctx, other.ID, apt.ID), repository.ErrNotFound)
	require.NoError(t, s.Appointments.Delete(ctx, th.ID, apt.ID))
	assert.ErrorIs(t, s.Appointments.Delete(ctx, th.ID, apt.ID), repository.ErrNotFound)

	taken, err = s.Appointments.ExistsAt(ctx, th.ID, start)
	require.NoError(t, err)
	assert.False(t, taken)
}

func testConcurrentCreate(t *testing.T, s *repository.Store) {
	ctx := context.Background()
	th, svc := seed(t, s, "0506666666")
	client, err := s.Clients.FindOrCreate(ctx, "0527654321", "Dana")
	require.NoError(t, err)

	start := time.Date(2030, time.March, 4, 9, 0, 0, 0, time.UTC)
	var created, duplicates atomic.Int32
	var wg sync.WaitGroup
	for range 12 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			apt := &model.Appointment{TherapistID: th.ID, ServiceID: svc.ID, ClientID: client.ID, StartTime: start}
			switch err := s.Appointments.Create(ctx, apt); {
			case err == nil:
				created.Add(1)
			case assert.ErrorIs(t, err, repository.ErrDuplicate):
				duplicates.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, created.Load())
	assert.EqualValues(t, 11, duplicates.Load())
}

func testDayLocks(t *testing.T, s *repository.Store) {
	require.NotNil(t, s.Locks)
	ctx := context.Background()

	unlock, err := s.Locks.LockDay(ctx, 7, day)
	require.NoError(t, err)

	other, err := s.Locks.LockDay(ctx, 7, day.AddDays(1))
	require.NoError(t, err, "a different date must not wait")
	other()
	other, err = s.Locks.LockDay(ctx, 8, day)
	require.NoError(t, err, "a different therapist must not wait")
	other()

	short, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	_, err = s.Locks.LockDay(short, 7, day)
	assert.Error(t, err, "a held day must block until the context ends")

	acquired := make(chan func(), 1)
	go func() {
		u, err := s.Locks.LockDay(ctx, 7, day)
		if assert.NoError(t, err) {
			acquired <- u
		}
	}()
	select {
	case <-acquired:
		t.Fatal("acquired a held day")
	case <-time.After(20 * time.Millisecond):
	}
	unlock()
	select {
	case u := <-acquired:
		u()
	case <-time.After(2 * time.Second):
		t.Fatal("waiter not released by unlock")
	}
}
