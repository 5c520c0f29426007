package availability

import (
	"context"
	"errors"
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
	apperrors "github.com/jwalitptl/scheduler-api/pkg/errors"
	"github.com/jwalitptl/scheduler-api/pkg/logger"
	"github.com/jwalitptl/scheduler-api/pkg/metrics"
)

var (
	now      = time.Date(2026, 11, 10, 12, 0, 0, 0, time.UTC)
	today    = civil.DateOf(now)
	tomorrow = today.AddDays(1)
)

type recordingNotifier struct {
	mu     sync.Mutex
	events []model.Event
}

func (n *recordingNotifier) Notify(_ context.Context, e model.Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, e)
}

func (n *recordingNotifier) Wait() {}

type fixture struct {
	db          *memory.DB
	store       *repository.Store
	svc         *Service
	notifier    *recordingNotifier
	metrics     *metrics.Metrics
	therapistID int64
}

func newFixture(t *testing.T, duration int) *fixture {
	t.Helper()
	ctx := context.Background()

	db := memory.New()
	store := memory.NewStore(db)

	therapist := &model.Therapist{Name: "Noa", Phone: "0500000001", Role: model.RoleUser}
	require.NoError(t, store.Therapists.Create(ctx, therapist))
	require.NoError(t, store.Services.Upsert(ctx, &model.Service{TherapistID: therapist.ID, Name: "Session", Duration: duration}))

	n := &recordingNotifier{}
	m := metrics.New("test", nil)
	svc := NewService(store, Config{Location: time.UTC, Now: func() time.Time { return now }}, n, m, logger.Nop())

	return &fixture{db: db, store: store, svc: svc, notifier: n, metrics: m, therapistID: therapist.ID}
}

func clock(h, m int) civil.Time {
	return civil.Time{Hour: h, Minute: m}
}

func (f *fixture) book(t *testing.T, date civil.Date, at civil.Time) *model.Appointment {
	t.Helper()
	apt := &model.Appointment{TherapistID: f.therapistID, StartTime: model.At(date, at, time.UTC)}
	require.NoError(t, f.store.Appointments.Create(context.Background(), apt))
	return apt
}

func (f *fixture) window(t *testing.T, date civil.Date) *model.AvailabilityWindow {
	t.Helper()
	w, err := f.store.Availability.GetWindow(context.Background(), f.therapistID, date)
	require.NoError(t, err)
	return w
}

func TestAvailableTimes_Scenarios(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 30)

	_, err := f.svc.DeclareWindow(ctx, f.therapistID, tomorrow, clock(9, 0), clock(12, 0))
	require.NoError(t, err)

	times, err := f.svc.AvailableTimes(ctx, f.therapistID, tomorrow)
	require.NoError(t, err)
	assert.Equal(t, []civil.Time{clock(9, 0), clock(9, 30), clock(10, 0), clock(10, 30), clock(11, 0), clock(11, 30)}, times)

	f.book(t, tomorrow, clock(10, 0))

	times, err = f.svc.AvailableTimes(ctx, f.therapistID, tomorrow)
	require.NoError(t, err)
	assert.Equal(t, []civil.Time{clock(9, 0), clock(9, 30), clock(10, 30), clock(11, 0), clock(11, 30)}, times)

	res, err := f.svc.Recompute(ctx, f.therapistID, tomorrow)
	require.NoError(t, err)
	assert.Equal(t, Result{Tracked: true, Full: false}, res)
	assert.False(t, f.window(t, tomorrow).IsFull)
}

func TestRecompute_FullAndBack(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 30)

	_, err := f.svc.DeclareWindow(ctx, f.therapistID, tomorrow, clock(9, 0), clock(9, 30))
	require.NoError(t, err)

	times, err := f.svc.AvailableTimes(ctx, f.therapistID, tomorrow)
	require.NoError(t, err)
	assert.Equal(t, []civil.Time{clock(9, 0)}, times)

	apt := f.book(t, tomorrow, clock(9, 0))
	res, err := f.svc.Recompute(ctx, f.therapistID, tomorrow)
	require.NoError(t, err)
	assert.True(t, res.Full)
	assert.True(t, f.window(t, tomorrow).IsFull)
	require.Len(t, f.notifier.events, 1)
	assert.Equal(t, model.EventAvailabilityFull, f.notifier.events[0].Type)
	assert.Equal(t, tomorrow, f.notifier.events[0].Date)

	// Still full: no second transition event.
	res, err = f.svc.Recompute(ctx, f.therapistID, tomorrow)
	require.NoError(t, err)
	assert.True(t, res.Full)
	assert.Len(t, f.notifier.events, 1)
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.DaysMarkedFull))

	require.NoError(t, f.store.Appointments.Delete(ctx, f.therapistID, apt.ID))
	res, err = f.svc.Recompute(ctx, f.therapistID, tomorrow)
	require.NoError(t, err)
	assert.False(t, res.Full)
	assert.False(t, f.window(t, tomorrow).IsFull)
}

func TestRecompute_Idempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 45)

	_, err := f.svc.DeclareWindow(ctx, f.therapistID, tomorrow, clock(9, 0), clock(11, 0))
	require.NoError(t, err)
	f.book(t, tomorrow, clock(9, 0))

	first, err := f.svc.Recompute(ctx, f.therapistID, tomorrow)
	require.NoError(t, err)
	second, err := f.svc.Recompute(ctx, f.therapistID, tomorrow)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.False(t, second.Full)
}

func TestRecompute_Untracked(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 30)

	res, err := f.svc.Recompute(ctx, f.therapistID, tomorrow)
	require.NoError(t, err)
	assert.False(t, res.Tracked)

	other := &model.Therapist{Name: "Gil", Phone: "0500000002"}
	require.NoError(t, f.store.Therapists.Create(ctx, other))
	require.NoError(t, f.store.Availability.UpsertWindow(ctx, &model.AvailabilityWindow{
		TherapistID: other.ID, Date: tomorrow, StartTime: clock(9, 0), EndTime: clock(10, 0),
	}))
	res, err = f.svc.Recompute(ctx, other.ID, tomorrow)
	require.NoError(t, err)
	assert.False(t, res.Tracked, "no service")

	yesterday := today.AddDays(-1)
	require.NoError(t, f.store.Availability.UpsertWindow(ctx, &model.AvailabilityWindow{
		TherapistID: f.therapistID, Date: yesterday, StartTime: clock(9, 0), EndTime: clock(10, 0),
	}))
	res, err = f.svc.Recompute(ctx, f.therapistID, yesterday)
	require.NoError(t, err)
	assert.False(t, res.Tracked, "past date")
	assert.False(t, f.window(t, yesterday).IsFull)

	assert.Equal(t, float64(3), testutil.ToFloat64(f.metrics.Recomputes.WithLabelValues("noop")))
}

func TestRecompute_StaleFlag(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 30)

	_, err := f.svc.DeclareWindow(ctx, f.therapistID, tomorrow, clock(9, 0), clock(9, 30))
	require.NoError(t, err)
	f.book(t, tomorrow, clock(9, 0))

	f.db.FailSetFull = errors.New("disk full")
	res, err := f.svc.Recompute(ctx, f.therapistID, tomorrow)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStale)
	assert.True(t, apperrors.Is(err, apperrors.ErrInternal))
	assert.Equal(t, Result{Tracked: true, Full: true}, res)
	assert.False(t, f.window(t, tomorrow).IsFull, "stored flag lags")
	assert.Empty(t, f.notifier.events)

	f.db.FailSetFull = nil
	_, err = f.svc.Recompute(ctx, f.therapistID, tomorrow)
	require.NoError(t, err)
	assert.True(t, f.window(t, tomorrow).IsFull)
}

func TestRecompute_SerializedPerDay(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 30)

	_, err := f.svc.DeclareWindow(ctx, f.therapistID, tomorrow, clock(9, 0), clock(12, 0))
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make([]Result, 32)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := f.svc.Recompute(ctx, f.therapistID, tomorrow)
			assert.NoError(t, err)
			results[i] = res
		}()
	}
	wg.Wait()

	for _, r := range results {
		assert.Equal(t, Result{Tracked: true}, r)
	}
	assert.Zero(t, f.svc.locks.size())
}

func TestAvailableTimes_TodayCutoff(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 30)

	_, err := f.svc.DeclareWindow(ctx, f.therapistID, today, clock(9, 0), clock(13, 30))
	require.NoError(t, err)

	times, err := f.svc.AvailableTimes(ctx, f.therapistID, today)
	require.NoError(t, err)
	assert.Equal(t, []civil.Time{clock(12, 30), clock(13, 0)}, times, "12:00 equals now and is excluded")
}

func TestAvailableTimes_Errors(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 30)

	_, err := f.svc.AvailableTimes(ctx, 999, tomorrow)
	assert.True(t, apperrors.Is(err, apperrors.ErrNotFound))

	_, err = f.svc.AvailableTimes(ctx, f.therapistID, tomorrow)
	assert.True(t, apperrors.Is(err, apperrors.ErrNotFound))

	yesterday := today.AddDays(-1)
	require.NoError(t, f.store.Availability.UpsertWindow(ctx, &model.AvailabilityWindow{
		TherapistID: f.therapistID, Date: yesterday, StartTime: clock(9, 0), EndTime: clock(10, 0),
	}))
	times, err := f.svc.AvailableTimes(ctx, f.therapistID, yesterday)
	require.NoError(t, err)
	assert.Empty(t, times)
}

func TestListOpenDates(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 30)

	past := today.AddDays(-5)
	require.NoError(t, f.store.Availability.UpsertWindow(ctx, &model.AvailabilityWindow{
		TherapistID: f.therapistID, Date: past, StartTime: clock(9, 0), EndTime: clock(12, 0),
	}))

	// Today's window already ended.
	_, err := f.svc.DeclareWindow(ctx, f.therapistID, today, clock(9, 0), clock(12, 0))
	require.NoError(t, err)
	_, err = f.svc.DeclareWindow(ctx, f.therapistID, tomorrow, clock(9, 0), clock(12, 0))
	require.NoError(t, err)
	booked := today.AddDays(2)
	_, err = f.svc.DeclareWindow(ctx, f.therapistID, booked, clock(9, 0), clock(9, 30))
	require.NoError(t, err)
	f.book(t, booked, clock(9, 0))
	nextMonth := civil.Date{Year: 2026, Month: time.December, Day: 3}
	_, err = f.svc.DeclareWindow(ctx, f.therapistID, nextMonth, clock(9, 0), clock(12, 0))
	require.NoError(t, err)

	dates, err := f.svc.ListOpenDates(ctx, f.therapistID, civil.Date{Year: 2026, Month: time.November, Day: 1})
	require.NoError(t, err)
	assert.Equal(t, []civil.Date{tomorrow}, dates)

	assert.True(t, f.window(t, today).IsFull)
	assert.True(t, f.window(t, booked).IsFull)
	assert.False(t, f.window(t, past).IsFull)

	dates, err = f.svc.ListOpenDates(ctx, f.therapistID, civil.Date{Year: 2026, Month: time.December, Day: 1})
	require.NoError(t, err)
	assert.Equal(t, []civil.Date{nextMonth}, dates)

	dates, err = f.svc.ListOpenDates(ctx, f.therapistID, civil.Date{Year: 2026, Month: time.October, Day: 1})
	require.NoError(t, err)
	assert.Empty(t, dates)

	_, err = f.svc.ListOpenDates(ctx, 999, civil.Date{Year: 2026, Month: time.November, Day: 1})
	assert.True(t, apperrors.Is(err, apperrors.ErrNotFound))
}

func TestListOpenDates_ToleratesStaleFlags(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 30)

	_, err := f.svc.DeclareWindow(ctx, f.therapistID, tomorrow, clock(9, 0), clock(12, 0))
	require.NoError(t, err)

	f.db.FailSetFull = errors.New("disk full")
	dates, err := f.svc.ListOpenDates(ctx, f.therapistID, today)
	require.NoError(t, err)
	assert.Equal(t, []civil.Date{tomorrow}, dates)
}

func TestDeclareWindow_Validation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 30)

	tests := []struct {
		name       string
		date       civil.Date
		start, end civil.Time
		code       apperrors.ErrorCode
	}{
		{"start after end", tomorrow, clock(12, 0), clock(9, 0), apperrors.ErrConfiguration},
		{"empty window", tomorrow, clock(9, 0), clock(9, 0), apperrors.ErrConfiguration},
		{"invalid clock", tomorrow, civil.Time{Hour: 25}, clock(9, 0), apperrors.ErrConfiguration},
		{"past date", today.AddDays(-1), clock(9, 0), clock(12, 0), apperrors.ErrBadRequest},
		{"invalid date", civil.Date{Year: 2026, Month: 2, Day: 30}, clock(9, 0), clock(12, 0), apperrors.ErrBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.DeclareWindow(ctx, f.therapistID, tt.date, tt.start, tt.end)
			assert.True(t, apperrors.Is(err, tt.code), "got %v", err)
		})
	}
}

func TestDeclareWindow_Replaces(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 30)

	_, err := f.svc.DeclareWindow(ctx, f.therapistID, tomorrow, clock(9, 0), clock(9, 30))
	require.NoError(t, err)
	f.book(t, tomorrow, clock(9, 0))
	_, err = f.svc.Recompute(ctx, f.therapistID, tomorrow)
	require.NoError(t, err)
	require.True(t, f.window(t, tomorrow).IsFull)

	w, err := f.svc.DeclareWindow(ctx, f.therapistID, tomorrow, clock(9, 0), clock(11, 0))
	require.NoError(t, err)
	assert.False(t, w.IsFull)
	assert.False(t, f.window(t, tomorrow).IsFull)
	assert.Equal(t, clock(11, 0), f.window(t, tomorrow).EndTime)
}

func TestDeclareRange(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 30)

	start := civil.DateTime{Date: today.AddDays(-2), Time: clock(9, 0)}
	end := civil.DateTime{Date: today.AddDays(3), Time: clock(17, 0)}

	windows, err := f.svc.DeclareRange(ctx, f.therapistID, start, end)
	require.NoError(t, err)
	require.Len(t, windows, 3, "past dates skipped, end date excluded")
	assert.Equal(t, today, windows[0].Date)
	assert.Equal(t, today.AddDays(2), windows[2].Date)
	for _, w := range windows {
		assert.Equal(t, clock(9, 0), w.StartTime)
		assert.Equal(t, clock(17, 0), w.EndTime)
	}

	_, err = f.svc.DeclareRange(ctx, f.therapistID, end, start)
	assert.True(t, apperrors.Is(err, apperrors.ErrBadRequest))

	_, err = f.svc.DeclareRange(ctx, f.therapistID,
		civil.DateTime{Date: tomorrow, Time: clock(17, 0)},
		civil.DateTime{Date: tomorrow.AddDays(2), Time: clock(9, 0)})
	assert.True(t, apperrors.Is(err, apperrors.ErrConfiguration))

	_, err = f.svc.DeclareRange(ctx, f.therapistID,
		civil.DateTime{Date: tomorrow, Time: clock(9, 0)},
		civil.DateTime{Date: tomorrow.AddDays(MaxRangeDays + 1), Time: clock(17, 0)})
	assert.True(t, apperrors.Is(err, apperrors.ErrBadRequest))
}

func TestDeleteWindow(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 30)

	_, err := f.svc.DeclareWindow(ctx, f.therapistID, tomorrow, clock(9, 0), clock(12, 0))
	require.NoError(t, err)

	require.NoError(t, f.svc.DeleteWindow(ctx, f.therapistID, tomorrow))
	err = f.svc.DeleteWindow(ctx, f.therapistID, tomorrow)
	assert.True(t, apperrors.Is(err, apperrors.ErrNotFound))
}

func TestInvalidateService(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 30)

	_, err := f.svc.DeclareWindow(ctx, f.therapistID, tomorrow, clock(9, 0), clock(12, 0))
	require.NoError(t, err)
	times, err := f.svc.AvailableTimes(ctx, f.therapistID, tomorrow)
	require.NoError(t, err)
	require.Len(t, times, 6)

	require.NoError(t, f.store.Services.Upsert(ctx, &model.Service{TherapistID: f.therapistID, Name: "Long", Duration: 60}))
	times, err = f.svc.AvailableTimes(ctx, f.therapistID, tomorrow)
	require.NoError(t, err)
	assert.Len(t, times, 6, "cached duration")

	f.svc.InvalidateService(f.therapistID)
	times, err = f.svc.AvailableTimes(ctx, f.therapistID, tomorrow)
	require.NoError(t, err)
	assert.Equal(t, []civil.Time{clock(9, 0), clock(10, 0), clock(11, 0)}, times)
}

func TestSweep(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 30)

	_, err := f.svc.DeclareWindow(ctx, f.therapistID, tomorrow, clock(9, 0), clock(9, 30))
	require.NoError(t, err)
	_, err = f.svc.DeclareWindow(ctx, f.therapistID, tomorrow.AddDays(1), clock(9, 0), clock(12, 0))
	require.NoError(t, err)

	// Booked behind the service's back: the stored flag is stale.
	f.book(t, tomorrow, clock(9, 0))
	require.False(t, f.window(t, tomorrow).IsFull)

	res, err := f.svc.Sweep(ctx, today)
	require.NoError(t, err)
	assert.Equal(t, SweepResult{Windows: 2, Full: 1}, res)
	assert.True(t, f.window(t, tomorrow).IsFull)
	require.Len(t, f.notifier.events, 1, "a sweep that fills a day publishes it")
	assert.Equal(t, model.EventAvailabilityFull, f.notifier.events[0].Type)
	assert.Equal(t, tomorrow, f.notifier.events[0].Date)

	res, err = f.svc.RecomputeUpcoming(ctx, f.therapistID, tomorrow.AddDays(1))
	require.NoError(t, err)
	assert.Equal(t, SweepResult{Windows: 1}, res)
}

func TestSweeperSeesServiceChanges(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 30)
	sweeper := NewService(f.store, Config{
		Location:            time.UTC,
		Now:                 func() time.Time { return now },
		DisableServiceCache: true,
	}, nil, nil, logger.Nop())

	_, err := f.svc.DeclareWindow(ctx, f.therapistID, tomorrow, clock(9, 0), clock(10, 0))
	require.NoError(t, err)
	_, err = sweeper.Sweep(ctx, today)
	require.NoError(t, err)
	require.False(t, f.window(t, tomorrow).IsFull)

	// A 120 minute session no longer fits the one hour window.
	require.NoError(t, f.store.Services.Upsert(ctx, &model.Service{TherapistID: f.therapistID, Name: "Long", Duration: 120}))
	f.svc.InvalidateService(f.therapistID)
	res, err := f.svc.Recompute(ctx, f.therapistID, tomorrow)
	require.NoError(t, err)
	require.True(t, res.Full)

	res, err = sweeper.Recompute(ctx, f.therapistID, tomorrow)
	require.NoError(t, err)
	assert.True(t, res.Full)
	assert.True(t, f.window(t, tomorrow).IsFull)
}

type countingLocker struct {
	mu     sync.Mutex
	locked int
	held   int
	err    error
}

func (l *countingLocker) LockDay(context.Context, int64, civil.Date) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return nil, l.err
	}
	l.locked++
	l.held++
	return func() {
		l.mu.Lock()
		l.held--
		l.mu.Unlock()
	}, nil
}

func TestRecompute_TakesStoreDayLock(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 30)
	_, err := f.svc.DeclareWindow(ctx, f.therapistID, tomorrow, clock(9, 0), clock(10, 0))
	require.NoError(t, err)

	locker := &countingLocker{}
	store := *f.store
	store.Locks = locker
	svc := NewService(&store, Config{Location: time.UTC, Now: func() time.Time { return now }}, nil, nil, logger.Nop())

	_, err = svc.Recompute(ctx, f.therapistID, tomorrow)
	require.NoError(t, err)
	assert.Equal(t, 1, locker.locked)
	assert.Zero(t, locker.held)

	locker.err = errors.New("connection refused")
	_, err = svc.Recompute(ctx, f.therapistID, tomorrow)
	assert.True(t, apperrors.Is(err, apperrors.ErrInternal))
}

func TestRecompute_SerializedAcrossServices(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 30)
	_, err := f.svc.DeclareWindow(ctx, f.therapistID, tomorrow, clock(9, 0), clock(10, 0))
	require.NoError(t, err)

	// Another process sharing the store holds the day.
	unlock, err := f.store.Locks.LockDay(ctx, f.therapistID, tomorrow)
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := f.svc.Recompute(ctx, f.therapistID, tomorrow)
		assert.NoError(t, err)
	}()

	select {
	case <-done:
		t.Fatal("recompute ran while the day was locked")
	case <-time.After(20 * time.Millisecond):
	}
	unlock()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("recompute did not resume")
	}
}
