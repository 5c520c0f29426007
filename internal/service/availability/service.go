package availability

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strconv"
	"time"

	"cloud.google.com/go/civil"
	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"

	"github.com/jwalitptl/scheduler-api/internal/model"
	"github.com/jwalitptl/scheduler-api/internal/repository"
	"github.com/jwalitptl/scheduler-api/internal/service/notification"
	"github.com/jwalitptl/scheduler-api/internal/slot"
	apperrors "github.com/jwalitptl/scheduler-api/pkg/errors"
	"github.com/jwalitptl/scheduler-api/pkg/metrics"
)

// ErrStale wraps a failed flag write. The Result returned alongside it is
// still accurate; only the stored flag lags behind.
var ErrStale = errors.New("availability flag not persisted")

// MaxRangeDays bounds DeclareRange.
const MaxRangeDays = 366

var endOfTime = civil.Date{Year: 9999, Month: time.December, Day: 31}

type Config struct {
	Location        *time.Location
	ServiceCacheTTL time.Duration
	// DisableServiceCache reads the service on every recompute. Processes
	// that never see InvalidateService (the sweeper) must set it.
	DisableServiceCache bool
	// Now defaults to time.Now.
	Now func() time.Time
}

// Result is the outcome of a recompute.
type Result struct {
	// Tracked is false when the date has no window or the therapist no service.
	Tracked bool
	Full    bool
}

// SweepResult summarizes a recompute over many windows.
type SweepResult struct {
	Windows int
	Full    int
	Failed  int
}

type Service struct {
	therapists   repository.TherapistRepository
	services     repository.ServiceRepository
	windows      repository.AvailabilityRepository
	appointments repository.AppointmentRepository
	notifier     notification.Service
	metrics      *metrics.Metrics
	logger       zerolog.Logger

	loc       *time.Location
	now       func() time.Time
	durations *cache.Cache
	locks     *dayLocks
	dayLocker repository.DayLocker
}

func NewService(store *repository.Store, cfg Config, notifier notification.Service, m *metrics.Metrics, logger zerolog.Logger) *Service {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.ServiceCacheTTL <= 0 {
		cfg.ServiceCacheTTL = 5 * time.Minute
	}
	if notifier == nil {
		notifier = notification.Nop()
	}
	if m == nil {
		m = metrics.New("scheduler", nil)
	}
	var durations *cache.Cache
	if !cfg.DisableServiceCache {
		durations = cache.New(cfg.ServiceCacheTTL, 2*cfg.ServiceCacheTTL)
	}
	return &Service{
		therapists:   store.Therapists,
		services:     store.Services,
		windows:      store.Availability,
		appointments: store.Appointments,
		notifier:     notifier,
		metrics:      m,
		logger:       logger.With().Str("component", "availability").Logger(),
		loc:          cfg.Location,
		now:          cfg.Now,
		durations:    durations,
		locks:        newDayLocks(),
		dayLocker:    store.Locks,
	}
}

// Location is the zone every civil date and time is interpreted in.
func (s *Service) Location() *time.Location {
	return s.loc
}

// Today returns the current date in the configured zone.
func (s *Service) Today() civil.Date {
	return civil.DateOf(s.now().In(s.loc))
}

// InvalidateService drops the cached slot length of a therapist.
func (s *Service) InvalidateService(therapistID int64) {
	if s.durations == nil {
		return
	}
	s.durations.Delete(strconv.FormatInt(therapistID, 10))
}

// slotLength returns the therapist's service duration. ok is false when the
// therapist has no service.
func (s *Service) slotLength(ctx context.Context, therapistID int64) (d time.Duration, ok bool, err error) {
	key := strconv.FormatInt(therapistID, 10)
	if s.durations != nil {
		if v, found := s.durations.Get(key); found {
			return v.(time.Duration), true, nil
		}
	}

	svc, err := s.services.GetByTherapist(ctx, therapistID)
	if errors.Is(err, repository.ErrNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, apperrors.Internal(fmt.Errorf("failed to get service: %w", err))
	}

	d = svc.SlotLength()
	if s.durations != nil {
		s.durations.SetDefault(key, d)
	}
	return d, true, nil
}

// live returns the bookable slots of window given slot length d.
func (s *Service) live(ctx context.Context, window *model.AvailabilityWindow, d time.Duration) (iter.Seq[time.Time], error) {
	start, end := window.Bounds(s.loc)
	candidates, err := slot.Generate(start, end, d)
	if err != nil {
		return nil, apperrors.Configuration("service duration must be positive", err)
	}

	dayStart := model.At(window.Date, civil.Time{}, s.loc)
	dayEnd := model.At(window.Date.AddDays(1), civil.Time{}, s.loc)
	booked, err := s.appointments.BookedTimes(ctx, window.TherapistID, dayStart, dayEnd)
	if err != nil {
		return nil, apperrors.Internal(fmt.Errorf("failed to list booked times: %w", err))
	}

	return slot.Filter(candidates, booked, window.Date, s.now().In(s.loc)), nil
}

// Recompute derives and stores the full flag of (therapistID, date). Calls for
// the same key are serialized in this process and, through the store's
// DayLocker, across processes. Past dates, dates without a window and
// therapists without a service are left untouched.
func (s *Service) Recompute(ctx context.Context, therapistID int64, date civil.Date) (Result, error) {
	unlock := s.locks.lock(therapistID, date)
	defer unlock()

	started := time.Now()
	res, err := s.lockedRecompute(ctx, therapistID, date)
	s.metrics.RecomputeLatency.Observe(time.Since(started).Seconds())

	switch {
	case err != nil:
		s.metrics.Recomputes.WithLabelValues("error").Inc()
	case !res.Tracked:
		s.metrics.Recomputes.WithLabelValues("noop").Inc()
	default:
		s.metrics.Recomputes.WithLabelValues("ok").Inc()
	}
	return res, err
}

func (s *Service) lockedRecompute(ctx context.Context, therapistID int64, date civil.Date) (Result, error) {
	if s.dayLocker == nil {
		return s.recompute(ctx, therapistID, date)
	}
	unlock, err := s.dayLocker.LockDay(ctx, therapistID, date)
	if err != nil {
		return Result{}, apperrors.Internal(fmt.Errorf("failed to lock day: %w", err))
	}
	defer unlock()
	return s.recompute(ctx, therapistID, date)
}

func (s *Service) recompute(ctx context.Context, therapistID int64, date civil.Date) (Result, error) {
	if date.Before(s.Today()) {
		return Result{}, nil
	}

	window, err := s.windows.GetWindow(ctx, therapistID, date)
	if errors.Is(err, repository.ErrNotFound) {
		return Result{}, nil
	}
	if err != nil {
		return Result{}, apperrors.Internal(fmt.Errorf("failed to get window: %w", err))
	}

	d, ok, err := s.slotLength(ctx, therapistID)
	if err != nil || !ok {
		return Result{}, err
	}

	live, err := s.live(ctx, window, d)
	if err != nil {
		return Result{}, err
	}

	res := Result{Tracked: true, Full: slot.Empty(live)}
	if err := s.windows.SetFull(ctx, therapistID, date, res.Full); err != nil {
		s.logger.Warn().
			Err(err).
			Int64("therapist_id", therapistID).
			Str("date", date.String()).
			Bool("is_full", res.Full).
			Msg("failed to persist availability flag")
		return res, apperrors.Internal(fmt.Errorf("%w: %w", ErrStale, err))
	}

	if res.Full && !window.IsFull {
		s.metrics.DaysMarkedFull.Inc()
		s.notifier.Notify(ctx, model.Event{
			Type:        model.EventAvailabilityFull,
			TherapistID: therapistID,
			Date:        date,
			OccurredAt:  s.now(),
		})
	}
	return res, nil
}

// AvailableTimes lists the bookable start times of one date.
func (s *Service) AvailableTimes(ctx context.Context, therapistID int64, date civil.Date) ([]civil.Time, error) {
	if err := s.requireTherapist(ctx, therapistID); err != nil {
		return nil, err
	}

	window, err := s.windows.GetWindow(ctx, therapistID, date)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.NotFound("availability window", err)
	}
	if err != nil {
		return nil, apperrors.Internal(fmt.Errorf("failed to get window: %w", err))
	}

	times := []civil.Time{}
	if date.Before(s.Today()) {
		return times, nil
	}

	d, ok, err := s.slotLength(ctx, therapistID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperrors.NotFound("service", repository.ErrNotFound)
	}

	live, err := s.live(ctx, window, d)
	if err != nil {
		return nil, err
	}

	for t := range live {
		times = append(times, civil.TimeOf(t))
	}
	return times, nil
}

// ListOpenDates returns the dates of month, from today on, that still have a
// bookable slot. Every scanned date is recomputed on the way.
func (s *Service) ListOpenDates(ctx context.Context, therapistID int64, month civil.Date) ([]civil.Date, error) {
	if err := s.requireTherapist(ctx, therapistID); err != nil {
		return nil, err
	}

	first := civil.Date{Year: month.Year, Month: month.Month, Day: 1}
	last := first.AddMonths(1).AddDays(-1)
	from := first
	if today := s.Today(); from.Before(today) {
		from = today
	}

	dates := []civil.Date{}
	if from.After(last) {
		return dates, nil
	}

	windows, err := s.windows.ListWindows(ctx, therapistID, from, last)
	if err != nil {
		return nil, apperrors.Internal(fmt.Errorf("failed to list windows: %w", err))
	}

	for _, w := range windows {
		res, err := s.Recompute(ctx, therapistID, w.Date)
		if err != nil && !errors.Is(err, ErrStale) {
			return nil, err
		}
		if res.Tracked && !res.Full {
			dates = append(dates, w.Date)
		}
	}
	return dates, nil
}

// DeclareWindow creates or replaces the window of one date and recomputes it.
func (s *Service) DeclareWindow(ctx context.Context, therapistID int64, date civil.Date, start, end civil.Time) (*model.AvailabilityWindow, error) {
	if err := s.validateWindow(date, start, end); err != nil {
		return nil, err
	}
	return s.declare(ctx, therapistID, date, start, end)
}

func (s *Service) validateWindow(date civil.Date, start, end civil.Time) error {
	if !date.IsValid() {
		return apperrors.BadRequest("invalid date", nil)
	}
	if !start.IsValid() || !end.IsValid() || !start.Before(end) {
		return apperrors.Configuration("window start must be before its end", nil)
	}
	if date.Before(s.Today()) {
		return apperrors.BadRequest("cannot declare availability in the past", nil)
	}
	return nil
}

func (s *Service) declare(ctx context.Context, therapistID int64, date civil.Date, start, end civil.Time) (*model.AvailabilityWindow, error) {
	window := &model.AvailabilityWindow{
		TherapistID: therapistID,
		Date:        date,
		StartTime:   start,
		EndTime:     end,
	}

	unlock := s.locks.lock(therapistID, date)
	err := s.windows.UpsertWindow(ctx, window)
	unlock()
	if err != nil {
		return nil, apperrors.Internal(fmt.Errorf("failed to save window: %w", err))
	}

	res, err := s.Recompute(ctx, therapistID, date)
	if err != nil && !errors.Is(err, ErrStale) {
		return nil, err
	}
	window.IsFull = res.Full
	return window, nil
}

// DeclareRange declares the same window for every date in [start.Date, end.Date).
// Dates before today are skipped.
func (s *Service) DeclareRange(ctx context.Context, therapistID int64, start, end civil.DateTime) ([]*model.AvailabilityWindow, error) {
	if !start.Date.Before(end.Date) {
		return nil, apperrors.BadRequest("empty date range", nil)
	}
	if start.Date.AddDays(MaxRangeDays).Before(end.Date) {
		return nil, apperrors.BadRequest(fmt.Sprintf("date range exceeds %d days", MaxRangeDays), nil)
	}

	from := start.Date
	if today := s.Today(); from.Before(today) {
		from = today
	}
	if !from.Before(end.Date) {
		return nil, apperrors.BadRequest("cannot declare availability in the past", nil)
	}
	if err := s.validateWindow(from, start.Time, end.Time); err != nil {
		return nil, err
	}

	out := make([]*model.AvailabilityWindow, 0, end.Date.DaysSince(from))
	for d := from; d.Before(end.Date); d = d.AddDays(1) {
		w, err := s.declare(ctx, therapistID, d, start.Time, end.Time)
		if err != nil {
			return out, err
		}
		out = append(out, w)
	}
	return out, nil
}

func (s *Service) DeleteWindow(ctx context.Context, therapistID int64, date civil.Date) error {
	unlock := s.locks.lock(therapistID, date)
	defer unlock()

	err := s.windows.DeleteWindow(ctx, therapistID, date)
	if errors.Is(err, repository.ErrNotFound) {
		return apperrors.NotFound("availability window", err)
	}
	if err != nil {
		return apperrors.Internal(fmt.Errorf("failed to delete window: %w", err))
	}
	return nil
}

// ListWindows returns the therapist's windows between from and to inclusive.
func (s *Service) ListWindows(ctx context.Context, therapistID int64, from, to civil.Date) ([]*model.AvailabilityWindow, error) {
	windows, err := s.windows.ListWindows(ctx, therapistID, from, to)
	if err != nil {
		return nil, apperrors.Internal(fmt.Errorf("failed to list windows: %w", err))
	}
	if windows == nil {
		windows = []*model.AvailabilityWindow{}
	}
	return windows, nil
}

// RecomputeUpcoming recomputes every window of the therapist from from on.
func (s *Service) RecomputeUpcoming(ctx context.Context, therapistID int64, from civil.Date) (SweepResult, error) {
	windows, err := s.windows.ListWindows(ctx, therapistID, from, endOfTime)
	if err != nil {
		return SweepResult{}, apperrors.Internal(fmt.Errorf("failed to list windows: %w", err))
	}
	return s.recomputeAll(ctx, windows)
}

// Sweep recomputes the windows of every therapist from from on.
func (s *Service) Sweep(ctx context.Context, from civil.Date) (SweepResult, error) {
	windows, err := s.windows.ListUpcoming(ctx, from)
	if err != nil {
		return SweepResult{}, apperrors.Internal(fmt.Errorf("failed to list windows: %w", err))
	}
	return s.recomputeAll(ctx, windows)
}

func (s *Service) recomputeAll(ctx context.Context, windows []*model.AvailabilityWindow) (SweepResult, error) {
	var out SweepResult
	for _, w := range windows {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		res, err := s.Recompute(ctx, w.TherapistID, w.Date)
		if err != nil {
			out.Failed++
			s.logger.Error().
				Err(err).
				Int64("therapist_id", w.TherapistID).
				Str("date", w.Date.String()).
				Msg("recompute failed")
			continue
		}
		if res.Tracked {
			out.Windows++
			if res.Full {
				out.Full++
			}
		}
	}
	return out, nil
}

func (s *Service) requireTherapist(ctx context.Context, therapistID int64) error {
	_, err := s.therapists.Get(ctx, therapistID)
	if errors.Is(err, repository.ErrNotFound) {
		return apperrors.NotFound("therapist", err)
	}
	if err != nil {
		return apperrors.Internal(fmt.Errorf("failed to get therapist: %w", err))
	}
	return nil
}
