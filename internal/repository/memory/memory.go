// Package memory is an in-process implementation of the repository interfaces.
// It enforces the same unique constraints as the Postgres schema and is used for
// local runs (database.driver: memory) and tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"cloud.google.com/go/civil"

	"github.com/jwalitptl/scheduler-api/internal/model"
	"github.com/jwalitptl/scheduler-api/internal/repository"
)

type windowKey struct {
	therapistID int64
	date        civil.Date
}

type slotKey struct {
	therapistID int64
	start       int64
}

// DB holds all tables behind one lock.
type DB struct {
	mu sync.RWMutex

	nextID       int64
	therapists   map[int64]*model.Therapist
	services     map[int64]*model.Service // by therapist
	windows      map[windowKey]*model.AvailabilityWindow
	clients      map[int64]*model.Client
	clientPhones map[string]int64
	appointments map[int64]*model.Appointment
	bookedSlots  map[slotKey]int64

	locks *dayLocker

	// FailSetFull makes SetFull fail, simulating a lost flag write.
	FailSetFull error
}

func New() *DB {
	return &DB{
		therapists:   make(map[int64]*model.Therapist),
		services:     make(map[int64]*model.Service),
		windows:      make(map[windowKey]*model.AvailabilityWindow),
		clients:      make(map[int64]*model.Client),
		clientPhones: make(map[string]int64),
		appointments: make(map[int64]*model.Appointment),
		bookedSlots:  make(map[slotKey]int64),
		locks:        &dayLocker{held: make(map[windowKey]chan struct{})},
	}
}

// dayLocker is shared by every Store built over the same DB. It has its own
// mutex so holders can still use the repositories.
type dayLocker struct {
	mu   sync.Mutex
	held map[windowKey]chan struct{}
}

func (l *dayLocker) LockDay(ctx context.Context, therapistID int64, date civil.Date) (func(), error) {
	key := windowKey{therapistID, date}
	for {
		l.mu.Lock()
		done, busy := l.held[key]
		if !busy {
			done = make(chan struct{})
			l.held[key] = done
			l.mu.Unlock()
			return func() {
				l.mu.Lock()
				delete(l.held, key)
				l.mu.Unlock()
				close(done)
			}, nil
		}
		l.mu.Unlock()

		select {
		case <-done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// NewStore exposes db through the repository interfaces.
func NewStore(db *DB) *repository.Store {
	return &repository.Store{
		Therapists:   therapists{db},
		Services:     services{db},
		Availability: availability{db},
		Appointments: appointments{db},
		Clients:      clients{db},
		Locks:        db.locks,
	}
}

func (db *DB) id() int64 {
	db.nextID++
	return db.nextID
}

func notFound(what string) error {
	return fmt.Errorf("%s: %w", what, repository.ErrNotFound)
}

func duplicate(what string) error {
	return fmt.Errorf("%s: %w", what, repository.ErrDuplicate)
}

type therapists struct{ db *DB }

func (r therapists) Create(_ context.Context, t *model.Therapist) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	for _, existing := range r.db.therapists {
		if existing.Phone == t.Phone {
			return duplicate("therapist phone")
		}
	}
	t.ID = r.db.id()
	t.CreatedAt = time.Now()
	t.UpdatedAt = t.CreatedAt
	cp := *t
	r.db.therapists[t.ID] = &cp
	return nil
}

func (r therapists) Get(_ context.Context, id int64) (*model.Therapist, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	t, ok := r.db.therapists[id]
	if !ok {
		return nil, notFound("therapist")
	}
	cp := *t
	return &cp, nil
}

func (r therapists) GetByPhone(_ context.Context, phone string) (*model.Therapist, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	for _, t := range r.db.therapists {
		if t.Phone == phone {
			cp := *t
			return &cp, nil
		}
	}
	return nil, notFound("therapist")
}

func (r therapists) Update(_ context.Context, t *model.Therapist) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	if _, ok := r.db.therapists[t.ID]; !ok {
		return notFound("therapist")
	}
	for id, existing := range r.db.therapists {
		if id != t.ID && existing.Phone == t.Phone {
			return duplicate("therapist phone")
		}
	}
	t.UpdatedAt = time.Now()
	cp := *t
	r.db.therapists[t.ID] = &cp
	return nil
}

func (r therapists) Delete(_ context.Context, id int64) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	if _, ok := r.db.therapists[id]; !ok {
		return notFound("therapist")
	}
	delete(r.db.therapists, id)
	delete(r.db.services, id)
	for k := range r.db.windows {
		if k.therapistID == id {
			delete(r.db.windows, k)
		}
	}
	for aid, apt := range r.db.appointments {
		if apt.TherapistID == id {
			delete(r.db.appointments, aid)
			delete(r.db.bookedSlots, slotKey{id, apt.StartTime.UnixNano()})
		}
	}
	return nil
}

type services struct{ db *DB }

func (r services) GetByTherapist(_ context.Context, therapistID int64) (*model.Service, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	s, ok := r.db.services[therapistID]
	if !ok {
		return nil, notFound("service")
	}
	cp := *s
	return &cp, nil
}

func (r services) Upsert(_ context.Context, s *model.Service) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	now := time.Now()
	if existing, ok := r.db.services[s.TherapistID]; ok {
		s.ID = existing.ID
		s.CreatedAt = existing.CreatedAt
	} else {
		s.ID = r.db.id()
		s.CreatedAt = now
	}
	s.UpdatedAt = now
	cp := *s
	r.db.services[s.TherapistID] = &cp
	return nil
}

type availability struct{ db *DB }

func (r availability) GetWindow(_ context.Context, therapistID int64, date civil.Date) (*model.AvailabilityWindow, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	w, ok := r.db.windows[windowKey{therapistID, date}]
	if !ok {
		return nil, notFound("availability window")
	}
	cp := *w
	return &cp, nil
}

func (r availability) ListWindows(_ context.Context, therapistID int64, from, to civil.Date) ([]*model.AvailabilityWindow, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	var out []*model.AvailabilityWindow
	for k, w := range r.db.windows {
		if k.therapistID == therapistID && !k.date.Before(from) && !k.date.After(to) {
			cp := *w
			out = append(out, &cp)
		}
	}
	sortWindows(out)
	return out, nil
}

func (r availability) ListUpcoming(_ context.Context, from civil.Date) ([]*model.AvailabilityWindow, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	var out []*model.AvailabilityWindow
	for k, w := range r.db.windows {
		if !k.date.Before(from) {
			cp := *w
			out = append(out, &cp)
		}
	}
	sortWindows(out)
	return out, nil
}

func sortWindows(ws []*model.AvailabilityWindow) {
	sort.Slice(ws, func(i, j int) bool {
		if ws[i].TherapistID != ws[j].TherapistID {
			return ws[i].TherapistID < ws[j].TherapistID
		}
		return ws[i].Date.Before(ws[j].Date)
	})
}

func (r availability) UpsertWindow(_ context.Context, w *model.AvailabilityWindow) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	key := windowKey{w.TherapistID, w.Date}
	if existing, ok := r.db.windows[key]; ok {
		existing.StartTime = w.StartTime
		existing.EndTime = w.EndTime
		return nil
	}
	cp := *w
	r.db.windows[key] = &cp
	return nil
}

func (r availability) DeleteWindow(_ context.Context, therapistID int64, date civil.Date) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	key := windowKey{therapistID, date}
	if _, ok := r.db.windows[key]; !ok {
		return notFound("availability window")
	}
	delete(r.db.windows, key)
	return nil
}

func (r availability) SetFull(_ context.Context, therapistID int64, date civil.Date, isFull bool) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	if r.db.FailSetFull != nil {
		return r.db.FailSetFull
	}
	if w, ok := r.db.windows[windowKey{therapistID, date}]; ok {
		w.IsFull = isFull
	}
	return nil
}

type appointments struct{ db *DB }

func (r appointments) Create(_ context.Context, apt *model.Appointment) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	key := slotKey{apt.TherapistID, apt.StartTime.UnixNano()}
	if _, taken := r.db.bookedSlots[key]; taken {
		return duplicate("appointment start time")
	}
	apt.ID = r.db.id()
	apt.CreatedAt = time.Now()
	cp := *apt
	cp.Client = nil
	r.db.appointments[apt.ID] = &cp
	r.db.bookedSlots[key] = apt.ID
	return nil
}

func (r appointments) withClient(apt *model.Appointment) *model.Appointment {
	cp := *apt
	if c, ok := r.db.clients[apt.ClientID]; ok {
		cc := *c
		cp.Client = &cc
	}
	return &cp
}

func (r appointments) Get(_ context.Context, therapistID, id int64) (*model.Appointment, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	apt, ok := r.db.appointments[id]
	if !ok || apt.TherapistID != therapistID {
		return nil, notFound("appointment")
	}
	return r.withClient(apt), nil
}

func (r appointments) Delete(_ context.Context, therapistID, id int64) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	apt, ok := r.db.appointments[id]
	if !ok || apt.TherapistID != therapistID {
		return notFound("appointment")
	}
	delete(r.db.appointments, id)
	delete(r.db.bookedSlots, slotKey{therapistID, apt.StartTime.UnixNano()})
	return nil
}

func (r appointments) List(_ context.Context, therapistID int64) ([]*model.Appointment, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	out := []*model.Appointment{}
	for _, apt := range r.db.appointments {
		if apt.TherapistID == therapistID {
			out = append(out, r.withClient(apt))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out, nil
}

func (r appointments) ExistsAt(_ context.Context, therapistID int64, start time.Time) (bool, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	_, taken := r.db.bookedSlots[slotKey{therapistID, start.UnixNano()}]
	return taken, nil
}

func (r appointments) BookedTimes(_ context.Context, therapistID int64, from, to time.Time) ([]time.Time, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	var out []time.Time
	for _, apt := range r.db.appointments {
		if apt.TherapistID == therapistID && !apt.StartTime.Before(from) && apt.StartTime.Before(to) {
			out = append(out, apt.StartTime)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out, nil
}

type clients struct{ db *DB }

func (r clients) FindOrCreate(_ context.Context, phone, name string) (*model.Client, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	if id, ok := r.db.clientPhones[phone]; ok {
		cp := *r.db.clients[id]
		return &cp, nil
	}
	c := &model.Client{ID: r.db.id(), Name: name, Phone: phone}
	r.db.clients[c.ID] = c
	r.db.clientPhones[phone] = c.ID
	cp := *c
	return &cp, nil
}

func (r clients) ListForTherapist(_ context.Context, therapistID int64) ([]*model.Client, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	seen := make(map[int64]bool)
	out := []*model.Client{}
	for _, apt := range r.db.appointments {
		if apt.TherapistID != therapistID || seen[apt.ClientID] {
			continue
		}
		seen[apt.ClientID] = true
		if c, ok := r.db.clients[apt.ClientID]; ok {
			cp := *c
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
