package availability

import (
	"sync"

	"cloud.google.com/go/civil"
)

type dayKey struct {
	therapistID int64
	date        civil.Date
}

// dayLocks serializes work per (therapist, date). Entries are dropped once
// nobody holds or waits for them.
type dayLocks struct {
	mu    sync.Mutex
	locks map[dayKey]*dayLock
}

type dayLock struct {
	mu   sync.Mutex
	refs int
}

func newDayLocks() *dayLocks {
	return &dayLocks{locks: make(map[dayKey]*dayLock)}
}

// lock blocks until the key is free and returns its release func.
func (l *dayLocks) lock(therapistID int64, date civil.Date) func() {
	key := dayKey{therapistID, date}

	l.mu.Lock()
	dl, ok := l.locks[key]
	if !ok {
		dl = &dayLock{}
		l.locks[key] = dl
	}
	dl.refs++
	l.mu.Unlock()

	dl.mu.Lock()
	return func() {
		dl.mu.Unlock()

		l.mu.Lock()
		dl.refs--
		if dl.refs == 0 {
			delete(l.locks, key)
		}
		l.mu.Unlock()
	}
}

func (l *dayLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
