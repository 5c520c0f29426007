package postgres

import (
	"context"
	"database/sql/driver"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/scheduler-api/internal/repository"
)

var epoch = civil.Date{Year: 1970, Month: time.January, Day: 1}

// dayLocker takes a session advisory lock keyed by (therapist, day number)
// on a pinned connection. The recompute it guards runs its queries on other
// pool connections, so at most half of a bounded pool may hold locks.
type dayLocker struct {
	db  *sqlx.DB
	sem chan struct{}
}

func NewDayLocker(db *sqlx.DB) repository.DayLocker {
	l := &dayLocker{db: db}
	if maxOpen := db.Stats().MaxOpenConnections; maxOpen > 0 {
		l.sem = make(chan struct{}, max(1, maxOpen/2))
	}
	return l
}

func lockKeys(therapistID int64, date civil.Date) (int32, int32) {
	return int32(therapistID), int32(date.DaysSince(epoch))
}

func (l *dayLocker) LockDay(ctx context.Context, therapistID int64, date civil.Date) (func(), error) {
	if l.sem != nil {
		select {
		case l.sem <- struct{}{}:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	release := func() {
		if l.sem != nil {
			<-l.sem
		}
	}

	conn, err := l.db.Connx(ctx)
	if err != nil {
		release()
		return nil, fmt.Errorf("failed to get lock connection: %w", err)
	}

	k1, k2 := lockKeys(therapistID, date)
	if _, err := conn.ExecContext(ctx, `SELECT pg_advisory_lock($1, $2)`, k1, k2); err != nil {
		// A cancelled wait may still have been granted server side.
		discard(conn)
		conn.Close()
		release()
		return nil, fmt.Errorf("failed to lock day: %w", err)
	}

	return func() {
		// Unlock even when the caller's context is already done.
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if _, err := conn.ExecContext(ctx, `SELECT pg_advisory_unlock($1, $2)`, k1, k2); err != nil {
			discard(conn)
		}
		conn.Close()
		release()
	}, nil
}

// discard drops conn from the pool on Close so a lock it may hold dies with
// the session.
func discard(conn *sqlx.Conn) {
	_ = conn.Raw(func(any) error { return driver.ErrBadConn })
}
