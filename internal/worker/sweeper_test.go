package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/scheduler-api/internal/service/availability"
	"github.com/jwalitptl/scheduler-api/pkg/logger"
)

type fakeSweeper struct {
	calls    atomic.Int32
	failures int32
	from     civil.Date
}

func (f *fakeSweeper) Today() civil.Date {
	return civil.Date{Year: 2026, Month: time.November, Day: 10}
}

func (f *fakeSweeper) Sweep(_ context.Context, from civil.Date) (availability.SweepResult, error) {
	n := f.calls.Add(1)
	f.from = from
	if n <= f.failures {
		return availability.SweepResult{}, errors.New("db down")
	}
	return availability.SweepResult{Windows: 4, Full: 1}, nil
}

func TestRunOnce_RetriesListing(t *testing.T) {
	f := &fakeSweeper{failures: 2}
	w := NewSweepWorker(f, SweepConfig{RetryAttempts: 3, RetryDelay: time.Millisecond}, logger.Nop())

	res, err := w.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, availability.SweepResult{Windows: 4, Full: 1}, res)
	assert.EqualValues(t, 3, f.calls.Load())
	assert.Equal(t, f.Today(), f.from)
}

func TestRunOnce_GivesUp(t *testing.T) {
	f := &fakeSweeper{failures: 10}
	w := NewSweepWorker(f, SweepConfig{RetryAttempts: 2, RetryDelay: time.Millisecond}, logger.Nop())

	_, err := w.RunOnce(context.Background())
	assert.ErrorContains(t, err, "db down")
	assert.EqualValues(t, 2, f.calls.Load())
}

func TestStart_SweepsUntilCancelled(t *testing.T) {
	f := &fakeSweeper{}
	w := NewSweepWorker(f, SweepConfig{Interval: 5 * time.Millisecond}, logger.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return f.calls.Load() >= 3 }, time.Second, time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
}
