package jobs

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSchedulerRunsTasksPeriodically(t *testing.T) {
	s := NewScheduler(nil)

	var runs int64
	s.Register("tick", 5*time.Millisecond, func(ctx context.Context) error {
		atomic.AddInt64(&runs, 1)
		return nil
	})

	s.Start(context.Background())
	time.Sleep(60 * time.Millisecond)
	s.Stop()

	assert.GreaterOrEqual(t, atomic.LoadInt64(&runs), int64(2))
}

func TestSchedulerSkipsOverlappingRuns(t *testing.T) {
	s := NewScheduler(nil)

	var concurrent, maxConcurrent int64
	s.Register("slow", 5*time.Millisecond, func(ctx context.Context) error {
		n := atomic.AddInt64(&concurrent, 1)
		if n > atomic.LoadInt64(&maxConcurrent) {
			atomic.StoreInt64(&maxConcurrent, n)
		}
		time.Sleep(20 * time.Millisecond)
		atomic.AddInt64(&concurrent, -1)
		return nil
	})

	s.Start(context.Background())
	time.Sleep(80 * time.Millisecond)
	s.Stop()

	assert.Equal(t, int64(1), atomic.LoadInt64(&maxConcurrent))
}

func TestSchedulerIgnoresInvalidRegistrations(t *testing.T) {
	s := NewScheduler(nil)
	s.Register("no-interval", 0, func(ctx context.Context) error { return nil })
	s.Register("no-task", time.Second, nil)

	s.Start(context.Background())
	defer s.Stop()
	assert.Empty(t, s.tasks)
}

func TestSchedulerStopWaitsForInFlightRun(t *testing.T) {
	s := NewScheduler(nil)

	var finished int64
	s.Register("slow", 5*time.Millisecond, func(ctx context.Context) error {
		time.Sleep(15 * time.Millisecond)
		atomic.StoreInt64(&finished, 1)
		return nil
	})

	s.Start(context.Background())
	time.Sleep(10 * time.Millisecond)
	s.Stop()

	assert.Equal(t, int64(1), atomic.LoadInt64(&finished))
}
