package jobs

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Task is one periodic unit of work.
type Task func(context.Context) error

type scheduledTask struct {
	name     string
	interval time.Duration
	task     Task
	running  int32
}

// Scheduler runs registered tasks on fixed intervals. A task that is still
// running when its next tick fires is skipped, not stacked.
type Scheduler struct {
	logger *zap.Logger

	mu      sync.Mutex
	tasks   []*scheduledTask
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
}

// NewScheduler builds an empty scheduler.
func NewScheduler(logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{logger: logger}
}

// Register adds a task. Must be called before Start.
func (s *Scheduler) Register(name string, interval time.Duration, task Task) {
	if interval <= 0 || task == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.tasks = append(s.tasks, &scheduledTask{name: name, interval: interval, task: task})
}

// Start launches one ticker goroutine per registered task. Safe to call once.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	for _, t := range s.tasks {
		s.wg.Add(1)
		go s.run(ctx, t)
	}
	s.started = true
	s.logger.Sugar().Infow("scheduler started", "tasks", len(s.tasks))
}

// Stop cancels tickers and waits for in-flight runs to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.cancel()
	s.mu.Unlock()
	s.wg.Wait()
	s.logger.Sugar().Infow("scheduler stopped")
}

func (s *Scheduler) run(ctx context.Context, t *scheduledTask) {
	defer s.wg.Done()
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !atomic.CompareAndSwapInt32(&t.running, 0, 1) {
				s.logger.Sugar().Debugw("task still running, tick skipped", "task", t.name)
				continue
			}
			if err := t.task(ctx); err != nil && ctx.Err() == nil {
				s.logger.Sugar().Warnw("scheduled task failed", "task", t.name, "error", err)
			}
			atomic.StoreInt32(&t.running, 0)
		}
	}
}
