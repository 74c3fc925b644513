package subscription

import (
	"context"
	"sync"
	"time"

	"villagewalks/backend/internal/clock"

	"go.uber.org/zap"
)

const taskTimeout = 30 * time.Second

// Scheduler runs keyed one-shot tasks after a delay. Scheduling a key that is
// already pending returns the pending task, so redelivered events never arm
// a second timer.
type Scheduler struct {
	clock clock.Clock
	log   *zap.Logger

	mu     sync.Mutex
	tasks  map[string]*Task
	closed bool
	wg     sync.WaitGroup
}

type Task struct {
	key   string
	timer clock.Timer
	owner *Scheduler
}

func NewScheduler(clk clock.Clock, log *zap.Logger) *Scheduler {
	return &Scheduler{clock: clk, log: log, tasks: map[string]*Task{}}
}

// After arms fn to run once after d. It returns nil after Close.
func (s *Scheduler) After(d time.Duration, key string, fn func(ctx context.Context)) *Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	if t, ok := s.tasks[key]; ok {
		return t
	}

	t := &Task{key: key, owner: s}
	s.tasks[key] = t
	t.timer = s.clock.AfterFunc(d, func() { s.fire(t, fn) })
	return t
}

func (s *Scheduler) fire(t *Task, fn func(ctx context.Context)) {
	s.mu.Lock()
	if s.closed || s.tasks[t.key] != t {
		s.mu.Unlock()
		return
	}
	delete(s.tasks, t.key)
	s.wg.Add(1)
	s.mu.Unlock()
	defer s.wg.Done()

	ctx, cancel := context.WithTimeout(context.Background(), taskTimeout)
	defer cancel()
	fn(ctx)
}

// Cancel disarms the task. It reports whether the task was still pending.
func (t *Task) Cancel() bool {
	s := t.owner
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tasks[t.key] != t {
		return false
	}
	delete(s.tasks, t.key)
	t.timer.Stop()
	return true
}

func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

// Close cancels every pending task and waits for running ones.
func (s *Scheduler) Close() {
	s.mu.Lock()
	s.closed = true
	for key, t := range s.tasks {
		t.timer.Stop()
		delete(s.tasks, key)
	}
	s.mu.Unlock()
	s.wg.Wait()
	s.log.Debug("scheduler closed")
}
