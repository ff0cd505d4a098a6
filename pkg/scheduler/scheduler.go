// Package scheduler owns the timers of a component.
//
// Every delayed or periodic callback a component needs (clearing the
// cross-tab key, sweeping expired temp data, the sync tick) is registered
// here, so tearing the component down is a single Stop call that cancels
// everything still pending.
//
// Example usage:
//
//	s := scheduler.New(logger.Default())
//	defer s.Stop()
//
//	s.After("clear-channel", 100*time.Millisecond, func() { ... })
//	tick, err := s.Every("sync", 30*time.Second, func() { ... })
package scheduler

import (
	"fmt"
	"sync"
	"time"

	"github.com/0xmhha/session-keeper/pkg/logger"
)

// Task is a handle to a scheduled callback.
type Task interface {
	// Cancel stops the task. It reports whether the task was still pending.
	// Cancelling twice is safe.
	Cancel() bool

	// Name returns the label the task was scheduled with.
	Name() string
}

// Scheduler tracks one-shot and periodic tasks.
//
// Thread-safety: all methods are safe for concurrent use.
type Scheduler struct {
	logger logger.Logger

	mu      sync.Mutex
	stopped bool
	nextID  uint64
	tasks   map[uint64]*task
}

// task is a single scheduled callback.
type task struct {
	id    uint64
	name  string
	owner *Scheduler

	timer *time.Timer   // one-shot
	stop  chan struct{} // periodic

	once sync.Once
}

// New creates a scheduler.
func New(log logger.Logger) *Scheduler {
	return &Scheduler{
		logger: log,
		tasks:  make(map[uint64]*task),
	}
}

// After runs fn once after d.
//
// Returns ErrStopped if the scheduler has been stopped; fn is then never run.
func (s *Scheduler) After(name string, d time.Duration, fn func()) (Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return nil, ErrStopped
	}

	t := s.register(name)
	t.timer = time.AfterFunc(d, func() {
		if !s.release(t.id) {
			return
		}
		s.run(t.name, fn)
	})

	s.logger.Debug("task scheduled", "task", name, "delay", d)
	return t, nil
}

// Every runs fn every interval until the task or the scheduler is stopped.
func (s *Scheduler) Every(name string, interval time.Duration, fn func()) (Task, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("%w: %s", ErrInvalidInterval, interval)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return nil, ErrStopped
	}

	t := s.register(name)
	t.stop = make(chan struct{})

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-t.stop:
				return
			case <-ticker.C:
				s.run(t.name, fn)
			}
		}
	}()

	s.logger.Debug("periodic task scheduled", "task", name, "interval", interval)
	return t, nil
}

// Pending returns the number of tasks not yet fired or cancelled.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

// Stop cancels every pending task and rejects new ones.
//
// Safe to call multiple times.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	tasks := s.tasks
	s.tasks = make(map[uint64]*task)
	s.mu.Unlock()

	for _, t := range tasks {
		t.halt()
	}

	s.logger.Debug("scheduler stopped", "cancelled", len(tasks))
}

// Stopped reports whether Stop has been called.
func (s *Scheduler) Stopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

// register allocates a task. Caller holds s.mu.
func (s *Scheduler) register(name string) *task {
	s.nextID++
	t := &task{id: s.nextID, name: name, owner: s}
	s.tasks[t.id] = t
	return t
}

// release removes a task, reporting whether it was still registered.
func (s *Scheduler) release(id uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tasks[id]; !ok {
		return false
	}
	delete(s.tasks, id)
	return true
}

// run invokes fn, containing panics so one bad callback cannot take down
// the process from a timer goroutine.
func (s *Scheduler) run(name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("scheduled task panicked", "task", name, "panic", r)
		}
	}()
	fn()
}

// Cancel implements Task.Cancel.
func (t *task) Cancel() bool {
	pending := t.owner.release(t.id)
	t.halt()
	return pending
}

// Name implements Task.Name.
func (t *task) Name() string {
	return t.name
}

// halt stops the underlying timer or ticker goroutine once.
func (t *task) halt() {
	t.once.Do(func() {
		if t.timer != nil {
			t.timer.Stop()
		}
		if t.stop != nil {
			close(t.stop)
		}
	})
}
