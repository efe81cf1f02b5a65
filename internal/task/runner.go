// Package task runs the scheduled jobs of the service: the SARH
// reconciliation and the administrator report.
//
// Each registered task has its own ticker. A task never overlaps with
// itself; a tick that finds the previous run still in progress is skipped.
// Task errors and panics are logged and never stop the runner.
package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ingeweb/contactws/internal/apperror"
)

// Task is a unit of scheduled work.
type Task interface {
	Name() string
	Execute(ctx context.Context) error
}

// Status describes a registered task.
type Status struct {
	Name      string        `json:"name"`
	Interval  time.Duration `json:"interval"`
	Running   bool          `json:"running"`
	Runs      int           `json:"runs"`
	LastRun   time.Time     `json:"lastRun"`
	LastError string        `json:"lastError,omitempty"`
}

type entry struct {
	task     Task
	interval time.Duration
	running  sync.Mutex

	mu      sync.Mutex // guards the fields below
	busy    bool
	runs    int
	lastRun time.Time
	lastErr error
}

type Runner struct {
	mu      sync.Mutex
	entries map[string]*entry
	order   []string
	wg      sync.WaitGroup
	logger  *slog.Logger
	now     func() time.Time
}

func NewRunner(logger *slog.Logger) *Runner {
	return &Runner{
		entries: make(map[string]*entry),
		logger:  logger,
		now:     time.Now,
	}
}

// Register adds t. An interval <= 0 registers the task for RunNow only.
// Registering a name twice replaces the schedule.
func (r *Runner) Register(t Task, interval time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[t.Name()]; !ok {
		r.order = append(r.order, t.Name())
	}
	r.entries[t.Name()] = &entry{task: t, interval: interval}
}

// Start launches one scheduling loop per task with an interval. The loops
// stop when ctx is cancelled; Wait blocks until they have returned.
func (r *Runner) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, name := range r.order {
		e := r.entries[name]
		if e.interval <= 0 {
			continue
		}
		r.wg.Add(1)
		go r.loop(ctx, e)
		r.logger.Info("task scheduled",
			slog.String("task", name),
			slog.Duration("interval", e.interval),
		)
	}
}

// Wait blocks until every scheduling loop and triggered run has finished.
func (r *Runner) Wait() {
	r.wg.Wait()
}

// RunNow executes the named task synchronously and returns its error.
func (r *Runner) RunNow(ctx context.Context, name string) error {
	e, err := r.entry(name)
	if err != nil {
		return err
	}
	if !e.running.TryLock() {
		return fmt.Errorf("task %s: %w", name, apperror.ErrAlreadyRunning)
	}
	defer e.running.Unlock()

	return r.run(ctx, e)
}

// Trigger starts the named task in the background and returns at once.
// It fails with apperror.ErrAlreadyRunning when a run is in progress. The
// run is detached from ctx cancellation; Wait covers it.
func (r *Runner) Trigger(ctx context.Context, name string) error {
	e, err := r.entry(name)
	if err != nil {
		return err
	}
	if !e.running.TryLock() {
		return fmt.Errorf("task %s: %w", name, apperror.ErrAlreadyRunning)
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer e.running.Unlock()
		_ = r.run(context.WithoutCancel(ctx), e)
	}()
	return nil
}

// Statuses reports every task in registration order.
func (r *Runner) Statuses() []Status {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Status, 0, len(r.order))
	for _, name := range r.order {
		e := r.entries[name]
		e.mu.Lock()
		s := Status{
			Name:     name,
			Interval: e.interval,
			Running:  e.busy,
			Runs:     e.runs,
			LastRun:  e.lastRun,
		}
		if e.lastErr != nil {
			s.LastError = e.lastErr.Error()
		}
		e.mu.Unlock()
		out = append(out, s)
	}
	return out
}

func (r *Runner) entry(name string) (*entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[name]
	if !ok {
		return nil, apperror.NotFound("task", name)
	}
	return e, nil
}

func (r *Runner) loop(ctx context.Context, e *entry) {
	defer r.wg.Done()

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !e.running.TryLock() {
				r.logger.Warn("previous run still in progress, skipping tick",
					slog.String("task", e.task.Name()))
				continue
			}
			_ = r.run(ctx, e)
			e.running.Unlock()
		}
	}
}

// run executes e once. The caller holds e.running.
func (r *Runner) run(ctx context.Context, e *entry) (err error) {
	name := e.task.Name()
	start := r.now()

	e.mu.Lock()
	e.busy = true
	e.mu.Unlock()

	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("task %s panicked: %v", name, p)
		}

		e.mu.Lock()
		e.busy = false
		e.runs++
		e.lastRun = start
		e.lastErr = err
		e.mu.Unlock()

		attrs := []any{
			slog.String("task", name),
			slog.Duration("duration", r.now().Sub(start)),
		}
		switch {
		case err == nil:
			r.logger.Info("task completed", attrs...)
		case errors.Is(err, context.Canceled):
			r.logger.Warn("task cancelled", attrs...)
		default:
			r.logger.Error("task failed", append(attrs, slog.String("error", err.Error()))...)
		}
	}()

	r.logger.Info("task started", slog.String("task", name))
	return e.task.Execute(ctx)
}
