// Package schedule runs the periodic host tasks: the self-update check cycle
// and update-set refreshes.
package schedule

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Task is one periodic job. Run is invoked synchronously; a slow task delays
// the tasks behind it.
type Task struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error

	next time.Time
}

type Runner struct {
	Logger *zap.Logger

	// Jitter adds up to this fraction of the interval to every reschedule.
	Jitter float64

	mu       sync.Mutex
	tasks    []*Task
	disabled bool
	now      func() time.Time
	rand     func(n int64) int64
	after    func(d time.Duration) <-chan time.Time
}

func New(disabled bool, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		Logger:   logger.Named("schedule"),
		Jitter:   0.1,
		disabled: disabled,
		now:      time.Now,
		rand:     rand.Int63n,
		after:    time.After,
	}
}

// Disabled reports whether scheduled tasks are administratively switched off.
func (r *Runner) Disabled() bool { return r.disabled }

// Register adds a task. The first run happens one interval after Run starts.
func (r *Runner) Register(name string, interval time.Duration, fn func(ctx context.Context) error) error {
	if interval <= 0 {
		return fmt.Errorf("schedule: task %s: interval must be positive", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.tasks {
		if t.Name == name {
			return fmt.Errorf("schedule: task %s already registered", name)
		}
	}
	r.tasks = append(r.tasks, &Task{Name: name, Interval: interval, Run: fn})
	return nil
}

// Tasks returns the registered task names in registration order.
func (r *Runner) Tasks() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.tasks))
	for _, t := range r.tasks {
		names = append(names, t.Name)
	}
	return names
}

// RunNow invokes the named task immediately, outside its schedule.
func (r *Runner) RunNow(ctx context.Context, name string) error {
	r.mu.Lock()
	var task *Task
	for _, t := range r.tasks {
		if t.Name == name {
			task = t
		}
	}
	r.mu.Unlock()
	if task == nil {
		return fmt.Errorf("schedule: unknown task %s", name)
	}
	return task.Run(ctx)
}

// Run blocks until ctx is done, invoking each task when it falls due. It
// returns immediately when the runner is disabled.
func (r *Runner) Run(ctx context.Context) {
	if r.disabled {
		r.Logger.Info("scheduled tasks disabled")
		return
	}

	r.mu.Lock()
	start := r.now()
	for _, t := range r.tasks {
		t.next = start.Add(r.delay(t.Interval))
	}
	r.mu.Unlock()

	for {
		task, wait := r.nextDue()
		if task == nil {
			<-ctx.Done()
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-r.after(wait):
		}

		if err := task.Run(ctx); err != nil {
			r.Logger.Warn("task failed", zap.String("task", task.Name), zap.Error(err))
		} else {
			r.Logger.Debug("task ran", zap.String("task", task.Name))
		}

		r.mu.Lock()
		task.next = r.now().Add(r.delay(task.Interval))
		r.mu.Unlock()
	}
}

func (r *Runner) nextDue() (*Task, time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var due *Task
	for _, t := range r.tasks {
		if due == nil || t.next.Before(due.next) {
			due = t
		}
	}
	if due == nil {
		return nil, 0
	}
	return due, max(due.next.Sub(r.now()), 0)
}

func (r *Runner) delay(interval time.Duration) time.Duration {
	span := int64(float64(interval) * r.Jitter)
	if span <= 0 {
		return interval
	}
	return interval + time.Duration(r.rand(span))
}
