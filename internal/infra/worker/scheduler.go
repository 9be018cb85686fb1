package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"storyline/internal/pkg/config"
)

// Clock abstracts time so schedules can be driven by a virtual clock.
type Clock interface {
	Now() time.Time
	NewTimer(d time.Duration) Timer
}

// Timer is the part of *time.Timer the scheduler uses.
type Timer interface {
	C() <-chan time.Time
	Stop() bool
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) NewTimer(d time.Duration) Timer { return realTimer{time.NewTimer(d)} }

type realTimer struct{ t *time.Timer }

func (r realTimer) C() <-chan time.Time { return r.t.C }
func (r realTimer) Stop() bool          { return r.t.Stop() }

// RealClock returns the wall clock.
func RealClock() Clock { return realClock{} }

// Trigger says what started a run.
type Trigger string

const (
	TriggerSchedule Trigger = "schedule"
	TriggerManual   Trigger = "manual"
)

// Task is the work a Scheduler runs.
type Task func(ctx context.Context) error

// Precondition is checked before every run. A failing precondition skips
// the run.
type Precondition struct {
	Name  string
	Check func(ctx context.Context) error
}

// RunReport describes one run.
type RunReport struct {
	Task      string        `json:"task"`
	Trigger   Trigger       `json:"trigger"`
	Status    string        `json:"status"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration_ns"`
	Error     string        `json:"error,omitempty"`
}

// Scheduler runs one task on a cron schedule and on manual triggers. Runs
// never overlap. Manual triggers coalesce: at most one is queued while a run
// is in progress, and further triggers merge into it.
type Scheduler struct {
	name          string
	schedule      cron.Schedule
	task          Task
	location      *time.Location
	timeout       time.Duration
	preconditions []Precondition
	clock         Clock
	metrics       *WorkerMetrics
	logger        *slog.Logger

	manual  chan struct{}
	runMu   sync.Mutex
	lastRun atomic.Pointer[RunReport]
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithLocation sets the zone the schedule is evaluated in. Default UTC.
func WithLocation(loc *time.Location) SchedulerOption {
	return func(s *Scheduler) { s.location = loc }
}

// WithTimeout bounds every run. Zero means no bound.
func WithTimeout(d time.Duration) SchedulerOption {
	return func(s *Scheduler) { s.timeout = d }
}

// WithPrecondition adds a check performed before every run.
func WithPrecondition(name string, check func(ctx context.Context) error) SchedulerOption {
	return func(s *Scheduler) {
		s.preconditions = append(s.preconditions, Precondition{Name: name, Check: check})
	}
}

// WithClock replaces the wall clock.
func WithClock(c Clock) SchedulerOption {
	return func(s *Scheduler) { s.clock = c }
}

// WithMetrics records every run in m.
func WithMetrics(m *WorkerMetrics) SchedulerOption {
	return func(s *Scheduler) { s.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) SchedulerOption {
	return func(s *Scheduler) { s.logger = logger }
}

// NewScheduler creates a scheduler for task. spec is a five-field cron
// expression or a descriptor such as "@every 2h".
func NewScheduler(name, spec string, task Task, opts ...SchedulerOption) (*Scheduler, error) {
	schedule, err := config.ParseCronSchedule(spec)
	if err != nil {
		return nil, fmt.Errorf("scheduler %s: %w", name, err)
	}
	s := &Scheduler{
		name:     name,
		schedule: schedule,
		task:     task,
		location: time.UTC,
		clock:    realClock{},
		logger:   slog.Default(),
		manual:   make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(slog.String("task", name))
	return s, nil
}

// Name returns the task name.
func (s *Scheduler) Name() string { return s.name }

// Next returns the next scheduled fire time after now.
func (s *Scheduler) Next() time.Time {
	return s.schedule.Next(s.clock.Now().In(s.location))
}

// Trigger queues a manual run. It reports false when a manual run was
// already queued and this trigger merged into it.
func (s *Scheduler) Trigger() bool {
	select {
	case s.manual <- struct{}{}:
		s.logger.Info("manual run queued")
		return true
	default:
		if s.metrics != nil {
			s.metrics.RecordCoalesced(s.name)
		}
		return false
	}
}

// LastRun returns the report of the most recent run, or nil.
func (s *Scheduler) LastRun() *RunReport {
	return s.lastRun.Load()
}

// Run fires the task on schedule and on manual triggers until ctx is
// cancelled. It always returns nil.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("scheduler started", slog.Time("next_run", s.Next()))
	for {
		now := s.clock.Now()
		next := s.schedule.Next(now.In(s.location))
		timer := s.clock.NewTimer(next.Sub(now))

		select {
		case <-ctx.Done():
			timer.Stop()
			s.logger.Info("scheduler stopped")
			return nil
		case <-timer.C():
			s.RunNow(ctx, TriggerSchedule)
		case <-s.manual:
			timer.Stop()
			s.RunNow(ctx, TriggerManual)
		}
	}
}

// RunNow runs the task synchronously, waiting for any run in progress.
func (s *Scheduler) RunNow(ctx context.Context, trigger Trigger) RunReport {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	report := RunReport{Task: s.name, Trigger: trigger, StartedAt: s.clock.Now()}
	logger := s.logger.With(slog.String("trigger", string(trigger)))

	runCtx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	start := time.Now()
	err := s.checkPreconditions(runCtx)
	if err != nil {
		report.Status = StatusSkipped
		logger.Warn("run skipped, precondition failed", slog.Any("error", err))
	} else {
		logger.Info("run started")
		err = s.task(runCtx)
		switch {
		case err == nil:
			report.Status = StatusSuccess
		case ctx.Err() != nil:
			report.Status = StatusInterrupted
		default:
			report.Status = StatusFailure
		}
	}
	report.Duration = time.Since(start)
	if err != nil {
		report.Error = err.Error()
	}

	switch report.Status {
	case StatusSuccess:
		logger.Info("run completed", slog.Duration("duration", report.Duration))
	case StatusFailure, StatusInterrupted:
		logger.Error("run failed",
			slog.String("status", report.Status),
			slog.Duration("duration", report.Duration),
			slog.Any("error", err))
	}
	if s.metrics != nil {
		s.metrics.RecordRun(s.name, trigger, report.Status, report.Duration.Seconds())
	}
	s.lastRun.Store(&report)
	return report
}

func (s *Scheduler) checkPreconditions(ctx context.Context) error {
	var errs []error
	for _, p := range s.preconditions {
		if err := p.Check(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", p.Name, err))
		}
	}
	return errors.Join(errs...)
}
