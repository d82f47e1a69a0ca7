package scheduler

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// Scheduler is a table of named recurring jobs. At most one job per name is
// active: registering a name that already exists removes the old job before
// the new one is created, under the same lock, so two jobs with one name
// never coexist.
//
// Removing a job stops future runs only. A run already in progress keeps
// going until its function returns.
type Scheduler struct {
	cron gocron.Scheduler
	log  *zap.SugaredLogger

	mu   sync.Mutex
	jobs map[string]uuid.UUID
}

// Option configures a Scheduler.
type Option func(*options)

type options struct {
	clock clockwork.Clock
}

// WithClock drives the scheduler from clock instead of the wall clock.
func WithClock(clock clockwork.Clock) Option {
	return func(o *options) { o.clock = clock }
}

// New creates and starts a Scheduler.
func New(logger *zap.SugaredLogger, opts ...Option) (*Scheduler, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	var o options
	for _, fn := range opts {
		fn(&o)
	}

	cronOpts := []gocron.SchedulerOption{gocron.WithLogger(cronLogger{logger})}
	if o.clock != nil {
		cronOpts = append(cronOpts, gocron.WithClock(o.clock))
	}
	cron, err := gocron.NewScheduler(cronOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create gocron scheduler: %w", err)
	}
	cron.Start()

	return &Scheduler{
		cron: cron,
		log:  logger,
		jobs: make(map[string]uuid.UUID),
	}, nil
}

// Every registers fn to run every interval under name, replacing any job
// already registered under that name. Intervals below one second are
// clamped to one second to avoid busy-loops. Runs of the same job never
// overlap; a tick that arrives while the previous run is still going is
// skipped.
func (s *Scheduler) Every(name string, interval time.Duration, fn func()) error {
	if interval < time.Second {
		interval = time.Second
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.cancelLocked(name)

	job, err := s.cron.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(fn),
		gocron.WithName(name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("schedule %s: %w", name, err)
	}
	s.jobs[name] = job.ID()
	s.log.Infow("scheduler: job registered", "name", name, "interval", interval.String())
	return nil
}

// Cancel removes the job registered under name. It reports whether a job
// was removed.
func (s *Scheduler) Cancel(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelLocked(name)
}

// CancelAll removes every job.
func (s *Scheduler) CancelAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for name := range s.jobs {
		s.cancelLocked(name)
	}
}

// Active reports whether a job is registered under name.
func (s *Scheduler) Active(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.jobs[name]
	return ok
}

// Len returns the number of registered jobs.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

// Shutdown removes all jobs and stops the underlying scheduler, waiting for
// in-flight runs to finish. The Scheduler cannot be reused afterwards.
func (s *Scheduler) Shutdown() error {
	s.CancelAll()
	return s.cron.Shutdown()
}

func (s *Scheduler) cancelLocked(name string) bool {
	id, ok := s.jobs[name]
	if !ok {
		return false
	}
	delete(s.jobs, name)
	if err := s.cron.RemoveJob(id); err != nil && !errors.Is(err, gocron.ErrJobNotFound) {
		s.log.Warnw("scheduler: remove job failed", "name", name, "err", err)
	}
	s.log.Infow("scheduler: job cancelled", "name", name)
	return true
}

// cronLogger adapts the sugared logger to gocron.Logger.
type cronLogger struct {
	l *zap.SugaredLogger
}

func (c cronLogger) Debug(msg string, args ...any) { c.l.Debugw("gocron: "+msg, args...) }
func (c cronLogger) Info(msg string, args ...any)  { c.l.Infow("gocron: "+msg, args...) }
func (c cronLogger) Warn(msg string, args ...any)  { c.l.Warnw("gocron: "+msg, args...) }
func (c cronLogger) Error(msg string, args ...any) { c.l.Errorw("gocron: "+msg, args...) }
