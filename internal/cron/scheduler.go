// Package cron runs recurring resource refreshes on one shared robfig/cron
// instance.
package cron

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/bher20/fxratemanager/internal/metrics"
)

// Job is one scheduled unit of work. The context is cancelled on Stop.
type Job func(ctx context.Context) error

// Trigger describes when a job fires. Triggers are turned into cron
// schedules each time the scheduler is (re)built so that initial delays are
// measured from installation.
type Trigger struct {
	desc  string
	build func(now time.Time) (cron.Schedule, error)
}

func (t Trigger) String() string { return t.desc }

// Every fires first after delay, then every period.
func Every(period, delay time.Duration) Trigger {
	return Trigger{
		desc: fmt.Sprintf("every %s after %s", period, delay),
		build: func(now time.Time) (cron.Schedule, error) {
			if period <= 0 {
				return nil, fmt.Errorf("period must be positive, got %s", period)
			}
			return delayedPeriodic{first: now.Add(delay), period: period}, nil
		},
	}
}

// DailyAt fires every day at the given local time.
func DailyAt(hour, minute, second int) Trigger {
	spec := fmt.Sprintf("%d %d %d * * *", second, minute, hour)
	return Trigger{
		desc: fmt.Sprintf("daily at %02d:%02d:%02d", hour, minute, second),
		build: func(time.Time) (cron.Schedule, error) {
			return secondsParser.Parse(spec)
		},
	}
}

// Expression fires on a standard five field cron expression.
func Expression(expr string) Trigger {
	return Trigger{
		desc: expr,
		build: func(time.Time) (cron.Schedule, error) {
			return cron.ParseStandard(expr)
		},
	}
}

var secondsParser = cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// delayedPeriodic fires at first, first+period, first+2*period and so on.
type delayedPeriodic struct {
	first  time.Time
	period time.Duration
}

func (s delayedPeriodic) Next(t time.Time) time.Time {
	if t.Before(s.first) {
		return s.first
	}
	n := t.Sub(s.first)/s.period + 1
	return s.first.Add(n * s.period)
}

type job struct {
	name     string
	run      Job
	triggers []Trigger
	entries  []cron.EntryID
}

// JobInfo describes an installed job.
type JobInfo struct {
	Name     string    `json:"name"`
	Triggers []string  `json:"triggers"`
	Next     time.Time `json:"next,omitempty"`
}

// Scheduler owns one cron instance. Jobs are keyed by name; scheduling a name
// again replaces the previous job.
type Scheduler struct {
	log *zap.Logger

	mu      sync.Mutex
	c       *cron.Cron
	jobs    map[string]*job
	running bool

	ctx    context.Context
	cancel context.CancelFunc
}

func New(log *zap.Logger) *Scheduler {
	if log == nil {
		log = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		log:    log,
		jobs:   make(map[string]*job),
		ctx:    ctx,
		cancel: cancel,
	}
	s.c = s.newCron()
	return s
}

func (s *Scheduler) newCron() *cron.Cron {
	l := zapCronLogger{s.log.Sugar()}
	return cron.New(
		cron.WithSeconds(),
		cron.WithLogger(l),
		cron.WithChain(cron.SkipIfStillRunning(l), cron.Recover(l)),
	)
}

// Start begins firing jobs. It is a no-op when already running.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.c.Start()
}

// Stop halts the scheduler and waits for running jobs or ctx. A stopped
// scheduler is not restarted.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	s.running = false
	done := s.c.Stop()
	s.mu.Unlock()
	s.cancel()

	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Schedule installs run under name with one cron entry per trigger.
func (s *Scheduler) Schedule(name string, run Job, triggers ...Trigger) error {
	if len(triggers) == 0 {
		return fmt.Errorf("job %s: no triggers", name)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.jobs[name]; ok {
		s.removeLocked(old)
	}
	j := &job{name: name, run: run, triggers: triggers}
	if err := s.installLocked(s.c, j, time.Now()); err != nil {
		s.removeLocked(j)
		return err
	}
	s.jobs[name] = j
	s.log.Info("job scheduled", zap.String("job", name), zap.Stringers("triggers", triggers))
	return nil
}

// Cancel removes a single job. It reports whether the job existed.
func (s *Scheduler) Cancel(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[name]
	if !ok {
		return false
	}
	s.removeLocked(j)
	delete(s.jobs, name)
	s.log.Info("job cancelled", zap.String("job", name))
	return true
}

// Reset tears down the cron instance and reinstalls every known job on a
// fresh one. Periodic delays restart from now.
func (s *Scheduler) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.c.Stop()
	c := s.newCron()
	now := time.Now()
	var firstErr error
	for _, j := range s.jobs {
		j.entries = nil
		if err := s.installLocked(c, j, now); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	s.c = c
	if s.running {
		c.Start()
	}
	s.log.Info("scheduler reset", zap.Int("jobs", len(s.jobs)))
	return firstErr
}

// Jobs lists installed jobs sorted by name.
func (s *Scheduler) Jobs() []JobInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]JobInfo, 0, len(s.jobs))
	for _, j := range s.jobs {
		info := JobInfo{Name: j.name}
		for _, t := range j.triggers {
			info.Triggers = append(info.Triggers, t.String())
		}
		for _, id := range j.entries {
			next := s.c.Entry(id).Next
			if next.IsZero() {
				next = s.c.Entry(id).Schedule.Next(time.Now())
			}
			if info.Next.IsZero() || next.Before(info.Next) {
				info.Next = next
			}
		}
		out = append(out, info)
	}
	sort.Slice(out, func(i, k int) bool { return out[i].Name < out[k].Name })
	return out
}

func (s *Scheduler) installLocked(c *cron.Cron, j *job, now time.Time) error {
	for _, t := range j.triggers {
		sched, err := t.build(now)
		if err != nil {
			return fmt.Errorf("job %s: %s: %w", j.name, t, err)
		}
		j.entries = append(j.entries, c.Schedule(sched, s.wrap(j)))
	}
	return nil
}

func (s *Scheduler) removeLocked(j *job) {
	for _, id := range j.entries {
		s.c.Remove(id)
	}
	j.entries = nil
}

func (s *Scheduler) wrap(j *job) cron.Job {
	return cron.FuncJob(func() {
		started := time.Now()
		err := j.run(s.ctx)
		metrics.UpdateJobMetrics(j.name, started, err)
		if err != nil {
			s.log.Warn("job completed with error",
				zap.String("job", j.name),
				zap.Duration("duration", time.Since(started)),
				zap.Error(err),
			)
			return
		}
		s.log.Debug("job completed", zap.String("job", j.name), zap.Duration("duration", time.Since(started)))
	})
}

// zapCronLogger adapts zap to cron.Logger. Cron's info output is chatty and
// goes to debug.
type zapCronLogger struct {
	l *zap.SugaredLogger
}

func (z zapCronLogger) Info(msg string, keysAndValues ...interface{}) {
	z.l.Debugw("cron: "+msg, keysAndValues...)
}

func (z zapCronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	z.l.Errorw("cron: "+msg, append(keysAndValues, "error", err)...)
}
