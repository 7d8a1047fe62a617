// Package scheduler runs recurring maintenance jobs on gocron.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"
)

const (
	jobTimeout    = 5 * time.Minute
	slowThreshold = 5 * time.Second
)

// Job is a unit of scheduled work. The context is cancelled on shutdown or
// when the job exceeds its timeout.
type Job func(ctx context.Context) error

type Scheduler struct {
	cron   gocron.Scheduler
	logger *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu   sync.Mutex
	jobs map[string]gocron.Job
}

// New creates and starts a UTC scheduler.
func New(logger *zap.Logger) (*Scheduler, error) {
	logger = logger.Named("scheduler")
	cron, err := gocron.NewScheduler(
		gocron.WithLocation(time.UTC),
		gocron.WithLogger(gocronLogger{logger.Sugar()}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}
	cron.Start()

	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:   cron,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
		jobs:   make(map[string]gocron.Job),
	}, nil
}

// AddJob schedules job on a five-field cron expression.
func (s *Scheduler) AddJob(name, cronExpr string, job Job) error {
	if name == "" {
		return errors.New("empty job name")
	}
	if cronExpr == "" {
		return errors.New("empty cron expression")
	}
	if job == nil {
		return errors.New("nil job function")
	}

	scheduled, err := s.cron.NewJob(
		gocron.CronJob(cronExpr, false),
		gocron.NewTask(s.wrap(name, job)),
		gocron.WithName(name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("failed to schedule job %q: %w", name, err)
	}

	s.mu.Lock()
	s.jobs[name] = scheduled
	s.mu.Unlock()

	fields := []zap.Field{zap.String("job", name), zap.String("cron", cronExpr)}
	if next, err := scheduled.NextRun(); err == nil {
		fields = append(fields, zap.Time("next_run", next))
	}
	s.logger.Info("job scheduled", fields...)
	return nil
}

// RunNow triggers a scheduled job outside its schedule.
func (s *Scheduler) RunNow(name string) error {
	s.mu.Lock()
	job, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("unknown job %q", name)
	}
	return job.RunNow()
}

func (s *Scheduler) wrap(name string, job Job) func() {
	return func() {
		ctx, cancel := context.WithTimeout(s.ctx, jobTimeout)
		defer cancel()

		start := time.Now()
		err := job(ctx)
		elapsed := time.Since(start)

		switch {
		case err != nil:
			s.logger.Error("job failed", zap.String("job", name), zap.Duration("duration", elapsed), zap.Error(err))
		case elapsed > slowThreshold:
			s.logger.Warn("slow scheduled job", zap.String("job", name), zap.Duration("duration", elapsed))
		default:
			s.logger.Debug("job finished", zap.String("job", name), zap.Duration("duration", elapsed))
		}
	}
}

// Stop cancels running jobs and waits for them to return.
func (s *Scheduler) Stop() error {
	s.logger.Debug("stopping scheduler", zap.Int("jobs", len(s.cron.Jobs())))
	s.cancel()
	if err := s.cron.Shutdown(); err != nil {
		return fmt.Errorf("failed to shutdown scheduler: %w", err)
	}
	return nil
}

// gocronLogger routes gocron's own logging through zap.
type gocronLogger struct {
	l *zap.SugaredLogger
}

func (g gocronLogger) Debug(msg string, args ...any) { g.l.Debugw(msg, args...) }
func (g gocronLogger) Info(msg string, args ...any)  { g.l.Infow(msg, args...) }
func (g gocronLogger) Warn(msg string, args ...any)  { g.l.Warnw(msg, args...) }
func (g gocronLogger) Error(msg string, args ...any) { g.l.Errorw(msg, args...) }
