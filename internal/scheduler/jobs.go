package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"
)

const (
	PurgeSessionsJob = "purge-sessions"
	SweepUploadsJob  = "sweep-uploads"

	// staleUploadAge is how long a partial upload may sit in staging.
	staleUploadAge = 24 * time.Hour
)

// SessionPurger drops expired sessions.
type SessionPurger interface {
	PurgeExpiredSessions(ctx context.Context) (int64, error)
}

// TempSweeper removes stale partial uploads.
type TempSweeper interface {
	SweepTemp(maxAge time.Duration) (int, error)
}

type Schedules struct {
	PurgeSessions string
	SweepUploads  string
}

// RegisterMaintenance adds the session purge and upload sweep jobs.
func (s *Scheduler) RegisterMaintenance(sched Schedules, sessions SessionPurger, uploads TempSweeper) error {
	err := s.AddJob(PurgeSessionsJob, sched.PurgeSessions, func(ctx context.Context) error {
		n, err := sessions.PurgeExpiredSessions(ctx)
		if err != nil {
			return err
		}
		if n > 0 {
			s.logger.Info("expired sessions purged", zap.Int64("count", n))
		}
		return nil
	})
	if err != nil {
		return err
	}

	return s.AddJob(SweepUploadsJob, sched.SweepUploads, func(context.Context) error {
		n, err := uploads.SweepTemp(staleUploadAge)
		if err != nil {
			return err
		}
		if n > 0 {
			s.logger.Info("stale uploads removed", zap.Int("count", n))
		}
		return nil
	})
}
