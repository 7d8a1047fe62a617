package core

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/chatterbox/chatterbox-api/internal/store"
	"github.com/chatterbox/chatterbox-api/internal/utils"
)

// activityWindow bounds how far back the summary looks.
const activityWindow = 365

type ActivityService struct {
	store  *store.Store
	users  *UserService
	logger *zap.Logger
	now    func() time.Time
}

func NewActivityService(st *store.Store, users *UserService, logger *zap.Logger) *ActivityService {
	return &ActivityService{store: st, users: users, logger: logger.Named("activity"), now: time.Now}
}

type ActivitySummary struct {
	UserID      int64    `json:"userId"`
	Streak      int      `json:"streak"`
	ActiveToday bool     `json:"activeToday"`
	Days        []string `json:"days"`
}

// RecordToday marks today (UTC) as active for userID. Repeated calls on the
// same day are no-ops.
func (s *ActivityService) RecordToday(ctx context.Context, userID int64) (*ActivitySummary, error) {
	if _, err := s.users.Get(ctx, userID); err != nil {
		return nil, err
	}
	created, err := s.store.RecordActivity(ctx, userID, utils.Day(s.now()))
	if err != nil {
		return nil, Internal("activity.record", err)
	}
	if created {
		s.logger.Debug("activity recorded", zap.Int64("user_id", userID))
	}
	return s.summary(ctx, userID)
}

func (s *ActivityService) Summary(ctx context.Context, userID int64) (*ActivitySummary, error) {
	if _, err := s.users.Get(ctx, userID); err != nil {
		return nil, err
	}
	return s.summary(ctx, userID)
}

// ComputeStreak returns the user's current streak, see utils.Streak for the rule.
func (s *ActivityService) ComputeStreak(ctx context.Context, userID int64) (int, error) {
	sum, err := s.summary(ctx, userID)
	if err != nil {
		return 0, err
	}
	return sum.Streak, nil
}

func (s *ActivityService) summary(ctx context.Context, userID int64) (*ActivitySummary, error) {
	today := utils.Day(s.now())
	days, err := s.store.ActivityDays(ctx, userID, today.AddDate(0, 0, -activityWindow))
	if err != nil {
		return nil, Internal("activity.summary", err)
	}

	out := &ActivitySummary{
		UserID: userID,
		Streak: utils.Streak(days, today),
		Days:   make([]string, 0, len(days)),
	}
	for _, d := range days {
		if d.Equal(today) {
			out.ActiveToday = true
		}
		out.Days = append(out.Days, d.Format(utils.DayLayout))
	}
	return out, nil
}
