package store

import (
	"context"
	"fmt"
	"time"
)

// RecordActivity inserts the (user, day) row if absent and reports whether
// it was created. day must already be truncated to UTC midnight.
func (q queries) RecordActivity(ctx context.Context, userID int64, day time.Time) (bool, error) {
	n, err := q.exec(ctx, `INSERT INTO activities (user_id, day) VALUES (?, ?) ON CONFLICT (user_id, day) DO NOTHING`,
		userID, day.UTC())
	if err != nil {
		return false, fmt.Errorf("failed to record activity: %w", err)
	}
	return n > 0, nil
}

// ActivityDays returns the user's activity days on or after since, newest first.
func (q queries) ActivityDays(ctx context.Context, userID int64, since time.Time) ([]time.Time, error) {
	days := []time.Time{}
	err := q.sel(ctx, &days, `SELECT day FROM activities WHERE user_id = ? AND day >= ? ORDER BY day DESC`,
		userID, since.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to list activity: %w", err)
	}
	for i := range days {
		days[i] = days[i].UTC()
	}
	return days, nil
}

func (q queries) HasActivity(ctx context.Context, userID int64, day time.Time) (bool, error) {
	var n int
	if err := q.get(ctx, &n, `SELECT COUNT(*) FROM activities WHERE user_id = ? AND day = ?`, userID, day.UTC()); err != nil {
		return false, fmt.Errorf("failed to check activity: %w", err)
	}
	return n > 0, nil
}

func (q queries) DeleteActivityOf(ctx context.Context, userID int64) (int64, error) {
	n, err := q.exec(ctx, `DELETE FROM activities WHERE user_id = ?`, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete activity: %w", err)
	}
	return n, nil
}
