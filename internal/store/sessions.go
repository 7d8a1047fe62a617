package store

import (
	"context"
	"fmt"
	"time"
)

func (q queries) CreateSession(ctx context.Context, s *Session) error {
	s.CreatedAt = now()
	_, err := q.exec(ctx, `INSERT INTO sessions (id, user_id, expires_at, created_at) VALUES (?, ?, ?, ?)`,
		s.ID, s.UserID, s.ExpiresAt.UTC(), s.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}
	return nil
}

func (q queries) GetSession(ctx context.Context, id string) (*Session, error) {
	var s Session
	if err := q.get(ctx, &s, `SELECT id, user_id, expires_at, created_at FROM sessions WHERE id = ?`, id); err != nil {
		return nil, err
	}
	return &s, nil
}

func (q queries) DeleteSession(ctx context.Context, id string) error {
	if _, err := q.exec(ctx, `DELETE FROM sessions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

func (q queries) DeleteSessionsOf(ctx context.Context, userID int64) (int64, error) {
	n, err := q.exec(ctx, `DELETE FROM sessions WHERE user_id = ?`, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete sessions: %w", err)
	}
	return n, nil
}

// DeleteExpiredSessions removes sessions that expired before cutoff.
func (q queries) DeleteExpiredSessions(ctx context.Context, cutoff time.Time) (int64, error) {
	n, err := q.exec(ctx, `DELETE FROM sessions WHERE expires_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to purge sessions: %w", err)
	}
	return n, nil
}
