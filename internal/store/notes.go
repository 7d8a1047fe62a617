package store

import (
	"context"
	"fmt"
	"time"
)

const noteColumns = `id, user_id, day, content, created_at, updated_at`

// UpsertNote keeps a single note per (user, day).
func (q queries) UpsertNote(ctx context.Context, userID int64, day time.Time, content string) (*Note, error) {
	ts := now()
	_, err := q.exec(ctx, `
		INSERT INTO notes (user_id, day, content, created_at, updated_at) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (user_id, day) DO UPDATE SET content = excluded.content, updated_at = excluded.updated_at`,
		userID, day.UTC(), content, ts, ts)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert note: %w", err)
	}
	return q.GetNote(ctx, userID, day)
}

func (q queries) GetNote(ctx context.Context, userID int64, day time.Time) (*Note, error) {
	var n Note
	if err := q.get(ctx, &n, `SELECT `+noteColumns+` FROM notes WHERE user_id = ? AND day = ?`, userID, day.UTC()); err != nil {
		return nil, err
	}
	n.Day = n.Day.UTC()
	return &n, nil
}

// NotesBetween lists notes with from <= day < to, oldest first.
func (q queries) NotesBetween(ctx context.Context, userID int64, from, to time.Time) ([]Note, error) {
	notes := []Note{}
	err := q.sel(ctx, &notes, `SELECT `+noteColumns+` FROM notes WHERE user_id = ? AND day >= ? AND day < ? ORDER BY day ASC`,
		userID, from.UTC(), to.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to list notes: %w", err)
	}
	for i := range notes {
		notes[i].Day = notes[i].Day.UTC()
	}
	return notes, nil
}

func (q queries) SearchNotes(ctx context.Context, userID int64, term string, limit int) ([]Note, error) {
	notes := []Note{}
	err := q.sel(ctx, &notes, `
		SELECT `+noteColumns+` FROM notes
		WHERE user_id = ? AND LOWER(content) LIKE ? ESCAPE '\'
		ORDER BY day DESC
		LIMIT ?`, userID, escapeLike(term), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search notes: %w", err)
	}
	for i := range notes {
		notes[i].Day = notes[i].Day.UTC()
	}
	return notes, nil
}

func (q queries) DeleteNote(ctx context.Context, userID int64, day time.Time) error {
	n, err := q.exec(ctx, `DELETE FROM notes WHERE user_id = ? AND day = ?`, userID, day.UTC())
	if err != nil {
		return fmt.Errorf("failed to delete note: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (q queries) DeleteNotesOf(ctx context.Context, userID int64) (int64, error) {
	n, err := q.exec(ctx, `DELETE FROM notes WHERE user_id = ?`, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete notes: %w", err)
	}
	return n, nil
}
