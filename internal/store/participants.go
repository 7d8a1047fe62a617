package store

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// AddParticipant inserts the membership unless it already exists. It reports
// whether a row was added.
func (q queries) AddParticipant(ctx context.Context, chatID, userID int64, role string) (bool, error) {
	if role == "" {
		role = ParticipantMember
	}
	n, err := q.exec(ctx, `
		INSERT INTO chat_participants (chat_id, user_id, role, joined_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (chat_id, user_id) DO NOTHING`, chatID, userID, role, now())
	if err != nil {
		return false, fmt.Errorf("failed to add participant: %w", err)
	}
	return n > 0, nil
}

func (q queries) RemoveParticipant(ctx context.Context, chatID, userID int64) (bool, error) {
	n, err := q.exec(ctx, `DELETE FROM chat_participants WHERE chat_id = ? AND user_id = ?`, chatID, userID)
	if err != nil {
		return false, fmt.Errorf("failed to remove participant: %w", err)
	}
	return n > 0, nil
}

func (q queries) ParticipantIDs(ctx context.Context, chatID int64) ([]int64, error) {
	ids := []int64{}
	if err := q.sel(ctx, &ids, `SELECT user_id FROM chat_participants WHERE chat_id = ? ORDER BY id`, chatID); err != nil {
		return nil, fmt.Errorf("failed to list participant ids: %w", err)
	}
	return ids, nil
}

// ParticipantIDsByChat loads the rosters of several chats at once.
func (q queries) ParticipantIDsByChat(ctx context.Context, chatIDs []int64) (map[int64][]int64, error) {
	out := make(map[int64][]int64, len(chatIDs))
	if len(chatIDs) == 0 {
		return out, nil
	}
	query, args, err := sqlx.In(`SELECT chat_id, user_id FROM chat_participants WHERE chat_id IN (?) ORDER BY id`, chatIDs)
	if err != nil {
		return nil, err
	}
	var rows []struct {
		ChatID int64 `db:"chat_id"`
		UserID int64 `db:"user_id"`
	}
	if err := q.sel(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list participants: %w", err)
	}
	for _, r := range rows {
		out[r.ChatID] = append(out[r.ChatID], r.UserID)
	}
	return out, nil
}

func (q queries) ListParticipants(ctx context.Context, chatID int64) ([]Participant, error) {
	ps := []Participant{}
	err := q.sel(ctx, &ps, `
		SELECT p.chat_id, p.user_id, u.username, u.avatar_url, p.role, p.joined_at
		FROM chat_participants p JOIN users u ON u.id = p.user_id
		WHERE p.chat_id = ?
		ORDER BY p.id`, chatID)
	if err != nil {
		return nil, fmt.Errorf("failed to list participants: %w", err)
	}
	return ps, nil
}

func (q queries) DeleteParticipantsByChat(ctx context.Context, chatID int64) (int64, error) {
	n, err := q.exec(ctx, `DELETE FROM chat_participants WHERE chat_id = ?`, chatID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete participants: %w", err)
	}
	return n, nil
}

// DeleteParticipantsOfOwnedChats clears the rosters of every chat ownerID owns.
func (q queries) DeleteParticipantsOfOwnedChats(ctx context.Context, ownerID int64) (int64, error) {
	n, err := q.exec(ctx, `DELETE FROM chat_participants WHERE chat_id IN (SELECT id FROM chats WHERE owner_id = ?)`, ownerID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete participants of owned chats: %w", err)
	}
	return n, nil
}

func (q queries) DeleteParticipationsOf(ctx context.Context, userID int64) (int64, error) {
	n, err := q.exec(ctx, `DELETE FROM chat_participants WHERE user_id = ?`, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete participations: %w", err)
	}
	return n, nil
}
