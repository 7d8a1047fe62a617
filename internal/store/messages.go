package store

import (
	"context"
	"fmt"
	"strings"
)

const messageColumns = `m.id, m.chat_id, m.user_id, m.sender_label, m.text, m.type, m.created_at, m.updated_at`

func (q queries) CreateMessage(ctx context.Context, m *Message) error {
	if m.Type == "" {
		m.Type = MessageTypeText
	}
	ts := now()
	err := q.get(ctx, &m.ID, `
		INSERT INTO messages (chat_id, user_id, sender_label, text, type, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		RETURNING id`,
		m.ChatID, m.UserID, m.SenderLabel, m.Text, m.Type, ts, ts)
	if err != nil {
		return fmt.Errorf("failed to insert message: %w", err)
	}
	m.CreatedAt, m.UpdatedAt = ts, ts
	return nil
}

func (q queries) GetMessage(ctx context.Context, id int64) (*Message, error) {
	var m Message
	if err := q.get(ctx, &m, `SELECT `+messageColumns+` FROM messages m WHERE m.id = ?`, id); err != nil {
		return nil, err
	}
	return &m, nil
}

func (q queries) ListMessages(ctx context.Context, chatID int64, f ListFilter) ([]Message, int, error) {
	where := []string{`m.chat_id = ?`}
	args := []interface{}{chatID}
	where, args = appendFilter(where, args, f, "m.text", "m.created_at")
	cond := strings.Join(where, " AND ")

	var total int
	if err := q.get(ctx, &total, `SELECT COUNT(*) FROM messages m WHERE `+cond, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count messages: %w", err)
	}

	msgs := []Message{}
	query := `SELECT ` + messageColumns + ` FROM messages m WHERE ` + cond +
		orderBy(messageSortColumns, f.SortBy, f.Desc, "m") + ` LIMIT ? OFFSET ?`
	if err := q.sel(ctx, &msgs, query, append(args, f.Limit, f.Offset)...); err != nil {
		return nil, 0, fmt.Errorf("failed to list messages: %w", err)
	}
	return msgs, total, nil
}

func (q queries) UpdateMessageText(ctx context.Context, id int64, text string) (*Message, error) {
	n, err := q.exec(ctx, `UPDATE messages SET text = ?, updated_at = ? WHERE id = ?`, text, now(), id)
	if err != nil {
		return nil, fmt.Errorf("failed to update message: %w", err)
	}
	if n == 0 {
		return nil, ErrNotFound
	}
	return q.GetMessage(ctx, id)
}

func (q queries) DeleteMessage(ctx context.Context, id int64) error {
	n, err := q.exec(ctx, `DELETE FROM messages WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete message: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (q queries) DeleteMessagesByChat(ctx context.Context, chatID int64) (int64, error) {
	n, err := q.exec(ctx, `DELETE FROM messages WHERE chat_id = ?`, chatID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete chat messages: %w", err)
	}
	return n, nil
}

func (q queries) DeleteMessagesOfOwnedChats(ctx context.Context, ownerID int64) (int64, error) {
	n, err := q.exec(ctx, `DELETE FROM messages WHERE chat_id IN (SELECT id FROM chats WHERE owner_id = ?)`, ownerID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete messages of owned chats: %w", err)
	}
	return n, nil
}

func (q queries) DeleteMessagesAuthoredBy(ctx context.Context, userID int64) (int64, error) {
	n, err := q.exec(ctx, `DELETE FROM messages WHERE user_id = ?`, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete authored messages: %w", err)
	}
	return n, nil
}
