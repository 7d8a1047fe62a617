package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
)

const chatColumns = `c.id, c.title, c.owner_id, c.created_at, c.updated_at`

var chatSortColumns = map[string]string{
	"createdAt": "c.created_at",
	"updatedAt": "c.updated_at",
	"title":     "c.title",
}

var messageSortColumns = map[string]string{
	"createdAt": "m.created_at",
	"updatedAt": "m.updated_at",
	"text":      "m.text",
}

func (q queries) CreateChat(ctx context.Context, c *Chat) error {
	ts := now()
	err := q.get(ctx, &c.ID, `INSERT INTO chats (title, owner_id, created_at, updated_at) VALUES (?, ?, ?, ?) RETURNING id`,
		c.Title, c.OwnerID, ts, ts)
	if err != nil {
		return fmt.Errorf("failed to insert chat: %w", err)
	}
	c.CreatedAt, c.UpdatedAt = ts, ts
	return nil
}

func (q queries) GetChat(ctx context.Context, id int64) (*Chat, error) {
	var c Chat
	if err := q.get(ctx, &c, `SELECT `+chatColumns+` FROM chats c WHERE c.id = ?`, id); err != nil {
		return nil, err
	}
	return &c, nil
}

// FindChatByTitle returns the oldest chat owned by ownerID with exactly title.
func (q queries) FindChatByTitle(ctx context.Context, ownerID int64, title string) (*Chat, error) {
	var c Chat
	err := q.get(ctx, &c, `SELECT `+chatColumns+` FROM chats c WHERE c.owner_id = ? AND c.title = ? ORDER BY c.id ASC LIMIT 1`,
		ownerID, title)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// ListChats returns one page of the chats userID owns or participates in,
// with the total number of matches.
func (q queries) ListChats(ctx context.Context, userID int64, f ListFilter) ([]Chat, int, error) {
	where := []string{`(c.owner_id = ? OR EXISTS (SELECT 1 FROM chat_participants p WHERE p.chat_id = c.id AND p.user_id = ?))`}
	args := []interface{}{userID, userID}
	where, args = appendFilter(where, args, f, "c.title", "c.created_at")
	cond := strings.Join(where, " AND ")

	var total int
	if err := q.get(ctx, &total, `SELECT COUNT(*) FROM chats c WHERE `+cond, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count chats: %w", err)
	}

	chats := []Chat{}
	query := `SELECT ` + chatColumns + ` FROM chats c WHERE ` + cond +
		orderBy(chatSortColumns, f.SortBy, f.Desc, "c") + ` LIMIT ? OFFSET ?`
	if err := q.sel(ctx, &chats, query, append(args, f.Limit, f.Offset)...); err != nil {
		return nil, 0, fmt.Errorf("failed to list chats: %w", err)
	}
	return chats, total, nil
}

func (q queries) UpdateChatTitle(ctx context.Context, id int64, title string) (*Chat, error) {
	n, err := q.exec(ctx, `UPDATE chats SET title = ?, updated_at = ? WHERE id = ?`, title, now(), id)
	if err != nil {
		return nil, fmt.Errorf("failed to update chat: %w", err)
	}
	if n == 0 {
		return nil, ErrNotFound
	}
	return q.GetChat(ctx, id)
}

func (q queries) TouchChat(ctx context.Context, id int64, at time.Time) error {
	if _, err := q.exec(ctx, `UPDATE chats SET updated_at = ? WHERE id = ?`, at, id); err != nil {
		return fmt.Errorf("failed to touch chat: %w", err)
	}
	return nil
}

func (q queries) DeleteChat(ctx context.Context, id int64) error {
	n, err := q.exec(ctx, `DELETE FROM chats WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete chat: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (q queries) ChatIDsOwnedBy(ctx context.Context, ownerID int64) ([]int64, error) {
	ids := []int64{}
	if err := q.sel(ctx, &ids, `SELECT id FROM chats WHERE owner_id = ? ORDER BY id`, ownerID); err != nil {
		return nil, fmt.Errorf("failed to list owned chats: %w", err)
	}
	return ids, nil
}

func (q queries) DeleteChatsOwnedBy(ctx context.Context, ownerID int64) (int64, error) {
	n, err := q.exec(ctx, `DELETE FROM chats WHERE owner_id = ?`, ownerID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete owned chats: %w", err)
	}
	return n, nil
}

// LastMessages returns the newest message of each chat that has one.
func (q queries) LastMessages(ctx context.Context, chatIDs []int64) (map[int64]Message, error) {
	out := make(map[int64]Message, len(chatIDs))
	if len(chatIDs) == 0 {
		return out, nil
	}
	query, args, err := sqlx.In(`
		SELECT `+messageColumns+` FROM messages m
		WHERE m.id IN (SELECT MAX(id) FROM messages WHERE chat_id IN (?) GROUP BY chat_id)`, chatIDs)
	if err != nil {
		return nil, err
	}
	var msgs []Message
	if err := q.sel(ctx, &msgs, query, args...); err != nil {
		return nil, fmt.Errorf("failed to load last messages: %w", err)
	}
	for _, m := range msgs {
		out[m.ChatID] = m
	}
	return out, nil
}

func appendFilter(where []string, args []interface{}, f ListFilter, textCol, timeCol string) ([]string, []interface{}) {
	if s := strings.TrimSpace(f.Search); s != "" {
		where = append(where, `LOWER(`+textCol+`) LIKE ? ESCAPE '\'`)
		args = append(args, escapeLike(s))
	}
	if f.From != nil {
		where = append(where, timeCol+` >= ?`)
		args = append(args, f.From.UTC())
	}
	if f.To != nil {
		where = append(where, timeCol+` <= ?`)
		args = append(args, f.To.UTC())
	}
	return where, args
}

// orderBy only ever emits whitelisted columns; the id tie-break keeps pages stable.
func orderBy(columns map[string]string, sortBy string, desc bool, alias string) string {
	col, ok := columns[sortBy]
	if !ok {
		col = alias + ".created_at"
	}
	dir := "ASC"
	if desc {
		dir = "DESC"
	}
	return ` ORDER BY ` + col + ` ` + dir + `, ` + alias + `.id ` + dir
}

// ValidChatSort reports whether field can be used to sort chats.
func ValidChatSort(field string) bool {
	_, ok := chatSortColumns[field]
	return ok
}

func ValidMessageSort(field string) bool {
	_, ok := messageSortColumns[field]
	return ok
}
