package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
)

const userColumns = `id, username, email, password_hash, full_name, location, website, avatar_url, role, created_at, updated_at`

func (q queries) CreateUser(ctx context.Context, u *User) error {
	ts := now()
	if u.Role == "" {
		u.Role = DefaultUserRole
	}
	err := q.get(ctx, &u.ID, `
		INSERT INTO users (username, email, password_hash, full_name, location, website, avatar_url, role, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id`,
		u.Username, u.Email, u.PasswordHash, u.FullName, u.Location, u.Website, u.AvatarURL, u.Role, ts, ts)
	if err != nil {
		return fmt.Errorf("failed to insert user: %w", err)
	}
	u.CreatedAt, u.UpdatedAt = ts, ts
	return nil
}

func (q queries) GetUserByID(ctx context.Context, id int64) (*User, error) {
	var u User
	if err := q.get(ctx, &u, `SELECT `+userColumns+` FROM users WHERE id = ?`, id); err != nil {
		return nil, err
	}
	return &u, nil
}

func (q queries) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	var u User
	if err := q.get(ctx, &u, `SELECT `+userColumns+` FROM users WHERE email = ?`, email); err != nil {
		return nil, err
	}
	return &u, nil
}

// GetUsersByIDs returns the users found, keyed by id.
func (q queries) GetUsersByIDs(ctx context.Context, ids []int64) (map[int64]*User, error) {
	out := make(map[int64]*User, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	query, args, err := sqlx.In(`SELECT `+userColumns+` FROM users WHERE id IN (?)`, ids)
	if err != nil {
		return nil, err
	}
	var users []User
	if err := q.sel(ctx, &users, query, args...); err != nil {
		return nil, fmt.Errorf("failed to load users: %w", err)
	}
	for i := range users {
		out[users[i].ID] = &users[i]
	}
	return out, nil
}

// UserExists reports whether the email or the username is already taken.
func (q queries) UserExists(ctx context.Context, email, username string) (bool, error) {
	var n int
	err := q.get(ctx, &n, `SELECT COUNT(*) FROM users WHERE email = ? OR LOWER(username) = LOWER(?)`, email, username)
	if err != nil {
		return false, fmt.Errorf("failed to check user existence: %w", err)
	}
	return n > 0, nil
}

func (q queries) UsernameTaken(ctx context.Context, username string, exceptID int64) (bool, error) {
	var n int
	err := q.get(ctx, &n, `SELECT COUNT(*) FROM users WHERE LOWER(username) = LOWER(?) AND id <> ?`, username, exceptID)
	if err != nil {
		return false, fmt.Errorf("failed to check username: %w", err)
	}
	return n > 0, nil
}

func (q queries) UpdateUser(ctx context.Context, id int64, p UserPatch) (*User, error) {
	var (
		sets []string
		args []interface{}
	)
	add := func(col string, v *string) {
		if v != nil {
			sets = append(sets, col+" = ?")
			args = append(args, *v)
		}
	}
	add("username", p.Username)
	add("full_name", p.FullName)
	add("location", p.Location)
	add("website", p.Website)
	add("avatar_url", p.AvatarURL)
	if len(sets) == 0 {
		return q.GetUserByID(ctx, id)
	}
	sets = append(sets, "updated_at = ?")
	args = append(args, now(), id)

	n, err := q.exec(ctx, `UPDATE users SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to update user: %w", err)
	}
	if n == 0 {
		return nil, ErrNotFound
	}
	return q.GetUserByID(ctx, id)
}

func (q queries) UpdatePassword(ctx context.Context, id int64, hash string) error {
	n, err := q.exec(ctx, `UPDATE users SET password_hash = ?, updated_at = ? WHERE id = ?`, hash, now(), id)
	if err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// SearchUsers matches username or full name, case-insensitively.
func (q queries) SearchUsers(ctx context.Context, term string, excludeID int64, limit int) ([]User, error) {
	pattern := escapeLike(term)
	users := []User{}
	err := q.sel(ctx, &users, `
		SELECT `+userColumns+` FROM users
		WHERE id <> ? AND (LOWER(username) LIKE ? ESCAPE '\' OR LOWER(COALESCE(full_name, '')) LIKE ? ESCAPE '\')
		ORDER BY username ASC
		LIMIT ?`, excludeID, pattern, pattern, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search users: %w", err)
	}
	return users, nil
}

func (q queries) DeleteUser(ctx context.Context, id int64) error {
	n, err := q.exec(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
