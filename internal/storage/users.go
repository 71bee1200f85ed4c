package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"postbot/internal/model"
)

// DefaultTimezone is assumed for users who never picked one.
const DefaultTimezone = "UTC"

// AddUser registers a user on first contact, along with their statistics row
// and a fresh web token. Repeat calls are no-ops; the existing token is
// returned either way.
func (s *Store) AddUser(ctx context.Context, userID int64, username string) (string, error) {
	now := fmtTime(time.Now())
	token := uuid.NewString()
	if _, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO users(user_id, username, timezone, joined_at, web_token) VALUES(?,?,?,?,?)`,
		userID, username, DefaultTimezone, now, token,
	); err != nil {
		return "", err
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO statistics(user_id, updated_at) VALUES(?,?)`,
		userID, now,
	); err != nil {
		return "", err
	}
	var got string
	if err := s.db.QueryRowContext(ctx, `SELECT web_token FROM users WHERE user_id = ?`, userID).Scan(&got); err != nil {
		return "", err
	}
	return got, nil
}

func (s *Store) User(ctx context.Context, userID int64) (model.User, error) {
	var (
		u        model.User
		joinedAt string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id, username, timezone, joined_at, web_token FROM users WHERE user_id = ?`,
		userID,
	).Scan(&u.ID, &u.Username, &u.Timezone, &joinedAt, &u.WebToken)
	if errors.Is(err, sql.ErrNoRows) {
		return model.User{}, ErrNotFound
	}
	if err != nil {
		return model.User{}, err
	}
	u.JoinedAt = parseTime(joinedAt)
	return u, nil
}

// UserByToken resolves a web token to its owner. Tokens map to exactly one user.
func (s *Store) UserByToken(ctx context.Context, token string) (int64, error) {
	if token == "" {
		return 0, ErrNotFound
	}
	var id int64
	err := s.db.QueryRowContext(ctx, `SELECT user_id FROM users WHERE web_token = ?`, token).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	return id, err
}

// Timezone returns the user's IANA timezone name, falling back to the default
// for unknown users.
func (s *Store) Timezone(ctx context.Context, userID int64) string {
	var tz string
	err := s.db.QueryRowContext(ctx, `SELECT timezone FROM users WHERE user_id = ?`, userID).Scan(&tz)
	if err != nil || tz == "" {
		return DefaultTimezone
	}
	return tz
}

func (s *Store) SetTimezone(ctx context.Context, userID int64, tz string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE users SET timezone = ? WHERE user_id = ?`, tz, userID)
	return err
}
