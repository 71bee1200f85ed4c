package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"postbot/internal/model"
)

// AddParticipant records a user's one-time opt-in. Returns false when the
// (post, user) pair already exists; the uniqueness constraint is the signal,
// not an error.
func (s *Store) AddParticipant(ctx context.Context, postID, userID int64, username string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO participants(post_id, user_id, username, joined_at) VALUES(?,?,?,?)`,
		postID, userID, username, fmtTime(time.Now()),
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *Store) CountParticipants(ctx context.Context, postID int64) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM participants WHERE post_id = ?`, postID).Scan(&n)
	return n, err
}

func (s *Store) Participants(ctx context.Context, postID int64, limit, offset int) ([]model.Participant, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT post_id, user_id, username, joined_at FROM participants
		 WHERE post_id = ? ORDER BY joined_at DESC LIMIT ? OFFSET ?`,
		postID, limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Participant
	for rows.Next() {
		var (
			p        model.Participant
			joinedAt string
		)
		if err := rows.Scan(&p.PostID, &p.UserID, &p.Username, &joinedAt); err != nil {
			return nil, err
		}
		p.JoinedAt = parseTime(joinedAt)
		out = append(out, p)
	}
	return out, rows.Err()
}

// AddReaction inserts a vote for one button. Returns false when the
// (post, button, user) triple already exists.
func (s *Store) AddReaction(ctx context.Context, postID int64, buttonID string, userID int64, username string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO reactions(post_id, button_id, user_id, username, reacted_at) VALUES(?,?,?,?,?)`,
		postID, buttonID, userID, username, fmtTime(time.Now()),
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// RemoveReaction deletes a vote. Returns false when there was nothing to remove.
func (s *Store) RemoveReaction(ctx context.Context, postID int64, buttonID string, userID int64) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM reactions WHERE post_id = ? AND button_id = ? AND user_id = ?`,
		postID, buttonID, userID,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// UserReaction returns the button the user currently votes for on this post,
// or ErrNotFound when they have no active vote.
func (s *Store) UserReaction(ctx context.Context, postID, userID int64) (string, error) {
	var buttonID string
	err := s.db.QueryRowContext(ctx,
		`SELECT button_id FROM reactions WHERE post_id = ? AND user_id = ?`,
		postID, userID,
	).Scan(&buttonID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	return buttonID, err
}

// ReactionCounts groups the post's current votes per button.
func (s *Store) ReactionCounts(ctx context.Context, postID int64) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT button_id, COUNT(*) FROM reactions WHERE post_id = ? GROUP BY button_id`, postID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := map[string]int{}
	for rows.Next() {
		var (
			id string
			n  int
		)
		if err := rows.Scan(&id, &n); err != nil {
			return nil, err
		}
		counts[id] = n
	}
	return counts, rows.Err()
}
