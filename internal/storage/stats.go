package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"postbot/internal/model"
)

func (s *Store) Stats(ctx context.Context, userID int64) (model.Statistics, error) {
	var (
		st        model.Statistics
		updatedAt string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id, posts_created, posts_sent, posts_failed, updated_at
		 FROM statistics WHERE user_id = ?`, userID,
	).Scan(&st.UserID, &st.PostsCreated, &st.PostsSent, &st.PostsFailed, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Statistics{}, ErrNotFound
	}
	if err != nil {
		return model.Statistics{}, err
	}
	st.UpdatedAt = parseTime(updatedAt)
	return st, nil
}

// BumpStats increments the user's counters in place. Counters only ever grow;
// the single UPDATE keeps the increment atomic under concurrent dispatches.
func (s *Store) BumpStats(ctx context.Context, userID int64, created, sent, failed int) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE statistics
		 SET posts_created = posts_created + ?,
		     posts_sent = posts_sent + ?,
		     posts_failed = posts_failed + ?,
		     updated_at = ?
		 WHERE user_id = ?`,
		created, sent, failed, fmtTime(time.Now()), userID)
	return err
}
