package storage

import (
	"context"

	"postbot/internal/model"
)

// AddHistory appends one send-attempt record. History rows are never mutated.
func (s *Store) AddHistory(ctx context.Context, e model.HistoryEntry) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO post_history(post_id, sent_at, chat_id, message_id, success, error_text)
		 VALUES(?,?,?,?,?,?)`,
		e.PostID, fmtTime(e.SentAt), e.ChatID, e.MessageID, boolInt(e.Success), e.ErrorText,
	)
	return err
}

// History lists the most recent send attempts for a post, newest first.
func (s *Store) History(ctx context.Context, postID int64, limit int) ([]model.HistoryEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT post_id, sent_at, chat_id, message_id, success, error_text
		 FROM post_history WHERE post_id = ? ORDER BY id DESC LIMIT ?`,
		postID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.HistoryEntry
	for rows.Next() {
		var (
			e       model.HistoryEntry
			sentAt  string
			success int
		)
		if err := rows.Scan(&e.PostID, &sentAt, &e.ChatID, &e.MessageID, &success, &e.ErrorText); err != nil {
			return nil, err
		}
		e.SentAt = parseTime(sentAt)
		e.Success = success != 0
		out = append(out, e)
	}
	return out, rows.Err()
}
