package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"postbot/internal/model"
)

// UpsertChat records a destination chat, replacing any prior registration.
func (s *Store) UpsertChat(ctx context.Context, c model.Chat) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO chats(chat_id, title, type, owner_id, added_at) VALUES(?,?,?,?,?)`,
		c.ID, c.Title, c.Type, c.OwnerID, fmtTime(time.Now()),
	)
	return err
}

func (s *Store) Chats(ctx context.Context, ownerID int64) ([]model.Chat, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT chat_id, title, type, owner_id, added_at FROM chats WHERE owner_id = ? ORDER BY added_at`,
		ownerID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Chat
	for rows.Next() {
		var (
			c       model.Chat
			addedAt string
		)
		if err := rows.Scan(&c.ID, &c.Title, &c.Type, &c.OwnerID, &addedAt); err != nil {
			return nil, err
		}
		c.AddedAt = parseTime(addedAt)
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) Chat(ctx context.Context, chatID int64) (model.Chat, error) {
	var (
		c       model.Chat
		addedAt string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT chat_id, title, type, owner_id, added_at FROM chats WHERE chat_id = ?`,
		chatID,
	).Scan(&c.ID, &c.Title, &c.Type, &c.OwnerID, &addedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Chat{}, ErrNotFound
	}
	if err != nil {
		return model.Chat{}, err
	}
	c.AddedAt = parseTime(addedAt)
	return c, nil
}
