package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"postbot/internal/model"
)

func (s *Store) CreateTemplate(ctx context.Context, t model.Template) (int64, error) {
	urlJSON, err := json.Marshal(buttonsOrEmpty(t.URLButtons))
	if err != nil {
		return 0, err
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO templates(owner_id, name, content, media_type, media_file_id,
			pin_post, has_spoiler, has_participate, button_text, url_buttons, created_at)
		 VALUES(?,?,?,?,?,?,?,?,?,?,?)`,
		t.OwnerID, t.Name, t.Content, string(t.MediaType), t.MediaFileID,
		boolInt(t.PinPost), boolInt(t.HasSpoiler), boolInt(t.HasParticipate),
		t.ButtonText, string(urlJSON), fmtTime(time.Now()),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

const templateColumns = `template_id, owner_id, name, content, media_type, media_file_id,
	pin_post, has_spoiler, has_participate, button_text, url_buttons, created_at`

func (s *Store) Templates(ctx context.Context, ownerID int64) ([]model.Template, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+templateColumns+` FROM templates WHERE owner_id = ? ORDER BY created_at`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Template
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) Template(ctx context.Context, templateID int64) (model.Template, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+templateColumns+` FROM templates WHERE template_id = ?`, templateID)
	t, err := scanTemplate(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Template{}, ErrNotFound
	}
	return t, err
}

func (s *Store) DeleteTemplate(ctx context.Context, templateID int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM templates WHERE template_id = ?`, templateID)
	return err
}

func scanTemplate(row rowScanner) (model.Template, error) {
	var (
		t                  model.Template
		mediaType          string
		pin, spoiler, part int
		urlJSON            string
		createdAt          string
	)
	err := row.Scan(
		&t.ID, &t.OwnerID, &t.Name, &t.Content, &mediaType, &t.MediaFileID,
		&pin, &spoiler, &part, &t.ButtonText, &urlJSON, &createdAt,
	)
	if err != nil {
		return model.Template{}, err
	}
	t.MediaType = model.MediaType(mediaType)
	t.PinPost = pin != 0
	t.HasSpoiler = spoiler != 0
	t.HasParticipate = part != 0
	if err := json.Unmarshal([]byte(urlJSON), &t.URLButtons); err != nil {
		t.URLButtons = nil
	}
	t.CreatedAt = parseTime(createdAt)
	return t, nil
}
