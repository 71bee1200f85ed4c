package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"postbot/internal/model"
)

// Filter selects posts by lifecycle state.
type Filter string

const (
	FilterAll      Filter = "all"
	FilterActive   Filter = "active"
	FilterInactive Filter = "inactive"
)

func (f Filter) where() string {
	switch f {
	case FilterActive:
		return " AND is_active = 1"
	case FilterInactive:
		return " AND is_active = 0"
	default:
		return ""
	}
}

const postColumns = `post_id, chat_id, owner_id, content, media_type, media_file_id,
	schedule_type, scheduled_time, scheduled_date, days_of_week, day_of_month,
	is_active, created_at, last_sent_at, execution_count, sent_message_id,
	pin_post, has_spoiler, has_participate, button_text, url_buttons, reaction_buttons, template_name`

// CreatePost inserts a new post and returns its assigned id.
func (s *Store) CreatePost(ctx context.Context, p model.Post) (int64, error) {
	urlJSON, err := json.Marshal(buttonsOrEmpty(p.URLButtons))
	if err != nil {
		return 0, err
	}
	reactJSON, err := json.Marshal(reactionsOrEmpty(p.ReactionButtons))
	if err != nil {
		return 0, err
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO scheduled_posts(chat_id, owner_id, content, media_type, media_file_id,
			schedule_type, scheduled_time, scheduled_date, days_of_week, day_of_month,
			is_active, created_at, pin_post, has_spoiler, has_participate, button_text,
			url_buttons, reaction_buttons, template_name)
		 VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		p.ChatID, p.OwnerID, p.Content, string(p.MediaType), p.MediaFileID,
		string(p.ScheduleType), p.ScheduledTime, p.ScheduledDate, p.DaysOfWeek, p.DayOfMonth,
		boolInt(p.IsActive), fmtTime(time.Now()), boolInt(p.PinPost), boolInt(p.HasSpoiler),
		boolInt(p.HasParticipate), p.ButtonText, string(urlJSON), string(reactJSON), p.TemplateName,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (s *Store) Post(ctx context.Context, postID int64) (model.Post, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+postColumns+` FROM scheduled_posts WHERE post_id = ?`, postID)
	p, err := scanPost(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Post{}, ErrNotFound
	}
	return p, err
}

func (s *Store) Posts(ctx context.Context, ownerID int64, f Filter, limit, offset int) ([]model.Post, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+postColumns+` FROM scheduled_posts WHERE owner_id = ?`+f.where()+
			` ORDER BY created_at DESC LIMIT ? OFFSET ?`,
		ownerID, limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Post
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) CountPosts(ctx context.Context, ownerID int64, f Filter) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM scheduled_posts WHERE owner_id = ?`+f.where(), ownerID).Scan(&n)
	return n, err
}

// PostUpdate carries the optional fields the web panel may patch. Nil fields
// are left untouched.
type PostUpdate struct {
	Content       *string
	ScheduledTime *string
	IsActive      *bool
}

func (s *Store) UpdatePost(ctx context.Context, postID int64, u PostUpdate) error {
	sets := make([]string, 0, 3)
	args := make([]any, 0, 4)
	if u.Content != nil {
		sets = append(sets, "content = ?")
		args = append(args, *u.Content)
	}
	if u.ScheduledTime != nil {
		sets = append(sets, "scheduled_time = ?")
		args = append(args, *u.ScheduledTime)
	}
	if u.IsActive != nil {
		sets = append(sets, "is_active = ?")
		args = append(args, boolInt(*u.IsActive))
	}
	if len(sets) == 0 {
		return nil
	}
	args = append(args, postID)
	_, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`UPDATE scheduled_posts SET %s WHERE post_id = ?`, strings.Join(sets, ", ")), args...)
	return err
}

// SetActive flips the scheduling eligibility flag.
func (s *Store) SetActive(ctx context.Context, postID int64, active bool) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE scheduled_posts SET is_active = ? WHERE post_id = ?`, boolInt(active), postID)
	return err
}

// RecordSend persists a successful delivery: message reference, execution
// counter and last-sent stamp, in one statement.
func (s *Store) RecordSend(ctx context.Context, postID int64, messageID int, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE scheduled_posts
		 SET sent_message_id = ?, execution_count = execution_count + 1, last_sent_at = ?
		 WHERE post_id = ?`,
		messageID, fmtTime(at), postID)
	return err
}

// DeletePost removes the post and cascades to its participants. Reaction rows
// are left behind; they become unreachable once the post is gone.
func (s *Store) DeletePost(ctx context.Context, postID int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM scheduled_posts WHERE post_id = ?`, postID); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM participants WHERE post_id = ?`, postID)
	return err
}

// DeletePostsBulk removes all of the owner's posts matching the filter and
// returns their ids so the caller can unregister jobs.
func (s *Store) DeletePostsBulk(ctx context.Context, ownerID int64, f Filter) ([]int64, error) {
	ids, err := s.ownerPostIDs(ctx, ownerID, f)
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		if err := s.DeletePost(ctx, id); err != nil {
			return ids, err
		}
	}
	return ids, nil
}

// DisablePostsBulk deactivates all of the owner's posts and returns their ids.
func (s *Store) DisablePostsBulk(ctx context.Context, ownerID int64) ([]int64, error) {
	ids, err := s.ownerPostIDs(ctx, ownerID, FilterActive)
	if err != nil {
		return nil, err
	}
	_, err = s.db.ExecContext(ctx, `UPDATE scheduled_posts SET is_active = 0 WHERE owner_id = ?`, ownerID)
	return ids, err
}

func (s *Store) ownerPostIDs(ctx context.Context, ownerID int64, f Filter) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT post_id FROM scheduled_posts WHERE owner_id = ?`+f.where(), ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ActivePostIDs lists every post eligible for scheduling, used by bootstrap
// recovery after a restart.
func (s *Store) ActivePostIDs(ctx context.Context) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT post_id FROM scheduled_posts WHERE is_active = 1 AND schedule_type != 'instant'`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// DuplicatePost inserts a fresh copy of an existing post (new id, active,
// zeroed counters) and returns the new id.
func (s *Store) DuplicatePost(ctx context.Context, postID int64) (int64, error) {
	p, err := s.Post(ctx, postID)
	if err != nil {
		return 0, err
	}
	p.IsActive = true
	return s.CreatePost(ctx, p)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPost(row rowScanner) (model.Post, error) {
	var (
		p                   model.Post
		mediaType, schedule string
		createdAt           string
		lastSentAt          sql.NullString
		active              int
		pin, spoiler, part  int
		urlJSON, reactJSON  string
	)
	err := row.Scan(
		&p.ID, &p.ChatID, &p.OwnerID, &p.Content, &mediaType, &p.MediaFileID,
		&schedule, &p.ScheduledTime, &p.ScheduledDate, &p.DaysOfWeek, &p.DayOfMonth,
		&active, &createdAt, &lastSentAt, &p.ExecutionCount, &p.SentMessageID,
		&pin, &spoiler, &part, &p.ButtonText, &urlJSON, &reactJSON, &p.TemplateName,
	)
	if err != nil {
		return model.Post{}, err
	}
	p.MediaType = model.MediaType(mediaType)
	p.ScheduleType = model.ScheduleType(schedule)
	p.IsActive = active != 0
	p.CreatedAt = parseTime(createdAt)
	if lastSentAt.Valid {
		p.LastSentAt = parseTime(lastSentAt.String)
	}
	p.PinPost = pin != 0
	p.HasSpoiler = spoiler != 0
	p.HasParticipate = part != 0
	// Button columns are JSON text; a corrupt value degrades to no buttons
	// rather than failing the lookup.
	if err := json.Unmarshal([]byte(urlJSON), &p.URLButtons); err != nil {
		p.URLButtons = nil
	}
	if err := json.Unmarshal([]byte(reactJSON), &p.ReactionButtons); err != nil {
		p.ReactionButtons = nil
	}
	return p, nil
}

func buttonsOrEmpty(b []model.URLButton) []model.URLButton {
	if b == nil {
		return []model.URLButton{}
	}
	return b
}

func reactionsOrEmpty(b []model.ReactionButton) []model.ReactionButton {
	if b == nil {
		return []model.ReactionButton{}
	}
	return b
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
