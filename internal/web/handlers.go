package web

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	chi "github.com/go-chi/chi/v5"

	"postbot/internal/model"
	"postbot/internal/storage"
)

// listItem is the wire shape of one entry in the post list.
type listItem struct {
	PostID        int64  `json:"post_id"`
	Content       string `json:"content"`
	IsActive      bool   `json:"is_active"`
	ScheduleType  string `json:"schedule_type"`
	ScheduledTime string `json:"scheduled_time"`
	ScheduledDate string `json:"scheduled_date"`
}

// postJSON is the full wire shape of a post (detail view and export).
type postJSON struct {
	ID             int64                 `json:"post_id"`
	ChatID         int64                 `json:"chat_id"`
	Content        string                `json:"content"`
	MediaType      string                `json:"media_type"`
	MediaFileID    string                `json:"media_file_id,omitempty"`
	ScheduleType   string                `json:"schedule_type"`
	ScheduledTime  string                `json:"scheduled_time"`
	ScheduledDate  string                `json:"scheduled_date,omitempty"`
	DaysOfWeek     string                `json:"days_of_week,omitempty"`
	DayOfMonth     int                   `json:"day_of_month,omitempty"`
	IsActive       bool                  `json:"is_active"`
	CreatedAt      string                `json:"created_at"`
	LastSentAt     string                `json:"last_sent_at,omitempty"`
	ExecutionCount int                   `json:"execution_count"`
	PinPost        bool                  `json:"pin_post"`
	HasSpoiler     bool                  `json:"has_spoiler"`
	HasParticipate bool                  `json:"has_participate"`
	ButtonText     string                `json:"button_text,omitempty"`
	URLButtons     []model.URLButton     `json:"url_buttons,omitempty"`
	Reactions      []model.ReactionButton `json:"reaction_buttons,omitempty"`
	TemplateName   string                `json:"template_name,omitempty"`
}

func toJSON(p model.Post) postJSON {
	out := postJSON{
		ID:             p.ID,
		ChatID:         p.ChatID,
		Content:        p.Content,
		MediaType:      string(p.MediaType),
		MediaFileID:    p.MediaFileID,
		ScheduleType:   string(p.ScheduleType),
		ScheduledTime:  p.ScheduledTime,
		ScheduledDate:  p.ScheduledDate,
		DaysOfWeek:     p.DaysOfWeek,
		DayOfMonth:     p.DayOfMonth,
		IsActive:       p.IsActive,
		CreatedAt:      p.CreatedAt.Format(time.RFC3339),
		ExecutionCount: p.ExecutionCount,
		PinPost:        p.PinPost,
		HasSpoiler:     p.HasSpoiler,
		HasParticipate: p.HasParticipate,
		ButtonText:     p.ButtonText,
		URLButtons:     p.URLButtons,
		Reactions:      p.ReactionButtons,
		TemplateName:   p.TemplateName,
	}
	if !p.LastSentAt.IsZero() {
		out.LastSentAt = p.LastSentAt.Format(time.RFC3339)
	}
	return out
}

// listPosts returns a bare JSON array of compact entries.
func (s *Server) listPosts(w http.ResponseWriter, r *http.Request) {
	userID := userFrom(r)
	filter := storage.Filter(r.URL.Query().Get("filter"))
	if filter == "" {
		filter = storage.FilterAll
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	posts, err := s.store.Posts(r.Context(), userID, filter, limit, offset)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	items := make([]listItem, 0, len(posts))
	for _, p := range posts {
		items = append(items, listItem{
			PostID:        p.ID,
			Content:       p.Content,
			IsActive:      p.IsActive,
			ScheduleType:  string(p.ScheduleType),
			ScheduledTime: p.ScheduledTime,
			ScheduledDate: p.ScheduledDate,
		})
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) getPost(w http.ResponseWriter, r *http.Request) {
	p, ok := s.ownedPost(w, r)
	if !ok {
		return
	}

	participants, _ := s.store.Participants(r.Context(), p.ID, 100, 0)
	reactions, _ := s.store.ReactionCounts(r.Context(), p.ID)
	history, _ := s.store.History(r.Context(), p.ID, 20)

	names := make([]string, 0, len(participants))
	for _, pt := range participants {
		names = append(names, pt.Username)
	}
	hist := make([]map[string]any, 0, len(history))
	for _, e := range history {
		hist = append(hist, map[string]any{
			"sent_at":    e.SentAt.Format(time.RFC3339),
			"message_id": e.MessageID,
			"success":    e.Success,
			"error":      e.ErrorText,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"post":         toJSON(p),
		"participants": names,
		"reactions":    reactions,
		"history":      hist,
	})
}

type postPatch struct {
	Content       *string `json:"content"`
	ScheduledTime *string `json:"scheduled_time"`
	IsActive      *bool   `json:"is_active"`
}

// updatePost patches the mutable fields and keeps the scheduler in sync: an
// active post is re-registered from its fresh row, an inactive one is
// unregistered.
func (s *Server) updatePost(w http.ResponseWriter, r *http.Request) {
	p, ok := s.ownedPost(w, r)
	if !ok {
		return
	}

	var patch postPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, "malformed body")
		return
	}
	err := s.store.UpdatePost(r.Context(), p.ID, storage.PostUpdate{
		Content:       patch.Content,
		ScheduledTime: patch.ScheduledTime,
		IsActive:      patch.IsActive,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}

	fresh, err := s.store.Post(r.Context(), p.ID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if fresh.IsActive {
		s.jobs.Register(fresh, s.store.Timezone(r.Context(), fresh.OwnerID))
	} else {
		s.jobs.Unregister(fresh.ID)
	}
	writeJSON(w, http.StatusOK, map[string]any{"post": toJSON(fresh)})
}

func (s *Server) deletePost(w http.ResponseWriter, r *http.Request) {
	p, ok := s.ownedPost(w, r)
	if !ok {
		return
	}
	if err := s.store.DeletePost(r.Context(), p.ID); err != nil {
		s.fail(w, r, err)
		return
	}
	s.jobs.Unregister(p.ID)
	writeJSON(w, http.StatusOK, map[string]any{"deleted": p.ID})
}

// duplicatePost clones a post into a fresh active copy and schedules it.
func (s *Server) duplicatePost(w http.ResponseWriter, r *http.Request) {
	p, ok := s.ownedPost(w, r)
	if !ok {
		return
	}
	id, err := s.store.DuplicatePost(r.Context(), p.ID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	fresh, err := s.store.Post(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.store.BumpStats(r.Context(), fresh.OwnerID, 1, 0, 0); err != nil {
		s.log.Error().Int64("user", fresh.OwnerID).Err(err).Msg("stats update failed")
	}
	s.jobs.Register(fresh, s.store.Timezone(r.Context(), fresh.OwnerID))
	writeJSON(w, http.StatusCreated, map[string]any{"post": toJSON(fresh)})
}

// bulkPosts applies one action to all of the owner's matching posts. Every
// affected post is unregistered so no orphaned trigger survives the sweep.
func (s *Server) bulkPosts(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Action string `json:"action"` // "delete" or "disable"
		Filter string `json:"filter,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "malformed body")
		return
	}
	userID := userFrom(r)

	var (
		ids []int64
		err error
	)
	switch body.Action {
	case "delete":
		filter := storage.Filter(body.Filter)
		if filter == "" {
			filter = storage.FilterAll
		}
		ids, err = s.store.DeletePostsBulk(r.Context(), userID, filter)
	case "disable":
		ids, err = s.store.DisablePostsBulk(r.Context(), userID)
	default:
		writeError(w, http.StatusBadRequest, "unknown action")
		return
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}
	for _, id := range ids {
		s.jobs.Unregister(id)
	}
	writeJSON(w, http.StatusOK, map[string]any{"affected": ids})
}

func (s *Server) listChats(w http.ResponseWriter, r *http.Request) {
	chats, err := s.store.Chats(r.Context(), userFrom(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	items := make([]map[string]any, 0, len(chats))
	for _, c := range chats {
		items = append(items, map[string]any{
			"id":    c.ID,
			"title": c.Title,
			"type":  c.Type,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"chats": items})
}

func (s *Server) getStats(w http.ResponseWriter, r *http.Request) {
	userID := userFrom(r)
	st, err := s.store.Stats(r.Context(), userID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		s.fail(w, r, err)
		return
	}
	active, err := s.store.CountPosts(r.Context(), userID, storage.FilterActive)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"posts_created": st.PostsCreated,
		"posts_sent":    st.PostsSent,
		"posts_failed":  st.PostsFailed,
		"active_posts":  active,
	})
}

func (s *Server) exportPosts(w http.ResponseWriter, r *http.Request) {
	posts, err := s.store.Posts(r.Context(), userFrom(r), storage.FilterAll, 1000, 0)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	items := make([]postJSON, 0, len(posts))
	for _, p := range posts {
		items = append(items, toJSON(p))
	}
	w.Header().Set("Content-Disposition", `attachment; filename="posts.json"`)
	writeJSON(w, http.StatusOK, items)
}

type importDraft struct {
	Template      string                 `json:"template,omitempty"`
	Content       string                 `json:"content"`
	MediaType     string                 `json:"media_type"`
	MediaFileID   string                 `json:"media_file_id"`
	ScheduleType  string                 `json:"schedule_type"`
	ScheduledTime string                 `json:"scheduled_time"`
	ScheduledDate string                 `json:"scheduled_date"`
	DaysOfWeek    string                 `json:"days_of_week"`
	DayOfMonth    int                    `json:"day_of_month"`
	PinPost       bool                   `json:"pin_post"`
	HasSpoiler    bool                   `json:"has_spoiler"`
	HasParticipate bool                  `json:"has_participate"`
	ButtonText    string                 `json:"button_text"`
	URLButtons    []model.URLButton      `json:"url_buttons"`
	Reactions     []model.ReactionButton `json:"reaction_buttons"`
}

// importPosts creates posts from an exported file. The body is either a bare
// JSON array of post-shaped objects, or an object wrapper that additionally
// names a target chat. Without an explicit chat_id the imports land in the
// owner's first registered chat; each post is validated as a draft and invalid
// entries are reported, not silently dropped. A "template" name pre-fills the
// draft body before per-post fields apply.
func (s *Server) importPosts(w http.ResponseWriter, r *http.Request) {
	userID := userFrom(r)

	raw, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable body")
		return
	}
	var body struct {
		ChatID int64         `json:"chat_id,omitempty"`
		Posts  []importDraft `json:"posts"`
	}
	if trimmed := bytes.TrimLeft(raw, " \t\r\n"); len(trimmed) > 0 && trimmed[0] == '[' {
		err = json.Unmarshal(trimmed, &body.Posts)
	} else {
		err = json.Unmarshal(raw, &body)
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, "malformed body")
		return
	}

	target := body.ChatID
	if target != 0 {
		c, err := s.store.Chat(r.Context(), target)
		if errors.Is(err, storage.ErrNotFound) || (err == nil && c.OwnerID != userID) {
			writeError(w, http.StatusBadRequest, "chat not registered")
			return
		}
		if err != nil {
			s.fail(w, r, err)
			return
		}
	} else {
		chats, err := s.store.Chats(r.Context(), userID)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		if len(chats) == 0 {
			writeError(w, http.StatusBadRequest, "no registered chats to import into")
			return
		}
		target = chats[0].ID
	}

	templates, err := s.store.Templates(r.Context(), userID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	byName := make(map[string]model.Template, len(templates))
	for _, t := range templates {
		byName[t.Name] = t
	}

	tz := s.store.Timezone(r.Context(), userID)
	var created []int64
	var rejected []string
	for _, in := range body.Posts {
		var d model.Draft
		if in.Template != "" {
			t, ok := byName[in.Template]
			if !ok {
				rejected = append(rejected, fmt.Sprintf("unknown template %q", in.Template))
				continue
			}
			d.ApplyTemplate(t)
		}
		// Recurrence always comes from the entry; body fields override the
		// template only when set.
		d.ScheduleType = model.ScheduleType(in.ScheduleType)
		d.ScheduledTime = in.ScheduledTime
		d.ScheduledDate = in.ScheduledDate
		d.DaysOfWeek = in.DaysOfWeek
		d.DayOfMonth = in.DayOfMonth
		d.ReactionButtons = in.Reactions
		if in.Content != "" {
			d.Content = in.Content
		}
		if in.MediaFileID != "" {
			d.MediaType = model.MediaType(in.MediaType)
			d.MediaFileID = in.MediaFileID
		}
		if in.Template == "" {
			d.MediaType = model.MediaType(in.MediaType)
			d.PinPost = in.PinPost
			d.HasSpoiler = in.HasSpoiler
			d.HasParticipate = in.HasParticipate
			d.ButtonText = in.ButtonText
			d.URLButtons = in.URLButtons
		}
		p, err := d.Post(target, userID)
		if err != nil {
			rejected = append(rejected, err.Error())
			continue
		}
		id, err := s.store.CreatePost(r.Context(), p)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		p.ID = id
		if err := s.store.BumpStats(r.Context(), userID, 1, 0, 0); err != nil {
			s.log.Error().Int64("user", userID).Err(err).Msg("stats update failed")
		}
		s.jobs.Register(p, tz)
		created = append(created, id)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"imported": len(created),
		"post_ids": created,
		"rejected": rejected,
	})
}

// ownedPost loads the {id} post and enforces ownership. Foreign posts read as
// 404 so ids cannot be probed.
func (s *Server) ownedPost(w http.ResponseWriter, r *http.Request) (model.Post, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad post id")
		return model.Post{}, false
	}
	p, err := s.store.Post(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) || (err == nil && p.OwnerID != userFrom(r)) {
		writeError(w, http.StatusNotFound, "post not found")
		return model.Post{}, false
	}
	if err != nil {
		s.fail(w, r, err)
		return model.Post{}, false
	}
	return p, true
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	s.log.Error().Str("path", r.URL.Path).Err(err).Msg("request failed")
	writeError(w, http.StatusInternalServerError, "internal error")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
