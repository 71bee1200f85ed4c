package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	chi "github.com/go-chi/chi/v5"

	"postbot/internal/model"
	"postbot/internal/storage"
)

type templateJSON struct {
	ID             int64             `json:"id"`
	Name           string            `json:"name"`
	Content        string            `json:"content"`
	MediaType      string            `json:"media_type"`
	MediaFileID    string            `json:"media_file_id,omitempty"`
	PinPost        bool              `json:"pin_post"`
	HasSpoiler     bool              `json:"has_spoiler"`
	HasParticipate bool              `json:"has_participate"`
	ButtonText     string            `json:"button_text,omitempty"`
	URLButtons     []model.URLButton `json:"url_buttons,omitempty"`
	CreatedAt      string            `json:"created_at"`
}

func templateToJSON(t model.Template) templateJSON {
	return templateJSON{
		ID:             t.ID,
		Name:           t.Name,
		Content:        t.Content,
		MediaType:      string(t.MediaType),
		MediaFileID:    t.MediaFileID,
		PinPost:        t.PinPost,
		HasSpoiler:     t.HasSpoiler,
		HasParticipate: t.HasParticipate,
		ButtonText:     t.ButtonText,
		URLButtons:     t.URLButtons,
		CreatedAt:      t.CreatedAt.Format(time.RFC3339),
	}
}

func (s *Server) listTemplates(w http.ResponseWriter, r *http.Request) {
	ts, err := s.store.Templates(r.Context(), userFrom(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	items := make([]templateJSON, 0, len(ts))
	for _, t := range ts {
		items = append(items, templateToJSON(t))
	}
	writeJSON(w, http.StatusOK, map[string]any{"templates": items})
}

func (s *Server) createTemplate(w http.ResponseWriter, r *http.Request) {
	var in templateJSON
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "malformed body")
		return
	}
	if in.Name == "" || (in.Content == "" && in.MediaFileID == "") {
		writeError(w, http.StatusBadRequest, "template needs a name and content or media")
		return
	}
	mt := model.MediaType(in.MediaType)
	if mt == "" {
		mt = model.MediaText
	}
	id, err := s.store.CreateTemplate(r.Context(), model.Template{
		OwnerID:        userFrom(r),
		Name:           in.Name,
		Content:        in.Content,
		MediaType:      mt,
		MediaFileID:    in.MediaFileID,
		PinPost:        in.PinPost,
		HasSpoiler:     in.HasSpoiler,
		HasParticipate: in.HasParticipate,
		ButtonText:     in.ButtonText,
		URLButtons:     in.URLButtons,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"id": id})
}

func (s *Server) deleteTemplate(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad template id")
		return
	}
	t, err := s.store.Template(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) || (err == nil && t.OwnerID != userFrom(r)) {
		writeError(w, http.StatusNotFound, "template not found")
		return
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.store.DeleteTemplate(r.Context(), id); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": id})
}
