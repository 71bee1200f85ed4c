package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"postbot/internal/dispatch"
	"postbot/internal/engage"
	"postbot/internal/model"
	"postbot/internal/schedule"
	"postbot/internal/storage"
)

// Handlers wires the bot's command and callback surface to the core. The
// full menu-driven post builder lives in the web panel; the bot side covers
// registration, listing, publish-now and the voting callbacks.
type Handlers struct {
	adapter    *Adapter
	store      *storage.Store
	tracker    *engage.Tracker
	dispatcher *dispatch.Dispatcher
	registry   *schedule.Registry
	webBase    string // external base URL of the panel, empty if disabled
}

func NewHandlers(a *Adapter, store *storage.Store, tracker *engage.Tracker, d *dispatch.Dispatcher, reg *schedule.Registry, webBase string) *Handlers {
	return &Handlers{adapter: a, store: store, tracker: tracker, dispatcher: d, registry: reg, webBase: webBase}
}

func (h *Handlers) Register() {
	b := h.adapter.bot
	b.Handle("/start", h.onStart)
	b.Handle("/posts", h.onPosts)
	b.Handle("/stats", h.onStats)
	b.Handle("/settz", h.onSetTZ)
	b.Handle("/publish", h.onPublish)
	b.Handle(tele.OnAddedToGroup, h.onAddedToGroup)
	b.Handle(tele.OnCallback, h.onCallback)
}

func (h *Handlers) ctx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 30*time.Second)
}

func (h *Handlers) onStart(c tele.Context) error {
	ctx, cancel := h.ctx()
	defer cancel()

	sender := c.Sender()
	token, err := h.store.AddUser(ctx, sender.ID, sender.Username)
	if err != nil {
		h.adapter.log.Error().Err(err).Msg("user registration failed")
		return c.Send("Registration failed, try again later.")
	}

	msg := "Welcome! Add me to a chat or channel, then manage your posts here or in the web panel."
	if h.webBase != "" {
		msg += fmt.Sprintf("\n\nPanel: %s/?token=%s", strings.TrimRight(h.webBase, "/"), token)
	}
	return c.Send(msg)
}

func (h *Handlers) onPosts(c tele.Context) error {
	ctx, cancel := h.ctx()
	defer cancel()

	posts, err := h.store.Posts(ctx, c.Sender().ID, storage.FilterAll, 25, 0)
	if err != nil {
		return c.Send("Could not load posts.")
	}
	if len(posts) == 0 {
		return c.Send("No posts yet.")
	}

	var b strings.Builder
	for _, p := range posts {
		state := "off"
		if p.IsActive {
			state = "on"
		}
		fmt.Fprintf(&b, "#%d [%s] %s %s: %s\n",
			p.ID, state, p.ScheduleType, p.ScheduledTime, excerpt(p.Content, 40))
	}
	return c.Send(b.String())
}

func (h *Handlers) onStats(c tele.Context) error {
	ctx, cancel := h.ctx()
	defer cancel()

	st, err := h.store.Stats(ctx, c.Sender().ID)
	if err != nil {
		return c.Send("No statistics yet, run /start first.")
	}
	return c.Send(fmt.Sprintf("Created: %d\nSent: %d\nFailed: %d",
		st.PostsCreated, st.PostsSent, st.PostsFailed))
}

func (h *Handlers) onSetTZ(c tele.Context) error {
	ctx, cancel := h.ctx()
	defer cancel()

	tz := strings.TrimSpace(c.Message().Payload)
	if tz == "" {
		return c.Send("Usage: /settz Europe/Berlin")
	}
	if _, err := time.LoadLocation(tz); err != nil {
		return c.Send(fmt.Sprintf("Unknown timezone %q.", tz))
	}
	if err := h.store.SetTimezone(ctx, c.Sender().ID, tz); err != nil {
		return c.Send("Could not save timezone.")
	}

	// Reschedule the sender's active posts so the change takes effect now.
	posts, err := h.store.Posts(ctx, c.Sender().ID, storage.FilterActive, 1000, 0)
	if err != nil {
		return c.Send(fmt.Sprintf("Timezone set to %s, but rescheduling failed. Restart applies it.", tz))
	}
	n := 0
	for _, p := range posts {
		if p.ScheduleType == model.ScheduleInstant {
			continue
		}
		h.registry.Register(p, tz)
		n++
	}
	return c.Send(fmt.Sprintf("Timezone set to %s. Rescheduled %d post(s).", tz, n))
}

// onPublish is the on-demand send path. Unlike scheduled fires, its failure
// is surfaced synchronously to the human who triggered it.
func (h *Handlers) onPublish(c tele.Context) error {
	ctx, cancel := h.ctx()
	defer cancel()

	id, err := strconv.ParseInt(strings.TrimSpace(c.Message().Payload), 10, 64)
	if err != nil {
		return c.Send("Usage: /publish <post id>")
	}
	p, err := h.store.Post(ctx, id)
	if err != nil || p.OwnerID != c.Sender().ID {
		return c.Send("Post not found.")
	}

	if ok := h.dispatcher.Execute(ctx, id); !ok {
		return c.Send(fmt.Sprintf("Publishing post #%d failed, see the failure notice.", id))
	}
	// Instant posts are one-shot by definition: deactivate after their send.
	if p.ScheduleType == model.ScheduleInstant {
		if err := h.store.SetActive(ctx, id, false); err != nil {
			h.adapter.log.Error().Int64("post", id).Err(err).Msg("instant deactivation failed")
		}
	}
	return c.Send(fmt.Sprintf("Post #%d published.", id))
}

func (h *Handlers) onAddedToGroup(c tele.Context) error {
	ctx, cancel := h.ctx()
	defer cancel()

	chat := c.Chat()
	if chat == nil || c.Sender() == nil {
		return nil
	}
	err := h.store.UpsertChat(ctx, model.Chat{
		ID:      chat.ID,
		Title:   chat.Title,
		Type:    string(chat.Type),
		OwnerID: c.Sender().ID,
	})
	if err != nil {
		h.adapter.log.Error().Int64("chat", chat.ID).Err(err).Msg("chat registration failed")
		return nil
	}
	return c.Send("Chat registered. You can now schedule posts here.")
}

// onCallback handles the voting buttons under delivered posts. The count the
// voter sees is always re-rendered after their mutation committed.
func (h *Handlers) onCallback(c tele.Context) error {
	cb := c.Callback()
	if cb == nil {
		return nil
	}
	data := strings.TrimPrefix(strings.TrimSpace(cb.Data), "\f")

	switch {
	case strings.HasPrefix(data, dispatch.ParticipatePrefix):
		return h.onParticipate(c, strings.TrimPrefix(data, dispatch.ParticipatePrefix))
	case strings.HasPrefix(data, dispatch.ReactPrefix):
		return h.onReact(c, strings.TrimPrefix(data, dispatch.ReactPrefix))
	}
	return nil
}

func (h *Handlers) onParticipate(c tele.Context, arg string) error {
	ctx, cancel := h.ctx()
	defer cancel()

	postID, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		return nil
	}
	joined, err := h.tracker.Participate(ctx, postID, c.Sender().ID, c.Sender().Username)
	if err != nil {
		return c.Respond(&tele.CallbackResponse{Text: "Something went wrong."})
	}

	h.refreshMarkup(ctx, c, postID)
	if joined {
		return c.Respond(&tele.CallbackResponse{Text: "You're in!"})
	}
	return c.Respond(&tele.CallbackResponse{Text: "Already joined."})
}

func (h *Handlers) onReact(c tele.Context, arg string) error {
	ctx, cancel := h.ctx()
	defer cancel()

	parts := strings.SplitN(arg, "_", 2)
	if len(parts) != 2 {
		return nil
	}
	postID, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return nil
	}
	outcome, err := h.tracker.React(ctx, postID, parts[1], c.Sender().ID, c.Sender().Username)
	if err != nil {
		return c.Respond(&tele.CallbackResponse{Text: "Something went wrong."})
	}

	h.refreshMarkup(ctx, c, postID)
	switch outcome {
	case engage.ReactionRemoved:
		return c.Respond(&tele.CallbackResponse{Text: "Vote removed."})
	case engage.ReactionChanged:
		return c.Respond(&tele.CallbackResponse{Text: "Vote changed."})
	default:
		return c.Respond(&tele.CallbackResponse{Text: "Vote counted!"})
	}
}

// refreshMarkup re-renders the post keyboard with post-mutation counts.
func (h *Handlers) refreshMarkup(ctx context.Context, c tele.Context, postID int64) {
	p, err := h.store.Post(ctx, postID)
	if err != nil {
		return
	}
	participants, _ := h.tracker.CountParticipants(ctx, postID)
	reactions, _ := h.tracker.Counts(ctx, postID)

	msg := c.Callback().Message
	if msg == nil {
		return
	}
	markup := replyMarkup(dispatch.BuildMarkup(p, participants, reactions))
	if _, err := h.adapter.bot.EditReplyMarkup(msg, markup); err != nil {
		h.adapter.log.Debug().Int64("post", postID).Err(err).Msg("markup refresh failed")
	}
}

func excerpt(s string, maxN int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	r := []rune(s)
	if len(r) <= maxN {
		return s
	}
	return string(r[:maxN]) + "…"
}
