// Package dispatch executes one post at one fire instant: render, send,
// record, follow up.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"postbot/internal/metrics"
	"postbot/internal/model"
	"postbot/internal/storage"
)

// errTextLimit caps the error excerpt sent to the owner.
const errTextLimit = 200

type Dispatcher struct {
	store *storage.Store
	ch    Channel
	log   zerolog.Logger
}

func New(store *storage.Store, ch Channel, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{store: store, ch: ch, log: log}
}

// Execute runs one dispatch of the post and reports success.
//
// An absent post (deleted while its trigger was in flight) is tolerated and
// reported as failure without side effects. On delivery failure the post stays
// active: the next scheduled occurrence is the de facto retry, and only
// explicit publish-now callers surface the failure synchronously.
//
// Concurrent executions of the same post are not mutually excluded: a manual
// publish racing a due fire results in two sends, each with its own counter
// increments and history row. The send -> record -> counters -> history
// sequence is likewise not one transaction; each statement is atomic on its
// own and a crash mid-sequence can leave partial state. Both are accepted.
func (d *Dispatcher) Execute(ctx context.Context, postID int64) bool {
	start := time.Now()
	ok := d.execute(ctx, postID)
	metrics.ObserveDispatch(start, ok)
	return ok
}

func (d *Dispatcher) execute(ctx context.Context, postID int64) bool {
	p, err := d.store.Post(ctx, postID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			d.log.Warn().Int64("post", postID).Msg("fired for missing post, ignoring")
		} else {
			d.log.Error().Int64("post", postID).Err(err).Msg("post load failed")
		}
		return false
	}

	participants, err := d.store.CountParticipants(ctx, p.ID)
	if err != nil {
		d.log.Error().Int64("post", p.ID).Err(err).Msg("participant count failed")
	}
	reactions, err := d.store.ReactionCounts(ctx, p.ID)
	if err != nil {
		d.log.Error().Int64("post", p.ID).Err(err).Msg("reaction counts failed")
	}

	req := SendReq{
		ChatID:      p.ChatID,
		Text:        p.Content,
		MediaType:   p.MediaType,
		MediaFileID: p.MediaFileID,
		Spoiler:     p.HasSpoiler,
		Markup:      BuildMarkup(p, participants, reactions),
	}

	messageID, sendErr := d.ch.SendPost(ctx, req)
	if sendErr != nil {
		d.recordFailure(ctx, p, sendErr)
		return false
	}

	now := time.Now()
	if err := d.store.RecordSend(ctx, p.ID, messageID, now); err != nil {
		d.log.Error().Int64("post", p.ID).Err(err).Msg("recording send failed")
	}
	if err := d.store.BumpStats(ctx, p.OwnerID, 0, 1, 0); err != nil {
		d.log.Error().Int64("post", p.ID).Err(err).Msg("stats update failed")
	}
	if err := d.store.AddHistory(ctx, model.HistoryEntry{
		PostID: p.ID, SentAt: now, ChatID: p.ChatID, MessageID: messageID, Success: true,
	}); err != nil {
		d.log.Error().Int64("post", p.ID).Err(err).Msg("history append failed")
	}

	if p.PinPost {
		// Pinning is best-effort: a missing right must not fail the send.
		if err := d.ch.Pin(ctx, p.ChatID, messageID); err != nil {
			d.log.Warn().Int64("post", p.ID).Err(err).Msg("pin failed")
		}
	}

	if p.ScheduleType == model.ScheduleOnce {
		if err := d.store.SetActive(ctx, p.ID, false); err != nil {
			d.log.Error().Int64("post", p.ID).Err(err).Msg("one-shot deactivation failed")
		}
	}

	d.log.Info().Int64("post", p.ID).Int64("chat", p.ChatID).Int("message", messageID).Msg("post sent")
	return true
}

func (d *Dispatcher) recordFailure(ctx context.Context, p model.Post, sendErr error) {
	d.log.Warn().Int64("post", p.ID).Int64("chat", p.ChatID).Err(sendErr).Msg("post delivery failed")

	if err := d.store.BumpStats(ctx, p.OwnerID, 0, 0, 1); err != nil {
		d.log.Error().Int64("post", p.ID).Err(err).Msg("stats update failed")
	}
	if err := d.store.AddHistory(ctx, model.HistoryEntry{
		PostID: p.ID, SentAt: time.Now(), ChatID: p.ChatID, Success: false, ErrorText: sendErr.Error(),
	}); err != nil {
		d.log.Error().Int64("post", p.ID).Err(err).Msg("history append failed")
	}

	text := fmt.Sprintf("⚠️ Failed to send post #%d\n\n%s", p.ID, truncate(sendErr.Error(), errTextLimit))
	if err := d.ch.NotifyOwner(ctx, p.OwnerID, text); err != nil {
		d.log.Warn().Int64("owner", p.OwnerID).Err(err).Msg("owner notification failed")
	}
}

// truncate cuts on rune boundaries so a multi-byte character is never split.
func truncate(s string, maxN int) string {
	r := []rune(s)
	if maxN <= 0 || len(r) <= maxN {
		return s
	}
	if maxN < 4 {
		return string(r[:maxN])
	}
	return string(r[:maxN-3]) + "..."
}
