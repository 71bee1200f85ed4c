// Package telegram is the delivery channel: a telebot-backed adapter that
// sends rendered posts, pins, and delivers owner notifications, plus the
// command/callback surface of the bot itself.
package telegram

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
	tele "gopkg.in/telebot.v4"

	"postbot/internal/dispatch"
	"postbot/internal/model"
)

type Config struct {
	Token       string
	PollTimeout time.Duration
	// NotifyPerSec caps owner notifications; excess is dropped, never queued.
	NotifyPerSec int
}

type Adapter struct {
	cfg     Config
	log     zerolog.Logger
	bot     *tele.Bot
	limiter *rate.Limiter
}

func New(cfg Config, log zerolog.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	timeout := cfg.PollTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	b, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: timeout},
	})
	if err != nil {
		return nil, err
	}
	rps := cfg.NotifyPerSec
	if rps <= 0 {
		rps = 3
	}
	return &Adapter{
		cfg:     cfg,
		log:     log,
		bot:     b,
		limiter: rate.NewLimiter(rate.Limit(rps), rps),
	}, nil
}

// Start begins long polling. It blocks until Stop is called, so callers run
// it in a goroutine.
func (a *Adapter) Start() {
	a.log.Info().Msg("polling started")
	a.bot.Start()
	a.log.Info().Msg("polling stopped")
}

func (a *Adapter) Stop() {
	a.bot.Stop()
}

// SendPost delivers one rendered post instance by media kind.
func (a *Adapter) SendPost(ctx context.Context, req dispatch.SendReq) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	chat := &tele.Chat{ID: req.ChatID}
	opts := &tele.SendOptions{
		ParseMode:   tele.ModeHTML,
		ReplyMarkup: replyMarkup(req.Markup),
	}

	var what any
	switch req.MediaType {
	case model.MediaPhoto:
		what = &tele.Photo{File: tele.File{FileID: req.MediaFileID}, Caption: req.Text}
		opts.HasSpoiler = req.Spoiler
	case model.MediaVideo:
		what = &tele.Video{File: tele.File{FileID: req.MediaFileID}, Caption: req.Text}
		opts.HasSpoiler = req.Spoiler
	case model.MediaDocument:
		// Documents cannot carry a spoiler.
		what = &tele.Document{File: tele.File{FileID: req.MediaFileID}, Caption: req.Text}
	default:
		if req.MediaFileID != "" {
			what = &tele.Document{File: tele.File{FileID: req.MediaFileID}, Caption: req.Text}
		} else {
			what = req.Text
		}
	}

	msg, err := a.bot.Send(chat, what, opts)
	if err != nil {
		return 0, err
	}
	return msg.ID, nil
}

func (a *Adapter) Pin(ctx context.Context, chatID int64, messageID int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ref := tele.StoredMessage{MessageID: strconv.Itoa(messageID), ChatID: chatID}
	return a.bot.Pin(ref, tele.Silent)
}

// NotifyOwner sends a best-effort direct message, rate limited so a burst of
// failures cannot flood a user.
func (a *Adapter) NotifyOwner(ctx context.Context, userID int64, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !a.limiter.Allow() {
		a.log.Debug().Int64("user", userID).Msg("owner notification dropped by rate limit")
		return nil
	}
	_, err := a.bot.Send(&tele.User{ID: userID}, text, &tele.SendOptions{ParseMode: tele.ModeHTML})
	return err
}
