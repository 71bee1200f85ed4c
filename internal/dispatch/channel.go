package dispatch

import (
	"context"

	"postbot/internal/model"
)

// Button is one inline button: either a link (URL set) or a callback
// (Data set).
type Button struct {
	Text string
	URL  string
	Data string
}

// Markup is an adapter-agnostic inline keyboard, one slice per row.
type Markup struct {
	Rows [][]Button
}

// SendReq describes one outgoing post instance.
type SendReq struct {
	ChatID      int64
	Text        string
	MediaType   model.MediaType
	MediaFileID string
	Spoiler     bool
	Markup      *Markup
}

// Channel is the external delivery primitive the dispatcher drives. Transient
// and permanent failures are indistinguishable here; both surface as errors
// carrying a human-readable description.
type Channel interface {
	// SendPost delivers one rendered post and returns the platform message id.
	SendPost(ctx context.Context, req SendReq) (messageID int, err error)
	// Pin pins a delivered message. Best-effort from the dispatcher's view.
	Pin(ctx context.Context, chatID int64, messageID int) error
	// NotifyOwner sends a best-effort direct message to a user.
	NotifyOwner(ctx context.Context, userID int64, text string) error
}
