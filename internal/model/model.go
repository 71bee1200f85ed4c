package model

import (
	"strconv"
	"strings"
	"time"
)

type ScheduleType string

const (
	ScheduleInstant ScheduleType = "instant"
	ScheduleOnce    ScheduleType = "once"
	ScheduleDaily   ScheduleType = "daily"
	ScheduleWeekly  ScheduleType = "weekly"
	ScheduleMonthly ScheduleType = "monthly"
)

func (s ScheduleType) Valid() bool {
	switch s {
	case ScheduleInstant, ScheduleOnce, ScheduleDaily, ScheduleWeekly, ScheduleMonthly:
		return true
	}
	return false
}

type MediaType string

const (
	MediaText     MediaType = "text"
	MediaPhoto    MediaType = "photo"
	MediaVideo    MediaType = "video"
	MediaDocument MediaType = "document"
)

// DefaultButtonText is the participate button label used when none is configured.
const DefaultButtonText = "Participate"

// URLButton is one link row under a post.
type URLButton struct {
	Text string `json:"text"`
	URL  string `json:"url"`
}

// ReactionButton is one voting option under a post. ID must be unique per post.
type ReactionButton struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// Post is the unit of scheduled work.
//
// ScheduledTime is a comma-separated list of HH:MM wall-clock times.
// ScheduledDate (once only) uses DD.MM.YYYY. DaysOfWeek (weekly only) is a
// comma-separated list of weekday indices, 0=Monday..6=Sunday.
type Post struct {
	ID          int64
	ChatID      int64
	OwnerID     int64
	Content     string
	MediaType   MediaType
	MediaFileID string

	ScheduleType  ScheduleType
	ScheduledTime string
	ScheduledDate string
	DaysOfWeek    string
	DayOfMonth    int

	IsActive       bool
	CreatedAt      time.Time
	LastSentAt     time.Time
	ExecutionCount int
	SentMessageID  int

	PinPost         bool
	HasSpoiler      bool
	HasParticipate  bool
	ButtonText      string
	URLButtons      []URLButton
	ReactionButtons []ReactionButton
	TemplateName    string
}

// Times splits the comma-separated time list, dropping empty entries.
func (p Post) Times() []string {
	return splitCSV(p.ScheduledTime)
}

// Weekdays parses DaysOfWeek into indices 0=Monday..6=Sunday.
// Unparseable or out-of-range entries are dropped.
func (p Post) Weekdays() []int {
	var out []int
	for _, part := range splitCSV(p.DaysOfWeek) {
		d, err := strconv.Atoi(part)
		if err != nil || d < 0 || d > 6 {
			continue
		}
		out = append(out, d)
	}
	return out
}

func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Template is a reusable post body owned by a user.
type Template struct {
	ID             int64
	OwnerID        int64
	Name           string
	Content        string
	MediaType      MediaType
	MediaFileID    string
	PinPost        bool
	HasSpoiler     bool
	HasParticipate bool
	ButtonText     string
	URLButtons     []URLButton
	CreatedAt      time.Time
}

type Chat struct {
	ID      int64
	Title   string
	Type    string
	OwnerID int64
	AddedAt time.Time
}

type User struct {
	ID       int64
	Username string
	Timezone string
	JoinedAt time.Time
	WebToken string
}

// Statistics are per-user monotonic counters.
type Statistics struct {
	UserID       int64
	PostsCreated int
	PostsSent    int
	PostsFailed  int
	UpdatedAt    time.Time
}

type Participant struct {
	PostID   int64
	UserID   int64
	Username string
	JoinedAt time.Time
}

// HistoryEntry is one append-only send-attempt record.
type HistoryEntry struct {
	PostID    int64
	SentAt    time.Time
	ChatID    int64
	MessageID int
	Success   bool
	ErrorText string
}
