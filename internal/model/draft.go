package model

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Draft is the explicit, typed shape of a post under construction, used by the
// conversational front-end and the import endpoint before anything reaches the
// store. A Draft is only committed after Validate passes.
type Draft struct {
	Content     string
	MediaType   MediaType
	MediaFileID string

	ScheduleType  ScheduleType
	ScheduledTime string
	ScheduledDate string
	DaysOfWeek    string
	DayOfMonth    int

	PinPost         bool
	HasSpoiler      bool
	HasParticipate  bool
	ButtonText      string
	URLButtons      []URLButton
	ReactionButtons []ReactionButton
	TemplateName    string
}

var (
	ErrNoContent     = errors.New("draft has neither content nor media")
	ErrNoTimes       = errors.New("schedule requires at least one HH:MM time")
	ErrNoDate        = errors.New("once schedule requires a date")
	ErrNoWeekdays    = errors.New("weekly schedule requires at least one weekday")
	ErrBadDayOfMonth = errors.New("monthly schedule requires day of month 1-31")
)

// Validate enforces the per-schedule-type invariants before a draft may be
// stored. Instant drafts need no recurrence fields at all.
func (d Draft) Validate() error {
	if !d.ScheduleType.Valid() {
		return fmt.Errorf("unknown schedule type %q", d.ScheduleType)
	}
	if strings.TrimSpace(d.Content) == "" && d.MediaFileID == "" {
		return ErrNoContent
	}
	if d.ScheduleType == ScheduleInstant {
		return nil
	}

	times := splitCSV(d.ScheduledTime)
	if len(times) == 0 {
		return ErrNoTimes
	}
	for _, t := range times {
		if _, _, err := ParseHHMM(t); err != nil {
			return err
		}
	}

	switch d.ScheduleType {
	case ScheduleOnce:
		if strings.TrimSpace(d.ScheduledDate) == "" {
			return ErrNoDate
		}
		if _, err := ParseDate(d.ScheduledDate); err != nil {
			return err
		}
	case ScheduleWeekly:
		if len((Post{DaysOfWeek: d.DaysOfWeek}).Weekdays()) == 0 {
			return ErrNoWeekdays
		}
	case ScheduleMonthly:
		if d.DayOfMonth < 1 || d.DayOfMonth > 31 {
			return ErrBadDayOfMonth
		}
	}
	return nil
}

// Post converts a validated draft into a storable post for the given
// destination chat and owner.
func (d Draft) Post(chatID, ownerID int64) (Post, error) {
	if err := d.Validate(); err != nil {
		return Post{}, err
	}
	btn := d.ButtonText
	if btn == "" {
		btn = DefaultButtonText
	}
	mt := d.MediaType
	if mt == "" {
		mt = MediaText
	}
	return Post{
		ChatID:          chatID,
		OwnerID:         ownerID,
		Content:         d.Content,
		MediaType:       mt,
		MediaFileID:     d.MediaFileID,
		ScheduleType:    d.ScheduleType,
		ScheduledTime:   d.ScheduledTime,
		ScheduledDate:   d.ScheduledDate,
		DaysOfWeek:      d.DaysOfWeek,
		DayOfMonth:      d.DayOfMonth,
		IsActive:        true,
		PinPost:         d.PinPost,
		HasSpoiler:      d.HasSpoiler,
		HasParticipate:  d.HasParticipate,
		ButtonText:      btn,
		URLButtons:      d.URLButtons,
		ReactionButtons: d.ReactionButtons,
		TemplateName:    d.TemplateName,
	}, nil
}

// ApplyTemplate stamps a template's body and presentation options onto the
// draft, leaving recurrence fields untouched.
func (d *Draft) ApplyTemplate(t Template) {
	d.Content = t.Content
	d.MediaType = t.MediaType
	d.MediaFileID = t.MediaFileID
	d.PinPost = t.PinPost
	d.HasSpoiler = t.HasSpoiler
	d.HasParticipate = t.HasParticipate
	d.ButtonText = t.ButtonText
	d.URLButtons = append([]URLButton(nil), t.URLButtons...)
	d.TemplateName = t.Name
}

// ParseHHMM parses a single "HH:MM" wall-clock time.
func ParseHHMM(s string) (hour, minute int, err error) {
	s = strings.TrimSpace(s)
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid time %q, expected HH:MM", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, 0, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, 0, fmt.Errorf("invalid minute in %q", s)
	}
	return h, m, nil
}

// ParseDate parses the calendar date format used by once posts (DD.MM.YYYY).
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse("2.1.2006", strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, expected DD.MM.YYYY", s)
	}
	return t, nil
}
