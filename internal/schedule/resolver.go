package schedule

import (
	"fmt"
	"time"

	"postbot/internal/model"
)

// Trigger is one concrete firing rule derived from a post's recurrence fields.
// Exactly one of Spec or RunAt is set: Spec for recurring entries (a cron
// expression carrying its own CRON_TZ prefix), RunAt for a single absolute
// instant.
type Trigger struct {
	Index int
	Spec  string
	RunAt time.Time
}

func (t Trigger) Recurring() bool { return t.Spec != "" }

// Resolve maps a post's recurrence rule, interpreted in the owner's timezone,
// to the set of triggers to register now.
//
// Multiple times (and, for weekly, multiple weekdays) produce one trigger per
// combination so each can be replaced or cancelled independently. Instant
// posts resolve to nothing; they are executed synchronously by the caller.
//
// A once instant that already passed is still produced: the registry fires it
// immediately rather than skipping it, which doubles as catch-up after
// downtime. Monthly day-of-month values that a given month lacks simply do
// not match that month (cron semantics), so e.g. day 31 skips February.
func Resolve(p model.Post, loc *time.Location) ([]Trigger, error) {
	if p.ScheduleType == model.ScheduleInstant {
		return nil, nil
	}
	if !p.ScheduleType.Valid() {
		return nil, fmt.Errorf("post %d: unknown schedule type %q", p.ID, p.ScheduleType)
	}

	times := p.Times()
	if len(times) == 0 {
		return nil, fmt.Errorf("post %d: no scheduled times", p.ID)
	}

	var out []Trigger
	idx := 0
	for _, raw := range times {
		h, m, err := model.ParseHHMM(raw)
		if err != nil {
			return nil, fmt.Errorf("post %d: %w", p.ID, err)
		}

		switch p.ScheduleType {
		case model.ScheduleOnce:
			day, err := model.ParseDate(p.ScheduledDate)
			if err != nil {
				return nil, fmt.Errorf("post %d: %w", p.ID, err)
			}
			runAt := time.Date(day.Year(), day.Month(), day.Day(), h, m, 0, 0, loc)
			out = append(out, Trigger{Index: idx, RunAt: runAt})
			idx++

		case model.ScheduleDaily:
			out = append(out, Trigger{Index: idx, Spec: cronSpec(loc, m, h, "*", "*")})
			idx++

		case model.ScheduleWeekly:
			days := p.Weekdays()
			if len(days) == 0 {
				return nil, fmt.Errorf("post %d: weekly schedule without weekdays", p.ID)
			}
			for _, d := range days {
				out = append(out, Trigger{Index: idx, Spec: cronSpec(loc, m, h, "*", fmt.Sprint(cronDow(d)))})
				idx++
			}

		case model.ScheduleMonthly:
			if p.DayOfMonth < 1 || p.DayOfMonth > 31 {
				return nil, fmt.Errorf("post %d: day of month %d out of range", p.ID, p.DayOfMonth)
			}
			out = append(out, Trigger{Index: idx, Spec: cronSpec(loc, m, h, fmt.Sprint(p.DayOfMonth), "*")})
			idx++
		}
	}
	return out, nil
}

func cronSpec(loc *time.Location, minute, hour int, dom, dow string) string {
	return fmt.Sprintf("CRON_TZ=%s %d %d %s * %s", loc.String(), minute, hour, dom, dow)
}

// cronDow converts our weekday index (0=Monday..6=Sunday) to cron's
// (0=Sunday..6=Saturday).
func cronDow(d int) int {
	return (d + 1) % 7
}
