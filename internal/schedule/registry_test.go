package schedule

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"postbot/internal/model"
)

func dailyPost(id int64, times string) model.Post {
	return model.Post{
		ID:            id,
		ScheduleType:  model.ScheduleDaily,
		ScheduledTime: times,
		IsActive:      true,
	}
}

func TestRegisterReplacesPriorEntries(t *testing.T) {
	t.Parallel()
	r := NewRegistry(func(context.Context, int64) {}, zerolog.Nop())

	r.Register(dailyPost(1, "10:00"), "UTC")
	if got := r.Jobs(1); got != 1 {
		t.Fatalf("jobs after first register: %d", got)
	}

	r.Register(dailyPost(1, "10:00,20:00"), "UTC")
	if got := r.Jobs(1); got != 2 {
		t.Fatalf("jobs after re-register: %d, want 2 (replaced, not appended)", got)
	}
	if got := r.Size(); got != 2 {
		t.Fatalf("size: %d", got)
	}
}

func TestRegisterSkipsInactiveAndMalformed(t *testing.T) {
	t.Parallel()
	r := NewRegistry(func(context.Context, int64) {}, zerolog.Nop())

	p := dailyPost(2, "10:00")
	p.IsActive = false
	r.Register(p, "UTC")
	if got := r.Jobs(2); got != 0 {
		t.Fatalf("inactive post registered %d jobs", got)
	}

	bad := dailyPost(3, "not-a-time")
	r.Register(bad, "UTC")
	if got := r.Jobs(3); got != 0 {
		t.Fatalf("malformed post registered %d jobs", got)
	}
}

func TestUnregisterIdempotent(t *testing.T) {
	t.Parallel()
	r := NewRegistry(func(context.Context, int64) {}, zerolog.Nop())

	r.Register(dailyPost(4, "10:00"), "UTC")
	r.Unregister(4)
	r.Unregister(4)
	r.Unregister(99)
	if got := r.Size(); got != 0 {
		t.Fatalf("size after unregister: %d", got)
	}
}

func TestPastOnceFiresImmediately(t *testing.T) {
	t.Parallel()
	fired := make(chan int64, 1)
	r := NewRegistry(func(_ context.Context, postID int64) { fired <- postID }, zerolog.Nop())

	p := model.Post{
		ID:            5,
		ScheduleType:  model.ScheduleOnce,
		ScheduledTime: "00:00",
		ScheduledDate: "1.1.2020",
		IsActive:      true,
	}
	r.Register(p, "UTC")

	select {
	case id := <-fired:
		if id != 5 {
			t.Fatalf("fired post %d, want 5", id)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("past-dated once trigger never fired")
	}
	if got := r.Jobs(5); got != 0 {
		t.Fatalf("one-shot entry not dropped after fire: %d", got)
	}
}

func TestSizeHookObservesMutations(t *testing.T) {
	t.Parallel()
	var last int
	r := NewRegistry(func(context.Context, int64) {}, zerolog.Nop())
	r.SizeHook = func(n int) { last = n }

	r.Register(dailyPost(6, "10:00,11:00"), "UTC")
	if last != 2 {
		t.Fatalf("hook after register: %d", last)
	}
	r.Unregister(6)
	if last != 0 {
		t.Fatalf("hook after unregister: %d", last)
	}
}

func TestInvalidTimezoneFallsBackToUTC(t *testing.T) {
	t.Parallel()
	r := NewRegistry(func(context.Context, int64) {}, zerolog.Nop())
	r.Register(dailyPost(7, "10:00"), "Not/AZone")
	if got := r.Jobs(7); got != 1 {
		t.Fatalf("jobs with bad tz: %d, want 1 (UTC fallback)", got)
	}
}
