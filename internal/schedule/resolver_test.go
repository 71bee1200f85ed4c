package schedule

import (
	"strings"
	"testing"
	"time"

	"postbot/internal/model"
)

func TestResolveInstantProducesNothing(t *testing.T) {
	t.Parallel()
	got, err := Resolve(model.Post{ID: 1, ScheduleType: model.ScheduleInstant}, time.UTC)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected no triggers, got %d", len(got))
	}
}

func TestResolveOnce(t *testing.T) {
	t.Parallel()
	loc, err := time.LoadLocation("Europe/Berlin")
	if err != nil {
		t.Fatalf("LoadLocation: %v", err)
	}
	p := model.Post{
		ID:            7,
		ScheduleType:  model.ScheduleOnce,
		ScheduledTime: "09:30, 18:00",
		ScheduledDate: "24.12.2026",
	}
	got, err := Resolve(p, loc)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 triggers, got %d", len(got))
	}
	want := time.Date(2026, 12, 24, 9, 30, 0, 0, loc)
	if !got[0].RunAt.Equal(want) {
		t.Fatalf("trigger 0: got %v, want %v", got[0].RunAt, want)
	}
	if got[0].Recurring() || got[1].Recurring() {
		t.Fatalf("once triggers must not be recurring")
	}
	if got[0].Index != 0 || got[1].Index != 1 {
		t.Fatalf("indices: got %d,%d", got[0].Index, got[1].Index)
	}
}

func TestResolveDaily(t *testing.T) {
	t.Parallel()
	p := model.Post{ID: 3, ScheduleType: model.ScheduleDaily, ScheduledTime: "08:15"}
	got, err := Resolve(p, time.UTC)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 trigger, got %d", len(got))
	}
	if got[0].Spec != "CRON_TZ=UTC 15 8 * * *" {
		t.Fatalf("spec: got %q", got[0].Spec)
	}
}

func TestResolveWeeklyCrossProduct(t *testing.T) {
	t.Parallel()
	// 2 times x 2 days produce 4 independently keyed triggers.
	p := model.Post{
		ID:            5,
		ScheduleType:  model.ScheduleWeekly,
		ScheduledTime: "10:00,20:00",
		DaysOfWeek:    "0,6", // Monday and Sunday
	}
	got, err := Resolve(p, time.UTC)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(got) != 4 {
		t.Fatalf("expected 4 triggers, got %d", len(got))
	}
	for i, tr := range got {
		if tr.Index != i {
			t.Fatalf("trigger %d has index %d", i, tr.Index)
		}
	}
	// Monday maps to cron weekday 1, Sunday to 0.
	if !strings.HasSuffix(got[0].Spec, "* * 1") {
		t.Fatalf("monday spec: got %q", got[0].Spec)
	}
	if !strings.HasSuffix(got[1].Spec, "* * 0") {
		t.Fatalf("sunday spec: got %q", got[1].Spec)
	}
}

func TestResolveMonthly(t *testing.T) {
	t.Parallel()
	p := model.Post{ID: 9, ScheduleType: model.ScheduleMonthly, ScheduledTime: "12:00", DayOfMonth: 31}
	got, err := Resolve(p, time.UTC)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(got) != 1 || got[0].Spec != "CRON_TZ=UTC 0 12 31 * *" {
		t.Fatalf("got %+v", got)
	}
}

func TestResolveErrors(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name string
		post model.Post
	}{
		{"unknown type", model.Post{ScheduleType: "hourly", ScheduledTime: "10:00"}},
		{"no times", model.Post{ScheduleType: model.ScheduleDaily}},
		{"bad time", model.Post{ScheduleType: model.ScheduleDaily, ScheduledTime: "25:00"}},
		{"once without date", model.Post{ScheduleType: model.ScheduleOnce, ScheduledTime: "10:00"}},
		{"once bad date", model.Post{ScheduleType: model.ScheduleOnce, ScheduledTime: "10:00", ScheduledDate: "2026-12-24"}},
		{"weekly without days", model.Post{ScheduleType: model.ScheduleWeekly, ScheduledTime: "10:00"}},
		{"monthly day out of range", model.Post{ScheduleType: model.ScheduleMonthly, ScheduledTime: "10:00", DayOfMonth: 32}},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if _, err := Resolve(tc.post, time.UTC); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestCronDow(t *testing.T) {
	t.Parallel()
	// 0=Monday..6=Sunday maps to cron's 0=Sunday..6=Saturday.
	want := map[int]int{0: 1, 1: 2, 2: 3, 3: 4, 4: 5, 5: 6, 6: 0}
	for in, out := range want {
		if got := cronDow(in); got != out {
			t.Fatalf("cronDow(%d) = %d, want %d", in, got, out)
		}
	}
}
