package task

import (
	"testing"
	"time"
)

func mustTime(t *testing.T, s string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, s)
	if err != nil {
		t.Fatalf("parse %q: %v", s, err)
	}
	return ts
}

func TestNextDueSimpleCadences(t *testing.T) {
	cases := []struct {
		name string
		due  string
		r    Recurrence
		want string
	}{
		{"daily", "2025-06-02T09:00:00Z", RecurDaily, "2025-06-03T09:00:00Z"},
		{"weekly", "2025-06-02T09:00:00Z", RecurWeekly, "2025-06-09T09:00:00Z"},
		{"biweekly", "2025-06-02T09:00:00Z", RecurBiweekly, "2025-06-16T09:00:00Z"},
		{"monthly mid-month", "2025-06-15T09:00:00Z", RecurMonthly, "2025-07-15T09:00:00Z"},
		{"yearly", "2025-06-15T09:00:00Z", RecurYearly, "2026-06-15T09:00:00Z"},
		{"none unchanged", "2025-06-15T09:00:00Z", RecurNone, "2025-06-15T09:00:00Z"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := NextDue(mustTime(t, tc.due), tc.r)
			want := mustTime(t, tc.want)
			if !got.Equal(want) {
				t.Fatalf("NextDue(%s, %s) = %s, want %s", tc.due, tc.r, got, want)
			}
		})
	}
}

func TestNextDueMonthlyClampsToShortMonth(t *testing.T) {
	got := NextDue(mustTime(t, "2025-01-31T10:00:00Z"), RecurMonthly)
	if want := mustTime(t, "2025-02-28T10:00:00Z"); !got.Equal(want) {
		t.Fatalf("got %s, want %s", got, want)
	}
}

func TestNextDueMonthlyClampsToLeapDay(t *testing.T) {
	got := NextDue(mustTime(t, "2024-01-31T10:00:00Z"), RecurMonthly)
	if want := mustTime(t, "2024-02-29T10:00:00Z"); !got.Equal(want) {
		t.Fatalf("got %s, want %s", got, want)
	}
}

func TestNextDueMonthlyAcrossYearBoundary(t *testing.T) {
	got := NextDue(mustTime(t, "2025-12-31T08:30:00Z"), RecurMonthly)
	if want := mustTime(t, "2026-01-31T08:30:00Z"); !got.Equal(want) {
		t.Fatalf("got %s, want %s", got, want)
	}
}

func TestNextDueYearlyFromLeapDay(t *testing.T) {
	got := NextDue(mustTime(t, "2024-02-29T07:00:00Z"), RecurYearly)
	if want := mustTime(t, "2025-02-28T07:00:00Z"); !got.Equal(want) {
		t.Fatalf("got %s, want %s", got, want)
	}
}

func TestNextDuePreservesZoneAndTimeOfDay(t *testing.T) {
	loc := time.FixedZone("UTC+7", 7*3600)
	due := time.Date(2025, time.March, 31, 18, 45, 0, 0, loc)

	got := NextDue(due, RecurMonthly)
	want := time.Date(2025, time.April, 30, 18, 45, 0, 0, loc)
	if !got.Equal(want) {
		t.Fatalf("got %s, want %s", got, want)
	}
	if got.Location() != loc {
		t.Fatalf("location changed: got %v, want %v", got.Location(), loc)
	}
	hh, mm, _ := got.Clock()
	if hh != 18 || mm != 45 {
		t.Fatalf("time of day changed: got %02d:%02d", hh, mm)
	}
}

func TestNextDueAnchorsToDueNotCompletion(t *testing.T) {
	// Completing late must not shift the cadence: only the stored due date
	// feeds the computation.
	due := mustTime(t, "2025-06-02T09:00:00Z")
	first := NextDue(due, RecurWeekly)
	second := NextDue(due, RecurWeekly)
	if !first.Equal(second) {
		t.Fatalf("NextDue not deterministic: %s vs %s", first, second)
	}
}
