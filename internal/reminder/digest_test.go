package reminder

import (
	"strings"
	"testing"
	"time"

	"taskd/internal/task"
	logx "taskd/pkg/logx"
)

func TestBuildDigestGroupsOverdueAndDueToday(t *testing.T) {
	now := time.Date(2025, time.June, 2, 8, 0, 0, 0, time.UTC)

	overdue := now.Add(-26 * time.Hour)
	today := now.Add(6 * time.Hour)
	tomorrow := now.Add(30 * time.Hour)
	doneDue := now.Add(-time.Hour)

	tasks := []task.Task{
		{Title: "late invoice", Status: task.StatusIncomplete, DueAt: &overdue},
		{Title: "dentist", Status: task.StatusIncomplete, DueAt: &today},
		{Title: "next week", Status: task.StatusIncomplete, DueAt: &tomorrow},
		{Title: "already done", Status: task.StatusComplete, DueAt: &doneDue},
		{Title: "no due date", Status: task.StatusIncomplete},
	}

	body, count := buildDigest(tasks, now)
	if count != 2 {
		t.Fatalf("count = %d, want 2", count)
	}
	if !strings.Contains(body, "late invoice") || !strings.Contains(body, "dentist") {
		t.Fatalf("body missing entries:\n%s", body)
	}
	if strings.Contains(body, "next week") || strings.Contains(body, "already done") {
		t.Fatalf("body has excluded entries:\n%s", body)
	}
	if !strings.Contains(body, "Overdue (1)") || !strings.Contains(body, "Due today (1)") {
		t.Fatalf("body missing section headers:\n%s", body)
	}
}

func TestBuildDigestEmpty(t *testing.T) {
	now := time.Date(2025, time.June, 2, 8, 0, 0, 0, time.UTC)
	future := now.Add(72 * time.Hour)

	body, count := buildDigest([]task.Task{
		{Title: "far off", Status: task.StatusIncomplete, DueAt: &future},
	}, now)
	if count != 0 || body != "" {
		t.Fatalf("count=%d body=%q, want empty", count, body)
	}
}

func TestDigestValidateSchedule(t *testing.T) {
	d := NewDigest(DigestConfig{}, task.NewMemoryRepo(), &captureSink{}, nil, logx.Nop())

	for _, spec := range []string{"0 8 * * *", "30 7 * * 1-5", "@daily", "0 0 8 * * *"} {
		if err := d.ValidateSchedule(spec); err != nil {
			t.Fatalf("spec %q rejected: %v", spec, err)
		}
	}
	for _, spec := range []string{"", "not a cron", "99 99 * * *"} {
		if err := d.ValidateSchedule(spec); err == nil {
			t.Fatalf("spec %q accepted", spec)
		}
	}
}

func TestDigestStartDisabledIsNoop(t *testing.T) {
	d := NewDigest(DigestConfig{Enabled: false, Schedule: "0 8 * * *"}, task.NewMemoryRepo(), &captureSink{}, nil, logx.Nop())
	if err := d.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if d.c != nil {
		t.Fatalf("cron started while disabled")
	}
}

func TestDigestApplyRejectsBadTimezone(t *testing.T) {
	d := NewDigest(DigestConfig{}, task.NewMemoryRepo(), &captureSink{}, nil, logx.Nop())
	err := d.Apply(DigestConfig{Enabled: true, Schedule: "0 8 * * *", Timezone: "Mars/Olympus"})
	if err == nil {
		t.Fatalf("bad timezone accepted")
	}
}
