package storage

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"taskd/internal/task"
	logx "taskd/pkg/logx"
)

func openTestRepo(t *testing.T) task.Repository {
	t.Helper()
	repo, err := Open(Config{
		Driver: "sqlite",
		Path:   filepath.Join(t.TempDir(), "tasks.db"),
	}, logx.Nop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func TestOpenUnknownDriver(t *testing.T) {
	if _, err := Open(Config{Driver: "postgres"}, logx.Nop()); err == nil {
		t.Fatalf("unknown driver accepted")
	}
}

func TestOpenDefaultsToMemory(t *testing.T) {
	repo, err := Open(Config{}, logx.Nop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, ok := repo.(*task.MemoryRepo); !ok {
		t.Fatalf("repo = %T, want *task.MemoryRepo", repo)
	}
}

func TestSQLiteRoundtrip(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	loc := time.FixedZone("UTC+7", 7*3600)
	due := time.Date(2025, time.June, 2, 9, 0, 0, 0, loc)
	off := 90 * time.Minute
	created, err := repo.Create(ctx, task.Task{
		Title:          "water plants",
		Description:    "the ficus too",
		Priority:       task.PriorityHigh,
		Tags:           []string{"home", "garden"},
		DueAt:          &due,
		Recurrence:     task.RecurWeekly,
		ReminderOffset: &off,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.ID == 0 {
		t.Fatalf("no id assigned")
	}

	got, err := repo.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Title != "water plants" || got.Priority != task.PriorityHigh || got.Recurrence != task.RecurWeekly {
		t.Fatalf("fields lost: %+v", got)
	}
	if len(got.Tags) != 2 {
		t.Fatalf("tags = %v", got.Tags)
	}
	if got.DueAt == nil || !got.DueAt.Equal(due) {
		t.Fatalf("due_at = %v, want %s", got.DueAt, due)
	}
	// Zone offset must survive the roundtrip, not just the instant.
	_, wantOff := due.Zone()
	_, gotOff := got.DueAt.Zone()
	if gotOff != wantOff {
		t.Fatalf("zone offset = %d, want %d", gotOff, wantOff)
	}
	if got.ReminderOffset == nil || *got.ReminderOffset != off {
		t.Fatalf("reminder offset = %v", got.ReminderOffset)
	}
}

func TestSQLiteUpdateDelete(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	created, err := repo.Create(ctx, task.Task{Title: "a"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	created.Title = "b"
	created.Status = task.StatusInProgress
	if _, err := repo.Put(ctx, created); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, err := repo.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Title != "b" || got.Status != task.StatusInProgress {
		t.Fatalf("update lost: %+v", got)
	}

	if err := repo.Delete(ctx, created.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := repo.Get(ctx, created.ID); !errors.Is(err, task.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if err := repo.Delete(ctx, created.ID); !errors.Is(err, task.ErrNotFound) {
		t.Fatalf("double delete: err = %v, want ErrNotFound", err)
	}
	if _, err := repo.Put(ctx, got); !errors.Is(err, task.ErrNotFound) {
		t.Fatalf("put after delete: err = %v, want ErrNotFound", err)
	}
}

func TestSQLiteIDsNeverReused(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	a, err := repo.Create(ctx, task.Task{Title: "a"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := repo.Delete(ctx, a.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	b, err := repo.Create(ctx, task.Task{Title: "b"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if b.ID <= a.ID {
		t.Fatalf("id %d reused after delete of %d", b.ID, a.ID)
	}
}

func TestSQLiteListInsertionOrder(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		if _, err := repo.Create(ctx, task.Task{Title: fmt.Sprintf("t%d", i)}); err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	list, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 4 {
		t.Fatalf("len = %d", len(list))
	}
	for i := 1; i < len(list); i++ {
		if list[i].ID <= list[i-1].ID {
			t.Fatalf("list not in insertion order: %v then %v", list[i-1].ID, list[i].ID)
		}
	}
}

func TestSQLiteMarkReminderFired(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	due := time.Date(2025, time.June, 2, 9, 0, 0, 0, time.UTC)
	created, err := repo.Create(ctx, task.Task{Title: "x", DueAt: &due})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	won, err := repo.MarkReminderFired(ctx, created.ID, due)
	if err != nil || !won {
		t.Fatalf("first claim: won=%v err=%v", won, err)
	}
	won, err = repo.MarkReminderFired(ctx, created.ID, due)
	if err != nil || won {
		t.Fatalf("second claim must lose: won=%v err=%v", won, err)
	}
	won, err = repo.MarkReminderFired(ctx, created.ID, due.Add(time.Hour))
	if err != nil || won {
		t.Fatalf("stale-due claim must lose: won=%v err=%v", won, err)
	}
	if _, err := repo.MarkReminderFired(ctx, 9999, due); !errors.Is(err, task.ErrNotFound) {
		t.Fatalf("unknown id: err = %v, want ErrNotFound", err)
	}

	got, err := repo.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !got.ReminderFired {
		t.Fatalf("flag not persisted")
	}

	// Closed records never win the claim.
	closed, err := repo.Create(ctx, task.Task{Title: "closed", DueAt: &due})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	closed.Status = task.StatusComplete
	if _, err := repo.Put(ctx, closed); err != nil {
		t.Fatalf("put: %v", err)
	}
	if won, err := repo.MarkReminderFired(ctx, closed.ID, due); err != nil || won {
		t.Fatalf("claim on completed task: won=%v err=%v", won, err)
	}
}

func TestSQLiteValidationMatchesMemoryRepo(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	if _, err := repo.Create(ctx, task.Task{Title: " "}); !errors.Is(err, task.ErrValidation) {
		t.Fatalf("blank title: err = %v, want ErrValidation", err)
	}
	if _, err := repo.Create(ctx, task.Task{Title: "x", Recurrence: task.RecurMonthly}); !errors.Is(err, task.ErrValidation) {
		t.Fatalf("recurrence without due: err = %v, want ErrValidation", err)
	}
}

func TestSQLitePersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tasks.db")
	ctx := context.Background()

	repo, err := Open(Config{Driver: "sqlite", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	created, err := repo.Create(ctx, task.Task{Title: "durable"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := repo.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	repo2, err := Open(Config{Driver: "sqlite", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer repo2.Close()

	got, err := repo2.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("get after reopen: %v", err)
	}
	if got.Title != "durable" {
		t.Fatalf("record lost: %+v", got)
	}
}
