package reminder

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"taskd/internal/notify"
	"taskd/internal/task"
	logx "taskd/pkg/logx"
)

type captureSink struct {
	mu   sync.Mutex
	sent []notify.Notification
	fail error
}

func (c *captureSink) Notify(_ context.Context, n notify.Notification) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail != nil {
		return c.fail
	}
	c.sent = append(c.sent, n)
	return nil
}

func (c *captureSink) notifications() []notify.Notification {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]notify.Notification(nil), c.sent...)
}

// newScanService builds a scheduler with a fixed clock; tests drive scan()
// directly instead of running the poll loop. The memory repo satisfies Store
// on its own; claim serialization against the service mutex is covered in
// the task package.
func newScanService(store Store, sink notify.Sink, at time.Time) *Service {
	s := New(Config{PollInterval: time.Minute}, store, sink, nil, logx.Nop())
	s.now = func() time.Time { return at }
	return s
}

func createWithReminder(t *testing.T, repo task.Repository, title string, due time.Time, offset time.Duration) task.Task {
	t.Helper()
	created, err := repo.Create(context.Background(), task.Task{
		Title:          title,
		DueAt:          &due,
		ReminderOffset: &offset,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	return created
}

func TestScanFiresAtThreshold(t *testing.T) {
	repo := task.NewMemoryRepo()
	sink := &captureSink{}
	due := time.Date(2025, time.June, 2, 9, 0, 0, 0, time.UTC)
	created := createWithReminder(t, repo, "standup", due, time.Hour)

	// One second before the threshold: nothing fires.
	s := newScanService(repo, sink, due.Add(-time.Hour-time.Second))
	s.scan(context.Background())
	if got := sink.notifications(); len(got) != 0 {
		t.Fatalf("fired early: %+v", got)
	}

	// Exactly at due - offset: fires.
	s.now = func() time.Time { return due.Add(-time.Hour) }
	s.scan(context.Background())
	got := sink.notifications()
	if len(got) != 1 {
		t.Fatalf("len = %d, want 1", len(got))
	}
	if got[0].TaskID != created.ID || got[0].Title != "standup" || !got[0].DueAt.Equal(due) {
		t.Fatalf("notification = %+v", got[0])
	}
}

func TestScanFiresOnlyOncePerOccurrence(t *testing.T) {
	repo := task.NewMemoryRepo()
	sink := &captureSink{}
	due := time.Date(2025, time.June, 2, 9, 0, 0, 0, time.UTC)
	createWithReminder(t, repo, "standup", due, time.Hour)

	s := newScanService(repo, sink, due)
	s.scan(context.Background())
	s.scan(context.Background())
	s.scan(context.Background())
	if got := sink.notifications(); len(got) != 1 {
		t.Fatalf("len = %d, want 1 (no refiring)", len(got))
	}
}

func TestScanCatchUpAfterDowntimeFiresOnce(t *testing.T) {
	repo := task.NewMemoryRepo()
	sink := &captureSink{}
	due := time.Date(2025, time.June, 2, 9, 0, 0, 0, time.UTC)
	createWithReminder(t, repo, "standup", due, time.Hour)

	// Process was down past the threshold and even past the due time.
	s := newScanService(repo, sink, due.Add(3*time.Hour))
	s.scan(context.Background())
	s.scan(context.Background())
	if got := sink.notifications(); len(got) != 1 {
		t.Fatalf("len = %d, want 1", len(got))
	}
}

func TestScanSkipsCompletedAndSuperseded(t *testing.T) {
	repo := task.NewMemoryRepo()
	sink := &captureSink{}
	ctx := context.Background()
	due := time.Date(2025, time.June, 2, 9, 0, 0, 0, time.UTC)

	done := createWithReminder(t, repo, "done", due, time.Hour)
	done.Status = task.StatusComplete
	if _, err := repo.Put(ctx, done); err != nil {
		t.Fatalf("put: %v", err)
	}

	old := createWithReminder(t, repo, "old", due, time.Hour)
	old.Superseded = true
	if _, err := repo.Put(ctx, old); err != nil {
		t.Fatalf("put: %v", err)
	}

	s := newScanService(repo, sink, due)
	s.scan(ctx)
	if got := sink.notifications(); len(got) != 0 {
		t.Fatalf("fired for closed records: %+v", got)
	}
}

func TestScanDeleteCancelsPendingReminder(t *testing.T) {
	repo := task.NewMemoryRepo()
	sink := &captureSink{}
	ctx := context.Background()
	due := time.Date(2025, time.June, 2, 9, 0, 0, 0, time.UTC)
	created := createWithReminder(t, repo, "gone", due, time.Hour)

	if err := repo.Delete(ctx, created.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	s := newScanService(repo, sink, due)
	s.scan(ctx)
	if got := sink.notifications(); len(got) != 0 {
		t.Fatalf("fired for deleted task: %+v", got)
	}
}

func TestScanStopsOnCanceledContext(t *testing.T) {
	repo := task.NewMemoryRepo()
	sink := &captureSink{}
	due := time.Date(2025, time.June, 2, 9, 0, 0, 0, time.UTC)
	createWithReminder(t, repo, "due now", due, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := newScanService(repo, sink, due)
	s.scan(ctx)
	if got := sink.notifications(); len(got) != 0 {
		t.Fatalf("fired after stop: %+v", got)
	}
}

func TestScanSinkFailureDoesNotAbortLoop(t *testing.T) {
	repo := task.NewMemoryRepo()
	sink := &captureSink{fail: errors.New("sink down")}
	ctx := context.Background()
	due := time.Date(2025, time.June, 2, 9, 0, 0, 0, time.UTC)
	a := createWithReminder(t, repo, "a", due, time.Hour)
	b := createWithReminder(t, repo, "b", due, time.Hour)

	s := newScanService(repo, sink, due)
	s.scan(ctx)

	// Both claims were consumed even though delivery failed; the occurrence
	// is spent, not retried.
	for _, id := range []int64{a.ID, b.ID} {
		got, err := repo.Get(ctx, id)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if !got.ReminderFired {
			t.Fatalf("task %d claim not consumed", id)
		}
	}

	sink.mu.Lock()
	sink.fail = nil
	sink.mu.Unlock()
	s.scan(ctx)
	if got := sink.notifications(); len(got) != 0 {
		t.Fatalf("failed delivery must not refire: %+v", got)
	}
}

func TestScanNoReminderWithoutDueOrOffset(t *testing.T) {
	repo := task.NewMemoryRepo()
	sink := &captureSink{}
	ctx := context.Background()
	due := time.Date(2025, time.June, 2, 9, 0, 0, 0, time.UTC)

	if _, err := repo.Create(ctx, task.Task{Title: "no due", ReminderOffset: ptrDuration(time.Hour)}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := repo.Create(ctx, task.Task{Title: "no offset", DueAt: &due}); err != nil {
		t.Fatalf("create: %v", err)
	}

	s := newScanService(repo, sink, due.Add(24*time.Hour))
	s.scan(ctx)
	if got := sink.notifications(); len(got) != 0 {
		t.Fatalf("fired without due+offset: %+v", got)
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	repo := task.NewMemoryRepo()
	sink := &captureSink{}
	s := New(Config{PollInterval: 10 * time.Millisecond}, repo, sink, nil, logx.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("run did not stop after cancel")
	}
}

func ptrDuration(d time.Duration) *time.Duration { return &d }
