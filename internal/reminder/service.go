// Package reminder runs the background reminder scheduler: a single polling
// loop that scans the task repository at a fixed interval and dispatches a
// notification exactly once per occurrence when current time crosses
// (due time - offset).
//
// Polling over per-task timers is deliberate: reminder offsets are hour-scale,
// so minute-scale precision is enough, and re-reading store state every tick
// means deletion and completion cancel pending reminders without any timer
// bookkeeping.
package reminder

import (
	"context"
	"sync"
	"time"

	"taskd/internal/eventbus"
	"taskd/internal/notify"
	"taskd/internal/task"
	logx "taskd/pkg/logx"
)

const defaultPollInterval = 60 * time.Second

type Config struct {
	PollInterval time.Duration
}

// Store is the slice of the task store the scheduler needs. In the daemon it
// is the task service, whose MarkReminderFired is serialized against
// foreground read-modify-write updates; claiming through the bare repository
// would let an update's write-back clobber the flag.
type Store interface {
	List(ctx context.Context) ([]task.Task, error)
	MarkReminderFired(ctx context.Context, id int64, due time.Time) (bool, error)
}

type Service struct {
	mu  sync.Mutex
	cfg Config

	store Store
	sink  notify.Sink
	bus   eventbus.Bus
	log   logx.Logger

	now func() time.Time
}

func New(cfg Config, store Store, sink notify.Sink, bus eventbus.Bus, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{store: store, sink: sink, bus: bus, log: log, now: time.Now}
	s.Apply(cfg)
	return s
}

func (s *Service) Apply(cfg Config) {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()
}

func (s *Service) interval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.PollInterval
}

// Run is the polling loop. It scans once immediately (so reminders that came
// due while the process was down fire on startup) and then once per interval.
// Cancelling ctx is the global stop signal; no reminder fires after it is
// observed, even one that was due in the same tick.
func (s *Service) Run(ctx context.Context) error {
	s.log.Info("reminder scheduler started", logx.Duration("poll_interval", s.interval()))
	s.scan(ctx)
	for {
		t := time.NewTimer(s.interval())
		select {
		case <-ctx.Done():
			t.Stop()
			s.log.Info("reminder scheduler stopped")
			return nil
		case <-t.C:
			s.scan(ctx)
		}
	}
}

// scan walks the full task list and fires eligible reminders.
//
// The fired flag is claimed through Store.MarkReminderFired before dispatch:
// the claim is conditional on the due date being unchanged, so a concurrent
// due-date edit voids it, and a claim that then fails to deliver is dropped
// rather than retried (sink failures never abort the loop).
func (s *Service) scan(ctx context.Context) {
	now := s.now()
	tasks, err := s.store.List(ctx)
	if err != nil {
		s.log.Error("reminder scan failed", logx.Err(err))
		return
	}

	for _, t := range tasks {
		if ctx.Err() != nil {
			return
		}
		if !eligible(t, now) {
			continue
		}

		won, err := s.store.MarkReminderFired(ctx, t.ID, *t.DueAt)
		if err != nil || !won {
			// Deleted mid-scan, due date changed, or already fired.
			continue
		}

		n := notify.Notification{TaskID: t.ID, Title: t.Title, DueAt: *t.DueAt}
		if err := s.sink.Notify(ctx, n); err != nil {
			s.log.Warn("reminder dispatch failed",
				logx.Err(err), logx.Int64("task_id", t.ID), logx.String("title", t.Title))
			s.publish(eventbus.TypeReminderFailed, n)
			continue
		}
		s.log.Debug("reminder fired",
			logx.Int64("task_id", t.ID), logx.String("title", t.Title), logx.Time("due_at", *t.DueAt))
		s.publish(eventbus.TypeReminderFired, n)
	}
}

// eligible reports whether a reminder should fire for t at now. Completed and
// superseded records never fire; their flag state already encodes the
// cancellation, so no separate index is needed.
func eligible(t task.Task, now time.Time) bool {
	if t.DueAt == nil || t.ReminderOffset == nil {
		return false
	}
	if t.ReminderFired || t.Status == task.StatusComplete || t.Superseded {
		return false
	}
	return !now.Before(t.DueAt.Add(-*t.ReminderOffset))
}

func (s *Service) publish(typ string, n notify.Notification) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(eventbus.Event{Type: typ, Data: n})
}
