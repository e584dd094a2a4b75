package task

import (
	"context"
	"fmt"
	"sync"
	"time"

	"taskd/internal/eventbus"
	logx "taskd/pkg/logx"
)

// CreateRequest carries the caller-settable fields for a new task.
// Zero values fall back to defaults (priority medium, recurrence none).
type CreateRequest struct {
	Title          string
	Description    string
	Priority       Priority
	Tags           []string
	DueAt          *time.Time
	Recurrence     Recurrence
	ReminderOffset *time.Duration
}

// Patch is a partial update; nil fields are left unchanged. Clearing an
// optional field is explicit (ClearDue, ClearReminder) so "absent" and
// "unchanged" don't collide.
type Patch struct {
	Title          *string
	Description    *string
	Priority       *Priority
	Tags           *[]string
	DueAt          *time.Time
	ClearDue       bool
	Recurrence     *Recurrence
	ReminderOffset *time.Duration
	ClearReminder  bool
}

// Service is the caller-facing surface of the subsystem: CRUD passthroughs,
// the completion handler, and reminder configuration. It takes and returns
// plain Task values.
//
// Every writer is serialized by the internal mutex, including the reminder
// scheduler's fired-flag claim (MarkReminderFired). Foreground updates are
// Get-mutate-Put composites; without the shared mutex a claim landing between
// the Get and the Put would be clobbered by the write-back and the occurrence
// would fire twice.
type Service struct {
	mu   sync.Mutex
	repo Repository
	bus  eventbus.Bus
	log  logx.Logger
	now  func() time.Time
}

func NewService(repo Repository, bus eventbus.Bus, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{repo: repo, bus: bus, log: log, now: time.Now}
}

func (s *Service) Create(ctx context.Context, req CreateRequest) (Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := Task{
		Title:          req.Title,
		Description:    req.Description,
		Status:         StatusIncomplete,
		Priority:       req.Priority,
		Tags:           req.Tags,
		CreatedAt:      s.now(),
		DueAt:          req.DueAt,
		Recurrence:     req.Recurrence,
		ReminderOffset: req.ReminderOffset,
	}
	created, err := s.repo.Create(ctx, t)
	if err != nil {
		return Task{}, err
	}
	s.publish(eventbus.TypeTaskCreated, created)
	s.log.Debug("task created", logx.Int64("id", created.ID), logx.String("title", created.Title))
	return created, nil
}

func (s *Service) Get(ctx context.Context, id int64) (Task, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) List(ctx context.Context) ([]Task, error) {
	return s.repo.List(ctx)
}

// Update applies a partial update. The store re-validates the combined
// record, so an invalid combination (recurrence without due date) is rejected
// as a whole. A due-date change resets ReminderFired so the new occurrence
// gets its own notification.
func (s *Service) Update(ctx context.Context, id int64, p Patch) (Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.repo.Get(ctx, id)
	if err != nil {
		return Task{}, err
	}

	if p.Title != nil {
		t.Title = *p.Title
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.Priority != nil {
		t.Priority = *p.Priority
	}
	if p.Tags != nil {
		t.Tags = *p.Tags
	}
	if p.Recurrence != nil {
		t.Recurrence = *p.Recurrence
	}

	dueChanged := false
	if p.ClearDue {
		if t.DueAt != nil {
			dueChanged = true
		}
		t.DueAt = nil
	} else if p.DueAt != nil {
		if t.DueAt == nil || !t.DueAt.Equal(*p.DueAt) {
			dueChanged = true
		}
		due := *p.DueAt
		t.DueAt = &due
	}
	if dueChanged {
		t.ReminderFired = false
	}

	if p.ClearReminder {
		t.ReminderOffset = nil
		t.ReminderFired = false
	} else if p.ReminderOffset != nil {
		off := *p.ReminderOffset
		t.ReminderOffset = &off
		t.ReminderFired = false
	}

	updated, err := s.repo.Put(ctx, t)
	if err != nil {
		return Task{}, err
	}
	s.publish(eventbus.TypeTaskUpdated, updated)
	return updated, nil
}

// Delete removes the task. The reminder scheduler re-reads store state every
// tick, so removal also cancels any pending reminder for the ID.
func (s *Service) Delete(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.publish(eventbus.TypeTaskDeleted, Task{ID: id})
	s.log.Debug("task deleted", logx.Int64("id", id))
	return nil
}

// Complete marks the task complete. For recurring tasks it additionally
// creates the successor occurrence (due date computed from the old due date,
// all other fields copied) and returns it as the second value; the old
// instance is kept as closed history, marked Superseded.
func (s *Service) Complete(ctx context.Context, id int64) (Task, *Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.repo.Get(ctx, id)
	if err != nil {
		return Task{}, nil, err
	}
	if t.Status == StatusComplete {
		return Task{}, nil, fmt.Errorf("%w: task %d is already complete", ErrInvalidState, id)
	}

	now := s.now()
	recurring := t.Recurrence != RecurNone && t.DueAt != nil

	// The successor is created before the old record is touched: if its
	// Create fails (durable backend I/O), the operation fails whole and the
	// old instance stays untouched, reminder included.
	var created Task
	if recurring {
		nextDue := NextDue(*t.DueAt, t.Recurrence)
		successor := Task{
			Title:          t.Title,
			Description:    t.Description,
			Status:         StatusIncomplete,
			Priority:       t.Priority,
			Tags:           t.Tags,
			CreatedAt:      now,
			DueAt:          &nextDue,
			Recurrence:     t.Recurrence,
			ReminderOffset: t.ReminderOffset,
			ReminderFired:  false,
			PredecessorID:  t.ID,
		}
		var err error
		created, err = s.repo.Create(ctx, successor)
		if err != nil {
			return Task{}, nil, fmt.Errorf("rollover of task %d: %w", t.ID, err)
		}
	}

	t.Status = StatusComplete
	t.CompletedAt = &now
	if recurring {
		t.Superseded = true
	}
	old, err := s.repo.Put(ctx, t)
	if err != nil {
		// The successor must not outlive a failed completion.
		if recurring {
			if derr := s.repo.Delete(ctx, created.ID); derr != nil {
				s.log.Error("rollover compensation failed",
					logx.Int64("id", t.ID), logx.Int64("successor", created.ID), logx.Err(derr))
			}
		}
		return Task{}, nil, err
	}

	if !recurring {
		s.publish(eventbus.TypeTaskCompleted, old)
		s.log.Debug("task completed", logx.Int64("id", old.ID))
		return old, nil, nil
	}

	s.publish(eventbus.TypeTaskCompleted, old)
	s.publish(eventbus.TypeTaskRolledOver, created)
	s.log.Debug("task rolled over",
		logx.Int64("id", old.ID),
		logx.Int64("successor", created.ID),
		logx.Time("next_due", *created.DueAt))
	return old, &created, nil
}

// Uncomplete reverts a completed task to incomplete. Superseded instances are
// closed history (a successor already exists) and cannot be reopened.
func (s *Service) Uncomplete(ctx context.Context, id int64) (Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.repo.Get(ctx, id)
	if err != nil {
		return Task{}, err
	}
	if t.Status != StatusComplete {
		return Task{}, fmt.Errorf("%w: task %d is not complete", ErrInvalidState, id)
	}
	if t.Superseded {
		return Task{}, fmt.Errorf("%w: task %d was superseded by a recurrence rollover", ErrInvalidState, id)
	}

	t.Status = StatusIncomplete
	t.CompletedAt = nil
	updated, err := s.repo.Put(ctx, t)
	if err != nil {
		return Task{}, err
	}
	s.publish(eventbus.TypeTaskUpdated, updated)
	return updated, nil
}

// SetReminder configures a reminder offset (duration before DueAt). Setting
// it resets ReminderFired, so the current occurrence becomes pending again.
// A reminder on a task without a due date is allowed but inert.
func (s *Service) SetReminder(ctx context.Context, id int64, offset time.Duration) (Task, error) {
	if offset <= 0 {
		return Task{}, fmt.Errorf("%w: reminder offset must be > 0", ErrValidation)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.repo.Get(ctx, id)
	if err != nil {
		return Task{}, err
	}
	t.ReminderOffset = &offset
	t.ReminderFired = false
	updated, err := s.repo.Put(ctx, t)
	if err != nil {
		return Task{}, err
	}
	s.publish(eventbus.TypeTaskUpdated, updated)
	return updated, nil
}

func (s *Service) ClearReminder(ctx context.Context, id int64) (Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.repo.Get(ctx, id)
	if err != nil {
		return Task{}, err
	}
	t.ReminderOffset = nil
	t.ReminderFired = false
	updated, err := s.repo.Put(ctx, t)
	if err != nil {
		return Task{}, err
	}
	s.publish(eventbus.TypeTaskUpdated, updated)
	return updated, nil
}

// MarkReminderFired claims the fired flag for the reminder scheduler. It
// holds the service mutex, so the claim cannot land inside a foreground
// Get-mutate-Put window and be lost to the write-back.
func (s *Service) MarkReminderFired(ctx context.Context, id int64, due time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.repo.MarkReminderFired(ctx, id, due)
}

func (s *Service) publish(typ string, t Task) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(eventbus.Event{Type: typ, Data: t})
}
