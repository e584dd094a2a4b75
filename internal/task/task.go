package task

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

type Status string

const (
	StatusIncomplete Status = "incomplete"
	StatusInProgress Status = "in_progress"
	StatusComplete   Status = "complete"
)

func (s Status) valid() bool {
	switch s {
	case StatusIncomplete, StatusInProgress, StatusComplete:
		return true
	}
	return false
}

type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

func (p Priority) valid() bool {
	switch p {
	case PriorityHigh, PriorityMedium, PriorityLow:
		return true
	}
	return false
}

type Recurrence string

const (
	RecurNone     Recurrence = "none"
	RecurDaily    Recurrence = "daily"
	RecurWeekly   Recurrence = "weekly"
	RecurBiweekly Recurrence = "biweekly"
	RecurMonthly  Recurrence = "monthly"
	RecurYearly   Recurrence = "yearly"
)

func (r Recurrence) valid() bool {
	switch r {
	case RecurNone, RecurDaily, RecurWeekly, RecurBiweekly, RecurMonthly, RecurYearly:
		return true
	}
	return false
}

// Task is one occurrence of a (possibly recurring) task.
//
// Completing a recurring task never mutates DueAt on the same record; a
// successor record is created instead and the old one is marked Superseded.
type Task struct {
	ID          int64      `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Status      Status     `json:"status"`
	Priority    Priority   `json:"priority"`
	Tags        []string   `json:"tags,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	DueAt       *time.Time `json:"due_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Recurrence  Recurrence `json:"recurrence"`

	// ReminderOffset is how long before DueAt a notification should fire.
	// Without DueAt it is inert.
	ReminderOffset *time.Duration `json:"reminder_offset,omitempty"`
	// ReminderFired is true once a notification was dispatched for the
	// current DueAt; it resets whenever DueAt changes.
	ReminderFired bool `json:"reminder_fired"`

	// Superseded marks a completed recurring instance that has a successor.
	// Superseded records are closed history and cannot be reopened.
	Superseded    bool  `json:"superseded,omitempty"`
	PredecessorID int64 `json:"predecessor_id,omitempty"`
}

// PrepareNew fills defaults for a record about to be created (status
// incomplete, priority medium, recurrence none, CreatedAt=now), normalizes
// tags, and validates. Both repository implementations go through it so they
// accept and reject exactly the same input.
func PrepareNew(t Task, now time.Time) (Task, error) {
	t.Tags = NormalizeTags(t.Tags)
	if t.Status == "" {
		t.Status = StatusIncomplete
	}
	if t.Priority == "" {
		t.Priority = PriorityMedium
	}
	if t.Recurrence == "" {
		t.Recurrence = RecurNone
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	if err := t.Validate(); err != nil {
		return Task{}, err
	}
	return t, nil
}

// Validate checks the task's domain invariants. Repositories call it before
// storing, so a durable backend and the in-memory one reject the same input.
func (t Task) Validate() error {
	if strings.TrimSpace(t.Title) == "" {
		return fmt.Errorf("%w: title must not be empty", ErrValidation)
	}
	if !t.Status.valid() {
		return fmt.Errorf("%w: unknown status %q", ErrValidation, t.Status)
	}
	if !t.Priority.valid() {
		return fmt.Errorf("%w: unknown priority %q", ErrValidation, t.Priority)
	}
	if !t.Recurrence.valid() {
		return fmt.Errorf("%w: unknown recurrence %q", ErrValidation, t.Recurrence)
	}
	if t.Recurrence != RecurNone && t.DueAt == nil {
		return fmt.Errorf("%w: recurrence %q requires a due date", ErrValidation, t.Recurrence)
	}
	if t.ReminderOffset != nil && *t.ReminderOffset <= 0 {
		return fmt.Errorf("%w: reminder offset must be > 0", ErrValidation)
	}
	return nil
}

// Clone returns a deep copy so repository callers can't alias stored state.
func (t Task) Clone() Task {
	cp := t
	if t.Tags != nil {
		cp.Tags = append([]string(nil), t.Tags...)
	}
	if t.DueAt != nil {
		due := *t.DueAt
		cp.DueAt = &due
	}
	if t.CompletedAt != nil {
		done := *t.CompletedAt
		cp.CompletedAt = &done
	}
	if t.ReminderOffset != nil {
		off := *t.ReminderOffset
		cp.ReminderOffset = &off
	}
	return cp
}

// NormalizeTags trims, drops empties and collapses duplicates. The result is
// sorted so tag sets compare stably regardless of input order.
func NormalizeTags(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	if len(out) == 0 {
		return nil
	}
	sort.Strings(out)
	return out
}
