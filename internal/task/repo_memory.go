package task

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryRepo is the in-memory Repository. A map gives O(1) lookup by ID; a
// separate insertion-order slice keeps List stable across deletions.
//
// All operations take the repo lock, so a mutation is atomic with respect to
// the reminder scheduler's full scan.
type MemoryRepo struct {
	mu     sync.RWMutex
	tasks  map[int64]Task
	order  []int64
	nextID int64
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{tasks: make(map[int64]Task)}
}

func (r *MemoryRepo) Create(ctx context.Context, t Task) (Task, error) {
	_ = ctx

	t, err := PrepareNew(t, time.Now())
	if err != nil {
		return Task{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// nextID only ever grows, so deleted IDs are never reused.
	r.nextID++
	t.ID = r.nextID
	r.tasks[t.ID] = t.Clone()
	r.order = append(r.order, t.ID)
	return t, nil
}

func (r *MemoryRepo) Get(ctx context.Context, id int64) (Task, error) {
	_ = ctx

	r.mu.RLock()
	t, ok := r.tasks[id]
	r.mu.RUnlock()

	if !ok {
		return Task{}, fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	return t.Clone(), nil
}

func (r *MemoryRepo) Put(ctx context.Context, t Task) (Task, error) {
	_ = ctx

	t.Tags = NormalizeTags(t.Tags)
	if err := t.Validate(); err != nil {
		return Task{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.tasks[t.ID]; !ok {
		return Task{}, fmt.Errorf("%w: id %d", ErrNotFound, t.ID)
	}
	r.tasks[t.ID] = t.Clone()
	return t, nil
}

func (r *MemoryRepo) Delete(ctx context.Context, id int64) error {
	_ = ctx

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.tasks[id]; !ok {
		return fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	delete(r.tasks, id)
	for i, oid := range r.order {
		if oid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return nil
}

func (r *MemoryRepo) List(ctx context.Context) ([]Task, error) {
	_ = ctx

	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Task, 0, len(r.order))
	for _, id := range r.order {
		if t, ok := r.tasks[id]; ok {
			out = append(out, t.Clone())
		}
	}
	return out, nil
}

func (r *MemoryRepo) MarkReminderFired(ctx context.Context, id int64, due time.Time) (bool, error) {
	_ = ctx

	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tasks[id]
	if !ok {
		return false, fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	// A closed record never fires, even if it was still open when the
	// scheduler listed it.
	if t.ReminderFired || t.Superseded || t.Status == StatusComplete {
		return false, nil
	}
	if t.DueAt == nil || !t.DueAt.Equal(due) {
		return false, nil
	}
	t.ReminderFired = true
	r.tasks[id] = t
	return true, nil
}

func (r *MemoryRepo) Close() error { return nil }
