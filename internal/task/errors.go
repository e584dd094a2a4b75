package task

import "errors"

var (
	// ErrNotFound is returned when no task exists for the given ID.
	ErrNotFound = errors.New("task not found")
	// ErrValidation is returned for malformed input (empty title, recurrence
	// without due date, non-positive reminder offset).
	ErrValidation = errors.New("task validation failed")
	// ErrInvalidState is returned for operations that conflict with the task's
	// lifecycle (completing an already-complete task, reopening a superseded
	// recurring instance).
	ErrInvalidState = errors.New("invalid task state")
)
