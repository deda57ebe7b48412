package task

import "errors"

var (
	ErrDuplicateID       = errors.New("task: duplicate id")
	ErrNotFound          = errors.New("task: not found")
	ErrInvalidSchedule   = errors.New("task: invalid schedule")
	ErrExecution         = errors.New("task: execution failed")
	ErrLockConflict      = errors.New("task: daemon lock held by a running process")
	ErrStorageCorruption = errors.New("task: storage corrupted")
	ErrInvalidTask       = errors.New("task: invalid definition")
)
