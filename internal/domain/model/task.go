package model

import (
	"encoding/json"
	"time"
)

// TaskKind names the handler that executes a task.
type TaskKind string

// Known task kinds.
const (
	TaskCreateEvent TaskKind = "create_event"
)

// TaskStatus is the lifecycle state of a task.
type TaskStatus string

// Task states. InProgress is internal and reported to clients as Pending.
const (
	TaskPending    TaskStatus = "PENDING"
	TaskInProgress TaskStatus = "IN_PROGRESS"
	TaskSuccess    TaskStatus = "SUCCESS"
	TaskFailure    TaskStatus = "FAILURE"
)

// Terminal reports whether no further transition is allowed.
func (s TaskStatus) Terminal() bool {
	return s == TaskSuccess || s == TaskFailure
}

// Public hides the claim state from polling clients.
func (s TaskStatus) Public() TaskStatus {
	if s == TaskInProgress {
		return TaskPending
	}
	return s
}

// Task is an asynchronous job record.
type Task struct {
	ID        string          `json:"id"`
	Kind      TaskKind        `json:"kind"`
	Status    TaskStatus      `json:"status"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     string          `json:"error,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
	ClaimedAt time.Time       `json:"claimed_at,omitempty"`
}

// EventResult is the result payload of a create_event task.
type EventResult struct {
	EventID int64 `json:"event_id"`
}
