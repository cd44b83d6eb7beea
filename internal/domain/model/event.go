// Package model contains domain models passed between layers.
package model

import "time"

// Event is a time-boxed contest window. It is immutable once provisioned.
type Event struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	StartTime   time.Time `json:"start_time"`
	EndTime     time.Time `json:"end_time"`
	CreatedAt   time.Time `json:"created_at"`

	// TaskID is the provisioning task that created the event.
	TaskID string `json:"-"`
}

// IsActive reports whether now falls inside [StartTime, EndTime].
func (e Event) IsActive(now time.Time) bool {
	return !now.Before(e.StartTime) && !now.After(e.EndTime)
}

// NewEvent carries the fields needed to provision an event.
type NewEvent struct {
	Name        string    `json:"name"`
	Description string    `json:"description"`
	StartTime   time.Time `json:"start_time"`
	EndTime     time.Time `json:"end_time"`
}

// Validate checks the synchronous invariants of an event request.
func (n NewEvent) Validate() error {
	if n.Name == "" {
		return ErrEmptyName
	}
	if n.StartTime.IsZero() || n.EndTime.IsZero() {
		return ErrMissingTimeRange
	}
	if !n.StartTime.Before(n.EndTime) {
		return ErrInvalidTimeRange
	}
	return nil
}
