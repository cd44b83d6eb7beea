package model

import "time"

// Team belongs to exactly one event. Score only grows, one unit per check-in.
type Team struct {
	ID          int64     `json:"id"`
	EventID     int64     `json:"event_id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Score       int64     `json:"score"`
	CreatedAt   time.Time `json:"created_at"`
}

// Membership links a user to a team inside an event. The triple is unique.
type Membership struct {
	EventID  int64     `json:"event_id"`
	TeamID   int64     `json:"team_id"`
	UserID   int64     `json:"user_id"`
	JoinedAt time.Time `json:"joined_at"`
}

// Standing is the storage-side view of a team used to build rankings.
type Standing struct {
	TeamID   int64
	TeamName string
	Score    int64
	TeamSize int
}
