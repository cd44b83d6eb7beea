package model

import "time"

// CheckIn is an append-only submission that adds one point to its team.
type CheckIn struct {
	ID        int64     `json:"id"`
	EventID   int64     `json:"event_id"`
	TeamID    int64     `json:"team_id"`
	UserID    int64     `json:"user_id"`
	Comment   string    `json:"comment"`
	PhotoURL  string    `json:"photo_url"`
	CreatedAt time.Time `json:"created_at"`
}

// User is a registered participant.
type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash []byte    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}
