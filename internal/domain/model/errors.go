package model

import (
	"errors"
	"fmt"
)

// Error taxonomy. Every error returned by the domain wraps one of these.
var (
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrTaskFailure  = errors.New("task failed")
	ErrUnavailable  = errors.New("unavailable")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
)

// Specific kinds.
var (
	ErrEmptyName        = fmt.Errorf("%w: name must not be empty", ErrInvalidInput)
	ErrMissingTimeRange = fmt.Errorf("%w: start_time and end_time are required", ErrInvalidInput)
	ErrInvalidTimeRange = fmt.Errorf("%w: start time must be before end time", ErrInvalidInput)
	ErrInvalidLimit     = fmt.Errorf("%w: limit out of range", ErrInvalidInput)
	ErrCommentTooLong   = fmt.Errorf("%w: comment too long", ErrInvalidInput)
	ErrInvalidPhoto     = fmt.Errorf("%w: photo cannot be decoded", ErrInvalidInput)

	ErrEventNotFound = fmt.Errorf("%w: event not found", ErrNotFound)
	ErrTeamNotFound  = fmt.Errorf("%w: team not found", ErrNotFound)
	ErrUserNotFound  = fmt.Errorf("%w: user not found", ErrNotFound)
	ErrTaskNotFound  = fmt.Errorf("%w: task not found", ErrNotFound)
	ErrNoTeams       = fmt.Errorf("%w: user does not belong to any teams in this event", ErrNotFound)

	ErrEventNotActive = fmt.Errorf("%w: event not active", ErrConflict)
	ErrAlreadyMember  = fmt.Errorf("%w: user already in this team", ErrConflict)
	ErrTeamNameTaken  = fmt.Errorf("%w: team name already exists for this event", ErrConflict)
	ErrUserExists     = fmt.Errorf("%w: user already registered", ErrConflict)
	ErrTaskFinished   = fmt.Errorf("%w: task already finished", ErrConflict)

	ErrNotMember          = fmt.Errorf("%w: user does not belong to this team", ErrForbidden)
	ErrInvalidCredentials = fmt.Errorf("%w: invalid credentials", ErrUnauthorized)
	ErrInvalidToken       = fmt.Errorf("%w: invalid token", ErrUnauthorized)
)
