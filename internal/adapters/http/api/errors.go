package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/okian/checkin/internal/domain/model"
)

// Sentinel kinds for API errors.
var (
	ErrBodyTooLarge = fmt.Errorf("%w: request body too large", model.ErrInvalidInput)
	ErrMissingToken = fmt.Errorf("%w: missing bearer token", model.ErrUnauthorized)
	ErrUserMismatch = fmt.Errorf("%w: user_id does not match the token", model.ErrForbidden)
)

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// public lists errors whose text is safe to return verbatim.
var public = []error{
	ErrBodyTooLarge, ErrMissingToken, ErrUserMismatch,
	model.ErrEmptyName, model.ErrMissingTimeRange, model.ErrInvalidTimeRange,
	model.ErrInvalidLimit, model.ErrCommentTooLong, model.ErrInvalidPhoto,
	model.ErrEventNotFound, model.ErrTeamNotFound, model.ErrUserNotFound,
	model.ErrTaskNotFound, model.ErrNoTeams,
	model.ErrEventNotActive, model.ErrAlreadyMember, model.ErrTeamNameTaken, model.ErrUserExists,
	model.ErrNotMember, model.ErrInvalidCredentials, model.ErrInvalidToken,
}

// classify maps an error onto an HTTP status and a stable code.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, ErrBodyTooLarge):
		return http.StatusRequestEntityTooLarge, "body_too_large"
	// repeat joins and name clashes keep the status clients already handle
	case errors.Is(err, model.ErrAlreadyMember):
		return http.StatusBadRequest, "already_member"
	case errors.Is(err, model.ErrTeamNameTaken):
		return http.StatusBadRequest, "team_name_taken"
	case errors.Is(err, model.ErrUserExists):
		return http.StatusBadRequest, "user_exists"
	case errors.Is(err, model.ErrInvalidInput):
		return http.StatusBadRequest, "invalid_input"
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, model.ErrEventNotActive):
		return http.StatusConflict, "event_not_active"
	case errors.Is(err, model.ErrConflict):
		return http.StatusConflict, "conflict"
	case errors.Is(err, model.ErrUnauthorized):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, model.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, model.ErrUnavailable):
		return http.StatusServiceUnavailable, "unavailable"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// message picks the client-facing text for err.
func message(err error, status int) string {
	if status >= http.StatusInternalServerError {
		return http.StatusText(status)
	}
	for _, known := range public {
		if errors.Is(err, known) {
			return known.Error()
		}
	}
	return err.Error()
}

// detailError carries a message built at the edge, such as validation output.
type detailError struct {
	kind error
	msg  string
}

func (e *detailError) Error() string { return e.kind.Error() + ": " + e.msg }
func (e *detailError) Unwrap() error { return e.kind }

func invalid(msg string) error {
	return &detailError{kind: model.ErrInvalidInput, msg: msg}
}
