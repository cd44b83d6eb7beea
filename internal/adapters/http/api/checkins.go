package api

import (
	"encoding/base64"
	"net/http"
	"strings"

	"github.com/okian/checkin/internal/domain/checkin"
	"github.com/okian/checkin/internal/domain/model"
)

type uploadRequest struct {
	UserID  int64  `json:"user_id" validate:"omitempty,gt=0"`
	TeamID  int64  `json:"team_id" validate:"omitempty,gt=0"`
	Comment string `json:"comment" validate:"max=500"`
	// Photo is base64, optionally as a data URL.
	Photo string `json:"photo"`
}

// checkInRequest is the photo-less check-in for one named team.
type checkInRequest struct {
	UserID  int64  `json:"user_id" validate:"omitempty,gt=0"`
	TeamID  int64  `json:"team_id" validate:"required,gt=0"`
	Content string `json:"content" validate:"max=500"`
}

type checkInResponse struct {
	Message   string `json:"message"`
	CheckInID int64  `json:"checkin_id"`
}

type uploadResponse struct {
	Message  string          `json:"message"`
	CheckIns []model.CheckIn `json:"checkins"`
}

type uploadsResponse struct {
	Uploads []model.CheckIn `json:"uploads"`
}

// CheckInsHandler handles check-in uploads and listings.
type CheckInsHandler struct {
	deps     CheckInService
	identity *identity
	codec    *codec
}

// NewCheckInsHandler creates a new check-ins handler.
func NewCheckInsHandler(deps CheckInService, id *identity, c *codec) *CheckInsHandler {
	return &CheckInsHandler{deps: deps, identity: id, codec: c}
}

// HandleUpload handles POST /api/event/{eventId}/upload.
func (h *CheckInsHandler) HandleUpload(w http.ResponseWriter, r *http.Request) {
	eventID, err := pathID(r, "eventId")
	if err != nil {
		h.codec.writeError(r.Context(), w, err)
		return
	}
	var req uploadRequest
	if err := h.codec.decode(w, r, &req); err != nil {
		h.codec.writeError(r.Context(), w, err)
		return
	}
	userID, err := h.identity.actor(r, req.UserID)
	if err != nil {
		h.codec.writeError(r.Context(), w, err)
		return
	}
	photo, err := decodePhoto(req.Photo)
	if err != nil {
		h.codec.writeError(r.Context(), w, err)
		return
	}

	rows, err := h.deps.Submit(r.Context(), checkin.SubmitInput{
		EventID: eventID,
		TeamID:  req.TeamID,
		UserID:  userID,
		Comment: req.Comment,
		Photo:   photo,
	})
	if err != nil {
		h.codec.writeError(r.Context(), w, err)
		return
	}
	h.codec.writeJSON(w, http.StatusOK, uploadResponse{Message: "Check-in recorded", CheckIns: rows})
}

// HandleCheckIn handles POST /api/event/{eventId}/checkin. It is the upload
// without a photo, and the team must be named.
func (h *CheckInsHandler) HandleCheckIn(w http.ResponseWriter, r *http.Request) {
	eventID, err := pathID(r, "eventId")
	if err != nil {
		h.codec.writeError(r.Context(), w, err)
		return
	}
	var req checkInRequest
	if err := h.codec.decode(w, r, &req); err != nil {
		h.codec.writeError(r.Context(), w, err)
		return
	}
	userID, err := h.identity.actor(r, req.UserID)
	if err != nil {
		h.codec.writeError(r.Context(), w, err)
		return
	}

	rows, err := h.deps.Submit(r.Context(), checkin.SubmitInput{
		EventID: eventID,
		TeamID:  req.TeamID,
		UserID:  userID,
		Comment: req.Content,
	})
	if err != nil {
		h.codec.writeError(r.Context(), w, err)
		return
	}
	h.codec.writeJSON(w, http.StatusOK, checkInResponse{Message: "Check-in recorded successfully", CheckInID: rows[0].ID})
}

// decodePhoto accepts plain base64 or a data URL. Empty means no photo.
func decodePhoto(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	if strings.HasPrefix(s, "data:") {
		i := strings.IndexByte(s, ',')
		if i < 0 {
			return nil, model.ErrInvalidPhoto
		}
		s = s[i+1:]
	}
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, model.ErrInvalidPhoto
	}
	return data, nil
}

// HandleList handles GET /api/event/{eventId}/upload/list?limit=N.
func (h *CheckInsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	eventID, err := pathID(r, "eventId")
	if err != nil {
		h.codec.writeError(r.Context(), w, err)
		return
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		h.codec.writeError(r.Context(), w, err)
		return
	}
	rows, err := h.deps.ListRecent(r.Context(), eventID, limit)
	if err != nil {
		h.codec.writeError(r.Context(), w, err)
		return
	}
	h.codec.writeJSON(w, http.StatusOK, uploadsResponse{Uploads: nonNil(rows)})
}
