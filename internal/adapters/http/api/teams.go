package api

import (
	"net/http"

	"github.com/okian/checkin/internal/domain/model"
)

type createTeamRequest struct {
	Name        string `json:"name" validate:"required,min=3,max=100"`
	Description string `json:"description" validate:"max=500"`
}

type createTeamResponse struct {
	TeamID int64      `json:"team_id"`
	Team   model.Team `json:"team"`
}

// joinRequest serves both join routes. team_id is read from the path when
// the route names it.
type joinRequest struct {
	UserID int64 `json:"user_id" validate:"omitempty,gt=0"`
	TeamID int64 `json:"team_id" validate:"omitempty,gt=0"`
}

type joinResponse struct {
	Message       string `json:"message"`
	AlreadyMember bool   `json:"already_member"`
}

type teamsResponse struct {
	Teams []model.Team `json:"teams"`
}

type membersResponse struct {
	Members []string `json:"members"`
}

// TeamsHandler handles team and membership requests.
type TeamsHandler struct {
	deps     TeamService
	identity *identity
	codec    *codec
}

// NewTeamsHandler creates a new teams handler.
func NewTeamsHandler(deps TeamService, id *identity, c *codec) *TeamsHandler {
	return &TeamsHandler{deps: deps, identity: id, codec: c}
}

// HandleCreate handles POST /api/event/{eventId}/team/create.
func (h *TeamsHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	eventID, err := pathID(r, "eventId")
	if err != nil {
		h.codec.writeError(r.Context(), w, err)
		return
	}
	if err := h.identity.authorize(r); err != nil {
		h.codec.writeError(r.Context(), w, err)
		return
	}
	var req createTeamRequest
	if err := h.codec.decode(w, r, &req); err != nil {
		h.codec.writeError(r.Context(), w, err)
		return
	}

	team, err := h.deps.CreateTeam(r.Context(), eventID, req.Name, req.Description)
	if err != nil {
		h.codec.writeError(r.Context(), w, err)
		return
	}
	h.codec.writeJSON(w, http.StatusOK, createTeamResponse{TeamID: team.ID, Team: team})
}

// HandleJoin handles POST /api/event/{eventId}/teams/join and
// POST /api/event/{eventId}/team/{teamId}/join.
func (h *TeamsHandler) HandleJoin(w http.ResponseWriter, r *http.Request) {
	eventID, err := pathID(r, "eventId")
	if err != nil {
		h.codec.writeError(r.Context(), w, err)
		return
	}
	var req joinRequest
	if err := h.codec.decode(w, r, &req); err != nil {
		h.codec.writeError(r.Context(), w, err)
		return
	}

	teamID := req.TeamID
	if r.PathValue("teamId") != "" {
		if teamID, err = pathID(r, "teamId"); err != nil {
			h.codec.writeError(r.Context(), w, err)
			return
		}
	}
	if teamID == 0 {
		h.codec.writeError(r.Context(), w, invalid("team_id is required"))
		return
	}

	userID, err := h.identity.actor(r, req.UserID)
	if err != nil {
		h.codec.writeError(r.Context(), w, err)
		return
	}

	res, err := h.deps.Join(r.Context(), eventID, teamID, userID)
	if err != nil {
		h.codec.writeError(r.Context(), w, err)
		return
	}
	msg := "Joined team"
	if res.AlreadyMember {
		msg = "Already a member of this team"
	}
	h.codec.writeJSON(w, http.StatusOK, joinResponse{Message: msg, AlreadyMember: res.AlreadyMember})
}

// HandleList handles GET /api/event/{eventId}/teams.
func (h *TeamsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	eventID, err := pathID(r, "eventId")
	if err != nil {
		h.codec.writeError(r.Context(), w, err)
		return
	}
	teams, err := h.deps.ListTeamsForEvent(r.Context(), eventID)
	if err != nil {
		h.codec.writeError(r.Context(), w, err)
		return
	}
	h.codec.writeJSON(w, http.StatusOK, teamsResponse{Teams: nonNil(teams)})
}

// HandleUserTeams handles GET /api/user/{userId}/teams.
func (h *TeamsHandler) HandleUserTeams(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r, "userId")
	if err != nil {
		h.codec.writeError(r.Context(), w, err)
		return
	}
	teams, err := h.deps.ListTeamsForUser(r.Context(), userID)
	if err != nil {
		h.codec.writeError(r.Context(), w, err)
		return
	}
	h.codec.writeJSON(w, http.StatusOK, teamsResponse{Teams: nonNil(teams)})
}

// HandleMembers handles GET /api/team/{teamId}/members.
func (h *TeamsHandler) HandleMembers(w http.ResponseWriter, r *http.Request) {
	teamID, err := pathID(r, "teamId")
	if err != nil {
		h.codec.writeError(r.Context(), w, err)
		return
	}
	users, err := h.deps.TeamMembers(r.Context(), teamID)
	if err != nil {
		h.codec.writeError(r.Context(), w, err)
		return
	}
	names := make([]string, 0, len(users))
	for _, u := range users {
		names = append(names, u.Username)
	}
	h.codec.writeJSON(w, http.StatusOK, membersResponse{Members: names})
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
