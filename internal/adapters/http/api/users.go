package api

import (
	"net/http"
	"time"
)

type registerRequest struct {
	Username string `json:"username" validate:"required,min=3,max=50"`
	Email    string `json:"email" validate:"required,email,max=255"`
	Password string `json:"password" validate:"required,min=6,max=72"`
}

type registerResponse struct {
	Message string `json:"message"`
	UserID  int64  `json:"user_id"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type loginResponse struct {
	Message   string    `json:"message"`
	UserID    int64     `json:"user_id"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

type messageResponse struct {
	Message string `json:"message"`
}

// UsersHandler handles registration and sessions.
type UsersHandler struct {
	deps  UserService
	codec *codec
}

// NewUsersHandler creates a new users handler.
func NewUsersHandler(deps UserService, c *codec) *UsersHandler {
	return &UsersHandler{deps: deps, codec: c}
}

// HandleRegister handles POST /api/user/register.
func (h *UsersHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := h.codec.decode(w, r, &req); err != nil {
		h.codec.writeError(r.Context(), w, err)
		return
	}
	user, err := h.deps.Register(r.Context(), req.Username, req.Email, req.Password)
	if err != nil {
		h.codec.writeError(r.Context(), w, err)
		return
	}
	h.codec.writeJSON(w, http.StatusOK, registerResponse{Message: "User registered", UserID: user.ID})
}

// HandleLogin handles POST /api/user/login.
func (h *UsersHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := h.codec.decode(w, r, &req); err != nil {
		h.codec.writeError(r.Context(), w, err)
		return
	}
	session, err := h.deps.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.codec.writeError(r.Context(), w, err)
		return
	}
	h.codec.writeJSON(w, http.StatusOK, loginResponse{
		Message:   "Login successful",
		UserID:    session.UserID,
		Token:     session.Token,
		ExpiresAt: session.ExpiresAt,
	})
}

// HandleLogout handles POST /api/user/logout.
func (h *UsersHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	token := bearer(r)
	if token == "" {
		h.codec.writeError(r.Context(), w, ErrMissingToken)
		return
	}
	if err := h.deps.Logout(r.Context(), token); err != nil {
		h.codec.writeError(r.Context(), w, err)
		return
	}
	h.codec.writeJSON(w, http.StatusOK, messageResponse{Message: "Logged out"})
}
