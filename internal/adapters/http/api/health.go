package api

import (
	"context"
	"net/http"

	"github.com/bytedance/sonic"
)

// StatusProvider reports service health and statistics.
type StatusProvider interface {
	Ping(ctx context.Context) error
	GetStats() map[string]any
}

type healthResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// HealthHandler handles health check requests.
type HealthHandler struct {
	status StatusProvider
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(status StatusProvider) *HealthHandler {
	return &HealthHandler{status: status}
}

// HandleHealth handles GET /healthz. It answers 503 when storage is unreachable.
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	resp, code := healthResponse{Status: "ok"}, http.StatusOK
	if err := h.status.Ping(r.Context()); err != nil {
		resp, code = healthResponse{Status: "unavailable", Error: err.Error()}, http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = sonic.ConfigDefault.NewEncoder(w).Encode(resp)
}
