package api

import (
	"net/http"

	"github.com/bytedance/sonic"
)

// StatsHandler handles stats requests.
type StatsHandler struct {
	statsProvider StatusProvider
}

// NewStatsHandler creates a new stats handler.
func NewStatsHandler(statsProvider StatusProvider) *StatsHandler {
	return &StatsHandler{statsProvider: statsProvider}
}

// HandleStats handles GET /stats requests.
func (h *StatsHandler) HandleStats(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	stats := h.statsProvider.GetStats()
	_ = sonic.ConfigDefault.NewEncoder(w).Encode(stats)
}
