package api

import (
	"net/http"

	"github.com/okian/checkin/internal/domain/model"
)

type rankingResponse struct {
	Rankings []model.RankingEntry `json:"rankings"`
}

// RankingHandler handles ranking requests.
type RankingHandler struct {
	deps  RankingService
	codec *codec
}

// NewRankingHandler creates a new ranking handler.
func NewRankingHandler(deps RankingService, c *codec) *RankingHandler {
	return &RankingHandler{deps: deps, codec: c}
}

// HandleRanking handles GET /api/event/{eventId}/ranking.
func (h *RankingHandler) HandleRanking(w http.ResponseWriter, r *http.Request) {
	eventID, err := pathID(r, "eventId")
	if err != nil {
		h.codec.writeError(r.Context(), w, err)
		return
	}
	entries, err := h.deps.Ranking(r.Context(), eventID)
	if err != nil {
		h.codec.writeError(r.Context(), w, err)
		return
	}
	h.codec.writeJSON(w, http.StatusOK, rankingResponse{Rankings: nonNil(entries)})
}
