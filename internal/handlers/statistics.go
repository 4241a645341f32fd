package handlers

import (
	"net/http"

	"typedrill-backend/internal/middleware"
	"typedrill-backend/internal/services"
)

type StatisticsHandler struct {
	statistics *services.StatisticsService
}

func NewStatisticsHandler(statistics *services.StatisticsService) *StatisticsHandler {
	return &StatisticsHandler{statistics: statistics}
}

func (h *StatisticsHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	agg, err := h.statistics.Get(r.Context(), userID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"statistics": agg,
	})
}
