package handler

import (
	"encoding/json"
	"net/http"

	"sras/internal/logger"
	"sras/internal/service"
)

type healthResponse struct {
	Status          string `json:"status"`
	FramesCaptured  uint64 `json:"framesCaptured"`
	FramesProcessed uint64 `json:"framesProcessed"`
	HasFrame        bool   `json:"hasFrame"`
}

// HealthHandler reports liveness and basic pipeline progress.
func HealthHandler(manager *service.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m := manager.GetMetrics()
		_, hasFrame := manager.GetLatestFrame().Snapshot()

		writeJSON(w, http.StatusOK, healthResponse{
			Status:          "ok",
			FramesCaptured:  m.FramesCaptured.Load(),
			FramesProcessed: m.FramesProcessed.Load(),
			HasFrame:        hasFrame,
		})
	}
}

// StatsHandler returns aggregate counts of stored violations.
func StatsHandler(manager *service.Manager, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := manager.GetViolationRepository().Stats(r.Context())
		if err != nil {
			logger.Error("Error querying violation stats: %v", err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, stats)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
