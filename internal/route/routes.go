package route

import (
	"net/http"

	"sras/internal/config"
	"sras/internal/handler"
	"sras/internal/logger"
	"sras/internal/middleware"
	"sras/internal/service"
)

// SetupRoutes registers the stream, event, metrics and status endpoints and
// wraps the mux with request logging.
func SetupRoutes(manager *service.Manager, cfg *config.Config, logger *logger.Logger) http.Handler {
	mux := http.NewServeMux()

	// Live annotated stream
	mux.Handle("GET /video", manager.GetPublisher())

	// API endpoints
	mux.HandleFunc("GET /api/events", handler.EventsWebsocketHandler(manager, logger))
	mux.HandleFunc("GET /api/stats", handler.StatsHandler(manager, logger))

	// Operations
	mux.Handle("GET /metrics", manager.GetMetrics().Handler())
	mux.HandleFunc("GET /healthz", handler.HealthHandler(manager))
	mux.HandleFunc("GET /logs/{level}", handler.ShowLogsHandler(cfg))

	return middleware.RequestLogger(logger)(mux)
}
