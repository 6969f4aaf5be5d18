package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/redis/go-redis/v9"

	hrest "xconfess-notify/internal/handler/http"
	wshandler "xconfess-notify/internal/handler/ws"
	"xconfess-notify/internal/middleware"
)

// SetupRoutes configures the HTTP routes for the notification service.
func SetupRoutes(
	r chi.Router,
	h *hrest.NotificationHandler,
	dlq *hrest.DLQHandler,
	wsHandler *wshandler.WSHandler,
	auth *middleware.AuthMiddleware,
	rdb *redis.Client,
) chi.Router {
	// ---- Global Middleware ----
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowedHeaders: []string{
			"Accept",
			"Authorization",
			"Content-Type",
			"X-CSRF-Token",
		},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Use(middleware.RateLimiter(rdb, 100, time.Minute, 10*time.Minute, "global"))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	// ============================================================
	// Notification routes (all require auth)
	// ============================================================
	r.Route("/api/v1/notifications", func(r chi.Router) {
		r.Use(auth.Require)

		r.Get("/", h.ListNotifications)
		r.Get("/unread/count", h.CountUnread)
		r.Patch("/{id}/read", h.MarkAsRead)
		r.Patch("/read-all", h.MarkAllAsRead)

		r.Get("/preferences", h.GetPreference)
		r.Put("/preferences", h.UpdatePreference)

		// Producer-facing event ingestion
		r.Post("/events", h.IngestEvent)

		// WebSocket endpoint
		r.Get("/ws", wsHandler.HandleNotifications)
	})

	// ============================================================
	// Dead-letter admin routes
	// ============================================================
	r.Route("/api/v1/admin/dead-letter-jobs", func(r chi.Router) {
		r.Use(auth.RequireAdmin)

		r.Get("/", dlq.ListDeadLetterJobs)
		r.Post("/{jobId}/replay", dlq.ReplayDeadLetterJob)
	})

	return r
}
