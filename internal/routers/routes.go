package routers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/Homeroom-Remote/homeroom-server/internal/handlers"
	"github.com/Homeroom-Remote/homeroom-server/internal/metrics"
)

func NewRouter(h *handlers.Handlers) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Logger,
		middleware.Recoverer,
	)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
		MaxAge:         300,
	}))
	r.Use(metrics.Middleware("meeting"))

	r.Get("/health", h.Health)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// Plain request/response endpoints get a timeout; the websocket
		// route must not, it is long-lived.
		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(60 * time.Second))
			r.Get("/webrtc/config", h.GetWebRTCConfig)
			r.Get("/meeting/{meetingId}/status", h.GetRoomStatus)
		})

		r.Get("/meeting/{meetingId}/ws", h.MeetingWS)
	})

	return r
}
