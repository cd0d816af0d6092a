package api

import (
	"net/http"
	"time"

	"jobboard-realtime/internal/common/logger"
	"jobboard-realtime/internal/common/observability"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type RouterOptions struct {
	AllowedOrigins []string
	// Observability is optional.
	Observability *observability.Observability
}

// NewRouter mounts the handler. No request timeout middleware is installed
// because the stream endpoint is long-lived.
func NewRouter(h *Handler, opts RouterOptions) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(h.logger))
	r.Use(middleware.Recoverer)
	if opts.Observability != nil {
		r.Use(opts.Observability.Middleware)
	}

	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Last-Event-ID"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/health", h.Health)
	r.Get("/ready", h.Ready)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Route("/notifications", func(r chi.Router) {
			r.Post("/send", h.SendNotification)
			r.Get("/stream", h.StreamNotifications)
		})

		r.Route("/analytics", func(r chi.Router) {
			r.Get("/visitors", h.VisitorAnalytics)
			r.Get("/realtime", h.RealtimeVisitors)
			r.Get("/pages", h.PageAnalytics)
			r.Post("/track-event", h.TrackEvent)
		})

		r.Post("/events/{channel}", h.PublishEvent)
	})

	return r
}

func requestLogger(log logger.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			log.Debug("http request", map[string]interface{}{
				"method":     r.Method,
				"path":       r.URL.Path,
				"status":     ww.Status(),
				"duration":   time.Since(start).String(),
				"remoteAddr": r.RemoteAddr,
				"requestId":  middleware.GetReqID(r.Context()),
			})
		})
	}
}
