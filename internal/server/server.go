package server

import (
	"encoding/json"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"archRenew/internal/config"
	"archRenew/internal/events"
	"archRenew/internal/logging"
	"archRenew/internal/metrics"
	"archRenew/internal/restoration"
)

// ClientConfig is exposed to the dashboard. It only carries presentation keys.
type ClientConfig struct {
	GeoapifyAPIKey string `json:"geoapify_api_key"`
	MapillaryToken string `json:"mapillary_token"`
	Provider       string `json:"ai_provider"`
	AIAvailable    bool   `json:"ai_available"`
}

// Deps bundles everything the router serves.
type Deps struct {
	Restorations restoration.Handler
	Events       *events.Broker
	Metrics      *metrics.Metrics
	Client       ClientConfig
	StaticDir    string
	Logger       *zerolog.Logger
}

// New constructs the HTTP server with routes and middleware.
func New(port string, timeouts config.HTTPConfig, deps Deps) *http.Server {
	return &http.Server{
		Addr:         ":" + port,
		Handler:      NewRouter(deps),
		ReadTimeout:  timeouts.ReadTimeout,
		WriteTimeout: timeouts.WriteTimeout,
		IdleTimeout:  timeouts.IdleTimeout,
	}
}

// NewRouter wires middleware and routes.
func NewRouter(deps Deps) http.Handler {
	log := logging.OrNop(deps.Logger)

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(accessLog(log))
	router.Use(middleware.Recoverer)

	router.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	router.Handle("/metrics", deps.Metrics.Handler())

	router.Post("/restore", deps.Restorations.Create)
	router.Get("/results/{id}", deps.Restorations.Get)

	router.Route("/api", func(r chi.Router) {
		r.Route("/restorations", func(r chi.Router) {
			r.Post("/", deps.Restorations.Create)
			r.Get("/{id}", deps.Restorations.Get)
			r.Get("/{id}/images/{kind}", deps.Restorations.Image)
		})
		r.Get("/styles", deps.Restorations.Styles)
		r.Get("/client-config", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(deps.Client)
		})
		if deps.Events != nil {
			r.Get("/events", deps.Events.ServeHTTP)
		}
	})

	if deps.StaticDir != "" {
		if info, err := os.Stat(deps.StaticDir); err == nil && info.IsDir() {
			router.Handle("/*", http.FileServer(http.Dir(deps.StaticDir)))
		} else {
			log.Warn().Str("dir", deps.StaticDir).Msg("static directory not found, dashboard disabled")
		}
	}

	return router
}

func accessLog(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			log.Info().
				Str("request_id", middleware.GetReqID(r.Context())).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", status).
				Int("bytes", ww.BytesWritten()).
				Dur("duration", time.Since(start)).
				Msg("http request")
		})
	}
}
