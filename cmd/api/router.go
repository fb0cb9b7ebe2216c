package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/FACorreiaa/mpesa-insights/pkg/httpx"
	"github.com/FACorreiaa/mpesa-insights/pkg/middleware"
)

// NewRouter builds the public HTTP surface.
func NewRouter(d *Dependencies) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestLogger(d.Logger))
	r.Use(middleware.AccessLog(d.Logger))
	r.Use(middleware.Recover(d.Logger))
	r.Use(middleware.CORS(d.Config.Server.CORSOrigins))
	r.Use(middleware.Tracing())
	r.Use(middleware.Metrics(d.Metrics))

	r.Get("/healthz", d.healthz)

	r.Route("/api/v1", func(r chi.Router) {
		d.ImportHandler.TaskRoutes(r)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RateLimit(d.Config.Server.RateLimitPerSecond, d.Config.Server.RateLimitBurst))

			d.ImportHandler.Routes(r)
			r.Route("/sessions/{sessionID}", func(r chi.Router) {
				d.SessionHandler.Routes(r)
				d.InsightsHandler.Routes(r)
			})
		})
	})

	return r
}

// NewMetricsRouter serves the Prometheus registry on its own listener.
func NewMetricsRouter(d *Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recover(d.Logger))
	r.Handle("/metrics", d.Metrics.Handler())
	return r
}

type healthResponse struct {
	Status   string    `json:"status"`
	Sessions int       `json:"sessions"`
	Tasks    int       `json:"tasks"`
	Time     time.Time `json:"time"`
}

func (d *Dependencies) healthz(w http.ResponseWriter, _ *http.Request) {
	httpx.WriteJSON(w, http.StatusOK, healthResponse{
		Status:   "ok",
		Sessions: d.Sessions.Len(),
		Tasks:    d.Tracker.Len(),
		Time:     time.Now().UTC(),
	})
}
