package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/unclebandit/retention-backend/internal/controller"
	"github.com/unclebandit/retention-backend/internal/httpx"
	"github.com/unclebandit/retention-backend/internal/middleware"
)

type RouterConfig struct {
	JWTSecret       string
	Campaigns       *controller.CampaignController
	Notifications   *NotificationHandler
	MetricsGatherer prometheus.Gatherer
	RequestTimeout  time.Duration
}

// NewRouter wires every HTTP route. Only /health and /metrics are public.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(requestLogger)
	r.Use(chimw.Recoverer)
	if cfg.RequestTimeout > 0 {
		r.Use(chimw.Timeout(cfg.RequestTimeout))
	}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	gatherer := cfg.MetricsGatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Group(func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWTSecret))

		r.Post("/send-message", cfg.Campaigns.SendMessage)

		r.Route("/campaigns", func(r chi.Router) {
			r.Post("/", cfg.Campaigns.CreateCampaign)
			r.Get("/", cfg.Campaigns.ListCampaigns)
			r.Get("/{id}", cfg.Campaigns.GetCampaignDetails)
		})

		r.Route("/customers", func(r chi.Router) {
			r.Post("/", cfg.Campaigns.CreateCustomer)
			r.Get("/", cfg.Campaigns.ListCustomers)
		})

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", cfg.Notifications.GetNotifications)
			r.Post("/read-all", cfg.Notifications.MarkAllAsRead)
			r.Post("/refresh", cfg.Notifications.Refresh)
			r.Post("/{id}/read", cfg.Notifications.MarkAsRead)
			r.Delete("/session", cfg.Notifications.EndSession)
		})
	})

	return r
}
