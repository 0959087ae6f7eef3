package httpserver

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fairyhunter13/subscription-fleet/internal/adapter/observability"
	obsconn "github.com/fairyhunter13/subscription-fleet/internal/observability"
	"github.com/fairyhunter13/subscription-fleet/internal/usecase"
)

// ScheduleView is the JSON shape returned by GET /admin/schedule.
type ScheduleView struct {
	ID        string    `json:"id"`
	Label     string    `json:"label"`
	StartedAt time.Time `json:"startedAt"`
}

// NewRouter builds the admin/status HTTP surface (spec §11.5): healthz,
// Prometheus metrics, and the schedule list/cancel endpoints the CLI's
// `schedule` subcommands talk to on a running `worker run` process.
// connections names every outbound adapter whose health should be exposed
// at GET /healthz/connections; it may be nil or partially populated.
func NewRouter(registry *usecase.ScheduleRegistry, shutdownTimeout time.Duration, connections map[string]*obsconn.ConnectionMetrics) http.Handler {
	r := chi.NewRouter()

	r.Use(Recoverer())
	r.Use(RequestID())
	r.Use(TraceMiddleware)
	r.Use(observability.HTTPMetricsMiddleware)
	r.Use(AccessLog())
	r.Use(SecurityHeaders)
	r.Use(cors.Handler(cors.Options{AllowedOrigins: []string{"*"}, AllowedMethods: []string{"GET", "POST"}}))
	r.Use(httprate.LimitByIP(60, time.Minute))
	r.Use(TimeoutMiddleware(shutdownTimeout))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/healthz/connections", handleConnectionHealth(connections))
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/admin/schedule", func(r chi.Router) {
		r.Get("/", handleScheduleList(registry))
		r.Post("/cancel", handleScheduleCancel(registry))
		r.Post("/cancel-all", handleScheduleCancelAll(registry))
	})

	return r
}

// handleConnectionHealth reports per-adapter connection stats (sheets,
// executor, profile registry), used by operators to tell "the worker is up"
// apart from "the worker can actually reach the spreadsheet".
func handleConnectionHealth(connections map[string]*obsconn.ConnectionMetrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		out := make(map[string]any, len(connections))
		allHealthy := true
		for name, m := range connections {
			if m == nil {
				continue
			}
			out[name] = m.GetStats()
			if !m.IsHealthy() {
				allHealthy = false
			}
		}
		status := http.StatusOK
		if !allHealthy {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, out)
	}
}

func handleScheduleList(registry *usecase.ScheduleRegistry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tasks := registry.List()
		views := make([]ScheduleView, 0, len(tasks))
		for _, t := range tasks {
			views = append(views, ScheduleView{ID: t.ID, Label: t.Label, StartedAt: t.StartedAt})
		}
		writeJSON(w, http.StatusOK, views)
	}
}

func handleScheduleCancel(registry *usecase.ScheduleRegistry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.URL.Query().Get("id")
		if id == "" {
			http.Error(w, "missing id query parameter", http.StatusBadRequest)
			return
		}
		if !registry.Cancel(id) {
			http.Error(w, "no such scheduled task", http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
	}
}

func handleScheduleCancelAll(registry *usecase.ScheduleRegistry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n := registry.CancelAll()
		writeJSON(w, http.StatusOK, map[string]int{"cancelled": n})
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
