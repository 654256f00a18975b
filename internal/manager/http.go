package manager

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewHTTPHandler builds the manager's status surface: a liveness probe,
// a Prometheus scrape endpoint, and a per-camera status query.
func NewHTTPHandler(m *Manager, sampler *ResourceSampler) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(10 * time.Second))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, m.Statuses())
	})

	r.Get("/status/{cameraId}", func(w http.ResponseWriter, r *http.Request) {
		cameraID := chi.URLParam(r, "cameraId")
		status, ok := m.Status(cameraID)
		if !ok {
			http.Error(w, "camera not found", http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, status)
	})

	if sampler != nil {
		r.Get("/resources", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, sampler.Snapshot())
		})
	}

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
