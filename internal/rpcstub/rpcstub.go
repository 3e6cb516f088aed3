// Package rpcstub is the minimal HTTP status/session surface spec §1
// leaves as the one exception to "library, not a server": a small chi
// router standing in for the out-of-scope JSON-RPC assistant-protocol
// server, wiring the teacher's chi/cors/redis ambient stack and
// internal/middleware into this domain's session lifecycle and run
// metrics instead of mp3-conversion session state. Grounded on
// internal/handlers/api.go's Router/handleHealth/handleStats shape.
package rpcstub

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/cors"

	"bilidl/internal/config"
	"bilidl/internal/metrics"
	"bilidl/internal/middleware"
	"bilidl/internal/session"
)

// API is the rpcstub server's dependency bundle.
type API struct {
	cfg     *config.Config
	sess    *session.Store
	metrics *metrics.Registry
}

// NewAPI builds an API over an already-constructed session store and
// metrics registry (both owned by the caller, typically cmd/bilidl's
// entrypoint).
func NewAPI(cfg *config.Config, sess *session.Store, reg *metrics.Registry) *API {
	return &API{cfg: cfg, sess: sess, metrics: reg}
}

// Router assembles the chi router: CORS, security headers, a global rate
// limiter, then the session/status/health surface itself. No per-IP limiter,
// API-key check or IP allowlist is installed.
func (a *API) Router() http.Handler {
	r := chi.NewRouter()

	corsMw := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: false,
	})
	r.Use(corsMw.Handler)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.GlobalRateLimiter(a.cfg.RequestsPerSecond, a.cfg.BurstSize))

	r.Get("/health", a.handleHealth)
	r.Get("/ready", a.handleReady)
	r.Get("/metrics", a.handleMetrics)

	r.Delete("/sessions/{id}", a.handleDestroySession)
	r.Get("/sessions/{id}", a.handleSessionStatus)

	return r
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":          "healthy",
		"uptime_seconds":  a.metrics.UptimeSeconds(),
		"completed_tasks": a.metrics.CompletedTasks.Load(),
		"failed_tasks":    a.metrics.FailedTasks.Load(),
		"skipped_tasks":   a.metrics.SkippedTasks.Load(),
	})
}

func (a *API) handleReady(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

func (a *API) handleMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"active_tasks":                a.metrics.ActiveTasks.Load(),
		"completed_tasks":             a.metrics.CompletedTasks.Load(),
		"skipped_tasks":               a.metrics.SkippedTasks.Load(),
		"failed_tasks":                a.metrics.FailedTasks.Load(),
		"success_rate":                a.metrics.SuccessRate(),
		"uptime_seconds":              a.metrics.UptimeSeconds(),
		"sessions_active":             a.metrics.SessionsActive.Load(),
		"download_latency_buckets":    a.metrics.DownloadLatencyBuckets,
		"post_process_latency_buckets": a.metrics.PostProcessLatencyBuckets,
	})
}

func (a *API) handleSessionStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	client := a.sess.GetAuthedClient(id)
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	var nav struct {
		IsLogin bool `json:"isLogin"`
	}
	if err := client.Get(ctx, "https://api.bilibili.com/x/web-interface/nav", &nav); err != nil {
		writeJSON(w, http.StatusOK, map[string]any{"session_id": id, "is_login": false, "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"session_id": id, "is_login": nav.IsLogin})
}

func (a *API) handleDestroySession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := a.sess.DestroySession(r.Context(), id); err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
		return
	}
	a.metrics.SessionsActive.Add(-1)
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
