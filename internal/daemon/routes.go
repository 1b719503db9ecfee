//go:build unix

package daemon

import (
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func (d *Daemon) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(d.logRequests)
	r.Use(middleware.Recoverer)

	r.Get("/health", d.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", d.handleStatus)
		r.Get("/projects", d.handleListProjects)
		r.Get("/projects/{id}", d.handleGetProject)
		r.Post("/projects/{id}/refresh", d.handleRefreshProject)
		r.Post("/rediscover", d.handleRediscover)
	})

	r.Get("/", d.handleIndexPage)
	r.Get("/{id}", d.handleProjectRedirect)
	r.Get("/{id}/", d.handleProjectPage)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, "not found", http.StatusNotFound)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, "method not allowed", http.StatusMethodNotAllowed)
	})
	return r
}

// logRequests logs one line per request, at a level derived from the status.
func (d *Daemon) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		kv := []any{
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start).Round(time.Microsecond),
			"request_id", middleware.GetReqID(r.Context()),
		}
		switch {
		case ww.Status() >= 500:
			d.logger.Error(http.StatusText(ww.Status()), kv...)
		case ww.Status() >= 400:
			d.logger.Warn(http.StatusText(ww.Status()), kv...)
		default:
			d.logger.Debug(http.StatusText(ww.Status()), kv...)
		}
	})
}

func (d *Daemon) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, HealthResponse{
		Status:   "ok",
		PID:      os.Getpid(),
		Uptime:   time.Since(d.startTime).Seconds(),
		Projects: d.registry.Status().Projects,
	}, http.StatusOK)
}
