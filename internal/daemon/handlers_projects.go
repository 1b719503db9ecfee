//go:build unix

package daemon

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/gurisko/projects/internal/project"
	"github.com/gurisko/projects/internal/registry"
)

// Request/Response types

// ListProjectsResponse carries README titles only; bodies are served by
// the single project endpoint.
type ListProjectsResponse struct {
	Projects []*project.Record `json:"projects"`
}

type ProjectResponse struct {
	Project *project.Record `json:"project"`
}

type RefreshResponse struct {
	Project *project.Record `json:"project,omitempty"`
	Error   string          `json:"error,omitempty"`
}

type StatusResponse struct {
	Projects       int       `json:"projects"`
	Building       int       `json:"building"`
	LastFullBuild  time.Time `json:"last_full_build"`
	LastDiscovered time.Time `json:"last_discovered"`
	Uptime         float64   `json:"uptime"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

// Handler methods

func (d *Daemon) handleStatus(w http.ResponseWriter, r *http.Request) {
	st := d.registry.Status()
	writeJSON(w, StatusResponse{
		Projects:       st.Projects,
		Building:       st.Building,
		LastFullBuild:  st.LastFullBuild,
		LastDiscovered: st.LastDiscovered,
		Uptime:         time.Since(d.startTime).Seconds(),
	}, http.StatusOK)
}

func (d *Daemon) handleListProjects(w http.ResponseWriter, r *http.Request) {
	records := d.registry.ListEnabled(r.Context())
	for _, rec := range records {
		if rec.Readme != nil {
			rec.Readme.Body = ""
		}
	}
	writeJSON(w, ListProjectsResponse{Projects: records}, http.StatusOK)
}

func (d *Daemon) handleGetProject(w http.ResponseWriter, r *http.Request) {
	rec, ok := d.registry.Get(r.Context(), chi.URLParam(r, "id"))
	if !ok {
		writeError(w, "project not found", http.StatusNotFound)
		return
	}

	etag := `"` + rec.BuildID + `"`
	w.Header().Set("ETag", etag)
	w.Header().Set("Last-Modified", rec.ComputedAt.UTC().Format(http.TimeFormat))
	if r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	writeJSON(w, ProjectResponse{Project: rec}, http.StatusOK)
}

func (d *Daemon) handleRefreshProject(w http.ResponseWriter, r *http.Request) {
	rec, err := d.registry.Refresh(r.Context(), chi.URLParam(r, "id"))
	switch {
	case err == nil:
		writeJSON(w, RefreshResponse{Project: rec}, http.StatusOK)
	case errors.Is(err, registry.ErrNotFound),
		errors.Is(err, project.ErrNotRepository),
		errors.Is(err, project.ErrDisabled):
		writeError(w, "project not found", http.StatusNotFound)
	case errors.Is(err, registry.ErrClosed):
		writeError(w, "daemon is shutting down", http.StatusServiceUnavailable)
	case rec != nil:
		// The previous record is still being served.
		writeJSON(w, RefreshResponse{Project: rec, Error: err.Error()}, http.StatusOK)
	default:
		writeError(w, err.Error(), http.StatusInternalServerError)
	}
}

func (d *Daemon) handleRediscover(w http.ResponseWriter, r *http.Request) {
	d.registry.RequestRediscover()
	w.WriteHeader(http.StatusAccepted)
}

// Helper functions

func writeJSON(w http.ResponseWriter, data interface{}, status int) {
	buf, err := json.Marshal(data)
	if err != nil {
		http.Error(w, "failed to encode response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(buf)
}

func writeError(w http.ResponseWriter, message string, status int) {
	resp := ErrorResponse{
		Error: message,
	}
	writeJSON(w, resp, status)
}
