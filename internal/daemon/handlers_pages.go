//go:build unix

package daemon

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"net/http"
	"path"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/gurisko/projects/internal/project"
)

// recentVersions is how many releases the project page lists.
const recentVersions = 5

//go:embed templates/*.html
var templateFS embed.FS

// pages holds one template set per page, each with its own copy of the layout.
type pages map[string]*template.Template

func loadPages(funcs template.FuncMap) (pages, error) {
	funcs["base"] = path.Base

	p := make(pages)
	for _, name := range []string{"index", "project"} {
		t, err := template.New(name).Funcs(funcs).ParseFS(templateFS, "templates/layout.html", "templates/"+name+".html")
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", name, err)
		}
		p[name] = t
	}
	return p, nil
}

// render executes into a buffer so template errors still produce a clean 500.
func (p pages) render(w http.ResponseWriter, name string, data any) error {
	t, ok := p[name]
	if !ok {
		return fmt.Errorf("unknown page %q", name)
	}
	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout", data); err != nil {
		return err
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, err := buf.WriteTo(w)
	return err
}

type indexEntry struct {
	*project.Record
	Latest *project.Version
}

type indexPage struct {
	Title     string
	Projects  []indexEntry
	CacheDate time.Time
}

type projectPage struct {
	Title       string
	Project     *project.Record
	Versions    []project.Version
	ReadmeTitle string
	Readme      template.HTML
	CacheDate   time.Time
}

func (d *Daemon) handleIndexPage(w http.ResponseWriter, r *http.Request) {
	records := d.registry.ListEnabled(r.Context())
	page := indexPage{
		Title:     d.siteTitle,
		Projects:  make([]indexEntry, len(records)),
		CacheDate: d.registry.Status().LastFullBuild,
	}
	for i, rec := range records {
		page.Projects[i] = indexEntry{Record: rec}
		if latest := rec.RecentVersions(1); len(latest) == 1 {
			page.Projects[i].Latest = &latest[0]
		}
	}
	if err := d.pages.render(w, "index", page); err != nil {
		d.logger.Error("render index", "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func (d *Daemon) handleProjectRedirect(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !project.ValidID(id) {
		http.Error(w, "project not found", http.StatusNotFound)
		return
	}
	http.Redirect(w, r, "/"+id+"/", http.StatusMovedPermanently)
}

func (d *Daemon) handleProjectPage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rec, ok := d.registry.Get(r.Context(), id)
	if !ok {
		http.Error(w, "project not found", http.StatusNotFound)
		return
	}

	page := projectPage{
		Title:     id,
		Project:   rec,
		Versions:  rec.RecentVersions(recentVersions),
		CacheDate: d.registry.Status().LastFullBuild,
	}
	if rec.Readme != nil {
		page.ReadmeTitle = rec.Readme.Title
		if page.ReadmeTitle == "" {
			page.ReadmeTitle = "README"
		}
		// The renderer escapes raw HTML in the source.
		page.Readme = template.HTML(rec.Readme.Body)
	}
	if err := d.pages.render(w, "project", page); err != nil {
		d.logger.Error("render project", "project", id, "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}
