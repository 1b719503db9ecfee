package project

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/gurisko/projects/internal/limits"
)

// ReadmeFiles lists README candidates on the default branch; the first one found wins.
var ReadmeFiles = []string{"README.rst", "README", "README.md"}

// Configuration keys read from the repository.
const (
	sectionProject = "project"
	sectionGitweb  = "gitweb"
)

// BuilderConfig wires a Builder to its collaborators.
type BuilderConfig struct {
	Backend   Backend
	Artifacts ArtifactStore // optional
	Renderer  Renderer      // optional; nil skips README rendering
	// RepoBaseURL is joined with the project id to form Record.RepoURL.
	RepoBaseURL string
	Logger      *log.Logger
	Now         func() time.Time
}

// Builder computes project records from the collaborators.
type Builder struct {
	backend     Backend
	artifacts   ArtifactStore
	renderer    Renderer
	repoBaseURL string
	logger      *log.Logger
	now         func() time.Time
}

// NewBuilder creates a Builder. A nil logger falls back to log.Default().
func NewBuilder(cfg BuilderConfig) *Builder {
	b := &Builder{
		backend:     cfg.Backend,
		artifacts:   cfg.Artifacts,
		renderer:    cfg.Renderer,
		repoBaseURL: cfg.RepoBaseURL,
		logger:      cfg.Logger,
		now:         cfg.Now,
	}
	if b.logger == nil {
		b.logger = log.Default()
	}
	if b.now == nil {
		b.now = time.Now
	}
	return b
}

// Discover lists the ids of all repositories known to the backend.
func (b *Builder) Discover(ctx context.Context) ([]string, error) {
	ids, err := b.backend.ListProjects(ctx)
	if err != nil {
		return nil, err
	}
	out := ids[:0]
	for _, id := range ids {
		if ValidID(id) {
			out = append(out, id)
		}
	}
	return out, nil
}

// Probe reads the default branch revision and the project settings. It is
// much cheaper than Build and is used for staleness checks.
func (b *Builder) Probe(ctx context.Context, id string) (Probe, error) {
	if !ValidID(id) {
		return Probe{}, ErrNotRepository
	}

	rev, err := b.backend.DefaultBranchRevision(ctx, id)
	if err != nil {
		return Probe{}, wrapBuild(id, "default branch", err)
	}

	settings, err := b.readSettings(ctx, id)
	if err != nil {
		return Probe{}, wrapBuild(id, "config", err)
	}

	return Probe{Revision: rev, Settings: settings, Digest: settings.Digest()}, nil
}

// Build computes a complete record. It returns ErrNotRepository or
// ErrDisabled when the project must not be published, and a *BuildError
// for anything else.
func (b *Builder) Build(ctx context.Context, id string) (*Record, error) {
	probe, err := b.Probe(ctx, id)
	if err != nil {
		return nil, err
	}
	if !probe.Enabled() {
		return nil, ErrDisabled
	}

	tags, err := b.backend.Tags(ctx, id)
	if err != nil {
		return nil, wrapBuild(id, "tags", err)
	}

	versions, err := ExtractVersions(ctx, b.backend, b.artifacts, id, tags)
	if err != nil {
		return nil, wrapBuild(id, "versions", err)
	}

	readme, err := b.readme(ctx, id, probe.Revision)
	if err != nil {
		return nil, wrapBuild(id, "readme", err)
	}

	now := b.now().UTC()
	return &Record{
		ID:             id,
		BuildID:        NewBuildID(),
		Enabled:        true,
		Description:    probe.Settings.Description,
		Homepage:       probe.Settings.Homepage,
		License:        probe.Settings.License,
		RepoURL:        b.repoURL(id),
		Versions:       versions,
		Readme:         readme,
		SourceRevision: probe.Revision,
		ConfigDigest:   probe.Digest,
		BuiltAt:        now,
		ComputedAt:     now,
	}, nil
}

func (b *Builder) readSettings(ctx context.Context, id string) (Settings, error) {
	var s Settings

	enabled, _, err := b.backend.Config(ctx, id, sectionProject, "enabled", false)
	if err != nil {
		return s, err
	}
	s.Enabled = parseBool(enabled)

	s.Description, err = b.firstConfig(ctx, id,
		[2]string{sectionProject, "description"},
		[2]string{sectionGitweb, "description"})
	if err != nil {
		return s, err
	}
	if s.Homepage, err = b.firstConfig(ctx, id, [2]string{sectionProject, "homepage"}); err != nil {
		return s, err
	}
	if s.License, err = b.firstConfig(ctx, id, [2]string{sectionProject, "license"}); err != nil {
		return s, err
	}
	return s, nil
}

// firstConfig returns the first non-empty value among the section/key pairs.
func (b *Builder) firstConfig(ctx context.Context, id string, keys ...[2]string) (string, error) {
	for _, k := range keys {
		v, ok, err := b.backend.Config(ctx, id, k[0], k[1], false)
		if err != nil {
			return "", err
		}
		if v = strings.TrimSpace(v); ok && v != "" {
			return v, nil
		}
	}
	return "", nil
}

func (b *Builder) readme(ctx context.Context, id, rev string) (*Readme, error) {
	if rev == "" || b.renderer == nil {
		return nil, nil
	}
	for _, name := range ReadmeFiles {
		data, ok, err := b.backend.ReadFile(ctx, id, rev, name)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		if len(data) > limits.Readme {
			b.logger.Warn("readme too large, skipping", "project", id, "file", name, "size", len(data))
			return nil, nil
		}
		doc, err := b.renderer.Render(data)
		if err != nil {
			b.logger.Warn("failed to render readme", "project", id, "file", name, "err", err)
			return nil, nil
		}
		return doc, nil
	}
	return nil, nil
}

func (b *Builder) repoURL(id string) string {
	if b.repoBaseURL == "" {
		return ""
	}
	u, err := url.JoinPath(b.repoBaseURL, id)
	if err != nil {
		return ""
	}
	return u
}

// parseBool accepts git-style booleans. Anything unrecognized is false.
func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "true", "yes", "on", "1":
		return true
	}
	return false
}
