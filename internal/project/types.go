package project

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Tag is a named pointer to a revision, as enumerated by the backend.
type Tag struct {
	Name     string
	Revision string
}

// Version is one accepted release tag of a project.
type Version struct {
	Tag         string    `yaml:"tag" json:"tag"`
	ReleasedAt  time.Time `yaml:"released_at" json:"released_at"`                         // Commit time of the tagged revision, UTC
	ArtifactURL string    `yaml:"artifact_url,omitempty" json:"artifact_url,omitempty"` // Empty when no archive was found
}

// Readme is a rendered README document.
type Readme struct {
	Title string `yaml:"title" json:"title"`
	Body  string `yaml:"body" json:"body,omitempty"` // HTML fragment, already escaped by the renderer
}

// Settings holds the project-scoped configuration read from the repository.
type Settings struct {
	Enabled     bool
	Description string
	Homepage    string
	License     string
}

// Digest fingerprints the settings so a cheap probe can detect config edits
// that do not move the default branch.
func (s Settings) Digest() string {
	h := sha256.New()
	enabled := "0"
	if s.Enabled {
		enabled = "1"
	}
	for _, part := range []string{enabled, s.Description, s.Homepage, s.License} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil)[:16])
}

// Probe is the cheap snapshot used to decide whether a record is still current.
type Probe struct {
	Revision string
	Settings Settings
	Digest   string
}

// Enabled reports whether the probed project is active.
func (p Probe) Enabled() bool { return p.Settings.Enabled }

// Record is the immutable metadata view of one project. Once published a
// Record is never modified; refreshes replace it wholesale.
type Record struct {
	ID             string    `yaml:"id" json:"id"`
	BuildID        string    `yaml:"build_id" json:"build_id"`
	Enabled        bool      `yaml:"enabled" json:"enabled"`
	Description    string    `yaml:"description,omitempty" json:"description,omitempty"`
	Homepage       string    `yaml:"homepage,omitempty" json:"homepage,omitempty"`
	License        string    `yaml:"license,omitempty" json:"license,omitempty"`
	RepoURL        string    `yaml:"repo_url,omitempty" json:"repo_url,omitempty"`
	Versions       []Version `yaml:"versions" json:"versions"`
	Readme         *Readme   `yaml:"readme,omitempty" json:"readme,omitempty"`
	SourceRevision string    `yaml:"source_revision" json:"source_revision"`
	ConfigDigest   string    `yaml:"config_digest" json:"config_digest"`
	BuiltAt        time.Time `yaml:"built_at" json:"built_at"`       // Last time the record was verified current
	ComputedAt     time.Time `yaml:"computed_at" json:"computed_at"` // Last time the content was recomputed
}

// Equivalent reports whether two records were built from the same
// repository state, regardless of when they were built.
func (r *Record) Equivalent(other *Record) bool {
	if r == nil || other == nil {
		return r == other
	}
	return r.ID == other.ID &&
		r.SourceRevision == other.SourceRevision &&
		r.ConfigDigest == other.ConfigDigest
}

// Matches reports whether the probe describes the state this record was built from.
func (r *Record) Matches(p Probe) bool {
	return r.SourceRevision == p.Revision && r.ConfigDigest == p.Digest
}

// Touch returns a copy of r verified current at now. Content is shared.
func (r *Record) Touch(now time.Time) *Record {
	cp := *r
	cp.BuiltAt = now.UTC()
	return &cp
}

// Clone returns a deep copy that callers may modify freely.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	cp := *r
	if r.Versions != nil {
		cp.Versions = make([]Version, len(r.Versions))
		copy(cp.Versions, r.Versions)
	}
	if r.Readme != nil {
		readme := *r.Readme
		cp.Readme = &readme
	}
	return &cp
}

// RecentVersions returns up to n of the latest versions, newest first.
func (r *Record) RecentVersions(n int) []Version {
	if n <= 0 || len(r.Versions) == 0 {
		return nil
	}
	start := len(r.Versions) - n
	if start < 0 {
		start = 0
	}
	out := make([]Version, 0, len(r.Versions)-start)
	for i := len(r.Versions) - 1; i >= start; i-- {
		out = append(out, r.Versions[i])
	}
	return out
}
