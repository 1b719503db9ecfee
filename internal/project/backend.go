package project

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotRepository indicates the project directory has no version-control metadata
	ErrNotRepository = errors.New("not a repository")
	// ErrDisabled indicates the project configuration marks it inactive
	ErrDisabled = errors.New("project disabled")
)

// Backend reads repositories from a version-control system.
type Backend interface {
	// ListProjects returns the ids of directory entries that are repositories.
	ListProjects(ctx context.Context) ([]string, error)
	// Tags returns the tag list in enumeration order.
	Tags(ctx context.Context, id string) ([]Tag, error)
	// DefaultBranchRevision returns the current revision of the default
	// branch, or "" for a repository without commits.
	DefaultBranchRevision(ctx context.Context, id string) (string, error)
	// ReadFile returns the file content at revision; ok is false when the
	// file does not exist there.
	ReadFile(ctx context.Context, id, revision, path string) (data []byte, ok bool, err error)
	// CommitTime returns the commit time of revision in UTC.
	CommitTime(ctx context.Context, id, revision string) (time.Time, error)
	// Config returns a project-scoped configuration value. With trusted set
	// to false only the repository's own configuration is consulted.
	Config(ctx context.Context, id, section, key string, trusted bool) (value string, ok bool, err error)
}

// ArtifactStore locates downloadable release archives.
type ArtifactStore interface {
	// Lookup returns the public URL of <id>-<version>.<ext> if it exists.
	Lookup(id, version, ext string) (url string, ok bool, err error)
}

// Renderer turns README markup into a title and an HTML body.
type Renderer interface {
	Render(src []byte) (*Readme, error)
}

// BuildError reports a failed build of a single project.
type BuildError struct {
	ID  string
	Op  string
	Err error
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("build %s: %s: %v", e.ID, e.Op, e.Err)
}

func (e *BuildError) Unwrap() error { return e.Err }

// wrapBuild leaves the "absent" conditions unwrapped so callers can tell
// them apart from transient failures.
func wrapBuild(id, op string, err error) error {
	if errors.Is(err, ErrNotRepository) || errors.Is(err, ErrDisabled) {
		return err
	}
	return &BuildError{ID: id, Op: op, Err: err}
}
