// Package vcs implements project.Backend on top of git repositories stored
// as direct children of a base directory.
package vcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/gurisko/projects/internal/project"
)

// fallbackBranches are tried when HEAD does not resolve.
var fallbackBranches = []string{"main", "master", "default"}

var errNotCommit = errors.New("tag does not point to a commit")

// Git reads repositories under a base directory. Every operation opens the
// repository afresh, so packs written by pushes or gc are always visible.
type Git struct {
	baseDir string
}

var _ project.Backend = (*Git)(nil)

// NewGit creates a backend rooted at baseDir.
func NewGit(baseDir string) *Git {
	return &Git{baseDir: filepath.Clean(baseDir)}
}

// BaseDir returns the directory scanned for repositories.
func (g *Git) BaseDir() string { return g.baseDir }

// ListProjects returns the sorted names of base directory entries that open
// as git repositories. Entries that fail to open for reasons other than
// missing metadata are still listed, so their builds report the failure.
func (g *Git) ListProjects(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(g.baseDir)
	if err != nil {
		return nil, fmt.Errorf("read repository base dir: %w", err)
	}

	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		id := e.Name()
		if !project.ValidID(id) {
			continue
		}
		fi, err := os.Stat(filepath.Join(g.baseDir, id))
		if err != nil || !fi.IsDir() {
			continue
		}
		if _, err := g.open(id); errors.Is(err, project.ErrNotRepository) {
			continue
		}
		ids = append(ids, id)
	}

	sort.Strings(ids)
	return ids, nil
}

// open opens the repository for id.
func (g *Git) open(id string) (*git.Repository, error) {
	if !project.ValidID(id) {
		return nil, fmt.Errorf("%q: %w", id, project.ErrNotRepository)
	}
	repo, err := git.PlainOpen(filepath.Join(g.baseDir, id))
	if err != nil {
		if errors.Is(err, git.ErrRepositoryNotExists) || errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", id, project.ErrNotRepository)
		}
		return nil, fmt.Errorf("open repository %s: %w", id, err)
	}
	return repo, nil
}

func (g *Git) with(ctx context.Context, id string, fn func(*git.Repository) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	repo, err := g.open(id)
	if err != nil {
		return err
	}
	return fn(repo)
}

type datedTag struct {
	project.Tag
	when time.Time
}

// Tags returns tags that point (directly or through an annotated tag) to a
// commit, ordered by commit time and then by name.
func (g *Git) Tags(ctx context.Context, id string) ([]project.Tag, error) {
	var dated []datedTag
	err := g.with(ctx, id, func(repo *git.Repository) error {
		iter, err := repo.Tags()
		if err != nil {
			return err
		}
		return iter.ForEach(func(ref *plumbing.Reference) error {
			name := ref.Name().Short()
			commit, err := resolveTag(repo, ref.Hash())
			if errors.Is(err, errNotCommit) {
				return nil
			}
			if err != nil {
				return fmt.Errorf("resolve tag %s: %w", name, err)
			}
			dated = append(dated, datedTag{
				Tag:  project.Tag{Name: name, Revision: commit.Hash.String()},
				when: commit.Committer.When,
			})
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(dated, func(i, j int) bool {
		if !dated[i].when.Equal(dated[j].when) {
			return dated[i].when.Before(dated[j].when)
		}
		return dated[i].Name < dated[j].Name
	})

	tags := make([]project.Tag, len(dated))
	for i, d := range dated {
		tags[i] = d.Tag
	}
	return tags, nil
}

func resolveTag(repo *git.Repository, h plumbing.Hash) (*object.Commit, error) {
	tag, err := repo.TagObject(h)
	switch {
	case err == nil:
		if tag.TargetType != plumbing.CommitObject {
			return nil, errNotCommit
		}
		return tag.Commit()
	case errors.Is(err, plumbing.ErrObjectNotFound):
		// Lightweight tag: the reference points at the commit itself.
		return repo.CommitObject(h)
	default:
		return nil, err
	}
}

// DefaultBranchRevision resolves HEAD, falling back to well-known branch
// names. A repository without commits yields "".
func (g *Git) DefaultBranchRevision(ctx context.Context, id string) (string, error) {
	var rev string
	err := g.with(ctx, id, func(repo *git.Repository) error {
		head, err := repo.Head()
		if err == nil {
			rev = head.Hash().String()
			return nil
		}
		if !errors.Is(err, plumbing.ErrReferenceNotFound) {
			return fmt.Errorf("resolve HEAD: %w", err)
		}
		for _, branch := range fallbackBranches {
			ref, err := repo.Reference(plumbing.NewBranchReferenceName(branch), true)
			if err == nil {
				rev = ref.Hash().String()
				return nil
			}
		}
		return nil
	})
	return rev, err
}

// ReadFile returns the content of path at revision.
func (g *Git) ReadFile(ctx context.Context, id, revision, path string) ([]byte, bool, error) {
	if revision == "" {
		return nil, false, nil
	}
	var data []byte
	var found bool
	err := g.with(ctx, id, func(repo *git.Repository) error {
		commit, err := repo.CommitObject(plumbing.NewHash(revision))
		if err != nil {
			return fmt.Errorf("commit %s: %w", revision, err)
		}
		f, err := commit.File(path)
		if err != nil {
			if errors.Is(err, object.ErrFileNotFound) {
				return nil
			}
			return fmt.Errorf("lookup %s: %w", path, err)
		}
		rd, err := f.Reader()
		if err != nil {
			return fmt.Errorf("open %s: %w", path, err)
		}
		defer rd.Close()
		data, err = io.ReadAll(rd)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		found = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return data, found, nil
}

// CommitTime returns the committer time of revision in UTC.
func (g *Git) CommitTime(ctx context.Context, id, revision string) (time.Time, error) {
	var when time.Time
	err := g.with(ctx, id, func(repo *git.Repository) error {
		commit, err := repo.CommitObject(plumbing.NewHash(revision))
		if err != nil {
			return fmt.Errorf("commit %s: %w", revision, err)
		}
		when = commit.Committer.When.UTC()
		return nil
	})
	return when, err
}

// Config reads section.key from the repository configuration. Untrusted
// reads only look at the repository's own config file; trusted reads merge
// in the user's global configuration as well.
func (g *Git) Config(ctx context.Context, id, section, key string, trusted bool) (string, bool, error) {
	var value string
	var found bool
	err := g.with(ctx, id, func(repo *git.Repository) error {
		var cfg *config.Config
		var err error
		if trusted {
			cfg, err = repo.ConfigScoped(config.GlobalScope)
		} else {
			cfg, err = repo.Config()
		}
		if err != nil {
			return fmt.Errorf("read config: %w", err)
		}
		if cfg.Raw == nil || !cfg.Raw.HasSection(section) {
			return nil
		}
		sec := cfg.Raw.Section(section)
		if !sec.HasOption(key) {
			return nil
		}
		value = strings.TrimSpace(sec.Option(key))
		found = true
		return nil
	})
	return value, found, err
}
