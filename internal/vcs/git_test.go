package vcs

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gurisko/projects/internal/project"
)

var epoch = time.Date(2012, 1, 1, 12, 0, 0, 0, time.FixedZone("BRT", -3*3600))

// testRepo wraps a work tree repository created for a test.
type testRepo struct {
	t    *testing.T
	dir  string
	repo *git.Repository
	n    int
}

func initRepo(t *testing.T, base, id string) *testRepo {
	t.Helper()
	dir := filepath.Join(base, id)
	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)
	return &testRepo{t: t, dir: dir, repo: repo}
}

// commit writes files and commits them one hour after the previous commit.
func (r *testRepo) commit(files map[string]string) plumbing.Hash {
	r.t.Helper()
	wt, err := r.repo.Worktree()
	require.NoError(r.t, err)
	for name, content := range files {
		require.NoError(r.t, os.WriteFile(filepath.Join(r.dir, name), []byte(content), 0o644))
		_, err := wt.Add(name)
		require.NoError(r.t, err)
	}
	r.n++
	sig := &object.Signature{Name: "Dev", Email: "dev@example.com", When: epoch.Add(time.Duration(r.n) * time.Hour)}
	h, err := wt.Commit("commit", &git.CommitOptions{Author: sig, Committer: sig})
	require.NoError(r.t, err)
	return h
}

func (r *testRepo) tag(name string, h plumbing.Hash, annotated bool) {
	r.t.Helper()
	var opts *git.CreateTagOptions
	if annotated {
		opts = &git.CreateTagOptions{
			Tagger:  &object.Signature{Name: "Dev", Email: "dev@example.com", When: epoch},
			Message: "release " + name,
		}
	}
	_, err := r.repo.CreateTag(name, h, opts)
	require.NoError(r.t, err)
}

func (r *testRepo) setConfig(section, key, value string) {
	r.t.Helper()
	cfg, err := r.repo.Config()
	require.NoError(r.t, err)
	cfg.Raw.Section(section).SetOption(key, value)
	require.NoError(r.t, r.repo.SetConfig(cfg))
}

// gc packs every object and removes the loose copies, the way git gc does.
func (r *testRepo) gc() {
	r.t.Helper()
	require.NoError(r.t, r.repo.RepackObjects(&git.RepackConfig{}))
	objects := filepath.Join(r.dir, git.GitDirName, "objects")
	entries, err := os.ReadDir(objects)
	require.NoError(r.t, err)
	for _, e := range entries {
		if e.IsDir() && len(e.Name()) == 2 {
			require.NoError(r.t, os.RemoveAll(filepath.Join(objects, e.Name())))
		}
	}
}

func TestListProjects(t *testing.T) {
	base := t.TempDir()
	initRepo(t, base, "beta")
	initRepo(t, base, "alpha")
	require.NoError(t, os.Mkdir(filepath.Join(base, "plain-dir"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(base, "notes.txt"), []byte("x"), 0o644))
	initRepo(t, base, ".hidden")

	ids, err := NewGit(base).ListProjects(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "beta"}, ids)
}

func TestListProjects_MissingBaseDir(t *testing.T) {
	_, err := NewGit(filepath.Join(t.TempDir(), "missing")).ListProjects(context.Background())
	assert.Error(t, err)
}

func TestNotRepository(t *testing.T) {
	base := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(base, "plain"), 0o755))
	g := NewGit(base)
	ctx := context.Background()

	_, err := g.DefaultBranchRevision(ctx, "plain")
	assert.ErrorIs(t, err, project.ErrNotRepository)

	_, err = g.Tags(ctx, "missing")
	assert.ErrorIs(t, err, project.ErrNotRepository)

	_, _, err = g.Config(ctx, "../escape", "project", "enabled", false)
	assert.ErrorIs(t, err, project.ErrNotRepository)
}

func TestTagsAndCommitTime(t *testing.T) {
	base := t.TempDir()
	r := initRepo(t, base, "alpha")
	c1 := r.commit(map[string]string{"a.txt": "1"})
	c2 := r.commit(map[string]string{"a.txt": "2"})
	c3 := r.commit(map[string]string{"a.txt": "3"})
	r.tag("2.0", c3, true)
	r.tag("1.0", c1, false)
	r.tag("abc", c2, false)
	r.tag("1.1", c2, true)

	g := NewGit(base)
	ctx := context.Background()

	tags, err := g.Tags(ctx, "alpha")
	require.NoError(t, err)
	assert.Equal(t, []project.Tag{
		{Name: "1.0", Revision: c1.String()},
		{Name: "1.1", Revision: c2.String()},
		{Name: "abc", Revision: c2.String()},
		{Name: "2.0", Revision: c3.String()},
	}, tags)

	when, err := g.CommitTime(ctx, "alpha", c2.String())
	require.NoError(t, err)
	assert.Equal(t, time.UTC, when.Location())
	assert.True(t, when.Equal(epoch.Add(2*time.Hour)))
}

func TestDefaultBranchAndReadFile(t *testing.T) {
	base := t.TempDir()
	r := initRepo(t, base, "alpha")
	g := NewGit(base)
	ctx := context.Background()

	rev, err := g.DefaultBranchRevision(ctx, "alpha")
	require.NoError(t, err)
	assert.Empty(t, rev, "empty repository has no revision")

	h := r.commit(map[string]string{"README.rst": "Alpha\n=====\n"})

	rev, err = g.DefaultBranchRevision(ctx, "alpha")
	require.NoError(t, err)
	assert.Equal(t, h.String(), rev)

	data, ok, err := g.ReadFile(ctx, "alpha", rev, "README.rst")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "Alpha\n=====\n", string(data))

	_, ok, err = g.ReadFile(ctx, "alpha", rev, "README")
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = g.ReadFile(ctx, "alpha", "", "README.rst")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestConfig(t *testing.T) {
	base := t.TempDir()
	r := initRepo(t, base, "alpha")
	r.setConfig("project", "enabled", "true")
	r.setConfig("project", "description", "  The alpha project  ")

	g := NewGit(base)
	ctx := context.Background()

	v, ok, err := g.Config(ctx, "alpha", "project", "enabled", false)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "true", v)

	v, ok, err = g.Config(ctx, "alpha", "project", "description", false)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "The alpha project", v)

	_, ok, err = g.Config(ctx, "alpha", "project", "homepage", false)
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = g.Config(ctx, "alpha", "gitweb", "description", false)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestBuilderOverGit(t *testing.T) {
	base := t.TempDir()
	r := initRepo(t, base, "alpha")
	r.setConfig("project", "enabled", "yes")
	c1 := r.commit(map[string]string{"README.rst": "Alpha\n=====\n\nHello.\n"})
	r.tag("1.0", c1, false)
	r.tag("tip", c1, false)

	b := project.NewBuilder(project.BuilderConfig{Backend: NewGit(base)})
	rec, err := b.Build(context.Background(), "alpha")
	require.NoError(t, err)
	assert.Equal(t, c1.String(), rec.SourceRevision)
	require.Len(t, rec.Versions, 1)
	assert.Equal(t, "1.0", rec.Versions[0].Tag)

	// Removing the metadata turns the project into a plain directory.
	require.NoError(t, os.RemoveAll(filepath.Join(base, "alpha", ".git")))
	_, err = b.Build(context.Background(), "alpha")
	assert.ErrorIs(t, err, project.ErrNotRepository)
}

func TestReadsAfterRepack(t *testing.T) {
	base := t.TempDir()
	r := initRepo(t, base, "alpha")
	g := NewGit(base)
	ctx := context.Background()

	c1 := r.commit(map[string]string{"README.rst": "one\n"})
	_, err := g.CommitTime(ctx, "alpha", c1.String())
	require.NoError(t, err)

	c2 := r.commit(map[string]string{"README.rst": "two\n"})
	r.gc()

	rev, err := g.DefaultBranchRevision(ctx, "alpha")
	require.NoError(t, err)
	assert.Equal(t, c2.String(), rev)

	when, err := g.CommitTime(ctx, "alpha", rev)
	require.NoError(t, err)
	assert.True(t, when.Equal(epoch.Add(2*time.Hour)))

	data, ok, err := g.ReadFile(ctx, "alpha", rev, "README.rst")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "two\n", string(data))
}
