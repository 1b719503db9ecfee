package project

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

type fakeRepo struct {
	head    string
	tags    []Tag
	times   map[string]time.Time
	files   map[string]map[string]string // revision -> path -> content
	config  map[string]string            // "section.key" -> value
	tagsErr error
}

type fakeBackend struct {
	mu    sync.Mutex
	repos map[string]*fakeRepo
	calls map[string]int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{repos: make(map[string]*fakeRepo), calls: make(map[string]int)}
}

func (f *fakeBackend) add(id string, repo *fakeRepo) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.repos[id] = repo
}

func (f *fakeBackend) repo(op, id string) (*fakeRepo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[op]++
	r, ok := f.repos[id]
	if !ok {
		return nil, fmt.Errorf("%s: %w", id, ErrNotRepository)
	}
	return r, nil
}

func (f *fakeBackend) count(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *fakeBackend) ListProjects(ctx context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]string, 0, len(f.repos))
	for id := range f.repos {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (f *fakeBackend) Tags(ctx context.Context, id string) ([]Tag, error) {
	r, err := f.repo("tags", id)
	if err != nil {
		return nil, err
	}
	if r.tagsErr != nil {
		return nil, r.tagsErr
	}
	return append([]Tag(nil), r.tags...), nil
}

func (f *fakeBackend) DefaultBranchRevision(ctx context.Context, id string) (string, error) {
	r, err := f.repo("head", id)
	if err != nil {
		return "", err
	}
	return r.head, nil
}

func (f *fakeBackend) ReadFile(ctx context.Context, id, revision, path string) ([]byte, bool, error) {
	r, err := f.repo("read", id)
	if err != nil {
		return nil, false, err
	}
	content, ok := r.files[revision][path]
	if !ok {
		return nil, false, nil
	}
	return []byte(content), true, nil
}

func (f *fakeBackend) CommitTime(ctx context.Context, id, revision string) (time.Time, error) {
	r, err := f.repo("time", id)
	if err != nil {
		return time.Time{}, err
	}
	ts, ok := r.times[revision]
	if !ok {
		return time.Time{}, errors.New("unknown revision " + revision)
	}
	return ts, nil
}

func (f *fakeBackend) Config(ctx context.Context, id, section, key string, trusted bool) (string, bool, error) {
	r, err := f.repo("config", id)
	if err != nil {
		return "", false, err
	}
	v, ok := r.config[section+"."+key]
	return v, ok, nil
}

// fakeRenderer takes the first line as title and wraps the rest in <p>.
type fakeRenderer struct {
	err error
}

func (r *fakeRenderer) Render(src []byte) (*Readme, error) {
	if r.err != nil {
		return nil, r.err
	}
	title, body, _ := strings.Cut(string(src), "\n")
	return &Readme{Title: title, Body: "<p>" + strings.TrimSpace(body) + "</p>"}, nil
}

type fixedClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}
