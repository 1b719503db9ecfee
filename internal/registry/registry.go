package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/sourcegraph/conc/pool"

	"github.com/gurisko/projects/internal/project"
)

var (
	// ErrNotFound indicates the project is absent, disabled or not yet built
	ErrNotFound = errors.New("project not found")
	// ErrClosed indicates the registry has been shut down
	ErrClosed = errors.New("registry closed")
)

// Registry caches project records and keeps them current.
//
// Readers never wait for a rebuild of a record that is already published:
// stale records are served while a refresh runs in the background. At most
// one refresh per project id is in flight; concurrent callers join it.
// Builds never run while the registry lock is held.
type Registry struct {
	source Source
	opts   Options
	logger *log.Logger

	mu             sync.RWMutex
	slots          map[string]*slot
	lastFullBuild  time.Time
	lastDiscovered time.Time
	closed         bool

	discovering atomic.Bool
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
}

// New creates an empty registry. Call Load before serving reads.
func New(source Source, opts Options) *Registry {
	opts.setDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	return &Registry{
		source: source,
		opts:   opts,
		logger: opts.Logger,
		slots:  make(map[string]*slot),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Load performs the initial full build. Failures of individual projects are
// logged and do not fail the load; failing to enumerate projects does.
func (r *Registry) Load(ctx context.Context) error {
	start := time.Now()
	if err := r.Rediscover(ctx); err != nil {
		return err
	}

	r.mu.Lock()
	r.lastFullBuild = r.opts.Now().UTC()
	n := len(r.slots)
	r.mu.Unlock()

	r.logger.Info("registry loaded", "projects", n, "duration", time.Since(start).Round(time.Millisecond))
	return nil
}

// Get returns a copy of the published record for id. A stale record is
// returned as is and refreshed in the background. When the id is known but
// has never been built, Get waits for its first build; after a failed first
// build, reads report the project absent until RetryInterval has passed.
func (r *Registry) Get(ctx context.Context, id string) (*project.Record, bool) {
	r.maybeRediscover()

	r.mu.RLock()
	s, ok := r.slots[id]
	var rec *project.Record
	var failedAt time.Time
	if ok {
		rec = s.record
		failedAt = s.failedAt
	}
	r.mu.RUnlock()

	if !ok {
		return nil, false
	}
	if rec == nil {
		if !failedAt.IsZero() && r.opts.Now().Sub(failedAt) < r.opts.RetryInterval {
			return nil, false
		}
		rec, _ := r.refresh(ctx, id, false)
		return rec, rec != nil
	}
	if r.stale(rec) {
		r.refreshAsync(id)
	}
	return rec.Clone(), true
}

// ListEnabled returns copies of all published records ordered by id.
func (r *Registry) ListEnabled(ctx context.Context) []*project.Record {
	r.maybeRediscover()

	r.mu.RLock()
	records := make([]*project.Record, 0, len(r.slots))
	for _, s := range r.slots {
		if s.record != nil && s.record.Enabled {
			records = append(records, s.record)
		}
	}
	r.mu.RUnlock()

	sort.Slice(records, func(i, j int) bool { return records[i].ID < records[j].ID })

	out := make([]*project.Record, len(records))
	for i, rec := range records {
		if r.stale(rec) {
			r.refreshAsync(rec.ID)
		}
		out[i] = rec.Clone()
	}
	return out
}

// Refresh checks id against the backend now, regardless of its age, and
// returns the resulting record. On a transient failure the previous record
// (if any) is returned along with the error. ErrNotRepository and
// project.ErrDisabled mean the project was removed from the registry.
func (r *Registry) Refresh(ctx context.Context, id string) (*project.Record, error) {
	return r.refresh(ctx, id, true)
}

// Rediscover enumerates project ids, drops ids that disappeared and builds
// the ones not seen before.
func (r *Registry) Rediscover(ctx context.Context) error {
	ids, err := r.source.Discover(ctx)
	if err != nil {
		return fmt.Errorf("discover projects: %w", err)
	}

	present := make(map[string]bool, len(ids))
	for _, id := range ids {
		present[id] = true
	}

	var fresh []string
	r.mu.Lock()
	for id := range r.slots {
		if !present[id] {
			delete(r.slots, id)
			r.logger.Info("project removed", "project", id)
		}
	}
	for _, id := range ids {
		if _, ok := r.slots[id]; !ok {
			r.slots[id] = &slot{}
			fresh = append(fresh, id)
		}
	}
	r.lastDiscovered = r.opts.Now().UTC()
	r.mu.Unlock()

	if len(fresh) > 0 {
		r.logger.Debug("discovered projects", "count", len(fresh))
	}
	r.refreshAll(ctx, fresh, true)
	return nil
}

// Sweep refreshes every stale or never-built project.
func (r *Registry) Sweep(ctx context.Context) {
	r.mu.RLock()
	ids := make([]string, 0, len(r.slots))
	for id := range r.slots {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	r.refreshAll(ctx, ids, false)

	r.mu.Lock()
	r.lastFullBuild = r.opts.Now().UTC()
	r.mu.Unlock()
}

// Run sweeps every CheckInterval and rediscovers every RediscoverInterval
// or whenever trigger fires, until ctx is done.
func (r *Registry) Run(ctx context.Context, trigger <-chan struct{}) {
	sweep := time.NewTicker(r.opts.CheckInterval)
	defer sweep.Stop()
	discover := time.NewTicker(r.opts.RediscoverInterval)
	defer discover.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-sweep.C:
			r.Sweep(ctx)
		case <-discover.C:
			r.rediscoverLogged(ctx)
		case <-trigger:
			r.rediscoverLogged(ctx)
		}
	}
}

// LastFullBuild returns when every project was last checked in one pass.
func (r *Registry) LastFullBuild() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastFullBuild
}

// Status reports registry counters.
func (r *Registry) Status() Status {
	r.mu.RLock()
	defer r.mu.RUnlock()

	st := Status{LastFullBuild: r.lastFullBuild, LastDiscovered: r.lastDiscovered}
	for _, s := range r.slots {
		if s.record != nil {
			st.Projects++
		}
		if s.flight != nil {
			st.Building++
		}
	}
	return st
}

// Close stops background refreshes and waits for them to finish.
func (r *Registry) Close() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	r.cancel()
	r.wg.Wait()
}

func (r *Registry) stale(rec *project.Record) bool {
	return r.opts.Now().Sub(rec.BuiltAt) >= r.opts.CheckInterval
}

// refresh runs or joins the single flight for id. Unless force is set a
// fresh published record is returned without touching the backend.
func (r *Registry) refresh(ctx context.Context, id string, force bool) (*project.Record, error) {
	if !project.ValidID(id) {
		return nil, ErrNotFound
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, ErrClosed
	}
	s, ok := r.slots[id]
	if !ok {
		s = &slot{}
		r.slots[id] = s
	}
	if f := s.flight; f != nil {
		f.waiters++
		r.mu.Unlock()
		select {
		case <-f.done:
			return f.record.Clone(), f.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	prev := s.record
	if !force && prev != nil && !r.stale(prev) {
		r.mu.Unlock()
		return prev.Clone(), nil
	}
	f := &flight{done: make(chan struct{})}
	s.flight = f
	r.mu.Unlock()

	rec, err := r.check(ctx, id, prev)

	r.mu.Lock()
	s.flight = nil
	current := r.slots[id] == s
	switch {
	case err == nil:
		if current {
			s.record = rec
			s.failedAt = time.Time{}
		}
		f.record = rec
	case errors.Is(err, project.ErrDisabled) || errors.Is(err, project.ErrNotRepository):
		if current {
			delete(r.slots, id)
		}
		if prev != nil {
			r.logger.Info("project unpublished", "project", id, "reason", err)
		}
	default:
		if current && prev == nil {
			s.failedAt = r.opts.Now()
		}
		f.record = prev
		r.logger.Warn("refresh failed", "project", id, "err", err, "serving_previous", prev != nil)
	}
	f.err = err
	r.mu.Unlock()
	close(f.done)

	return f.record.Clone(), err
}

// check decides between keeping prev and rebuilding. It must not be called
// with the registry lock held.
func (r *Registry) check(ctx context.Context, id string, prev *project.Record) (rec *project.Record, err error) {
	defer func() {
		if p := recover(); p != nil {
			rec, err = nil, &project.BuildError{ID: id, Op: "refresh", Err: fmt.Errorf("panic: %v", p)}
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, r.opts.BuildTimeout)
	defer cancel()

	now := r.opts.Now()
	if prev != nil && now.Sub(prev.ComputedAt) < r.opts.MaxAge {
		probe, err := r.source.Probe(ctx, id)
		if err != nil {
			return nil, err
		}
		if !probe.Enabled() {
			return nil, project.ErrDisabled
		}
		if prev.Matches(probe) {
			r.logger.Debug("project unchanged", "project", id, "revision", probe.Revision)
			return prev.Touch(now), nil
		}
	}

	start := time.Now()
	rec, err = r.source.Build(ctx, id)
	if err != nil {
		return nil, err
	}
	r.logger.Info("built project", "project", id, "revision", rec.SourceRevision,
		"versions", len(rec.Versions), "duration", time.Since(start).Round(time.Millisecond))
	return rec, nil
}

// refreshAll refreshes ids with bounded parallelism. Failures are isolated
// per project and already logged by refresh.
func (r *Registry) refreshAll(ctx context.Context, ids []string, force bool) {
	if len(ids) == 0 {
		return
	}
	p := pool.New().WithMaxGoroutines(r.opts.Concurrency)
	for _, id := range ids {
		p.Go(func() {
			_, _ = r.refresh(ctx, id, force)
		})
	}
	p.Wait()
}

// refreshAsync schedules a background refresh of a stale record.
func (r *Registry) refreshAsync(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	if s, ok := r.slots[id]; !ok || s.flight != nil {
		return
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		_, _ = r.refresh(r.ctx, id, false)
	}()
}

// maybeRediscover starts a background rediscovery when one is due.
func (r *Registry) maybeRediscover() {
	r.mu.RLock()
	due := r.rediscoverDue()
	r.mu.RUnlock()
	if due {
		r.startRediscover(true)
	}
}

// RequestRediscover starts a background rediscovery unless one is running.
func (r *Registry) RequestRediscover() {
	r.startRediscover(false)
}

// rediscoverDue reports whether RediscoverInterval has passed. r.mu must be held.
func (r *Registry) rediscoverDue() bool {
	return r.opts.Now().Sub(r.lastDiscovered) >= r.opts.RediscoverInterval
}

func (r *Registry) startRediscover(onlyIfDue bool) {
	if !r.discovering.CompareAndSwap(false, true) {
		return
	}
	r.mu.Lock()
	// A rediscovery that finished after the caller looked is not repeated.
	if r.closed || (onlyIfDue && !r.rediscoverDue()) {
		r.mu.Unlock()
		r.discovering.Store(false)
		return
	}
	r.wg.Add(1)
	r.mu.Unlock()

	go func() {
		defer r.wg.Done()
		defer r.discovering.Store(false)
		r.rediscoverLogged(r.ctx)
	}()
}

func (r *Registry) rediscoverLogged(ctx context.Context) {
	if err := r.Rediscover(ctx); err != nil && ctx.Err() == nil {
		r.logger.Error("rediscovery failed", "err", err)
	}
}
