package registry

import (
	"context"
	"time"

	"github.com/charmbracelet/log"

	"github.com/gurisko/projects/internal/project"
)

// Source computes project records. *project.Builder is the production Source.
type Source interface {
	// Discover lists the ids of all projects that currently exist.
	Discover(ctx context.Context) ([]string, error)
	// Probe cheaply reads the state a record would be built from.
	Probe(ctx context.Context, id string) (project.Probe, error)
	// Build computes a full record.
	Build(ctx context.Context, id string) (*project.Record, error)
}

var _ Source = (*project.Builder)(nil)

// Options tune the refresh policy.
type Options struct {
	// CheckInterval is how long a record is served without checking the
	// backend. Once it elapses the record is stale and gets probed.
	CheckInterval time.Duration
	// RediscoverInterval is the cadence for enumerating project ids.
	RediscoverInterval time.Duration
	// MaxAge forces a full rebuild of content computed this long ago even
	// when the probe reports no change.
	MaxAge time.Duration
	// Concurrency bounds parallel builds during sweeps and rediscovery.
	Concurrency int
	// BuildTimeout bounds a single refresh.
	BuildTimeout time.Duration
	// RetryInterval is how long reads of a project that has never built
	// successfully wait before triggering another build.
	RetryInterval time.Duration

	Logger *log.Logger
	Now    func() time.Time
}

// Defaults for zero Options fields.
const (
	DefaultCheckInterval      = time.Hour
	DefaultRediscoverInterval = 10 * time.Minute
	DefaultMaxAge             = 24 * time.Hour
	DefaultConcurrency        = 4
	DefaultBuildTimeout       = 2 * time.Minute
	DefaultRetryInterval      = time.Minute
)

func (o *Options) setDefaults() {
	if o.CheckInterval <= 0 {
		o.CheckInterval = DefaultCheckInterval
	}
	if o.RediscoverInterval <= 0 {
		o.RediscoverInterval = DefaultRediscoverInterval
	}
	if o.MaxAge <= 0 {
		o.MaxAge = DefaultMaxAge
	}
	if o.Concurrency <= 0 {
		o.Concurrency = DefaultConcurrency
	}
	if o.BuildTimeout <= 0 {
		o.BuildTimeout = DefaultBuildTimeout
	}
	if o.RetryInterval <= 0 {
		o.RetryInterval = DefaultRetryInterval
	}
	if o.Logger == nil {
		o.Logger = log.Default()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

// Status summarizes the registry for health and footer display.
type Status struct {
	Projects       int       `json:"projects"`
	Building       int       `json:"building"`
	LastFullBuild  time.Time `json:"last_full_build"`
	LastDiscovered time.Time `json:"last_discovered"`
}

// flight is one in-progress refresh of a project. Waiters block on done.
type flight struct {
	done    chan struct{}
	waiters int
	record  *project.Record
	err     error
}

// slot is the registry entry of a discovered project id.
type slot struct {
	record *project.Record // nil until the first successful build
	flight *flight         // non-nil while a refresh is in progress
	// failedAt is when the last build of a never-built project failed.
	failedAt time.Time
}
