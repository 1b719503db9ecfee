//go:build unix

package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/log"

	"github.com/gurisko/projects/internal/limits"
	"github.com/gurisko/projects/internal/paths"
	"github.com/gurisko/projects/internal/project"
	"github.com/gurisko/projects/internal/registry"
)

// Registry is the read side of the project cache served over HTTP.
type Registry interface {
	Get(ctx context.Context, id string) (*project.Record, bool)
	ListEnabled(ctx context.Context) []*project.Record
	Refresh(ctx context.Context, id string) (*project.Record, error)
	Status() registry.Status
	RequestRediscover()
}

var _ Registry = (*registry.Registry)(nil)

// ensureParentDir ensures the parent directory of the given path exists with secure permissions
func ensureParentDir(path string) error {
	dir := filepath.Dir(path)

	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}
	return nil
}

type Daemon struct {
	listen     string
	pidFile    string
	siteTitle  string
	location   *time.Location
	logger     *log.Logger
	registry   Registry
	pages      pages
	listener   net.Listener
	server     *http.Server
	httpClient *http.Client

	startTime time.Time
}

type Config struct {
	Listen    string
	PIDFile   string
	SiteTitle string
	Location  *time.Location
	Logger    *log.Logger
}

func DefaultConfig() *Config {
	return &Config{
		Listen:    "127.0.0.1:8080",
		PIDFile:   paths.DefaultPIDPath(),
		SiteTitle: "Projects",
		Location:  time.UTC,
	}
}

// New creates a daemon serving reg. reg may be nil when the daemon is only
// used to control another running instance (Stop, GetStatus).
func New(cfg *Config, reg Registry) (*Daemon, error) {
	defaults := DefaultConfig()
	if cfg.Listen == "" {
		cfg.Listen = defaults.Listen
	}
	if cfg.PIDFile == "" {
		cfg.PIDFile = defaults.PIDFile
	}
	if cfg.SiteTitle == "" {
		cfg.SiteTitle = defaults.SiteTitle
	}
	if cfg.Location == nil {
		cfg.Location = defaults.Location
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}

	d := &Daemon{
		listen:     cfg.Listen,
		pidFile:    cfg.PIDFile,
		siteTitle:  cfg.SiteTitle,
		location:   cfg.Location,
		logger:     cfg.Logger,
		registry:   reg,
		httpClient: &http.Client{Timeout: 2 * time.Second},
		startTime:  time.Now().UTC(),
	}

	p, err := loadPages(template.FuncMap{
		"date":     d.formatDate,
		"datetime": d.formatDateTime,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load templates: %w", err)
	}
	d.pages = p
	return d, nil
}

// Handler returns the HTTP handler of the daemon.
func (d *Daemon) Handler() http.Handler {
	return d.routes()
}

// Start serves HTTP until ctx is done or the server fails.
func (d *Daemon) Start(ctx context.Context) error {
	if d.registry == nil {
		return errors.New("daemon has no registry to serve")
	}
	if d.IsRunning() {
		pid, _ := d.readPIDFile()
		return fmt.Errorf("daemon already running (PID: %d)", pid)
	}

	listener, err := net.Listen("tcp", d.listen)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", d.listen, err)
	}
	d.listener = listener

	if err := d.writePIDFile(); err != nil {
		listener.Close()
		return fmt.Errorf("failed to write PID file: %w", err)
	}

	d.server = &http.Server{
		Handler:      d.routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}

	serverErr := make(chan error, 1)
	go func() {
		d.logger.Info("daemon started", "pid", os.Getpid(), "listen", listener.Addr().String())
		serverErr <- d.server.Serve(listener)
	}()

	var result error
	select {
	case <-ctx.Done():
		d.logger.Info("shutting down")
	case err := <-serverErr:
		if !errors.Is(err, http.ErrServerClosed) {
			d.logger.Error("server error", "err", err)
			result = err
		}
	}

	d.shutdown()
	return result
}

func (d *Daemon) Stop() error {
	pid, err := d.readPIDFile()
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("daemon not running")
		}
		return fmt.Errorf("failed reading pidfile: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("process not found: %w", err)
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("failed to stop daemon: %w", err)
	}

	// Wait for shutdown (max 5 seconds)
	for i := 0; i < 50; i++ {
		if !d.IsRunning() {
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}

	return fmt.Errorf("daemon did not stop gracefully")
}

func (d *Daemon) GetStatus() (*StatusInfo, error) {
	info := &StatusInfo{
		Listen: d.listen,
	}

	pid, err := d.readPIDFile()
	if err != nil {
		return info, nil
	}
	info.PID = pid

	if !isProcessAlive(pid) {
		// Stale PID file
		return info, nil
	}

	health, err := d.getHealth()
	if err != nil {
		info.ErrorMessage = err.Error()
		return info, nil
	}
	if health.PID != pid {
		info.ErrorMessage = fmt.Sprintf("%s is served by PID %d", d.listen, health.PID)
		return info, nil
	}

	info.Running = true
	info.Uptime = time.Duration(health.Uptime * float64(time.Second))
	info.Projects = health.Projects
	return info, nil
}

func (d *Daemon) IsRunning() bool {
	pid, err := d.readPIDFile()
	if err != nil {
		return false
	}
	if !isProcessAlive(pid) {
		return false
	}

	// Verify daemon identity through the health endpoint; this protects
	// against PID reuse.
	health, err := d.getHealth()
	return err == nil && health.PID == pid
}

func (d *Daemon) shutdown() {
	if d.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := d.server.Shutdown(ctx); err != nil {
			d.logger.Warn("server shutdown error", "err", err)
		}
	}

	if d.httpClient != nil {
		d.httpClient.CloseIdleConnections()
	}
	if d.listener != nil {
		d.listener.Close()
	}
	os.Remove(d.pidFile)
	d.logger.Info("daemon stopped")
}

func (d *Daemon) writePIDFile() error {
	pid := os.Getpid()

	if err := ensureParentDir(d.pidFile); err != nil {
		return fmt.Errorf("failed to create PID file directory: %w", err)
	}

	// Try to create PID file atomically with O_EXCL
	for {
		f, err := os.OpenFile(d.pidFile, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
		if err == nil {
			defer f.Close()
			_, err = f.WriteString(strconv.Itoa(pid))
			return err
		}
		if !os.IsExist(err) {
			return fmt.Errorf("failed to create PID file: %w", err)
		}
		if oldPID, err2 := d.readPIDFile(); err2 == nil && isProcessAlive(oldPID) {
			return fmt.Errorf("daemon already running (PID: %d)", oldPID)
		}
		// Stale PID file; remove and retry
		if err := os.Remove(d.pidFile); err != nil {
			return fmt.Errorf("stale pidfile exists and cannot remove: %w", err)
		}
	}
}

// isProcessAlive checks if a process with the given PID is alive
func isProcessAlive(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	// Send signal 0 to check if process is alive
	err = process.Signal(syscall.Signal(0))
	return err == nil
}

func (d *Daemon) readPIDFile() (int, error) {
	data, err := os.ReadFile(d.pidFile)
	if err != nil {
		return 0, err
	}

	return strconv.Atoi(strings.TrimSpace(string(data)))
}

type HealthResponse struct {
	Status   string  `json:"status"`
	PID      int     `json:"pid"`
	Uptime   float64 `json:"uptime"`
	Projects int     `json:"projects"`
}

type StatusInfo struct {
	Running      bool
	PID          int
	Listen       string
	Uptime       time.Duration
	Projects     int
	ErrorMessage string // For when process exists but not responding
}

// BaseURL returns the URL clients use to reach a daemon listening on addr.
// Wildcard hosts are replaced with the loopback address.
func BaseURL(addr string) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "http://" + addr
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, port)
}

func (d *Daemon) getHealth() (*HealthResponse, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, BaseURL(d.listen)+"/health", nil)
	if err != nil {
		return nil, err
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("health returned HTTP %d", resp.StatusCode)
	}

	var health HealthResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, limits.JSON)).Decode(&health); err != nil {
		return nil, err
	}

	return &health, nil
}

func (d *Daemon) formatDate(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return t.In(d.location).Format("2006-01-02")
}

func (d *Daemon) formatDateTime(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return t.In(d.location).Format("2006-01-02 15:04 MST")
}
