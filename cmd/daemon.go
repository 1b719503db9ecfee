//go:build unix

package cmd

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/gurisko/projects/internal/config"
	"github.com/gurisko/projects/internal/daemon"
	"github.com/gurisko/projects/internal/watch"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Manage the projects daemon",
	Long: `Control the projects daemon that caches project metadata and serves it over HTTP.

The daemon provides:
- HTML pages listing projects and their releases
- A JSON API under /api
- Background refresh of changed repositories`,
}

var daemonStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the projects daemon",
	Long: `Start the projects daemon in foreground mode.

For background operation, use:
  nohup projects daemon start > /tmp/projects-daemon.log 2>&1 &`,
	RunE: startDaemon,
}

var daemonStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the projects daemon",
	Long:  "Stop the running projects daemon gracefully.",
	RunE:  stopDaemon,
}

var daemonStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check daemon status",
	Long:  "Check if the projects daemon is running and display its status.",
	RunE:  statusDaemon,
}

func init() {
	rootCmd.AddCommand(daemonCmd)
	daemonCmd.AddCommand(daemonStartCmd)
	daemonCmd.AddCommand(daemonStopCmd)
	daemonCmd.AddCommand(daemonStatusCmd)

	f := daemonCmd.PersistentFlags()
	f.String(config.FlagName("listen"), "", "address to serve HTTP on")
	f.String(config.FlagName("pid_file"), "", "PID file path")

	f = daemonStartCmd.Flags()
	f.String(config.FlagName("repo_basedir"), "", "directory containing the repositories")
	f.String(config.FlagName("dist_basedir"), "", "directory containing release archives")
	f.String(config.FlagName("repo_baseurl"), "", "public base URL of the repositories")
	f.String(config.FlagName("dist_baseurl"), "", "public base URL of the release archives")
	f.Duration(config.FlagName("check_interval"), 0, "how long a project is served before it is checked again")
	f.Duration(config.FlagName("rediscover_interval"), 0, "how often the repository directory is rescanned")
	f.Int(config.FlagName("build_concurrency"), 0, "parallel project builds")
	f.String(config.FlagName("timezone"), "", "time zone for displayed dates")
	f.Bool(config.FlagName("watch"), true, "rescan when repositories are added or removed")
}

func controlDaemon(cmd *cobra.Command) (*daemon.Daemon, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	d, err := daemon.New(&daemon.Config{Listen: cfg.Listen, PIDFile: cfg.PIDFile}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize daemon: %w", err)
	}
	return d, nil
}

func startDaemon(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger := newLogger(cfg.Level())

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	reg, err := newRegistry(cfg, logger)
	if err != nil {
		return err
	}
	defer reg.Close()

	d, err := daemon.New(&daemon.Config{
		Listen:    cfg.Listen,
		PIDFile:   cfg.PIDFile,
		SiteTitle: cfg.SiteTitle,
		Location:  cfg.Location(),
		Logger:    logger.WithPrefix("http"),
	}, reg)
	if err != nil {
		return fmt.Errorf("failed to initialize daemon: %w", err)
	}
	if d.IsRunning() {
		return fmt.Errorf("daemon already running at %s", cfg.Listen)
	}

	if err := reg.Load(ctx); err != nil {
		return fmt.Errorf("initial build: %w", err)
	}

	trigger := make(chan struct{}, 1)
	if cfg.Watch {
		w := watch.New(cfg.RepoBaseDir, 0, logger.WithPrefix("watch"))
		go func() {
			if err := w.Run(ctx, trigger); err != nil {
				logger.Warn("repository watcher stopped", "err", err)
			}
		}()
	}
	go reg.Run(ctx, trigger)

	return d.Start(ctx)
}

func stopDaemon(cmd *cobra.Command, args []string) error {
	d, err := controlDaemon(cmd)
	if err != nil {
		return err
	}
	if err := d.Stop(); err != nil {
		return err
	}
	fmt.Println("projects daemon stopped")
	return nil
}

func statusDaemon(cmd *cobra.Command, args []string) error {
	d, err := controlDaemon(cmd)
	if err != nil {
		return err
	}

	status, err := d.GetStatus()
	if err != nil {
		return err
	}

	if !status.Running {
		if status.PID > 0 {
			if status.ErrorMessage != "" {
				fmt.Printf("projects daemon process exists (PID: %d) but not responding\n", status.PID)
				fmt.Printf("  Listen: %s\n", status.Listen)
				fmt.Printf("  Error: %v\n", status.ErrorMessage)
			} else {
				fmt.Printf("projects daemon is not running (stale pidfile)\n")
				fmt.Printf("  Listen: %s\n", status.Listen)
			}
		} else {
			fmt.Printf("projects daemon is not running\n")
			fmt.Printf("  Listen: %s\n", status.Listen)
		}
		return nil
	}

	fmt.Printf("projects daemon running (PID: %d)\n", status.PID)
	fmt.Printf("  Listen:   %s\n", status.Listen)
	fmt.Printf("  Uptime:   %s\n", status.Uptime.Round(time.Second))
	fmt.Printf("  Projects: %d\n", status.Projects)
	return nil
}
