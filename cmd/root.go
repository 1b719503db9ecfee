package cmd

import (
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/gurisko/projects/internal/config"
	"github.com/gurisko/projects/internal/paths"
)

var (
	configPath string
	serverURL  string
)

var rootCmd = &cobra.Command{
	Use:   "projects",
	Short: "Project metadata cache and release index",
	Long: `projects serves metadata about the repositories under a base directory:
descriptions, released versions with their download archives, and READMEs.

The daemon keeps an in-memory cache of every enabled project and refreshes it
as repositories change.`,
}

func Execute() error {
	// Silence usage and errors to avoid cluttering output with Cobra defaults
	rootCmd.SilenceUsage = true
	rootCmd.SilenceErrors = true
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default "+paths.DefaultConfigPath()+")")
	rootCmd.PersistentFlags().String(config.FlagName("log_level"), "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "daemon URL for client commands (default derived from listen)")
}

// loadConfig reads the configuration, letting flags of cmd override it.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	return config.Load(configPath, cmd.Flags())
}

// newLogger creates the process logger writing to stderr.
func newLogger(level log.Level) *log.Logger {
	return log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		TimeFormat:      "15:04:05.00",
		Level:           level,
	})
}
