package paths

import (
	"os"
	"path/filepath"
)

const appName = "projects"

// DefaultServerURL is where CLI commands look for a running daemon.
const DefaultServerURL = "http://127.0.0.1:8080"

func DefaultRuntimeDir() string {
	if x := os.Getenv("XDG_RUNTIME_DIR"); x != "" {
		return filepath.Join(x, appName)
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, "."+appName)
}

func DefaultConfigDir() string {
	if x := os.Getenv("XDG_CONFIG_HOME"); x != "" {
		return filepath.Join(x, appName)
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", appName)
}

func DefaultPIDPath() string    { return filepath.Join(DefaultRuntimeDir(), "daemon.pid") }
func DefaultConfigPath() string { return filepath.Join(DefaultConfigDir(), "config.yaml") }
