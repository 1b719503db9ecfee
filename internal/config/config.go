// Package config loads daemon settings from a YAML file, PROJECTS_*
// environment variables and command line flags, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/gurisko/projects/internal/paths"
)

// ErrInvalidConfig is wrapped by every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// EnvPrefix is prepended to upper-cased keys to form environment variable names.
const EnvPrefix = "PROJECTS"

// Config is the daemon configuration.
type Config struct {
	RepoBaseDir string `mapstructure:"repo_basedir" yaml:"repo_basedir"`
	DistBaseDir string `mapstructure:"dist_basedir" yaml:"dist_basedir"`
	RepoBaseURL string `mapstructure:"repo_baseurl" yaml:"repo_baseurl"`
	DistBaseURL string `mapstructure:"dist_baseurl" yaml:"dist_baseurl"`

	CheckInterval      time.Duration `mapstructure:"check_interval" yaml:"check_interval"`
	RediscoverInterval time.Duration `mapstructure:"rediscover_interval" yaml:"rediscover_interval"`
	MaxAge             time.Duration `mapstructure:"max_age" yaml:"max_age"`
	BuildConcurrency   int           `mapstructure:"build_concurrency" yaml:"build_concurrency"`
	BuildTimeout       time.Duration `mapstructure:"build_timeout" yaml:"build_timeout"`

	Listen    string `mapstructure:"listen" yaml:"listen"`
	PIDFile   string `mapstructure:"pid_file" yaml:"pid_file"`
	LogLevel  string `mapstructure:"log_level" yaml:"log_level"`
	Timezone  string `mapstructure:"timezone" yaml:"timezone"`
	SiteTitle string `mapstructure:"site_title" yaml:"site_title"`
	Watch     bool   `mapstructure:"watch" yaml:"watch"`
}

func defaults() map[string]any {
	return map[string]any{
		"repo_basedir":        "",
		"dist_basedir":        "",
		"repo_baseurl":        "",
		"dist_baseurl":        "",
		"check_interval":      time.Hour,
		"rediscover_interval": 10 * time.Minute,
		"max_age":             24 * time.Hour,
		"build_concurrency":   4,
		"build_timeout":       2 * time.Minute,
		"listen":              "127.0.0.1:8080",
		"pid_file":            paths.DefaultPIDPath(),
		"log_level":           "info",
		"timezone":            "UTC",
		"site_title":          "Projects",
		"watch":               true,
	}
}

// FlagName returns the command line flag bound to key.
func FlagName(key string) string {
	return strings.ReplaceAll(key, "_", "-")
}

// Load reads the configuration. An explicit path must exist; without one the
// default config file is used when present. Flags in flags whose names match
// a key (with dashes for underscores) override file and environment values
// when set. The result is not validated.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	for key, value := range defaults() {
		v.SetDefault(key, value)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(paths.DefaultConfigDir())
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	if flags != nil {
		for key := range defaults() {
			if f := flags.Lookup(FlagName(key)); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", f.Name, err)
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return &cfg, nil
}

// Validate checks every setting and reports all problems at once.
func (c *Config) Validate() error {
	var errs []error

	if c.RepoBaseDir == "" {
		errs = append(errs, errors.New("repo_basedir is required"))
	} else if err := checkDir(c.RepoBaseDir); err != nil {
		errs = append(errs, fmt.Errorf("repo_basedir: %w", err))
	}
	if c.DistBaseDir != "" {
		if err := checkDir(c.DistBaseDir); err != nil {
			errs = append(errs, fmt.Errorf("dist_basedir: %w", err))
		}
		if c.DistBaseURL == "" {
			errs = append(errs, errors.New("dist_baseurl is required when dist_basedir is set"))
		}
	}
	if c.RepoBaseURL != "" {
		if err := checkURL(c.RepoBaseURL); err != nil {
			errs = append(errs, fmt.Errorf("repo_baseurl: %w", err))
		}
	}
	if c.DistBaseURL != "" {
		if err := checkURL(c.DistBaseURL); err != nil {
			errs = append(errs, fmt.Errorf("dist_baseurl: %w", err))
		}
	}

	for name, d := range map[string]time.Duration{
		"check_interval":      c.CheckInterval,
		"rediscover_interval": c.RediscoverInterval,
		"max_age":             c.MaxAge,
		"build_timeout":       c.BuildTimeout,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %s", name, d))
		}
	}
	if c.BuildConcurrency <= 0 {
		errs = append(errs, fmt.Errorf("build_concurrency must be positive, got %d", c.BuildConcurrency))
	}
	if c.Listen == "" {
		errs = append(errs, errors.New("listen is required"))
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("timezone: %w", err))
	}
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("log_level: %w", err))
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
}

// Location returns the display time zone, UTC when unset or unknown.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Level returns the configured log level, info when unparsable.
func (c *Config) Level() log.Level {
	lvl, err := log.ParseLevel(c.LogLevel)
	if err != nil {
		return log.InfoLevel
	}
	return lvl
}

func checkDir(path string) error {
	fi, err := os.Stat(path)
	if err != nil {
		return err
	}
	if !fi.IsDir() {
		return fmt.Errorf("%s is not a directory", path)
	}
	return nil
}

func checkURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%q must be an http or https URL", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("%q has no host", raw)
	}
	return nil
}
