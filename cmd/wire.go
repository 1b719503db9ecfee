package cmd

import (
	"fmt"

	"github.com/charmbracelet/log"

	"github.com/gurisko/projects/internal/artifact"
	"github.com/gurisko/projects/internal/config"
	"github.com/gurisko/projects/internal/markup"
	"github.com/gurisko/projects/internal/project"
	"github.com/gurisko/projects/internal/registry"
	"github.com/gurisko/projects/internal/vcs"
)

// newRegistry assembles the git backend, artifact store, renderer and
// builder described by cfg into an unloaded registry.
func newRegistry(cfg *config.Config, logger *log.Logger) (*registry.Registry, error) {
	bc := project.BuilderConfig{
		Backend:     vcs.NewGit(cfg.RepoBaseDir),
		Renderer:    markup.New(),
		RepoBaseURL: cfg.RepoBaseURL,
		Logger:      logger.WithPrefix("builder"),
	}
	if cfg.DistBaseDir != "" {
		store, err := artifact.NewOS(cfg.DistBaseDir, cfg.DistBaseURL)
		if err != nil {
			return nil, fmt.Errorf("artifact store: %w", err)
		}
		bc.Artifacts = store
	}

	return registry.New(project.NewBuilder(bc), registry.Options{
		CheckInterval:      cfg.CheckInterval,
		RediscoverInterval: cfg.RediscoverInterval,
		MaxAge:             cfg.MaxAge,
		Concurrency:        cfg.BuildConcurrency,
		BuildTimeout:       cfg.BuildTimeout,
		Logger:             logger.WithPrefix("registry"),
	}), nil
}
