//go:build unix

package cmd

import (
	"github.com/spf13/cobra"

	"github.com/gurisko/projects/internal/apiclient"
	"github.com/gurisko/projects/internal/daemon"
	"github.com/gurisko/projects/internal/paths"
)

// newClient returns an API client for the daemon. --server wins over the
// configured listen address.
func newClient(cmd *cobra.Command) *apiclient.Client {
	if serverURL != "" {
		return apiclient.New(serverURL)
	}
	cfg, err := loadConfig(cmd)
	if err != nil || cfg.Listen == "" {
		return apiclient.New(paths.DefaultServerURL)
	}
	return apiclient.New(daemon.BaseURL(cfg.Listen))
}
