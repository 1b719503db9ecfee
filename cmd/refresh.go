//go:build unix

package cmd

import (
	"fmt"
	"net/url"

	"github.com/spf13/cobra"

	"github.com/gurisko/projects/internal/apiclient"
	"github.com/gurisko/projects/internal/daemon"
)

var refreshCmd = &cobra.Command{
	Use:   "refresh [project]",
	Short: "Refresh a project now",
	Long: `Ask the daemon to check a project against its repository immediately.
Without a project, the daemon rescans the repository directory instead.

Examples:
  projects refresh alpha
  projects refresh`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRefresh,
}

func init() {
	rootCmd.AddCommand(refreshCmd)
}

func runRefresh(cmd *cobra.Command, args []string) error {
	c := newClient(cmd)
	if len(args) == 0 {
		if err := c.PostJSON(cmd.Context(), "/api/rediscover", nil, nil); err != nil {
			return err
		}
		fmt.Println("Rescan requested")
		return nil
	}

	id := args[0]
	var resp daemon.RefreshResponse
	if err := c.PostJSON(cmd.Context(), "/api/projects/"+url.PathEscape(id)+"/refresh", nil, &resp); err != nil {
		if apiclient.IsNotFound(err) {
			return fmt.Errorf("project %q not found or disabled", id)
		}
		return err
	}
	if resp.Error != "" {
		return fmt.Errorf("refresh %s failed, still serving build %s: %s", id, resp.Project.BuildID, resp.Error)
	}
	fmt.Printf("%s at %s (build %s)\n", id, short(resp.Project.SourceRevision), resp.Project.BuildID)
	return nil
}

func short(rev string) string {
	if len(rev) > 12 {
		return rev[:12]
	}
	if rev == "" {
		return "(no commits)"
	}
	return rev
}
