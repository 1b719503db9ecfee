//go:build unix

package cmd

import (
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/gurisko/projects/internal/apiclient"
	"github.com/gurisko/projects/internal/daemon"
	"github.com/gurisko/projects/internal/project"
)

var (
	showJSON bool
	showYAML bool
)

var showCmd = &cobra.Command{
	Use:   "show <project>",
	Short: "Show project details",
	Long: `Display a project's metadata and release history.

Examples:
  projects show alpha
  projects show alpha --yaml`,
	Args: cobra.ExactArgs(1),
	RunE: runShow,
}

func init() {
	rootCmd.AddCommand(showCmd)
	showCmd.Flags().BoolVar(&showJSON, "json", false, "output JSON")
	showCmd.Flags().BoolVar(&showYAML, "yaml", false, "output YAML")
	showCmd.MarkFlagsMutuallyExclusive("json", "yaml")
}

func runShow(cmd *cobra.Command, args []string) error {
	id := args[0]

	var resp daemon.ProjectResponse
	if err := newClient(cmd).GetJSON(cmd.Context(), "/api/projects/"+url.PathEscape(id), &resp); err != nil {
		if apiclient.IsNotFound(err) {
			return fmt.Errorf("project %q not found", id)
		}
		return err
	}

	switch {
	case showJSON:
		return printJSON(os.Stdout, resp)
	case showYAML:
		return printYAML(os.Stdout, resp.Project)
	}

	printProject(resp.Project)
	return nil
}

func printProject(p *project.Record) {
	fmt.Printf("# %s\n\n", p.ID)
	if p.Description != "" {
		fmt.Printf("%s\n\n", p.Description)
	}
	if p.Homepage != "" {
		fmt.Printf("Homepage: %s\n", p.Homepage)
	}
	if p.RepoURL != "" {
		fmt.Printf("Source:   %s\n", p.RepoURL)
	}
	if p.License != "" {
		fmt.Printf("License:  %s\n", p.License)
	}
	fmt.Printf("Revision: %s\n", p.SourceRevision)
	fmt.Printf("Built:    %s\n", p.BuiltAt.Local().Format(time.RFC3339))

	if len(p.Versions) > 0 {
		fmt.Printf("\n## Releases (%d)\n\n", len(p.Versions))
		for _, v := range p.RecentVersions(len(p.Versions)) {
			if v.ArtifactURL != "" {
				fmt.Printf("  %-10s %s  %s\n", v.Tag, formatDate(v.ReleasedAt), v.ArtifactURL)
			} else {
				fmt.Printf("  %-10s %s\n", v.Tag, formatDate(v.ReleasedAt))
			}
		}
	}
	if p.Readme != nil && p.Readme.Title != "" {
		fmt.Printf("\nREADME: %s\n", p.Readme.Title)
	}
}
