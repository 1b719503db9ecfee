//go:build unix

package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/gurisko/projects/internal/daemon"
)

var (
	listJSON bool
	listYAML bool
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List enabled projects",
	Long: `List the enabled projects cached by the daemon with their latest release.

Examples:
  projects list
  projects list --json`,
	Args: cobra.NoArgs,
	RunE: runList,
}

func init() {
	rootCmd.AddCommand(listCmd)
	listCmd.Flags().BoolVar(&listJSON, "json", false, "output JSON")
	listCmd.Flags().BoolVar(&listYAML, "yaml", false, "output YAML")
	listCmd.MarkFlagsMutuallyExclusive("json", "yaml")
}

func runList(cmd *cobra.Command, args []string) error {
	var out daemon.ListProjectsResponse
	if err := newClient(cmd).GetJSON(cmd.Context(), "/api/projects", &out); err != nil {
		return err
	}

	switch {
	case listJSON:
		return printJSON(os.Stdout, out)
	case listYAML:
		return printYAML(os.Stdout, out)
	}

	if len(out.Projects) == 0 {
		fmt.Println("No projects")
		return nil
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tLATEST\tRELEASED\tDESCRIPTION")
	for _, p := range out.Projects {
		latest, released := "-", "-"
		if v := p.RecentVersions(1); len(v) == 1 {
			latest, released = v[0].Tag, formatDate(v[0].ReleasedAt)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", p.ID, latest, released, p.Description)
	}
	return w.Flush()
}
