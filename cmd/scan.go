package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/gurisko/projects/internal/config"
)

var scanYAML bool

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Build every project once without a daemon",
	Long: `Scan the repository directory, build all projects and print the result.
Useful for checking repository configuration before starting the daemon.

Examples:
  projects scan --repo-basedir /srv/git
  projects scan --yaml`,
	Args: cobra.NoArgs,
	RunE: runScan,
}

func init() {
	rootCmd.AddCommand(scanCmd)
	f := scanCmd.Flags()
	f.String(config.FlagName("repo_basedir"), "", "directory containing the repositories")
	f.String(config.FlagName("dist_basedir"), "", "directory containing release archives")
	f.String(config.FlagName("repo_baseurl"), "", "public base URL of the repositories")
	f.String(config.FlagName("dist_baseurl"), "", "public base URL of the release archives")
	f.BoolVar(&scanYAML, "yaml", false, "output YAML")
}

func runScan(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	level := cfg.Level()
	if level < log.WarnLevel && !cmd.Flags().Changed(config.FlagName("log_level")) {
		level = log.WarnLevel
	}
	reg, err := newRegistry(cfg, newLogger(level))
	if err != nil {
		return err
	}
	defer reg.Close()

	if err := reg.Load(cmd.Context()); err != nil {
		return err
	}
	records := reg.ListEnabled(cmd.Context())

	if scanYAML {
		return printYAML(os.Stdout, records)
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tVERSIONS\tLATEST\tREADME")
	for _, rec := range records {
		latest := "-"
		if v := rec.RecentVersions(1); len(v) == 1 {
			latest = v[0].Tag
		}
		readme := "no"
		if rec.Readme != nil {
			readme = "yes"
		}
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", rec.ID, len(rec.Versions), latest, readme)
	}
	return w.Flush()
}
