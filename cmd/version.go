package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

const versionTemplate = `dumpchunk {{.Version}}

Chunks replay on MySQL 5.7, 8.0 and 8.4 (including Percona Server),
Percona XtraDB Cluster, Group Replication, MariaDB and Aurora MySQL.
`

// Version is set at build time via ldflags
var (
	Version   = "dev"
	CommitSHA = "none"
	BuildDate = "unknown"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print dumpchunk version",
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "dumpchunk %s (commit: %s, built: %s)\n\n", Version, CommitSHA, BuildDate)
		fmt.Fprintln(out, "Chunks replay on MySQL 5.7, 8.0 and 8.4 (including Percona Server),")
		fmt.Fprintln(out, "Percona XtraDB Cluster, Group Replication, MariaDB and Aurora MySQL.")
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)

	// Enable the standard --version flag, matching the `version` subcommand output.
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", Version, CommitSHA, BuildDate)
	rootCmd.SetVersionTemplate(versionTemplate)
}
