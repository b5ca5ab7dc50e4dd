package cmd

import (
	"fmt"

	"github.com/nethalo/dumpchunk/internal/mysql"
	"github.com/nethalo/dumpchunk/internal/output"
	"github.com/nethalo/dumpchunk/internal/topology"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var connectCmd = &cobra.Command{
	Use:          "connect",
	Short:        "Test connection and show what matters for an import",
	SilenceUsage: true, // Don't show usage on errors
	Long: `Connect to a MySQL instance and report its version, topology (standalone,
replica, Galera/PXC, Group Replication), max_allowed_packet, the transaction
size limit chunks must fit in, and a size summary of the selected database.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		conn, connCfg, err := openDB(ctx)
		if err != nil {
			return err
		}
		defer conn.Close()

		topo, err := topology.Detect(conn)
		if err != nil {
			return fmt.Errorf("topology detection failed: %w", err)
		}

		info := output.ConnectionInfo{Conn: connCfg, Topology: topo}
		if info.MaxAllowedPacket, err = mysql.MaxAllowedPacket(conn); err != nil {
			logrus.WithError(err).Warn("could not read max_allowed_packet")
		}
		if connCfg.Database != "" {
			schema, err := mysql.DescribeSchema(ctx, conn, connCfg.Database)
			if err != nil {
				return fmt.Errorf("reading schema summary: %w", err)
			}
			info.Schema = schema
		}

		output.NewRenderer(viper.GetString("format"), cmd.OutOrStdout()).RenderConnection(info)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(connectCmd)
}
