package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/nethalo/dumpchunk/internal/output"
	"github.com/nethalo/dumpchunk/internal/verify"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// errVerifyFailed makes verify exit non-zero after the report was printed.
var errVerifyFailed = errors.New("verification found problems")

var verifyCmd = &cobra.Command{
	Use:   "verify <chunk-dir|chunk-file>",
	Short: "Check chunk files before importing them",
	Long: `Check that every chunk file starts with the session header and ends with the
footer exactly once, and parse every statement in between to count rows per
table. Statements that do not parse are reported with their file and line.

Exits non-zero when any problem is found.`,
	Args:         cobra.ExactArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		skipParse, _ := cmd.Flags().GetBool("skip-parse")
		opts := verify.Options{
			SkipParse: skipParse,
			Logger:    logrus.WithField("target", args[0]),
		}

		info, err := os.Stat(args[0])
		if err != nil {
			return fmt.Errorf("cannot access %s: %w", args[0], err)
		}

		var report *verify.Report
		if info.IsDir() {
			report, err = verify.Dir(args[0], opts)
		} else {
			report, err = verify.File(args[0], opts)
		}
		if err != nil {
			return err
		}

		output.NewRenderer(viper.GetString("format"), cmd.OutOrStdout()).RenderVerify(report)
		if !report.OK() {
			return fmt.Errorf("%w: %d problem(s)", errVerifyFailed, len(report.Problems))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(verifyCmd)
	verifyCmd.Flags().Bool("skip-parse", false, "only check header and footer framing")
}
