package cmd

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/nethalo/dumpchunk/internal/importer"
	"github.com/nethalo/dumpchunk/internal/output"
	"github.com/nethalo/dumpchunk/internal/progress"
	"github.com/nethalo/dumpchunk/internal/topology"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"
)

var importCmd = &cobra.Command{
	Use:   "import <chunk-dir>",
	Short: "Replay chunk files into MySQL in order",
	Long: `Import the chunk files of a directory in numeric order, each on a single
connection and in its own transaction. A failed chunk is rolled back and retried
when the error is transient (deadlock, lock wait timeout, lost connection).

Before importing, the target is inspected: chunks larger than a Galera or Group
Replication transaction limit are reported, as are read-only and replica targets.

Examples:
  dumpchunk import chunks -d shop
  dumpchunk import chunks -d shop --structure chunks/structure.sql
  dumpchunk import chunks -d shop --start-at 17 --retries 5`,
	Args:         cobra.ExactArgs(1),
	SilenceUsage: true,
	RunE:         runImport,
}

func init() {
	rootCmd.AddCommand(importCmd)

	f := importCmd.Flags()
	f.String("structure", "", "structure file to import before the chunks")
	f.Int("start-at", 0, "first chunk number to import; earlier chunks are skipped")
	f.Int("retries", importer.DefaultRetries, "retries per chunk on transient errors")
	f.Duration("retry-delay", importer.DefaultRetryDelay, "wait between retries")
	f.Bool("continue-on-error", false, "record failed chunks and keep going")
	f.Bool("dry-run", false, "count statements without connecting or executing")
	f.Bool("no-progress", false, "do not draw a progress bar")

	bindFlag("import.retries", f.Lookup("retries"))
	bindFlag("import.retry_delay", f.Lookup("retry-delay"))
}

func runImport(cmd *cobra.Command, args []string) error {
	dir := args[0]
	if info, err := os.Stat(dir); err != nil {
		return fmt.Errorf("cannot access chunk directory: %w", err)
	} else if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", dir)
	}

	structure, _ := cmd.Flags().GetString("structure")
	startAt, _ := cmd.Flags().GetInt("start-at")
	continueOnError, _ := cmd.Flags().GetBool("continue-on-error")
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	noProgress, _ := cmd.Flags().GetBool("no-progress")

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := importer.Config{
		Dir:             dir,
		StructurePath:   structure,
		StartAt:         startAt,
		Retries:         viper.GetInt("import.retries"),
		RetryDelay:      viper.GetDuration("import.retry_delay"),
		ContinueOnError: continueOnError,
		DryRun:          dryRun,
		Logger:          logrus.WithField("dir", dir),
	}

	chunks, err := importer.ListChunks(dir)
	if err != nil {
		return err
	}
	total := 0
	for _, c := range chunks {
		if c.Index >= startAt {
			total++
		}
	}

	db, closeDB, err := openTarget(ctx, &cfg)
	if err != nil {
		return err
	}
	defer closeDB()

	var bar *progress.Bar
	if !noProgress && term.IsTerminal(int(os.Stderr.Fd())) {
		bar = progress.NewCounter(os.Stderr, "import", int64(total))
		cfg.Progress = func(res importer.FileResult) {
			if !res.Structure {
				bar.Increment()
			}
		}
	}

	im := importer.New(db, cfg)
	report, runErr := im.Run(ctx)
	if runErr != nil {
		bar.Abort()
	} else {
		bar.Finish()
	}
	if report != nil {
		output.NewRenderer(viper.GetString("format"), cmd.OutOrStdout()).RenderImport(report)
	}
	if runErr != nil {
		return fmt.Errorf("import failed: %w", runErr)
	}
	return nil
}

// openTarget connects and inspects the target unless this is a dry run, in
// which case the returned *sql.DB is nil.
func openTarget(ctx context.Context, cfg *importer.Config) (*sql.DB, func(), error) {
	if cfg.DryRun {
		return nil, func() {}, nil
	}

	db, connCfg, err := openDB(ctx)
	if err != nil {
		return nil, nil, err
	}
	if connCfg.Database == "" {
		logrus.Warn("no --database given; chunks must select their own database")
	}

	topo, err := topology.Detect(db)
	if err != nil {
		logrus.WithError(err).Warn("topology detection failed; transaction limits not checked")
	} else {
		cfg.Topology = topo
		logrus.WithFields(logrus.Fields{
			"topology": topo.Type,
			"version":  topo.Version.String(),
		}).Debug("target inspected")
	}
	return db, func() { db.Close() }, nil
}
