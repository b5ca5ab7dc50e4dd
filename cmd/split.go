package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/nethalo/dumpchunk/internal/chunker"
	"github.com/nethalo/dumpchunk/internal/output"
	"github.com/nethalo/dumpchunk/internal/progress"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"
)

var splitCmd = &cobra.Command{
	Use:   "split <dump.sql|->",
	Short: "Split a SQL dump into chunk files",
	Long: `Split a SQL dump into chunk_NN.sql files of at most --chunk-size INSERT or
REPLACE statements each. Every chunk starts with a session header that disables
foreign key and unique checks and runs in one transaction, and ends with a
footer that commits and restores those settings.

Use "-" to read the dump from standard input.

Examples:
  dumpchunk split backup.sql -o chunks
  dumpchunk split backup.sql -n 500 --rewrite-replace --structure auto
  zcat backup.sql.gz | dumpchunk split - -o chunks`,
	Args:         cobra.ExactArgs(1),
	SilenceUsage: true,
	RunE:         runSplit,
}

func init() {
	rootCmd.AddCommand(splitCmd)

	f := splitCmd.Flags()
	f.StringP("output", "o", "chunks", "directory to write chunk files into")
	f.IntP("chunk-size", "n", chunker.DefaultChunkSize, "statements per chunk")
	f.Bool("rewrite-replace", false, "rewrite INSERT INTO as REPLACE INTO")
	f.String("structure", "", `write CREATE TABLE statements to this file ("auto" = <output>/structure.sql)`)
	f.String("unrecognized", string(chunker.UnrecognizedKeep), "lines outside any statement no rule matches: keep or drop")
	f.Bool("skip-ddl", false, "drop CREATE/ALTER/DROP statements instead of passing them through")
	f.Bool("strict-terminator", false, "only end a statement on a line ending in a semicolon")
	f.Int("index-width", chunker.DefaultIndexWidth, "minimum digits in chunk file numbers")
	f.Bool("force", false, "remove chunk files left in the output directory by an earlier run")
	f.Bool("precount", false, "estimate the statement count before splitting (files only)")
	f.Bool("no-progress", false, "do not draw a progress bar")

	bindFlag("split.chunk_size", f.Lookup("chunk-size"))
	bindFlag("split.rewrite_replace", f.Lookup("rewrite-replace"))
	bindFlag("split.unrecognized", f.Lookup("unrecognized"))
}

func runSplit(cmd *cobra.Command, args []string) error {
	input := args[0]
	if err := validateInputPath(input); err != nil {
		return err
	}

	outDir, _ := cmd.Flags().GetString("output")
	structure, _ := cmd.Flags().GetString("structure")
	skipDDL, _ := cmd.Flags().GetBool("skip-ddl")
	strict, _ := cmd.Flags().GetBool("strict-terminator")
	width, _ := cmd.Flags().GetInt("index-width")
	force, _ := cmd.Flags().GetBool("force")
	precount, _ := cmd.Flags().GetBool("precount")
	noProgress, _ := cmd.Flags().GetBool("no-progress")

	policy, ok := chunker.ParseUnrecognizedPolicy(viper.GetString("split.unrecognized"))
	if !ok {
		return fmt.Errorf("invalid --unrecognized %q (valid: keep, drop)", viper.GetString("split.unrecognized"))
	}

	opts := chunker.Options{
		OutputDir:        outDir,
		ChunkSize:        viper.GetInt("split.chunk_size"),
		RewriteReplace:   viper.GetBool("split.rewrite_replace"),
		StructurePath:    structurePath(structure, outDir),
		Unrecognized:     policy,
		SkipDDL:          skipDDL,
		StrictTerminator: strict,
		IndexWidth:       width,
		Force:            force,
		Precount:         precount,
		Logger:           logrus.WithField("input", input),
	}

	var bar *progress.Bar
	if !noProgress && term.IsTerminal(int(os.Stderr.Fd())) {
		bar = progress.NewBytes(os.Stderr, "split", inputSize(input))
		opts.Progress = bar.Set
	}

	report, err := chunker.SplitFile(input, opts)
	if err != nil {
		bar.Abort()
		return fmt.Errorf("split failed: %w", err)
	}
	bar.Finish()

	logrus.WithFields(logrus.Fields{
		"chunks":     len(report.Chunks),
		"statements": report.Statements,
		"output":     report.OutputDir,
	}).Debug("split complete")

	output.NewRenderer(viper.GetString("format"), cmd.OutOrStdout()).RenderSplit(report)
	return nil
}

// inputSize is the size of the input file, or 0 for stdin and pipes.
func inputSize(path string) int64 {
	if path == "-" {
		return 0
	}
	info, err := os.Stat(filepath.Clean(path))
	if err != nil || !info.Mode().IsRegular() {
		return 0
	}
	return info.Size()
}
