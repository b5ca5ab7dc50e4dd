package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/nethalo/dumpchunk/internal/chunker"
	"github.com/nethalo/dumpchunk/internal/dumper"
	"github.com/nethalo/dumpchunk/internal/mysql"
	"github.com/nethalo/dumpchunk/internal/output"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var exportCmd = &cobra.Command{
	Use:   "export [database...]",
	Short: "Dump databases with mysqldump, optionally straight into chunks",
	Long: `Run mysqldump against the configured server. The dump is written to --output
(standard output by default) or, with --split-dir, streamed directly into the
splitter so the full dump never touches the disk.

The password is passed to mysqldump through a temporary option file readable
only by the current user, never on the command line.

Examples:
  dumpchunk export shop -o shop.sql
  dumpchunk export shop --split-dir chunks -n 500 --structure auto
  dumpchunk export shop --tables orders,customers --no-create-info`,
	SilenceUsage: true,
	RunE:         runExport,
}

func init() {
	rootCmd.AddCommand(exportCmd)

	f := exportCmd.Flags()
	f.StringP("output", "o", "-", `file to write the dump to ("-" = stdout)`)
	f.String("split-dir", "", "split the dump into chunk files in this directory instead of writing it")
	f.StringSlice("tables", nil, "only dump these tables (requires exactly one database)")
	f.StringSlice("ignore-table", nil, "skip this db.table (repeatable)")
	f.Bool("single-transaction", true, "dump InnoDB tables from one consistent snapshot")
	f.Bool("skip-lock-tables", false, "do not lock tables during the dump")
	f.Bool("no-data", false, "dump the schema only")
	f.Bool("no-create-info", false, "dump the data only")
	f.String("max-allowed-packet", "", "mysqldump max_allowed_packet, e.g. 256M")
	f.String("mysqldump", dumper.DefaultBinary, "mysqldump binary to run")

	// Splitter settings for --split-dir.
	f.IntP("chunk-size", "n", chunker.DefaultChunkSize, "statements per chunk (with --split-dir)")
	f.Bool("rewrite-replace", false, "rewrite INSERT INTO as REPLACE INTO (with --split-dir)")
	f.String("structure", "", `write CREATE TABLE statements to this file (with --split-dir; "auto" = <split-dir>/structure.sql)`)
	f.Bool("force", false, "remove chunk files left in --split-dir by an earlier run")
	f.String("unrecognized", string(chunker.UnrecognizedKeep), "lines outside any statement no rule matches: keep or drop (with --split-dir)")
	f.Bool("skip-ddl", false, "drop CREATE/ALTER/DROP statements instead of passing them through (with --split-dir)")
	f.Bool("strict-terminator", false, "only end a statement on a line ending in a semicolon (with --split-dir)")
	f.Int("index-width", chunker.DefaultIndexWidth, "minimum digits in chunk file numbers (with --split-dir)")
}

func runExport(cmd *cobra.Command, args []string) error {
	connCfg, err := connectionConfig()
	if err != nil {
		return err
	}

	databases := args
	if len(databases) == 0 && connCfg.Database != "" {
		databases = []string{connCfg.Database}
	}
	if len(databases) == 0 {
		return errors.New("no database to export: pass one as an argument or use --database")
	}

	password := connCfg.Password
	if password == "" && connCfg.PasswordFile != "" {
		if password, err = mysql.ReadPasswordFile(connCfg.PasswordFile); err != nil {
			return err
		}
	}
	if password == "" {
		if password, err = mysql.PromptPassword(os.Stderr); err != nil {
			return err
		}
	}

	flags := cmd.Flags()
	tables, _ := flags.GetStringSlice("tables")
	ignore, _ := flags.GetStringSlice("ignore-table")
	singleTx, _ := flags.GetBool("single-transaction")
	skipLock, _ := flags.GetBool("skip-lock-tables")
	noData, _ := flags.GetBool("no-data")
	noCreate, _ := flags.GetBool("no-create-info")
	packet, _ := flags.GetString("max-allowed-packet")
	binary, _ := flags.GetString("mysqldump")

	opts := dumper.Options{
		Binary:            binary,
		Host:              connCfg.Host,
		Port:              connCfg.Port,
		Socket:            connCfg.Socket,
		User:              connCfg.User,
		Password:          password,
		Databases:         databases,
		Tables:            tables,
		IgnoreTables:      ignore,
		SingleTransaction: singleTx,
		SkipLockTables:    skipLock,
		NoData:            noData,
		NoCreateInfo:      noCreate,
		MaxAllowedPacket:  packet,
		Logger:            logrus.WithField("component", "mysqldump"),
	}

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	splitDir, _ := flags.GetString("split-dir")
	if splitDir != "" {
		return exportSplit(ctx, cmd, opts, splitDir)
	}

	out, _ := flags.GetString("output")
	return exportToFile(ctx, opts, out, cmd.OutOrStdout())
}

func exportToFile(ctx context.Context, opts dumper.Options, path string, stdout io.Writer) error {
	if path == "-" || path == "" {
		return dumper.Run(ctx, opts, stdout)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("creating dump file: %w", err)
	}
	if err := dumper.Run(ctx, opts, f); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing dump file: %w", err)
	}
	logrus.WithField("path", path).Info("dump written")
	return nil
}

// exportSplit streams mysqldump output through a pipe into the splitter.
func exportSplit(ctx context.Context, cmd *cobra.Command, opts dumper.Options, dir string) error {
	flags := cmd.Flags()
	chunkSize, _ := flags.GetInt("chunk-size")
	rewrite, _ := flags.GetBool("rewrite-replace")
	structure, _ := flags.GetString("structure")
	force, _ := flags.GetBool("force")
	skipDDL, _ := flags.GetBool("skip-ddl")
	strict, _ := flags.GetBool("strict-terminator")
	width, _ := flags.GetInt("index-width")
	if !flags.Changed("chunk-size") {
		chunkSize = viper.GetInt("split.chunk_size")
	}
	if !flags.Changed("rewrite-replace") {
		rewrite = viper.GetBool("split.rewrite_replace")
	}
	// split.unrecognized is bound to the split command's flag.
	unrecognized := viper.GetString("split.unrecognized")
	if flags.Changed("unrecognized") {
		unrecognized, _ = flags.GetString("unrecognized")
	}
	policy, ok := chunker.ParseUnrecognizedPolicy(unrecognized)
	if !ok {
		return fmt.Errorf("invalid --unrecognized %q (valid: keep, drop)", unrecognized)
	}

	splitOpts := chunker.Options{
		OutputDir:        dir,
		ChunkSize:        chunkSize,
		RewriteReplace:   rewrite,
		StructurePath:    structurePath(structure, dir),
		Unrecognized:     policy,
		SkipDDL:          skipDDL,
		StrictTerminator: strict,
		IndexWidth:       width,
		Force:            force,
		Logger:           logrus.WithField("input", "mysqldump"),
	}

	pr, pw := io.Pipe()
	dumpErr := make(chan error, 1)
	go func() {
		err := dumper.Run(ctx, opts, pw)
		pw.CloseWithError(err)
		dumpErr <- err
	}()

	report, splitErr := chunker.Split(pr, splitOpts)
	// Unblock mysqldump if the splitter stopped reading early.
	pr.CloseWithError(errors.New("splitter stopped"))
	dErr := <-dumpErr
	if dErr != nil && (splitErr == nil || errors.Is(splitErr, dErr)) {
		return fmt.Errorf("export failed: %w", dErr)
	}
	if splitErr != nil {
		return fmt.Errorf("split failed: %w", splitErr)
	}

	report.Input = "mysqldump " + opts.Databases[0]
	output.NewRenderer(viper.GetString("format"), cmd.OutOrStdout()).RenderSplit(report)
	return nil
}
