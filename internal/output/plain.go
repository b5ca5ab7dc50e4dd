package output

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/nethalo/dumpchunk/internal/chunker"
	"github.com/nethalo/dumpchunk/internal/importer"
	"github.com/nethalo/dumpchunk/internal/mysql"
	"github.com/nethalo/dumpchunk/internal/verify"
)

// PlainRenderer produces unformatted text output safe for piping.
type PlainRenderer struct {
	w io.Writer
}

func (r *PlainRenderer) RenderSplit(report *chunker.Report) {
	fmt.Fprintf(r.w, "=== dumpchunk split ===\n\n")
	fmt.Fprintf(r.w, "Input:         %s\n", report.Input)
	fmt.Fprintf(r.w, "Bytes read:    %d\n", report.BytesRead)
	fmt.Fprintf(r.w, "Lines:         %d\n", report.Lines)
	fmt.Fprintf(r.w, "Statements:    %d\n", report.Statements)
	if report.Estimated >= 0 {
		fmt.Fprintf(r.w, "Pre-count:     %d\n", report.Estimated)
	}
	fmt.Fprintf(r.w, "Chunk size:    %d\n", report.ChunkSize)
	fmt.Fprintf(r.w, "Chunks:        %d\n", len(report.Chunks))
	fmt.Fprintf(r.w, "Rewritten:     %d\n", report.Rewritten)
	fmt.Fprintf(r.w, "Pass-through:  %d\n", report.PassThrough)
	fmt.Fprintf(r.w, "Dropped:       %d\n", report.DroppedLines)
	if report.StructurePath != "" {
		fmt.Fprintf(r.w, "Structure:     %s (%d tables)\n", report.StructurePath, report.StructureTables)
	}
	fmt.Fprintln(r.w)

	fmt.Fprintf(r.w, "--- Chunks ---\n")
	for _, c := range report.Chunks {
		fmt.Fprintf(r.w, "%s\t%d\t%d\n", c.Path, c.Statements, c.Bytes)
	}
	r.warnings(report.Warnings)
}

func (r *PlainRenderer) RenderImport(report *importer.Report) {
	fmt.Fprintf(r.w, "=== dumpchunk import ===\n\n")
	fmt.Fprintf(r.w, "Directory:     %s\n", report.Dir)
	fmt.Fprintf(r.w, "Dry run:       %v\n", report.DryRun)
	fmt.Fprintf(r.w, "Files:         %d\n", len(report.Files))
	fmt.Fprintf(r.w, "Failed:        %d\n", report.Failed)
	fmt.Fprintf(r.w, "Skipped:       %d\n", report.Skipped)
	fmt.Fprintf(r.w, "Statements:    %d\n", report.Statements)
	fmt.Fprintf(r.w, "Retries:       %d\n", report.Retries)
	fmt.Fprintln(r.w)

	fmt.Fprintf(r.w, "--- Files ---\n")
	for _, f := range report.Files {
		status := "ok"
		if f.Failed() {
			status = "FAILED: " + f.Error
		}
		fmt.Fprintf(r.w, "%s\t%d\t%d\t%s\n", filepath.Base(f.Path), f.Statements, f.Attempts, status)
	}
	r.warnings(report.Warnings)
}

func (r *PlainRenderer) RenderVerify(report *verify.Report) {
	fmt.Fprintf(r.w, "=== dumpchunk verify ===\n\n")
	fmt.Fprintf(r.w, "Directory:     %s\n", report.Dir)
	fmt.Fprintf(r.w, "Files:         %d\n", len(report.Files))
	fmt.Fprintf(r.w, "Statements:    %d\n", report.Statements)
	fmt.Fprintf(r.w, "Rows:          %d\n", report.Rows)
	fmt.Fprintln(r.w)

	if len(report.Tables) > 0 {
		fmt.Fprintf(r.w, "--- Tables ---\n")
		for _, t := range report.Tables {
			fmt.Fprintf(r.w, "%s\t%d\t%d\n", t.Table, t.Statements, t.Rows)
		}
		fmt.Fprintln(r.w)
	}

	if report.OK() {
		fmt.Fprintf(r.w, "Result: OK\n")
		return
	}
	fmt.Fprintf(r.w, "Result: %d problems\n", len(report.Problems))
	for _, p := range report.Problems {
		fmt.Fprintf(r.w, "  %s\n", p)
	}
}

func (r *PlainRenderer) RenderConnection(info ConnectionInfo) {
	topo := info.Topology
	fmt.Fprintf(r.w, "Connected to:  %s\n", info.Conn.Address())
	fmt.Fprintf(r.w, "Version:       %s\n", topo.Version.String())
	fmt.Fprintf(r.w, "Topology:      %s\n", formatTopoType(topo))
	fmt.Fprintf(r.w, "Read only:     %v\n", topo.ReadOnly)
	fmt.Fprintf(r.w, "Max packet:    %s\n", formatLimit(info.MaxAllowedPacket))
	fmt.Fprintf(r.w, "TX limit:      %s\n", formatLimit(topo.TransactionLimit()))
	if s := info.Schema; s != nil {
		fmt.Fprintf(r.w, "Schema:        %s (%d tables, ~%d rows, %s)\n",
			s.Database, len(s.Tables), s.TotalRows(), mysql.HumanBytes(s.TotalSize()))
	}
	r.warnings(topo.Warnings())
}

func (r *PlainRenderer) warnings(warnings []string) {
	if len(warnings) == 0 {
		return
	}
	fmt.Fprintf(r.w, "\n--- Warnings ---\n")
	for _, w := range warnings {
		fmt.Fprintf(r.w, "WARNING: %s\n", w)
	}
}
