package output

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/nethalo/dumpchunk/internal/chunker"
	"github.com/nethalo/dumpchunk/internal/importer"
	"github.com/nethalo/dumpchunk/internal/mysql"
	"github.com/nethalo/dumpchunk/internal/verify"
)

// MarkdownRenderer produces markdown output for documentation/tickets.
type MarkdownRenderer struct {
	w io.Writer
}

func (r *MarkdownRenderer) RenderSplit(report *chunker.Report) {
	fmt.Fprintf(r.w, "# dumpchunk split\n\n")
	fmt.Fprintf(r.w, "| Property | Value |\n|---|---|\n")
	fmt.Fprintf(r.w, "| Input | `%s` |\n", report.Input)
	fmt.Fprintf(r.w, "| Bytes read | %s |\n", mysql.HumanBytes(report.BytesRead))
	fmt.Fprintf(r.w, "| Statements | %s |\n", formatNumber(int64(report.Statements)))
	if note := estimateNote(report); note != "" {
		fmt.Fprintf(r.w, "| Pre-count | %s |\n", note)
	}
	fmt.Fprintf(r.w, "| Chunk size | %d |\n", report.ChunkSize)
	fmt.Fprintf(r.w, "| Chunks | %d |\n", len(report.Chunks))
	fmt.Fprintf(r.w, "| Rewritten | %d |\n", report.Rewritten)
	if report.StructurePath != "" {
		fmt.Fprintf(r.w, "| Structure | `%s` (%d tables) |\n", report.StructurePath, report.StructureTables)
	}
	fmt.Fprintln(r.w)

	fmt.Fprintf(r.w, "## Chunks\n\n")
	fmt.Fprintf(r.w, "| # | File | Statements | Size |\n|---|---|---|---|\n")
	for _, c := range report.Chunks {
		fmt.Fprintf(r.w, "| %d | `%s` | %d | %s |\n", c.Index, filepath.Base(c.Path), c.Statements, mysql.HumanBytes(c.Bytes))
	}
	fmt.Fprintln(r.w)
	r.warnings(report.Warnings)
}

func (r *MarkdownRenderer) RenderImport(report *importer.Report) {
	title := "# dumpchunk import"
	if report.DryRun {
		title += " (dry run)"
	}
	fmt.Fprintf(r.w, "%s\n\n", title)
	fmt.Fprintf(r.w, "| Property | Value |\n|---|---|\n")
	fmt.Fprintf(r.w, "| Directory | `%s` |\n", report.Dir)
	fmt.Fprintf(r.w, "| Files | %d |\n", len(report.Files))
	fmt.Fprintf(r.w, "| Failed | %d |\n", report.Failed)
	fmt.Fprintf(r.w, "| Skipped | %d |\n", report.Skipped)
	fmt.Fprintf(r.w, "| Statements | %s |\n", formatNumber(int64(report.Statements)))
	fmt.Fprintf(r.w, "| Retries | %d |\n", report.Retries)
	fmt.Fprintf(r.w, "| Duration | %s |\n\n", formatDuration(report.Duration))

	fmt.Fprintf(r.w, "## Files\n\n")
	fmt.Fprintf(r.w, "| File | Statements | Attempts | Result |\n|---|---|---|---|\n")
	for _, f := range report.Files {
		result := "✅"
		if f.Failed() {
			result = "❌ " + escapePipes(f.Error)
		}
		fmt.Fprintf(r.w, "| `%s` | %d | %d | %s |\n", filepath.Base(f.Path), f.Statements, f.Attempts, result)
	}
	fmt.Fprintln(r.w)
	r.warnings(report.Warnings)
}

func (r *MarkdownRenderer) RenderVerify(report *verify.Report) {
	fmt.Fprintf(r.w, "# dumpchunk verify\n\n")
	fmt.Fprintf(r.w, "| Property | Value |\n|---|---|\n")
	fmt.Fprintf(r.w, "| Directory | `%s` |\n", report.Dir)
	fmt.Fprintf(r.w, "| Files | %d |\n", len(report.Files))
	fmt.Fprintf(r.w, "| Statements | %s |\n", formatNumber(int64(report.Statements)))
	fmt.Fprintf(r.w, "| Rows | %s |\n\n", formatNumber(int64(report.Rows)))

	if len(report.Tables) > 0 {
		fmt.Fprintf(r.w, "## Tables\n\n")
		fmt.Fprintf(r.w, "| Table | Statements | Rows |\n|---|---|---|\n")
		for _, t := range report.Tables {
			fmt.Fprintf(r.w, "| `%s` | %d | %d |\n", t.Table, t.Statements, t.Rows)
		}
		fmt.Fprintln(r.w)
	}

	if report.OK() {
		fmt.Fprintf(r.w, "**Result:** ✅ all chunks are self-contained and parse\n")
		return
	}
	fmt.Fprintf(r.w, "## Problems\n\n")
	for _, p := range report.Problems {
		fmt.Fprintf(r.w, "- `%s`\n", p)
	}
}

func (r *MarkdownRenderer) RenderConnection(info ConnectionInfo) {
	topo := info.Topology
	fmt.Fprintf(r.w, "# dumpchunk connection\n\n")
	fmt.Fprintf(r.w, "| Property | Value |\n|---|---|\n")
	fmt.Fprintf(r.w, "| Address | `%s` |\n", info.Conn.Address())
	fmt.Fprintf(r.w, "| Version | %s |\n", topo.Version.String())
	fmt.Fprintf(r.w, "| Topology | %s |\n", formatTopoType(topo))
	fmt.Fprintf(r.w, "| Read only | %v |\n", topo.ReadOnly)
	fmt.Fprintf(r.w, "| max_allowed_packet | %s |\n", formatLimit(info.MaxAllowedPacket))
	fmt.Fprintf(r.w, "| Transaction limit | %s |\n\n", formatLimit(topo.TransactionLimit()))

	if s := info.Schema; s != nil {
		fmt.Fprintf(r.w, "## Schema `%s`\n\n", s.Database)
		fmt.Fprintf(r.w, "| Table | Engine | Rows | Size |\n|---|---|---|---|\n")
		for _, t := range s.Tables {
			fmt.Fprintf(r.w, "| `%s` | %s | ~%s | %s |\n", t.Name, t.Engine, formatNumber(t.RowCount), mysql.HumanBytes(t.TotalSize()))
		}
		fmt.Fprintln(r.w)
	}
	r.warnings(topo.Warnings())
}

func (r *MarkdownRenderer) warnings(warnings []string) {
	if len(warnings) == 0 {
		return
	}
	fmt.Fprintf(r.w, "## Warnings\n\n")
	for _, w := range warnings {
		fmt.Fprintf(r.w, "- ⚠️ %s\n", w)
	}
	fmt.Fprintln(r.w)
}

func escapePipes(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}
