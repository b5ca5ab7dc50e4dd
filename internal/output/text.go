package output

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/nethalo/dumpchunk/internal/chunker"
	"github.com/nethalo/dumpchunk/internal/importer"
	"github.com/nethalo/dumpchunk/internal/mysql"
	"github.com/nethalo/dumpchunk/internal/topology"
	"github.com/nethalo/dumpchunk/internal/verify"
)

const boxWidth = 64

// TextRenderer produces Lip Gloss styled terminal output.
type TextRenderer struct {
	w io.Writer
}

func (r *TextRenderer) RenderSplit(report *chunker.Report) {
	fmt.Fprintln(r.w)

	input := report.Input
	if input == "" || input == "-" {
		input = "stdin"
	}
	lines := []string{
		r.labelValue("Input:", input),
		r.labelValue("Read:", fmt.Sprintf("%s in %s lines", mysql.HumanBytes(report.BytesRead), formatNumber(int64(report.Lines)))),
		r.labelValue("Statements:", formatNumber(int64(report.Statements))),
	}
	if note := estimateNote(report); note != "" {
		lines = append(lines, r.labelValue("", dimStyle.Render(note)))
	}
	lines = append(lines,
		r.labelValue("Chunk size:", fmt.Sprintf("%d statements", report.ChunkSize)),
		r.labelValue("Chunks:", fmt.Sprintf("%d", len(report.Chunks))),
		r.labelValue("Files:", chunkRange(report)),
	)
	if report.Rewritten > 0 {
		lines = append(lines, r.labelValue("Rewritten:", fmt.Sprintf("%s INSERT → REPLACE", formatNumber(int64(report.Rewritten)))))
	}
	if report.StructurePath != "" {
		lines = append(lines, r.labelValue("Structure:", fmt.Sprintf("%s (%d tables)", report.StructurePath, report.StructureTables)))
	}
	if report.DDLStatements > 0 || report.SkippedDDL > 0 {
		lines = append(lines, r.labelValue("DDL:", fmt.Sprintf("%d kept, %d skipped", report.DDLStatements, report.SkippedDDL)))
	}
	lines = append(lines, r.labelValue("Pass-through:", fmt.Sprintf("%s lines", formatNumber(int64(report.PassThrough)))))
	if report.DroppedLines > 0 {
		lines = append(lines, r.labelValue("Dropped:", fmt.Sprintf("%s lines", formatNumber(int64(report.DroppedLines)))))
	}
	lines = append(lines, r.labelValue("Duration:", formatDuration(report.Duration)))

	status := StatusOK
	if len(report.Warnings) > 0 {
		status = StatusWarn
	}
	fmt.Fprintln(r.w, panel(status, "dumpchunk · Split", strings.Join(lines, "\n")))
	r.renderWarnings(report.Warnings)
	fmt.Fprintln(r.w)
}

func (r *TextRenderer) RenderImport(report *importer.Report) {
	fmt.Fprintln(r.w)

	var rows []string
	for _, f := range report.Files {
		name := filepath.Base(f.Path)
		status := StatusOK
		detail := fmt.Sprintf("%d stmts  %s", f.Statements, formatDuration(f.Duration))
		if f.Failed() {
			status = StatusFail
			detail = status.Emphasize(f.Error)
		} else if f.Attempts > 1 {
			status = StatusWarn
			detail += dimStyle.Render(fmt.Sprintf("  (%d attempts)", f.Attempts))
		}
		rows = append(rows, fmt.Sprintf("%s %-16s %s", status.Mark(), name, detail))
	}

	summary := []string{
		r.labelValue("Directory:", report.Dir),
		r.labelValue("Files:", fmt.Sprintf("%d imported, %d failed, %d skipped", len(report.Files)-report.Failed, report.Failed, report.Skipped)),
		r.labelValue("Statements:", formatNumber(int64(report.Statements))),
		r.labelValue("Bytes:", mysql.HumanBytes(report.Bytes)),
		r.labelValue("Retries:", fmt.Sprintf("%d", report.Retries)),
		r.labelValue("Duration:", formatDuration(report.Duration)),
	}

	heading := "dumpchunk · Import"
	if report.DryRun {
		heading += " (dry run)"
	}
	status := StatusOK
	if report.Failed > 0 {
		status = StatusFail
	} else if len(report.Warnings) > 0 {
		status = StatusWarn
	}
	body := strings.Join(summary, "\n")
	if len(rows) > 0 {
		body += "\n\n" + strings.Join(rows, "\n")
	}
	fmt.Fprintln(r.w, panel(status, heading, body))
	r.renderWarnings(report.Warnings)
	fmt.Fprintln(r.w)
}

func (r *TextRenderer) RenderVerify(report *verify.Report) {
	fmt.Fprintln(r.w)

	lines := []string{
		r.labelValue("Directory:", report.Dir),
		r.labelValue("Files:", fmt.Sprintf("%d", len(report.Files))),
		r.labelValue("Statements:", formatNumber(int64(report.Statements))),
		r.labelValue("Rows:", formatNumber(int64(report.Rows))),
	}
	if len(report.Tables) > 0 {
		lines = append(lines, "", headingStyle.Render("Tables"))
		for _, t := range report.Tables {
			lines = append(lines, r.labelValue(t.Table, fmt.Sprintf("%s rows in %d statements",
				formatNumber(int64(t.Rows)), t.Statements)))
		}
	}

	status := StatusOK
	if report.OK() {
		lines = append(lines, "", status.Mark()+" "+status.Emphasize("all chunks are self-contained and parse"))
	} else {
		status = StatusFail
		lines = append(lines, "", status.Mark()+" "+status.Emphasize(fmt.Sprintf("%d problems", len(report.Problems))))
		for _, p := range report.Problems {
			lines = append(lines, "  "+p.String())
		}
	}
	fmt.Fprintln(r.w, panel(status, "dumpchunk · Verify", strings.Join(lines, "\n")))
	fmt.Fprintln(r.w)
}

func (r *TextRenderer) RenderConnection(info ConnectionInfo) {
	topo := info.Topology
	fmt.Fprintln(r.w)

	var lines []string
	lines = append(lines, r.labelValue("Connected to:", info.Conn.Address()))
	lines = append(lines, r.labelValue("Server version:", topo.Version.String()))
	lines = append(lines, r.labelValue("Topology:", formatTopoType(topo)))

	switch topo.Type {
	case topology.Galera:
		lines = append(lines, r.labelValue("Node state:", topo.GaleraNodeState))
		lines = append(lines, r.labelValue("Flow control:", fmt.Sprintf("%.2f%%", topo.FlowControlPaused*100)))
	case topology.GroupRepl:
		lines = append(lines, r.labelValue("Role:", topo.GRMemberRole))
	case topology.AsyncReplica, topology.SemiSyncReplica:
		if topo.IsReplica {
			lag := "N/A"
			if topo.ReplicaLagSecs != nil {
				lag = fmt.Sprintf("%d seconds", *topo.ReplicaLagSecs)
			}
			lines = append(lines, r.labelValue("Replica lag:", lag))
		}
		if topo.IsPrimary {
			lines = append(lines, r.labelValue("Role:", "Primary (has replicas)"))
		}
	}

	lines = append(lines, r.labelValue("Read only:", fmt.Sprintf("%v", topo.ReadOnly)))
	lines = append(lines, r.labelValue("Max packet:", formatLimit(info.MaxAllowedPacket)))
	lines = append(lines, r.labelValue("TX size limit:", formatLimit(topo.TransactionLimit())))

	if s := info.Schema; s != nil {
		lines = append(lines, "", headingStyle.Render("Schema "+s.Database))
		lines = append(lines, r.labelValue("Tables:", fmt.Sprintf("%d", len(s.Tables))))
		lines = append(lines, r.labelValue("Rows:", "~"+formatNumber(s.TotalRows())))
		lines = append(lines, r.labelValue("Size:", s.TotalSizeHuman()))
	}

	status := StatusOK
	warnings := topo.Warnings()
	if len(warnings) > 0 {
		status = StatusWarn
	}
	fmt.Fprintln(r.w, panel(status, "dumpchunk · Connection Info", strings.Join(lines, "\n")))
	r.renderWarnings(warnings)
	fmt.Fprintln(r.w)
}

// helpers

func (r *TextRenderer) renderWarnings(warnings []string) {
	for _, w := range warnings {
		fmt.Fprintln(r.w, panel(StatusWarn, StatusWarn.Mark()+" Warning", w))
	}
}

func (r *TextRenderer) labelValue(label, value string) string {
	return labelStyle.Render(label) + " " + value
}
