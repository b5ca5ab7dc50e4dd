// Package verify checks that chunk files are self-contained and parse.
package verify

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/nethalo/dumpchunk/internal/chunker"
	"github.com/nethalo/dumpchunk/internal/parser"
)

// Problem is one defect found in a file.
type Problem struct {
	File    string `json:"file"`
	Line    int    `json:"line,omitempty"`
	Message string `json:"message"`
}

func (p Problem) String() string {
	if p.Line > 0 {
		return fmt.Sprintf("%s:%d: %s", p.File, p.Line, p.Message)
	}
	return fmt.Sprintf("%s: %s", p.File, p.Message)
}

// TableCount aggregates the data statements addressed to one table.
type TableCount struct {
	Table      string `json:"table"`
	Statements int    `json:"statements"`
	Rows       int    `json:"rows"`
}

// FileReport is the result for one chunk file.
type FileReport struct {
	Path       string `json:"path"`
	Statements int    `json:"statements"` // INSERT/REPLACE between header and footer
	Rows       int    `json:"rows"`
	Problems   int    `json:"problems"`
}

// Report is the result of verifying a directory.
type Report struct {
	Dir        string       `json:"dir"`
	Files      []FileReport `json:"files"`
	Statements int          `json:"statements"`
	Rows       int          `json:"rows"`
	Tables     []TableCount `json:"tables"`
	Problems   []Problem    `json:"problems,omitempty"`
}

// OK reports whether no problems were found.
func (r *Report) OK() bool {
	return len(r.Problems) == 0
}

// Options tunes verification.
type Options struct {
	// SkipParse only checks header and footer framing.
	SkipParse bool
	Logger    logrus.FieldLogger
}

type verifier struct {
	opts   Options
	report *Report
	tables map[string]*TableCount
}

// Dir verifies every chunk file in dir, in index order.
func Dir(dir string, opts Options) (*Report, error) {
	names, err := chunker.ExistingChunks(dir)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", dir, err)
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("no chunk files in %s", dir)
	}
	sort.Slice(names, func(i, j int) bool {
		a, _ := chunker.ParseChunkName(filepath.Base(names[i]))
		b, _ := chunker.ParseChunkName(filepath.Base(names[j]))
		return a < b
	})

	v := &verifier{
		opts:   opts,
		report: &Report{Dir: dir},
		tables: map[string]*TableCount{},
	}
	for _, path := range names {
		if err := v.file(path); err != nil {
			return nil, err
		}
	}

	v.collectTables()

	if opts.Logger != nil {
		opts.Logger.WithFields(logrus.Fields{
			"files":    len(v.report.Files),
			"problems": len(v.report.Problems),
		}).Debug("verification finished")
	}
	return v.report, nil
}

// File verifies a single chunk file.
func File(path string, opts Options) (*Report, error) {
	v := &verifier{
		opts:   opts,
		report: &Report{Dir: filepath.Dir(path)},
		tables: map[string]*TableCount{},
	}
	if err := v.file(path); err != nil {
		return nil, err
	}
	v.collectTables()
	return v.report, nil
}

func (v *verifier) collectTables() {
	for _, tc := range v.tables {
		v.report.Tables = append(v.report.Tables, *tc)
	}
	sort.Slice(v.report.Tables, func(i, j int) bool { return v.report.Tables[i].Table < v.report.Tables[j].Table })
}

func (v *verifier) problem(fr *FileReport, line int, format string, args ...any) {
	fr.Problems++
	v.report.Problems = append(v.report.Problems, Problem{
		File:    filepath.Base(fr.Path),
		Line:    line,
		Message: fmt.Sprintf(format, args...),
	})
}

func (v *verifier) file(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	var stmts []*chunker.Statement
	if err := chunker.ReadStatements(f, func(s *chunker.Statement) error {
		stmts = append(stmts, s)
		return nil
	}); err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	fr := FileReport{Path: path}
	body := v.checkFraming(&fr, stmts)
	for _, s := range body {
		v.statement(&fr, s)
	}

	v.report.Files = append(v.report.Files, fr)
	v.report.Statements += fr.Statements
	v.report.Rows += fr.Rows
	return nil
}

// checkFraming checks that the file opens with the header and closes with the
// footer, each exactly once, and returns the statements between them.
func (v *verifier) checkFraming(fr *FileReport, stmts []*chunker.Statement) []*chunker.Statement {
	text := func(s *chunker.Statement) string { return strings.TrimSpace(s.Text()) }

	head := len(chunker.Header)
	foot := len(chunker.Footer)
	if len(stmts) < head+foot {
		v.problem(fr, 0, "file has %d statements, too few for header and footer", len(stmts))
		return nil
	}
	for i, want := range chunker.Header {
		if got := text(stmts[i]); got != want {
			v.problem(fr, stmts[i].StartLine, "header statement %d is %q, want %q", i+1, got, want)
		}
	}
	tail := stmts[len(stmts)-foot:]
	for i, want := range chunker.Footer {
		if got := text(tail[i]); got != want {
			v.problem(fr, tail[i].StartLine, "footer statement %d is %q, want %q", i+1, got, want)
		}
	}

	body := stmts[head : len(stmts)-foot]
	for _, s := range body {
		switch text(s) {
		case "START TRANSACTION;", "COMMIT;":
			v.problem(fr, s.StartLine, "transaction control %q inside chunk body", text(s))
		}
	}
	return body
}

func (v *verifier) statement(fr *FileReport, s *chunker.Statement) {
	if !s.Class.Counted() {
		if !v.opts.SkipParse && s.Class.IsDDL() {
			if _, err := parser.Parse(s.Body()); err != nil {
				v.problem(fr, s.StartLine, "%v", err)
			}
		}
		return
	}
	fr.Statements++
	if v.opts.SkipParse {
		return
	}

	parsed, err := parser.Parse(s.Body())
	if err != nil {
		v.problem(fr, s.StartLine, "%v", err)
		return
	}
	fr.Rows += parsed.Rows

	name := parsed.Table
	if parsed.Database != "" {
		name = parsed.Database + "." + parsed.Table
	}
	tc, ok := v.tables[name]
	if !ok {
		tc = &TableCount{Table: name}
		v.tables[name] = tc
	}
	tc.Statements++
	tc.Rows += parsed.Rows
}
