// Package chunker partitions a SQL dump into bounded, independently
// replayable chunk files.
//
// The scan is a single lexical pass: lines are classified by their leading
// keywords and statements end at the first line carrying a semicolon. A
// semicolon inside a string literal therefore ends a statement early; the
// strict terminator mode narrows that to lines ending in a semicolon.
package chunker

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
)

var (
	// ErrInvalidConfig marks problems detected before any input is read.
	ErrInvalidConfig = errors.New("invalid configuration")
	// ErrNoStatements is returned when the input held no INSERT or REPLACE.
	ErrNoStatements = errors.New("no INSERT or REPLACE statements found")
)

// DefaultChunkSize is the number of statements per chunk when none is given.
const DefaultChunkSize = 200

// Options configures a split run.
type Options struct {
	OutputDir string
	ChunkSize int
	// RewriteReplace turns every INSERT INTO into REPLACE INTO.
	RewriteReplace bool
	// StructurePath enables CREATE TABLE extraction into this file.
	StructurePath string
	Unrecognized  UnrecognizedPolicy
	// SkipDDL drops CREATE/ALTER/DROP statements from the chunk stream.
	SkipDDL          bool
	StrictTerminator bool
	IndexWidth       int
	// Force removes chunk files left in OutputDir by an earlier run.
	Force bool
	// Precount runs EstimateStatements before splitting (seekable input only).
	Precount bool

	// Classifier overrides the lexical classifier.
	Classifier Classifier
	Logger     logrus.FieldLogger
	// Progress receives the number of input bytes consumed so far.
	Progress func(bytesRead int64)
}

// Report summarises a split run.
type Report struct {
	Input           string        `json:"input"`
	InputBytes      int64         `json:"input_bytes"`
	OutputDir       string        `json:"output_dir"`
	ChunkSize       int           `json:"chunk_size"`
	Chunks          []ChunkInfo   `json:"chunks"`
	Statements      int           `json:"statements"`
	Rewritten       int           `json:"rewritten"`
	Estimated       int           `json:"estimated_statements"`
	PassThrough     int           `json:"pass_through_lines"`
	DroppedLines    int           `json:"dropped_lines"`
	DDLStatements   int           `json:"ddl_statements"`
	SkippedDDL      int           `json:"skipped_ddl"`
	StructurePath   string        `json:"structure_path,omitempty"`
	StructureTables int           `json:"structure_tables"`
	Lines           int           `json:"lines"`
	BytesRead       int64         `json:"bytes_read"`
	Warnings        []string      `json:"warnings,omitempty"`
	Duration        time.Duration `json:"duration_ns"`
}

func (o *Options) validate() error {
	if o.ChunkSize <= 0 {
		return fmt.Errorf("%w: chunk size must be a positive integer, got %d", ErrInvalidConfig, o.ChunkSize)
	}
	if o.OutputDir == "" {
		return fmt.Errorf("%w: output directory is required", ErrInvalidConfig)
	}
	if o.Unrecognized == "" {
		o.Unrecognized = UnrecognizedKeep
	}
	if _, ok := ParseUnrecognizedPolicy(string(o.Unrecognized)); !ok {
		return fmt.Errorf("%w: unknown unrecognized-line policy %q (want keep or drop)", ErrInvalidConfig, o.Unrecognized)
	}
	if o.IndexWidth <= 0 {
		o.IndexWidth = DefaultIndexWidth
	}
	if o.Classifier == nil {
		o.Classifier = LineClassifier{Unrecognized: o.Unrecognized, StrictTerminator: o.StrictTerminator}
	}
	if o.Logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		o.Logger = l
	}
	return nil
}

// prepareOutputDir creates the directory, checks it is writable and deals
// with chunk files from a previous run.
func prepareOutputDir(opts Options) error {
	if err := os.MkdirAll(opts.OutputDir, 0755); err != nil {
		return fmt.Errorf("%w: creating output directory: %w", ErrInvalidConfig, err)
	}
	probe, err := os.CreateTemp(opts.OutputDir, ".dumpchunk-probe-*")
	if err != nil {
		return fmt.Errorf("%w: output directory %s is not writable: %w", ErrInvalidConfig, opts.OutputDir, err)
	}
	probe.Close()
	os.Remove(probe.Name())

	existing, err := ExistingChunks(opts.OutputDir)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if len(existing) == 0 {
		return nil
	}
	if !opts.Force {
		return fmt.Errorf("%w: %s already contains %d chunk files (use --force to replace them)", ErrInvalidConfig, opts.OutputDir, len(existing))
	}
	for _, p := range existing {
		if err := os.Remove(p); err != nil {
			return fmt.Errorf("%w: removing %s: %w", ErrInvalidConfig, p, err)
		}
	}
	opts.Logger.WithField("count", len(existing)).Debug("removed chunk files from a previous run")
	return nil
}

// ExistingChunks lists chunk_*.sql files in dir.
func ExistingChunks(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", dir, err)
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if _, ok := ParseChunkName(e.Name()); ok {
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}
	return paths, nil
}

// splitterState is the single owner of everything a run mutates.
type splitterState struct {
	opts      Options
	log       logrus.FieldLogger
	state     State
	current   *Statement
	chunks    *ChunkWriter
	structure *StructureWriter
	report    *Report

	lineNo       int
	lastProgress int64
	sealedSeen   int
	warnedDrop   bool
}

// step processes one physical line.
func (s *splitterState) step(line string, raw int) error {
	s.lineNo++
	s.report.BytesRead += int64(raw)

	d := s.opts.Classifier.Classify(line, s.state)
	switch d.Action {
	case ActionStart:
		s.current = &Statement{Lines: []string{line}, Class: d.Class, StartLine: s.lineNo}
		s.state = InStatement
		if d.Terminates {
			return s.complete()
		}
	case ActionContinue:
		if s.current == nil {
			s.report.PassThrough++
			return s.chunks.WritePassThrough(line)
		}
		s.current.Lines = append(s.current.Lines, line)
		if d.Terminates {
			return s.complete()
		}
	case ActionPassThrough:
		s.report.PassThrough++
		return s.chunks.WritePassThrough(line)
	case ActionDrop:
		s.report.DroppedLines++
	}
	return nil
}

// complete routes a fully accumulated statement to its destination.
func (s *splitterState) complete() error {
	stmt := s.current
	s.current = nil
	s.state = Idle

	switch {
	case stmt.Class.Counted():
		if s.opts.RewriteReplace && stmt.Class == Insert {
			if RewriteReplace(stmt) {
				s.report.Rewritten++
			}
		}
		s.report.Statements++
		if err := s.chunks.WriteStatement(stmt); err != nil {
			return err
		}
		s.logSealed()
		return nil

	case stmt.Class == CreateTable && s.structure != nil:
		s.report.StructureTables++
		return s.structure.WriteTable(stmt)

	case stmt.Class.IsDDL():
		s.report.DDLStatements++
		if s.opts.SkipDDL {
			s.report.SkippedDDL++
			return nil
		}
		if s.structure != nil && !s.warnedDrop && reDropTable.MatchString(stmt.Lines[0]) {
			s.warnedDrop = true
			msg := fmt.Sprintf("DROP TABLE at line %d stays in the chunks while CREATE TABLE goes to the structure file; "+
				"importing the structure first would lose those tables (use --skip-ddl)", stmt.StartLine)
			s.report.Warnings = append(s.report.Warnings, msg)
			s.log.WithField("line", stmt.StartLine).Warn("DROP TABLE kept in chunk stream with structure extraction on")
		}
		s.report.PassThrough += len(stmt.Lines)
		return s.chunks.WritePassThrough(stmt.Lines...)

	default:
		s.report.PassThrough += len(stmt.Lines)
		return s.chunks.WritePassThrough(stmt.Lines...)
	}
}

func (s *splitterState) logSealed() {
	sealed := s.chunks.Chunks()
	for ; s.sealedSeen < len(sealed); s.sealedSeen++ {
		c := sealed[s.sealedSeen]
		s.log.WithFields(logrus.Fields{
			"chunk":      filepath.Base(c.Path),
			"statements": c.Statements,
			"bytes":      c.Bytes,
		}).Debug("chunk sealed")
	}
}

func (s *splitterState) progress(force bool) {
	if s.opts.Progress == nil {
		return
	}
	if force || s.report.BytesRead-s.lastProgress >= 256*1024 {
		s.lastProgress = s.report.BytesRead
		s.opts.Progress(s.report.BytesRead)
	}
}

// finish flushes a dangling statement and seals the open chunk.
func (s *splitterState) finish() error {
	if s.state == InStatement && s.current != nil {
		msg := fmt.Sprintf("input ended inside a %s statement starting at line %d: no terminating semicolon, flushed as is",
			s.current.Class, s.current.StartLine)
		s.report.Warnings = append(s.report.Warnings, msg)
		s.log.WithField("line", s.current.StartLine).Warn("unterminated trailing statement flushed to output")
		if err := s.complete(); err != nil {
			return err
		}
	}
	if s.structure != nil {
		if err := s.structure.Close(); err != nil {
			return err
		}
	}
	if err := s.chunks.Finalize(); err != nil {
		return err
	}
	s.logSealed()
	return nil
}

func (s *splitterState) discard() {
	if err := s.chunks.Discard(); err != nil {
		s.log.WithError(err).Warn("could not remove partial chunk files")
	}
	if s.structure != nil {
		if err := s.structure.Discard(); err != nil {
			s.log.WithError(err).Warn("could not remove structure file")
		}
	}
}

// Split reads SQL text from r and writes chunk files as configured.
func Split(r io.Reader, opts Options) (*Report, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	if err := prepareOutputDir(opts); err != nil {
		return nil, err
	}

	start := time.Now()
	s := &splitterState{
		opts:   opts,
		log:    opts.Logger,
		chunks: NewChunkWriter(opts.OutputDir, opts.ChunkSize, opts.IndexWidth),
		report: &Report{
			OutputDir: opts.OutputDir,
			ChunkSize: opts.ChunkSize,
			Estimated: -1,
		},
	}
	if opts.StructurePath != "" {
		sw, err := NewStructureWriter(opts.StructurePath)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
		}
		s.structure = sw
		s.report.StructurePath = opts.StructurePath
	}

	lr := newLineReader(r)
	for {
		line, n, ok, err := lr.next()
		if err != nil {
			s.discard()
			return nil, fmt.Errorf("reading input at line %d: %w", s.lineNo+1, err)
		}
		if !ok {
			break
		}
		if err := s.step(line, n); err != nil {
			s.discard()
			return nil, err
		}
		s.progress(false)
	}
	s.progress(true)

	if err := s.finish(); err != nil {
		s.discard()
		if errors.Is(err, ErrNoStatements) {
			s.log.WithField("lines", s.lineNo).Error("no INSERT or REPLACE statements found, nothing written")
		}
		return nil, err
	}

	s.report.Lines = s.lineNo
	s.report.Chunks = s.chunks.Chunks()
	s.report.Duration = time.Since(start)
	return s.report, nil
}

// SplitFile splits the file at path; "-" reads standard input.
func SplitFile(path string, opts Options) (*Report, error) {
	var (
		in   io.Reader
		size int64
	)
	if path == "-" {
		in = os.Stdin
	} else {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("%w: opening input: %w", ErrInvalidConfig, err)
		}
		defer f.Close()
		info, err := f.Stat()
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
		}
		if info.IsDir() {
			return nil, fmt.Errorf("%w: input %s is a directory", ErrInvalidConfig, path)
		}
		size = info.Size()
		in = f
	}

	estimated := -1
	if opts.Precount {
		if f, ok := in.(*os.File); ok && path != "-" {
			n, err := EstimateStatements(f)
			if err != nil {
				return nil, fmt.Errorf("counting statements: %w", err)
			}
			if _, err := f.Seek(0, io.SeekStart); err != nil {
				return nil, fmt.Errorf("rewinding input: %w", err)
			}
			estimated = n
		}
	}

	report, err := Split(in, opts)
	if err != nil {
		return nil, err
	}
	report.Input = path
	report.InputBytes = size
	report.Estimated = estimated
	if estimated >= 0 && estimated != report.Statements && opts.Logger != nil {
		opts.Logger.WithFields(logrus.Fields{
			"estimated": estimated,
			"actual":    report.Statements,
		}).Debug("pre-count differs from scanned statement count")
	}
	return report, nil
}
