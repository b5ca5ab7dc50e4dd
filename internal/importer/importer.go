// Package importer replays chunk files against a MySQL server.
//
// Each file runs on its own connection so the session settings in the chunk
// header stay in effect for the whole file. A failed file is rolled back and,
// when the error is transient, replayed from its first statement.
package importer

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/sirupsen/logrus"

	"github.com/nethalo/dumpchunk/internal/chunker"
	"github.com/nethalo/dumpchunk/internal/mysql"
	"github.com/nethalo/dumpchunk/internal/topology"
)

// ErrChunkFailed is returned when a file could not be imported.
var ErrChunkFailed = errors.New("chunk import failed")

const (
	DefaultRetries    = 3
	DefaultRetryDelay = 5 * time.Second
)

// Chunk is one chunk file found in a directory.
type Chunk struct {
	Index int
	Path  string
	Size  int64
}

// ListChunks returns the chunk files in dir ordered by index. The order is
// numeric, so chunk_100.sql follows chunk_99.sql.
func ListChunks(dir string) ([]Chunk, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", dir, err)
	}
	var chunks []Chunk
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		idx, ok := chunker.ParseChunkName(e.Name())
		if !ok {
			continue
		}
		info, err := e.Info()
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", e.Name(), err)
		}
		chunks = append(chunks, Chunk{Index: idx, Path: filepath.Join(dir, e.Name()), Size: info.Size()})
	}
	sort.Slice(chunks, func(i, j int) bool { return chunks[i].Index < chunks[j].Index })
	return chunks, nil
}

// Config controls an import run.
type Config struct {
	Dir           string
	StructurePath string // imported before any chunk when set
	StartAt       int    // first chunk index to import; earlier ones are skipped

	Retries         int
	RetryDelay      time.Duration
	ContinueOnError bool
	DryRun          bool

	// MaxAllowedPacket overrides the server value; 0 reads it from the server.
	MaxAllowedPacket int64
	// Topology, when known, supplies the per-transaction size limit.
	Topology *topology.Info

	Logger logrus.FieldLogger
	// Progress is called after every file.
	Progress func(FileResult)
}

// FileResult is the outcome of one file.
type FileResult struct {
	Path       string        `json:"path"`
	Index      int           `json:"index"`
	Structure  bool          `json:"structure,omitempty"`
	Statements int           `json:"statements"`
	Bytes      int64         `json:"bytes"`
	Attempts   int           `json:"attempts"`
	Duration   time.Duration `json:"duration_ns"`
	Error      string        `json:"error,omitempty"`
}

// Failed reports whether the file ended in error.
func (f FileResult) Failed() bool {
	return f.Error != ""
}

// Report summarises an import run.
type Report struct {
	Dir        string        `json:"dir"`
	DryRun     bool          `json:"dry_run"`
	Files      []FileResult  `json:"files"`
	Skipped    int           `json:"skipped"`
	Statements int           `json:"statements"`
	Bytes      int64         `json:"bytes"`
	Failed     int           `json:"failed"`
	Retries    int           `json:"retries"`
	Warnings   []string      `json:"warnings,omitempty"`
	Duration   time.Duration `json:"duration_ns"`
}

// Importer replays chunk files through db.
type Importer struct {
	db     *sql.DB
	cfg    Config
	log    logrus.FieldLogger
	packet int64
	report *Report
}

// New returns an Importer. db may be nil for a dry run.
func New(db *sql.DB, cfg Config) *Importer {
	if cfg.Retries < 0 {
		cfg.Retries = 0
	}
	if cfg.Logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		cfg.Logger = l
	}
	return &Importer{db: db, cfg: cfg, log: cfg.Logger}
}

// Run imports the structure file, if any, then every chunk from StartAt on.
func (im *Importer) Run(ctx context.Context) (*Report, error) {
	start := time.Now()
	im.report = &Report{Dir: im.cfg.Dir, DryRun: im.cfg.DryRun}
	defer func() { im.report.Duration = time.Since(start) }()

	if im.db == nil && !im.cfg.DryRun {
		return nil, errors.New("importer: no database connection")
	}

	chunks, err := ListChunks(im.cfg.Dir)
	if err != nil {
		return nil, err
	}
	var todo []Chunk
	for _, c := range chunks {
		if c.Index < im.cfg.StartAt {
			im.report.Skipped++
			continue
		}
		todo = append(todo, c)
	}
	if len(todo) == 0 && im.cfg.StructurePath == "" {
		return nil, fmt.Errorf("no chunk files to import in %s", im.cfg.Dir)
	}

	if !im.cfg.DryRun {
		im.preflight(todo)
	}

	if im.cfg.StructurePath != "" {
		res := im.importWithRetry(ctx, im.cfg.StructurePath, 0, true)
		if res.Failed() {
			return im.report, fmt.Errorf("%w: %s: %s", ErrChunkFailed, filepath.Base(im.cfg.StructurePath), res.Error)
		}
	}

	for _, c := range todo {
		if err := ctx.Err(); err != nil {
			return im.report, err
		}
		res := im.importWithRetry(ctx, c.Path, c.Index, false)
		if !res.Failed() {
			continue
		}
		if ctx.Err() != nil {
			return im.report, ctx.Err()
		}
		if !im.cfg.ContinueOnError {
			return im.report, fmt.Errorf("%w: %s: %s (resume with --start-at %d)",
				ErrChunkFailed, filepath.Base(c.Path), res.Error, c.Index)
		}
	}
	if im.report.Failed > 0 {
		return im.report, fmt.Errorf("%w: %d of %d files failed", ErrChunkFailed, im.report.Failed, len(im.report.Files))
	}
	return im.report, nil
}

// preflight records limits that the chunks may exceed. Failures to read them
// are warnings, not errors.
func (im *Importer) preflight(chunks []Chunk) {
	im.packet = im.cfg.MaxAllowedPacket
	if im.packet == 0 {
		n, err := mysql.MaxAllowedPacket(im.db)
		if err != nil {
			im.log.WithError(err).Warn("could not read max_allowed_packet")
		} else {
			im.packet = n
		}
	}

	if im.cfg.Topology == nil {
		return
	}
	for _, w := range im.cfg.Topology.Warnings() {
		im.warn(w)
	}
	limit := im.cfg.Topology.TransactionLimit()
	if limit <= 0 {
		return
	}
	for _, c := range chunks {
		if c.Size > limit {
			im.warn(fmt.Sprintf("%s is %s, larger than the %s transaction limit of %s; use a smaller chunk size",
				filepath.Base(c.Path), mysql.HumanBytes(c.Size), im.cfg.Topology.Type, mysql.HumanBytes(limit)))
		}
	}
}

func (im *Importer) warn(msg string) {
	im.report.Warnings = append(im.report.Warnings, msg)
	im.log.Warn(msg)
}

func (im *Importer) importWithRetry(ctx context.Context, path string, index int, structure bool) FileResult {
	res := FileResult{Path: path, Index: index, Structure: structure}
	start := time.Now()
	log := im.log.WithField("file", filepath.Base(path))

	for {
		res.Attempts++
		n, size, err := im.importFile(ctx, path)
		res.Statements, res.Bytes = n, size
		if err == nil {
			res.Error = ""
			break
		}
		res.Error = err.Error()
		if res.Attempts > im.cfg.Retries || !IsRetryable(err) || ctx.Err() != nil {
			log.WithError(err).WithField("attempts", res.Attempts).Error("import failed")
			break
		}
		im.report.Retries++
		log.WithError(err).WithFields(logrus.Fields{
			"attempt": res.Attempts,
			"delay":   im.cfg.RetryDelay,
		}).Warn("retrying file")
		if err := sleep(ctx, im.cfg.RetryDelay); err != nil {
			res.Error = err.Error()
			break
		}
	}
	res.Duration = time.Since(start)

	if res.Failed() {
		im.report.Failed++
	} else {
		im.report.Statements += res.Statements
		im.report.Bytes += res.Bytes
		log.WithFields(logrus.Fields{
			"statements": res.Statements,
			"duration":   res.Duration.Round(time.Millisecond),
		}).Debug("file imported")
	}
	im.report.Files = append(im.report.Files, res)
	if im.cfg.Progress != nil {
		im.cfg.Progress(res)
	}
	return res
}

// importFile executes every statement of path on one connection.
func (im *Importer) importFile(ctx context.Context, path string) (int, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	var (
		count int
		size  int64
		conn  *sql.Conn
	)
	if !im.cfg.DryRun {
		conn, err = im.db.Conn(ctx)
		if err != nil {
			return 0, 0, fmt.Errorf("acquiring connection: %w", err)
		}
		defer conn.Close()
	}

	err = chunker.ReadStatements(f, func(stmt *chunker.Statement) error {
		text := stmt.Body()
		if text == "" {
			return nil
		}
		// LOCK TABLES would commit the chunk's transaction and keep the
		// lock on a pooled connection.
		if stmt.Class == chunker.LockTables || stmt.Class == chunker.UnlockTables {
			im.log.WithField("line", stmt.StartLine).Debug("skipping table lock statement")
			return nil
		}
		count++
		size += int64(len(text))
		if im.cfg.DryRun {
			return nil
		}
		if im.packet > 0 && int64(len(text)) > im.packet {
			im.warn(fmt.Sprintf("%s:%d: statement of %s exceeds max_allowed_packet (%s)",
				filepath.Base(path), stmt.StartLine, mysql.HumanBytes(int64(len(text))), mysql.HumanBytes(im.packet)))
		}
		if _, err := conn.ExecContext(ctx, text); err != nil {
			return fmt.Errorf("line %d: %w", stmt.StartLine, err)
		}
		return nil
	})
	if err != nil && conn != nil {
		// A dead connection cannot roll back; the server discards its work anyway.
		if _, rbErr := conn.ExecContext(context.Background(), "ROLLBACK"); rbErr != nil {
			im.log.WithError(rbErr).Debug("rollback failed")
		}
		im.resetSession(conn)
	}
	return count, size, err
}

// sessionResets undoes the chunk header settings; the footer never ran.
var sessionResets = func() []string {
	var out []string
	for _, line := range chunker.Footer {
		if stmt := strings.TrimSuffix(line, ";"); strings.HasPrefix(stmt, "SET ") {
			out = append(out, stmt)
		}
	}
	return out
}()

// resetSession restores the settings a failed file left on conn. A
// connection that cannot be restored is discarded instead of going back
// to the pool with checks disabled.
func (im *Importer) resetSession(conn *sql.Conn) {
	for _, stmt := range sessionResets {
		if _, err := conn.ExecContext(context.Background(), stmt); err != nil {
			im.log.WithError(err).Debug("discarding connection with unrestored session")
			_ = conn.Raw(func(any) error { return driver.ErrBadConn })
			return
		}
	}
}

// IsRetryable reports whether err is worth replaying the file for.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, mysqldriver.ErrInvalidConn) {
		return true
	}
	var me *mysqldriver.MySQLError
	if errors.As(err, &me) {
		switch me.Number {
		case 1213, // ER_LOCK_DEADLOCK
			1205, // ER_LOCK_WAIT_TIMEOUT
			2006, // CR_SERVER_GONE_ERROR
			2013: // CR_SERVER_LOST
			return true
		}
	}
	// 1044, 1045, 1142, 1227 and 1064 land here: privilege and syntax errors
	// fail the same way on every attempt.
	return false
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
