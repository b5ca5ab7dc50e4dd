package chunker

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
)

// Header opens every chunk: constraint checks off, one explicit transaction.
var Header = []string{
	"SET FOREIGN_KEY_CHECKS=0;",
	"SET UNIQUE_CHECKS=0;",
	"SET AUTOCOMMIT=0;",
	"START TRANSACTION;",
}

// Footer closes every chunk and restores the session settings Header changed.
var Footer = []string{
	"COMMIT;",
	"SET AUTOCOMMIT=1;",
	"SET UNIQUE_CHECKS=1;",
	"SET FOREIGN_KEY_CHECKS=1;",
}

// DefaultIndexWidth is the minimum zero-padded width of chunk indexes.
const DefaultIndexWidth = 2

var reChunkName = regexp.MustCompile(`^chunk_(\d+)\.sql$`)

// ChunkName builds the file name for a chunk index.
func ChunkName(index, width int) string {
	if width < 1 {
		width = DefaultIndexWidth
	}
	return fmt.Sprintf("chunk_%0*d.sql", width, index)
}

// ParseChunkName returns the index encoded in a chunk file name.
func ParseChunkName(name string) (int, bool) {
	m := reChunkName.FindStringSubmatch(name)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return n, true
}

// ChunkInfo describes one sealed chunk file.
type ChunkInfo struct {
	Index      int    `json:"index"`
	Path       string `json:"path"`
	Statements int    `json:"statements"`
	Bytes      int64  `json:"bytes"`
}

// sqlFile is a buffered output file that counts what it writes.
type sqlFile struct {
	path  string
	f     *os.File
	w     *bufio.Writer
	bytes int64
}

func createSQLFile(path string) (*sqlFile, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating %s: %w", path, err)
	}
	return &sqlFile{path: path, f: f, w: bufio.NewWriterSize(f, 256*1024)}, nil
}

func (s *sqlFile) writeLines(lines []string) error {
	for _, l := range lines {
		n, err := s.w.WriteString(l)
		s.bytes += int64(n)
		if err != nil {
			return fmt.Errorf("writing %s: %w", s.path, err)
		}
		if err := s.w.WriteByte('\n'); err != nil {
			return fmt.Errorf("writing %s: %w", s.path, err)
		}
		s.bytes++
	}
	return nil
}

func (s *sqlFile) close() error {
	if err := s.w.Flush(); err != nil {
		s.f.Close()
		return fmt.Errorf("flushing %s: %w", s.path, err)
	}
	if err := s.f.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", s.path, err)
	}
	return nil
}

// ChunkWriter owns the open chunk file, the per-chunk statement counter and
// the global chunk index.
type ChunkWriter struct {
	dir        string
	chunkSize  int
	indexWidth int

	current *sqlFile
	index   int
	count   int
	pending []string

	created []string
	sealed  []ChunkInfo
}

// NewChunkWriter prepares a writer; no file is created until the first
// statement arrives.
func NewChunkWriter(dir string, chunkSize, indexWidth int) *ChunkWriter {
	if indexWidth < 1 {
		indexWidth = DefaultIndexWidth
	}
	return &ChunkWriter{dir: dir, chunkSize: chunkSize, indexWidth: indexWidth}
}

// openNewChunk allocates the next index and writes the header.
func (cw *ChunkWriter) openNewChunk() error {
	cw.index++
	path := filepath.Join(cw.dir, ChunkName(cw.index, cw.indexWidth))
	f, err := createSQLFile(path)
	if err != nil {
		return err
	}
	cw.created = append(cw.created, path)
	cw.current = f
	cw.count = 0
	return f.writeLines(Header)
}

// seal writes the footer to the open chunk and closes it.
func (cw *ChunkWriter) seal() error {
	if cw.current == nil {
		return nil
	}
	if err := cw.current.writeLines(Footer); err != nil {
		return err
	}
	if err := cw.current.close(); err != nil {
		return err
	}
	cw.sealed = append(cw.sealed, ChunkInfo{
		Index:      cw.index,
		Path:       cw.current.path,
		Statements: cw.count,
		Bytes:      cw.current.bytes,
	})
	cw.current = nil
	return nil
}

// full reports whether the open chunk has reached the chunk size.
func (cw *ChunkWriter) full() bool {
	return cw.current != nil && cw.count >= cw.chunkSize
}

// maybeRotate seals a full chunk and opens the next one. It runs before a
// counted statement is written, so a full chunk is only rotated when there
// is something to put in its successor.
func (cw *ChunkWriter) maybeRotate() error {
	if cw.current != nil && !cw.full() {
		return nil
	}
	if err := cw.seal(); err != nil {
		return err
	}
	return cw.openNewChunk()
}

// WriteStatement appends a counted statement to the open chunk.
func (cw *ChunkWriter) WriteStatement(stmt *Statement) error {
	if err := cw.maybeRotate(); err != nil {
		return err
	}
	if err := cw.flushPending(); err != nil {
		return err
	}
	if err := cw.current.writeLines(stmt.Lines); err != nil {
		return err
	}
	cw.count++
	return nil
}

// WritePassThrough writes uncounted lines. Lines seen before the first chunk
// or after the open chunk filled up are held for the next chunk.
func (cw *ChunkWriter) WritePassThrough(lines ...string) error {
	if cw.current == nil || cw.full() {
		cw.pending = append(cw.pending, lines...)
		return nil
	}
	return cw.current.writeLines(lines)
}

func (cw *ChunkWriter) flushPending() error {
	if len(cw.pending) == 0 {
		return nil
	}
	err := cw.current.writeLines(cw.pending)
	cw.pending = nil
	return err
}

// Finalize seals whatever chunk is open, partial or not. It returns
// ErrNoStatements when no statement was ever written.
func (cw *ChunkWriter) Finalize() error {
	if cw.current == nil && len(cw.sealed) == 0 {
		cw.pending = nil
		return ErrNoStatements
	}
	if cw.current != nil {
		if err := cw.flushPending(); err != nil {
			return err
		}
	}
	return cw.seal()
}

// Chunks returns the sealed chunks in order.
func (cw *ChunkWriter) Chunks() []ChunkInfo {
	return cw.sealed
}

// Discard closes and removes every file this writer created.
func (cw *ChunkWriter) Discard() error {
	if cw.current != nil {
		cw.current.f.Close()
		cw.current = nil
	}
	var firstErr error
	for _, p := range cw.created {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) && firstErr == nil {
			firstErr = err
		}
	}
	cw.created = nil
	cw.sealed = nil
	return firstErr
}
