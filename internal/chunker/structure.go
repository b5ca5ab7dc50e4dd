package chunker

import "os"

// StructureWriter collects CREATE TABLE blocks into a separate schema file
// wrapped in the chunk header and footer.
type StructureWriter struct {
	path   string
	file   *sqlFile
	tables int
}

// NewStructureWriter creates the structure file and writes the header.
func NewStructureWriter(path string) (*StructureWriter, error) {
	f, err := createSQLFile(path)
	if err != nil {
		return nil, err
	}
	if err := f.writeLines(Header); err != nil {
		f.f.Close()
		return nil, err
	}
	return &StructureWriter{path: path, file: f}, nil
}

// WriteTable appends one captured block followed by a blank separator line.
func (sw *StructureWriter) WriteTable(stmt *Statement) error {
	if err := sw.file.writeLines(stmt.Lines); err != nil {
		return err
	}
	if err := sw.file.writeLines([]string{""}); err != nil {
		return err
	}
	sw.tables++
	return nil
}

// Tables returns the number of blocks written.
func (sw *StructureWriter) Tables() int {
	return sw.tables
}

// Path returns the structure file location.
func (sw *StructureWriter) Path() string {
	return sw.path
}

// Close writes the footer and closes the file.
func (sw *StructureWriter) Close() error {
	if sw.file == nil {
		return nil
	}
	if err := sw.file.writeLines(Footer); err != nil {
		return err
	}
	err := sw.file.close()
	sw.file = nil
	return err
}

// Discard closes and removes the structure file.
func (sw *StructureWriter) Discard() error {
	if sw.file != nil {
		sw.file.f.Close()
		sw.file = nil
	}
	if err := os.Remove(sw.path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
