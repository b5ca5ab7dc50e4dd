package chunker

import (
	"strings"
	"unicode"
)

// Statement is one logical SQL statement, possibly spanning several lines.
type Statement struct {
	Lines     []string
	Class     Classification
	StartLine int // 1-based line number of the first line
	// Delimiter terminating the statement when a DELIMITER command changed
	// it; empty means ';'.
	Delimiter string
}

// Text returns the statement lines joined with newlines.
func (s *Statement) Text() string {
	return strings.Join(s.Lines, "\n")
}

// Size returns the statement size in bytes including line terminators.
func (s *Statement) Size() int {
	n := 0
	for _, l := range s.Lines {
		n += len(l) + 1
	}
	return n
}

// RewriteReplace turns a leading INSERT INTO into REPLACE INTO and reports
// whether it did. Leading whitespace is skipped with the same rule the
// classifier uses, so anything classified Insert is rewritten. Statements
// that already start with REPLACE INTO come back unchanged.
func RewriteReplace(stmt *Statement) bool {
	if stmt.Class != Insert || len(stmt.Lines) == 0 {
		return false
	}
	first := stmt.Lines[0]
	rest := strings.TrimLeftFunc(first, unicode.IsSpace)
	loc := reInsert.FindStringIndex(rest)
	if loc == nil {
		return false
	}
	indent := first[:len(first)-len(rest)]
	stmt.Lines[0] = indent + "REPLACE INTO" + rest[loc[1]:]
	stmt.Class = Replace
	return true
}

// Body returns the statement text without surrounding space and without
// its terminating delimiter, ready to send to the server.
func (s *Statement) Body() string {
	d := s.Delimiter
	if d == "" {
		d = ";"
	}
	return strings.TrimSuffix(strings.TrimSpace(s.Text()), d)
}
