package chunker

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strings"
	"unicode"
)

// lineReader reads newline-terminated lines of any length.
type lineReader struct {
	br *bufio.Reader
}

func newLineReader(r io.Reader) *lineReader {
	return &lineReader{br: bufio.NewReaderSize(r, 1024*1024)}
}

// next returns the next line without its trailing newline and the number of
// raw bytes consumed. ok is false at end of input.
func (lr *lineReader) next() (line string, n int, ok bool, err error) {
	s, err := lr.br.ReadString('\n')
	if err != nil && err != io.EOF {
		return "", 0, false, err
	}
	if len(s) == 0 {
		return "", 0, false, nil
	}
	return strings.TrimSuffix(s, "\n"), len(s), true, nil
}

var reDelimiterCommand = regexp.MustCompile(`(?i)^\s*DELIMITER\s+(\S+)\s*$`)

// ReadStatements yields every executable statement of a SQL script in order.
// Comment and blank lines are skipped except MySQL executable comments
// (/*! ... */), which are statements. Boundaries use the same lexical rule as
// the splitter. A trailing statement without a terminator is yielded as is.
//
// DELIMITER commands of the mysql client (mysqldump wraps triggers and
// routines in them) are honoured and not yielded: while a delimiter other
// than ';' is active a statement ends on the line that ends with it.
func ReadStatements(r io.Reader, fn func(*Statement) error) error {
	lr := newLineReader(r)
	cls := LineClassifier{}
	var (
		current   *Statement
		lineNo    int
		delimiter = ";"
	)
	ends := func(line string) bool {
		if delimiter == ";" {
			return cls.terminates(line)
		}
		return strings.HasSuffix(strings.TrimRightFunc(line, unicode.IsSpace), delimiter)
	}
	for {
		line, _, ok, err := lr.next()
		if err != nil {
			return fmt.Errorf("reading line %d: %w", lineNo+1, err)
		}
		if !ok {
			break
		}
		lineNo++

		if current == nil {
			if m := reDelimiterCommand.FindStringSubmatch(line); m != nil {
				delimiter = m[1]
				continue
			}
			trimmed := strings.TrimSpace(line)
			if isCommentOrBlank(trimmed) && !strings.HasPrefix(trimmed, "/*!") {
				continue
			}
			d := cls.Classify(line, Idle)
			class := d.Class
			if class == CommentOrBlank {
				class = Unrecognized
			}
			current = &Statement{Lines: []string{line}, Class: class, StartLine: lineNo}
			if delimiter != ";" {
				current.Delimiter = delimiter
			}
			if ends(line) {
				if err := fn(current); err != nil {
					return err
				}
				current = nil
			}
			continue
		}

		current.Lines = append(current.Lines, line)
		if ends(line) {
			if err := fn(current); err != nil {
				return err
			}
			current = nil
		}
	}
	if current != nil {
		return fn(current)
	}
	return nil
}

// EstimateStatements counts lines that start an INSERT or REPLACE statement.
// It is a grep-style estimate: it can disagree with what the splitter counts
// and is only meant for progress display.
func EstimateStatements(r io.Reader) (int, error) {
	lr := newLineReader(r)
	count := 0
	for {
		line, _, ok, err := lr.next()
		if err != nil {
			return count, err
		}
		if !ok {
			return count, nil
		}
		trimmed := strings.TrimSpace(line)
		if reInsert.MatchString(trimmed) || reReplace.MatchString(trimmed) {
			count++
		}
	}
}
