package chunker

import (
	"regexp"
	"strings"
)

// Classification is the kind of a line or statement.
type Classification string

const (
	Insert         Classification = "INSERT"
	Replace        Classification = "REPLACE"
	CreateTable    Classification = "CREATE_TABLE"
	LockTables     Classification = "LOCK_TABLES"
	UnlockTables   Classification = "UNLOCK_TABLES"
	OtherDDL       Classification = "OTHER_DDL"
	CommentOrBlank Classification = "COMMENT_OR_BLANK"
	Unrecognized   Classification = "UNRECOGNIZED"
)

// Counted reports whether statements of this class count toward the chunk size.
func (c Classification) Counted() bool {
	return c == Insert || c == Replace
}

// IsDDL reports whether the class is a schema statement.
func (c Classification) IsDDL() bool {
	return c == CreateTable || c == OtherDDL
}

// State is the scanner state a line is classified in.
type State int

const (
	Idle State = iota
	InStatement
)

func (s State) String() string {
	if s == InStatement {
		return "inside-statement"
	}
	return "idle"
}

// Action tells the splitter what to do with a line.
type Action int

const (
	// ActionStart begins a new statement with this line.
	ActionStart Action = iota
	// ActionContinue appends the line to the accumulating statement.
	ActionContinue
	// ActionPassThrough writes the line verbatim without counting it.
	ActionPassThrough
	// ActionDrop discards the line.
	ActionDrop
)

func (a Action) String() string {
	switch a {
	case ActionStart:
		return "start"
	case ActionContinue:
		return "continue"
	case ActionPassThrough:
		return "pass-through"
	default:
		return "drop"
	}
}

// Decision is the result of classifying one line.
type Decision struct {
	Action Action
	Class  Classification
	// Terminates is set when the line ends the statement it starts or continues.
	Terminates bool
}

// Classifier decides how a physical line is handled. The default
// implementation is lexical; a real SQL lexer can be swapped in without
// touching chunk rotation.
type Classifier interface {
	Classify(line string, state State) Decision
}

// UnrecognizedPolicy selects what happens to idle lines no rule matches.
type UnrecognizedPolicy string

const (
	UnrecognizedKeep UnrecognizedPolicy = "keep"
	UnrecognizedDrop UnrecognizedPolicy = "drop"
)

// ParseUnrecognizedPolicy validates a policy name.
func ParseUnrecognizedPolicy(s string) (UnrecognizedPolicy, bool) {
	switch UnrecognizedPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case UnrecognizedKeep, "":
		return UnrecognizedKeep, true
	case UnrecognizedDrop:
		return UnrecognizedDrop, true
	}
	return "", false
}

var (
	reInsert       = regexp.MustCompile(`(?i)^INSERT\s+INTO\b`)
	reReplace      = regexp.MustCompile(`(?i)^REPLACE\s+INTO\b`)
	reLockTables   = regexp.MustCompile(`(?i)^LOCK\s+TABLES\b`)
	reUnlockTables = regexp.MustCompile(`(?i)^UNLOCK\s+TABLES\b`)
	reDropTable    = regexp.MustCompile(`(?i)^\s*DROP\s+TABLE\b`)
	reCreateTable  = regexp.MustCompile(`(?i)^CREATE\s+(?:TEMPORARY\s+)?TABLE\b`)
	reDDL          = regexp.MustCompile(`(?i)^(?:CREATE|ALTER|DROP)\b`)
)

// LineClassifier is the lexical classifier. It looks only at the start of a
// line and at whether the line carries a semicolon; it does not track quoting.
type LineClassifier struct {
	Unrecognized UnrecognizedPolicy
	// StrictTerminator requires the trimmed line to end with ';' instead of
	// merely containing one.
	StrictTerminator bool
}

// Classify implements Classifier.
func (c LineClassifier) Classify(line string, state State) Decision {
	if state == InStatement {
		return Decision{Action: ActionContinue, Terminates: c.terminates(line)}
	}

	trimmed := strings.TrimSpace(line)
	if isCommentOrBlank(trimmed) {
		return Decision{Action: ActionPassThrough, Class: CommentOrBlank}
	}

	switch {
	case reInsert.MatchString(trimmed):
		return Decision{Action: ActionStart, Class: Insert, Terminates: c.terminates(line)}
	case reReplace.MatchString(trimmed):
		return Decision{Action: ActionStart, Class: Replace, Terminates: c.terminates(line)}
	case reLockTables.MatchString(trimmed):
		return Decision{Action: ActionPassThrough, Class: LockTables}
	case reUnlockTables.MatchString(trimmed):
		return Decision{Action: ActionPassThrough, Class: UnlockTables}
	case reCreateTable.MatchString(trimmed):
		return Decision{Action: ActionStart, Class: CreateTable, Terminates: c.terminates(line)}
	case reDDL.MatchString(trimmed):
		return Decision{Action: ActionStart, Class: OtherDDL, Terminates: c.terminates(line)}
	}

	if c.Unrecognized == UnrecognizedDrop {
		return Decision{Action: ActionDrop, Class: Unrecognized}
	}
	return Decision{Action: ActionPassThrough, Class: Unrecognized}
}

func (c LineClassifier) terminates(line string) bool {
	if c.StrictTerminator {
		return strings.HasSuffix(strings.TrimSpace(line), ";")
	}
	return strings.Contains(line, ";")
}

func isCommentOrBlank(trimmed string) bool {
	return trimmed == "" ||
		strings.HasPrefix(trimmed, "--") ||
		strings.HasPrefix(trimmed, "#") ||
		strings.HasPrefix(trimmed, "/*")
}
