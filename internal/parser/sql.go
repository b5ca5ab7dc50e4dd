package parser

import (
	"fmt"
	"regexp"
	"strings"
	"sync"

	"vitess.io/vitess/go/vt/sqlparser"
)

// Pre-pass regexes for statements Vitess can't parse or loses info from.
var (
	// mysqldump executable comments: /*!40101 SET NAMES utf8mb4 */
	reExecutableComment = regexp.MustCompile(`(?s)^/\*!\d*\s*(.*?)\s*\*/$`)
	// LOCK TABLES `t` WRITE, `u` READ
	reLockTables = regexp.MustCompile("(?i)^LOCK\\s+TABLES?\\s+(\\S+)")
)

// StatementType classifies the SQL statement.
type StatementType string

const (
	DDL     StatementType = "DDL"
	DML     StatementType = "DML"
	Session StatementType = "SESSION"
	Unknown StatementType = "UNKNOWN"
)

// Operation is the specific statement kind found in a chunk.
type Operation string

const (
	Insert       Operation = "INSERT"
	Replace      Operation = "REPLACE"
	CreateTable  Operation = "CREATE_TABLE"
	AlterTable   Operation = "ALTER_TABLE"
	DropTable    Operation = "DROP_TABLE"
	OtherDDL     Operation = "OTHER_DDL"
	Set          Operation = "SET"
	Begin        Operation = "BEGIN"
	Commit       Operation = "COMMIT"
	Rollback     Operation = "ROLLBACK"
	LockTables   Operation = "LOCK_TABLES"
	UnlockTables Operation = "UNLOCK_TABLES"
	Use          Operation = "USE"
	Other        Operation = "OTHER"
)

// ParsedSQL holds the result of parsing a SQL statement.
type ParsedSQL struct {
	Type     StatementType
	Op       Operation
	RawSQL   string
	Database string // extracted from qualified table name if present
	Table    string
	Rows     int // VALUES tuples for INSERT/REPLACE
	Columns  []string
}

var (
	parserOnce      sync.Once
	globalParser    *sqlparser.Parser
	globalParserErr error
)

func getParser() (*sqlparser.Parser, error) {
	parserOnce.Do(func() {
		globalParser, globalParserErr = sqlparser.New(sqlparser.Options{})
	})
	return globalParser, globalParserErr
}

// splitQualified splits a possibly-qualified name (db.table or table) into (db, name).
func splitQualified(name string) (string, string) {
	name = strings.TrimRight(name, ",;")
	name = strings.Trim(name, "`")
	if idx := strings.Index(name, "`.`"); idx >= 0 {
		return name[:idx], name[idx+3:]
	}
	if idx := strings.IndexByte(name, '.'); idx >= 0 {
		return strings.Trim(name[:idx], "`"), strings.Trim(name[idx+1:], "`")
	}
	return "", name
}

// Parse parses one statement taken from a chunk or dump.
func Parse(sql string) (*ParsedSQL, error) {
	sql = strings.TrimSpace(sql)
	sql = strings.TrimRight(sql, ";")
	sql = strings.TrimSpace(sql)

	// Pre-pass: executable comments carry a statement Vitess would treat as a comment.
	if m := reExecutableComment.FindStringSubmatch(sql); m != nil {
		inner := strings.TrimSpace(m[1])
		if inner == "" {
			return &ParsedSQL{Type: Unknown, Op: Other, RawSQL: sql}, nil
		}
		result, err := Parse(inner)
		if err != nil {
			return nil, err
		}
		result.RawSQL = sql
		return result, nil
	}

	// Pre-pass: LOCK TABLES keeps the first table name regardless of lock type.
	if m := reLockTables.FindStringSubmatch(sql); m != nil {
		db, table := splitQualified(m[1])
		return &ParsedSQL{Type: Session, Op: LockTables, RawSQL: sql, Database: db, Table: table}, nil
	}

	p, err := getParser()
	if err != nil {
		return nil, fmt.Errorf("creating parser: %w", err)
	}

	stmt, err := p.Parse(sql)
	if err != nil {
		return nil, fmt.Errorf("parsing SQL: %w", err)
	}

	result := &ParsedSQL{
		RawSQL: sql,
	}

	switch s := stmt.(type) {
	case *sqlparser.Insert:
		result.Type = DML
		result.Op = Insert
		if s.Action == sqlparser.ReplaceAct {
			result.Op = Replace
		}
		if s.Table != nil {
			if tn, ok := s.Table.Expr.(sqlparser.TableName); ok {
				result.Database, result.Table = extractTableName(tn)
			}
		}
		if vals, ok := s.Rows.(sqlparser.Values); ok {
			result.Rows = len(vals)
		}
		for _, col := range s.Columns {
			result.Columns = append(result.Columns, col.String())
		}

	case *sqlparser.CreateTable:
		result.Type = DDL
		result.Op = CreateTable
		result.Database, result.Table = extractTableName(s.Table)

	case *sqlparser.AlterTable:
		result.Type = DDL
		result.Op = AlterTable
		result.Database, result.Table = extractTableName(s.Table)

	case *sqlparser.DropTable:
		result.Type = DDL
		result.Op = DropTable
		if len(s.FromTables) > 0 {
			result.Database, result.Table = extractTableName(s.FromTables[0])
		}

	case *sqlparser.CreateDatabase, *sqlparser.DropDatabase, *sqlparser.CreateView,
		*sqlparser.DropView, *sqlparser.AlterView, *sqlparser.TruncateTable, *sqlparser.RenameTable:
		result.Type = DDL
		result.Op = OtherDDL

	case *sqlparser.Set:
		result.Type = Session
		result.Op = Set

	case *sqlparser.Begin:
		result.Type = Session
		result.Op = Begin

	case *sqlparser.Commit:
		result.Type = Session
		result.Op = Commit

	case *sqlparser.Rollback:
		result.Type = Session
		result.Op = Rollback

	case *sqlparser.UnlockTables:
		result.Type = Session
		result.Op = UnlockTables

	case *sqlparser.Use:
		result.Type = Session
		result.Op = Use
		result.Database = s.DBName.String()

	default:
		result.Type = Unknown
		result.Op = Other
	}

	return result, nil
}

func extractTableName(tn sqlparser.TableName) (string, string) {
	db := tn.Qualifier.String()
	table := tn.Name.String()
	return db, table
}
