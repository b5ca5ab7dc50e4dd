package parser

import (
	"fmt"
	"strings"
	"testing"

	"github.com/nethalo/dumpchunk/internal/chunker"
)

func FuzzParse(f *testing.F) {
	for _, seed := range []string{
		"INSERT INTO `users` VALUES (1,'a'),\n(2,'b');",
		"REPLACE INTO users VALUES (1)",
		"DROP TABLE IF EXISTS `t`;",
		"LOCK TABLES `t` WRITE;",
		"/*!40101 SET NAMES utf8mb4 */;",
		"/*!*/;",
		"/*!",
		"LOCK TABLES",
		"'; DROP TABLE users; --",
		"",
		"  \n\t  ",
	} {
		f.Add(seed)
	}

	f.Fuzz(func(t *testing.T, sql string) {
		result, err := Parse(sql)
		if err != nil {
			return
		}
		if result == nil {
			t.Fatal("nil result with nil error")
		}
		if result.Type == "" || result.Op == "" {
			t.Errorf("unclassified result %+v for %q", result, sql)
		}
		if result.Rows < 0 {
			t.Errorf("negative row count for %q", sql)
		}
	})
}

// FuzzRewriteReplace checks that the INSERT to REPLACE rewrite done while
// splitting never changes what the statement writes.
func FuzzRewriteReplace(f *testing.F) {
	f.Add("orders", "it's", 3)
	f.Add("t", "a;b", 1)
	f.Add("x", "line\\nbreak", 40)

	f.Fuzz(func(t *testing.T, table, value string, rows int) {
		if rows < 1 || rows > 200 || strings.ContainsAny(table, "`\x00") || table == "" {
			t.Skip()
		}
		quoted := strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(value)
		tuples := make([]string, rows)
		for i := range tuples {
			tuples[i] = fmt.Sprintf("(%d,'%s')", i, quoted)
		}
		text := fmt.Sprintf("INSERT INTO `%s` VALUES %s;", table, strings.Join(tuples, ","))

		before, err := Parse(text)
		if err != nil {
			t.Skip()
		}
		stmt := &chunker.Statement{Lines: []string{text}, Class: chunker.Insert}
		chunker.RewriteReplace(stmt)
		after, err := Parse(stmt.Text())
		if err != nil {
			t.Fatalf("rewritten statement no longer parses: %v\n%s", err, stmt.Text())
		}
		if after.Op != Replace {
			t.Errorf("Op = %s after rewrite", after.Op)
		}
		if after.Table != before.Table || after.Rows != before.Rows {
			t.Errorf("rewrite changed target: %s/%d -> %s/%d", before.Table, before.Rows, after.Table, after.Rows)
		}
	})
}
