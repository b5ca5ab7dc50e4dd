package importer

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	mysqldriver "github.com/go-sql-driver/mysql"

	"github.com/nethalo/dumpchunk/internal/chunker"
	"github.com/nethalo/dumpchunk/internal/topology"
)

func writeFile(t *testing.T, path string, body []string) {
	t.Helper()
	lines := append(append(append([]string{}, chunker.Header...), body...), chunker.Footer...)
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0644); err != nil {
		t.Fatal(err)
	}
}

func writeChunk(t *testing.T, dir string, index int, body ...string) string {
	t.Helper()
	path := filepath.Join(dir, chunker.ChunkName(index, chunker.DefaultIndexWidth))
	writeFile(t, path, body)
	return path
}

func trimmed(lines []string) []string {
	out := make([]string, len(lines))
	for i, l := range lines {
		out[i] = strings.TrimSuffix(l, ";")
	}
	return out
}

func expectExecs(mock sqlmock.Sqlmock, stmts ...string) {
	for _, s := range stmts {
		mock.ExpectExec(s).WillReturnResult(sqlmock.NewResult(0, 1))
	}
}

// expectFile expects a whole chunk to run: header, body, footer.
func expectFile(mock sqlmock.Sqlmock, body ...string) {
	expectExecs(mock, trimmed(chunker.Header)...)
	expectExecs(mock, body...)
	expectExecs(mock, trimmed(chunker.Footer)...)
}

// expectRollback expects a failed file to be rolled back and its session
// settings restored.
func expectRollback(mock sqlmock.Sqlmock) {
	expectExecs(mock, "ROLLBACK")
	expectExecs(mock, trimmed(chunker.Footer[1:])...)
}

func newMock(t *testing.T) (sqlmock.Sqlmock, func(Config) *Importer) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return mock, func(cfg Config) *Importer { return New(db, cfg) }
}

func TestListChunks(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"chunk_100.sql", "chunk_02.sql", "chunk_10.sql", "chunk_01.sql", "structure.sql", "notes.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "chunk_03.sql"), 0755); err != nil {
		t.Fatal(err)
	}

	chunks, err := ListChunks(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []int{1, 2, 10, 100}
	if len(chunks) != len(want) {
		t.Fatalf("got %d chunks, want %d", len(chunks), len(want))
	}
	for i, c := range chunks {
		if c.Index != want[i] {
			t.Errorf("chunks[%d].Index = %d, want %d", i, c.Index, want[i])
		}
		if c.Size != 1 {
			t.Errorf("chunks[%d].Size = %d, want 1", i, c.Size)
		}
	}

	if _, err := ListChunks(filepath.Join(dir, "missing")); err == nil {
		t.Error("expected error for missing directory")
	}
}

func TestRun_ImportsChunksInOrder(t *testing.T) {
	dir := t.TempDir()
	writeChunk(t, dir, 2, "INSERT INTO t VALUES (3);")
	writeChunk(t, dir, 1, "INSERT INTO t VALUES (1),", "(2);")

	mock, newImporter := newMock(t)
	expectFile(mock, "INSERT INTO t VALUES (1),\n(2)")
	expectFile(mock, "INSERT INTO t VALUES (3)")

	var seen []int
	im := newImporter(Config{
		Dir:              dir,
		MaxAllowedPacket: 64 << 20,
		Progress:         func(r FileResult) { seen = append(seen, r.Index) },
	})
	report, err := im.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(report.Files) != 2 {
		t.Fatalf("got %d file results, want 2", len(report.Files))
	}
	if report.Statements != 20 {
		t.Errorf("Statements = %d, want 20", report.Statements)
	}
	if report.Failed != 0 || report.Retries != 0 {
		t.Errorf("Failed=%d Retries=%d, want 0", report.Failed, report.Retries)
	}
	if len(seen) != 2 || seen[0] != 1 || seen[1] != 2 {
		t.Errorf("progress order = %v, want [1 2]", seen)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestRun_ReadsMaxAllowedPacket(t *testing.T) {
	dir := t.TempDir()
	writeChunk(t, dir, 1, "INSERT INTO t VALUES (1);")

	mock, newImporter := newMock(t)
	mock.ExpectQuery(`SHOW GLOBAL VARIABLES LIKE 'max\_allowed\_packet'`).
		WillReturnRows(sqlmock.NewRows([]string{"Variable_name", "Value"}).AddRow("max_allowed_packet", "16"))
	expectFile(mock, "INSERT INTO t VALUES (1)")

	report, err := newImporter(Config{Dir: dir}).Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// most header and footer statements are longer than 16 bytes
	if len(report.Warnings) == 0 {
		t.Fatal("expected max_allowed_packet warnings")
	}
	for _, w := range report.Warnings {
		if !strings.Contains(w, "exceeds max_allowed_packet") {
			t.Errorf("unexpected warning %q", w)
		}
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestRun_RetriesDeadlock(t *testing.T) {
	dir := t.TempDir()
	writeChunk(t, dir, 1, "INSERT INTO t VALUES (1);")

	mock, newImporter := newMock(t)
	expectExecs(mock, trimmed(chunker.Header)...)
	mock.ExpectExec("INSERT INTO t VALUES (1)").
		WillReturnError(&mysqldriver.MySQLError{Number: 1213, Message: "Deadlock found when trying to get lock"})
	expectRollback(mock)
	expectFile(mock, "INSERT INTO t VALUES (1)")

	report, err := newImporter(Config{Dir: dir, Retries: 2, MaxAllowedPacket: 1 << 20}).Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Retries != 1 {
		t.Errorf("Retries = %d, want 1", report.Retries)
	}
	if got := report.Files[0].Attempts; got != 2 {
		t.Errorf("Attempts = %d, want 2", got)
	}
	if report.Files[0].Failed() {
		t.Errorf("file should have succeeded, got error %q", report.Files[0].Error)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestRun_RetriesExhausted(t *testing.T) {
	dir := t.TempDir()
	writeChunk(t, dir, 1, "INSERT INTO t VALUES (1);")

	mock, newImporter := newMock(t)
	for i := 0; i < 2; i++ {
		expectExecs(mock, trimmed(chunker.Header)...)
		mock.ExpectExec("INSERT INTO t VALUES (1)").
			WillReturnError(&mysqldriver.MySQLError{Number: 1205, Message: "Lock wait timeout exceeded"})
		expectRollback(mock)
	}

	report, err := newImporter(Config{Dir: dir, Retries: 1, MaxAllowedPacket: 1 << 20}).Run(context.Background())
	if !errors.Is(err, ErrChunkFailed) {
		t.Fatalf("error = %v, want ErrChunkFailed", err)
	}
	if report.Files[0].Attempts != 2 {
		t.Errorf("Attempts = %d, want 2", report.Files[0].Attempts)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestRun_SyntaxErrorStops(t *testing.T) {
	dir := t.TempDir()
	writeChunk(t, dir, 1, "INSERT INTO t VALUES (1;")
	writeChunk(t, dir, 2, "INSERT INTO t VALUES (2);")

	mock, newImporter := newMock(t)
	expectExecs(mock, trimmed(chunker.Header)...)
	mock.ExpectExec("INSERT INTO t VALUES (1").
		WillReturnError(&mysqldriver.MySQLError{Number: 1064, Message: "You have an error in your SQL syntax"})
	expectRollback(mock)

	report, err := newImporter(Config{Dir: dir, Retries: 3, MaxAllowedPacket: 1 << 20}).Run(context.Background())
	if !errors.Is(err, ErrChunkFailed) {
		t.Fatalf("error = %v, want ErrChunkFailed", err)
	}
	if !strings.Contains(err.Error(), "--start-at 1") {
		t.Errorf("error %q should name the resume point", err)
	}
	if len(report.Files) != 1 || report.Files[0].Attempts != 1 {
		t.Errorf("syntax errors must not be retried or continue: %+v", report.Files)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestRun_ContinueOnError(t *testing.T) {
	dir := t.TempDir()
	writeChunk(t, dir, 1, "INSERT INTO missing VALUES (1);")
	writeChunk(t, dir, 2, "INSERT INTO t VALUES (2);")

	mock, newImporter := newMock(t)
	expectExecs(mock, trimmed(chunker.Header)...)
	mock.ExpectExec("INSERT INTO missing VALUES (1)").
		WillReturnError(&mysqldriver.MySQLError{Number: 1146, Message: "Table 'db.missing' doesn't exist"})
	expectRollback(mock)
	expectFile(mock, "INSERT INTO t VALUES (2)")

	report, err := newImporter(Config{Dir: dir, ContinueOnError: true, MaxAllowedPacket: 1 << 20}).Run(context.Background())
	if !errors.Is(err, ErrChunkFailed) {
		t.Fatalf("error = %v, want ErrChunkFailed", err)
	}
	if report.Failed != 1 || len(report.Files) != 2 {
		t.Errorf("Failed=%d files=%d, want 1 and 2", report.Failed, len(report.Files))
	}
	if report.Statements != 10 {
		t.Errorf("Statements = %d, want 10 (successful file only)", report.Statements)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestRun_FailedFileRestoresSession(t *testing.T) {
	dir := t.TempDir()
	writeChunk(t, dir, 1, "INSERT INTO t VALUES (1;")

	mock, newImporter := newMock(t)
	expectExecs(mock, trimmed(chunker.Header)...)
	mock.ExpectExec("INSERT INTO t VALUES (1").
		WillReturnError(&mysqldriver.MySQLError{Number: 1064, Message: "You have an error in your SQL syntax"})
	expectExecs(mock, "ROLLBACK", "SET AUTOCOMMIT=1", "SET UNIQUE_CHECKS=1", "SET FOREIGN_KEY_CHECKS=1")

	if _, err := newImporter(Config{Dir: dir, MaxAllowedPacket: 1 << 20}).Run(context.Background()); !errors.Is(err, ErrChunkFailed) {
		t.Fatalf("error = %v, want ErrChunkFailed", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("session settings not restored: %v", err)
	}
}

func TestRun_UnrestorableSessionDiscardsConnection(t *testing.T) {
	dir := t.TempDir()
	writeChunk(t, dir, 1, "INSERT INTO t VALUES (1;")

	mock, newImporter := newMock(t)
	expectExecs(mock, trimmed(chunker.Header)...)
	mock.ExpectExec("INSERT INTO t VALUES (1").
		WillReturnError(&mysqldriver.MySQLError{Number: 1064, Message: "You have an error in your SQL syntax"})
	expectExecs(mock, "ROLLBACK")
	mock.ExpectExec("SET AUTOCOMMIT=1").WillReturnError(errors.New("connection reset"))
	mock.ExpectClose()

	if _, err := newImporter(Config{Dir: dir, MaxAllowedPacket: 1 << 20}).Run(context.Background()); !errors.Is(err, ErrChunkFailed) {
		t.Fatalf("error = %v, want ErrChunkFailed", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("connection should have been closed: %v", err)
	}
}

func TestRun_TriggerBlock(t *testing.T) {
	dir := t.TempDir()
	writeChunk(t, dir, 1,
		"INSERT INTO t VALUES (1);",
		"DELIMITER ;;",
		"/*!50003 CREATE*/ /*!50003 TRIGGER `t_bi` BEFORE INSERT ON `t` FOR EACH ROW BEGIN",
		"  SET NEW.a = 1;",
		"  SET NEW.b = 2;",
		"END */;;",
		"DELIMITER ;",
		"INSERT INTO t VALUES (2);",
	)

	mock, newImporter := newMock(t)
	expectFile(mock,
		"INSERT INTO t VALUES (1)",
		"/*!50003 CREATE*/ /*!50003 TRIGGER `t_bi` BEFORE INSERT ON `t` FOR EACH ROW BEGIN\n  SET NEW.a = 1;\n  SET NEW.b = 2;\nEND */",
		"INSERT INTO t VALUES (2)",
	)

	report, err := newImporter(Config{Dir: dir, MaxAllowedPacket: 1 << 20}).Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := len(chunker.Header) + 3 + len(chunker.Footer); report.Statements != want {
		t.Errorf("Statements = %d, want %d", report.Statements, want)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestRun_StartAtAndStructure(t *testing.T) {
	dir := t.TempDir()
	structure := filepath.Join(dir, "structure.sql")
	writeFile(t, structure, []string{"CREATE TABLE `t` (", "  `id` int NOT NULL", ") ENGINE=InnoDB;", ""})
	for i := 1; i <= 3; i++ {
		writeChunk(t, dir, i, fmt.Sprintf("INSERT INTO t VALUES (%d);", i))
	}

	mock, newImporter := newMock(t)
	expectFile(mock, "CREATE TABLE `t` (\n  `id` int NOT NULL\n) ENGINE=InnoDB")
	expectFile(mock, "INSERT INTO t VALUES (2)")
	expectFile(mock, "INSERT INTO t VALUES (3)")

	report, err := newImporter(Config{
		Dir:              dir,
		StructurePath:    structure,
		StartAt:          2,
		MaxAllowedPacket: 1 << 20,
	}).Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Skipped != 1 {
		t.Errorf("Skipped = %d, want 1", report.Skipped)
	}
	if len(report.Files) != 3 || !report.Files[0].Structure {
		t.Errorf("structure file should run first: %+v", report.Files)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestRun_DryRun(t *testing.T) {
	dir := t.TempDir()
	writeChunk(t, dir, 1, "INSERT INTO t VALUES (1),", "(2);", "INSERT INTO t VALUES (3);")

	report, err := New(nil, Config{Dir: dir, DryRun: true}).Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !report.DryRun || report.Statements != 10 {
		t.Errorf("DryRun=%v Statements=%d, want true and 10", report.DryRun, report.Statements)
	}
}

func TestRun_Errors(t *testing.T) {
	if _, err := New(nil, Config{Dir: t.TempDir()}).Run(context.Background()); err == nil {
		t.Error("expected error without a connection")
	}
	if _, err := New(nil, Config{Dir: t.TempDir(), DryRun: true}).Run(context.Background()); err == nil {
		t.Error("expected error for an empty directory")
	}

	dir := t.TempDir()
	writeChunk(t, dir, 1, "INSERT INTO t VALUES (1);")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	mock, newImporter := newMock(t)
	_, err := newImporter(Config{Dir: dir, MaxAllowedPacket: 1 << 20}).Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestRun_TopologyWarnings(t *testing.T) {
	dir := t.TempDir()
	writeChunk(t, dir, 1, "INSERT INTO t VALUES (1);")

	report, err := New(nil, Config{Dir: dir, DryRun: true}).Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Warnings) != 0 {
		t.Errorf("dry run should skip preflight, got %v", report.Warnings)
	}

	mock, newImporter := newMock(t)
	expectFile(mock, "INSERT INTO t VALUES (1)")
	report, err = newImporter(Config{
		Dir:              dir,
		MaxAllowedPacket: 1 << 20,
		Topology:         &topology.Info{Type: topology.Galera, WsrepMaxWsSize: 32, GaleraNodeState: "Synced"},
	}).Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(report.Warnings) != 1 || !strings.Contains(report.Warnings[0], "transaction limit") {
		t.Errorf("Warnings = %v, want one transaction limit warning", report.Warnings)
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"deadlock", &mysqldriver.MySQLError{Number: 1213}, true},
		{"lock wait timeout", &mysqldriver.MySQLError{Number: 1205}, true},
		{"server gone", &mysqldriver.MySQLError{Number: 2006}, true},
		{"lost connection", &mysqldriver.MySQLError{Number: 2013}, true},
		{"wrapped deadlock", fmt.Errorf("line 7: %w", &mysqldriver.MySQLError{Number: 1213}), true},
		{"bad conn", driver.ErrBadConn, true},
		{"invalid conn", mysqldriver.ErrInvalidConn, true},
		{"access denied", &mysqldriver.MySQLError{Number: 1045}, false},
		{"db access denied", &mysqldriver.MySQLError{Number: 1044}, false},
		{"table access denied", &mysqldriver.MySQLError{Number: 1142}, false},
		{"super required", &mysqldriver.MySQLError{Number: 1227}, false},
		{"syntax", &mysqldriver.MySQLError{Number: 1064}, false},
		{"canceled", context.Canceled, false},
		{"plain", errors.New("boom"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestRun_SkipsTableLocks(t *testing.T) {
	dir := t.TempDir()
	writeChunk(t, dir, 1, "LOCK TABLES `t` WRITE;", "INSERT INTO t VALUES (1);", "UNLOCK TABLES;")

	mock, newImporter := newMock(t)
	expectFile(mock, "INSERT INTO t VALUES (1)")

	report, err := newImporter(Config{Dir: dir, MaxAllowedPacket: 64 << 20}).Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := len(chunker.Header) + 1 + len(chunker.Footer); report.Statements != want {
		t.Errorf("Statements = %d, want %d", report.Statements, want)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}
