package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nethalo/dumpchunk/internal/chunker"
	"github.com/nethalo/dumpchunk/internal/verify"
)

func writeDump(t *testing.T, statements int) string {
	t.Helper()
	var b strings.Builder
	b.WriteString("-- MySQL dump 10.13\n")
	b.WriteString("DROP TABLE IF EXISTS `users`;\n")
	b.WriteString("CREATE TABLE `users` (\n  `id` int NOT NULL,\n  PRIMARY KEY (`id`)\n);\n")
	for i := 1; i <= statements; i++ {
		fmt.Fprintf(&b, "INSERT INTO `users` VALUES (%d);\n", i)
	}
	path := filepath.Join(t.TempDir(), "dump.sql")
	if err := os.WriteFile(path, []byte(b.String()), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestSplitCmd_JSONReport(t *testing.T) {
	input := writeDump(t, 5)
	outDir := filepath.Join(t.TempDir(), "chunks")

	out, err := executeCommand(t, "split", input, "-o", outDir, "-n", "2", "--no-progress", "-f", "json")
	if err != nil {
		t.Fatalf("split failed: %v\n%s", err, out)
	}

	var report chunker.Report
	if err := json.Unmarshal([]byte(out), &report); err != nil {
		t.Fatalf("output is not a JSON report: %v\n%s", err, out)
	}
	if report.Statements != 5 {
		t.Errorf("Statements = %d, want 5", report.Statements)
	}
	if len(report.Chunks) != 3 {
		t.Errorf("len(Chunks) = %d, want 3", len(report.Chunks))
	}
	if report.ChunkSize != 2 {
		t.Errorf("ChunkSize = %d, want 2", report.ChunkSize)
	}

	vr, err := verify.Dir(outDir, verify.Options{})
	if err != nil {
		t.Fatalf("verify.Dir: %v", err)
	}
	if !vr.OK() {
		t.Errorf("split output does not verify: %v", vr.Problems)
	}
}

func TestSplitCmd_StructureAuto(t *testing.T) {
	input := writeDump(t, 3)
	outDir := filepath.Join(t.TempDir(), "chunks")

	if out, err := executeCommand(t, "split", input, "-o", outDir, "--structure", "auto", "--no-progress"); err != nil {
		t.Fatalf("split failed: %v\n%s", err, out)
	}

	data, err := os.ReadFile(filepath.Join(outDir, "structure.sql"))
	if err != nil {
		t.Fatalf("structure file should be written next to the chunks: %v", err)
	}
	if !strings.Contains(string(data), "CREATE TABLE `users`") {
		t.Errorf("structure file should hold the CREATE TABLE, got:\n%s", data)
	}
}

func TestSplitCmd_RewriteReplace(t *testing.T) {
	input := writeDump(t, 2)
	outDir := filepath.Join(t.TempDir(), "chunks")

	if out, err := executeCommand(t, "split", input, "-o", outDir, "--rewrite-replace", "--no-progress"); err != nil {
		t.Fatalf("split failed: %v\n%s", err, out)
	}

	data, err := os.ReadFile(filepath.Join(outDir, "chunk_01.sql"))
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(data), "INSERT INTO") {
		t.Errorf("INSERT INTO should have been rewritten:\n%s", data)
	}
	if !strings.Contains(string(data), "REPLACE INTO `users` VALUES (1);") {
		t.Errorf("expected REPLACE INTO statements:\n%s", data)
	}
}

func TestSplitCmd_Errors(t *testing.T) {
	emptyDump := filepath.Join(t.TempDir(), "empty.sql")
	os.WriteFile(emptyDump, []byte("-- nothing here\n"), 0600)

	tests := []struct {
		name    string
		args    []string
		wantErr error
	}{
		{"missing input", []string{"split", filepath.Join(t.TempDir(), "absent.sql"), "--no-progress"}, nil},
		{"directory input", []string{"split", t.TempDir(), "--no-progress"}, nil},
		{"zero chunk size", []string{"split", writeDump(t, 1), "-o", t.TempDir(), "-n", "0", "--no-progress"}, chunker.ErrInvalidConfig},
		{"bad policy", []string{"split", writeDump(t, 1), "-o", t.TempDir(), "--unrecognized", "maybe", "--no-progress"}, nil},
		{"no statements", []string{"split", emptyDump, "-o", t.TempDir(), "--no-progress"}, chunker.ErrNoStatements},
		{"no args", []string{"split"}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := executeCommand(t, tt.args...)
			if err == nil {
				t.Fatal("expected error")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestSplitCmd_RefusesExistingChunksWithoutForce(t *testing.T) {
	input := writeDump(t, 3)
	outDir := filepath.Join(t.TempDir(), "chunks")

	if _, err := executeCommand(t, "split", input, "-o", outDir, "--no-progress"); err != nil {
		t.Fatalf("first split failed: %v", err)
	}
	_, err := executeCommand(t, "split", input, "-o", outDir, "--no-progress")
	if !errors.Is(err, chunker.ErrInvalidConfig) {
		t.Fatalf("second split without --force: error = %v, want ErrInvalidConfig", err)
	}
	if _, err := executeCommand(t, "split", input, "-o", outDir, "--force", "--no-progress"); err != nil {
		t.Fatalf("split with --force failed: %v", err)
	}
}

func TestInputSize(t *testing.T) {
	input := writeDump(t, 1)
	info, _ := os.Stat(input)

	if got := inputSize(input); got != info.Size() {
		t.Errorf("inputSize(file) = %d, want %d", got, info.Size())
	}
	if got := inputSize("-"); got != 0 {
		t.Errorf("inputSize(-) = %d, want 0", got)
	}
	if got := inputSize(filepath.Join(t.TempDir(), "absent")); got != 0 {
		t.Errorf("inputSize(missing) = %d, want 0", got)
	}
}
