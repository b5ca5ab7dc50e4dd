package cmd

import (
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

// fakeMysqldump writes a script that prints a small dump and records its
// arguments next to itself.
func fakeMysqldump(t *testing.T, rows int) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts not supported")
	}
	dir := t.TempDir()
	var b strings.Builder
	b.WriteString("#!/bin/sh\n")
	b.WriteString("echo \"$@\" > \"$(dirname \"$0\")/args\"\n")
	b.WriteString("echo '-- MySQL dump 10.13'\n")
	for i := 1; i <= rows; i++ {
		b.WriteString("echo 'INSERT INTO `t` VALUES (" + strings.Repeat("1", i) + ");'\n")
	}
	path := filepath.Join(dir, "mysqldump")
	if err := os.WriteFile(path, []byte(b.String()), 0755); err != nil {
		t.Fatal(err)
	}
	return path
}

func readArgs(t *testing.T, bin string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(filepath.Dir(bin), "args"))
	if err != nil {
		t.Fatalf("fake mysqldump did not run: %v", err)
	}
	return strings.TrimSpace(string(data))
}

func TestExportCmd_ToFile(t *testing.T) {
	bin := fakeMysqldump(t, 3)
	dumpPath := filepath.Join(t.TempDir(), "shop.sql")

	out, err := executeCommand(t, "export", "shop", "--mysqldump", bin, "--password=secret",
		"-H", "db1", "-u", "backup", "-o", dumpPath)
	if err != nil {
		t.Fatalf("export failed: %v\n%s", err, out)
	}

	data, err := os.ReadFile(dumpPath)
	if err != nil {
		t.Fatal(err)
	}
	if got := strings.Count(string(data), "INSERT INTO"); got != 3 {
		t.Errorf("dump holds %d inserts, want 3", got)
	}
	info, _ := os.Stat(dumpPath)
	if info.Mode().Perm() != 0600 {
		t.Errorf("dump file mode = %o, want 0600", info.Mode().Perm())
	}

	args := readArgs(t, bin)
	for _, want := range []string{"--host=db1", "--user=backup", "--single-transaction", "shop"} {
		if !strings.Contains(args, want) {
			t.Errorf("mysqldump args %q should contain %q", args, want)
		}
	}
	if strings.Contains(args, "secret") {
		t.Error("password leaked onto the mysqldump command line")
	}
}

func TestExportCmd_SplitDir(t *testing.T) {
	bin := fakeMysqldump(t, 5)
	outDir := filepath.Join(t.TempDir(), "chunks")

	out, err := executeCommand(t, "export", "shop", "--mysqldump", bin, "--password=secret",
		"--split-dir", outDir, "-n", "2", "-f", "json")
	if err != nil {
		t.Fatalf("export failed: %v\n%s", err, out)
	}

	var report struct {
		Input      string `json:"input"`
		Statements int    `json:"statements"`
		Chunks     []struct {
			Path string `json:"path"`
		} `json:"chunks"`
	}
	if err := json.Unmarshal([]byte(out), &report); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out)
	}
	if report.Statements != 5 || len(report.Chunks) != 3 {
		t.Errorf("statements/chunks = %d/%d, want 5/3", report.Statements, len(report.Chunks))
	}
	if report.Input != "mysqldump shop" {
		t.Errorf("Input = %q", report.Input)
	}
}

func TestExportCmd_SplitterFlags(t *testing.T) {
	bin := fakeMysqldump(t, 3)
	outDir := filepath.Join(t.TempDir(), "chunks")

	out, err := executeCommand(t, "export", "shop", "--mysqldump", bin, "--password=secret",
		"--split-dir", outDir, "-n", "2", "--index-width", "3", "--unrecognized", "drop",
		"--strict-terminator", "--skip-ddl", "-f", "json")
	if err != nil {
		t.Fatalf("export failed: %v\n%s", err, out)
	}
	for _, name := range []string{"chunk_001.sql", "chunk_002.sql"} {
		if _, err := os.Stat(filepath.Join(outDir, name)); err != nil {
			t.Errorf("expected %s with --index-width 3: %v", name, err)
		}
	}

	_, err = executeCommand(t, "export", "shop", "--mysqldump", bin, "--password=secret",
		"--split-dir", filepath.Join(t.TempDir(), "chunks"), "--unrecognized", "maybe")
	if err == nil || !strings.Contains(err.Error(), "--unrecognized") {
		t.Errorf("invalid --unrecognized should be rejected, got %v", err)
	}
}

func TestExportCmd_DumpFailure(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts not supported")
	}
	bin := filepath.Join(t.TempDir(), "mysqldump")
	os.WriteFile(bin, []byte("#!/bin/sh\necho 'Access denied' >&2\nexit 2\n"), 0755)
	outDir := filepath.Join(t.TempDir(), "chunks")

	_, err := executeCommand(t, "export", "shop", "--mysqldump", bin, "--password=x", "--split-dir", outDir)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "Access denied") {
		t.Errorf("error %q should carry mysqldump's stderr", err)
	}
}

func TestExportCmd_NoDatabase(t *testing.T) {
	if _, err := executeCommand(t, "export", "--password=x"); err == nil {
		t.Error("expected error without a database")
	}
}
