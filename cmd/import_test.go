package cmd

import (
	"encoding/json"
	"path/filepath"
	"testing"
)

func TestImportCmd_DryRun(t *testing.T) {
	dir := splitInto(t, 5)

	out, err := executeCommand(t, "import", dir, "--dry-run", "--no-progress", "-f", "json")
	if err != nil {
		t.Fatalf("dry run failed: %v\n%s", err, out)
	}

	var report struct {
		DryRun bool `json:"dry_run"`
		Files  []struct {
			Index int `json:"index"`
		} `json:"files"`
		Failed int `json:"failed"`
	}
	if err := json.Unmarshal([]byte(out), &report); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out)
	}
	if !report.DryRun {
		t.Error("report should be marked as a dry run")
	}
	if len(report.Files) != 3 {
		t.Fatalf("len(Files) = %d, want 3", len(report.Files))
	}
	for i, f := range report.Files {
		if f.Index != i+1 {
			t.Errorf("Files[%d].Index = %d, want %d", i, f.Index, i+1)
		}
	}
}

func TestImportCmd_DryRunStartAt(t *testing.T) {
	dir := splitInto(t, 5)

	out, err := executeCommand(t, "import", dir, "--dry-run", "--start-at", "2", "--no-progress", "-f", "json")
	if err != nil {
		t.Fatalf("dry run failed: %v\n%s", err, out)
	}

	var report struct {
		Skipped int `json:"skipped"`
		Files   []struct {
			Index int `json:"index"`
		} `json:"files"`
	}
	if err := json.Unmarshal([]byte(out), &report); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out)
	}
	if report.Skipped != 1 {
		t.Errorf("Skipped = %d, want 1", report.Skipped)
	}
	if len(report.Files) != 2 || report.Files[0].Index != 2 {
		t.Errorf("expected chunks 2 and 3, got %+v", report.Files)
	}
}

func TestImportCmd_Errors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"missing dir", []string{"import", filepath.Join(t.TempDir(), "absent"), "--dry-run"}},
		{"file instead of dir", []string{"import", writeDump(t, 1), "--dry-run"}},
		{"empty dir", []string{"import", t.TempDir(), "--dry-run"}},
		{"no args", []string{"import"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := executeCommand(t, tt.args...); err == nil {
				t.Error("expected error")
			}
		})
	}
}
