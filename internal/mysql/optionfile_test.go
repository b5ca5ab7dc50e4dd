package mysql

import (
	"os"
	"path/filepath"
	"testing"
)

func writeOptionFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "my.cnf")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadOptionFile(t *testing.T) {
	path := writeOptionFile(t, `[mysqld]
port = 3310

[client]
user = app
password = "s3cr3t"
host = db.internal
port = 3307
socket = '/var/run/mysqld/mysqld.sock'
`)

	opt, err := LoadOptionFile(path)
	if err != nil {
		t.Fatalf("LoadOptionFile() error: %v", err)
	}
	if opt.User != "app" {
		t.Errorf("User = %q, want app", opt.User)
	}
	if opt.Password != "s3cr3t" {
		t.Errorf("Password = %q, want quotes stripped", opt.Password)
	}
	if opt.Host != "db.internal" {
		t.Errorf("Host = %q", opt.Host)
	}
	if opt.Port != 3307 {
		t.Errorf("Port = %d, want the [client] port 3307", opt.Port)
	}
	if opt.Socket != "/var/run/mysqld/mysqld.sock" {
		t.Errorf("Socket = %q", opt.Socket)
	}
	if opt.Database != "" {
		t.Errorf("Database = %q, want empty", opt.Database)
	}
}

func TestLoadOptionFile_NoClientSection(t *testing.T) {
	path := writeOptionFile(t, "[mysqld]\nport = 3306\n")

	opt, err := LoadOptionFile(path)
	if err != nil {
		t.Fatalf("LoadOptionFile() error: %v", err)
	}
	if opt.User != "" || opt.Port != 0 {
		t.Errorf("expected empty options, got %+v", opt)
	}
}

func TestLoadOptionFile_InvalidPort(t *testing.T) {
	path := writeOptionFile(t, "[client]\nport = abc\n")

	if _, err := LoadOptionFile(path); err == nil {
		t.Error("expected error for non-numeric port")
	}
}

func TestLoadOptionFile_Missing(t *testing.T) {
	if _, err := LoadOptionFile(filepath.Join(t.TempDir(), "absent.cnf")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestOptionFile_Apply(t *testing.T) {
	opt := &OptionFile{Host: "h", Port: 3307, User: "u", Password: "p", Socket: "/s", Database: "d"}

	cfg := ConnectionConfig{User: "explicit"}
	opt.Apply(&cfg)
	if cfg.User != "explicit" {
		t.Errorf("User = %q, explicit value must win", cfg.User)
	}
	if cfg.Host != "h" || cfg.Port != 3307 || cfg.Password != "p" || cfg.Socket != "/s" || cfg.Database != "d" {
		t.Errorf("unexpected config after Apply: %+v", cfg)
	}

	withFile := ConnectionConfig{PasswordFile: "/etc/pw"}
	opt.Apply(&withFile)
	if withFile.Password != "" {
		t.Error("password must not be taken from the option file when a password file is set")
	}

	var nilOpt *OptionFile
	nilOpt.Apply(&cfg)
}

func TestUnquote(t *testing.T) {
	tests := map[string]string{
		`"abc"`:   "abc",
		`'abc'`:   "abc",
		`abc`:     "abc",
		` "a b" `: "a b",
		`"`:       `"`,
		`"abc'`:   `"abc'`,
	}
	for in, want := range tests {
		if got := unquote(in); got != want {
			t.Errorf("unquote(%q) = %q, want %q", in, got, want)
		}
	}
}
