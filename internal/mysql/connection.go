package mysql

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"database/sql"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	mysqldriver "github.com/go-sql-driver/mysql"
	"golang.org/x/term"
)

// TLS modes accepted by ConnectionConfig.TLSMode.
const (
	TLSDefault    = ""
	TLSDisabled   = "disabled"
	TLSPreferred  = "preferred"
	TLSRequired   = "required"
	TLSSkipVerify = "skip-verify"
	TLSCustom     = "custom"
)

const dialTimeout = 10 * time.Second

// ConnectionConfig holds MySQL connection parameters.
type ConnectionConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	PasswordFile string // read when Password is empty
	Database     string
	Socket       string
	TLSMode      string
	TLSCA        string // CA bundle, required for TLSCustom
}

// Address returns host:port or the socket path, for display.
func (c ConnectionConfig) Address() string {
	if c.Socket != "" {
		return c.Socket
	}
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// driverConfig translates c into a driver configuration. Chunk statements
// routinely exceed the driver's default packet cap, so the limit is left to
// the server (MaxAllowedPacket 0).
func (c ConnectionConfig) driverConfig() (*mysqldriver.Config, error) {
	dc := mysqldriver.NewConfig()
	dc.User = c.User
	dc.Passwd = c.Password
	if c.Socket != "" {
		dc.Net = "unix"
		dc.Addr = c.Socket
	} else {
		dc.Net = "tcp"
		dc.Addr = fmt.Sprintf("%s:%d", c.Host, c.Port)
	}
	dc.DBName = c.Database
	if dc.DBName == "" {
		dc.DBName = "information_schema"
	}
	dc.ParseTime = true
	dc.MaxAllowedPacket = 0
	dc.Timeout = dialTimeout

	switch c.TLSMode {
	case TLSDefault:
	case TLSDisabled:
		dc.TLSConfig = "false"
	case TLSPreferred:
		dc.TLSConfig = "preferred"
	case TLSRequired:
		dc.TLSConfig = "true"
	case TLSSkipVerify:
		dc.TLSConfig = "skip-verify"
	case TLSCustom:
		if c.TLSCA == "" {
			return nil, fmt.Errorf("--tls-ca is required when --tls=custom")
		}
		pool, err := loadCA(c.TLSCA)
		if err != nil {
			return nil, fmt.Errorf("TLS setup failed: %w", err)
		}
		dc.TLS = &tls.Config{RootCAs: pool, ServerName: c.Host}
	default:
		return nil, fmt.Errorf("invalid TLS mode %q: valid values are disabled, preferred, required, skip-verify, custom", c.TLSMode)
	}
	return dc, nil
}

// Connect opens a pool against cfg and pings it. A password file is read
// when no password was given.
func Connect(ctx context.Context, cfg ConnectionConfig) (*sql.DB, error) {
	if cfg.Password == "" && cfg.PasswordFile != "" {
		pw, err := ReadPasswordFile(cfg.PasswordFile)
		if err != nil {
			return nil, err
		}
		cfg.Password = pw
	}

	dc, err := cfg.driverConfig()
	if err != nil {
		return nil, err
	}
	connector, err := mysqldriver.NewConnector(dc)
	if err != nil {
		return nil, fmt.Errorf("failed to configure driver: %w", err)
	}
	db := sql.OpenDB(connector)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping %s: %w", cfg.Address(), err)
	}

	// one connection replays a chunk, the other serves metadata queries
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(1)
	return db, nil
}

// ReadPasswordFile returns the first line of a password file. Files readable
// by group or others are rejected.
func ReadPasswordFile(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("reading password file: %w", err)
	}
	if perm := info.Mode().Perm(); perm&0o077 != 0 {
		return "", fmt.Errorf("password file %s has mode %04o, want 0600 or stricter", path, perm)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading password file: %w", err)
	}
	line, _, _ := strings.Cut(string(data), "\n")
	return strings.TrimRight(line, "\r"), nil
}

func loadCA(path string) (*x509.CertPool, error) {
	pem, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading CA certificate %q: %w", path, err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("no valid certificates found in %q", path)
	}
	return pool, nil
}

// PromptPassword asks for a password on the terminal without echo. When
// stdin is not a terminal nothing is asked and the password stays empty, so
// piped and scheduled runs fall through to passwordless auth.
func PromptPassword(w io.Writer) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", nil
	}
	fmt.Fprint(w, "Enter password: ")
	pw, err := term.ReadPassword(fd)
	fmt.Fprintln(w)
	if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}
	return string(pw), nil
}
