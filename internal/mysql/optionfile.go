package mysql

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/dlintw/goconf"
)

// OptionFile holds the [client] settings of a MySQL option file (my.cnf).
type OptionFile struct {
	Path     string
	Host     string
	Port     int
	User     string
	Password string
	Socket   string
	Database string
}

// DefaultOptionFile returns ~/.my.cnf when it exists, or "".
func DefaultOptionFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	path := filepath.Join(home, ".my.cnf")
	if _, err := os.Stat(path); err != nil {
		return ""
	}
	return path
}

// LoadOptionFile reads the [client] section of a MySQL option file. Keys
// missing from the file are left empty; a missing section is not an error.
func LoadOptionFile(path string) (*OptionFile, error) {
	cfg, err := goconf.ReadConfigFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading option file %s: %w", path, err)
	}

	opt := &OptionFile{Path: path}
	get := func(key string) string {
		v, err := cfg.GetString("client", key)
		if err != nil {
			return ""
		}
		return unquote(v)
	}

	opt.Host = get("host")
	opt.User = get("user")
	opt.Password = get("password")
	opt.Socket = get("socket")
	opt.Database = get("database")
	if p := get("port"); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("option file %s: invalid port %q", path, p)
		}
		opt.Port = port
	}
	return opt, nil
}

// Apply fills the empty fields of cfg from the option file.
func (o *OptionFile) Apply(cfg *ConnectionConfig) {
	if o == nil {
		return
	}
	if cfg.Host == "" {
		cfg.Host = o.Host
	}
	if cfg.Port == 0 {
		cfg.Port = o.Port
	}
	if cfg.User == "" {
		cfg.User = o.User
	}
	if cfg.Password == "" && cfg.PasswordFile == "" {
		cfg.Password = o.Password
	}
	if cfg.Socket == "" {
		cfg.Socket = o.Socket
	}
	if cfg.Database == "" {
		cfg.Database = o.Database
	}
}

func unquote(v string) string {
	v = strings.TrimSpace(v)
	if len(v) >= 2 {
		if (v[0] == '"' && v[len(v)-1] == '"') || (v[0] == '\'' && v[len(v)-1] == '\'') {
			return v[1 : len(v)-1]
		}
	}
	return v
}
