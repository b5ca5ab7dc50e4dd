package cmd

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/nethalo/dumpchunk/internal/mysql"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// connectionConfig builds the MySQL connection settings from flags, env,
// config file and the MySQL option file, in that order of precedence.
func connectionConfig() (mysql.ConnectionConfig, error) {
	cfg := mysql.ConnectionConfig{
		Host:         viper.GetString("host"),
		User:         viper.GetString("user"),
		Password:     viper.GetString("password"),
		PasswordFile: viper.GetString("password-file"),
		Database:     viper.GetString("database"),
		Socket:       viper.GetString("socket"),
		TLSMode:      viper.GetString("tls"),
		TLSCA:        viper.GetString("tls-ca"),
	}
	if portFlag := rootCmd.PersistentFlags().Lookup("port"); portFlag.Changed || viper.IsSet("connections.default.port") || os.Getenv("DUMPCHUNK_PORT") != "" {
		cfg.Port = viper.GetInt("port")
	}

	optPath := viper.GetString("defaults-file")
	if optPath == "" {
		optPath = mysql.DefaultOptionFile()
	}
	if optPath != "" {
		opt, err := mysql.LoadOptionFile(optPath)
		if err != nil {
			return cfg, err
		}
		logrus.WithField("path", optPath).Debug("read MySQL option file")
		opt.Apply(&cfg)
	}

	if cfg.Host == "" && cfg.Socket == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = 3306
	}
	if cfg.User == "" {
		cfg.User = "root"
	}
	return cfg, nil
}

// openDB connects to MySQL, prompting for a password when none was given.
func openDB(ctx context.Context) (*sql.DB, mysql.ConnectionConfig, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := connectionConfig()
	if err != nil {
		return nil, cfg, err
	}

	if cfg.Password == "" && cfg.PasswordFile == "" {
		if cfg.Password, err = mysql.PromptPassword(os.Stderr); err != nil {
			return nil, cfg, err
		}
	}

	db, err := mysql.Connect(ctx, cfg)
	if err != nil {
		return nil, cfg, fmt.Errorf("connection failed: %w", err)
	}
	logrus.WithFields(logrus.Fields{
		"server": cfg.Address(),
		"user":   cfg.User,
	}).Debug("connected")
	return db, cfg, nil
}

// validateInputPath checks that path names a readable regular file. "-"
// stands for stdin and is always accepted.
func validateInputPath(path string) error {
	if path == "-" {
		return nil
	}
	if path == "" {
		return fmt.Errorf("input path is empty")
	}
	clean := filepath.Clean(path)
	info, err := os.Stat(clean)
	if err != nil {
		return fmt.Errorf("cannot access input file: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf("input %s is a directory, not a file", clean)
	}
	if !info.Mode().IsRegular() && info.Mode()&os.ModeNamedPipe == 0 {
		return fmt.Errorf("input %s is not a regular file", clean)
	}
	return nil
}

// structurePath resolves the structure file flag: "auto" places it next to
// the chunks in outDir.
func structurePath(flag, outDir string) string {
	switch strings.TrimSpace(flag) {
	case "":
		return ""
	case "auto":
		return filepath.Join(outDir, "structure.sql")
	default:
		return flag
	}
}
