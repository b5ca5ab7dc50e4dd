// Package dumper runs mysqldump to produce the dumps the splitter consumes.
package dumper

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
)

// DefaultBinary is the mysqldump executable looked up in PATH.
const DefaultBinary = "mysqldump"

// Options describes one mysqldump invocation.
type Options struct {
	Binary   string
	Host     string
	Port     int
	Socket   string
	User     string
	Password string

	Databases []string
	// Tables restricts the dump to these tables of the single database given.
	Tables []string
	// IgnoreTables are db.table names to leave out.
	IgnoreTables []string

	SingleTransaction bool
	SkipLockTables    bool
	NoData            bool // schema only
	NoCreateInfo      bool // data only
	MaxAllowedPacket  string
	ExtraArgs         []string

	Logger logrus.FieldLogger
}

func (o Options) validate() error {
	if len(o.Databases) == 0 {
		return errors.New("at least one database is required")
	}
	if len(o.Tables) > 0 && len(o.Databases) != 1 {
		return errors.New("tables can only be selected with exactly one database")
	}
	if o.NoData && o.NoCreateInfo {
		return errors.New("no-data and no-create-info together dump nothing")
	}
	for _, t := range o.IgnoreTables {
		if !strings.Contains(t, ".") {
			return fmt.Errorf("ignored table %q must be qualified as db.table", t)
		}
	}
	return nil
}

// BuildArgs returns the mysqldump argument list. defaultsFile, when set, must
// come first: mysqldump only honours --defaults-extra-file in that position.
func BuildArgs(opts Options, defaultsFile string) []string {
	var args []string
	if defaultsFile != "" {
		args = append(args, "--defaults-extra-file="+defaultsFile)
	}
	if opts.Socket != "" {
		args = append(args, "--socket="+opts.Socket)
	} else {
		if opts.Host != "" {
			args = append(args, "--host="+opts.Host)
		}
		if opts.Port != 0 {
			args = append(args, "--port="+strconv.Itoa(opts.Port))
		}
	}
	if opts.User != "" {
		args = append(args, "--user="+opts.User)
	}
	if opts.SingleTransaction {
		args = append(args, "--single-transaction")
	}
	// Row-at-a-time retrieval keeps mysqldump's memory flat on large tables.
	args = append(args, "--quick")
	if opts.SkipLockTables {
		args = append(args, "--skip-lock-tables")
	}
	if opts.MaxAllowedPacket != "" {
		args = append(args, "--max-allowed-packet="+opts.MaxAllowedPacket)
	}
	if opts.NoData {
		args = append(args, "--no-data")
	}
	if opts.NoCreateInfo {
		args = append(args, "--no-create-info")
	}
	for _, t := range opts.IgnoreTables {
		args = append(args, "--ignore-table="+t)
	}
	args = append(args, opts.ExtraArgs...)

	if len(opts.Tables) > 0 {
		args = append(args, opts.Databases[0])
		args = append(args, opts.Tables...)
	} else if len(opts.Databases) == 1 {
		args = append(args, opts.Databases[0])
	} else {
		args = append(args, "--databases")
		args = append(args, opts.Databases...)
	}
	return args
}

// WriteDefaultsFile writes a [client] option file holding the password so it
// never shows up in the process list. The caller removes it.
func WriteDefaultsFile(dir, password string) (string, error) {
	f, err := os.CreateTemp(dir, "dumpchunk-*.cnf")
	if err != nil {
		return "", fmt.Errorf("creating defaults file: %w", err)
	}
	path := f.Name()
	if err := f.Chmod(0600); err != nil {
		f.Close()
		os.Remove(path)
		return "", fmt.Errorf("securing defaults file: %w", err)
	}
	// Option files treat backslash and quote specially inside quoted values.
	escaped := strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(password)
	if _, err := fmt.Fprintf(f, "[client]\npassword=\"%s\"\n", escaped); err != nil {
		f.Close()
		os.Remove(path)
		return "", fmt.Errorf("writing defaults file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("writing defaults file: %w", err)
	}
	return path, nil
}

// Run executes mysqldump with its standard output copied to w. Standard
// error is captured and attached to the returned error.
func Run(ctx context.Context, opts Options, w io.Writer) error {
	if err := opts.validate(); err != nil {
		return err
	}
	log := opts.Logger
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = l
	}
	binary := opts.Binary
	if binary == "" {
		binary = DefaultBinary
	}

	var defaultsFile string
	if opts.Password != "" {
		path, err := WriteDefaultsFile("", opts.Password)
		if err != nil {
			return err
		}
		defer os.Remove(path)
		defaultsFile = path
	}

	args := BuildArgs(opts, defaultsFile)
	log.WithFields(logrus.Fields{
		"binary": binary,
		"args":   strings.Join(args, " "),
	}).Debug("starting mysqldump")

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, binary, args...)
	cmd.Stdout = w
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			return fmt.Errorf("%s failed: %w", binary, err)
		}
		return fmt.Errorf("%s failed: %w (stderr: %s)", binary, err, msg)
	}
	if msg := strings.TrimSpace(stderr.String()); msg != "" {
		// mysqldump prints warnings, e.g. about GTIDs, on success too
		log.WithField("stderr", msg).Warn("mysqldump reported warnings")
	}
	return nil
}
