package mysql

import (
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	auroraVersionRe  = regexp.MustCompile(`^(\d+)\.(\d+)\.mysql_aurora\.(\d+\.\d+\.\d+)`)
	numericVersionRe = regexp.MustCompile(`^(\d+)\.(\d+)\.(\d+)`)
)

// Server flavors reported by ServerVersion.Flavor.
const (
	FlavorMySQL   = "mysql"
	FlavorPercona = "percona"
	FlavorPXC     = "percona-xtradb-cluster"
	FlavorMariaDB = "mariadb"
	FlavorAurora  = "aurora-mysql"
)

// ServerVersion is the parsed result of SELECT VERSION().
type ServerVersion struct {
	Raw    string
	Major  int
	Minor  int
	Patch  int
	Flavor string
	// Aurora engine version, e.g. "3.04.0". Empty elsewhere.
	Aurora string
}

func (v ServerVersion) String() string {
	if v.Flavor == FlavorAurora {
		return fmt.Sprintf("%d.%d (%s %s)", v.Major, v.Minor, FlavorAurora, v.Aurora)
	}
	return fmt.Sprintf("%d.%d.%d (%s)", v.Major, v.Minor, v.Patch, v.Flavor)
}

// AtLeast compares against a MySQL-numbered release. MariaDB numbering is a
// separate line, so it never satisfies a check above 5.x.
func (v ServerVersion) AtLeast(major, minor, patch int) bool {
	if v.Flavor == FlavorMariaDB && major > 5 {
		return false
	}
	if v.Major != major {
		return v.Major > major
	}
	if v.Minor != minor {
		return v.Minor > minor
	}
	return v.Patch >= patch
}

// UsesReplicaTerminology reports whether the server understands the
// SOURCE/REPLICA spelling of replication statements and variables (8.0.26+).
func (v ServerVersion) UsesReplicaTerminology() bool {
	return v.AtLeast(8, 0, 26)
}

// QueryVersion reads and parses the server version.
func QueryVersion(db *sql.DB) (ServerVersion, error) {
	var raw string
	if err := db.QueryRow("SELECT VERSION()").Scan(&raw); err != nil {
		return ServerVersion{}, fmt.Errorf("querying version: %w", err)
	}
	return ParseVersion(raw)
}

// ParseVersion understands stock MySQL, Percona Server, PXC, MariaDB
// (including the 5.5.5- replication prefix) and Aurora version strings.
func ParseVersion(raw string) (ServerVersion, error) {
	v := ServerVersion{Raw: raw}

	if m := auroraVersionRe.FindStringSubmatch(raw); m != nil {
		v.Major, _ = strconv.Atoi(m[1])
		v.Minor, _ = strconv.Atoi(m[2])
		v.Flavor = FlavorAurora
		v.Aurora = m[3]
		return v, nil
	}

	lower := strings.ToLower(raw)
	s := raw
	if strings.Contains(lower, "mariadb") {
		s = strings.TrimPrefix(s, "5.5.5-")
	}
	m := numericVersionRe.FindStringSubmatch(s)
	if m == nil {
		return v, fmt.Errorf("could not parse version: %s", raw)
	}
	v.Major, _ = strconv.Atoi(m[1])
	v.Minor, _ = strconv.Atoi(m[2])
	v.Patch, _ = strconv.Atoi(m[3])

	switch {
	case strings.Contains(lower, "percona xtradb cluster"):
		v.Flavor = FlavorPXC
	case strings.Contains(lower, "percona"):
		v.Flavor = FlavorPercona
	case strings.Contains(lower, "mariadb"):
		v.Flavor = FlavorMariaDB
	default:
		v.Flavor = FlavorMySQL
	}
	return v, nil
}

// likePattern escapes a variable name for SHOW ... LIKE. SHOW does not take
// placeholders, so the name is inlined and must not carry wildcards.
func likePattern(name string) string {
	r := strings.NewReplacer(`\`, `\\`, `'`, `\'`, "_", `\_`, "%", `\%`)
	return "'" + r.Replace(name) + "'"
}

// showValue runs a SHOW <what> LIKE query and returns the value column. A
// missing name yields "" and no error.
func showValue(db *sql.DB, what, name string) (string, error) {
	var n string
	var value sql.NullString
	err := db.QueryRow("SHOW "+what+" LIKE "+likePattern(name)).Scan(&n, &value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return value.String, nil
}

// Variable reads a server variable. Global scope is tried first; some
// wsrep variables only answer to the unscoped form.
func Variable(db *sql.DB, name string) (string, error) {
	if val, err := showValue(db, "GLOBAL VARIABLES", name); err == nil && val != "" {
		return val, nil
	}
	val, err := showValue(db, "VARIABLES", name)
	if err != nil {
		return "", fmt.Errorf("reading variable %s: %w", name, err)
	}
	return val, nil
}

// VariableInt reads a numeric server variable. Missing variables read as 0.
func VariableInt(db *sql.DB, name string) (int64, error) {
	val, err := Variable(db, name)
	if err != nil || val == "" {
		return 0, err
	}
	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("variable %s is not numeric: %q", name, val)
	}
	return n, nil
}

// GlobalStatus reads a global status counter.
func GlobalStatus(db *sql.DB, name string) (string, error) {
	val, err := showValue(db, "GLOBAL STATUS", name)
	if err != nil {
		return "", fmt.Errorf("reading status %s: %w", name, err)
	}
	return val, nil
}

// MaxAllowedPacket returns max_allowed_packet in bytes. Every chunk
// statement has to fit in it.
func MaxAllowedPacket(db *sql.DB) (int64, error) {
	n, err := VariableInt(db, "max_allowed_packet")
	if err != nil {
		return 0, fmt.Errorf("reading max_allowed_packet: %w", err)
	}
	return n, nil
}

// ReadOnly reports whether read_only or super_read_only is on, which
// makes the server unusable as an import target.
func ReadOnly(db *sql.DB) (bool, error) {
	for _, name := range []string{"read_only", "super_read_only"} {
		val, err := Variable(db, name)
		if err != nil {
			return false, err
		}
		if Enabled(val) {
			return true, nil
		}
	}
	return false, nil
}

// Enabled interprets a boolean variable value.
func Enabled(val string) bool {
	switch strings.ToUpper(strings.TrimSpace(val)) {
	case "ON", "1", "TRUE", "YES":
		return true
	}
	return false
}
