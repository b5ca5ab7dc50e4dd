// Package topology detects the replication setup of the import target and the
// limits it puts on how large one chunk transaction may be.
package topology

import (
	"database/sql"
	"fmt"
	"strconv"

	"github.com/nethalo/dumpchunk/internal/mysql"
)

// Type represents the detected MySQL topology.
type Type string

const (
	Standalone      Type = "standalone"
	AsyncReplica    Type = "async-replica"
	SemiSyncReplica Type = "semisync-replica"
	Galera          Type = "galera"
	GroupRepl       Type = "group-replication"
)

// Info holds the topology state relevant to bulk loading.
type Info struct {
	Type    Type
	Version mysql.ServerVersion

	// Replication (async/semisync)
	IsReplica      bool
	IsPrimary      bool // has replicas attached
	ReplicaLagSecs *int64

	// Galera / PXC
	GaleraClusterSize int
	GaleraNodeState   string // Synced, Donor, Desynced, etc.
	WsrepMaxWsSize    int64  // bytes
	WsrepMaxWsRows    int64  // 0 = unlimited
	FlowControlPaused float64

	// Group Replication
	GRMode             string // SINGLE-PRIMARY or MULTI-PRIMARY
	GRMemberCount      int
	GRTransactionLimit int64 // bytes, 0 = unlimited
	GRMemberRole       string

	ReadOnly bool
}

// TransactionLimit returns the largest write set the cluster accepts in one
// transaction, in bytes. Zero means the topology imposes no limit.
func (i *Info) TransactionLimit() int64 {
	switch i.Type {
	case Galera:
		return i.WsrepMaxWsSize
	case GroupRepl:
		return i.GRTransactionLimit
	}
	return 0
}

// Warnings lists conditions that make the server a poor import target.
func (i *Info) Warnings() []string {
	var out []string
	if i.ReadOnly {
		out = append(out, "server is read-only")
	}
	if i.IsReplica {
		out = append(out, "server is a replica; writes will diverge from its source")
	}
	if i.Type == Galera && i.GaleraNodeState != "" && i.GaleraNodeState != "Synced" {
		out = append(out, fmt.Sprintf("galera node state is %s, not Synced", i.GaleraNodeState))
	}
	if i.Type == Galera && i.FlowControlPaused > 0.1 {
		out = append(out, fmt.Sprintf("galera flow control paused %.2f%% of the time", i.FlowControlPaused*100))
	}
	if i.Type == GroupRepl && i.GRMode == "SINGLE-PRIMARY" && i.GRMemberRole == "SECONDARY" {
		out = append(out, "group replication member is a SECONDARY")
	}
	return out
}

// Detect determines the topology of the connected server.
func Detect(db *sql.DB) (*Info, error) {
	info := &Info{}

	version, err := mysql.QueryVersion(db)
	if err != nil {
		return nil, err
	}
	info.Version = version

	ro, err := mysql.ReadOnly(db)
	if err != nil {
		return nil, err
	}
	info.ReadOnly = ro

	if detectGalera(db, info) {
		return info, nil
	}
	if detectGroupReplication(db, info) {
		return info, nil
	}
	if detectReplication(db, info) {
		return info, nil
	}

	info.Type = Standalone
	return info, nil
}

func detectGalera(db *sql.DB, info *Info) bool {
	// wsrep_cluster_size is a status variable; it is only present with a provider loaded
	clusterSize, err := mysql.GlobalStatus(db, "wsrep_cluster_size")
	if err != nil || clusterSize == "" {
		return false
	}
	size, _ := strconv.Atoi(clusterSize)
	if size == 0 {
		return false
	}

	info.Type = Galera
	info.GaleraClusterSize = size
	info.GaleraNodeState, _ = mysql.GlobalStatus(db, "wsrep_local_state_comment")
	info.WsrepMaxWsSize, _ = mysql.VariableInt(db, "wsrep_max_ws_size")
	info.WsrepMaxWsRows, _ = mysql.VariableInt(db, "wsrep_max_ws_rows")

	if fc, _ := mysql.GlobalStatus(db, "wsrep_flow_control_paused"); fc != "" {
		info.FlowControlPaused, _ = strconv.ParseFloat(fc, 64)
	}
	return true
}

func detectGroupReplication(db *sql.DB, info *Info) bool {
	group, err := mysql.Variable(db, "group_replication_group_name")
	if err != nil || group == "" {
		return false
	}

	info.Type = GroupRepl
	if sp, _ := mysql.Variable(db, "group_replication_single_primary_mode"); mysql.Enabled(sp) {
		info.GRMode = "SINGLE-PRIMARY"
	} else {
		info.GRMode = "MULTI-PRIMARY"
	}
	info.GRTransactionLimit, _ = mysql.VariableInt(db, "group_replication_transaction_size_limit")

	var role string
	err = db.QueryRow(`
		SELECT MEMBER_ROLE
		FROM performance_schema.replication_group_members
		WHERE MEMBER_ID = @@server_uuid
	`).Scan(&role)
	if err == nil {
		info.GRMemberRole = role
	}

	var count int
	err = db.QueryRow(`
		SELECT COUNT(*)
		FROM performance_schema.replication_group_members
		WHERE MEMBER_STATE = 'ONLINE'
	`).Scan(&count)
	if err == nil {
		info.GRMemberCount = count
	}
	return true
}

func detectReplication(db *sql.DB, info *Info) bool {
	detected := false

	modern := info.Version.UsesReplicaTerminology()
	statusQuery := "SHOW SLAVE STATUS"
	if modern {
		statusQuery = "SHOW REPLICA STATUS"
	}
	rows, err := db.Query(statusQuery)
	if err == nil {
		defer rows.Close()
		if rows.Next() {
			info.IsReplica = true
			detected = true
			info.ReplicaLagSecs = scanLag(rows)
		}
	}

	var dumpThreads int
	err = db.QueryRow("SELECT COUNT(*) FROM information_schema.PROCESSLIST WHERE COMMAND IN ('Binlog Dump', 'Binlog Dump GTID')").Scan(&dumpThreads)
	if err == nil && dumpThreads > 0 {
		info.IsPrimary = true
		detected = true
	}

	if !detected {
		return false
	}

	// the source_* plugin is optional on 8.0.26+; the master_* one still loads there
	var semiSync string
	if modern {
		semiSync, _ = mysql.Variable(db, "rpl_semi_sync_source_enabled")
	}
	if semiSync == "" {
		semiSync, _ = mysql.Variable(db, "rpl_semi_sync_master_enabled")
	}
	if mysql.Enabled(semiSync) {
		info.Type = SemiSyncReplica
	} else {
		info.Type = AsyncReplica
	}
	return true
}

// scanLag reads Seconds_Behind_Source (or _Master) from the current status row.
func scanLag(rows *sql.Rows) *int64 {
	cols, err := rows.Columns()
	if err != nil {
		return nil
	}
	values := make([]sql.NullString, len(cols))
	ptrs := make([]any, len(cols))
	for i := range values {
		ptrs[i] = &values[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return nil
	}
	for i, col := range cols {
		if col != "Seconds_Behind_Source" && col != "Seconds_Behind_Master" {
			continue
		}
		if !values[i].Valid {
			return nil
		}
		lag, err := strconv.ParseInt(values[i].String, 10, 64)
		if err != nil {
			return nil
		}
		return &lag
	}
	return nil
}
