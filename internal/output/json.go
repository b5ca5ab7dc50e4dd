package output

import (
	"encoding/json"
	"io"

	"github.com/nethalo/dumpchunk/internal/chunker"
	"github.com/nethalo/dumpchunk/internal/importer"
	"github.com/nethalo/dumpchunk/internal/mysql"
	"github.com/nethalo/dumpchunk/internal/verify"
)

// JSONRenderer produces machine-readable JSON output.
type JSONRenderer struct {
	w io.Writer
}

type jsonConnection struct {
	Address          string      `json:"address"`
	User             string      `json:"user,omitempty"`
	Version          string      `json:"version"`
	Flavor           string      `json:"flavor"`
	Topology         string      `json:"topology"`
	ReadOnly         bool        `json:"read_only"`
	MaxAllowedPacket int64       `json:"max_allowed_packet"`
	TransactionLimit int64       `json:"transaction_limit"`
	ClusterSize      int         `json:"cluster_size,omitempty"`
	NodeState        string      `json:"node_state,omitempty"`
	GRMode           string      `json:"gr_mode,omitempty"`
	MemberRole       string      `json:"member_role,omitempty"`
	ReplicaLagSecs   *int64      `json:"replica_lag_seconds,omitempty"`
	Schema           *jsonSchema `json:"schema,omitempty"`
	Warnings         []string    `json:"warnings,omitempty"`
}

type jsonSchema struct {
	Database  string               `json:"database"`
	SizeBytes int64                `json:"size_bytes"`
	SizeHuman string               `json:"size_human"`
	Rows      int64                `json:"rows"`
	Tables    []mysql.TableSummary `json:"tables"`
}

func (r *JSONRenderer) RenderSplit(report *chunker.Report) {
	r.encode(report)
}

func (r *JSONRenderer) RenderImport(report *importer.Report) {
	r.encode(report)
}

func (r *JSONRenderer) RenderVerify(report *verify.Report) {
	out := struct {
		*verify.Report
		OK bool `json:"ok"`
	}{report, report.OK()}
	r.encode(out)
}

func (r *JSONRenderer) RenderConnection(info ConnectionInfo) {
	topo := info.Topology
	out := jsonConnection{
		Address:          info.Conn.Address(),
		User:             info.Conn.User,
		Version:          topo.Version.String(),
		Flavor:           topo.Version.Flavor,
		Topology:         string(topo.Type),
		ReadOnly:         topo.ReadOnly,
		MaxAllowedPacket: info.MaxAllowedPacket,
		TransactionLimit: topo.TransactionLimit(),
		ClusterSize:      topo.GaleraClusterSize,
		NodeState:        topo.GaleraNodeState,
		GRMode:           topo.GRMode,
		MemberRole:       topo.GRMemberRole,
		ReplicaLagSecs:   topo.ReplicaLagSecs,
		Warnings:         topo.Warnings(),
	}
	if s := info.Schema; s != nil {
		out.Schema = &jsonSchema{
			Database:  s.Database,
			SizeBytes: s.TotalSize(),
			SizeHuman: s.TotalSizeHuman(),
			Rows:      s.TotalRows(),
			Tables:    s.Tables,
		}
	}
	r.encode(out)
}

func (r *JSONRenderer) encode(v any) {
	enc := json.NewEncoder(r.w)
	enc.SetIndent("", "  ")
	enc.Encode(v)
}
