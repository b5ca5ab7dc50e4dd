package output

import (
	"fmt"
	"strings"
	"time"

	"github.com/nethalo/dumpchunk/internal/chunker"
	"github.com/nethalo/dumpchunk/internal/mysql"
	"github.com/nethalo/dumpchunk/internal/topology"
)

func formatTopoType(topo *topology.Info) string {
	switch topo.Type {
	case topology.Galera:
		return fmt.Sprintf("Galera cluster (%d nodes)", topo.GaleraClusterSize)
	case topology.GroupRepl:
		return fmt.Sprintf("Group Replication (%s, %d members)", topo.GRMode, topo.GRMemberCount)
	case topology.AsyncReplica:
		return "Async Replication"
	case topology.SemiSyncReplica:
		return "Semi-sync Replication"
	default:
		return "Standalone"
	}
}

func formatNumber(n int64) string {
	s := fmt.Sprintf("%d", n)
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")
	if len(s) <= 3 {
		if neg {
			return "-" + s
		}
		return s
	}
	var result strings.Builder
	if neg {
		result.WriteByte('-')
	}
	for i, c := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			result.WriteRune(',')
		}
		result.WriteRune(c)
	}
	return result.String()
}

func formatLimit(b int64) string {
	if b <= 0 {
		return "none"
	}
	return mysql.HumanBytes(b)
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return d.Round(time.Millisecond).String()
	}
	return d.Round(100 * time.Millisecond).String()
}

// estimateNote describes the pre-count next to the real count.
func estimateNote(r *chunker.Report) string {
	if r.Estimated < 0 {
		return ""
	}
	if r.Estimated == r.Statements {
		return fmt.Sprintf("pre-count %s (matches)", formatNumber(int64(r.Estimated)))
	}
	return fmt.Sprintf("pre-count %s (estimate)", formatNumber(int64(r.Estimated)))
}

func chunkRange(r *chunker.Report) string {
	switch len(r.Chunks) {
	case 0:
		return "none"
	case 1:
		return r.Chunks[0].Path
	}
	return fmt.Sprintf("%s .. %s", r.Chunks[0].Path, r.Chunks[len(r.Chunks)-1].Path)
}
