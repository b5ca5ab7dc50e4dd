package output

import (
	"io"

	"github.com/nethalo/dumpchunk/internal/chunker"
	"github.com/nethalo/dumpchunk/internal/importer"
	"github.com/nethalo/dumpchunk/internal/mysql"
	"github.com/nethalo/dumpchunk/internal/topology"
	"github.com/nethalo/dumpchunk/internal/verify"
)

// ConnectionInfo is what the connect command learned about a server.
type ConnectionInfo struct {
	Conn             mysql.ConnectionConfig
	Topology         *topology.Info
	MaxAllowedPacket int64
	Schema           *mysql.SchemaSummary // nil when no database was selected
}

// Renderer defines the output interface.
type Renderer interface {
	RenderSplit(report *chunker.Report)
	RenderImport(report *importer.Report)
	RenderVerify(report *verify.Report)
	RenderConnection(info ConnectionInfo)
}

// Formats lists the accepted --format values.
var Formats = []string{"text", "plain", "json", "markdown"}

// ValidFormat reports whether format is one of Formats.
func ValidFormat(format string) bool {
	for _, f := range Formats {
		if f == format {
			return true
		}
	}
	return false
}

// NewRenderer creates a renderer for the given format.
func NewRenderer(format string, w io.Writer) Renderer {
	switch format {
	case "json":
		return &JSONRenderer{w: w}
	case "markdown":
		return &MarkdownRenderer{w: w}
	case "plain":
		return &PlainRenderer{w: w}
	default:
		return &TextRenderer{w: w}
	}
}
