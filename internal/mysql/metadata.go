package mysql

import (
	"context"
	"database/sql"
	"fmt"
)

// TableSummary is the information_schema view of one base table. Row
// counts are InnoDB estimates.
type TableSummary struct {
	Name        string `json:"name"`
	Engine      string `json:"engine"`
	RowCount    int64  `json:"row_count"`
	DataLength  int64  `json:"data_length"`
	IndexLength int64  `json:"index_length"`
}

func (t TableSummary) TotalSize() int64 {
	return t.DataLength + t.IndexLength
}

// SchemaSummary describes the tables of one database, largest first.
type SchemaSummary struct {
	Database string
	Tables   []TableSummary
}

func (s *SchemaSummary) TotalRows() int64 {
	var n int64
	for _, t := range s.Tables {
		n += t.RowCount
	}
	return n
}

func (s *SchemaSummary) TotalSize() int64 {
	var n int64
	for _, t := range s.Tables {
		n += t.TotalSize()
	}
	return n
}

func (s *SchemaSummary) TotalSizeHuman() string {
	return HumanBytes(s.TotalSize())
}

const schemaSummaryQuery = `
	SELECT
		TABLE_NAME,
		IFNULL(ENGINE, ''),
		IFNULL(TABLE_ROWS, 0),
		IFNULL(DATA_LENGTH, 0),
		IFNULL(INDEX_LENGTH, 0)
	FROM information_schema.TABLES
	WHERE TABLE_SCHEMA = ? AND TABLE_TYPE = 'BASE TABLE'
	ORDER BY DATA_LENGTH + INDEX_LENGTH DESC, TABLE_NAME`

// DescribeSchema summarises the base tables of database.
func DescribeSchema(ctx context.Context, db *sql.DB, database string) (*SchemaSummary, error) {
	rows, err := db.QueryContext(ctx, schemaSummaryQuery, database)
	if err != nil {
		return nil, fmt.Errorf("querying tables of %s: %w", database, err)
	}
	defer rows.Close()

	summary := &SchemaSummary{Database: database}
	for rows.Next() {
		var t TableSummary
		if err := rows.Scan(&t.Name, &t.Engine, &t.RowCount, &t.DataLength, &t.IndexLength); err != nil {
			return nil, fmt.Errorf("scanning table row: %w", err)
		}
		summary.Tables = append(summary.Tables, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading tables: %w", err)
	}
	return summary, nil
}

var byteUnits = []string{"KB", "MB", "GB", "TB"}

// HumanBytes formats a byte count with binary units and one decimal.
func HumanBytes(b int64) string {
	if b < 1024 {
		return fmt.Sprintf("%d B", b)
	}
	v := float64(b) / 1024
	unit := 0
	for v >= 1024 && unit < len(byteUnits)-1 {
		v /= 1024
		unit++
	}
	return fmt.Sprintf("%.1f %s", v, byteUnits[unit])
}
