package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/xtxerr/telemetry/internal/config"
	"github.com/xtxerr/telemetry/internal/validation"
)

// Event table columns. Product and Vendor duplicate fields of Data for
// query convenience.
const (
	ColumnData    = "Data"
	ColumnID      = "ID"
	ColumnProduct = "Product"
	ColumnVendor  = "Vendor"
)

// EventColumns lists the event table columns in insert order.
var EventColumns = []string{ColumnData, ColumnID, ColumnProduct, ColumnVendor}

const duckdbEventsDDL = `CREATE TABLE IF NOT EXISTS %s (
	Data    VARCHAR NOT NULL,
	ID      UBIGINT NOT NULL,
	Product VARCHAR NOT NULL,
	Vendor  VARCHAR NOT NULL
)`

const clickhouseEventsDDL = `CREATE TABLE IF NOT EXISTS %s (
	Data    String,
	ID      UInt64,
	Product LowCardinality(String),
	Vendor  LowCardinality(String)
) ENGINE = MergeTree
ORDER BY ID`

// EnsureSchema creates the events table if it does not exist. It issues one
// counted Exec.
func (c *Client) EnsureSchema(ctx context.Context, table string) error {
	if err := validation.ValidateIdentifier(table); err != nil {
		return fmt.Errorf("events table: %w", err)
	}

	ddl := clickhouseEventsDDL
	if c.driver == config.DriverDuckDB {
		ddl = duckdbEventsDDL
	}

	if err := c.Exec(ctx, fmt.Sprintf(ddl, table)); err != nil {
		return err
	}

	log.Info("schema ready", "table", table, "driver", c.driver)
	return nil
}

// ScanCount decodes a single-row, single-column integer result such as
// SELECT COUNT(*).
func ScanCount(rows *sql.Rows) (uint64, error) {
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return 0, err
		}
		return 0, fmt.Errorf("count query returned no rows")
	}
	var n int64
	if err := rows.Scan(&n); err != nil {
		return 0, fmt.Errorf("scan count: %w", err)
	}
	if n < 0 {
		return 0, fmt.Errorf("negative count %d", n)
	}
	return uint64(n), nil
}
