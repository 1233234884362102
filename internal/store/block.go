package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/xtxerr/telemetry/internal/errors"
	"github.com/xtxerr/telemetry/internal/validation"
)

// Column is one named column of a Block. Values holds one entry per row and
// all entries share a Go type.
type Column struct {
	Name   string
	Values []any
}

// StringColumn builds a String column.
func StringColumn(name string, values ...string) Column {
	col := Column{Name: name, Values: make([]any, len(values))}
	for i, v := range values {
		col.Values[i] = v
	}
	return col
}

// Uint64Column builds a UInt64 column.
func Uint64Column(name string, values ...uint64) Column {
	col := Column{Name: name, Values: make([]any, len(values))}
	for i, v := range values {
		col.Values[i] = v
	}
	return col
}

// Block is a column-oriented batch of rows.
type Block []Column

// Rows returns the common column length, or ErrInvalidBlock when the block
// is empty or ragged.
func (b Block) Rows() (int, error) {
	if len(b) == 0 {
		return 0, fmt.Errorf("%w: no columns", errors.ErrInvalidBlock)
	}
	n := len(b[0].Values)
	for _, col := range b[1:] {
		if len(col.Values) != n {
			return 0, fmt.Errorf("%w: column %s has %d rows, %s has %d",
				errors.ErrInvalidBlock, col.Name, len(col.Values), b[0].Name, n)
		}
	}
	return n, nil
}

// Row returns the values of row i in column order.
func (b Block) Row(i int) []any {
	row := make([]any, len(b))
	for j, col := range b {
		row[j] = col.Values[i]
	}
	return row
}

// Names returns the column names.
func (b Block) Names() []string {
	names := make([]string, len(b))
	for i, col := range b {
		names[i] = col.Name
	}
	return names
}

// Validate checks the block shape and column names.
func (b Block) Validate() error {
	if _, err := b.Rows(); err != nil {
		return err
	}
	seen := make(map[string]bool, len(b))
	for _, col := range b {
		if err := validation.ValidateIdentifier(col.Name); err != nil {
			return fmt.Errorf("%w: %w", errors.ErrInvalidBlock, err)
		}
		if seen[col.Name] {
			return fmt.Errorf("%w: duplicate column %s", errors.ErrInvalidBlock, col.Name)
		}
		seen[col.Name] = true
	}
	return nil
}

// insertStatement renders INSERT INTO table (a, b) VALUES (?, ?).
func insertStatement(table string, names []string) string {
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(names)), ", ")
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", table, strings.Join(names, ", "), placeholders)
}

// Insert writes every row of block into table as one round-trip. Ragged
// blocks and invalid identifiers are rejected before the store is contacted
// and are not counted.
func (c *Client) Insert(ctx context.Context, table string, block Block) error {
	if err := validation.ValidateIdentifier(table); err != nil {
		return fmt.Errorf("%w: table: %w", errors.ErrInvalidBlock, err)
	}
	if err := block.Validate(); err != nil {
		return err
	}
	rows, _ := block.Rows()
	statement := insertStatement(table, block.Names())

	return c.do(ctx, OpInsert, func(ctx context.Context, conn *sql.Conn) error {
		tx, err := conn.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin transaction: %w", err)
		}

		if err := insertRows(ctx, tx, statement, block, rows); err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				return fmt.Errorf("rollback failed: %v (original error: %w)", rbErr, err)
			}
			return err
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit transaction: %w", err)
		}
		return nil
	})
}

func insertRows(ctx context.Context, tx *sql.Tx, statement string, block Block, rows int) error {
	stmt, err := tx.PrepareContext(ctx, statement)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for i := 0; i < rows; i++ {
		if _, err := stmt.ExecContext(ctx, block.Row(i)...); err != nil {
			return fmt.Errorf("insert row %d: %w", i, err)
		}
	}
	return nil
}
