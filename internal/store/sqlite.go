package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	"stockd/internal/logging"
	"stockd/internal/types"
)

// DefaultTable is the SQLite table read when none is configured.
const DefaultTable = "stocks"

// LoadSQLite reads every row of table in rowid order. Each column becomes a
// field, in column order.
func LoadSQLite(ctx context.Context, path, table string) ([]types.Record, error) {
	if table == "" {
		table = DefaultTable
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx, fmt.Sprintf("SELECT * FROM %s ORDER BY rowid", quoteIdent(table)))
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", table, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read columns: %w", err)
	}
	logging.StoreDebug("Table %s columns: %v", table, cols)

	var records []types.Record
	values := make([]interface{}, len(cols))
	valuePtrs := make([]interface{}, len(cols))
	for i := range values {
		valuePtrs[i] = &values[i]
	}
	for rows.Next() {
		if err := rows.Scan(valuePtrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row %d: %w", len(records)+1, err)
		}
		fields := make([]types.Field, len(cols))
		for i, col := range cols {
			fields[i] = types.Field{Key: col, Value: types.FromGo(values[i])}
		}
		records = append(records, types.NewRecord(fields...))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rows: %w", err)
	}
	return records, nil
}

// WriteSQLite replaces table with records. Columns are the union of all
// record keys in first-seen order and carry no declared type, so integers,
// floats and strings keep their storage class. Fields absent from a record
// are stored as NULL. Composite values are stored as their JSON text.
//
// The round trip through LoadSQLite is not exact: booleans are stored as
// INTEGER 1 or 0 and read back as integers, and a field absent from a record
// comes back as an explicit null member. Numbers outside float64 range are
// stored as their JSON text.
func WriteSQLite(ctx context.Context, path, table string, records []types.Record) error {
	if table == "" {
		table = DefaultTable
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}

	var cols []string
	seen := make(map[string]bool)
	for _, r := range records {
		for _, key := range r.Keys() {
			if !seen[key] {
				seen[key] = true
				cols = append(cols, key)
			}
		}
	}
	if len(cols) == 0 {
		return fmt.Errorf("no fields to write")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = quoteIdent(c)
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", quoteIdent(table))); err != nil {
		return fmt.Errorf("failed to drop %s: %w", table, err)
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("CREATE TABLE %s (%s)", quoteIdent(table), strings.Join(quoted, ", "))); err != nil {
		return fmt.Errorf("failed to create %s: %w", table, err)
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quoteIdent(table), strings.Join(quoted, ", "), placeholders))
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	args := make([]interface{}, len(cols))
	for n, r := range records {
		for i, c := range cols {
			args[i] = nil
			if v, ok := r.Get(c); ok {
				args[i] = v.Go()
			}
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("failed to insert record %d: %w", n+1, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	logging.Store("Wrote %d records to %s (%s)", len(records), path, table)
	return nil
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
