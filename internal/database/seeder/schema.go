package seeder

import (
	"context"
	"fmt"
	"strings"

	"matchengine/internal/database"
)

// EnsureTableColumns fails when any of columns is absent from table, naming
// every missing column at once.
func EnsureTableColumns(ctx context.Context, db database.DB, table string, columns ...string) error {
	if db == nil {
		return fmt.Errorf("nil db")
	}
	if table == "" || len(columns) == 0 {
		return fmt.Errorf("table and columns are required")
	}

	rows, err := db.Query(ctx,
		`SELECT column_name FROM information_schema.columns
		 WHERE table_schema = current_schema() AND table_name = $1 AND column_name = ANY($2)`,
		table, columns,
	)
	if err != nil {
		return fmt.Errorf("inspect %s: %w", table, err)
	}
	defer rows.Close()

	found := make(map[string]bool, len(columns))
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return err
		}
		found[c] = true
	}
	if err := rows.Err(); err != nil {
		return err
	}

	var missing []string
	for _, col := range columns {
		if !found[col] {
			missing = append(missing, table+"."+col)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("schema mismatch: missing columns %s; run migrations first", strings.Join(missing, ", "))
	}
	return nil
}
