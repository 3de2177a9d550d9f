package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
)

// nilStr converts an empty string to a nil driver value so optional text
// columns store SQL NULL instead of "".
func nilStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// derefStr safely dereferences a nullable text column.
func derefStr(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// jsonOrEmpty normalizes a json.RawMessage for storage in a JSONB column,
// treating a nil/empty slice as SQL NULL rather than an empty byte string.
func jsonOrEmpty(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}

// execMapUpdate builds and runs a partial `UPDATE table SET col=$n, ...
// WHERE id=$1` from a map of column→value. Used by the stores that expose
// a generic "patch these fields" update.
func execMapUpdate(ctx context.Context, db *sql.DB, table, id string, updates map[string]any) error {
	if len(updates) == 0 {
		return nil
	}
	cols := make([]string, 0, len(updates))
	args := make([]any, 0, len(updates)+1)
	args = append(args, id)
	i := 2
	for col, val := range updates {
		cols = append(cols, fmt.Sprintf("%s = $%d", col, i))
		args = append(args, val)
		i++
	}
	query := fmt.Sprintf("UPDATE %s SET %s WHERE id = $1", table, strings.Join(cols, ", "))
	_, err := db.ExecContext(ctx, query, args...)
	return err
}
