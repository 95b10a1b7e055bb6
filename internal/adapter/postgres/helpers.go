package postgres

import (
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// setBuilder accumulates SET clauses for a partial update, numbering
// placeholders in the order columns were added.
type setBuilder struct {
	cols []string
	args []any
}

func (b *setBuilder) add(col string, v any) {
	b.args = append(b.args, v)
	b.cols = append(b.cols, fmt.Sprintf("%s = $%d", col, len(b.args)))
}

func (b *setBuilder) empty() bool { return len(b.cols) == 0 }

// update renders an UPDATE statement keyed by the given column. Callers may
// append further conditions to the returned query before executing it.
func (b *setBuilder) update(table, keyCol string, key any) (string, []any) {
	args := append(b.args, key)
	query := fmt.Sprintf("UPDATE %s SET %s WHERE %s = $%d",
		table, strings.Join(b.cols, ", "), keyCol, len(args))
	return query, args
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func nullInt(n *int) sql.NullInt64 {
	if n == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*n), Valid: true}
}
