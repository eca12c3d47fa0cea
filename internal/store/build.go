// Package store holds the pieces shared by the SQL-backed message stores.
package store

import (
	"fmt"
	"strings"

	"github.com/Cypherspark/sms-bridge/internal/core"
)

// Dialect captures the few places where SQL engines disagree.
type Dialect struct {
	// Placeholder renders the n-th (1-based) bind parameter.
	Placeholder func(n int) string
	// Text renders an expression that yields col as text.
	Text func(col string) string
}

// Quote double-quotes an identifier. Callers validate it first.
func Quote(ident string) string { return `"` + ident + `"` }

// BuildSelect renders q against table. Projected columns missing from the
// table are selected as NULL so rows still map.
func BuildSelect(d Dialect, table string, q core.Query, present map[string]bool) (string, []any, error) {
	if !core.ValidIdent(table) {
		return "", nil, fmt.Errorf("invalid table %q", table)
	}
	msgType, err := core.ParseURI(q.URI)
	if err != nil {
		return "", nil, err
	}
	if len(q.Projection) == 0 {
		return "", nil, fmt.Errorf("empty projection")
	}

	cols := make([]string, 0, len(q.Projection))
	for _, c := range q.Projection {
		if !core.ValidIdent(c) {
			return "", nil, fmt.Errorf("invalid column %q", c)
		}
		switch {
		case !present[c]:
			cols = append(cols, "NULL AS "+Quote(c))
		case c == core.ColumnID && d.Text != nil:
			cols = append(cols, d.Text(Quote(c))+" AS "+Quote(c))
		default:
			cols = append(cols, Quote(c))
		}
	}

	var (
		b    strings.Builder
		args []any
	)
	fmt.Fprintf(&b, "SELECT %s FROM %s", strings.Join(cols, ", "), Quote(table))

	if msgType != core.TypeAll {
		if !present[core.ColumnType] {
			return "", nil, fmt.Errorf("table %s has no %s column", table, core.ColumnType)
		}
		args = append(args, msgType)
		fmt.Fprintf(&b, " WHERE %s = %s", Quote(core.ColumnType), d.Placeholder(len(args)))
	}

	sortCol, dir, err := core.ParseSortOrder(q.SortOrder)
	if err != nil {
		return "", nil, err
	}
	if sortCol != "" {
		if !present[sortCol] && !contains(q.Projection, sortCol) {
			return "", nil, fmt.Errorf("unknown sort column %q", sortCol)
		}
		fmt.Fprintf(&b, " ORDER BY %s %s", Quote(sortCol), dir)
	}

	limit := q.Limit
	if limit <= 0 || limit > core.MaxRows {
		limit = core.MaxRows
	}
	args = append(args, limit)
	fmt.Fprintf(&b, " LIMIT %s", d.Placeholder(len(args)))

	return b.String(), args, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
