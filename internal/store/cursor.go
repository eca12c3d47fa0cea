package store

import (
	"sync"

	"github.com/Cypherspark/sms-bridge/internal/core"
)

// Rows is the subset of *sql.Rows and pgx.Rows a Cursor drives.
type Rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

// Cursor adapts driver rows to core.Cursor. Columns must match the
// projection the rows were selected with.
type Cursor struct {
	rows    Rows
	columns []string
	release func() error

	once sync.Once
	err  error
}

func NewCursor(rows Rows, columns []string, release func() error) *Cursor {
	return &Cursor{rows: rows, columns: columns, release: release}
}

func (c *Cursor) Next() bool { return c.rows.Next() }

func (c *Cursor) Scan(row *core.Row) error {
	dest := make([]any, len(c.columns))
	for i, col := range c.columns {
		if d := row.Dest(col); d != nil {
			dest[i] = d
			continue
		}
		var discard any
		dest[i] = &discard
	}
	return c.rows.Scan(dest...)
}

func (c *Cursor) Err() error { return c.rows.Err() }

// Close releases the underlying handle. It is safe to call more than once.
func (c *Cursor) Close() error {
	c.once.Do(func() {
		if c.release != nil {
			c.err = c.release()
		}
	})
	return c.err
}
