// Package memstore is an in-memory core.MessageStore for tests and dev mode.
package memstore

import (
	"context"
	"database/sql"
	"errors"
	"sync"

	"github.com/Cypherspark/sms-bridge/internal/core"
)

// Store delivers its rows in the order they were added. It does not sort,
// so callers seed rows in the order a real store would return them.
type Store struct {
	mu      sync.Mutex
	rows    []core.Row
	queries []core.Query
	open    int

	// QueryErr fails every Query when set.
	QueryErr error
	// NoCursor makes Query return a nil cursor.
	NoCursor bool
	// ScanErrAt fails Scan on the given 1-based row. Zero disables it.
	ScanErrAt int
}

func New(rows ...core.Row) *Store {
	return &Store{rows: rows}
}

// Add appends rows to the delivery order.
func (s *Store) Add(rows ...core.Row) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = append(s.rows, rows...)
}

// Queries returns every query issued so far.
func (s *Store) Queries() []core.Query {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.Query(nil), s.queries...)
}

// OpenCursors reports cursors handed out and not yet closed.
func (s *Store) OpenCursors() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.open
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) Query(ctx context.Context, q core.Query) (core.Cursor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.queries = append(s.queries, q)
	if s.QueryErr != nil {
		return nil, s.QueryErr
	}
	if s.NoCursor {
		return nil, nil
	}

	rows := s.rows
	if q.Limit > 0 && len(rows) > q.Limit {
		rows = rows[:q.Limit]
	}
	s.open++
	return &cursor{store: s, rows: append([]core.Row(nil), rows...), pos: -1, scanErrAt: s.ScanErrAt}, nil
}

// ErrScan is returned by Scan when ScanErrAt triggers.
var ErrScan = errors.New("memstore: injected scan failure")

type cursor struct {
	store     *Store
	rows      []core.Row
	pos       int
	scanErrAt int
	closed    bool
}

func (c *cursor) Next() bool {
	if c.closed || c.pos+1 >= len(c.rows) {
		return false
	}
	c.pos++
	return true
}

func (c *cursor) Scan(row *core.Row) error {
	if c.pos < 0 || c.pos >= len(c.rows) {
		return errors.New("memstore: scan without row")
	}
	if c.scanErrAt > 0 && c.pos+1 == c.scanErrAt {
		return ErrScan
	}
	*row = c.rows[c.pos]
	return nil
}

func (c *cursor) Err() error { return nil }

func (c *cursor) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	c.store.mu.Lock()
	c.store.open--
	c.store.mu.Unlock()
	return nil
}

// Inbox builds an inbox row with a non-null address and body.
func Inbox(id, address, body string, date int64) core.Row {
	return core.Row{
		ID:      sql.NullString{String: id, Valid: true},
		Address: sql.NullString{String: address, Valid: true},
		Body:    sql.NullString{String: body, Valid: true},
		Date:    sql.NullInt64{Int64: date, Valid: true},
		Type:    sql.NullInt64{Int64: core.TypeInbox, Valid: true},
	}
}
