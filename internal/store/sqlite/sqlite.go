// Package sqlite reads the device SMS table straight from an mmssms.db file.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"

	_ "github.com/mattn/go-sqlite3"

	"github.com/Cypherspark/sms-bridge/internal/core"
	"github.com/Cypherspark/sms-bridge/internal/store"
)

// DefaultTable is the SMS table inside mmssms.db.
const DefaultTable = "sms"

var dialect = store.Dialect{
	Placeholder: func(int) string { return "?" },
	Text:        func(col string) string { return "CAST(" + col + " AS TEXT)" },
}

// Store is a read-only core.MessageStore over a SQLite message database.
type Store struct {
	DB    *sql.DB
	Path  string
	Table string
}

// Open opens path read-only. The file does not need to exist yet; queries
// against a missing database yield no cursor.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("sqlite: database path is required")
	}
	dsn := "file:" + (&url.URL{Path: path}).EscapedPath() + "?mode=ro&_busy_timeout=5000"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(4)
	return &Store{DB: db, Path: path, Table: DefaultTable}, nil
}

func (s *Store) Close() error { return s.DB.Close() }

func (s *Store) Ping(ctx context.Context) error {
	if _, err := os.Stat(s.Path); err != nil {
		return fmt.Errorf("sqlite: %w", err)
	}
	return s.DB.PingContext(ctx)
}

// Query runs q against the SMS table. It returns a nil cursor when the
// database file or the table is absent.
func (s *Store) Query(ctx context.Context, q core.Query) (core.Cursor, error) {
	if _, err := os.Stat(s.Path); errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}

	present, err := s.columns(ctx)
	if err != nil {
		return nil, err
	}
	if len(present) == 0 {
		return nil, nil
	}

	stmt, args, err := store.BuildSelect(dialect, s.Table, q, present)
	if err != nil {
		return nil, err
	}
	rows, err := s.DB.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: query: %w", err)
	}
	return store.NewCursor(rows, q.Projection, rows.Close), nil
}

// columns lists the table's column names. An empty set means no table.
func (s *Store) columns(ctx context.Context) (map[string]bool, error) {
	if !core.ValidIdent(s.Table) {
		return nil, fmt.Errorf("sqlite: invalid table %q", s.Table)
	}
	rows, err := s.DB.QueryContext(ctx, "PRAGMA table_info("+store.Quote(s.Table)+")")
	if err != nil {
		return nil, fmt.Errorf("sqlite: table info: %w", err)
	}
	defer rows.Close()

	present := map[string]bool{}
	for rows.Next() {
		var (
			cid     int
			name    string
			typ     sql.NullString
			notNull int
			dflt    sql.NullString
			pk      int
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &dflt, &pk); err != nil {
			return nil, fmt.Errorf("sqlite: table info: %w", err)
		}
		present[name] = true
	}
	return present, rows.Err()
}
