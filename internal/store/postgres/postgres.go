// Package postgres reads a server-side mirror of the device SMS table.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/Cypherspark/sms-bridge/internal/core"
	"github.com/Cypherspark/sms-bridge/internal/db"
	"github.com/Cypherspark/sms-bridge/internal/store"
)

const DefaultTable = "sms"

var dialect = store.Dialect{
	Placeholder: func(n int) string { return "$" + strconv.Itoa(n) },
	Text:        func(col string) string { return col + "::text" },
}

type Store struct {
	DB    *db.DB
	Table string
}

func New(database *db.DB) *Store {
	return &Store{DB: database, Table: DefaultTable}
}

func (s *Store) Ping(ctx context.Context) error { return s.DB.Pool.Ping(ctx) }

// Query runs q inside a read-only snapshot transaction that lives as long
// as the returned cursor. A missing table yields a nil cursor.
func (s *Store) Query(ctx context.Context, q core.Query) (core.Cursor, error) {
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

	tx, err := s.DB.BeginSnapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("postgres: begin: %w", err)
	}
	rows, err := tx.Query(ctx, stmt, args...)
	if err != nil {
		_ = tx.Rollback(context.WithoutCancel(ctx))
		if isUndefinedTable(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("postgres: query: %w", err)
	}

	release := func() error {
		rows.Close()
		return tx.Rollback(context.WithoutCancel(ctx))
	}
	return store.NewCursor(rows, q.Projection, release), nil
}

func (s *Store) columns(ctx context.Context) (map[string]bool, error) {
	rows, err := s.DB.Pool.Query(ctx, `
		SELECT column_name FROM information_schema.columns
		WHERE table_schema = current_schema() AND table_name = $1
	`, s.Table)
	if err != nil {
		return nil, fmt.Errorf("postgres: columns: %w", err)
	}
	names, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("postgres: columns: %w", err)
	}
	present := make(map[string]bool, len(names))
	for _, n := range names {
		present[n] = true
	}
	return present, nil
}

func isUndefinedTable(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "42P01"
}
