package core

import (
	"context"
	"fmt"
	"log/slog"
)

// PermissionChecker reports the current grant state of the read capability.
type PermissionChecker interface {
	Check(ctx context.Context) bool
}

// Reader reads the inbox from a MessageStore behind a permission check.
type Reader struct {
	Gate  PermissionChecker
	Store MessageStore
	Log   *slog.Logger
}

func NewReader(gate PermissionChecker, store MessageStore, log *slog.Logger) *Reader {
	if log == nil {
		log = slog.Default()
	}
	return &Reader{Gate: gate, Store: store, Log: log}
}

// GetAllMessages returns up to MaxRows inbox messages, newest first, in the
// order the store delivered them.
func (r *Reader) GetAllMessages(ctx context.Context) ([]MessageRecord, error) {
	if !r.Gate.Check(ctx) {
		return nil, ErrPermissionDenied
	}

	q := InboxQuery()
	r.Log.Debug("starting sms read operation", "uri", q.URI, "limit", q.Limit)

	cur, err := r.Store.Query(ctx, q)
	if err != nil {
		r.Log.Error("error reading sms", "err", err)
		return nil, &StoreReadError{Err: fmt.Errorf("query %s: %w", q.URI, err)}
	}
	if cur == nil {
		r.Log.Warn("failed to obtain sms cursor", "uri", q.URI)
		return []MessageRecord{}, nil
	}
	defer func() {
		if cerr := cur.Close(); cerr != nil {
			r.Log.Warn("closing sms cursor", "err", cerr)
		}
	}()

	out := make([]MessageRecord, 0)
	for len(out) < q.Limit && cur.Next() {
		var row Row
		if err := cur.Scan(&row); err != nil {
			r.Log.Error("error reading sms", "row", len(out), "err", err)
			return nil, &StoreReadError{Err: fmt.Errorf("scan row %d: %w", len(out), err)}
		}
		out = append(out, row.Record())
	}
	if err := cur.Err(); err != nil {
		r.Log.Error("error reading sms", "err", err)
		return nil, &StoreReadError{Err: fmt.Errorf("iterate %s: %w", q.URI, err)}
	}

	r.Log.Info("successfully read sms messages", "count", len(out))
	return out, nil
}
