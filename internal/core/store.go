package core

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

// Column names of the device SMS table.
const (
	ColumnID      = "_id"
	ColumnAddress = "address"
	ColumnBody    = "body"
	ColumnDate    = "date"
	ColumnType    = "type"
)

// InboxURI addresses the inbox partition of the SMS content store.
const InboxURI = "content://sms/inbox"

// MaxRows caps every inbox read.
const MaxRows = 1000

// Query describes one read against a MessageStore.
type Query struct {
	URI        string
	Projection []string
	SortOrder  string // "<column> ASC|DESC"
	Limit      int
}

// InboxQuery is the only query the reader issues.
func InboxQuery() Query {
	return Query{
		URI:        InboxURI,
		Projection: []string{ColumnID, ColumnAddress, ColumnBody, ColumnDate, ColumnType},
		SortOrder:  ColumnDate + " DESC",
		Limit:      MaxRows,
	}
}

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidIdent reports whether s is safe to splice into SQL as a column name.
func ValidIdent(s string) bool { return identRe.MatchString(s) }

// ParseSortOrder splits "date DESC" into column and direction.
// The direction defaults to ASC.
func ParseSortOrder(s string) (column, dir string, err error) {
	fields := strings.Fields(s)
	switch len(fields) {
	case 0:
		return "", "", nil
	case 1:
		column, dir = fields[0], "ASC"
	case 2:
		column, dir = fields[0], strings.ToUpper(fields[1])
	default:
		return "", "", fmt.Errorf("invalid sort order %q", s)
	}
	if !ValidIdent(column) {
		return "", "", fmt.Errorf("invalid sort column %q", column)
	}
	if dir != "ASC" && dir != "DESC" {
		return "", "", fmt.Errorf("invalid sort direction %q", dir)
	}
	return column, dir, nil
}

// Cursor is a scoped result handle. Callers must Close it.
type Cursor interface {
	Next() bool
	Scan(row *Row) error
	Err() error
	Close() error
}

// MessageStore is a read-only source of SMS rows.
//
// A nil Cursor with a nil error means the store could not hand out a result
// (for example, the store is not provisioned yet). Readers treat that as an
// empty result rather than a failure.
type MessageStore interface {
	Query(ctx context.Context, q Query) (Cursor, error)
}

// Pinger is implemented by stores that can report readiness.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Message type codes of the device SMS table.
const (
	TypeAll    = 0
	TypeInbox  = 1
	TypeSent   = 2
	TypeDraft  = 3
	TypeOutbox = 4
	TypeFailed = 5
	TypeQueued = 6
)

var partitions = map[string]int{
	"":       TypeAll,
	"inbox":  TypeInbox,
	"sent":   TypeSent,
	"draft":  TypeDraft,
	"outbox": TypeOutbox,
	"failed": TypeFailed,
	"queued": TypeQueued,
}

// ParseURI resolves a content://sms[/partition] URI to a message type code.
// TypeAll means no type predicate.
func ParseURI(uri string) (int, error) {
	rest, ok := strings.CutPrefix(uri, "content://sms")
	if !ok {
		return 0, fmt.Errorf("unsupported content uri %q", uri)
	}
	rest = strings.Trim(rest, "/")
	t, ok := partitions[rest]
	if !ok {
		return 0, fmt.Errorf("unknown sms partition %q", rest)
	}
	return t, nil
}
