package core

import (
	"database/sql"
)

// MessageRecord is one inbox message as read from the message store.
// Address and Body stay nil when the store has no value for them.
type MessageRecord struct {
	ID      string  `json:"id"`
	Address *string `json:"address"`
	Body    *string `json:"body"`
	Date    int64   `json:"date"` // ms since epoch
	Type    int     `json:"type"`
}

// Map returns the channel wire form of the record.
func (m MessageRecord) Map() map[string]any {
	out := map[string]any{
		"id":      m.ID,
		"address": nil,
		"body":    nil,
		"date":    m.Date,
		"type":    m.Type,
	}
	if m.Address != nil {
		out["address"] = *m.Address
	}
	if m.Body != nil {
		out["body"] = *m.Body
	}
	return out
}

// Row is the raw, nullable projection of one store row.
type Row struct {
	ID      sql.NullString
	Address sql.NullString
	Body    sql.NullString
	Date    sql.NullInt64
	Type    sql.NullInt64
}

// Dest returns the scan destination for a projected column, or nil when
// the column is not part of a MessageRecord.
func (r *Row) Dest(column string) any {
	switch column {
	case ColumnID:
		return &r.ID
	case ColumnAddress:
		return &r.Address
	case ColumnBody:
		return &r.Body
	case ColumnDate:
		return &r.Date
	case ColumnType:
		return &r.Type
	}
	return nil
}

// Record maps the row. NULL strings stay nil and NULL numbers become zero.
func (r Row) Record() MessageRecord {
	m := MessageRecord{
		ID:   r.ID.String,
		Date: r.Date.Int64,
		Type: int(r.Type.Int64),
	}
	if r.Address.Valid {
		s := r.Address.String
		m.Address = &s
	}
	if r.Body.Valid {
		s := r.Body.String
		m.Body = &s
	}
	return m
}
