package core_test

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Cypherspark/sms-bridge/internal/core"
	"github.com/Cypherspark/sms-bridge/internal/store/memstore"
)

type fakeGate struct{ granted bool }

func (g fakeGate) Check(context.Context) bool { return g.granted }

func newReader(granted bool, s core.MessageStore) *core.Reader {
	return core.NewReader(fakeGate{granted: granted}, s, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestGetAllMessages_DeniedIssuesNoQuery(t *testing.T) {
	s := memstore.New(memstore.Inbox("1", "+1", "hi", 100))
	got, err := newReader(false, s).GetAllMessages(context.Background())
	require.ErrorIs(t, err, core.ErrPermissionDenied)
	require.Nil(t, got)
	require.Empty(t, s.Queries())
}

func TestGetAllMessages_ScenarioNewestFirst(t *testing.T) {
	s := memstore.New(
		memstore.Inbox("3", "+3", "c", 300),
		memstore.Inbox("2", "+2", "b", 200),
		memstore.Inbox("1", "+1", "a", 100),
	)
	got, err := newReader(true, s).GetAllMessages(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 3)
	for i, want := range []struct {
		id   string
		date int64
	}{{"3", 300}, {"2", 200}, {"1", 100}} {
		require.Equal(t, want.id, got[i].ID)
		require.Equal(t, want.date, got[i].Date)
	}
	require.Zero(t, s.OpenCursors())
}

func TestGetAllMessages_PassesThroughStoreOrder(t *testing.T) {
	// Out of date order on purpose: the reader must not re-sort.
	dates := []int64{5, 900, 12, 12, 400, 1}
	s := memstore.New()
	for i, d := range dates {
		s.Add(memstore.Inbox(strconv.Itoa(i), "+1", "x", d))
	}
	got, err := newReader(true, s).GetAllMessages(context.Background())
	require.NoError(t, err)
	require.Len(t, got, len(dates))
	for i, d := range dates {
		require.Equal(t, strconv.Itoa(i), got[i].ID)
		require.Equal(t, d, got[i].Date)
	}
}

func TestGetAllMessages_RowCounts(t *testing.T) {
	for _, n := range []int{0, 1, 999, 1000, 1500} {
		t.Run(strconv.Itoa(n), func(t *testing.T) {
			s := memstore.New()
			for i := 0; i < n; i++ {
				s.Add(memstore.Inbox(strconv.Itoa(i), "+1", "x", int64(n-i)))
			}
			got, err := newReader(true, s).GetAllMessages(context.Background())
			require.NoError(t, err)
			require.NotNil(t, got)
			require.Len(t, got, min(n, core.MaxRows))
		})
	}
}

func TestGetAllMessages_QueryShape(t *testing.T) {
	s := memstore.New()
	_, err := newReader(true, s).GetAllMessages(context.Background())
	require.NoError(t, err)

	qs := s.Queries()
	require.Len(t, qs, 1)
	q := qs[0]
	require.Equal(t, core.InboxURI, q.URI)
	require.Equal(t, []string{"_id", "address", "body", "date", "type"}, q.Projection)
	require.Equal(t, "date DESC", q.SortOrder)
	require.LessOrEqual(t, q.Limit, 1000)
	require.Equal(t, 1000, q.Limit)
}

func TestGetAllMessages_NullFieldsKept(t *testing.T) {
	s := memstore.New(core.Row{
		ID:   sql.NullString{String: "9", Valid: true},
		Date: sql.NullInt64{Int64: 90, Valid: true},
		Type: sql.NullInt64{Int64: 1, Valid: true},
	})
	got, err := newReader(true, s).GetAllMessages(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Nil(t, got[0].Address)
	require.Nil(t, got[0].Body)

	m := got[0].Map()
	require.Nil(t, m["address"])
	require.Nil(t, m["body"])
	require.Equal(t, "9", m["id"])
	require.Equal(t, int64(90), m["date"])
	require.Equal(t, 1, m["type"])
}

func TestGetAllMessages_NoCursorIsEmpty(t *testing.T) {
	s := memstore.New(memstore.Inbox("1", "+1", "a", 1))
	s.NoCursor = true
	got, err := newReader(true, s).GetAllMessages(context.Background())
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Empty(t, got)
}

func TestGetAllMessages_QueryFailure(t *testing.T) {
	s := memstore.New()
	s.QueryErr = errors.New("provider gone")
	_, err := newReader(true, s).GetAllMessages(context.Background())
	require.Error(t, err)
	require.True(t, core.IsStoreReadError(err))
	require.ErrorIs(t, err, s.QueryErr)
	require.Contains(t, err.Error(), "provider gone")
}

func TestGetAllMessages_ScanFailureReleasesCursor(t *testing.T) {
	s := memstore.New(
		memstore.Inbox("2", "+2", "b", 200),
		memstore.Inbox("1", "+1", "a", 100),
	)
	s.ScanErrAt = 2
	_, err := newReader(true, s).GetAllMessages(context.Background())
	require.ErrorIs(t, err, memstore.ErrScan)
	require.True(t, core.IsStoreReadError(err))
	require.Zero(t, s.OpenCursors())
}
