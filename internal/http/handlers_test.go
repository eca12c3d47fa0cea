package httpapi_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/Cypherspark/sms-bridge/internal/channel"
	"github.com/Cypherspark/sms-bridge/internal/core"
	httpapi "github.com/Cypherspark/sms-bridge/internal/http"
	"github.com/Cypherspark/sms-bridge/internal/permission"
	"github.com/Cypherspark/sms-bridge/internal/store/memstore"
)

type api struct {
	auth  *permission.Static
	store *memstore.Store
	srv   *httpapi.Server
	h     http.Handler
}

func startAPI(t *testing.T, granted bool) *api {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	auth := permission.NewStatic()
	if granted {
		auth = permission.NewStatic(permission.ReadSMS)
	}
	gate := permission.NewGate(auth, permission.ReadSMS, log)
	store := memstore.New(
		memstore.Inbox("3", "+3", "c", 300),
		memstore.Inbox("2", "+2", "b", 200),
		memstore.Inbox("1", "+1", "a", 100),
	)
	srv := httpapi.NewServer(channel.NewDispatcher(gate, core.NewReader(gate, store, log), log), gate, log)
	srv.Ready = store.Ping
	return &api{auth: auth, store: store, srv: srv, h: srv.Router()}
}

func (a *api) post(t *testing.T, path, body string) (*httptest.ResponseRecorder, channel.Response) {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	a.h.ServeHTTP(w, req)
	var resp channel.Response
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	return w, resp
}

func TestEnvelopeCall_GetAllSms(t *testing.T) {
	a := startAPI(t, true)
	w, resp := a.post(t, "/channel/sms_tracker/sms", `{"id":"c1","method":"getAllSms"}`)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "c1", resp.ID)
	require.Equal(t, channel.StatusSuccess, resp.Status)

	var body struct {
		Result []map[string]any `json:"result"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Result, 3)
	require.Equal(t, "3", body.Result[0]["id"])
	require.Equal(t, float64(300), body.Result[0]["date"])
	require.Equal(t, "+3", body.Result[0]["address"])
	require.Equal(t, "1", body.Result[2]["id"])
}

func TestMethodPath_PermissionFlow(t *testing.T) {
	a := startAPI(t, false)

	w, resp := a.post(t, "/channel/sms_tracker/sms/checkSmsPermission", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, false, resp.Result)

	_, resp = a.post(t, "/channel/sms_tracker/sms/getAllSms", "")
	require.Equal(t, channel.StatusError, resp.Status)
	require.Equal(t, channel.CodePermissionDenied, resp.Code)
	require.Empty(t, a.store.Queries())

	_, resp = a.post(t, "/channel/sms_tracker/sms/requestSmsPermission", "")
	require.Equal(t, false, resp.Result)
	require.Equal(t, 1, a.auth.Prompts())

	a.auth.Resolve(permission.ReadSMS, true)
	_, resp = a.post(t, "/channel/sms_tracker/sms/checkSmsPermission", "")
	require.Equal(t, true, resp.Result)
}

func TestMethodPath_CallIDHeader(t *testing.T) {
	a := startAPI(t, true)
	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/channel/sms_tracker/sms/checkSmsPermission", nil)
	req.Header.Set("X-Call-ID", "from-header")
	a.h.ServeHTTP(w, req)
	var resp channel.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, "from-header", resp.ID)
}

func TestUnknownMethod(t *testing.T) {
	a := startAPI(t, true)
	w, resp := a.post(t, "/channel/sms_tracker/sms/deleteAllSms", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, channel.StatusNotImplemented, resp.Status)
}

func TestBadEnvelope(t *testing.T) {
	a := startAPI(t, true)
	w, resp := a.post(t, "/channel/sms_tracker/sms", `{"id":"x"}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Equal(t, channel.CodeBadRequest, resp.Code)

	w, _ = a.post(t, "/channel/sms_tracker/sms/getAllSms", `not json`)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRateLimit(t *testing.T) {
	a := startAPI(t, true)
	a.srv.Limiter = rate.NewLimiter(rate.Every(time.Hour), 1)

	w, _ := a.post(t, "/channel/sms_tracker/sms/checkSmsPermission", "")
	require.Equal(t, http.StatusOK, w.Code)

	w, resp := a.post(t, "/channel/sms_tracker/sms/checkSmsPermission", "")
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	require.Equal(t, channel.CodeRateLimited, resp.Code)
	require.Equal(t, "1", w.Header().Get("Retry-After"))
}

func TestHealthAndReadiness(t *testing.T) {
	a := startAPI(t, true)

	w := httptest.NewRecorder()
	a.h.ServeHTTP(w, httptest.NewRequest("GET", "/healthz", nil))
	require.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	a.h.ServeHTTP(w, httptest.NewRequest("GET", "/readyz", nil))
	require.Equal(t, http.StatusOK, w.Code)

	a.srv.Ready = func(context.Context) error { return errors.New("db gone") }
	w = httptest.NewRecorder()
	a.h.ServeHTTP(w, httptest.NewRequest("GET", "/readyz", nil))
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestMetricsAndDocs(t *testing.T) {
	a := startAPI(t, true)
	a.post(t, "/channel/sms_tracker/sms/getAllSms", "")

	w := httptest.NewRecorder()
	a.h.ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "channel_calls_total")

	w = httptest.NewRecorder()
	a.h.ServeHTTP(w, httptest.NewRequest("GET", "/openapi.yaml", nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "sms_tracker/sms")
}

func TestPermissionEventStream(t *testing.T) {
	a := startAPI(t, false)
	ts := httptest.NewServer(a.h)
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, "GET", ts.URL+"/permission/events", nil)
	require.NoError(t, err)
	res, err := ts.Client().Do(req)
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.Equal(t, "text/event-stream", res.Header.Get("Content-Type"))

	lines := bufio.NewScanner(res.Body)
	require.True(t, lines.Scan())
	require.Equal(t, ": subscribed", lines.Text())

	_, resp := a.post(t, "/channel/sms_tracker/sms/requestSmsPermission", "")
	require.Equal(t, false, resp.Result)
	a.auth.Resolve(permission.ReadSMS, true)

	var data string
	for lines.Scan() {
		if d, ok := strings.CutPrefix(lines.Text(), "data: "); ok {
			data = d
			break
		}
	}
	require.NotEmpty(t, data)

	var ev permission.Event
	require.NoError(t, json.Unmarshal([]byte(data), &ev))
	require.True(t, ev.Granted)
	require.Equal(t, permission.ReadSMS, ev.Permission)
	require.Equal(t, permission.RequestCode, ev.RequestCode)
}
