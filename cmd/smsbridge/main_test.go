package main

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Cypherspark/sms-bridge/internal/channel"
	"github.com/Cypherspark/sms-bridge/internal/core"
	httpapi "github.com/Cypherspark/sms-bridge/internal/http"
	"github.com/Cypherspark/sms-bridge/internal/permission"
	"github.com/Cypherspark/sms-bridge/internal/store/memstore"
)

func run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	root := newRootCmd(&stdout, &stderr)
	root.SetArgs(args)
	err := root.Execute()
	return stdout.String(), stderr.String(), err
}

func TestGrantDenyPermissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "grants.yaml")

	out, _, err := run(t, "grant", "--grants-file", path)
	require.NoError(t, err)
	require.Contains(t, out, "granted "+permission.ReadSMS)

	g, err := permission.ReadGrants(path)
	require.NoError(t, err)
	require.Equal(t, []string{permission.ReadSMS}, g.Granted)

	_, _, err = run(t, "deny", "--grants-file", path)
	require.NoError(t, err)
	g, err = permission.ReadGrants(path)
	require.NoError(t, err)
	require.Empty(t, g.Granted)
	require.Equal(t, []string{permission.ReadSMS}, g.Denied)

	out, _, err = run(t, "permissions", "--grants-file", path)
	require.NoError(t, err)
	require.Contains(t, out, "denied:")
	require.Contains(t, out, permission.ReadSMS)
}

func TestGrantCustomPermission(t *testing.T) {
	path := filepath.Join(t.TempDir(), "grants.yaml")
	_, _, err := run(t, "grant", "android.permission.RECEIVE_SMS", "--grants-file", path)
	require.NoError(t, err)

	g, err := permission.ReadGrants(path)
	require.NoError(t, err)
	require.Equal(t, []string{"android.permission.RECEIVE_SMS"}, g.Granted)
}

func startServer(t *testing.T, granted bool) *httptest.Server {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	auth := permission.NewStatic()
	if granted {
		auth = permission.NewStatic(permission.ReadSMS)
	}
	gate := permission.NewGate(auth, permission.ReadSMS, log)
	store := memstore.New(
		memstore.Inbox("2", "+2", "b", 200),
		memstore.Inbox("1", "+1", "a", 100),
	)
	srv := httpapi.NewServer(channel.NewDispatcher(gate, core.NewReader(gate, store, log), log), gate, log)
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts
}

func TestCallGetAllSms(t *testing.T) {
	ts := startServer(t, true)

	out, _, err := run(t, "call", channel.MethodGetAllSms, "--addr", ts.URL)
	require.NoError(t, err)

	var resp struct {
		Status string           `json:"status"`
		Result []map[string]any `json:"result"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Equal(t, "success", resp.Status)
	require.Len(t, resp.Result, 2)
	require.Equal(t, "2", resp.Result[0]["id"])
}

func TestCallErrorExits(t *testing.T) {
	ts := startServer(t, false)

	out, stderr, err := run(t, "call", channel.MethodGetAllSms, "--addr", ts.URL)
	require.ErrorIs(t, err, errExit)
	require.Contains(t, out, channel.CodePermissionDenied)
	require.Contains(t, stderr, "SMS permission not granted")
}

func TestCallUnknownMethod(t *testing.T) {
	ts := startServer(t, true)

	out, stderr, err := run(t, "call", "deleteAllSms", "--addr", ts.URL)
	require.ErrorIs(t, err, errExit)
	require.Contains(t, out, "notImplemented")
	require.Contains(t, stderr, "not implemented")
}

func TestCallUnreachable(t *testing.T) {
	_, stderr, err := run(t, "call", channel.MethodCheckPermission, "--addr", "http://127.0.0.1:1")
	require.ErrorIs(t, err, errExit)
	require.Contains(t, stderr, "smsbridge call:")
}
