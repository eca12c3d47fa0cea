package permission_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Cypherspark/sms-bridge/internal/permission"
)

func quietLog() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestCheckReflectsAuthority(t *testing.T) {
	auth := permission.NewStatic()
	g := permission.NewGate(auth, permission.ReadSMS, quietLog())
	require.False(t, g.Check(context.Background()))

	auth.Resolve(permission.ReadSMS, true)
	require.True(t, g.Check(context.Background()))
	require.Zero(t, auth.Prompts())
}

func TestRequestWhenGrantedDoesNotPrompt(t *testing.T) {
	auth := permission.NewStatic(permission.ReadSMS)
	g := permission.NewGate(auth, permission.ReadSMS, quietLog())

	require.True(t, g.Check(context.Background()))
	ok, pending := g.Request(context.Background())
	require.True(t, ok)
	require.Nil(t, pending)
	require.Zero(t, auth.Prompts())
}

func TestRequestWhenNotGrantedReturnsImmediately(t *testing.T) {
	auth := permission.NewStatic()
	g := permission.NewGate(auth, permission.ReadSMS, quietLog())

	ok, pending := g.Request(context.Background())
	require.False(t, ok)
	require.NotNil(t, pending)
	require.Equal(t, 1, auth.Prompts())

	select {
	case <-pending.Done():
		t.Fatal("prompt resolved before the authority answered")
	default:
	}
}

func TestPendingResolvesAndEventIsPublished(t *testing.T) {
	auth := permission.NewStatic()
	g := permission.NewGate(auth, permission.ReadSMS, quietLog())

	var observed []permission.Event
	g.OnOutcome = func(ev permission.Event) { observed = append(observed, ev) }

	events, cancel := g.Subscribe()
	defer cancel()

	_, pending := g.Request(context.Background())
	auth.Resolve(permission.ReadSMS, true)

	ctx, done := context.WithTimeout(context.Background(), time.Second)
	defer done()
	ev, err := pending.Wait(ctx)
	require.NoError(t, err)
	require.True(t, ev.Granted)
	require.Equal(t, permission.ReadSMS, ev.Permission)
	require.Equal(t, permission.RequestCode, ev.RequestCode)

	select {
	case got := <-events:
		require.True(t, got.Granted)
	case <-ctx.Done():
		t.Fatal("no event published")
	}
	require.Len(t, observed, 1)
	require.True(t, g.Check(context.Background()))
}

func TestDeniedOutcome(t *testing.T) {
	auth := permission.NewStatic()
	g := permission.NewGate(auth, permission.ReadSMS, quietLog())

	_, pending := g.Request(context.Background())
	auth.Resolve(permission.ReadSMS, false)

	ev, err := pending.Wait(context.Background())
	require.NoError(t, err)
	require.False(t, ev.Granted)
	require.False(t, g.Check(context.Background()))
}

func TestWaitHonorsContext(t *testing.T) {
	g := permission.NewGate(permission.NewStatic(), permission.ReadSMS, quietLog())
	_, pending := g.Request(context.Background())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := pending.Wait(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

type brokenAuthority struct{}

func (brokenAuthority) Granted(context.Context, string) (bool, error) {
	return false, errors.New("authority offline")
}

func (brokenAuthority) Prompt(context.Context, string, int, func(bool)) error {
	return errors.New("authority offline")
}

func TestAuthorityErrorsNeverFail(t *testing.T) {
	g := permission.NewGate(brokenAuthority{}, permission.ReadSMS, quietLog())
	require.False(t, g.Check(context.Background()))

	ok, pending := g.Request(context.Background())
	require.False(t, ok)
	ev, err := pending.Wait(context.Background())
	require.NoError(t, err)
	require.False(t, ev.Granted)
	require.Contains(t, ev.Error, "offline")
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	g := permission.NewGate(permission.NewStatic(), permission.ReadSMS, quietLog())
	events, cancel := g.Subscribe()
	cancel()
	cancel()
	_, open := <-events
	require.False(t, open)
}
