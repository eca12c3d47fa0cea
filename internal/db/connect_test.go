package db

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestJitterStaysInBounds(t *testing.T) {
	d := time.Second
	for i := 0; i < 200; i++ {
		got := jitter(d, 0.2)
		require.GreaterOrEqual(t, got, 800*time.Millisecond)
		require.LessOrEqual(t, got, 1200*time.Millisecond)
	}
	require.Equal(t, d, jitter(d, 0))
}

func TestNextBackoffCaps(t *testing.T) {
	require.Equal(t, 1600*time.Millisecond, nextBackoff(time.Second, 5*time.Second))
	require.Equal(t, 5*time.Second, nextBackoff(4*time.Second, 5*time.Second))
}

func TestConnectGivesUp(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	b := Backoff{Min: time.Millisecond, Max: 2 * time.Millisecond, Attempts: 2}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_, err := Connect(ctx, "postgres://nobody@127.0.0.1:1/none?sslmode=disable&connect_timeout=1", b, log)
	require.ErrorContains(t, err, "giving up after 2 attempts")
}

func TestConnectRejectsBadDSN(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	_, err := Connect(context.Background(), "postgres://%zz", DefaultBackoff, log)
	require.ErrorContains(t, err, "db config")
}
