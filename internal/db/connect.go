package db

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Backoff controls how Connect waits between attempts.
type Backoff struct {
	Min      time.Duration
	Max      time.Duration
	Attempts int // 0 retries until ctx is done
}

var DefaultBackoff = Backoff{Min: 250 * time.Millisecond, Max: 5 * time.Second, Attempts: 8}

// Connect opens a pool and pings it, backing off exponentially with jitter
// while the server is unreachable.
func Connect(ctx context.Context, dsn string, b Backoff, log *slog.Logger) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("db config: %w", err)
	}

	wait := b.Min
	for attempt := 1; ; attempt++ {
		pool, err := pgxpool.NewWithConfig(ctx, cfg)
		if err == nil {
			if err = pool.Ping(ctx); err == nil {
				return pool, nil
			}
			pool.Close()
		}
		if b.Attempts > 0 && attempt >= b.Attempts {
			return nil, fmt.Errorf("db connect: giving up after %d attempts: %w", attempt, err)
		}

		sleep := jitter(wait, 0.20)
		log.Warn("db connect failed; backing off", "attempt", attempt, "sleep", sleep, "err", err)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(sleep):
		}
		wait = nextBackoff(wait, b.Max)
	}
}

func nextBackoff(d, limit time.Duration) time.Duration {
	return min(limit, time.Duration(float64(d)*1.6))
}

// jitter returns d shifted by a random amount in [-frac*d, +frac*d].
func jitter(d time.Duration, frac float64) time.Duration {
	if frac <= 0 {
		return d
	}
	delta := int64(float64(d) * frac)
	if delta <= 0 {
		return d
	}
	n := rand.Int63n(2*delta+1) - delta
	return d + time.Duration(n)
}
