package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/Cypherspark/sms-bridge/internal/channel"
	"github.com/Cypherspark/sms-bridge/internal/config"
	"github.com/Cypherspark/sms-bridge/internal/core"
	dbpkg "github.com/Cypherspark/sms-bridge/internal/db"
	httpapi "github.com/Cypherspark/sms-bridge/internal/http"
	"github.com/Cypherspark/sms-bridge/internal/logging"
	"github.com/Cypherspark/sms-bridge/internal/metrics"
	"github.com/Cypherspark/sms-bridge/internal/permission"
	"github.com/Cypherspark/sms-bridge/internal/store/memstore"
	"github.com/Cypherspark/sms-bridge/internal/store/postgres"
	"github.com/Cypherspark/sms-bridge/internal/store/sqlite"
)

func newServeCmd(flags *rootFlags, _, stderr io.Writer) *cobra.Command {
	var migrate bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP channel server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(flags.configPath)
			if err != nil {
				return err
			}
			log := logging.New(stderr, cfg.Logging.Level, cfg.Logging.Format)

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			if err := runServe(ctx, cfg, migrate, log); err != nil {
				log.Error("serve exited", "err", err)
				return errExit
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&migrate, "migrate", false, "create the postgres mirror table if missing")
	return cmd
}

// backend is a wired message store plus its teardown.
type backend struct {
	store core.MessageStore
	ready func(ctx context.Context) error
	close func()
}

func openStore(ctx context.Context, cfg *config.Config, migrate bool, log *slog.Logger) (*backend, error) {
	switch cfg.Store.Driver {
	case config.DriverSQLite:
		s, err := sqlite.Open(cfg.Store.Path)
		if err != nil {
			return nil, err
		}
		if cfg.Store.Table != "" {
			s.Table = cfg.Store.Table
		}
		log.Info("using sqlite message store", "path", cfg.Store.Path, "table", s.Table)
		return &backend{store: s, ready: s.Ping, close: func() { _ = s.Close() }}, nil

	case config.DriverPostgres:
		pool, err := dbpkg.Connect(ctx, cfg.Store.DSN, dbpkg.DefaultBackoff, log)
		if err != nil {
			return nil, err
		}
		if migrate {
			if err := dbpkg.ApplyMigrations(ctx, pool); err != nil {
				pool.Close()
				return nil, err
			}
		}
		s := postgres.New(dbpkg.NewDB(pool))
		if cfg.Store.Table != "" {
			s.Table = cfg.Store.Table
		}

		stats := metrics.NewPGXPoolStats(prometheus.DefaultRegisterer, pool)
		stop := make(chan struct{})
		go stats.Start(5*time.Second, stop)

		log.Info("using postgres message store", "table", s.Table)
		return &backend{store: s, ready: s.Ping, close: func() { close(stop); pool.Close() }}, nil

	case config.DriverMemory:
		s := memstore.New()
		log.Warn("using empty in-memory message store")
		return &backend{store: s, ready: s.Ping, close: func() {}}, nil
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
}

func openAuthority(cfg *config.Config, log *slog.Logger) (permission.Authority, func(), error) {
	switch cfg.Permission.Mode {
	case config.ModeStatic:
		if cfg.Permission.Granted {
			return permission.NewStatic(permission.ReadSMS), func() {}, nil
		}
		return permission.NewStatic(), func() {}, nil
	case config.ModeFile:
		a, err := permission.NewFileAuthority(cfg.Permission.GrantsFile, log)
		if err != nil {
			return nil, nil, err
		}
		log.Info("permission grants file", "path", a.Path())
		return a, func() { _ = a.Close() }, nil
	}
	return nil, nil, fmt.Errorf("unknown permission mode %q", cfg.Permission.Mode)
}

func runServe(ctx context.Context, cfg *config.Config, migrate bool, log *slog.Logger) error {
	be, err := openStore(ctx, cfg, migrate, log)
	if err != nil {
		return err
	}
	defer be.close()

	auth, closeAuth, err := openAuthority(cfg, log)
	if err != nil {
		return err
	}
	defer closeAuth()

	gate := permission.NewGate(auth, permission.ReadSMS, log)
	gate.OnOutcome = func(ev permission.Event) {
		metrics.PermissionPrompts.WithLabelValues(metrics.PromptOutcome(ev.Granted, ev.Error != "")).Inc()
	}

	reader := core.NewReader(gate, be.store, log)
	srv := httpapi.NewServer(channel.NewDispatcher(gate, reader, log), gate, log)
	srv.Ready = be.ready
	if cfg.RateLimit.QPS > 0 {
		srv.Limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit.QPS), cfg.RateLimit.Burst)
	}

	server := &http.Server{
		Addr:         cfg.Server.HTTPAddr,
		Handler:      srv.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		// Event streams end when the process is asked to stop.
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	errc := make(chan error, 1)
	go func() {
		log.Info("HTTP listening", "addr", server.Addr, "channel", channel.Name)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	// ---- Graceful shutdown ----
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	log.Info("shutting down")
	return server.Shutdown(shutdownCtx)
}
