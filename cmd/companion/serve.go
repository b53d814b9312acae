package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nanaoosaki/health-companion/internal/api"
	"github.com/nanaoosaki/health-companion/internal/buildinfo"
	"github.com/nanaoosaki/health-companion/internal/healthstore"
)

// shutdownTimeout bounds how long in-flight requests get to drain.
const shutdownTimeout = 10 * time.Second

func (c *cli) serveCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP and WebSocket API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runServe(cmd.Context())
		},
	}
	cmd.Flags().Int("port", 0, "listen port (overrides listen.port)")
	_ = c.v.BindPFlag("listen.port", cmd.Flags().Lookup("port"))
	return cmd
}

// runServe wires the companion, starts the API and the stale-episode
// sweep, and blocks until SIGINT/SIGTERM or a listener failure.
func (c *cli) runServe(ctx context.Context) error {
	e, err := c.environment()
	if err != nil {
		return err
	}
	defer e.close()
	logger := e.logger
	logger.Info("starting health companion", "version", buildinfo.Version, "commit", buildinfo.GitCommit, "built", buildinfo.BuildTime)

	a, err := c.newApp(e)
	if err != nil {
		return err
	}
	defer a.close()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	if err := a.client.Ping(pingCtx); err != nil {
		logger.Warn("LLM backend not reachable yet", "provider", e.cfg.LLM.Provider, "error", err)
	}
	cancel()

	srv := api.NewServer(api.Config{
		Address:         e.cfg.Listen.Address,
		Port:            e.cfg.Listen.Port,
		CandidateWindow: e.cfg.Episodes.CandidateWindow(),
	}, a.companion, a.store, a.router, logger)
	srv.SetUsage(a.usage)
	srv.SetSessions(a.sessions)

	go runSweeper(ctx, a.store, e.cfg.Episodes.CloseInterval(), e.cfg.Episodes.MaxDuration(), logger)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start(ctx) }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// maintainer is the store surface the sweeper needs.
type maintainer interface {
	CloseStale(ctx context.Context, maxAge time.Duration, now time.Time) (int, error)
	DailyRollup(ctx context.Context, day time.Time) (healthstore.DailyHistory, error)
}

// runSweeper closes stale episodes and refreshes today's rollup every
// interval until ctx is done. A zero interval disables it.
func runSweeper(ctx context.Context, store maintainer, interval, maxAge time.Duration, logger *slog.Logger) {
	if interval <= 0 {
		logger.Info("stale episode sweep disabled")
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		sweep(ctx, store, maxAge, time.Now(), logger)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func sweep(ctx context.Context, store maintainer, maxAge time.Duration, now time.Time, logger *slog.Logger) {
	n, err := store.CloseStale(ctx, maxAge, now)
	if err != nil {
		logger.Error("stale episode sweep failed", "error", err)
	} else if n > 0 {
		logger.Info("stale episodes closed", "count", n)
	}
	if _, err := store.DailyRollup(ctx, now); err != nil {
		logger.Warn("daily rollup failed", "error", err)
	}
}
