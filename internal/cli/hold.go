package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pixperk/sharelock/pkg/client"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

func newHoldCommand(a *app) *cobra.Command {
	var (
		user     string
		duration time.Duration
	)

	cmd := &cobra.Command{
		Use:   "hold",
		Short: "Acquire the lock and hold it until interrupted",
		Long: `Acquire the database lock for this machine and keep it alive with
heartbeats until Ctrl+C, SIGTERM, the optional --for duration, or until the
lock is lost. The lock is released on the way out.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runHold(cmd, user, duration)
		},
	}

	cmd.Flags().StringVar(&user, "user", "", "operator name recorded with the lock (default is the OS user)")
	cmd.Flags().DurationVar(&duration, "for", 0, "release automatically after this long (0 = until interrupted)")
	cmd.Flags().String("metrics-addr", "", "serve prometheus metrics on this address while holding")
	_ = a.v.BindPFlag("metrics.addr", cmd.Flags().Lookup("metrics-addr"))
	return cmd
}

func (a *app) runHold(cmd *cobra.Command, user string, duration time.Duration) error {
	out := cmd.OutOrStdout()

	opts := []client.Option{client.WithLogger(a.logger), client.WithVersion(Version)}
	if user != "" {
		opts = append(opts, client.WithUser(user))
	}
	c, err := client.NewClient(a.mgr, opts...)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, duration)
		defer cancel()
	}

	lock, err := c.Acquire(ctx)
	if err != nil {
		if msg, ok := client.HeldMessage(err); ok {
			fmt.Fprintln(out, msg)
		}
		return err
	}

	if lock.Reclaimed() {
		prev := lock.Handle().Previous
		fmt.Fprintf(out, "Reclaimed stale lock of %s (silent for %s)\n", prev.Holder(), prev.HeartbeatAge.Truncate(time.Second))
	}
	fmt.Fprintf(out, "Holding lock as %s (pid %d)\n", c.Host(), c.PID())

	if addr := a.cfg.Metrics.Addr; addr != "" {
		srv := &http.Server{Addr: addr, Handler: promhttp.Handler()}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.logger.Error("metrics server failed", "addr", addr, "error", err)
			}
		}()
		defer srv.Close()
	}

	var lost error
	select {
	case <-ctx.Done():
	case lost = <-lock.Lost():
		fmt.Fprintf(out, "WARNING: %v\n", lost)
	}

	// the hold context is done by now, release on a fresh one
	releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(cmd.Context()), a.cfg.Database.IOTimeout*2)
	defer cancel()

	if err := lock.Release(releaseCtx); err != nil {
		if lost != nil {
			return lost
		}
		a.logger.Warn("release on shutdown failed", "error", err)
		return err
	}
	fmt.Fprintln(out, "Lock released")
	return lost
}
