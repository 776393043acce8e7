package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/pario-ai/tandem/pkg/api"
)

const (
	// attemptRetention is how long attempt history is kept while serving.
	attemptRetention = 30 * 24 * time.Hour
	// sessionIdle is how long an unused failover session is remembered.
	sessionIdle = 24 * time.Hour
)

func newServeCmd(configPath *string) *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the completion HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(*configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			if listen != "" {
				a.cfg.Listen = listen
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			sched, err := startSweeper(ctx, a)
			if err != nil {
				return err
			}
			defer sched.Stop()

			log.Info("serving", "models", a.registry.Resolve(), "cache", a.cfg.Cache.Enabled)
			return api.New(a.cfg.Listen, a.svc, a.registry).ListenAndServe(ctx)
		},
	}
	cmd.Flags().StringVarP(&listen, "listen", "l", "", "override listen address")
	return cmd
}

// startSweeper schedules the periodic purge of expired cache entries, old
// attempt history and idle failover sessions.
func startSweeper(ctx context.Context, a *app) (*cron.Cron, error) {
	sched := cron.New()
	spec := a.cfg.Cache.Sweep
	if spec == "" {
		spec = "@hourly"
	}
	_, err := sched.AddFunc(spec, func() {
		if a.cache != nil {
			n, err := a.cache.Purge(ctx)
			if err != nil {
				log.Warn("sweep: cache purge failed", "err", err)
			} else if n > 0 {
				log.Info("sweep: purged expired cache entries", "count", n)
			}
		}
		if _, err := a.tracker.Prune(ctx, time.Now().Add(-attemptRetention)); err != nil {
			log.Warn("sweep: attempt prune failed", "err", err)
		}
		if n := a.svc.Sessions().EvictIdle(time.Now().Add(-sessionIdle)); n > 0 {
			log.Info("sweep: evicted idle sessions", "count", n)
		}
	})
	if err != nil {
		return nil, err
	}
	sched.Start()
	return sched, nil
}
