package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/tliron/commonlog"

	"github.com/chazu/hotswap/reload"
)

var (
	watchOpts = struct {
		once        bool
		interval    time.Duration
		metricsAddr string
		noSweep     bool
	}{}

	watchCmd = &cobra.Command{
		Use:   "watch [dir...]",
		Short: "Poll directories of images and publish every change",
		Long: `watch loads every *.hsti image in the watched directories into a type
registry and publishes a new version whenever an image changes. Directories
default to [watch] dirs from hotswap.toml.`,
		RunE: runWatch,
	}
)

func init() {
	watchCmd.Flags().BoolVar(&watchOpts.once, "once", false, "Scan once and exit")
	watchCmd.Flags().DurationVar(&watchOpts.interval, "interval", 0, "Poll interval (default: watch.interval from hotswap.toml)")
	watchCmd.Flags().StringVar(&watchOpts.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9464)")
	watchCmd.Flags().BoolVar(&watchOpts.noSweep, "no-sweep", false, "Never tear down registries whose load context is gone")
}

func runWatch(cmd *cobra.Command, args []string) error {
	m, err := loadManifest()
	if err != nil {
		return err
	}
	if len(args) > 0 {
		m.Watch.Dirs = args
	}
	if m.Log.Verbosity > rootOpts.verbosity || m.LogFile() != nil {
		commonlog.Configure(max(m.Log.Verbosity, rootOpts.verbosity), m.LogFile())
	}

	interval := watchOpts.interval
	if interval <= 0 {
		if interval, err = m.PollInterval(); err != nil {
			return err
		}
	}

	ctx := reload.NewContext(m.ContextOptions()...)
	defer ctx.Close()

	w, err := newWatcher(ctx, m)
	if err != nil {
		return err
	}

	stats := w.scan()
	fmt.Fprintf(cmd.OutOrStdout(), "loaded %d types (%d failed)\n", stats.Added, stats.Failed)
	if watchOpts.once {
		return nil
	}

	if watchOpts.metricsAddr != "" {
		srv := &http.Server{Addr: watchOpts.metricsAddr, Handler: promhttp.HandlerFor(ctx.Gatherer(), promhttp.HandlerOpts{})}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				commonlog.GetLogger("hotswap.watch").Errorf("metrics server: %v", err)
			}
		}()
		defer srv.Close()
	}

	sigCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	sweeper := reload.NewSweeper(ctx, interval)
	sweeper.SetEnabled(!watchOpts.noSweep)
	sweeper.Start(sigCtx)
	defer sweeper.Stop()
	log := commonlog.GetLogger("hotswap.watch")
	if sweeper.IsEnabled() {
		log.Infof("sweeping dead registries every %s", sweeper.Interval())
	} else {
		log.Notice("registry sweeping disabled")
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-sigCtx.Done():
			if errors.Is(sigCtx.Err(), context.Canceled) {
				return nil
			}
			return sigCtx.Err()
		case <-ticker.C:
			s := w.scan()
			if s.Added+s.Reloaded+s.Failed > 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "added %d, reloaded %d, failed %d\n", s.Added, s.Reloaded, s.Failed)
			}
		}
	}
}
