package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/c360studio/genguard/watch"
)

func watchCmd(flags *globalFlags) *cobra.Command {
	var metricsAddr string

	cmd := &cobra.Command{
		Use:   "watch <dir>",
		Short: "Re-validate artifacts under a directory as they change",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(flags, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			if metricsAddr != "" {
				app.cfg.Metrics.Addr = metricsAddr
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return app.watch(ctx, args[0])
		},
	}
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9090)")
	return cmd
}

// watchMetrics counts validations performed by the watcher.
type watchMetrics struct {
	validations *prometheus.CounterVec
}

func newWatchMetrics(reg prometheus.Registerer) *watchMetrics {
	m := &watchMetrics{
		validations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "genguard",
			Subsystem: "watch",
			Name:      "validations_total",
			Help:      "Artifacts validated by the watcher, by outcome.",
		}, []string{"valid"}),
	}
	reg.MustRegister(m.validations)
	return m
}

func (a *App) watch(ctx context.Context, root string) error {
	info, err := os.Stat(root)
	if err != nil {
		return fmt.Errorf("stat watch root: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("not a directory: %s", root)
	}

	validators, err := a.watchValidators()
	if err != nil {
		return err
	}

	var metrics *watchMetrics
	if a.cfg.Metrics.Addr != "" {
		reg := prometheus.NewRegistry()
		metrics = newWatchMetrics(reg)
		stopMetrics := serveMetrics(a.cfg.Metrics.Addr, reg, a.logger)
		defer stopMetrics()
	}

	w, err := watch.New(watch.Config{
		Root:       root,
		Validators: validators,
		Logger:     a.logger,
	})
	if err != nil {
		return err
	}
	if err := w.Start(ctx); err != nil {
		return err
	}

	for ev := range w.Events() {
		switch {
		case ev.Error != nil:
			a.logger.Warn("Failed to validate artifact", "path", ev.Path, "error", ev.Error)
		case ev.Operation == watch.OpDelete:
			a.logger.Info("Artifact removed", "path", ev.Path)
		default:
			writeTextReport(a.out, report{Path: ev.Path, Result: ev.Result})
			if metrics != nil {
				metrics.validations.WithLabelValues(strconv.FormatBool(ev.Result.Valid())).Inc()
			}
		}
	}
	return nil
}

// serveMetrics serves reg on addr/metrics in the background and returns a
// function that shuts the server down.
func serveMetrics(addr string, reg *prometheus.Registry, logger *slog.Logger) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		logger.Info("Serving metrics", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Metrics server failed", "error", err)
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}
