// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Thermoquad/crema/internal/logging"
	"github.com/Thermoquad/crema/internal/telemetry"
)

var (
	exporterListen    string
	exporterInterval  time.Duration
	exporterRedisAddr string
)

var exporterCmd = &cobra.Command{
	Use:   "exporter",
	Short: "Serve controller status as Prometheus metrics",
	Long: `Poll the controller status on a fixed interval and serve it on /metrics
in the Prometheus exposition format. /health reports whether the last poll
succeeded.

With --redis-addr (or exporter.redis_addr in the config file) every status is
also published as JSON on a Redis channel and appended to a capped history
list, which is served as JSON on /history.`,
	Args: cobra.NoArgs,
	RunE: runExporter,
}

func init() {
	rootCmd.AddCommand(exporterCmd)
	exporterCmd.Flags().StringVar(&exporterListen, "listen", "", "HTTP listen address (default from config, :9120)")
	exporterCmd.Flags().DurationVar(&exporterInterval, "interval", 0, "Status poll interval (default from config, 5s)")
	exporterCmd.Flags().StringVar(&exporterRedisAddr, "redis-addr", "", "Redis address for status fan-out")
}

func runExporter(cmd *cobra.Command, args []string) error {
	ec := cfg.Exporter
	if cmd.Flags().Changed("listen") {
		ec.Listen = exporterListen
	}
	if cmd.Flags().Changed("interval") {
		ec.Interval = exporterInterval
	}
	if cmd.Flags().Changed("redis-addr") {
		ec.RedisAddr = exporterRedisAddr
	}
	if ec.Interval <= 0 {
		return fmt.Errorf("poll interval must be positive, got %v", ec.Interval)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	metrics := telemetry.NewMetrics()
	l, err := openLink(metrics.ObserveDispatch)
	if err != nil {
		return err
	}
	defer l.Close()

	var publisher *telemetry.Publisher
	if ec.RedisAddr != "" {
		publisher, err = telemetry.NewPublisher(ctx, telemetry.PublisherOptions{
			Addr:       ec.RedisAddr,
			Password:   ec.RedisPassword,
			DB:         ec.RedisDB,
			Channel:    ec.RedisChannel,
			HistoryKey: ec.HistoryKey,
			HistoryLen: ec.HistoryLen,
			Logger:     logging.Named("publisher"),
		})
		if err != nil {
			return err
		}
		defer publisher.Close()
	}

	exporter := telemetry.NewExporter(l.session, metrics, publisher, ec.Interval, logging.Named("exporter"))

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := exporter.Healthy(); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		fmt.Fprintln(w, "ok")
	})
	if publisher != nil {
		mux.Handle("/history", publisher.HistoryHandler())
	}

	server := &http.Server{
		Addr:              ec.Listen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	serverErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Crema - Status Exporter\n")
	fmt.Fprintf(out, "Connection: %s\n", l.info)
	fmt.Fprintf(out, "Metrics: http://%s/metrics (every %s)\n", ec.Listen, ec.Interval)
	if publisher != nil {
		fmt.Fprintf(out, "Redis: %s channel %s\n", ec.RedisAddr, ec.RedisChannel)
		fmt.Fprintf(out, "History: http://%s/history\n", ec.Listen)
	}
	fmt.Fprintf(out, "Press Ctrl+C to exit\n")

	pollErr := make(chan error, 1)
	go func() { pollErr <- exporter.Run(ctx) }()

	select {
	case err := <-serverErr:
		cancel()
		<-pollErr
		return fmt.Errorf("metrics server failed: %w", err)
	case <-pollErr:
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logging.Warn("metrics server shutdown failed", zap.Error(err))
	}
	return nil
}
