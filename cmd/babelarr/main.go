// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/babelarr/babelarr/internal/config"
	xglog "github.com/babelarr/babelarr/internal/log"
	"github.com/babelarr/babelarr/internal/supervisor"
)

var (
	version   = "v0.1.0"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "babelarr",
		Short:         "babelarr synchronizes subtitle sidecars and embedded MKV tracks",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(cmd.Context())
		},
	}

	root.AddCommand(newVersionCommand())
	root.AddCommand(newRunCommand())
	root.AddCommand(newStatusCommand())
	return root
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "babelarr %s (commit: %s, built: %s)\n", version, commit, buildDate)
			return nil
		},
	}
}

func newRunCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the babelarr daemon (watchers, webhook, worker pools)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(cmd.Context())
		},
	}
}

// runDaemon loads configuration, brings up the Supervisor's full runtime
// graph (spec.md §4.7), and blocks until an interrupt or terminate signal.
func runDaemon(parent context.Context) error {
	xglog.Configure(xglog.Config{Level: "info", Service: "babelarr", Version: version})
	logger := xglog.WithComponent("main")

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("babelarr: load config")
	}
	var logOutput io.Writer
	if cfg.LogFile != "" {
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			logger.Warn().Err(err).Str("log_file", cfg.LogFile).Msg("babelarr: open log file failed, logging to stdout")
		} else {
			defer f.Close()
			logOutput = f
		}
	}
	xglog.Configure(xglog.Config{Level: cfg.LogLevel, Output: logOutput, Service: "babelarr", Version: version})

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metricsSrv := &http.Server{
		Addr:              ":9090",
		Handler:           promhttp.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn().Err(err).Msg("babelarr: metrics server failed")
		}
	}()

	sup := supervisor.New(cfg)
	if err := sup.Start(ctx); err != nil {
		logger.Fatal().Err(err).Msg("babelarr: supervisor start failed")
	}

	logger.Info().
		Str("version", version).
		Str("commit", commit).
		Str("build_date", buildDate).
		Int("workers", cfg.Workers).
		Int("target_langs", len(cfg.TargetLangs)).
		Msg("babelarr: started")

	<-ctx.Done()
	logger.Info().Msg("babelarr: shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	sup.Shutdown(shutdownCtx)

	shutdownHTTPCtx, cancelHTTP := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelHTTP()
	_ = metricsSrv.Shutdown(shutdownHTTPCtx)

	return nil
}
