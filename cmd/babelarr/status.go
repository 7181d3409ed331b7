// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/babelarr/babelarr/internal/config"
	"github.com/babelarr/babelarr/internal/store"
	"github.com/babelarr/babelarr/internal/translator"
)

var statusJSON bool

// statusReport is the read-only snapshot printed by `babelarr status`,
// grounded on the teacher's cmd/daemon/status_cmd.go diagnostics shape but
// read directly off disk rather than over an HTTP API: babelarr has no
// management API surface of its own.
type statusReport struct {
	QueueDepth       int  `json:"queue_depth"`
	WorkIndexDepth   int  `json:"work_index_depth"`
	TargetLangs      int  `json:"target_langs"`
	TranslatorUp     bool `json:"translator_available"`
	TranslatorProbed bool `json:"translator_probed"`
}

// newStatusCommand reports queue depth, work-index depth, and Translator
// reachability without starting the daemon (spec.md §4.1's stores are opened
// read/write briefly, same as any short-lived CLI tool against a SQLite
// file; it never mutates state).
func newStatusCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Report queue depth, work-index depth, and Translator reachability",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("status: load config: %w", err)
			}

			report := statusReport{TargetLangs: len(cfg.TargetLangs)}

			if q, err := store.NewQueueRepository(cfg.QueueDB); err == nil {
				report.QueueDepth, _ = q.Count()
				_ = q.Close()
			}
			if w, err := store.NewWorkIndex(cfg.WorkIndexDB); err == nil {
				report.WorkIndexDepth, _ = w.Count()
				_ = w.Close()
			}

			probeCtx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
			defer cancel()
			client := translator.NewClient(translator.Config{BaseURL: cfg.LibreTranslateURL})
			report.TranslatorUp = client.IsAvailableNow(probeCtx)
			report.TranslatorProbed = true

			if statusJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(report)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "queue_depth=%d work_index_depth=%d target_langs=%d translator_available=%t\n",
				report.QueueDepth, report.WorkIndexDepth, report.TargetLangs, report.TranslatorUp)
			return nil
		},
	}
	cmd.Flags().BoolVar(&statusJSON, "json", false, "output raw JSON")
	return cmd
}
