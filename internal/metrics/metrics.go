// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package metrics provides Prometheus metrics for babelarr, following the
// promauto wiring of the teacher's internal/metrics package.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SRTTasksTotal counts sidecar translation task outcomes.
	SRTTasksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "babelarr_srt_tasks_total",
		Help: "Total sidecar translation tasks processed, by outcome.",
	}, []string{"outcome"})

	// MKVTasksTotal counts MKV reconciliation outcomes.
	MKVTasksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "babelarr_mkv_tasks_total",
		Help: "Total MKV reconciliation tasks processed, by outcome.",
	}, []string{"outcome"})

	// TranslateDuration tracks time spent in a single translate_file call.
	TranslateDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "babelarr_translate_duration_seconds",
		Help:    "Duration of Translator.TranslateFile calls.",
		Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
	}, []string{"lang"})

	// QueueDepth reports the current depth of each in-memory priority queue.
	QueueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "babelarr_queue_depth",
		Help: "Current number of items waiting in a queue.",
	}, []string{"queue"})

	// WorkersActive reports how many workers are currently processing a task.
	WorkersActive = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "babelarr_workers_active",
		Help: "Number of workers currently processing a task.",
	}, []string{"pool"})

	// TranslatorAvailable reports the translator availability latch (1=available).
	TranslatorAvailable = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "babelarr_translator_available",
		Help: "Whether the Translator client currently considers the service available.",
	})

	// WebhookRequestsTotal counts webhook requests by outcome.
	WebhookRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "babelarr_webhook_requests_total",
		Help: "Total webhook requests received, by outcome.",
	}, []string{"outcome"})
)
