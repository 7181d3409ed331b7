// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package webhook implements the minimal HTTP ingress endpoint of spec.md
// §4.6: external tools (e.g. Tdarr) POST a path or list of paths to enqueue
// for MKV reconciliation.
package webhook

import (
	"encoding/json"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/babelarr/babelarr/internal/log"
	"github.com/babelarr/babelarr/internal/metrics"
)

// Enqueuer is the subset of mkvpipeline.Workflow the webhook needs.
type Enqueuer interface {
	EnqueueTranslation(path string, priority int)
}

// Server serves the webhook ingress endpoint.
type Server struct {
	httpServer *http.Server
	token      string
}

// Config configures a Server.
type Config struct {
	Host    string
	Port    int
	Token   string // if non-empty, required via bearer or X-Webhook-Token
	MKVDirs []string
}

type requestBody struct {
	Path     string      `json:"path"`
	Paths    []string    `json:"paths"`
	Priority interface{} `json:"priority"`
}

type skipReason struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

type responseBody struct {
	Queued   []string     `json:"queued"`
	Skipped  []skipReason `json:"skipped"`
	Priority int          `json:"priority"`
}

// New builds a Server wired to enqueue onto wf. The HTTP listener is not
// started until Run is called.
func New(cfg Config, wf Enqueuer) *Server {
	s := &Server{token: cfg.Token}

	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Post("/webhook/tdarr", s.handleWebhook(wf, cfg.MKVDirs))
	r.Post("/tdarr", s.handleWebhook(wf, cfg.MKVDirs))

	s.httpServer = &http.Server{
		Addr:    cfg.Host + ":" + strconv.Itoa(cfg.Port),
		Handler: r,
	}
	return s
}

// Run starts the HTTP listener; it blocks until the server is shut down.
func (s *Server) Run() error {
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown closes the HTTP listener and any open connections immediately,
// without waiting for in-flight requests to finish.
func (s *Server) Shutdown() error {
	return s.httpServer.Close()
}

func (s *Server) handleWebhook(wf Enqueuer, mkvDirs []string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := log.WithComponent("webhook")

		if !s.authorized(r) {
			metrics.WebhookRequestsTotal.WithLabelValues("unauthorized").Inc()
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		var body requestBody
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			metrics.WebhookRequestsTotal.WithLabelValues("bad_request").Inc()
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}

		paths := body.Paths
		if body.Path != "" {
			paths = append(paths, body.Path)
		}
		if len(paths) == 0 {
			metrics.WebhookRequestsTotal.WithLabelValues("bad_request").Inc()
			http.Error(w, "path or paths required", http.StatusBadRequest)
			return
		}

		priority := normalizePriority(body.Priority)

		resp := responseBody{Priority: priority}
		seen := make(map[string]bool, len(paths))
		for _, p := range paths {
			if seen[p] {
				continue
			}
			seen[p] = true

			if filepath.Ext(p) != ".mkv" {
				resp.Skipped = append(resp.Skipped, skipReason{Path: p, Reason: "not an mkv file"})
				continue
			}
			if !underAnyRoot(p, mkvDirs) {
				resp.Skipped = append(resp.Skipped, skipReason{Path: p, Reason: "outside configured mkv roots"})
				continue
			}

			wf.EnqueueTranslation(p, priority)
			resp.Queued = append(resp.Queued, p)
		}

		w.Header().Set("Content-Type", "application/json")
		if len(resp.Queued) == 0 {
			metrics.WebhookRequestsTotal.WithLabelValues("empty").Inc()
			w.WriteHeader(http.StatusOK)
		} else {
			metrics.WebhookRequestsTotal.WithLabelValues("accepted").Inc()
			w.WriteHeader(http.StatusAccepted)
		}
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			logger.Warn().Err(err).Msg("webhook: encode response failed")
		}
	}
}

func (s *Server) authorized(r *http.Request) bool {
	if s.token == "" {
		return true
	}
	if auth := r.Header.Get("Authorization"); auth == "Bearer "+s.token {
		return true
	}
	return r.Header.Get("X-Webhook-Token") == s.token
}

// normalizePriority maps a JSON priority value to {0, 1}: any truthy value
// (bool true, or a nonzero number) maps to 0, per spec.md §4.6
// "priority normalized to {0, 1} (truthy -> 0)".
func normalizePriority(v interface{}) int {
	switch t := v.(type) {
	case bool:
		if t {
			return 0
		}
		return 1
	case float64:
		if t != 0 {
			return 0
		}
		return 1
	default:
		return 1
	}
}

func underAnyRoot(path string, roots []string) bool {
	if len(roots) == 0 {
		return true
	}
	for _, root := range roots {
		if rel, err := filepath.Rel(root, path); err == nil && !strings.HasPrefix(rel, "..") {
			return true
		}
	}
	return false
}
