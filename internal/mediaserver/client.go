// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package mediaserver notifies an optional external media-server (Jellyfin
// or Emby-compatible) that a library path changed (spec.md §6 "Media-server
// HTTP"). It is a best-effort collaborator: errors are logged, never fatal.
package mediaserver

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/babelarr/babelarr/internal/log"
)

// Client notifies the configured media server of updated library paths.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewClient returns a Client, or nil if baseURL is empty (media-server
// integration is optional per spec.md §6).
func NewClient(baseURL, token string) *Client {
	if baseURL == "" {
		return nil
	}
	return &Client{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

type updatesRequest struct {
	Updates []updateEntry `json:"Updates"`
}

type updateEntry struct {
	Path string `json:"Path"`
}

// NotifyPath posts a refresh request for a single absolute path. Failures are
// logged and swallowed (spec.md §6, §7 "never fatal").
func (c *Client) NotifyPath(ctx context.Context, absPath string) {
	if c == nil {
		return
	}
	logger := log.WithComponent("mediaserver")

	payload := updatesRequest{Updates: []updateEntry{{Path: absPath}}}
	body, err := json.Marshal(payload)
	if err != nil {
		logger.Warn().Err(err).Msg("mediaserver: marshal request failed")
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/Library/Media/Updated", bytes.NewReader(body))
	if err != nil {
		logger.Warn().Err(err).Msg("mediaserver: build request failed")
		return
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("X-Emby-Token", c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		logger.Warn().Err(err).Str(log.FieldPath, absPath).Msg("mediaserver: refresh request failed")
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		logger.Warn().Str(log.FieldPath, absPath).Int("status", resp.StatusCode).
			Msg("mediaserver: refresh request rejected")
		return
	}
	logger.Debug().Str(log.FieldPath, absPath).Msg("mediaserver: refresh notified")
}
