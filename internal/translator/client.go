// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package translator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/babelarr/babelarr/internal/log"
)

// Mode selects the HTTP transport shape (spec.md §4.2 "Two transport modes").
type Mode int

const (
	// ModePerRequest opens a fresh connection per request — safe behind load
	// balancers, and the default.
	ModePerRequest Mode = iota
	// ModePersistent reuses keep-alive connections from one transport shared
	// by every caller of the Client.
	ModePersistent
)

// Config configures a Client.
type Config struct {
	BaseURL      string
	APIKey       string
	Mode         Mode
	RetryCount   int           // max retry attempts for transient failures
	BackoffDelay time.Duration // base delay, doubled per attempt
	TranslateTimeout time.Duration
	ProbeTimeout     time.Duration
	ProbeInterval    time.Duration
}

func (c *Config) setDefaults() {
	if c.RetryCount <= 0 {
		c.RetryCount = 5
	}
	if c.BackoffDelay <= 0 {
		c.BackoffDelay = 2 * time.Second
	}
	if c.TranslateTimeout <= 0 {
		c.TranslateTimeout = 5 * time.Minute
	}
	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = 5 * time.Second
	}
	if c.ProbeInterval <= 0 {
		c.ProbeInterval = 10 * time.Second
	}
}

// Client is the uniform façade over the remote translation HTTP service
// (spec.md §4.2, §6).
type Client struct {
	cfg Config

	translateHTTP *http.Client
	probeHTTP     *http.Client

	latch *availabilityLatch

	mu          sync.RWMutex
	supported   map[string]map[string]bool // src -> set<dst>
	fetchedOnce bool
}

// NewClient constructs a Client. Languages are not fetched until
// FetchLanguages is called explicitly (spec.md "Language support is queried
// once at startup").
func NewClient(cfg Config) *Client {
	cfg.setDefaults()
	transport := &http.Transport{}
	if cfg.Mode == ModePerRequest {
		transport.DisableKeepAlives = true
	}
	return &Client{
		cfg:           cfg,
		translateHTTP: &http.Client{Timeout: cfg.TranslateTimeout, Transport: transport},
		probeHTTP:     &http.Client{Timeout: cfg.ProbeTimeout, Transport: transport},
		latch:         newAvailabilityLatch(),
	}
}

// IsAvailable reports the client's current availability without blocking or probing.
func (c *Client) IsAvailable() bool {
	return c.latch.IsAvailable()
}

// MarkUnavailable forces every current and future WaitUntilAvailable call to
// block until the service is confirmed healthy again (spec.md §4.4 step 7).
func (c *Client) MarkUnavailable() {
	c.latch.Clear()
}

// WaitUntilAvailable blocks, polling the health probe at ProbeInterval, until
// a probe succeeds or ctx is cancelled (the shutdown signal, per spec.md
// §4.2/§5).
func (c *Client) WaitUntilAvailable(ctx context.Context) error {
	ch, available := c.latch.waitChan()
	if available {
		return nil
	}

	ticker := time.NewTicker(c.cfg.ProbeInterval)
	defer ticker.Stop()

	for {
		if c.probe(ctx) {
			c.latch.Set()
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ch:
			return nil
		case <-ticker.C:
		}
	}
}

// probe issues a HEAD request against the base URL; 2xx/3xx is available
// (spec.md §6 "Health probe: HEAD on the base URL").
func (c *Client) probe(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.cfg.BaseURL, nil)
	if err != nil {
		return false
	}
	resp, err := c.probeHTTP.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode < 400
}

// IsAvailableNow runs a single synchronous probe, used by the `babelarr
// status` command.
func (c *Client) IsAvailableNow(ctx context.Context) bool {
	return c.probe(ctx)
}

// FetchLanguages queries the set of supported (src, dst) language pairs once
// and caches the result (spec.md §4.2).
func (c *Client) FetchLanguages(ctx context.Context) (map[string]map[string]bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/languages", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.translateHTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: fetch languages: %v", ErrTransient, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("%w: fetch languages status %d", ErrTransient, resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("%w: fetch languages status %d", ErrPermanent, resp.StatusCode)
	}

	var raw []struct {
		Code    string   `json:"code"`
		Targets []string `json:"targets"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: decode languages: %v", ErrPermanent, err)
	}

	out := make(map[string]map[string]bool, len(raw))
	for _, r := range raw {
		set := make(map[string]bool, len(r.Targets))
		for _, t := range r.Targets {
			set[t] = true
		}
		out[r.Code] = set
	}

	c.mu.Lock()
	c.supported = out
	c.fetchedOnce = true
	c.mu.Unlock()
	return out, nil
}

// SupportsTranslation reports whether src->dst is a known supported pair.
// Consumers never introspect the Translator's type; they call this predicate
// (spec.md §9 "Dynamic 'translator capability' checks").
func (c *Client) SupportsTranslation(src, dst string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.fetchedOnce {
		// Languages not yet fetched: assume supported rather than blocking
		// every caller on a startup race; FetchLanguages is always called
		// before the Supervisor hands out the Client.
		return true
	}
	set, ok := c.supported[src]
	if !ok {
		return false
	}
	return set[dst]
}

// IsTargetSupported reports whether dst appears as a target for any source.
func (c *Client) IsTargetSupported(dst string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.fetchedOnce {
		return true
	}
	for _, set := range c.supported {
		if set[dst] {
			return true
		}
	}
	return false
}

// TranslateFile uploads content (the source file's raw bytes) and returns the
// translated bytes (spec.md §6 "Translator HTTP"). Transient failures are
// retried internally with exponential backoff starting at BackoffDelay,
// doubling per attempt, up to RetryCount retries after the first attempt.
func (c *Client) TranslateFile(ctx context.Context, content []byte, src, dst string) ([]byte, error) {
	delay := c.cfg.BackoffDelay
	var lastErr error

	for attempt := 0; attempt <= c.cfg.RetryCount; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}

		result, err := c.translateOnce(ctx, content, src, dst)
		if err == nil {
			return result, nil
		}
		lastErr = err
		if !errors.Is(err, ErrTransient) {
			return nil, err
		}
		log.WithComponent("translator").Warn().Err(err).Int(log.FieldAttempt, attempt+1).
			Str(log.FieldLang, dst).Msg("translator: transient failure, retrying")
	}
	return nil, lastErr
}

func (c *Client) translateOnce(ctx context.Context, content []byte, src, dst string) ([]byte, error) {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)

	part, err := w.CreateFormFile("file", "source.srt")
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", ErrPermanent, err)
	}
	if _, err := part.Write(content); err != nil {
		return nil, fmt.Errorf("%w: build request: %v", ErrPermanent, err)
	}
	_ = w.WriteField("source", src)
	_ = w.WriteField("target", dst)
	_ = w.WriteField("format", "srt")
	if c.cfg.APIKey != "" {
		_ = w.WriteField("api_key", c.cfg.APIKey)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("%w: build request: %v", ErrPermanent, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/translate_file", &body)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", ErrPermanent, err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := c.translateHTTP.Do(req)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %v", ErrTransient, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrTransient, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: status %d", ErrTransient, resp.StatusCode)
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("%w: status %d", ErrTransient, resp.StatusCode)
	case resp.StatusCode >= 400:
		return nil, fmt.Errorf("%w: status %d", ErrPermanent, resp.StatusCode)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrTransient, err)
	}

	ct := resp.Header.Get("Content-Type")
	if strings.Contains(ct, "application/json") {
		var payload struct {
			TranslatedFileURL string `json:"translatedFileUrl"`
		}
		if err := json.Unmarshal(raw, &payload); err != nil {
			return nil, fmt.Errorf("%w: malformed json response: %v", ErrPermanent, err)
		}
		if payload.TranslatedFileURL == "" {
			return nil, fmt.Errorf("%w: empty translatedFileUrl", ErrPermanent)
		}
		return c.fetchTranslatedFile(ctx, payload.TranslatedFileURL)
	}
	return raw, nil
}

func (c *Client) fetchTranslatedFile(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build fetch request: %v", ErrPermanent, err)
	}
	resp, err := c.translateHTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransient, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("%w: status %d", ErrTransient, resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("%w: status %d", ErrPermanent, resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// DetectLanguage samples a buffer and returns the detected ISO-639-1 code if
// confidence clears minConfidence (spec.md §4.2).
func (c *Client) DetectLanguage(ctx context.Context, sample []byte, minConfidence float64) (string, float64, bool, error) {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("q", "sample.srt")
	if err != nil {
		return "", 0, false, fmt.Errorf("%w: build request: %v", ErrPermanent, err)
	}
	if _, err := part.Write(sample); err != nil {
		return "", 0, false, fmt.Errorf("%w: build request: %v", ErrPermanent, err)
	}
	if err := w.Close(); err != nil {
		return "", 0, false, fmt.Errorf("%w: build request: %v", ErrPermanent, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/detect", &body)
	if err != nil {
		return "", 0, false, fmt.Errorf("%w: build request: %v", ErrPermanent, err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := c.translateHTTP.Do(req)
	if err != nil {
		return "", 0, false, fmt.Errorf("%w: %v", ErrTransient, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 500 {
		return "", 0, false, fmt.Errorf("%w: status %d", ErrTransient, resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		return "", 0, false, fmt.Errorf("%w: status %d", ErrPermanent, resp.StatusCode)
	}

	var results []struct {
		Language   string  `json:"language"`
		Confidence float64 `json:"confidence"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return "", 0, false, fmt.Errorf("%w: decode detect response: %v", ErrPermanent, err)
	}
	if len(results) == 0 || results[0].Confidence < minConfidence {
		return "", 0, false, nil
	}
	return results[0].Language, results[0].Confidence, true, nil
}
