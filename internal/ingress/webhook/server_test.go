// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package webhook

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEnqueuer struct {
	calls []struct {
		path     string
		priority int
	}
}

func (f *fakeEnqueuer) EnqueueTranslation(path string, priority int) {
	f.calls = append(f.calls, struct {
		path     string
		priority int
	}{path, priority})
}

func TestWebhookQueuesMatchingPaths(t *testing.T) {
	fe := &fakeEnqueuer{}
	s := New(Config{MKVDirs: []string{"/media"}}, fe)

	body, _ := json.Marshal(map[string]any{"paths": []string{"/media/show.mkv", "/media/show.srt"}})
	req := httptest.NewRequest(http.MethodPost, "/webhook/tdarr", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Len(t, fe.calls, 1)
	assert.Equal(t, "/media/show.mkv", fe.calls[0].path)

	var resp responseBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Skipped, 1)
	assert.Equal(t, "/media/show.srt", resp.Skipped[0].Path)
}

func TestWebhookRejectsMissingPath(t *testing.T) {
	s := New(Config{}, &fakeEnqueuer{})
	req := httptest.NewRequest(http.MethodPost, "/webhook/tdarr", bytes.NewReader([]byte(`{}`)))
	rec := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWebhookRequiresAuthWhenTokenSet(t *testing.T) {
	s := New(Config{Token: "secret"}, &fakeEnqueuer{})
	body, _ := json.Marshal(map[string]any{"path": "/media/show.mkv"})

	req := httptest.NewRequest(http.MethodPost, "/webhook/tdarr", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req2 := httptest.NewRequest(http.MethodPost, "/webhook/tdarr", bytes.NewReader(body))
	req2.Header.Set("Authorization", "Bearer secret")
	rec2 := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(rec2, req2)
	assert.Equal(t, http.StatusAccepted, rec2.Code)
}

func TestNormalizePriority(t *testing.T) {
	assert.Equal(t, 0, normalizePriority(true))
	assert.Equal(t, 1, normalizePriority(false))
	assert.Equal(t, 0, normalizePriority(float64(1)))
	assert.Equal(t, 1, normalizePriority(float64(0)))
	assert.Equal(t, 1, normalizePriority(nil))
}
