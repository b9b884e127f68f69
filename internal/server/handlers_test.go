package server

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthHandler(t *testing.T) {
	ts := newTestServer(t, nil)

	for _, path := range []string{"/", "/health"} {
		resp, err := http.Get(ts.base.URL + path)
		require.NoError(t, err)
		body, err := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		require.NoError(t, err)

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "text/plain", resp.Header.Get("Content-Type"))
		assert.Equal(t, "LAN chat server is running!", string(body))
	}
}

func TestTestPageHandler(t *testing.T) {
	ts := newTestServer(t, nil)

	resp, err := http.Get(ts.base.URL + "/test")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/html", resp.Header.Get("Content-Type"))
	assert.Contains(t, string(body), "roster-update")
}

func TestWebSocketHandlerRejectsNonGET(t *testing.T) {
	ts := newTestServer(t, nil)

	resp, err := http.Post(ts.base.URL+"/ws", "text/plain", strings.NewReader("test"))
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)

	resp, err = http.Get(ts.base.URL + "/ws")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.dial(t)

	resp, err := http.Get(ts.base.URL + "/metrics")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "lanchat_connections")
}

func TestUploadAndDownloadRoutes(t *testing.T) {
	ts := newTestServer(t, nil)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "notes.txt")
	require.NoError(t, err)
	_, err = part.Write([]byte("shared notes"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	resp, err := http.Post(ts.base.URL+"/upload", mw.FormDataContentType(), &buf)
	require.NoError(t, err)
	var uploaded struct {
		FileURL      string `json:"fileUrl"`
		OriginalName string `json:"originalName"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&uploaded))
	_ = resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "notes.txt", uploaded.OriginalName)
	require.True(t, strings.HasPrefix(uploaded.FileURL, "/uploads/"))

	resp, err = http.Get(ts.base.URL + uploaded.FileURL)
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, "shared notes", string(body))

	name := strings.TrimPrefix(uploaded.FileURL, "/uploads/")
	resp, err = http.Get(ts.base.URL + "/download/" + name)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "attachment")

	resp, err = http.Get(ts.base.URL + "/download/missing.txt")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCORSPreflight(t *testing.T) {
	ts := newTestServer(t, nil)

	req, err := http.NewRequest(http.MethodOptions, ts.base.URL+"/upload", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://localhost:8080")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()

	assert.Equal(t, "http://localhost:8080", resp.Header.Get("Access-Control-Allow-Origin"))

	req.Header.Set("Origin", "http://evil.example")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()

	assert.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestRemoteHost(t *testing.T) {
	assert.Equal(t, "192.168.1.20", remoteHost("192.168.1.20:51234"))
	assert.Equal(t, "::1", remoteHost("[::1]:8080"))
	assert.Equal(t, "pipe", remoteHost("pipe"))
}

func TestCORSWithNoValidOriginsAllowsNone(t *testing.T) {
	ts := newTestServer(t, func(cfg *Config) { cfg.AllowedOrigins = []string{"not-a-url"} })

	req, err := http.NewRequest(http.MethodOptions, ts.base.URL+"/upload", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://evil.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()

	assert.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))
}
