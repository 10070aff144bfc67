// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package server

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cytonlink/cytonlink/pkg/bridge"
	"github.com/cytonlink/cytonlink/pkg/metrics"
	"github.com/cytonlink/cytonlink/pkg/stream"
)

// fakeController answers commands from a table
type fakeController struct {
	mu        sync.Mutex
	responses map[string]string
	errs      map[string]error
	commands  []string
	streaming bool
}

func (f *fakeController) Command(_ context.Context, text string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commands = append(f.commands, text)
	if err := f.errs[text]; err != nil {
		return "", err
	}
	return f.responses[text], nil
}

func (f *fakeController) StartStream(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.streaming = true
	return nil
}

func (f *fakeController) StopStream(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.streaming = false
	return nil
}

func (f *fakeController) BoardInfo() bridge.BoardInfo {
	f.mu.Lock()
	defer f.mu.Unlock()
	return bridge.BoardInfo{
		BoardType:   bridge.BoardType,
		NumChannels: 8,
		Gains:       []int{24, 24, 24, 24, 24, 24, 24, 24},
		Streaming:   f.streaming,
		SampleRate:  250,
		BridgeID:    "test-bridge",
	}
}

func newTestServer(t *testing.T) (*httptest.Server, *fakeController, *HTTPServer) {
	t.Helper()
	ctrl := &fakeController{
		responses: map[string]string{"V": "v3.1.2", "~5": "Success: Sample rate is 500Hz"},
		errs: map[string]error{
			"slow": bridge.ErrCommandTimeout,
			"busy": bridge.ErrBusy,
		},
	}
	h := NewHTTPServer("", ctrl, stream.NewTCPSender(nil), stream.NewUDPSender(nil), metrics.NewMetrics(), nil, "v1.2.3")
	ts := httptest.NewServer(h.Handler())
	t.Cleanup(ts.Close)
	return ts, ctrl, h
}

func do(t *testing.T, method, url, body string) (*http.Response, string) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(data)
}

func TestRoot(t *testing.T) {
	ts, _, _ := newTestServer(t)

	resp, body := do(t, http.MethodGet, ts.URL+"/", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, body, "OpenBCI Interface")
	require.Contains(t, body, "v1.2.3")

	resp, body = do(t, http.MethodGet, ts.URL+"/wifi", "")
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	require.Contains(t, body, "Not Found")
}

func TestVersion(t *testing.T) {
	ts, _, _ := newTestServer(t)
	resp, body := do(t, http.MethodGet, ts.URL+"/version", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "v1.2.3", body)
}

func TestBoard(t *testing.T) {
	ts, _, _ := newTestServer(t)
	resp, body := do(t, http.MethodGet, ts.URL+"/board", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var info bridge.BoardInfo
	require.NoError(t, json.Unmarshal([]byte(body), &info))
	require.Equal(t, "cyton", info.BoardType)
	require.Equal(t, 8, info.NumChannels)
	require.Equal(t, "test-bridge", info.BridgeID)
}

func TestOptionsCORS(t *testing.T) {
	ts, _, _ := newTestServer(t)
	for _, path := range []string{"/", "/board", "/tcp", "/udp", "/stream/start", "/stream/stop", "/command"} {
		resp, _ := do(t, http.MethodOptions, ts.URL+path, "")
		require.Equal(t, http.StatusOK, resp.StatusCode, path)
		require.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"), path)
		require.Equal(t, "POST,DELETE,GET,OPTIONS", resp.Header.Get("Access-Control-Allow-Methods"), path)
		require.Equal(t, "Content-Type", resp.Header.Get("Access-Control-Allow-Headers"), path)
	}
}

func TestCommand(t *testing.T) {
	ts, ctrl, _ := newTestServer(t)

	tests := []struct {
		name   string
		body   string
		status int
		want   string
	}{
		{"version", `{"command":"V"}`, http.StatusOK, "v3.1.2"},
		{"sample rate", `{"command":"~5"}`, http.StatusOK, "Success: Sample rate is 500Hz"},
		{"bad json", `{"command":`, http.StatusBadRequest, ""},
		{"missing key", `{"cmd":"V"}`, http.StatusBadRequest, "doesn't contain 'command'"},
		{"not a string", `{"command":5}`, http.StatusBadRequest, "must be a string"},
		{"timeout", `{"command":"slow"}`, http.StatusGatewayTimeout, "timed out"},
		{"busy", `{"command":"busy"}`, http.StatusConflict, "pending"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := do(t, http.MethodPost, ts.URL+"/command", tt.body)
			require.Equal(t, tt.status, resp.StatusCode)
			require.Contains(t, body, tt.want)
		})
	}

	resp, _ := do(t, http.MethodGet, ts.URL+"/command", "")
	require.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	require.Equal(t, []string{"V", "~5", "slow", "busy"}, ctrl.commands)
}

func TestStreamStartStop(t *testing.T) {
	ts, ctrl, _ := newTestServer(t)

	resp, body := do(t, http.MethodPost, ts.URL+"/stream/start", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "Stream started", body)
	require.True(t, ctrl.BoardInfo().Streaming)

	resp, _ = do(t, http.MethodGet, ts.URL+"/stream/stop", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.False(t, ctrl.BoardInfo().Streaming)
}

func TestTCPRoutes(t *testing.T) {
	ts, _, _ := newTestServer(t)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			defer conn.Close()
		}
	}()
	port := ln.Addr().(*net.TCPAddr).Port

	var info stream.TCPInfo
	resp, body := do(t, http.MethodGet, ts.URL+"/tcp", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal([]byte(body), &info))
	require.False(t, info.Connected)

	setup := `{"ip":"127.0.0.1","port":` + itoa(port) + `,"output":"json","latency":5000}`
	resp, body = do(t, http.MethodPost, ts.URL+"/tcp", setup)
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	require.NoError(t, json.Unmarshal([]byte(body), &info))
	require.True(t, info.Connected)
	require.Equal(t, "json", info.Output)
	require.Equal(t, 5000, info.Latency)
	require.True(t, info.Delimiter, "delimiter defaults on")

	resp, body = do(t, http.MethodDelete, ts.URL+"/tcp", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal([]byte(body), &info))
	require.False(t, info.Connected)

	resp, _ = do(t, http.MethodPost, ts.URL+"/tcp", `{"ip":"127.0.0.1"}`)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = do(t, http.MethodPost, ts.URL+"/tcp", `not json`)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestUDPRoutes(t *testing.T) {
	ts, _, _ := newTestServer(t)

	var info stream.UDPInfo
	resp, body := do(t, http.MethodPost, ts.URL+"/udp", `{"ip":"127.0.0.1","port":9000}`)
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	require.NoError(t, json.Unmarshal([]byte(body), &info))
	require.True(t, info.Configured)
	require.Equal(t, 9000, info.Port)

	resp, body = do(t, http.MethodDelete, ts.URL+"/udp", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal([]byte(body), &info))
	require.False(t, info.Configured)

	resp, _ = do(t, http.MethodPost, ts.URL+"/udp", `{"ip":""}`)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestMissingSenders(t *testing.T) {
	h := NewHTTPServer("", &fakeController{}, nil, nil, nil, nil, "dev")
	ts := httptest.NewServer(h.Handler())
	defer ts.Close()

	resp, _ := do(t, http.MethodGet, ts.URL+"/tcp", "")
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp, _ = do(t, http.MethodGet, ts.URL+"/udp", "")
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	ts, _, _ := newTestServer(t)
	do(t, http.MethodGet, ts.URL+"/board", "")
	do(t, http.MethodGet, ts.URL+"/nope", "")

	resp, body := do(t, http.MethodGet, ts.URL+"/metrics", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, body, `cytonlink_http_requests_total{endpoint="/board",method="GET",status_code="200"} 1`)
	require.Contains(t, body, `cytonlink_http_errors_total{endpoint="/",error_type="client_error",method="GET"} 1`)
}

func itoa(n int) string {
	b, _ := json.Marshal(n)
	return string(b)
}
