// ABOUTME: Tests for the HTTP handlers behind the completion gateway.
// ABOUTME: Uses a mock runner so no real codex subprocess is spawned.

package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"log/slog"

	"github.com/stretchr/testify/require"

	"github.com/2389/codex-gateway/internal/auth"
	"github.com/2389/codex-gateway/internal/codex"
	"github.com/2389/codex-gateway/internal/config"
)

// mockRunner stands in for the codex subprocess. It records jobs and can
// block until released to simulate a long-running completion.
type mockRunner struct {
	mu      sync.Mutex
	output  *codex.Output
	err     error
	jobs    []codex.Job
	started chan struct{}
	release chan struct{}
}

func (m *mockRunner) Run(ctx context.Context, job codex.Job) (*codex.Output, error) {
	m.mu.Lock()
	m.jobs = append(m.jobs, job)
	m.mu.Unlock()

	if m.started != nil {
		select {
		case m.started <- struct{}{}:
		default:
		}
	}
	if m.release != nil {
		<-m.release
	}

	output := m.output
	if output == nil {
		output = &codex.Output{}
	}
	return output, m.err
}

func (m *mockRunner) lastJob(t *testing.T) codex.Job {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.jobs) == 0 {
		t.Fatal("runner was never called")
	}
	return m.jobs[len(m.jobs)-1]
}

func testConfig() *config.Config {
	return &config.Config{
		Server:  config.ServerConfig{Host: "127.0.0.1", Port: 8091},
		Codex:   config.CodexConfig{Binary: "codex", DefaultTimeout: time.Minute},
		Logging: config.LoggingConfig{Level: "info", Format: "text"},
	}
}

func newTestGateway(t *testing.T) *Gateway {
	return newTestGatewayWithConfig(t, testConfig())
}

func newTestGatewayWithConfig(t *testing.T, cfg *config.Config) *Gateway {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	gw, err := New(cfg, logger)
	if err != nil {
		t.Fatalf("failed to create gateway: %v", err)
	}
	t.Cleanup(func() {
		if gw.history != nil {
			gw.history.Close()
		}
	})
	return gw
}

func postCompletion(t *testing.T, handler http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, "/completion", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()

	var errResp map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&errResp); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	return errResp["error"]
}

func TestHandleCompletion_MockedAgentMessage(t *testing.T) {
	gw := newTestGateway(t)
	eventLine := `{"kind":"codex_event","payload":{"msg":{"type":"agent_message","message":"hello"}}}`
	gw.runner = &mockRunner{output: &codex.Output{Stdout: eventLine + "\n", Duration: 50 * time.Millisecond}}

	rec := postCompletion(t, http.HandlerFunc(gw.handleCompletion), `{"messages":[{"role":"user","content":"hi"}]}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("unexpected content type: %s", ct)
	}

	var resp struct {
		Content   string           `json:"content"`
		ToolCalls []map[string]any `json:"tool_calls"`
		Events    []map[string]any `json:"events"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Equal(t, "hello", resp.Content)
	require.NotNil(t, resp.ToolCalls)
	require.Len(t, resp.ToolCalls, 0)
	require.Len(t, resp.Events, 1)

	var wantEvent map[string]any
	require.NoError(t, json.Unmarshal([]byte(eventLine), &wantEvent))
	require.Equal(t, wantEvent, resp.Events[0])
}

func TestHandleCompletion_EmptyObject(t *testing.T) {
	gw := newTestGateway(t)
	gw.runner = &mockRunner{}

	rec := postCompletion(t, http.HandlerFunc(gw.handleCompletion), `{}`)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected status %d, got %d", http.StatusBadRequest, rec.Code)
	}
	if msg := decodeError(t, rec); msg != "messages array is required" {
		t.Errorf("unexpected error message: %s", msg)
	}
}

func TestHandleCompletion_EmptyMessagesArray(t *testing.T) {
	gw := newTestGateway(t)
	gw.runner = &mockRunner{}

	rec := postCompletion(t, http.HandlerFunc(gw.handleCompletion), `{"messages":[]}`)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected status %d, got %d", http.StatusBadRequest, rec.Code)
	}
	if msg := decodeError(t, rec); msg != "messages array is required" {
		t.Errorf("unexpected error message: %s", msg)
	}
}

func TestHandleCompletion_InvalidJSON(t *testing.T) {
	gw := newTestGateway(t)
	gw.runner = &mockRunner{}

	rec := postCompletion(t, http.HandlerFunc(gw.handleCompletion), `not json`)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected status %d, got %d", http.StatusBadRequest, rec.Code)
	}
	if msg := decodeError(t, rec); msg != "Invalid JSON payload" {
		t.Errorf("unexpected error message: %s", msg)
	}
}

func TestHandleCompletion_WrongMethod(t *testing.T) {
	gw := newTestGateway(t)
	gw.runner = &mockRunner{}

	req := httptest.NewRequest(http.MethodGet, "/completion", nil)
	rec := httptest.NewRecorder()
	gw.handleCompletion(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("expected status %d, got %d", http.StatusNotFound, rec.Code)
	}
	if msg := decodeError(t, rec); msg != "Not Found" {
		t.Errorf("unexpected error message: %s", msg)
	}
}

func TestHandleCompletion_BodyTooLarge(t *testing.T) {
	gw := newTestGateway(t)
	runner := &mockRunner{}
	gw.runner = runner

	huge := fmt.Sprintf(`{"messages":[{"role":"user","content":"%s"}]}`, strings.Repeat("x", maxRequestBody+1))
	rec := postCompletion(t, http.HandlerFunc(gw.handleCompletion), huge)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected status %d, got %d", http.StatusBadRequest, rec.Code)
	}
	if len(runner.jobs) != 0 {
		t.Error("oversized body must never reach the runner")
	}
}

func TestHandleCompletion_Timeout(t *testing.T) {
	gw := newTestGateway(t)
	gw.runner = &mockRunner{
		err: fmt.Errorf("%w after %s", codex.ErrTimeout, 90*time.Second),
	}

	rec := postCompletion(t, http.HandlerFunc(gw.handleCompletion), `{"messages":[{"role":"user","content":"hi"}]}`)

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected status %d, got %d", http.StatusInternalServerError, rec.Code)
	}
	msg := decodeError(t, rec)
	require.Contains(t, msg, "timed out")
	require.Contains(t, msg, "1m30s")
}

func TestHandleCompletion_ExitError(t *testing.T) {
	gw := newTestGateway(t)
	gw.runner = &mockRunner{
		err: &codex.ExitError{Code: 3, Stderr: "model not found\n"},
	}

	rec := postCompletion(t, http.HandlerFunc(gw.handleCompletion), `{"messages":[{"role":"user","content":"hi"}]}`)

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected status %d, got %d", http.StatusInternalServerError, rec.Code)
	}
	if msg := decodeError(t, rec); msg != "model not found" {
		t.Errorf("unexpected error message: %s", msg)
	}
}

func TestHandleCompletion_JobFields(t *testing.T) {
	gw := newTestGateway(t)
	runner := &mockRunner{output: &codex.Output{Stdout: ""}}
	gw.runner = runner

	body := `{
		"messages":[{"role":"user","content":"hi"}],
		"system_prompt":"be brief",
		"model":"gpt-5.1-codex",
		"timeout_ms":2500,
		"cwd":"/tmp/work"
	}`
	rec := postCompletion(t, http.HandlerFunc(gw.handleCompletion), body)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}

	job := runner.lastJob(t)
	require.Equal(t, "gpt-5.1-codex", job.Model)
	require.Equal(t, 2500*time.Millisecond, job.Timeout)
	require.Equal(t, "/tmp/work", job.WorkDir)
	require.True(t, strings.HasPrefix(job.Prompt, "System:\nbe brief"))
	require.True(t, strings.HasSuffix(job.Prompt, "Assistant:"))
}

func TestHandleCompletion_NoAgentMessageIsStillOK(t *testing.T) {
	gw := newTestGateway(t)
	gw.runner = &mockRunner{output: &codex.Output{
		Stdout: `{"kind":"codex_event","payload":{"msg":{"type":"agent_reasoning","text":"hmm"}}}` + "\n",
	}}

	rec := postCompletion(t, http.HandlerFunc(gw.handleCompletion), `{"messages":[{"role":"user","content":"hi"}]}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}

	var resp map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Equal(t, "", resp["content"])
	require.Len(t, resp["events"], 1)
}

func TestHandleHealth(t *testing.T) {
	gw := newTestGateway(t)

	for _, method := range []string{http.MethodGet, http.MethodHead} {
		req := httptest.NewRequest(method, "/health", nil)
		rec := httptest.NewRecorder()
		gw.handleHealth(rec, req)

		if rec.Code != http.StatusOK {
			t.Errorf("%s /health: expected status %d, got %d", method, http.StatusOK, rec.Code)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	gw.handleHealth(rec, req)

	var body map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	require.Equal(t, "ok", body["status"])

	for _, method := range []string{http.MethodPost, http.MethodDelete} {
		req := httptest.NewRequest(method, "/health", nil)
		rec := httptest.NewRecorder()
		gw.handleHealth(rec, req)

		if rec.Code != http.StatusNotFound {
			t.Errorf("%s /health: expected status %d, got %d", method, http.StatusNotFound, rec.Code)
		}
	}
}

func TestHealthWhileCompletionInFlight(t *testing.T) {
	gw := newTestGateway(t)
	runner := &mockRunner{
		output:  &codex.Output{Stdout: ""},
		started: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	gw.runner = runner
	mux := gw.httpServer.Handler

	done := make(chan int, 1)
	go func() {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/completion",
			strings.NewReader(`{"messages":[{"role":"user","content":"hi"}]}`))
		mux.ServeHTTP(rec, req)
		done <- rec.Code
	}()

	select {
	case <-runner.started:
	case <-time.After(5 * time.Second):
		t.Fatal("completion never reached the runner")
	}

	// The completion is still blocked; health must answer anyway.
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("health while busy: expected status %d, got %d", http.StatusOK, rec.Code)
	}

	close(runner.release)
	select {
	case code := <-done:
		if code != http.StatusOK {
			t.Errorf("completion: expected status %d, got %d", http.StatusOK, code)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("completion never finished")
	}
}

func TestHandleIndex(t *testing.T) {
	gw := newTestGateway(t)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	gw.handleIndex(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}

	var body struct {
		Status    string            `json:"status"`
		Endpoints map[string]string `json:"endpoints"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	require.Equal(t, "codex-gateway", body.Status)
	require.Contains(t, body.Endpoints, "POST /completion")
	require.Contains(t, body.Endpoints, "GET /health")
	require.NotContains(t, body.Endpoints, "GET /history", "history is disabled by default")
}

func TestUnknownRoutesReturn404(t *testing.T) {
	gw := newTestGateway(t)
	mux := gw.httpServer.Handler

	paths := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/nope"},
		{http.MethodPost, "/completion/extra"},
		{http.MethodPut, "/"},
		{http.MethodGet, "/history"},
	}

	for _, p := range paths {
		req := httptest.NewRequest(p.method, p.path, nil)
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)

		if rec.Code != http.StatusNotFound {
			t.Errorf("%s %s: expected status %d, got %d", p.method, p.path, http.StatusNotFound, rec.Code)
			continue
		}
		if msg := decodeError(t, rec); msg != "Not Found" {
			t.Errorf("%s %s: unexpected error message: %s", p.method, p.path, msg)
		}
	}
}

func TestHistoryEndpoints(t *testing.T) {
	cfg := testConfig()
	cfg.Database.Path = ":memory:"
	gw := newTestGatewayWithConfig(t, cfg)

	eventLine := `{"kind":"codex_event","payload":{"msg":{"type":"agent_message","message":"hello"}}}`
	gw.runner = &mockRunner{output: &codex.Output{Stdout: eventLine + "\n", Duration: time.Second}}
	mux := gw.httpServer.Handler

	rec := postCompletion(t, mux, `{"messages":[{"role":"user","content":"hi"}],"model":"gpt-5.1-codex"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/history", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var list struct {
		Count int `json:"count"`
		Runs  []struct {
			ID      string `json:"id"`
			Model   string `json:"model"`
			Content string `json:"content"`
			Status  string `json:"status"`
		} `json:"runs"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&list))
	require.Equal(t, 1, list.Count)
	require.Equal(t, "hello", list.Runs[0].Content)
	require.Equal(t, "gpt-5.1-codex", list.Runs[0].Model)
	require.Equal(t, "ok", list.Runs[0].Status)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/history/"+list.Runs[0].ID, nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/history/does-not-exist", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/history?limit=zero", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHistoryRecordsFailures(t *testing.T) {
	cfg := testConfig()
	cfg.Database.Path = ":memory:"
	gw := newTestGatewayWithConfig(t, cfg)
	gw.runner = &mockRunner{err: fmt.Errorf("%w after %s", codex.ErrTimeout, time.Second)}
	mux := gw.httpServer.Handler

	rec := postCompletion(t, mux, `{"messages":[{"role":"user","content":"hi"}]}`)
	require.Equal(t, http.StatusInternalServerError, rec.Code)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/history", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var list struct {
		Runs []struct {
			Status string `json:"status"`
			Error  string `json:"error"`
		} `json:"runs"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&list))
	require.Len(t, list.Runs, 1)
	require.Equal(t, "timeout", list.Runs[0].Status)
	require.Contains(t, list.Runs[0].Error, "timed out")
}

func TestAuthProtectedRoutes(t *testing.T) {
	cfg := testConfig()
	cfg.Auth.JWTSecret = "0123456789abcdef0123456789abcdef"
	gw := newTestGatewayWithConfig(t, cfg)

	eventLine := `{"kind":"codex_event","payload":{"msg":{"type":"agent_message","message":"hello"}}}`
	gw.runner = &mockRunner{output: &codex.Output{Stdout: eventLine + "\n"}}
	mux := gw.httpServer.Handler

	// No token: rejected before the runner is reached.
	rec := postCompletion(t, mux, `{"messages":[{"role":"user","content":"hi"}]}`)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	// Health stays open.
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	// A minted token passes.
	token, err := auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret)).Generate("tester", time.Hour)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/completion",
		bytes.NewReader([]byte(`{"messages":[{"role":"user","content":"hi"}]}`)))
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}
