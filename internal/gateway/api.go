// ABOUTME: HTTP handlers for the completion, health, root, and history routes.
// ABOUTME: Maps runner and parser outcomes onto the JSON wire contract.

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/2389/codex-gateway/internal/auth"
	"github.com/2389/codex-gateway/internal/codex"
	"github.com/2389/codex-gateway/internal/history"
	"github.com/2389/codex-gateway/internal/prompt"
)

// maxRequestBody caps completion request bodies. Reads past the cap abort
// the connection.
const maxRequestBody = 1_000_000

// historyWriteTimeout bounds the post-response history insert.
const historyWriteTimeout = 5 * time.Second

// History listing limits.
const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

// CompletionRequest is the body of POST /completion.
type CompletionRequest struct {
	Messages     []prompt.Message `json:"messages"`
	SystemPrompt string           `json:"system_prompt,omitempty"`
	Model        string           `json:"model,omitempty"`
	TimeoutMS    int              `json:"timeout_ms,omitempty"`
	Cwd          string           `json:"cwd,omitempty"`
}

// registerRoutes installs the HTTP surface. The completion and history
// routes go behind the auth middleware when one is configured; health and
// the root descriptor stay open.
func (g *Gateway) registerRoutes(mux *http.ServeMux) {
	mux.Handle("/completion", g.protect(http.HandlerFunc(g.handleCompletion)))
	mux.HandleFunc("/health", g.handleHealth)
	mux.HandleFunc("/", g.handleIndex)

	if g.history != nil {
		mux.Handle("/history", g.protect(http.HandlerFunc(g.handleHistoryList)))
		mux.Handle("/history/", g.protect(http.HandlerFunc(g.handleHistoryGet)))
	}
}

func (g *Gateway) protect(h http.Handler) http.Handler {
	if g.authMiddleware == nil {
		return h
	}
	return g.authMiddleware(h)
}

// handleCompletion runs one codex invocation for a chat transcript.
func (g *Gateway) handleCompletion(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		g.sendJSONError(w, http.StatusNotFound, "Not Found")
		return
	}

	logger := g.requestLogger(r)
	body := http.MaxBytesReader(w, r.Body, maxRequestBody)

	req, err := parseCompletionRequest(body)
	if err != nil {
		logger.Warn("rejected completion request", "error", err)
		g.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	promptText := prompt.Build(req.SystemPrompt, req.Messages)
	job := codex.Job{
		Prompt:  promptText,
		Model:   req.Model,
		Timeout: time.Duration(req.TimeoutMS) * time.Millisecond,
		WorkDir: req.Cwd,
	}

	logger.Info("completion started",
		"messages", len(req.Messages),
		"model", req.Model,
		"timeout_ms", req.TimeoutMS,
		"cwd", req.Cwd)

	// The run gets a fresh context on purpose: closing the HTTP connection
	// early must not terminate the subprocess.
	output, runErr := g.runner.Run(context.Background(), job)
	if runErr != nil {
		logger.Error("completion failed", "error", runErr, "duration", runDuration(output))
		g.recordRun(req, promptText, nil, output, runErr)
		g.sendJSONError(w, http.StatusInternalServerError, runErr.Error())
		return
	}

	result := codex.Parse(output.Stdout, promptText)
	g.recordRun(req, promptText, result, output, nil)

	logger.Info("completion finished",
		"duration", output.Duration,
		"events", len(result.Events),
		"tool_calls", len(result.ToolCalls))
	g.writeJSON(w, http.StatusOK, result)
}

// parseCompletionRequest decodes and validates a completion body.
func parseCompletionRequest(r io.Reader) (*CompletionRequest, error) {
	var req CompletionRequest
	if err := json.NewDecoder(r).Decode(&req); err != nil {
		return nil, errors.New("Invalid JSON payload")
	}
	if len(req.Messages) == 0 {
		return nil, errors.New("messages array is required")
	}
	return &req, nil
}

// handleHealth is the liveness probe. It never touches the subprocess path,
// so it answers while completions are in flight.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		g.sendJSONError(w, http.StatusNotFound, "Not Found")
		return
	}
	g.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleIndex serves the service descriptor on "/" and the 404 fallback for
// every unregistered path.
func (g *Gateway) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		g.sendJSONError(w, http.StatusNotFound, "Not Found")
		return
	}
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		g.sendJSONError(w, http.StatusNotFound, "Not Found")
		return
	}

	endpoints := map[string]string{
		"POST /completion": "run a codex completion for a chat transcript",
		"GET /health":      "liveness probe",
		"GET /":            "this descriptor",
	}
	if g.history != nil {
		endpoints["GET /history"] = "recent completion runs"
		endpoints["GET /history/{id}"] = "one completion run"
	}

	g.writeJSON(w, http.StatusOK, map[string]any{
		"status":    "codex-gateway",
		"endpoints": endpoints,
	})
}

// handleHistoryList serves GET /history?limit=N.
func (g *Gateway) handleHistoryList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		g.sendJSONError(w, http.StatusNotFound, "Not Found")
		return
	}

	limit := defaultHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			g.sendJSONError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	runs, err := g.history.Recent(r.Context(), limit)
	if err != nil {
		g.logger.Error("listing history", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}

	g.writeJSON(w, http.StatusOK, map[string]any{
		"runs":  runs,
		"count": len(runs),
	})
}

// handleHistoryGet serves GET /history/{id}.
func (g *Gateway) handleHistoryGet(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		g.sendJSONError(w, http.StatusNotFound, "Not Found")
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/history/")
	if id == "" || strings.Contains(id, "/") {
		g.sendJSONError(w, http.StatusNotFound, "Not Found")
		return
	}

	run, err := g.history.Get(r.Context(), id)
	if errors.Is(err, history.ErrNotFound) {
		g.sendJSONError(w, http.StatusNotFound, "run not found")
		return
	}
	if err != nil {
		g.logger.Error("loading run", "error", err, "id", id)
		g.sendJSONError(w, http.StatusInternalServerError, "failed to load run")
		return
	}

	g.writeJSON(w, http.StatusOK, run)
}

// recordRun persists one completed invocation. History failures are logged,
// never surfaced: the client already has its response.
func (g *Gateway) recordRun(req *CompletionRequest, promptText string, result *codex.Completion, output *codex.Output, runErr error) {
	if g.history == nil {
		return
	}

	run := &history.Run{
		Model:  req.Model,
		Cwd:    req.Cwd,
		Prompt: promptText,
		Status: history.StatusOK,
	}
	if output != nil {
		run.DurationMS = output.Duration.Milliseconds()
	}
	if result != nil {
		run.Content = result.Content
		run.EventCount = len(result.Events)
		run.ToolCallCount = len(result.ToolCalls)
	}
	if runErr != nil {
		run.Status = history.StatusError
		run.Error = runErr.Error()
		if errors.Is(runErr, codex.ErrTimeout) {
			run.Status = history.StatusTimeout
		}
		var exitErr *codex.ExitError
		if errors.As(runErr, &exitErr) {
			run.ExitCode = exitErr.Code
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), historyWriteTimeout)
	defer cancel()
	if err := g.history.Record(ctx, run); err != nil {
		g.logger.Error("recording run", "error", err)
	}
}

func (g *Gateway) requestLogger(r *http.Request) *slog.Logger {
	logger := g.logger.With("request_id", uuid.NewString(), "path", r.URL.Path)
	if subject := auth.SubjectFromContext(r.Context()); subject != "" {
		logger = logger.With("subject", subject)
	}
	return logger
}

func runDuration(output *codex.Output) time.Duration {
	if output == nil {
		return 0
	}
	return output.Duration
}

func (g *Gateway) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		g.logger.Error("encoding response", "error", err)
	}
}

func (g *Gateway) sendJSONError(w http.ResponseWriter, status int, message string) {
	g.writeJSON(w, status, map[string]string{"error": message})
}
