// ABOUTME: Runs the codex CLI as a subprocess in JSON-lines exec mode.
// ABOUTME: Owns argv assembly, stdin handoff, output buffering, and timeouts.

package codex

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"github.com/2389/codex-gateway/internal/config"
)

// ErrTimeout is returned when a run exceeds its deadline.
var ErrTimeout = errors.New("codex run timed out")

// waitDelay bounds how long Wait blocks on lingering pipe readers after the
// process has been signaled.
const waitDelay = 5 * time.Second

// scanBufferSize and maxLineSize size the stdout scanner; codex can emit
// very long single-line events for large file diffs.
const (
	scanBufferSize = 64 * 1024
	maxLineSize    = 10 * 1024 * 1024
)

// ExitError reports a codex process that exited non-zero. Error() prefers
// stderr, falls back to stdout, then to a generic exit-code message.
type ExitError struct {
	Code   int
	Stderr string
	Stdout string
}

func (e *ExitError) Error() string {
	if msg := strings.TrimSpace(e.Stderr); msg != "" {
		return msg
	}
	if msg := strings.TrimSpace(e.Stdout); msg != "" {
		return msg
	}
	return fmt.Sprintf("codex exited with code %d", e.Code)
}

// Job describes one codex invocation.
type Job struct {
	Prompt  string
	Model   string
	Timeout time.Duration
	WorkDir string

	// OnLine, when set, observes each stdout line as it is read. The slice
	// is only valid for the duration of the call. Output is still buffered
	// in full regardless.
	OnLine func(line []byte)
}

// Output carries the buffered streams of a finished run.
type Output struct {
	Stdout   string
	Stderr   string
	Duration time.Duration
}

// Runner spawns the codex CLI. It is stateless and safe for concurrent use.
type Runner struct {
	cfg    config.CodexConfig
	logger *slog.Logger
}

func NewRunner(cfg config.CodexConfig, logger *slog.Logger) *Runner {
	return &Runner{cfg: cfg, logger: logger}
}

// buildArgs assembles the exec argv. The trailing "-" makes codex read the
// prompt from stdin.
func (r *Runner) buildArgs(job Job) []string {
	args := []string{"exec", "--experimental-json", "--skip-git-repo-check"}
	if model := r.resolveModel(job); model != "" {
		args = append(args, "-m", model)
	}
	args = append(args, r.cfg.ExtraFlags...)
	return append(args, "-")
}

func (r *Runner) resolveModel(job Job) string {
	if model := strings.TrimSpace(job.Model); model != "" {
		return model
	}
	return strings.TrimSpace(r.cfg.DefaultModel)
}

func (r *Runner) resolveTimeout(job Job) time.Duration {
	if job.Timeout > 0 {
		return job.Timeout
	}
	return r.cfg.DefaultTimeout
}

// Run executes one codex job to completion. The prompt is written to stdin
// and stdin is closed; stdout and stderr are buffered in full. Every run
// has exactly one outcome: success, start failure, timeout, or exit error.
// On timeout the process receives a single SIGTERM, with a hard kill after
// waitDelay if it ignores the signal.
func (r *Runner) Run(ctx context.Context, job Job) (*Output, error) {
	timeout := r.resolveTimeout(job)

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, r.cfg.Binary, r.buildArgs(job)...)
	if job.WorkDir != "" {
		cmd.Dir = job.WorkDir
	}
	cmd.Cancel = func() error {
		return cmd.Process.Signal(syscall.SIGTERM)
	}
	cmd.WaitDelay = waitDelay

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	r.logger.Debug("starting codex",
		"binary", r.cfg.Binary,
		"model", r.resolveModel(job),
		"timeout", timeout,
		"workdir", job.WorkDir)

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting codex: %w", err)
	}

	// Written concurrently with the stdout scan so a large prompt cannot
	// deadlock against a full stdout pipe.
	go func() {
		if _, err := io.WriteString(stdin, job.Prompt); err != nil {
			r.logger.Warn("writing prompt to codex stdin", "error", err)
		}
		if err := stdin.Close(); err != nil {
			r.logger.Warn("closing codex stdin", "error", err)
		}
	}()

	var out strings.Builder
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, scanBufferSize), maxLineSize)
	for scanner.Scan() {
		line := scanner.Bytes()
		out.Write(line)
		out.WriteByte('\n')
		if job.OnLine != nil {
			job.OnLine(line)
		}
	}
	if err := scanner.Err(); err != nil {
		r.logger.Warn("reading codex stdout", "error", err)
	}

	waitErr := cmd.Wait()
	output := &Output{
		Stdout:   out.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}

	if runCtx.Err() == context.DeadlineExceeded {
		return output, fmt.Errorf("%w after %s", ErrTimeout, timeout)
	}
	if err := ctx.Err(); err != nil {
		return output, err
	}
	if waitErr != nil {
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			return output, &ExitError{
				Code:   exitErr.ExitCode(),
				Stderr: output.Stderr,
				Stdout: output.Stdout,
			}
		}
		return output, fmt.Errorf("waiting for codex: %w", waitErr)
	}
	return output, nil
}
