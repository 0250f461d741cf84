// ABOUTME: Minimal fake codex CLI for E2E testing — speaks the exec --experimental-json contract.
// ABOUTME: Usage: fake-codex exec --experimental-json [-m MODEL] - (prompt on stdin)
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

// Environment knobs:
//
//	FAKE_CODEX_MESSAGE   final assistant message (default: echo of the prompt)
//	FAKE_CODEX_SLEEP_MS  delay before the reply, for timeout testing
//	FAKE_CODEX_EXIT      exit code (default 0)
//	FAKE_CODEX_STDERR    text written to stderr before exiting
func main() {
	if err := run(os.Args[1:]); err != nil {
		log.Fatal(err)
	}
}

type msg map[string]any

func run(args []string) error {
	var model string
	for i := 0; i < len(args); i++ {
		if args[i] == "-m" || args[i] == "--model" {
			if i+1 < len(args) {
				model = args[i+1]
				i++
			}
		}
	}

	// The real CLI reads the prompt from stdin when the trailing arg is "-".
	promptBytes, err := io.ReadAll(os.Stdin)
	if err != nil {
		return fmt.Errorf("reading prompt: %w", err)
	}
	promptText := strings.TrimSpace(string(promptBytes))

	if s := os.Getenv("FAKE_CODEX_STDERR"); s != "" {
		fmt.Fprintln(os.Stderr, s)
	}

	if v := os.Getenv("FAKE_CODEX_SLEEP_MS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid FAKE_CODEX_SLEEP_MS: %q", v)
		}
		time.Sleep(time.Duration(n) * time.Millisecond)
	}

	reply := os.Getenv("FAKE_CODEX_MESSAGE")
	if reply == "" {
		reply = echoReply(promptText, model)
	}

	out := json.NewEncoder(os.Stdout)
	emit := func(m msg) error {
		return out.Encode(msg{"kind": "codex_event", "payload": msg{"msg": m}})
	}

	if err := emit(msg{"type": "agent_reasoning", "text": "Looking at the prompt."}); err != nil {
		return err
	}
	if err := emit(msg{"type": "exec_command_begin", "command": []string{"echo", "fake"}}); err != nil {
		return err
	}
	if err := emit(msg{"type": "exec_command_end", "exit_code": 0}); err != nil {
		return err
	}

	// Stream the reply in two chunks like the real CLI does.
	if reply != "" {
		mid := (len(reply) + 1) / 2
		for _, delta := range []string{reply[:mid], reply[mid:]} {
			if delta == "" {
				continue
			}
			if err := emit(msg{"type": "agent_message_delta", "delta": delta}); err != nil {
				return err
			}
		}
	}
	if err := emit(msg{"type": "agent_message", "message": reply}); err != nil {
		return err
	}
	if err := emit(msg{"type": "task_complete", "last_agent_message": reply}); err != nil {
		return err
	}

	if v := os.Getenv("FAKE_CODEX_EXIT"); v != "" {
		code, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid FAKE_CODEX_EXIT: %q", v)
		}
		if code != 0 {
			os.Exit(code)
		}
	}
	return nil
}

// echoReply answers with the last user block so E2E assertions can round-trip
// request content through the whole stack.
func echoReply(promptText, model string) string {
	lastUser := promptText
	for _, block := range strings.Split(promptText, "\n\n") {
		if rest, ok := strings.CutPrefix(block, "User:\n"); ok {
			lastUser = strings.TrimSpace(rest)
		}
	}

	reply := fmt.Sprintf("Echo: %s", lastUser)
	if model != "" {
		reply += fmt.Sprintf(" (model %s)", model)
	}
	return reply
}
