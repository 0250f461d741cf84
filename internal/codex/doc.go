// Package codex drives the codex CLI subprocess and parses its event stream.
//
// # Runner
//
// Runner executes one Job per call to Run:
//
//	codex exec --experimental-json --skip-git-repo-check [-m MODEL] [flags...] -
//
// The prompt goes in on stdin (the trailing "-" argument selects stdin),
// stdin is closed, and both output streams are buffered in full. Each run
// ends in exactly one of four outcomes: success, start failure, ErrTimeout,
// or *ExitError.
//
// # Parser
//
// Parse walks the buffered stdout line by line. The stream is JSON-lines;
// each event looks like:
//
//	{"kind":"codex_event","payload":{"msg":{"type":"agent_message","message":"..."}}}
//
// Raw CLI output that carries the msg object at the top level is normalized
// into the same envelope. Blank lines, unparseable lines, and prompt echoes
// are skipped. agent_message sets the content, task_complete overrides it,
// and *_begin/*_end message types accumulate as tool calls.
package codex
