// Package gateway orchestrates the codex-gateway server components.
//
// # Overview
//
// The gateway package is the central coordinator: it owns the HTTP server,
// the codex subprocess runner, and the optional subsystems (run-history
// store, bearer auth, tailscale listener). One Gateway serves any number of
// concurrent completion requests; each request runs its own subprocess and
// shares nothing with its neighbors.
//
// # HTTP API
//
// Routes, installed in api.go:
//
//   - POST /completion - Render a transcript, run codex, return the result
//   - GET /health - Liveness check, independent of in-flight work
//   - GET / - Service descriptor listing the endpoints
//   - GET /history - Recent runs (only when a database path is configured)
//   - GET /history/{id} - One run
//   - anything else - 404 {"error":"Not Found"}
//
// A completion response is a single JSON document:
//
//	{"content":"...","tool_calls":[...],"events":[...]}
//
// Failures map to 400 for bad input and 500 for subprocess trouble, always
// as {"error": "..."}.
//
// # Request Lifecycle
//
//  1. Decode and validate the body (1 MB cap).
//  2. Build the text prompt from system_prompt plus messages.
//  3. Run the codex subprocess, bounded by timeout_ms or the default.
//  4. Parse buffered stdout into content, tool calls, and events.
//  5. Record the run in history when the store is enabled.
//
// The subprocess deliberately runs on a fresh context: a client hanging up
// early never kills the run.
//
// # Lifecycle
//
// Start the gateway:
//
//	gw, err := gateway.New(cfg, logger)
//	err = gw.Run(ctx)
//
// Run blocks until the context is canceled, then drains in-flight requests
// for up to five seconds and closes the tsnet server and history store.
//
// # Tailscale
//
// With tailscale.enabled, the same HTTP handler also serves a tsnet
// listener: plain :80 on the tailnet, :443 with LocalClient certificates
// when https is set, or a public Funnel listener when funnel is set.
package gateway
