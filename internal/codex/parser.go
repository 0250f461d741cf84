// ABOUTME: Parses the JSON-lines event stream produced by codex exec.
// ABOUTME: Accumulates final content, tool calls, and the raw event list.

package codex

import (
	"encoding/json"
	"strings"
)

// Event kinds and message types observed on the --experimental-json stream.
const (
	KindCodexEvent = "codex_event"

	TypeAgentMessage      = "agent_message"
	TypeAgentMessageDelta = "agent_message_delta"
	TypeAgentReasoning    = "agent_reasoning"
	TypeTaskComplete      = "task_complete"
)

// Msg is the agent payload nested inside a codex event. Message and
// LastAgentMessage are pointers because presence matters: an event without
// the field must not clear previously accumulated content.
type Msg struct {
	Type             string  `json:"type"`
	Message          *string `json:"message"`
	Delta            string  `json:"delta"`
	Text             string  `json:"text"`
	LastAgentMessage *string `json:"last_agent_message"`
}

// Completion is the parsed outcome of one codex run. ToolCalls and Events
// are always non-nil so they marshal as [] rather than null.
type Completion struct {
	Content   string            `json:"content"`
	ToolCalls []json.RawMessage `json:"tool_calls"`
	Events    []json.RawMessage `json:"events"`
}

// envelope is the top-level shape of one stdout line. Enveloped events set
// Kind and Payload; raw CLI lines carry Msg directly; prompt echoes set
// Prompt.
type envelope struct {
	Kind    string          `json:"kind"`
	Payload json.RawMessage `json:"payload"`
	Msg     json.RawMessage `json:"msg"`
	Prompt  *string         `json:"prompt"`
}

type payload struct {
	Msg json.RawMessage `json:"msg"`
}

// Parse walks the buffered stdout of a codex run line by line and
// accumulates the completion. Lines that are blank, fail to parse as JSON,
// or echo the submitted prompt are skipped. Later agent messages overwrite
// earlier ones; a task_complete message is authoritative.
func Parse(stdout, submittedPrompt string) *Completion {
	result := &Completion{
		ToolCalls: []json.RawMessage{},
		Events:    []json.RawMessage{},
	}

	for _, line := range strings.Split(stdout, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}

		var env envelope
		if err := json.Unmarshal([]byte(trimmed), &env); err != nil {
			continue
		}
		if env.Prompt != nil && *env.Prompt == submittedPrompt {
			continue
		}

		eventRaw, msgRaw, ok := normalize(trimmed, env)
		if !ok {
			continue
		}

		var msg Msg
		if err := json.Unmarshal(msgRaw, &msg); err != nil {
			continue
		}

		result.Events = append(result.Events, eventRaw)

		switch {
		case msg.Type == TypeAgentMessage:
			if msg.Message != nil {
				result.Content = *msg.Message
			}
		case msg.Type == TypeTaskComplete:
			if msg.LastAgentMessage != nil {
				result.Content = *msg.LastAgentMessage
			}
		case isToolCall(msg.Type):
			result.ToolCalls = append(result.ToolCalls, msgRaw)
		}
	}

	return result
}

// DecodeLine inspects a single stdout line and, when it is a codex event,
// returns the decoded message plus its raw payload. Used for live rendering
// while a run streams; Parse remains the authority on accumulation.
func DecodeLine(line []byte) (Msg, json.RawMessage, bool) {
	trimmed := strings.TrimSpace(string(line))
	if trimmed == "" {
		return Msg{}, nil, false
	}

	var env envelope
	if err := json.Unmarshal([]byte(trimmed), &env); err != nil {
		return Msg{}, nil, false
	}

	_, msgRaw, ok := normalize(trimmed, env)
	if !ok {
		return Msg{}, nil, false
	}

	var msg Msg
	if err := json.Unmarshal(msgRaw, &msg); err != nil {
		return Msg{}, nil, false
	}
	return msg, msgRaw, true
}

// normalize reduces the two accepted line shapes to (event, msg) form.
// Enveloped lines pass through verbatim; bare msg lines from the raw CLI
// are wrapped into the envelope so downstream consumers see one shape.
func normalize(line string, env envelope) (eventRaw, msgRaw json.RawMessage, ok bool) {
	switch {
	case env.Kind == KindCodexEvent && len(env.Payload) > 0:
		var p payload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return nil, nil, false
		}
		if !isJSONObject(p.Msg) {
			return nil, nil, false
		}
		return json.RawMessage(line), p.Msg, true

	case env.Kind == "" && isJSONObject(env.Msg):
		wrapped, err := json.Marshal(struct {
			Kind    string          `json:"kind"`
			Payload json.RawMessage `json:"payload"`
		}{Kind: KindCodexEvent, Payload: json.RawMessage(line)})
		if err != nil {
			return nil, nil, false
		}
		return wrapped, env.Msg, true

	default:
		return nil, nil, false
	}
}

// isToolCall reports whether a message type marks a tool-call boundary,
// e.g. exec_command_begin, mcp_tool_call_end, patch_apply_begin.
func isToolCall(msgType string) bool {
	return strings.HasSuffix(msgType, "_begin") || strings.HasSuffix(msgType, "_end")
}

func isJSONObject(raw json.RawMessage) bool {
	s := strings.TrimSpace(string(raw))
	return strings.HasPrefix(s, "{")
}
