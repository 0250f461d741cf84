// ABOUTME: Renders a chat transcript into the single text prompt fed to codex.
// ABOUTME: Maps message roles to block labels and appends the assistant cue.

// Package prompt builds the plain-text prompt submitted to the codex CLI.
package prompt

import "strings"

// Message is one conversation turn as submitted by a client.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// roleLabels maps normalized roles to their prompt block labels. Anything
// not listed here renders as User.
var roleLabels = map[string]string{
	"system":    "System",
	"user":      "User",
	"assistant": "Assistant",
}

// Build renders the optional system prompt and the message list into the
// text handed to codex on stdin. Messages whose content trims to empty are
// dropped. The prompt always ends with a bare "Assistant:" line so the
// model continues in the assistant voice.
func Build(systemPrompt string, messages []Message) string {
	blocks := make([]string, 0, len(messages)+2)

	if sys := strings.TrimSpace(systemPrompt); sys != "" {
		blocks = append(blocks, "System:\n"+sys)
	}

	for _, m := range messages {
		content := strings.TrimSpace(m.Content)
		if content == "" {
			continue
		}
		blocks = append(blocks, roleLabel(m.Role)+":\n"+content)
	}

	blocks = append(blocks, "Assistant:")
	return strings.Join(blocks, "\n\n")
}

func roleLabel(role string) string {
	if label, ok := roleLabels[strings.ToLower(strings.TrimSpace(role))]; ok {
		return label
	}
	return "User"
}
