package ollama

import (
	"strings"

	"github.com/kirillkom/doc-chat-service/internal/core/domain"
)

// renderTurns flattens the conversation for /api/generate, which takes a single prompt.
// A lone user turn is sent verbatim.
func renderTurns(turns []domain.ChatTurn) string {
	if len(turns) == 1 && turns[0].Role == domain.RoleUser {
		return turns[0].Content
	}
	var b strings.Builder
	for _, turn := range turns {
		switch turn.Role {
		case domain.RoleAssistant:
			b.WriteString("Assistant: ")
		default:
			b.WriteString("User: ")
		}
		b.WriteString(strings.TrimSpace(turn.Content))
		b.WriteString("\n\n")
	}
	b.WriteString("Assistant:")
	return b.String()
}
