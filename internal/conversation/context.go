package conversation

import (
	"strings"

	"github.com/memohai/leadflow/internal/chat"
)

// Build returns the model messages for current. history is newest first, as
// returned by the interaction log. At most MaxTurns turns are used; they are
// emitted oldest first as user/assistant pairs and current is appended last.
func Build(history []Turn, current string) []chat.Message {
	if len(history) > MaxTurns {
		history = history[:MaxTurns]
	}
	messages := make([]chat.Message, 0, 2*len(history)+1)
	for i := len(history) - 1; i >= 0; i-- {
		turn := history[i]
		messages = append(messages,
			chat.Message{Role: chat.RoleUser, Content: turn.Message},
			chat.Message{Role: chat.RoleAssistant, Content: turn.Reply},
		)
	}
	return append(messages, chat.Message{Role: chat.RoleUser, Content: current})
}

// RecentReplies returns up to n non-empty replies from history, newest first.
func RecentReplies(history []Turn, n int) []string {
	out := make([]string, 0, n)
	for _, turn := range history {
		if len(out) == n {
			break
		}
		if strings.TrimSpace(turn.Reply) == "" {
			continue
		}
		out = append(out, turn.Reply)
	}
	return out
}
