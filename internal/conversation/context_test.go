package conversation

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memohai/leadflow/internal/chat"
)

func newestFirst(n int) []Turn {
	turns := make([]Turn, n)
	for i := 0; i < n; i++ {
		// index 0 is the newest turn, numbered n
		seq := n - i
		turns[i] = Turn{Message: fmt.Sprintf("q%d", seq), Reply: fmt.Sprintf("a%d", seq)}
	}
	return turns
}

func TestBuildEmptyHistory(t *testing.T) {
	t.Parallel()

	got := Build(nil, "Salom, narxi qancha?")
	require.Len(t, got, 1)
	assert.Equal(t, chat.Message{Role: chat.RoleUser, Content: "Salom, narxi qancha?"}, got[0])
}

func TestBuildChronologicalOrder(t *testing.T) {
	t.Parallel()

	got := Build(newestFirst(3), "now")
	want := []chat.Message{
		{Role: chat.RoleUser, Content: "q1"},
		{Role: chat.RoleAssistant, Content: "a1"},
		{Role: chat.RoleUser, Content: "q2"},
		{Role: chat.RoleAssistant, Content: "a2"},
		{Role: chat.RoleUser, Content: "q3"},
		{Role: chat.RoleAssistant, Content: "a3"},
		{Role: chat.RoleUser, Content: "now"},
	}
	assert.Equal(t, want, got)
}

func TestBuildCapsAtMaxTurns(t *testing.T) {
	t.Parallel()

	got := Build(newestFirst(15), "now")
	require.Len(t, got, 2*MaxTurns+1)
	// turns 1..3 are older than the window
	assert.Equal(t, "q4", got[0].Content)
	assert.Equal(t, "a15", got[len(got)-2].Content)
	assert.Equal(t, "now", got[len(got)-1].Content)
	for _, msg := range got {
		assert.NotContains(t, []string{"q1", "q2", "q3"}, msg.Content)
	}
}

func TestRecentReplies(t *testing.T) {
	t.Parallel()

	history := []Turn{
		{Reply: "a5"},
		{Reply: "  "},
		{Reply: "a3"},
		{Reply: "a2"},
		{Reply: "a1"},
	}
	assert.Equal(t, []string{"a5", "a3", "a2"}, RecentReplies(history, 3))
	assert.Empty(t, RecentReplies(nil, 3))
}
