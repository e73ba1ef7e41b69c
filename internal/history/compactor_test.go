package history

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildSegmentMessages(t *testing.T, userTurns int, monologuesPerTurn int) []Message {
	t.Helper()
	var messages []Message
	messages = append(messages, Message{Role: RoleSystem, Content: "system prompt"})

	for i := 0; i < userTurns; i++ {
		messages = append(messages, Message{Role: RoleUser, Content: "user turn"})
		for j := 0; j < monologuesPerTurn; j++ {
			messages = append(messages, Message{Role: RoleAssistant, Content: "thinking"})
		}
		messages = append(messages, Message{Role: RoleUser, Content: "tool result", IsToolResult: true})
	}
	return messages
}

func TestSegments_AnchorsOnGenuineUserTurns(t *testing.T) {
	messages := buildSegmentMessages(t, 3, 3)
	segs := Segments(messages)
	require.Len(t, segs, 3)
	for _, s := range segs {
		assert.Equal(t, 5, s.Len())
	}
}

func TestSegments_SkipsLeadingSystemMessage(t *testing.T) {
	messages := buildSegmentMessages(t, 1, 1)
	segs := Segments(messages)
	require.Len(t, segs, 1)
	assert.Equal(t, 1, segs[0].Start)
}

func TestCompactor_PreservesRecentSegmentsUntouched(t *testing.T) {
	messages := buildSegmentMessages(t, 5, 3)
	c := NewCompactor()
	out := c.Compact(messages)

	// system(1) + 4 old segments compacted to 2 each (8) + 1 recent
	// segment kept in full (5) = 14.
	assert.Len(t, out, 14)
}

func TestCompactor_KeepsOpeningAndFinalMessageOfOldSegments(t *testing.T) {
	messages := buildSegmentMessages(t, 2, 2)
	c := NewCompactor()
	out := c.Compact(messages)

	// system + old segment collapsed to 2 + recent segment in full (4).
	require.Len(t, out, 7)
	assert.Equal(t, RoleSystem, out[0].Role)
	assert.Equal(t, "user turn", out[1].Content)
	assert.True(t, out[2].IsToolResult)
}

func TestCompactor_StripsInternalRemindersEverywhere(t *testing.T) {
	messages := buildSegmentMessages(t, 1, 1)
	messages = append(messages[:2], append([]Message{{Role: RoleUser, IsInternalReminder: true, Content: "reminder"}}, messages[2:]...)...)

	c := NewCompactor()
	out := c.Compact(messages)
	for _, m := range out {
		assert.False(t, m.IsInternalReminder)
	}
}

func TestCompactor_NoOpWhenWithinKeepWindow(t *testing.T) {
	messages := buildSegmentMessages(t, 1, 2)
	c := NewCompactor()
	out := c.Compact(messages)
	assert.Len(t, out, len(messages))
}

func TestIsOverflowError(t *testing.T) {
	cases := []struct {
		message string
		want    bool
	}{
		{"Error: context_length_exceeded", true},
		{"This model's maximum context length is 200000 tokens", true},
		{"rate limit exceeded", false},
		{"", false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, IsOverflowError(tc.message), tc.message)
	}
}

func TestHistory_AppendAndClone(t *testing.T) {
	h, err := New("session-1")
	require.NoError(t, err)

	h.Append(RoleSystem, "system prompt", nil)
	h.Append(RoleUser, "hello", nil)
	h.AppendInternalReminder("remember the schema")
	h.AppendToolResult("tool output", nil)

	clone := h.Clone(true, true, "")
	assert.Equal(t, "session-1", clone.SessionID)
	assert.Len(t, clone.Snapshot(), 2)
}

func TestHistory_RejectsEmptySessionID(t *testing.T) {
	_, err := New("")
	assert.Error(t, err)
}
