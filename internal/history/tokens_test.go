package history

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenCounter_CountGrowsWithLength(t *testing.T) {
	tc, err := NewTokenCounter("gpt-4o")
	require.NoError(t, err)

	short := tc.Count("hello")
	long := tc.Count("hello, this is a much longer piece of text to encode")
	assert.Greater(t, long, short)
}

func TestTokenCounter_UnknownModelFallsBackToCl100kBase(t *testing.T) {
	tc, err := NewTokenCounter("claude-sonnet-4-20250514")
	require.NoError(t, err)
	assert.Positive(t, tc.Count("count these tokens"))
}

func TestTokenCounter_CountMessagesIncludesOverhead(t *testing.T) {
	tc, err := NewTokenCounter("gpt-4o")
	require.NoError(t, err)

	messages := []Message{
		{Role: RoleUser, Content: "hi"},
	}
	withOverhead := tc.CountMessages(messages)
	bareContent := tc.Count("hi") + tc.Count(RoleUser)
	assert.Greater(t, withOverhead, bareContent)
}

func TestTokenCounter_CountMessagesScalesWithMessageCount(t *testing.T) {
	tc, err := NewTokenCounter("gpt-4o")
	require.NoError(t, err)

	one := tc.CountMessages([]Message{{Role: RoleUser, Content: "hi"}})
	two := tc.CountMessages([]Message{
		{Role: RoleUser, Content: "hi"},
		{Role: RoleAssistant, Content: "hello there"},
	})
	assert.Greater(t, two, one)
}
