package tools

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corestack/agentcore/internal/llm"
)

func TestLLMTool_ReturnsModelResponse(t *testing.T) {
	provider := &fakeProvider{name: "fake", resp: &llm.Response{
		Content: "a haiku about go",
		Usage:   llm.Usage{PromptTokens: 10, TotalTokens: 15},
	}}
	tool := NewLLMTool(newFakeClient(t, provider), "fake-model")

	res, err := tool.Execute(context.Background(), map[string]interface{}{
		"instruction": "summarize", "data": "some long text",
	})

	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "a haiku about go", res.Content)
	assert.Equal(t, "fake", res.Metadata["provider"])
	assert.Equal(t, 1, provider.calls)
}

func TestLLMTool_RequiresInstruction(t *testing.T) {
	tool := NewLLMTool(newFakeClient(t, &fakeProvider{name: "fake"}), "fake-model")

	res, err := tool.Execute(context.Background(), map[string]interface{}{"data": "x"})

	require.NoError(t, err)
	assert.False(t, res.Success)
}

func TestLLMTool_SurfacesProviderErrorAsFailure(t *testing.T) {
	provider := &fakeProvider{name: "fake", err: assert.AnError}
	tool := NewLLMTool(newFakeClient(t, provider), "fake-model")

	res, err := tool.Execute(context.Background(), map[string]interface{}{
		"instruction": "summarize", "data": "x",
	})

	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "nested LLM call failed")
}
