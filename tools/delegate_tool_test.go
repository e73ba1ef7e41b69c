package tools

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corestack/agentcore/internal/agentloop"
	"github.com/corestack/agentcore/internal/llm"
	"github.com/corestack/agentcore/internal/toolregistry"
)

func TestDelegateTool_RunsSubordinateLoopToCompletion(t *testing.T) {
	provider := &fakeProvider{name: "fake", resp: &llm.Response{Content: "subtask done"}}
	reg := toolregistry.New()
	tool := NewDelegateTool(newFakeClient(t, provider), reg, nil, agentloop.Config{Model: "fake-model"}, 3)

	res, err := tool.Execute(context.Background(), map[string]interface{}{"task": "do the subtask"})

	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "subtask done", res.Content)
	assert.Equal(t, agentloop.ReasonCompletion, res.Metadata["reason"])
}

func TestDelegateTool_RequiresTask(t *testing.T) {
	provider := &fakeProvider{name: "fake"}
	reg := toolregistry.New()
	tool := NewDelegateTool(newFakeClient(t, provider), reg, nil, agentloop.Config{Model: "fake-model"}, 3)

	res, err := tool.Execute(context.Background(), map[string]interface{}{})

	require.NoError(t, err)
	assert.False(t, res.Success)
}

func TestDelegateTool_RefusesWhenRecursionBudgetExhausted(t *testing.T) {
	provider := &fakeProvider{name: "fake", resp: &llm.Response{Content: "should not be reached"}}
	reg := toolregistry.New()
	tool := NewDelegateTool(newFakeClient(t, provider), reg, nil, agentloop.Config{Model: "fake-model"}, 3)

	ctx := context.WithValue(context.Background(), depthKey, 0)
	res, err := tool.Execute(ctx, map[string]interface{}{"task": "do it"})

	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "recursion budget exhausted")
	assert.Equal(t, 0, provider.calls)
}

func TestDelegateTool_DecrementsDepthForNestedDelegateCalls(t *testing.T) {
	provider := &fakeProvider{name: "fake", resp: &llm.Response{Content: "ok"}}
	reg := toolregistry.New()
	tool := NewDelegateTool(newFakeClient(t, provider), reg, nil, agentloop.Config{Model: "fake-model"}, 3)

	ctx := context.WithValue(context.Background(), depthKey, 1)
	res, err := tool.Execute(ctx, map[string]interface{}{"task": "last hop"})

	require.NoError(t, err)
	assert.True(t, res.Success)
}
