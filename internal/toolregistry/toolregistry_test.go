package toolregistry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corestack/agentcore/internal/llm"
)

type stubTool struct {
	name   string
	async  bool
	result Result
	panics bool
}

func (t *stubTool) Info() Info {
	return Info{Name: t.name, Description: "stub", Async: t.async, Parameters: llm.JSONSchema{Type: "object"}}
}

func (t *stubTool) Execute(ctx context.Context, args map[string]interface{}) (Result, error) {
	if t.panics {
		panic("stub blew up")
	}
	return t.result, nil
}

func TestRegistry_RegisterAndCall(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(&stubTool{name: "echo", result: Result{Success: true, Content: "hi"}}))

	res, err := r.Call(context.Background(), "echo", nil)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "hi", res.Content)
	assert.Equal(t, "echo", res.ToolName)
}

func TestRegistry_RejectsDuplicateAndUnnamedTools(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(&stubTool{name: "echo"}))
	assert.Error(t, r.Register(&stubTool{name: "echo"}))
	assert.Error(t, r.Register(&stubTool{name: ""}))
}

func TestRegistry_UnknownToolReturnsFailedResultNotError(t *testing.T) {
	r := New()
	res, err := r.Call(context.Background(), "missing", nil)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "unknown tool")
}

func TestRegistry_PanicIsNormalizedIntoFailedResult(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(&stubTool{name: "boom", panics: true}))

	res, err := r.Call(context.Background(), "boom", nil)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "panicked")
}

func TestRegistry_IsAsyncDefaultsTrueForUnknownNames(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(&stubTool{name: "sync-tool", async: false}))
	require.NoError(t, r.Register(&stubTool{name: "async-tool", async: true}))

	assert.False(t, r.IsAsync("sync-tool"))
	assert.True(t, r.IsAsync("async-tool"))
	assert.True(t, r.IsAsync("never-registered"))
}
