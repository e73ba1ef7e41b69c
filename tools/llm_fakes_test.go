package tools

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/corestack/agentcore/internal/llm"
	"github.com/corestack/agentcore/internal/toolregistry"
)

// fakeProvider is a scripted llm.Provider returning one canned response
// (or error) per call, so tool tests can drive a nested model call
// without reaching the network.
type fakeProvider struct {
	name  string
	resp  *llm.Response
	err   error
	calls int
}

func (p *fakeProvider) Name() string { return p.name }

func (p *fakeProvider) Generate(ctx context.Context, req llm.Request) (*llm.Response, error) {
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	return p.resp, nil
}

func (p *fakeProvider) GenerateStreaming(ctx context.Context, req llm.Request) (<-chan llm.StreamChunk, error) {
	return nil, fmt.Errorf("fakeProvider: streaming not supported")
}

func (p *fakeProvider) MaxContextTokens() int { return 100000 }
func (p *fakeProvider) Close() error          { return nil }

func newFakeClient(t *testing.T, provider *fakeProvider) *llm.Client {
	t.Helper()
	client, err := llm.NewClient(llm.NewRetryManager(llm.RetryConfig{MaxRetries: 0}), provider)
	require.NoError(t, err)
	return client
}

// fakeTool is a scripted toolregistry.Tool with a fixed name and
// result, used to exercise dispatch (plan runtime, delegate loop)
// without touching the filesystem or a real tool implementation.
type fakeTool struct {
	name   string
	result toolregistry.Result
	err    error
}

func (t *fakeTool) Info() toolregistry.Info {
	return toolregistry.Info{Name: t.name, Description: "fake", Parameters: llm.JSONSchema{Type: "object"}}
}

func (t *fakeTool) Execute(ctx context.Context, args map[string]interface{}) (toolregistry.Result, error) {
	return t.result, t.err
}
