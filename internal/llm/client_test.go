package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedProvider struct {
	name  string
	resp  *Response
	err   error
	calls int
}

func (p *scriptedProvider) Name() string { return p.name }

func (p *scriptedProvider) Generate(ctx context.Context, req Request) (*Response, error) {
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	return p.resp, nil
}

func (p *scriptedProvider) GenerateStreaming(ctx context.Context, req Request) (<-chan StreamChunk, error) {
	ch := make(chan StreamChunk, 1)
	ch <- StreamChunk{Done: true}
	close(ch)
	return ch, nil
}

func (p *scriptedProvider) MaxContextTokens() int { return 100000 }
func (p *scriptedProvider) Close() error          { return nil }

func fastRetry() *RetryManager {
	return NewRetryManager(RetryConfig{MaxRetries: 1, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond})
}

func TestClient_RequiresAtLeastOneProvider(t *testing.T) {
	_, err := NewClient(fastRetry())
	assert.Error(t, err)
}

func TestClient_FallsBackToSecondaryProvider(t *testing.T) {
	primary := &scriptedProvider{name: "primary", err: &ClassifiedError{Err: errors.New("auth failed")}}
	secondary := &scriptedProvider{name: "secondary", resp: &Response{Content: "from secondary"}}

	client, err := NewClient(fastRetry(), primary, secondary)
	require.NoError(t, err)

	resp, provider, err := client.Generate(context.Background(), Request{})
	require.NoError(t, err)
	assert.Equal(t, "secondary", provider)
	assert.Equal(t, "from secondary", resp.Content)
	assert.Equal(t, 1, primary.calls)
}

func TestClient_OverflowDoesNotTrySecondary(t *testing.T) {
	primary := &scriptedProvider{name: "primary", err: &ClassifiedError{Err: errors.New("prompt is too long"), Overflow: true}}
	secondary := &scriptedProvider{name: "secondary", resp: &Response{Content: "unused"}}

	client, err := NewClient(fastRetry(), primary, secondary)
	require.NoError(t, err)

	_, _, err = client.Generate(context.Background(), Request{})
	require.Error(t, err)
	assert.Equal(t, 0, secondary.calls)
}

func TestClient_AllProvidersExhausted(t *testing.T) {
	primary := &scriptedProvider{name: "primary", err: &ClassifiedError{Err: errors.New("down")}}
	secondary := &scriptedProvider{name: "secondary", err: &ClassifiedError{Err: errors.New("also down")}}

	client, err := NewClient(fastRetry(), primary, secondary)
	require.NoError(t, err)

	_, _, err = client.Generate(context.Background(), Request{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "all providers exhausted")
}

func TestClient_MaxContextTokensComesFromPrimary(t *testing.T) {
	primary := &scriptedProvider{name: "primary", resp: &Response{}}
	client, err := NewClient(fastRetry(), primary)
	require.NoError(t, err)
	assert.Equal(t, 100000, client.MaxContextTokens())
}
