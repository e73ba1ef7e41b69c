package llm

import (
	"context"
	"fmt"
	"time"
)

// Client fronts a primary provider and an ordered list of fallback
// providers with a shared RetryManager. On a non-retryable or
// retry-exhausted error from one provider it moves to the next.
type Client struct {
	providers []Provider
	retry     *RetryManager
	timeouts  TimeoutConfig
}

// NewClient builds a Client. The first provider is primary; the rest
// are tried in order on failure. Per-call and per-operation timeouts
// are loaded from the environment.
func NewClient(retry *RetryManager, providers ...Provider) (*Client, error) {
	if len(providers) == 0 {
		return nil, fmt.Errorf("llm: at least one provider is required")
	}
	if retry == nil {
		retry = NewRetryManager(DefaultRetryConfig())
	}
	return &Client{providers: providers, retry: retry, timeouts: LoadTimeoutConfig()}, nil
}

// MaxContextTokens returns the primary provider's context window, used
// by callers (the agent loop's proactive-compaction check) that need
// to size a token budget against the backend actually in use.
func (c *Client) MaxContextTokens() int {
	return c.providers[0].MaxContextTokens()
}

// Generate tries each provider in order, retrying within each via the
// RetryManager, and returns the first success. A context-overflow
// error is returned immediately without trying the next provider,
// since overflow is a property of the request, not the backend. The
// whole call is bounded by OperationTimeout; each individual provider
// attempt is additionally bounded by RequestTimeout.
func (c *Client) Generate(ctx context.Context, req Request) (*Response, string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeouts.OperationTimeout)
	defer cancel()

	var lastErr error
	for _, p := range c.providers {
		resp, err := c.retry.Do(ctx, func(int) (*Response, error) {
			reqCtx, reqCancel := context.WithTimeout(ctx, c.timeouts.RequestTimeout)
			defer reqCancel()
			return p.Generate(reqCtx, req)
		})
		if err == nil {
			return resp, p.Name(), nil
		}
		if classified, ok := err.(*ClassifiedError); ok && classified.Overflow {
			return nil, p.Name(), err
		}
		lastErr = err
	}
	return nil, "", fmt.Errorf("llm: all providers exhausted: %w", lastErr)
}

// activityTimeout returns the configured stream-stall timeout, which
// GenerateStreaming uses to detect and cancel a stalled stream.
func (c *Client) activityTimeout() time.Duration { return c.timeouts.StreamActivityTimeout }

// GenerateStreaming streams from the primary provider only; it does not
// fall back to the other providers. A stream that stalls for longer
// than StreamActivityTimeout between chunks is cancelled and ends with
// a final Done chunk; the stall is not reported as an error and the
// request is not retried.
func (c *Client) GenerateStreaming(ctx context.Context, req Request) (<-chan StreamChunk, error) {
	ctx, cancel := context.WithCancel(ctx)
	upstream, err := c.providers[0].GenerateStreaming(ctx, req)
	if err != nil {
		cancel()
		return nil, err
	}

	out := make(chan StreamChunk)
	go func() {
		defer cancel()
		defer close(out)
		timer := time.NewTimer(c.activityTimeout())
		defer timer.Stop()
		for {
			select {
			case chunk, ok := <-upstream:
				if !ok {
					return
				}
				if !timer.Stop() {
					<-timer.C
				}
				timer.Reset(c.activityTimeout())
				out <- chunk
				if chunk.Done {
					return
				}
			case <-timer.C:
				out <- StreamChunk{Done: true}
				return
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// Providers returns the configured provider chain, primary first.
func (c *Client) Providers() []Provider { return c.providers }
