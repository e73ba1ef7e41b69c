package llm

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicProvider implements Provider against the official Anthropic
// Go SDK.
type AnthropicProvider struct {
	client anthropic.Client
	model  string
	maxCtx int
}

// NewAnthropicProvider builds a provider for the given model and API
// key. maxContextTokens is the model's context window, used by the
// history compactor to decide when to shrink.
func NewAnthropicProvider(apiKey, model string, maxContextTokens int) *AnthropicProvider {
	client := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &AnthropicProvider{client: client, model: model, maxCtx: maxContextTokens}
}

func (p *AnthropicProvider) Name() string          { return "anthropic" }
func (p *AnthropicProvider) MaxContextTokens() int { return p.maxCtx }
func (p *AnthropicProvider) Close() error          { return nil }

func (p *AnthropicProvider) Generate(ctx context.Context, req Request) (*Response, error) {
	params := p.buildParams(req)

	msg, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return nil, classifyAnthropicError(err)
	}

	resp := &Response{Model: string(msg.Model), StopReason: string(msg.StopReason)}
	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			resp.Content += block.Text
		case "tool_use":
			args, _ := json.Marshal(block.Input)
			resp.ToolCalls = append(resp.ToolCalls, ToolCall{
				ID:        block.ID,
				Name:      block.Name,
				Arguments: string(args),
			})
		}
	}
	resp.Usage = Usage{
		PromptTokens:     int(msg.Usage.InputTokens),
		CompletionTokens: int(msg.Usage.OutputTokens),
		TotalTokens:      int(msg.Usage.InputTokens + msg.Usage.OutputTokens),
	}
	return resp, nil
}

func (p *AnthropicProvider) GenerateStreaming(ctx context.Context, req Request) (<-chan StreamChunk, error) {
	params := p.buildParams(req)
	out := make(chan StreamChunk)

	go func() {
		defer close(out)
		stream := p.client.Messages.NewStreaming(ctx, params)
		for stream.Next() {
			event := stream.Current()
			switch event.Type {
			case "content_block_delta":
				delta := event.AsContentBlockDelta().Delta
				if delta.Text != "" {
					out <- StreamChunk{ContentDelta: delta.Text}
				}
			case "message_stop":
				out <- StreamChunk{Done: true}
			}
		}
		if err := stream.Err(); err != nil {
			out <- StreamChunk{Done: true}
		}
	}()

	return out, nil
}

func (p *AnthropicProvider) buildParams(req Request) anthropic.MessageNewParams {
	model := req.Model
	if model == "" {
		model = p.model
	}

	var system string
	var messages []anthropic.MessageParam
	for _, m := range req.Messages {
		switch m.Role {
		case "system":
			system = m.Content
		case "user":
			messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		case "assistant":
			messages = append(messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		}
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		Messages:  messages,
		MaxTokens: int64(maxTokens),
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	if req.Temperature > 0 {
		params.Temperature = anthropic.Float(req.Temperature)
	}

	for _, tool := range req.Tools {
		params.Tools = append(params.Tools, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        tool.Name,
				Description: anthropic.String(tool.Description),
				InputSchema: anthropic.ToolInputSchemaParam{
					Properties: tool.Parameters.Properties,
				},
			},
		})
	}

	return params
}

// classifyAnthropicError turns an SDK error into a *ClassifiedError so
// the retry manager and agent loop don't need Anthropic-specific
// knowledge.
func classifyAnthropicError(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		status := apiErr.StatusCode
		message := apiErr.Error()
		classified := &ClassifiedError{Err: err}
		if IsOverflowErrorText(message) {
			classified.Overflow = true
			return classified
		}
		classified.Retryable = status == 429 || status >= 500
		return classified
	}
	return &ClassifiedError{Err: err, Retryable: true}
}

// IsOverflowErrorText applies the same substring heuristic used by the
// history compactor, kept local so this package doesn't import
// internal/history.
func IsOverflowErrorText(message string) bool {
	lower := strings.ToLower(message)
	for _, marker := range []string{
		"context_length_exceeded",
		"prompt is too long",
		"maximum context length",
		"input token count exceeds limit",
		"tokens exceed",
		"too long",
		"over limit",
	} {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}
