package llm

import (
	"context"
	"encoding/json"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIProvider implements Provider against sashabaranov/go-openai,
// used as the fallback backend behind Anthropic.
type OpenAIProvider struct {
	client *openai.Client
	model  string
	maxCtx int
}

// NewOpenAIProvider builds a provider for the given model and API key.
func NewOpenAIProvider(apiKey, model string, maxContextTokens int) *OpenAIProvider {
	return &OpenAIProvider{client: openai.NewClient(apiKey), model: model, maxCtx: maxContextTokens}
}

func (p *OpenAIProvider) Name() string          { return "openai" }
func (p *OpenAIProvider) MaxContextTokens() int { return p.maxCtx }
func (p *OpenAIProvider) Close() error          { return nil }

func (p *OpenAIProvider) Generate(ctx context.Context, req Request) (*Response, error) {
	params := p.buildParams(req, false)

	resp, err := p.client.CreateChatCompletion(ctx, params)
	if err != nil {
		return nil, classifyOpenAIError(err)
	}
	if len(resp.Choices) == 0 {
		return nil, &ClassifiedError{Err: errEmptyChoices}
	}

	choice := resp.Choices[0]
	out := &Response{
		Content:    choice.Message.Content,
		StopReason: string(choice.FinishReason),
		Model:      resp.Model,
		Usage: Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}
	for _, call := range choice.Message.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, ToolCall{
			ID:        call.ID,
			Name:      call.Function.Name,
			Arguments: call.Function.Arguments,
		})
	}
	return out, nil
}

func (p *OpenAIProvider) GenerateStreaming(ctx context.Context, req Request) (<-chan StreamChunk, error) {
	params := p.buildParams(req, true)
	stream, err := p.client.CreateChatCompletionStream(ctx, params)
	if err != nil {
		return nil, classifyOpenAIError(err)
	}

	out := make(chan StreamChunk)
	go func() {
		defer close(out)
		defer stream.Close()
		for {
			chunk, err := stream.Recv()
			if err != nil {
				out <- StreamChunk{Done: true}
				return
			}
			if len(chunk.Choices) == 0 {
				continue
			}
			delta := chunk.Choices[0].Delta
			out <- StreamChunk{ContentDelta: delta.Content}
		}
	}()
	return out, nil
}

func (p *OpenAIProvider) buildParams(req Request, stream bool) openai.ChatCompletionRequest {
	model := req.Model
	if model == "" {
		model = p.model
	}

	var messages []openai.ChatCompletionMessage
	for _, m := range req.Messages {
		messages = append(messages, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}

	params := openai.ChatCompletionRequest{
		Model:       model,
		Messages:    messages,
		Temperature: float32(req.Temperature),
		Stream:      stream,
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = req.MaxTokens
	}

	for _, tool := range req.Tools {
		schema, _ := json.Marshal(tool.Parameters)
		params.Tools = append(params.Tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  json.RawMessage(schema),
			},
		})
	}
	return params
}

func classifyOpenAIError(err error) error {
	message := err.Error()
	classified := &ClassifiedError{Err: err}
	if IsOverflowErrorText(message) {
		classified.Overflow = true
		return classified
	}
	lower := strings.ToLower(message)
	classified.Retryable = strings.Contains(lower, "rate limit") ||
		strings.Contains(lower, "timeout") ||
		strings.Contains(lower, "server error") ||
		strings.Contains(lower, "503") ||
		strings.Contains(lower, "502")
	return classified
}

var errEmptyChoices = &emptyChoicesErr{}

type emptyChoicesErr struct{}

func (e *emptyChoicesErr) Error() string { return "openai: response had no choices" }
