package tools

import (
	"context"
	"fmt"

	"github.com/corestack/agentcore/internal/llm"
	"github.com/corestack/agentcore/internal/toolregistry"
)

// LLMTool is a nested provider call exposed as a tool, used by the
// plan runtime when a program wants to ask the model to summarize or
// transform a chunk of data without going through a full agent turn.
type LLMTool struct {
	client *llm.Client
	model  string
}

// NewLLMTool builds an LLM tool fronting client, defaulting every call
// to model unless the caller overrides it.
func NewLLMTool(client *llm.Client, model string) *LLMTool {
	return &LLMTool{client: client, model: model}
}

func (t *LLMTool) Info() toolregistry.Info {
	return toolregistry.Info{
		Name:        "LLM",
		Description: "Make a nested model call: instruction plus data, returning the model's text response.",
		Async:       true,
		Parameters: llm.JSONSchema{
			Type: "object",
			Properties: map[string]llm.JSONSchema{
				"instruction": {Type: "string", Description: "What the model should do with data"},
				"data":        {Type: "string", Description: "The content to operate on"},
				"model":       {Type: "string", Description: "Override the default model for this call"},
			},
			Required: []string{"instruction", "data"},
		},
	}
}

func (t *LLMTool) Execute(ctx context.Context, args map[string]interface{}) (toolregistry.Result, error) {
	instruction, _ := args["instruction"].(string)
	data, _ := args["data"].(string)
	if instruction == "" {
		return errResult("instruction parameter is required"), nil
	}

	model, _ := args["model"].(string)
	if model == "" {
		model = t.model
	}

	req := llm.Request{
		Model: model,
		Messages: []llm.Message{
			{Role: "user", Content: instruction + "\n\n" + data},
		},
		MaxTokens: 4096,
	}

	resp, provider, err := t.client.Generate(ctx, req)
	if err != nil {
		return errResult(fmt.Sprintf("nested LLM call failed: %v", err)), nil
	}

	return toolregistry.Result{
		Success: true,
		Content: resp.Content,
		Metadata: map[string]interface{}{
			"provider":     provider,
			"prompt_token": resp.Usage.PromptTokens,
			"total_tokens": resp.Usage.TotalTokens,
		},
	}, nil
}
