package tools

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/corestack/agentcore/internal/agentloop"
	"github.com/corestack/agentcore/internal/filetracker"
	"github.com/corestack/agentcore/internal/history"
	"github.com/corestack/agentcore/internal/llm"
	"github.com/corestack/agentcore/internal/toolregistry"
)

// DelegateTool spawns a subordinate agent loop with a fresh
// conversation over the same provider client, tool registry, and file
// tracker. Recursion is bounded by a decreasing budget carried on the
// context rather than mutable tool state, so the same DelegateTool
// instance is safe to share across concurrently-running parent loops.
type DelegateTool struct {
	client   *llm.Client
	tools    *toolregistry.Registry
	tracker  *filetracker.Tracker
	cfg      agentloop.Config
	maxDepth int
}

// NewDelegateTool builds a delegate tool. maxDepth bounds how many
// nested delegate calls a single top-level turn may chain through
// before the budget is exhausted; a non-positive value defaults to 3.
func NewDelegateTool(client *llm.Client, tools *toolregistry.Registry, tracker *filetracker.Tracker, cfg agentloop.Config, maxDepth int) *DelegateTool {
	if maxDepth <= 0 {
		maxDepth = 3
	}
	return &DelegateTool{client: client, tools: tools, tracker: tracker, cfg: cfg, maxDepth: maxDepth}
}

func (t *DelegateTool) Info() toolregistry.Info {
	return toolregistry.Info{
		Name:        "delegate",
		Description: "Spawn a subordinate agent with a fresh conversation to carry out a bounded subtask, returning its final answer.",
		Async:       true,
		Parameters: llm.JSONSchema{
			Type: "object",
			Properties: map[string]llm.JSONSchema{
				"task": {Type: "string", Description: "The subtask description handed to the subordinate agent as its first user turn"},
			},
			Required: []string{"task"},
		},
	}
}

type depthKeyType struct{}

var depthKey = depthKeyType{}

func remainingDepth(ctx context.Context, max int) int {
	if v, ok := ctx.Value(depthKey).(int); ok {
		return v
	}
	return max
}

func (t *DelegateTool) Execute(ctx context.Context, args map[string]interface{}) (toolregistry.Result, error) {
	depth := remainingDepth(ctx, t.maxDepth)
	if depth <= 0 {
		return errResult("delegate recursion budget exhausted"), nil
	}

	task, ok := args["task"].(string)
	if !ok || task == "" {
		return errResult("task parameter is required"), nil
	}

	childHistory, err := history.New(uuid.NewString())
	if err != nil {
		return errResult(fmt.Sprintf("could not start subordinate agent: %v", err)), nil
	}

	child := agentloop.New(t.cfg, childHistory, t.client, t.tools, t.tracker, nil)
	childCtx := context.WithValue(ctx, depthKey, depth-1)

	result, err := child.RunTurn(childCtx, task, nil)
	if err != nil {
		return toolregistry.Result{
			Success: false,
			Error:   fmt.Sprintf("delegate failed: %v", err),
			Metadata: map[string]interface{}{
				"reason":     result.Reason,
				"iterations": result.Iterations,
			},
		}, nil
	}

	return toolregistry.Result{
		Success: result.Reason == agentloop.ReasonCompletion,
		Content: result.FinalAnswer,
		Metadata: map[string]interface{}{
			"reason":     result.Reason,
			"iterations": result.Iterations,
		},
	}, nil
}
