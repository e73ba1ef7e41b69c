package tools

import (
	"context"
	"encoding/json"

	"github.com/corestack/agentcore/internal/llm"
	"github.com/corestack/agentcore/internal/planvm"
	"github.com/corestack/agentcore/internal/toolregistry"
)

// planNameAliases maps the plan runtime's canonical tool identifiers
// (search, query, extract, listFiles, bash, LLM, delegate) to whatever
// name the tool is actually registered under. Only "bash" needs one
// today, since BashTool registers as "execute_command" to match the
// model-facing function-calling name.
var planNameAliases = map[string]string{
	"bash": "execute_command",
}

func realToolName(planName string) string {
	if real, ok := planNameAliases[planName]; ok {
		return real
	}
	return planName
}

// registryAdapter exposes a toolregistry.Registry as a
// planvm.ToolCaller, so internal/planvm never imports the registry
// package directly.
type registryAdapter struct {
	reg *toolregistry.Registry
}

var planFacingNames = []string{"search", "query", "extract", "listFiles", "bash", "LLM", "delegate"}

// Names exposes every registered tool under its registered name, plus
// each canonical plan-facing alias whose target is registered, so a
// plan script can call `bash(...)` while an MCP-imported or test tool
// stays reachable under whatever name it registered with.
func (a *registryAdapter) Names() []string {
	registered := make(map[string]bool)
	var out []string
	for _, info := range a.reg.List() {
		registered[info.Name] = true
		out = append(out, info.Name)
	}
	for _, name := range planFacingNames {
		alias := realToolName(name)
		if alias != name && registered[alias] {
			out = append(out, name)
		}
	}
	return out
}

func (a *registryAdapter) IsAsync(name string) bool {
	return a.reg.IsAsync(realToolName(name))
}

func (a *registryAdapter) Call(ctx context.Context, name string, args map[string]interface{}) (planvm.ToolOutcome, error) {
	result, err := a.reg.Call(ctx, realToolName(name), args)
	if err != nil {
		return planvm.ToolOutcome{}, err
	}
	return planvm.ToolOutcome{
		Success:    result.Success,
		Content:    result.Content,
		Structured: result.Output,
		Error:      result.Error,
	}, nil
}

// PlanTool exposes the plan runtime as an ordinary registry tool
// named "execute_plan": the model hands it a small program, the
// program is validated, annotated, and interpreted against every other
// registered tool via registryAdapter.
type PlanTool struct {
	reg *toolregistry.Registry
	cfg planvm.Config
}

// NewPlanTool builds a plan-execution tool over reg. cfg's zero value
// uses the runtime's documented defaults (5 minute deadline, 5000 loop
// iterations, concurrency 3).
func NewPlanTool(reg *toolregistry.Registry, cfg planvm.Config) *PlanTool {
	return &PlanTool{reg: reg, cfg: cfg}
}

func (t *PlanTool) Info() toolregistry.Info {
	return toolregistry.Info{
		Name:        "execute_plan",
		Description: "Execute a small script that orchestrates multiple tool calls with fan-out, retry, and aggregation, returning its final value.",
		Async:       true,
		Parameters: llm.JSONSchema{
			Type: "object",
			Properties: map[string]llm.JSONSchema{
				"source": {Type: "string", Description: "Plan program source, restricted to the allowed statement/expression grammar"},
			},
			Required: []string{"source"},
		},
	}
}

func (t *PlanTool) Execute(ctx context.Context, args map[string]interface{}) (toolregistry.Result, error) {
	source, ok := args["source"].(string)
	if !ok || source == "" {
		return errResult("source parameter is required"), nil
	}

	rt := planvm.New(&registryAdapter{reg: t.reg}, t.cfg)
	result := rt.Run(ctx, source)

	if result.Status != "success" {
		return toolregistry.Result{
			Success:  false,
			Error:    result.Error,
			Metadata: map[string]interface{}{"logs": result.Logs},
		}, nil
	}

	content, _ := json.Marshal(result.Result)
	return toolregistry.Result{
		Success:  true,
		Content:  string(content),
		Output:   result.Result,
		Metadata: map[string]interface{}{"logs": result.Logs},
	}, nil
}
