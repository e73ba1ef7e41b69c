package tools

import (
	"context"
	"fmt"
	"os/exec"

	"github.com/corestack/agentcore/internal/llm"
	"github.com/corestack/agentcore/internal/toolregistry"
)

// QueryTool delegates structural AST search to an external binary
// (ast-grep) rather than implementing a query engine of its own.
type QueryTool struct {
	binary string
}

// NewQueryTool builds a query tool backed by the given binary
// (ast-grep by default).
func NewQueryTool(binary string) *QueryTool {
	if binary == "" {
		binary = "ast-grep"
	}
	return &QueryTool{binary: binary}
}

func (t *QueryTool) Info() toolregistry.Info {
	return toolregistry.Info{
		Name:        "query",
		Description: "Structural AST search: find code matching a syntax pattern rather than plain text.",
		Async:       true,
		Parameters: llm.JSONSchema{
			Type: "object",
			Properties: map[string]llm.JSONSchema{
				"pattern":  {Type: "string", Description: "Structural pattern to match"},
				"path":     {Type: "string", Description: "Directory or file to restrict the query to"},
				"language": {Type: "string", Description: "Language the pattern is written against"},
			},
			Required: []string{"pattern"},
		},
	}
}

func (t *QueryTool) Execute(ctx context.Context, args map[string]interface{}) (toolregistry.Result, error) {
	pattern, ok := args["pattern"].(string)
	if !ok || pattern == "" {
		return errResult("pattern parameter is required"), nil
	}
	path, _ := args["path"].(string)
	if path == "" {
		path = "."
	}
	language, _ := args["language"].(string)

	cmdArgs := []string{"run", "--pattern", pattern}
	if language != "" {
		cmdArgs = append(cmdArgs, "--lang", language)
	}
	cmdArgs = append(cmdArgs, path)

	cmd := exec.CommandContext(ctx, t.binary, cmdArgs...)
	out, err := cmd.Output()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok && exitErr.ExitCode() == 1 {
			return toolregistry.Result{Success: true, Content: "no matches found"}, nil
		}
		return errResult(fmt.Sprintf("query failed: %v", err)), nil
	}

	return toolregistry.Result{Success: true, Content: string(out), Metadata: map[string]interface{}{"pattern": pattern}}, nil
}
