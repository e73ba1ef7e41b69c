package tools

import (
	"context"
	"fmt"

	"github.com/corestack/agentcore/config"
	"github.com/corestack/agentcore/internal/execshell"
	"github.com/corestack/agentcore/internal/llm"
	"github.com/corestack/agentcore/internal/policy"
	"github.com/corestack/agentcore/internal/shell"
	"github.com/corestack/agentcore/internal/toolregistry"
)

// BashTool is the gatekept shell-command tool: every call is parsed by
// internal/shell, checked by internal/policy, and run by
// internal/execshell, so the three components described by the bash
// gatekeeper and process executor sit behind one toolregistry.Tool.
// Replaces the previous single-shot os/exec call that only matched a
// command's first word against a flat allow-list.
type BashTool struct {
	config   *config.CommandToolsConfig
	policy   *policy.Policy
	executor *execshell.Executor
}

// NewCommandTool builds a BashTool from the command-tool config,
// applying defaults and compiling the configured policy.
func NewCommandTool(commandConfig *config.CommandToolsConfig) (*BashTool, error) {
	if commandConfig == nil {
		commandConfig = &config.CommandToolsConfig{}
	}
	commandConfig.SetDefaults()

	pol, err := policy.New(commandConfig.AllowedCommands, commandConfig.DeniedCommands, commandConfig.DenyByDefault)
	if err != nil {
		return nil, fmt.Errorf("tools: compiling command policy: %w", err)
	}

	roots := commandConfig.AllowedRoots
	if len(roots) == 0 && commandConfig.WorkingDirectory != "" {
		roots = []string{commandConfig.WorkingDirectory}
	}

	return &BashTool{
		config:   commandConfig,
		policy:   pol,
		executor: execshell.New(roots...),
	}, nil
}

// Info implements toolregistry.Tool.
func (t *BashTool) Info() toolregistry.Info {
	return toolregistry.Info{
		Name:        "execute_command",
		Description: "Execute a shell command for file operations, system tasks, and development workflows. Subject to an allow/deny policy.",
		Async:       true,
		Parameters: llm.JSONSchema{
			Type: "object",
			Properties: map[string]llm.JSONSchema{
				"command":     {Type: "string", Description: "Shell command to execute (pipes, redirects, and compound operators are parsed and policy-checked, not blindly trusted)"},
				"working_dir": {Type: "string", Description: "Working directory override; must fall within the configured allowed roots"},
			},
			Required: []string{"command"},
		},
	}
}

// Execute implements toolregistry.Tool.
func (t *BashTool) Execute(ctx context.Context, args map[string]interface{}) (toolregistry.Result, error) {
	command, ok := args["command"].(string)
	if !ok || command == "" {
		return toolregistry.Result{Success: false, Error: "command parameter is required"}, nil
	}

	workingDir, _ := args["working_dir"].(string)
	if workingDir == "" {
		workingDir = t.config.WorkingDirectory
	}

	parsed, err := shell.Parse(command)
	if err != nil {
		return toolregistry.Result{Success: false, Error: fmt.Sprintf("could not parse command: %v", err)}, nil
	}

	if t.config.EnableSandboxing {
		decision := t.policy.Check(parsed)
		if !decision.Allowed {
			return toolregistry.Result{
				Success: false,
				Error:   fmt.Sprintf("command denied: %s (%s)", decision.Reason, decision.Detail),
				Metadata: map[string]interface{}{
					"command": command,
					"reason":  decision.Reason,
				},
			}, nil
		}
	}

	opts := execshell.Options{
		WorkingDir:    workingDir,
		Timeout:       t.config.MaxExecutionTime,
		MaxOutputByte: t.config.MaxOutputBytes,
	}

	res, err := t.executor.Execute(ctx, parsed, opts)
	if err != nil {
		return toolregistry.Result{Success: false, Error: err.Error()}, nil
	}

	errText := res.ErrorMessage
	if errText == "" {
		errText = res.Stderr
	}
	return toolregistry.Result{
		Success: res.Success,
		Content: res.Format(false),
		Error:   errText,
		Metadata: map[string]interface{}{
			"command":     command,
			"working_dir": workingDir,
			"exit_code":   res.ExitCode,
			"killed":      res.Killed,
			"signal":      res.Signal,
			"duration_ms": res.Duration.Milliseconds(),
		},
	}, nil
}
