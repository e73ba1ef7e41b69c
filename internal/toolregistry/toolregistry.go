// Package toolregistry is the uniform tool adapter layer the agent
// loop and plan runtime dispatch through: every tool, whether it
// shells out, searches the repo, or calls the model recursively,
// implements the same Tool interface and is invoked the same way.
// Every call opens an OpenTelemetry span, and each tool declares a
// synchronous/asynchronous classification the plan runtime uses to
// decide which calls get await-injected.
package toolregistry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/corestack/agentcore/internal/llm"
	"github.com/corestack/agentcore/internal/registry"
)

var tracer = otel.Tracer("agentcore/toolregistry")

// Info describes a tool's calling contract.
type Info struct {
	Name        string
	Description string
	Parameters  llm.JSONSchema
	// Async marks a tool the plan runtime must await rather than treat
	// as a synchronous expression; bash, search, and any LLM/delegate
	// call are async, pure in-memory helpers are not.
	Async bool
}

// Result is the outcome of one tool invocation.
type Result struct {
	Success       bool
	Content       string
	Output        interface{}
	Error         string
	ToolName      string
	ExecutionTime time.Duration
	Metadata      map[string]interface{}
}

// Tool is the common contract every tool adapter implements.
type Tool interface {
	Info() Info
	Execute(ctx context.Context, args map[string]interface{}) (Result, error)
}

// Registry wraps the generic name-keyed registry with tracing and the
// uniform Result shape every caller expects back.
type Registry struct {
	base *registry.BaseRegistry[Tool]
}

// New builds an empty tool registry.
func New() *Registry {
	return &Registry{base: registry.NewBaseRegistry[Tool]()}
}

// Register adds a tool under its own declared name.
func (r *Registry) Register(t Tool) error {
	info := t.Info()
	if info.Name == "" {
		return fmt.Errorf("toolregistry: tool has no name")
	}
	return r.base.Register(info.Name, t)
}

// List returns every registered tool's Info.
func (r *Registry) List() []Info {
	tools := r.base.List()
	out := make([]Info, len(tools))
	for i, t := range tools {
		out[i] = t.Info()
	}
	return out
}

// IsAsync reports whether name is a registered async tool; unknown
// names are treated as async so the plan runtime fails toward
// awaiting rather than silently racing an unrecognized call.
func (r *Registry) IsAsync(name string) bool {
	t, ok := r.base.Get(name)
	if !ok {
		return true
	}
	return t.Info().Async
}

// Call dispatches to the named tool, wrapping the execution in a span.
// A panic in the tool is normalized into a failed Result instead of
// escaping to the caller; an error returned by Execute is returned as
// err alongside the tool's Result.
func (r *Registry) Call(ctx context.Context, name string, args map[string]interface{}) (result Result, err error) {
	t, ok := r.base.Get(name)
	if !ok {
		return Result{Success: false, ToolName: name, Error: fmt.Sprintf("unknown tool %q", name)}, nil
	}

	ctx, span := tracer.Start(ctx, "tool."+name)
	defer span.End()
	span.SetAttributes(attribute.String("tool.name", name))

	start := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			span.RecordError(fmt.Errorf("panic: %v", rec))
			span.SetStatus(codes.Error, "panic")
			result = Result{
				Success:       false,
				ToolName:      name,
				Error:         fmt.Sprintf("tool panicked: %v", rec),
				ExecutionTime: time.Since(start),
			}
			err = nil
		}
	}()

	result, err = t.Execute(ctx, args)
	result.ToolName = name
	result.ExecutionTime = time.Since(start)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return result, err
}
