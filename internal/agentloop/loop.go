// Package agentloop is the driver tying conversation turns to tool
// dispatch: it sends the running history to the provider client,
// parses the response for tool invocations (either the provider's
// native function-calling or the XML-flavored wire form embedded in
// free text), dispatches each through the tool registry, appends
// results, and repeats until the model signals completion or a budget
// is exhausted.
package agentloop

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hashicorp/go-hclog"

	"github.com/corestack/agentcore/internal/filetracker"
	"github.com/corestack/agentcore/internal/history"
	"github.com/corestack/agentcore/internal/llm"
	"github.com/corestack/agentcore/internal/obslog"
	"github.com/corestack/agentcore/internal/toolregistry"
)

// Termination reasons a completed turn can report.
const (
	ReasonCompletion    = "completion"
	ReasonIterationCap  = "iteration_cap"
	ReasonCancelled     = "cancelled"
	ReasonProviderError = "provider_error"
	ReasonSchemaInvalid = "schema_invalid"
)

// Config tunes one Loop's budgets. Zero values fall back to the
// documented defaults.
type Config struct {
	Model             string
	SystemPrompt      string
	MaxIterations     int // default 30
	MaxCorrections    int // default 2
	MaxTokens         int
	Temperature       float64
	SessionWorkingDir string
	// ContextWindowTokens is the provider's context window, used to
	// proactively compact history before a request would overflow it
	// rather than waiting for the provider to reject the call. Zero
	// disables the proactive check; the reactive compact-and-retry
	// path on a provider overflow error still applies regardless.
	ContextWindowTokens int
}

func (c Config) withDefaults() Config {
	if c.MaxIterations <= 0 {
		c.MaxIterations = 30
	}
	if c.MaxCorrections <= 0 {
		c.MaxCorrections = 2
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = 4096
	}
	return c
}

// Loop is one agent's turn-cycle driver: a conversation history, a
// provider client, and a tool registry, wired together by the state
// machine in RunTurn.
type Loop struct {
	cfg     Config
	hist    *history.History
	client  *llm.Client
	tools   *toolregistry.Registry
	tracker *filetracker.Tracker
	compact *history.Compactor
	counter *history.TokenCounter
	metrics *Metrics
	log     hclog.Logger
}

// New builds a Loop. tracker and metrics may be nil; a nil metrics
// falls back to an unregistered Metrics set, and logging always goes
// through a named "agentloop" logger constructed here rather than a
// package-level global. Token counting for the proactive-compaction
// check is best-effort: if the model name has no tiktoken encoding and
// the fallback encoding can't be loaded either, the check is silently
// skipped and the loop still relies on the reactive overflow-retry path.
func New(cfg Config, hist *history.History, client *llm.Client, tools *toolregistry.Registry, tracker *filetracker.Tracker, metrics *Metrics) *Loop {
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	counter, _ := history.NewTokenCounter(cfg.Model)
	return &Loop{
		cfg:     cfg.withDefaults(),
		hist:    hist,
		client:  client,
		tools:   tools,
		tracker: tracker,
		compact: history.NewCompactor(),
		counter: counter,
		metrics: metrics,
		log:     obslog.New("agentloop"),
	}
}

// History returns the underlying conversation history.
func (l *Loop) History() *history.History { return l.hist }

// TurnResult is what a completed call to RunTurn reports.
type TurnResult struct {
	Reason      string
	FinalAnswer string
	Iterations  int
}

// resolvedCall is a tool invocation normalized from either the
// provider's native function-calling or the XML wire form, ready to
// dispatch through the registry.
type resolvedCall struct {
	ID   string
	Name string
	Args map[string]interface{}
}

// RunTurn drives AwaitingModel -> ParsingToolInvocations ->
// DispatchingTools -> AppendingResults, repeating until the model
// emits a "completion" invocation, the iteration cap is hit, the
// context is cancelled, an unrecoverable provider error surfaces, or
// schema self-correction exhausts its budget. schema is optional; when
// non-nil, a final answer that isn't valid JSON matching it triggers a
// self-correction reminder instead of terminating.
func (l *Loop) RunTurn(ctx context.Context, userInput string, schema *llm.JSONSchema) (TurnResult, error) {
	if userInput != "" {
		l.hist.Append(history.RoleUser, userInput, nil)
	}

	corrections := 0
	overflowRetried := false

	for iter := 1; ; iter++ {
		if iter > l.cfg.MaxIterations {
			l.log.Warn("iteration cap reached", "session", l.hist.SessionID, "iterations", iter-1)
			return TurnResult{Reason: ReasonIterationCap, Iterations: iter - 1}, nil
		}
		if err := ctx.Err(); err != nil {
			l.log.Info("turn cancelled", "session", l.hist.SessionID)
			return TurnResult{Reason: ReasonCancelled, Iterations: iter - 1}, err
		}
		l.metrics.Iterations.Inc()
		l.log.Debug("awaiting model", "session", l.hist.SessionID, "iteration", iter)

		if l.approachingContextLimit() {
			l.metrics.Compactions.Inc()
			l.log.Info("proactively compacting history before it overflows the context window", "session", l.hist.SessionID)
			l.compact.CompactHistory(l.hist)
		}

		req := l.buildRequest()
		resp, _, err := l.client.Generate(ctx, req)
		if err != nil {
			if history.IsOverflowError(err.Error()) && !overflowRetried {
				overflowRetried = true
				l.metrics.Compactions.Inc()
				l.log.Info("context overflow, compacting and retrying once", "session", l.hist.SessionID)
				l.compact.CompactHistory(l.hist)
				iter--
				continue
			}
			l.metrics.Terminations.WithLabelValues(ReasonProviderError).Inc()
			l.log.Error("provider error, terminating turn", "session", l.hist.SessionID, "err", err)
			return TurnResult{Reason: ReasonProviderError, Iterations: iter}, err
		}
		overflowRetried = false

		l.hist.Append(history.RoleAssistant, resp.Content, nil)

		calls := l.resolveCalls(resp)

		if answer, ok := extractCompletion(calls); ok {
			l.metrics.Terminations.WithLabelValues(ReasonCompletion).Inc()
			return TurnResult{Reason: ReasonCompletion, FinalAnswer: answer, Iterations: iter}, nil
		}

		if len(calls) == 0 {
			if schema != nil {
				if errs := validateJSONSchema(resp.Content, *schema); len(errs) > 0 {
					if corrections >= l.cfg.MaxCorrections {
						l.metrics.Terminations.WithLabelValues(ReasonSchemaInvalid).Inc()
						return TurnResult{Reason: ReasonSchemaInvalid, Iterations: iter}, fmt.Errorf("response did not match schema after %d corrections: %v", corrections, errs)
					}
					corrections++
					l.metrics.Corrections.Inc()
					l.hist.AppendInternalReminder(correctionPrompt(errs))
					continue
				}
			}
			l.metrics.Terminations.WithLabelValues(ReasonCompletion).Inc()
			return TurnResult{Reason: ReasonCompletion, FinalAnswer: resp.Content, Iterations: iter}, nil
		}

		l.dispatch(ctx, calls)
	}
}

// approachingContextLimit reports whether the current history's
// estimated token count has crossed 90% of the configured context
// window, warranting a proactive compaction instead of waiting for the
// provider to reject the next request outright.
func (l *Loop) approachingContextLimit() bool {
	if l.counter == nil || l.cfg.ContextWindowTokens <= 0 {
		return false
	}
	estimated := l.counter.CountMessages(l.hist.Snapshot())
	return estimated >= (l.cfg.ContextWindowTokens*9)/10
}

// buildRequest converts the current history and registered tools into
// a provider request.
func (l *Loop) buildRequest() llm.Request {
	snapshot := l.hist.Snapshot()
	messages := make([]llm.Message, 0, len(snapshot)+1)
	if l.cfg.SystemPrompt != "" {
		messages = append(messages, llm.Message{Role: history.RoleSystem, Content: l.cfg.SystemPrompt})
	}
	for _, m := range snapshot {
		messages = append(messages, llm.Message{Role: m.Role, Content: m.Content})
	}

	defs := make([]llm.ToolDefinition, 0, len(l.tools.List()))
	for _, info := range l.tools.List() {
		defs = append(defs, llm.ToolDefinition{Name: info.Name, Description: info.Description, Parameters: info.Parameters})
	}

	return llm.Request{
		Model:       l.cfg.Model,
		Messages:    messages,
		Tools:       defs,
		MaxTokens:   l.cfg.MaxTokens,
		Temperature: l.cfg.Temperature,
	}
}

// resolveCalls prefers the provider's native tool calls; when a
// provider or model emits none (typical of plain-completion backends),
// it falls back to the XML-flavored wire form embedded in the
// response text.
func (l *Loop) resolveCalls(resp *llm.Response) []resolvedCall {
	if len(resp.ToolCalls) > 0 {
		out := make([]resolvedCall, 0, len(resp.ToolCalls))
		for _, tc := range resp.ToolCalls {
			args := map[string]interface{}{}
			if tc.Arguments != "" {
				_ = json.Unmarshal([]byte(tc.Arguments), &args)
			}
			out = append(out, resolvedCall{ID: tc.ID, Name: tc.Name, Args: args})
		}
		return out
	}

	invocations := ParseInvocations(resp.Content)
	out := make([]resolvedCall, 0, len(invocations))
	for _, inv := range invocations {
		out = append(out, resolvedCall{Name: inv.Name, Args: stringParams(inv.Params)})
	}
	return out
}

// extractCompletion reports whether calls contains the model's
// completion signal, and its "answer", "result" or "text" argument
// (the first one present, in that order) if so.
func extractCompletion(calls []resolvedCall) (answer string, ok bool) {
	for _, c := range calls {
		if c.Name != "completion" {
			continue
		}
		for _, key := range []string{"answer", "result", "text"} {
			if v, ok := c.Args[key].(string); ok {
				return v, true
			}
		}
		return "", true
	}
	return "", false
}

// dispatch runs every call through the tool registry in emission
// order and appends one tool-result message per call, preserving
// call-emission order in history regardless of execution order. Calls
// are executed sequentially; a future implementation may fan them out
// and reorder results on append without changing this contract.
func (l *Loop) dispatch(ctx context.Context, calls []resolvedCall) {
	for _, c := range calls {
		l.log.Debug("dispatching tool", "session", l.hist.SessionID, "tool", c.Name)
		result, err := l.tools.Call(ctx, c.Name, c.Args)
		l.recordToolMetrics(c.Name, result, err)

		content := formatToolResult(c.Name, result, err)
		l.hist.AppendToolResult(content, map[string]interface{}{"tool": c.Name, "call_id": c.ID})

		if l.tracker != nil {
			l.tracker.IngestOutput(content, l.cfg.SessionWorkingDir)
		}
	}
}

func (l *Loop) recordToolMetrics(name string, result toolregistry.Result, err error) {
	outcome := "success"
	if err != nil || !result.Success {
		outcome = "failure"
	}
	l.metrics.ToolCalls.WithLabelValues(name, outcome).Inc()
	l.metrics.ToolCallDuration.WithLabelValues(name).Observe(result.ExecutionTime.Seconds())
}

// formatToolResult turns a tool outcome into the plain-text message
// the model sees: failures surface as "Error: ..." rather than
// throwing across the model boundary.
func formatToolResult(name string, result toolregistry.Result, err error) string {
	if err != nil {
		return fmt.Sprintf("Error: %v", err)
	}
	if !result.Success {
		if result.Error != "" {
			return fmt.Sprintf("Error: %s", result.Error)
		}
		return "Error: tool failed"
	}
	return result.Content
}
