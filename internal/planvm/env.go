package planvm

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
)

// Value is the dynamic value type every plan-runtime expression
// evaluates to: nil, bool, float64, string, []Value, map[string]Value,
// *closureValue, or *builtinValue.
type Value = interface{}

// ToolOutcome is the normalized shape of a single tool invocation's
// result, as handed back by a ToolCaller.
type ToolOutcome struct {
	Success    bool
	Content    string
	Structured interface{}
	Error      string
}

// ToolCaller is the minimal surface the plan runtime needs from the
// tool registry. internal/toolregistry.Registry is adapted to this
// interface by the caller so this package never imports the registry
// directly.
type ToolCaller interface {
	Call(ctx context.Context, name string, args map[string]interface{}) (ToolOutcome, error)
	Names() []string
	IsAsync(name string) bool
}

// unwrapMCPEnvelope returns the text of the literal
// `{content:[{type:"text", text:...}]}` shape an MCP-bridged tool
// result sometimes arrives in, and v unchanged otherwise. autoParse
// then runs its JSON-object/array auto-parse on that text.
func unwrapMCPEnvelope(v interface{}) interface{} {
	m, ok := v.(map[string]interface{})
	if !ok {
		return v
	}
	content, ok := m["content"].([]interface{})
	if !ok || len(content) == 0 {
		return v
	}
	first, ok := content[0].(map[string]interface{})
	if !ok || first["type"] != "text" {
		return v
	}
	text, ok := first["text"].(string)
	if !ok {
		return v
	}
	return text
}

// autoParse turns a tool's textual result into a structured Value when
// it looks like a JSON object or array; anything else passes through
// as a plain string.
func autoParse(content string, structured interface{}) Value {
	if structured != nil {
		unwrapped := unwrapMCPEnvelope(structured)
		if text, ok := unwrapped.(string); ok {
			return autoParse(text, nil)
		}
		return toPlanValue(unwrapped)
	}
	trimmed := strings.TrimSpace(content)
	if len(trimmed) == 0 {
		return content
	}
	if trimmed[0] == '{' || trimmed[0] == '[' {
		var parsed interface{}
		if err := json.Unmarshal([]byte(trimmed), &parsed); err == nil {
			unwrapped := unwrapMCPEnvelope(parsed)
			if text, ok := unwrapped.(string); ok {
				return autoParse(text, nil)
			}
			return toPlanValue(unwrapped)
		}
	}
	return content
}

// toPlanValue normalizes decoded JSON (map[string]interface{}, []interface{},
// json.Number-free float64/string/bool/nil) into the plan runtime's own
// Value shape. The two are the same Go types today; call sites go
// through this function so they don't have to know that.
func toPlanValue(v interface{}) Value { return v }

// buildGlobalScope constructs the base bindings every plan program
// runs with: tool wrappers, the pure helpers, and the minimal
// JSON/String/Array/Math shims. `map`'s callback fan-out needs access
// to the interpreter itself, so it's installed by Interp.installMap
// rather than here.
func buildGlobalScope(caller ToolCaller, logf func(string)) *Scope {
	s := newScope(nil)

	for _, name := range caller.Names() {
		toolName := name
		s.declare(toolName, &builtinValue{
			name: toolName,
			fn: func(ctx context.Context, f *fiber, args []Value) (Value, error) {
				params := toolArgsFromPositional(toolName, args)
				outcome, err := caller.Call(ctx, toolName, params)
				if err != nil {
					return nil, &thrown{value: err.Error()}
				}
				if !outcome.Success {
					msg := outcome.Error
					if msg == "" {
						msg = "tool call failed"
					}
					return nil, &thrown{value: msg}
				}
				return autoParse(outcome.Content, outcome.Structured), nil
			},
		})
	}

	s.declare("chunk", simpleBuiltin("chunk", builtinChunk))
	s.declare("range", simpleBuiltin("range", builtinRange))
	s.declare("flatten", simpleBuiltin("flatten", builtinFlatten))
	s.declare("groupBy", simpleBuiltin("groupBy", builtinGroupBy))
	s.declare("log", &builtinValue{name: "log", fn: func(ctx context.Context, f *fiber, args []Value) (Value, error) {
		var parts []string
		for _, a := range args {
			parts = append(parts, stringifyValue(a))
		}
		logf(strings.Join(parts, " "))
		return nil, nil
	}})

	s.declare("JSON", map[string]Value{
		"parse":     simpleBuiltin("JSON.parse", builtinJSONParse),
		"stringify": simpleBuiltin("JSON.stringify", builtinJSONStringify),
	})
	s.declare("Math", map[string]Value{
		"abs":   simpleBuiltin("Math.abs", builtinMathUnary(mathAbs)),
		"floor": simpleBuiltin("Math.floor", builtinMathUnary(mathFloor)),
		"ceil":  simpleBuiltin("Math.ceil", builtinMathUnary(mathCeil)),
		"round": simpleBuiltin("Math.round", builtinMathUnary(mathRound)),
		"max":   simpleBuiltin("Math.max", builtinMathVariadic(mathMax)),
		"min":   simpleBuiltin("Math.min", builtinMathVariadic(mathMin)),
	})
	s.declare("String", simpleBuiltin("String", builtinStringCtor))
	s.declare("Array", map[string]Value{
		"isArray": simpleBuiltin("Array.isArray", builtinIsArray),
	})
	s.declare("Number", simpleBuiltin("Number", builtinNumberCtor))

	return s
}

func simpleBuiltin(name string, fn func(args []Value) (Value, error)) *builtinValue {
	return &builtinValue{name: name, fn: func(ctx context.Context, f *fiber, args []Value) (Value, error) {
		return fn(args)
	}}
}

// toolArgsFromPositional maps the plan script's positional call
// arguments onto each built-in tool's declared parameter order. Every
// built-in tool lists its parameters in a fixed order, so a plan
// script always calls them positionally (`bash(cmd, cwd, timeout)`),
// never with named arguments.
func toolArgsFromPositional(name string, args []Value) map[string]interface{} {
	order, ok := toolParamOrder[name]
	if !ok {
		out := make(map[string]interface{}, len(args))
		for i, a := range args {
			out[intToArgName(i)] = a
		}
		return out
	}
	out := make(map[string]interface{}, len(order))
	for i, p := range order {
		if i < len(args) {
			out[p] = args[i]
		}
	}
	return out
}

func intToArgName(i int) string {
	return []string{"arg0", "arg1", "arg2", "arg3", "arg4", "arg5"}[i%6]
}

var toolParamOrder = map[string][]string{
	"search":    {"query", "path", "exact", "max_tokens"},
	"query":     {"pattern", "path", "language"},
	"extract":   {"targets", "context_lines", "format"},
	"listFiles": {"pattern"},
	"bash":      {"command", "working_dir", "timeout", "env"},
	"LLM":       {"instruction", "data", "options"},
	"delegate":  {"task"},
}

func builtinChunk(args []Value) (Value, error) {
	text, _ := args[0].(string)
	size := 20000
	if len(args) > 1 {
		if n, ok := args[1].(float64); ok && n > 0 {
			size = int(n)
		}
	}
	if size <= 0 {
		size = 1
	}
	var out []Value
	for i := 0; i < len(text); i += size {
		end := i + size
		if end > len(text) {
			end = len(text)
		}
		out = append(out, text[i:end])
	}
	return out, nil
}

func builtinRange(args []Value) (Value, error) {
	start, end := 0.0, 0.0
	if len(args) == 1 {
		end, _ = args[0].(float64)
	} else if len(args) >= 2 {
		start, _ = args[0].(float64)
		end, _ = args[1].(float64)
	}
	var out []Value
	for i := start; i < end; i++ {
		out = append(out, i)
	}
	return out, nil
}

func builtinFlatten(args []Value) (Value, error) {
	var out []Value
	var walk func(v Value)
	walk = func(v Value) {
		if list, ok := v.([]Value); ok {
			for _, e := range list {
				walk(e)
			}
			return
		}
		out = append(out, v)
	}
	if len(args) > 0 {
		if list, ok := args[0].([]Value); ok {
			for _, e := range list {
				walk(e)
			}
		}
	}
	return out, nil
}

func builtinGroupBy(args []Value) (Value, error) {
	if len(args) < 2 {
		return map[string]Value{}, nil
	}
	list, _ := args[0].([]Value)
	out := map[string]Value{}
	keyFor := func(item Value) string {
		switch k := args[1].(type) {
		case string:
			if m, ok := item.(map[string]Value); ok {
				return stringifyValue(m[k])
			}
			return ""
		case *closureValue, *builtinValue:
			_ = k
			return stringifyValue(item)
		default:
			return stringifyValue(item)
		}
	}
	for _, item := range list {
		k := keyFor(item)
		bucket, _ := out[k].([]Value)
		out[k] = append(bucket, item)
	}
	return out, nil
}

func builtinJSONParse(args []Value) (Value, error) {
	if len(args) == 0 {
		return nil, nil
	}
	s, _ := args[0].(string)
	var v interface{}
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil, &thrown{value: "JSON.parse: " + err.Error()}
	}
	return toPlanValue(v), nil
}

func builtinJSONStringify(args []Value) (Value, error) {
	if len(args) == 0 {
		return "undefined", nil
	}
	b, err := json.Marshal(args[0])
	if err != nil {
		return nil, &thrown{value: "JSON.stringify: " + err.Error()}
	}
	return string(b), nil
}

func builtinStringCtor(args []Value) (Value, error) {
	if len(args) == 0 {
		return "", nil
	}
	return stringifyValue(args[0]), nil
}

func builtinNumberCtor(args []Value) (Value, error) {
	if len(args) == 0 {
		return 0.0, nil
	}
	return toNumber(args[0]), nil
}

func builtinIsArray(args []Value) (Value, error) {
	if len(args) == 0 {
		return false, nil
	}
	_, ok := args[0].([]Value)
	return ok, nil
}

func mathAbs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
func mathFloor(f float64) float64 {
	i := float64(int64(f))
	if f < 0 && i != f {
		i--
	}
	return i
}
func mathCeil(f float64) float64 {
	i := float64(int64(f))
	if f > 0 && i != f {
		i++
	}
	return i
}
func mathRound(f float64) float64 { return mathFloor(f + 0.5) }
func mathMax(vs []float64) float64 {
	m := vs[0]
	for _, v := range vs[1:] {
		if v > m {
			m = v
		}
	}
	return m
}
func mathMin(vs []float64) float64 {
	m := vs[0]
	for _, v := range vs[1:] {
		if v < m {
			m = v
		}
	}
	return m
}

func builtinMathUnary(fn func(float64) float64) func([]Value) (Value, error) {
	return func(args []Value) (Value, error) {
		if len(args) == 0 {
			return 0.0, nil
		}
		return fn(toNumber(args[0])), nil
	}
}

func builtinMathVariadic(fn func([]float64) float64) func([]Value) (Value, error) {
	return func(args []Value) (Value, error) {
		if len(args) == 0 {
			return 0.0, nil
		}
		nums := make([]float64, len(args))
		for i, a := range args {
			nums[i] = toNumber(a)
		}
		return fn(nums), nil
	}
}

// sortedKeys returns an object's keys in a deterministic order, used
// by for-in and groupBy-adjacent helpers.
func sortedKeys(m map[string]Value) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
