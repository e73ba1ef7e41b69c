package planvm

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeCaller is a minimal ToolCaller double used across the runtime
// tests below; each registered name maps to a handler so individual
// tests can simulate a slow tool, a failing tool, or a plain echo.
type fakeCaller struct {
	handlers map[string]func(args map[string]interface{}) (ToolOutcome, error)
	calls    int32
}

func (f *fakeCaller) Names() []string {
	names := make([]string, 0, len(f.handlers))
	for n := range f.handlers {
		names = append(names, n)
	}
	return names
}

func (f *fakeCaller) IsAsync(name string) bool { return true }

func (f *fakeCaller) Call(ctx context.Context, name string, args map[string]interface{}) (ToolOutcome, error) {
	atomic.AddInt32(&f.calls, 1)
	h, ok := f.handlers[name]
	if !ok {
		return ToolOutcome{}, fmt.Errorf("no such tool %q", name)
	}
	return h(args)
}

// echoCaller's "echo" tool is registered under no known parameter
// order, so toolArgsFromPositional names its sole positional argument
// "arg0" (env.go); handlers below read that name rather than a
// semantic field name.
func echoCaller() *fakeCaller {
	return &fakeCaller{handlers: map[string]func(map[string]interface{}) (ToolOutcome, error){
		"echo": func(args map[string]interface{}) (ToolOutcome, error) {
			return ToolOutcome{Success: true, Content: fmt.Sprintf("%v", args["arg0"])}, nil
		},
	}}
}

func TestValidate_AcceptsWhitelistedProgram(t *testing.T) {
	_, vr := Validate(`
		const x = [];
		for (const i of [1, 2, 3]) {
			x.push(i);
		}
		return x;
	`)
	require.True(t, vr.Valid, "%v", vr.Errors)
}

func TestValidate_RejectsBlockedIdentifier(t *testing.T) {
	_, vr := Validate(`process.exit(1);`)
	require.False(t, vr.Valid)
	require.Len(t, vr.Errors, 1)
	assert.Contains(t, vr.Errors[0].Message, "process")
	assert.Equal(t, 1, vr.Errors[0].Pos.Column)
}

func TestValidate_RejectsBlockedPropertyAccess(t *testing.T) {
	_, vr := Validate(`const x = {}; return x.constructor;`)
	require.False(t, vr.Valid)
	found := false
	for _, e := range vr.Errors {
		if e.Message == `blocked property access: "constructor"` {
			found = true
		}
	}
	assert.True(t, found, "%v", vr.Errors)
}

func TestValidate_RejectsBlockedDeclarator(t *testing.T) {
	_, vr := Validate(`const process = 1; return process;`)
	require.False(t, vr.Valid)
}

func TestValidate_RejectsUnknownSyntax(t *testing.T) {
	_, vr := Validate(`class Foo {}`)
	require.False(t, vr.Valid)
}

func TestValidate_ReportsParseErrorLocation(t *testing.T) {
	_, vr := Validate(`this is not } valid (( source`)
	require.False(t, vr.Valid)
	require.NotEmpty(t, vr.Errors)
}

func TestAnnotate_MarksToolCallsAsync(t *testing.T) {
	prog, vr := Validate(`return echo({value: 1});`)
	require.True(t, vr.Valid)
	Annotate(prog, map[string]bool{"echo": true})

	stmt := prog.Body[0].(*ReturnStatement)
	call := stmt.Argument.(*CallExpression)
	assert.True(t, call.Async)
}

func TestAnnotate_CascadesThroughMapCallback(t *testing.T) {
	prog, vr := Validate(`return map([1], (x) => { return echo({value: x}); });`)
	require.True(t, vr.Valid)
	Annotate(prog, map[string]bool{"echo": true})

	stmt := prog.Body[0].(*ReturnStatement)
	mapCall := stmt.Argument.(*CallExpression)
	require.True(t, mapCall.Async)
	cb := mapCall.Arguments[1].(*ArrowFunctionExpression)
	assert.True(t, cb.Async, "map's callback should be forced async")

	inner := cb.Body.(*BlockStatement).Body[0].(*ReturnStatement)
	innerCall := inner.Argument.(*CallExpression)
	assert.True(t, innerCall.Async)
}

func TestRuntime_SimpleArithmeticReturnsSuccess(t *testing.T) {
	rt := New(echoCaller(), Config{})
	res := rt.Run(context.Background(), `return 1 + 2 * 3;`)
	require.Equal(t, "success", res.Status)
	assert.Equal(t, float64(7), res.Result)
}

func TestRuntime_LogAccumulatesInResult(t *testing.T) {
	rt := New(echoCaller(), Config{})
	res := rt.Run(context.Background(), `log("hello"); log("world"); return 1;`)
	require.Equal(t, "success", res.Status)
	assert.Equal(t, []string{"hello", "world"}, res.Logs)
}

func TestRuntime_ToolCallInvokesCaller(t *testing.T) {
	caller := echoCaller()
	rt := New(caller, Config{})
	res := rt.Run(context.Background(), `return echo("hi");`)
	require.Equal(t, "success", res.Status)
	assert.Equal(t, "hi", res.Result)
	assert.EqualValues(t, 1, caller.calls)
}

func TestRuntime_ThrowCatchRoundTrip(t *testing.T) {
	caller := &fakeCaller{handlers: map[string]func(map[string]interface{}) (ToolOutcome, error){
		"boom": func(map[string]interface{}) (ToolOutcome, error) {
			return ToolOutcome{Success: false, Error: "kaboom"}, nil
		},
	}}
	rt := New(caller, Config{})
	res := rt.Run(context.Background(), `
		try {
			boom({});
			return "unreachable";
		} catch (e) {
			return "caught: " + e;
		}
	`)
	require.Equal(t, "success", res.Status)
	assert.Equal(t, "caught: kaboom", res.Result)
}

func TestRuntime_UncaughtThrowBecomesErrorStatus(t *testing.T) {
	rt := New(echoCaller(), Config{})
	res := rt.Run(context.Background(), `throw "bad thing";`)
	assert.Equal(t, "error", res.Status)
	assert.Contains(t, res.Error, "bad thing")
}

func TestRuntime_MapPreservesOrderAndLength(t *testing.T) {
	caller := echoCaller()
	rt := New(caller, Config{MapConcurrency: 2})
	res := rt.Run(context.Background(), `
		return map([1, 2, 3, 4, 5], (n) => {
			return echo(n);
		});
	`)
	require.Equal(t, "success", res.Status, res.Error)
	out, ok := res.Result.([]Value)
	require.True(t, ok)
	require.Len(t, out, 5)
	for i, v := range out {
		assert.Equal(t, fmt.Sprintf("%d", i+1), v)
	}
}

func TestRuntime_MapPerItemFailureBecomesErrorString(t *testing.T) {
	caller := &fakeCaller{handlers: map[string]func(map[string]interface{}) (ToolOutcome, error){
		"flaky": func(args map[string]interface{}) (ToolOutcome, error) {
			n := args["arg0"]
			if n == float64(2) {
				return ToolOutcome{Success: false, Error: "item 2 failed"}, nil
			}
			return ToolOutcome{Success: true, Content: "ok"}, nil
		},
	}}
	rt := New(caller, Config{MapConcurrency: 3})
	res := rt.Run(context.Background(), `
		return map([1, 2, 3], (n) => {
			return flaky(n);
		});
	`)
	require.Equal(t, "success", res.Status, res.Error)
	out, ok := res.Result.([]Value)
	require.True(t, ok)
	require.Len(t, out, 3)
	assert.Equal(t, "ok", out[0])
	assert.Equal(t, "ERROR: item 2 failed", out[1])
	assert.Equal(t, "ok", out[2])
}

func TestRuntime_MapRespectsConcurrencyCap(t *testing.T) {
	var inFlight int32
	var maxSeen int32
	var mu sync.Mutex
	caller := &fakeCaller{handlers: map[string]func(map[string]interface{}) (ToolOutcome, error){
		"slow": func(map[string]interface{}) (ToolOutcome, error) {
			n := atomic.AddInt32(&inFlight, 1)
			mu.Lock()
			if n > maxSeen {
				maxSeen = n
			}
			mu.Unlock()
			time.Sleep(20 * time.Millisecond)
			atomic.AddInt32(&inFlight, -1)
			return ToolOutcome{Success: true, Content: "done"}, nil
		},
	}}
	rt := New(caller, Config{MapConcurrency: 2})
	res := rt.Run(context.Background(), `
		return map([1, 2, 3, 4, 5, 6], (n) => {
			return slow({});
		});
	`)
	require.Equal(t, "success", res.Status, res.Error)
	assert.LessOrEqual(t, maxSeen, int32(2))
}

func TestRuntime_LoopBudgetExceededAborts(t *testing.T) {
	rt := New(echoCaller(), Config{LoopBudget: 50})
	res := rt.Run(context.Background(), `
		let i = 0;
		while (true) {
			i = i + 1;
		}
		return i;
	`)
	assert.Equal(t, "error", res.Status)
	assert.Contains(t, res.Error, "loop-iteration budget")
}

func TestRuntime_DeadlineExceededAborts(t *testing.T) {
	// Cooperative cancellation only takes effect at the next suspension
	// point, so the deadline must be crossed *between* two blocking
	// calls rather than during a single one.
	caller := &fakeCaller{handlers: map[string]func(map[string]interface{}) (ToolOutcome, error){
		"slow": func(map[string]interface{}) (ToolOutcome, error) {
			time.Sleep(20 * time.Millisecond)
			return ToolOutcome{Success: true, Content: "done"}, nil
		},
	}}
	rt := New(caller, Config{Deadline: 15 * time.Millisecond})
	res := rt.Run(context.Background(), `
		for (let i = 0; i < 5; i = i + 1) {
			slow({});
		}
		return "done";
	`)
	assert.Equal(t, "error", res.Status)
}

func TestRuntime_ArrayPushMutatesBinding(t *testing.T) {
	rt := New(echoCaller(), Config{})
	res := rt.Run(context.Background(), `
		const x = [];
		for (const i of [1, 2, 3]) {
			x.push(i);
		}
		return x;
	`)
	require.Equal(t, "success", res.Status, res.Error)
	out, ok := res.Result.([]Value)
	require.True(t, ok)
	assert.Equal(t, []Value{float64(1), float64(2), float64(3)}, out)
}

func TestRuntime_ArrayMapFilterJoin(t *testing.T) {
	rt := New(echoCaller(), Config{})
	res := rt.Run(context.Background(), `
		const doubled = [1, 2, 3].map((n) => n * 2);
		const evens = doubled.filter((n) => n % 2 === 0);
		return evens.join(",");
	`)
	require.Equal(t, "success", res.Status, res.Error)
	assert.Equal(t, "2,4,6", res.Result)
}

func TestRuntime_MapReturnsSameLengthAsInput(t *testing.T) {
	rt := New(echoCaller(), Config{})
	res := rt.Run(context.Background(), `
		return map([], (n) => { return n; });
	`)
	require.Equal(t, "success", res.Status, res.Error)
	out, ok := res.Result.([]Value)
	require.True(t, ok)
	assert.Len(t, out, 0)
}
