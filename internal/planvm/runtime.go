package planvm

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// Config tunes the runtime's resource limits. Zero values fall back to
// the documented defaults.
type Config struct {
	Deadline       time.Duration // default 5 minutes
	LoopBudget     int64         // default 5000
	MapConcurrency int64         // default 3
}

func (c Config) withDefaults() Config {
	if c.Deadline <= 0 {
		c.Deadline = 5 * time.Minute
	}
	if c.LoopBudget <= 0 {
		c.LoopBudget = 5000
	}
	if c.MapConcurrency <= 0 {
		c.MapConcurrency = 3
	}
	return c
}

// Result is the runtime's envelope, returned whether the program
// succeeded, threw, or was aborted by a deadline/budget/cancellation.
type Result struct {
	Status string // "success" | "error"
	Result Value
	Error  string
	Logs   []string
}

// Runtime executes a validated, annotated plan program against a
// ToolCaller, enforcing a wall-clock deadline, a loop-iteration
// budget, and bounded `map` fan-out.
type Runtime struct {
	cfg    Config
	caller ToolCaller
}

// New builds a Runtime. cfg's zero value uses the documented defaults.
func New(caller ToolCaller, cfg Config) *Runtime {
	return &Runtime{cfg: cfg.withDefaults(), caller: caller}
}

// Run validates, annotates, and interprets source, returning the
// {status, result, error, logs} envelope. It never panics out to the
// caller: an internal error is converted into a status:"error" result.
func (r *Runtime) Run(ctx context.Context, source string) (res Result) {
	defer func() {
		if p := recover(); p != nil {
			res = Result{Status: "error", Error: fmt.Sprintf("planvm: internal error: %v", p)}
		}
	}()
	prog, vr := Validate(source)
	if !vr.Valid {
		var msgs []string
		for _, e := range vr.Errors {
			msgs = append(msgs, e.Error())
		}
		return Result{Status: "error", Error: "validation failed: " + strings.Join(msgs, "; ")}
	}
	extraAsync := make(map[string]bool)
	for _, name := range r.caller.Names() {
		if r.caller.IsAsync(name) {
			extraAsync[name] = true
		}
	}
	Annotate(prog, extraAsync)

	deadline := time.Now().Add(r.cfg.Deadline)
	ctx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	var logs []string
	var logsMu sync.Mutex
	logf := func(s string) {
		logsMu.Lock()
		logs = append(logs, s)
		logsMu.Unlock()
	}

	interp := &Interp{
		cfg:      r.cfg,
		sem:      semaphore.NewWeighted(r.cfg.MapConcurrency),
		logf:     logf,
		deadline: deadline,
	}
	global := buildGlobalScope(r.caller, logf)
	interp.installMap(global)

	f := &fiber{}
	ctrl, err := interp.execBlockBody(ctx, f, global, prog.Body)

	logsMu.Lock()
	out := append([]string(nil), logs...)
	logsMu.Unlock()

	if err != nil {
		if ab, ok := err.(*aborted); ok {
			return Result{Status: "error", Error: ab.reason, Logs: out}
		}
		if th, ok := err.(*thrown); ok {
			return Result{Status: "error", Error: stringifyValue(th.value), Logs: out}
		}
		return Result{Status: "error", Error: err.Error(), Logs: out}
	}
	if ctrl.kind == ctrlReturn {
		return Result{Status: "success", Result: ctrl.value, Logs: out}
	}
	return Result{Status: "success", Logs: out}
}

// ---- runtime values ----

type closureValue struct {
	name     string
	params   []string
	body     Node // *BlockStatement, or an expression when exprBody
	exprBody bool
	scope    *Scope
	async    bool
}

type builtinValue struct {
	name string
	fn   func(ctx context.Context, f *fiber, args []Value) (Value, error)
}

// fiber is per-execution-strand state. Each `map` item gets its own
// fiber so concurrent callbacks don't share a last-error slot, while
// the deadline and loop budget are shared program-wide via the Interp
// they all point back to.
type fiber struct {
	lastError Value
}

// thrown carries a plan-level exception (from `throw` or a failed tool
// call) up through exec/eval without being confused with a fatal
// runtime abort.
type thrown struct{ value Value }

func (t *thrown) Error() string { return "thrown: " + stringifyValue(t.value) }

// aborted is a fatal, non-catchable runtime condition: deadline
// exceeded, loop-budget exhausted, or external cancellation.
type aborted struct{ reason string }

func (a *aborted) Error() string { return a.reason }

// ---- scope ----

// Scope is a lexical binding environment. Each binding is a pointer
// cell so closures over an outer `let` see later mutations, matching
// ordinary JS variable semantics.
type Scope struct {
	vars   map[string]*Value
	parent *Scope
}

func newScope(parent *Scope) *Scope { return &Scope{vars: make(map[string]*Value), parent: parent} }

func (s *Scope) declare(name string, v Value) {
	vv := v
	s.vars[name] = &vv
}

func (s *Scope) get(name string) (Value, bool) {
	for sc := s; sc != nil; sc = sc.parent {
		if p, ok := sc.vars[name]; ok {
			return *p, true
		}
	}
	return nil, false
}

func (s *Scope) set(name string, v Value) bool {
	for sc := s; sc != nil; sc = sc.parent {
		if p, ok := sc.vars[name]; ok {
			*p = v
			return true
		}
	}
	return false
}

// ---- control flow ----

type ctrlKind int

const (
	ctrlNone ctrlKind = iota
	ctrlBreak
	ctrlContinue
	ctrlReturn
)

type ctrl struct {
	kind  ctrlKind
	value Value
}

// ---- interpreter ----

// Interp holds the resource limits and shared state a single Run call
// threads through every exec/eval call: the wall-clock deadline, the
// program-wide loop-iteration counter, and the `map` concurrency
// semaphore.
type Interp struct {
	cfg       Config
	sem       *semaphore.Weighted
	logf      func(string)
	deadline  time.Time
	loopMu    sync.Mutex
	loopCount int64
}

// checkSuspension runs before every statement and every expression is
// evaluated, and before each map item is scheduled. It is where
// cooperative cancellation and the deadline actually take effect.
func (in *Interp) checkSuspension(ctx context.Context) error {
	select {
	case <-ctx.Done():
		if time.Now().After(in.deadline) {
			return &aborted{reason: "plan execution exceeded its deadline"}
		}
		return &aborted{reason: "plan execution cancelled"}
	default:
		return nil
	}
}

// countLoopIteration increments the program-wide backward-branch
// counter and aborts once the budget is exhausted. It counts every
// iteration of for/while/for-of/for-in identically regardless of
// whether the loop is statically bounded; the two cases are not
// distinguishable from the AST and are intentionally not distinguished
// here.
func (in *Interp) countLoopIteration() error {
	in.loopMu.Lock()
	in.loopCount++
	over := in.loopCount > in.cfg.LoopBudget
	in.loopMu.Unlock()
	if over {
		return &aborted{reason: fmt.Sprintf("loop-iteration budget of %d exceeded", in.cfg.LoopBudget)}
	}
	return nil
}

func (in *Interp) execBlockBody(ctx context.Context, f *fiber, scope *Scope, body []Node) (ctrl, error) {
	hoistFunctionDecls(scope, body)
	for _, stmt := range body {
		c, err := in.exec(ctx, f, scope, stmt)
		if err != nil || c.kind != ctrlNone {
			return c, err
		}
	}
	return ctrl{}, nil
}

func (in *Interp) execBlock(ctx context.Context, f *fiber, parent *Scope, blk *BlockStatement) (ctrl, error) {
	scope := newScope(parent)
	return in.execBlockBody(ctx, f, scope, blk.Body)
}

// hoistFunctionDecls binds every function declaration in a block
// before executing its statements, so mutual recursion and forward
// references to a sibling function work the way JS function hoisting
// does.
func hoistFunctionDecls(scope *Scope, body []Node) {
	for _, stmt := range body {
		if fd, ok := stmt.(*FunctionDeclaration); ok {
			scope.declare(fd.Name, &closureValue{
				name: fd.Name, params: fd.Params, body: fd.Body, scope: scope, async: fd.Async,
			})
		}
	}
}

func (in *Interp) exec(ctx context.Context, f *fiber, scope *Scope, n Node) (ctrl, error) {
	if err := in.checkSuspension(ctx); err != nil {
		return ctrl{}, err
	}
	switch node := n.(type) {
	case *FunctionDeclaration:
		return ctrl{}, nil // already hoisted
	case *ExpressionStatement:
		_, err := in.eval(ctx, f, scope, node.Expression)
		return ctrl{}, err
	case *BlockStatement:
		return in.execBlock(ctx, f, scope, node)
	case *VariableDeclaration:
		for _, d := range node.Declarations {
			var v Value
			if d.Init != nil {
				var err error
				v, err = in.eval(ctx, f, scope, d.Init)
				if err != nil {
					return ctrl{}, err
				}
			}
			scope.declare(d.Name, v)
		}
		return ctrl{}, nil
	case *IfStatement:
		test, err := in.eval(ctx, f, scope, node.Test)
		if err != nil {
			return ctrl{}, err
		}
		if truthy(test) {
			return in.exec(ctx, f, scope, node.Consequent)
		}
		if node.Alternate != nil {
			return in.exec(ctx, f, scope, node.Alternate)
		}
		return ctrl{}, nil
	case *WhileStatement:
		for {
			test, err := in.eval(ctx, f, scope, node.Test)
			if err != nil {
				return ctrl{}, err
			}
			if !truthy(test) {
				return ctrl{}, nil
			}
			if err := in.countLoopIteration(); err != nil {
				return ctrl{}, err
			}
			c, err := in.exec(ctx, f, scope, node.Body)
			if err != nil {
				return ctrl{}, err
			}
			if c.kind == ctrlBreak {
				return ctrl{}, nil
			}
			if c.kind == ctrlReturn {
				return c, nil
			}
		}
	case *ForStatement:
		loopScope := newScope(scope)
		if node.Init != nil {
			if _, err := in.execInitClause(ctx, f, loopScope, node.Init); err != nil {
				return ctrl{}, err
			}
		}
		for {
			if node.Test != nil {
				test, err := in.eval(ctx, f, loopScope, node.Test)
				if err != nil {
					return ctrl{}, err
				}
				if !truthy(test) {
					return ctrl{}, nil
				}
			}
			if err := in.countLoopIteration(); err != nil {
				return ctrl{}, err
			}
			c, err := in.exec(ctx, f, loopScope, node.Body)
			if err != nil {
				return ctrl{}, err
			}
			if c.kind == ctrlBreak {
				return ctrl{}, nil
			}
			if c.kind == ctrlReturn {
				return c, nil
			}
			if node.Update != nil {
				if _, err := in.eval(ctx, f, loopScope, node.Update); err != nil {
					return ctrl{}, err
				}
			}
		}
	case *ForOfStatement:
		right, err := in.eval(ctx, f, scope, node.Right)
		if err != nil {
			return ctrl{}, err
		}
		items := iterableItems(right)
		for _, item := range items {
			iterScope := newScope(scope)
			iterScope.declare(node.Name, item)
			if err := in.countLoopIteration(); err != nil {
				return ctrl{}, err
			}
			c, err := in.exec(ctx, f, iterScope, node.Body)
			if err != nil {
				return ctrl{}, err
			}
			if c.kind == ctrlBreak {
				return ctrl{}, nil
			}
			if c.kind == ctrlReturn {
				return c, nil
			}
		}
		return ctrl{}, nil
	case *ForInStatement:
		right, err := in.eval(ctx, f, scope, node.Right)
		if err != nil {
			return ctrl{}, err
		}
		var keys []string
		if m, ok := right.(map[string]Value); ok {
			keys = sortedKeys(m)
		}
		for _, k := range keys {
			iterScope := newScope(scope)
			iterScope.declare(node.Name, k)
			if err := in.countLoopIteration(); err != nil {
				return ctrl{}, err
			}
			c, err := in.exec(ctx, f, iterScope, node.Body)
			if err != nil {
				return ctrl{}, err
			}
			if c.kind == ctrlBreak {
				return ctrl{}, nil
			}
			if c.kind == ctrlReturn {
				return c, nil
			}
		}
		return ctrl{}, nil
	case *SwitchStatement:
		disc, err := in.eval(ctx, f, scope, node.Discriminant)
		if err != nil {
			return ctrl{}, err
		}
		switchScope := newScope(scope)
		matched := false
		for _, c := range node.Cases {
			if !matched {
				if c.Test == nil {
					continue // default is tried only once nothing else matched, below
				}
				tv, err := in.eval(ctx, f, switchScope, c.Test)
				if err != nil {
					return ctrl{}, err
				}
				if !strictEquals(disc, tv) {
					continue
				}
				matched = true
			}
			rc, err := in.execBlockBody(ctx, f, switchScope, c.Consequent)
			if err != nil {
				return ctrl{}, err
			}
			if rc.kind == ctrlBreak {
				return ctrl{}, nil
			}
			if rc.kind != ctrlNone {
				return rc, nil
			}
		}
		if !matched {
			fallen := false
			for _, c := range node.Cases {
				if c.Test == nil {
					fallen = true
				}
				if !fallen {
					continue
				}
				rc, err := in.execBlockBody(ctx, f, switchScope, c.Consequent)
				if err != nil {
					return ctrl{}, err
				}
				if rc.kind == ctrlBreak {
					return ctrl{}, nil
				}
				if rc.kind != ctrlNone {
					return rc, nil
				}
			}
		}
		return ctrl{}, nil
	case *TryStatement:
		return in.execTry(ctx, f, scope, node)
	case *ThrowStatement:
		v, err := in.eval(ctx, f, scope, node.Argument)
		if err != nil {
			return ctrl{}, err
		}
		f.lastError = v
		return ctrl{}, &thrown{value: v}
	case *ReturnStatement:
		if node.Argument == nil {
			return ctrl{kind: ctrlReturn}, nil
		}
		v, err := in.eval(ctx, f, scope, node.Argument)
		if err != nil {
			return ctrl{}, err
		}
		return ctrl{kind: ctrlReturn, value: v}, nil
	case *BreakStatement:
		return ctrl{kind: ctrlBreak}, nil
	case *ContinueStatement:
		return ctrl{kind: ctrlContinue}, nil
	default:
		return ctrl{}, fmt.Errorf("planvm: unexpected statement node %T", n)
	}
}

func (in *Interp) execInitClause(ctx context.Context, f *fiber, scope *Scope, n Node) (Value, error) {
	if vd, ok := n.(*VariableDeclaration); ok {
		_, err := in.exec(ctx, f, scope, vd)
		return nil, err
	}
	return in.eval(ctx, f, scope, n)
}

func (in *Interp) execTry(ctx context.Context, f *fiber, scope *Scope, node *TryStatement) (ctrl, error) {
	runFinally := func(c ctrl, err error) (ctrl, error) {
		if node.Finalizer == nil {
			return c, err
		}
		fc, ferr := in.execBlock(ctx, f, scope, node.Finalizer)
		if ferr != nil {
			return ctrl{}, ferr
		}
		if fc.kind != ctrlNone {
			return fc, nil
		}
		return c, err
	}

	bc, err := in.execBlock(ctx, f, scope, node.Block)
	if err == nil {
		return runFinally(bc, nil)
	}

	th, ok := err.(*thrown)
	if !ok || node.Handler == nil {
		return runFinally(ctrl{}, err)
	}

	f.lastError = th.value
	catchScope := newScope(scope)
	if node.Handler.Param != "" {
		catchScope.declare(node.Handler.Param, th.value)
	}
	cc, cerr := in.execBlock(ctx, f, catchScope, node.Handler.Body)
	return runFinally(cc, cerr)
}

// ---- expression evaluation ----

func (in *Interp) eval(ctx context.Context, f *fiber, scope *Scope, n Node) (Value, error) {
	if err := in.checkSuspension(ctx); err != nil {
		return nil, err
	}
	switch node := n.(type) {
	case *Literal:
		return node.Value, nil
	case *Identifier:
		if v, ok := scope.get(node.Name); ok {
			return v, nil
		}
		return nil, fmt.Errorf("planvm: undefined identifier %q", node.Name)
	case *TemplateLiteral:
		var sb strings.Builder
		for i, q := range node.Quasis {
			sb.WriteString(q.Raw)
			if i < len(node.Expressions) {
				v, err := in.eval(ctx, f, scope, node.Expressions[i])
				if err != nil {
					return nil, err
				}
				sb.WriteString(stringifyValue(v))
			}
		}
		return sb.String(), nil
	case *TaggedTemplateExpression:
		// Tagged templates are accepted by the grammar but plan
		// scripts have no tag functions to call; evaluate as a plain
		// template, which is the only sensible default absent a tag
		// registry.
		return in.eval(ctx, f, scope, node.Quasi)
	case *ArrayExpression:
		var out []Value
		for _, el := range node.Elements {
			if sp, ok := el.(*SpreadElement); ok {
				v, err := in.eval(ctx, f, scope, sp.Argument)
				if err != nil {
					return nil, err
				}
				out = append(out, iterableItems(v)...)
				continue
			}
			v, err := in.eval(ctx, f, scope, el)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil
	case *ObjectExpression:
		out := map[string]Value{}
		for _, p := range node.Properties {
			if p.Key == nil {
				if sp, ok := p.Value.(*SpreadElement); ok {
					v, err := in.eval(ctx, f, scope, sp.Argument)
					if err != nil {
						return nil, err
					}
					if m, ok := v.(map[string]Value); ok {
						for k, vv := range m {
							out[k] = vv
						}
					}
					continue
				}
			}
			key, err := in.propertyKey(ctx, f, scope, p)
			if err != nil {
				return nil, err
			}
			v, err := in.eval(ctx, f, scope, p.Value)
			if err != nil {
				return nil, err
			}
			out[key] = v
		}
		return out, nil
	case *FunctionExpression:
		return &closureValue{name: node.Name, params: node.Params, body: node.Body, scope: scope, async: node.Async}, nil
	case *ArrowFunctionExpression:
		return &closureValue{params: node.Params, body: node.Body, exprBody: node.ExprBody, scope: scope, async: node.Async}, nil
	case *SequenceExpression:
		var v Value
		for _, e := range node.Expressions {
			var err error
			v, err = in.eval(ctx, f, scope, e)
			if err != nil {
				return nil, err
			}
		}
		return v, nil
	case *ChainExpression:
		v, err := in.evalOptional(ctx, f, scope, node.Expression)
		return v, err
	case *ConditionalExpression:
		t, err := in.eval(ctx, f, scope, node.Test)
		if err != nil {
			return nil, err
		}
		if truthy(t) {
			return in.eval(ctx, f, scope, node.Consequent)
		}
		return in.eval(ctx, f, scope, node.Alternate)
	case *LogicalExpression:
		left, err := in.eval(ctx, f, scope, node.Left)
		if err != nil {
			return nil, err
		}
		switch node.Operator {
		case "&&":
			if !truthy(left) {
				return left, nil
			}
			return in.eval(ctx, f, scope, node.Right)
		case "||":
			if truthy(left) {
				return left, nil
			}
			return in.eval(ctx, f, scope, node.Right)
		case "??":
			if left != nil {
				return left, nil
			}
			return in.eval(ctx, f, scope, node.Right)
		}
		return nil, fmt.Errorf("planvm: unknown logical operator %q", node.Operator)
	case *BinaryExpression:
		left, err := in.eval(ctx, f, scope, node.Left)
		if err != nil {
			return nil, err
		}
		right, err := in.eval(ctx, f, scope, node.Right)
		if err != nil {
			return nil, err
		}
		return evalBinary(node.Operator, left, right)
	case *UnaryExpression:
		if node.Operator == "typeof" {
			if id, ok := node.Argument.(*Identifier); ok {
				if _, found := scope.get(id.Name); !found {
					return "undefined", nil
				}
			}
			v, err := in.eval(ctx, f, scope, node.Argument)
			if err != nil {
				return nil, err
			}
			return typeOf(v), nil
		}
		v, err := in.eval(ctx, f, scope, node.Argument)
		if err != nil {
			return nil, err
		}
		switch node.Operator {
		case "!":
			return !truthy(v), nil
		case "-":
			return -toNumber(v), nil
		case "+":
			return toNumber(v), nil
		case "~":
			return float64(^int64(toNumber(v))), nil
		case "void":
			return nil, nil
		}
		return nil, fmt.Errorf("planvm: unknown unary operator %q", node.Operator)
	case *UpdateExpression:
		old, err := in.eval(ctx, f, scope, node.Argument)
		if err != nil {
			return nil, err
		}
		delta := 1.0
		if node.Operator == "--" {
			delta = -1.0
		}
		newVal := toNumber(old) + delta
		if err := in.assignTo(ctx, f, scope, node.Argument, newVal); err != nil {
			return nil, err
		}
		if node.Prefix {
			return newVal, nil
		}
		return toNumber(old), nil
	case *AssignmentExpression:
		return in.evalAssignment(ctx, f, scope, node)
	case *MemberExpression:
		return in.evalMember(ctx, f, scope, node)
	case *CallExpression:
		return in.evalCall(ctx, f, scope, node)
	case *NewExpression:
		return in.evalNew(ctx, f, scope, node)
	case *SpreadElement:
		return in.eval(ctx, f, scope, node.Argument)
	default:
		return nil, fmt.Errorf("planvm: unexpected expression node %T", n)
	}
}

// evalOptional evaluates a ChainExpression's wrapped expression,
// short-circuiting to nil the instant any `?.` link meets a nil
// object instead of erroring.
func (in *Interp) evalOptional(ctx context.Context, f *fiber, scope *Scope, n Node) (Value, error) {
	switch node := n.(type) {
	case *MemberExpression:
		obj, err := in.evalOptional(ctx, f, scope, node.Object)
		if err != nil {
			return nil, err
		}
		if obj == nil && (node.Optional || isOptionalChain(node.Object)) {
			return nil, nil
		}
		return in.memberOf(ctx, f, scope, obj, node)
	case *CallExpression:
		calleeVal, shortCircuit, err := in.evalCallee(ctx, f, scope, node)
		if err != nil {
			return nil, err
		}
		if shortCircuit {
			return nil, nil
		}
		return in.invoke(ctx, f, scope, calleeVal, node)
	default:
		return in.eval(ctx, f, scope, n)
	}
}

func isOptionalChain(n Node) bool {
	if m, ok := n.(*MemberExpression); ok {
		return m.Optional || isOptionalChain(m.Object)
	}
	return false
}

func (in *Interp) propertyKey(ctx context.Context, f *fiber, scope *Scope, p *Property) (string, error) {
	if p.Computed {
		v, err := in.eval(ctx, f, scope, p.Key)
		if err != nil {
			return "", err
		}
		return stringifyValue(v), nil
	}
	switch k := p.Key.(type) {
	case *Identifier:
		return k.Name, nil
	case *Literal:
		return stringifyValue(k.Value), nil
	}
	return "", fmt.Errorf("planvm: invalid object property key")
}

func (in *Interp) evalMember(ctx context.Context, f *fiber, scope *Scope, node *MemberExpression) (Value, error) {
	obj, err := in.eval(ctx, f, scope, node.Object)
	if err != nil {
		return nil, err
	}
	return in.memberOf(ctx, f, scope, obj, node)
}

func (in *Interp) memberOf(ctx context.Context, f *fiber, scope *Scope, obj Value, node *MemberExpression) (Value, error) {
	var key string
	if node.Computed {
		kv, err := in.eval(ctx, f, scope, node.Property)
		if err != nil {
			return nil, err
		}
		if idx, ok := kv.(float64); ok {
			if list, ok := obj.([]Value); ok {
				i := int(idx)
				if i < 0 || i >= len(list) {
					return nil, nil
				}
				return list[i], nil
			}
		}
		key = stringifyValue(kv)
	} else {
		key = node.Property.(*Identifier).Name
	}
	return in.memberAccess(obj, key), nil
}

// memberAccess implements the handful of properties/methods the
// runtime's values support: array/string `.length`, the small set of
// array/string helper methods plan scripts commonly reach for, and
// plain object field access. Method lookups bind the receiver into a
// closure over the *Interp so callback-taking methods (map, filter,
// reduce, ...) can call back into the interpreter.
func (in *Interp) memberAccess(obj Value, key string) Value {
	switch v := obj.(type) {
	case []Value:
		if key == "length" {
			return float64(len(v))
		}
		return in.arrayMethod(v, key)
	case string:
		if key == "length" {
			return float64(len(v))
		}
		return stringMethod(v, key)
	case map[string]Value:
		return v[key]
	}
	return nil
}

func (in *Interp) evalAssignment(ctx context.Context, f *fiber, scope *Scope, node *AssignmentExpression) (Value, error) {
	if node.Operator == "=" {
		v, err := in.eval(ctx, f, scope, node.Value)
		if err != nil {
			return nil, err
		}
		if err := in.assignTo(ctx, f, scope, node.Target, v); err != nil {
			return nil, err
		}
		return v, nil
	}

	cur, err := in.eval(ctx, f, scope, node.Target)
	if err != nil {
		return nil, err
	}
	op := strings.TrimSuffix(node.Operator, "=")
	var result Value
	switch op {
	case "&&":
		if !truthy(cur) {
			return cur, nil
		}
		result, err = in.eval(ctx, f, scope, node.Value)
	case "||":
		if truthy(cur) {
			return cur, nil
		}
		result, err = in.eval(ctx, f, scope, node.Value)
	case "??":
		if cur != nil {
			return cur, nil
		}
		result, err = in.eval(ctx, f, scope, node.Value)
	default:
		var rhs Value
		rhs, err = in.eval(ctx, f, scope, node.Value)
		if err == nil {
			result, err = evalBinary(op, cur, rhs)
		}
	}
	if err != nil {
		return nil, err
	}
	if err := in.assignTo(ctx, f, scope, node.Target, result); err != nil {
		return nil, err
	}
	return result, nil
}

func (in *Interp) assignTo(ctx context.Context, f *fiber, scope *Scope, target Node, v Value) error {
	switch t := target.(type) {
	case *Identifier:
		if scope.set(t.Name, v) {
			return nil
		}
		scope.declare(t.Name, v)
		return nil
	case *MemberExpression:
		obj, err := in.eval(ctx, f, scope, t.Object)
		if err != nil {
			return err
		}
		var key string
		if t.Computed {
			kv, err := in.eval(ctx, f, scope, t.Property)
			if err != nil {
				return err
			}
			key = stringifyValue(kv)
		} else {
			key = t.Property.(*Identifier).Name
		}
		if m, ok := obj.(map[string]Value); ok {
			m[key] = v
			return nil
		}
		return fmt.Errorf("planvm: cannot assign property %q on non-object value", key)
	}
	return fmt.Errorf("planvm: invalid assignment target")
}

func (in *Interp) evalNew(ctx context.Context, f *fiber, scope *Scope, node *NewExpression) (Value, error) {
	name := ""
	if id, ok := node.Callee.(*Identifier); ok {
		name = id.Name
	}
	var args []Value
	for _, a := range node.Arguments {
		v, err := in.eval(ctx, f, scope, a)
		if err != nil {
			return nil, err
		}
		args = append(args, v)
	}
	switch name {
	case "Error", "TypeError", "RangeError":
		msg := ""
		if len(args) > 0 {
			msg = stringifyValue(args[0])
		}
		return map[string]Value{"name": name, "message": msg}, nil
	}
	return nil, fmt.Errorf("planvm: unsupported constructor %q", name)
}

// evalCallee resolves a CallExpression's callee to an invocable Value,
// reporting whether an optional link in the chain short-circuited.
func (in *Interp) evalCallee(ctx context.Context, f *fiber, scope *Scope, node *CallExpression) (Value, bool, error) {
	v, err := in.eval(ctx, f, scope, node.Callee)
	if err != nil {
		return nil, false, err
	}
	if v == nil && node.Optional {
		return nil, true, nil
	}
	return v, false, nil
}

// arrayMutatingMethods names the array methods that rewrite their
// receiver in place in JS. Since Value arrays are plain Go slices with
// value semantics, these are special-cased at the call site: the
// receiver expression is re-evaluated, the new slice is computed, and
// the result is written back through assignTo rather than mutated
// through a shared backing array.
var arrayMutatingMethods = map[string]bool{
	"push": true, "pop": true, "shift": true, "unshift": true,
	"splice": true, "sort": true, "reverse": true,
}

func (in *Interp) evalCall(ctx context.Context, f *fiber, scope *Scope, node *CallExpression) (Value, error) {
	if me, ok := node.Callee.(*MemberExpression); ok && !me.Computed {
		if prop, ok2 := me.Property.(*Identifier); ok2 && arrayMutatingMethods[prop.Name] {
			handled, result, err := in.tryArrayMutatingCall(ctx, f, scope, node, me, prop.Name)
			if handled {
				return result, err
			}
		}
	}

	calleeVal, shortCircuit, err := in.evalCallee(ctx, f, scope, node)
	if err != nil {
		return nil, err
	}
	if shortCircuit {
		return nil, nil
	}
	return in.invoke(ctx, f, scope, calleeVal, node)
}

// evalArgs evaluates a call's argument list, expanding any spread
// element in place.
func (in *Interp) evalArgs(ctx context.Context, f *fiber, scope *Scope, nodes []Node) ([]Value, error) {
	var args []Value
	for _, a := range nodes {
		if sp, ok := a.(*SpreadElement); ok {
			v, err := in.eval(ctx, f, scope, sp.Argument)
			if err != nil {
				return nil, err
			}
			args = append(args, iterableItems(v)...)
			continue
		}
		v, err := in.eval(ctx, f, scope, a)
		if err != nil {
			return nil, err
		}
		args = append(args, v)
	}
	return args, nil
}

// tryArrayMutatingCall handles `<expr>.<mutatingMethod>(...)` when
// <expr> evaluates to an array, writing the rewritten slice back to
// the receiver via assignTo. handled is false when the receiver isn't
// an array, in which case the caller falls through to the ordinary
// property-call path (so e.g. a plan-level object with its own `push`
// field still dispatches normally).
func (in *Interp) tryArrayMutatingCall(ctx context.Context, f *fiber, scope *Scope, node *CallExpression, me *MemberExpression, method string) (handled bool, result Value, err error) {
	objVal, err := in.eval(ctx, f, scope, me.Object)
	if err != nil {
		return true, nil, err
	}
	arr, ok := objVal.([]Value)
	if !ok {
		return false, nil, nil
	}
	args, err := in.evalArgs(ctx, f, scope, node.Arguments)
	if err != nil {
		return true, nil, err
	}

	newArr, ret, err := in.applyArrayMutator(ctx, f, arr, method, args)
	if err != nil {
		return true, nil, err
	}
	if err := in.assignTo(ctx, f, scope, me.Object, newArr); err != nil {
		return true, nil, err
	}
	return true, ret, nil
}

func (in *Interp) invoke(ctx context.Context, f *fiber, scope *Scope, calleeVal Value, node *CallExpression) (Value, error) {
	args, err := in.evalArgs(ctx, f, scope, node.Arguments)
	if err != nil {
		return nil, err
	}

	switch callee := calleeVal.(type) {
	case *builtinValue:
		return callee.fn(ctx, f, args)
	case *closureValue:
		return in.callClosure(ctx, f, callee, args)
	}
	return nil, fmt.Errorf("planvm: value is not callable")
}

func (in *Interp) callClosure(ctx context.Context, f *fiber, c *closureValue, args []Value) (Value, error) {
	callScope := newScope(c.scope)
	for i, p := range c.params {
		var v Value
		if i < len(args) {
			v = args[i]
		}
		callScope.declare(p, v)
	}
	if c.exprBody {
		return in.eval(ctx, f, callScope, c.body)
	}
	blk := c.body.(*BlockStatement)
	rc, err := in.execBlock(ctx, f, callScope, blk)
	if err != nil {
		return nil, err
	}
	if rc.kind == ctrlReturn {
		return rc.value, nil
	}
	return nil, nil
}

// installMap wires the `map` fan-out primitive into scope. It needs
// the interpreter itself (to invoke the plan-level callback) so it is
// installed here rather than as a plain env.go builtin.
func (in *Interp) installMap(scope *Scope) {
	scope.declare("map", &builtinValue{name: "map", fn: func(ctx context.Context, f *fiber, args []Value) (Value, error) {
		if len(args) < 2 {
			return nil, &thrown{value: "map requires (items, callback)"}
		}
		items, _ := args[0].([]Value)
		callback, ok := args[1].(*closureValue)
		if !ok {
			return nil, &thrown{value: "map's second argument must be a function"}
		}

		results := make([]Value, len(items))
		var wg sync.WaitGroup
		var firstAbort error
		var abortMu sync.Mutex

		for i, item := range items {
			if err := in.checkSuspension(ctx); err != nil {
				return nil, err
			}
			if err := in.sem.Acquire(ctx, 1); err != nil {
				return nil, &aborted{reason: "plan execution cancelled while waiting for map concurrency"}
			}
			wg.Add(1)
			go func(i int, item Value) {
				defer wg.Done()
				defer in.sem.Release(1)
				defer func() {
					if p := recover(); p != nil {
						abortMu.Lock()
						if firstAbort == nil {
							firstAbort = &aborted{reason: fmt.Sprintf("planvm: internal error: %v", p)}
						}
						abortMu.Unlock()
					}
				}()
				itemFiber := &fiber{}
				v, err := in.callClosure(ctx, itemFiber, callback, []Value{item, float64(i)})
				if err != nil {
					if ab, ok := err.(*aborted); ok {
						abortMu.Lock()
						if firstAbort == nil {
							firstAbort = ab
						}
						abortMu.Unlock()
						return
					}
					if th, ok := err.(*thrown); ok {
						results[i] = "ERROR: " + stringifyValue(th.value)
						return
					}
					results[i] = "ERROR: " + err.Error()
					return
				}
				results[i] = v
			}(i, item)
		}
		wg.Wait()
		if firstAbort != nil {
			return nil, firstAbort
		}
		return results, nil
	}})
}

// ---- value helpers ----

func truthy(v Value) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case float64:
		return t != 0 && !math.IsNaN(t)
	case string:
		return t != ""
	case []Value:
		return true
	case map[string]Value:
		return true
	default:
		return true
	}
}

func toNumber(v Value) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case bool:
		if t {
			return 1
		}
		return 0
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return math.NaN()
		}
		return f
	case nil:
		return 0
	}
	return math.NaN()
}

func stringifyValue(v Value) string {
	switch t := v.(type) {
	case nil:
		return "undefined"
	case string:
		return t
	case bool:
		if t {
			return "true"
		}
		return "false"
	case float64:
		if t == math.Trunc(t) && !math.IsInf(t, 0) {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'g', -1, 64)
	case []Value:
		parts := make([]string, len(t))
		for i, e := range t {
			parts[i] = stringifyValue(e)
		}
		return strings.Join(parts, ",")
	case map[string]Value:
		return "[object Object]"
	case *closureValue:
		return "[function " + t.name + "]"
	case *builtinValue:
		return "[function " + t.name + "]"
	}
	return fmt.Sprintf("%v", v)
}

func typeOf(v Value) string {
	switch v.(type) {
	case nil:
		return "undefined"
	case bool:
		return "boolean"
	case float64:
		return "number"
	case string:
		return "string"
	case *closureValue, *builtinValue:
		return "function"
	default:
		return "object"
	}
}

func strictEquals(a, b Value) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	switch av := a.(type) {
	case float64:
		bv, ok := b.(float64)
		return ok && av == bv
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	}
	return a == b
}

func looseEquals(a, b Value) bool {
	if strictEquals(a, b) {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	_, aNum := a.(float64)
	_, bNum := b.(float64)
	_, aStr := a.(string)
	_, bStr := b.(string)
	if (aNum && bStr) || (aStr && bNum) {
		return toNumber(a) == toNumber(b)
	}
	return false
}

func iterableItems(v Value) []Value {
	switch t := v.(type) {
	case []Value:
		return t
	case string:
		out := make([]Value, 0, len(t))
		for _, r := range t {
			out = append(out, string(r))
		}
		return out
	case map[string]Value:
		out := make([]Value, 0, len(t))
		for _, k := range sortedKeys(t) {
			out = append(out, t[k])
		}
		return out
	}
	return nil
}

func evalBinary(op string, left, right Value) (Value, error) {
	switch op {
	case "+":
		if ls, ok := left.(string); ok {
			return ls + stringifyValue(right), nil
		}
		if rs, ok := right.(string); ok {
			return stringifyValue(left) + rs, nil
		}
		return toNumber(left) + toNumber(right), nil
	case "-":
		return toNumber(left) - toNumber(right), nil
	case "*":
		return toNumber(left) * toNumber(right), nil
	case "/":
		return toNumber(left) / toNumber(right), nil
	case "%":
		return math.Mod(toNumber(left), toNumber(right)), nil
	case "**":
		return math.Pow(toNumber(left), toNumber(right)), nil
	case "==":
		return looseEquals(left, right), nil
	case "!=":
		return !looseEquals(left, right), nil
	case "===":
		return strictEquals(left, right), nil
	case "!==":
		return !strictEquals(left, right), nil
	case "<":
		return compare(left, right) < 0, nil
	case ">":
		return compare(left, right) > 0, nil
	case "<=":
		return compare(left, right) <= 0, nil
	case ">=":
		return compare(left, right) >= 0, nil
	case "&":
		return float64(int64(toNumber(left)) & int64(toNumber(right))), nil
	case "|":
		return float64(int64(toNumber(left)) | int64(toNumber(right))), nil
	case "^":
		return float64(int64(toNumber(left)) ^ int64(toNumber(right))), nil
	case "in":
		if m, ok := right.(map[string]Value); ok {
			_, found := m[stringifyValue(left)]
			return found, nil
		}
		return false, nil
	case "instanceof":
		return false, nil
	}
	return nil, fmt.Errorf("planvm: unknown binary operator %q", op)
}

func compare(a, b Value) int {
	as, aIsStr := a.(string)
	bs, bIsStr := b.(string)
	if aIsStr && bIsStr {
		return strings.Compare(as, bs)
	}
	af, bf := toNumber(a), toNumber(b)
	switch {
	case af < bf:
		return -1
	case af > bf:
		return 1
	default:
		return 0
	}
}
