package planvm

// AsyncNames is the set of built-in callee identifiers the runtime
// treats as asynchronous: every tool the plan script can invoke plus
// the `map` fan-out primitive. A caller embedding additional MCP-
// imported tools passes their names in via AnnotateWithNames.
var AsyncNames = map[string]bool{
	"search": true, "query": true, "extract": true, "listFiles": true,
	"bash": true, "LLM": true, "delegate": true, "map": true,
}

// internalErrName is the name Annotate records on every CatchClause as
// its InternalName. The runtime does not read it: it binds the catch
// parameter to the thrown value directly and keeps that value in the
// fiber's lastError slot.
const internalErrName = "__planvm_last_error__"

// Annotate implements the transform pass as an in-place AST
// annotation rather than a source-to-source rewrite, since the
// runtime walks the AST directly instead of re-lexing generated text:
//   - every CallExpression whose callee resolves to an asynchronous
//     name gets Async=true, and the cascade through `map`'s callback
//     argument forces that callback's own calls to be marked async too
//     (transitively, through nested map closures);
//   - every CatchClause gets its InternalName recorded and every
//     ThrowStatement is marked WrapsLastError; the runtime reads
//     neither field, since its catch/throw evaluation already writes
//     the thrown value to the fiber-local last-error slot and binds it
//     to the catch parameter;
//   - "top-level wrapping" (running the whole program as a single
//     awaited unit) is the job of Runtime.Run, which already drives
//     the program as one coroutine-like call; there is no separate AST
//     node to introduce for it.
//
// extraAsync augments AsyncNames with any additional tool/MCP names the
// caller registered at runtime construction.
func Annotate(prog *Program, extraAsync map[string]bool) {
	known := AsyncNames
	if len(extraAsync) > 0 {
		known = make(map[string]bool, len(AsyncNames)+len(extraAsync))
		for k := range AsyncNames {
			known[k] = true
		}
		for k := range extraAsync {
			known[k] = true
		}
	}
	a := &annotator{async: known}
	for _, n := range prog.Body {
		a.walk(n)
	}
}

type annotator struct {
	async map[string]bool
}

func (a *annotator) isAsyncCallee(callee Node) (string, bool) {
	id, ok := callee.(*Identifier)
	if !ok {
		return "", false
	}
	return id.Name, a.async[id.Name]
}

func (a *annotator) walk(n Node) {
	if n == nil {
		return
	}
	switch node := n.(type) {
	case *Program:
		for _, s := range node.Body {
			a.walk(s)
		}
	case *ExpressionStatement:
		a.walk(node.Expression)
	case *BlockStatement:
		for _, s := range node.Body {
			a.walk(s)
		}
	case *VariableDeclaration:
		for _, d := range node.Declarations {
			a.walk(d)
		}
	case *VariableDeclarator:
		a.walk(node.Init)
	case *FunctionDeclaration:
		a.walk(node.Body)
	case *ArrowFunctionExpression:
		a.walk(node.Body)
	case *FunctionExpression:
		a.walk(node.Body)
	case *CallExpression:
		a.walk(node.Callee)
		for _, arg := range node.Arguments {
			a.walk(arg)
		}
		if name, async := a.isAsyncCallee(node.Callee); async {
			node.Async = true
			if name == "map" && len(node.Arguments) >= 2 {
				a.forceAsyncCallback(node.Arguments[1])
			}
		}
	case *NewExpression:
		a.walk(node.Callee)
		for _, arg := range node.Arguments {
			a.walk(arg)
		}
	case *MemberExpression:
		a.walk(node.Object)
		if node.Computed {
			a.walk(node.Property)
		}
	case *TemplateLiteral:
		for _, e := range node.Expressions {
			a.walk(e)
		}
	case *TaggedTemplateExpression:
		a.walk(node.Tag)
		a.walk(node.Quasi)
	case *ArrayExpression:
		for _, e := range node.Elements {
			a.walk(e)
		}
	case *ObjectExpression:
		for _, p := range node.Properties {
			a.walk(p)
		}
	case *Property:
		a.walk(node.Value)
	case *SpreadElement:
		a.walk(node.Argument)
	case *IfStatement:
		a.walk(node.Test)
		a.walk(node.Consequent)
		a.walk(node.Alternate)
	case *SwitchStatement:
		a.walk(node.Discriminant)
		for _, c := range node.Cases {
			a.walk(c)
		}
	case *SwitchCase:
		a.walk(node.Test)
		for _, s := range node.Consequent {
			a.walk(s)
		}
	case *ConditionalExpression:
		a.walk(node.Test)
		a.walk(node.Consequent)
		a.walk(node.Alternate)
	case *ForOfStatement:
		a.walk(node.Right)
		a.walk(node.Body)
	case *ForInStatement:
		a.walk(node.Right)
		a.walk(node.Body)
	case *ForStatement:
		a.walk(node.Init)
		a.walk(node.Test)
		a.walk(node.Update)
		a.walk(node.Body)
	case *WhileStatement:
		a.walk(node.Test)
		a.walk(node.Body)
	case *TryStatement:
		a.walk(node.Block)
		if node.Handler != nil {
			node.Handler.InternalName = internalErrName
			a.walk(node.Handler.Body)
		}
		if node.Finalizer != nil {
			a.walk(node.Finalizer)
		}
	case *ThrowStatement:
		a.walk(node.Argument)
		node.WrapsLastError = true
	case *ReturnStatement:
		a.walk(node.Argument)
	case *AssignmentExpression:
		a.walk(node.Target)
		a.walk(node.Value)
	case *UpdateExpression:
		a.walk(node.Argument)
	case *BinaryExpression:
		a.walk(node.Left)
		a.walk(node.Right)
	case *LogicalExpression:
		a.walk(node.Left)
		a.walk(node.Right)
	case *UnaryExpression:
		a.walk(node.Argument)
	case *SequenceExpression:
		for _, e := range node.Expressions {
			a.walk(e)
		}
	case *ChainExpression:
		a.walk(node.Expression)
	}
}

// forceAsyncCallback marks a callback passed to `map` (and anything it
// calls, recursively) as asynchronous even when its body contains no
// directly-recognized async callee at this nesting level. The cascade
// is transitive through nested map closures.
func (a *annotator) forceAsyncCallback(fn Node) {
	switch f := fn.(type) {
	case *ArrowFunctionExpression:
		f.Async = true
		a.walk(f.Body)
	case *FunctionExpression:
		f.Async = true
		a.walk(f.Body)
	default:
		a.walk(fn)
	}
}
