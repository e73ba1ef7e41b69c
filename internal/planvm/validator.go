package planvm

import "fmt"

// BlockedIdentifiers names every binding that would let plan code
// escape the sandbox: the dynamic-code and constructor entry points,
// the prototype chain, the module loader, the process handle, timers,
// and reflection/proxy machinery. Any use as a bare identifier, as a
// declarator binding, or as a non-computed/computed member-access
// property name is a validation error.
var BlockedIdentifiers = map[string]bool{
	"eval":               true,
	"Function":           true,
	"constructor":        true,
	"__proto__":          true,
	"prototype":          true,
	"globalThis":         true,
	"global":             true,
	"process":            true,
	"require":            true,
	"module":             true,
	"exports":            true,
	"import":             true,
	"setTimeout":         true,
	"setInterval":        true,
	"setImmediate":       true,
	"Reflect":            true,
	"Proxy":              true,
	"WeakRef":            true,
	"FinalizationRegistry": true,
}

// ValidationResult is the outcome of Validate.
type ValidationResult struct {
	Valid  bool
	Errors []*ParseError
}

// Validate parses source and walks every node, rejecting any reachable
// blocked identifier or property access. The parser itself can only
// produce node kinds in AllowedKinds, so the node-kind allow-list is
// structurally enforced by construction; Validate's job is the
// identifier/property blocklist and the additional rules around it
// (declarators that bind a blocked name, async/generator function
// modifiers).
func Validate(source string) (*Program, *ValidationResult) {
	prog, err := Parse(source)
	if err != nil {
		pe, _ := err.(*ParseError)
		if pe == nil {
			pe = &ParseError{Message: err.Error()}
		}
		return nil, &ValidationResult{Valid: false, Errors: []*ParseError{withSnippet(pe, source)}}
	}

	v := &validator{source: source}
	v.walkProgram(prog)
	if len(v.errors) > 0 {
		return prog, &ValidationResult{Valid: false, Errors: v.errors}
	}
	return prog, &ValidationResult{Valid: true}
}

type validator struct {
	source string
	errors []*ParseError
}

func (v *validator) fail(pos Pos, format string, args ...interface{}) {
	v.errors = append(v.errors, withSnippet(&ParseError{Pos: pos, Message: fmt.Sprintf(format, args...)}, v.source))
}

func withSnippet(pe *ParseError, source string) *ParseError {
	if pe.Snippet == "" {
		pe.Snippet = snippetAt(source, pe.Pos.Line)
	}
	return pe
}

func snippetAt(source string, line int) string {
	n, start := 1, 0
	for i := 0; i < len(source); i++ {
		if n == line {
			end := len(source)
			for j := i; j < len(source); j++ {
				if source[j] == '\n' {
					end = j
					break
				}
			}
			return source[start:end]
		}
		if source[i] == '\n' {
			n++
			start = i + 1
		}
	}
	return ""
}

func (v *validator) checkName(name string, pos Pos) {
	if BlockedIdentifiers[name] {
		v.fail(pos, "blocked identifier: %q", name)
	}
}

func (v *validator) walkProgram(prog *Program) {
	for _, n := range prog.Body {
		v.walk(n)
	}
}

// walk recursively visits every node. Because the grammar can only
// produce kinds in AllowedKinds, this function's switch is exhaustive
// over the whitelist rather than a second enforcement of it; any kind
// it doesn't recognize is a programming error in the parser, not a
// user-supplied attack, and is reported as such.
func (v *validator) walk(n Node) {
	if n == nil {
		return
	}
	switch node := n.(type) {
	case *Program:
		v.walkProgram(node)
	case *ExpressionStatement:
		v.walk(node.Expression)
	case *BlockStatement:
		for _, s := range node.Body {
			v.walk(s)
		}
	case *VariableDeclaration:
		for _, d := range node.Declarations {
			v.walk(d)
		}
	case *VariableDeclarator:
		v.checkName(node.Name, node.Position())
		v.walk(node.Init)
	case *FunctionDeclaration:
		v.checkName(node.Name, node.Position())
		v.walkFunc(node.Params, node.Body, node.Async, node.Position())
	case *ArrowFunctionExpression:
		v.walkFunc(node.Params, node.Body, node.Async, node.Position())
	case *FunctionExpression:
		if node.Name != "" {
			v.checkName(node.Name, node.Position())
		}
		v.walkFunc(node.Params, node.Body, node.Async, node.Position())
	case *CallExpression:
		v.walk(node.Callee)
		for _, a := range node.Arguments {
			v.walk(a)
		}
	case *NewExpression:
		v.walk(node.Callee)
		for _, a := range node.Arguments {
			v.walk(a)
		}
	case *MemberExpression:
		v.walk(node.Object)
		if node.Computed {
			if lit, ok := node.Property.(*Literal); ok {
				if s, ok := lit.Value.(string); ok && BlockedIdentifiers[s] {
					v.fail(node.Position(), "blocked property access: %q", s)
				}
			}
			v.walk(node.Property)
		} else if id, ok := node.Property.(*Identifier); ok {
			if BlockedIdentifiers[id.Name] {
				v.fail(node.Position(), "blocked property access: %q", id.Name)
			}
		}
	case *Identifier:
		v.checkName(node.Name, node.Position())
	case *Literal:
	case *TemplateLiteral:
		for _, e := range node.Expressions {
			v.walk(e)
		}
	case *TemplateElement:
	case *TaggedTemplateExpression:
		v.walk(node.Tag)
		v.walk(node.Quasi)
	case *ArrayExpression:
		for _, e := range node.Elements {
			v.walk(e)
		}
	case *ObjectExpression:
		for _, p := range node.Properties {
			v.walk(p)
		}
	case *Property:
		if node.Key != nil {
			if id, ok := node.Key.(*Identifier); ok && !node.Computed {
				v.checkName(id.Name, node.Position())
			} else {
				v.walk(node.Key)
			}
		}
		v.walk(node.Value)
	case *SpreadElement:
		v.walk(node.Argument)
	case *IfStatement:
		v.walk(node.Test)
		v.walk(node.Consequent)
		v.walk(node.Alternate)
	case *SwitchStatement:
		v.walk(node.Discriminant)
		for _, c := range node.Cases {
			v.walk(c)
		}
	case *SwitchCase:
		v.walk(node.Test)
		for _, s := range node.Consequent {
			v.walk(s)
		}
	case *ConditionalExpression:
		v.walk(node.Test)
		v.walk(node.Consequent)
		v.walk(node.Alternate)
	case *ForOfStatement:
		v.checkName(node.Name, node.Position())
		v.walk(node.Right)
		v.walk(node.Body)
	case *ForInStatement:
		v.checkName(node.Name, node.Position())
		v.walk(node.Right)
		v.walk(node.Body)
	case *ForStatement:
		v.walk(node.Init)
		v.walk(node.Test)
		v.walk(node.Update)
		v.walk(node.Body)
	case *WhileStatement:
		v.walk(node.Test)
		v.walk(node.Body)
	case *TryStatement:
		v.walk(node.Block)
		if node.Handler != nil {
			v.walk(node.Handler)
		}
		if node.Finalizer != nil {
			v.walk(node.Finalizer)
		}
	case *CatchClause:
		if node.Param != "" {
			v.checkName(node.Param, node.Position())
		}
		v.walk(node.Body)
	case *ThrowStatement:
		v.walk(node.Argument)
	case *ReturnStatement:
		v.walk(node.Argument)
	case *BreakStatement:
	case *ContinueStatement:
	case *AssignmentExpression:
		v.walk(node.Target)
		v.walk(node.Value)
	case *UpdateExpression:
		v.walk(node.Argument)
	case *BinaryExpression:
		v.walk(node.Left)
		v.walk(node.Right)
	case *LogicalExpression:
		v.walk(node.Left)
		v.walk(node.Right)
	case *UnaryExpression:
		v.walk(node.Argument)
	case *SequenceExpression:
		for _, e := range node.Expressions {
			v.walk(e)
		}
	case *ChainExpression:
		v.walk(node.Expression)
	default:
		v.fail(n.Position(), "unsupported node kind %q", n.Kind())
	}
}

func (v *validator) walkFunc(params []string, body Node, async bool, pos Pos) {
	if async {
		v.fail(pos, "function carries an async modifier set outside the transform pass")
	}
	for _, p := range params {
		v.checkName(p, pos)
	}
	v.walk(body)
}
