// Package planvm implements the sandboxed interpreter that runs
// model-emitted plan scripts in terms of built-in tool primitives: a
// hand-rolled lexer, a recursive-descent parser restricted to an
// allow-listed node grammar, an await/catch/top-level rewrite pass, and
// a tree-walking interpreter with a wall-clock deadline, a
// loop-iteration budget, and bounded fan-out via map.
package planvm

// Kind identifies an AST node's grammar production. Only the kinds
// listed here are reachable from the parser; anything the source text
// asks for outside this set surfaces as a validation error rather than
// a silently-accepted extension.
type Kind string

const (
	KindProgram                  Kind = "Program"
	KindExpressionStatement      Kind = "ExpressionStatement"
	KindBlockStatement           Kind = "BlockStatement"
	KindVariableDeclaration      Kind = "VariableDeclaration"
	KindVariableDeclarator       Kind = "VariableDeclarator"
	KindFunctionDeclaration      Kind = "FunctionDeclaration"
	KindArrowFunctionExpression  Kind = "ArrowFunctionExpression"
	KindFunctionExpression       Kind = "FunctionExpression"
	KindCallExpression           Kind = "CallExpression"
	KindNewExpression            Kind = "NewExpression"
	KindMemberExpression         Kind = "MemberExpression"
	KindIdentifier               Kind = "Identifier"
	KindLiteral                  Kind = "Literal"
	KindTemplateLiteral          Kind = "TemplateLiteral"
	KindTemplateElement          Kind = "TemplateElement"
	KindTaggedTemplateExpression Kind = "TaggedTemplateExpression"
	KindArrayExpression          Kind = "ArrayExpression"
	KindObjectExpression         Kind = "ObjectExpression"
	KindSpreadElement            Kind = "SpreadElement"
	KindIfStatement              Kind = "IfStatement"
	KindSwitchStatement          Kind = "SwitchStatement"
	KindSwitchCase               Kind = "SwitchCase"
	KindConditionalExpression    Kind = "ConditionalExpression"
	KindForOfStatement           Kind = "ForOfStatement"
	KindForInStatement           Kind = "ForInStatement"
	KindForStatement             Kind = "ForStatement"
	KindWhileStatement           Kind = "WhileStatement"
	KindTryStatement             Kind = "TryStatement"
	KindCatchClause              Kind = "CatchClause"
	KindThrowStatement           Kind = "ThrowStatement"
	KindReturnStatement          Kind = "ReturnStatement"
	KindBreakStatement           Kind = "BreakStatement"
	KindContinueStatement        Kind = "ContinueStatement"
	KindAssignmentExpression     Kind = "AssignmentExpression"
	KindUpdateExpression         Kind = "UpdateExpression"
	KindBinaryExpression         Kind = "BinaryExpression"
	KindLogicalExpression        Kind = "LogicalExpression"
	KindUnaryExpression          Kind = "UnaryExpression"
	KindProperty                 Kind = "Property"
	KindSequenceExpression       Kind = "SequenceExpression"
	KindChainExpression          Kind = "ChainExpression"
)

// AllowedKinds is the exact whitelist the validator walks the AST
// against. The grammar itself is restricted to these productions;
// anything the parser could in principle produce outside the set is
// rejected.
var AllowedKinds = map[Kind]bool{
	KindProgram: true, KindExpressionStatement: true, KindBlockStatement: true,
	KindVariableDeclaration: true, KindVariableDeclarator: true,
	KindFunctionDeclaration: true, KindArrowFunctionExpression: true, KindFunctionExpression: true,
	KindCallExpression: true, KindNewExpression: true, KindMemberExpression: true,
	KindIdentifier: true, KindLiteral: true,
	KindTemplateLiteral: true, KindTemplateElement: true, KindTaggedTemplateExpression: true,
	KindArrayExpression: true, KindObjectExpression: true, KindSpreadElement: true,
	KindIfStatement: true, KindSwitchStatement: true, KindSwitchCase: true, KindConditionalExpression: true,
	KindForOfStatement: true, KindForInStatement: true, KindForStatement: true, KindWhileStatement: true,
	KindTryStatement: true, KindCatchClause: true, KindThrowStatement: true,
	KindReturnStatement: true, KindBreakStatement: true, KindContinueStatement: true,
	KindAssignmentExpression: true, KindUpdateExpression: true,
	KindBinaryExpression: true, KindLogicalExpression: true, KindUnaryExpression: true,
	KindProperty: true, KindSequenceExpression: true, KindChainExpression: true,
}

// Pos is a 1-based line/column source location, used by validation
// errors and the interpreter's loop-budget/deadline diagnostics.
type Pos struct {
	Line   int
	Column int
}

// Node is implemented by every AST node. Kind is used by the validator
// to check against AllowedKinds; a parser bug that produces a node
// kind outside the whitelist fails closed rather than silently passing.
type Node interface {
	Kind() Kind
	Position() Pos
}

type base struct {
	pos Pos
}

func (b base) Position() Pos { return b.pos }

// Program is the root node: a sequence of top-level statements.
type Program struct {
	base
	Body []Node
}

func (n *Program) Kind() Kind { return KindProgram }

type ExpressionStatement struct {
	base
	Expression Node
}

func (n *ExpressionStatement) Kind() Kind { return KindExpressionStatement }

type BlockStatement struct {
	base
	Body []Node
}

func (n *BlockStatement) Kind() Kind { return KindBlockStatement }

// VariableDeclaration covers var/let/const; Kind of binding is kept
// only for fidelity to source text, the interpreter treats all three
// as mutable lexical bindings in their enclosing scope.
type VariableDeclaration struct {
	base
	DeclKind     string // "var" | "let" | "const"
	Declarations []*VariableDeclarator
}

func (n *VariableDeclaration) Kind() Kind { return KindVariableDeclaration }

type VariableDeclarator struct {
	base
	Name string
	Init Node // may be nil
}

func (n *VariableDeclarator) Kind() Kind { return KindVariableDeclarator }

type FunctionDeclaration struct {
	base
	Name   string
	Params []string
	Body   *BlockStatement
	Async  bool // not set by the parser or the transform pass
}

func (n *FunctionDeclaration) Kind() Kind { return KindFunctionDeclaration }

type ArrowFunctionExpression struct {
	base
	Params     []string
	Body       Node // *BlockStatement, or an expression for concise bodies
	ExprBody   bool
	Async      bool
}

func (n *ArrowFunctionExpression) Kind() Kind { return KindArrowFunctionExpression }

type FunctionExpression struct {
	base
	Name   string
	Params []string
	Body   *BlockStatement
	Async  bool
}

func (n *FunctionExpression) Kind() Kind { return KindFunctionExpression }

type CallExpression struct {
	base
	Callee    Node
	Arguments []Node
	Optional  bool
	Async     bool // set by the transform pass when Callee resolves to an async-name
}

func (n *CallExpression) Kind() Kind { return KindCallExpression }

type NewExpression struct {
	base
	Callee    Node
	Arguments []Node
}

func (n *NewExpression) Kind() Kind { return KindNewExpression }

type MemberExpression struct {
	base
	Object   Node
	Property Node // Identifier for dotted access, any expression for computed
	Computed bool
	Optional bool
}

func (n *MemberExpression) Kind() Kind { return KindMemberExpression }

type Identifier struct {
	base
	Name string
}

func (n *Identifier) Kind() Kind { return KindIdentifier }

type Literal struct {
	base
	Value interface{} // string, float64, bool, nil
}

func (n *Literal) Kind() Kind { return KindLiteral }

type TemplateElement struct {
	base
	Raw string
}

func (n *TemplateElement) Kind() Kind { return KindTemplateElement }

type TemplateLiteral struct {
	base
	Quasis      []*TemplateElement
	Expressions []Node
}

func (n *TemplateLiteral) Kind() Kind { return KindTemplateLiteral }

type TaggedTemplateExpression struct {
	base
	Tag   Node
	Quasi *TemplateLiteral
}

func (n *TaggedTemplateExpression) Kind() Kind { return KindTaggedTemplateExpression }

type ArrayExpression struct {
	base
	Elements []Node
}

func (n *ArrayExpression) Kind() Kind { return KindArrayExpression }

type ObjectExpression struct {
	base
	Properties []*Property
}

func (n *ObjectExpression) Kind() Kind { return KindObjectExpression }

type Property struct {
	base
	Key      Node
	Value    Node
	Computed bool
}

func (n *Property) Kind() Kind { return KindProperty }

type SpreadElement struct {
	base
	Argument Node
}

func (n *SpreadElement) Kind() Kind { return KindSpreadElement }

type IfStatement struct {
	base
	Test       Node
	Consequent Node
	Alternate  Node // may be nil
}

func (n *IfStatement) Kind() Kind { return KindIfStatement }

type SwitchCase struct {
	base
	Test       Node // nil for default
	Consequent []Node
}

func (n *SwitchCase) Kind() Kind { return KindSwitchCase }

type SwitchStatement struct {
	base
	Discriminant Node
	Cases        []*SwitchCase
}

func (n *SwitchStatement) Kind() Kind { return KindSwitchStatement }

type ConditionalExpression struct {
	base
	Test       Node
	Consequent Node
	Alternate  Node
}

func (n *ConditionalExpression) Kind() Kind { return KindConditionalExpression }

type ForOfStatement struct {
	base
	DeclKind string
	Name     string
	Right    Node
	Body     Node
}

func (n *ForOfStatement) Kind() Kind { return KindForOfStatement }

type ForInStatement struct {
	base
	DeclKind string
	Name     string
	Right    Node
	Body     Node
}

func (n *ForInStatement) Kind() Kind { return KindForInStatement }

type ForStatement struct {
	base
	Init   Node
	Test   Node
	Update Node
	Body   Node
}

func (n *ForStatement) Kind() Kind { return KindForStatement }

type WhileStatement struct {
	base
	Test Node
	Body Node
}

func (n *WhileStatement) Kind() Kind { return KindWhileStatement }

type CatchClause struct {
	base
	Param        string // user-written name; the runtime binds the thrown value to it
	InternalName string // filled by the transform pass; not read by the runtime
	Body         *BlockStatement
}

func (n *CatchClause) Kind() Kind { return KindCatchClause }

type TryStatement struct {
	base
	Block     *BlockStatement
	Handler   *CatchClause // nil if no catch
	Finalizer *BlockStatement
}

func (n *TryStatement) Kind() Kind { return KindTryStatement }

type ThrowStatement struct {
	base
	Argument       Node
	WrapsLastError bool // set by the transform pass
}

func (n *ThrowStatement) Kind() Kind { return KindThrowStatement }

type ReturnStatement struct {
	base
	Argument Node // may be nil
}

func (n *ReturnStatement) Kind() Kind { return KindReturnStatement }

type BreakStatement struct{ base }

func (n *BreakStatement) Kind() Kind { return KindBreakStatement }

type ContinueStatement struct{ base }

func (n *ContinueStatement) Kind() Kind { return KindContinueStatement }

type AssignmentExpression struct {
	base
	Operator string
	Target   Node
	Value    Node
}

func (n *AssignmentExpression) Kind() Kind { return KindAssignmentExpression }

type UpdateExpression struct {
	base
	Operator string
	Argument Node
	Prefix   bool
}

func (n *UpdateExpression) Kind() Kind { return KindUpdateExpression }

type BinaryExpression struct {
	base
	Operator string
	Left     Node
	Right    Node
}

func (n *BinaryExpression) Kind() Kind { return KindBinaryExpression }

type LogicalExpression struct {
	base
	Operator string
	Left     Node
	Right    Node
}

func (n *LogicalExpression) Kind() Kind { return KindLogicalExpression }

type UnaryExpression struct {
	base
	Operator string
	Argument Node
}

func (n *UnaryExpression) Kind() Kind { return KindUnaryExpression }

type SequenceExpression struct {
	base
	Expressions []Node
}

func (n *SequenceExpression) Kind() Kind { return KindSequenceExpression }

// ChainExpression marks an optional-chaining expression (`a?.b()`) so
// the interpreter can short-circuit to undefined instead of erroring
// on a nil object.
type ChainExpression struct {
	base
	Expression Node
}

func (n *ChainExpression) Kind() Kind { return KindChainExpression }
