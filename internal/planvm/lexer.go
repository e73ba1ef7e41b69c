package planvm

import (
	"fmt"
	"strings"
)

type tokenType int

const (
	tokEOF tokenType = iota
	tokIdent
	tokKeyword
	tokNumber
	tokString
	tokTemplate // raw template literal text, split later by the parser
	tokPunct
)

type token struct {
	typ   tokenType
	val   string
	pos   Pos
}

var keywords = map[string]bool{
	"var": true, "let": true, "const": true, "function": true, "return": true,
	"if": true, "else": true, "switch": true, "case": true, "default": true,
	"for": true, "while": true, "try": true, "catch": true, "finally": true,
	"throw": true, "break": true, "continue": true, "new": true, "of": true,
	"in": true, "true": true, "false": true, "null": true, "undefined": true,
	"async": true, "await": true, "typeof": true, "instanceof": true, "void": true,
}

// lexer tokenizes a restricted JavaScript-like surface syntax: the plan
// language is deliberately small, so the lexer only needs to recognize
// the tokens its grammar can produce.
type lexer struct {
	src    string
	pos    int
	line   int
	col    int
	tokens []token
}

func newLexer(src string) *lexer {
	return &lexer{src: src, line: 1, col: 1}
}

func (l *lexer) errorf(format string, args ...interface{}) error {
	return &ParseError{Pos: Pos{Line: l.line, Column: l.col}, Message: fmt.Sprintf(format, args...)}
}

func (l *lexer) peek() byte {
	if l.pos >= len(l.src) {
		return 0
	}
	return l.src[l.pos]
}

func (l *lexer) peekAt(off int) byte {
	if l.pos+off >= len(l.src) {
		return 0
	}
	return l.src[l.pos+off]
}

func (l *lexer) advance() byte {
	c := l.src[l.pos]
	l.pos++
	if c == '\n' {
		l.line++
		l.col = 1
	} else {
		l.col++
	}
	return c
}

func (l *lexer) tokenize() ([]token, error) {
	for l.pos < len(l.src) {
		c := l.peek()
		switch {
		case c == ' ' || c == '\t' || c == '\r' || c == '\n':
			l.advance()
		case c == '/' && l.peekAt(1) == '/':
			for l.pos < len(l.src) && l.peek() != '\n' {
				l.advance()
			}
		case c == '/' && l.peekAt(1) == '*':
			l.advance()
			l.advance()
			for l.pos < len(l.src) && !(l.peek() == '*' && l.peekAt(1) == '/') {
				l.advance()
			}
			if l.pos < len(l.src) {
				l.advance()
				l.advance()
			}
		case isIdentStart(c):
			l.lexIdent()
		case isDigit(c):
			if err := l.lexNumber(); err != nil {
				return nil, err
			}
		case c == '"' || c == '\'':
			if err := l.lexString(c); err != nil {
				return nil, err
			}
		case c == '`':
			if err := l.lexTemplate(); err != nil {
				return nil, err
			}
		default:
			if err := l.lexPunct(); err != nil {
				return nil, err
			}
		}
	}
	l.tokens = append(l.tokens, token{typ: tokEOF, pos: Pos{Line: l.line, Column: l.col}})
	return l.tokens, nil
}

func (l *lexer) lexIdent() {
	start := l.pos
	pos := Pos{Line: l.line, Column: l.col}
	for l.pos < len(l.src) && isIdentPart(l.peek()) {
		l.advance()
	}
	word := l.src[start:l.pos]
	typ := tokIdent
	if keywords[word] {
		typ = tokKeyword
	}
	l.tokens = append(l.tokens, token{typ: typ, val: word, pos: pos})
}

func (l *lexer) lexNumber() error {
	start := l.pos
	pos := Pos{Line: l.line, Column: l.col}
	for l.pos < len(l.src) && (isDigit(l.peek()) || l.peek() == '.') {
		l.advance()
	}
	l.tokens = append(l.tokens, token{typ: tokNumber, val: l.src[start:l.pos], pos: pos})
	return nil
}

func (l *lexer) lexString(quote byte) error {
	pos := Pos{Line: l.line, Column: l.col}
	l.advance()
	var sb strings.Builder
	for {
		if l.pos >= len(l.src) {
			return l.errorf("unterminated string literal")
		}
		c := l.peek()
		if c == quote {
			l.advance()
			break
		}
		if c == '\\' {
			l.advance()
			sb.WriteByte(unescape(l.advance()))
			continue
		}
		sb.WriteByte(l.advance())
	}
	l.tokens = append(l.tokens, token{typ: tokString, val: sb.String(), pos: pos})
	return nil
}

// lexTemplate captures the raw backtick-delimited text, including
// ${...} interpolation markers verbatim; the parser re-lexes the
// interpolated expressions with a fresh lexer instance.
func (l *lexer) lexTemplate() error {
	pos := Pos{Line: l.line, Column: l.col}
	l.advance()
	var sb strings.Builder
	depth := 0
	for {
		if l.pos >= len(l.src) {
			return l.errorf("unterminated template literal")
		}
		c := l.peek()
		if c == '`' && depth == 0 {
			l.advance()
			break
		}
		if c == '$' && l.peekAt(1) == '{' {
			depth++
			sb.WriteByte(l.advance())
			sb.WriteByte(l.advance())
			continue
		}
		if c == '}' && depth > 0 {
			depth--
			sb.WriteByte(l.advance())
			continue
		}
		if c == '\\' {
			l.advance()
			sb.WriteByte(unescape(l.advance()))
			continue
		}
		sb.WriteByte(l.advance())
	}
	l.tokens = append(l.tokens, token{typ: tokTemplate, val: sb.String(), pos: pos})
	return nil
}

func unescape(c byte) byte {
	switch c {
	case 'n':
		return '\n'
	case 't':
		return '\t'
	case 'r':
		return '\r'
	default:
		return c
	}
}

var threeCharPuncts = []string{"===", "!==", "**=", "...", "&&=", "||=", "??="}
var twoCharPuncts = []string{"==", "!=", "<=", ">=", "&&", "||", "=>", "++", "--", "+=", "-=", "*=", "/=", "%=", "**", "?.", "??"}

func (l *lexer) lexPunct() error {
	pos := Pos{Line: l.line, Column: l.col}
	rest := l.src[l.pos:]
	for _, p := range threeCharPuncts {
		if strings.HasPrefix(rest, p) {
			for range p {
				l.advance()
			}
			l.tokens = append(l.tokens, token{typ: tokPunct, val: p, pos: pos})
			return nil
		}
	}
	for _, p := range twoCharPuncts {
		if strings.HasPrefix(rest, p) {
			for range p {
				l.advance()
			}
			l.tokens = append(l.tokens, token{typ: tokPunct, val: p, pos: pos})
			return nil
		}
	}
	c := l.advance()
	if !strings.ContainsRune("{}()[];,.:?+-*/%<>=!&|~^", rune(c)) {
		return l.errorf("unexpected character %q", c)
	}
	l.tokens = append(l.tokens, token{typ: tokPunct, val: string(c), pos: pos})
	return nil
}

func isIdentStart(c byte) bool {
	return c == '_' || c == '$' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || isDigit(c)
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

// ParseError is returned by validation and parsing failures. It always
// carries a location and, where practical, a source snippet so the
// caller can point the model at exactly what was rejected.
type ParseError struct {
	Pos     Pos
	Message string
	Snippet string
}

func (e *ParseError) Error() string {
	if e.Snippet != "" {
		return fmt.Sprintf("%d:%d: %s\n%s", e.Pos.Line, e.Pos.Column, e.Message, e.Snippet)
	}
	return fmt.Sprintf("%d:%d: %s", e.Pos.Line, e.Pos.Column, e.Message)
}
