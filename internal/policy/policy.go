// Package policy implements the permission engine that sits behind the
// command lexer/parser: it decides whether a parsed shell command may
// run, checking structural danger, per-component simple patterns, and
// whole-command complex patterns with deny taking precedence over
// allow.
package policy

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/hashicorp/go-hclog"

	"github.com/corestack/agentcore/internal/obslog"
	"github.com/corestack/agentcore/internal/shell"
)

// Decision is the outcome of a Check call.
type Decision struct {
	Allowed bool
	Reason  string
	Detail  string // the specific pattern or rule that decided the outcome
}

// DefaultAllowedCommands are the base commands permitted when the
// policy requires an allow match but the caller configured no explicit
// allow patterns: the read-mostly development commands an agent needs
// to be useful at all. An explicit allow list supersedes this set
// entirely.
var DefaultAllowedCommands = []string{
	"ls", "cat", "head", "tail", "grep", "find", "wc", "pwd", "which",
	"echo", "date", "env", "file", "stat", "du", "df", "sort", "uniq",
	"cut", "tr", "sed", "awk", "diff", "git", "go", "npm", "node",
	"python", "python3", "make", "curl", "wget", "tar", "gzip",
}

// DefaultDeniedCommands are base commands that are always blocked, since
// the deny check runs before any allow pattern: destructive filesystem,
// privilege, and process operations.
var DefaultDeniedCommands = []string{
	"rm", "rmdir", "sudo", "su", "chmod", "chown",
	"dd", "mkfs", "fdisk", "mount", "umount",
	"kill", "killall", "pkill", "reboot", "shutdown",
	"passwd", "useradd", "userdel", "groupadd",
}

// DefaultDeniedPatterns are whole-command regexes blocked regardless
// of the allow list: recursive deletes, device and /etc writes, fork
// bombs, and pipe-to-shell downloads.
var DefaultDeniedPatterns = []*regexp.Regexp{
	regexp.MustCompile(`rm\s+(-rf|-fr|--recursive)`),
	regexp.MustCompile(`>\s*/dev/`),
	regexp.MustCompile(`:\(\)\s*\{\s*:\|:\s*&\s*\}\s*;`),
	regexp.MustCompile(`wget.*\|\s*sh`),
	regexp.MustCompile(`curl.*\|\s*sh`),
	regexp.MustCompile(`eval\s*\$`),
	regexp.MustCompile(`\$\(.*\)\s*>\s*/`),
	regexp.MustCompile(`>\s*/etc/`),
	regexp.MustCompile(`chmod\s+777`),
	regexp.MustCompile(`--no-preserve-root`),
}

// Pattern is one entry in an allow or deny list. A simple pattern is
// either a bare head command, matched against a component's head, or a
// "head:glob" shape matched against a component's head plus its
// arguments; a pattern with Complex set is matched against the full
// normalized command text instead of a single component.
type Pattern struct {
	Raw     string
	Complex bool
	re      *regexp.Regexp
}

// Compile turns a raw policy string into a matchable Pattern. Simple
// patterns are "head" or "head:glob"; the presence of a colon always
// marks the simple head:glob form. The text after the first colon is
// matched against the component's arguments joined by single spaces,
// with "*" matching any run of characters (across argument boundaries
// too); any further colons are literal.
// Anything with no colon but a command-structure character (spaces,
// pipes, logical operators, etc.) is a free-form, complex whole-command
// pattern, and its "*" wildcards are anchored into a regex over the
// full normalized command text instead.
func Compile(raw string) (*Pattern, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("policy: empty pattern")
	}

	p := &Pattern{Raw: raw}
	if strings.Contains(raw, ":") || !strings.ContainsAny(raw, " *|&;<>") {
		return p, nil // head[:arg...] simple pattern, or a bare head command
	}

	p.Complex = true
	escaped := regexp.QuoteMeta(raw)
	escaped = strings.ReplaceAll(escaped, `\*`, `.*`)
	re, err := regexp.Compile("^" + escaped + "$")
	if err != nil {
		return nil, fmt.Errorf("policy: invalid pattern %q: %w", raw, err)
	}
	p.re = re
	return p, nil
}

// Matches reports whether the pattern matches a component (simple) or
// the full normalized command text (complex).
func (p *Pattern) Matches(head string, component shell.Component, fullText string) bool {
	if !p.Complex {
		if strings.Contains(p.Raw, ":") {
			parts := strings.SplitN(p.Raw, ":", 2)
			if parts[0] != head {
				return false
			}
			return matchArgGlob(parts[1], component.Args)
		}
		return p.Raw == head
	}
	return p.re.MatchString(fullText)
}

func matchArgGlob(glob string, args []string) bool {
	joined := strings.Join(args, " ")
	escaped := regexp.QuoteMeta(glob)
	escaped = strings.ReplaceAll(escaped, `\*`, `.*`)
	re, err := regexp.Compile("^" + escaped + "$")
	if err != nil {
		return false
	}
	return re.MatchString(joined)
}

// Policy is an allow/deny rule set evaluated against a parsed command.
type Policy struct {
	Allow []*Pattern
	Deny  []*Pattern

	allowedCommands  map[string]bool
	deniedCommands   map[string]bool
	deniedStructural []*regexp.Regexp
	denyByDefault    bool

	log hclog.Logger
}

// New builds a Policy. allow/deny are raw pattern strings compiled via
// Compile. When denyByDefault is true, a command must match an allow
// pattern to run. Decisions are logged through a named "bashpolicy"
// logger rather than a package-level global.
func New(allow, deny []string, denyByDefault bool) (*Policy, error) {
	p := &Policy{
		denyByDefault:    denyByDefault,
		allowedCommands:  make(map[string]bool),
		deniedCommands:   make(map[string]bool),
		deniedStructural: DefaultDeniedPatterns,
		log:              obslog.New("bashpolicy"),
	}
	for _, cmd := range DefaultAllowedCommands {
		p.allowedCommands[cmd] = true
	}
	for _, cmd := range DefaultDeniedCommands {
		p.deniedCommands[cmd] = true
	}

	for _, raw := range allow {
		pat, err := Compile(raw)
		if err != nil {
			return nil, err
		}
		p.Allow = append(p.Allow, pat)
	}
	for _, raw := range deny {
		pat, err := Compile(raw)
		if err != nil {
			return nil, err
		}
		p.Deny = append(p.Deny, pat)
	}
	return p, nil
}

// Check evaluates a parsed command against the policy. Deny is checked
// before allow at every stage; a compound command is denied as soon as
// any one of its components is denied, and is only allowed when every
// component is allowed.
func (p *Policy) Check(pc *shell.ParsedCommand) Decision {
	if pc.ParseError != "" {
		return Decision{Allowed: false, Reason: "parse error", Detail: pc.ParseError}
	}
	if len(pc.Components) == 0 {
		return Decision{Allowed: false, Reason: "empty command"}
	}

	for _, re := range p.deniedStructural {
		if re.MatchString(pc.OriginalText) {
			p.log.Warn("permission.denied", "reason", "structural danger", "pattern", re.String())
			return Decision{Allowed: false, Reason: "structural danger", Detail: re.String()}
		}
	}
	for _, sub := range pc.Substitutions {
		if inner, err := shell.Parse(sub); err == nil {
			if d := p.Check(inner); !d.Allowed {
				return Decision{Allowed: false, Reason: "denied substitution", Detail: d.Detail}
			}
		}
	}

	for _, comp := range pc.Components {
		if d := p.checkComponent(comp, pc.OriginalText); !d.Allowed {
			return d
		}
	}
	p.log.Debug("permission.allowed", "command", pc.OriginalText)
	return Decision{Allowed: true, Reason: "allowed"}
}

func (p *Policy) checkComponent(comp shell.Component, fullText string) Decision {
	if comp.Head == "" {
		return Decision{Allowed: false, Reason: "could not extract base command"}
	}

	for _, pat := range p.Deny {
		if pat.Matches(comp.Head, comp, fullText) {
			p.log.Warn("permission.denied", "reason", "denied pattern", "head", comp.Head, "pattern", pat.Raw)
			return Decision{Allowed: false, Reason: "denied pattern", Detail: pat.Raw}
		}
	}
	if p.deniedCommands[comp.Head] {
		p.log.Warn("permission.denied", "reason", "denied command", "head", comp.Head)
		return Decision{Allowed: false, Reason: "denied command", Detail: comp.Head}
	}

	if p.denyByDefault || len(p.Allow) > 0 {
		if len(p.Allow) == 0 {
			// No explicit allow patterns: fall back to the built-in
			// default allow set. An explicit list supersedes it.
			if p.allowedCommands[comp.Head] {
				p.log.Debug("permission.allowed", "reason", "default allow", "head", comp.Head)
				return Decision{Allowed: true, Reason: "default allow", Detail: comp.Head}
			}
			p.log.Warn("permission.denied", "reason", "not in allow list", "head", comp.Head)
			return Decision{Allowed: false, Reason: "not in allow list", Detail: comp.Head}
		}
		for _, pat := range p.Allow {
			if pat.Matches(comp.Head, comp, fullText) {
				p.log.Debug("permission.allowed", "reason", "allowed pattern", "head", comp.Head, "pattern", pat.Raw)
				return Decision{Allowed: true, Reason: "allowed pattern", Detail: pat.Raw}
			}
		}
		p.log.Warn("permission.denied", "reason", "not in allow list", "head", comp.Head)
		return Decision{Allowed: false, Reason: "not in allow list", Detail: comp.Head}
	}
	return Decision{Allowed: true, Reason: "allowed by default"}
}
