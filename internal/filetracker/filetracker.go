// Package filetracker implements the file tracker: it remembers which
// paths the agent loop has read and a content-hash per symbol so an
// edit tool can refuse to write a file the model never actually saw,
// or a symbol whose body changed since the model last read it. State
// is session-local and mutex-guarded; nothing is persisted.
package filetracker

import (
	"crypto/sha256"
	"encoding/binary"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"
)

// fileHeaderPattern recognizes the two header shapes read-style tool
// output uses to introduce a file's content: "File: <path>" and
// "--- <path> ---".
var fileHeaderPattern = regexp.MustCompile(`(?m)^(?:File: |--- )(\S[^\n]*?)(?: ---)?\s*$`)

// SymbolRecord is what the tracker remembers about one symbol read:
// the truncated content hash plus where the symbol sat and how it was
// read, so a later edit can be checked and a stale record diagnosed.
type SymbolRecord struct {
	Hash      uint64
	StartLine int
	EndLine   int
	SourceTag string
	Timestamp time.Time
}

// Tracker records seen file paths and per-symbol content records.
type Tracker struct {
	mu        sync.RWMutex
	seenPaths map[string]struct{}
	symbols   map[string]SymbolRecord // key: "path#symbol"
}

// New creates an empty Tracker.
func New() *Tracker {
	return &Tracker{
		seenPaths: make(map[string]struct{}),
		symbols:   make(map[string]SymbolRecord),
	}
}

// MarkSeen records that path has been read by the agent loop.
func (t *Tracker) MarkSeen(path string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.seenPaths[path] = struct{}{}
}

// HasSeen reports whether path was previously marked seen.
func (t *Tracker) HasSeen(path string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.seenPaths[path]
	return ok
}

// RecordSymbol stores a content record for a symbol within a file, to
// be checked again before a later edit to that symbol. startLine and
// endLine are the 1-based span the symbol occupied when read;
// sourceTag names the tool that produced the read ("extract",
// "search", ...).
func (t *Tracker) RecordSymbol(path, symbol, content string, startLine, endLine int, sourceTag string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.symbols[key(path, symbol)] = SymbolRecord{
		Hash:      hashContent(content),
		StartLine: startLine,
		EndLine:   endLine,
		SourceTag: sourceTag,
		Timestamp: time.Now(),
	}
}

// Symbol returns the stored record for path/symbol, if any.
func (t *Tracker) Symbol(path, symbol string) (SymbolRecord, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	rec, ok := t.symbols[key(path, symbol)]
	return rec, ok
}

// VerifySymbol reports whether content's hash still matches what was
// last recorded for path/symbol. An untracked symbol verifies as true
// since there is nothing to contradict.
func (t *Tracker) VerifySymbol(path, symbol, content string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	rec, ok := t.symbols[key(path, symbol)]
	if !ok {
		return true
	}
	return rec.Hash == hashContent(content)
}

// Forget removes all tracking state for path: its seen mark and every
// symbol record. A tool that rewrites a file keeps the seen mark and
// drops only the symbol records, through InvalidateSymbols.
func (t *Tracker) Forget(path string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.seenPaths, path)
	for k := range t.symbols {
		if hasPathPrefix(k, path) {
			delete(t.symbols, k)
		}
	}
}

// InvalidateSymbols drops path's symbol records but keeps the path
// itself seen, matching the lifecycle after a non-symbol edit: the
// model still knows the file, but every symbol hash is now suspect.
func (t *Tracker) InvalidateSymbols(path string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for k := range t.symbols {
		if hasPathPrefix(k, path) {
			delete(t.symbols, k)
		}
	}
}

// IngestOutput scans a read-style tool result's text for "File: <path>"
// and "--- <path> ---" headers and marks every path found as seen,
// resolving relative paths against cwd. Called after every
// search/extract tool result so later edits can be gated on
// check-before-edit without the caller threading path lists through
// itself.
func (t *Tracker) IngestOutput(output, cwd string) []string {
	matches := fileHeaderPattern.FindAllStringSubmatch(output, -1)
	seen := make([]string, 0, len(matches))
	for _, m := range matches {
		p := resolvePath(m[1], cwd)
		t.MarkSeen(p)
		seen = append(seen, p)
	}
	return seen
}

func resolvePath(p, cwd string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(cwd, p)
}

// CheckBeforeEdit reports whether path may be edited: it must be in
// the seen set, and if symbol is non-empty its stored content hash
// (if any) must match currentContent.
func (t *Tracker) CheckBeforeEdit(path, symbol, currentContent string) (ok bool, reason string) {
	if !t.HasSeen(path) {
		return false, "file not seen: " + path
	}
	if symbol != "" && !t.VerifySymbol(path, symbol, currentContent) {
		return false, "symbol is stale: " + path + "#" + symbol
	}
	return true, ""
}

func key(path, symbol string) string { return path + "#" + symbol }

func hasPathPrefix(k, path string) bool {
	return len(k) > len(path) && k[:len(path)] == path && k[len(path)] == '#'
}

// hashContent truncates a SHA-256 digest to 64 bits, hashing the
// content with each line's trailing whitespace removed so an edit that
// only churns trailing spaces doesn't read as a symbol change.
func hashContent(content string) uint64 {
	lines := strings.Split(content, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t\r")
	}
	sum := sha256.Sum256([]byte(strings.Join(lines, "\n")))
	return binary.BigEndian.Uint64(sum[:8])
}
