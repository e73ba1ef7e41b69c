// Package linehash implements the line-hash utilities used by the
// agent loop's edit tools to detect a file that changed underneath a
// stale view: each line gets a cheap DJB2 hash of its whitespace-
// stripped content, rendered alongside the line so a later
// line-addressed edit can be checked against the listing the model
// actually saw.
package linehash

import (
	"fmt"
	"strconv"
	"strings"
)

// Hash computes a DJB2 hash of line with all whitespace removed,
// reduced modulo 256. Stripping whitespace first makes the hash
// invariant under reindentation or trailing-space churn the model
// didn't introduce; collisions are acceptable since the hash only
// needs to catch accidental staleness, not act as a content digest.
func Hash(line string) byte {
	var h uint32 = 5381
	for i := 0; i < len(line); i++ {
		c := line[i]
		if c == ' ' || c == '\t' || c == '\r' || c == '\n' {
			continue
		}
		h = ((h << 5) + h) + uint32(c)
	}
	return byte(h % 256)
}

// AnnotatedLine is one line of a listing tagged with its number and
// hash.
type AnnotatedLine struct {
	Number  int
	Hash    byte
	Content string
	EOL     string // "\n", "\r\n", or "" for the final line
}

// Annotate splits content into lines and returns each tagged with its
// 1-based line number and hash. Both LF and CRLF line endings are
// recognized and preserved per-line in EOL.
func Annotate(content string) []AnnotatedLine {
	var out []AnnotatedLine
	start := 0
	num := 1
	for i := 0; i < len(content); i++ {
		if content[i] != '\n' {
			continue
		}
		line := content[start:i]
		eol := "\n"
		if len(line) > 0 && line[len(line)-1] == '\r' {
			line = line[:len(line)-1]
			eol = "\r\n"
		}
		out = append(out, AnnotatedLine{Number: num, Hash: Hash(line), Content: line, EOL: eol})
		start = i + 1
		num++
	}
	out = append(out, AnnotatedLine{Number: num, Hash: Hash(content[start:]), Content: content[start:], EOL: ""})
	return out
}

// Render formats annotated lines as "line:hash | content", the listing
// format the model sees and is expected to echo back unchanged for a
// line it has not altered. Each line's original EOL is preserved.
func Render(lines []AnnotatedLine) string {
	var sb strings.Builder
	for _, l := range lines {
		sb.WriteString(formatTag(l.Number, l.Hash))
		sb.WriteString(" | ")
		sb.WriteString(l.Content)
		sb.WriteString(l.EOL)
	}
	return sb.String()
}

func formatTag(number int, hash byte) string {
	return strconv.Itoa(number) + ":" + fmt.Sprintf("%02x", hash)
}

// VerifyLine reports whether a line at the given number still matches
// the tag "number:hash" the model supplied, i.e. the file has not
// changed at that line since the model last viewed it.
func VerifyLine(content string, lineNumber int, expectedHash byte) bool {
	lines := strings.Split(strings.ReplaceAll(content, "\r\n", "\n"), "\n")
	idx := lineNumber - 1
	if idx < 0 || idx >= len(lines) {
		return false
	}
	return Hash(lines[idx]) == expectedHash
}

// hasPrefixTag recognizes a leading "<line>:<hash> | " or "<line> | "
// prefix so StripPrefixes can tell a genuine annotated listing from
// plain text the model echoed back unprefixed.
func hasPrefixTag(line string) bool {
	i := strings.Index(line, " | ")
	if i < 0 || i == 0 {
		return false
	}
	head := line[:i]
	if colon := strings.IndexByte(head, ':'); colon >= 0 {
		_, err1 := strconv.Atoi(head[:colon])
		_, err2 := strconv.ParseUint(head[colon+1:], 16, 8)
		return err1 == nil && err2 == nil
	}
	_, err := strconv.Atoi(head)
	return err == nil
}

// StripPrefixes removes a "line:hash | " or "line | " prefix from each
// line of text, guarding against the model echoing an annotated
// listing back into replacement content verbatim. It only activates
// when a majority of non-empty lines carry the prefix, so ordinary
// text that happens to contain a lone " | " is left untouched.
func StripPrefixes(text string) string {
	lines := strings.Split(text, "\n")
	nonEmpty, tagged := 0, 0
	for _, l := range lines {
		if strings.TrimSpace(l) == "" {
			continue
		}
		nonEmpty++
		if hasPrefixTag(l) {
			tagged++
		}
	}
	if nonEmpty == 0 || tagged*2 <= nonEmpty {
		return text
	}
	out := make([]string, len(lines))
	for i, l := range lines {
		if hasPrefixTag(l) {
			out[i] = l[strings.Index(l, " | ")+3:]
		} else {
			out[i] = l
		}
	}
	return strings.Join(out, "\n")
}
