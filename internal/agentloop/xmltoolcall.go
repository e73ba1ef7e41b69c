package agentloop

import (
	"regexp"
	"strings"
)

// Invocation is one tool call extracted from a model's free text.
type Invocation struct {
	Name   string
	Params map[string]string
	Raw    string
}

var tagOpenRe = regexp.MustCompile(`<([A-Za-z_][A-Za-z0-9_\-]*)>`)

// ParseInvocations scans free-form model text for XML-flavored
// fragments of the form `<tool_name><parameter_name>value</parameter_name>…</tool_name>`.
// It is tolerant of multi-line parameter bodies (critical for bash
// commands containing embedded newlines) and of surrounding prose: a
// candidate opening tag that never finds its matching close tag is
// left as plain text rather than raising a parse error.
func ParseInvocations(text string) []Invocation {
	var out []Invocation
	pos := 0
	for pos < len(text) {
		loc := tagOpenRe.FindStringSubmatchIndex(text[pos:])
		if loc == nil {
			break
		}
		openStart, openEnd := pos+loc[0], pos+loc[1]
		name := text[pos+loc[2] : pos+loc[3]]
		closeTag := "</" + name + ">"
		closeIdx := strings.Index(text[openEnd:], closeTag)
		if closeIdx < 0 {
			pos = openEnd
			continue
		}
		bodyStart := openEnd
		bodyEnd := openEnd + closeIdx
		body := text[bodyStart:bodyEnd]
		out = append(out, Invocation{
			Name:   name,
			Params: parseParams(body),
			Raw:    text[openStart : bodyEnd+len(closeTag)],
		})
		pos = bodyEnd + len(closeTag)
	}
	return out
}

func parseParams(body string) map[string]string {
	params := map[string]string{}
	pos := 0
	for pos < len(body) {
		loc := tagOpenRe.FindStringSubmatchIndex(body[pos:])
		if loc == nil {
			break
		}
		openEnd := pos + loc[1]
		name := body[pos+loc[2] : pos+loc[3]]
		closeTag := "</" + name + ">"
		closeIdx := strings.Index(body[openEnd:], closeTag)
		if closeIdx < 0 {
			pos = openEnd
			continue
		}
		value := body[openEnd : openEnd+closeIdx]
		params[name] = strings.Trim(value, "\n")
		pos = openEnd + closeIdx + len(closeTag)
	}
	return params
}

// stringParams widens a string-keyed parameter map to the
// map[string]interface{} shape the tool registry and plan runtime
// expect as call arguments.
func stringParams(p map[string]string) map[string]interface{} {
	out := make(map[string]interface{}, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}
