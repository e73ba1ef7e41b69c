package tools

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/corestack/agentcore/internal/filetracker"
	"github.com/corestack/agentcore/internal/linehash"
	"github.com/corestack/agentcore/internal/llm"
	"github.com/corestack/agentcore/internal/toolregistry"
)

// ExtractTool returns code spans for one or more targets of the form
// "path", "path:line", "path:line-end", or "path#symbol". It is the
// primary way the model reads code into its context, and every span it
// returns marks the source path (and symbol, if targeted) seen in the
// file tracker so a later blind edit can be caught.
type ExtractTool struct {
	workingDir    string
	contextLines  int
	tracker       *filetracker.Tracker
}

// NewExtractTool builds an extract tool rooted at workingDir.
func NewExtractTool(workingDir string, tracker *filetracker.Tracker) *ExtractTool {
	if workingDir == "" {
		workingDir = "."
	}
	return &ExtractTool{workingDir: workingDir, contextLines: 0, tracker: tracker}
}

func (t *ExtractTool) Info() toolregistry.Info {
	return toolregistry.Info{
		Name:        "extract",
		Description: "Extract code spans for one or more path[:line[-end]] or path#symbol targets.",
		Async:       true,
		Parameters: llm.JSONSchema{
			Type: "object",
			Properties: map[string]llm.JSONSchema{
				"targets":       {Type: "array", Items: &llm.JSONSchema{Type: "string"}, Description: "Targets of the form path, path:line, path:line-end, or path#symbol"},
				"context_lines": {Type: "integer", Description: "Extra lines of context to include around each span"},
				"input_content": {Type: "string", Description: "Materialize this content as a virtual file instead of reading from disk"},
			},
			Required: []string{"targets"},
		},
	}
}

func (t *ExtractTool) Execute(ctx context.Context, args map[string]interface{}) (toolregistry.Result, error) {
	rawTargets, ok := args["targets"].([]interface{})
	if !ok || len(rawTargets) == 0 {
		return errResult("targets parameter is required"), nil
	}
	contextLines := t.contextLines
	if cl, ok := args["context_lines"].(float64); ok {
		contextLines = int(cl)
	}
	inputContent, _ := args["input_content"].(string)

	var sb strings.Builder
	for _, raw := range rawTargets {
		target, ok := raw.(string)
		if !ok {
			continue
		}
		span, err := t.extractOne(target, contextLines, inputContent)
		if err != nil {
			fmt.Fprintf(&sb, "--- %s ---\nerror: %v\n\n", target, err)
			continue
		}
		sb.WriteString(span)
		sb.WriteString("\n\n")
	}

	return toolregistry.Result{Success: true, Content: strings.TrimRight(sb.String(), "\n")}, nil
}

func (t *ExtractTool) extractOne(target string, contextLines int, inputContent string) (string, error) {
	path, selector, hasSelector := splitTarget(target)

	var content string
	if inputContent != "" {
		content = inputContent
	} else {
		data, err := os.ReadFile(joinWorkingDir(t.workingDir, path))
		if err != nil {
			return "", fmt.Errorf("reading %s: %w", path, err)
		}
		content = string(data)
	}

	lines := strings.Split(content, "\n")

	var start, end int
	var symbol string
	if !hasSelector {
		start, end = 1, len(lines)
	} else if strings.HasPrefix(selector, "#") {
		symbol = selector[1:]
		var err error
		start, end, err = findSymbolRange(lines, symbol)
		if err != nil {
			return "", err
		}
		if t.tracker != nil {
			t.tracker.RecordSymbol(path, symbol, strings.Join(lines[start-1:end], "\n"), start, end, "extract")
		}
	} else {
		var err error
		start, end, err = parseLineRange(selector)
		if err != nil {
			return "", err
		}
		if end == 0 {
			end = len(lines)
		}
	}

	start = max(1, start-contextLines)
	end = min(len(lines), end+contextLines)

	if t.tracker != nil {
		t.tracker.MarkSeen(path)
	}

	annotated := linehash.Annotate(strings.Join(lines[start-1:end], "\n"))
	for i := range annotated {
		annotated[i].Number += start - 1
	}

	return fmt.Sprintf("--- %s (lines %d-%d) ---\n%s", path, start, end, linehash.Render(annotated)), nil
}

func splitTarget(target string) (path string, selector string, hasSelector bool) {
	if idx := strings.LastIndex(target, "#"); idx >= 0 {
		return target[:idx], target[idx:], true
	}
	if idx := strings.LastIndex(target, ":"); idx >= 0 {
		if _, err := strconv.Atoi(strings.SplitN(target[idx+1:], "-", 2)[0]); err == nil {
			return target[:idx], target[idx+1:], true
		}
	}
	return target, "", false
}

var symbolPattern = regexp.MustCompile(`^\s*func\s+(\([^)]*\)\s*)?(\w+)|^\s*type\s+(\w+)\s`)

// findSymbolRange locates a top-level Go func or type declaration by
// name and returns its 1-based line span, ending at the next
// top-level declaration or end of file.
func findSymbolRange(lines []string, symbol string) (start, end int, err error) {
	for i, line := range lines {
		m := symbolPattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		name := m[2]
		if name == "" {
			name = m[3]
		}
		if name != symbol {
			continue
		}
		start = i + 1
		end = len(lines)
		for j := i + 1; j < len(lines); j++ {
			if symbolPattern.MatchString(lines[j]) {
				end = j
				break
			}
		}
		return start, end, nil
	}
	return 0, 0, fmt.Errorf("symbol %q not found", symbol)
}

func joinWorkingDir(workingDir, path string) string {
	if strings.HasPrefix(path, "/") {
		return path
	}
	return workingDir + "/" + path
}
