package tools

import (
	"bufio"
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/corestack/agentcore/internal/filetracker"
	"github.com/corestack/agentcore/internal/llm"
	"github.com/corestack/agentcore/internal/toolregistry"
)

// SearchTool delegates text search to an external binary (ripgrep)
// rather than reimplementing a search engine; this tool is only the
// adapter that shapes its output into a uniform result.
type SearchTool struct {
	binary  string
	tracker *filetracker.Tracker
}

// NewSearchTool builds a search tool backed by the given binary (ripgrep
// by default).
func NewSearchTool(binary string, tracker *filetracker.Tracker) *SearchTool {
	if binary == "" {
		binary = "rg"
	}
	return &SearchTool{binary: binary, tracker: tracker}
}

func (t *SearchTool) Info() toolregistry.Info {
	return toolregistry.Info{
		Name:        "search",
		Description: "Search file contents for a query string or regex, optionally scoped to a path.",
		Async:       true,
		Parameters: llm.JSONSchema{
			Type: "object",
			Properties: map[string]llm.JSONSchema{
				"query":      {Type: "string", Description: "Text or regex to search for"},
				"path":       {Type: "string", Description: "Directory or file to restrict the search to"},
				"exact":      {Type: "boolean", Description: "Treat query as a literal string rather than a regex"},
				"max_tokens": {Type: "integer", Description: "Accepted but not applied; the output is not truncated"},
			},
			Required: []string{"query"},
		},
	}
}

func (t *SearchTool) Execute(ctx context.Context, args map[string]interface{}) (toolregistry.Result, error) {
	query, ok := args["query"].(string)
	if !ok || query == "" {
		return errResult("query parameter is required"), nil
	}
	path, _ := args["path"].(string)
	if path == "" {
		path = "."
	}
	exact, _ := args["exact"].(bool)

	cmdArgs := []string{"--line-number", "--with-filename", "--color", "never"}
	if exact {
		cmdArgs = append(cmdArgs, "--fixed-strings")
	}
	cmdArgs = append(cmdArgs, query, path)

	cmd := exec.CommandContext(ctx, t.binary, cmdArgs...)
	out, err := cmd.Output()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok && exitErr.ExitCode() == 1 {
			return toolregistry.Result{Success: true, Content: "no matches found", Metadata: map[string]interface{}{"query": query}}, nil
		}
		return errResult(fmt.Sprintf("search failed: %v", err)), nil
	}

	if t.tracker != nil {
		for _, p := range matchedPaths(string(out)) {
			t.tracker.MarkSeen(p)
		}
	}

	return toolregistry.Result{
		Success:  true,
		Content:  string(out),
		Metadata: map[string]interface{}{"query": query, "path": path},
	}, nil
}

func matchedPaths(output string) []string {
	seen := make(map[string]struct{})
	var paths []string
	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		line := scanner.Text()
		idx := strings.Index(line, ":")
		if idx <= 0 {
			continue
		}
		path := line[:idx]
		if _, ok := seen[path]; !ok {
			seen[path] = struct{}{}
			paths = append(paths, path)
		}
	}
	return paths
}

// ListFilesTool is the file-list facet of search, returning paths
// matching a glob under the working directory.
type ListFilesTool struct {
	workingDir string
}

// NewListFilesTool builds a file-listing tool rooted at workingDir.
func NewListFilesTool(workingDir string) *ListFilesTool {
	if workingDir == "" {
		workingDir = "."
	}
	return &ListFilesTool{workingDir: workingDir}
}

func (t *ListFilesTool) Info() toolregistry.Info {
	return toolregistry.Info{
		Name:        "listFiles",
		Description: "List files matching a glob pattern under the working directory.",
		Async:       true,
		Parameters: llm.JSONSchema{
			Type: "object",
			Properties: map[string]llm.JSONSchema{
				"pattern": {Type: "string", Description: "Glob pattern, defaults to every file"},
			},
		},
	}
}

func (t *ListFilesTool) Execute(ctx context.Context, args map[string]interface{}) (toolregistry.Result, error) {
	pattern, _ := args["pattern"].(string)
	if pattern == "" {
		pattern = "*"
	}

	matches, err := filepath.Glob(filepath.Join(t.workingDir, pattern))
	if err != nil {
		return errResult(fmt.Sprintf("invalid pattern: %v", err)), nil
	}

	return toolregistry.Result{
		Success:  true,
		Content:  strings.Join(matches, "\n"),
		Output:   matches,
		Metadata: map[string]interface{}{"pattern": pattern, "count": len(matches)},
	}, nil
}

// parseLineRange parses a "line" or "line-end" suffix, returning
// 1-based inclusive bounds; end of 0 means "to end of file".
func parseLineRange(spec string) (start, end int, err error) {
	parts := strings.SplitN(spec, "-", 2)
	start, err = strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, fmt.Errorf("invalid line number %q", parts[0])
	}
	if len(parts) == 1 {
		return start, start, nil
	}
	end, err = strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, fmt.Errorf("invalid line number %q", parts[1])
	}
	return start, end, nil
}
