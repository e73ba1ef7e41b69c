package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mitchellh/mapstructure"

	"github.com/corestack/agentcore/config"
	"github.com/corestack/agentcore/internal/filetracker"
	"github.com/corestack/agentcore/internal/llm"
	"github.com/corestack/agentcore/internal/toolregistry"
)

// SearchReplaceTool performs precise, unique-match text replacement in
// a file. It is the agent loop's edit primitive: it requires old_string
// to match exactly once (or replace_all), so a model cannot silently
// clobber unrelated text.
type SearchReplaceTool struct {
	config  *config.SearchReplaceConfig
	tracker *filetracker.Tracker
}

// NewSearchReplaceTool creates a search/replace tool. tracker may be
// nil if staleness checking is not desired.
func NewSearchReplaceTool(cfg *config.SearchReplaceConfig, tracker *filetracker.Tracker) *SearchReplaceTool {
	if cfg == nil {
		cfg = &config.SearchReplaceConfig{}
	}
	cfg.SetDefaults()
	return &SearchReplaceTool{config: cfg, tracker: tracker}
}

// Info implements toolregistry.Tool.
func (t *SearchReplaceTool) Info() toolregistry.Info {
	return toolregistry.Info{
		Name:        "search_replace",
		Description: "Replace exact text in a file. Preserves formatting and indentation. Use for precise edits.",
		Async:       true,
		Parameters: llm.JSONSchema{
			Type: "object",
			Properties: map[string]llm.JSONSchema{
				"path":        {Type: "string", Description: "File path to edit, relative to the working directory"},
				"old_string":  {Type: "string", Description: "Exact text to find (must be unique unless replace_all is set)"},
				"new_string":  {Type: "string", Description: "Replacement text"},
				"replace_all": {Type: "boolean", Description: "Replace every occurrence instead of requiring a unique match"},
			},
			Required: []string{"path", "old_string", "new_string"},
		},
	}
}

// searchReplaceParams is the typed shape of search_replace's arguments.
type searchReplaceParams struct {
	Path       string `mapstructure:"path"`
	OldString  string `mapstructure:"old_string"`
	NewString  string `mapstructure:"new_string"`
	ReplaceAll bool   `mapstructure:"replace_all"`
}

// Execute implements toolregistry.Tool.
func (t *SearchReplaceTool) Execute(ctx context.Context, args map[string]interface{}) (toolregistry.Result, error) {
	var params searchReplaceParams
	if err := mapstructure.Decode(args, &params); err != nil {
		return errResult(fmt.Sprintf("invalid arguments: %v", err)), nil
	}
	if params.Path == "" {
		return errResult("path parameter is required"), nil
	}
	if params.OldString == "" {
		return errResult("old_string parameter is required"), nil
	}
	if _, ok := args["new_string"]; !ok {
		return errResult("new_string parameter is required"), nil
	}
	path, oldString, newString, replaceAll := params.Path, params.OldString, params.NewString, params.ReplaceAll

	if err := t.validatePath(path); err != nil {
		return errResult(err.Error()), nil
	}
	fullPath := filepath.Join(t.config.WorkingDirectory, path)

	if t.config.RequireSeen && t.tracker != nil && !t.tracker.HasSeen(path) {
		return errResult(fmt.Sprintf("refusing to edit %s: file was never read in this session", path)), nil
	}

	content, err := os.ReadFile(fullPath)
	if err != nil {
		return errResult(fmt.Sprintf("failed to read file: %v", err)), nil
	}
	original := string(content)

	count := strings.Count(original, oldString)
	if count == 0 {
		return errResult(fmt.Sprintf("old_string not found in file: %q", truncateString(oldString, 50))), nil
	}
	if !replaceAll && count > 1 {
		return errResult(fmt.Sprintf("old_string appears %d times - must be unique or use replace_all", count)), nil
	}
	if count > t.config.MaxReplacements {
		return errResult(fmt.Sprintf("too many replacements: %d (max: %d)", count, t.config.MaxReplacements)), nil
	}

	var newContent string
	replacements := count
	if replaceAll {
		newContent = strings.ReplaceAll(original, oldString, newString)
	} else {
		newContent = strings.Replace(original, oldString, newString, 1)
		replacements = 1
	}

	if t.config.CreateBackup {
		_ = os.WriteFile(fullPath+".bak", content, 0644)
	}
	if err := os.WriteFile(fullPath, []byte(newContent), 0644); err != nil {
		return errResult(fmt.Sprintf("failed to write file: %v", err)), nil
	}

	if t.tracker != nil {
		t.tracker.MarkSeen(path)
		t.tracker.InvalidateSymbols(path)
	}

	var response strings.Builder
	fmt.Fprintf(&response, "Replaced %d occurrence(s) in %s\n", replacements, path)
	if t.config.ShowDiff {
		response.WriteString("\n" + diff(oldString, newString))
	}
	if t.config.CreateBackup {
		fmt.Fprintf(&response, "\nBackup created: %s.bak", path)
	}

	return toolregistry.Result{
		Success: true,
		Content: response.String(),
		Metadata: map[string]interface{}{
			"path":         path,
			"replacements": replacements,
			"replace_all":  replaceAll,
			"size_change":  len(newContent) - len(original),
		},
	}, nil
}

func (t *SearchReplaceTool) validatePath(path string) error {
	if filepath.IsAbs(path) {
		return fmt.Errorf("absolute paths not allowed")
	}
	cleaned := filepath.Clean(path)
	if strings.Contains(cleaned, "..") {
		return fmt.Errorf("directory traversal not allowed")
	}
	fullPath := filepath.Join(t.config.WorkingDirectory, path)
	if _, err := os.Stat(fullPath); os.IsNotExist(err) {
		return fmt.Errorf("file does not exist: %s", path)
	}
	return nil
}

func diff(oldStr, newStr string) string {
	var sb strings.Builder
	sb.WriteString("Changes:\n")
	sb.WriteString(strings.Repeat("-", 60) + "\n")
	for _, line := range strings.Split(oldStr, "\n") {
		if line != "" {
			fmt.Fprintf(&sb, "- %s\n", line)
		}
	}
	for _, line := range strings.Split(newStr, "\n") {
		if line != "" {
			fmt.Fprintf(&sb, "+ %s\n", line)
		}
	}
	sb.WriteString(strings.Repeat("-", 60))
	return sb.String()
}

func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
