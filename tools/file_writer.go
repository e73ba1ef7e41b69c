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
	"github.com/corestack/agentcore/internal/linehash"
	"github.com/corestack/agentcore/internal/llm"
	"github.com/corestack/agentcore/internal/toolregistry"
)

// FileWriterTool creates and overwrites files under a working
// directory, guarding against directory traversal, disallowed
// extensions and (when configured) a blind overwrite of a file the
// agent loop never actually read. The staleness check reads a
// "line:hash" tag the caller echoes back for the line it based an
// edit on; a mismatch means the file moved under the model.
type FileWriterTool struct {
	config  *config.FileWriterConfig
	tracker *filetracker.Tracker
}

// NewFileWriterTool creates a file writer tool. tracker may be nil if
// staleness checking is not desired.
func NewFileWriterTool(cfg *config.FileWriterConfig, tracker *filetracker.Tracker) *FileWriterTool {
	if cfg == nil {
		cfg = &config.FileWriterConfig{}
	}
	cfg.SetDefaults()
	return &FileWriterTool{config: cfg, tracker: tracker}
}

// Info implements toolregistry.Tool.
func (t *FileWriterTool) Info() toolregistry.Info {
	return toolregistry.Info{
		Name:        "write_file",
		Description: "Create a new file or overwrite an existing file with content. Supports backups and staleness checks.",
		Async:       true,
		Parameters: llm.JSONSchema{
			Type: "object",
			Properties: map[string]llm.JSONSchema{
				"path":          {Type: "string", Description: "File path relative to the working directory"},
				"content":       {Type: "string", Description: "Content to write to the file"},
				"backup":        {Type: "boolean", Description: "Create a .bak backup if the file exists (default true)"},
				"expected_line": {Type: "integer", Description: "Line number the edit was based on, for staleness checking"},
				"expected_hash": {Type: "integer", Description: "Line hash the edit was based on, for staleness checking"},
			},
			Required: []string{"path", "content"},
		},
	}
}

// writeFileParams is the typed shape of write_file's arguments, decoded
// from the loosely-typed call args via mapstructure rather than a
// field-by-field type assertion.
type writeFileParams struct {
	Path         string `mapstructure:"path"`
	Content      string `mapstructure:"content"`
	Backup       *bool  `mapstructure:"backup"`
	ExpectedLine *int   `mapstructure:"expected_line"`
	ExpectedHash *int   `mapstructure:"expected_hash"`
}

// Execute implements toolregistry.Tool.
func (t *FileWriterTool) Execute(ctx context.Context, args map[string]interface{}) (toolregistry.Result, error) {
	var params writeFileParams
	if err := mapstructure.Decode(args, &params); err != nil {
		return errResult(fmt.Sprintf("invalid arguments: %v", err)), nil
	}
	if params.Path == "" {
		return errResult("path parameter is required"), nil
	}
	if params.Content == "" {
		return errResult("content parameter is required"), nil
	}
	path, content := params.Path, params.Content

	backup := true
	if params.Backup != nil {
		backup = *params.Backup
	}

	if err := t.validatePath(path); err != nil {
		return errResult(err.Error()), nil
	}
	if len(content) > t.config.MaxFileSize {
		return errResult(fmt.Sprintf("content too large: %d bytes (max: %d)", len(content), t.config.MaxFileSize)), nil
	}

	fullPath := filepath.Join(t.config.WorkingDirectory, path)

	fileExisted := false
	if existing, err := os.ReadFile(fullPath); err == nil {
		fileExisted = true

		if t.config.RequireSeen && t.tracker != nil && !t.tracker.HasSeen(path) {
			return errResult(fmt.Sprintf("refusing to overwrite %s: file was never read in this session", path)), nil
		}
		if params.ExpectedLine != nil {
			hash := 0
			if params.ExpectedHash != nil {
				hash = *params.ExpectedHash
			}
			if !linehash.VerifyLine(string(existing), *params.ExpectedLine, byte(hash)) {
				return errResult(fmt.Sprintf("refusing to overwrite %s: line %d changed since it was last read", path, *params.ExpectedLine)), nil
			}
		}

		if backup && t.config.BackupOnOverwrite {
			if err := os.WriteFile(fullPath+".bak", existing, 0644); err != nil {
				return errResult(fmt.Sprintf("failed to create backup: %v", err)), nil
			}
		}
	}

	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return errResult(fmt.Sprintf("failed to create directory: %v", err)), nil
	}
	if err := os.WriteFile(fullPath, []byte(content), 0644); err != nil {
		return errResult(fmt.Sprintf("failed to write file: %v", err)), nil
	}

	if t.tracker != nil {
		t.tracker.MarkSeen(path)
		t.tracker.InvalidateSymbols(path)
	}

	action := "created"
	if fileExisted {
		action = "overwritten"
	}
	message := fmt.Sprintf("File %s successfully: %s (%d bytes)", action, path, len(content))
	if fileExisted && backup && t.config.BackupOnOverwrite {
		message += fmt.Sprintf("\nBackup created: %s.bak", path)
	}

	return toolregistry.Result{
		Success: true,
		Content: message,
		Metadata: map[string]interface{}{
			"path":         path,
			"size":         len(content),
			"file_existed": fileExisted,
			"action":       action,
		},
	}, nil
}

func (t *FileWriterTool) validatePath(path string) error {
	if filepath.IsAbs(path) {
		return fmt.Errorf("absolute paths not allowed, use relative paths")
	}
	cleaned := filepath.Clean(path)
	if strings.Contains(cleaned, "..") {
		return fmt.Errorf("directory traversal not allowed (..)")
	}

	absPath, err := filepath.Abs(filepath.Join(t.config.WorkingDirectory, cleaned))
	if err != nil {
		return fmt.Errorf("invalid path: %w", err)
	}
	absWorkDir, err := filepath.Abs(t.config.WorkingDirectory)
	if err != nil {
		return fmt.Errorf("invalid working directory: %w", err)
	}
	if absPath != absWorkDir && !strings.HasPrefix(absPath, absWorkDir+string(filepath.Separator)) {
		return fmt.Errorf("path escapes working directory")
	}

	if len(t.config.AllowedExtensions) > 0 {
		ext := filepath.Ext(path)
		if ext == "" {
			return fmt.Errorf("file must have an extension")
		}
		allowed := false
		for _, allowedExt := range t.config.AllowedExtensions {
			if ext == allowedExt {
				allowed = true
				break
			}
		}
		if !allowed {
			return fmt.Errorf("file extension %s not allowed (allowed: %v)", ext, t.config.AllowedExtensions)
		}
	}
	return nil
}

func errResult(msg string) toolregistry.Result {
	return toolregistry.Result{Success: false, Error: msg}
}
