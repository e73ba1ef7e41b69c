package tools

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/corestack/agentcore/config"
	"github.com/corestack/agentcore/internal/filetracker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileWriterTool_CreatesAndOverwritesWithBackup(t *testing.T) {
	dir := t.TempDir()
	tracker := filetracker.New()
	cfg := &config.FileWriterConfig{WorkingDirectory: dir, BackupOnOverwrite: true}
	tool := NewFileWriterTool(cfg, tracker)

	res, err := tool.Execute(context.Background(), map[string]interface{}{
		"path": "out.txt", "content": "first",
	})
	require.NoError(t, err)
	require.True(t, res.Success)
	require.True(t, tracker.HasSeen("out.txt"))

	res, err = tool.Execute(context.Background(), map[string]interface{}{
		"path": "out.txt", "content": "second",
	})
	require.NoError(t, err)
	require.True(t, res.Success)

	backup, err := os.ReadFile(filepath.Join(dir, "out.txt.bak"))
	require.NoError(t, err)
	assert.Equal(t, "first", string(backup))
}

func TestFileWriterTool_RejectsDirectoryTraversal(t *testing.T) {
	dir := t.TempDir()
	tool := NewFileWriterTool(&config.FileWriterConfig{WorkingDirectory: dir}, nil)

	res, err := tool.Execute(context.Background(), map[string]interface{}{
		"path": "../escape.txt", "content": "x",
	})
	require.NoError(t, err)
	assert.False(t, res.Success)
}

func TestSearchReplaceTool_RequiresUniqueMatch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f.go")
	require.NoError(t, os.WriteFile(path, []byte("a\na\nb\n"), 0644))

	tool := NewSearchReplaceTool(&config.SearchReplaceConfig{WorkingDirectory: dir}, nil)
	res, err := tool.Execute(context.Background(), map[string]interface{}{
		"path": "f.go", "old_string": "a", "new_string": "z",
	})
	require.NoError(t, err)
	assert.False(t, res.Success)

	res, err = tool.Execute(context.Background(), map[string]interface{}{
		"path": "f.go", "old_string": "a", "new_string": "z", "replace_all": true,
	})
	require.NoError(t, err)
	assert.True(t, res.Success)
}

func TestExtractTool_LineRange(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "f.txt"), []byte("one\ntwo\nthree\nfour"), 0644))

	tool := NewExtractTool(dir, nil)
	res, err := tool.Execute(context.Background(), map[string]interface{}{
		"targets": []interface{}{"f.txt:2-3"},
	})
	require.NoError(t, err)
	require.True(t, res.Success)
	assert.Contains(t, res.Content, "two")
	assert.Contains(t, res.Content, "three")
	assert.NotContains(t, res.Content, "four")
}

func TestExtractTool_SymbolSelector(t *testing.T) {
	dir := t.TempDir()
	src := "package main\n\nfunc Foo() {\n\tprintln(1)\n}\n\nfunc Bar() {\n\tprintln(2)\n}\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "f.go"), []byte(src), 0644))

	tool := NewExtractTool(dir, filetracker.New())
	res, err := tool.Execute(context.Background(), map[string]interface{}{
		"targets": []interface{}{"f.go#Foo"},
	})
	require.NoError(t, err)
	require.True(t, res.Success)
	assert.Contains(t, res.Content, "func Foo")
	assert.NotContains(t, res.Content, "func Bar")
}

func TestListFilesTool_GlobMatch(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.go"), []byte("package main"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.txt"), []byte("hi"), 0644))

	tool := NewListFilesTool(dir)
	res, err := tool.Execute(context.Background(), map[string]interface{}{"pattern": "*.go"})
	require.NoError(t, err)
	assert.Contains(t, res.Content, "a.go")
	assert.NotContains(t, res.Content, "b.txt")
}
