// Package config provides configuration types and utilities for the AI agent framework.
// This file contains all configuration types in a unified structure.
package config

import (
	"fmt"
	"time"
)

// ============================================================================
// TOOL CONFIGURATIONS
// ============================================================================

// CommandToolsConfig represents command tool configuration
type CommandToolsConfig struct {
	AllowedCommands  []string      `yaml:"allowed_commands"`
	DeniedCommands   []string      `yaml:"denied_commands"`
	DenyByDefault    bool          `yaml:"deny_by_default"`
	WorkingDirectory string        `yaml:"working_directory"`
	AllowedRoots     []string      `yaml:"allowed_roots"`
	MaxExecutionTime time.Duration `yaml:"max_execution_time"`
	MaxOutputBytes   int           `yaml:"max_output_bytes"`
	EnableSandboxing bool          `yaml:"enable_sandboxing"`
}

// Validate implements Config.Validate for CommandToolsConfig
func (c *CommandToolsConfig) Validate() error {
	if len(c.AllowedCommands) == 0 {
		return fmt.Errorf("at least one allowed command is required")
	}
	return nil
}

// SetDefaults implements Config.SetDefaults for CommandToolsConfig
func (c *CommandToolsConfig) SetDefaults() {
	if len(c.AllowedCommands) == 0 {
		c.AllowedCommands = []string{
			"cat", "head", "tail", "ls", "find", "grep", "wc", "pwd",
			"git", "npm", "go", "curl", "wget", "echo", "date",
		}
	}
	if c.WorkingDirectory == "" {
		c.WorkingDirectory = "./"
	}
	if c.MaxExecutionTime == 0 {
		c.MaxExecutionTime = 30 * time.Second
	}
	if c.MaxOutputBytes == 0 {
		c.MaxOutputBytes = 10 * 1024 * 1024
	}
}

// SearchReplaceConfig represents the search_replace tool configuration.
type SearchReplaceConfig struct {
	MaxReplacements  int    `yaml:"max_replacements"`
	ShowDiff         bool   `yaml:"show_diff"`
	CreateBackup     bool   `yaml:"create_backup"`
	WorkingDirectory string `yaml:"working_directory"`
	RequireSeen      bool   `yaml:"require_seen"`
}

// Validate implements Config.Validate for SearchReplaceConfig.
func (c *SearchReplaceConfig) Validate() error {
	if c.MaxReplacements < 0 {
		return fmt.Errorf("max_replacements cannot be negative")
	}
	return nil
}

// SetDefaults implements Config.SetDefaults for SearchReplaceConfig.
func (c *SearchReplaceConfig) SetDefaults() {
	if c.MaxReplacements == 0 {
		c.MaxReplacements = 100
	}
	if c.WorkingDirectory == "" {
		c.WorkingDirectory = "./"
	}
}

// FileWriterConfig represents the write_file tool configuration.
type FileWriterConfig struct {
	MaxFileSize       int      `yaml:"max_file_size"`
	AllowedExtensions []string `yaml:"allowed_extensions"`
	BackupOnOverwrite bool     `yaml:"backup_on_overwrite"`
	WorkingDirectory  string   `yaml:"working_directory"`
	// RequireSeen, when true, refuses to overwrite a path the file
	// tracker has not recorded as read in this session, guarding
	// against a blind edit to a file the model never actually saw.
	RequireSeen bool `yaml:"require_seen"`
}

// Validate implements Config.Validate for FileWriterConfig.
func (c *FileWriterConfig) Validate() error {
	if c.MaxFileSize < 0 {
		return fmt.Errorf("max_file_size cannot be negative")
	}
	return nil
}

// SetDefaults implements Config.SetDefaults for FileWriterConfig.
func (c *FileWriterConfig) SetDefaults() {
	if c.MaxFileSize == 0 {
		c.MaxFileSize = 1048576
	}
	if len(c.AllowedExtensions) == 0 {
		c.AllowedExtensions = []string{".go", ".yaml", ".md", ".json", ".txt", ".sh"}
	}
	if c.WorkingDirectory == "" {
		c.WorkingDirectory = "./"
	}
}

// ToolConfigs bundles the per-tool configuration blocks wired into
// cmd/agentcore's tool registration. Search, query, extract, and
// listFiles take their settings as constructor arguments rather than
// a YAML block, since they expose no tunables beyond the working
// directory already threaded through CommandToolsConfig.
type ToolConfigs struct {
	Command       CommandToolsConfig  `yaml:"command,omitempty"`
	FileWriter    FileWriterConfig    `yaml:"file_writer,omitempty"`
	SearchReplace SearchReplaceConfig `yaml:"search_replace,omitempty"`
}

// Validate implements Config.Validate for ToolConfigs
func (c *ToolConfigs) Validate() error {
	if err := c.Command.Validate(); err != nil {
		return fmt.Errorf("command tool validation failed: %w", err)
	}
	if err := c.FileWriter.Validate(); err != nil {
		return fmt.Errorf("file writer tool validation failed: %w", err)
	}
	if err := c.SearchReplace.Validate(); err != nil {
		return fmt.Errorf("search_replace tool validation failed: %w", err)
	}
	return nil
}

// SetDefaults implements Config.SetDefaults for ToolConfigs
func (c *ToolConfigs) SetDefaults() {
	c.Command.SetDefaults()
	c.FileWriter.SetDefaults()
	c.SearchReplace.SetDefaults()
}

// ============================================================================
// GLOBAL CONFIGURATIONS
// ============================================================================

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`  // Log level
	Format string `yaml:"format"` // Log format
	Output string `yaml:"output"` // Output destination
}

// Validate implements Config.Validate for LoggingConfig
func (c *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[c.Level] {
		return fmt.Errorf("invalid log level: %s", c.Level)
	}
	validFormats := map[string]bool{
		"text": true, "json": true,
	}
	if !validFormats[c.Format] {
		return fmt.Errorf("invalid log format: %s", c.Format)
	}
	validOutputs := map[string]bool{
		"stdout": true, "stderr": true, "file": true,
	}
	if !validOutputs[c.Output] {
		return fmt.Errorf("invalid output destination: %s", c.Output)
	}
	return nil
}

// SetDefaults implements Config.SetDefaults for LoggingConfig
func (c *LoggingConfig) SetDefaults() {
	if c.Level == "" {
		c.Level = "info"
	}
	if c.Format == "" {
		c.Format = "text"
	}
	if c.Output == "" {
		c.Output = "stdout"
	}
}

// PerformanceConfig represents performance configuration. Global.Performance.MaxConcurrency
// is the fan-out width cmd/agentcore hands to the plan runtime's map
// builtin; with no config file it is this package's default of 4.
type PerformanceConfig struct {
	MaxConcurrency int           `yaml:"max_concurrency"` // Max concurrency
	Timeout        time.Duration `yaml:"timeout"`         // Global timeout
}

// Validate implements Config.Validate for PerformanceConfig
func (c *PerformanceConfig) Validate() error {
	if c.MaxConcurrency <= 0 {
		return fmt.Errorf("max_concurrency must be positive")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	return nil
}

// SetDefaults implements Config.SetDefaults for PerformanceConfig
func (c *PerformanceConfig) SetDefaults() {
	if c.MaxConcurrency == 0 {
		c.MaxConcurrency = 4
	}
	if c.Timeout == 0 {
		c.Timeout = 15 * time.Minute
	}
}
