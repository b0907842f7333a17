// Package config provides project-level configuration for sidekick.
// It supports a .sidekick.toml file in the project root and .claude/skills
// directory conventions.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// ProjectFile is the conventional name of the project configuration file.
const ProjectFile = ".sidekick.toml"

// Config holds the assistant invocation settings for a project.
type Config struct {
	// Binary is the assistant executable name resolved from PATH.
	Binary string `toml:"binary"`

	// Model selects the assistant model. Empty means the assistant default.
	Model string `toml:"model"`

	// AllowTools permits the assistant to use tools. When false every tool
	// is denied.
	AllowTools bool `toml:"allow_tools"`

	// AllowedTools restricts tool use to the listed tools when AllowTools
	// is true. Empty means all tools are permitted.
	AllowedTools []string `toml:"allowed_tools"`

	// SkipPermissionChecks bypasses the assistant's interactive permission
	// prompts.
	SkipPermissionChecks bool `toml:"skip_permission_checks"`

	// SkillsDir is the directory holding skill definitions. Relative paths
	// are resolved against the project root.
	SkillsDir string `toml:"skills_dir"`
}

// DefaultConfig returns the default project configuration.
func DefaultConfig() *Config {
	return &Config{
		Binary:     "claude",
		AllowTools: false,
		SkillsDir:  filepath.Join(".claude", "skills"),
	}
}

// Load loads the project configuration from dir, merging .sidekick.toml over
// defaults. A missing file is not an error.
func Load(dir string) (*Config, error) {
	cfg := DefaultConfig()

	path := filepath.Join(dir, ProjectFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.resolvePaths(dir)
			return cfg, nil
		}
		return nil, fmt.Errorf("read %s: %w", ProjectFile, err)
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", ProjectFile, err)
	}

	cfg.resolvePaths(dir)
	return cfg, nil
}

// resolvePaths makes relative paths absolute against the project root.
func (c *Config) resolvePaths(dir string) {
	if c.SkillsDir != "" && !filepath.IsAbs(c.SkillsDir) {
		c.SkillsDir = filepath.Join(dir, c.SkillsDir)
	}
}
