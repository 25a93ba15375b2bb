package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	ConfigDirName  = ".opencopilot"
	ConfigFileName = "config.yaml"
)

// MarkerRule maps a marker file (or glob) to the tool it identifies. Rules are
// evaluated in order; the first matching marker wins.
type MarkerRule struct {
	Marker string `yaml:"marker"`
	Tool   string `yaml:"tool"`
}

// WorkspaceConfig controls repository inspection.
type WorkspaceConfig struct {
	BuildMarkers []MarkerRule `yaml:"build_markers,omitempty"`
	TestMarkers  []MarkerRule `yaml:"test_markers,omitempty"`
	IgnoreDirs   []string     `yaml:"ignore_dirs,omitempty"`
}

// Config is the application configuration, loaded from
// .opencopilot/config.yaml with defaults merged in for anything absent.
type Config struct {
	Model string `yaml:"model,omitempty"`

	BuildMaxRetries int `yaml:"build_max_retries,omitempty"`
	TestMaxRetries  int `yaml:"test_max_retries,omitempty"`
	StepMaxRetries  int `yaml:"step_max_retries,omitempty"`

	// CommandTimeoutSeconds bounds a single build/test invocation.
	CommandTimeoutSeconds int `yaml:"command_timeout_seconds,omitempty"`
	// GenerationTimeoutSeconds bounds a single LLM request.
	GenerationTimeoutSeconds int `yaml:"generation_timeout_seconds,omitempty"`

	// RequireBuildTool escalates an undetectable build tool from an
	// "undetermined" soft result to a step failure.
	RequireBuildTool bool `yaml:"require_build_tool,omitempty"`

	Workspace WorkspaceConfig `yaml:"workspace,omitempty"`
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() *Config {
	return &Config{
		Model:                    "qwen2.5-coder:7b",
		BuildMaxRetries:          3,
		TestMaxRetries:           2,
		StepMaxRetries:           1,
		CommandTimeoutSeconds:    300,
		GenerationTimeoutSeconds: 120,
		Workspace: WorkspaceConfig{
			BuildMarkers: []MarkerRule{
				{Marker: "go.mod", Tool: "go"},
				{Marker: "package.json", Tool: "npm"},
				{Marker: "Cargo.toml", Tool: "cargo"},
				{Marker: "pom.xml", Tool: "maven"},
				{Marker: "build.gradle", Tool: "gradle"},
				{Marker: "build.gradle.kts", Tool: "gradle"},
				{Marker: "*.csproj", Tool: "dotnet"},
				{Marker: "*.sln", Tool: "dotnet"},
				{Marker: "Makefile", Tool: "make"},
				{Marker: "pyproject.toml", Tool: "python"},
				{Marker: "requirements.txt", Tool: "python"},
			},
			TestMarkers: []MarkerRule{
				{Marker: "go.mod", Tool: "go test"},
				{Marker: "jest.config.js", Tool: "jest"},
				{Marker: "jest.config.ts", Tool: "jest"},
				{Marker: "vitest.config.ts", Tool: "vitest"},
				{Marker: "pytest.ini", Tool: "pytest"},
				{Marker: "pyproject.toml", Tool: "pytest"},
				{Marker: "Cargo.toml", Tool: "cargo test"},
				{Marker: "*.csproj", Tool: "dotnet test"},
			},
			IgnoreDirs: []string{
				".git", ".opencopilot", "node_modules", "vendor", "bin",
				"obj", "target", "dist", "build", "__pycache__", ".venv",
			},
		},
	}
}

// Load reads the config file under root and merges it over the defaults. A
// missing file is not an error.
func Load(root string) (*Config, error) {
	cfg := DefaultConfig()
	path := filepath.Join(root, ConfigDirName, ConfigFileName)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var fileCfg Config
	if err := yaml.Unmarshal(data, &fileCfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	cfg.merge(&fileCfg)

	if model := os.Getenv("OPENCOPILOT_MODEL"); model != "" {
		cfg.Model = model
	}
	return cfg, nil
}

func (c *Config) merge(o *Config) {
	if o.Model != "" {
		c.Model = o.Model
	}
	if o.BuildMaxRetries > 0 {
		c.BuildMaxRetries = o.BuildMaxRetries
	}
	if o.TestMaxRetries > 0 {
		c.TestMaxRetries = o.TestMaxRetries
	}
	if o.StepMaxRetries > 0 {
		c.StepMaxRetries = o.StepMaxRetries
	}
	if o.CommandTimeoutSeconds > 0 {
		c.CommandTimeoutSeconds = o.CommandTimeoutSeconds
	}
	if o.GenerationTimeoutSeconds > 0 {
		c.GenerationTimeoutSeconds = o.GenerationTimeoutSeconds
	}
	if o.RequireBuildTool {
		c.RequireBuildTool = true
	}
	if len(o.Workspace.BuildMarkers) > 0 {
		c.Workspace.BuildMarkers = o.Workspace.BuildMarkers
	}
	if len(o.Workspace.TestMarkers) > 0 {
		c.Workspace.TestMarkers = o.Workspace.TestMarkers
	}
	if len(o.Workspace.IgnoreDirs) > 0 {
		c.Workspace.IgnoreDirs = o.Workspace.IgnoreDirs
	}
}

// CommandTimeout returns the per-invocation command timeout.
func (c *Config) CommandTimeout() time.Duration {
	return time.Duration(c.CommandTimeoutSeconds) * time.Second
}

// GenerationTimeout returns the per-request generation timeout.
func (c *Config) GenerationTimeout() time.Duration {
	return time.Duration(c.GenerationTimeoutSeconds) * time.Second
}
