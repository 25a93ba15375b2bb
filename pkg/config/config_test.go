package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ronnygunawan/opencopilot/pkg/utils"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 3, cfg.BuildMaxRetries)
	assert.Equal(t, 2, cfg.TestMaxRetries)
	assert.Equal(t, 1, cfg.StepMaxRetries)
	assert.False(t, cfg.RequireBuildTool)
	assert.Equal(t, 5*time.Minute, cfg.CommandTimeout())
	assert.Equal(t, 2*time.Minute, cfg.GenerationTimeout())

	// go.mod has to outrank generic markers like Makefile.
	require.NotEmpty(t, cfg.Workspace.BuildMarkers)
	assert.Equal(t, "go.mod", cfg.Workspace.BuildMarkers[0].Marker)
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Model, cfg.Model)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	root := t.TempDir()
	content := `model: llama3:8b
build_max_retries: 5
require_build_tool: true
workspace:
  ignore_dirs:
    - .git
    - out
`
	require.NoError(t, utils.SaveFile(filepath.Join(root, ConfigDirName, ConfigFileName), content))

	cfg, err := Load(root)
	require.NoError(t, err)

	assert.Equal(t, "llama3:8b", cfg.Model)
	assert.Equal(t, 5, cfg.BuildMaxRetries)
	assert.True(t, cfg.RequireBuildTool)
	assert.Equal(t, []string{".git", "out"}, cfg.Workspace.IgnoreDirs)
	// Untouched fields keep their defaults.
	assert.Equal(t, 2, cfg.TestMaxRetries)
	assert.NotEmpty(t, cfg.Workspace.BuildMarkers)
}

func TestLoad_ModelEnvOverride(t *testing.T) {
	t.Setenv("OPENCOPILOT_MODEL", "codellama:13b")

	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "codellama:13b", cfg.Model)
}

func TestLoad_MalformedYAML(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, utils.SaveFile(filepath.Join(root, ConfigDirName, ConfigFileName), "model: [unclosed"))

	_, err := Load(root)
	assert.Error(t, err)
}

func TestLoad_CustomMarkerPriority(t *testing.T) {
	root := t.TempDir()
	content := `workspace:
  build_markers:
    - marker: Makefile
      tool: make
    - marker: go.mod
      tool: go
`
	require.NoError(t, utils.SaveFile(filepath.Join(root, ConfigDirName, ConfigFileName), content))

	cfg, err := Load(root)
	require.NoError(t, err)
	require.Len(t, cfg.Workspace.BuildMarkers, 2)
	assert.Equal(t, "Makefile", cfg.Workspace.BuildMarkers[0].Marker)
}
