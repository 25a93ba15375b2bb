package workspace

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ronnygunawan/opencopilot/pkg/config"
	"github.com/ronnygunawan/opencopilot/pkg/utils"
)

func newTestBuilder() *ContextBuilder {
	return NewContextBuilder(config.DefaultConfig(), utils.NewTestLogger())
}

func seedFiles(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for path, content := range files {
		require.NoError(t, utils.SaveFile(filepath.Join(root, path), content))
	}
}

func TestBuild_GoRepository(t *testing.T) {
	root := t.TempDir()
	seedFiles(t, root, map[string]string{
		"go.mod":          "module example.com/demo\n",
		"main.go":         "package main\n",
		"pkg/util.go":     "package pkg\n",
		"pkg/util_test.go": "package pkg\n",
	})

	rc, err := newTestBuilder().Build(root)
	require.NoError(t, err)

	assert.Equal(t, "go", rc.Language)
	require.True(t, rc.HasBuildTool())
	assert.Equal(t, "go", rc.BuildTool.Name)
	assert.Equal(t, "go", rc.BuildTool.Command)
	assert.Equal(t, []string{"build", "./..."}, rc.BuildTool.Args)
	require.True(t, rc.HasTestFramework())
	assert.Equal(t, "go test", rc.TestFramework.Name)
}

func TestBuild_NodeRepository(t *testing.T) {
	root := t.TempDir()
	seedFiles(t, root, map[string]string{
		"package.json":       "{}\n",
		"jest.config.js":     "module.exports = {}\n",
		"src/index.ts":       "export {}\n",
		"src/index.test.ts":  "export {}\n",
	})

	rc, err := newTestBuilder().Build(root)
	require.NoError(t, err)

	assert.Equal(t, "typescript", rc.Language)
	require.True(t, rc.HasBuildTool())
	assert.Equal(t, "npm", rc.BuildTool.Name)
	require.True(t, rc.HasTestFramework())
	assert.Equal(t, "jest", rc.TestFramework.Name)
}

func TestBuild_GlobMarker(t *testing.T) {
	root := t.TempDir()
	seedFiles(t, root, map[string]string{
		"App/App.csproj": "<Project/>\n",
		"App/Program.cs": "class Program {}\n",
	})

	rc, err := newTestBuilder().Build(root)
	require.NoError(t, err)

	assert.Equal(t, "csharp", rc.Language)
	require.True(t, rc.HasBuildTool())
	assert.Equal(t, "dotnet", rc.BuildTool.Name)
}

func TestBuild_EmptyTreeIsValid(t *testing.T) {
	rc, err := newTestBuilder().Build(t.TempDir())
	require.NoError(t, err)

	assert.Empty(t, rc.Files)
	assert.Empty(t, rc.Language)
	assert.False(t, rc.HasBuildTool())
	assert.False(t, rc.HasTestFramework())
}

func TestBuild_MarkerPriorityOrder(t *testing.T) {
	// go.mod outranks Makefile because it comes first in the rule list.
	root := t.TempDir()
	seedFiles(t, root, map[string]string{
		"go.mod":   "module example.com/demo\n",
		"Makefile": "all:\n",
		"main.go":  "package main\n",
	})

	rc, err := newTestBuilder().Build(root)
	require.NoError(t, err)
	require.True(t, rc.HasBuildTool())
	assert.Equal(t, "go", rc.BuildTool.Name)
}

func TestListFiles_HonorsIgnoreDirsAndGitignore(t *testing.T) {
	root := t.TempDir()
	seedFiles(t, root, map[string]string{
		".gitignore":              "dist/\n*.log\n",
		"src/app.ts":              "export {}\n",
		"dist/bundle.js":          "var x\n",
		"node_modules/x/index.js": "var x\n",
		"debug.log":               "noise\n",
	})

	rc, err := newTestBuilder().Build(root)
	require.NoError(t, err)

	assert.Contains(t, rc.Files, "src/app.ts")
	assert.NotContains(t, rc.Files, "dist/bundle.js")
	assert.NotContains(t, rc.Files, "node_modules/x/index.js")
	assert.NotContains(t, rc.Files, "debug.log")
}

func TestDetectLanguage_MajorityWins(t *testing.T) {
	lang := detectLanguage([]string{"a.py", "b.py", "c.go"})
	assert.Equal(t, "python", lang)
}

func TestDetectLanguage_TieIsStable(t *testing.T) {
	assert.Equal(t, detectLanguage([]string{"a.go", "b.py"}), detectLanguage([]string{"b.py", "a.go"}))
}
