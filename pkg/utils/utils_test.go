package utils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCapitalize(t *testing.T) {
	assert.Equal(t, "Go", Capitalize("go"))
	assert.Equal(t, "Typescript", Capitalize("typescript"))
	assert.Equal(t, "", Capitalize(""))
}

func TestSaveFileCreatesParents(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "a", "b", "c.txt")

	require.NoError(t, SaveFile(path, "content"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "content", string(data))
	assert.True(t, FileExists(path))
}

func TestFileExists(t *testing.T) {
	root := t.TempDir()
	assert.False(t, FileExists(filepath.Join(root, "missing.txt")))
	assert.False(t, FileExists(root))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", Truncate("short", 10))
	assert.Equal(t, "lon...", Truncate("longer text", 3))
	assert.Equal(t, "héé...", Truncate("hééllo", 3))
}
