package changetracker

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetDiff(t *testing.T) {
	original := "line one\nline two\nline three\n"
	updated := "line one\nline 2\nline three\n"

	diff := GetDiff("f.txt", original, updated)

	assert.True(t, strings.HasPrefix(diff, "--- f.txt\n+++ f.txt\n"))
	assert.Contains(t, diff, "-line two")
	assert.Contains(t, diff, "+line 2")
	assert.Contains(t, diff, " line one")
}

func TestDiffForChange_Created(t *testing.T) {
	content := "fresh\n"
	diff := DiffForChange(FileChange{Kind: ChangeCreated, Path: "new.txt", NewContent: &content})

	assert.Contains(t, diff, "+fresh")
	assert.NotContains(t, diff, "-fresh")
}

func TestDiffForChange_Deleted(t *testing.T) {
	content := "old\n"
	diff := DiffForChange(FileChange{Kind: ChangeDeleted, Path: "gone.txt", OldContent: &content})

	assert.Contains(t, diff, "-old")
}
