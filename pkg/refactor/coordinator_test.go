package refactor

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ronnygunawan/opencopilot/pkg/changetracker"
	"github.com/ronnygunawan/opencopilot/pkg/executor"
	"github.com/ronnygunawan/opencopilot/pkg/utils"
	"github.com/ronnygunawan/opencopilot/pkg/workspace"
)

type stubRunner struct {
	results []*executor.CommandResult
	calls   int
}

func (s *stubRunner) Run(_ context.Context, _ string, _ string, _ ...string) (*executor.CommandResult, error) {
	s.calls++
	if len(s.results) == 0 {
		return &executor.CommandResult{}, nil
	}
	result := s.results[0]
	s.results = s.results[1:]
	return result, nil
}

func strPtr(s string) *string { return &s }

func newCoordinator(t *testing.T, runner executor.Runner) (*Coordinator, *changetracker.Tracker, string) {
	t.Helper()
	root := t.TempDir()
	tracker := changetracker.NewTracker(root, utils.NewTestLogger())
	return NewCoordinator(tracker, runner, utils.NewTestLogger()), tracker, root
}

func TestApplyAtomicChanges_AllLand(t *testing.T) {
	c, tracker, root := newCoordinator(t, &stubRunner{})
	require.NoError(t, utils.SaveFile(filepath.Join(root, "old.ts"), "old"))

	err := c.ApplyAtomicChanges(context.Background(), []changetracker.FileChange{
		{Kind: changetracker.ChangeCreated, Path: "new.ts", NewContent: strPtr("created")},
		{Kind: changetracker.ChangeModified, Path: "old.ts", NewContent: strPtr("updated")},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, tracker.Len())

	content, err := tracker.ReadFile("old.ts")
	require.NoError(t, err)
	assert.Equal(t, "updated", content)
}

func TestApplyAtomicChanges_FailureRollsBackEverything(t *testing.T) {
	c, tracker, root := newCoordinator(t, &stubRunner{})
	require.NoError(t, utils.SaveFile(filepath.Join(root, "existing.ts"), "keep me"))

	err := c.ApplyAtomicChanges(context.Background(), []changetracker.FileChange{
		{Kind: changetracker.ChangeCreated, Path: "first.ts", NewContent: strPtr("x")},
		// Creating a file that already exists fails the changeset.
		{Kind: changetracker.ChangeCreated, Path: "existing.ts", NewContent: strPtr("y")},
	})
	require.Error(t, err)

	// first.ts was undone, existing.ts untouched, ledger empty again.
	_, statErr := os.Stat(filepath.Join(root, "first.ts"))
	assert.True(t, os.IsNotExist(statErr))
	content, readErr := tracker.ReadFile("existing.ts")
	require.NoError(t, readErr)
	assert.Equal(t, "keep me", content)
	assert.Equal(t, 0, tracker.Len())
}

func TestApplyAtomicChanges_RollbackPreservesEarlierLedger(t *testing.T) {
	c, tracker, root := newCoordinator(t, &stubRunner{})
	require.NoError(t, utils.SaveFile(filepath.Join(root, "taken.ts"), "x"))

	// A change ledgered before the changeset stays after its rollback.
	require.NoError(t, tracker.CreateFile("pre.ts", "earlier work"))

	err := c.ApplyAtomicChanges(context.Background(), []changetracker.FileChange{
		{Kind: changetracker.ChangeCreated, Path: "taken.ts", NewContent: strPtr("boom")},
	})
	require.Error(t, err)

	assert.Equal(t, 1, tracker.Len())
	content, readErr := tracker.ReadFile("pre.ts")
	require.NoError(t, readErr)
	assert.Equal(t, "earlier work", content)
}

func TestVerifyChangeset_FailureRollsBack(t *testing.T) {
	runner := &stubRunner{results: []*executor.CommandResult{
		{ExitCode: 1, Stderr: "src/a.go:1:1: undefined: x"},
	}}
	c, tracker, root := newCoordinator(t, runner)

	mark := tracker.Len()
	require.NoError(t, tracker.CreateFile("src/a.go", "package a\n"))

	repoCtx := &workspace.RepositoryContext{
		Root:      root,
		BuildTool: &workspace.ToolInfo{Name: "go", Command: "go", Args: []string{"build", "./..."}},
	}
	result, err := c.VerifyChangeset(context.Background(), repoCtx, mark)
	require.NoError(t, err)

	assert.True(t, result.Determined)
	assert.False(t, result.Succeeded)
	require.Len(t, result.Errors, 1)
	_, statErr := os.Stat(filepath.Join(root, "src/a.go"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestVerifyChangeset_NoBuildToolIsUndetermined(t *testing.T) {
	runner := &stubRunner{}
	c, tracker, root := newCoordinator(t, runner)
	require.NoError(t, tracker.CreateFile("a.txt", "x"))

	result, err := c.VerifyChangeset(context.Background(), &workspace.RepositoryContext{Root: root}, 0)
	require.NoError(t, err)

	assert.False(t, result.Determined)
	assert.Equal(t, 0, runner.calls)
	// Nothing rolled back.
	assert.Equal(t, 1, tracker.Len())
}

func TestExecute_OrdersAppliesAndVerifies(t *testing.T) {
	runner := &stubRunner{results: []*executor.CommandResult{{ExitCode: 0}}}
	c, tracker, root := newCoordinator(t, runner)

	require.NoError(t, utils.SaveFile(filepath.Join(root, "src/db.ts"), "export const db = 1\n"))
	require.NoError(t, utils.SaveFile(filepath.Join(root, "src/api.ts"), `import { db } from "./db"`+"\n"))

	changes := []changetracker.FileChange{
		{Kind: changetracker.ChangeModified, Path: "src/api.ts", NewContent: strPtr(`import { db } from "./db"` + "\nexport const api = db\n")},
		{Kind: changetracker.ChangeModified, Path: "src/db.ts", NewContent: strPtr("export const db = 2\n")},
	}
	repoCtx := &workspace.RepositoryContext{
		Root:      root,
		BuildTool: &workspace.ToolInfo{Name: "npm", Command: "npm", Args: []string{"run", "build"}},
	}

	ordered, result, err := c.Execute(context.Background(), repoCtx, changes)
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.True(t, result.Succeeded)
	require.Len(t, ordered, 2)
	// db.ts is a dependency of api.ts, so it is applied first.
	assert.Equal(t, "src/db.ts", ordered[0].Path)
	assert.Equal(t, "src/api.ts", ordered[1].Path)
	assert.Equal(t, 2, tracker.Len())

	content, readErr := tracker.ReadFile("src/db.ts")
	require.NoError(t, readErr)
	assert.Equal(t, "export const db = 2\n", content)
}
