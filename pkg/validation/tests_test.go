package validation

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ronnygunawan/opencopilot/pkg/changetracker"
	"github.com/ronnygunawan/opencopilot/pkg/config"
	"github.com/ronnygunawan/opencopilot/pkg/executor"
	"github.com/ronnygunawan/opencopilot/pkg/llm"
	"github.com/ronnygunawan/opencopilot/pkg/utils"
	"github.com/ronnygunawan/opencopilot/pkg/workspace"
)

func goTestRepoContext(root string) *workspace.RepositoryContext {
	return &workspace.RepositoryContext{
		Root:     root,
		Language: "go",
		TestFramework: &workspace.ToolInfo{
			Name: "go test", Command: "go", Args: []string{"test", "./..."}, Marker: "go.mod",
		},
	}
}

func TestValidate_NoFrameworkIsUndetermined(t *testing.T) {
	runner := &scriptRunner{}
	tracker := changetracker.NewTracker(t.TempDir(), utils.NewTestLogger())
	v := NewTestValidator(runner, &llm.StubGenerator{}, tracker, config.DefaultConfig(), utils.NewTestLogger())

	result, err := v.Validate(context.Background(), &workspace.RepositoryContext{Root: "."})
	require.NoError(t, err)

	assert.False(t, result.Determined)
	assert.False(t, result.AllPassed)
	assert.Equal(t, 0, result.Attempts)
	assert.Empty(t, runner.calls)
}

func TestValidate_AllPassFirstAttempt(t *testing.T) {
	runner := &scriptRunner{results: []*executor.CommandResult{
		{ExitCode: 0, Stdout: "--- PASS: TestAdd (0.00s)\nok\ncoverage: 90.0% of statements\n"},
	}}
	tracker := changetracker.NewTracker(t.TempDir(), utils.NewTestLogger())
	v := NewTestValidator(runner, &llm.StubGenerator{}, tracker, config.DefaultConfig(), utils.NewTestLogger())

	result, err := v.Validate(context.Background(), goTestRepoContext("."))
	require.NoError(t, err)

	assert.True(t, result.Determined)
	assert.True(t, result.AllPassed)
	assert.Equal(t, 1, result.Attempts)
	assert.Empty(t, result.Failures)
	require.NotNil(t, result.Coverage)
	assert.InDelta(t, 90.0, result.Coverage.Percent, 0.001)
}

func TestValidate_FixAppliedThenPasses(t *testing.T) {
	root := t.TempDir()
	source := "package math\n\nfunc Subtract(a, b int) int {\n\treturn a + b\n}\n"
	require.NoError(t, utils.SaveFile(filepath.Join(root, "math.go"), source))

	failingOutput := "--- FAIL: TestSubtract (0.00s)\n    math_test.go:10: expected 2, got 8\nFAIL\n"
	runner := &scriptRunner{results: []*executor.CommandResult{
		{ExitCode: 1, Stdout: failingOutput},
		{ExitCode: 0, Stdout: "--- PASS: TestSubtract (0.00s)\nok\n"},
	}}
	gen := &llm.StubGenerator{Responses: []string{
		`{"file_path": "math.go", "original": "return a + b", "replacement": "return a - b", "description": "wrong operator"}`,
	}}

	tracker := changetracker.NewTracker(root, utils.NewTestLogger())
	v := NewTestValidator(runner, gen, tracker, config.DefaultConfig(), utils.NewTestLogger())

	result, err := v.Validate(context.Background(), goTestRepoContext(root))
	require.NoError(t, err)

	assert.True(t, result.AllPassed)
	assert.Equal(t, 2, result.Attempts)
	require.Len(t, result.FixesApplied, 1)

	content, err := tracker.ReadFile("math.go")
	require.NoError(t, err)
	assert.Contains(t, content, "return a - b")
}

func TestValidate_RetriesExhausted(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, utils.SaveFile(filepath.Join(root, "math.go"), "package math\nx\ny\n"))

	failing := &executor.CommandResult{
		ExitCode: 1,
		Stdout:   "--- FAIL: TestSubtract (0.00s)\n    math_test.go:10: expected 2, got 8\nFAIL\n",
	}
	// TestMaxRetries default is 2, so two runs and one fix in between.
	runner := &scriptRunner{results: []*executor.CommandResult{failing, failing}}
	gen := &llm.StubGenerator{Responses: []string{
		`{"file_path": "math.go", "original": "x", "replacement": "z"}`,
	}}

	tracker := changetracker.NewTracker(root, utils.NewTestLogger())
	v := NewTestValidator(runner, gen, tracker, config.DefaultConfig(), utils.NewTestLogger())

	result, err := v.Validate(context.Background(), goTestRepoContext(root))
	require.NoError(t, err)

	assert.False(t, result.AllPassed)
	assert.Equal(t, 2, result.Attempts)
	assert.Equal(t, 1, result.Failed)
	require.Len(t, result.Failures, 1)
	assert.Equal(t, "TestSubtract", result.Failures[0].Name)
	assert.Len(t, runner.calls, 2)
}

func TestRunTests_AppliesFilterPerFramework(t *testing.T) {
	cases := []struct {
		framework string
		wantArg   string
	}{
		{"go test", "-run"},
		{"pytest", "-k"},
		{"jest", "-t"},
		{"dotnet test", "--filter"},
	}
	for _, tc := range cases {
		runner := &scriptRunner{results: []*executor.CommandResult{{}}}
		tracker := changetracker.NewTracker(t.TempDir(), utils.NewTestLogger())
		v := NewTestValidator(runner, &llm.StubGenerator{}, tracker, config.DefaultConfig(), utils.NewTestLogger())
		v.Filter = "TestLogin"

		_, err := v.RunTests(context.Background(), &workspace.RepositoryContext{Root: "."}, &workspace.ToolInfo{
			Name: tc.framework, Command: "tool",
		})
		require.NoError(t, err)
		require.Len(t, runner.calls, 1)
		assert.Contains(t, runner.calls[0], tc.wantArg+" TestLogin", "framework %s", tc.framework)
	}
}

func TestRunTests_TranslatesAlternationPerFramework(t *testing.T) {
	cases := []struct {
		framework string
		want      string
	}{
		{"go test", "tool -run TestLogin|TestLogout"},
		{"pytest", "tool -k TestLogin or TestLogout"},
		{"jest", "tool -t TestLogin|TestLogout"},
		// Several names cannot be passed to cargo, so no filter is added.
		{"cargo test", "tool"},
	}
	for _, tc := range cases {
		runner := &scriptRunner{results: []*executor.CommandResult{{}}}
		tracker := changetracker.NewTracker(t.TempDir(), utils.NewTestLogger())
		v := NewTestValidator(runner, &llm.StubGenerator{}, tracker, config.DefaultConfig(), utils.NewTestLogger())
		v.Filter = "TestLogin|TestLogout"

		_, err := v.RunTests(context.Background(), &workspace.RepositoryContext{Root: "."}, &workspace.ToolInfo{
			Name: tc.framework, Command: "tool",
		})
		require.NoError(t, err)
		require.Len(t, runner.calls, 1)
		assert.Equal(t, tc.want, runner.calls[0], "framework %s", tc.framework)
	}
}

func TestAnalyzeTestFailures_ReclassifiesUnknown(t *testing.T) {
	tracker := changetracker.NewTracker(t.TempDir(), utils.NewTestLogger())
	v := NewTestValidator(&scriptRunner{}, &llm.StubGenerator{}, tracker, config.DefaultConfig(), utils.NewTestLogger())

	in := []TestFailure{
		{Name: "TestA", Kind: FailureUnknown, Message: "expected 200, got 500"},
		{Name: "TestB", Kind: FailureUnknown, Message: ""},
	}
	out := v.AnalyzeTestFailures(in)

	assert.Equal(t, FailureAssertion, out[0].Kind)
	assert.Equal(t, FailureUnknown, out[1].Kind)
	// Input stays untouched.
	assert.Equal(t, FailureUnknown, in[0].Kind)
}
