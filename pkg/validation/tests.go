package validation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ronnygunawan/opencopilot/pkg/changetracker"
	"github.com/ronnygunawan/opencopilot/pkg/config"
	"github.com/ronnygunawan/opencopilot/pkg/executor"
	"github.com/ronnygunawan/opencopilot/pkg/llm"
	"github.com/ronnygunawan/opencopilot/pkg/utils"
	"github.com/ronnygunawan/opencopilot/pkg/workspace"
)

// TestValidator mirrors the build verifier for the detected test framework:
// run tests, classify failures, ask for fixes, retry within a bound.
type TestValidator struct {
	runner    executor.Runner
	generator llm.Generator
	tracker   *changetracker.Tracker
	logger    *utils.Logger

	// MaxRetries bounds the number of test invocations.
	MaxRetries int
	// Filter optionally narrows the run to matching tests.
	Filter string
}

// NewTestValidator wires a validator to its collaborators.
func NewTestValidator(runner executor.Runner, generator llm.Generator, tracker *changetracker.Tracker, cfg *config.Config, logger *utils.Logger) *TestValidator {
	return &TestValidator{
		runner:     runner,
		generator:  generator,
		tracker:    tracker,
		logger:     logger,
		MaxRetries: cfg.TestMaxRetries,
	}
}

// DetectTestFramework returns the framework recorded in the repository
// context, or nil when none was detected.
func (v *TestValidator) DetectTestFramework(repoCtx *workspace.RepositoryContext) *workspace.ToolInfo {
	return repoCtx.TestFramework
}

// Validate runs the test loop. No detected framework short-circuits to an
// undetermined result with zero attempts. Missing coverage never fails the
// validation.
func (v *TestValidator) Validate(ctx context.Context, repoCtx *workspace.RepositoryContext) (*TestValidationResult, error) {
	result := &TestValidationResult{}
	framework := v.DetectTestFramework(repoCtx)
	if framework == nil {
		v.logger.LogProcessStep("No test framework detected, skipping test validation")
		return result, nil
	}
	result.Determined = true

	start := time.Now()
	defer func() { result.Duration = time.Since(start) }()

	for attempt := 1; attempt <= v.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		v.logger.LogProcessStep(fmt.Sprintf("Running tests (%s), attempt %d/%d", framework.Name, attempt, v.MaxRetries))

		run, err := v.RunTests(ctx, repoCtx, framework)
		if err != nil {
			return result, fmt.Errorf("test invocation failed: %w", err)
		}
		result.Attempts = attempt
		result.Output = run.CombinedOutput()

		counts := parseTestOutput(framework.Name, result.Output)
		result.Passed = counts.passed
		result.Failed = counts.failed
		result.Skipped = counts.skipped
		result.Failures = counts.failures
		if counts.coverage != nil {
			result.Coverage = counts.coverage
		}

		if !run.Failed() && counts.failed == 0 {
			result.AllPassed = true
			result.Failures = nil
			v.logger.LogProcessStep(fmt.Sprintf("Tests passed (%d passed, %d skipped)", result.Passed, result.Skipped))
			return result, nil
		}

		v.logger.Logf("Test attempt %d: %d failed, %d passed, %d skipped", attempt, counts.failed, counts.passed, counts.skipped)

		if attempt == v.MaxRetries {
			break
		}

		failures := v.AnalyzeTestFailures(counts.failures)
		fixes := v.GenerateTestFixes(ctx, repoCtx, failures)
		if len(fixes) == 0 {
			v.logger.LogProcessStep("No test fixes could be generated, stopping test retries")
			break
		}
		applied, err := v.ApplyTestFixes(fixes)
		result.FixesApplied = append(result.FixesApplied, applied...)
		if err != nil {
			return result, err
		}
		if len(applied) == 0 {
			v.logger.LogProcessStep("No test fixes were applicable, stopping test retries")
			break
		}
	}

	v.logger.LogProcessStep("Test validation failed")
	return result, nil
}

// RunTests invokes the framework, honoring the optional filter so a step can
// target only the tests it added or changed. The filter is a |-separated
// alternation of test names, translated into each framework's selection
// syntax.
func (v *TestValidator) RunTests(ctx context.Context, repoCtx *workspace.RepositoryContext, framework *workspace.ToolInfo) (*executor.CommandResult, error) {
	args := append([]string(nil), framework.Args...)
	if v.Filter != "" {
		switch framework.Name {
		case "go test":
			args = append(args, "-run", v.Filter)
		case "pytest":
			// pytest -k takes an expression, not a regex.
			args = append(args, "-k", strings.ReplaceAll(v.Filter, "|", " or "))
		case "jest", "vitest":
			args = append(args, "-t", v.Filter)
		case "dotnet test":
			args = append(args, "--filter", v.Filter)
		case "cargo test":
			// cargo test filters by a single substring; several names
			// cannot be expressed, so the whole suite runs instead.
			if !strings.Contains(v.Filter, "|") {
				args = append(args, v.Filter)
			}
		}
	}
	return v.runner.Run(ctx, repoCtx.Root, framework.Command, args...)
}

// AnalyzeTestFailures refines the parser's coarse classification. Assertion
// mismatches keep their message as the steering signal; exceptions and
// timeouts are flagged so fixes target code rather than expectations.
func (v *TestValidator) AnalyzeTestFailures(failures []TestFailure) []TestFailure {
	analyzed := make([]TestFailure, len(failures))
	copy(analyzed, failures)
	for i := range analyzed {
		if analyzed[i].Kind == FailureUnknown && analyzed[i].Message != "" {
			analyzed[i].Kind = classifyFailureMessage(analyzed[i].Message)
		}
	}
	return analyzed
}

// GenerateTestFixes maps each failure to zero or one TestFix; per-item
// generation failures are skipped.
func (v *TestValidator) GenerateTestFixes(ctx context.Context, repoCtx *workspace.RepositoryContext, failures []TestFailure) []TestFix {
	var fixes []TestFix
	for _, failure := range failures {
		if ctx.Err() != nil {
			break
		}
		fix, err := v.generateTestFix(ctx, repoCtx, failure)
		if err != nil {
			v.logger.Logf("Test fix generation skipped for %s: %v", failure.Name, err)
			continue
		}
		if fix != nil {
			fixes = append(fixes, *fix)
		}
	}
	return fixes
}

func (v *TestValidator) generateTestFix(ctx context.Context, repoCtx *workspace.RepositoryContext, failure TestFailure) (*TestFix, error) {
	var snippet string
	if failure.File != "" {
		if content, err := v.tracker.ReadFile(failure.File); err == nil {
			snippet = snippetAround(content, failure.Line, 12)
		}
	}

	guidance := "Fix the code under test, not the assertion, unless the expectation itself is wrong."
	switch failure.Kind {
	case FailureTimeout:
		guidance = "The test timed out. Look for blocking calls, missing cancellation, or infinite loops."
	case FailureException:
		guidance = "The test crashed with an exception. Fix the crash site, not the test."
	}

	prompt := fmt.Sprintf(`A %s test failed:

Test: %s
Kind: %s
File: %s
Line: %d
Message: %s

Surrounding code:
%s

%s Respond with JSON only:
{"file_path": "...", "original": "<exact text to replace>", "replacement": "<new text>", "description": "..."}
If you cannot propose a safe fix, respond with {}.`,
		repoCtx.Language, failure.Name, failure.Kind, failure.File, failure.Line, failure.Message, snippet, guidance)

	response, err := v.generator.Generate(ctx, testFixSystemPrompt, prompt)
	if err != nil {
		return nil, err
	}
	var fix TestFix
	if err := llm.DecodeJSON(response, &fix); err != nil {
		return nil, err
	}
	if fix.FilePath == "" || fix.Original == "" || fix.Original == fix.Replacement {
		return nil, nil
	}
	return &fix, nil
}

// ApplyTestFixes applies fixes through the change ledger, skipping any whose
// original text no longer matches.
func (v *TestValidator) ApplyTestFixes(fixes []TestFix) ([]TestFix, error) {
	var applied []TestFix
	for _, fix := range fixes {
		content, err := v.tracker.ReadFile(fix.FilePath)
		if err != nil {
			v.logger.Logf("Test fix skipped, cannot read %s: %v", fix.FilePath, err)
			continue
		}
		if !strings.Contains(content, fix.Original) {
			v.logger.Logf("Test fix skipped, original text not found in %s", fix.FilePath)
			continue
		}
		updated := strings.Replace(content, fix.Original, fix.Replacement, 1)
		if err := v.tracker.ModifyFile(fix.FilePath, updated); err != nil {
			return applied, fmt.Errorf("failed to apply test fix to %s: %w", fix.FilePath, err)
		}
		v.logger.LogProcessStep(fmt.Sprintf("Applied test fix to %s", fix.FilePath))
		applied = append(applied, fix)
	}
	return applied, nil
}

const testFixSystemPrompt = "You are an expert software engineer fixing failing tests. Respond with the requested JSON and nothing else."
