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

// BuildVerifier runs the detected build tool and drives a bounded
// fix-and-retry loop: run -> parse errors -> generate fixes -> apply -> run
// again, up to MaxRetries build invocations.
type BuildVerifier struct {
	runner    executor.Runner
	generator llm.Generator
	tracker   *changetracker.Tracker
	logger    *utils.Logger

	// MaxRetries bounds the number of build invocations.
	MaxRetries int
}

// NewBuildVerifier wires a verifier to its collaborators. All file mutations
// performed while applying fixes go through the tracker so they land in the
// step's ledger.
func NewBuildVerifier(runner executor.Runner, generator llm.Generator, tracker *changetracker.Tracker, cfg *config.Config, logger *utils.Logger) *BuildVerifier {
	return &BuildVerifier{
		runner:     runner,
		generator:  generator,
		tracker:    tracker,
		logger:     logger,
		MaxRetries: cfg.BuildMaxRetries,
	}
}

// DetectBuildTool returns the build tool recorded in the repository context,
// or nil when none was detected.
func (v *BuildVerifier) DetectBuildTool(repoCtx *workspace.RepositoryContext) *workspace.ToolInfo {
	return repoCtx.BuildTool
}

// Verify runs the build loop. A missing build tool short-circuits to an
// undetermined result with zero attempts instead of looping. Invocation
// failures (could not start, timed out) abort the current attempt and are
// returned alongside the partial result.
func (v *BuildVerifier) Verify(ctx context.Context, repoCtx *workspace.RepositoryContext) (*BuildResult, error) {
	result := &BuildResult{}
	tool := v.DetectBuildTool(repoCtx)
	if tool == nil {
		v.logger.LogProcessStep("No build tool detected, skipping build verification")
		return result, nil
	}
	result.Determined = true
	result.Tool = tool.Name

	start := time.Now()
	defer func() { result.Duration = time.Since(start) }()

	for attempt := 1; attempt <= v.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		v.logger.LogProcessStep(fmt.Sprintf("Running build (%s), attempt %d/%d", tool.Name, attempt, v.MaxRetries))

		run, err := v.runner.Run(ctx, repoCtx.Root, tool.Command, tool.Args...)
		if err != nil {
			return result, fmt.Errorf("build invocation failed: %w", err)
		}
		result.Attempts = attempt
		result.Output = run.CombinedOutput()

		if !run.Failed() {
			result.Succeeded = true
			result.Errors = nil
			v.logger.LogProcessStep("Build passed")
			return result, nil
		}

		result.Errors = ParseBuildErrors(tool.Name, result.Output)
		v.logger.Logf("Build attempt %d failed with %d recognized errors", attempt, len(result.Errors))

		if attempt == v.MaxRetries {
			break
		}

		fixes := v.GenerateFixes(ctx, repoCtx, result.Errors)
		if len(fixes) == 0 {
			v.logger.LogProcessStep("No fixes could be generated, stopping build retries")
			break
		}
		applied, err := v.ApplyFixes(fixes)
		result.FixesApplied = append(result.FixesApplied, applied...)
		if err != nil {
			return result, err
		}
		if len(applied) == 0 {
			v.logger.LogProcessStep("No fixes were applicable, stopping build retries")
			break
		}
	}

	v.logger.LogProcessStep("Build verification failed")
	return result, nil
}

// GenerateFixes maps each build error to zero or one CodeFix through the
// generation collaborator. A generation failure for one error never aborts
// the batch; whatever succeeds is collected.
func (v *BuildVerifier) GenerateFixes(ctx context.Context, repoCtx *workspace.RepositoryContext, errors []BuildError) []CodeFix {
	var fixes []CodeFix
	for _, buildErr := range errors {
		if ctx.Err() != nil {
			break
		}
		fix, err := v.generateFix(ctx, repoCtx, buildErr)
		if err != nil {
			v.logger.Logf("Fix generation skipped for %s: %v", buildErr.Message, err)
			continue
		}
		if fix != nil {
			fixes = append(fixes, *fix)
		}
	}
	return fixes
}

func (v *BuildVerifier) generateFix(ctx context.Context, repoCtx *workspace.RepositoryContext, buildErr BuildError) (*CodeFix, error) {
	var snippet string
	if buildErr.File != "" {
		if content, err := v.tracker.ReadFile(buildErr.File); err == nil {
			snippet = snippetAround(content, buildErr.Line, 12)
		}
	}

	prompt := fmt.Sprintf(`The %s build failed with this error:

File: %s
Line: %d
Category: %s
Error: %s

Surrounding code:
%s

Propose a minimal fix. Respond with JSON only:
{"file_path": "...", "original": "<exact text to replace>", "replacement": "<new text>", "confidence": 0.0-1.0, "description": "..."}
If you cannot propose a safe fix, respond with {"confidence": 0}.`,
		repoCtx.Language, buildErr.File, buildErr.Line, buildErr.Category, buildErr.Message, snippet)

	response, err := v.generator.Generate(ctx, buildFixSystemPrompt, prompt)
	if err != nil {
		return nil, err
	}
	var fix CodeFix
	if err := llm.DecodeJSON(response, &fix); err != nil {
		return nil, err
	}
	if fix.Confidence <= 0 || fix.FilePath == "" || fix.Original == "" {
		return nil, nil
	}
	if fix.Original == fix.Replacement {
		return nil, nil
	}
	return &fix, nil
}

// ApplyFixes applies each fix through the change ledger. Fixes whose original
// text is no longer present are skipped; a failed file write aborts and is
// returned for the caller's rollback handling.
func (v *BuildVerifier) ApplyFixes(fixes []CodeFix) ([]CodeFix, error) {
	var applied []CodeFix
	for _, fix := range fixes {
		content, err := v.tracker.ReadFile(fix.FilePath)
		if err != nil {
			v.logger.Logf("Fix skipped, cannot read %s: %v", fix.FilePath, err)
			continue
		}
		if !strings.Contains(content, fix.Original) {
			v.logger.Logf("Fix skipped, original text not found in %s", fix.FilePath)
			continue
		}
		updated := strings.Replace(content, fix.Original, fix.Replacement, 1)
		if err := v.tracker.ModifyFile(fix.FilePath, updated); err != nil {
			return applied, fmt.Errorf("failed to apply fix to %s: %w", fix.FilePath, err)
		}
		v.logger.LogProcessStep(fmt.Sprintf("Applied build fix to %s (confidence %.2f)", fix.FilePath, fix.Confidence))
		applied = append(applied, fix)
	}
	return applied, nil
}

const buildFixSystemPrompt = "You are an expert software engineer fixing build errors. Respond with the requested JSON and nothing else."

// snippetAround extracts a window of lines centered on line (1-based).
func snippetAround(content string, line, radius int) string {
	lines := strings.Split(content, "\n")
	if line <= 0 || len(lines) == 0 {
		if len(lines) > 2*radius {
			lines = lines[:2*radius]
		}
		return strings.Join(lines, "\n")
	}
	start := line - 1 - radius
	if start < 0 {
		start = 0
	}
	end := line - 1 + radius
	if end >= len(lines) {
		end = len(lines) - 1
	}
	return strings.Join(lines[start:end+1], "\n")
}
