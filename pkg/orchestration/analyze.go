package orchestration

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/ronnygunawan/opencopilot/pkg/llm"
	"github.com/ronnygunawan/opencopilot/pkg/workspace"
)

const analyzeSystemPrompt = "You are an expert software engineer planning a code change. Respond with the requested JSON and nothing else."

const generateSystemPrompt = "You are an expert software engineer writing production code. Respond with the complete file content and nothing else."

// AnalyzeStep asks the planning collaborator to turn a plan step into an
// ordered list of concrete file actions. This is the only place intent is
// requested from the model; later phases only request content and fixes.
func (e *StepExecutor) AnalyzeStep(ctx context.Context, step *PlanStep, repoCtx *workspace.RepositoryContext) (*StepActionPlan, error) {
	fileList := repoCtx.Files
	if len(fileList) > 200 {
		fileList = fileList[:200]
	}

	prompt := fmt.Sprintf(`Plan the file changes for this implementation step.

Step: %s
Details: %s

Repository language: %s
Repository files:
%s

Respond with JSON only:
{
  "actions": [{"kind": "create|modify|delete", "file_path": "...", "description": "...", "request": {"prompt": "<instructions for generating this file's content>"}}],
  "prerequisites": ["..."],
  "requires_tests": true,
  "main_file": "...",
  "test_file": "..."
}
List actions in the order they should be applied.`,
		step.Title, step.Details, repoCtx.Language, strings.Join(fileList, "\n"))

	response, err := e.generator.Generate(ctx, analyzeSystemPrompt, prompt)
	if err != nil {
		return nil, fmt.Errorf("step analysis failed: %w", err)
	}

	var plan StepActionPlan
	if err := llm.DecodeJSON(response, &plan); err != nil {
		return nil, fmt.Errorf("step analysis returned an unusable plan: %w", err)
	}
	if len(plan.Actions) == 0 {
		return nil, fmt.Errorf("step analysis produced no actions")
	}
	for i, action := range plan.Actions {
		switch action.Kind {
		case ActionCreate, ActionModify, ActionDelete:
		default:
			return nil, fmt.Errorf("action %d has unknown kind %q", i, action.Kind)
		}
		if action.FilePath == "" {
			return nil, fmt.Errorf("action %d has no file path", i)
		}
	}
	return &plan, nil
}

// generateContent asks the collaborator for the full new content of one file.
func (e *StepExecutor) generateContent(ctx context.Context, step *PlanStep, repoCtx *workspace.RepositoryContext, action CodeAction) (string, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Implementation step: %s\n%s\n\n", step.Title, step.Details)
	fmt.Fprintf(&sb, "Action: %s %s\n%s\n\n", action.Kind, action.FilePath, action.Description)
	if action.Request.Prompt != "" {
		fmt.Fprintf(&sb, "Instructions:\n%s\n\n", action.Request.Prompt)
	}
	for k, v := range action.Request.Params {
		fmt.Fprintf(&sb, "Parameter %s: %s\n", k, v)
	}

	if action.Kind == ActionModify {
		current, err := e.tracker.ReadFile(action.FilePath)
		if err != nil {
			return "", fmt.Errorf("cannot read %s for modification: %w", action.FilePath, err)
		}
		fmt.Fprintf(&sb, "Current content of %s:\n```\n%s\n```\n\n", action.FilePath, current)
		if action.Request.BeforeAnchor != "" || action.Request.AfterAnchor != "" {
			fmt.Fprintf(&sb, "Make the change between the anchors %q and %q, leaving the rest untouched.\n",
				action.Request.BeforeAnchor, action.Request.AfterAnchor)
		}
	}
	fmt.Fprintf(&sb, "Respond with the complete new content of %s.", action.FilePath)

	response, err := e.generator.Generate(ctx, generateSystemPrompt, sb.String())
	if err != nil {
		return "", err
	}
	return stripCodeFence(response), nil
}

// testFilter narrows the test run to the tests the step itself added or
// changed, using the plan's test file hint. An unreadable hint or a file with
// no recognizable test declarations leaves the run unfiltered.
func (e *StepExecutor) testFilter(plan *StepActionPlan) string {
	if plan == nil || plan.TestFileHint == "" {
		return ""
	}
	content, err := e.tracker.ReadFile(plan.TestFileHint)
	if err != nil {
		return ""
	}
	return testNamePattern(content)
}

var testDeclRe = regexp.MustCompile(`(?m)^\s*(?:func|def)\s+((?:Test|test_)\w+)`)

// testNamePattern joins the test names declared in content into an
// alternation the validator translates per framework.
func testNamePattern(content string) string {
	var names []string
	seen := map[string]bool{}
	for _, m := range testDeclRe.FindAllStringSubmatch(content, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			names = append(names, m[1])
		}
	}
	return strings.Join(names, "|")
}

// stripCodeFence unwraps a fenced code block when the model added one.
func stripCodeFence(response string) string {
	text := strings.TrimSpace(response)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	lines := strings.SplitN(text, "\n", 2)
	if len(lines) < 2 {
		return text
	}
	body := lines[1]
	if idx := strings.LastIndex(body, "```"); idx != -1 {
		body = body[:idx]
	}
	return strings.TrimRight(body, "\n") + "\n"
}
