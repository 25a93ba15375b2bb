package orchestration

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ronnygunawan/opencopilot/pkg/changetracker"
	"github.com/ronnygunawan/opencopilot/pkg/config"
	"github.com/ronnygunawan/opencopilot/pkg/executor"
	"github.com/ronnygunawan/opencopilot/pkg/llm"
	"github.com/ronnygunawan/opencopilot/pkg/progress"
	"github.com/ronnygunawan/opencopilot/pkg/refactor"
	"github.com/ronnygunawan/opencopilot/pkg/utils"
	"github.com/ronnygunawan/opencopilot/pkg/validation"
	"github.com/ronnygunawan/opencopilot/pkg/workspace"
)

// StepExecutor turns one plan step into a verified, buildable, tested
// changeset. Each executor owns a single working tree and a single change
// ledger; independent steps run as independent executors.
type StepExecutor struct {
	root      string
	cfg       *config.Config
	runner    executor.Runner
	generator llm.Generator
	builder   *workspace.ContextBuilder
	tracker   *changetracker.Tracker
	sink      progress.Sink
	logger    *utils.Logger
	metrics   *ExecutionMetrics

	// repoCtx is re-derived at the start of every attempt so Building and
	// Testing see the same snapshot Analyzing planned against.
	repoCtx *workspace.RepositoryContext
}

// NewStepExecutor creates a pipeline instance for one working tree.
func NewStepExecutor(root string, cfg *config.Config, runner executor.Runner, generator llm.Generator, sink progress.Sink, logger *utils.Logger) *StepExecutor {
	if sink == nil {
		sink = progress.NopSink{}
	}
	metrics := newExecutionMetrics()
	return &StepExecutor{
		root:      root,
		cfg:       cfg,
		runner:    runner,
		generator: &countingGenerator{inner: generator, metrics: metrics},
		builder:   workspace.NewContextBuilder(cfg, logger),
		tracker:   changetracker.NewTracker(root, logger),
		sink:      sink,
		logger:    logger,
		metrics:   metrics,
	}
}

// countingGenerator counts every model invocation made on behalf of one step,
// including fix attempts that end up producing nothing usable. The build and
// test validators receive the wrapped generator, so their calls are counted
// too.
type countingGenerator struct {
	inner   llm.Generator
	metrics *ExecutionMetrics
}

func (g *countingGenerator) Generate(ctx context.Context, system, prompt string) (string, error) {
	g.metrics.GenerationCalls++
	return g.inner.Generate(ctx, system, prompt)
}

// Tracker exposes the ledger, mainly for inspection after a run.
func (e *StepExecutor) Tracker() *changetracker.Tracker {
	return e.tracker
}

// ExecuteStepWithRetry runs the full pipeline for a step, retrying from
// Analyzing up to the configured bound. Every retry first rolls the working
// tree back to its pre-step state, so attempts never stack on top of a
// half-applied predecessor. Metrics accumulate across attempts.
func (e *StepExecutor) ExecuteStepWithRetry(ctx context.Context, step *PlanStep) *StepExecutionResult {
	maxAttempts := e.cfg.StepMaxRetries + 1
	var result *StepExecutionResult

	e.publish(progress.EventStepStarted, step.ID, "", 0, step.Title)

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return e.failedResult(step, err, PhaseFailed)
		}
		e.metrics.StepAttempts++

		result = e.executeOnce(ctx, step, attempt)
		if result.Success {
			step.Completed = true
			e.publish(progress.EventStepCompleted, step.ID, string(PhaseSucceeded), attempt, "")
			return result
		}

		e.publish(progress.EventAttemptFailed, step.ID, string(result.FailedAt), attempt, errMessage(result.Err))
		if err := e.RollbackStep(); err != nil {
			result.Err = fmt.Errorf("step failed and rollback did not complete: %w", err)
			break
		}
		// Cancellation is never retried away.
		if ctx.Err() != nil {
			result.Err = ctx.Err()
			break
		}
	}

	e.publish(progress.EventStepFailed, step.ID, string(result.FailedAt), e.metrics.StepAttempts, errMessage(result.Err))
	return result
}

// executeOnce drives the state machine through one attempt:
// Analyzing -> Generating -> Building -> Testing -> Succeeded, with a failure
// exit from any state.
func (e *StepExecutor) executeOnce(ctx context.Context, step *PlanStep, attempt int) *StepExecutionResult {
	result := &StepExecutionResult{StepID: step.ID, Metrics: e.metrics}
	var plan *StepActionPlan

	phase := PhaseAnalyzing
	for {
		if err := ctx.Err(); err != nil {
			return e.fail(result, phase, err)
		}
		e.publish(progress.EventPhaseChanged, step.ID, string(phase), attempt, "")
		phaseStart := time.Now()

		switch phase {
		case PhaseAnalyzing:
			repoCtx, err := e.builder.Build(e.root)
			if err != nil {
				return e.fail(result, phase, err)
			}
			e.repoCtx = repoCtx
			plan, err = e.AnalyzeStep(ctx, step, repoCtx)
			e.metrics.addPhase(phase, time.Since(phaseStart))
			if err != nil {
				return e.fail(result, phase, err)
			}
			phase = PhaseGenerating

		case PhaseGenerating:
			err := e.runPrerequisites(ctx, plan)
			if err == nil {
				err = e.applyActions(ctx, step, plan)
			}
			result.Changes = e.tracker.Changes()
			e.metrics.addPhase(phase, time.Since(phaseStart))
			if err != nil {
				return e.fail(result, phase, err)
			}
			phase = PhaseBuilding

		case PhaseBuilding:
			verifier := validation.NewBuildVerifier(e.runner, e.generator, e.tracker, e.cfg, e.logger)
			buildResult, err := verifier.Verify(ctx, e.repoCtx)
			result.BuildResult = buildResult
			result.Changes = e.tracker.Changes()
			e.metrics.BuildAttempts += buildResult.Attempts
			e.metrics.addPhase(phase, time.Since(phaseStart))
			if err != nil {
				return e.fail(result, phase, err)
			}
			if !buildResult.Determined && e.cfg.RequireBuildTool {
				return e.fail(result, phase, fmt.Errorf("no build tool detected and configuration requires one"))
			}
			if buildResult.Determined && !buildResult.Succeeded {
				return e.fail(result, phase, fmt.Errorf("build failed after %d attempts", buildResult.Attempts))
			}
			phase = PhaseTesting

		case PhaseTesting:
			validator := validation.NewTestValidator(e.runner, e.generator, e.tracker, e.cfg, e.logger)
			validator.Filter = e.testFilter(plan)
			testResult, err := validator.Validate(ctx, e.repoCtx)
			result.TestResult = testResult
			result.Changes = e.tracker.Changes()
			e.metrics.TestAttempts += testResult.Attempts
			e.metrics.addPhase(phase, time.Since(phaseStart))
			if err != nil {
				return e.fail(result, phase, err)
			}
			if testResult.Determined && !testResult.AllPassed {
				return e.fail(result, phase, fmt.Errorf("%d tests still failing after %d attempts", testResult.Failed, testResult.Attempts))
			}
			phase = PhaseSucceeded

		case PhaseSucceeded:
			result.Success = true
			e.metrics.FilesChanged = countDistinctFiles(result.Changes)
			return result
		}
	}
}

// runPrerequisites executes the plan's preparatory commands in the working
// tree before any file is generated. A failing prerequisite fails the
// attempt.
func (e *StepExecutor) runPrerequisites(ctx context.Context, plan *StepActionPlan) error {
	for _, prereq := range plan.Prerequisites {
		fields := strings.Fields(prereq)
		if len(fields) == 0 {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		e.logger.LogProcessStep(fmt.Sprintf("Running prerequisite: %s", prereq))
		run, err := e.runner.Run(ctx, e.root, fields[0], fields[1:]...)
		if err != nil {
			return fmt.Errorf("prerequisite %q could not run: %w", prereq, err)
		}
		if run.Failed() {
			return fmt.Errorf("prerequisite %q exited with code %d", prereq, run.ExitCode)
		}
	}
	return nil
}

// applyActions applies the plan's actions through the ledger. Steps touching
// several files with cross-file references route through the refactoring
// coordinator so application order respects the dependency graph.
func (e *StepExecutor) applyActions(ctx context.Context, step *PlanStep, plan *StepActionPlan) error {
	if len(plan.Actions) > 1 {
		return e.applyViaCoordinator(ctx, step, plan)
	}
	for _, action := range plan.Actions {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := e.applyAction(ctx, step, action); err != nil {
			return err
		}
	}
	return nil
}

func (e *StepExecutor) applyAction(ctx context.Context, step *PlanStep, action CodeAction) error {
	switch action.Kind {
	case ActionDelete:
		return e.tracker.DeleteFile(action.FilePath)
	case ActionCreate:
		content, err := e.generateContent(ctx, step, e.repoCtx, action)
		if err != nil {
			return fmt.Errorf("content generation for %s failed: %w", action.FilePath, err)
		}
		return e.tracker.CreateFile(action.FilePath, content)
	case ActionModify:
		content, err := e.generateContent(ctx, step, e.repoCtx, action)
		if err != nil {
			return fmt.Errorf("content generation for %s failed: %w", action.FilePath, err)
		}
		return e.tracker.ModifyFile(action.FilePath, content)
	default:
		return fmt.Errorf("unknown action kind %q", action.Kind)
	}
}

// applyViaCoordinator generates all contents first, then hands the changeset
// to the refactoring coordinator for dependency-ordered atomic application.
func (e *StepExecutor) applyViaCoordinator(ctx context.Context, step *PlanStep, plan *StepActionPlan) error {
	var changes []changetracker.FileChange
	for _, action := range plan.Actions {
		if err := ctx.Err(); err != nil {
			return err
		}
		change := changetracker.FileChange{Path: action.FilePath}
		switch action.Kind {
		case ActionDelete:
			change.Kind = changetracker.ChangeDeleted
		case ActionCreate, ActionModify:
			content, err := e.generateContent(ctx, step, e.repoCtx, action)
			if err != nil {
				return fmt.Errorf("content generation for %s failed: %w", action.FilePath, err)
			}
			change.NewContent = &content
			if action.Kind == ActionCreate {
				change.Kind = changetracker.ChangeCreated
			} else {
				change.Kind = changetracker.ChangeModified
			}
		default:
			return fmt.Errorf("unknown action kind %q", action.Kind)
		}
		changes = append(changes, change)
	}

	// Dependency analysis sees the content about to be written; files not in
	// the changeset are read from the working tree.
	pending := make(map[string]*string, len(changes))
	files := make([]string, 0, len(changes))
	for i, c := range changes {
		pending[c.Path] = changes[i].NewContent
		files = append(files, c.Path)
	}
	graph, err := refactor.AnalyzeDependencies(files, func(path string) (string, error) {
		if content, ok := pending[path]; ok && content != nil {
			return *content, nil
		}
		return e.tracker.ReadFile(path)
	})
	if err != nil {
		return fmt.Errorf("dependency analysis failed: %w", err)
	}
	if len(graph.CircularDependencies) > 0 {
		e.logger.Logf("Changeset has %d circular dependency group(s)", len(graph.CircularDependencies))
	}

	coordinator := refactor.NewCoordinator(e.tracker, e.runner, e.logger)
	ordered := coordinator.PlanChangeOrder(changes, graph)
	return coordinator.ApplyAtomicChanges(ctx, ordered)
}

// RollbackStep restores the working tree to its pre-step state by replaying
// the ledger in reverse. Idempotent: a second call on a clean tree is a
// no-op.
func (e *StepExecutor) RollbackStep() error {
	if e.tracker.Len() == 0 {
		return nil
	}
	e.publish(progress.EventPhaseChanged, "", string(PhaseRollingBack), 0, "")
	e.logger.LogProcessStep(fmt.Sprintf("Rolling back %d ledgered change(s)", e.tracker.Len()))
	return e.tracker.Rollback()
}

func (e *StepExecutor) fail(result *StepExecutionResult, phase Phase, err error) *StepExecutionResult {
	result.Success = false
	result.FailedAt = phase
	result.Err = err
	result.Changes = e.tracker.Changes()
	e.logger.LogError(fmt.Errorf("step failed in %s: %w", phase, err))
	return result
}

func (e *StepExecutor) failedResult(step *PlanStep, err error, phase Phase) *StepExecutionResult {
	return &StepExecutionResult{
		StepID:   step.ID,
		FailedAt: phase,
		Err:      err,
		Changes:  e.tracker.Changes(),
		Metrics:  e.metrics,
	}
}

func (e *StepExecutor) publish(t progress.EventType, stepID, phase string, attempt int, msg string) {
	e.sink.Publish(progress.Event{
		Type:      t,
		StepID:    stepID,
		Phase:     phase,
		Attempt:   attempt,
		Message:   msg,
		Timestamp: time.Now(),
	})
}

func countDistinctFiles(changes []changetracker.FileChange) int {
	seen := map[string]bool{}
	for _, c := range changes {
		seen[c.Path] = true
	}
	return len(seen)
}

func errMessage(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
