package refactor

import (
	"context"
	"fmt"

	"github.com/ronnygunawan/opencopilot/pkg/changetracker"
	"github.com/ronnygunawan/opencopilot/pkg/executor"
	"github.com/ronnygunawan/opencopilot/pkg/utils"
	"github.com/ronnygunawan/opencopilot/pkg/validation"
	"github.com/ronnygunawan/opencopilot/pkg/workspace"
)

// ChangesetValidationResult reports the single-pass verification of a fully
// applied changeset.
type ChangesetValidationResult struct {
	Determined bool
	Succeeded  bool
	Output     string
	Errors     []validation.BuildError
}

// Coordinator applies dependency-ordered changesets spanning many files
// atomically: either every change lands and verifies, or the working tree is
// restored to how it was when the changeset began.
type Coordinator struct {
	tracker *changetracker.Tracker
	runner  executor.Runner
	logger  *utils.Logger
}

// NewCoordinator creates a coordinator over the given ledger.
func NewCoordinator(tracker *changetracker.Tracker, runner executor.Runner, logger *utils.Logger) *Coordinator {
	return &Coordinator{tracker: tracker, runner: runner, logger: logger}
}

// AnalyzeDependencies builds a fresh dependency graph over the given files
// using their current on-disk content.
func (c *Coordinator) AnalyzeDependencies(files []string) (*DependencyGraph, error) {
	return AnalyzeDependencies(files, c.tracker.ReadFile)
}

// PlanChangeOrder orders the changeset so dependencies are changed first.
func (c *Coordinator) PlanChangeOrder(changes []changetracker.FileChange, graph *DependencyGraph) []changetracker.FileChange {
	return PlanChangeOrder(changes, graph)
}

// ApplyAtomicChanges applies the ordered changeset through the ledger. A
// failure on any file rolls back everything this call already applied before
// the error is propagated; no partial refactor is left in place.
func (c *Coordinator) ApplyAtomicChanges(ctx context.Context, ordered []changetracker.FileChange) error {
	mark := c.tracker.Len()
	for _, change := range ordered {
		if err := ctx.Err(); err != nil {
			c.rollbackFrom(mark)
			return err
		}
		if err := c.applyOne(change); err != nil {
			c.logger.LogError(fmt.Errorf("changeset aborted at %s: %w", change.Path, err))
			c.rollbackFrom(mark)
			return err
		}
	}
	return nil
}

// RollbackChanges undoes every change applied since mark.
func (c *Coordinator) RollbackChanges(mark int) error {
	return c.tracker.RollbackTo(mark)
}

// VerifyChangeset runs the build once against the fully applied set, with no
// fix loop. A failure triggers the same full rollback as an application
// failure.
func (c *Coordinator) VerifyChangeset(ctx context.Context, repoCtx *workspace.RepositoryContext, mark int) (*ChangesetValidationResult, error) {
	result := &ChangesetValidationResult{}
	tool := repoCtx.BuildTool
	if tool == nil {
		return result, nil
	}
	result.Determined = true

	run, err := c.runner.Run(ctx, repoCtx.Root, tool.Command, tool.Args...)
	if err != nil {
		c.rollbackFrom(mark)
		return result, fmt.Errorf("changeset verification failed to run: %w", err)
	}
	result.Output = run.CombinedOutput()
	if run.Failed() {
		result.Errors = validation.ParseBuildErrors(tool.Name, result.Output)
		c.logger.LogProcessStep(fmt.Sprintf("Changeset verification failed with %d recognized errors, rolling back", len(result.Errors)))
		c.rollbackFrom(mark)
		return result, nil
	}
	result.Succeeded = true
	return result, nil
}

// Execute runs the full analyze -> order -> apply -> verify sequence for one
// changeset and returns the ordered changes alongside the validation result.
func (c *Coordinator) Execute(ctx context.Context, repoCtx *workspace.RepositoryContext, changes []changetracker.FileChange) ([]changetracker.FileChange, *ChangesetValidationResult, error) {
	files := make([]string, 0, len(changes))
	seen := map[string]bool{}
	for _, change := range changes {
		p := cleanPath(change.Path)
		if !seen[p] {
			seen[p] = true
			files = append(files, p)
		}
	}

	graph, err := c.AnalyzeDependencies(files)
	if err != nil {
		return nil, nil, fmt.Errorf("dependency analysis failed: %w", err)
	}
	if len(graph.CircularDependencies) > 0 {
		c.logger.Logf("Changeset has %d circular dependency group(s); falling back to declaration order within them", len(graph.CircularDependencies))
	}

	ordered := c.PlanChangeOrder(changes, graph)
	mark := c.tracker.Len()
	if err := c.ApplyAtomicChanges(ctx, ordered); err != nil {
		return ordered, nil, err
	}
	result, err := c.VerifyChangeset(ctx, repoCtx, mark)
	if err != nil {
		return ordered, nil, err
	}
	return ordered, result, nil
}

func (c *Coordinator) applyOne(change changetracker.FileChange) error {
	switch change.Kind {
	case changetracker.ChangeCreated:
		if change.NewContent == nil {
			return fmt.Errorf("create change for %s has no content", change.Path)
		}
		return c.tracker.CreateFile(change.Path, *change.NewContent)
	case changetracker.ChangeModified:
		if change.NewContent == nil {
			return fmt.Errorf("modify change for %s has no content", change.Path)
		}
		return c.tracker.ModifyFile(change.Path, *change.NewContent)
	case changetracker.ChangeDeleted:
		return c.tracker.DeleteFile(change.Path)
	default:
		return fmt.Errorf("unknown change kind %q", change.Kind)
	}
}

func (c *Coordinator) rollbackFrom(mark int) {
	if err := c.tracker.RollbackTo(mark); err != nil {
		c.logger.LogError(fmt.Errorf("rollback after failed changeset: %w", err))
	}
}
