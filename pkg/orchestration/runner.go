package orchestration

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/ronnygunawan/opencopilot/pkg/changetracker"
	"github.com/ronnygunawan/opencopilot/pkg/config"
	"github.com/ronnygunawan/opencopilot/pkg/executor"
	"github.com/ronnygunawan/opencopilot/pkg/llm"
	"github.com/ronnygunawan/opencopilot/pkg/progress"
	"github.com/ronnygunawan/opencopilot/pkg/utils"
)

// PlanRunner executes a sequence of plan steps. Steps are independent of each
// other: every step runs in its own pipeline instance with its own change
// ledger. Concurrent steps additionally get their own working copy of the
// tree, so a step rolling back never disturbs a step still building.
type PlanRunner struct {
	root      string
	cfg       *config.Config
	runner    executor.Runner
	generator llm.Generator
	sink      progress.Sink
	logger    *utils.Logger

	// Concurrency bounds how many steps run at once. Zero or one means
	// strictly sequential execution.
	Concurrency int
}

// NewPlanRunner creates a sequential runner; set Concurrency to allow
// parallel steps.
func NewPlanRunner(root string, cfg *config.Config, runner executor.Runner, generator llm.Generator, sink progress.Sink, logger *utils.Logger) *PlanRunner {
	if sink == nil {
		sink = progress.NopSink{}
	}
	return &PlanRunner{
		root:      root,
		cfg:       cfg,
		runner:    runner,
		generator: generator,
		sink:      sink,
		logger:    logger,
	}
}

// Run executes every step and returns one result per step, in step order.
// A failed step does not stop the others: each result carries its own
// success flag and error. The returned error is non-nil only when the
// context was cancelled mid-plan.
func (r *PlanRunner) Run(ctx context.Context, steps []*PlanStep) ([]*StepExecutionResult, error) {
	if r.Concurrency <= 1 {
		return r.runSequential(ctx, steps)
	}
	return r.runConcurrent(ctx, steps)
}

func (r *PlanRunner) runSequential(ctx context.Context, steps []*PlanStep) ([]*StepExecutionResult, error) {
	results := make([]*StepExecutionResult, 0, len(steps))
	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		exec := NewStepExecutor(r.root, r.cfg, r.runner, r.generator, r.sink, r.logger)
		result := exec.ExecuteStepWithRetry(ctx, step)
		results = append(results, result)
		if !result.Success {
			r.logger.Logf("Step %s failed in %s: %v", step.ID, result.FailedAt, result.Err)
		}
	}
	return results, nil
}

// runConcurrent isolates every step in a staged copy of the tree. The shared
// root is only touched under treeMu: reads while staging, writes while
// promoting a succeeded step's changes. A failed step discards its copy, so
// its rollback can never restore intermediate content into another step's
// view of a file.
func (r *PlanRunner) runConcurrent(ctx context.Context, steps []*PlanStep) ([]*StepExecutionResult, error) {
	results := make([]*StepExecutionResult, len(steps))
	var mu sync.Mutex
	var treeMu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.Concurrency)
	for i, step := range steps {
		i, step := i, step
		g.Go(func() error {
			treeMu.Lock()
			stage, stageErr := stageWorkingCopy(r.root)
			treeMu.Unlock()
			if stageErr != nil {
				mu.Lock()
				results[i] = &StepExecutionResult{
					StepID:   step.ID,
					FailedAt: PhaseFailed,
					Err:      fmt.Errorf("could not stage a working copy: %w", stageErr),
					Metrics:  newExecutionMetrics(),
				}
				mu.Unlock()
				return gctx.Err()
			}
			defer os.RemoveAll(stage)

			exec := NewStepExecutor(stage, r.cfg, r.runner, r.generator, r.sink, r.logger)
			result := exec.ExecuteStepWithRetry(gctx, step)
			if result.Success {
				treeMu.Lock()
				promoteErr := promoteChanges(r.root, result.Changes)
				treeMu.Unlock()
				if promoteErr != nil {
					result.Success = false
					result.FailedAt = PhaseFailed
					result.Err = fmt.Errorf("could not promote changes to the shared tree: %w", promoteErr)
					step.Completed = false
				}
			}
			mu.Lock()
			results[i] = result
			mu.Unlock()
			// Step failures are reported in the result, not as group
			// errors; only cancellation tears the group down.
			return gctx.Err()
		})
	}
	err := g.Wait()

	// Steps cancelled before their executor ran still get a result.
	for i, step := range steps {
		if results[i] == nil {
			results[i] = &StepExecutionResult{
				StepID:   step.ID,
				FailedAt: PhaseFailed,
				Err:      fmt.Errorf("step not executed: %w", context.Canceled),
				Metrics:  newExecutionMetrics(),
			}
		}
	}
	return results, err
}

// vcsDirs are never staged into a working copy.
var vcsDirs = map[string]bool{".git": true, ".hg": true, ".svn": true}

// stageWorkingCopy duplicates the working tree into a temporary directory.
func stageWorkingCopy(root string) (string, error) {
	stage, err := os.MkdirTemp("", "opencopilot-step-*")
	if err != nil {
		return "", err
	}
	err = filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return relErr
		}
		if rel == "." {
			return nil
		}
		target := filepath.Join(stage, rel)
		if d.IsDir() {
			if vcsDirs[d.Name()] {
				return filepath.SkipDir
			}
			info, infoErr := d.Info()
			if infoErr != nil {
				return infoErr
			}
			return os.MkdirAll(target, info.Mode().Perm())
		}
		return copyFile(path, target)
	})
	if err != nil {
		os.RemoveAll(stage)
		return "", err
	}
	return stage, nil
}

func copyFile(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// promoteChanges replays a succeeded step's ledger onto the shared tree.
// Entries replay in ledger order, so the final content of a file touched
// several times wins naturally. Absolute paths cannot be mapped from the
// working copy and are rejected.
func promoteChanges(root string, changes []changetracker.FileChange) error {
	for _, change := range changes {
		if filepath.IsAbs(change.Path) {
			return fmt.Errorf("change to %s has an absolute path", change.Path)
		}
		target := filepath.Join(root, change.Path)
		switch change.Kind {
		case changetracker.ChangeDeleted:
			if err := os.Remove(target); err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("could not delete %s: %w", change.Path, err)
			}
		default:
			if change.NewContent == nil {
				return fmt.Errorf("change to %s has no content", change.Path)
			}
			if err := utils.SaveFile(target, *change.NewContent); err != nil {
				return fmt.Errorf("could not write %s: %w", change.Path, err)
			}
		}
	}
	return nil
}
